package store

import (
	"context"
	"errors"
	"time"

	"github.com/psantana5/smartworking/pkg/models"
)

// Store defines the interface for data persistence
// Memory, SQLite and PostgreSQL implement this interface
type Store interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetFirstManager(ctx context.Context) (*models.User, error)
	ListEmployeesByManager(ctx context.Context, managerID string) ([]*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error

	// Request operations
	// CreateRequest inserts a pending request unless the owner already holds
	// a non-rejected request for the same date (ErrDuplicateDate). The check
	// and the insert are a single atomic step.
	CreateRequest(ctx context.Context, req *models.Request) error
	GetRequest(ctx context.Context, id string) (*models.Request, error)
	GetRequestByTokenHash(ctx context.Context, tokenHash string) (*models.Request, error)
	ListRequestsByUser(ctx context.Context, userID string) ([]*models.Request, error)
	ListRequestsByManager(ctx context.Context, managerID string) ([]*models.Request, error)
	ListAllRequests(ctx context.Context) ([]*models.Request, error)

	// TransitionRequest moves a pending request to a terminal status and
	// clears its action token. Returns ErrNotPending when the request has
	// already left pending, so concurrent deciders cannot both win.
	TransitionRequest(ctx context.Context, id string, to models.RequestStatus, at time.Time) (*models.Request, error)
	// DeleteRequest removes a decided request. Returns ErrStillPending for
	// pending ones.
	DeleteRequest(ctx context.Context, id string) error

	// Lifecycle
	Close() error
	HealthCheck(ctx context.Context) error
}

// Config holds database configuration
type Config struct {
	Type string // "memory", "sqlite" or "postgres"
	DSN  string // Connection string

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// SQLite specific
	Path string
}

// NewStore creates a store based on configuration
func NewStore(ctx context.Context, config Config) (Store, error) {
	switch config.Type {
	case "postgres", "postgresql":
		return NewPostgreSQLStore(ctx, config)
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		path := config.Path
		if path == "" {
			path = config.DSN
		}
		if path == "" {
			path = "smartworking.db"
		}
		return NewSQLiteStore(ctx, path)
	default:
		return nil, ErrUnsupportedDatabase
	}
}

var (
	ErrUnsupportedDatabase = errors.New("unsupported database type")

	ErrUserNotFound    = errors.New("user not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrRequestNotFound = errors.New("request not found")
	ErrDuplicateDate   = errors.New("a request for this date already exists")
	ErrNotPending      = errors.New("request is no longer pending")
	ErrStillPending    = errors.New("request is still pending")
)
