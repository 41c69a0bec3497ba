package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/psantana5/smartworking/pkg/models"
)

const (
	postgresDate       = "to_char(r.date, 'YYYY-MM-DD')"
	pgUniqueViolation  = "23505"
	defaultMaxConns    = 25
	defaultMinConns    = 5
	defaultConnLife    = 5 * time.Minute
	defaultConnIdle    = 1 * time.Minute
	defaultPingTimeout = 5 * time.Second
)

// DB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in tests
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgreSQLStore implements Store using a pgx connection pool
type PostgreSQLStore struct {
	db DB
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// NewPostgreSQLStore connects to PostgreSQL, applies migrations and returns the store
func NewPostgreSQLStore(ctx context.Context, config Config) (*PostgreSQLStore, error) {
	dsn := config.DSN
	if dsn == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}

	if err := ApplyPostgresMigrations(ctx, dsn); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	poolConfig.MaxConns = defaultMaxConns
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	poolConfig.MinConns = defaultMinConns
	if config.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(config.MaxIdleConns)
	}
	poolConfig.MaxConnLifetime = defaultConnLife
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}
	poolConfig.MaxConnIdleTime = defaultConnIdle
	if config.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPostgreSQLStoreWithDB(pool), nil
}

// NewPostgreSQLStoreWithDB wraps an existing pool without migrating
func NewPostgreSQLStoreWithDB(db DB) *PostgreSQLStore {
	return &PostgreSQLStore{db: db}
}

func (s *PostgreSQLStore) withTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// User operations

// CreateUser inserts a user; a taken email yields ErrEmailTaken
func (s *PostgreSQLStore) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = models.NormalizeEmail(user.Email)
	query, args, err := psql.Insert("users").
		Columns("id", "email", "password_hash", "first_name", "last_name", "role", "manager_id", "must_change_password", "created_at").
		Values(user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, string(user.Role),
			nullable(user.ManagerID), user.MustChangePassword, user.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		if isPgUnique(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (s *PostgreSQLStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, squirrel.Eq{"id": id})
}

// GetUserByEmail retrieves a user by email, ignoring case
func (s *PostgreSQLStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, squirrel.Eq{"lower(email)": models.NormalizeEmail(email)})
}

// GetFirstManager returns the earliest registered manager
func (s *PostgreSQLStore) GetFirstManager(ctx context.Context) (*models.User, error) {
	query, args, err := psql.Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"role": string(models.RoleManager)}).
		OrderBy("created_at ASC", "id ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var row userRow
	if err := pgxscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("selecting manager: %w", err)
	}
	return row.toModel(), nil
}

// ListEmployeesByManager returns the direct reports of a manager
func (s *PostgreSQLStore) ListEmployeesByManager(ctx context.Context, managerID string) ([]*models.User, error) {
	query, args, err := psql.Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"manager_id": managerID}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var rows []userRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("selecting employees: %w", err)
	}
	return usersFromRows(rows), nil
}

// UpdateUser persists profile and credential changes
func (s *PostgreSQLStore) UpdateUser(ctx context.Context, user *models.User) error {
	query, args, err := psql.Update("users").
		Set("email", models.NormalizeEmail(user.Email)).
		Set("password_hash", user.PasswordHash).
		Set("first_name", user.FirstName).
		Set("last_name", user.LastName).
		Set("role", string(user.Role)).
		Set("manager_id", nullable(user.ManagerID)).
		Set("must_change_password", user.MustChangePassword).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		if isPgUnique(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("updating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgreSQLStore) getUser(ctx context.Context, where squirrel.Eq) (*models.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var row userRow
	if err := pgxscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("selecting user: %w", err)
	}
	return row.toModel(), nil
}

// Request operations

// CreateRequest checks the date is free and inserts in one transaction.
// The partial unique index settles races between concurrent transactions.
func (s *PostgreSQLStore) CreateRequest(ctx context.Context, req *models.Request) error {
	return s.withTransaction(ctx, func(tx pgx.Tx) error {
		query, args, err := psql.Select("COUNT(*)").
			From("requests").
			Where(squirrel.Eq{"user_id": req.UserID, "date": req.Date.Time()}).
			Where(squirrel.NotEq{"status": string(models.RequestStatusRejected)}).
			ToSql()
		if err != nil {
			return fmt.Errorf("building count query: %w", err)
		}
		var count int64
		if err := tx.QueryRow(ctx, query, args...).Scan(&count); err != nil {
			return fmt.Errorf("checking existing requests: %w", err)
		}
		if count > 0 {
			return ErrDuplicateDate
		}

		query, args, err = psql.Insert("requests").
			Columns("id", "user_id", "date", "description", "status", "action_token_hash", "created_at", "updated_at").
			Values(req.ID, req.UserID, req.Date.Time(), req.Description, string(req.Status),
				nullable(req.ActionTokenHash), req.CreatedAt, req.UpdatedAt).
			Suffix("RETURNING seq").
			ToSql()
		if err != nil {
			return fmt.Errorf("building insert query: %w", err)
		}
		var seq int64
		if err := tx.QueryRow(ctx, query, args...).Scan(&seq); err != nil {
			if isPgUnique(err) {
				return ErrDuplicateDate
			}
			return fmt.Errorf("inserting request: %w", err)
		}
		req.Seq = seq
		return nil
	})
}

// GetRequest retrieves a request by ID
func (s *PostgreSQLStore) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	return s.getRequest(ctx, s.db, squirrel.Eq{"r.id": id})
}

// GetRequestByTokenHash retrieves the request holding the given token hash
func (s *PostgreSQLStore) GetRequestByTokenHash(ctx context.Context, tokenHash string) (*models.Request, error) {
	if tokenHash == "" {
		return nil, ErrRequestNotFound
	}
	return s.getRequest(ctx, s.db, squirrel.Eq{"r.action_token_hash": tokenHash})
}

// ListRequestsByUser returns the requests owned by a user
func (s *PostgreSQLStore) ListRequestsByUser(ctx context.Context, userID string) ([]*models.Request, error) {
	return s.listRequests(ctx, squirrel.Eq{"r.user_id": userID})
}

// ListRequestsByManager returns the requests of a manager's direct reports
func (s *PostgreSQLStore) ListRequestsByManager(ctx context.Context, managerID string) ([]*models.Request, error) {
	return s.listRequests(ctx, squirrel.Eq{"u.manager_id": managerID})
}

// ListAllRequests returns every request
func (s *PostgreSQLStore) ListAllRequests(ctx context.Context) ([]*models.Request, error) {
	return s.listRequests(ctx, nil)
}

// TransitionRequest decides a pending request with a conditional update
func (s *PostgreSQLStore) TransitionRequest(ctx context.Context, id string, to models.RequestStatus, at time.Time) (*models.Request, error) {
	if err := models.ValidateTransition(models.RequestStatusPending, to); err != nil {
		return nil, err
	}

	var req *models.Request
	err := s.withTransaction(ctx, func(tx pgx.Tx) error {
		query, args, err := psql.Update("requests").
			Set("status", string(to)).
			Set("action_token_hash", nil).
			Set("updated_at", at).
			Where(squirrel.Eq{"id": id, "status": string(models.RequestStatusPending)}).
			ToSql()
		if err != nil {
			return fmt.Errorf("building update query: %w", err)
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("updating request: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if _, err := s.getRequest(ctx, tx, squirrel.Eq{"r.id": id}); err != nil {
				return err
			}
			return ErrNotPending
		}
		req, err = s.getRequest(ctx, tx, squirrel.Eq{"r.id": id})
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// DeleteRequest removes a decided request
func (s *PostgreSQLStore) DeleteRequest(ctx context.Context, id string) error {
	query, args, err := psql.Delete("requests").
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.NotEq{"status": string(models.RequestStatusPending)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetRequest(ctx, id); err != nil {
			return err
		}
		return ErrStillPending
	}
	return nil
}

// Close releases the pool
func (s *PostgreSQLStore) Close() error {
	s.db.Close()
	return nil
}

// HealthCheck verifies the database is reachable
func (s *PostgreSQLStore) HealthCheck(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgreSQLStore) getRequest(ctx context.Context, q pgxscan.Querier, where squirrel.Eq) (*models.Request, error) {
	query, args, err := psql.Select(requestColumns(postgresDate)...).
		From("requests r").
		Join("users u ON u.id = r.user_id").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var row requestRow
	if err := pgxscan.Get(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("selecting request: %w", err)
	}
	return row.toModel()
}

func (s *PostgreSQLStore) listRequests(ctx context.Context, where squirrel.Sqlizer) ([]*models.Request, error) {
	qb := psql.Select(requestColumns(postgresDate)...).
		From("requests r").
		Join("users u ON u.id = r.user_id").
		OrderBy(requestOrder...)
	if where != nil {
		qb = qb.Where(where)
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var rows []requestRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("selecting requests: %w", err)
	}
	return requestsFromRows(rows)
}

func isPgUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
