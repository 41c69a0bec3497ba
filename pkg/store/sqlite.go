package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/mattn/go-sqlite3"

	"github.com/psantana5/smartworking/pkg/models"
)

// sqliteDate is a no-op: dates are stored as YYYY-MM-DD text
const sqliteDate = "r.date"

// SQLiteStore is a SQLite-based implementation of the data store
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and migrates it
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	// - _journal_mode=WAL: readers do not block the writer
	// - _busy_timeout=10000: wait up to 10 seconds when the database is locked
	// - _txlock=immediate: take the write lock at BEGIN so check-and-insert is atomic
	// - _foreign_keys=on: enforce users/requests references
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_cache_size=-8000&_txlock=immediate&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer for SQLite to avoid SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := ApplySQLiteMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// User operations

// CreateUser inserts a user; a taken email yields ErrEmailTaken
func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = models.NormalizeEmail(user.Email)
	query, args, err := squirrel.Insert("users").
		Columns("id", "email", "password_hash", "first_name", "last_name", "role", "manager_id", "must_change_password", "created_at").
		Values(user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, string(user.Role),
			nullable(user.ManagerID), user.MustChangePassword, user.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isSQLiteUnique(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, squirrel.Eq{"id": id})
}

// GetUserByEmail retrieves a user by normalized email
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, squirrel.Eq{"email": models.NormalizeEmail(email)})
}

// GetFirstManager returns the earliest registered manager
func (s *SQLiteStore) GetFirstManager(ctx context.Context) (*models.User, error) {
	query, args, err := squirrel.Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"role": string(models.RoleManager)}).
		OrderBy("created_at ASC", "rowid ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var row userRow
	if err := sqlscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("selecting manager: %w", err)
	}
	return row.toModel(), nil
}

// ListEmployeesByManager returns the direct reports of a manager
func (s *SQLiteStore) ListEmployeesByManager(ctx context.Context, managerID string) ([]*models.User, error) {
	query, args, err := squirrel.Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"manager_id": managerID}).
		OrderBy("created_at ASC", "rowid ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var rows []userRow
	if err := sqlscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("selecting employees: %w", err)
	}
	return usersFromRows(rows), nil
}

// UpdateUser persists profile and credential changes
func (s *SQLiteStore) UpdateUser(ctx context.Context, user *models.User) error {
	query, args, err := squirrel.Update("users").
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

	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isSQLiteUnique(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("updating user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *SQLiteStore) getUser(ctx context.Context, where squirrel.Eq) (*models.User, error) {
	query, args, err := squirrel.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var row userRow
	if err := sqlscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("selecting user: %w", err)
	}
	return row.toModel(), nil
}

// Request operations

// CreateRequest checks the date is free and inserts within one immediate transaction
func (s *SQLiteStore) CreateRequest(ctx context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := squirrel.Select("COUNT(*)").
		From("requests").
		Where(squirrel.Eq{"user_id": req.UserID, "date": req.Date.String()}).
		Where(squirrel.NotEq{"status": string(models.RequestStatusRejected)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building count query: %w", err)
	}
	var count int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return fmt.Errorf("checking existing requests: %w", err)
	}
	if count > 0 {
		return ErrDuplicateDate
	}

	query, args, err = squirrel.Insert("requests").
		Columns("id", "user_id", "date", "description", "status", "action_token_hash", "created_at", "updated_at").
		Values(req.ID, req.UserID, req.Date.String(), req.Description, string(req.Status),
			nullable(req.ActionTokenHash), req.CreatedAt.UTC(), req.UpdatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if isSQLiteUnique(err) {
			return ErrDuplicateDate
		}
		return fmt.Errorf("inserting request: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading request sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	req.Seq = seq
	return nil
}

// GetRequest retrieves a request by ID
func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	return s.getRequest(ctx, s.db, squirrel.Eq{"r.id": id})
}

// GetRequestByTokenHash retrieves the request holding the given token hash
func (s *SQLiteStore) GetRequestByTokenHash(ctx context.Context, tokenHash string) (*models.Request, error) {
	if tokenHash == "" {
		return nil, ErrRequestNotFound
	}
	return s.getRequest(ctx, s.db, squirrel.Eq{"r.action_token_hash": tokenHash})
}

// ListRequestsByUser returns the requests owned by a user
func (s *SQLiteStore) ListRequestsByUser(ctx context.Context, userID string) ([]*models.Request, error) {
	return s.listRequests(ctx, squirrel.Eq{"r.user_id": userID})
}

// ListRequestsByManager returns the requests of a manager's direct reports
func (s *SQLiteStore) ListRequestsByManager(ctx context.Context, managerID string) ([]*models.Request, error) {
	return s.listRequests(ctx, squirrel.Eq{"u.manager_id": managerID})
}

// ListAllRequests returns every request
func (s *SQLiteStore) ListAllRequests(ctx context.Context) ([]*models.Request, error) {
	return s.listRequests(ctx, nil)
}

// TransitionRequest decides a pending request with a conditional update
func (s *SQLiteStore) TransitionRequest(ctx context.Context, id string, to models.RequestStatus, at time.Time) (*models.Request, error) {
	if err := models.ValidateTransition(models.RequestStatusPending, to); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := squirrel.Update("requests").
		Set("status", string(to)).
		Set("action_token_hash", nil).
		Set("updated_at", at.UTC()).
		Where(squirrel.Eq{"id": id, "status": string(models.RequestStatusPending)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building update query: %w", err)
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating request: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		if _, err := s.getRequest(ctx, tx, squirrel.Eq{"r.id": id}); err != nil {
			return nil, err
		}
		return nil, ErrNotPending
	}

	req, err := s.getRequest(ctx, tx, squirrel.Eq{"r.id": id})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return req, nil
}

// DeleteRequest removes a decided request
func (s *SQLiteStore) DeleteRequest(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query, args, err := squirrel.Delete("requests").
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.NotEq{"status": string(models.RequestStatusPending)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting request: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		if _, err := s.GetRequest(ctx, id); err != nil {
			return err
		}
		return ErrStillPending
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database is reachable
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying handle for schema tooling
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) getRequest(ctx context.Context, q sqlscan.Querier, where squirrel.Eq) (*models.Request, error) {
	query, args, err := selectRequests(sqliteDate).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var row requestRow
	if err := sqlscan.Get(ctx, q, &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("selecting request: %w", err)
	}
	return row.toModel()
}

func (s *SQLiteStore) listRequests(ctx context.Context, where squirrel.Sqlizer) ([]*models.Request, error) {
	qb := selectRequests(sqliteDate).OrderBy(requestOrder...)
	if where != nil {
		qb = qb.Where(where)
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var rows []requestRow
	if err := sqlscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("selecting requests: %w", err)
	}
	return requestsFromRows(rows)
}

func isSQLiteUnique(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
