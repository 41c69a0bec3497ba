package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/smartworking/pkg/logging"
	"github.com/psantana5/smartworking/pkg/models"
	"github.com/psantana5/smartworking/pkg/notify"
	"github.com/psantana5/smartworking/pkg/store"
)

// UserStore is the slice of the store the account service needs
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetFirstManager(ctx context.Context) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
}

// LoginResponse is returned by Login and Register
type LoginResponse struct {
	Token              string      `json:"token"`
	ExpiresAt          time.Time   `json:"expires_at"`
	UserID             string      `json:"user_id"`
	Email              string      `json:"email"`
	FirstName          string      `json:"first_name"`
	LastName           string      `json:"last_name"`
	Role               models.Role `json:"role"`
	MustChangePassword bool        `json:"must_change_password"`
}

// RegisterInput is a self-service employee sign up
type RegisterInput struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
}

// Service handles logins and account maintenance
type Service struct {
	users    UserStore
	tokens   *JWTManager
	notifier notify.Notifier
	logger   *logging.Logger
	now      func() time.Time
}

// NewService creates the account service. tokens may be nil when the
// service is only used for account maintenance, never to log anyone in.
func NewService(users UserStore, tokens *JWTManager, notifier notify.Notifier, logger *logging.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		users:    users,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger.WithComponent("auth"),
		now:      time.Now,
	}
}

var errBadCredentials = fmt.Errorf("%w: invalid email or password", models.ErrUnauthorized)

// Login verifies credentials and issues a bearer token. Unknown emails and
// wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			burnPasswordCheck(password)
			return nil, errBadCredentials
		}
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, errBadCredentials
	}
	return s.respond(user)
}

// Register creates an employee reporting to the first manager and logs them in
func (s *Service) Register(ctx context.Context, in RegisterInput) (*LoginResponse, error) {
	email := models.NormalizeEmail(in.Email)
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if email == "" || first == "" || last == "" {
		return nil, fmt.Errorf("%w: email, first name and last name are required", models.ErrValidation)
	}
	if len(in.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", models.ErrValidation, MinPasswordLength)
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: an account with this email already exists", models.ErrValidation)
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return nil, err
	}

	manager, err := s.users.GetFirstManager(ctx)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: no manager found, contact the administrator", models.ErrValidation)
		}
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    first,
		LastName:     last,
		Role:         models.RoleEmployee,
		ManagerID:    manager.ID,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return nil, fmt.Errorf("%w: an account with this email already exists", models.ErrValidation)
		}
		return nil, err
	}

	s.logger.Info("Employee registered", logging.Fields{"user_id": user.ID, "manager_id": manager.ID})
	return s.respond(user)
}

// ForgotPassword resets the password of a known email to a temporary one
// and mails it. Unknown emails are ignored so callers cannot enumerate accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			s.logger.Error("Password reset lookup failed", logging.Fields{"error": err.Error()})
		}
		return
	}

	temp, err := GenerateTemporaryPassword()
	if err != nil {
		s.logger.Error("Password reset failed", logging.Fields{"user_id": user.ID, "error": err.Error()})
		return
	}
	hash, err := HashPassword(temp)
	if err != nil {
		s.logger.Error("Password reset failed", logging.Fields{"user_id": user.ID, "error": err.Error()})
		return
	}
	user.PasswordHash = hash
	user.MustChangePassword = true
	if err := s.users.UpdateUser(ctx, user); err != nil {
		s.logger.Error("Password reset failed", logging.Fields{"user_id": user.ID, "error": err.Error()})
		return
	}

	s.notifier.TemporaryPassword(ctx, notify.TemporaryPasswordEvent{
		Email:     user.Email,
		FirstName: user.FirstName,
		Password:  temp,
	})
	s.logger.Info("Temporary password issued", logging.Fields{"user_id": user.ID})
}

// ChangePassword replaces the caller's password after checking the current one
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return fmt.Errorf("%w: user not found", models.ErrNotFound)
		}
		return err
	}
	if !CheckPassword(user.PasswordHash, current) {
		return fmt.Errorf("%w: current password is incorrect", models.ErrValidation)
	}
	if len(next) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", models.ErrValidation, MinPasswordLength)
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.MustChangePassword = false
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return err
	}
	s.logger.Info("Password changed", logging.Fields{"user_id": user.ID})
	return nil
}

// SeedManager creates a manager account unless the email already belongs to
// one. It reports whether a new account was created.
func (s *Service) SeedManager(ctx context.Context, email, firstName, lastName, password string) (*models.User, bool, error) {
	email = models.NormalizeEmail(email)
	existing, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !existing.IsManager() {
			return nil, false, fmt.Errorf("%w: %s already belongs to a non-manager account", models.ErrValidation, email)
		}
		return existing, false, nil
	case !errors.Is(err, store.ErrUserNotFound):
		return nil, false, err
	}

	if len(password) < MinPasswordLength {
		return nil, false, fmt.Errorf("%w: password must be at least %d characters", models.ErrValidation, MinPasswordLength)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, false, err
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Role:         models.RoleManager,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, false, err
	}
	s.logger.Info("Manager seeded", logging.Fields{"user_id": user.ID})
	return user, true, nil
}

// Authenticate resolves a bearer token to its claims
func (s *Service) Authenticate(token string) (*Claims, error) {
	return s.tokens.Parse(token)
}

func (s *Service) respond(user *models.User) (*LoginResponse, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		Token:              token,
		ExpiresAt:          expiresAt,
		UserID:             user.ID,
		Email:              user.Email,
		FirstName:          user.FirstName,
		LastName:           user.LastName,
		Role:               user.Role,
		MustChangePassword: user.MustChangePassword,
	}, nil
}
