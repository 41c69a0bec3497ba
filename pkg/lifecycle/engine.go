package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/smartworking/pkg/logging"
	"github.com/psantana5/smartworking/pkg/models"
	"github.com/psantana5/smartworking/pkg/notify"
	"github.com/psantana5/smartworking/pkg/store"
	"github.com/psantana5/smartworking/pkg/tracing"
)

// DefaultActionTokenTTL bounds how long an email link stays usable
const DefaultActionTokenTTL = 7 * 24 * time.Hour

// Store is the persistence the engine drives
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListEmployeesByManager(ctx context.Context, managerID string) ([]*models.User, error)

	CreateRequest(ctx context.Context, req *models.Request) error
	GetRequest(ctx context.Context, id string) (*models.Request, error)
	GetRequestByTokenHash(ctx context.Context, tokenHash string) (*models.Request, error)
	ListRequestsByUser(ctx context.Context, userID string) ([]*models.Request, error)
	ListRequestsByManager(ctx context.Context, managerID string) ([]*models.Request, error)
	ListAllRequests(ctx context.Context) ([]*models.Request, error)
	TransitionRequest(ctx context.Context, id string, to models.RequestStatus, at time.Time) (*models.Request, error)
	DeleteRequest(ctx context.Context, id string) error
}

// Recorder receives lifecycle counters; *metrics.Collector implements it
type Recorder interface {
	RequestCreated()
	RequestTransitioned(status models.RequestStatus, via string)
	TokenActionFailed()
}

type nopRecorder struct{}

func (nopRecorder) RequestCreated()                                 {}
func (nopRecorder) RequestTransitioned(models.RequestStatus, string) {}
func (nopRecorder) TokenActionFailed()                               {}

// Config tunes the engine
type Config struct {
	// ActionTokenTTL is measured from request creation; 0 disables expiry
	ActionTokenTTL time.Duration
	// Tracer records a span per operation; nil disables tracing
	Tracer *tracing.Provider
}

// Engine enforces the request state machine and the authorization rules
// around it. It holds no locks; atomicity is delegated to the store.
type Engine struct {
	store    Store
	notifier notify.Notifier
	cfg      Config
	logger   *logging.Logger
	recorder Recorder
	tracer   *tracing.Provider
	now      func() time.Time
}

// NewEngine wires the engine; notifier and recorder may be nil
func NewEngine(s Store, notifier notify.Notifier, cfg Config, logger *logging.Logger, recorder Recorder) *Engine {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracing.Noop()
	}
	return &Engine{
		store:    s,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.WithComponent("lifecycle"),
		recorder: recorder,
		tracer:   tracer,
		now:      time.Now,
	}
}

// CreateRequest files a pending smart working day for the caller and asks
// their manager to decide it.
func (e *Engine) CreateRequest(ctx context.Context, callerID string, date models.Date, description string) (_ *models.RequestSummary, err error) {
	ctx, span := e.tracer.StartSpan(ctx, "lifecycle.CreateRequest",
		attribute.String("user.id", callerID),
		attribute.String("request.date", date.String()),
	)
	defer func() { endSpan(ctx, span, err) }()

	caller, err := e.store.GetUser(ctx, callerID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user not found", ErrValidation)
		}
		return nil, err
	}
	if caller.ManagerID == "" {
		return nil, fmt.Errorf("%w: no manager assigned", ErrValidation)
	}
	manager, err := e.store.GetUser(ctx, caller.ManagerID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: assigned manager not found", ErrValidation)
		}
		return nil, err
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrValidation)
	}
	if utf8.RuneCountInString(description) > models.MaxDescriptionLength {
		return nil, fmt.Errorf("%w: description exceeds %d characters", ErrValidation, models.MaxDescriptionLength)
	}

	token, tokenHash, err := newActionToken()
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	req := &models.Request{
		ID:              uuid.NewString(),
		UserID:          caller.ID,
		Date:            date,
		Description:     description,
		Status:          models.RequestStatusPending,
		ActionTokenHash: tokenHash,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.CreateRequest(ctx, req); err != nil {
		if errors.Is(err, store.ErrDuplicateDate) {
			return nil, fmt.Errorf("%w: a request for %s already exists", ErrValidation, date)
		}
		return nil, err
	}
	req.Owner = caller

	e.notifier.RequestCreated(ctx, notify.RequestCreatedEvent{
		ManagerEmail: manager.Email,
		EmployeeName: caller.FullName(),
		Date:         date,
		Description:  description,
		RequestID:    req.ID,
		Token:        token,
	})
	e.recorder.RequestCreated()
	e.logger.Info("Request created", logging.Fields{
		"request_id": req.ID,
		"user_id":    caller.ID,
		"date":       date.String(),
	})

	span.SetAttributes(attribute.String("request.id", req.ID))

	summary := req.Summarize()
	return &summary, nil
}

// UpdateStatus lets the owner's manager approve or reject a pending request
func (e *Engine) UpdateStatus(ctx context.Context, requestID string, newStatus models.RequestStatus, callerID string) (_ *models.RequestSummary, err error) {
	ctx, span := e.tracer.StartSpan(ctx, "lifecycle.UpdateStatus",
		attribute.String("request.id", requestID),
		attribute.String("request.status", string(newStatus)),
	)
	defer func() { endSpan(ctx, span, err) }()

	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			return nil, fmt.Errorf("%w: request not found", ErrNotFound)
		}
		return nil, err
	}
	if !e.managesOwner(req, callerID) {
		return nil, ErrForbidden
	}
	if !models.IsTerminalStatus(newStatus) {
		return nil, fmt.Errorf("%w: status must be approved or rejected", ErrValidation)
	}

	decided, err := e.transition(ctx, req.ID, newStatus, "api")
	if err != nil {
		return nil, err
	}
	summary := decided.Summarize()
	return &summary, nil
}

// DeleteRequest removes a decided request owned by one of the caller's reports
func (e *Engine) DeleteRequest(ctx context.Context, requestID, callerID string) (err error) {
	ctx, span := e.tracer.StartSpan(ctx, "lifecycle.DeleteRequest", attribute.String("request.id", requestID))
	defer func() { endSpan(ctx, span, err) }()

	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			return fmt.Errorf("%w: request not found", ErrNotFound)
		}
		return err
	}
	if !e.managesOwner(req, callerID) {
		return ErrForbidden
	}
	if req.Status == models.RequestStatusPending {
		return fmt.Errorf("%w: pending requests cannot be deleted", ErrValidation)
	}

	if err := e.store.DeleteRequest(ctx, req.ID); err != nil {
		switch {
		case errors.Is(err, store.ErrRequestNotFound):
			return fmt.Errorf("%w: request not found", ErrNotFound)
		case errors.Is(err, store.ErrStillPending):
			return fmt.Errorf("%w: pending requests cannot be deleted", ErrValidation)
		}
		return err
	}
	e.logger.Info("Request deleted", logging.Fields{"request_id": req.ID, "by": callerID})
	return nil
}

// HandleTokenAction applies an email-link decision. Every failure, whatever
// the cause, is reported as false with no side effect.
func (e *Engine) HandleTokenAction(ctx context.Context, token, action string) bool {
	ctx, span := e.tracer.StartSpan(ctx, "lifecycle.HandleTokenAction", attribute.String("action", action))
	defer span.End()

	ok := e.handleTokenAction(ctx, token, action)
	span.SetAttributes(attribute.Bool("action.accepted", ok))
	if !ok {
		e.recorder.TokenActionFailed()
	}
	return ok
}

func (e *Engine) handleTokenAction(ctx context.Context, token, action string) bool {
	if token == "" {
		return false
	}
	to, ok := models.ParseAction(action)
	if !ok {
		return false
	}

	req, err := e.store.GetRequestByTokenHash(ctx, HashActionToken(token))
	if err != nil {
		if !errors.Is(err, store.ErrRequestNotFound) {
			e.logger.Error("Token lookup failed", logging.Fields{"error": err.Error()})
		}
		return false
	}
	if req.Status != models.RequestStatusPending {
		return false
	}
	if e.cfg.ActionTokenTTL > 0 && e.now().Sub(req.CreatedAt) > e.cfg.ActionTokenTTL {
		e.logger.Info("Expired action token refused", logging.Fields{"request_id": req.ID})
		return false
	}

	if _, err := e.transition(ctx, req.ID, to, "token"); err != nil {
		if !errors.Is(err, ErrValidation) {
			e.logger.Error("Token action failed", logging.Fields{"request_id": req.ID, "error": err.Error()})
		}
		return false
	}
	return true
}

// transition performs the conditional pending->terminal update and notifies the owner
func (e *Engine) transition(ctx context.Context, requestID string, to models.RequestStatus, via string) (*models.Request, error) {
	decided, err := e.store.TransitionRequest(ctx, requestID, to, e.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRequestNotFound):
			return nil, fmt.Errorf("%w: request not found", ErrNotFound)
		case errors.Is(err, store.ErrNotPending):
			return nil, fmt.Errorf("%w: request has already been decided", ErrValidation)
		}
		return nil, err
	}

	if decided.Owner != nil {
		e.notifier.StatusChanged(ctx, notify.StatusChangedEvent{
			EmployeeEmail: decided.Owner.Email,
			EmployeeName:  decided.Owner.FullName(),
			Date:          decided.Date,
			Status:        decided.Status,
		})
	}
	e.recorder.RequestTransitioned(decided.Status, via)
	e.logger.Info("Request decided", logging.Fields{
		"request_id": decided.ID,
		"status":     string(decided.Status),
		"via":        via,
	})
	return decided, nil
}

func endSpan(ctx context.Context, span trace.Span, err error) {
	if err != nil {
		tracing.SetError(ctx, err)
	}
	span.End()
}

func (e *Engine) managesOwner(req *models.Request, callerID string) bool {
	return callerID != "" && req.Owner != nil && req.Owner.ManagerID == callerID
}

// ListMine returns the caller's own requests, most recent date first
func (e *Engine) ListMine(ctx context.Context, callerID string) ([]models.RequestSummary, error) {
	requests, err := e.store.ListRequestsByUser(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return models.SummarizeAll(requests), nil
}

// ListAll returns every request, most recent date first
func (e *Engine) ListAll(ctx context.Context) ([]models.RequestSummary, error) {
	requests, err := e.store.ListAllRequests(ctx)
	if err != nil {
		return nil, err
	}
	return models.SummarizeAll(requests), nil
}

// ListByManager returns the requests of the manager's direct reports
func (e *Engine) ListByManager(ctx context.Context, managerID string) ([]models.RequestSummary, error) {
	requests, err := e.store.ListRequestsByManager(ctx, managerID)
	if err != nil {
		return nil, err
	}
	return models.SummarizeAll(requests), nil
}

// ListEmployees returns the manager's direct reports
func (e *Engine) ListEmployees(ctx context.Context, managerID string) ([]models.EmployeeSummary, error) {
	users, err := e.store.ListEmployeesByManager(ctx, managerID)
	if err != nil {
		return nil, err
	}
	out := make([]models.EmployeeSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summarize())
	}
	return out, nil
}
