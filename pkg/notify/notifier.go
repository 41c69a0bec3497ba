package notify

import (
	"context"
	"time"

	"github.com/psantana5/smartworking/pkg/models"
)

// Notifier delivers lifecycle events to people. Implementations must not
// block the caller on delivery and never report delivery failures.
type Notifier interface {
	RequestCreated(ctx context.Context, ev RequestCreatedEvent)
	StatusChanged(ctx context.Context, ev StatusChangedEvent)
	TemporaryPassword(ctx context.Context, ev TemporaryPasswordEvent)
}

// RequestCreatedEvent asks a manager to decide a new request
type RequestCreatedEvent struct {
	ManagerEmail string
	EmployeeName string
	Date         models.Date
	Description  string
	RequestID    string
	Token        string // plaintext action token, never logged
}

// StatusChangedEvent tells an employee their request was decided
type StatusChangedEvent struct {
	EmployeeEmail string
	EmployeeName  string
	Date          models.Date
	Status        models.RequestStatus
}

// TemporaryPasswordEvent carries a reset password to its owner
type TemporaryPasswordEvent struct {
	Email     string
	FirstName string
	Password  string // plaintext, never logged
}

// Kind identifies the template a message renders with
type Kind string

const (
	KindRequestCreated    Kind = "request_created"
	KindStatusChanged     Kind = "status_changed"
	KindTemporaryPassword Kind = "temporary_password"
)

// Message is the queued, serializable form of an event
type Message struct {
	Kind        Kind      `json:"kind"`
	To          string    `json:"to"`
	Name        string    `json:"name,omitempty"`
	Date        string    `json:"date,omitempty"`
	Description string    `json:"description,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Status      string    `json:"status,omitempty"`
	Secret      string    `json:"secret,omitempty"` // action token or temporary password
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Nop drops every event
type Nop struct{}

func (Nop) RequestCreated(context.Context, RequestCreatedEvent)       {}
func (Nop) StatusChanged(context.Context, StatusChangedEvent)         {}
func (Nop) TemporaryPassword(context.Context, TemporaryPasswordEvent) {}
