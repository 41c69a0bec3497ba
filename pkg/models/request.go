package models

import (
	"time"
)

// RequestStatus represents the status of a smart working request
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// MaxDescriptionLength bounds the free-text note attached to a request
const MaxDescriptionLength = 500

// Request is a smart working day requested by an employee
type Request struct {
	ID              string        `json:"id"`
	Seq             int64         `json:"-"` // insertion order, used as ordering tie-breaker
	UserID          string        `json:"user_id"`
	Date            Date          `json:"date"`
	Description     string        `json:"description,omitempty"`
	Status          RequestStatus `json:"status"`
	ActionTokenHash string        `json:"-"` // set only while pending
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`

	// Owner is loaded alongside the request by every store read
	Owner *User `json:"-"`
}

// HasActionToken reports whether the request still carries a usable action token
func (r *Request) HasActionToken() bool {
	return r.ActionTokenHash != ""
}

// CreateRequestInput represents a request to create a new smart working day
type CreateRequestInput struct {
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Description string `json:"description,omitempty" validate:"max=500"`
}

// UpdateStatusInput represents a manager decision on a request
type UpdateStatusInput struct {
	Status string `json:"status" validate:"required"`
}

// RequestSummary is the presentation shape of a request
type RequestSummary struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	EmployeeName  string        `json:"employee_name"`
	EmployeeEmail string        `json:"employee_email"`
	Date          Date          `json:"date"`
	Description   string        `json:"description,omitempty"`
	Status        RequestStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Summarize maps a request and its owner onto the presentation shape
func (r *Request) Summarize() RequestSummary {
	s := RequestSummary{
		ID:          r.ID,
		UserID:      r.UserID,
		Date:        r.Date,
		Description: r.Description,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Owner != nil {
		s.EmployeeName = r.Owner.FullName()
		s.EmployeeEmail = r.Owner.Email
	}
	return s
}

// SummarizeAll maps a slice of requests, preserving order
func SummarizeAll(requests []*Request) []RequestSummary {
	out := make([]RequestSummary, 0, len(requests))
	for _, r := range requests {
		out = append(out, r.Summarize())
	}
	return out
}
