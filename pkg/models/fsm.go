package models

import (
	"fmt"
	"strings"
)

// validTransitions defines all legal request status transitions.
// Approved and rejected are terminal: the only way out is deletion.
var validTransitions = map[RequestStatus]map[RequestStatus]bool{
	RequestStatusPending: {
		RequestStatusApproved: true,
		RequestStatusRejected: true,
	},
	RequestStatusApproved: {},
	RequestStatusRejected: {},
}

// ValidateTransition checks if a status transition is legal
func ValidateTransition(from, to RequestStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}

	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}

	return nil
}

// IsTerminalStatus returns true if the status is terminal
func IsTerminalStatus(status RequestStatus) bool {
	return status == RequestStatusApproved || status == RequestStatusRejected
}

// BlocksDate reports whether a request in this status occupies its date.
// Only rejected requests free the day for a new request.
func BlocksDate(status RequestStatus) bool {
	return status != RequestStatusRejected
}

// ParseStatus accepts a status name in any letter case
func ParseStatus(s string) (RequestStatus, error) {
	status := RequestStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := validTransitions[status]; !ok {
		return "", fmt.Errorf("unknown status: %q", s)
	}
	return status, nil
}

// ParseAction maps an email-link action ("approve" or "reject") to its target status
func ParseAction(action string) (RequestStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "approve":
		return RequestStatusApproved, true
	case "reject":
		return RequestStatusRejected, true
	default:
		return "", false
	}
}
