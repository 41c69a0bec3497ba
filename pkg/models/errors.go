package models

import "errors"

// Error kinds shared by the services; callers wrap them with detail via
// fmt.Errorf("%w: ...") and the HTTP layer maps them with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)
