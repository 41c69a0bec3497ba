package lifecycle

import "github.com/psantana5/smartworking/pkg/models"

// Error kinds returned by the engine. Match with errors.Is.
var (
	ErrValidation = models.ErrValidation
	ErrNotFound   = models.ErrNotFound
	ErrForbidden  = models.ErrForbidden
)
