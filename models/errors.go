package models

import "errors"

// Sentinel errors shared by services and handlers. Wrap with %w and match
// with errors.Is so handlers can map them to HTTP statuses.
var (
	ErrInvalidTransition = errors.New("invalid star transition")
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("record not found")
	ErrForbidden         = errors.New("capability denied")
)
