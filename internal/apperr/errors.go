// Package apperr defines the error taxonomy shared across the export service.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// ErrConfig reports a secret or setting missing for the requested mode.
var ErrConfig = errors.New("configuration error")

// ErrPackaging reports an archive failure; nothing is published for the period.
var ErrPackaging = errors.New("packaging error")

// ErrLeaseHeld reports that another rebuild currently owns the period.
var ErrLeaseHeld = errors.New("export lease held")
