package upload

import (
	"errors"
	"strings"
)

// Error taxonomy for the upload core. Each sentinel maps to exactly one
// HTTP status at the binding layer (see internal/httpapi).
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrFailedPrecondition = errors.New("failed precondition")
	ErrIntegrity          = errors.New("integrity error")
	ErrInvalidContent     = errors.New("invalid content")
	ErrDataLoss           = errors.New("data loss")
	ErrInternal           = errors.New("internal error")
)

// ValidationError wraps ErrInvalidArgument with the full list of
// human-readable metadata problems found during Initiate, surfaced to
// callers via the HTTP envelope's "errors" detail array.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "invalid argument: " + strings.Join(e.Details, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }
