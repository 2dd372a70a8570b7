package service

import (
	"errors"

	"gtipricing/backend/internal/domain"
	"gtipricing/backend/internal/store"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrPartialSourceFailure = errors.New("rule source unavailable")
)

// ValidationError carries a caller-facing message and matches ErrValidation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}

// KindOf classifies err for the boundary layer.
func KindOf(err error) domain.ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, store.ErrNotFound):
		return domain.ErrorNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, store.ErrInvalidInput):
		return domain.ErrorValidation
	case errors.Is(err, ErrPartialSourceFailure):
		return domain.ErrorPartialSourceFailure
	default:
		return domain.ErrorInternal
	}
}
