package errors

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrUserNotFound        = errors.New("user not found")
	ErrDonationNotFound    = errors.New("donation not found")
	ErrAchievementNotFound = errors.New("achievement not found")
	ErrConflict            = errors.New("conflict")
	ErrUserExists          = fmt.Errorf("user already exists: %w", ErrConflict)
	ErrUnauthorized        = errors.New("unauthorized")
	ErrWrongPassword       = fmt.Errorf("invalid email or password: %w", ErrUnauthorized)
	ErrUserDeactivated     = fmt.Errorf("account is deactivated: %w", ErrUnauthorized)
	ErrSessionNotFound     = errors.New("session was not found")
	ErrLockTimeout         = errors.New("lock wait timed out")
	ErrInternal            = errors.New("internal error")
)

// Validation wraps ErrValidation with a caller-facing description.
func Validation(msg string) error {
	return &validationError{msg: msg}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Unwrap() error { return ErrValidation }
