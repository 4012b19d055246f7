package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error wraps exactly one of these so callers can
// branch with errors.Is on the kind or on the specific error.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("validation failed")
)

// Domain errors.
var (
	ErrExamNotFound     = fmt.Errorf("exam %w", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	ErrAttemptNotFound  = fmt.Errorf("attempt %w", ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)

	ErrActiveAttemptExists = fmt.Errorf("an attempt is already in progress: %w", ErrConflict)
	ErrEmailTaken          = fmt.Errorf("email already registered: %w", ErrConflict)

	ErrExamNotAvailable     = fmt.Errorf("exam is not active: %w", ErrInvalidState)
	ErrDeadlinePassed       = fmt.Errorf("exam deadline has passed: %w", ErrInvalidState)
	ErrAttemptNotInProgress = fmt.Errorf("attempt is not in progress: %w", ErrInvalidState)
	ErrAttemptInProgress    = fmt.Errorf("attempt is still in progress: %w", ErrInvalidState)
	ErrTimeLimitExceeded    = fmt.Errorf("attempt time limit exceeded: %w", ErrInvalidState)
	ErrAttemptLimitReached  = fmt.Errorf("no attempts left for this exam: %w", ErrInvalidState)
	ErrAttemptNotGraded     = fmt.Errorf("attempt has not been graded: %w", ErrInvalidState)

	ErrNotExamOwner    = fmt.Errorf("not the owner of this exam: %w", ErrForbidden)
	ErrNotAttemptOwner = fmt.Errorf("not the owner of this attempt: %w", ErrForbidden)
	ErrNotEnrolled     = fmt.Errorf("not enrolled for this exam: %w", ErrForbidden)

	ErrQuestionNotInExam = fmt.Errorf("question does not belong to the attempt's exam: %w", ErrValidation)
	ErrInvalidAnswer     = fmt.Errorf("answer does not fit the question type: %w", ErrValidation)
	ErrInvalidQuestion   = fmt.Errorf("question definition is invalid: %w", ErrValidation)
	ErrInvalidEventType  = fmt.Errorf("event type is invalid: %w", ErrValidation)

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionInvalidated = errors.New("session is no longer active")
)

// detail attaches a human-readable reason to a domain error without losing
// its identity for errors.Is.
func detail(err error, reason error) error {
	return fmt.Errorf("%w: %v", err, reason)
}
