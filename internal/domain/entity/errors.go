package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for malformed claim input
	ErrValidation = errors.New("validation failed")

	// ErrIllegalTransition is returned when a transition is not allowed from the current
	// status or by the acting user
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrStaleState is returned when a conditioned write lost the race
	ErrStaleState = errors.New("stale claim state")

	// ErrMissingComment is returned when a reject decision carries no comment
	ErrMissingComment = errors.New("comment is required")

	// ErrRepository wraps failures of the storage port
	ErrRepository = errors.New("repository failure")

	// ErrNotFound is returned when a claim does not exist
	ErrNotFound = errors.New("claim not found")

	// ErrInvalidRule is returned when a rule definition has an invalid shape
	ErrInvalidRule = errors.New("invalid rule")
)

// ValidationError describes a malformed input field
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Transition rejection reasons
const (
	ReasonTerminalState  = "terminal_state"
	ReasonNotPermitted   = "not_permitted"
	ReasonSelfReview     = "self_review"
	ReasonUnauthorized   = "unauthorized"
	ReasonNotSubmitter   = "not_submitter"
	ReasonDuplicateActor = "duplicate_approval"
)

// IllegalTransitionError describes a refused transition
type IllegalTransitionError struct {
	ClaimID string
	From    Status
	Action  string
	Actor   string
	Reason  string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s: %s on claim %s from %s by %q (%s)",
		ErrIllegalTransition, e.Action, e.ClaimID, e.From, e.Actor, e.Reason)
}

func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// StaleStateError is returned when the claim changed since it was read
type StaleStateError struct {
	ClaimID         string
	ExpectedStatus  Status
	ExpectedVersion int64
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("%s: claim %s is no longer %s at version %d",
		ErrStaleState, e.ClaimID, e.ExpectedStatus, e.ExpectedVersion)
}

func (e *StaleStateError) Is(target error) bool { return target == ErrStaleState }

// MissingCommentError is returned when a decision requires a comment
type MissingCommentError struct {
	ClaimID  string
	Decision string
}

func (e *MissingCommentError) Error() string {
	return fmt.Sprintf("%s: %s decision on claim %s", ErrMissingComment, e.Decision, e.ClaimID)
}

func (e *MissingCommentError) Is(target error) bool { return target == ErrMissingComment }

// RepositoryError wraps a failure of the storage port
type RepositoryError struct {
	Op  string
	Err error
}

// NewRepositoryError wraps err unless it already carries a domain meaning
func NewRepositoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStaleState) || errors.Is(err, ErrRepository) {
		return err
	}
	return &RepositoryError{Op: op, Err: err}
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrRepository, e.Op, e.Err)
}

func (e *RepositoryError) Is(target error) bool { return target == ErrRepository }

func (e *RepositoryError) Unwrap() error { return e.Err }
