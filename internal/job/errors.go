package job

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a status change is not permitted
	// by the transition table or its guards. No write is performed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotEligible is returned when a router fails the claim eligibility
	// rules (already holds an unrouted claim, or the job is not claimable).
	ErrNotEligible = errors.New("router not eligible to claim")

	// ErrAlreadyClaimed is returned when the claim conditional update hits
	// zero rows because another router holds the job.
	ErrAlreadyClaimed = errors.New("job already claimed")

	// ErrAlreadyAssigned is returned when a dispatch acceptance loses the
	// first-accept race, including the winning contractor retrying.
	ErrAlreadyAssigned = errors.New("job already assigned")

	// ErrJobArchived is returned when an operation targets a soft-deleted job.
	ErrJobArchived = errors.New("job is archived")

	// ErrDisputeHold is returned when a payout-affecting change is attempted
	// while the job sits in the DISPUTED hold.
	ErrDisputeHold = errors.New("job is under dispute hold")
)

// ValidationError rejects malformed input before any write.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
