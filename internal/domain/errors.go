package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition           = errors.New("invalid transition")
	ErrPreconditionFailed          = errors.New("transition precondition not met")
	ErrConflictRetry               = errors.New("booking changed concurrently, reload and retry")
	ErrConcurrentModification      = errors.New("booking version mismatch")
	ErrNotFound                    = errors.New("not found")
	ErrForbidden                   = errors.New("actor not permitted")
	ErrItemUnavailable             = errors.New("item is not available")
	ErrDuplicateSettlement         = errors.New("settlement already recorded for booking")
	ErrPaymentInitiationFailed     = errors.New("payment initiation failed")
	ErrPaymentNotRequired          = errors.New("booking does not take online payment")
	ErrSignatureVerificationFailed = errors.New("webhook signature verification failed")
	ErrMalformedEvent              = errors.New("malformed payment event")
	ErrInvalidInput                = errors.New("invalid input")
)

// TransitionError reports an action that has no row in the transition table
// for the booking's current status.
type TransitionError struct {
	From   BookingStatus
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s a %s booking", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
