package domain

import (
	"fmt"
	"time"
)

type Action string

const (
	ActionRequest   Action = "request"
	ActionDelete    Action = "delete"
	ActionApprove   Action = "approve"
	ActionReject    Action = "reject"
	ActionStart     Action = "start"
	ActionTerminate Action = "terminate"
	ActionClose     Action = "close"
	// Settle and Lapse are driven by payment reconciliation only.
	ActionSettle Action = "settle"
	ActionLapse  Action = "lapse"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleOwner, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

type transitionKey struct {
	from   BookingStatus
	action Action
}

type transitionRule struct {
	to    BookingStatus
	roles []Role
}

// transitions is the complete booking lifecycle. Pairs missing here are invalid.
var transitions = map[transitionKey]transitionRule{
	{BookingStatusPending, ActionRequest}:    {BookingStatusBooked, []Role{RoleCustomer}},
	{BookingStatusBooked, ActionDelete}:      {BookingStatusCancelled, []Role{RoleCustomer}},
	{BookingStatusBooked, ActionApprove}:     {BookingStatusApproved, []Role{RoleOwner}},
	{BookingStatusBooked, ActionReject}:      {BookingStatusRejected, []Role{RoleOwner}},
	{BookingStatusApproved, ActionStart}:     {BookingStatusOngoing, []Role{RoleOwner}},
	{BookingStatusApproved, ActionTerminate}: {BookingStatusTerminated, []Role{RoleOwner, RoleAdmin}},
	{BookingStatusApproved, ActionSettle}:    {BookingStatusOngoing, []Role{RoleSystem}},
	{BookingStatusApproved, ActionLapse}:     {BookingStatusRejected, []Role{RoleSystem}},
	{BookingStatusOngoing, ActionClose}:      {BookingStatusCompleted, []Role{RoleOwner, RoleSystem}},
	{BookingStatusOngoing, ActionTerminate}:  {BookingStatusTerminated, []Role{RoleOwner, RoleAdmin}},
}

func (r transitionRule) permits(role Role) bool {
	for _, allowed := range r.roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// Transition is the pure lifecycle function. It returns a *TransitionError for
// pairs outside the table and ErrForbidden when the role may not perform the action.
func Transition(current BookingStatus, action Action, role Role) (BookingStatus, error) {
	rule, ok := transitions[transitionKey{current, action}]
	if !ok {
		return current, &TransitionError{From: current, Action: action}
	}
	if !rule.permits(role) {
		return current, fmt.Errorf("%w: %s cannot %s", ErrForbidden, role, action)
	}
	return rule.to, nil
}

// Resolve applies replay rules on top of Transition.
//
// When the caller observed a different status than the current one, the call
// is a no-op if the current status is where (observed, action) leads, and
// ErrConflictRetry otherwise. Without an observed status, re-applying an action
// whose destination already equals the current status is a no-op.
func Resolve(current BookingStatus, action Action, role Role, observed *BookingStatus) (next BookingStatus, noop bool, err error) {
	if observed != nil && *observed != current {
		dest, err := Transition(*observed, action, role)
		if err != nil {
			return current, false, err
		}
		if dest == current {
			return current, true, nil
		}
		return current, false, fmt.Errorf("%w: expected %s, found %s", ErrConflictRetry, *observed, current)
	}

	next, err = Transition(current, action, role)
	if err == nil {
		return next, false, nil
	}
	if _, ok := err.(*TransitionError); ok && observed == nil && leadsTo(action, role, current) {
		return current, true, nil
	}
	return current, false, err
}

func leadsTo(action Action, role Role, status BookingStatus) bool {
	for key, rule := range transitions {
		if key.action == action && rule.to == status && rule.permits(role) {
			return true
		}
	}
	return false
}

// GuardFacts carries the external facts transition guards depend on.
type GuardFacts struct {
	ItemAvailable bool
	Settled       bool
	CashConfirmed bool
	Now           time.Time
}

// CheckGuard evaluates the guard column for a transition that Transition
// already accepted.
func CheckGuard(b *Booking, action Action, role Role, facts GuardFacts) error {
	switch action {
	case ActionRequest:
		if !facts.ItemAvailable {
			return ErrItemUnavailable
		}
	case ActionDelete:
		if b.ApprovedAt != nil {
			return fmt.Errorf("%w: booking already approved", ErrPreconditionFailed)
		}
	case ActionStart:
		if !facts.Settled && !facts.CashConfirmed {
			return fmt.Errorf("%w: payment not settled and cash pickup not confirmed", ErrPreconditionFailed)
		}
		if facts.CashConfirmed && !facts.Settled && b.PaymentMethod.IsOnline() {
			return fmt.Errorf("%w: booking is paid online, wait for settlement", ErrPreconditionFailed)
		}
	case ActionSettle:
		if !facts.Settled {
			return fmt.Errorf("%w: settlement not recorded", ErrPreconditionFailed)
		}
	case ActionClose:
		// owner confirming the return satisfies the guard on its own
		if role == RoleSystem && facts.Now.Before(b.ReturnDate) {
			return fmt.Errorf("%w: return date not reached", ErrPreconditionFailed)
		}
	}
	return nil
}

// Authorize checks that the actor is the booking party their role claims.
func Authorize(b *Booking, role Role, actorID string) error {
	switch role {
	case RoleCustomer:
		if actorID == "" || actorID != b.CustomerID {
			return fmt.Errorf("%w: not the booking's customer", ErrForbidden)
		}
	case RoleOwner:
		if actorID == "" || actorID != b.OwnerID {
			return fmt.Errorf("%w: not the item's owner", ErrForbidden)
		}
	case RoleAdmin, RoleSystem:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrForbidden, role)
	}
	return nil
}
