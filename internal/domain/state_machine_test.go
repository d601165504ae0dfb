package domain

import (
	"errors"
	"testing"
	"time"

	"gearlend-backend/internal/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allActions = []Action{
	ActionRequest, ActionDelete, ActionApprove, ActionReject, ActionStart,
	ActionTerminate, ActionClose, ActionSettle, ActionLapse,
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from   BookingStatus
		action Action
		role   Role
		to     BookingStatus
	}{
		{BookingStatusPending, ActionRequest, RoleCustomer, BookingStatusBooked},
		{BookingStatusBooked, ActionDelete, RoleCustomer, BookingStatusCancelled},
		{BookingStatusBooked, ActionApprove, RoleOwner, BookingStatusApproved},
		{BookingStatusBooked, ActionReject, RoleOwner, BookingStatusRejected},
		{BookingStatusApproved, ActionStart, RoleOwner, BookingStatusOngoing},
		{BookingStatusApproved, ActionTerminate, RoleOwner, BookingStatusTerminated},
		{BookingStatusApproved, ActionTerminate, RoleAdmin, BookingStatusTerminated},
		{BookingStatusApproved, ActionSettle, RoleSystem, BookingStatusOngoing},
		{BookingStatusApproved, ActionLapse, RoleSystem, BookingStatusRejected},
		{BookingStatusOngoing, ActionClose, RoleOwner, BookingStatusCompleted},
		{BookingStatusOngoing, ActionClose, RoleSystem, BookingStatusCompleted},
		{BookingStatusOngoing, ActionTerminate, RoleOwner, BookingStatusTerminated},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			next, err := Transition(tt.from, tt.action, tt.role)
			require.NoError(t, err)
			assert.Equal(t, tt.to, next)
		})
	}

	t.Run("Wrong role is forbidden", func(t *testing.T) {
		_, err := Transition(BookingStatusBooked, ActionApprove, RoleCustomer)
		assert.ErrorIs(t, err, ErrForbidden)

		_, err = Transition(BookingStatusApproved, ActionSettle, RoleOwner)
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestTransitionRejectsPairsOutsideTable(t *testing.T) {
	for _, from := range AllBookingStatuses() {
		for _, action := range allActions {
			if _, ok := transitions[transitionKey{from, action}]; ok {
				continue
			}
			next, err := Transition(from, action, RoleOwner)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s/%s", from, action)
			assert.Equal(t, from, next)

			var te *TransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, from, te.From)
			assert.Equal(t, action, te.Action)
		}
	}
}

func TestTerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	for key := range transitions {
		assert.False(t, key.from.IsTerminal(), "terminal status %s has a transition", key.from)
	}
}

func TestResolve(t *testing.T) {
	status := func(s BookingStatus) *BookingStatus { return &s }

	t.Run("Applies a fresh transition", func(t *testing.T) {
		next, noop, err := Resolve(BookingStatusBooked, ActionApprove, RoleOwner, status(BookingStatusBooked))
		require.NoError(t, err)
		assert.False(t, noop)
		assert.Equal(t, BookingStatusApproved, next)
	})

	t.Run("Replay with observed source is a no-op", func(t *testing.T) {
		next, noop, err := Resolve(BookingStatusApproved, ActionApprove, RoleOwner, status(BookingStatusBooked))
		require.NoError(t, err)
		assert.True(t, noop)
		assert.Equal(t, BookingStatusApproved, next)
	})

	t.Run("Replay after a different transition conflicts", func(t *testing.T) {
		_, noop, err := Resolve(BookingStatusRejected, ActionApprove, RoleOwner, status(BookingStatusBooked))
		assert.ErrorIs(t, err, ErrConflictRetry)
		assert.False(t, noop)
	})

	t.Run("Re-applying without observed source is a no-op", func(t *testing.T) {
		next, noop, err := Resolve(BookingStatusTerminated, ActionTerminate, RoleAdmin, nil)
		require.NoError(t, err)
		assert.True(t, noop)
		assert.Equal(t, BookingStatusTerminated, next)
	})

	t.Run("Approve on rejected is invalid", func(t *testing.T) {
		next, noop, err := Resolve(BookingStatusRejected, ActionApprove, RoleOwner, nil)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.False(t, noop)
		assert.Equal(t, BookingStatusRejected, next)
	})

	t.Run("Terminate after settlement moves ongoing to terminated", func(t *testing.T) {
		next, noop, err := Resolve(BookingStatusOngoing, ActionTerminate, RoleOwner, status(BookingStatusApproved))
		assert.ErrorIs(t, err, ErrConflictRetry)
		assert.False(t, noop)
		assert.Equal(t, BookingStatusOngoing, next)
	})

	t.Run("Idempotent iff destination unchanged", func(t *testing.T) {
		for key, rule := range transitions {
			role := rule.roles[0]
			next, noop, err := Resolve(rule.to, key.action, role, nil)
			if _, again := transitions[transitionKey{rule.to, key.action}]; again {
				continue
			}
			require.NoError(t, err, "%s/%s", key.from, key.action)
			assert.True(t, noop)
			assert.Equal(t, rule.to, next)
		}
	})
}

func TestCheckGuard(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("Request needs available item", func(t *testing.T) {
		b := &Booking{Status: BookingStatusPending}
		assert.ErrorIs(t, CheckGuard(b, ActionRequest, RoleCustomer, GuardFacts{}), ErrItemUnavailable)
		assert.NoError(t, CheckGuard(b, ActionRequest, RoleCustomer, GuardFacts{ItemAvailable: true}))
	})

	t.Run("Start needs settlement or cash", func(t *testing.T) {
		b := &Booking{Status: BookingStatusApproved, PaymentMethod: PaymentMethodCash}
		assert.ErrorIs(t, CheckGuard(b, ActionStart, RoleOwner, GuardFacts{}), ErrPreconditionFailed)
		assert.NoError(t, CheckGuard(b, ActionStart, RoleOwner, GuardFacts{CashConfirmed: true}))

		online := &Booking{Status: BookingStatusApproved, PaymentMethod: PaymentMethodGCash}
		assert.ErrorIs(t, CheckGuard(online, ActionStart, RoleOwner, GuardFacts{CashConfirmed: true}), ErrPreconditionFailed)
		assert.NoError(t, CheckGuard(online, ActionStart, RoleOwner, GuardFacts{Settled: true}))
	})

	t.Run("System close waits for return date", func(t *testing.T) {
		b := &Booking{Status: BookingStatusOngoing, ReturnDate: now.Add(time.Hour)}
		assert.ErrorIs(t, CheckGuard(b, ActionClose, RoleSystem, GuardFacts{Now: now}), ErrPreconditionFailed)
		assert.NoError(t, CheckGuard(b, ActionClose, RoleOwner, GuardFacts{Now: now}))
		assert.NoError(t, CheckGuard(b, ActionClose, RoleSystem, GuardFacts{Now: now.Add(2 * time.Hour)}))
	})
}

func TestAuthorize(t *testing.T) {
	b := &Booking{CustomerID: "cust-1", OwnerID: "owner-1"}

	assert.NoError(t, Authorize(b, RoleCustomer, "cust-1"))
	assert.ErrorIs(t, Authorize(b, RoleCustomer, "owner-1"), ErrForbidden)
	assert.NoError(t, Authorize(b, RoleOwner, "owner-1"))
	assert.ErrorIs(t, Authorize(b, RoleOwner, ""), ErrForbidden)
	assert.NoError(t, Authorize(b, RoleAdmin, "admin-9"))
	assert.ErrorIs(t, Authorize(b, Role("guest"), "x"), ErrForbidden)
}

func TestComputeGrandTotal(t *testing.T) {
	total, err := ComputeGrandTotal(money.FromPesos(500), 3, money.FromPesos(100))
	require.NoError(t, err)
	assert.Equal(t, money.FromPesos(1600), total)

	_, err = ComputeGrandTotal(money.FromPesos(500), 0, 0)
	assert.ErrorIs(t, err, money.ErrInvalidAmount)
}

func TestNewSettlementRecord(t *testing.T) {
	intent := "pi_123"
	b := &Booking{ID: "b-1", OwnerID: "owner-1", GrandTotal: money.FromPesos(1600), PaymentMethod: PaymentMethodGCash}
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	rec, err := NewSettlementRecord(b, &intent, money.MustParseRate("0.30"), at)
	require.NoError(t, err)
	assert.Equal(t, money.FromPesos(480), rec.CommissionAmount)
	assert.Equal(t, money.FromPesos(1120), rec.OwnerShare)
	assert.Equal(t, money.Rate(3000), rec.CommissionRate)
	assert.Equal(t, "owner-1", rec.OwnerID)
	assert.Equal(t, at, rec.SettledAt)
}
