package service

import (
	"context"
	"time"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/money"
)

// Actor is the authenticated caller. The booking role (customer or owner) is
// derived from the booking itself; Admin grants the admin role on bookings the
// caller is not a party to.
type Actor struct {
	ID    string
	Admin bool

	system bool
}

// SystemActor is used by reconciliation and scheduled jobs.
func SystemActor() Actor {
	return Actor{ID: "system", system: true}
}

type CreateBookingInput struct {
	ItemID           string
	RentalDuration   int
	RentalPeriodUnit domain.RentalPeriodUnit
	DeliveryCharge   money.Amount
	PickupDate       time.Time
	ReturnDate       time.Time
}

// TermsUpdate carries the fields a customer may change before approval. Nil
// fields are left as they are.
type TermsUpdate struct {
	RentalDuration   *int
	RentalPeriodUnit *domain.RentalPeriodUnit
	DeliveryCharge   *money.Amount
	PickupDate       *time.Time
	ReturnDate       *time.Time
}

// ActionOptions carries the optional replay guard every lifecycle action accepts.
type ActionOptions struct {
	// ExpectedStatus is the status the caller observed before acting.
	ExpectedStatus *domain.BookingStatus
	Reason         string
}

type BookingService interface {
	CreateBooking(ctx context.Context, actor Actor, in CreateBookingInput) (*domain.Booking, error)
	UpdateBookingTerms(ctx context.Context, actor Actor, bookingID string, upd TermsUpdate) (*domain.Booking, error)
	GetBooking(ctx context.Context, actor Actor, bookingID string) (*domain.Booking, error)
	ListBookings(ctx context.Context, actor Actor, page, pageSize int32) ([]domain.Booking, int32, error)

	RequestBooking(ctx context.Context, actor Actor, bookingID string, opts ActionOptions) (*domain.Booking, error)
	CancelBooking(ctx context.Context, actor Actor, bookingID string, opts ActionOptions) (*domain.Booking, error)
	// ApproveBooking records the payment method. For online methods it also
	// creates the gateway intent; a gateway failure returns the approved
	// booking together with an error wrapping domain.ErrPaymentInitiationFailed.
	ApproveBooking(ctx context.Context, actor Actor, bookingID string, method domain.PaymentMethod, opts ActionOptions) (*domain.Booking, error)
	RejectBooking(ctx context.Context, actor Actor, bookingID string, opts ActionOptions) (*domain.Booking, error)
	StartBooking(ctx context.Context, actor Actor, bookingID string, cashConfirmed bool, opts ActionOptions) (*domain.Booking, error)
	TerminateBooking(ctx context.Context, actor Actor, bookingID string, opts ActionOptions) (*domain.Booking, error)
	CloseBooking(ctx context.Context, actor Actor, bookingID string, opts ActionOptions) (*domain.Booking, error)

	InitiatePayment(ctx context.Context, actor Actor, bookingID string) (*domain.Booking, *domain.PaymentIntent, error)
	GetSettlement(ctx context.Context, actor Actor, bookingID string) (*domain.SettlementRecord, error)
}

// ReconciliationService matches gateway outcomes to bookings.
type ReconciliationService interface {
	HandlePaymentWebhook(ctx context.Context, raw []byte, signature string) error
	RefreshPaymentStatus(ctx context.Context, actor Actor, bookingID string) (*domain.Booking, error)

	PollPendingIntents(ctx context.Context, olderThan time.Duration, limit int) (int, error)
	ExpireStaleIntents(ctx context.Context, limit int) (int, error)
	CloseReturnedBookings(ctx context.Context, limit int) (int, error)
}

type NotificationService interface {
	ListNotifications(ctx context.Context, userID string, page, pageSize int32) ([]domain.Notification, int32, error)
	RetryNotifications(ctx context.Context, limit int) (int, error)
}

// Notifier hands committed notification rows to delivery.
type Notifier interface {
	Channels() []domain.NotificationChannel
	Enqueue(ids ...string)
}
