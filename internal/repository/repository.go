package repository

import (
	"context"
	"time"

	"gearlend-backend/internal/domain"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	// GetForUpdate loads the booking and holds its row lock until the
	// surrounding unit of work ends. Outside a unit of work it behaves like GetByID.
	GetForUpdate(ctx context.Context, id string) (*domain.Booking, error)
	// Update persists the booking if its stored version still equals
	// booking.Version, then increments booking.Version. A mismatch returns
	// domain.ErrConcurrentModification.
	Update(ctx context.Context, booking *domain.Booking) error
	ListByParticipant(ctx context.Context, userID string, limit, offset int32) ([]domain.Booking, int32, error)
	ListReturnDue(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error)
}

type PaymentIntentRepository interface {
	// Create is idempotent on the gateway-issued intent ID.
	Create(ctx context.Context, intent *domain.PaymentIntent) error
	GetByID(ctx context.Context, id string) (*domain.PaymentIntent, error)
	UpdateStatus(ctx context.Context, id string, status domain.PaymentIntentStatus, lastError string) error
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.PaymentIntent, error)
}

type SettlementRepository interface {
	// Create returns domain.ErrDuplicateSettlement when the booking already has a record.
	Create(ctx context.Context, record *domain.SettlementRecord) error
	GetByBookingID(ctx context.Context, bookingID string) (*domain.SettlementRecord, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	ListByRecipient(ctx context.Context, recipientID string, limit, offset int32) ([]domain.Notification, int32, error)
	// MarkSending claims an idle or failed notification for delivery, or a
	// sending one whose claim was last touched at or before staleBefore. It
	// reports false when another worker holds a live claim or it was sent.
	MarkSending(ctx context.Context, id string, staleBefore time.Time) (bool, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string, nextAttemptAt *time.Time) error
	// ListRetryable returns failed notifications due for another attempt,
	// idle ones created before idleBefore that were never dispatched, and
	// sending ones whose claim lapsed at or before sendingBefore.
	ListRetryable(ctx context.Context, now, idleBefore, sendingBefore time.Time, maxAttempts, limit int) ([]domain.Notification, error)
}

type ItemRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Item, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Repositories is the set of repositories bound to one connection or transaction.
type Repositories interface {
	Bookings() BookingRepository
	PaymentIntents() PaymentIntentRepository
	Settlements() SettlementRepository
	Notifications() NotificationRepository
	Items() ItemRepository
	Users() UserRepository
}

// Store is the persistence root. WithinTx runs fn in one unit of work that
// commits when fn returns nil and rolls back otherwise.
type Store interface {
	Repositories
	WithinTx(ctx context.Context, fn func(tx Repositories) error) error
}
