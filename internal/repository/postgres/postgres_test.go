package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/money"
	"gearlend-backend/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookingRowColumns = []string{"id", "item_id", "customer_id", "owner_id", "category", "price_per_unit_centavos",
	"rental_duration", "rental_period_unit", "delivery_charge_centavos", "grand_total_centavos", "pickup_date",
	"return_date", "status", "payment_method", "payment_intent_id", "payment_attempt", "approved_at", "version",
	"created_at", "updated_at"}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestBookingRepository_Create(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		b := &domain.Booking{
			ItemID:           "item-1",
			CustomerID:       "cust-1",
			OwnerID:          "owner-1",
			PricePerUnit:     money.FromPesos(500),
			RentalDuration:   3,
			RentalPeriodUnit: domain.RentalPeriodDay,
			DeliveryCharge:   money.FromPesos(100),
			GrandTotal:       money.FromPesos(1600),
			Status:           domain.BookingStatusPending,
		}

		mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.Bookings().Create(ctx, b)
		assert.NoError(t, err)
		assert.NotEmpty(t, b.ID)
		assert.Equal(t, int64(1), b.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepository_GetForUpdate(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows(bookingRowColumns).
			AddRow("b-1", "item-1", "cust-1", "owner-1", "camera", int64(50000), 3, "day", int64(10000), int64(160000),
				now, now.Add(72*time.Hour), "approved", "gcash", "pi_1", 1, now, int64(4), now, now)

		mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1 FOR UPDATE").
			WithArgs("b-1").
			WillReturnRows(rows)

		b, err := store.Bookings().GetForUpdate(ctx, "b-1")
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusApproved, b.Status)
		assert.Equal(t, money.FromPesos(1600), b.GrandTotal)
		require.NotNil(t, b.PaymentIntentID)
		assert.Equal(t, "pi_1", *b.PaymentIntentID)
		assert.NotNil(t, b.ApprovedAt)
		assert.Equal(t, int64(4), b.Version)
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(bookingRowColumns))

		_, err := store.Bookings().GetByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestBookingRepository_Update(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	t.Run("Increments version", func(t *testing.T) {
		b := &domain.Booking{ID: "b-1", Status: domain.BookingStatusBooked, Version: 2}
		mock.ExpectExec("UPDATE bookings SET (.+) WHERE id=\\$14 AND version=\\$15").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Bookings().Update(ctx, b))
		assert.Equal(t, int64(3), b.Version)
	})

	t.Run("Version mismatch", func(t *testing.T) {
		b := &domain.Booking{ID: "b-1", Status: domain.BookingStatusBooked, Version: 2}
		mock.ExpectExec("UPDATE bookings").WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.Bookings().Update(ctx, b)
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)
		assert.Equal(t, int64(2), b.Version)
	})
}

func TestSettlementRepository_Create(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()
	intent := "pi_1"
	rec := &domain.SettlementRecord{
		BookingID:        "b-1",
		PaymentIntentID:  &intent,
		Method:           domain.PaymentMethodGCash,
		OwnerID:          "owner-1",
		RentalAmount:     money.FromPesos(1600),
		CommissionRate:   3000,
		CommissionAmount: money.FromPesos(480),
		OwnerShare:       money.FromPesos(1120),
		SettledAt:        time.Now(),
	}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO settlements").WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, store.Settlements().Create(ctx, rec))
	})

	t.Run("Duplicate", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO settlements").WillReturnError(&pq.Error{Code: "23505"})
		err := store.Settlements().Create(ctx, rec)
		assert.ErrorIs(t, err, domain.ErrDuplicateSettlement)
	})

	t.Run("Other error", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO settlements").WillReturnError(errors.New("connection reset"))
		err := store.Settlements().Create(ctx, rec)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrDuplicateSettlement)
	})
}

func TestSettlementRepository_GetByBookingID(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"booking_id", "payment_intent_id", "method", "owner_id", "rental_amount_centavos",
		"commission_rate_bps", "commission_amount_centavos", "owner_share_centavos", "settled_at"}).
		AddRow("b-1", nil, "cash", "owner-1", int64(160000), int64(3000), int64(48000), int64(112000), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM settlements WHERE booking_id = \\$1").WithArgs("b-1").WillReturnRows(rows)

	rec, err := store.Settlements().GetByBookingID(ctx, "b-1")
	require.NoError(t, err)
	assert.Nil(t, rec.PaymentIntentID)
	assert.Equal(t, domain.PaymentMethodCash, rec.Method)
	assert.Equal(t, money.FromPesos(480), rec.CommissionAmount)
}

func TestPaymentIntentRepository(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	t.Run("Create ignores replayed intent", func(t *testing.T) {
		pi := &domain.PaymentIntent{ID: "pi_1", BookingID: "b-1", Amount: money.FromPesos(1600),
			Provider: domain.PaymentMethodGCash, Status: domain.PaymentIntentPending, IdempotencyKey: "b-1:1"}
		mock.ExpectExec("INSERT INTO payment_intents (.+) ON CONFLICT \\(id\\) DO NOTHING").
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.NoError(t, store.PaymentIntents().Create(ctx, pi))
	})

	t.Run("UpdateStatus unknown intent", func(t *testing.T) {
		mock.ExpectExec("UPDATE payment_intents SET status").
			WithArgs(domain.PaymentIntentExpired, "", sqlmock.AnyArg(), "pi_x").
			WillReturnResult(sqlmock.NewResult(0, 0))
		err := store.PaymentIntents().UpdateStatus(ctx, "pi_x", domain.PaymentIntentExpired, "")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestNotificationRepository_MarkSending(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	t.Run("Claimed", func(t *testing.T) {
		mock.ExpectExec("UPDATE notifications SET status = \\$1, attempts = attempts \\+ 1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		ok, err := store.Notifications().MarkSending(ctx, "n-1", time.Now().Add(-time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Reclaims a lapsed sending row", func(t *testing.T) {
		stale := time.Now().Add(-time.Minute)
		mock.ExpectExec("status = ANY\\(\\$4\\) OR \\(status = \\$1 AND updated_at <= \\$5\\)").
			WithArgs(domain.NotificationStatusSending, sqlmock.AnyArg(), "n-1", sqlmock.AnyArg(), stale).
			WillReturnResult(sqlmock.NewResult(0, 1))
		ok, err := store.Notifications().MarkSending(ctx, "n-1", stale)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Already claimed", func(t *testing.T) {
		mock.ExpectExec("UPDATE notifications").WillReturnResult(sqlmock.NewResult(0, 0))
		ok, err := store.Notifications().MarkSending(ctx, "n-1", time.Now().Add(-time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_WithinTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Commits on success", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE bookings").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.WithinTx(ctx, func(tx repository.Repositories) error {
			return tx.Bookings().Update(ctx, &domain.Booking{ID: "b-1", Version: 1})
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rolls back on error", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO settlements").WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		err := store.WithinTx(ctx, func(tx repository.Repositories) error {
			return tx.Settlements().Create(ctx, &domain.SettlementRecord{BookingID: "b-1"})
		})
		assert.ErrorIs(t, err, domain.ErrDuplicateSettlement)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
