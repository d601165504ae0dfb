package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/money"
	"gearlend-backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBooking(t *testing.T, s *Store) *domain.Booking {
	t.Helper()
	b := &domain.Booking{
		ItemID:     "item-1",
		CustomerID: "cust-1",
		OwnerID:    "owner-1",
		GrandTotal: money.FromPesos(1600),
		Status:     domain.BookingStatusBooked,
	}
	require.NoError(t, s.Bookings().Create(context.Background(), b))
	return b
}

func TestStore_WithinTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Commits staged writes", func(t *testing.T) {
		s := NewStore()
		b := seedBooking(t, s)

		err := s.WithinTx(ctx, func(tx repository.Repositories) error {
			cur, err := tx.Bookings().GetForUpdate(ctx, b.ID)
			if err != nil {
				return err
			}
			cur.Status = domain.BookingStatusApproved
			if err := tx.Bookings().Update(ctx, cur); err != nil {
				return err
			}
			// visible inside the unit, invisible outside until commit
			inside, _ := tx.Bookings().GetByID(ctx, b.ID)
			outside, _ := s.Bookings().GetByID(ctx, b.ID)
			assert.Equal(t, domain.BookingStatusApproved, inside.Status)
			assert.Equal(t, domain.BookingStatusBooked, outside.Status)
			return nil
		})
		require.NoError(t, err)

		got, err := s.Bookings().GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusApproved, got.Status)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("Discards writes on error", func(t *testing.T) {
		s := NewStore()
		b := seedBooking(t, s)
		boom := errors.New("boom")

		err := s.WithinTx(ctx, func(tx repository.Repositories) error {
			cur, _ := tx.Bookings().GetForUpdate(ctx, b.ID)
			cur.Status = domain.BookingStatusRejected
			_ = tx.Bookings().Update(ctx, cur)
			_ = tx.Settlements().Create(ctx, &domain.SettlementRecord{BookingID: b.ID})
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, _ := s.Bookings().GetByID(ctx, b.ID)
		assert.Equal(t, domain.BookingStatusBooked, got.Status)
		_, err = s.Settlements().GetByBookingID(ctx, b.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Rejects stale version", func(t *testing.T) {
		s := NewStore()
		b := seedBooking(t, s)
		stale := *b

		b.Status = domain.BookingStatusApproved
		require.NoError(t, s.Bookings().Update(ctx, b))

		err := s.Bookings().Update(ctx, &stale)
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	})

	t.Run("Settlement is at most once", func(t *testing.T) {
		s := NewStore()
		b := seedBooking(t, s)

		create := func() error {
			return s.WithinTx(ctx, func(tx repository.Repositories) error {
				return tx.Settlements().Create(ctx, &domain.SettlementRecord{BookingID: b.ID})
			})
		}
		require.NoError(t, create())
		assert.ErrorIs(t, create(), domain.ErrDuplicateSettlement)
	})
}

func TestStore_GetForUpdateSerializesUnits(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	b := seedBooking(t, s)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(tx repository.Repositories) error {
				cur, err := tx.Bookings().GetForUpdate(ctx, b.ID)
				if err != nil {
					return err
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return tx.Bookings().Update(ctx, cur)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	got, _ := s.Bookings().GetByID(ctx, b.ID)
	assert.Equal(t, int64(9), got.Version)
}

func TestKeyedMutex_RespectsContext(t *testing.T) {
	km := newKeyedMutex()
	require.NoError(t, km.Lock(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, km.Lock(ctx, "k"), context.DeadlineExceeded)

	km.Unlock("k")
	require.NoError(t, km.Lock(context.Background(), "k"))
	km.Unlock("k")
	assert.Empty(t, km.locks)
}

func TestNotificationRepo_Claims(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	n := &domain.Notification{RecipientID: "owner-1", Kind: domain.NotificationKindPayoutNotice, Channel: domain.NotificationChannelEmail}
	require.NoError(t, s.Notifications().Create(ctx, n))

	stale := time.Now().Add(-time.Hour)
	ok, err := s.Notifications().MarkSending(ctx, n.ID, stale)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Notifications().MarkSending(ctx, n.ID, stale)
	require.NoError(t, err)
	assert.False(t, ok)

	// Not yet lapsed, so the sweep leaves it.
	due, err := s.Notifications().ListRetryable(ctx, time.Now(), time.Now().Add(-time.Minute), stale, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	next := time.Now().Add(-time.Second)
	require.NoError(t, s.Notifications().MarkFailed(ctx, n.ID, "smtp down", &next))

	due, err = s.Notifications().ListRetryable(ctx, time.Now(), time.Now().Add(-time.Minute), stale, 5, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)

	due, err = s.Notifications().ListRetryable(ctx, time.Now(), time.Now().Add(-time.Minute), stale, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestNotificationRepo_LapsedSendingClaim(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	n := &domain.Notification{RecipientID: "owner-1", Kind: domain.NotificationKindPayoutNotice, Channel: domain.NotificationChannelEmail}
	require.NoError(t, s.Notifications().Create(ctx, n))

	ok, err := s.Notifications().MarkSending(ctx, n.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	lapsed := time.Now().Add(48 * time.Hour)
	due, err := s.Notifications().ListRetryable(ctx, lapsed, lapsed, lapsed, 5, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, domain.NotificationStatusSending, due[0].Status)

	ok, err = s.Notifications().MarkSending(ctx, n.ID, lapsed)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Notifications().GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
}
