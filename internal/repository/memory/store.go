// Package memory is an in-process implementation of repository.Store used in
// development mode and tests. Units of work stage their writes and apply them
// atomically on commit; GetForUpdate takes a per-booking lock held until the
// unit ends.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/logger"
	"gearlend-backend/internal/repository"
)

type Store struct {
	mu            sync.RWMutex
	bookings      map[string]domain.Booking
	intents       map[string]domain.PaymentIntent
	settlements   map[string]domain.SettlementRecord
	notifications map[string]domain.Notification
	items         map[string]domain.Item
	users         map[string]domain.User

	locks *keyedMutex
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		bookings:      make(map[string]domain.Booking),
		intents:       make(map[string]domain.PaymentIntent),
		settlements:   make(map[string]domain.SettlementRecord),
		notifications: make(map[string]domain.Notification),
		items:         make(map[string]domain.Item),
		users:         make(map[string]domain.User),
		locks:         newKeyedMutex(),
	}
}

// PutItem seeds the catalog view.
func (s *Store) PutItem(item domain.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

// PutUser seeds a user contact.
func (s *Store) PutUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *Store) Bookings() repository.BookingRepository { return &bookingRepo{view{s: s}} }
func (s *Store) PaymentIntents() repository.PaymentIntentRepository {
	return &paymentIntentRepo{view{s: s}}
}
func (s *Store) Settlements() repository.SettlementRepository { return &settlementRepo{view{s: s}} }
func (s *Store) Notifications() repository.NotificationRepository {
	return &notificationRepo{view{s: s}}
}
func (s *Store) Items() repository.ItemRepository { return &itemRepo{view{s: s}} }
func (s *Store) Users() repository.UserRepository { return &userRepo{view{s: s}} }

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Repositories) error) error {
	u := newUnit()
	defer u.release(s.locks)

	if err := fn(view{s: s, u: u}); err != nil {
		return err
	}
	return s.commit(u)
}

func (s *Store) commit(u *unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, base := range u.bookingBase {
		cur, ok := s.bookings[id]
		switch {
		case base == 0 && ok:
			return fmt.Errorf("booking %s already exists: %w", id, domain.ErrConcurrentModification)
		case base != 0 && (!ok || cur.Version != base):
			return fmt.Errorf("booking %s at version %d: %w", id, base, domain.ErrConcurrentModification)
		}
	}
	for id := range u.settlements {
		if _, ok := s.settlements[id]; ok {
			return fmt.Errorf("booking %s: %w", id, domain.ErrDuplicateSettlement)
		}
	}

	for id, b := range u.bookings {
		s.bookings[id] = b
	}
	for id, pi := range u.intents {
		s.intents[id] = pi
	}
	for id, rec := range u.settlements {
		s.settlements[id] = rec
	}
	for id, n := range u.notifications {
		s.notifications[id] = n
	}
	logger.Debug("Memory unit committed", "bookings", len(u.bookings), "settlements", len(u.settlements),
		"notifications", len(u.notifications))
	return nil
}

// unit holds the staged writes of one WithinTx call.
type unit struct {
	held []string

	bookings map[string]domain.Booking
	// bookingBase is the committed version each staged booking was read at; 0 for inserts.
	bookingBase   map[string]int64
	intents       map[string]domain.PaymentIntent
	settlements   map[string]domain.SettlementRecord
	notifications map[string]domain.Notification
}

func newUnit() *unit {
	return &unit{
		bookings:      make(map[string]domain.Booking),
		bookingBase:   make(map[string]int64),
		intents:       make(map[string]domain.PaymentIntent),
		settlements:   make(map[string]domain.SettlementRecord),
		notifications: make(map[string]domain.Notification),
	}
}

func (u *unit) lock(ctx context.Context, locks *keyedMutex, key string) error {
	for _, h := range u.held {
		if h == key {
			return nil
		}
	}
	if err := locks.Lock(ctx, key); err != nil {
		return err
	}
	u.held = append(u.held, key)
	return nil
}

func (u *unit) release(locks *keyedMutex) {
	for i := len(u.held) - 1; i >= 0; i-- {
		locks.Unlock(u.held[i])
	}
	u.held = nil
}

// view binds repositories to the committed state, or to a unit of work when u is set.
type view struct {
	s *Store
	u *unit
}

func (v view) Bookings() repository.BookingRepository { return &bookingRepo{v} }
func (v view) PaymentIntents() repository.PaymentIntentRepository { return &paymentIntentRepo{v} }
func (v view) Settlements() repository.SettlementRepository { return &settlementRepo{v} }
func (v view) Notifications() repository.NotificationRepository { return &notificationRepo{v} }
func (v view) Items() repository.ItemRepository { return &itemRepo{v} }
func (v view) Users() repository.UserRepository { return &userRepo{v} }

func now() time.Time {
	return time.Now().UTC()
}
