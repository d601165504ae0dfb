package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"time"

	"gearlend-backend/internal/domain"

	"github.com/google/uuid"
)

func cloneBooking(b domain.Booking) domain.Booking {
	if b.PaymentIntentID != nil {
		id := *b.PaymentIntentID
		b.PaymentIntentID = &id
	}
	if b.ApprovedAt != nil {
		t := *b.ApprovedAt
		b.ApprovedAt = &t
	}
	return b
}

func cloneNotification(n domain.Notification) domain.Notification {
	n.Attributes = maps.Clone(n.Attributes)
	if n.NextAttemptAt != nil {
		t := *n.NextAttemptAt
		n.NextAttemptAt = &t
	}
	return n
}

type bookingRepo struct{ v view }

func (r *bookingRepo) read(id string) (domain.Booking, bool) {
	if r.v.u != nil {
		if b, ok := r.v.u.bookings[id]; ok {
			return cloneBooking(b), true
		}
	}
	r.v.s.mu.RLock()
	defer r.v.s.mu.RUnlock()
	b, ok := r.v.s.bookings[id]
	return cloneBooking(b), ok
}

func (r *bookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	t := now()
	b.CreatedAt, b.UpdatedAt = t, t
	if b.Version == 0 {
		b.Version = 1
	}

	if u := r.v.u; u != nil {
		if _, exists := r.read(b.ID); exists {
			return fmt.Errorf("booking %s already exists", b.ID)
		}
		u.bookings[b.ID] = cloneBooking(*b)
		u.bookingBase[b.ID] = 0
		return nil
	}

	r.v.s.mu.Lock()
	defer r.v.s.mu.Unlock()
	if _, exists := r.v.s.bookings[b.ID]; exists {
		return fmt.Errorf("booking %s already exists", b.ID)
	}
	r.v.s.bookings[b.ID] = cloneBooking(*b)
	return nil
}

func (r *bookingRepo) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	b, ok := r.read(id)
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	return &b, nil
}

func (r *bookingRepo) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	if r.v.u != nil {
		if err := r.v.u.lock(ctx, r.v.s.locks, id); err != nil {
			return nil, err
		}
	}
	return r.GetByID(ctx, id)
}

func (r *bookingRepo) Update(ctx context.Context, b *domain.Booking) error {
	if u := r.v.u; u != nil {
		cur, ok := r.read(b.ID)
		if !ok {
			return fmt.Errorf("booking %s: %w", b.ID, domain.ErrNotFound)
		}
		if cur.Version != b.Version {
			return fmt.Errorf("booking %s at version %d: %w", b.ID, b.Version, domain.ErrConcurrentModification)
		}
		if _, staged := u.bookingBase[b.ID]; !staged {
			u.bookingBase[b.ID] = cur.Version
		}
		b.Version++
		b.UpdatedAt = now()
		u.bookings[b.ID] = cloneBooking(*b)
		return nil
	}

	r.v.s.mu.Lock()
	defer r.v.s.mu.Unlock()
	cur, ok := r.v.s.bookings[b.ID]
	if !ok {
		return fmt.Errorf("booking %s: %w", b.ID, domain.ErrNotFound)
	}
	if cur.Version != b.Version {
		return fmt.Errorf("booking %s at version %d: %w", b.ID, b.Version, domain.ErrConcurrentModification)
	}
	b.Version++
	b.UpdatedAt = now()
	r.v.s.bookings[b.ID] = cloneBooking(*b)
	return nil
}

func (r *bookingRepo) ListByParticipant(ctx context.Context, userID string, limit, offset int32) ([]domain.Booking, int32, error) {
	r.v.s.mu.RLock()
	var all []domain.Booking
	for _, b := range r.v.s.bookings {
		if b.IsParticipant(userID) {
			all = append(all, cloneBooking(b))
		}
	}
	r.v.s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, limit, offset), int32(len(all)), nil
}

func (r *bookingRepo) ListReturnDue(ctx context.Context, at time.Time, limit int) ([]domain.Booking, error) {
	r.v.s.mu.RLock()
	var due []domain.Booking
	for _, b := range r.v.s.bookings {
		if b.Status == domain.BookingStatusOngoing && !b.ReturnDate.After(at) {
			due = append(due, cloneBooking(b))
		}
	}
	r.v.s.mu.RUnlock()

	sort.Slice(due, func(i, j int) bool { return due[i].ReturnDate.Before(due[j].ReturnDate) })
	return page(due, int32(limit), 0), nil
}

type paymentIntentRepo struct{ v view }

func (r *paymentIntentRepo) read(id string) (domain.PaymentIntent, bool) {
	if r.v.u != nil {
		if pi, ok := r.v.u.intents[id]; ok {
			return pi, true
		}
	}
	r.v.s.mu.RLock()
	defer r.v.s.mu.RUnlock()
	pi, ok := r.v.s.intents[id]
	return pi, ok
}

func (r *paymentIntentRepo) write(pi domain.PaymentIntent) {
	if r.v.u != nil {
		r.v.u.intents[pi.ID] = pi
		return
	}
	r.v.s.mu.Lock()
	r.v.s.intents[pi.ID] = pi
	r.v.s.mu.Unlock()
}

func (r *paymentIntentRepo) Create(ctx context.Context, pi *domain.PaymentIntent) error {
	if _, exists := r.read(pi.ID); exists {
		return nil
	}
	t := now()
	if pi.CreatedAt.IsZero() {
		pi.CreatedAt = t
	}
	pi.UpdatedAt = t
	r.write(*pi)
	return nil
}

func (r *paymentIntentRepo) GetByID(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	pi, ok := r.read(id)
	if !ok {
		return nil, fmt.Errorf("payment intent %s: %w", id, domain.ErrNotFound)
	}
	return &pi, nil
}

func (r *paymentIntentRepo) UpdateStatus(ctx context.Context, id string, status domain.PaymentIntentStatus, lastError string) error {
	pi, ok := r.read(id)
	if !ok {
		return fmt.Errorf("payment intent %s: %w", id, domain.ErrNotFound)
	}
	pi.Status = status
	pi.LastError = lastError
	pi.UpdatedAt = now()
	r.write(pi)
	return nil
}

func (r *paymentIntentRepo) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.PaymentIntent, error) {
	r.v.s.mu.RLock()
	var pending []domain.PaymentIntent
	for _, pi := range r.v.s.intents {
		if pi.Status == domain.PaymentIntentPending && !pi.CreatedAt.After(createdBefore) {
			pending = append(pending, pi)
		}
	}
	r.v.s.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return page(pending, int32(limit), 0), nil
}

type settlementRepo struct{ v view }

func (r *settlementRepo) read(bookingID string) (domain.SettlementRecord, bool) {
	if r.v.u != nil {
		if rec, ok := r.v.u.settlements[bookingID]; ok {
			return rec, true
		}
	}
	r.v.s.mu.RLock()
	defer r.v.s.mu.RUnlock()
	rec, ok := r.v.s.settlements[bookingID]
	return rec, ok
}

func (r *settlementRepo) Create(ctx context.Context, rec *domain.SettlementRecord) error {
	if r.v.u != nil {
		if _, exists := r.read(rec.BookingID); exists {
			return fmt.Errorf("booking %s: %w", rec.BookingID, domain.ErrDuplicateSettlement)
		}
		r.v.u.settlements[rec.BookingID] = *rec
		return nil
	}

	r.v.s.mu.Lock()
	defer r.v.s.mu.Unlock()
	if _, exists := r.v.s.settlements[rec.BookingID]; exists {
		return fmt.Errorf("booking %s: %w", rec.BookingID, domain.ErrDuplicateSettlement)
	}
	r.v.s.settlements[rec.BookingID] = *rec
	return nil
}

func (r *settlementRepo) GetByBookingID(ctx context.Context, bookingID string) (*domain.SettlementRecord, error) {
	rec, ok := r.read(bookingID)
	if !ok {
		return nil, fmt.Errorf("settlement for booking %s: %w", bookingID, domain.ErrNotFound)
	}
	return &rec, nil
}

type notificationRepo struct{ v view }

func (r *notificationRepo) read(id string) (domain.Notification, bool) {
	if r.v.u != nil {
		if n, ok := r.v.u.notifications[id]; ok {
			return cloneNotification(n), true
		}
	}
	r.v.s.mu.RLock()
	defer r.v.s.mu.RUnlock()
	n, ok := r.v.s.notifications[id]
	return cloneNotification(n), ok
}

func (r *notificationRepo) write(n domain.Notification) {
	if r.v.u != nil {
		r.v.u.notifications[n.ID] = cloneNotification(n)
		return
	}
	r.v.s.mu.Lock()
	r.v.s.notifications[n.ID] = cloneNotification(n)
	r.v.s.mu.Unlock()
}

// update applies fn to the notification under the store lock so status
// claims stay atomic outside a unit of work.
func (r *notificationRepo) update(id string, fn func(n *domain.Notification) bool) (bool, error) {
	if r.v.u != nil {
		n, ok := r.read(id)
		if !ok {
			return false, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
		}
		if !fn(&n) {
			return false, nil
		}
		r.write(n)
		return true, nil
	}

	r.v.s.mu.Lock()
	defer r.v.s.mu.Unlock()
	n, ok := r.v.s.notifications[id]
	if !ok {
		return false, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	n = cloneNotification(n)
	if !fn(&n) {
		return false, nil
	}
	r.v.s.notifications[id] = n
	return true, nil
}

func (r *notificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = domain.NotificationStatusIdle
	}
	t := now()
	n.CreatedAt, n.UpdatedAt = t, t
	r.write(*n)
	return nil
}

func (r *notificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	n, ok := r.read(id)
	if !ok {
		return nil, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	return &n, nil
}

func (r *notificationRepo) ListByRecipient(ctx context.Context, recipientID string, limit, offset int32) ([]domain.Notification, int32, error) {
	r.v.s.mu.RLock()
	var notes []domain.Notification
	for _, n := range r.v.s.notifications {
		if n.RecipientID == recipientID {
			notes = append(notes, cloneNotification(n))
		}
	}
	r.v.s.mu.RUnlock()

	sort.Slice(notes, func(i, j int) bool { return notes[i].CreatedAt.After(notes[j].CreatedAt) })
	return page(notes, limit, offset), int32(len(notes)), nil
}

func (r *notificationRepo) MarkSending(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	return r.update(id, func(n *domain.Notification) bool {
		switch n.Status {
		case domain.NotificationStatusIdle, domain.NotificationStatusFailed:
		case domain.NotificationStatusSending:
			if n.UpdatedAt.After(staleBefore) {
				return false
			}
		default:
			return false
		}
		n.Status = domain.NotificationStatusSending
		n.Attempts++
		n.UpdatedAt = now()
		return true
	})
}

func (r *notificationRepo) MarkSent(ctx context.Context, id string) error {
	_, err := r.update(id, func(n *domain.Notification) bool {
		n.Status = domain.NotificationStatusSent
		n.LastError = ""
		n.NextAttemptAt = nil
		n.UpdatedAt = now()
		return true
	})
	return err
}

func (r *notificationRepo) MarkFailed(ctx context.Context, id string, reason string, nextAttemptAt *time.Time) error {
	_, err := r.update(id, func(n *domain.Notification) bool {
		n.Status = domain.NotificationStatusFailed
		n.LastError = reason
		n.NextAttemptAt = nextAttemptAt
		n.UpdatedAt = now()
		return true
	})
	return err
}

func (r *notificationRepo) ListRetryable(ctx context.Context, at, idleBefore, sendingBefore time.Time, maxAttempts, limit int) ([]domain.Notification, error) {
	r.v.s.mu.RLock()
	var notes []domain.Notification
	for _, n := range r.v.s.notifications {
		switch {
		case n.Status == domain.NotificationStatusFailed && n.Attempts < maxAttempts &&
			(n.NextAttemptAt == nil || !n.NextAttemptAt.After(at)):
			notes = append(notes, cloneNotification(n))
		case n.Status == domain.NotificationStatusIdle && !n.CreatedAt.After(idleBefore):
			notes = append(notes, cloneNotification(n))
		case n.Status == domain.NotificationStatusSending && !n.UpdatedAt.After(sendingBefore):
			notes = append(notes, cloneNotification(n))
		}
	}
	r.v.s.mu.RUnlock()

	sort.Slice(notes, func(i, j int) bool { return notes[i].CreatedAt.Before(notes[j].CreatedAt) })
	return page(notes, int32(limit), 0), nil
}

type itemRepo struct{ v view }

func (r *itemRepo) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	r.v.s.mu.RLock()
	defer r.v.s.mu.RUnlock()
	item, ok := r.v.s.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	return &item, nil
}

type userRepo struct{ v view }

func (r *userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.v.s.mu.RLock()
	defer r.v.s.mu.RUnlock()
	user, ok := r.v.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return &user, nil
}

func page[T any](rows []T, limit, offset int32) []T {
	if offset < 0 {
		offset = 0
	}
	if int(offset) >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && int(limit) < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
