// Package notify delivers persisted notifications out of band. Delivery
// failures are recorded on the notification row and never reach the booking
// or settlement that produced it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/logger"
	"gearlend-backend/internal/repository"
)

// Channel sends one notification over one medium.
type Channel interface {
	Name() domain.NotificationChannel
	Send(ctx context.Context, n *domain.Notification) error
}

type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	// RetryBase scales the quadratic backoff: attempt n waits n*n*RetryBase.
	RetryBase   time.Duration
	SendTimeout time.Duration
	// IdleGrace is how long an idle row may wait for its post-commit dispatch
	// before the retry sweep picks it up.
	IdleGrace time.Duration
}

// claimLease is how long a sending claim holds before another worker may take
// the row over. It outlasts one channel send plus the status write.
func (c Config) claimLease() time.Duration {
	return c.SendTimeout + c.IdleGrace
}

var errClaimLapsed = errors.New("delivery claim lapsed before completion")

func (c *Config) withDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 30 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.IdleGrace <= 0 {
		c.IdleGrace = time.Minute
	}
}

type Dispatcher struct {
	notes    repository.NotificationRepository
	channels map[domain.NotificationChannel]Channel
	order    []domain.NotificationChannel
	cfg      Config

	jobs    chan string
	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
	now     func() time.Time
}

func NewDispatcher(notes repository.NotificationRepository, channels []Channel, cfg Config) *Dispatcher {
	cfg.withDefaults()
	d := &Dispatcher{
		notes:    notes,
		channels: make(map[domain.NotificationChannel]Channel, len(channels)),
		cfg:      cfg,
		jobs:     make(chan string, cfg.QueueSize),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, ch := range channels {
		if _, dup := d.channels[ch.Name()]; dup {
			continue
		}
		d.channels[ch.Name()] = ch
		d.order = append(d.order, ch.Name())
	}
	return d
}

// Channels lists the enabled channels in registration order.
func (d *Dispatcher) Channels() []domain.NotificationChannel {
	out := make([]domain.NotificationChannel, len(d.order))
	copy(out, d.order)
	return out
}

// Start launches the worker pool. Workers exit when ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startMu.Lock()
	defer d.startMu.Unlock()
	if d.started {
		return
	}
	d.started = true

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	logger.Info("Notification dispatcher started", "workers", d.cfg.Workers, "channels", d.order)
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Notification worker stopping", "worker", id)
			return
		case noteID := <-d.jobs:
			// delivery outlives request cancellation but not shutdown
			if err := d.Deliver(ctx, noteID); err != nil {
				logger.Error("Notification delivery error", "worker", id, "notificationID", noteID, "error", err)
			}
		}
	}
}

// Enqueue hands notification IDs to the worker pool without blocking. IDs that
// do not fit stay idle in storage for the retry sweep.
func (d *Dispatcher) Enqueue(ids ...string) {
	for _, id := range ids {
		select {
		case d.jobs <- id:
		default:
			logger.Warn("Notification queue is full, leaving for retry sweep", "notificationID", id)
		}
	}
}

// Deliver claims one notification and sends it. A notification another worker
// already claimed or sent is skipped.
func (d *Dispatcher) Deliver(ctx context.Context, id string) error {
	n, err := d.notes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	claimed, err := d.notes.MarkSending(ctx, id, d.now().Add(-d.cfg.claimLease()))
	if err != nil {
		return err
	}
	if !claimed {
		logger.Debug("Notification already claimed", "notificationID", id, "status", n.Status)
		return nil
	}
	attempts := n.Attempts + 1
	if n.Status == domain.NotificationStatusSending && n.Attempts >= d.cfg.MaxAttempts {
		// The last allowed attempt was claimed and never finished.
		return d.fail(ctx, n, attempts, errClaimLapsed)
	}

	ch, ok := d.channels[n.Channel]
	if !ok {
		return d.fail(ctx, n, attempts, fmt.Errorf("channel %q not configured", n.Channel))
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	logger.ExternalServiceCall(string(n.Channel), "Send", "notificationID", id, "kind", n.Kind, "attempt", attempts)
	sendErr := ch.Send(sendCtx, n)
	logger.ExternalServiceResult(string(n.Channel), "Send", sendErr, "notificationID", id)
	if sendErr != nil {
		return d.fail(ctx, n, attempts, sendErr)
	}

	if err := d.notes.MarkSent(ctx, id); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, n *domain.Notification, attempts int, cause error) error {
	var next *time.Time
	if attempts < d.cfg.MaxAttempts {
		t := d.now().Add(d.backoff(attempts))
		next = &t
		logger.Warn("Notification delivery failed, will retry", "notificationID", n.ID, "attempt", attempts,
			"maxAttempts", d.cfg.MaxAttempts, "nextAttemptAt", t, "error", cause)
	} else {
		logger.Error("Notification delivery failed permanently", "notificationID", n.ID, "attempts", attempts, "error", cause)
	}
	if err := d.notes.MarkFailed(ctx, n.ID, cause.Error(), next); err != nil {
		return errors.Join(cause, fmt.Errorf("mark failed: %w", err))
	}
	return nil
}

func (d *Dispatcher) backoff(attempts int) time.Duration {
	return time.Duration(attempts*attempts) * d.cfg.RetryBase
}

// RetryDue redelivers every notification the repository reports due, lapsed
// sending claims included. It returns how many were sent.
func (d *Dispatcher) RetryDue(ctx context.Context, limit int) (int, error) {
	now := d.now()
	due, err := d.notes.ListRetryable(ctx, now, now.Add(-d.cfg.IdleGrace), now.Add(-d.cfg.claimLease()),
		d.cfg.MaxAttempts, limit)
	if err != nil {
		return 0, fmt.Errorf("list retryable notifications: %w", err)
	}

	sent := 0
	for _, n := range due {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if err := d.Deliver(ctx, n.ID); err != nil {
			logger.Error("Notification retry failed", "notificationID", n.ID, "error", err)
			continue
		}
		cur, err := d.notes.GetByID(ctx, n.ID)
		if err == nil && cur.Status == domain.NotificationStatusSent {
			sent++
		}
	}
	return sent, nil
}
