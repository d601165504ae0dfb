package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/logger"
	"gearlend-backend/internal/money"
	"gearlend-backend/internal/payment"
	"gearlend-backend/internal/repository"
)

type EngineConfig struct {
	// PaymentRetryWindow starts at approval. A failed or expired payment after
	// it closes rejects the booking instead of waiting for another attempt.
	PaymentRetryWindow time.Duration
	IntentExpiry       time.Duration
	WebhookSecret      string
	WebhookTolerance   time.Duration
	// AdminRecipientID receives refund and dispute notices.
	AdminRecipientID string
}

// Engine runs the booking lifecycle and reconciles gateway outcomes against
// it. Every booking mutation happens under the booking's lock inside one unit
// of work; notifications are written in the same unit and handed to the
// notifier after commit.
type Engine struct {
	store    repository.Store
	gateway  payment.Gateway
	rates    money.RateTable
	notifier Notifier
	cfg      EngineConfig
	now      func() time.Time
}

var (
	_ BookingService        = (*Engine)(nil)
	_ ReconciliationService = (*Engine)(nil)
)

func NewEngine(store repository.Store, gateway payment.Gateway, rates money.RateTable, notifier Notifier, cfg EngineConfig) *Engine {
	if cfg.PaymentRetryWindow <= 0 {
		cfg.PaymentRetryWindow = 24 * time.Hour
	}
	if cfg.IntentExpiry <= 0 {
		cfg.IntentExpiry = 24 * time.Hour
	}
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = 5 * time.Minute
	}
	if cfg.AdminRecipientID == "" {
		cfg.AdminRecipientID = "admin"
	}
	return &Engine{
		store:    store,
		gateway:  gateway,
		rates:    rates,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// roleFor resolves the actor's role on one booking.
func roleFor(b *domain.Booking, actor Actor) (domain.Role, error) {
	switch {
	case actor.system:
		return domain.RoleSystem, nil
	case actor.ID != "" && actor.ID == b.OwnerID:
		return domain.RoleOwner, nil
	case actor.ID != "" && actor.ID == b.CustomerID:
		return domain.RoleCustomer, nil
	case actor.Admin:
		return domain.RoleAdmin, nil
	}
	return "", fmt.Errorf("%w: not a party to booking %s", domain.ErrForbidden, b.ID)
}

func canView(b *domain.Booking, actor Actor) error {
	if actor.system || actor.Admin || b.IsParticipant(actor.ID) {
		return nil
	}
	return fmt.Errorf("%w: not a party to booking %s", domain.ErrForbidden, b.ID)
}

// withConflictRetry retries fn once after a lost version race and reports a
// second loss as ErrConflictRetry.
func withConflictRetry(op string, fn func() error) error {
	err := fn()
	if !errors.Is(err, domain.ErrConcurrentModification) {
		return err
	}
	logger.Warn("Concurrent booking modification, retrying", "operation", op)
	err = fn()
	if errors.Is(err, domain.ErrConcurrentModification) {
		return fmt.Errorf("%w: %v", domain.ErrConflictRetry, err)
	}
	return err
}

// txEffects collects what a unit of work produced for the post-commit step.
type txEffects struct {
	notes []string
}

// commit runs fn in a unit of work with one conflict retry and dispatches the
// notifications it queued once the unit committed.
func (e *Engine) commit(ctx context.Context, op string, fn func(tx repository.Repositories, fx *txEffects) error) error {
	var fx txEffects
	err := withConflictRetry(op, func() error {
		fx = txEffects{}
		return e.store.WithinTx(ctx, func(tx repository.Repositories) error {
			return fn(tx, &fx)
		})
	})
	if err != nil {
		return err
	}
	if len(fx.notes) > 0 {
		e.notifier.Enqueue(fx.notes...)
	}
	return nil
}

// lifecycleStep describes one user or system action on a booking.
type lifecycleStep struct {
	action domain.Action
	opts   ActionOptions
	// facts gathers guard inputs under the booking lock.
	facts func(ctx context.Context, tx repository.Repositories, b *domain.Booking) (domain.GuardFacts, error)
	// apply runs after the status changed and before the booking is saved.
	apply func(ctx context.Context, tx repository.Repositories, b *domain.Booking, now time.Time) error
	// notices builds the notifications for a transition that happened.
	notices func(b *domain.Booking) []notice
}

func (e *Engine) applyAction(ctx context.Context, actor Actor, bookingID string, step lifecycleStep) (*domain.Booking, error) {
	var result *domain.Booking
	err := e.commit(ctx, string(step.action), func(tx repository.Repositories, fx *txEffects) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		role, err := roleFor(b, actor)
		if err != nil {
			return err
		}
		if err := domain.Authorize(b, role, actor.ID); err != nil {
			return err
		}

		next, noop, err := domain.Resolve(b.Status, step.action, role, step.opts.ExpectedStatus)
		if err != nil {
			return err
		}
		if noop {
			logger.Info("Booking action already applied", "bookingID", b.ID, "action", step.action, "status", b.Status)
			result = b
			return nil
		}

		now := e.now()
		facts := domain.GuardFacts{Now: now}
		if step.facts != nil {
			if facts, err = step.facts(ctx, tx, b); err != nil {
				return err
			}
			facts.Now = now
		}
		if err := domain.CheckGuard(b, step.action, role, facts); err != nil {
			return err
		}

		from := b.Status
		b.Status = next
		if step.apply != nil {
			if err := step.apply(ctx, tx, b, now); err != nil {
				return err
			}
		}
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}
		logger.Transition(b.ID, string(from), string(b.Status),
			"action", step.action, "role", role, "version", b.Version)

		if step.notices != nil {
			ids, err := e.queue(ctx, tx, b, step.notices(b)...)
			if err != nil {
				return err
			}
			fx.notes = append(fx.notes, ids...)
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) CreateBooking(ctx context.Context, actor Actor, in CreateBookingInput) (*domain.Booking, error) {
	logger.EnterMethod("Engine.CreateBooking", "customerID", actor.ID, "itemID", in.ItemID)

	if actor.ID == "" {
		return nil, fmt.Errorf("%w: customer required", domain.ErrForbidden)
	}
	if err := validateTerms(in.RentalDuration, in.RentalPeriodUnit, in.DeliveryCharge, in.PickupDate, in.ReturnDate); err != nil {
		logger.ExitMethodWithError("Engine.CreateBooking", err, "itemID", in.ItemID)
		return nil, err
	}

	item, err := e.store.Items().GetByID(ctx, in.ItemID)
	if err != nil {
		logger.ExitMethodWithError("Engine.CreateBooking", err, "itemID", in.ItemID)
		return nil, err
	}
	if item.OwnerID == actor.ID {
		return nil, fmt.Errorf("%w: cannot book your own item", domain.ErrInvalidInput)
	}

	total, err := domain.ComputeGrandTotal(item.PricePerUnit, in.RentalDuration, in.DeliveryCharge)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	b := &domain.Booking{
		ItemID:           item.ID,
		CustomerID:       actor.ID,
		OwnerID:          item.OwnerID,
		Category:         item.Category,
		PricePerUnit:     item.PricePerUnit,
		RentalDuration:   in.RentalDuration,
		RentalPeriodUnit: in.RentalPeriodUnit,
		DeliveryCharge:   in.DeliveryCharge,
		GrandTotal:       total,
		PickupDate:       in.PickupDate.UTC(),
		ReturnDate:       in.ReturnDate.UTC(),
		Status:           domain.BookingStatusPending,
	}
	if err := e.store.Bookings().Create(ctx, b); err != nil {
		logger.ExitMethodWithError("Engine.CreateBooking", err, "itemID", in.ItemID)
		return nil, err
	}

	logger.ExitMethod("Engine.CreateBooking", "bookingID", b.ID, "grandTotal", b.GrandTotal)
	return b, nil
}

func validateTerms(duration int, unit domain.RentalPeriodUnit, delivery money.Amount, pickup, ret time.Time) error {
	switch {
	case duration <= 0:
		return fmt.Errorf("%w: rental duration must be positive", domain.ErrInvalidInput)
	case !unit.Valid():
		return fmt.Errorf("%w: unknown rental period unit %q", domain.ErrInvalidInput, unit)
	case delivery.IsNegative():
		return fmt.Errorf("%w: delivery charge cannot be negative", domain.ErrInvalidInput)
	case pickup.IsZero() || ret.IsZero():
		return fmt.Errorf("%w: pickup and return dates are required", domain.ErrInvalidInput)
	case !ret.After(pickup):
		return fmt.Errorf("%w: return date must be after pickup date", domain.ErrInvalidInput)
	}
	return nil
}

// UpdateBookingTerms changes the rental terms while the booking is pending or
// booked and recomputes the grand total.
func (e *Engine) UpdateBookingTerms(ctx context.Context, actor Actor, bookingID string, upd TermsUpdate) (*domain.Booking, error) {
	var result *domain.Booking
	err := e.commit(ctx, "update_terms", func(tx repository.Repositories, fx *txEffects) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if actor.ID == "" || actor.ID != b.CustomerID {
			return fmt.Errorf("%w: only the customer may change terms", domain.ErrForbidden)
		}
		if !b.TermsEditable() {
			return fmt.Errorf("%w: terms are fixed once the booking is %s", domain.ErrPreconditionFailed, b.Status)
		}

		if upd.RentalDuration != nil {
			b.RentalDuration = *upd.RentalDuration
		}
		if upd.RentalPeriodUnit != nil {
			b.RentalPeriodUnit = *upd.RentalPeriodUnit
		}
		if upd.DeliveryCharge != nil {
			b.DeliveryCharge = *upd.DeliveryCharge
		}
		if upd.PickupDate != nil {
			b.PickupDate = upd.PickupDate.UTC()
		}
		if upd.ReturnDate != nil {
			b.ReturnDate = upd.ReturnDate.UTC()
		}
		if err := validateTerms(b.RentalDuration, b.RentalPeriodUnit, b.DeliveryCharge, b.PickupDate, b.ReturnDate); err != nil {
			return err
		}
		total, err := domain.ComputeGrandTotal(b.PricePerUnit, b.RentalDuration, b.DeliveryCharge)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		b.GrandTotal = total

		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) GetBooking(ctx context.Context, actor Actor, bookingID string) (*domain.Booking, error) {
	b, err := e.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := canView(b, actor); err != nil {
		return nil, err
	}
	return b, nil
}

func (e *Engine) ListBookings(ctx context.Context, actor Actor, page, pageSize int32) ([]domain.Booking, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return e.store.Bookings().ListByParticipant(ctx, actor.ID, pageSize, (page-1)*pageSize)
}

func (e *Engine) RequestBooking(ctx context.Context, actor Actor, bookingID string, opts ActionOptions) (*domain.Booking, error) {
	return e.applyAction(ctx, actor, bookingID, lifecycleStep{
		action: domain.ActionRequest,
		opts:   opts,
		facts: func(ctx context.Context, tx repository.Repositories, b *domain.Booking) (domain.GuardFacts, error) {
			item, err := tx.Items().GetByID(ctx, b.ItemID)
			if errors.Is(err, domain.ErrNotFound) {
				return domain.GuardFacts{}, nil
			}
			if err != nil {
				return domain.GuardFacts{}, err
			}
			return domain.GuardFacts{ItemAvailable: item.Available()}, nil
		},
		notices: func(b *domain.Booking) []notice {
			return []notice{bookingRequested(b)}
		},
	})
}

func (e *Engine) CancelBooking(ctx context.Context, actor Actor, bookingID string, opts ActionOptions) (*domain.Booking, error) {
	return e.applyAction(ctx, actor, bookingID, lifecycleStep{
		action: domain.ActionDelete,
		opts:   opts,
		notices: func(b *domain.Booking) []notice {
			return []notice{bookingCancelled(b, opts.Reason)}
		},
	})
}

func (e *Engine) RejectBooking(ctx context.Context, actor Actor, bookingID string, opts ActionOptions) (*domain.Booking, error) {
	return e.applyAction(ctx, actor, bookingID, lifecycleStep{
		action: domain.ActionReject,
		opts:   opts,
		notices: func(b *domain.Booking) []notice {
			return []notice{bookingRejected(b, opts.Reason)}
		},
	})
}

func (e *Engine) ApproveBooking(ctx context.Context, actor Actor, bookingID string, method domain.PaymentMethod, opts ActionOptions) (*domain.Booking, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", domain.ErrInvalidInput, method)
	}

	b, err := e.applyAction(ctx, actor, bookingID, lifecycleStep{
		action: domain.ActionApprove,
		opts:   opts,
		apply: func(ctx context.Context, tx repository.Repositories, b *domain.Booking, now time.Time) error {
			b.PaymentMethod = method
			b.ApprovedAt = &now
			if method.IsOnline() && b.PaymentAttempt == 0 {
				b.PaymentAttempt = 1
			}
			return nil
		},
		notices: func(b *domain.Booking) []notice {
			return []notice{bookingApproved(b)}
		},
	})
	if err != nil {
		return nil, err
	}

	// A replayed approve also lands here and completes a missing intent.
	if b.Status != domain.BookingStatusApproved || !b.PaymentMethod.IsOnline() || b.PaymentIntentID != nil {
		return b, nil
	}
	updated, _, err := e.openIntent(ctx, b)
	if err != nil {
		return b, err
	}
	return updated, nil
}

func (e *Engine) StartBooking(ctx context.Context, actor Actor, bookingID string, cashConfirmed bool, opts ActionOptions) (*domain.Booking, error) {
	var cashRecord *domain.SettlementRecord
	return e.applyAction(ctx, actor, bookingID, lifecycleStep{
		action: domain.ActionStart,
		opts:   opts,
		facts: func(ctx context.Context, tx repository.Repositories, b *domain.Booking) (domain.GuardFacts, error) {
			settled, err := hasSettlement(ctx, tx, b.ID)
			if err != nil {
				return domain.GuardFacts{}, err
			}
			return domain.GuardFacts{Settled: settled, CashConfirmed: cashConfirmed}, nil
		},
		apply: func(ctx context.Context, tx repository.Repositories, b *domain.Booking, now time.Time) error {
			cashRecord = nil
			settled, err := hasSettlement(ctx, tx, b.ID)
			if err != nil || settled {
				return err
			}
			// cash collected at pickup settles the booking here
			rec, err := domain.NewSettlementRecord(b, nil, e.rates.For(b.Category), now)
			if err != nil {
				return err
			}
			if err := tx.Settlements().Create(ctx, rec); err != nil {
				return err
			}
			cashRecord = rec
			logger.Info("Cash settlement recorded", "bookingID", b.ID, "commission", rec.CommissionAmount, "ownerShare", rec.OwnerShare)
			return nil
		},
		notices: func(b *domain.Booking) []notice {
			out := []notice{bookingStarted(b)}
			if cashRecord != nil {
				out = append(out, payoutNotice(b, cashRecord))
			}
			return out
		},
	})
}

func (e *Engine) TerminateBooking(ctx context.Context, actor Actor, bookingID string, opts ActionOptions) (*domain.Booking, error) {
	var settled bool
	return e.applyAction(ctx, actor, bookingID, lifecycleStep{
		action: domain.ActionTerminate,
		opts:   opts,
		apply: func(ctx context.Context, tx repository.Repositories, b *domain.Booking, now time.Time) error {
			var err error
			settled, err = hasSettlement(ctx, tx, b.ID)
			return err
		},
		notices: func(b *domain.Booking) []notice {
			out := []notice{bookingTerminated(b, opts.Reason)}
			if settled && b.PaymentMethod.IsOnline() {
				out = append(out, refundRequired(b, e.cfg.AdminRecipientID, "booking terminated after online payment"))
			}
			return out
		},
	})
}

func (e *Engine) CloseBooking(ctx context.Context, actor Actor, bookingID string, opts ActionOptions) (*domain.Booking, error) {
	return e.applyAction(ctx, actor, bookingID, lifecycleStep{
		action: domain.ActionClose,
		opts:   opts,
		notices: func(b *domain.Booking) []notice {
			return []notice{bookingCompleted(b)}
		},
	})
}

// CloseReturnedBookings completes ongoing bookings whose return date passed.
func (e *Engine) CloseReturnedBookings(ctx context.Context, limit int) (int, error) {
	due, err := e.store.Bookings().ListReturnDue(ctx, e.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list return-due bookings: %w", err)
	}

	closed := 0
	for _, b := range due {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		current := b.Status
		if _, err := e.CloseBooking(ctx, SystemActor(), b.ID, ActionOptions{ExpectedStatus: &current}); err != nil {
			logger.Error("Failed to close returned booking", "bookingID", b.ID, "error", err)
			continue
		}
		closed++
	}
	return closed, nil
}

func (e *Engine) GetSettlement(ctx context.Context, actor Actor, bookingID string) (*domain.SettlementRecord, error) {
	b, err := e.GetBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	return e.store.Settlements().GetByBookingID(ctx, b.ID)
}

func hasSettlement(ctx context.Context, repos repository.Repositories, bookingID string) (bool, error) {
	_, err := repos.Settlements().GetByBookingID(ctx, bookingID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	}
	return false, err
}
