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

// openIntent creates a gateway intent for the booking's current payment
// attempt and attaches it under the booking lock. The gateway call runs
// outside any unit of work.
func (e *Engine) openIntent(ctx context.Context, b *domain.Booking) (*domain.Booking, *domain.PaymentIntent, error) {
	req := payment.CreateIntentRequest{
		BookingID:      b.ID,
		Amount:         b.GrandTotal,
		Method:         b.PaymentMethod,
		Payer:          e.payerFor(ctx, b.CustomerID),
		Description:    fmt.Sprintf("Gearlend booking %s", b.ID),
		IdempotencyKey: payment.IdempotencyKey(b.ID, b.PaymentAttempt),
	}
	intent, err := e.gateway.CreateIntent(ctx, req)
	if err != nil {
		logger.Error("Payment initiation failed", "bookingID", b.ID, "attempt", b.PaymentAttempt, "error", err)
		return b, nil, fmt.Errorf("%w: %v", domain.ErrPaymentInitiationFailed, err)
	}
	intent.BookingID = b.ID
	if intent.IdempotencyKey == "" {
		intent.IdempotencyKey = req.IdempotencyKey
	}

	var result *domain.Booking
	var attached *domain.PaymentIntent
	err = e.commit(ctx, "attach_intent", func(tx repository.Repositories, fx *txEffects) error {
		cur, err := tx.Bookings().GetForUpdate(ctx, b.ID)
		if err != nil {
			return err
		}
		if err := tx.PaymentIntents().Create(ctx, intent); err != nil {
			return err
		}
		result, attached = cur, intent

		switch {
		case cur.Status != domain.BookingStatusApproved:
			logger.Warn("Booking moved on before its intent was attached", "bookingID", cur.ID, "status", cur.Status, "intentID", intent.ID)
			return nil
		case cur.PaymentIntentID != nil:
			// an open intent is never replaced
			if *cur.PaymentIntentID != intent.ID {
				open, err := tx.PaymentIntents().GetByID(ctx, *cur.PaymentIntentID)
				if err != nil {
					return err
				}
				attached = open
			}
			return nil
		case cur.PaymentAttempt != b.PaymentAttempt:
			logger.Warn("Stale payment attempt not attached", "bookingID", cur.ID, "attempt", b.PaymentAttempt, "current", cur.PaymentAttempt)
			return nil
		}

		cur.PaymentIntentID = &intent.ID
		if err := tx.Bookings().Update(ctx, cur); err != nil {
			return err
		}
		ids, err := e.queue(ctx, tx, cur, paymentRequired(cur, intent))
		if err != nil {
			return err
		}
		fx.notes = append(fx.notes, ids...)
		logger.Info("Payment intent attached", "bookingID", cur.ID, "intentID", intent.ID, "attempt", cur.PaymentAttempt)
		return nil
	})
	if err != nil {
		return b, nil, err
	}
	return result, attached, nil
}

func (e *Engine) payerFor(ctx context.Context, userID string) payment.Payer {
	u, err := e.store.Users().GetByID(ctx, userID)
	if err != nil {
		logger.Debug("Payer details unavailable", "userID", userID, "error", err)
		return payment.Payer{}
	}
	return payment.Payer{Name: u.Name, Email: u.Email, Phone: u.PhoneNumber}
}

// InitiatePayment returns the booking's open intent or starts a new payment
// attempt when the previous one failed or expired.
func (e *Engine) InitiatePayment(ctx context.Context, actor Actor, bookingID string) (*domain.Booking, *domain.PaymentIntent, error) {
	logger.EnterMethod("Engine.InitiatePayment", "bookingID", bookingID, "actorID", actor.ID)

	var b *domain.Booking
	var open *domain.PaymentIntent
	err := e.commit(ctx, "initiate_payment", func(tx repository.Repositories, fx *txEffects) error {
		cur, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if _, err := roleFor(cur, actor); err != nil {
			return err
		}
		if cur.Status != domain.BookingStatusApproved {
			return fmt.Errorf("%w: booking is %s, not awaiting payment", domain.ErrPreconditionFailed, cur.Status)
		}
		if !cur.PaymentMethod.IsOnline() {
			return domain.ErrPaymentNotRequired
		}
		b = cur
		if cur.PaymentIntentID == nil {
			return nil
		}

		intent, err := tx.PaymentIntents().GetByID(ctx, *cur.PaymentIntentID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if err == nil {
			switch intent.Status {
			case domain.PaymentIntentPending:
				open = intent
				return nil
			case domain.PaymentIntentSucceeded:
				return fmt.Errorf("%w: payment already received, settlement pending", domain.ErrPreconditionFailed)
			}
		}
		cur.PaymentIntentID = nil
		cur.PaymentAttempt++
		return tx.Bookings().Update(ctx, cur)
	})
	if err != nil {
		logger.ExitMethodWithError("Engine.InitiatePayment", err, "bookingID", bookingID)
		return nil, nil, err
	}
	if open != nil {
		logger.ExitMethod("Engine.InitiatePayment", "bookingID", bookingID, "intentID", open.ID, "reused", true)
		return b, open, nil
	}

	updated, intent, err := e.openIntent(ctx, b)
	if err != nil {
		logger.ExitMethodWithError("Engine.InitiatePayment", err, "bookingID", bookingID)
		return updated, nil, err
	}
	logger.ExitMethod("Engine.InitiatePayment", "bookingID", bookingID, "intentID", intent.ID)
	return updated, intent, nil
}

// HandlePaymentWebhook verifies and applies one gateway event. Events for
// unknown intents and event types reconciliation does not act on are
// acknowledged without effect.
func (e *Engine) HandlePaymentWebhook(ctx context.Context, raw []byte, signature string) error {
	if err := payment.VerifySignature(raw, signature, e.cfg.WebhookSecret, e.cfg.WebhookTolerance, e.now()); err != nil {
		logger.Warn("Rejected payment webhook", "error", err)
		return err
	}
	ev, err := payment.ParseEvent(raw)
	if err != nil {
		return err
	}
	status, ok := ev.Outcome()
	if !ok {
		logger.Info("Ignoring payment webhook", "eventID", ev.ID, "type", ev.Type)
		return nil
	}
	logger.Info("Payment webhook received", "eventID", ev.ID, "type", ev.Type, "intentID", ev.PaymentIntentID, "liveMode", ev.LiveMode)

	_, err = e.reconcileIntent(ctx, ev.PaymentIntentID, status, ev.FailureMessage, ev.Amount)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("Payment webhook for unknown intent", "eventID", ev.ID, "intentID", ev.PaymentIntentID)
		return nil
	}
	return err
}

// RefreshPaymentStatus polls the gateway for the booking's open intent and
// applies a terminal answer.
func (e *Engine) RefreshPaymentStatus(ctx context.Context, actor Actor, bookingID string) (*domain.Booking, error) {
	b, err := e.GetBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if b.PaymentIntentID == nil {
		return b, nil
	}
	status, err := e.gateway.QueryStatus(ctx, *b.PaymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("query payment status: %w", err)
	}
	if status == domain.PaymentIntentPending {
		return b, nil
	}
	return e.reconcileIntent(ctx, *b.PaymentIntentID, status, "", 0)
}

// PollPendingIntents asks the gateway about intents still pending after
// olderThan, covering delayed or lost webhooks.
func (e *Engine) PollPendingIntents(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	pending, err := e.store.PaymentIntents().ListPending(ctx, e.now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("list pending intents: %w", err)
	}

	resolved := 0
	for _, pi := range pending {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		status, err := e.gateway.QueryStatus(ctx, pi.ID)
		if err != nil {
			logger.Warn("Payment status poll failed", "intentID", pi.ID, "error", err)
			continue
		}
		if status == domain.PaymentIntentPending {
			continue
		}
		if _, err := e.reconcileIntent(ctx, pi.ID, status, "reported by status poll", 0); err != nil {
			logger.Error("Failed to reconcile polled intent", "intentID", pi.ID, "status", status, "error", err)
			continue
		}
		resolved++
	}
	return resolved, nil
}

// ExpireStaleIntents closes intents pending longer than the intent expiry.
// A final poll still wins when the gateway reports a terminal status.
func (e *Engine) ExpireStaleIntents(ctx context.Context, limit int) (int, error) {
	stale, err := e.store.PaymentIntents().ListPending(ctx, e.now().Add(-e.cfg.IntentExpiry), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale intents: %w", err)
	}

	expired := 0
	for _, pi := range stale {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		status, reason := domain.PaymentIntentExpired, "no payment within "+e.cfg.IntentExpiry.String()
		if polled, err := e.gateway.QueryStatus(ctx, pi.ID); err == nil && polled.IsTerminal() {
			status, reason = polled, "reported by status poll"
		} else if err != nil {
			logger.Warn("Final status poll failed, expiring intent", "intentID", pi.ID, "error", err)
		}
		if _, err := e.reconcileIntent(ctx, pi.ID, status, reason, 0); err != nil {
			logger.Error("Failed to expire intent", "intentID", pi.ID, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// reconcileIntent applies a terminal gateway outcome to the intent and its
// booking in one unit of work. Replays are no-ops.
func (e *Engine) reconcileIntent(ctx context.Context, intentID string, status domain.PaymentIntentStatus, reason string, reported money.Amount) (*domain.Booking, error) {
	intent, err := e.store.PaymentIntents().GetByID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if reported != 0 && reported != intent.Amount {
		logger.Warn("Gateway amount differs from intent", "intentID", intentID, "intentAmount", intent.Amount, "reported", reported)
	}

	var result *domain.Booking
	err = e.commit(ctx, "reconcile_"+string(status), func(tx repository.Repositories, fx *txEffects) error {
		b, err := tx.Bookings().GetForUpdate(ctx, intent.BookingID)
		if err != nil {
			return err
		}
		cur, err := tx.PaymentIntents().GetByID(ctx, intentID)
		if err != nil {
			return err
		}
		result = b

		var notices []notice
		if status == domain.PaymentIntentSucceeded {
			notices, err = e.settlePaid(ctx, tx, b, cur)
		} else {
			notices, err = e.closeIntent(ctx, tx, b, cur, status, reason)
		}
		if err != nil {
			return err
		}
		ids, err := e.queue(ctx, tx, b, notices...)
		if err != nil {
			return err
		}
		fx.notes = append(fx.notes, ids...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// settlePaid records the settlement and moves the booking to ongoing. A paid
// intent is authoritative even when it was closed locally.
func (e *Engine) settlePaid(ctx context.Context, tx repository.Repositories, b *domain.Booking, intent *domain.PaymentIntent) ([]notice, error) {
	replay := intent.Status == domain.PaymentIntentSucceeded
	if !replay {
		if intent.Status.IsTerminal() {
			logger.Warn("Gateway reported paid for a locally closed intent", "intentID", intent.ID, "localStatus", intent.Status)
		}
		if err := tx.PaymentIntents().UpdateStatus(ctx, intent.ID, domain.PaymentIntentSucceeded, ""); err != nil {
			return nil, err
		}
	}

	existing, err := tx.Settlements().GetByBookingID(ctx, b.ID)
	switch {
	case err == nil:
		if existing.PaymentIntentID != nil && *existing.PaymentIntentID == intent.ID {
			logger.Info("Duplicate paid event ignored", "bookingID", b.ID, "intentID", intent.ID)
			return nil, nil
		}
		if replay {
			return nil, nil
		}
		logger.Warn("Second payment for a settled booking", "bookingID", b.ID, "intentID", intent.ID)
		return []notice{refundRequired(b, e.cfg.AdminRecipientID, "booking already settled by another payment")}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	if b.Status != domain.BookingStatusApproved {
		if replay {
			return nil, nil
		}
		logger.Warn("Payment received for a booking no longer awaiting payment", "bookingID", b.ID, "status", b.Status, "intentID", intent.ID)
		return []notice{refundRequired(b, e.cfg.AdminRecipientID, fmt.Sprintf("payment %s received while booking was %s", intent.ID, b.Status))}, nil
	}

	next, err := domain.Transition(b.Status, domain.ActionSettle, domain.RoleSystem)
	if err != nil {
		return nil, err
	}
	now := e.now()
	intentID := intent.ID
	switch {
	case b.PaymentIntentID == nil:
		b.PaymentIntentID = &intentID
	case *b.PaymentIntentID != intentID:
		// The booking keeps its current intent; the settlement names the payer.
		logger.Info("Settling with a superseded intent", "bookingID", b.ID, "intentID", intentID,
			"currentIntentID", *b.PaymentIntentID)
	}
	rec, err := domain.NewSettlementRecord(b, &intentID, e.rates.For(b.Category), now)
	if err != nil {
		return nil, err
	}
	if err := tx.Settlements().Create(ctx, rec); err != nil {
		return nil, err
	}
	if err := domain.CheckGuard(b, domain.ActionSettle, domain.RoleSystem, domain.GuardFacts{Settled: true, Now: now}); err != nil {
		return nil, err
	}
	b.Status = next
	if err := tx.Bookings().Update(ctx, b); err != nil {
		return nil, err
	}
	logger.Info("Booking settled", "bookingID", b.ID, "intentID", intentID, "total", rec.RentalAmount,
		"commission", rec.CommissionAmount, "ownerShare", rec.OwnerShare)

	return []notice{bookingStarted(b), payoutNotice(b, rec)}, nil
}

// closeIntent records a failed or expired intent. The booking stays approved
// for another attempt, or lapses to rejected once the retry window closed.
func (e *Engine) closeIntent(ctx context.Context, tx repository.Repositories, b *domain.Booking, intent *domain.PaymentIntent, status domain.PaymentIntentStatus, reason string) ([]notice, error) {
	if intent.Status.IsTerminal() {
		if intent.Status == domain.PaymentIntentSucceeded {
			logger.Warn("Ignoring failure reported after success", "intentID", intent.ID, "reported", status)
		}
		return nil, nil
	}
	if err := tx.PaymentIntents().UpdateStatus(ctx, intent.ID, status, reason); err != nil {
		return nil, err
	}
	if b.Status != domain.BookingStatusApproved || b.PaymentIntentID == nil || *b.PaymentIntentID != intent.ID {
		return nil, nil
	}

	b.PaymentIntentID = nil
	b.PaymentAttempt++
	notices := []notice{paymentFailed(b, status, reason)}

	if b.RetryWindowElapsed(e.now(), e.cfg.PaymentRetryWindow) {
		next, err := domain.Transition(b.Status, domain.ActionLapse, domain.RoleSystem)
		if err != nil {
			return nil, err
		}
		b.Status = next
		lapsed := bookingRejected(b, "payment was not completed in time")
		toOwner := lapsed
		toOwner.recipient = b.OwnerID
		notices = []notice{lapsed, toOwner}
		logger.Info("Booking lapsed after failed payment", "bookingID", b.ID, "intentStatus", status)
	}

	if err := tx.Bookings().Update(ctx, b); err != nil {
		return nil, err
	}
	return notices, nil
}
