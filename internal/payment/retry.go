package payment

import (
	"context"
	"time"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/logger"

	"github.com/eapache/go-resiliency/retrier"
)

// RetryingGateway retries transient gateway failures with exponential backoff.
// Every attempt gets its own timeout, separate from the backoff schedule.
type RetryingGateway struct {
	next        Gateway
	retrier     *retrier.Retrier
	callTimeout time.Duration
}

// NewRetryingGateway wraps next so each call is attempted up to attempts times,
// waiting baseDelay, 2*baseDelay, ... between tries.
func NewRetryingGateway(next Gateway, attempts int, baseDelay, callTimeout time.Duration) *RetryingGateway {
	if attempts < 1 {
		attempts = 1
	}
	classifier := retrier.WhitelistClassifier{ErrGatewayUnavailable, ErrGatewayTimeout}
	return &RetryingGateway{
		next:        next,
		retrier:     retrier.New(retrier.ExponentialBackoff(attempts-1, baseDelay), classifier),
		callTimeout: callTimeout,
	}
}

func (g *RetryingGateway) CreateIntent(ctx context.Context, req CreateIntentRequest) (*domain.PaymentIntent, error) {
	var intent *domain.PaymentIntent
	attempt := 0
	err := g.retrier.RunCtx(ctx, func(ctx context.Context) error {
		attempt++
		callCtx, cancel := g.withTimeout(ctx)
		defer cancel()

		pi, err := g.next.CreateIntent(callCtx, req)
		if err != nil {
			logger.Warn("Payment gateway CreateIntent attempt failed", "bookingID", req.BookingID,
				"idempotencyKey", req.IdempotencyKey, "attempt", attempt, "error", err)
			return err
		}
		intent = pi
		return nil
	})
	return intent, err
}

func (g *RetryingGateway) QueryStatus(ctx context.Context, intentID string) (domain.PaymentIntentStatus, error) {
	var status domain.PaymentIntentStatus
	attempt := 0
	err := g.retrier.RunCtx(ctx, func(ctx context.Context) error {
		attempt++
		callCtx, cancel := g.withTimeout(ctx)
		defer cancel()

		s, err := g.next.QueryStatus(callCtx, intentID)
		if err != nil {
			logger.Warn("Payment gateway QueryStatus attempt failed", "intentID", intentID, "attempt", attempt, "error", err)
			return err
		}
		status = s
		return nil
	})
	return status, err
}

func (g *RetryingGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.callTimeout)
}
