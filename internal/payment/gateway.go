package payment

import (
	"context"
	"errors"
	"fmt"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/money"
)

var (
	// ErrGatewayUnavailable is a transient failure; the call may be retried.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayTimeout means the call did not complete in time. Retried with
	// the same idempotency key, then left to the status poll.
	ErrGatewayTimeout = errors.New("payment gateway timeout")
	// ErrGatewayRejected is terminal and surfaced to the user.
	ErrGatewayRejected = errors.New("payment gateway rejected request")
)

type Payer struct {
	Name  string
	Email string
	Phone string
}

type CreateIntentRequest struct {
	BookingID      string
	Amount         money.Amount
	Method         domain.PaymentMethod
	Payer          Payer
	Description    string
	IdempotencyKey string
}

// Gateway is the boundary to the external payment processor.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*domain.PaymentIntent, error)
	QueryStatus(ctx context.Context, intentID string) (domain.PaymentIntentStatus, error)
}

// IdempotencyKey derives the key for one payment attempt of a booking. Retries
// within an attempt reuse it so the gateway never creates a second intent.
func IdempotencyKey(bookingID string, attempt int) string {
	return fmt.Sprintf("%s:%d", bookingID, attempt)
}
