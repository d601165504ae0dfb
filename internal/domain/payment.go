package domain

import (
	"time"

	"gearlend-backend/internal/money"
)

type PaymentIntentStatus string

const (
	PaymentIntentPending   PaymentIntentStatus = "pending"
	PaymentIntentSucceeded PaymentIntentStatus = "succeeded"
	PaymentIntentFailed    PaymentIntentStatus = "failed"
	PaymentIntentExpired   PaymentIntentStatus = "expired"
)

func (s PaymentIntentStatus) IsTerminal() bool {
	return s == PaymentIntentSucceeded || s == PaymentIntentFailed || s == PaymentIntentExpired
}

// PaymentIntent is the local shadow of gateway state. The gateway stays
// authoritative for money movement.
type PaymentIntent struct {
	ID             string              `json:"id"`
	BookingID      string              `json:"booking_id"`
	Amount         money.Amount        `json:"amount"`
	Provider       PaymentMethod       `json:"provider"`
	Status         PaymentIntentStatus `json:"status"`
	CheckoutURL    string              `json:"checkout_url,omitempty"`
	IdempotencyKey string              `json:"idempotency_key"`
	LastError      string              `json:"last_error,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}
