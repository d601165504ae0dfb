package domain

import (
	"time"

	"gearlend-backend/internal/money"
)

// SettlementRecord is written once per booking in the same unit of work as
// the transition that settles it. Rows are append-only.
type SettlementRecord struct {
	BookingID        string        `json:"booking_id"`
	PaymentIntentID  *string       `json:"payment_intent_id,omitempty"`
	Method           PaymentMethod `json:"method"`
	OwnerID          string        `json:"owner_id"`
	RentalAmount     money.Amount  `json:"rental_amount"`
	CommissionRate   money.Rate    `json:"commission_rate_bps"`
	CommissionAmount money.Amount  `json:"commission_amount"`
	OwnerShare       money.Amount  `json:"owner_share"`
	SettledAt        time.Time     `json:"settled_at"`
}

// NewSettlementRecord computes the commission split for a booking.
func NewSettlementRecord(b *Booking, intentID *string, rate money.Rate, at time.Time) (*SettlementRecord, error) {
	split, err := money.ComputeSettlement(b.GrandTotal, rate)
	if err != nil {
		return nil, err
	}
	return &SettlementRecord{
		BookingID:        b.ID,
		PaymentIntentID:  intentID,
		Method:           b.PaymentMethod,
		OwnerID:          b.OwnerID,
		RentalAmount:     split.Total,
		CommissionRate:   split.Rate,
		CommissionAmount: split.Commission,
		OwnerShare:       split.OwnerShare,
		SettledAt:        at,
	}, nil
}
