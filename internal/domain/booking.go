package domain

import (
	"time"

	"gearlend-backend/internal/money"
)

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusBooked     BookingStatus = "booked"
	BookingStatusApproved   BookingStatus = "approved"
	BookingStatusOngoing    BookingStatus = "ongoing"
	BookingStatusRejected   BookingStatus = "rejected"
	BookingStatusCancelled  BookingStatus = "cancelled"
	BookingStatusTerminated BookingStatus = "terminated"
	BookingStatusCompleted  BookingStatus = "completed"
)

var bookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusBooked,
	BookingStatusApproved,
	BookingStatusOngoing,
	BookingStatusRejected,
	BookingStatusCancelled,
	BookingStatusTerminated,
	BookingStatusCompleted,
}

// AllBookingStatuses returns every status in lifecycle order.
func AllBookingStatuses() []BookingStatus {
	out := make([]BookingStatus, len(bookingStatuses))
	copy(out, bookingStatuses)
	return out
}

func (s BookingStatus) Valid() bool {
	for _, v := range bookingStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusRejected, BookingStatusCancelled, BookingStatusTerminated, BookingStatusCompleted:
		return true
	}
	return false
}

type RentalPeriodUnit string

const (
	RentalPeriodDay  RentalPeriodUnit = "day"
	RentalPeriodHour RentalPeriodUnit = "hour"
)

func (u RentalPeriodUnit) Valid() bool {
	return u == RentalPeriodDay || u == RentalPeriodHour
}

type PaymentMethod string

const (
	PaymentMethodGCash PaymentMethod = "gcash"
	PaymentMethodQRPh  PaymentMethod = "qrph"
	PaymentMethodCash  PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodGCash, PaymentMethodQRPh, PaymentMethodCash:
		return true
	}
	return false
}

// IsOnline reports whether the method is collected through the payment gateway.
func (m PaymentMethod) IsOnline() bool {
	return m == PaymentMethodGCash || m == PaymentMethodQRPh
}

type Booking struct {
	ID               string           `json:"id"`
	ItemID           string           `json:"item_id"`
	CustomerID       string           `json:"customer_id"`
	OwnerID          string           `json:"owner_id"`
	Category         string           `json:"category"`
	PricePerUnit     money.Amount     `json:"price_per_unit"`
	RentalDuration   int              `json:"rental_duration"`
	RentalPeriodUnit RentalPeriodUnit `json:"rental_period_unit"`
	DeliveryCharge   money.Amount     `json:"delivery_charge"`
	GrandTotal       money.Amount     `json:"grand_total"`
	PickupDate       time.Time        `json:"pickup_date"`
	ReturnDate       time.Time        `json:"return_date"`
	Status           BookingStatus    `json:"status"`
	PaymentMethod    PaymentMethod    `json:"payment_method,omitempty"`
	PaymentIntentID  *string          `json:"payment_intent_id,omitempty"`
	PaymentAttempt   int              `json:"payment_attempt"`
	ApprovedAt       *time.Time       `json:"approved_at,omitempty"`
	Version          int64            `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// ComputeGrandTotal returns PricePerUnit * RentalDuration + DeliveryCharge.
func ComputeGrandTotal(price money.Amount, duration int, delivery money.Amount) (money.Amount, error) {
	if price.IsNegative() || delivery.IsNegative() || duration <= 0 {
		return 0, money.ErrInvalidAmount
	}
	subtotal, err := price.Mul(int64(duration))
	if err != nil {
		return 0, err
	}
	return subtotal.Add(delivery)
}

// TermsEditable reports whether price, duration and delivery may still change.
func (b *Booking) TermsEditable() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusBooked
}

// IsParticipant reports whether userID is the customer or the owner.
func (b *Booking) IsParticipant(userID string) bool {
	return userID != "" && (userID == b.CustomerID || userID == b.OwnerID)
}

// RetryWindowElapsed reports whether the payment retry window that opened at
// approval has closed.
func (b *Booking) RetryWindowElapsed(now time.Time, window time.Duration) bool {
	if b.ApprovedAt == nil || window <= 0 {
		return false
	}
	return now.After(b.ApprovedAt.Add(window))
}
