package http

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Amounts travel as decimal peso strings ("1600.00") and are parsed with
// money.Parse.

type createBookingRequest struct {
	ItemID           string    `json:"item_id" validate:"required"`
	RentalDuration   int       `json:"rental_duration" validate:"required,min=1"`
	RentalPeriodUnit string    `json:"rental_period_unit" validate:"required,oneof=day hour"`
	DeliveryCharge   string    `json:"delivery_charge" validate:"omitempty,numeric"`
	PickupDate       time.Time `json:"pickup_date" validate:"required"`
	ReturnDate       time.Time `json:"return_date" validate:"required,gtfield=PickupDate"`
}

type updateTermsRequest struct {
	RentalDuration   *int       `json:"rental_duration" validate:"omitempty,min=1"`
	RentalPeriodUnit *string    `json:"rental_period_unit" validate:"omitempty,oneof=day hour"`
	DeliveryCharge   *string    `json:"delivery_charge" validate:"omitempty,numeric"`
	PickupDate       *time.Time `json:"pickup_date"`
	ReturnDate       *time.Time `json:"return_date"`
}

// actionRequest is the body shared by every lifecycle action. All fields are
// optional; ExpectedStatus enables replay detection.
type actionRequest struct {
	ExpectedStatus string `json:"expected_status" validate:"omitempty,oneof=pending booked approved ongoing rejected cancelled terminated completed"`
	Reason         string `json:"reason" validate:"max=500"`
}

type approveRequest struct {
	actionRequest
	PaymentMethod string `json:"payment_method" validate:"required,oneof=gcash qrph cash"`
}

type startRequest struct {
	actionRequest
	CashConfirmed bool `json:"cash_confirmed"`
}

type bookingResponse struct {
	ID               string     `json:"id"`
	ItemID           string     `json:"item_id"`
	CustomerID       string     `json:"customer_id"`
	OwnerID          string     `json:"owner_id"`
	Category         string     `json:"category"`
	PricePerUnit     string     `json:"price_per_unit"`
	RentalDuration   int        `json:"rental_duration"`
	RentalPeriodUnit string     `json:"rental_period_unit"`
	DeliveryCharge   string     `json:"delivery_charge"`
	GrandTotal       string     `json:"grand_total"`
	PickupDate       time.Time  `json:"pickup_date"`
	ReturnDate       time.Time  `json:"return_date"`
	Status           string     `json:"status"`
	PaymentMethod    string     `json:"payment_method,omitempty"`
	PaymentIntentID  string     `json:"payment_intent_id,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type paymentIntentResponse struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Provider    string `json:"provider"`
	Status      string `json:"status"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

type paymentResponse struct {
	Booking bookingResponse        `json:"booking"`
	Intent  *paymentIntentResponse `json:"payment_intent,omitempty"`
}

type settlementResponse struct {
	BookingID        string    `json:"booking_id"`
	PaymentIntentID  string    `json:"payment_intent_id,omitempty"`
	Method           string    `json:"method"`
	RentalAmount     string    `json:"rental_amount"`
	CommissionRate   string    `json:"commission_rate"`
	CommissionAmount string    `json:"commission_amount"`
	OwnerShare       string    `json:"owner_share"`
	SettledAt        time.Time `json:"settled_at"`
}

type notificationResponse struct {
	ID        string            `json:"id"`
	BookingID string            `json:"booking_id"`
	Kind      string            `json:"kind"`
	Channel   string            `json:"channel"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Status    string            `json:"status"`
	Attempts  int               `json:"attempts"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type listResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int32 `json:"total_count"`
	Page       int32 `json:"page"`
	PageSize   int32 `json:"page_size"`
}
