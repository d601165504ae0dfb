package domain

import "time"

type NotificationStatus string

const (
	NotificationStatusIdle    NotificationStatus = "idle"
	NotificationStatusSending NotificationStatus = "sending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

type NotificationChannel string

const (
	NotificationChannelEmail NotificationChannel = "email"
	NotificationChannelPush  NotificationChannel = "push"
	NotificationChannelEvent NotificationChannel = "event"
	NotificationChannelLog   NotificationChannel = "log"
)

const (
	NotificationKindBookingRequested  = "booking.requested"
	NotificationKindBookingApproved   = "booking.approved"
	NotificationKindBookingRejected   = "booking.rejected"
	NotificationKindBookingCancelled  = "booking.cancelled"
	NotificationKindBookingStarted    = "booking.started"
	NotificationKindBookingTerminated = "booking.terminated"
	NotificationKindBookingCompleted  = "booking.completed"
	NotificationKindPaymentRequired   = "payment.required"
	NotificationKindPaymentFailed     = "payment.failed"
	NotificationKindPayoutNotice      = "payout.notice"
	NotificationKindRefundRequired    = "refund.required"
)

type Notification struct {
	ID            string              `json:"id"`
	BookingID     string              `json:"booking_id"`
	RecipientID   string              `json:"recipient_id"`
	Kind          string              `json:"kind"`
	Channel       NotificationChannel `json:"channel"`
	Title         string              `json:"title"`
	Message       string              `json:"message"`
	Attributes    map[string]string   `json:"attributes"`
	Status        NotificationStatus  `json:"status"`
	Attempts      int                 `json:"attempts"`
	LastError     string              `json:"last_error,omitempty"`
	NextAttemptAt *time.Time          `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}
