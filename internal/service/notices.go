package service

import (
	"context"
	"fmt"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/repository"
)

// notice is one message to one recipient; it fans out to a notification row
// per enabled channel.
type notice struct {
	recipient string
	kind      string
	title     string
	message   string
	attrs     map[string]string
}

func (e *Engine) queue(ctx context.Context, tx repository.Repositories, b *domain.Booking, notices ...notice) ([]string, error) {
	channels := e.notifier.Channels()
	var ids []string
	for _, n := range notices {
		attrs := map[string]string{
			"booking_id": b.ID,
			"status":     string(b.Status),
		}
		for k, v := range n.attrs {
			attrs[k] = v
		}
		for _, ch := range channels {
			row := &domain.Notification{
				BookingID:   b.ID,
				RecipientID: n.recipient,
				Kind:        n.kind,
				Channel:     ch,
				Title:       n.title,
				Message:     n.message,
				Attributes:  attrs,
				Status:      domain.NotificationStatusIdle,
			}
			if err := tx.Notifications().Create(ctx, row); err != nil {
				return nil, fmt.Errorf("queue %s notification: %w", n.kind, err)
			}
			ids = append(ids, row.ID)
		}
	}
	return ids, nil
}

func bookingRequested(b *domain.Booking) notice {
	return notice{
		recipient: b.OwnerID,
		kind:      domain.NotificationKindBookingRequested,
		title:     "New booking request",
		message:   fmt.Sprintf("A customer requested your item for %d %s(s), total PHP %s.", b.RentalDuration, b.RentalPeriodUnit, b.GrandTotal),
		attrs:     map[string]string{"grand_total": b.GrandTotal.String()},
	}
}

func bookingCancelled(b *domain.Booking, reason string) notice {
	return notice{
		recipient: b.OwnerID,
		kind:      domain.NotificationKindBookingCancelled,
		title:     "Booking cancelled",
		message:   withReason("The customer cancelled the booking request.", reason),
	}
}

func bookingRejected(b *domain.Booking, reason string) notice {
	return notice{
		recipient: b.CustomerID,
		kind:      domain.NotificationKindBookingRejected,
		title:     "Booking rejected",
		message:   withReason("The owner declined your booking request.", reason),
	}
}

func bookingApproved(b *domain.Booking) notice {
	msg := "Your booking was approved. Pay in cash at pickup."
	if b.PaymentMethod.IsOnline() {
		msg = fmt.Sprintf("Your booking was approved. Complete your %s payment of PHP %s to confirm it.", b.PaymentMethod, b.GrandTotal)
	}
	return notice{
		recipient: b.CustomerID,
		kind:      domain.NotificationKindBookingApproved,
		title:     "Booking approved",
		message:   msg,
		attrs:     map[string]string{"payment_method": string(b.PaymentMethod)},
	}
}

func paymentRequired(b *domain.Booking, intent *domain.PaymentIntent) notice {
	return notice{
		recipient: b.CustomerID,
		kind:      domain.NotificationKindPaymentRequired,
		title:     "Payment required",
		message:   fmt.Sprintf("Pay PHP %s to confirm your booking.", intent.Amount),
		attrs: map[string]string{
			"payment_intent_id": intent.ID,
			"checkout_url":      intent.CheckoutURL,
		},
	}
}

func paymentFailed(b *domain.Booking, status domain.PaymentIntentStatus, reason string) notice {
	return notice{
		recipient: b.CustomerID,
		kind:      domain.NotificationKindPaymentFailed,
		title:     "Payment not completed",
		message:   withReason(fmt.Sprintf("Your payment %s. You can retry from the booking page.", status), reason),
		attrs:     map[string]string{"intent_status": string(status)},
	}
}

func bookingStarted(b *domain.Booking) notice {
	return notice{
		recipient: b.CustomerID,
		kind:      domain.NotificationKindBookingStarted,
		title:     "Rental started",
		message:   fmt.Sprintf("Your rental is ongoing. Please return the item by %s.", b.ReturnDate.Format("2006-01-02 15:04")),
	}
}

func payoutNotice(b *domain.Booking, rec *domain.SettlementRecord) notice {
	msg := fmt.Sprintf("Payment of PHP %s received. Your payout is PHP %s after PHP %s commission.",
		rec.RentalAmount, rec.OwnerShare, rec.CommissionAmount)
	if rec.Method == domain.PaymentMethodCash {
		msg = fmt.Sprintf("You collected PHP %s in cash. PHP %s commission is due to the platform.",
			rec.RentalAmount, rec.CommissionAmount)
	}
	return notice{
		recipient: b.OwnerID,
		kind:      domain.NotificationKindPayoutNotice,
		title:     "Payout notice",
		message:   msg,
		attrs: map[string]string{
			"rental_amount":     rec.RentalAmount.String(),
			"commission_amount": rec.CommissionAmount.String(),
			"commission_rate":   rec.CommissionRate.String(),
			"owner_share":       rec.OwnerShare.String(),
			"method":            string(rec.Method),
		},
	}
}

func bookingTerminated(b *domain.Booking, reason string) notice {
	return notice{
		recipient: b.CustomerID,
		kind:      domain.NotificationKindBookingTerminated,
		title:     "Booking terminated",
		message:   withReason("Your booking was terminated.", reason),
	}
}

func bookingCompleted(b *domain.Booking) notice {
	return notice{
		recipient: b.CustomerID,
		kind:      domain.NotificationKindBookingCompleted,
		title:     "Rental completed",
		message:   "Thanks for renting on Gearlend. Your booking is complete.",
	}
}

func refundRequired(b *domain.Booking, adminID, reason string) notice {
	return notice{
		recipient: adminID,
		kind:      domain.NotificationKindRefundRequired,
		title:     "Refund review required",
		message:   fmt.Sprintf("Booking %s (%s) needs a refund review: %s.", b.ID, b.Status, reason),
		attrs:     map[string]string{"grand_total": b.GrandTotal.String(), "reason": reason},
	}
}

func withReason(msg, reason string) string {
	if reason == "" {
		return msg
	}
	return msg + " Reason: " + reason
}

type notificationService struct {
	noteRepo repository.NotificationRepository
	retrier  interface {
		RetryDue(ctx context.Context, limit int) (int, error)
	}
}

// NewNotificationService serves the notification status listing and the
// retry sweep. retrier is normally the *notify.Dispatcher.
func NewNotificationService(noteRepo repository.NotificationRepository, retrier interface {
	RetryDue(ctx context.Context, limit int) (int, error)
}) NotificationService {
	return &notificationService{noteRepo: noteRepo, retrier: retrier}
}

func (s *notificationService) ListNotifications(ctx context.Context, userID string, page, pageSize int32) ([]domain.Notification, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	return s.noteRepo.ListByRecipient(ctx, userID, pageSize, offset)
}

func (s *notificationService) RetryNotifications(ctx context.Context, limit int) (int, error) {
	return s.retrier.RetryDue(ctx, limit)
}
