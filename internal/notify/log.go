package notify

import (
	"context"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/logger"
)

// LogChannel writes notifications to the service log. Used in development.
type LogChannel struct{}

func (LogChannel) Name() domain.NotificationChannel {
	return domain.NotificationChannelLog
}

func (LogChannel) Send(ctx context.Context, n *domain.Notification) error {
	logger.InfoContext(ctx, "Notification", "recipientID", n.RecipientID, "kind", n.Kind, "bookingID", n.BookingID,
		"title", n.Title, "message", n.Message)
	return nil
}
