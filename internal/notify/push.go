package notify

import (
	"context"
	"fmt"

	"gearlend-backend/internal/domain"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// pushSender is the part of *messaging.Client the push channel uses.
type pushSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushChannel publishes to the per-user FCM topic the mobile app subscribes to.
type PushChannel struct {
	client pushSender
}

func NewPushChannel(client pushSender) *PushChannel {
	return &PushChannel{client: client}
}

// NewFirebasePushChannel initialises a Firebase app from a service account file.
func NewFirebasePushChannel(ctx context.Context, credentialsFile string) (*PushChannel, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging client: %w", err)
	}
	return NewPushChannel(client), nil
}

func (c *PushChannel) Name() domain.NotificationChannel {
	return domain.NotificationChannelPush
}

func UserTopic(userID string) string {
	return "user-" + userID
}

func (c *PushChannel) Send(ctx context.Context, n *domain.Notification) error {
	data := make(map[string]string, len(n.Attributes)+2)
	for k, v := range n.Attributes {
		data[k] = v
	}
	data["kind"] = n.Kind
	data["booking_id"] = n.BookingID

	_, err := c.client.Send(ctx, &messaging.Message{
		Topic: UserTopic(n.RecipientID),
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}
