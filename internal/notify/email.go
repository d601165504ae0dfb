package notify

import (
	"context"
	"fmt"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/repository"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// mailSender is the part of *sendgrid.Client the email channel uses.
type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type EmailChannel struct {
	client    mailSender
	users     repository.UserRepository
	fromEmail string
	fromName  string
}

func NewEmailChannel(client mailSender, users repository.UserRepository, fromEmail, fromName string) *EmailChannel {
	return &EmailChannel{client: client, users: users, fromEmail: fromEmail, fromName: fromName}
}

// NewSendGridEmailChannel builds an email channel backed by the SendGrid v3 API.
func NewSendGridEmailChannel(apiKey string, users repository.UserRepository, fromEmail, fromName string) *EmailChannel {
	return NewEmailChannel(sendgrid.NewSendClient(apiKey), users, fromEmail, fromName)
}

func (c *EmailChannel) Name() domain.NotificationChannel {
	return domain.NotificationChannelEmail
}

func (c *EmailChannel) Send(ctx context.Context, n *domain.Notification) error {
	user, err := c.users.GetByID(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	if user.Email == "" {
		return fmt.Errorf("recipient %s has no email address", n.RecipientID)
	}

	from := mail.NewEmail(c.fromName, c.fromEmail)
	to := mail.NewEmail(user.Name, user.Email)
	body := fmt.Sprintf("Hello %s,\n\n%s\n\nBest regards,\nThe Gearlend Team", user.Name, n.Message)
	msg := mail.NewSingleEmail(from, n.Title, to, body, "")

	resp, err := c.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
