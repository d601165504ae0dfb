package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gearlend-backend/internal/domain"

	"github.com/IBM/sarama"
)

// EventChannel publishes notifications as events for the admin dashboard and
// the payout processor. Messages are keyed by booking so per-booking order holds.
type EventChannel struct {
	producer sarama.SyncProducer
	topic    string
}

func NewEventChannel(producer sarama.SyncProducer, topic string) *EventChannel {
	return &EventChannel{producer: producer, topic: topic}
}

// NewKafkaEventChannel connects an idempotent synchronous producer.
func NewKafkaEventChannel(brokers []string, topic, clientID string) (*EventChannel, error) {
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewEventChannel(producer, topic), nil
}

func (c *EventChannel) Name() domain.NotificationChannel {
	return domain.NotificationChannelEvent
}

type eventPayload struct {
	NotificationID string            `json:"notification_id"`
	Kind           string            `json:"kind"`
	BookingID      string            `json:"booking_id"`
	RecipientID    string            `json:"recipient_id"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

func (c *EventChannel) Send(ctx context.Context, n *domain.Notification) error {
	payload, err := json.Marshal(eventPayload{
		NotificationID: n.ID,
		Kind:           n.Kind,
		BookingID:      n.BookingID,
		RecipientID:    n.RecipientID,
		Title:          n.Title,
		Message:        n.Message,
		Attributes:     n.Attributes,
		OccurredAt:     n.CreatedAt,
	})
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: c.topic,
		Key:   sarama.StringEncoder(n.BookingID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(n.Kind)},
			{Key: []byte("notification_id"), Value: []byte(n.ID)},
		},
	}
	if _, _, err := c.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (c *EventChannel) Close() error {
	return c.producer.Close()
}
