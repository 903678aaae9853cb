package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/honeynil/agri-invest-service/internal/models"
)

// NotificationEvent is the wire shape of the notifications topic.
type NotificationEvent struct {
	UserID    int64                   `json:"user_id"`
	Type      models.NotificationType `json:"notification_type"`
	Message   string                  `json:"message"`
	CreatedAt string                  `json:"created_at"`
}

// NotificationPublisher sends user notifications through Kafka; the consumer
// persists them.
type NotificationPublisher struct {
	producer KafkaProducer
}

func NewNotificationPublisher(producer KafkaProducer) *NotificationPublisher {
	return &NotificationPublisher{producer: producer}
}

func (p *NotificationPublisher) Notify(ctx context.Context, n models.Notification) error {
	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	event := NotificationEvent{
		UserID:    n.UserID,
		Type:      n.Type,
		Message:   n.Message,
		CreatedAt: createdAt.Format(time.RFC3339),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}
	return p.producer.Send(ctx, TopicNotifications, n.UserID, value)
}
