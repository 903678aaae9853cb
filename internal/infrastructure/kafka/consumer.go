package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader           messageReader
	topic            string
	notificationRepo repository.NotificationRepository
}

func NewConsumer(brokers []string, groupID string, notificationRepo repository.NotificationRepository) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    TopicNotifications,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		topic:            TopicNotifications,
		notificationRepo: notificationRepo,
	}
}

// Consume blocks until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Kafka consumer stopped", "topic", c.topic)
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.topic, "error", err)
			continue
		}

		slog.Info("Kafka message received", "topic", msg.Topic, "key", string(msg.Key))
		if err := c.handle(ctx, msg.Value); err != nil {
			// TODO: Send to dead-letter queue
			slog.Error("failed to handle notification event", "topic", msg.Topic, "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var event NotificationEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}

	createdAt, err := time.Parse(time.RFC3339, event.CreatedAt)
	if err != nil {
		slog.Warn("invalid created_at format, using now", "value", event.CreatedAt, "error", err)
		createdAt = time.Now().UTC()
	}

	n := &models.Notification{
		UserID:    event.UserID,
		Type:      event.Type,
		Message:   event.Message,
		CreatedAt: createdAt,
	}
	if err := c.notificationRepo.Create(ctx, n); err != nil {
		return err
	}
	slog.Info("notification stored", "user_id", n.UserID, "type", n.Type, "notification_id", n.ID)
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
