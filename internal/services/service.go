package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/agri-invest-service/internal/infrastructure/paystack"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/redis"
	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Notifier delivers a user notification. The Kafka publisher and
// StoreNotifier both satisfy it.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// StoreNotifier writes notifications straight to the database when no broker
// is configured.
type StoreNotifier struct {
	repo repository.NotificationRepository
}

func NewStoreNotifier(repo repository.NotificationRepository) *StoreNotifier {
	return &StoreNotifier{repo: repo}
}

func (n *StoreNotifier) Notify(ctx context.Context, note models.Notification) error {
	return n.repo.Create(ctx, &note)
}

// PaymentGateway is the subset of the Paystack API the services call.
type PaymentGateway interface {
	Initialize(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResult, error)
	Verify(ctx context.Context, reference string) (*paystack.VerifyResult, error)
	CreateRecipient(ctx context.Context, req paystack.RecipientRequest) (string, error)
	Transfer(ctx context.Context, req paystack.TransferRequest) (*paystack.TransferResult, error)
	Refund(ctx context.Context, reference string, amountKobo int64, reason string) error
}

// outbox collects notifications raised inside a unit of work so they are only
// sent once it commits.
type outbox []models.Notification

func (o *outbox) add(userID int64, typ models.NotificationType, message string) {
	*o = append(*o, models.Notification{UserID: userID, Type: typ, Message: message})
}

func (o outbox) flush(ctx context.Context, n Notifier) {
	if n == nil {
		return
	}
	for _, note := range o {
		if err := n.Notify(ctx, note); err != nil {
			slog.Error("failed to send notification", "user_id", note.UserID, "type", note.Type, "error", err)
		}
	}
}

func startSpan(ctx context.Context, component, method string) (context.Context, trace.Span) {
	return otel.Tracer(component).Start(ctx, method)
}

// fail marks the span failed and hands err back.
func fail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

const lockTTL = 30 * time.Second

// acquireLock takes a short Redis lock on key. The returned func releases it.
// Without a Redis client locking is a no-op.
func acquireLock(ctx context.Context, client redis.RedisClient, key, what string) (func(), error) {
	if client == nil {
		return func() {}, nil
	}
	ok, err := client.SetNX(ctx, key, "1", lockTTL)
	if err != nil {
		slog.Error("failed to take lock", "key", key, "error", err)
		return nil, fmt.Errorf("%w: lock unavailable", pkgerrors.ErrInternal)
	}
	if !ok {
		return nil, pkgerrors.Business(pkgerrors.ErrResourceLocked, "%s is already being processed", what)
	}
	return func() {
		if err := client.Del(context.WithoutCancel(ctx), key); err != nil {
			slog.Warn("failed to release lock", "key", key, "error", err)
		}
	}, nil
}
