package kafka

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository/memory"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader replays queued results and cancels the consumer once drained.
type fakeReader struct {
	mu      sync.Mutex
	results []readResult
	cancel  context.CancelFunc
	closed  bool
}

type readResult struct {
	msg kafka.Message
	err error
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		f.cancel()
		return kafka.Message{}, ctx.Err()
	}
	next := f.results[0]
	f.results = f.results[1:]
	return next.msg, next.err
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func message(value string) readResult {
	return readResult{msg: kafka.Message{Topic: TopicNotifications, Key: []byte("7"), Value: []byte(value)}}
}

type capturingProducer struct {
	topic string
	key   int64
	value []byte
}

func (p *capturingProducer) Send(_ context.Context, topic string, key int64, value []byte) error {
	p.topic, p.key, p.value = topic, key, value
	return nil
}

func (p *capturingProducer) Close() error { return nil }

func runConsumer(t *testing.T, results ...readResult) ([]models.Notification, *fakeReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewStore()
	reader := &fakeReader{results: results, cancel: cancel}
	c := &Consumer{reader: reader, topic: TopicNotifications, notificationRepo: store.Notifications()}

	done := make(chan struct{})
	go func() {
		c.Consume(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop after the context was cancelled")
	}
	require.NoError(t, c.Close())

	stored, err := store.Notifications().ListByUser(context.Background(), 7, false)
	require.NoError(t, err)
	sort.Slice(stored, func(i, j int) bool { return stored[i].ID < stored[j].ID })
	return stored, reader
}

func TestConsumer_StoresNotifications(t *testing.T) {
	stored, reader := runConsumer(t,
		message(`{"user_id":7,"notification_type":"investment","message":"Your investment is active.","created_at":"2026-05-01T09:30:00Z"}`),
		message(`{"user_id":7,"notification_type":"withdrawal","message":"Your withdrawal was approved."}`),
	)

	require.Len(t, stored, 2)
	assert.Equal(t, models.NotificationInvestment, stored[0].Type)
	assert.Equal(t, "Your investment is active.", stored[0].Message)
	assert.True(t, time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC).Equal(stored[0].CreatedAt))
	assert.False(t, stored[0].IsRead)

	assert.Equal(t, models.NotificationWithdrawal, stored[1].Type)
	assert.False(t, stored[1].CreatedAt.IsZero(), "a missing created_at falls back to now")
	assert.True(t, reader.closed)
}

func TestConsumer_SkipsBadMessagesAndReadErrors(t *testing.T) {
	stored, _ := runConsumer(t,
		message(`{not json`),
		readResult{err: errors.New("broker connection reset")},
		message(`{"user_id":7,"notification_type":"order","message":"Order shipped.","created_at":"yesterday"}`),
	)

	require.Len(t, stored, 1)
	assert.Equal(t, "Order shipped.", stored[0].Message)
	assert.WithinDuration(t, time.Now(), stored[0].CreatedAt, time.Minute)
}

func TestNotificationPublisher_RoundTripsThroughConsumer(t *testing.T) {
	producer := &capturingProducer{}
	publisher := NewNotificationPublisher(producer)
	createdAt := time.Date(2026, 6, 2, 8, 0, 0, 0, time.UTC)

	require.NoError(t, publisher.Notify(context.Background(), models.Notification{
		UserID:    7,
		Type:      models.NotificationStorage,
		Message:   "20 bags of maize are now in storage.",
		CreatedAt: createdAt,
	}))
	assert.Equal(t, TopicNotifications, producer.topic)
	assert.EqualValues(t, 7, producer.key)
	assert.JSONEq(t, `{"user_id":7,"notification_type":"storage","message":"20 bags of maize are now in storage.","created_at":"2026-06-02T08:00:00Z"}`, string(producer.value))

	stored, _ := runConsumer(t, message(string(producer.value)))
	require.Len(t, stored, 1)
	assert.Equal(t, models.NotificationStorage, stored[0].Type)
	assert.True(t, createdAt.Equal(stored[0].CreatedAt))
}
