package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

func TestNewClient_DisabledIsNoop(t *testing.T) {
	var cfg config.Config
	cfg.Messaging.Kafka.Topic = "orders"

	client, err := NewClient(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "orders", client.Topic())
	assert.NoError(t, client.Publish(context.Background(), []byte("o-1"), []byte("{}"), map[string]string{"event-type": "order.created"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, client.Consume(ctx, nil), context.Canceled)
}

func TestNewClient_UnsupportedDriver(t *testing.T) {
	var cfg config.Config
	cfg.Messaging.Enabled = true
	cfg.Messaging.Driver = "nats"

	_, err := NewClient(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestFromKafka(t *testing.T) {
	at := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	key := []byte("o-1")
	msg := kafka.Message{
		Topic:   "orders",
		Key:     key,
		Value:   []byte(`{"type":"order.created"}`),
		Offset:  42,
		Time:    at,
		Headers: []kafka.Header{{Key: "event-type", Value: []byte("order.created")}},
	}

	got := fromKafka(msg)
	assert.Equal(t, "orders", got.Topic)
	assert.Equal(t, int64(42), got.Offset)
	assert.Equal(t, at, got.Time)
	assert.Equal(t, map[string]string{"event-type": "order.created"}, got.Headers)

	key[0] = 'x'
	assert.Equal(t, []byte("o-1"), got.Key, "key must be copied")

	assert.Nil(t, fromKafka(kafka.Message{Topic: "orders"}).Headers)
}

func withTraceContext(t *testing.T) {
	t.Helper()
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })
}

func TestToKafka_InjectsTraceContext(t *testing.T) {
	withTraceContext(t)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
		SpanID:     trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	msg := toKafka(ctx, []byte("o-1"), []byte("{}"), map[string]string{"event-type": "order.status_changed"})
	got := fromKafka(msg)

	assert.Equal(t, "order.status_changed", got.Headers["event-type"])
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", got.Headers["traceparent"])
}

func TestDeliver_ContinuesPublisherTrace(t *testing.T) {
	withTraceContext(t)
	m := Message{Topic: "orders", Headers: map[string]string{
		"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	}}

	var seen trace.SpanContext
	err := deliver(context.Background(), func(ctx context.Context, _ Message) error {
		seen = trace.SpanContextFromContext(ctx)
		return nil
	}, m, 3, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", seen.TraceID().String())
}

func TestDeliver_RetriesThenGivesUp(t *testing.T) {
	calls := 0
	err := deliver(context.Background(), func(context.Context, Message) error {
		calls++
		if calls < 2 {
			return errors.New("database busy")
		}
		return nil
	}, Message{Topic: "orders"}, 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = deliver(context.Background(), func(context.Context, Message) error {
		calls++
		return errors.New("malformed event")
	}, Message{Topic: "orders"}, 3, time.Millisecond)
	assert.EqualError(t, err, "malformed event")
	assert.Equal(t, 3, calls)
}

func TestDeliver_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := deliver(ctx, func(context.Context, Message) error {
		calls++
		cancel()
		return errors.New("database busy")
	}, Message{Topic: "orders"}, 3, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
