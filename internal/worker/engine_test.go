package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/messaging"
)

// replayClient delivers its messages once, then blocks until cancelled.
type replayClient struct {
	mu       sync.Mutex
	messages []messaging.Message
}

func (c *replayClient) Publish(context.Context, []byte, []byte, map[string]string) error { return nil }

func (c *replayClient) Consume(ctx context.Context, handler messaging.Handler) error {
	c.mu.Lock()
	pending := c.messages
	c.messages = nil
	c.mu.Unlock()

	for _, msg := range pending {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *replayClient) Topic() string { return "orders" }

func enabledConfig() config.Config {
	var cfg config.Config
	cfg.Messaging.Enabled = true
	cfg.Messaging.Workers.Enabled = true
	cfg.Messaging.Workers.Concurrency = 1
	return cfg
}

func TestEngine_DispatchFansOut(t *testing.T) {
	var calls []string
	record := func(name string, err error) messaging.Handler {
		return func(context.Context, messaging.Message) error {
			calls = append(calls, name)
			return err
		}
	}

	engine := NewEngine(Params{
		Client: &replayClient{},
		Logger: zap.NewNop(),
		Config: enabledConfig(),
		Registrations: []HandlerRegistration{
			{Name: "events", Topic: "orders", Handler: record("events", nil)},
			{Name: "audit", Topic: "orders", Handler: record("audit", errors.New("audit down"))},
			{Topic: "", Handler: record("ignored", nil)},
		},
	})

	err := engine.dispatch(context.Background(), messaging.Message{Topic: "orders"}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit: audit down")
	assert.Equal(t, []string{"events", "audit"}, calls)

	assert.NoError(t, engine.dispatch(context.Background(), messaging.Message{Topic: "payments"}, 0))
}

func TestEngine_StartConsumesUntilStopped(t *testing.T) {
	seen := make(chan string, 2)
	client := &replayClient{messages: []messaging.Message{
		{Topic: "orders", Key: []byte("o-1")},
		{Topic: "orders", Key: []byte("o-2")},
	}}
	engine := NewEngine(Params{
		Client: client,
		Logger: zap.NewNop(),
		Config: enabledConfig(),
		Registrations: []HandlerRegistration{{
			Name:  "events",
			Topic: "orders",
			Handler: func(_ context.Context, msg messaging.Message) error {
				seen <- string(msg.Key)
				return nil
			},
		}},
	})

	require.NoError(t, engine.start(context.Background()))
	for _, want := range []string{"o-1", "o-2"} {
		select {
		case got := <-seen:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("message %s not consumed", want)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, engine.stop(ctx))
}

func TestEngine_DisabledDoesNothing(t *testing.T) {
	engine := NewEngine(Params{Client: &replayClient{}, Logger: zap.NewNop(), Config: config.Config{}})

	require.NoError(t, engine.start(context.Background()))
	assert.Nil(t, engine.cancel)
	require.NoError(t, engine.stop(context.Background()))
}

// brokenClient fails its first Consume calls, then behaves like replayClient.
type brokenClient struct {
	replayClient
	failures int
	attempts int
}

func (c *brokenClient) Consume(ctx context.Context, handler messaging.Handler) error {
	c.mu.Lock()
	c.attempts++
	fail := c.attempts <= c.failures
	c.mu.Unlock()
	if fail {
		return errors.New("broker unreachable")
	}
	return c.replayClient.Consume(ctx, handler)
}

func TestEngine_RestartsFailedConsumer(t *testing.T) {
	seen := make(chan string, 1)
	client := &brokenClient{
		replayClient: replayClient{messages: []messaging.Message{{Topic: "orders", Key: []byte("o-1")}}},
		failures:     2,
	}
	engine := NewEngine(Params{
		Client: client,
		Logger: zap.NewNop(),
		Config: enabledConfig(),
		Registrations: []HandlerRegistration{{
			Topic: "orders",
			Handler: func(_ context.Context, msg messaging.Message) error {
				seen <- string(msg.Key)
				return nil
			},
		}},
	})
	engine.restart = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	require.NoError(t, engine.start(context.Background()))
	select {
	case got := <-seen:
		assert.Equal(t, "o-1", got)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer was not restarted")
	}
	require.NoError(t, engine.stop(context.Background()))

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, 3, client.attempts)
}
