package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/logger"
	"github.com/Additional-Code/orderdesk/internal/messaging"
)

// HandlerRegistration binds a topic to a handler. Several handlers may share
// a topic; each sees every message.
type HandlerRegistration struct {
	Name    string
	Topic   string
	Handler messaging.Handler
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Client        messaging.Client
	Logger        *zap.Logger
	Config        config.Config
	Registrations []HandlerRegistration `group:"worker.handlers"`
}

// Engine runs the order event consumers.
type Engine struct {
	client   messaging.Client
	logger   *zap.Logger
	enabled  bool
	workers  int
	handlers map[string][]HandlerRegistration
	restart  func() backoff.BackOff

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(p Params) *Engine {
	handlers := make(map[string][]HandlerRegistration, len(p.Registrations))
	for _, r := range p.Registrations {
		if r.Topic == "" || r.Handler == nil {
			continue
		}
		if r.Name == "" {
			r.Name = r.Topic
		}
		handlers[r.Topic] = append(handlers[r.Topic], r)
	}

	return &Engine{
		client:   p.Client,
		logger:   p.Logger.Named("worker"),
		enabled:  p.Config.Messaging.Enabled && p.Config.Messaging.Workers.Enabled,
		workers:  max(p.Config.Messaging.Workers.Concurrency, 1),
		handlers: handlers,
		restart: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// Module wires the engine into the Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(lc fx.Lifecycle, engine *Engine) {
		lc.Append(fx.Hook{
			OnStart: engine.start,
			OnStop:  engine.stop,
		})
	}),
)

func (e *Engine) start(context.Context) error {
	switch {
	case !e.enabled:
		e.logger.Info("order event workers disabled")
		return nil
	case len(e.handlers) == 0:
		e.logger.Info("no order event handlers registered")
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	for id := range e.workers {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.consume(runCtx, id)
		}()
	}
	e.logger.Info("order event workers started", zap.Int("workers", e.workers), zap.String("topic", e.client.Topic()))
	return nil
}

func (e *Engine) stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		e.logger.Info("order event workers stopped")
		return nil
	}
}

// consume keeps one consumer attached to the bus, restarting it with growing
// delays when it fails.
func (e *Engine) consume(ctx context.Context, workerID int) {
	delay := e.restart()
	for ctx.Err() == nil {
		err := e.client.Consume(ctx, func(msgCtx context.Context, msg messaging.Message) error {
			return e.dispatch(msgCtx, msg, workerID)
		})
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		wait := delay.NextBackOff()
		e.logger.Error("order event consumer failed; restarting",
			zap.Int("worker", workerID),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

// dispatch hands msg to every handler registered for its topic. One handler
// failing does not stop the others; the failures are joined.
func (e *Engine) dispatch(ctx context.Context, msg messaging.Message, workerID int) error {
	handlers, ok := e.handlers[msg.Topic]
	if !ok {
		e.logger.Warn("no handler for topic", zap.String("topic", msg.Topic))
		return nil
	}

	log := logger.WithTrace(ctx, e.logger).With(
		zap.String("topic", msg.Topic),
		zap.Int64("offset", msg.Offset),
		zap.Int("worker", workerID),
	)
	var errs []error
	for _, h := range handlers {
		log.Debug("processing order event", zap.String("handler", h.Name))
		if err := h.Handler(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}
