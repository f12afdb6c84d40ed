package order

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	ordersvc "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/orderdesk/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewOrderEventsHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// Invalidator drops cached order listings.
type Invalidator interface {
	InvalidateListings(ctx context.Context)
}

// NewOrderEventsHandler sets up a worker handler that records order events and
// retires cached order pages so every replica serves fresh listings.
func NewOrderEventsHandler(logger *zap.Logger, cfg config.Config, svc *ordersvc.Service) worker.HandlerRegistration {
	return worker.HandlerRegistration{
		Name:    "order-events",
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: newHandler(logger, svc),
	}
}

func newHandler(logger *zap.Logger, invalidator Invalidator) messaging.Handler {
	return func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		if kind, ok := msg.Headers[ordersvc.HeaderEventType]; ok && !isOrderEvent(kind) {
			logger.Debug("skipping foreign event", zap.String("type", kind))
			return nil
		}

		var event ordersvc.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode order event", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		span.SetAttributes(
			attribute.String("order.event", event.Type),
			attribute.String("order.id", event.OrderID),
		)

		switch event.Type {
		case ordersvc.EventOrderCreated:
			logger.Info("order created event processed",
				zap.String("id", event.OrderID),
				zap.String("status", event.Status),
				zap.Int64("total_amount", event.TotalAmount),
			)
		case ordersvc.EventStatusChanged:
			logger.Info("order status changed event processed",
				zap.String("id", event.OrderID),
				zap.String("from", event.PreviousStatus),
				zap.String("to", event.Status),
			)
		default:
			logger.Warn("ignoring unknown order event", zap.String("type", event.Type))
			return nil
		}

		invalidator.InvalidateListings(ctx)
		return nil
	}
}

func isOrderEvent(kind string) bool {
	return kind == ordersvc.EventOrderCreated || kind == ordersvc.EventStatusChanged
}
