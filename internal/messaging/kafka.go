package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

var tracer = otel.Tracer("github.com/Additional-Code/orderdesk/messaging")

const (
	deliveryAttempts = 3
	retryBackoff     = 250 * time.Millisecond
	fetchBackoff     = time.Second
)

type kafkaClient struct {
	writer *kafka.Writer
	reader *kafka.Reader
	topic  string
	logger *zap.Logger
}

func newKafkaClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) *kafkaClient {
	k := cfg.Messaging.Kafka
	client := &kafkaClient{
		topic:  k.Topic,
		logger: logger,
		writer: &kafka.Writer{
			Addr:  kafka.TCP(k.Brokers...),
			Topic: k.Topic,
			// Keys are order IDs; hashing keeps each order's events on one partition.
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Logger:       kafkaLogger{logger: logger},
			ErrorLogger:  kafkaLogger{logger: logger, errors: true},
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        k.Brokers,
			GroupID:        cfg.Messaging.ConsumerGroup,
			Topic:          k.Topic,
			MinBytes:       k.MinBytes,
			MaxBytes:       k.MaxBytes,
			CommitInterval: k.CommitInterval,
			Dialer: &kafka.Dialer{
				Timeout:  k.ConnectTimeout,
				ClientID: k.ClientID,
			},
		}),
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logger.Info("closing kafka client", zap.String("topic", k.Topic))
			return errors.Join(client.writer.Close(), client.reader.Close())
		},
	})
	return client
}

// Publish writes one event synchronously, adding the caller's trace context
// to the headers.
func (k *kafkaClient) Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error {
	ctx, span := tracer.Start(ctx, k.topic+" publish", trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", k.topic),
			attribute.String("messaging.kafka.message.key", string(key)),
		))
	defer span.End()

	if err := k.writer.WriteMessages(ctx, toKafka(ctx, key, value, headers)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return err
	}
	return nil
}

// Consume delivers messages to handler until ctx ends. A message is committed
// once handled, or once its delivery attempts are spent so one bad event
// cannot stall the partition.
func (k *kafkaClient) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Error("kafka fetch failed", zap.Error(err))
			if err := sleep(ctx, fetchBackoff); err != nil {
				return err
			}
			continue
		}

		m := fromKafka(msg)
		if err := deliver(ctx, handler, m, deliveryAttempts, retryBackoff); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Error("dropping order event after failed deliveries",
				zap.Int64("offset", m.Offset),
				zap.ByteString("key", m.Key),
				zap.Int("attempts", deliveryAttempts),
				zap.Error(err),
			)
		}

		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			k.logger.Warn("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

func (k *kafkaClient) Topic() string { return k.topic }

// deliver runs handler for m up to attempts times, within a consumer span
// continuing the publisher's trace.
func deliver(ctx context.Context, handler Handler, m Message, attempts int, backoff time.Duration) error {
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(m.Headers))
	ctx, span := tracer.Start(ctx, m.Topic+" process", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", m.Topic),
			attribute.Int64("messaging.kafka.offset", m.Offset),
		))
	defer span.End()

	var err error
	for attempt := 1; attempt <= max(attempts, 1); attempt++ {
		if err = handler(ctx, m); err == nil {
			return nil
		}
		span.AddEvent("delivery failed", trace.WithAttributes(attribute.Int("attempt", attempt)))
		if attempt < attempts {
			if serr := sleep(ctx, time.Duration(attempt)*backoff); serr != nil {
				return serr
			}
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "handler failed")
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func toKafka(ctx context.Context, key, value []byte, headers map[string]string) kafka.Message {
	carrier := propagation.MapCarrier{}
	for name, v := range headers {
		carrier[name] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	msg := kafka.Message{Key: key, Value: value}
	for name, v := range carrier {
		msg.Headers = append(msg.Headers, kafka.Header{Key: name, Value: []byte(v)})
	}
	return msg
}

func fromKafka(msg kafka.Message) Message {
	m := Message{
		Topic:  msg.Topic,
		Key:    append([]byte(nil), msg.Key...),
		Value:  append([]byte(nil), msg.Value...),
		Offset: msg.Offset,
		Time:   msg.Time,
	}
	if len(msg.Headers) > 0 {
		m.Headers = make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			m.Headers[h.Key] = string(h.Value)
		}
	}
	return m
}

// kafkaLogger adapts zap to kafka-go's logger interface.
type kafkaLogger struct {
	logger *zap.Logger
	errors bool
}

func (k kafkaLogger) Printf(msg string, args ...any) {
	if k.errors {
		k.logger.Sugar().Warnf(msg, args...)
		return
	}
	k.logger.Sugar().Debugf(msg, args...)
}
