package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/cache"
	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/desk"
	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	"github.com/Additional-Code/orderdesk/internal/observability"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	"github.com/Additional-Code/orderdesk/internal/validation"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/orderdesk/service/order")

const (
	generationKey = "orders:generation"
	generationTTL = 24 * time.Hour
)

// Store is the persistence the service needs.
type Store interface {
	List(ctx context.Context, page, size int) ([]*entity.Order, int, error)
	GetByID(ctx context.Context, id string) (*entity.Order, error)
	Create(ctx context.Context, order *entity.Order) error
	UpdateStatus(ctx context.Context, id string, from, to entity.Status) error
	Summaries(ctx context.Context) ([]entity.Summary, error)
}

// Service encapsulates business logic around orders.
type Service struct {
	store     Store
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	messaging messagingConfig
	paging    pagingConfig
	location  *time.Location
	validator *validation.Validator
	metrics   *observability.Instruments
	now       func() time.Time
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

type pagingConfig struct {
	defaultSize int
	maxSize     int
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Store     Store
	Cache     cache.Store
	Config    config.Config
	Logger    *zap.Logger
	Publisher messaging.Client
	Obs       *observability.Manager `optional:"true"`
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := p.Config.Desk.Location
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		store:     p.Store,
		cache:     p.Cache,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		logger:    logger,
		publisher: p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
		paging: pagingConfig{
			defaultSize: p.Config.Desk.DefaultPageSize,
			maxSize:     p.Config.Desk.MaxPageSize,
		},
		location:  loc,
		validator: validation.New(),
		metrics:   p.Obs.Instruments(),
		now:       time.Now,
	}
}

// List returns one page of orders, consulting the page cache first.
func (s *Service) List(ctx context.Context, page, size int) (dto.Page, error) {
	page, size = s.normalize(page, size)
	ctx, span := serviceTracer.Start(ctx, "OrderService.List", trace.WithAttributes(
		attribute.Int("page", page),
		attribute.Int("page_size", size),
	))
	defer span.End()

	key := s.pageKey(ctx, page, size)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		var p dto.Page
		if err := json.Unmarshal(cached, &p); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			s.metrics.PageCacheRead(ctx, true)
			return p, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders page cache read failed", zap.String("key", key), zap.Error(err))
	}
	s.metrics.PageCacheRead(ctx, false)

	orders, total, err := s.store.List(ctx, page, size)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return dto.Page{}, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}

	result := dto.Page{
		Items:      make([]dto.Order, 0, len(orders)),
		Page:       page,
		PageSize:   size,
		TotalCount: total,
		TotalPages: dto.TotalPagesFor(total, size),
	}
	for _, o := range orders {
		result.Items = append(result.Items, dto.FromEntity(o))
	}

	if payload, err := json.Marshal(result); err == nil {
		if err := s.cache.Set(ctx, key, payload, s.cacheTTL); err != nil {
			s.logger.Warn("orders page cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return result, nil
}

// Get retrieves an order by id.
func (s *Service) Get(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found", errorbank.WithDetail("id", id))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	return order, nil
}

// Create validates and persists a new pending order, then invalidates cached pages.
func (s *Service) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errorbank.BadRequest("order payload is required")
	}
	if err := s.validator.Struct(order); err != nil {
		var fields validation.FieldErrors
		if errors.As(err, &fields) {
			return errorbank.BadRequest("invalid order", errorbank.WithDetails(fields))
		}
		return errorbank.BadRequest("invalid order", errorbank.WithCause(err))
	}

	now := s.now().UTC()
	order.ID = uuid.NewString()
	order.Status = entity.StatusPending
	order.TotalAmount = order.ComputeTotal()
	order.CreatedAt = now
	order.UpdatedAt = now

	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(
		attribute.String("order.id", order.ID),
		attribute.Int64("order.total_amount", order.TotalAmount),
	))
	defer span.End()

	if err := s.store.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}

	s.metrics.OrderCreated(ctx)
	s.InvalidateListings(ctx)
	s.publish(ctx, Event{
		Type:        EventOrderCreated,
		OrderID:     order.ID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		OccurredAt:  now,
	})
	return nil
}

// Complete marks a paid order completed.
func (s *Service) Complete(ctx context.Context, id string) (*entity.Order, error) {
	return s.transition(ctx, id, entity.StatusCompleted)
}

// Cancel cancels an order that has not been paid yet.
func (s *Service) Cancel(ctx context.Context, id string) (*entity.Order, error) {
	return s.transition(ctx, id, entity.StatusCancelled)
}

// UpdateStatus moves an order to the named status.
func (s *Service) UpdateStatus(ctx context.Context, id, raw string) (*entity.Order, error) {
	next, err := entity.ParseStatus(strings.TrimSpace(raw))
	if err != nil {
		return nil, errorbank.BadRequest("invalid order status", errorbank.WithCause(err), errorbank.WithDetail("status", raw))
	}
	return s.transition(ctx, id, next)
}

func (s *Service) transition(ctx context.Context, id string, next entity.Status) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Transition", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status.to", string(next)),
	))
	defer span.End()

	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := order.Status
	if !previous.CanTransition(next) {
		span.SetStatus(codes.Error, "transition rejected")
		return nil, errorbank.Unprocessable(
			fmt.Sprintf("cannot move order from %s to %s", previous, next),
			errorbank.WithDetail("from", string(previous)),
			errorbank.WithDetail("to", string(next)),
		)
	}

	if err := s.store.UpdateStatus(ctx, id, previous, next); err != nil {
		switch {
		case errors.Is(err, repo.ErrConflict):
			return nil, errorbank.Conflict("order was modified concurrently", errorbank.WithCause(err))
		case errors.Is(err, repo.ErrNotFound):
			return nil, errorbank.NotFound("order not found", errorbank.WithDetail("id", id))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to update order status", errorbank.WithCause(err))
	}

	now := s.now().UTC()
	order.Status = next
	order.UpdatedAt = now

	s.metrics.OrderTransition(ctx, string(previous), string(next))
	s.InvalidateListings(ctx)
	s.publish(ctx, Event{
		Type:           EventStatusChanged,
		OrderID:        order.ID,
		Status:         string(next),
		PreviousStatus: string(previous),
		TotalAmount:    order.TotalAmount,
		OccurredAt:     now,
	})
	return order, nil
}

// Statistics aggregates every stored order.
func (s *Service) Statistics(ctx context.Context) (dto.Statistics, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Statistics")
	defer span.End()

	summaries, err := s.store.Summaries(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return dto.Statistics{}, errorbank.Internal("failed to load order summaries", errorbank.WithCause(err))
	}
	orders := make([]dto.Order, 0, len(summaries))
	for _, summary := range summaries {
		orders = append(orders, dto.FromSummary(summary))
	}
	return desk.ComputeStatistics(orders, s.now().In(s.location)), nil
}

// InvalidateListings retires every cached page by moving to a new generation.
func (s *Service) InvalidateListings(ctx context.Context) {
	gen, err := s.cache.Incr(ctx, generationKey, generationTTL)
	if err != nil {
		s.logger.Warn("orders cache invalidation failed", zap.Error(err))
		return
	}
	s.logger.Debug("order listings invalidated", zap.Int64("generation", gen))
}

func (s *Service) pageKey(ctx context.Context, page, size int) string {
	gen := "0"
	if raw, err := s.cache.Get(ctx, generationKey); err == nil && len(raw) > 0 {
		gen = string(raw)
	}
	return fmt.Sprintf("orders:page:%s:%d:%d", gen, page, size)
}

func (s *Service) normalize(page, size int) (int, int) {
	maxSize := s.paging.maxSize
	if maxSize <= 0 {
		maxSize = 100
	}
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = s.paging.defaultSize
		if size <= 0 {
			size = 10
		}
	}
	return page, min(size, maxSize)
}

func (s *Service) publish(ctx context.Context, event Event) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte(event.OrderID), payload, map[string]string{
		HeaderEventType: event.Type,
	}); err != nil {
		s.logger.Error("publish order event", zap.String("type", event.Type), zap.Error(err))
	}
}
