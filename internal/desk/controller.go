package desk

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var deskTracer = otel.Tracer("github.com/Additional-Code/orderdesk/desk")

// ErrSuperseded is returned by Load when a newer load was issued while the
// response was in flight; the response is discarded.
var ErrSuperseded = errors.New("page response superseded by a newer request")

// Backend is the order service a desk reads pages from and sends mutations to.
type Backend interface {
	FetchPage(ctx context.Context, page, pageSize int) (dto.Page, error)
	FetchStatistics(ctx context.Context) (dto.Statistics, error)
	CompleteOrder(ctx context.Context, id string) (dto.ActionResult, error)
	CancelOrder(ctx context.Context, id string) (dto.ActionResult, error)
	UpdateStatus(ctx context.Context, id, status string) (dto.ActionResult, error)
}

// Options tunes a Controller.
type Options struct {
	DefaultPageSize  int
	MaxPageSize      int
	Location         *time.Location
	GlobalStatistics bool
	Clock            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = 100
	}
	if o.DefaultPageSize <= 0 || o.DefaultPageSize > o.MaxPageSize {
		o.DefaultPageSize = min(10, o.MaxPageSize)
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// State is everything a desk owns. Page.Items is the canonical order list;
// the visible orders are always derived from it.
type State struct {
	Page       dto.Page
	Criteria   Criteria
	Statistics dto.Statistics
	Global     *dto.Statistics
	Loaded     bool
	LoadedAt   time.Time
}

// View is a point-in-time projection of a desk.
type View struct {
	Page             int             `json:"page"`
	PageSize         int             `json:"pageSize"`
	TotalCount       int             `json:"totalCount"`
	TotalPages       int             `json:"totalPages"`
	Loaded           bool            `json:"loaded"`
	LoadedAt         *time.Time      `json:"loadedAt,omitempty"`
	Criteria         Criteria        `json:"criteria"`
	PageStatistics   dto.Statistics  `json:"pageStatistics"`
	GlobalStatistics *dto.Statistics `json:"globalStatistics,omitempty"`
	Matched          int             `json:"matched"`
	Orders           []dto.Order     `json:"orders"`

	// RefreshError is set when a mutation was applied but the page reload
	// after it failed; the orders shown are the ones held before the action.
	RefreshError string `json:"-"`
}

// Controller coordinates fetching, statistics and filtering for one desk.
// It is safe for concurrent use.
type Controller struct {
	backend Backend
	logger  *zap.Logger
	metrics *Metrics
	opts    Options

	mu    sync.Mutex
	seq   uint64
	state State
}

// NewController builds a Controller with no page loaded.
func NewController(backend Backend, logger *zap.Logger, metrics *Metrics, opts Options) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Controller{
		backend: backend,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
		state: State{
			Page: dto.Page{Page: 1, PageSize: opts.DefaultPageSize, Items: []dto.Order{}},
		},
	}
}

// Load replaces the current page with the requested one and recomputes the
// page statistics. On failure the previous page is kept.
func (c *Controller) Load(ctx context.Context, page, pageSize int) (View, error) {
	page, pageSize = c.normalize(page, pageSize)

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	ctx, span := deskTracer.Start(ctx, "Desk.Load", trace.WithAttributes(
		attribute.Int("desk.page", page),
		attribute.Int("desk.page_size", pageSize),
	))
	defer span.End()

	fetched, err := c.backend.FetchPage(ctx, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		c.metrics.fetchFailed(ctx)
		c.logger.Warn("order page fetch failed; keeping previous page",
			zap.Int("page", page), zap.Int("page_size", pageSize), zap.Error(err))
		return c.View(), err
	}

	var global *dto.Statistics
	if c.opts.GlobalStatistics {
		stats, err := c.backend.FetchStatistics(ctx)
		if err != nil {
			c.logger.Warn("global statistics unavailable", zap.Error(err))
		} else {
			global = &stats
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.seq {
		c.metrics.responseSuperseded(ctx)
		c.logger.Debug("discarding superseded page response", zap.Int("page", page), zap.Uint64("seq", seq))
		return c.viewLocked(), ErrSuperseded
	}

	if fetched.Items == nil {
		fetched.Items = []dto.Order{}
	}
	now := c.opts.Clock().In(c.opts.Location)
	c.state.Page = fetched
	c.state.Statistics = ComputeStatistics(fetched.Items, now)
	c.state.Global = global
	c.state.Loaded = true
	c.state.LoadedAt = now
	c.metrics.pageLoaded(ctx)

	return c.viewLocked(), nil
}

// Refresh reloads the current page with the current page size.
func (c *Controller) Refresh(ctx context.Context) (View, error) {
	page, pageSize := c.position()
	return c.Load(ctx, page, pageSize)
}

// SetCriteria replaces the filter criteria and returns the re-filtered view.
func (c *Controller) SetCriteria(criteria Criteria) View {
	criteria.Search = strings.TrimSpace(criteria.Search)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Criteria = criteria
	return c.viewLocked()
}

// View returns the current projection of the desk.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// State returns a copy of the desk state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.Page.Items = append([]dto.Order(nil), c.state.Page.Items...)
	return st
}

// Complete asks the backend to complete an order, then reloads the page.
// An error means the action itself failed; a failed reload is reported in
// View.RefreshError instead.
func (c *Controller) Complete(ctx context.Context, id string) (View, error) {
	return c.mutate(ctx, "complete", id, func(ctx context.Context) (dto.ActionResult, error) {
		return c.backend.CompleteOrder(ctx, id)
	})
}

// Cancel asks the backend to cancel an order, then reloads the page.
func (c *Controller) Cancel(ctx context.Context, id string) (View, error) {
	return c.mutate(ctx, "cancel", id, func(ctx context.Context) (dto.ActionResult, error) {
		return c.backend.CancelOrder(ctx, id)
	})
}

// UpdateStatus asks the backend to move an order to status, then reloads the page.
func (c *Controller) UpdateStatus(ctx context.Context, id, status string) (View, error) {
	if _, err := entity.ParseStatus(status); err != nil {
		return c.View(), errorbank.BadRequest("invalid order status", errorbank.WithCause(err))
	}
	return c.mutate(ctx, "update_status", id, func(ctx context.Context) (dto.ActionResult, error) {
		return c.backend.UpdateStatus(ctx, id, status)
	})
}

// Export writes the visible orders as CSV. When ids is non-empty only those
// orders are written, in view order.
func (c *Controller) Export(w io.Writer, ids []string) (int, error) {
	orders := c.View().Orders
	if len(ids) > 0 {
		orders = selectIDs(orders, ids)
	}
	return WriteCSV(w, orders, c.opts.Location)
}

func (c *Controller) mutate(ctx context.Context, action, id string, call func(context.Context) (dto.ActionResult, error)) (View, error) {
	if strings.TrimSpace(id) == "" {
		return c.View(), errorbank.BadRequest("order id is required")
	}

	ctx, span := deskTracer.Start(ctx, "Desk.Mutate", trace.WithAttributes(
		attribute.String("desk.action", action),
		attribute.String("order.id", id),
	))
	defer span.End()

	result, err := call(ctx)
	if err == nil && !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "order action rejected"
		}
		err = errorbank.Unprocessable(msg, errorbank.WithDetail("action", action))
	}
	c.metrics.actionRequested(ctx, action, err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "action failed")
		c.logger.Warn("order action failed", zap.String("action", action), zap.String("order_id", id), zap.Error(err))
		return c.View(), err
	}

	c.logger.Info("order action applied", zap.String("action", action), zap.String("order_id", id))

	// The backend already changed the order, so a failed reload must not turn
	// the action into a reported failure.
	view, err := c.Refresh(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSuperseded):
		c.logger.Debug("reload after action superseded", zap.String("action", action), zap.String("order_id", id))
	default:
		c.logger.Warn("reload after action failed; showing previous page",
			zap.String("action", action), zap.String("order_id", id), zap.Error(err))
		view.RefreshError = errorbank.From(err).Message()
	}
	return view, nil
}

func (c *Controller) position() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Page.Page, c.state.Page.PageSize
}

func (c *Controller) normalize(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = c.opts.DefaultPageSize
	}
	if pageSize > c.opts.MaxPageSize {
		pageSize = c.opts.MaxPageSize
	}
	return page, pageSize
}

func (c *Controller) viewLocked() View {
	st := &c.state
	orders := ApplyFilters(st.Page.Items, st.Criteria, c.opts.Location)
	v := View{
		Page:             st.Page.Page,
		PageSize:         st.Page.PageSize,
		TotalCount:       st.Page.TotalCount,
		TotalPages:       st.Page.TotalPages,
		Loaded:           st.Loaded,
		Criteria:         st.Criteria,
		PageStatistics:   st.Statistics,
		GlobalStatistics: st.Global,
		Matched:          len(orders),
		Orders:           orders,
	}
	if st.Loaded {
		at := st.LoadedAt
		v.LoadedAt = &at
	}
	return v
}

func selectIDs(orders []dto.Order, ids []string) []dto.Order {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			wanted[id] = struct{}{}
		}
	}
	out := make([]dto.Order, 0, len(wanted))
	for _, o := range orders {
		if _, ok := wanted[o.ID]; ok {
			out = append(out, o)
		}
	}
	return out
}
