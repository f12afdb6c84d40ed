package desk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/desk"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/orderdesk/transport/http/desk")

// Module wires HTTP desk handlers.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(func(e *echo.Echo, h *Handler) {
		Register(e, h)
	}),
)

// Handler exposes desk sessions over HTTP.
type Handler struct {
	sessions *desk.Sessions
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler constructs a desk Handler.
func NewHandler(sessions *desk.Sessions, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessions: sessions, logger: logger, now: time.Now}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/desk/sessions")
	g.POST("", h.open)
	g.GET("/:sid", h.view)
	g.DELETE("/:sid", h.close)
	g.PUT("/:sid/filters", h.filters)
	g.POST("/:sid/refresh", h.refresh)
	g.GET("/:sid/export", h.export)
	g.POST("/:sid/orders/:id/complete", h.complete)
	g.POST("/:sid/orders/:id/cancel", h.cancel)
	g.PUT("/:sid/orders/:id/status", h.updateStatus)
}

type openRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

type openResponse struct {
	SessionID string    `json:"sessionId"`
	View      desk.View `json:"view"`
}

// open creates a session and loads its first page. A failed first load still
// yields a usable session; the failure is reported in meta.
func (h *Handler) open(c echo.Context) error {
	b := response.New(c)

	var payload openRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&payload); err != nil {
			return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
		}
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "desk.open")
	defer span.End()

	id, ctrl := h.sessions.Create()
	span.SetAttributes(attribute.String("desk.session", id))

	view, err := ctrl.Load(ctx, payload.Page, payload.PageSize)
	if err != nil {
		b.WithMeta("fetchError", errorbank.From(err).Message())
	}
	return b.WithStatus(http.StatusCreated).WithData(openResponse{SessionID: id, View: view}).Build()
}

func (h *Handler) view(c echo.Context) error {
	b := response.New(c)
	ctrl, err := h.controller(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	if c.QueryParam("page") == "" && c.QueryParam("pageSize") == "" {
		return b.WithData(ctrl.View()).Build()
	}

	current := ctrl.View()
	page, err := queryInt(c, "page", current.Page)
	if err != nil {
		return b.WithError(err).Build()
	}
	size, err := queryInt(c, "pageSize", current.PageSize)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "desk.page", trace.WithAttributes(
		attribute.Int("desk.page", page),
		attribute.Int("desk.page_size", size),
	))
	defer span.End()

	view, err := ctrl.Load(ctx, page, size)
	if err != nil {
		return b.WithError(loadError(err)).Build()
	}
	return b.WithData(view).Build()
}

func (h *Handler) close(c echo.Context) error {
	b := response.New(c)
	if !h.sessions.Delete(c.Param("sid")) {
		return b.WithError(errorbank.NotFound("desk session not found")).Build()
	}
	return b.WithMessage("desk session closed").Build()
}

type filtersRequest struct {
	Search string `json:"search"`
	Status string `json:"status"`
	From   string `json:"from"`
	To     string `json:"to"`
}

func (h *Handler) filters(c echo.Context) error {
	b := response.New(c)
	ctrl, err := h.controller(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload filtersRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	criteria, err := desk.ParseCriteria(payload.Search, payload.Status, payload.From, payload.To, h.sessions.Location())
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(ctrl.SetCriteria(criteria)).Build()
}

func (h *Handler) refresh(c echo.Context) error {
	b := response.New(c)
	ctrl, err := h.controller(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "desk.refresh")
	defer span.End()

	view, err := ctrl.Refresh(ctx)
	if err != nil {
		return b.WithError(loadError(err)).Build()
	}
	return b.WithData(view).Build()
}

func (h *Handler) export(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}

	var ids []string
	if raw := c.QueryParam("ids"); raw != "" {
		ids = strings.Split(raw, ",")
	}

	filename := fmt.Sprintf("orders_%s.csv", h.now().In(h.sessions.Location()).Format(desk.DateLayout))
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	res.WriteHeader(http.StatusOK)

	rows, err := ctrl.Export(res, ids)
	if err != nil {
		h.logger.Error("desk export failed", zap.String("desk_session", c.Param("sid")), zap.Error(err))
		return nil
	}
	h.logger.Info("desk export written", zap.String("desk_session", c.Param("sid")), zap.Int("rows", rows))
	return nil
}

func (h *Handler) complete(c echo.Context) error {
	return h.act(c, "desk.complete", "order completed", func(ctx context.Context, ctrl *desk.Controller, id string) (desk.View, error) {
		return ctrl.Complete(ctx, id)
	})
}

func (h *Handler) cancel(c echo.Context) error {
	return h.act(c, "desk.cancel", "order cancelled", func(ctx context.Context, ctrl *desk.Controller, id string) (desk.View, error) {
		return ctrl.Cancel(ctx, id)
	})
}

func (h *Handler) updateStatus(c echo.Context) error {
	var payload struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&payload); err != nil {
		return response.New(c).WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	return h.act(c, "desk.updateStatus", "order status updated", func(ctx context.Context, ctrl *desk.Controller, id string) (desk.View, error) {
		return ctrl.UpdateStatus(ctx, id, payload.Status)
	})
}

func (h *Handler) act(c echo.Context, name, message string, call func(context.Context, *desk.Controller, string) (desk.View, error)) error {
	b := response.New(c)
	ctrl, err := h.controller(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), name, trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	view, err := call(ctx, ctrl, id)
	if err != nil {
		return b.WithError(loadError(err)).Build()
	}
	if view.RefreshError != "" {
		b.WithMeta("refreshError", view.RefreshError)
	}
	return b.WithMessage(message).WithData(view).Build()
}

func (h *Handler) controller(c echo.Context) (*desk.Controller, error) {
	ctrl, ok := h.sessions.Get(c.Param("sid"))
	if !ok {
		return nil, errorbank.NotFound("desk session not found", errorbank.WithDetail("session", c.Param("sid")))
	}
	return ctrl, nil
}

// loadError reports a superseded load as a conflict; the newer request owns the page.
func loadError(err error) error {
	if errors.Is(err, desk.ErrSuperseded) {
		return errorbank.Conflict("superseded by a newer request", errorbank.WithCause(err))
	}
	return err
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errorbank.BadRequest("invalid "+name, errorbank.WithCause(err), errorbank.WithDetail(name, raw))
	}
	return v, nil
}
