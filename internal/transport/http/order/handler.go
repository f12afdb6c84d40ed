package order

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	service "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/orderdesk/transport/http/order")

type orderService interface {
	List(ctx context.Context, page, size int) (dto.Page, error)
	Get(ctx context.Context, id string) (*entity.Order, error)
	Create(ctx context.Context, order *entity.Order) error
	Complete(ctx context.Context, id string) (*entity.Order, error)
	Cancel(ctx context.Context, id string) (*entity.Order, error)
	UpdateStatus(ctx context.Context, id, status string) (*entity.Order, error)
	Statistics(ctx context.Context) (dto.Statistics, error)
}

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc orderService
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo group.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/api/orders")
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/statistics", h.statistics)
	g.GET("/:id", h.getByID)
	g.POST("/:id/complete", h.complete)
	g.POST("/:id/cancel", h.cancel)
	g.PUT("/:id/status", h.updateStatus)
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	page, err := queryInt(c, "page")
	if err != nil {
		return b.WithError(err).Build()
	}
	size, err := queryInt(c, "pageSize")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list", trace.WithAttributes(
		attribute.Int("page", page),
		attribute.Int("page_size", size),
	))
	defer span.End()

	result, err := h.svc.List(ctx, page, size)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(result).Build()
}

func (h *Handler) statistics(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.statistics")
	defer span.End()

	stats, err := h.svc.Statistics(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(stats).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromEntity(order)).Build()
}

type createOrderRequest struct {
	BuyerID         string          `json:"buyerId"`
	BuyerName       string          `json:"buyerName"`
	BuyerPhone      string          `json:"buyerPhone"`
	SellerName      string          `json:"sellerName"`
	StoreName       string          `json:"storeName"`
	DeliveryAddress string          `json:"deliveryAddress"`
	Notes           string          `json:"notes"`
	Items           []dto.OrderItem `json:"items"`
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload createOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	order := &entity.Order{
		BuyerID:         payload.BuyerID,
		BuyerName:       payload.BuyerName,
		BuyerPhone:      payload.BuyerPhone,
		SellerName:      payload.SellerName,
		StoreName:       payload.StoreName,
		DeliveryAddress: payload.DeliveryAddress,
		Notes:           payload.Notes,
		Items:           make([]*entity.OrderItem, 0, len(payload.Items)),
	}
	for _, item := range payload.Items {
		order.Items = append(order.Items, &entity.OrderItem{
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			ProductUnitName: item.ProductUnitName,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase,
		})
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create")
	span.SetAttributes(attribute.Int("order.items", len(order.Items)))
	defer span.End()

	if err := h.svc.Create(ctx, order); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromEntity(order)).Build()
}

func (h *Handler) complete(c echo.Context) error {
	return h.act(c, "orders.complete", "order completed", h.svc.Complete)
}

func (h *Handler) cancel(c echo.Context) error {
	return h.act(c, "orders.cancel", "order cancelled", h.svc.Cancel)
}

func (h *Handler) updateStatus(c echo.Context) error {
	b := response.New(c)

	var payload dto.StatusUpdateRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.Status == "" {
		return b.WithError(errorbank.BadRequest("status is required")).Build()
	}
	return h.act(c, "orders.updateStatus", "order status updated", func(ctx context.Context, id string) (*entity.Order, error) {
		return h.svc.UpdateStatus(ctx, id, payload.Status)
	})
}

func (h *Handler) act(c echo.Context, name, message string, call func(context.Context, string) (*entity.Order, error)) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), name, trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := call(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithMessage(message).WithData(dto.FromEntity(order)).Build()
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errorbank.BadRequest("invalid "+name, errorbank.WithCause(err), errorbank.WithDetail(name, raw))
	}
	return v, nil
}
