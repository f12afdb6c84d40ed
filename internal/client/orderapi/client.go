package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var clientTracer = otel.Tracer("github.com/Additional-Code/orderdesk/client/orderapi")

const maxBodyBytes = 16 << 20

// Client talks to the order collection and mutation endpoints. It never retries.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *zap.Logger
	maxBody    int64
}

// NewClient builds a Client for cfg.Backend.
func NewClient(cfg config.Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid order api base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Backend.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: base,
		logger:  logger,
		maxBody: maxBodyBytes,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
			},
		},
	}, nil
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e envelope) message() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Error != nil {
		return e.Error.Message
	}
	return ""
}

// FetchPage retrieves one page of orders. Both an enveloped page object and a
// flat order array are accepted; an unrecognised body yields an empty page.
func (c *Client) FetchPage(ctx context.Context, page, pageSize int) (dto.Page, error) {
	ctx, span := clientTracer.Start(ctx, "OrderAPI.FetchPage", trace.WithAttributes(
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	))
	defer span.End()

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	status, body, err := c.do(ctx, http.MethodGet, "orders", q, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return dto.Page{}, err
	}
	if err := checkStatus(status, body); err != nil {
		span.SetStatus(codes.Error, "upstream error")
		return dto.Page{}, err
	}

	result, err := c.decodePage(body, page, pageSize)
	if err != nil {
		span.SetStatus(codes.Error, "upstream rejected")
		return dto.Page{}, err
	}
	span.SetAttributes(attribute.Int("orders.count", len(result.Items)))
	return result, nil
}

// FetchStatistics retrieves statistics computed over every stored order.
func (c *Client) FetchStatistics(ctx context.Context) (dto.Statistics, error) {
	ctx, span := clientTracer.Start(ctx, "OrderAPI.FetchStatistics")
	defer span.End()

	status, body, err := c.do(ctx, http.MethodGet, "orders/statistics", nil, nil)
	if err != nil {
		span.RecordError(err)
		return dto.Statistics{}, err
	}
	if err := checkStatus(status, body); err != nil {
		return dto.Statistics{}, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return dto.Statistics{}, errorbank.Unavailable("malformed statistics response", errorbank.WithCause(err))
	}
	if env.Success != nil && !*env.Success {
		return dto.Statistics{}, errorbank.Unavailable(orDefault(env.message(), "statistics unavailable"))
	}
	var stats dto.Statistics
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		return dto.Statistics{}, errorbank.Unavailable("malformed statistics response", errorbank.WithCause(err))
	}
	return stats, nil
}

// CompleteOrder asks the backend to mark an order completed.
func (c *Client) CompleteOrder(ctx context.Context, id string) (dto.ActionResult, error) {
	return c.action(ctx, "complete", http.MethodPost, id, "complete", nil)
}

// CancelOrder asks the backend to cancel an order.
func (c *Client) CancelOrder(ctx context.Context, id string) (dto.ActionResult, error) {
	return c.action(ctx, "cancel", http.MethodPost, id, "cancel", nil)
}

// UpdateStatus asks the backend to move an order to status.
func (c *Client) UpdateStatus(ctx context.Context, id, status string) (dto.ActionResult, error) {
	payload, err := json.Marshal(dto.StatusUpdateRequest{Status: status})
	if err != nil {
		return dto.ActionResult{}, errorbank.Internal("encode status update", errorbank.WithCause(err))
	}
	return c.action(ctx, "update_status", http.MethodPut, id, "status", payload)
}

func (c *Client) action(ctx context.Context, name, method, id, suffix string, payload []byte) (dto.ActionResult, error) {
	ctx, span := clientTracer.Start(ctx, "OrderAPI.Action", trace.WithAttributes(
		attribute.String("action", name),
		attribute.String("order.id", id),
	))
	defer span.End()

	status, body, err := c.do(ctx, method, "orders/"+url.PathEscape(id)+"/"+suffix, nil, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return dto.ActionResult{}, err
	}
	if err := checkStatus(status, body); err != nil {
		span.SetStatus(codes.Error, "upstream error")
		return dto.ActionResult{}, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.logger.Warn("malformed action response; assuming success", zap.String("action", name), zap.Error(err))
		return dto.ActionResult{Success: true}, nil
	}
	result := dto.ActionResult{Success: env.Success == nil || *env.Success, Message: env.message()}
	if !result.Success {
		span.SetStatus(codes.Error, "action rejected")
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte) (int, []byte, error) {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return 0, nil, errorbank.Internal("build order api request", errorbank.WithCause(err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, errorbank.Unavailable("order service unreachable", errorbank.WithCause(err))
	}
	defer resp.Body.Close()

	// One byte past the limit tells an oversized body apart from one that
	// fits exactly; a cut body would otherwise decode as an empty page.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return 0, nil, errorbank.Unavailable("read order service response", errorbank.WithCause(err))
	}
	if int64(len(body)) > c.maxBody {
		return 0, nil, errorbank.Unavailable("order service response too large",
			errorbank.WithDetail("limitBytes", c.maxBody))
	}
	return resp.StatusCode, body, nil
}

func (c *Client) decodePage(body []byte, page, pageSize int) (dto.Page, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return c.decodeData(trimmed, page, pageSize), nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		c.logger.Warn("unexpected order page response; treating as empty", zap.Error(err))
		return emptyPage(page, pageSize), nil
	}
	if env.Success != nil && !*env.Success {
		return dto.Page{}, errorbank.Unavailable(orDefault(env.message(), "order service rejected the request"))
	}
	return c.decodeData(bytes.TrimSpace(env.Data), page, pageSize), nil
}

func (c *Client) decodeData(data []byte, page, pageSize int) dto.Page {
	switch {
	case len(data) > 0 && data[0] == '[':
		var all []dto.Order
		if err := json.Unmarshal(data, &all); err != nil {
			c.logger.Warn("unexpected order list; treating as empty", zap.Error(err))
			return emptyPage(page, pageSize)
		}
		return slicePage(all, page, pageSize)
	case len(data) > 0 && data[0] == '{':
		var p dto.Page
		if err := json.Unmarshal(data, &p); err != nil {
			c.logger.Warn("unexpected order page; treating as empty", zap.Error(err))
			return emptyPage(page, pageSize)
		}
		return normalizePage(p, page, pageSize)
	default:
		c.logger.Warn("order page response has no data; treating as empty")
		return emptyPage(page, pageSize)
	}
}

func emptyPage(page, pageSize int) dto.Page {
	return dto.Page{Items: []dto.Order{}, Page: page, PageSize: pageSize}
}

// slicePage cuts an unpaginated order list down to the requested page.
func slicePage(all []dto.Order, page, pageSize int) dto.Page {
	p := dto.Page{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: len(all),
		TotalPages: dto.TotalPagesFor(len(all), pageSize),
	}
	start := (page - 1) * pageSize
	if start >= len(all) || start < 0 {
		p.Items = []dto.Order{}
		return p
	}
	end := min(start+pageSize, len(all))
	p.Items = append([]dto.Order(nil), all[start:end]...)
	return p
}

func normalizePage(p dto.Page, page, pageSize int) dto.Page {
	if p.Items == nil {
		p.Items = []dto.Order{}
	}
	if p.Page <= 0 {
		p.Page = page
	}
	if p.PageSize <= 0 {
		p.PageSize = pageSize
	}
	if p.TotalCount < len(p.Items) {
		p.TotalCount = (p.Page-1)*p.PageSize + len(p.Items)
	}
	if len(p.Items) > p.PageSize {
		p.Items = p.Items[:p.PageSize]
	}
	p.TotalPages = dto.TotalPagesFor(p.TotalCount, p.PageSize)
	return p
}

func checkStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	var env envelope
	_ = json.Unmarshal(body, &env)
	msg := orDefault(env.message(), fmt.Sprintf("order service returned status %d", status))
	return errorbank.New(errorbank.KindForStatus(status, errorbank.KindUnavailable), msg,
		errorbank.WithDetail("upstream_status", status))
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
