// Package response renders the JSON envelope shared by the order API and the
// desk endpoints.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

// Envelope is the body of every response.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
	Error   *ErrorBody     `json:"error,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Kind    errorbank.Kind `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Builder accumulates one response for an echo request.
type Builder struct {
	ctx    echo.Context
	status int
	env    Envelope
	err    error
}

func New(ctx echo.Context) *Builder {
	return &Builder{ctx: ctx, status: http.StatusOK}
}

// WithStatus overrides the status; for errors only statuses of 400 and above
// are honoured, otherwise the error kind decides.
func (b *Builder) WithStatus(status int) *Builder {
	if status > 0 {
		b.status = status
	}
	return b
}

func (b *Builder) WithData(data any) *Builder {
	b.env.Data = data
	return b
}

// WithMessage sets the banner text of a successful response.
func (b *Builder) WithMessage(msg string) *Builder {
	b.env.Message = msg
	return b
}

func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

// WithMeta adds one metadata entry; empty keys are ignored.
func (b *Builder) WithMeta(key string, value any) *Builder {
	if key == "" {
		return b
	}
	if b.env.Meta == nil {
		b.env.Meta = make(map[string]any)
	}
	b.env.Meta[key] = value
	return b
}

// Build writes the response.
func (b *Builder) Build() error {
	if b.err == nil {
		b.env.Success = true
		return b.ctx.JSON(b.status, b.env)
	}

	appErr := errorbank.From(b.err)
	status := b.status
	if status < http.StatusBadRequest {
		status = appErr.StatusCode()
	}
	if id := b.ctx.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		b.WithMeta("requestId", id)
	}
	return b.ctx.JSON(status, Envelope{
		Error: &ErrorBody{
			Kind:    appErr.Kind(),
			Message: appErr.Message(),
			Details: appErr.Details(),
		},
		Meta: b.env.Meta,
	})
}
