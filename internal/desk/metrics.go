package desk

import (
	"context"

	"github.com/Additional-Code/orderdesk/internal/observability"
)

// Metrics records desk activity. A nil *Metrics records nothing.
type Metrics struct {
	inst *observability.Instruments
}

// NewMetrics binds the desk to the instruments of obs.
func NewMetrics(obs *observability.Manager) *Metrics {
	return &Metrics{inst: obs.Instruments()}
}

func (m *Metrics) pageLoaded(ctx context.Context) {
	if m != nil {
		m.inst.DeskPageLoaded(ctx)
	}
}

func (m *Metrics) fetchFailed(ctx context.Context) {
	if m != nil {
		m.inst.DeskFetchFailed(ctx)
	}
}

func (m *Metrics) responseSuperseded(ctx context.Context) {
	if m != nil {
		m.inst.DeskResponseSuperseded(ctx)
	}
}

func (m *Metrics) actionRequested(ctx context.Context, action string, ok bool) {
	if m != nil {
		m.inst.DeskAction(ctx, action, ok)
	}
}

func (m *Metrics) sessionsChanged(delta int) {
	if m != nil {
		m.inst.DeskSessions(context.Background(), delta)
	}
}
