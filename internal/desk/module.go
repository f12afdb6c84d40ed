package desk

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

// Module provides desk metrics and the session registry to Fx.
var Module = fx.Module("desk",
	fx.Provide(NewMetrics, NewOptions, newSessions),
)

// NewOptions maps configuration onto controller options.
func NewOptions(cfg config.Config) Options {
	return Options{
		DefaultPageSize:  cfg.Desk.DefaultPageSize,
		MaxPageSize:      cfg.Desk.MaxPageSize,
		Location:         cfg.Desk.Location,
		GlobalStatistics: cfg.Desk.GlobalStatistics,
	}.withDefaults()
}

func newSessions(lc fx.Lifecycle, cfg config.Config, backend Backend, logger *zap.Logger, metrics *Metrics, opts Options) *Sessions {
	sessions := NewSessions(backend, logger, metrics, opts, cfg.Desk.SessionTTL)
	lc.Append(fx.Hook{
		OnStart: sessions.Start,
		OnStop:  sessions.Stop,
	})
	return sessions
}
