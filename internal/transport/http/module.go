package http

import (
	"go.uber.org/fx"

	desktransport "github.com/Additional-Code/orderdesk/internal/transport/http/desk"
	ordertransport "github.com/Additional-Code/orderdesk/internal/transport/http/order"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	desktransport.Module,
)
