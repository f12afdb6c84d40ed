package orderapi

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/orderdesk/internal/desk"
)

// Module provides the order API client as the desk backend.
var Module = fx.Provide(
	fx.Annotate(NewClient, fx.As(new(desk.Backend))),
)
