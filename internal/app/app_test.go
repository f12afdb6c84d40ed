package app

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func TestModulesValidate(t *testing.T) {
	for name, opts := range map[string]fx.Option{
		"http":   HTTP,
		"worker": Worker,
		"desk":   Desk,
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, fx.ValidateApp(opts, FxLogger))
		})
	}
}
