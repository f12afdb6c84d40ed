// Command api serves the order API and the desk endpoints without the CLI.
package main

import (
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/Additional-Code/orderdesk/internal/app"
)

func main() {
	application := fx.New(app.Module, app.FxLogger)
	if err := application.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "orderdesk api: %v\n", err)
		os.Exit(1)
	}
	application.Run()
}
