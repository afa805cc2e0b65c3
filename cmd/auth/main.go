// Command auth runs the comma-auth gateway. Configuration comes from the
// environment; see internal/auth/app.Config.
package main

import (
	"log/slog"
	"os"

	"github.com/commacm/comma-auth/internal/auth/app"
)

func main() {
	application, err := app.New(app.LoadConfig())
	if err != nil {
		slog.Error("comma-auth failed to start", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("comma-auth stopped with error", "error", err)
		os.Exit(1)
	}
}
