package main

import (
	"log/slog"
	"os"

	"github.com/sahilchouksey/tuition-api/app"
)

func main() {
	// setup and run app
	if err := app.SetupAndRunServer(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
