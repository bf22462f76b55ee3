package main

import (
	"log/slog"
	"os"

	"mertoncli/internal/app"
	"mertoncli/internal/infrastructure"
)

func main() {
	os.Exit(run())
}

func run() int {
	defer infrastructure.CloseLogFile()

	application, err := app.NewApplication()
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		return 1
	}

	if err := application.Run(); err != nil {
		application.Logger.Error("Application error", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
