package main

import (
	"log/slog"
	"os"
	"time"

	"scaqmd-backend/cmd/aqictl/cmd"

	"github.com/lmittmann/tint"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	cmd.Execute()
}
