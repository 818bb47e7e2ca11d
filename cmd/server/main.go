package main

import (
	"context"
	"os"

	"image-processor/internal/app"
	"image-processor/internal/config"
	"image-processor/internal/logging"
)

func main() {
	cfg := config.MustLoad()
	logging.Init(cfg.LogLevel)

	application, err := app.NewApp(context.Background(), cfg, logging.Logger)
	if err != nil {
		logging.Logger.Fatal().Err(err).Msg("failed to build application")
	}

	if err := application.Run(); err != nil {
		logging.Logger.Fatal().Err(err).Msg("server failed")
	}

	os.Exit(0)
}
