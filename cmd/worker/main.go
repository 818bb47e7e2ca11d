package main

import (
	"os"

	"image-processor/internal/app/worker"
	"image-processor/internal/config"
	"image-processor/internal/logging"
)

func main() {
	cfg := config.MustLoad()
	logging.Init(cfg.LogLevel)

	workerApp, err := worker.NewWorker(cfg, logging.Logger)
	if err != nil {
		logging.Logger.Fatal().Err(err).Msg("failed to create worker")
	}

	if err := workerApp.Run(); err != nil {
		logging.Logger.Fatal().Err(err).Msg("worker failed")
	}

	logging.Logger.Info().Msg("worker exited successfully")
	os.Exit(0)
}
