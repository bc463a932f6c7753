package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"smokealert/internal/config"
	"smokealert/internal/logger"
	"smokealert/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config; defaults to an in-memory store")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Logger.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
		}
		cfg = loaded
	}
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := service.New(ctx, cfg)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize service")
	}

	if err := svc.Run(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("service exited with error")
		os.Exit(1)
	}
	logger.Logger.Info().Msg("exited")
}
