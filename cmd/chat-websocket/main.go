package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/wahyupambudi/chat-websocket/internal/server"
	"github.com/wahyupambudi/chat-websocket/pkg/config"
	"github.com/wahyupambudi/chat-websocket/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := server.NewApp(logger, ctx, cfg)
	if err := app.Run(); err != nil {
		logger.Error("application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application shut down successfully")
}
