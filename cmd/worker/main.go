package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/papertrail-ai/papertrail/backend/internal/bootstrap"
	"github.com/papertrail-ai/papertrail/backend/internal/queue"
	"github.com/papertrail-ai/papertrail/backend/internal/util"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
		JSON:  util.GetEnv("LOG_FORMAT") == "json",
	})
	logger.Init(consoleLogger)

	deps, err := bootstrap.Open(ctx)
	if err != nil {
		logger.Fatal("Failed to open graph storage", "err", err)
	}
	defer deps.Close()

	// Init rabbitmq
	conn, err := queue.Init(ctx)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.RebuildQueue}); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.RebuildQueue)
	if err := queue.ConsumeRebuilds(ctx, ch, deps.Graph); err != nil {
		logger.Fatal("Consumer stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}
