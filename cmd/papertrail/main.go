package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/papertrail-ai/papertrail/backend/internal/util"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
		JSON:  util.GetEnv("LOG_FORMAT") == "json",
	})
	logger.Init(consoleLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
