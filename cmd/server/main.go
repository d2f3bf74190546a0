package main

import (
	"github.com/papertrail-ai/papertrail/backend/internal/server"
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

	server.Init()
}
