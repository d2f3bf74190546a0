package util

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/papertrail-ai/papertrail/backend/pkg/logger"
)

// LoadEnv reads .env from the working directory when present. Variables
// already set in the process environment win.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using system environment variables")
	}
}

// lookup returns the trimmed value of key, treating blank values as unset.
func lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func GetEnv(key string) string {
	value, _ := lookup(key)
	return value
}

func GetEnvString(key string, defaultValue string) string {
	if value, ok := lookup(key); ok {
		return value
	}
	return defaultValue
}

// GetEnvNumeric parses key as a float. Unparseable values fall back to
// defaultValue with a warning.
func GetEnvNumeric(key string, defaultValue int) float64 {
	value, ok := lookup(key)
	if !ok {
		return float64(defaultValue)
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logger.Warn("[Config] Invalid number, using default", "key", key, "value", value, "default", defaultValue)
		return float64(defaultValue)
	}
	return parsed
}

func GetEnvInt(key string, defaultValue int) int {
	return int(GetEnvNumeric(key, defaultValue))
}

// GetEnvSeconds reads key as a whole number of seconds.
func GetEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	return time.Duration(GetEnvNumeric(key, int(defaultValue/time.Second))) * time.Second
}

// GetEnvBool accepts the values understood by strconv.ParseBool.
func GetEnvBool(key string, defaultValue bool) bool {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
