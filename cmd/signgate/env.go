package main

import "os"

// Environment variables read at startup.
const (
	envConfigPath = "SIGNGATE_CONFIG_PATH"
	envLogLevel   = "SIGNGATE_LOG_LEVEL"
	envLogFormat  = "SIGNGATE_LOG_FORMAT"
)

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
