// Casewise
// Copyright (C) 2025 Casewise (engineering@casewise.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command orchestrator starts the Casewise AI chat HTTP server.
//
// This is the main entry point for the containerized orchestrator
// service. It reads configuration from environment variables and
// starts the server.
//
// # Environment Variables
//
//   - ORCHESTRATOR_PORT: HTTP server port (default: 8080)
//   - CASEWISE_DATA_DIR: badger store directory (default: ./data/casewise)
//   - CHAT_MODEL: upstream model identifier (default: client default)
//   - OPENAI_API_KEY / OPENAI_BASE_URL: upstream credentials and endpoint
//   - GIN_MODE: gin framework mode (debug, release, test)
//   - LOG_LEVEL: minimum log severity (default: info)
//   - LOG_DIR: enables JSON file logging when set
//
// # Usage
//
//	# Build
//	go build -o orchestrator ./cmd/orchestrator
//
//	# Run
//	./orchestrator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/casewise/casewise/services/orchestrator"
)

func main() {
	cfg := orchestrator.Config{
		Port:      getEnvInt("ORCHESTRATOR_PORT", 8080),
		DataDir:   os.Getenv("CASEWISE_DATA_DIR"),
		ChatModel: os.Getenv("CHAT_MODEL"),
		GinMode:   os.Getenv("GIN_MODE"),
		LogLevel:  getEnvString("LOG_LEVEL", "info"),
		LogDir:    os.Getenv("LOG_DIR"),
	}

	slog.Info("Starting orchestrator",
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"chat_model", cfg.ChatModel,
	)

	// No-op auth and audit by default; the hosted platform injects its
	// own ServiceOptions here.
	svc, err := orchestrator.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Orchestrator error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
