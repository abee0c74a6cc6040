// Package main is the entry point for the mixtape server.
//
// MAIN PACKAGE IN GO:
// The main package is kept minimal. Its job is to:
//  1. Read configuration (config.Load: .env file, then environment)
//  2. Create the logger
//  3. Build and start the server
//
// All actual logic lives in imported packages (internal/server, internal/handler, etc.).
//
// WHY cmd/server/?
// The cmd/ directory is the Go convention for executable entry points.
// This project has two: cmd/server (the HTTP API) and cmd/import (one-off
// migration of the legacy JSON files).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/mixtape/internal/config"
	"github.com/sakif/mixtape/internal/logger"
	"github.com/sakif/mixtape/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// The logger depends on config (format and level), so a config error
	// goes straight to stderr.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Text in dev, JSON lines in prod.
	log := logger.New(os.Stdout, cfg.Env, cfg.LogLevel)

	if cfg.SecretGenerated {
		log.Warn("JWT_SECRET not set: using a random secret, sessions end on restart")
	}

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
