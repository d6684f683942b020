// Casewise
// Copyright (C) 2025 Casewise (engineering@casewise.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator assembles the Casewise AI chat service.
//
// The orchestrator coordinates the components behind POST /api/ai/chat:
// the conversation store, the practice-details cache, the upstream
// streaming model client, Prometheus metrics, and the HTTP routes.
//
// # Hosted Integration
//
// Dependency injection via extensions.ServiceOptions lets the hosted
// platform provide real implementations of:
//   - AuthProvider: session-token validation against the platform
//   - AuditLogger: compliance audit logging
//
// # Usage
//
// Self-hosted (no-op extensions):
//
//	cfg := orchestrator.Config{Port: 8080, DataDir: "/var/lib/casewise"}
//	svc, err := orchestrator.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package orchestrator

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/casewise/casewise/pkg/extensions"
	"github.com/casewise/casewise/pkg/logging"
	"github.com/casewise/casewise/services/llm"
	"github.com/casewise/casewise/services/orchestrator/handlers"
	"github.com/casewise/casewise/services/orchestrator/observability"
	"github.com/casewise/casewise/services/orchestrator/routes"
	"github.com/casewise/casewise/services/orchestrator/services"
	"github.com/casewise/casewise/services/orchestrator/store"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the orchestrator lifecycle contract.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until it stops.
	Run() error

	// Router returns the underlying Gin engine for integration tests.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds orchestrator settings. Zero values use defaults.
type Config struct {
	// Port is the HTTP server port. Default: 8080
	Port int

	// DataDir is the badger database directory.
	// Default: "./data/casewise"
	DataDir string

	// InMemoryStore runs the conversation store without disk persistence.
	// Intended for tests and local experiments.
	InMemoryStore bool

	// ChatModel is the upstream model identifier sent with completion
	// requests. Empty uses the stream client's own default.
	ChatModel string

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// EnableMetrics exposes GET /metrics. Default: true
	EnableMetrics bool

	// LogLevel is the minimum log severity ("debug", "info", "warn",
	// "error"). Default: "info"
	LogLevel string

	// LogDir enables JSON file logging when non-empty.
	LogDir string
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data/casewise"
	}
	// EnableMetrics defaults to true (zero value is false, so we need
	// an explicit override here rather than a Config field check).
	cfg.EnableMetrics = true
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// Thread-safe after construction; all fields are read-only once New()
// returns.
type service struct {
	config    Config
	opts      extensions.ServiceOptions
	logger    *logging.Logger
	router    *gin.Engine
	store     *store.BadgerStore
	practices *services.PracticeCache
	upstream  llm.UpstreamClient
	chat      handlers.ChatHandler
}

// New creates a new orchestrator Service with the given configuration.
//
// # Description
//
// New initializes all components in dependency order:
//  1. Applies default configuration for missing values
//  2. Initializes structured logging
//  3. Registers Prometheus metrics
//  4. Opens the conversation store (badger)
//  5. Creates the upstream streaming client
//  6. Builds the chat handler and HTTP routes
//
// If opts is nil, DefaultOptions() is used (no-op auth and audit).
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//   - opts: Extension options for hosted deployments. May be nil.
//
// # Outputs
//
//   - Service: Ready-to-run orchestrator
//   - error: Non-nil if initialization fails
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
	}

	s.logger = logging.New(logging.Config{
		Level:   logging.ParseLevel(s.config.LogLevel),
		LogDir:  s.config.LogDir,
		Service: "orchestrator",
	})

	if s.config.EnableMetrics {
		observability.InitMetrics()
		s.logger.Info("Initialized Prometheus chat metrics")
	}

	if err := s.initStore(); err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	if err := s.initUpstream(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize upstream client: %w", err)
	}

	s.practices = services.NewPracticeCache(s.store, s.logger.Slog())
	s.chat = handlers.NewChatHandler(
		s.store,
		s.practices,
		s.upstream,
		s.config.ChatModel,
		s.logger.Slog(),
		observability.DefaultMetrics,
		s.opts.AuditLogger,
	)

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
// Cleanup of the store and logger is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("Starting orchestrator server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the configured Gin engine. Callers must not register
// additional routes after construction.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initStore opens the badger-backed conversation store.
func (s *service) initStore() error {
	var cfg store.Config
	if s.config.InMemoryStore {
		cfg = store.InMemoryConfig()
		s.logger.Info("Using in-memory conversation store")
	} else {
		cfg = store.DefaultConfig(s.config.DataDir)
		s.logger.Info("Using badger conversation store", "path", s.config.DataDir)
	}
	cfg.Logger = s.logger.Slog()

	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	s.store = st
	return nil
}

// initUpstream creates the streaming model client.
func (s *service) initUpstream() error {
	client, err := llm.NewOpenAIStreamClient()
	if err != nil {
		return err
	}
	s.upstream = client
	return nil
}

// initRouter sets up the Gin engine and registers all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()

	routes.SetupRoutes(s.router, s.chat, s.opts, s.config.EnableMetrics)
}

// cleanup releases resources held by the service.
func (s *service) cleanup() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("conversation store close error", "error", err)
		}
	}
	if s.logger != nil {
		if err := s.logger.Close(); err != nil {
			fmt.Printf("logger close error: %v\n", err)
		}
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
