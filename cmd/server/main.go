/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the agenda server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load config file (created on first run) + AGENDA_* environment
  3. Initialize logger and SQLite store
  4. Build the agenda controller, API handler and reminder sweeper
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS (override config and environment):
  -config  YAML config path (default: ./data/agenda.yaml)
  -listen  HTTP listen address
  -db      SQLite database path; ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reminder sweeper
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/agenda.db"
  AGENDA_WEEK_START=monday ./server -listen=":3000"
  AGENDA_ENABLE_SCENARIOS=true ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Settings and environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andenutri/agenda-engine/agenda"
	"github.com/andenutri/agenda-engine/api"
	"github.com/andenutri/agenda-engine/config"
	"github.com/andenutri/agenda-engine/logger"
	"github.com/andenutri/agenda-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "./data/agenda.yaml", "YAML config path")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// A config that could not be written still carries usable defaults.
		if cfg == nil {
			panic(err)
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	log, lerr := logger.New(cfg.LogMode)
	if lerr != nil {
		panic(lerr)
	}
	defer log.Sync()
	if err != nil {
		log.Warn("config file not saved, using defaults", "path", *configPath, "error", err)
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatal("failed to initialize database", "path", cfg.DBPath, "error", err)
	}
	defer store.Close()

	loc := cfg.Location()

	ctrl := agenda.NewController(store, agenda.GridOptions{
		WeekStart:  cfg.WeekStartDay(),
		FullWeeks:  cfg.FullWeeks,
		SpillWeeks: cfg.SpillWeeks,
	})

	handler := api.NewHandler(ctrl, store, log)
	handler.Location = loc
	if err := handler.SetSessionCacheSize(cfg.SessionCacheSize); err != nil {
		log.Fatal("invalid session cache size", "size", cfg.SessionCacheSize, "error", err)
	}
	if cfg.EnableScenarios {
		handler.Resetter = store
		log.Warn("demo scenarios enabled; loading one resets the database")
	}

	sweeper := api.NewReminderSweeper(ctrl, store, log, cfg.ReminderCron)
	sweeper.Location = loc
	sweeper.OnDue = func(asOf agenda.Date, due []agenda.Event) {
		for _, ev := range due {
			log.Info("reminder due", "as_of", asOf.String(), "id", ev.ID, "title", ev.Title, "date", ev.Date.String())
		}
	}
	if err := sweeper.Start(); err != nil {
		log.Fatal("failed to start reminder sweeper", "error", err)
	}
	handler.Sweeper = sweeper

	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.AllowedOrigins})

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting", "listen", cfg.Listen, "db", cfg.DBPath, "week_start", cfg.WeekStart)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
