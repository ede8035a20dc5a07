/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the library lending server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Build the logger and the Prometheus registry
  3. Open the store (memory or SQLite) and load the lending policy
  4. Wire the library, optionally seed a scenario
  5. Start the overdue monitor and the HTTP server

COMMAND-LINE FLAGS:
  -port              HTTP server port (default: 8080)
  -store             memory | sqlite (default: memory)
  -db                SQLite database path (default: ":memory:")
  -policy            Lending policy JSON file (default: built-in policy)
  -seed              Scenario to load at startup (e.g. sample-library)
  -log-level         debug | info | warn | error (default: info)
  -log-format        text | json (default: text)
  -overdue-interval  Overdue check interval, 0 disables (default: 1h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the overdue monitor
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store

EXAMPLES:
  # Transient library with the sample data
  ./server -seed=sample-library

  # Persistent library with a summer lending policy
  ./server -store=sqlite -db=./data/library.db -policy=./summer.json

SEE ALSO:
  - api/server.go: Router configuration
  - factory/policy.go: Policy document format
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/lending-engine/api"
	"github.com/warp/lending-engine/factory"
	"github.com/warp/lending-engine/library"
	"github.com/warp/lending-engine/library/store"
	"github.com/warp/lending-engine/metrics"
	"github.com/warp/lending-engine/store/sqlite"
)

type config struct {
	port            int
	storeKind       string
	dbPath          string
	policyPath      string
	seed            string
	logLevel        string
	logFormat       string
	overdueInterval time.Duration
}

func main() {
	var cfg config
	flag.IntVar(&cfg.port, "port", 8080, "HTTP server port")
	flag.StringVar(&cfg.storeKind, "store", "memory", "Store backend: memory or sqlite")
	flag.StringVar(&cfg.dbPath, "db", sqlite.MemoryDSN, "SQLite database path")
	flag.StringVar(&cfg.policyPath, "policy", "", "Lending policy JSON file")
	flag.StringVar(&cfg.seed, "seed", "", "Scenario to load at startup")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.logFormat, "log-format", "text", "Log format: text or json")
	flag.DurationVar(&cfg.overdueInterval, "overdue-interval", time.Hour, "Overdue check interval, 0 disables")
	flag.Parse()

	logger, err := newLogger(cfg.logLevel, cfg.logFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(reg)

	// Initialize store
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []library.Option{
		library.WithLogger(logger),
		library.WithMetrics(collector),
	}
	policyName := "standard"
	if cfg.policyPath != "" {
		policy, err := factory.NewPolicyFactory().LoadFile(cfg.policyPath)
		if err != nil {
			return err
		}
		opts = append(opts, library.WithPolicy(policy))
		policyName = cfg.policyPath
	}

	lib, err := library.New(st, opts...)
	if err != nil {
		return fmt.Errorf("failed to build library: %w", err)
	}

	handler := api.NewHandler(lib, logger)
	handler.PolicyName = policyName
	if cfg.seed != "" {
		if err := handler.LoadScenarioByID(context.Background(), cfg.seed); err != nil {
			return err
		}
	}

	monitor := api.NewOverdueMonitor(lib.Ledger, collector.Gauge(metrics.OverdueLoans, "Loans past their due date."), logger)
	monitor.CheckInterval = cfg.overdueInterval
	monitor.Enabled = cfg.overdueInterval > 0
	monitor.Start()
	defer monitor.Stop()

	router := api.NewRouter(handler, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "store", cfg.storeKind, "policy", policyName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openStore(cfg config) (library.Store, func(), error) {
	switch cfg.storeKind {
	case "memory":
		return store.NewMemory(), func() {}, nil
	case "sqlite":
		st, err := sqlite.New(cfg.dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return st, func() { st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want memory or sqlite)", cfg.storeKind)
	}
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid -log-level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid -log-format %q (want text or json)", format)
	}
}
