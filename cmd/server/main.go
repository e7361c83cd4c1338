/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll withholding server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Build the zap logger
  3. Load embedded rate tables; start the directory reloader if configured
  4. Open the record store (memory, SQLite or Postgres)
  5. Create API handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (environment variable in brackets):
  -port        HTTP server port [PORT] (default: 8080)
  -driver      memory | sqlite | postgres [DB_DRIVER] (default: sqlite)
  -db          SQLite database path [DB_PATH] (default: payroll.db)
               Use ":memory:" for in-memory database
  -dsn         Postgres connection string [DATABASE_URL]
  -rates-dir   Directory of rate table documents [RATE_TABLE_DIR]
  -log-level   debug | info | warn | error [LOG_LEVEL] (default: info)
  -log-json    JSON log output [LOG_JSON] (default: false)
  -cors        Comma-separated allowed origins [CORS_ORIGINS]

  Flags win over environment variables.

RATE TABLES:
  With a SQL driver, tables published through POST /api/rates are stored
  in the database and take precedence over the embedded and directory
  tables. With the memory driver they live in the registry only.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the reloader and close the database
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/payroll.db"

  # Run against Postgres
  DATABASE_URL=postgres://localhost/payroll ./server -driver=postgres

  # Run in memory with debug logs
  ./server -driver=memory -log-level=debug

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Databases
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/logger"
	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/records"
	"github.com/warp/payroll-engine/store/memory"
	"github.com/warp/payroll-engine/store/postgres"
	"github.com/warp/payroll-engine/store/sqlite"
)

type config struct {
	port     int
	driver   string
	dbPath   string
	dsn      string
	ratesDir string
	logLevel string
	logJSON  bool
	origins  string
}

// backend is what a driver contributes to the handler.
type backend struct {
	store     records.Store
	provider  ratetable.Provider
	publisher api.TablePublisher
	close     func()
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg := parseFlags()

	log, err := logger.New(logger.Config{Level: cfg.logLevel, EnableJSON: cfg.logJSON})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func parseFlags() config {
	var cfg config
	flag.IntVar(&cfg.port, "port", envInt("PORT", 8080), "HTTP server port")
	flag.StringVar(&cfg.driver, "driver", env("DB_DRIVER", "sqlite"), "Record store: memory, sqlite or postgres")
	flag.StringVar(&cfg.dbPath, "db", env("DB_PATH", "payroll.db"), "SQLite database path")
	flag.StringVar(&cfg.dsn, "dsn", env("DATABASE_URL", ""), "Postgres connection string")
	flag.StringVar(&cfg.ratesDir, "rates-dir", env("RATE_TABLE_DIR", ""), "Directory of rate table documents")
	flag.StringVar(&cfg.logLevel, "log-level", env("LOG_LEVEL", "info"), "Log level")
	flag.BoolVar(&cfg.logJSON, "log-json", envBool("LOG_JSON", false), "JSON log output")
	flag.StringVar(&cfg.origins, "cors", env("CORS_ORIGINS", ""), "Comma-separated allowed origins")
	flag.Parse()
	return cfg
}

func run(cfg config, log *zap.Logger) error {
	// Rate tables
	registry, err := ratetable.NewDefaultRegistry()
	if err != nil {
		return errors.Wrap(err, "load embedded rate tables")
	}
	reloader := api.NewRateTableReloader(registry, cfg.ratesDir, log.Named("rates"))
	reloader.Start()
	defer reloader.Stop()

	// Record store
	b, err := openBackend(context.Background(), cfg, registry)
	if err != nil {
		return err
	}
	defer b.close()

	handler := api.NewHandler(b.provider, b.publisher, records.NewLedger(b.store), log)
	router := api.NewRouter(handler, splitOrigins(cfg.origins)...)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.Int("port", cfg.port),
			zap.String("driver", cfg.driver),
			zap.Ints("years", registry.Years()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return errors.Wrap(err, "listen")
	case <-quit:
	}

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}

	log.Info("server stopped")
	return nil
}

func openBackend(ctx context.Context, cfg config, registry *ratetable.Registry) (backend, error) {
	switch cfg.driver {
	case "memory":
		return backend{
			store:     memory.New(),
			provider:  registry,
			publisher: registry,
			close:     func() {},
		}, nil

	case "sqlite":
		s, err := sqlite.New(cfg.dbPath)
		if err != nil {
			return backend{}, errors.Wrap(err, "failed to initialize database")
		}
		return backend{
			store:     s,
			provider:  ratetable.Chain{s, registry},
			publisher: s,
			close:     func() { _ = s.Close() },
		}, nil

	case "postgres":
		if cfg.dsn == "" {
			return backend{}, errors.New("postgres driver needs -dsn or DATABASE_URL")
		}
		s, err := postgres.New(ctx, cfg.dsn)
		if err != nil {
			return backend{}, errors.Wrap(err, "failed to connect to postgres")
		}
		return backend{
			store:     s,
			provider:  ratetable.Chain{s, registry},
			publisher: s,
			close:     s.Close,
		}, nil
	}
	return backend{}, errors.Errorf("unknown driver %q", cfg.driver)
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

func env(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
