// Package main is the entry point for the library catalog and loans API.
// It wires together configuration, the persistence gateway, the services and
// the HTTP router.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aoideee/library-loans/internal/data"
	"github.com/aoideee/library-loans/internal/data/memdb"
	"github.com/aoideee/library-loans/internal/service"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/lib/pq"              // registers the "postgres" driver
)

// appVersion is the current version of the API, shown in logs and /health.
const appVersion = "1.0.0"

const (
	driverPostgres = "postgres"
	driverPgx      = "pgx"
	driverMemory   = "memory"
)

// serverConfig holds all the values that can be tweaked at startup via command-line flags.
type serverConfig struct {
	port        int
	environment string
	logLevel    string
	db          struct {
		driver       string
		dsn          string
		maxOpenConns int
		maxIdleConns int
		maxIdleTime  time.Duration
	}
	limiter struct {
		enabled bool
		rps     float64
		burst   int
	}
}

// pinger reports whether the persistence gateway is reachable.
type pinger interface {
	Ping(ctx context.Context) error
}

// applicationDependencies bundles every shared resource that HTTP handlers need.
type applicationDependencies struct {
	config serverConfig
	logger *slog.Logger
	books  *service.BookService
	loans  *service.LoanService
	store  pinger

	// done is closed on cleanup; background goroutines tracked by wg exit on it.
	done chan struct{}
	wg   sync.WaitGroup
}

func main() {
	var settings serverConfig

	flag.IntVar(&settings.port, "port", 4000, "Server port")
	flag.StringVar(&settings.environment, "env", "development", "Environment(development|staging|production)")
	flag.StringVar(&settings.logLevel, "log-level", "info", "Log level(debug|info|warn|error)")

	flag.StringVar(&settings.db.driver, "db-driver", driverPostgres, "Database driver(postgres|pgx|memory)")
	flag.StringVar(&settings.db.dsn, "db-dsn", os.Getenv("LIBRARY_DB_DSN"), "PostgreSQL DSN")
	flag.IntVar(&settings.db.maxOpenConns, "db-max-open-conns", 25, "PostgreSQL max open connections")
	flag.IntVar(&settings.db.maxIdleConns, "db-max-idle-conns", 25, "PostgreSQL max idle connections")
	flag.DurationVar(&settings.db.maxIdleTime, "db-max-idle-time", 15*time.Minute, "PostgreSQL max connection idle time")

	flag.BoolVar(&settings.limiter.enabled, "limiter-enabled", true, "Enable rate limiter")
	flag.Float64Var(&settings.limiter.rps, "limiter-rps", 2, "Rate limiter maximum requests per second")
	flag.IntVar(&settings.limiter.burst, "limiter-burst", 4, "Rate limiter maximum burst")

	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(settings.logLevel)}))

	app, cleanup, err := newApplication(settings, logger)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	// serve blocks until a shutdown signal has been handled.
	err = app.serve()
	cleanup()
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

// newApplication opens the configured gateway and builds the services on top of it.
// The returned func stops background goroutines and releases the gateway; call it once.
func newApplication(settings serverConfig, logger *slog.Logger) (*applicationDependencies, func(), error) {
	app := &applicationDependencies{
		config: settings,
		logger: logger,
		done:   make(chan struct{}),
	}

	stop := func() {
		close(app.done)
		app.wg.Wait()
	}

	switch settings.db.driver {
	case driverMemory:
		models := memdb.NewModels()
		app.books = service.NewBookService(models.Books)
		app.loans = service.NewLoanService(models.Loans, models.Books)
		app.store = models

		logger.Info("using in-memory store")
		return app, stop, nil

	case driverPostgres, driverPgx:
		// Both drivers speak database/sql, so one sqlx gateway serves either.
		db, err := openDB(settings)
		if err != nil {
			return nil, nil, err
		}

		models, err := data.NewModels(db, data.WithLogger(logger))
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		app.books = service.NewBookService(models.Books)
		app.loans = service.NewLoanService(models.Loans, models.Books)
		app.store = models

		logger.Info("database connection pool established", "driver", settings.db.driver)
		return app, func() {
			stop()
			db.Close()
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", settings.db.driver)
	}
}

// openDB opens a PostgreSQL connection pool through the configured driver,
// then pings the database with a 5-second timeout to confirm it is reachable.
func openDB(settings serverConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(settings.db.driver, settings.db.dsn)
	if err != nil {
		return nil, err
	}

	// Pool limits come straight from the command-line flags.
	db.SetMaxOpenConns(settings.db.maxOpenConns)
	db.SetMaxIdleConns(settings.db.maxIdleConns)
	db.SetConnMaxIdleTime(settings.db.maxIdleTime)

	// sqlx.Open does not connect; PingContext makes a real round-trip.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
