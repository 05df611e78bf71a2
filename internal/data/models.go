// internal/data/models.go
package data

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	dialectPostgres = "postgres"
	booksTable      = "books"
	loansTable      = "loans"

	logMsgSQLExecuted   = "executed sql for: "
	logMsgOperation     = "store operation: "
	logMsgBuildQuery    = "failed to build query"
	logMsgDBQueryFailed = "database query execution failed"
	logAttrError        = "error"
	logAttrQuery        = "query"
	logAttrDurationMS   = "duration_ms"
	logAttrRowCount     = "row_count"
	logAttrID           = "id"
)

var (
	// ErrRecordNotFound is returned when a query finds no matching row.
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicateRecord is returned when a write violates a unique constraint.
	ErrDuplicateRecord = errors.New("duplicate record")
	// ErrReferencedRecord is returned when a delete is blocked by a foreign key.
	ErrReferencedRecord = errors.New("record is still referenced")
	// ErrNilDatabaseConnection is returned by NewModels when no connection pool is supplied.
	ErrNilDatabaseConnection = errors.New("nil database connection")
)

// Logger receives SQL statements with timings at Debug level, write
// operations at Info level and failures at Error level.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Models groups the Postgres-backed stores for all tables.
type Models struct {
	Books BookModel
	Loans LoanModel
}

// Option configures the stores built by NewModels.
type Option func(*queryLog)

// WithLogger sets the logger shared by all stores.
func WithLogger(logger Logger) Option {
	return func(l *queryLog) {
		l.logger = logger
	}
}

// NewModels constructs Models wired up to the given connection pool.
// The pool may use either the lib/pq ("postgres") or the pgx ("pgx") driver.
func NewModels(db *sqlx.DB, options ...Option) (Models, error) {
	if db == nil {
		return Models{}, ErrNilDatabaseConnection
	}

	log := queryLog{}
	for _, option := range options {
		option(&log)
	}

	return Models{
		Books: BookModel{DB: db, log: log},
		Loans: LoanModel{DB: db, log: log},
	}, nil
}

// Ping verifies the database is reachable.
func (m Models) Ping(ctx context.Context) error {
	return m.Books.DB.PingContext(ctx)
}

// classifyError maps constraint violations reported by either driver onto the
// package sentinels, keeping the driver error in the chain.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	switch pgCode(err) {
	case pgerrcode.UniqueViolation:
		return errors.Join(ErrDuplicateRecord, err)
	case pgerrcode.ForeignKeyViolation:
		return errors.Join(ErrReferencedRecord, err)
	default:
		return err
	}
}

func pgCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	return ""
}

// countRows runs a single-value COUNT query.
func countRows(ctx context.Context, db *sqlx.DB, log queryLog, action, query string, args []any) (int, error) {
	var total int

	start := time.Now()
	err := db.GetContext(ctx, &total, query, args...)
	log.sql(action, query, time.Since(start))
	if err != nil {
		log.failure(logMsgDBQueryFailed, err, query)
		return 0, err
	}

	return total, nil
}

// queryLog is a nil-safe wrapper around the optional Logger.
type queryLog struct {
	logger Logger
}

func (l queryLog) sql(action, query string, duration time.Duration) {
	if l.logger != nil {
		l.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, durationToMilliseconds(duration), logAttrQuery, query)
	}
}

func (l queryLog) operation(action string, args ...any) {
	if l.logger != nil {
		l.logger.Info(logMsgOperation+action, args...)
	}
}

func (l queryLog) failure(msg string, err error, query string) {
	if l.logger != nil {
		l.logger.Error(msg, logAttrError, err.Error(), logAttrQuery, query)
	}
}

// durationToMilliseconds converts d to float64 milliseconds with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
