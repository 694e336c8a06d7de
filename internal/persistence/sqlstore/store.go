// Package sqlstore implements persistence.Gateway on database/sql. SQLite is
// served by modernc.org/sqlite and PostgreSQL by pgx through its stdlib
// adapter; both share one set of queries. Snapshot graphs are stored as
// snappy compressed JSON and template instantiation runs in a single
// transaction.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/persistence"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store is a SQL backed persistence.Gateway. It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
	now     func() time.Time
	ids     func() string
}

// Option customises a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l.Named("sqlstore") }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open connects to dsn with the dialect's driver and creates the schema.
func Open(ctx context.Context, dialect Dialect, dsn string, opts ...Option) (*Store, error) {
	if dialect.Name == SQLite.Name {
		dsn = withForeignKeys(dsn)
	}
	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		// One writer at a time; also keeps ":memory:" databases on a single
		// connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: database unreachable: %w", err)
	}
	s, err := New(ctx, db, dialect, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and creates the schema.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: dialect,
		logger:  zap.NewNop(),
		now:     time.Now,
		ids:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// withForeignKeys turns on SQLite foreign key enforcement for every pooled
// connection.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// timestamp returns the current time at the precision every dialect keeps.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// inTx runs fn in a transaction, committing when it returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}

// exists reports whether table holds a row with id.
func (s *Store) exists(ctx context.Context, q querier, table, id string) (bool, error) {
	var one int
	err := s.queryRow(ctx, q, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) mustExist(ctx context.Context, q querier, table, id string) error {
	ok, err := s.exists(ctx, q, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(table, id)
	}
	return nil
}

func notFound(table, id string) error {
	return fmt.Errorf("%w: %s %q", cerrors.ErrRecordNotFound, table, id)
}

// noRows maps sql.ErrNoRows to ErrRecordNotFound.
func noRows(err error, table, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(table, id)
	}
	return err
}

func fail(op string, err error) error {
	return cerrors.NewPersistenceError(op, err)
}

var _ persistence.Gateway = (*Store)(nil)
