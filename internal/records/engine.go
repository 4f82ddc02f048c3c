// File: internal/records/engine.go
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// The record store is written once against these small interfaces; each
// driver adapts its own connection type to them.

type row interface {
	Scan(dest ...any) error
}

type rowSet interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type querier interface {
	exec(ctx context.Context, q string, args ...any) (int64, error)
	query(ctx context.Context, q string, args ...any) (rowSet, error)
	queryRow(ctx context.Context, q string, args ...any) row
}

type txn interface {
	querier
	commit(ctx context.Context) error
	rollback(ctx context.Context) error
}

type engine interface {
	querier
	begin(ctx context.Context) (txn, error)
	ping(ctx context.Context) error
	close() error
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// -- PostgreSQL (pgx) --

// DBPool abstracts pgxpool.Pool so the Postgres store can be mocked in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

var placeholderRegex = regexp.MustCompile(`\?`)

// convertPlaceholders converts ? to $1, $2, ... for PostgreSQL.
func convertPlaceholders(q string) string {
	counter := 0
	return placeholderRegex.ReplaceAllStringFunc(q, func(string) string {
		counter++
		return fmt.Sprintf("$%d", counter)
	})
}

type pgConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgQuerier struct{ conn pgConn }

func (p pgQuerier) exec(ctx context.Context, q string, args ...any) (int64, error) {
	tag, err := p.conn.Exec(ctx, convertPlaceholders(q), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p pgQuerier) query(ctx context.Context, q string, args ...any) (rowSet, error) {
	return p.conn.Query(ctx, convertPlaceholders(q), args...)
}

func (p pgQuerier) queryRow(ctx context.Context, q string, args ...any) row {
	return p.conn.QueryRow(ctx, convertPlaceholders(q), args...)
}

type pgEngine struct {
	pgQuerier
	pool DBPool
}

func (e pgEngine) begin(ctx context.Context) (txn, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return pgTxn{pgQuerier: pgQuerier{conn: tx}, tx: tx}, nil
}

func (e pgEngine) ping(ctx context.Context) error { return e.pool.Ping(ctx) }

func (e pgEngine) close() error {
	e.pool.Close()
	return nil
}

type pgTxn struct {
	pgQuerier
	tx pgx.Tx
}

func (t pgTxn) commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t pgTxn) rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// -- SQLite (database/sql + modernc) --

type sqlConn interface {
	ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, q string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, q string, args ...any) *sql.Row
}

type sqlQuerier struct{ conn sqlConn }

type sqlRows struct{ *sql.Rows }

func (r sqlRows) Close() { _ = r.Rows.Close() }

func (s sqlQuerier) exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := s.conn.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s sqlQuerier) query(ctx context.Context, q string, args ...any) (rowSet, error) {
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (s sqlQuerier) queryRow(ctx context.Context, q string, args ...any) row {
	return s.conn.QueryRowContext(ctx, q, args...)
}

type sqlEngine struct {
	sqlQuerier
	db *sql.DB
}

func (e sqlEngine) begin(ctx context.Context) (txn, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return sqlTxn{sqlQuerier: sqlQuerier{conn: tx}, tx: tx}, nil
}

func (e sqlEngine) ping(ctx context.Context) error { return e.db.PingContext(ctx) }
func (e sqlEngine) close() error                   { return e.db.Close() }

type sqlTxn struct {
	sqlQuerier
	tx *sql.Tx
}

func (t sqlTxn) commit(context.Context) error { return t.tx.Commit() }

func (t sqlTxn) rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
