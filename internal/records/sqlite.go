// File: internal/records/sqlite.go
package records

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// OpenSQLite opens an embedded SQLite database. dsn is a file path or
// ":memory:". SQLite serializes writers, so the pool holds one connection;
// this also keeps an in-memory database alive for the pool's lifetime.
func OpenSQLite(ctx context.Context, dsn string, logger *zap.Logger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}
	return newDB(sqlEngine{sqlQuerier: sqlQuerier{conn: sqlDB}, db: sqlDB}, sqliteSchema, logger), nil
}
