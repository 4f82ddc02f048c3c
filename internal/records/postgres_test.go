// File: internal/records/postgres_test.go
package records

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
)

var proposalRowColumns = []string{
	"id", "type", "status", "target_node_id", "target_edge_id", "data_before", "data_after", "reason",
	"author_id", "reviewer_id", "review_comment", "created_at", "reviewed_at", "applied_at", "error_message",
}

func sqlRe(sql string) string { return regexp.QuoteMeta(sql) }

func newMockStore(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	db, err := NewPostgres(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return db, mockPool
}

func TestConvertPlaceholders(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "UPDATE t SET a = $1 WHERE id = $2 AND s = $3", convertPlaceholders("UPDATE t SET a = ? WHERE id = ? AND s = ?"))
}

func TestNewPostgres(t *testing.T) {
	pingErr := errors.New("database unavailable")
	cases := []struct {
		name    string
		pingErr error
	}{
		{name: "should wrap the ping failure", pingErr: pingErr},
		{name: "should accept a reachable pool"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
			require.NoError(t, err)
			defer mockPool.Close()
			mockPool.ExpectPing().WillReturnError(tc.pingErr)

			db, err := NewPostgres(context.Background(), mockPool, zap.NewNop())
			if tc.pingErr != nil {
				assert.ErrorIs(t, err, tc.pingErr)
				assert.Nil(t, db)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, db)
			}
			assert.NoError(t, mockPool.ExpectationsWereMet())
		})
	}
}

func TestPostgresCreateProposal(t *testing.T) {
	ctx := context.Background()

	t.Run("should insert with numbered placeholders", func(t *testing.T) {
		db, mockPool := newMockStore(t)
		p := pendingProposal("p1", epoch)

		mockPool.ExpectExec(sqlRe("INSERT INTO proposals") + `[\s\S]*\$15\)`).
			WithArgs("p1", "add-edge", "pending", "", "", "",
				`{"source":"A","target":"B","edge_type":"MONEY","amount":50000}`,
				"ledger", "u1", "", "", epoch.UnixNano(), int64(0), int64(0), "").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, db.CreateProposal(ctx, p))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should map unique violations", func(t *testing.T) {
		db, mockPool := newMockStore(t)
		mockPool.ExpectExec(sqlRe("INSERT INTO proposals")).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

		err := db.CreateProposal(ctx, pendingProposal("p1", epoch))
		assert.ErrorIs(t, err, ErrAlreadyExists)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresGetProposal(t *testing.T) {
	ctx := context.Background()

	t.Run("should decode a stored row", func(t *testing.T) {
		db, mockPool := newMockStore(t)
		rows := pgxmock.NewRows(proposalRowColumns).AddRow(
			"p1", "edit-node", "applied", "n1", "", `{"label":"Old"}`, `{"label":"New"}`, "typo",
			"u1", "m1", "ok", epoch.UnixNano(), epoch.UnixNano(), epoch.UnixNano(), "",
		)
		mockPool.ExpectQuery(sqlRe("SELECT id, type, status")+`[\s\S]*`+sqlRe("WHERE id = $1")).WithArgs("p1").WillReturnRows(rows)

		p, err := db.GetProposal(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, schemas.ChangeEditNode, p.Type)
		assert.Equal(t, schemas.StatusApplied, p.Status)
		require.NotNil(t, p.DataBefore)
		label, _ := p.DataBefore.GetString("label")
		assert.Equal(t, "Old", label)
		require.NotNil(t, p.AppliedAt)
		assert.True(t, p.AppliedAt.Equal(epoch))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should map no rows to not found", func(t *testing.T) {
		db, mockPool := newMockStore(t)
		mockPool.ExpectQuery(sqlRe("FROM proposals WHERE id = $1")).WithArgs("nope").WillReturnError(pgx.ErrNoRows)

		_, err := db.GetProposal(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresTransitionStale(t *testing.T) {
	ctx := context.Background()
	db, mockPool := newMockStore(t)

	p := pendingProposal("p1", epoch)
	p.Status = schemas.StatusRejected
	mockPool.ExpectExec(sqlRe("UPDATE proposals")+`[\s\S]*`+sqlRe("WHERE id = $8 AND status = $9")).
		WithArgs("rejected", "", "", int64(0), int64(0), "", "", "p1", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mockPool.ExpectQuery(sqlRe("FROM proposals WHERE id = $1")).WithArgs("p1").WillReturnRows(
		pgxmock.NewRows(proposalRowColumns).AddRow(
			"p1", "add-edge", "approved", "", "", "", `{}`, "", "u1", "m1", "", epoch.UnixNano(), epoch.UnixNano(), int64(0), "",
		))

	err := db.TransitionProposal(ctx, p, schemas.StatusPending)
	assert.ErrorIs(t, err, ErrStale)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresSquashAudit(t *testing.T) {
	ctx := context.Background()

	t.Run("should count, insert and stamp in one transaction", func(t *testing.T) {
		db, mockPool := newMockStore(t)
		summary := &schemas.AuditEntry{ID: "s1", Action: schemas.ActionSquash, UserID: "admin", TargetNodeID: "n1", SquashSummary: "tidy", CreatedAt: epoch}

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(sqlRe("SELECT COUNT(*) FROM audit_entries WHERE squashed_into_id = '' AND action <> $1 AND target_node_id = $2")).
			WithArgs("squash", "n1").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))
		mockPool.ExpectExec(sqlRe("INSERT INTO audit_entries")).
			WithArgs("s1", "squash", "", "admin", "n1", "", "", "", "", "", "tidy", 3, epoch.UnixNano()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(sqlRe("UPDATE audit_entries SET squashed_into_id = $1 WHERE squashed_into_id = '' AND action <> $2 AND target_node_id = $3")).
			WithArgs("s1", "squash", "n1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 3))
		// The deferred rollback after commit sees a closed transaction.
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		n, err := db.SquashAudit(ctx, SquashScope{TargetNodeID: "n1"}, summary)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should roll back without logging when nothing matches", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()
		core, logs := observer.New(zapcore.ErrorLevel)
		mockPool.ExpectPing()
		db, err := NewPostgres(ctx, mockPool, zap.New(core))
		require.NoError(t, err)

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(sqlRe("SELECT COUNT(*) FROM audit_entries")).
			WithArgs("squash", "e9").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
		mockPool.ExpectRollback()

		_, err = db.SquashAudit(ctx, SquashScope{TargetEdgeID: "e9"}, &schemas.AuditEntry{ID: "s1"})
		assert.ErrorIs(t, err, apperr.ErrNoMatchingEntries)
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Zero(t, logs.Len())
	})
}
