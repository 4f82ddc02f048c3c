// File: internal/audit/ledger.go
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
	"github.com/xkilldash9x/graphedit/internal/records"
)

// Ledger is the append-only audit trail. Squash is the only operation
// that touches existing entries, and it only stamps them.
type Ledger struct {
	store records.Store
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

// NewLedger creates a Ledger over store.
func NewLedger(store records.Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store: store,
		log:   logger.Named("audit"),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Record appends e, assigning its id and timestamp when unset.
func (l *Ledger) Record(ctx context.Context, e schemas.AuditEntry) (*schemas.AuditEntry, error) {
	if e.Action == "" {
		return nil, apperr.Validation("audit.record", "action is required")
	}
	if e.ID == "" {
		e.ID = l.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}
	// Only a squash may stamp entries.
	e.SquashedIntoID = ""

	if err := l.store.AppendAudit(ctx, &e); err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", e.Action, err)
	}
	l.log.Debug("Audit entry recorded",
		zap.String("id", e.ID),
		zap.String("action", string(e.Action)),
		zap.String("proposal_id", e.ProposalID),
	)
	return &e, nil
}

// List returns entries matching f, newest first. Reading the ledger is a
// moderator capability.
func (l *Ledger) List(ctx context.Context, actor schemas.Principal, f records.AuditFilter) ([]schemas.AuditEntry, error) {
	if err := actor.Require("audit.list", schemas.RoleMod); err != nil {
		return nil, err
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, apperr.Validation("audit.list", "to must not precede from")
	}
	f.Limit = records.ClampPage(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	return l.store.ListAudit(ctx, f)
}

// Squash compacts every unsquashed entry in scope into one new summary
// entry. The scope must name a target or a date range; an empty match set
// fails with apperr.ErrNoMatchingEntries and writes nothing.
func (l *Ledger) Squash(ctx context.Context, actor schemas.Principal, scope records.SquashScope, summary string) (*schemas.AuditEntry, error) {
	const op = "audit.squash"
	if err := actor.Require(op, schemas.RoleAdmin); err != nil {
		return nil, err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil, apperr.Validation(op, "summary is required")
	}
	if !scope.Scoped() {
		return nil, apperr.Validation(op, "provide targetNodeId, targetEdgeId, or a date range to scope the squash")
	}
	if scope.From != nil && scope.To != nil && scope.To.Before(*scope.From) {
		return nil, apperr.Validation(op, "to must not precede from")
	}

	entry := &schemas.AuditEntry{
		ID:            l.newID(),
		Action:        schemas.ActionSquash,
		UserID:        actor.UserID,
		TargetNodeID:  scope.TargetNodeID,
		TargetEdgeID:  scope.TargetEdgeID,
		SquashSummary: summary,
		CreatedAt:     l.now(),
	}
	n, err := l.store.SquashAudit(ctx, scope, entry)
	if err != nil {
		if errors.Is(err, apperr.ErrNoMatchingEntries) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to squash audit entries: %w", err)
	}
	entry.SquashedCount = n

	l.log.Info("Audit entries squashed",
		zap.String("squash_id", entry.ID),
		zap.String("user_id", actor.UserID),
		zap.Int("count", n),
	)
	return entry, nil
}
