// File: internal/bulk/loader.go
package bulk

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
	"github.com/xkilldash9x/graphedit/internal/graphstore"
	"github.com/xkilldash9x/graphedit/internal/metrics"
)

// AuditRecorder appends an entry to the audit ledger.
type AuditRecorder interface {
	Record(ctx context.Context, entry schemas.AuditEntry) (*schemas.AuditEntry, error)
}

// Invalidator drops read caches that a merged batch makes stale.
type Invalidator interface {
	InvalidateCache()
}

// Loader executes compiled batches and records each one in the audit ledger.
type Loader struct {
	store    graphstore.Store
	compiler *Compiler
	audit    AuditRecorder
	caches   []Invalidator
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithInvalidators registers caches to purge after every merged batch.
func WithInvalidators(inv ...Invalidator) LoaderOption {
	return func(l *Loader) { l.caches = append(l.caches, inv...) }
}

// NewLoader creates a Loader. audit and m may be nil.
func NewLoader(store graphstore.Store, compiler *Compiler, audit AuditRecorder, m *metrics.Metrics, logger *zap.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if compiler == nil {
		compiler = NewCompiler(nil, 0, logger)
	}
	l := &Loader{
		store:    store,
		compiler: compiler,
		audit:    audit,
		metrics:  m,
		log:      logger.Named("bulk_loader"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadNodes merges a node batch and returns how many records were merged.
func (l *Loader) LoadNodes(ctx context.Context, actor schemas.Principal, b NodeBatch) (int, error) {
	if err := actor.Require("bulk.nodes", schemas.RoleAdmin); err != nil {
		return 0, err
	}
	st, err := l.compiler.CompileNodes(b)
	if err != nil || st == nil {
		return 0, err
	}
	n, err := l.execute(ctx, *st, "merged", len(b.Nodes))
	if err != nil {
		return 0, err
	}

	summary := schemas.NewAttributes(
		"labels", strings.Join(b.Labels, ","),
		"merge_key", b.MergeKey,
		"count", int64(n),
	)
	l.record(ctx, actor, schemas.ActionBulkNodes, summary, st.Text)
	l.metrics.BulkRows("nodes", n)
	l.log.Info("Bulk node batch merged",
		zap.String("user_id", actor.UserID),
		zap.Strings("labels", b.Labels),
		zap.Int("count", n))
	return n, nil
}

// LoadEdges merges an edge batch and returns how many relationships were
// created or updated. Rows whose endpoints do not exist contribute nothing.
func (l *Loader) LoadEdges(ctx context.Context, actor schemas.Principal, b EdgeBatch) (int, error) {
	if err := actor.Require("bulk.edges", schemas.RoleAdmin); err != nil {
		return 0, err
	}
	st, err := l.compiler.CompileEdges(b)
	if err != nil || st == nil {
		return 0, err
	}
	n, err := l.execute(ctx, *st, "created", len(b.Edges))
	if err != nil {
		return 0, err
	}

	summary := schemas.NewAttributes(
		schemas.AttrEdgeType, b.EdgeType,
		"source_label", b.SourceLabel,
		"target_label", b.TargetLabel,
		"count", int64(n),
	)
	l.record(ctx, actor, schemas.ActionBulkEdges, summary, st.Text)
	l.metrics.BulkRows("edges", n)
	l.log.Info("Bulk edge batch merged",
		zap.String("user_id", actor.UserID),
		zap.String("edge_type", b.EdgeType),
		zap.Int("count", n))
	return n, nil
}

func (l *Loader) execute(ctx context.Context, st graphstore.Statement, countKey string, fallback int) (int, error) {
	if l.store == nil {
		return 0, apperr.ErrStoreNotConfigured
	}
	res, err := l.store.Write(ctx, st)
	if err != nil {
		l.log.Error("Bulk statement failed", zap.String("op", string(st.Op)), zap.Error(err))
		return 0, err
	}
	for _, c := range l.caches {
		c.InvalidateCache()
	}
	return countOf(res, countKey, fallback), nil
}

// record appends the audit entry. The batch is already committed, so a
// ledger failure is logged rather than reported to the caller.
func (l *Loader) record(ctx context.Context, actor schemas.Principal, action schemas.AuditAction, summary schemas.Attributes, text string) {
	if l.audit == nil {
		return
	}
	_, err := l.audit.Record(ctx, schemas.AuditEntry{
		Action:    action,
		UserID:    actor.UserID,
		DataAfter: &summary,
		Statement: text,
	})
	if err != nil {
		l.log.Error("Failed to audit bulk batch", zap.String("action", string(action)), zap.Error(err))
	}
}

func countOf(res *graphstore.Result, key string, fallback int) int {
	if res == nil || len(res.Records) == 0 {
		return fallback
	}
	v, ok := res.Records[0].Get(key)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return fallback
}
