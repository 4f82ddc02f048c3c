// File: internal/records/records.go
package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	// ErrStale is returned by a compare-and-set whose expected state no
	// longer holds.
	ErrStale = errors.New("record changed concurrently")
)

// Classify attaches the apperr kind matching a record-store sentinel.
// Errors that already carry a kind, or match no sentinel, pass through.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, op, err)
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrStale):
		return apperr.Wrap(apperr.KindConflict, op, err)
	}
	return err
}

// Store is the relational record store for proposals, audit entries,
// saved views and users.
type Store interface {
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	CreateProposal(ctx context.Context, p *schemas.Proposal) error
	GetProposal(ctx context.Context, id string) (*schemas.Proposal, error)
	ListProposals(ctx context.Context, f ProposalFilter) ([]schemas.Proposal, error)
	// TransitionProposal writes p only if the stored status still equals from.
	TransitionProposal(ctx context.Context, p *schemas.Proposal, from schemas.ProposalStatus) error

	AppendAudit(ctx context.Context, e *schemas.AuditEntry) error
	ListAudit(ctx context.Context, f AuditFilter) ([]schemas.AuditEntry, error)
	// SquashAudit inserts summary and stamps every unsquashed entry in scope
	// with its id, atomically. It returns how many entries were stamped.
	SquashAudit(ctx context.Context, scope SquashScope, summary *schemas.AuditEntry) (int, error)

	CreateView(ctx context.Context, v *schemas.SavedView) error
	GetView(ctx context.Context, slug string) (*schemas.SavedView, error)
	ListViews(ctx context.Context) ([]schemas.SavedView, error)
	DeleteView(ctx context.Context, slug string) error

	CreateUser(ctx context.Context, u *schemas.User) error
	GetUser(ctx context.Context, id string) (*schemas.User, error)
	ListUsers(ctx context.Context) ([]schemas.User, error)
	SetUserRole(ctx context.Context, id string, role schemas.Role) error
}

// ProposalFilter narrows ListProposals. Results are newest first.
type ProposalFilter struct {
	Status   schemas.ProposalStatus
	AuthorID string
	Limit    int
	Offset   int
}

// AuditFilter narrows ListAudit. Results are newest first.
type AuditFilter struct {
	ProposalID      string
	TargetNodeID    string
	TargetEdgeID    string
	UserID          string
	Action          schemas.AuditAction
	From            *time.Time
	To              *time.Time
	IncludeSquashed bool
	Limit           int
	Offset          int
}

// SquashScope selects the entries a squash compacts.
type SquashScope struct {
	TargetNodeID string
	TargetEdgeID string
	From         *time.Time
	To           *time.Time
}

// Scoped reports whether at least one scoping filter is set.
func (s SquashScope) Scoped() bool {
	return s.TargetNodeID != "" || s.TargetEdgeID != "" || s.From != nil || s.To != nil
}

// Page sizes for list endpoints.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ClampPage maps a requested page size onto (0, MaxPageSize].
func ClampPage(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// Open selects the implementation by driver name and applies the schema.
func Open(ctx context.Context, driver, dsn string, maxConns int32, logger *zap.Logger) (*DB, error) {
	var (
		db  *DB
		err error
	)
	switch driver {
	case "sqlite":
		db, err = OpenSQLite(ctx, dsn, logger)
	case "postgres":
		db, err = OpenPostgres(ctx, dsn, maxConns, logger)
	default:
		return nil, fmt.Errorf("unknown records driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
