// File: internal/records/store.go
package records

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	proposalColumns = `id, type, status, target_node_id, target_edge_id, data_before, data_after, reason,
        author_id, reviewer_id, review_comment, created_at, reviewed_at, applied_at, error_message`
	auditColumns = `id, action, proposal_id, user_id, target_node_id, target_edge_id, data_before, data_after,
        statement, squashed_into_id, squash_summary, squashed_count, created_at`
	viewColumns = `slug, name, description, query, author_id, created_at`
	userColumns = `id, email, name, role, created_at`
)

var _ Store = (*DB)(nil)

// DB implements Store over either PostgreSQL or SQLite.
type DB struct {
	eng    engine
	schema string
	log    *zap.Logger
}

func newDB(eng engine, schema string, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{eng: eng, schema: schema, log: logger.Named("records")}
}

func (db *DB) Ping(ctx context.Context) error { return db.eng.ping(ctx) }
func (db *DB) Close() error                   { return db.eng.close() }

// Migrate applies the embedded schema. It is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.eng.exec(ctx, db.schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	db.log.Info("Record store schema applied")
	return nil
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func (db *DB) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := db.eng.begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.rollback(ctx); rbErr != nil {
			db.log.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// -- encoding helpers --

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func toNanosPtr(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return toNanos(*t)
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func fromNanosPtr(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := fromNanos(n)
	return &t
}

func encodeAttrs(a *schemas.Attributes) (string, error) {
	if a == nil {
		return "", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to encode attributes: %w", err)
	}
	return string(b), nil
}

func decodeAttrs(s string) (*schemas.Attributes, error) {
	if s == "" {
		return nil, nil
	}
	var a schemas.Attributes
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return nil, fmt.Errorf("failed to decode attributes: %w", err)
	}
	return &a, nil
}

func notFound(err error, what, key string) error {
	if isNoRows(err) {
		return fmt.Errorf("%s %q: %w", what, key, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %q: %w", what, key, err)
}

func pageClause(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	if offset < 0 {
		offset = 0
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}

// -- Proposals --

func (db *DB) CreateProposal(ctx context.Context, p *schemas.Proposal) error {
	before, err := encodeAttrs(p.DataBefore)
	if err != nil {
		return err
	}
	after, err := encodeAttrs(&p.DataAfter)
	if err != nil {
		return err
	}
	_, err = db.eng.exec(ctx,
		`INSERT INTO proposals (`+proposalColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Type), string(p.Status), p.TargetNodeID, p.TargetEdgeID, before, after, p.Reason,
		p.AuthorID, p.ReviewerID, p.ReviewComment, toNanos(p.CreatedAt), toNanosPtr(p.ReviewedAt),
		toNanosPtr(p.AppliedAt), p.ErrorMessage,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("proposal %q: %w", p.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert proposal: %w", err)
	}
	return nil
}

func scanProposal(r row) (*schemas.Proposal, error) {
	var (
		p                          schemas.Proposal
		typ, status, before, after string
		created, reviewed, applied int64
	)
	if err := r.Scan(&p.ID, &typ, &status, &p.TargetNodeID, &p.TargetEdgeID, &before, &after, &p.Reason,
		&p.AuthorID, &p.ReviewerID, &p.ReviewComment, &created, &reviewed, &applied, &p.ErrorMessage); err != nil {
		return nil, err
	}
	p.Type = schemas.ChangeKind(typ)
	p.Status = schemas.ProposalStatus(status)
	p.CreatedAt = fromNanos(created)
	p.ReviewedAt = fromNanosPtr(reviewed)
	p.AppliedAt = fromNanosPtr(applied)

	var err error
	if p.DataBefore, err = decodeAttrs(before); err != nil {
		return nil, err
	}
	da, err := decodeAttrs(after)
	if err != nil {
		return nil, err
	}
	if da != nil {
		p.DataAfter = *da
	}
	return &p, nil
}

func (db *DB) GetProposal(ctx context.Context, id string) (*schemas.Proposal, error) {
	p, err := scanProposal(db.eng.queryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "proposal", id)
	}
	return p, nil
}

func (db *DB) ListProposals(ctx context.Context, f ProposalFilter) ([]schemas.Proposal, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.AuthorID != "" {
		conds = append(conds, "author_id = ?")
		args = append(args, f.AuthorID)
	}
	q := `SELECT ` + proposalColumns + ` FROM proposals`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC" + pageClause(f.Limit, f.Offset)

	rows, err := db.eng.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query proposals: %w", err)
	}
	defer rows.Close()

	out := []schemas.Proposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal row: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func (db *DB) TransitionProposal(ctx context.Context, p *schemas.Proposal, from schemas.ProposalStatus) error {
	before, err := encodeAttrs(p.DataBefore)
	if err != nil {
		return err
	}
	n, err := db.eng.exec(ctx,
		`UPDATE proposals
        SET status = ?, reviewer_id = ?, review_comment = ?, reviewed_at = ?, applied_at = ?, error_message = ?,
            data_before = ?
        WHERE id = ? AND status = ?`,
		string(p.Status), p.ReviewerID, p.ReviewComment, toNanosPtr(p.ReviewedAt), toNanosPtr(p.AppliedAt),
		p.ErrorMessage, before, p.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update proposal %q: %w", p.ID, err)
	}
	if n == 0 {
		if _, err := db.GetProposal(ctx, p.ID); err != nil {
			return err
		}
		return fmt.Errorf("proposal %q is no longer %s: %w", p.ID, from, ErrStale)
	}
	return nil
}

// -- Audit --

func (db *DB) AppendAudit(ctx context.Context, e *schemas.AuditEntry) error {
	return appendAudit(ctx, db.eng, e)
}

func appendAudit(ctx context.Context, q querier, e *schemas.AuditEntry) error {
	before, err := encodeAttrs(e.DataBefore)
	if err != nil {
		return err
	}
	after, err := encodeAttrs(e.DataAfter)
	if err != nil {
		return err
	}
	_, err = q.exec(ctx,
		`INSERT INTO audit_entries (`+auditColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Action), e.ProposalID, e.UserID, e.TargetNodeID, e.TargetEdgeID, before, after,
		e.Statement, e.SquashedIntoID, e.SquashSummary, e.SquashedCount, toNanos(e.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("audit entry %q: %w", e.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func scanAudit(r row) (*schemas.AuditEntry, error) {
	var (
		e                     schemas.AuditEntry
		action, before, after string
		created               int64
	)
	if err := r.Scan(&e.ID, &action, &e.ProposalID, &e.UserID, &e.TargetNodeID, &e.TargetEdgeID, &before, &after,
		&e.Statement, &e.SquashedIntoID, &e.SquashSummary, &e.SquashedCount, &created); err != nil {
		return nil, err
	}
	e.Action = schemas.AuditAction(action)
	e.CreatedAt = fromNanos(created)
	var err error
	if e.DataBefore, err = decodeAttrs(before); err != nil {
		return nil, err
	}
	if e.DataAfter, err = decodeAttrs(after); err != nil {
		return nil, err
	}
	return &e, nil
}

func (db *DB) ListAudit(ctx context.Context, f AuditFilter) ([]schemas.AuditEntry, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if f.ProposalID != "" {
		add("proposal_id = ?", f.ProposalID)
	}
	if f.TargetNodeID != "" {
		add("target_node_id = ?", f.TargetNodeID)
	}
	if f.TargetEdgeID != "" {
		add("target_edge_id = ?", f.TargetEdgeID)
	}
	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		add("action = ?", string(f.Action))
	}
	if f.From != nil {
		add("created_at >= ?", toNanos(*f.From))
	}
	if f.To != nil {
		add("created_at <= ?", toNanos(*f.To))
	}
	if !f.IncludeSquashed {
		conds = append(conds, "squashed_into_id = ''")
	}

	q := `SELECT ` + auditColumns + ` FROM audit_entries`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY seq DESC" + pageClause(f.Limit, f.Offset)

	rows, err := db.eng.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	out := []schemas.AuditEntry{}
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func squashConditions(s SquashScope) ([]string, []any) {
	conds := []string{"squashed_into_id = ''", "action <> ?"}
	args := []any{string(schemas.ActionSquash)}
	if s.TargetNodeID != "" {
		conds = append(conds, "target_node_id = ?")
		args = append(args, s.TargetNodeID)
	}
	if s.TargetEdgeID != "" {
		conds = append(conds, "target_edge_id = ?")
		args = append(args, s.TargetEdgeID)
	}
	if s.From != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, toNanos(*s.From))
	}
	if s.To != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, toNanos(*s.To))
	}
	return conds, args
}

func (db *DB) SquashAudit(ctx context.Context, scope SquashScope, summary *schemas.AuditEntry) (int, error) {
	if !scope.Scoped() {
		return 0, apperr.Validation("records.squash", "squash requires a target node, target edge or date range")
	}
	where, args := squashConditions(scope)
	clause := strings.Join(where, " AND ")

	var stamped int
	err := db.withTx(ctx, func(q querier) error {
		var matched int64
		if err := q.queryRow(ctx, `SELECT COUNT(*) FROM audit_entries WHERE `+clause, args...).Scan(&matched); err != nil {
			return fmt.Errorf("failed to count squash scope: %w", err)
		}
		if matched == 0 {
			return apperr.ErrNoMatchingEntries
		}

		summary.SquashedCount = int(matched)
		if err := appendAudit(ctx, q, summary); err != nil {
			return err
		}
		n, err := q.exec(ctx, `UPDATE audit_entries SET squashed_into_id = ? WHERE `+clause,
			append([]any{summary.ID}, args...)...)
		if err != nil {
			return fmt.Errorf("failed to stamp squashed entries: %w", err)
		}
		stamped = int(n)
		return nil
	})
	if err != nil {
		summary.SquashedCount = 0
		return 0, err
	}
	return stamped, nil
}

// -- Saved views --

func (db *DB) CreateView(ctx context.Context, v *schemas.SavedView) error {
	query, err := json.Marshal(v.Query)
	if err != nil {
		return fmt.Errorf("failed to encode view query: %w", err)
	}
	_, err = db.eng.exec(ctx,
		`INSERT INTO saved_views (`+viewColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		v.Slug, v.Name, v.Description, string(query), v.AuthorID, toNanos(v.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("view %q: %w", v.Slug, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert view: %w", err)
	}
	return nil
}

func scanView(r row) (*schemas.SavedView, error) {
	var (
		v       schemas.SavedView
		query   string
		created int64
	)
	if err := r.Scan(&v.Slug, &v.Name, &v.Description, &query, &v.AuthorID, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(query), &v.Query); err != nil {
		return nil, fmt.Errorf("failed to decode view query: %w", err)
	}
	v.CreatedAt = fromNanos(created)
	return &v, nil
}

func (db *DB) GetView(ctx context.Context, slug string) (*schemas.SavedView, error) {
	v, err := scanView(db.eng.queryRow(ctx, `SELECT `+viewColumns+` FROM saved_views WHERE slug = ?`, slug))
	if err != nil {
		return nil, notFound(err, "view", slug)
	}
	return v, nil
}

func (db *DB) ListViews(ctx context.Context) ([]schemas.SavedView, error) {
	rows, err := db.eng.query(ctx, `SELECT `+viewColumns+` FROM saved_views ORDER BY created_at DESC, slug`)
	if err != nil {
		return nil, fmt.Errorf("failed to query views: %w", err)
	}
	defer rows.Close()

	out := []schemas.SavedView{}
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan view row: %w", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func (db *DB) DeleteView(ctx context.Context, slug string) error {
	n, err := db.eng.exec(ctx, `DELETE FROM saved_views WHERE slug = ?`, slug)
	if err != nil {
		return fmt.Errorf("failed to delete view %q: %w", slug, err)
	}
	if n == 0 {
		return fmt.Errorf("view %q: %w", slug, ErrNotFound)
	}
	return nil
}

// -- Users --

func (db *DB) CreateUser(ctx context.Context, u *schemas.User) error {
	_, err := db.eng.exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, string(u.Role), toNanos(u.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %q: %w", u.Email, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func scanUser(r row) (*schemas.User, error) {
	var (
		u       schemas.User
		role    string
		created int64
	)
	if err := r.Scan(&u.ID, &u.Email, &u.Name, &role, &created); err != nil {
		return nil, err
	}
	u.Role = schemas.Role(role)
	u.CreatedAt = fromNanos(created)
	return &u, nil
}

func (db *DB) GetUser(ctx context.Context, id string) (*schemas.User, error) {
	u, err := scanUser(db.eng.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return u, nil
}

func (db *DB) ListUsers(ctx context.Context) ([]schemas.User, error) {
	rows, err := db.eng.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	out := []schemas.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func (db *DB) SetUserRole(ctx context.Context, id string, role schemas.Role) error {
	n, err := db.eng.exec(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(role), id)
	if err != nil {
		return fmt.Errorf("failed to update role for %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	return nil
}
