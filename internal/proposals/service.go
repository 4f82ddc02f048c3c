// File: internal/proposals/service.go
package proposals

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
	"github.com/xkilldash9x/graphedit/internal/audit"
	"github.com/xkilldash9x/graphedit/internal/graphstore"
	"github.com/xkilldash9x/graphedit/internal/metrics"
	"github.com/xkilldash9x/graphedit/internal/mutation"
	"github.com/xkilldash9x/graphedit/internal/records"
)

// SubmitRequest is the body of a proposal submission.
type SubmitRequest struct {
	Type         schemas.ChangeKind `json:"type"`
	TargetNodeID string             `json:"targetNodeId,omitempty"`
	TargetEdgeID string             `json:"targetEdgeId,omitempty"`
	DataAfter    schemas.Attributes `json:"dataAfter"`
	Reason       string             `json:"reason"`
	DirectApply  bool               `json:"directApply,omitempty"`
}

// ReviewRequest is a moderator's decision on a pending proposal.
type ReviewRequest struct {
	Status        schemas.ProposalStatus `json:"status"`
	ReviewComment string                 `json:"reviewComment,omitempty"`
}

// ApplyResult reports how executing an approved proposal went.
type ApplyResult struct {
	Success   bool   `json:"success"`
	Statement string `json:"statement"`
	Error     string `json:"error,omitempty"`
}

// Outcome is a proposal together with the result of applying it, if it was.
type Outcome struct {
	Proposal *schemas.Proposal `json:"proposal"`
	Applied  *ApplyResult      `json:"applied,omitempty"`
}

// Invalidator drops read caches that a graph write makes stale.
type Invalidator interface {
	InvalidateCache()
}

// Service runs the proposal lifecycle: submit, review, apply. The graph
// write always happens before the record update that reports it.
type Service struct {
	store    records.Store
	graph    graphstore.Store
	compiler *mutation.Compiler
	ledger   *audit.Ledger
	caches   []Invalidator
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithInvalidators registers caches to purge after every applied change.
func WithInvalidators(inv ...Invalidator) Option {
	return func(s *Service) { s.caches = append(s.caches, inv...) }
}

// WithMetrics records lifecycle transitions and mutation outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service. graph may be nil, in which case every
// operation that needs it fails with apperr.ErrStoreNotConfigured.
func NewService(store records.Store, graph graphstore.Store, compiler *mutation.Compiler, ledger *audit.Ledger, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if compiler == nil {
		compiler = mutation.NewCompiler(nil, logger)
	}
	s := &Service{
		store:    store,
		graph:    graph,
		compiler: compiler,
		ledger:   ledger,
		log:      logger.Named("proposals"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// prepared is a validated, compiled change and the state it replaces.
type prepared struct {
	compiled  *mutation.Compiled
	before    *schemas.Attributes
	dataAfter schemas.Attributes
	nodeID    string
	edgeID    string
}

// prepare validates and compiles req and snapshots its target. Nothing is
// persisted, so a rejected change leaves no trace.
func (s *Service) prepare(ctx context.Context, op string, req SubmitRequest) (*prepared, error) {
	if !req.Type.Valid() {
		return nil, apperr.Validation(op, "unknown change type %q", req.Type)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, apperr.Validation(op, "type and reason are required")
	}

	data := req.DataAfter.Clone()
	if req.Type == schemas.ChangeAddEdge {
		if id, _ := data.GetString(schemas.AttrID); id == "" {
			id = req.TargetEdgeID
			if id == "" {
				id = s.newID()
			}
			data.Set(schemas.AttrID, schemas.String(id))
		}
	}

	change, err := schemas.NewChange(schemas.ChangeRequest{
		Type:         req.Type,
		TargetNodeID: req.TargetNodeID,
		TargetEdgeID: req.TargetEdgeID,
		DataAfter:    data,
	})
	if err != nil {
		return nil, err
	}
	compiled, err := s.compiler.Compile(change)
	if err != nil {
		return nil, err
	}
	if s.graph == nil {
		return nil, apperr.ErrStoreNotConfigured
	}

	before, err := s.snapshot(ctx, op, change)
	if err != nil {
		return nil, err
	}

	p := &prepared{compiled: compiled, before: before, dataAfter: data}
	if req.Type.TargetsEdge() {
		p.edgeID = change.Target()
	} else {
		p.nodeID = change.Target()
	}
	return p, nil
}

// snapshot re-reads the state a change replaces. Edits and deletes of an
// absent target fail with NotFound.
func (s *Service) snapshot(ctx context.Context, op string, change schemas.Change) (*schemas.Attributes, error) {
	before, err := mutation.Snapshot(ctx, s.graph, change)
	if err != nil {
		return nil, fmt.Errorf("failed to read current state of %q: %w", change.Target(), err)
	}
	if before != nil {
		return before, nil
	}
	switch change.(type) {
	case schemas.EditNode, schemas.DeleteNode:
		return nil, apperr.NotFound(op, "node %q does not exist", change.Target())
	case schemas.EditEdge, schemas.DeleteEdge:
		return nil, apperr.NotFound(op, "edge %q does not exist", change.Target())
	}
	return nil, nil
}

// Submit records a change request as a pending proposal. With DirectApply
// set it takes the direct path instead, which requires admin.
func (s *Service) Submit(ctx context.Context, actor schemas.Principal, req SubmitRequest) (*Outcome, error) {
	const op = "proposals.submit"
	if err := actor.Require(op, schemas.RoleUser); err != nil {
		return nil, err
	}
	if req.DirectApply {
		if !actor.Role.AtLeast(schemas.RoleAdmin) {
			return nil, apperr.Forbidden(op, "directApply requires role %s", schemas.RoleAdmin)
		}
		return s.DirectApply(ctx, actor, req)
	}

	prep, err := s.prepare(ctx, op, req)
	if err != nil {
		return nil, err
	}
	p := &schemas.Proposal{
		ID:           s.newID(),
		Type:         req.Type,
		Status:       schemas.StatusPending,
		TargetNodeID: prep.nodeID,
		TargetEdgeID: prep.edgeID,
		DataBefore:   prep.before,
		DataAfter:    prep.dataAfter,
		Reason:       strings.TrimSpace(req.Reason),
		AuthorID:     actor.UserID,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateProposal(ctx, p); err != nil {
		return nil, records.Classify(op, err)
	}
	s.metrics.ProposalTransition(string(p.Status))

	after := p.DataAfter.Clone()
	if _, err := s.ledger.Record(ctx, schemas.AuditEntry{
		Action:       schemas.ActionProposalCreated,
		ProposalID:   p.ID,
		UserID:       actor.UserID,
		TargetNodeID: p.TargetNodeID,
		TargetEdgeID: p.TargetEdgeID,
		DataAfter:    &after,
	}); err != nil {
		return nil, err
	}

	s.log.Info("Proposal submitted",
		zap.String("proposal_id", p.ID),
		zap.String("type", string(p.Type)),
		zap.String("author_id", actor.UserID))
	return &Outcome{Proposal: p}, nil
}

// DirectApply creates a proposal already approved by its author and
// applies it in the same call. The first ledger entry for it is the
// direct_* action, followed by proposal_applied or proposal_failed.
func (s *Service) DirectApply(ctx context.Context, actor schemas.Principal, req SubmitRequest) (*Outcome, error) {
	const op = "proposals.direct"
	if err := actor.Require(op, schemas.RoleAdmin); err != nil {
		return nil, err
	}
	prep, err := s.prepare(ctx, op, req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &schemas.Proposal{
		ID:           s.newID(),
		Type:         req.Type,
		Status:       schemas.StatusApproved,
		TargetNodeID: prep.nodeID,
		TargetEdgeID: prep.edgeID,
		DataBefore:   prep.before,
		DataAfter:    prep.dataAfter,
		Reason:       strings.TrimSpace(req.Reason),
		AuthorID:     actor.UserID,
		ReviewerID:   actor.UserID,
		CreatedAt:    now,
		ReviewedAt:   &now,
	}
	if err := s.store.CreateProposal(ctx, p); err != nil {
		return nil, records.Classify(op, err)
	}
	s.metrics.ProposalTransition(string(p.Status))

	after := p.DataAfter.Clone()
	if _, err := s.ledger.Record(ctx, schemas.AuditEntry{
		Action:       schemas.DirectAction(p.Type),
		ProposalID:   p.ID,
		UserID:       actor.UserID,
		TargetNodeID: p.TargetNodeID,
		TargetEdgeID: p.TargetEdgeID,
		DataBefore:   p.DataBefore,
		DataAfter:    &after,
		Statement:    prep.compiled.Statement.Text,
	}); err != nil {
		return nil, err
	}

	result, err := s.apply(ctx, actor, p, prep.compiled)
	if err != nil {
		return nil, err
	}
	return &Outcome{Proposal: p, Applied: result}, nil
}

// Review approves or rejects a pending proposal. Approval compiles the
// change before touching the status, then applies it immediately.
func (s *Service) Review(ctx context.Context, actor schemas.Principal, id string, req ReviewRequest) (*Outcome, error) {
	const op = "proposals.review"
	if err := actor.Require(op, schemas.RoleMod); err != nil {
		return nil, err
	}
	if req.Status != schemas.StatusApproved && req.Status != schemas.StatusRejected {
		return nil, apperr.Validation(op, `status must be "approved" or "rejected"`)
	}

	p, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return nil, records.Classify(op, err)
	}
	if p.Status != schemas.StatusPending {
		return nil, &apperr.Error{
			Kind:    apperr.KindConflict,
			Op:      op,
			Message: fmt.Sprintf("proposal is already %s", p.Status),
			Err:     apperr.ErrAlreadyReviewed,
		}
	}

	var (
		compiled *mutation.Compiled
		before   *schemas.Attributes
	)
	if req.Status == schemas.StatusApproved {
		change, err := schemas.NewChange(schemas.RequestOf(p))
		if err != nil {
			return nil, err
		}
		if compiled, err = s.compiler.Compile(change); err != nil {
			return nil, err
		}
		if s.graph == nil {
			return nil, apperr.ErrStoreNotConfigured
		}
		// The target may have changed since submission.
		if before, err = s.snapshot(ctx, op, change); err != nil {
			return nil, err
		}
	}

	if err := s.transition(ctx, p, req.Status, func(p *schemas.Proposal) {
		now := s.now()
		p.ReviewerID = actor.UserID
		p.ReviewComment = strings.TrimSpace(req.ReviewComment)
		p.ReviewedAt = &now
		if compiled != nil {
			p.DataBefore = before
		}
	}); err != nil {
		if errors.Is(err, records.ErrStale) {
			return nil, apperr.Wrap(apperr.KindConflict, op, apperr.ErrAlreadyReviewed)
		}
		return nil, records.Classify(op, err)
	}

	action := schemas.ActionProposalRejected
	if req.Status == schemas.StatusApproved {
		action = schemas.ActionProposalApproved
	}
	if _, err := s.ledger.Record(ctx, schemas.AuditEntry{
		Action:       action,
		ProposalID:   p.ID,
		UserID:       actor.UserID,
		TargetNodeID: p.TargetNodeID,
		TargetEdgeID: p.TargetEdgeID,
	}); err != nil {
		return nil, err
	}
	s.log.Info("Proposal reviewed",
		zap.String("proposal_id", p.ID),
		zap.String("status", string(p.Status)),
		zap.String("reviewer_id", actor.UserID))

	if compiled == nil {
		return &Outcome{Proposal: p}, nil
	}
	result, err := s.apply(ctx, actor, p, compiled)
	if err != nil {
		return nil, err
	}
	return &Outcome{Proposal: p, Applied: result}, nil
}

// transition moves p to next with a compare-and-set on its current
// status. p is only modified when the store accepted the write.
func (s *Service) transition(ctx context.Context, p *schemas.Proposal, next schemas.ProposalStatus, mutate func(*schemas.Proposal)) error {
	if !p.Status.CanTransition(next) {
		return apperr.Wrap(apperr.KindConflict, "proposals.transition",
			fmt.Errorf("%s to %s: %w", p.Status, next, apperr.ErrInvalidTransition))
	}
	updated := *p
	updated.Status = next
	if mutate != nil {
		mutate(&updated)
	}
	if err := s.store.TransitionProposal(ctx, &updated, p.Status); err != nil {
		return err
	}
	*p = updated
	s.metrics.ProposalTransition(string(next))
	return nil
}

// apply executes an approved proposal and records the outcome. A failed
// execution is not an error: it is recorded on the proposal and the
// ledger, and reported in the result.
func (s *Service) apply(ctx context.Context, actor schemas.Principal, p *schemas.Proposal, compiled *mutation.Compiled) (*ApplyResult, error) {
	const op = "proposals.apply"
	result := &ApplyResult{Statement: compiled.Statement.Text}

	_, execErr := compiled.Execute(ctx, s.graph)

	next, action, outcome := schemas.StatusApplied, schemas.ActionProposalApplied, "applied"
	if execErr != nil {
		next, action, outcome = schemas.StatusFailed, schemas.ActionProposalFailed, "failed"
		result.Error = execErr.Error()
	}
	result.Success = execErr == nil
	s.metrics.Mutation(string(p.Type), outcome)

	if err := s.transition(ctx, p, next, func(p *schemas.Proposal) {
		if execErr != nil {
			p.ErrorMessage = execErr.Error()
			return
		}
		now := s.now()
		p.AppliedAt = &now
	}); err != nil {
		// The graph already reflects the outcome; only the record lags.
		s.log.Error("Failed to record apply outcome",
			zap.String("proposal_id", p.ID),
			zap.String("outcome", outcome),
			zap.Error(err))
		return nil, records.Classify(op, err)
	}

	entry := schemas.AuditEntry{
		Action:       action,
		ProposalID:   p.ID,
		UserID:       actor.UserID,
		TargetNodeID: p.TargetNodeID,
		TargetEdgeID: p.TargetEdgeID,
		Statement:    compiled.Statement.Text,
	}
	if execErr == nil {
		after := p.DataAfter.Clone()
		entry.DataBefore = p.DataBefore
		entry.DataAfter = &after
	}
	if _, err := s.ledger.Record(ctx, entry); err != nil {
		return nil, err
	}

	if execErr != nil {
		s.log.Error("Failed to apply proposal",
			zap.String("proposal_id", p.ID),
			zap.String("type", string(p.Type)),
			zap.Error(execErr))
		return result, nil
	}
	for _, c := range s.caches {
		c.InvalidateCache()
	}
	s.log.Info("Proposal applied",
		zap.String("proposal_id", p.ID),
		zap.String("type", string(p.Type)))
	return result, nil
}

// Get returns one proposal.
func (s *Service) Get(ctx context.Context, actor schemas.Principal, id string) (*schemas.Proposal, error) {
	const op = "proposals.get"
	if err := actor.Require(op, schemas.RoleUser); err != nil {
		return nil, err
	}
	p, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return nil, records.Classify(op, err)
	}
	return p, nil
}

// List returns proposals newest first.
func (s *Service) List(ctx context.Context, actor schemas.Principal, f records.ProposalFilter) ([]schemas.Proposal, error) {
	const op = "proposals.list"
	if err := actor.Require(op, schemas.RoleUser); err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation(op, "unknown status %q", f.Status)
	}
	f.Limit = records.ClampPage(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListProposals(ctx, f)
}
