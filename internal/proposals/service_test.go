// File: internal/proposals/service_test.go
package proposals

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
	"github.com/xkilldash9x/graphedit/internal/audit"
	"github.com/xkilldash9x/graphedit/internal/graphstore"
	"github.com/xkilldash9x/graphedit/internal/mutation"
	"github.com/xkilldash9x/graphedit/internal/records"
)

var (
	alice = schemas.Principal{UserID: "alice", Role: schemas.RoleUser}
	mona  = schemas.Principal{UserID: "mona", Role: schemas.RoleMod}
	root  = schemas.Principal{UserID: "root", Role: schemas.RoleAdmin}
)

type countingCache struct{ purges int }

func (c *countingCache) InvalidateCache() { c.purges++ }

type fixture struct {
	svc   *Service
	db    *records.DB
	graph *graphstore.Memory
	cache *countingCache
	logs  *observer.ObservedLogs
}

func openDB(t *testing.T) *records.DB {
	t.Helper()
	db, err := records.Open(context.Background(), "sqlite", ":memory:", 0, zap.NewNop())
	require.NoError(t, err)
	return db
}

func newFixture(t *testing.T, db *records.DB) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	graph := graphstore.NewMemory(zap.NewNop())
	seedNode(t, graph, "A", "person")
	seedNode(t, graph, "B", "org")

	cache := &countingCache{}
	svc := NewService(db, graph, mutation.NewCompiler(nil, logger), audit.NewLedger(db, logger), logger,
		WithInvalidators(cache))
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return &fixture{svc: svc, db: db, graph: graph, cache: cache, logs: logs}
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := openDB(t)
	t.Cleanup(func() { _ = db.Close() })
	return newFixture(t, db)
}

func seedNode(t *testing.T, g graphstore.Store, id, nodeType string) {
	t.Helper()
	c, err := mutation.NewCompiler(nil, nil).Compile(schemas.AddNode{
		ID: id, Label: id, NodeType: nodeType,
		Attrs: schemas.NewAttributes("id", id, "label", id, "node_type", nodeType),
	})
	require.NoError(t, err)
	_, err = c.Execute(context.Background(), g)
	require.NoError(t, err)
}

func moneyEdge() SubmitRequest {
	return SubmitRequest{
		Type:      schemas.ChangeAddEdge,
		DataAfter: schemas.NewAttributes("source", "A", "target", "B", "edge_type", "MONEY", "amount", 50000),
		Reason:    "wire transfer in the ledger",
	}
}

func auditActions(t *testing.T, db records.Store, proposalID string) []schemas.AuditAction {
	t.Helper()
	entries, err := db.ListAudit(context.Background(), records.AuditFilter{ProposalID: proposalID})
	require.NoError(t, err)
	// Oldest first.
	out := make([]schemas.AuditAction, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i].Action)
	}
	return out
}

func nodeState(t *testing.T, g graphstore.Store, id string) *schemas.Attributes {
	t.Helper()
	attrs, err := mutation.Snapshot(context.Background(), g, schemas.EditNode{NodeID: id})
	require.NoError(t, err)
	return attrs
}

func TestSubmitAndApprove(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	out, err := f.svc.Submit(ctx, alice, moneyEdge())
	require.NoError(t, err)
	p := out.Proposal
	assert.Equal(t, schemas.StatusPending, p.Status)
	amount, ok := p.DataAfter.Get("amount")
	require.True(t, ok)
	assert.True(t, amount.Equal(schemas.Int(50000)))
	assert.NotEmpty(t, p.TargetEdgeID, "add-edge should be addressable after creation")
	assert.Nil(t, out.Applied)

	reviewed, err := f.svc.Review(ctx, mona, p.ID, ReviewRequest{Status: schemas.StatusApproved, ReviewComment: "checked"})
	require.NoError(t, err)
	require.NotNil(t, reviewed.Applied)
	assert.True(t, reviewed.Applied.Success)
	assert.Equal(t, schemas.StatusApplied, reviewed.Proposal.Status)
	assert.Equal(t, "mona", reviewed.Proposal.ReviewerID)
	assert.NotNil(t, reviewed.Proposal.AppliedAt)

	stored, err := f.svc.Get(ctx, alice, p.ID)
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusApplied, stored.Status)

	actions := auditActions(t, f.db, p.ID)
	assert.Equal(t, []schemas.AuditAction{
		schemas.ActionProposalCreated,
		schemas.ActionProposalApproved,
		schemas.ActionProposalApplied,
	}, actions, "approval should append exactly the approved and applied entries")

	entries, err := f.db.ListAudit(ctx, records.AuditFilter{ProposalID: p.ID, Action: schemas.ActionProposalApplied})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Statement, "CREATE (a)-[r:MONEY $props]->(b)")

	edge, err := mutation.Snapshot(ctx, f.graph, schemas.EditEdge{EdgeID: p.TargetEdgeID})
	require.NoError(t, err)
	require.NotNil(t, edge)
	got, _ := edge.Get("amount")
	assert.True(t, got.Equal(schemas.Int(50000)))
	assert.Equal(t, 1, f.cache.purges)
}

func TestDirectApply(t *testing.T) {
	ctx := context.Background()

	t.Run("should create and apply in one call", func(t *testing.T) {
		f := setup(t)
		req := moneyEdge()
		req.DirectApply = true

		out, err := f.svc.Submit(ctx, root, req)
		require.NoError(t, err)
		assert.Equal(t, schemas.StatusApplied, out.Proposal.Status)
		assert.Equal(t, "root", out.Proposal.ReviewerID)
		require.NotNil(t, out.Applied)
		assert.True(t, out.Applied.Success)

		actions := auditActions(t, f.db, out.Proposal.ID)
		require.NotEmpty(t, actions)
		assert.Equal(t, schemas.AuditAction("direct_add_edge"), actions[0])
		assert.Equal(t, []schemas.AuditAction{"direct_add_edge", schemas.ActionProposalApplied}, actions)
	})

	t.Run("should refuse directApply below admin", func(t *testing.T) {
		f := setup(t)
		req := moneyEdge()
		req.DirectApply = true

		_, err := f.svc.Submit(ctx, mona, req)
		require.Error(t, err)
		assert.Equal(t, 403, apperr.HTTPStatus(err))

		list, err := f.svc.List(ctx, alice, records.ProposalFilter{})
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestSubmitRejectsBeforePersisting(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	cases := []struct {
		name string
		req  SubmitRequest
		kind apperr.Kind
	}{
		{
			name: "no-op edit",
			req:  SubmitRequest{Type: schemas.ChangeEditNode, TargetNodeID: "A", DataAfter: schemas.NewAttributes("id", "A", "node_type", "org"), Reason: "r"},
			kind: apperr.KindValidation,
		},
		{
			name: "hostile node type",
			req:  SubmitRequest{Type: schemas.ChangeAddNode, DataAfter: schemas.NewAttributes("label", "X", "node_type", "x) DETACH DELETE (n"), Reason: "r"},
			kind: apperr.KindSanitization,
		},
		{
			name: "absent target",
			req:  SubmitRequest{Type: schemas.ChangeDeleteNode, TargetNodeID: "ghost", Reason: "r"},
			kind: apperr.KindNotFound,
		},
		{
			name: "missing reason",
			req:  SubmitRequest{Type: schemas.ChangeDeleteNode, TargetNodeID: "A"},
			kind: apperr.KindValidation,
		},
		{
			name: "unknown type",
			req:  SubmitRequest{Type: "merge-node", Reason: "r"},
			kind: apperr.KindValidation,
		},
	}
	for _, tc := range cases {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, alice, tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}

	_, err := f.svc.Submit(ctx, alice, cases[0].req)
	assert.ErrorIs(t, err, apperr.ErrNoOpChange)

	list, err := f.svc.List(ctx, alice, records.ProposalFilter{})
	require.NoError(t, err)
	assert.Empty(t, list, "rejected submissions must leave no proposal")

	_, err = f.svc.Submit(ctx, schemas.Guest, moneyEdge())
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestEditReflectsLatestChange(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	add := SubmitRequest{Type: schemas.ChangeAddNode, DataAfter: schemas.NewAttributes("label", "Acme Corp", "node_type", "org"), Reason: "new"}
	out, err := f.svc.Submit(ctx, root, SubmitRequest{Type: add.Type, DataAfter: add.DataAfter, Reason: add.Reason, DirectApply: true})
	require.NoError(t, err)
	assert.Equal(t, "Acme_Corp", out.Proposal.TargetNodeID)

	for _, notes := range []string{"first", "second"} {
		sub, err := f.svc.Submit(ctx, alice, SubmitRequest{
			Type: schemas.ChangeEditNode, TargetNodeID: "Acme_Corp",
			DataAfter: schemas.NewAttributes("notes", notes), Reason: "notes",
		})
		require.NoError(t, err)
		_, err = f.svc.Review(ctx, mona, sub.Proposal.ID, ReviewRequest{Status: schemas.StatusApproved})
		require.NoError(t, err)
	}

	state := nodeState(t, f.graph, "Acme_Corp")
	require.NotNil(t, state)
	notes, _ := state.GetString("notes")
	assert.Equal(t, "second", notes)
	nodeType, _ := state.GetString("node_type")
	assert.Equal(t, "org", nodeType)
}

func TestSnapshotCapturedBeforeDelete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	out, err := f.svc.Submit(ctx, alice, SubmitRequest{Type: schemas.ChangeDeleteNode, TargetNodeID: "B", Reason: "dup"})
	require.NoError(t, err)
	require.NotNil(t, out.Proposal.DataBefore)
	label, _ := out.Proposal.DataBefore.GetString("label")
	assert.Equal(t, "B", label)

	_, err = f.svc.Review(ctx, mona, out.Proposal.ID, ReviewRequest{Status: schemas.StatusApproved})
	require.NoError(t, err)
	assert.Nil(t, nodeState(t, f.graph, "B"))
}

func TestApprovalRereadsTarget(t *testing.T) {
	ctx := context.Background()
	editA := func(notes string) SubmitRequest {
		return SubmitRequest{
			Type: schemas.ChangeEditNode, TargetNodeID: "A",
			DataAfter: schemas.NewAttributes("notes", notes), Reason: "notes",
		}
	}

	t.Run("should record the state replaced at approval time", func(t *testing.T) {
		f := setup(t)
		sub, err := f.svc.Submit(ctx, alice, editA("from alice"))
		require.NoError(t, err)

		direct := editA("from root")
		direct.DirectApply = true
		_, err = f.svc.Submit(ctx, root, direct)
		require.NoError(t, err)

		out, err := f.svc.Review(ctx, mona, sub.Proposal.ID, ReviewRequest{Status: schemas.StatusApproved})
		require.NoError(t, err)
		require.True(t, out.Applied.Success)
		require.NotNil(t, out.Proposal.DataBefore)
		notes, _ := out.Proposal.DataBefore.GetString("notes")
		assert.Equal(t, "from root", notes)

		entries, err := f.db.ListAudit(ctx, records.AuditFilter{ProposalID: sub.Proposal.ID, Action: schemas.ActionProposalApplied})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.NotNil(t, entries[0].DataBefore)
		notes, _ = entries[0].DataBefore.GetString("notes")
		assert.Equal(t, "from root", notes)

		stored, err := f.svc.Get(ctx, alice, sub.Proposal.ID)
		require.NoError(t, err)
		notes, _ = stored.DataBefore.GetString("notes")
		assert.Equal(t, "from root", notes)
	})

	t.Run("should leave the proposal pending when the target is gone", func(t *testing.T) {
		f := setup(t)
		sub, err := f.svc.Submit(ctx, alice, editA("late"))
		require.NoError(t, err)
		_, err = f.svc.Submit(ctx, root, SubmitRequest{Type: schemas.ChangeDeleteNode, TargetNodeID: "A", Reason: "gone", DirectApply: true})
		require.NoError(t, err)

		_, err = f.svc.Review(ctx, mona, sub.Proposal.ID, ReviewRequest{Status: schemas.StatusApproved})
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

		stored, err := f.svc.Get(ctx, alice, sub.Proposal.ID)
		require.NoError(t, err)
		assert.Equal(t, schemas.StatusPending, stored.Status)
	})
}

func TestReview(t *testing.T) {
	ctx := context.Background()

	t.Run("should reject without touching the graph", func(t *testing.T) {
		f := setup(t)
		out, err := f.svc.Submit(ctx, alice, SubmitRequest{Type: schemas.ChangeDeleteNode, TargetNodeID: "A", Reason: "spam"})
		require.NoError(t, err)

		res, err := f.svc.Review(ctx, mona, out.Proposal.ID, ReviewRequest{Status: schemas.StatusRejected, ReviewComment: "no"})
		require.NoError(t, err)
		assert.Equal(t, schemas.StatusRejected, res.Proposal.Status)
		assert.Nil(t, res.Applied)
		assert.NotNil(t, nodeState(t, f.graph, "A"))
		assert.Zero(t, f.cache.purges)
	})

	t.Run("should refuse to review twice", func(t *testing.T) {
		f := setup(t)
		out, err := f.svc.Submit(ctx, alice, moneyEdge())
		require.NoError(t, err)
		_, err = f.svc.Review(ctx, mona, out.Proposal.ID, ReviewRequest{Status: schemas.StatusRejected})
		require.NoError(t, err)

		_, err = f.svc.Review(ctx, mona, out.Proposal.ID, ReviewRequest{Status: schemas.StatusApproved})
		assert.ErrorIs(t, err, apperr.ErrAlreadyReviewed)
		assert.Equal(t, 409, apperr.HTTPStatus(err))

		p, err := f.svc.Get(ctx, alice, out.Proposal.ID)
		require.NoError(t, err)
		assert.Equal(t, schemas.StatusRejected, p.Status)
	})

	t.Run("should validate the decision and the role", func(t *testing.T) {
		f := setup(t)
		out, err := f.svc.Submit(ctx, alice, moneyEdge())
		require.NoError(t, err)

		_, err = f.svc.Review(ctx, mona, out.Proposal.ID, ReviewRequest{Status: schemas.StatusApplied})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

		_, err = f.svc.Review(ctx, alice, out.Proposal.ID, ReviewRequest{Status: schemas.StatusApproved})
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

		_, err = f.svc.Review(ctx, mona, "missing", ReviewRequest{Status: schemas.StatusApproved})
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestApplyFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	req := moneyEdge()
	req.DataAfter = schemas.NewAttributes("source", "A", "target", "nobody", "edge_type", "MONEY")
	out, err := f.svc.Submit(ctx, alice, req)
	require.NoError(t, err)

	res, err := f.svc.Review(ctx, mona, out.Proposal.ID, ReviewRequest{Status: schemas.StatusApproved})
	require.NoError(t, err, "a failed apply is an outcome, not an error")
	require.NotNil(t, res.Applied)
	assert.False(t, res.Applied.Success)
	assert.Contains(t, res.Applied.Error, "nobody")
	assert.Equal(t, schemas.StatusFailed, res.Proposal.Status)
	assert.Contains(t, res.Proposal.ErrorMessage, "does not exist")

	stored, err := f.svc.Get(ctx, alice, out.Proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusFailed, stored.Status)
	assert.Nil(t, stored.AppliedAt)

	assert.Equal(t, []schemas.AuditAction{
		schemas.ActionProposalCreated,
		schemas.ActionProposalApproved,
		schemas.ActionProposalFailed,
	}, auditActions(t, f.db, out.Proposal.ID))

	failures := f.logs.FilterMessage("Failed to apply proposal")
	require.Equal(t, 1, failures.Len())
	assert.Equal(t, zapcore.ErrorLevel, failures.All()[0].Level)
	assert.Zero(t, f.cache.purges)
}

func TestWithoutGraphStore(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	t.Cleanup(func() { _ = db.Close() })
	svc := NewService(db, nil, nil, audit.NewLedger(db, nil), nil)

	_, err := svc.Submit(ctx, alice, moneyEdge())
	assert.ErrorIs(t, err, apperr.ErrStoreNotConfigured)
	assert.Equal(t, 503, apperr.HTTPStatus(err))
}

func TestListProposals(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Submit(ctx, alice, moneyEdge())
		require.NoError(t, err)
	}

	all, err := f.svc.List(ctx, alice, records.ProposalFilter{Status: schemas.StatusPending, Limit: 500})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = f.svc.List(ctx, alice, records.ProposalFilter{Status: "limbo"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.List(ctx, schemas.Guest, records.ProposalFilter{})
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestConcurrentApprovalsApplyOnce(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	db := openDB(t)
	defer db.Close()
	f := newFixture(t, db)

	out, err := f.svc.Submit(ctx, alice, moneyEdge())
	require.NoError(t, err)

	const reviewers = 6
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		applied  int
		conflict int
	)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Review(ctx, mona, out.Proposal.ID, ReviewRequest{Status: schemas.StatusApproved})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && res.Applied != nil && res.Applied.Success:
				applied++
			case errors.Is(err, apperr.ErrAlreadyReviewed):
				conflict++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, reviewers-1, conflict)

	res, err := f.graph.Read(ctx, graphstore.Statement{Op: graphstore.OpCountEdges})
	require.NoError(t, err)
	v, _ := res.Records[0].Get("count")
	assert.EqualValues(t, 1, v)
}
