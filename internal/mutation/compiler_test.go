package mutation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
	"github.com/xkilldash9x/graphedit/internal/graphstore"
	"github.com/xkilldash9x/graphedit/internal/sanitize"
)

func mustChange(t *testing.T, req schemas.ChangeRequest) schemas.Change {
	t.Helper()
	c, err := schemas.NewChange(req)
	require.NoError(t, err)
	return c
}

func TestCompileStatements(t *testing.T) {
	t.Parallel()
	c := NewCompiler(nil, nil)

	cases := []struct {
		name     string
		req      schemas.ChangeRequest
		wantText string
		wantOp   graphstore.Op
	}{
		{
			name:     "add-node",
			req:      schemas.ChangeRequest{Type: schemas.ChangeAddNode, DataAfter: schemas.NewAttributes("label", "Acme Corp", "node_type", "org")},
			wantText: "CREATE (n:org $props) RETURN n",
			wantOp:   graphstore.OpCreateNode,
		},
		{
			name:     "edit-node",
			req:      schemas.ChangeRequest{Type: schemas.ChangeEditNode, TargetNodeID: "n1", DataAfter: schemas.NewAttributes("notes", "x")},
			wantText: "MATCH (n) WHERE n.id = $id SET n += $props RETURN n",
			wantOp:   graphstore.OpUpdateNode,
		},
		{
			name:     "delete-node",
			req:      schemas.ChangeRequest{Type: schemas.ChangeDeleteNode, TargetNodeID: "n1"},
			wantText: "MATCH (n) WHERE n.id = $id DETACH DELETE n",
			wantOp:   graphstore.OpDeleteNode,
		},
		{
			name:     "add-edge",
			req:      schemas.ChangeRequest{Type: schemas.ChangeAddEdge, DataAfter: schemas.NewAttributes("source", "A", "target", "B", "edge_type", "MONEY", "amount", 50000)},
			wantText: "MATCH (a), (b) WHERE a.id = $source AND b.id = $target CREATE (a)-[r:MONEY $props]->(b) RETURN r",
			wantOp:   graphstore.OpCreateEdge,
		},
		{
			name:     "edit-edge",
			req:      schemas.ChangeRequest{Type: schemas.ChangeEditEdge, TargetEdgeID: "e1", DataAfter: schemas.NewAttributes("amount", 1)},
			wantText: "MATCH ()-[r]->() WHERE r.id = $id SET r += $props RETURN r",
			wantOp:   graphstore.OpUpdateEdge,
		},
		{
			name:     "delete-edge",
			req:      schemas.ChangeRequest{Type: schemas.ChangeDeleteEdge, TargetEdgeID: "e1"},
			wantText: "MATCH ()-[r]->() WHERE r.id = $id DELETE r",
			wantOp:   graphstore.OpDeleteEdge,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			compiled, err := c.Compile(mustChange(t, tc.req))
			require.NoError(t, err)
			assert.Equal(t, tc.wantText, compiled.Statement.Text)
			assert.Equal(t, tc.wantOp, compiled.Statement.Op)
		})
	}
}

func TestCompileBindsValuesAsParameters(t *testing.T) {
	t.Parallel()
	c := NewCompiler(nil, nil)

	hostile := "x' }) DETACH DELETE (m) //"
	compiled, err := c.Compile(mustChange(t, schemas.ChangeRequest{
		Type:         schemas.ChangeEditNode,
		TargetNodeID: hostile,
		DataAfter:    schemas.NewAttributes("notes", hostile),
	}))
	require.NoError(t, err)
	assert.NotContains(t, compiled.Statement.Text, hostile)
	assert.Equal(t, hostile, compiled.Statement.Params[graphstore.ParamID])
	assert.Equal(t, map[string]any{"notes": hostile}, compiled.Statement.Params[graphstore.ParamProps])
}

func TestCompileAddEdgeStripsEndpointKeys(t *testing.T) {
	t.Parallel()
	c := NewCompiler(nil, nil)

	compiled, err := c.Compile(mustChange(t, schemas.ChangeRequest{
		Type:      schemas.ChangeAddEdge,
		DataAfter: schemas.NewAttributes("source", "A", "target", "B", "edge_type", "MONEY", "amount", 50000),
	}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"amount": int64(50000)}, compiled.Statement.Params[graphstore.ParamProps])
	assert.Equal(t, "A", compiled.Statement.Params[graphstore.ParamSource])
	assert.Equal(t, "B", compiled.Statement.Params[graphstore.ParamTarget])
}

func TestCompileRejectsHostileTypes(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)
	c := NewCompiler(sanitize.New(logger, nil), logger)

	_, err := c.Compile(mustChange(t, schemas.ChangeRequest{
		Type:      schemas.ChangeAddEdge,
		DataAfter: schemas.NewAttributes("source", "A", "target", "B", "edge_type", "X]->(b) DETACH DELETE b //"),
	}))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindSanitization))
	assert.Equal(t, 1, logs.FilterField(zap.String("field", "edge_type")).Len())

	_, err = c.Compile(mustChange(t, schemas.ChangeRequest{
		Type:      schemas.ChangeAddNode,
		DataAfter: schemas.NewAttributes("label", "x", "node_type", "bad type"),
	}))
	assert.True(t, apperr.IsKind(err, apperr.KindSanitization))
}

func TestCompileEmptyEditIsNoOp(t *testing.T) {
	t.Parallel()
	c := NewCompiler(nil, nil)

	_, err := c.Compile(mustChange(t, schemas.ChangeRequest{
		Type:         schemas.ChangeEditNode,
		TargetNodeID: "n1",
		DataAfter:    schemas.NewAttributes("id", "n1", "node_type", "person"),
	}))
	assert.ErrorIs(t, err, apperr.ErrNoOpChange)

	_, err = c.Compile(mustChange(t, schemas.ChangeRequest{
		Type:         schemas.ChangeEditEdge,
		TargetEdgeID: "e1",
		DataAfter:    schemas.NewAttributes("source", "A", "target", "B", "edge_type", "T"),
	}))
	assert.ErrorIs(t, err, apperr.ErrNoOpChange)
}

func TestAddThenEditReflectsLatestEdit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := graphstore.NewMemory(nil)
	c := NewCompiler(nil, nil)

	apply := func(req schemas.ChangeRequest) {
		compiled, err := c.Compile(mustChange(t, req))
		require.NoError(t, err)
		_, err = compiled.Execute(ctx, store)
		require.NoError(t, err)
	}

	apply(schemas.ChangeRequest{Type: schemas.ChangeAddNode, DataAfter: schemas.NewAttributes("label", "Jane Doe", "node_type", "person", "city", "Oslo")})
	apply(schemas.ChangeRequest{Type: schemas.ChangeEditNode, TargetNodeID: "Jane_Doe", DataAfter: schemas.NewAttributes("city", "Bergen")})
	apply(schemas.ChangeRequest{Type: schemas.ChangeEditNode, TargetNodeID: "Jane_Doe", DataAfter: schemas.NewAttributes("city", "Tromso", "node_type", "org")})

	state, err := Snapshot(ctx, store, schemas.EditNode{NodeID: "Jane_Doe"})
	require.NoError(t, err)
	require.NotNil(t, state)
	city, _ := state.GetString("city")
	assert.Equal(t, "Tromso", city)
	nodeType, _ := state.GetString("node_type")
	assert.Equal(t, "person", nodeType, "node_type is immutable after creation")
}

func TestExecuteReportsUnmatchedTargets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := graphstore.NewMemory(nil)
	c := NewCompiler(nil, nil)

	for _, req := range []schemas.ChangeRequest{
		{Type: schemas.ChangeAddEdge, DataAfter: schemas.NewAttributes("source", "A", "target", "B", "edge_type", "MONEY")},
		{Type: schemas.ChangeEditNode, TargetNodeID: "ghost", DataAfter: schemas.NewAttributes("x", 1)},
		{Type: schemas.ChangeDeleteNode, TargetNodeID: "ghost"},
		{Type: schemas.ChangeEditEdge, TargetEdgeID: "ghost", DataAfter: schemas.NewAttributes("x", 1)},
		{Type: schemas.ChangeDeleteEdge, TargetEdgeID: "ghost"},
	} {
		compiled, err := c.Compile(mustChange(t, req))
		require.NoError(t, err)
		_, err = compiled.Execute(ctx, store)
		require.Error(t, err, req.Type)
		assert.True(t, apperr.IsKind(err, apperr.KindExecution), req.Type)
	}
}

func TestSnapshotEdgeIncludesEndpoints(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := graphstore.NewMemory(nil)
	c := NewCompiler(nil, nil)

	for _, req := range []schemas.ChangeRequest{
		{Type: schemas.ChangeAddNode, DataAfter: schemas.NewAttributes("id", "A", "label", "A", "node_type", "person")},
		{Type: schemas.ChangeAddNode, DataAfter: schemas.NewAttributes("id", "B", "label", "B", "node_type", "person")},
		{Type: schemas.ChangeAddEdge, DataAfter: schemas.NewAttributes("id", "e1", "source", "A", "target", "B", "edge_type", "MONEY", "amount", 50000)},
	} {
		compiled, err := c.Compile(mustChange(t, req))
		require.NoError(t, err)
		_, err = compiled.Execute(ctx, store)
		require.NoError(t, err)
	}

	state, err := Snapshot(ctx, store, schemas.DeleteEdge{EdgeID: "e1"})
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.Equal(schemas.NewAttributes("id", "e1", "amount", 50000, "source", "A", "target", "B", "edge_type", "MONEY")))

	missing, err := Snapshot(ctx, store, schemas.DeleteNode{NodeID: "nope"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}
