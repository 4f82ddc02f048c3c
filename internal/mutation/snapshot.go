// File: internal/mutation/snapshot.go
package mutation

import (
	"context"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/graphstore"
)

// NodeStateStatement reads a node's properties by logical id.
func NodeStateStatement(id string) graphstore.Statement {
	return graphstore.Statement{
		Op:     graphstore.OpNodeState,
		Text:   "MATCH (n) WHERE n.id = $id RETURN properties(n) AS props LIMIT 1",
		Params: map[string]any{graphstore.ParamID: id},
	}
}

// EdgeStateStatement reads an edge's properties and endpoints by logical id.
func EdgeStateStatement(id string) graphstore.Statement {
	return graphstore.Statement{
		Op: graphstore.OpEdgeState,
		Text: "MATCH (a)-[r]->(b) WHERE r.id = $id " +
			"RETURN properties(r) AS props, a.id AS source, b.id AS target, type(r) AS type LIMIT 1",
		Params: map[string]any{graphstore.ParamID: id},
	}
}

// Snapshot reads the current state of the entity a change addresses. It
// returns nil when the change creates a new entity or the target is absent.
func Snapshot(ctx context.Context, store graphstore.Store, change schemas.Change) (*schemas.Attributes, error) {
	switch ch := change.(type) {
	case schemas.EditNode:
		return readNode(ctx, store, ch.NodeID)
	case schemas.DeleteNode:
		return readNode(ctx, store, ch.NodeID)
	case schemas.EditEdge:
		return readEdge(ctx, store, ch.EdgeID)
	case schemas.DeleteEdge:
		return readEdge(ctx, store, ch.EdgeID)
	default:
		return nil, nil
	}
}

func readNode(ctx context.Context, store graphstore.Store, id string) (*schemas.Attributes, error) {
	res, err := store.Read(ctx, NodeStateStatement(id))
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	props, _ := res.Records[0].Get("props")
	m, _ := props.(map[string]any)
	attrs := schemas.CoerceMap(m)
	return &attrs, nil
}

func readEdge(ctx context.Context, store graphstore.Store, id string) (*schemas.Attributes, error) {
	res, err := store.Read(ctx, EdgeStateStatement(id))
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	rec := res.Records[0]
	props, _ := rec.Get("props")
	m, _ := props.(map[string]any)
	attrs := schemas.CoerceMap(m)
	for _, pair := range [][2]string{
		{"source", schemas.AttrSource},
		{"target", schemas.AttrTarget},
		{"type", schemas.AttrEdgeType},
	} {
		if v, ok := rec.Get(pair[0]); ok {
			if val, ok := schemas.Coerce(v); ok {
				attrs.Set(pair[1], val)
			}
		}
	}
	return &attrs, nil
}
