// File: internal/mutation/compiler.go
package mutation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
	"github.com/xkilldash9x/graphedit/internal/graphstore"
	"github.com/xkilldash9x/graphedit/internal/sanitize"
)

// Compiled is a change turned into a single parameterized statement.
type Compiled struct {
	Change    schemas.Change
	Statement graphstore.Statement
}

// Compiler turns single-entity changes into graph statements. Only the
// node or relationship type is spliced into statement text, and only after
// it passes the sanitizer; every other value is bound as a parameter.
type Compiler struct {
	san *sanitize.Sanitizer
	log *zap.Logger
}

// NewCompiler creates a Compiler.
func NewCompiler(san *sanitize.Sanitizer, logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if san == nil {
		san = sanitize.New(logger, nil)
	}
	return &Compiler{san: san, log: logger.Named("mutation_compiler")}
}

// Compile builds the statement for change. Edits with nothing left to set
// after dropping immutable keys fail with apperr.ErrNoOpChange.
func (c *Compiler) Compile(change schemas.Change) (*Compiled, error) {
	var st graphstore.Statement

	switch ch := change.(type) {
	case schemas.AddNode:
		if err := c.san.Check(sanitize.Generic, schemas.AttrNodeType, ch.NodeType); err != nil {
			return nil, err
		}
		st = graphstore.Statement{
			Op:     graphstore.OpCreateNode,
			Text:   fmt.Sprintf("CREATE (n:%s $props) RETURN n", ch.NodeType),
			Params: map[string]any{graphstore.ParamProps: ch.Attrs.Params()},
			Idents: map[string][]string{graphstore.IdentLabels: {ch.NodeType}},
		}

	case schemas.EditNode:
		if ch.Attrs.Len() == 0 {
			return nil, apperr.ErrNoOpChange
		}
		st = graphstore.Statement{
			Op:   graphstore.OpUpdateNode,
			Text: "MATCH (n) WHERE n.id = $id SET n += $props RETURN n",
			Params: map[string]any{
				graphstore.ParamID:    ch.NodeID,
				graphstore.ParamProps: ch.Attrs.Params(),
			},
		}

	case schemas.DeleteNode:
		st = graphstore.Statement{
			Op:     graphstore.OpDeleteNode,
			Text:   "MATCH (n) WHERE n.id = $id DETACH DELETE n",
			Params: map[string]any{graphstore.ParamID: ch.NodeID},
		}

	case schemas.AddEdge:
		if err := c.san.Check(sanitize.Generic, schemas.AttrEdgeType, ch.EdgeType); err != nil {
			return nil, err
		}
		st = graphstore.Statement{
			Op: graphstore.OpCreateEdge,
			Text: fmt.Sprintf(
				"MATCH (a), (b) WHERE a.id = $source AND b.id = $target CREATE (a)-[r:%s $props]->(b) RETURN r",
				ch.EdgeType,
			),
			Params: map[string]any{
				graphstore.ParamSource: ch.Source,
				graphstore.ParamTarget: ch.TargetID,
				graphstore.ParamProps:  ch.Attrs.Params(),
			},
			Idents: map[string][]string{graphstore.IdentType: {ch.EdgeType}},
		}

	case schemas.EditEdge:
		if ch.Attrs.Len() == 0 {
			return nil, apperr.ErrNoOpChange
		}
		st = graphstore.Statement{
			Op:   graphstore.OpUpdateEdge,
			Text: "MATCH ()-[r]->() WHERE r.id = $id SET r += $props RETURN r",
			Params: map[string]any{
				graphstore.ParamID:    ch.EdgeID,
				graphstore.ParamProps: ch.Attrs.Params(),
			},
		}

	case schemas.DeleteEdge:
		st = graphstore.Statement{
			Op:     graphstore.OpDeleteEdge,
			Text:   "MATCH ()-[r]->() WHERE r.id = $id DELETE r",
			Params: map[string]any{graphstore.ParamID: ch.EdgeID},
		}

	default:
		return nil, apperr.Validation("mutation.compile", "unsupported change %T", change)
	}

	c.log.Debug("Compiled change",
		zap.String("kind", string(change.Kind())),
		zap.String("target", change.Target()),
		zap.String("cypher", st.Text),
	)
	return &Compiled{Change: change, Statement: st}, nil
}

// Verify checks the store's report for the effect the change requires. A
// statement that matched nothing is an execution failure, not a success.
func (c *Compiled) Verify(res *graphstore.Result) error {
	const op = "mutation.apply"
	if res == nil {
		return apperr.Execution(op, fmt.Errorf("store returned no result"))
	}
	counters := res.Counters

	switch ch := c.Change.(type) {
	case schemas.AddNode:
		if counters.NodesCreated < 1 {
			return apperr.Execution(op, fmt.Errorf("node %q was not created", ch.ID))
		}
	case schemas.EditNode:
		if len(res.Records) == 0 {
			return apperr.Execution(op, fmt.Errorf("no node with id %q", ch.NodeID))
		}
	case schemas.DeleteNode:
		if counters.NodesDeleted < 1 {
			return apperr.Execution(op, fmt.Errorf("no node with id %q", ch.NodeID))
		}
	case schemas.AddEdge:
		if counters.RelationshipsCreated < 1 {
			return apperr.Execution(op, fmt.Errorf("source %q or target %q does not exist", ch.Source, ch.TargetID))
		}
	case schemas.EditEdge:
		if len(res.Records) == 0 {
			return apperr.Execution(op, fmt.Errorf("no edge with id %q", ch.EdgeID))
		}
	case schemas.DeleteEdge:
		if counters.RelationshipsDeleted < 1 {
			return apperr.Execution(op, fmt.Errorf("no edge with id %q", ch.EdgeID))
		}
	}
	return nil
}

// Execute writes the compiled statement and verifies its effect.
func (c *Compiled) Execute(ctx context.Context, store graphstore.Store) (*graphstore.Result, error) {
	res, err := store.Write(ctx, c.Statement)
	if err != nil {
		return nil, err
	}
	if err := c.Verify(res); err != nil {
		return res, err
	}
	return res, nil
}
