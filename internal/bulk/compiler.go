// File: internal/bulk/compiler.go
package bulk

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
	"github.com/xkilldash9x/graphedit/internal/graphstore"
	"github.com/xkilldash9x/graphedit/internal/sanitize"
)

// DefaultMaxBatch is the largest batch a single statement may carry.
const DefaultMaxBatch = 1000

// DefaultEndpointKey is the endpoint match field when a batch names none.
const DefaultEndpointKey = "id"

// NodeBatch is a homogeneous set of node records sharing labels and a merge key.
// The first label is the merge identity; the rest are added, never removed.
type NodeBatch struct {
	Labels   []string             `json:"labels" yaml:"labels"`
	MergeKey string               `json:"merge_key" yaml:"merge_key"`
	Nodes    []schemas.Attributes `json:"nodes" yaml:"-"`
}

// EdgeBatch is a homogeneous set of edge records. Each record carries the
// endpoint match values under "source" and "target"; every other field is
// written onto the relationship.
type EdgeBatch struct {
	EdgeType    string               `json:"edge_type" yaml:"edge_type"`
	SourceLabel string               `json:"source_label" yaml:"source_label"`
	TargetLabel string               `json:"target_label" yaml:"target_label"`
	SourceKey   string               `json:"source_key,omitempty" yaml:"source_key"`
	TargetKey   string               `json:"target_key,omitempty" yaml:"target_key"`
	Edges       []schemas.Attributes `json:"edges" yaml:"-"`
}

// Compiler validates batches and compiles them into one UNWIND/MERGE
// statement each. Validation is all-or-nothing: a single bad record rejects
// the whole batch before any statement is built.
type Compiler struct {
	san      *sanitize.Sanitizer
	maxBatch int
	log      *zap.Logger
}

// NewCompiler creates a Compiler. A non-positive maxBatch uses DefaultMaxBatch.
func NewCompiler(san *sanitize.Sanitizer, maxBatch int, logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if san == nil {
		san = sanitize.New(logger, nil)
	}
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Compiler{san: san, maxBatch: maxBatch, log: logger.Named("bulk_compiler")}
}

// MaxBatch returns the configured batch ceiling.
func (c *Compiler) MaxBatch() int { return c.maxBatch }

func (c *Compiler) checkSize(n int) error {
	if n > c.maxBatch {
		return apperr.Validation("bulk", "batch of %d records exceeds the maximum of %d", n, c.maxBatch)
	}
	return nil
}

// CompileNodes returns nil, nil for an empty batch.
func (c *Compiler) CompileNodes(b NodeBatch) (*graphstore.Statement, error) {
	if len(b.Nodes) == 0 {
		return nil, nil
	}
	if err := c.checkSize(len(b.Nodes)); err != nil {
		return nil, err
	}
	if len(b.Labels) == 0 {
		return nil, apperr.Validation("bulk", "labels must contain at least one label")
	}
	if b.MergeKey == "" {
		return nil, apperr.Validation("bulk", "merge_key is required")
	}
	if err := c.san.CheckAll(sanitize.Lowercase, "labels", b.Labels...); err != nil {
		return nil, err
	}
	if err := c.san.Check(sanitize.Generic, "merge_key", b.MergeKey); err != nil {
		return nil, err
	}

	rows := make([]any, len(b.Nodes))
	for i, rec := range b.Nodes {
		if !rec.Has(b.MergeKey) {
			return nil, recordError(i, "is missing merge key %q", b.MergeKey)
		}
		rows[i] = rec.Params()
	}

	var text strings.Builder
	text.WriteString("UNWIND $rows AS row\n")
	fmt.Fprintf(&text, "MERGE (d:%s {%s: row.%s})\n", b.Labels[0], b.MergeKey, b.MergeKey)
	if len(b.Labels) > 1 {
		fmt.Fprintf(&text, "SET d:%s\n", strings.Join(b.Labels[1:], ":"))
	}
	text.WriteString("SET d += row\n")
	text.WriteString("RETURN count(d) AS merged")

	return &graphstore.Statement{
		Op:     graphstore.OpMergeNodes,
		Text:   text.String(),
		Params: map[string]any{graphstore.ParamRows: rows},
		Idents: map[string][]string{
			graphstore.IdentLabels:   append([]string(nil), b.Labels...),
			graphstore.IdentMergeKey: {b.MergeKey},
		},
	}, nil
}

// CompileEdges returns nil, nil for an empty batch.
func (c *Compiler) CompileEdges(b EdgeBatch) (*graphstore.Statement, error) {
	if len(b.Edges) == 0 {
		return nil, nil
	}
	if err := c.checkSize(len(b.Edges)); err != nil {
		return nil, err
	}
	sourceKey, targetKey := b.SourceKey, b.TargetKey
	if sourceKey == "" {
		sourceKey = DefaultEndpointKey
	}
	if targetKey == "" {
		targetKey = DefaultEndpointKey
	}

	checks := []struct{ field, token string }{
		{"edge_type", b.EdgeType},
		{"source_label", b.SourceLabel},
		{"target_label", b.TargetLabel},
		{"source_key", sourceKey},
		{"target_key", targetKey},
	}
	for _, chk := range checks {
		if err := c.san.Check(sanitize.Generic, chk.field, chk.token); err != nil {
			return nil, err
		}
	}

	rows := make([]any, len(b.Edges))
	for i, rec := range b.Edges {
		for _, key := range []string{schemas.AttrSource, schemas.AttrTarget} {
			if !rec.Has(key) {
				return nil, recordError(i, "is missing %q", key)
			}
		}
		src, _ := rec.Get(schemas.AttrSource)
		tgt, _ := rec.Get(schemas.AttrTarget)
		rows[i] = map[string]any{
			graphstore.ParamSource: src.Interface(),
			graphstore.ParamTarget: tgt.Interface(),
			graphstore.ParamProps:  rec.Without(schemas.AttrSource, schemas.AttrTarget).Params(),
		}
	}

	text := fmt.Sprintf(
		"UNWIND $rows AS row\n"+
			"MATCH (s:%s {%s: row.source})\n"+
			"MATCH (t:%s {%s: row.target})\n"+
			"MERGE (s)-[r:%s]->(t)\n"+
			"SET r += row.props\n"+
			"RETURN count(r) AS created",
		b.SourceLabel, sourceKey, b.TargetLabel, targetKey, b.EdgeType,
	)

	return &graphstore.Statement{
		Op:     graphstore.OpMergeEdges,
		Text:   text,
		Params: map[string]any{graphstore.ParamRows: rows},
		Idents: map[string][]string{
			graphstore.IdentType:        {b.EdgeType},
			graphstore.IdentSourceLabel: {b.SourceLabel},
			graphstore.IdentTargetLabel: {b.TargetLabel},
			graphstore.IdentSourceKey:   {sourceKey},
			graphstore.IdentTargetKey:   {targetKey},
		},
	}, nil
}

// recordError names the offending record by its 1-based position.
func recordError(index int, format string, args ...any) error {
	return apperr.Validation("bulk", "record %d "+format, append([]any{index + 1}, args...)...)
}
