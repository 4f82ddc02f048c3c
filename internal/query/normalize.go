// File: internal/query/normalize.go
package query

import (
	"fmt"
	"sort"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/graphstore"
)

// Normalizer maps raw result rows into the uniform element model.
type Normalizer struct {
	meta map[string]bool
}

// NewNormalizer creates a Normalizer that skips metaLabels when inferring node types.
func NewNormalizer(metaLabels []string) *Normalizer {
	meta := make(map[string]bool, len(metaLabels))
	for _, l := range metaLabels {
		meta[l] = true
	}
	return &Normalizer{meta: meta}
}

// Normalize flattens every node, relationship and path value in results
// into elements, nodes and edges in first-seen order. An element whose
// logical id was already emitted is skipped. Scalar columns are ignored.
func (n *Normalizer) Normalize(results ...*graphstore.Result) schemas.Elements {
	var values []any
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, rec := range res.Records {
			for _, v := range rec.Values {
				values = flatten(values, v)
			}
		}
	}

	// Edge endpoints are store handles; resolve them against every node in
	// the result before emitting anything.
	logical := make(map[string]string)
	for _, v := range values {
		if node, ok := v.(graphstore.NodeValue); ok {
			logical[node.ElementID] = nodeID(node)
		}
	}

	var out schemas.Elements
	seenNodes := make(map[string]bool)
	seenEdges := make(map[string]bool)
	for _, v := range values {
		switch t := v.(type) {
		case graphstore.NodeValue:
			el := n.node(t)
			if id := el.ID(); !seenNodes[id] {
				seenNodes[id] = true
				out = append(out, el)
			}
		case graphstore.RelValue:
			el := n.edge(t, logical)
			if id := el.ID(); !seenEdges[id] {
				seenEdges[id] = true
				out = append(out, el)
			}
		}
	}
	return out
}

func flatten(dst []any, v any) []any {
	switch t := v.(type) {
	case graphstore.NodeValue, graphstore.RelValue:
		return append(dst, t)
	case graphstore.PathValue:
		for i, node := range t.Nodes {
			dst = append(dst, node)
			if i < len(t.Rels) {
				dst = append(dst, t.Rels[i])
			}
		}
		return dst
	case []any:
		for _, item := range t {
			dst = flatten(dst, item)
		}
		return dst
	}
	return dst
}

func nodeID(node graphstore.NodeValue) string {
	if id, ok := node.Props[schemas.AttrID]; ok && id != nil {
		return fmt.Sprint(id)
	}
	return node.ElementID
}

// node puts id, label and node_type first, then the remaining properties
// sorted by key. The label falls back to name, then id.
func (n *Normalizer) node(v graphstore.NodeValue) schemas.Element {
	id := nodeID(v)
	var data schemas.Attributes
	data.Set(schemas.AttrID, schemas.String(id))
	data.Set(schemas.AttrLabel, schemas.String(firstText(v.Props, id, schemas.AttrLabel, schemas.AttrName)))
	if t := n.nodeType(v); t != "" {
		data.Set(schemas.AttrNodeType, schemas.String(t))
	}
	appendRest(&data, v.Props)
	return schemas.Element{Kind: schemas.ElementNode, Data: data}
}

func (n *Normalizer) nodeType(v graphstore.NodeValue) string {
	if t, ok := v.Props[schemas.AttrNodeType]; ok && t != nil {
		return fmt.Sprint(t)
	}
	for _, l := range v.Labels {
		if !n.meta[l] {
			return l
		}
	}
	if len(v.Labels) > 0 {
		return v.Labels[0]
	}
	return ""
}

// edge synthesizes source-type-target as the id when the relationship has none.
func (n *Normalizer) edge(v graphstore.RelValue, logical map[string]string) schemas.Element {
	source, ok := logical[v.StartElementID]
	if !ok {
		source = v.StartElementID
	}
	target, ok := logical[v.EndElementID]
	if !ok {
		target = v.EndElementID
	}
	id := fmt.Sprintf("%s-%s-%s", source, v.Type, target)
	if raw, ok := v.Props[schemas.AttrID]; ok && raw != nil {
		id = fmt.Sprint(raw)
	}

	var data schemas.Attributes
	data.Set(schemas.AttrID, schemas.String(id))
	data.Set(schemas.AttrSource, schemas.String(source))
	data.Set(schemas.AttrTarget, schemas.String(target))
	data.Set(schemas.AttrEdgeType, schemas.String(v.Type))
	data.Set(schemas.AttrLabel, schemas.String(firstText(v.Props, v.Type, schemas.AttrLabel)))
	appendRest(&data, v.Props)
	return schemas.Element{Kind: schemas.ElementEdge, Data: data}
}

func firstText(props map[string]any, fallback string, keys ...string) string {
	for _, k := range keys {
		if v, ok := props[k]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return fallback
}

func appendRest(data *schemas.Attributes, props map[string]any) {
	keys := make([]string, 0, len(props))
	for k := range props {
		if !data.Has(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v, ok := schemas.Coerce(props[k]); ok {
			data.Set(k, v)
		}
	}
}
