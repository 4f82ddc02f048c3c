// File: internal/graphstore/store.go
package graphstore

import (
	"context"
)

// Op names the compiled operation a statement performs. The Neo4j store
// only needs Text and Params; the in-memory store executes by Op.
type Op string

const (
	OpNodeState  Op = "node_state"
	OpEdgeState  Op = "edge_state"
	OpCreateNode Op = "create_node"
	OpUpdateNode Op = "update_node"
	OpDeleteNode Op = "delete_node"
	OpCreateEdge Op = "create_edge"
	OpUpdateEdge Op = "update_edge"
	OpDeleteEdge Op = "delete_edge"
	OpMergeNodes Op = "merge_nodes"
	OpMergeEdges Op = "merge_edges"

	OpSearch         Op = "search"
	OpStructured     Op = "structured"
	OpNeighborhood   Op = "neighborhood"
	OpExpand         Op = "expand"
	OpCommunity      Op = "community"
	OpRaw            Op = "raw"
	OpEdgesAmong     Op = "edges_among"
	OpShortestPath   Op = "shortest_path"
	OpCountNodes     Op = "count_nodes"
	OpCountEdges     Op = "count_edges"
	OpNodeTypeCounts Op = "node_type_counts"
	OpEdgeTypeCounts Op = "edge_type_counts"
	OpCommunities    Op = "communities"
	OpCommunityLinks Op = "community_links"
)

// Parameter names shared by the compilers and the in-memory store.
const (
	ParamID           = "id"
	ParamProps        = "props"
	ParamSource       = "source"
	ParamTarget       = "target"
	ParamRows         = "rows"
	ParamLimit        = "limit"
	ParamQuery        = "q"
	ParamNodeTypes    = "nodeTypes"
	ParamCenterID     = "centerId"
	ParamHops         = "hops"
	ParamIDs          = "ids"
	ParamCommunityID  = "communityId"
	ParamLevel        = "level"
	ParamFilterPrefix = "filter_"
)

// Roles of identifiers spliced into statement text.
const (
	IdentLabels      = "labels"
	IdentType        = "type"
	IdentMergeKey    = "merge_key"
	IdentSourceLabel = "source_label"
	IdentTargetLabel = "target_label"
	IdentSourceKey   = "source_key"
	IdentTargetKey   = "target_key"
	IdentFilterKeys  = "filter_keys"
	IdentCommunity   = "community_label"
	IdentMembership  = "membership_type"
	IdentInterLink   = "inter_community_type"
)

// Statement is a compiled, parameterized graph statement.
type Statement struct {
	Op     Op
	Text   string
	Params map[string]any
	// Idents records the sanitized identifiers spliced into Text, by role.
	Idents map[string][]string
}

// Ident returns the first identifier recorded for role.
func (s Statement) Ident(role string) string {
	if v := s.Idents[role]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Counters are the write statistics a store reports for one statement.
type Counters struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	PropertiesSet        int
	LabelsAdded          int
}

// NodeValue is a node as returned in a result row.
type NodeValue struct {
	ElementID string
	Labels    []string
	Props     map[string]any
}

// RelValue is a relationship as returned in a result row. Start and end
// refer to store element ids, not logical ids.
type RelValue struct {
	ElementID      string
	StartElementID string
	EndElementID   string
	Type           string
	Props          map[string]any
}

// PathValue is an alternating node/relationship path.
type PathValue struct {
	Nodes []NodeValue
	Rels  []RelValue
}

// Record is one result row.
type Record struct {
	Keys   []string
	Values []any
}

// Get returns the value bound to key in the row.
func (r Record) Get(key string) (any, bool) {
	for i, k := range r.Keys {
		if k == key && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Result is a fully materialized statement result.
type Result struct {
	Keys     []string
	Records  []Record
	Counters Counters
}

// Store is the graph store client every component receives by injection.
// Read runs in a read-only access mode and retries transient connectivity
// failures; Write runs in write mode and is never retried.
type Store interface {
	Read(ctx context.Context, st Statement) (*Result, error)
	Write(ctx context.Context, st Statement) (*Result, error)
	Close(ctx context.Context) error
}
