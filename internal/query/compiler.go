// File: internal/query/compiler.go
package query

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
	"github.com/xkilldash9x/graphedit/internal/graphstore"
	"github.com/xkilldash9x/graphedit/internal/sanitize"
)

// Limits bounds every compiled traversal.
type Limits struct {
	SearchDefault     int
	SearchMax         int
	StructuredDefault int
	StructuredMax     int
	MaxHops           int
	ExpandDefault     int
	ExpandMax         int
	PathDefault       int
	MaxPathLength     int
	CommunityMax      int

	// MetaLabels are ignored when inferring a node's type from its labels.
	MetaLabels         []string
	CommunityLabel     string
	MembershipType     string
	InterCommunityType string
}

// DefaultLimits returns the stock bounds.
func DefaultLimits() Limits {
	return Limits{
		SearchDefault:      20,
		SearchMax:          100,
		StructuredDefault:  5000,
		StructuredMax:      10000,
		MaxHops:            3,
		ExpandDefault:      100,
		ExpandMax:          500,
		PathDefault:        6,
		MaxPathLength:      10,
		CommunityMax:       500,
		MetaLabels:         []string{"efta", "available", "missing"},
		CommunityLabel:     "Community",
		MembershipType:     "BELONGS_TO",
		InterCommunityType: "INTER_COMMUNITY",
	}
}

// clamp applies a default for non-positive requests and a hard ceiling.
func clamp(requested, def, max int) int {
	if requested <= 0 {
		requested = def
	}
	if requested > max {
		return max
	}
	return requested
}

var limitClause = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)

// Compiler turns query intents into bounded read statements.
type Compiler struct {
	limits Limits
	san    *sanitize.Sanitizer
	log    *zap.Logger
}

// NewCompiler creates a Compiler. The community label and relationship
// types in limits are spliced into statement text and are expected to have
// been validated with the sanitizer at configuration time.
func NewCompiler(limits Limits, san *sanitize.Sanitizer, logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if san == nil {
		san = sanitize.New(logger, nil)
	}
	return &Compiler{limits: limits, san: san, log: logger.Named("query_compiler")}
}

// Limits returns the compiler's bounds.
func (c *Compiler) Limits() Limits { return c.limits }

// Compile builds the statement for in.
func (c *Compiler) Compile(in schemas.Intent) (graphstore.Statement, error) {
	switch v := in.(type) {
	case schemas.SearchIntent:
		return c.search(v)
	case schemas.StructuredIntent:
		if v.CenterNode != "" {
			return c.neighborhood(v)
		}
		return c.structured(v)
	case schemas.RawIntent:
		return c.raw(v), nil
	case schemas.CommunityIntent:
		return c.community(v), nil
	default:
		return graphstore.Statement{}, apperr.Validation("query", "unsupported intent %T", in)
	}
}

func (c *Compiler) search(in schemas.SearchIntent) (graphstore.Statement, error) {
	q := strings.ToLower(strings.TrimSpace(in.Text))
	if q == "" {
		return graphstore.Statement{}, apperr.Validation("query.search", "search text is required")
	}
	params := map[string]any{
		graphstore.ParamQuery: q,
		graphstore.ParamLimit: clamp(in.Limit, c.limits.SearchDefault, c.limits.SearchMax),
	}

	var text strings.Builder
	text.WriteString("MATCH (n)\nWHERE (")
	for i, field := range []string{schemas.AttrLabel, schemas.AttrID, schemas.AttrName, schemas.AttrNotes} {
		if i > 0 {
			text.WriteString(" OR ")
		}
		fmt.Fprintf(&text, "toLower(toString(coalesce(n.%s, ''))) CONTAINS $q", field)
	}
	text.WriteString(")")
	if len(in.NodeTypes) > 0 {
		text.WriteString(" AND n.node_type IN $nodeTypes")
		params[graphstore.ParamNodeTypes] = append([]string(nil), in.NodeTypes...)
	}
	text.WriteString("\nRETURN n\nLIMIT $limit")

	return graphstore.Statement{Op: graphstore.OpSearch, Text: text.String(), Params: params}, nil
}

// filterClauses binds node type and attribute filters on variable n and
// returns the WHERE conditions. Filter keys are spliced and must pass the
// generic grammar.
func (c *Compiler) filterClauses(in schemas.StructuredIntent, params map[string]any) ([]string, []string, error) {
	var conds, keys []string
	if len(in.NodeTypes) > 0 {
		conds = append(conds, "n.node_type IN $nodeTypes")
		params[graphstore.ParamNodeTypes] = append([]string(nil), in.NodeTypes...)
	}
	if err := c.san.CheckAll(sanitize.Generic, "filters", in.Filters.Keys()...); err != nil {
		return nil, nil, err
	}
	i := 0
	in.Filters.Range(func(key string, v schemas.Value) bool {
		name := fmt.Sprintf("%s%d", graphstore.ParamFilterPrefix, i)
		conds = append(conds, fmt.Sprintf("n.%s = $%s", key, name))
		params[name] = v.Interface()
		keys = append(keys, key)
		i++
		return true
	})
	return conds, keys, nil
}

func (c *Compiler) structured(in schemas.StructuredIntent) (graphstore.Statement, error) {
	params := map[string]any{
		graphstore.ParamLimit: clamp(in.Limit, c.limits.StructuredDefault, c.limits.StructuredMax),
	}
	conds, keys, err := c.filterClauses(in, params)
	if err != nil {
		return graphstore.Statement{}, err
	}

	var text strings.Builder
	text.WriteString("MATCH (n)\n")
	if len(conds) > 0 {
		fmt.Fprintf(&text, "WHERE %s\n", strings.Join(conds, " AND "))
	}
	text.WriteString("WITH n LIMIT $limit\nOPTIONAL MATCH (n)-[r]-(m)\nRETURN n, r, m\nLIMIT $limit")

	return graphstore.Statement{
		Op:     graphstore.OpStructured,
		Text:   text.String(),
		Params: params,
		Idents: map[string][]string{graphstore.IdentFilterKeys: keys},
	}, nil
}

func (c *Compiler) neighborhood(in schemas.StructuredIntent) (graphstore.Statement, error) {
	hops := clamp(in.Hops, 1, c.limits.MaxHops)
	params := map[string]any{
		graphstore.ParamCenterID: in.CenterNode,
		graphstore.ParamHops:     hops,
		graphstore.ParamLimit:    clamp(in.Limit, c.limits.StructuredDefault, c.limits.StructuredMax),
	}
	conds, keys, err := c.filterClauses(in, params)
	if err != nil {
		return graphstore.Statement{}, err
	}
	conds = append([]string{"c.id = $centerId"}, conds...)

	text := fmt.Sprintf(
		"MATCH path = (c)-[*1..%d]-(n)\n"+
			"WHERE %s\n"+
			"UNWIND relationships(path) AS r\n"+
			"WITH DISTINCT r\n"+
			"RETURN startNode(r) AS a, r, endNode(r) AS b\n"+
			"LIMIT $limit",
		hops, strings.Join(conds, " AND "),
	)
	return graphstore.Statement{
		Op:     graphstore.OpNeighborhood,
		Text:   text,
		Params: params,
		Idents: map[string][]string{graphstore.IdentFilterKeys: keys},
	}, nil
}

// raw appends a row limit only when the pattern carries none.
func (c *Compiler) raw(in schemas.RawIntent) graphstore.Statement {
	text := strings.TrimRight(strings.TrimSpace(in.Pattern), ";")
	if !limitClause.MatchString(text) {
		text = fmt.Sprintf("%s\nLIMIT %d", text, clamp(in.Limit, c.limits.StructuredDefault, c.limits.StructuredMax))
	}
	return graphstore.Statement{Op: graphstore.OpRaw, Text: text, Params: map[string]any{}}
}

func (c *Compiler) community(in schemas.CommunityIntent) graphstore.Statement {
	text := fmt.Sprintf(
		"MATCH (c:%s {id: $communityId})<-[:%s]-(n)\n"+
			"WITH collect(DISTINCT n) AS members\n"+
			"UNWIND members AS n\n"+
			"OPTIONAL MATCH (n)-[r]-(m)\n"+
			"WHERE m IN members AND type(r) <> $membershipType\n"+
			"RETURN n, r, m\n"+
			"LIMIT $limit",
		c.limits.CommunityLabel, c.limits.MembershipType,
	)
	return graphstore.Statement{
		Op:   graphstore.OpCommunity,
		Text: text,
		Params: map[string]any{
			graphstore.ParamCommunityID: in.CommunityID,
			"membershipType":            c.limits.MembershipType,
			graphstore.ParamLimit:       clamp(in.Limit, c.limits.StructuredDefault, c.limits.StructuredMax),
		},
		Idents: map[string][]string{
			graphstore.IdentCommunity:  {c.limits.CommunityLabel},
			graphstore.IdentMembership: {c.limits.MembershipType},
		},
	}
}

// -- exploration statements --

func (c *Compiler) expand(centerID string, hops, limit int) graphstore.Statement {
	hops = clamp(hops, 1, c.limits.MaxHops)
	limit = clamp(limit, c.limits.ExpandDefault, c.limits.ExpandMax)
	return graphstore.Statement{
		Op: graphstore.OpExpand,
		Text: fmt.Sprintf(
			"MATCH (c) WHERE c.id = $centerId\n"+
				"OPTIONAL MATCH (c)-[*1..%d]-(n)\n"+
				"WITH c, collect(DISTINCT n)[..$limit] AS ns\n"+
				"UNWIND [c] + ns AS n\n"+
				"RETURN DISTINCT n", hops),
		Params: map[string]any{
			graphstore.ParamCenterID: centerID,
			graphstore.ParamHops:     hops,
			graphstore.ParamLimit:    limit,
		},
	}
}

func (c *Compiler) edgesAmong(ids []string, limit int) graphstore.Statement {
	return graphstore.Statement{
		Op:   graphstore.OpEdgesAmong,
		Text: "MATCH (a)-[r]->(b)\nWHERE a.id IN $ids AND b.id IN $ids\nRETURN a, r, b\nLIMIT $limit",
		Params: map[string]any{
			graphstore.ParamIDs:   ids,
			graphstore.ParamLimit: limit,
		},
	}
}

func (c *Compiler) shortestPath(from, to string, maxLength int) graphstore.Statement {
	maxLength = clamp(maxLength, c.limits.PathDefault, c.limits.MaxPathLength)
	return graphstore.Statement{
		Op: graphstore.OpShortestPath,
		Text: fmt.Sprintf(
			"MATCH (a), (b) WHERE a.id = $source AND b.id = $target\n"+
				"MATCH p = shortestPath((a)-[*..%d]-(b))\n"+
				"RETURN p AS path", maxLength),
		Params: map[string]any{
			graphstore.ParamSource: from,
			graphstore.ParamTarget: to,
			graphstore.ParamHops:   maxLength,
		},
	}
}

func (c *Compiler) communities(level *int, limit int) graphstore.Statement {
	params := map[string]any{graphstore.ParamLimit: clamp(limit, c.limits.CommunityMax, c.limits.CommunityMax)}
	where := ""
	if level != nil {
		where = " WHERE c.level = $level"
		params[graphstore.ParamLevel] = *level
	}
	return graphstore.Statement{
		Op: graphstore.OpCommunities,
		Text: fmt.Sprintf("MATCH (c:%s)%s\nRETURN c\nORDER BY c.member_count DESC\nLIMIT $limit",
			c.limits.CommunityLabel, where),
		Params: params,
		Idents: map[string][]string{graphstore.IdentCommunity: {c.limits.CommunityLabel}},
	}
}

func (c *Compiler) communityLinks(ids []string) graphstore.Statement {
	label := c.limits.CommunityLabel
	return graphstore.Statement{
		Op: graphstore.OpCommunityLinks,
		Text: fmt.Sprintf("MATCH (a:%s)-[r:%s]->(b:%s)\nWHERE a.id IN $ids AND b.id IN $ids\nRETURN a, r, b",
			label, c.limits.InterCommunityType, label),
		Params: map[string]any{graphstore.ParamIDs: ids},
		Idents: map[string][]string{
			graphstore.IdentCommunity: {label},
			graphstore.IdentInterLink: {c.limits.InterCommunityType},
		},
	}
}

var countStatements = map[graphstore.Op]string{
	graphstore.OpCountNodes:     "MATCH (n) RETURN count(n) AS count",
	graphstore.OpCountEdges:     "MATCH ()-[r]->() RETURN count(r) AS count",
	graphstore.OpNodeTypeCounts: "MATCH (n) RETURN n.node_type AS type, count(*) AS count ORDER BY count DESC",
	graphstore.OpEdgeTypeCounts: "MATCH ()-[r]->() RETURN type(r) AS type, count(*) AS count ORDER BY count DESC",
}
