// File: internal/query/explorer.go
package query

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
	"github.com/xkilldash9x/graphedit/internal/graphstore"
	"github.com/xkilldash9x/graphedit/internal/metrics"
)

// TypeCount is a per-type tally.
type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// Stats summarizes the graph.
type Stats struct {
	Nodes     int64       `json:"nodes"`
	Edges     int64       `json:"edges"`
	NodeTypes []TypeCount `json:"nodeTypes"`
	EdgeTypes []TypeCount `json:"edgeTypes"`
}

// Explorer executes compiled reads against the graph store and normalizes
// the rows. It is the only read path over the graph.
type Explorer struct {
	store    graphstore.Store
	compiler *Compiler
	norm     *Normalizer
	cache    *Cache[schemas.Elements]
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewExplorer creates an Explorer. cache and m may be nil.
func NewExplorer(store graphstore.Store, compiler *Compiler, cache *Cache[schemas.Elements], m *metrics.Metrics, logger *zap.Logger) *Explorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if compiler == nil {
		compiler = NewCompiler(DefaultLimits(), nil, logger)
	}
	return &Explorer{
		store:    store,
		compiler: compiler,
		norm:     NewNormalizer(compiler.limits.MetaLabels),
		cache:    cache,
		metrics:  m,
		log:      logger.Named("explorer"),
	}
}

// Compiler returns the explorer's query compiler.
func (e *Explorer) Compiler() *Compiler { return e.compiler }

func (e *Explorer) read(ctx context.Context, label string, st graphstore.Statement) (*graphstore.Result, error) {
	if e.store == nil {
		return nil, apperr.ErrStoreNotConfigured
	}
	defer e.metrics.ObserveQuery(label, time.Now())
	e.log.Debug("Executing read", zap.String("op", string(st.Op)), zap.String("statement", st.Text))
	res, err := e.store.Read(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", label, err)
	}
	return res, nil
}

// Run compiles and executes an intent.
func (e *Explorer) Run(ctx context.Context, in schemas.Intent) (schemas.Elements, error) {
	st, err := e.compiler.Compile(in)
	if err != nil {
		return nil, err
	}
	res, err := e.read(ctx, string(in.Type()), st)
	if err != nil {
		return nil, err
	}
	return e.norm.Normalize(res), nil
}

// Stats fans the four count reads out in parallel.
func (e *Explorer) Stats(ctx context.Context) (*Stats, error) {
	ops := []graphstore.Op{graphstore.OpCountNodes, graphstore.OpCountEdges, graphstore.OpNodeTypeCounts, graphstore.OpEdgeTypeCounts}
	out := make([]*graphstore.Result, len(ops))

	g, gctx := errgroup.WithContext(ctx)
	for i, op := range ops {
		i, op := i, op
		g.Go(func() error {
			res, err := e.read(gctx, "stats", graphstore.Statement{Op: op, Text: countStatements[op]})
			out[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := Stats{
		Nodes:     scalarCount(out[0]),
		Edges:     scalarCount(out[1]),
		NodeTypes: typeCounts(out[2]),
		EdgeTypes: typeCounts(out[3]),
	}
	return &stats, nil
}

// Neighborhood returns the center node, every node within hops of it, and
// the edges among those nodes. An absent center is NotFound.
func (e *Explorer) Neighborhood(ctx context.Context, id string, hops, limit int) (schemas.Elements, error) {
	st := e.compiler.expand(id, hops, limit)
	nodes, err := e.read(ctx, "expand", st)
	if err != nil {
		return nil, err
	}
	if len(nodes.Records) == 0 {
		return nil, apperr.NotFound("query.expand", "node %q not found", id)
	}

	var ids []string
	for _, el := range e.norm.Normalize(nodes) {
		ids = append(ids, el.ID())
	}
	edges, err := e.read(ctx, "expand", e.compiler.edgesAmong(ids, st.Params[graphstore.ParamLimit].(int)*3))
	if err != nil {
		return nil, err
	}
	return e.norm.Normalize(nodes, edges), nil
}

// ShortestPath returns the nodes and edges of one shortest path between
// two nodes, treating relationships as undirected.
func (e *Explorer) ShortestPath(ctx context.Context, from, to string, maxLength int) (schemas.Elements, error) {
	if from == "" || to == "" {
		return nil, apperr.Validation("query.path", "from and to are required")
	}
	res, err := e.read(ctx, "path", e.compiler.shortestPath(from, to, maxLength))
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, apperr.NotFound("query.path", "no path between %q and %q", from, to)
	}
	return e.norm.Normalize(res), nil
}

// Communities returns community nodes, largest first, plus the
// inter-community links among them. Results are cached per level and limit.
func (e *Explorer) Communities(ctx context.Context, level *int, limit int) (schemas.Elements, error) {
	key := fmt.Sprintf("level=all|limit=%d", limit)
	if level != nil {
		key = fmt.Sprintf("level=%d|limit=%d", *level, limit)
	}
	if els, ok := e.cache.Get(key); ok {
		return els, nil
	}

	comms, err := e.read(ctx, "communities", e.compiler.communities(level, limit))
	if err != nil {
		return nil, err
	}
	nodes := e.norm.Normalize(comms)
	if len(nodes) == 0 {
		return schemas.Elements{}, nil
	}
	ids := make([]string, len(nodes))
	for i, el := range nodes {
		ids[i] = el.ID()
	}
	links, err := e.read(ctx, "communities", e.compiler.communityLinks(ids))
	if err != nil {
		return nil, err
	}

	els := e.norm.Normalize(comms, links)
	e.cache.Set(key, els)
	return els, nil
}

// Community executes the community intent; an empty community is NotFound.
func (e *Explorer) Community(ctx context.Context, id string, limit int) (schemas.Elements, error) {
	els, err := e.Run(ctx, schemas.CommunityIntent{CommunityID: id, Limit: limit})
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, apperr.NotFound("query.community", "community %q not found", id)
	}
	return els, nil
}

// InvalidateCache drops cached community listings after applied proposals
// and bulk merges.
func (e *Explorer) InvalidateCache() { e.cache.Purge() }

func scalarCount(res *graphstore.Result) int64 {
	if res == nil || len(res.Records) == 0 {
		return 0
	}
	v, _ := res.Records[0].Get("count")
	n, _ := v.(int64)
	return n
}

func typeCounts(res *graphstore.Result) []TypeCount {
	out := []TypeCount{}
	if res == nil {
		return out
	}
	for _, rec := range res.Records {
		t, _ := rec.Get("type")
		c, _ := rec.Get("count")
		name := "unknown"
		if t != nil {
			name = fmt.Sprint(t)
		}
		n, _ := c.(int64)
		out = append(out, TypeCount{Type: name, Count: n})
	}
	return out
}

// Authorize checks that actor may run in with at least min. Raw patterns
// always require admin.
func Authorize(actor schemas.Principal, in schemas.Intent, min schemas.Role) error {
	if in.Type() == schemas.IntentCypher && min.Level() < schemas.RoleAdmin.Level() {
		min = schemas.RoleAdmin
	}
	return actor.Require("query."+string(in.Type()), min)
}
