// File: internal/graphstore/memory.go
package graphstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/internal/apperr"
)

type memNode struct {
	key    string
	labels []string
	props  map[string]any
}

type memRel struct {
	key   string
	typ   string
	start string
	end   string
	props map[string]any
}

// Memory is an ephemeral, in-process Store. It executes compiled statements
// by their Op and parameters rather than by parsing Cypher, which makes it
// a faithful stand-in for tests and local development. Raw patterns are
// not supported.
type Memory struct {
	mu        sync.RWMutex
	nodes     map[string]*memNode
	nodeOrder []string
	rels      map[string]*memRel
	relOrder  []string
	outgoing  map[string][]string // node key -> rel keys
	incoming  map[string][]string // node key -> rel keys
	seq       int
	log       *zap.Logger
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory graph.
func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		nodes:    make(map[string]*memNode),
		rels:     make(map[string]*memRel),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
		log:      logger.Named("memgraph"),
	}
}

func (m *Memory) Close(context.Context) error { return nil }

// Read executes a read-only statement.
func (m *Memory) Read(ctx context.Context, st Statement) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable("graphstore.read", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch st.Op {
	case OpNodeState:
		return m.nodeState(st), nil
	case OpEdgeState:
		return m.edgeState(st), nil
	case OpSearch:
		return m.search(st), nil
	case OpStructured:
		return m.structured(st), nil
	case OpNeighborhood:
		return m.neighborhood(st), nil
	case OpExpand:
		return m.expand(st), nil
	case OpEdgesAmong:
		return m.edgesAmong(st), nil
	case OpCommunity:
		return m.community(st), nil
	case OpShortestPath:
		return m.shortestPath(st), nil
	case OpCountNodes:
		return single("count", int64(len(m.nodes))), nil
	case OpCountEdges:
		return single("count", int64(len(m.rels))), nil
	case OpNodeTypeCounts:
		return m.typeCounts(true), nil
	case OpEdgeTypeCounts:
		return m.typeCounts(false), nil
	case OpCommunities:
		return m.communities(st), nil
	case OpCommunityLinks:
		return m.communityLinks(st), nil
	case OpRaw:
		return nil, apperr.ErrUnsupported
	default:
		if isWriteOp(st.Op) {
			return nil, apperr.Execution("graphstore.read", fmt.Errorf("write operation %q in read access mode", st.Op))
		}
		return nil, apperr.ErrUnsupported
	}
}

// Write executes a mutating statement atomically.
func (m *Memory) Write(ctx context.Context, st Statement) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable("graphstore.write", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.Debug("Applying statement", zap.String("op", string(st.Op)))

	switch st.Op {
	case OpCreateNode:
		return m.createNode(st), nil
	case OpUpdateNode:
		return m.updateNodes(st), nil
	case OpDeleteNode:
		return m.deleteNodes(st), nil
	case OpCreateEdge:
		return m.createEdge(st), nil
	case OpUpdateEdge:
		return m.updateEdges(st), nil
	case OpDeleteEdge:
		return m.deleteEdges(st), nil
	case OpMergeNodes:
		return m.mergeNodes(st)
	case OpMergeEdges:
		return m.mergeEdges(st)
	default:
		return nil, apperr.ErrUnsupported
	}
}

func isWriteOp(op Op) bool {
	switch op {
	case OpCreateNode, OpUpdateNode, OpDeleteNode, OpCreateEdge, OpUpdateEdge, OpDeleteEdge, OpMergeNodes, OpMergeEdges:
		return true
	}
	return false
}

// -- writes --

func (m *Memory) newKey(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s:%d", prefix, m.seq)
}

func (m *Memory) addNode(labels []string, props map[string]any) *memNode {
	n := &memNode{key: m.newKey("n"), labels: append([]string(nil), labels...), props: copyMap(props)}
	m.nodes[n.key] = n
	m.nodeOrder = append(m.nodeOrder, n.key)
	return n
}

func (m *Memory) addRel(typ string, start, end *memNode, props map[string]any) *memRel {
	r := &memRel{key: m.newKey("r"), typ: typ, start: start.key, end: end.key, props: copyMap(props)}
	m.rels[r.key] = r
	m.relOrder = append(m.relOrder, r.key)
	m.outgoing[start.key] = append(m.outgoing[start.key], r.key)
	m.incoming[end.key] = append(m.incoming[end.key], r.key)
	return r
}

func (m *Memory) removeRel(key string) {
	r, ok := m.rels[key]
	if !ok {
		return
	}
	delete(m.rels, key)
	m.relOrder = removeString(m.relOrder, key)
	m.outgoing[r.start] = removeString(m.outgoing[r.start], key)
	m.incoming[r.end] = removeString(m.incoming[r.end], key)
}

func (m *Memory) createNode(st Statement) *Result {
	props := mapParam(st.Params, ParamProps)
	n := m.addNode(st.Idents[IdentLabels], props)
	res := rows([]string{"n"}, []any{m.nodeValue(n)})
	res.Counters = Counters{NodesCreated: 1, LabelsAdded: len(n.labels), PropertiesSet: len(props)}
	return res
}

func (m *Memory) updateNodes(st Statement) *Result {
	props := mapParam(st.Params, ParamProps)
	res := &Result{Keys: []string{"n"}}
	for _, n := range m.nodesByID(st.Params[ParamID]) {
		for k, v := range props {
			n.props[k] = v
		}
		res.Counters.PropertiesSet += len(props)
		res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{m.nodeValue(n)}})
	}
	return res
}

func (m *Memory) deleteNodes(st Statement) *Result {
	res := &Result{}
	for _, n := range m.nodesByID(st.Params[ParamID]) {
		for _, rk := range append(append([]string(nil), m.outgoing[n.key]...), m.incoming[n.key]...) {
			if _, ok := m.rels[rk]; ok {
				m.removeRel(rk)
				res.Counters.RelationshipsDeleted++
			}
		}
		delete(m.nodes, n.key)
		delete(m.outgoing, n.key)
		delete(m.incoming, n.key)
		m.nodeOrder = removeString(m.nodeOrder, n.key)
		res.Counters.NodesDeleted++
	}
	return res
}

func (m *Memory) createEdge(st Statement) *Result {
	props := mapParam(st.Params, ParamProps)
	res := &Result{Keys: []string{"r"}}
	for _, a := range m.nodesByID(st.Params[ParamSource]) {
		for _, b := range m.nodesByID(st.Params[ParamTarget]) {
			r := m.addRel(st.Ident(IdentType), a, b, props)
			res.Counters.RelationshipsCreated++
			res.Counters.PropertiesSet += len(props)
			res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{m.relValue(r)}})
		}
	}
	return res
}

func (m *Memory) updateEdges(st Statement) *Result {
	props := mapParam(st.Params, ParamProps)
	res := &Result{Keys: []string{"r"}}
	for _, r := range m.relsByID(st.Params[ParamID]) {
		for k, v := range props {
			r.props[k] = v
		}
		res.Counters.PropertiesSet += len(props)
		res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{m.relValue(r)}})
	}
	return res
}

func (m *Memory) deleteEdges(st Statement) *Result {
	res := &Result{}
	for _, r := range m.relsByID(st.Params[ParamID]) {
		m.removeRel(r.key)
		res.Counters.RelationshipsDeleted++
	}
	return res
}

func (m *Memory) mergeNodes(st Statement) (*Result, error) {
	labels := st.Idents[IdentLabels]
	if len(labels) == 0 {
		return nil, apperr.Execution("graphstore.write", fmt.Errorf("merge requires a label"))
	}
	key := st.Ident(IdentMergeKey)
	rowsParam, err := rowsParam(st.Params)
	if err != nil {
		return nil, err
	}

	var res Result
	merged := 0
	for _, row := range rowsParam {
		mergeVal := row[key]
		var target *memNode
		for _, k := range m.nodeOrder {
			n := m.nodes[k]
			if hasLabel(n, labels[0]) && sameValue(n.props[key], mergeVal) {
				target = n
				break
			}
		}
		if target == nil {
			target = m.addNode(labels[:1], map[string]any{key: mergeVal})
			res.Counters.NodesCreated++
			res.Counters.LabelsAdded++
		}
		for _, extra := range labels[1:] {
			if !hasLabel(target, extra) {
				target.labels = append(target.labels, extra)
				res.Counters.LabelsAdded++
			}
		}
		for k, v := range row {
			target.props[k] = v
			res.Counters.PropertiesSet++
		}
		merged++
	}
	out := single("merged", int64(merged))
	out.Counters = res.Counters
	return out, nil
}

func (m *Memory) mergeEdges(st Statement) (*Result, error) {
	typ := st.Ident(IdentType)
	srcLabel, tgtLabel := st.Ident(IdentSourceLabel), st.Ident(IdentTargetLabel)
	srcKey, tgtKey := st.Ident(IdentSourceKey), st.Ident(IdentTargetKey)
	rowsParam, err := rowsParam(st.Params)
	if err != nil {
		return nil, err
	}

	var counters Counters
	created := 0
	for _, row := range rowsParam {
		props, _ := row[ParamProps].(map[string]any)
		for _, s := range m.nodesMatching(srcLabel, srcKey, row[ParamSource]) {
			for _, t := range m.nodesMatching(tgtLabel, tgtKey, row[ParamTarget]) {
				var rel *memRel
				for _, rk := range m.outgoing[s.key] {
					if r := m.rels[rk]; r.typ == typ && r.end == t.key {
						rel = r
						break
					}
				}
				if rel == nil {
					rel = m.addRel(typ, s, t, nil)
					counters.RelationshipsCreated++
				}
				for k, v := range props {
					rel.props[k] = v
					counters.PropertiesSet++
				}
				created++
			}
		}
	}
	out := single("created", int64(created))
	out.Counters = counters
	return out, nil
}

// -- reads --

func (m *Memory) nodeState(st Statement) *Result {
	res := &Result{Keys: []string{"props"}}
	if nodes := m.nodesByID(st.Params[ParamID]); len(nodes) > 0 {
		res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{copyMap(nodes[0].props)}})
	}
	return res
}

func (m *Memory) edgeState(st Statement) *Result {
	res := &Result{Keys: []string{"props", "source", "target", "type"}}
	if rels := m.relsByID(st.Params[ParamID]); len(rels) > 0 {
		r := rels[0]
		res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{
			copyMap(r.props), m.nodes[r.start].props["id"], m.nodes[r.end].props["id"], r.typ,
		}})
	}
	return res
}

func (m *Memory) search(st Statement) *Result {
	q := strings.ToLower(fmt.Sprint(st.Params[ParamQuery]))
	types := stringSet(st.Params[ParamNodeTypes])
	limit := intParam(st.Params, ParamLimit)

	res := &Result{Keys: []string{"n"}}
	for _, k := range m.nodeOrder {
		if len(res.Records) >= limit {
			break
		}
		n := m.nodes[k]
		if !typeAllowed(n, types) {
			continue
		}
		for _, field := range []string{"label", "id", "name", "notes"} {
			if s, ok := n.props[field].(string); ok && strings.Contains(strings.ToLower(s), q) {
				res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{m.nodeValue(n)}})
				break
			}
		}
	}
	return res
}

func (m *Memory) structured(st Statement) *Result {
	limit := intParam(st.Params, ParamLimit)
	res := &Result{Keys: []string{"n", "r", "m"}}

	var picked []*memNode
	for _, k := range m.nodeOrder {
		if len(picked) >= limit {
			break
		}
		if n := m.nodes[k]; m.passesFilters(n, st) {
			picked = append(picked, n)
		}
	}
	for _, n := range picked {
		incident := m.incident(n.key)
		if len(incident) == 0 {
			res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{m.nodeValue(n), nil, nil}})
		}
		for _, r := range incident {
			other := m.nodes[otherEnd(r, n.key)]
			res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{m.nodeValue(n), m.relValue(r), m.nodeValue(other)}})
		}
		if len(res.Records) >= limit {
			res.Records = res.Records[:limit]
			break
		}
	}
	return res
}

func (m *Memory) neighborhood(st Statement) *Result {
	limit := intParam(st.Params, ParamLimit)
	hops := intParam(st.Params, ParamHops)
	res := &Result{Keys: []string{"a", "r", "b"}}

	centers := m.nodesByID(st.Params[ParamCenterID])
	if len(centers) == 0 {
		return res
	}
	parents, order := m.bfs(centers[0].key, hops)

	seen := make(map[string]bool)
	for _, nk := range order {
		if nk == centers[0].key || !m.passesFilters(m.nodes[nk], st) {
			continue
		}
		for cur := nk; cur != centers[0].key; {
			rk := parents[cur]
			r := m.rels[rk]
			if !seen[rk] {
				seen[rk] = true
				res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{
					m.nodeValue(m.nodes[r.start]), m.relValue(r), m.nodeValue(m.nodes[r.end]),
				}})
				if len(res.Records) >= limit {
					return res
				}
			}
			cur = otherEnd(r, cur)
		}
	}
	return res
}

func (m *Memory) expand(st Statement) *Result {
	limit := intParam(st.Params, ParamLimit)
	hops := intParam(st.Params, ParamHops)
	res := &Result{Keys: []string{"n"}}

	centers := m.nodesByID(st.Params[ParamCenterID])
	if len(centers) == 0 {
		return res
	}
	_, order := m.bfs(centers[0].key, hops)
	for i, nk := range order {
		if i > limit {
			break
		}
		res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{m.nodeValue(m.nodes[nk])}})
	}
	return res
}

func (m *Memory) edgesAmong(st Statement) *Result {
	ids := stringSet(st.Params[ParamIDs])
	limit := intParam(st.Params, ParamLimit)
	res := &Result{Keys: []string{"a", "r", "b"}}
	for _, rk := range m.relOrder {
		if len(res.Records) >= limit {
			break
		}
		r := m.rels[rk]
		a, b := m.nodes[r.start], m.nodes[r.end]
		if ids[fmt.Sprint(a.props["id"])] && ids[fmt.Sprint(b.props["id"])] {
			res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{m.nodeValue(a), m.relValue(r), m.nodeValue(b)}})
		}
	}
	return res
}

func (m *Memory) community(st Statement) *Result {
	limit := intParam(st.Params, ParamLimit)
	label, membership := st.Ident(IdentCommunity), st.Ident(IdentMembership)
	res := &Result{Keys: []string{"n", "r", "m"}}

	var community *memNode
	for _, n := range m.nodesByID(st.Params[ParamCommunityID]) {
		if hasLabel(n, label) {
			community = n
			break
		}
	}
	if community == nil {
		return res
	}

	members := make(map[string]bool)
	var memberOrder []string
	for _, rk := range m.incoming[community.key] {
		if r := m.rels[rk]; r.typ == membership && !members[r.start] {
			members[r.start] = true
			memberOrder = append(memberOrder, r.start)
		}
	}
	for _, nk := range memberOrder {
		n := m.nodes[nk]
		matched := false
		for _, r := range m.incident(nk) {
			other := otherEnd(r, nk)
			if r.typ == membership || !members[other] {
				continue
			}
			matched = true
			res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{m.nodeValue(n), m.relValue(r), m.nodeValue(m.nodes[other])}})
		}
		if !matched {
			res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{m.nodeValue(n), nil, nil}})
		}
		if len(res.Records) >= limit {
			res.Records = res.Records[:limit]
			break
		}
	}
	return res
}

func (m *Memory) shortestPath(st Statement) *Result {
	res := &Result{Keys: []string{"path"}}
	from, to := m.nodesByID(st.Params[ParamSource]), m.nodesByID(st.Params[ParamTarget])
	if len(from) == 0 || len(to) == 0 {
		return res
	}
	parents, _ := m.bfs(from[0].key, intParam(st.Params, ParamHops))
	if _, reached := parents[to[0].key]; !reached && from[0].key != to[0].key {
		return res
	}

	var p PathValue
	cur := to[0].key
	p.Nodes = append(p.Nodes, m.nodeValue(m.nodes[cur]))
	for cur != from[0].key {
		r := m.rels[parents[cur]]
		cur = otherEnd(r, cur)
		p.Rels = append([]RelValue{m.relValue(r)}, p.Rels...)
		p.Nodes = append([]NodeValue{m.nodeValue(m.nodes[cur])}, p.Nodes...)
	}
	res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{p}})
	return res
}

func (m *Memory) typeCounts(nodes bool) *Result {
	counts := make(map[string]int64)
	var order []string
	bump := func(t string) {
		if _, ok := counts[t]; !ok {
			order = append(order, t)
		}
		counts[t]++
	}
	if nodes {
		for _, k := range m.nodeOrder {
			t, _ := m.nodes[k].props["node_type"].(string)
			bump(t)
		}
	} else {
		for _, k := range m.relOrder {
			bump(m.rels[k].typ)
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })

	res := &Result{Keys: []string{"type", "count"}}
	for _, t := range order {
		var typ any = t
		if t == "" {
			typ = nil
		}
		res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{typ, counts[t]}})
	}
	return res
}

func (m *Memory) communities(st Statement) *Result {
	label := st.Ident(IdentCommunity)
	limit := intParam(st.Params, ParamLimit)
	level, hasLevel := st.Params[ParamLevel]
	res := &Result{Keys: []string{"c"}}

	var picked []*memNode
	for _, k := range m.nodeOrder {
		n := m.nodes[k]
		if !hasLabel(n, label) {
			continue
		}
		if hasLevel && level != nil && !sameValue(n.props["level"], level) {
			continue
		}
		picked = append(picked, n)
	}
	sort.SliceStable(picked, func(i, j int) bool {
		return toFloat(picked[i].props["member_count"]) > toFloat(picked[j].props["member_count"])
	})
	for i, n := range picked {
		if i >= limit {
			break
		}
		res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{m.nodeValue(n)}})
	}
	return res
}

func (m *Memory) communityLinks(st Statement) *Result {
	label, typ := st.Ident(IdentCommunity), st.Ident(IdentInterLink)
	ids := stringSet(st.Params[ParamIDs])
	res := &Result{Keys: []string{"a", "r", "b"}}
	for _, rk := range m.relOrder {
		r := m.rels[rk]
		a, b := m.nodes[r.start], m.nodes[r.end]
		if r.typ != typ || !hasLabel(a, label) || !hasLabel(b, label) {
			continue
		}
		if ids[fmt.Sprint(a.props["id"])] && ids[fmt.Sprint(b.props["id"])] {
			res.Records = append(res.Records, Record{Keys: res.Keys, Values: []any{m.nodeValue(a), m.relValue(r), m.nodeValue(b)}})
		}
	}
	return res
}

// -- helpers --

// bfs walks relationships in both directions up to maxHops, returning the
// relationship used to reach each node and the visiting order.
func (m *Memory) bfs(start string, maxHops int) (map[string]string, []string) {
	parents := make(map[string]string)
	depth := map[string]int{start: 0}
	order := []string{start}
	for i := 0; i < len(order); i++ {
		cur := order[i]
		if depth[cur] >= maxHops {
			continue
		}
		for _, r := range m.incident(cur) {
			next := otherEnd(r, cur)
			if _, seen := depth[next]; seen {
				continue
			}
			depth[next] = depth[cur] + 1
			parents[next] = r.key
			order = append(order, next)
		}
	}
	return parents, order
}

func (m *Memory) incident(nodeKey string) []*memRel {
	var out []*memRel
	for _, rk := range m.outgoing[nodeKey] {
		out = append(out, m.rels[rk])
	}
	for _, rk := range m.incoming[nodeKey] {
		if r := m.rels[rk]; r.start != nodeKey {
			out = append(out, r)
		}
	}
	return out
}

func (m *Memory) passesFilters(n *memNode, st Statement) bool {
	if !typeAllowed(n, stringSet(st.Params[ParamNodeTypes])) {
		return false
	}
	for i, key := range st.Idents[IdentFilterKeys] {
		if !sameValue(n.props[key], st.Params[fmt.Sprintf("%s%d", ParamFilterPrefix, i)]) {
			return false
		}
	}
	return true
}

func (m *Memory) nodesByID(id any) []*memNode {
	var out []*memNode
	for _, k := range m.nodeOrder {
		if n := m.nodes[k]; id != nil && sameValue(n.props["id"], id) {
			out = append(out, n)
		}
	}
	return out
}

func (m *Memory) nodesMatching(label, key string, val any) []*memNode {
	var out []*memNode
	for _, k := range m.nodeOrder {
		if n := m.nodes[k]; hasLabel(n, label) && val != nil && sameValue(n.props[key], val) {
			out = append(out, n)
		}
	}
	return out
}

func (m *Memory) relsByID(id any) []*memRel {
	var out []*memRel
	for _, k := range m.relOrder {
		if r := m.rels[k]; id != nil && sameValue(r.props["id"], id) {
			out = append(out, r)
		}
	}
	return out
}

func (m *Memory) nodeValue(n *memNode) NodeValue {
	return NodeValue{ElementID: n.key, Labels: append([]string(nil), n.labels...), Props: copyMap(n.props)}
}

func (m *Memory) relValue(r *memRel) RelValue {
	return RelValue{ElementID: r.key, StartElementID: r.start, EndElementID: r.end, Type: r.typ, Props: copyMap(r.props)}
}

func otherEnd(r *memRel, key string) string {
	if r.start == key {
		return r.end
	}
	return r.start
}

func hasLabel(n *memNode, label string) bool {
	for _, l := range n.labels {
		if l == label {
			return true
		}
	}
	return false
}

func typeAllowed(n *memNode, types map[string]bool) bool {
	if len(types) == 0 {
		return true
	}
	t, _ := n.props["node_type"].(string)
	return types[t]
}

func single(key string, v any) *Result {
	return rows([]string{key}, []any{v})
}

func rows(keys []string, values []any) *Result {
	return &Result{Keys: keys, Records: []Record{{Keys: keys, Values: values}}}
}

func mapParam(params map[string]any, key string) map[string]any {
	m, _ := params[key].(map[string]any)
	return m
}

func rowsParam(params map[string]any) ([]map[string]any, error) {
	raw, ok := params[ParamRows].([]any)
	if !ok {
		return nil, apperr.Execution("graphstore.write", fmt.Errorf("missing %q parameter", ParamRows))
	}
	out := make([]map[string]any, 0, len(raw))
	for i, r := range raw {
		row, ok := r.(map[string]any)
		if !ok {
			return nil, apperr.Execution("graphstore.write", fmt.Errorf("row %d is not a map", i))
		}
		out = append(out, row)
	}
	return out, nil
}

func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func stringSet(v any) map[string]bool {
	set := make(map[string]bool)
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			set[s] = true
		}
	case []any:
		for _, s := range t {
			set[fmt.Sprint(s)] = true
		}
	}
	return set
}

// sameValue compares property values the way Cypher equality does for the
// scalar kinds the compilers bind: numbers compare numerically.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	af, aNum := number(a)
	bf, bNum := number(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	switch at := a.(type) {
	case string:
		bs, ok := b.(string)
		return ok && at == bs
	case bool:
		bb, ok := b.(bool)
		return ok && at == bb
	case time.Time:
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return false
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func toFloat(v any) float64 {
	f, _ := number(v)
	return f
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func removeString(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
