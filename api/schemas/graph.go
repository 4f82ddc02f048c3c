package schemas

// ElementKind distinguishes node-shaped from edge-shaped elements.
type ElementKind string

const (
	ElementNode ElementKind = "node"
	ElementEdge ElementKind = "edge"
)

// Well-known attribute keys.
const (
	AttrID       = "id"
	AttrLabel    = "label"
	AttrName     = "name"
	AttrNodeType = "node_type"
	AttrNotes    = "notes"
	AttrSource   = "source"
	AttrTarget   = "target"
	AttrEdgeType = "edge_type"
)

// Element is the uniform shape every query result is normalized into.
type Element struct {
	Kind ElementKind `json:"kind"`
	Data Attributes  `json:"data"`
}

// ID returns the element's logical identifier.
func (e Element) ID() string {
	id, _ := e.Data.GetString(AttrID)
	return id
}

// Elements is a normalized query result.
type Elements []Element

// Counts returns the number of node and edge elements.
func (els Elements) Counts() (nodes, edges int) {
	for _, e := range els {
		if e.Kind == ElementNode {
			nodes++
		} else {
			edges++
		}
	}
	return nodes, edges
}
