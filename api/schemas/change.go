package schemas

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/graphedit/internal/apperr"
)

// Change is the closed set of single-entity mutations. Each variant carries
// exactly the fields its statement needs; the unexported method keeps the
// set closed to this package.
type Change interface {
	Kind() ChangeKind
	// Target returns the logical id of the node or edge the change addresses.
	Target() string
	isChange()
}

type AddNode struct {
	ID       string
	Label    string
	NodeType string
	Attrs    Attributes
}

type EditNode struct {
	NodeID string
	Attrs  Attributes
}

type DeleteNode struct {
	NodeID string
}

type AddEdge struct {
	ID       string
	Source   string
	TargetID string
	EdgeType string
	Attrs    Attributes
}

type EditEdge struct {
	EdgeID string
	Attrs  Attributes
}

type DeleteEdge struct {
	EdgeID string
}

func (AddNode) Kind() ChangeKind    { return ChangeAddNode }
func (EditNode) Kind() ChangeKind   { return ChangeEditNode }
func (DeleteNode) Kind() ChangeKind { return ChangeDeleteNode }
func (AddEdge) Kind() ChangeKind    { return ChangeAddEdge }
func (EditEdge) Kind() ChangeKind   { return ChangeEditEdge }
func (DeleteEdge) Kind() ChangeKind { return ChangeDeleteEdge }

func (c AddNode) Target() string    { return c.ID }
func (c EditNode) Target() string   { return c.NodeID }
func (c DeleteNode) Target() string { return c.NodeID }
func (c AddEdge) Target() string    { return c.ID }
func (c EditEdge) Target() string   { return c.EdgeID }
func (c DeleteEdge) Target() string { return c.EdgeID }

func (AddNode) isChange()    {}
func (EditNode) isChange()   {}
func (DeleteNode) isChange() {}
func (AddEdge) isChange()    {}
func (EditEdge) isChange()   {}
func (DeleteEdge) isChange() {}

// Keys that are never written as properties by edit operations.
var (
	nodeImmutableKeys = []string{AttrID, AttrNodeType}
	edgeImmutableKeys = []string{AttrID, AttrSource, AttrTarget, AttrEdgeType}
	edgeMatchKeys     = []string{AttrSource, AttrTarget, AttrEdgeType}
)

var whitespace = regexp.MustCompile(`\s+`)

// DeriveNodeID builds a node id from its label.
func DeriveNodeID(label string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(label), "_")
}

// ChangeRequest is the proposal-shaped description NewChange decodes.
type ChangeRequest struct {
	Type         ChangeKind
	TargetNodeID string
	TargetEdgeID string
	DataAfter    Attributes
}

// RequestOf extracts the change description stored on a proposal.
func RequestOf(p *Proposal) ChangeRequest {
	return ChangeRequest{
		Type:         p.Type,
		TargetNodeID: p.TargetNodeID,
		TargetEdgeID: p.TargetEdgeID,
		DataAfter:    p.DataAfter,
	}
}

// NewChange validates a change request and returns the matching variant.
func NewChange(req ChangeRequest) (Change, error) {
	const op = "change"
	data := req.DataAfter

	switch req.Type {
	case ChangeAddNode:
		label, ok := data.GetString(AttrLabel)
		if !ok || strings.TrimSpace(label) == "" {
			return nil, apperr.Validation(op, "add-node requires a string %q in dataAfter", AttrLabel)
		}
		nodeType, ok := data.GetString(AttrNodeType)
		if !ok || nodeType == "" {
			return nil, apperr.Validation(op, "add-node requires a string %q in dataAfter", AttrNodeType)
		}
		id, _ := data.GetString(AttrID)
		if id == "" {
			id = req.TargetNodeID
		}
		if id == "" {
			id = DeriveNodeID(label)
		}
		attrs := data.Clone()
		attrs.Set(AttrID, String(id))
		return AddNode{ID: id, Label: label, NodeType: nodeType, Attrs: attrs}, nil

	case ChangeEditNode:
		if req.TargetNodeID == "" {
			return nil, apperr.Validation(op, "edit-node requires targetNodeId")
		}
		return EditNode{NodeID: req.TargetNodeID, Attrs: data.Without(nodeImmutableKeys...)}, nil

	case ChangeDeleteNode:
		if req.TargetNodeID == "" {
			return nil, apperr.Validation(op, "delete-node requires targetNodeId")
		}
		return DeleteNode{NodeID: req.TargetNodeID}, nil

	case ChangeAddEdge:
		var ends [3]string
		for i, key := range edgeMatchKeys {
			v, ok := data.GetString(key)
			if !ok || v == "" {
				return nil, apperr.Validation(op, "add-edge requires a string %q in dataAfter", key)
			}
			ends[i] = v
		}
		attrs := data.Without(edgeMatchKeys...)
		id, _ := attrs.GetString(AttrID)
		if id == "" && req.TargetEdgeID != "" {
			id = req.TargetEdgeID
			attrs.Set(AttrID, String(id))
		}
		return AddEdge{ID: id, Source: ends[0], TargetID: ends[1], EdgeType: ends[2], Attrs: attrs}, nil

	case ChangeEditEdge:
		if req.TargetEdgeID == "" {
			return nil, apperr.Validation(op, "edit-edge requires targetEdgeId")
		}
		return EditEdge{EdgeID: req.TargetEdgeID, Attrs: data.Without(edgeImmutableKeys...)}, nil

	case ChangeDeleteEdge:
		if req.TargetEdgeID == "" {
			return nil, apperr.Validation(op, "delete-edge requires targetEdgeId")
		}
		return DeleteEdge{EdgeID: req.TargetEdgeID}, nil

	default:
		return nil, apperr.Validation(op, "unknown change type %q", req.Type)
	}
}
