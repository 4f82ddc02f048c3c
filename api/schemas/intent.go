package schemas

import (
	"strings"

	"github.com/xkilldash9x/graphedit/internal/apperr"
)

// IntentType names one of the four query-intent variants.
type IntentType string

const (
	IntentSearch     IntentType = "search"
	IntentStructured IntentType = "structured"
	IntentCypher     IntentType = "cypher"
	IntentCommunity  IntentType = "community"
)

// Intent is the closed set of query shapes the query compiler accepts.
type Intent interface {
	Type() IntentType
	isIntent()
}

// SearchIntent is a case-insensitive substring search over node text fields.
type SearchIntent struct {
	Text      string
	NodeTypes []string
	Limit     int
}

// StructuredIntent filters nodes by type and exact attribute values,
// optionally expanding a neighborhood around a center node.
type StructuredIntent struct {
	NodeTypes  []string
	Filters    Attributes
	CenterNode string
	Hops       int
	Limit      int
}

// RawIntent passes a caller-written traversal pattern through.
type RawIntent struct {
	Pattern string
	Limit   int
}

// CommunityIntent selects a community's members and the edges among them.
type CommunityIntent struct {
	CommunityID string
	Limit       int
}

func (SearchIntent) Type() IntentType     { return IntentSearch }
func (StructuredIntent) Type() IntentType { return IntentStructured }
func (RawIntent) Type() IntentType        { return IntentCypher }
func (CommunityIntent) Type() IntentType  { return IntentCommunity }

func (SearchIntent) isIntent()     {}
func (StructuredIntent) isIntent() {}
func (RawIntent) isIntent()        {}
func (CommunityIntent) isIntent()  {}

// QuerySpec is the flat wire form of an intent, as posted to the query
// endpoint and persisted on saved views.
type QuerySpec struct {
	Type        IntentType  `json:"type"`
	Q           string      `json:"q,omitempty"`
	NodeTypes   []string    `json:"nodeTypes,omitempty"`
	Filters     *Attributes `json:"filters,omitempty"`
	CenterNode  string      `json:"centerNode,omitempty"`
	Hops        int         `json:"hops,omitempty"`
	Cypher      string      `json:"cypher,omitempty"`
	CommunityID string      `json:"communityId,omitempty"`
	Limit       int         `json:"limit,omitempty"`
}

// Intent validates the query and returns the matching variant.
func (q QuerySpec) Intent() (Intent, error) {
	const op = "query"
	switch q.Type {
	case IntentSearch:
		text := strings.TrimSpace(q.Q)
		if text == "" {
			return nil, apperr.Validation(op, "search requires a non-empty q")
		}
		return SearchIntent{Text: text, NodeTypes: q.NodeTypes, Limit: q.Limit}, nil
	case IntentStructured:
		if q.Hops < 0 {
			return nil, apperr.Validation(op, "hops must not be negative")
		}
		var filters Attributes
		if q.Filters != nil {
			filters = q.Filters.Clone()
		}
		return StructuredIntent{
			NodeTypes:  q.NodeTypes,
			Filters:    filters,
			CenterNode: q.CenterNode,
			Hops:       q.Hops,
			Limit:      q.Limit,
		}, nil
	case IntentCypher:
		if strings.TrimSpace(q.Cypher) == "" {
			return nil, apperr.Validation(op, "cypher query requires a pattern")
		}
		return RawIntent{Pattern: q.Cypher, Limit: q.Limit}, nil
	case IntentCommunity:
		if q.CommunityID == "" {
			return nil, apperr.Validation(op, "community query requires communityId")
		}
		return CommunityIntent{CommunityID: q.CommunityID, Limit: q.Limit}, nil
	case "":
		return nil, apperr.Validation(op, "query type is required")
	default:
		return nil, apperr.Validation(op, "unknown query type %q", q.Type)
	}
}

// WithLimit returns the intent with its caller limit replaced.
func WithLimit(in Intent, limit int) Intent {
	switch v := in.(type) {
	case SearchIntent:
		v.Limit = limit
		return v
	case StructuredIntent:
		v.Limit = limit
		return v
	case RawIntent:
		v.Limit = limit
		return v
	case CommunityIntent:
		v.Limit = limit
		return v
	}
	return in
}
