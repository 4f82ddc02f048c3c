package schemas

import (
	"strings"
	"time"
)

// -- Proposals --

// ChangeKind names the six mutation shapes a proposal can carry.
type ChangeKind string

const (
	ChangeAddNode    ChangeKind = "add-node"
	ChangeEditNode   ChangeKind = "edit-node"
	ChangeDeleteNode ChangeKind = "delete-node"
	ChangeAddEdge    ChangeKind = "add-edge"
	ChangeEditEdge   ChangeKind = "edit-edge"
	ChangeDeleteEdge ChangeKind = "delete-edge"
)

// ChangeKinds lists every kind in a stable order.
var ChangeKinds = []ChangeKind{
	ChangeAddNode, ChangeEditNode, ChangeDeleteNode,
	ChangeAddEdge, ChangeEditEdge, ChangeDeleteEdge,
}

func (k ChangeKind) Valid() bool {
	for _, known := range ChangeKinds {
		if k == known {
			return true
		}
	}
	return false
}

// TargetsEdge reports whether the kind addresses an edge.
func (k ChangeKind) TargetsEdge() bool {
	return k == ChangeAddEdge || k == ChangeEditEdge || k == ChangeDeleteEdge
}

// ProposalStatus is a state of the proposal lifecycle.
type ProposalStatus string

const (
	StatusPending  ProposalStatus = "pending"
	StatusApproved ProposalStatus = "approved"
	StatusRejected ProposalStatus = "rejected"
	StatusApplied  ProposalStatus = "applied"
	StatusFailed   ProposalStatus = "failed"
)

var transitions = map[ProposalStatus][]ProposalStatus{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusApplied, StatusFailed},
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s ProposalStatus) CanTransition(next ProposalStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s ProposalStatus) Terminal() bool { return len(transitions[s]) == 0 }

func (s ProposalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusApplied, StatusFailed:
		return true
	}
	return false
}

// Proposal is a change request and its moderation outcome.
type Proposal struct {
	ID            string         `json:"id"`
	Type          ChangeKind     `json:"type"`
	Status        ProposalStatus `json:"status"`
	TargetNodeID  string         `json:"targetNodeId,omitempty"`
	TargetEdgeID  string         `json:"targetEdgeId,omitempty"`
	DataBefore    *Attributes    `json:"dataBefore"`
	DataAfter     Attributes     `json:"dataAfter"`
	Reason        string         `json:"reason"`
	AuthorID      string         `json:"authorId"`
	ReviewerID    string         `json:"reviewerId,omitempty"`
	ReviewComment string         `json:"reviewComment,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	ReviewedAt    *time.Time     `json:"reviewedAt"`
	AppliedAt     *time.Time     `json:"appliedAt"`
	ErrorMessage  string         `json:"errorMessage,omitempty"`
}

// -- Audit --

// AuditAction is the kind of event an audit entry records.
type AuditAction string

const (
	ActionProposalCreated  AuditAction = "proposal_created"
	ActionProposalApproved AuditAction = "proposal_approved"
	ActionProposalRejected AuditAction = "proposal_rejected"
	ActionProposalApplied  AuditAction = "proposal_applied"
	ActionProposalFailed   AuditAction = "proposal_failed"
	ActionSquash           AuditAction = "squash"
	ActionBulkNodes        AuditAction = "bulk_nodes"
	ActionBulkEdges        AuditAction = "bulk_edges"
)

// DirectAction returns the direct_* action for a change kind, e.g. direct_add_edge.
func DirectAction(kind ChangeKind) AuditAction {
	return AuditAction("direct_" + strings.ReplaceAll(string(kind), "-", "_"))
}

// AuditEntry is an immutable ledger row. Only SquashedIntoID is ever set after insert.
type AuditEntry struct {
	ID             string      `json:"id"`
	Action         AuditAction `json:"action"`
	ProposalID     string      `json:"proposalId,omitempty"`
	UserID         string      `json:"userId"`
	TargetNodeID   string      `json:"targetNodeId,omitempty"`
	TargetEdgeID   string      `json:"targetEdgeId,omitempty"`
	DataBefore     *Attributes `json:"dataBefore"`
	DataAfter      *Attributes `json:"dataAfter"`
	Statement      string      `json:"statement,omitempty"`
	SquashedIntoID string      `json:"squashedIntoId,omitempty"`
	SquashSummary  string      `json:"squashSummary,omitempty"`
	SquashedCount  int         `json:"squashedCount,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// -- Views and Users --

// SavedView is a named, persisted query intent.
type SavedView struct {
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Query       QuerySpec `json:"query"`
	AuthorID    string    `json:"authorId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// User is a record-store account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}
