// File: internal/server/handlers.go
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/bulk"
	"github.com/xkilldash9x/graphedit/internal/proposals"
	"github.com/xkilldash9x/graphedit/internal/records"
	"github.com/xkilldash9x/graphedit/internal/views"
)

// -- Identity --

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	actor := PrincipalFrom(r.Context())
	user, err := s.deps.Users.Me(r.Context(), actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"principal": actor, "user": user})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Users.List(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role string `json:"role"`
	}
	if err := decode(w, r, "", &body); err != nil {
		s.fail(w, r, err)
		return
	}
	role, err := schemas.ParseRole(body.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.deps.Users.SetRole(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"), role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

// -- Proposals --

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", records.DefaultPageSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	filter := records.ProposalFilter{
		Status: schemas.ProposalStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	}
	list, err := s.deps.Proposals.List(r.Context(), PrincipalFrom(r.Context()), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"proposals": list})
}

func (s *Server) handleSubmitProposal(w http.ResponseWriter, r *http.Request) {
	var req proposals.SubmitRequest
	if err := decode(w, r, schemas.DocProposal, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.deps.Proposals.Submit(r.Context(), PrincipalFrom(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleDirectEdit(w http.ResponseWriter, r *http.Request) {
	var req proposals.SubmitRequest
	if err := decode(w, r, schemas.DocProposal, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.deps.Proposals.DirectApply(r.Context(), PrincipalFrom(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Proposals.Get(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleReviewProposal(w http.ResponseWriter, r *http.Request) {
	var req proposals.ReviewRequest
	if err := decode(w, r, schemas.DocReview, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.deps.Proposals.Review(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

// -- Bulk --

func (s *Server) handleBulkNodes(w http.ResponseWriter, r *http.Request) {
	var batch bulk.NodeBatch
	if err := decode(w, r, schemas.DocBulkNodes, &batch); err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.deps.Loader.LoadNodes(r.Context(), PrincipalFrom(r.Context()), batch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"merged": n})
}

func (s *Server) handleBulkEdges(w http.ResponseWriter, r *http.Request) {
	var batch bulk.EdgeBatch
	if err := decode(w, r, schemas.DocBulkEdges, &batch); err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.deps.Loader.LoadEdges(r.Context(), PrincipalFrom(r.Context()), batch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"merged": n})
}

// -- Audit --

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := records.AuditFilter{
		ProposalID:   q.Get("proposalId"),
		TargetNodeID: q.Get("targetNodeId"),
		TargetEdgeID: q.Get("targetEdgeId"),
		UserID:       q.Get("userId"),
		Action:       schemas.AuditAction(q.Get("action")),
	}
	var err error
	if f.From, err = timeParam(r, "from"); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.To, err = timeParam(r, "to"); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.IncludeSquashed, err = boolParam(r, "includeSquashed", false); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.Limit, err = intParam(r, "limit", records.DefaultPageSize); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.Offset, err = intParam(r, "offset", 0); err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.deps.Ledger.List(r.Context(), PrincipalFrom(r.Context()), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type squashRequest struct {
	TargetNodeID string     `json:"targetNodeId"`
	TargetEdgeID string     `json:"targetEdgeId"`
	From         *time.Time `json:"from"`
	To           *time.Time `json:"to"`
	Summary      string     `json:"summary"`
}

func (s *Server) handleSquash(w http.ResponseWriter, r *http.Request) {
	var req squashRequest
	if err := decode(w, r, schemas.DocSquash, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	scope := records.SquashScope{TargetNodeID: req.TargetNodeID, TargetEdgeID: req.TargetEdgeID, From: req.From, To: req.To}
	entry, err := s.deps.Ledger.Squash(r.Context(), PrincipalFrom(r.Context()), scope, req.Summary)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

// -- Views --

func (s *Server) handleListViews(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Views.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"views": list})
}

func (s *Server) handleCreateView(w http.ResponseWriter, r *http.Request) {
	var req views.CreateRequest
	if err := decode(w, r, schemas.DocView, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	v, err := s.deps.Views.Create(r.Context(), PrincipalFrom(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, v)
}

// handleGetView executes the view unless results=false.
func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	results, err := boolParam(r, "results", true)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !results {
		v, err := s.deps.Views.Get(r.Context(), slug)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"view": v})
		return
	}
	limit, err := intParam(r, "limit", views.DefaultResultLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	exec, err := s.deps.Views.Execute(r.Context(), PrincipalFrom(r.Context()), slug, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleDeleteView(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Views.Delete(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "slug")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
