// File: internal/server/graph.go
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
	"github.com/xkilldash9x/graphedit/internal/query"
	"github.com/xkilldash9x/graphedit/internal/views"
)

type elementsBody struct {
	Elements schemas.Elements `json:"elements"`
	Count    views.Count      `json:"count"`
}

func (s *Server) writeElements(w http.ResponseWriter, els schemas.Elements) {
	if els == nil {
		els = schemas.Elements{}
	}
	nodes, edges := els.Counts()
	s.writeJSON(w, http.StatusOK, elementsBody{Elements: els, Count: views.Count{Nodes: nodes, Edges: edges}})
}

// handleQuery runs an ad-hoc intent. Moderators may query; raw patterns
// need admin.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var spec schemas.QuerySpec
	if err := decode(w, r, schemas.DocQuery, &spec); err != nil {
		s.fail(w, r, err)
		return
	}
	in, err := spec.Intent()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := query.Authorize(PrincipalFrom(r.Context()), in, schemas.RoleMod); err != nil {
		s.fail(w, r, err)
		return
	}
	els, err := s.deps.Explorer.Run(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeElements(w, els)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	in, err := schemas.QuerySpec{
		Type:      schemas.IntentSearch,
		Q:         r.URL.Query().Get("q"),
		NodeTypes: listParam(r, "types"),
		Limit:     limit,
	}.Intent()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	els, err := s.deps.Explorer.Run(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeElements(w, els)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Explorer.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) neighborhood(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" {
		s.fail(w, r, apperr.Validation("query.expand", "id is required"))
		return
	}
	hops, err := intParam(r, "hops", 1)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	els, err := s.deps.Explorer.Neighborhood(r.Context(), id, hops, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeElements(w, els)
}

func (s *Server) handleNeighborhood(w http.ResponseWriter, r *http.Request) {
	s.neighborhood(w, r, chi.URLParam(r, "id"))
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	s.neighborhood(w, r, r.URL.Query().Get("id"))
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	maxLength, err := intParam(r, "maxLength", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	els, err := s.deps.Explorer.ShortestPath(r.Context(), q.Get("from"), q.Get("to"), maxLength)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeElements(w, els)
}

func (s *Server) handleCommunities(w http.ResponseWriter, r *http.Request) {
	level, err := optionalIntParam(r, "level")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	els, err := s.deps.Explorer.Communities(r.Context(), level, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeElements(w, els)
}

func (s *Server) handleCommunity(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	els, err := s.deps.Explorer.Community(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeElements(w, els)
}
