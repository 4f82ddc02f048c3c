// File: internal/server/server_test.go
package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/audit"
	"github.com/xkilldash9x/graphedit/internal/auth"
	"github.com/xkilldash9x/graphedit/internal/bulk"
	"github.com/xkilldash9x/graphedit/internal/config"
	"github.com/xkilldash9x/graphedit/internal/graphstore"
	"github.com/xkilldash9x/graphedit/internal/metrics"
	"github.com/xkilldash9x/graphedit/internal/mutation"
	"github.com/xkilldash9x/graphedit/internal/proposals"
	"github.com/xkilldash9x/graphedit/internal/query"
	"github.com/xkilldash9x/graphedit/internal/records"
	"github.com/xkilldash9x/graphedit/internal/views"
)

const adminKey = "bulk-key"

type harness struct {
	srv    *Server
	tokens map[schemas.Role]string
}

// newHarness wires the full service stack over SQLite and, when withGraph
// is set, an in-memory graph seeded with nodes A and B.
func newHarness(t *testing.T, cfg config.ServerConfig, withGraph bool) *harness {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	db, err := records.Open(ctx, "sqlite", ":memory:", 0, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var graph graphstore.Store
	if withGraph {
		mem := graphstore.NewMemory(logger)
		for _, id := range []string{"A", "B"} {
			c, err := mutation.NewCompiler(nil, nil).Compile(schemas.AddNode{
				ID: id, Label: id, NodeType: "person",
				Attrs: schemas.NewAttributes("id", id, "label", id, "node_type", "person"),
			})
			require.NoError(t, err)
			_, err = c.Execute(ctx, mem)
			require.NoError(t, err)
		}
		graph = mem
	}

	m := metrics.New()
	ledger := audit.NewLedger(db, logger)
	explorer := query.NewExplorer(graph, nil, query.NewCache[schemas.Elements](10, time.Minute), m, logger)
	tokens := auth.NewTokenService([]byte("test-secret"), "graphedit", time.Hour)
	users := auth.NewUsers(db, logger)

	deps := Deps{
		Records:   db,
		Proposals: proposals.NewService(db, graph, nil, ledger, logger, proposals.WithInvalidators(explorer), proposals.WithMetrics(m)),
		Ledger:    ledger,
		Views:     views.NewService(db, explorer, logger),
		Explorer:  explorer,
		Loader:    bulk.NewLoader(graph, bulk.NewCompiler(nil, 100, logger), ledger, m, logger, bulk.WithInvalidators(explorer)),
		Users:     users,
		Resolver:  auth.NewResolver(tokens, db, adminKey, logger),
		Metrics:   m,
	}

	h := &harness{srv: New(cfg, deps, logger), tokens: map[schemas.Role]string{}}
	for _, role := range []schemas.Role{schemas.RoleUser, schemas.RoleMod, schemas.RoleAdmin} {
		u, err := users.Add(ctx, string(role)+"@example.com", string(role), role)
		require.NoError(t, err)
		tok, err := tokens.Issue(u.ID, u.Email)
		require.NoError(t, err)
		h.tokens[role] = tok
	}
	return h
}

func defaultServerConfig() config.ServerConfig {
	return config.ServerConfig{Addr: "127.0.0.1:0", WriteRate: 1000, WriteBurst: 1000}
}

// do sends a request as role; an empty role is a guest.
func (h *harness) do(t *testing.T, role schemas.Role, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok, ok := h.tokens[role]; ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, defaultServerConfig(), true)

	rec := h.do(t, "", http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, rec)["status"])

	rec = h.do(t, "", http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthentication(t *testing.T) {
	h := newHarness(t, defaultServerConfig(), true)

	t.Run("should reject guests on user routes with the error envelope", func(t *testing.T) {
		rec := h.do(t, "", http.MethodGet, "/api/v1/proposals", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotEmpty(t, decodeBody[errorBody](t, rec).Error)
	})

	t.Run("should reject a bad bearer token", func(t *testing.T) {
		rec := h.do(t, "", http.MethodGet, "/api/v1/graph/stats", "", "Authorization", "Bearer nope")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should let guests explore", func(t *testing.T) {
		rec := h.do(t, "", http.MethodGet, "/api/v1/graph/stats", "")
		require.Equal(t, http.StatusOK, rec.Code)
		stats := decodeBody[query.Stats](t, rec)
		assert.Equal(t, int64(2), stats.Nodes)
	})

	t.Run("should return the current principal", func(t *testing.T) {
		rec := h.do(t, schemas.RoleMod, http.MethodGet, "/api/v1/me", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"role":"mod"`)
	})
}

func TestProposalFlow(t *testing.T) {
	h := newHarness(t, defaultServerConfig(), true)

	rec := h.do(t, schemas.RoleUser, http.MethodPost, "/api/v1/proposals",
		`{"type":"add-edge","dataAfter":{"source":"A","target":"B","edge_type":"MONEY","amount":50000},"reason":"wire"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	submitted := decodeBody[proposals.Outcome](t, rec)
	require.NotNil(t, submitted.Proposal)
	assert.Equal(t, schemas.StatusPending, submitted.Proposal.Status)

	t.Run("should forbid users from reviewing", func(t *testing.T) {
		rec := h.do(t, schemas.RoleUser, http.MethodPatch, "/api/v1/proposals/"+submitted.Proposal.ID, `{"status":"approved"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("should reject a review status outside the schema", func(t *testing.T) {
		rec := h.do(t, schemas.RoleMod, http.MethodPatch, "/api/v1/proposals/"+submitted.Proposal.ID, `{"status":"applied"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, decodeBody[errorBody](t, rec).Detail)
	})

	t.Run("should apply on approval", func(t *testing.T) {
		rec := h.do(t, schemas.RoleMod, http.MethodPatch, "/api/v1/proposals/"+submitted.Proposal.ID, `{"status":"approved","reviewComment":"ok"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		out := decodeBody[proposals.Outcome](t, rec)
		assert.Equal(t, schemas.StatusApplied, out.Proposal.Status)
		require.NotNil(t, out.Applied)
		assert.True(t, out.Applied.Success)
	})

	t.Run("should answer a second review with a conflict", func(t *testing.T) {
		rec := h.do(t, schemas.RoleMod, http.MethodPatch, "/api/v1/proposals/"+submitted.Proposal.ID, `{"status":"rejected"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("should expose the ledger to moderators", func(t *testing.T) {
		rec := h.do(t, schemas.RoleMod, http.MethodGet, "/api/v1/audit?proposalId="+submitted.Proposal.ID, "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[map[string][]schemas.AuditEntry](t, rec)
		assert.Len(t, body["entries"], 3)

		rec = h.do(t, schemas.RoleMod, http.MethodGet, "/api/v1/audit?from=yesterday", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should 404 an unknown proposal", func(t *testing.T) {
		rec := h.do(t, schemas.RoleUser, http.MethodGet, "/api/v1/proposals/missing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("should list proposals", func(t *testing.T) {
		rec := h.do(t, schemas.RoleUser, http.MethodGet, "/api/v1/proposals?status=applied&limit=500", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[map[string][]schemas.Proposal](t, rec)
		assert.Len(t, body["proposals"], 1)

		rec = h.do(t, schemas.RoleUser, http.MethodGet, "/api/v1/proposals?limit=ten", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDirectApplyRequiresAdmin(t *testing.T) {
	h := newHarness(t, defaultServerConfig(), true)
	body := `{"type":"add-node","dataAfter":{"label":"Carol","node_type":"person"},"reason":"seed"}`

	rec := h.do(t, schemas.RoleMod, http.MethodPost, "/api/v1/admin/direct-edit", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, schemas.RoleUser, http.MethodPost, "/api/v1/proposals",
		strings.Replace(body, `"reason"`, `"directApply":true,"reason"`, 1))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, schemas.RoleAdmin, http.MethodPost, "/api/v1/admin/direct-edit", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, schemas.StatusApplied, decodeBody[proposals.Outcome](t, rec).Proposal.Status)
}

func TestBulkAPIKey(t *testing.T) {
	h := newHarness(t, defaultServerConfig(), true)
	body := `{"labels":["person"],"merge_key":"id","nodes":[{"id":"C","label":"Carol"},{"id":"D","label":"Dan"}]}`

	t.Run("should merge with the admin key", func(t *testing.T) {
		rec := h.do(t, "", http.MethodPost, "/api/v1/admin/bulk-nodes", body, "X-API-Key", adminKey)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 2, decodeBody[map[string]int](t, rec)["merged"])
	})

	t.Run("should reject a wrong key", func(t *testing.T) {
		rec := h.do(t, "", http.MethodPost, "/api/v1/admin/bulk-nodes", body, "X-API-Key", "guess")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should reject a moderator token", func(t *testing.T) {
		rec := h.do(t, schemas.RoleMod, http.MethodPost, "/api/v1/admin/bulk-nodes", body)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("should reject a hostile label", func(t *testing.T) {
		rec := h.do(t, "", http.MethodPost, "/api/v1/admin/bulk-nodes",
			`{"labels":["Person) DETACH DELETE n //"],"merge_key":"id","nodes":[{"id":"E"}]}`, "X-API-Key", adminKey)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestViewsAndQueries(t *testing.T) {
	h := newHarness(t, defaultServerConfig(), true)

	rec := h.do(t, schemas.RoleUser, http.MethodPost, "/api/v1/views",
		`{"slug":"People","name":"People","query":{"type":"structured","nodeTypes":["person"]}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "people", decodeBody[schemas.SavedView](t, rec).Slug)

	t.Run("should execute a view for guests", func(t *testing.T) {
		rec := h.do(t, "", http.MethodGet, "/api/v1/views/people?limit=1", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		exec := decodeBody[struct {
			Count views.Count `json:"count"`
		}](t, rec)
		assert.Equal(t, 1, exec.Count.Nodes)
	})

	t.Run("should skip execution when results is false", func(t *testing.T) {
		rec := h.do(t, "", http.MethodGet, "/api/v1/views/people?results=false", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), `"elements"`)
	})

	t.Run("should need admin for raw patterns", func(t *testing.T) {
		raw := `{"type":"cypher","cypher":"MATCH (n) RETURN n"}`
		assert.Equal(t, http.StatusForbidden, h.do(t, schemas.RoleMod, http.MethodPost, "/api/v1/graph/query", raw).Code)
		assert.Equal(t, http.StatusUnauthorized, h.do(t, "", http.MethodPost, "/api/v1/graph/query", `{"type":"search","q":"a"}`).Code)
	})

	t.Run("should search with types", func(t *testing.T) {
		rec := h.do(t, "", http.MethodGet, "/api/v1/graph/search?q=a&types=person", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, decodeBody[elementsBody](t, rec).Count.Nodes)

		rec = h.do(t, "", http.MethodGet, "/api/v1/graph/search", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should 404 a missing neighborhood center", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, h.do(t, "", http.MethodGet, "/api/v1/graph/node/ghost", "").Code)
		assert.Equal(t, http.StatusBadRequest, h.do(t, "", http.MethodGet, "/api/v1/graph/expand", "").Code)
	})

	t.Run("should delete views as moderator", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, h.do(t, schemas.RoleUser, http.MethodDelete, "/api/v1/views/people", "").Code)
		assert.Equal(t, http.StatusNoContent, h.do(t, schemas.RoleMod, http.MethodDelete, "/api/v1/views/people", "").Code)
		assert.Equal(t, http.StatusNotFound, h.do(t, "", http.MethodGet, "/api/v1/views/people", "").Code)
	})
}

func TestWithoutGraphStore(t *testing.T) {
	h := newHarness(t, defaultServerConfig(), false)

	assert.Equal(t, http.StatusServiceUnavailable, h.do(t, "", http.MethodGet, "/api/v1/graph/stats", "").Code)
	rec := h.do(t, schemas.RoleUser, http.MethodPost, "/api/v1/proposals",
		`{"type":"add-node","dataAfter":{"label":"Carol","node_type":"person"},"reason":"seed"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	// Record-only routes keep working.
	assert.Equal(t, http.StatusOK, h.do(t, "", http.MethodGet, "/api/v1/views", "").Code)
}

func TestWriteRateLimit(t *testing.T) {
	cfg := defaultServerConfig()
	cfg.WriteRate = 0.001
	cfg.WriteBurst = 1
	h := newHarness(t, cfg, true)
	body := `{"type":"add-node","dataAfter":{"label":"Carol","node_type":"person"},"reason":"seed"}`

	assert.Equal(t, http.StatusCreated, h.do(t, schemas.RoleUser, http.MethodPost, "/api/v1/proposals", body).Code)
	rec := h.do(t, schemas.RoleUser, http.MethodPost, "/api/v1/proposals", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Reads and other principals are unaffected.
	assert.Equal(t, http.StatusOK, h.do(t, schemas.RoleUser, http.MethodGet, "/api/v1/proposals", "").Code)
	assert.Equal(t, http.StatusCreated, h.do(t, schemas.RoleMod, http.MethodPost, "/api/v1/proposals", body).Code)
}

func TestUserAdministration(t *testing.T) {
	h := newHarness(t, defaultServerConfig(), true)

	rec := h.do(t, schemas.RoleAdmin, http.MethodGet, "/api/v1/admin/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	users := decodeBody[map[string][]schemas.User](t, rec)["users"]
	require.Len(t, users, 3)

	var userID string
	for _, u := range users {
		if u.Role == schemas.RoleUser {
			userID = u.ID
		}
	}
	rec = h.do(t, schemas.RoleAdmin, http.MethodPatch, "/api/v1/admin/users/"+userID+"/role", `{"role":"mod"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The promoted token now reviews without being reissued.
	assert.Equal(t, http.StatusOK, h.do(t, schemas.RoleUser, http.MethodGet, "/api/v1/audit", "").Code)
	assert.Equal(t, http.StatusBadRequest,
		h.do(t, schemas.RoleAdmin, http.MethodPatch, "/api/v1/admin/users/"+userID+"/role", `{"role":"emperor"}`).Code)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := New(defaultServerConfig(), Deps{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
