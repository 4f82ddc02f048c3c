// File: internal/views/views.go
package views

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
	"github.com/xkilldash9x/graphedit/internal/query"
	"github.com/xkilldash9x/graphedit/internal/records"
)

// Result limits for executing a view.
const (
	DefaultResultLimit = 5000
	MaxResultLimit     = 10000
)

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9-]`)
	slugDashes  = regexp.MustCompile(`-+`)
)

// NormalizeSlug lowercases s, maps every other character to a dash,
// collapses runs of dashes and trims them from both ends.
func NormalizeSlug(s string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(s), "-")
	slug = slugDashes.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// CreateRequest is the body of a save-view call.
type CreateRequest struct {
	Slug        string            `json:"slug"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Query       schemas.QuerySpec `json:"query"`
}

// Count tallies an execution's elements.
type Count struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// Execution is a view together with the elements its query returned.
type Execution struct {
	View     *schemas.SavedView `json:"view"`
	Elements schemas.Elements   `json:"elements"`
	Count    Count              `json:"count"`
}

// Service manages saved views.
type Service struct {
	store    records.Store
	explorer *query.Explorer
	log      *zap.Logger
	now      func() time.Time
}

func NewService(store records.Store, explorer *query.Explorer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		explorer: explorer,
		log:      logger.Named("views"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create saves a view. Views carrying a raw pattern can only be saved by
// an admin.
func (s *Service) Create(ctx context.Context, actor schemas.Principal, req CreateRequest) (*schemas.SavedView, error) {
	const op = "views.create"
	if err := actor.Require(op, schemas.RoleUser); err != nil {
		return nil, err
	}
	v, err := s.build(op, actor, req)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateView(ctx, v); err != nil {
		return nil, records.Classify(op, err)
	}
	s.log.Info("View saved", zap.String("slug", v.Slug), zap.String("author_id", actor.UserID))
	return v, nil
}

func (s *Service) build(op string, actor schemas.Principal, req CreateRequest) (*schemas.SavedView, error) {
	slug := NormalizeSlug(req.Slug)
	name := strings.TrimSpace(req.Name)
	if slug == "" || name == "" || req.Query.Type == "" {
		return nil, apperr.Validation(op, "slug, name, and query are required")
	}
	in, err := req.Query.Intent()
	if err != nil {
		return nil, err
	}
	if err := query.Authorize(actor, in, schemas.RoleUser); err != nil {
		return nil, err
	}
	return &schemas.SavedView{
		Slug:        slug,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Query:       req.Query,
		AuthorID:    actor.UserID,
		CreatedAt:   s.now(),
	}, nil
}

// Get returns one view.
func (s *Service) Get(ctx context.Context, slug string) (*schemas.SavedView, error) {
	v, err := s.store.GetView(ctx, slug)
	if err != nil {
		return nil, records.Classify("views.get", err)
	}
	return v, nil
}

// List returns every view, newest first.
func (s *Service) List(ctx context.Context) ([]schemas.SavedView, error) {
	return s.store.ListViews(ctx)
}

// Delete removes a view. It is a moderator capability.
func (s *Service) Delete(ctx context.Context, actor schemas.Principal, slug string) error {
	const op = "views.delete"
	if err := actor.Require(op, schemas.RoleMod); err != nil {
		return err
	}
	if err := s.store.DeleteView(ctx, slug); err != nil {
		return records.Classify(op, err)
	}
	s.log.Info("View deleted", zap.String("slug", slug), zap.String("user_id", actor.UserID))
	return nil
}

// Execute runs the view's query with limit clamped to MaxResultLimit.
func (s *Service) Execute(ctx context.Context, actor schemas.Principal, slug string, limit int) (*Execution, error) {
	v, err := s.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	in, err := v.Query.Intent()
	if err != nil {
		return nil, err
	}
	if err := query.Authorize(actor, in, schemas.RoleGuest); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultResultLimit
	}
	if limit > MaxResultLimit {
		limit = MaxResultLimit
	}
	els, err := s.explorer.Run(ctx, schemas.WithLimit(in, limit))
	if err != nil {
		return nil, err
	}
	nodes, edges := els.Counts()
	return &Execution{View: v, Elements: els, Count: Count{Nodes: nodes, Edges: edges}}, nil
}

// Import saves views in order, skipping slugs that already exist. It
// returns how many were created and how many skipped.
func (s *Service) Import(ctx context.Context, actor schemas.Principal, views []schemas.SavedView) (created, skipped int, err error) {
	const op = "views.import"
	if err := actor.Require(op, schemas.RoleAdmin); err != nil {
		return 0, 0, err
	}
	for _, in := range views {
		v, err := s.build(op, actor, CreateRequest{Slug: in.Slug, Name: in.Name, Description: in.Description, Query: in.Query})
		if err != nil {
			return created, skipped, err
		}
		if in.AuthorID != "" {
			v.AuthorID = in.AuthorID
		}
		if !in.CreatedAt.IsZero() {
			v.CreatedAt = in.CreatedAt
		}
		if err := s.store.CreateView(ctx, v); err != nil {
			if errors.Is(err, records.ErrAlreadyExists) {
				skipped++
				continue
			}
			return created, skipped, records.Classify(op, err)
		}
		created++
	}
	s.log.Info("Views imported", zap.Int("created", created), zap.Int("skipped", skipped))
	return created, skipped, nil
}
