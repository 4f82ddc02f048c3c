// File: cmd/app.go
package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/audit"
	"github.com/xkilldash9x/graphedit/internal/auth"
	"github.com/xkilldash9x/graphedit/internal/bulk"
	"github.com/xkilldash9x/graphedit/internal/config"
	"github.com/xkilldash9x/graphedit/internal/graphstore"
	"github.com/xkilldash9x/graphedit/internal/metrics"
	"github.com/xkilldash9x/graphedit/internal/mutation"
	"github.com/xkilldash9x/graphedit/internal/observability"
	"github.com/xkilldash9x/graphedit/internal/proposals"
	"github.com/xkilldash9x/graphedit/internal/query"
	"github.com/xkilldash9x/graphedit/internal/records"
	"github.com/xkilldash9x/graphedit/internal/sanitize"
	"github.com/xkilldash9x/graphedit/internal/server"
	"github.com/xkilldash9x/graphedit/internal/views"
)

// cliPrincipal is the operator identity for local administrative commands.
var cliPrincipal = schemas.Principal{UserID: "cli", Role: schemas.RoleAdmin}

// Function variables so tests can swap the stores.
var (
	openRecords = func(ctx context.Context, cfg config.RecordsConfig, logger *zap.Logger) (records.Store, error) {
		db, err := records.Open(ctx, cfg.Driver, cfg.DSN, cfg.MaxConns, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	openGraph = func(ctx context.Context, cfg config.GraphConfig, m *metrics.Metrics, logger *zap.Logger) (graphstore.Store, error) {
		s, err := graphstore.OpenNeo4j(ctx, graphstore.Neo4jConfig{
			URI:          cfg.URI,
			Username:     cfg.Username,
			Password:     cfg.Password,
			Database:     cfg.Database,
			MaxPoolSize:  cfg.MaxPoolSize,
			QueryTimeout: cfg.QueryTimeout,
			BulkTimeout:  cfg.BulkTimeout,
			Retry: graphstore.RetryPolicy{
				Retries: cfg.ReadRetries,
				Delay:   cfg.RetryDelay,
				OnRetry: m.GraphReadRetry,
			},
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
)

// app is the fully wired service graph shared by serve and the admin
// commands.
type app struct {
	cfg      config.Interface
	log      *zap.Logger
	metrics  *metrics.Metrics
	records  records.Store
	graph    graphstore.Store
	ledger   *audit.Ledger
	users    *auth.Users
	tokens   *auth.TokenService
	explorer *query.Explorer
	props    *proposals.Service
	views    *views.Service
	loader   *bulk.Loader
}

// queryLimits maps the query config section onto compiler bounds.
func queryLimits(q config.QueryConfig) query.Limits {
	return query.Limits{
		SearchDefault:      q.SearchDefault,
		SearchMax:          q.SearchMax,
		StructuredDefault:  q.StructuredDefault,
		StructuredMax:      q.StructuredMax,
		MaxHops:            q.MaxHops,
		ExpandDefault:      q.ExpandDefault,
		ExpandMax:          q.ExpandMax,
		PathDefault:        q.PathDefault,
		MaxPathLength:      q.MaxPathLength,
		CommunityMax:       q.CommunityMax,
		MetaLabels:         q.MetaLabels,
		CommunityLabel:     q.CommunityLabel,
		MembershipType:     q.MembershipType,
		InterCommunityType: q.InterCommunityType,
	}
}

// buildApp opens the record store and, when needGraph is set, the graph
// store. An unreachable graph store leaves graph-backed operations
// answering Unavailable instead of failing startup.
func buildApp(ctx context.Context, cfg config.Interface, logger *zap.Logger, needGraph bool) (*app, error) {
	a := &app{cfg: cfg, log: logger, metrics: metrics.New()}

	rs, err := openRecords(ctx, cfg.Records(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open records store: %w", err)
	}
	a.records = rs

	if needGraph {
		g, err := openGraph(ctx, cfg.Graph(), a.metrics, logger)
		if err != nil {
			logger.Warn("Graph store unavailable; graph operations will answer 503",
				zap.String("uri", cfg.Graph().URI), zap.Error(err))
		} else {
			a.graph = g
		}
	}

	san := sanitize.New(logger, a.metrics.SanitizerRejection)
	qcfg := cfg.Query()
	a.explorer = query.NewExplorer(a.graph,
		query.NewCompiler(queryLimits(qcfg), san, logger),
		query.NewCache[schemas.Elements](qcfg.CacheSize, qcfg.CacheTTL),
		a.metrics, logger)
	a.ledger = audit.NewLedger(a.records, logger)
	a.users = auth.NewUsers(a.records, logger)
	a.tokens = auth.NewTokenService([]byte(cfg.Auth().JWTSecret), cfg.Auth().Issuer, cfg.Auth().TokenTTL)
	a.props = proposals.NewService(a.records, a.graph, mutation.NewCompiler(san, logger), a.ledger, logger,
		proposals.WithInvalidators(a.explorer),
		proposals.WithMetrics(a.metrics))
	a.views = views.NewService(a.records, a.explorer, logger)
	a.loader = bulk.NewLoader(a.graph, bulk.NewCompiler(san, cfg.Bulk().MaxBatch, logger), a.ledger, a.metrics, logger,
		bulk.WithInvalidators(a.explorer))
	return a, nil
}

func (a *app) serverDeps() server.Deps {
	return server.Deps{
		Records:   a.records,
		Proposals: a.props,
		Ledger:    a.ledger,
		Views:     a.views,
		Explorer:  a.explorer,
		Loader:    a.loader,
		Users:     a.users,
		Resolver:  auth.NewResolver(a.tokens, a.records, a.cfg.Auth().AdminAPIKey, a.log),
		Metrics:   a.metrics,
	}
}

// Close releases both stores.
func (a *app) Close(ctx context.Context) {
	if a.graph != nil {
		if err := a.graph.Close(ctx); err != nil {
			a.log.Warn("Failed to close graph store", zap.Error(err))
		}
	}
	if a.records != nil {
		if err := a.records.Close(); err != nil {
			a.log.Warn("Failed to close records store", zap.Error(err))
		}
	}
}

// withApp loads config from the command context, builds the app and runs fn.
func withApp(ctx context.Context, needGraph bool, fn func(a *app) error) error {
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger := observability.GetLogger()
	a, err := buildApp(ctx, cfg, logger, needGraph)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(a)
}
