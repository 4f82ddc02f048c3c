// File: internal/graphstore/neo4j.go
package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/internal/apperr"
)

// Neo4jConfig holds connection and execution settings for the Neo4j store.
type Neo4jConfig struct {
	URI          string
	Username     string
	Password     string
	Database     string
	MaxPoolSize  int
	QueryTimeout time.Duration
	BulkTimeout  time.Duration
	Retry        RetryPolicy
}

// Neo4j is the production Store backed by a Neo4j driver. Connection pooling
// is the driver's concern; each call opens a short-lived session.
type Neo4j struct {
	driver neo4j.DriverWithContext
	cfg    Neo4jConfig
	log    *zap.Logger
}

var _ Store = (*Neo4j)(nil)

// OpenNeo4j creates the driver and verifies connectivity. The caller owns
// the returned store and must Close it on shutdown.
func OpenNeo4j(ctx context.Context, cfg Neo4jConfig, logger *zap.Logger) (*Neo4j, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	token := neo4j.NoAuth()
	if cfg.Username != "" {
		token = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, token, func(c *neo4j.Config) {
		if cfg.MaxPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, apperr.Unavailable("graphstore.open", err)
	}
	return NewNeo4j(driver, cfg, logger), nil
}

// NewNeo4j wraps an existing driver.
func NewNeo4j(driver neo4j.DriverWithContext, cfg Neo4jConfig, logger *zap.Logger) *Neo4j {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if cfg.BulkTimeout <= 0 {
		cfg.BulkTimeout = 120 * time.Second
	}
	if cfg.Retry.IsTransient == nil {
		cfg.Retry.IsTransient = isNeo4jTransient
	}
	return &Neo4j{driver: driver, cfg: cfg, log: logger.Named("neo4j")}
}

// Read executes st in a read session, retrying transient connectivity failures.
func (s *Neo4j) Read(ctx context.Context, st Statement) (*Result, error) {
	var out *Result
	err := s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		res, err := s.run(ctx, neo4j.AccessModeRead, st, s.cfg.QueryTimeout)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, classify("graphstore.read", err)
	}
	return out, nil
}

// Write executes st once in a write session.
func (s *Neo4j) Write(ctx context.Context, st Statement) (*Result, error) {
	timeout := s.cfg.QueryTimeout
	if st.Op == OpMergeNodes || st.Op == OpMergeEdges {
		timeout = s.cfg.BulkTimeout
	}
	res, err := s.run(ctx, neo4j.AccessModeWrite, st, timeout)
	if err != nil {
		return nil, classify("graphstore.write", err)
	}
	return res, nil
}

func (s *Neo4j) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4j) run(ctx context.Context, mode neo4j.AccessMode, st Statement, timeout time.Duration) (*Result, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.cfg.Database,
	})
	defer session.Close(ctx)

	s.log.Debug("Executing statement", zap.String("op", string(st.Op)), zap.String("cypher", st.Text))

	result, err := session.Run(ctx, st.Text, st.Params, neo4j.WithTxTimeout(timeout))
	if err != nil {
		return nil, err
	}
	keys, err := result.Keys()
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}
	summary, err := result.Consume(ctx)
	if err != nil {
		return nil, err
	}

	out := &Result{Keys: keys, Records: make([]Record, 0, len(records))}
	for _, rec := range records {
		values := make([]any, len(rec.Values))
		for i, v := range rec.Values {
			values[i] = convertValue(v)
		}
		out.Records = append(out.Records, Record{Keys: rec.Keys, Values: values})
	}
	if c := summary.Counters(); c != nil {
		out.Counters = Counters{
			NodesCreated:         c.NodesCreated(),
			NodesDeleted:         c.NodesDeleted(),
			RelationshipsCreated: c.RelationshipsCreated(),
			RelationshipsDeleted: c.RelationshipsDeleted(),
			PropertiesSet:        c.PropertiesSet(),
			LabelsAdded:          c.LabelsAdded(),
		}
	}
	return out, nil
}

func isNeo4jTransient(err error) bool {
	return neo4j.IsConnectivityError(err) || IsTransient(err)
}

// classify maps driver errors onto the unavailable/execution split.
func classify(op string, err error) error {
	if isNeo4jTransient(err) {
		return apperr.Unavailable(op, err)
	}
	return apperr.Execution(op, err)
}

// convertValue turns driver values into store-neutral values.
func convertValue(v any) any {
	switch t := v.(type) {
	case dbtype.Node:
		return NodeValue{ElementID: t.ElementId, Labels: t.Labels, Props: convertMap(t.Props)}
	case dbtype.Relationship:
		return RelValue{
			ElementID:      t.ElementId,
			StartElementID: t.StartElementId,
			EndElementID:   t.EndElementId,
			Type:           t.Type,
			Props:          convertMap(t.Props),
		}
	case dbtype.Path:
		p := PathValue{
			Nodes: make([]NodeValue, 0, len(t.Nodes)),
			Rels:  make([]RelValue, 0, len(t.Relationships)),
		}
		for _, n := range t.Nodes {
			p.Nodes = append(p.Nodes, convertValue(n).(NodeValue))
		}
		for _, r := range t.Relationships {
			p.Rels = append(p.Rels, convertValue(r).(RelValue))
		}
		return p
	case dbtype.Date:
		return t.Time()
	case dbtype.LocalDateTime:
		return t.Time()
	case dbtype.LocalTime:
		return t.Time().Format("15:04:05.999999999")
	case dbtype.Time:
		return t.Time().Format("15:04:05.999999999Z07:00")
	case dbtype.Duration:
		return t.String()
	case dbtype.Point2D:
		return t.String()
	case dbtype.Point3D:
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = convertValue(item)
		}
		return out
	case map[string]any:
		return convertMap(t)
	default:
		return v
	}
}

func convertMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = convertValue(v)
	}
	return out
}
