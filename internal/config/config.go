// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/graphedit/internal/sanitize"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Server() ServerConfig
	Graph() GraphConfig
	Records() RecordsConfig
	Auth() AuthConfig
	Query() QueryConfig
	Bulk() BulkConfig

	SetServerAddr(addr string)
	SetRecordsDriver(driver string)
	SetRecordsDSN(dsn string)
	SetLoggerLevel(level string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	ServerCfg  ServerConfig  `mapstructure:"server" yaml:"server"`
	GraphCfg   GraphConfig   `mapstructure:"graph" yaml:"graph"`
	RecordsCfg RecordsConfig `mapstructure:"records" yaml:"records"`
	AuthCfg    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	QueryCfg   QueryConfig   `mapstructure:"query" yaml:"query"`
	BulkCfg    BulkConfig    `mapstructure:"bulk" yaml:"bulk"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Server() ServerConfig   { return c.ServerCfg }
func (c *Config) Graph() GraphConfig     { return c.GraphCfg }
func (c *Config) Records() RecordsConfig { return c.RecordsCfg }
func (c *Config) Auth() AuthConfig       { return c.AuthCfg }
func (c *Config) Query() QueryConfig     { return c.QueryCfg }
func (c *Config) Bulk() BulkConfig       { return c.BulkCfg }

func (c *Config) SetServerAddr(addr string)      { c.ServerCfg.Addr = addr }
func (c *Config) SetRecordsDriver(driver string) { c.RecordsCfg.Driver = driver }
func (c *Config) SetRecordsDSN(dsn string)       { c.RecordsCfg.DSN = dsn }
func (c *Config) SetLoggerLevel(level string)    { c.LoggerCfg.Level = level }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// WriteRate and WriteBurst bound mutations per principal.
	WriteRate  float64 `mapstructure:"write_rate" yaml:"write_rate"`
	WriteBurst int     `mapstructure:"write_burst" yaml:"write_burst"`
}

// GraphConfig holds the graph store connection details.
type GraphConfig struct {
	URI          string        `mapstructure:"uri" yaml:"uri"`
	Username     string        `mapstructure:"username" yaml:"username"`
	Password     string        `mapstructure:"password" yaml:"password"`
	Database     string        `mapstructure:"database" yaml:"database"`
	ReadRetries  int           `mapstructure:"read_retries" yaml:"read_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	QueryTimeout time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
	BulkTimeout  time.Duration `mapstructure:"bulk_timeout" yaml:"bulk_timeout"`
	MaxPoolSize  int           `mapstructure:"max_pool_size" yaml:"max_pool_size"`
}

// RecordsConfig selects and connects the relational record store.
type RecordsConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver"`
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// AuthConfig configures bearer tokens and the admin API key.
type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Issuer      string        `mapstructure:"issuer" yaml:"issuer"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	AdminAPIKey string        `mapstructure:"admin_api_key" yaml:"admin_api_key"`
}

// QueryConfig bounds every read the query compiler builds.
type QueryConfig struct {
	SearchDefault      int           `mapstructure:"search_default" yaml:"search_default"`
	SearchMax          int           `mapstructure:"search_max" yaml:"search_max"`
	StructuredDefault  int           `mapstructure:"structured_default" yaml:"structured_default"`
	StructuredMax      int           `mapstructure:"structured_max" yaml:"structured_max"`
	MaxHops            int           `mapstructure:"max_hops" yaml:"max_hops"`
	ExpandDefault      int           `mapstructure:"expand_default" yaml:"expand_default"`
	ExpandMax          int           `mapstructure:"expand_max" yaml:"expand_max"`
	PathDefault        int           `mapstructure:"path_default" yaml:"path_default"`
	MaxPathLength      int           `mapstructure:"max_path_length" yaml:"max_path_length"`
	CommunityMax       int           `mapstructure:"community_max" yaml:"community_max"`
	MetaLabels         []string      `mapstructure:"meta_labels" yaml:"meta_labels"`
	CommunityLabel     string        `mapstructure:"community_label" yaml:"community_label"`
	MembershipType     string        `mapstructure:"membership_type" yaml:"membership_type"`
	InterCommunityType string        `mapstructure:"inter_community_type" yaml:"inter_community_type"`
	CacheSize          int           `mapstructure:"cache_size" yaml:"cache_size"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// BulkConfig bounds bulk batches.
type BulkConfig struct {
	MaxBatch int `mapstructure:"max_batch" yaml:"max_batch"`
}

// NewDefaultConfig creates a new configuration with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "graphedit")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.write_rate", 5.0)
	v.SetDefault("server.write_burst", 10)

	// -- Graph --
	v.SetDefault("graph.uri", "bolt://localhost:7687")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "")
	v.SetDefault("graph.read_retries", 2)
	v.SetDefault("graph.retry_delay", "500ms")
	v.SetDefault("graph.query_timeout", "30s")
	v.SetDefault("graph.bulk_timeout", "120s")
	v.SetDefault("graph.max_pool_size", 50)

	// -- Records --
	v.SetDefault("records.driver", "sqlite")
	v.SetDefault("records.dsn", "graphedit.db")
	v.SetDefault("records.max_conns", 10)

	// -- Auth --
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "graphedit")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.admin_api_key", "")

	// -- Query --
	v.SetDefault("query.search_default", 20)
	v.SetDefault("query.search_max", 100)
	v.SetDefault("query.structured_default", 5000)
	v.SetDefault("query.structured_max", 10000)
	v.SetDefault("query.max_hops", 3)
	v.SetDefault("query.expand_default", 100)
	v.SetDefault("query.expand_max", 500)
	v.SetDefault("query.path_default", 6)
	v.SetDefault("query.max_path_length", 10)
	v.SetDefault("query.community_max", 500)
	v.SetDefault("query.meta_labels", []string{"efta", "available", "missing"})
	v.SetDefault("query.community_label", "Community")
	v.SetDefault("query.membership_type", "BELONGS_TO")
	v.SetDefault("query.inter_community_type", "INTER_COMMUNITY")
	v.SetDefault("query.cache_size", 100)
	v.SetDefault("query.cache_ttl", "5m")

	// -- Bulk --
	v.SetDefault("bulk.max_batch", 1000)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("auth.admin_api_key", "GRAPHEDIT_ADMIN_KEY")
	_ = v.BindEnv("auth.jwt_secret", "GRAPHEDIT_JWT_SECRET")
	_ = v.BindEnv("graph.password", "GRAPHEDIT_GRAPH_PASSWORD")
	_ = v.BindEnv("records.dsn", "GRAPHEDIT_RECORDS_DSN")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.GraphCfg.URI == "" {
		return fmt.Errorf("graph.uri is a required configuration field")
	}
	if c.GraphCfg.ReadRetries < 0 {
		return fmt.Errorf("graph.read_retries must not be negative")
	}
	switch c.RecordsCfg.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("records.driver must be \"sqlite\" or \"postgres\", got %q", c.RecordsCfg.Driver)
	}
	if c.ServerCfg.WriteRate <= 0 || c.ServerCfg.WriteBurst <= 0 {
		return fmt.Errorf("server.write_rate and server.write_burst must be positive")
	}
	if c.BulkCfg.MaxBatch <= 0 {
		return fmt.Errorf("bulk.max_batch must be a positive integer")
	}
	if err := c.QueryCfg.Validate(); err != nil {
		return fmt.Errorf("query configuration invalid: %w", err)
	}
	return nil
}

// Validate checks that every limit is positive, no default exceeds its
// maximum, and every spliced identifier passes the sanitizer.
func (q *QueryConfig) Validate() error {
	pairs := []struct {
		name      string
		def, ceil int
	}{
		{"search", q.SearchDefault, q.SearchMax},
		{"structured", q.StructuredDefault, q.StructuredMax},
		{"expand", q.ExpandDefault, q.ExpandMax},
		{"path", q.PathDefault, q.MaxPathLength},
	}
	for _, p := range pairs {
		if p.def <= 0 || p.ceil <= 0 {
			return fmt.Errorf("%s limits must be positive integers", p.name)
		}
		if p.ceil < p.def {
			return fmt.Errorf("%s maximum %d is below its default %d", p.name, p.ceil, p.def)
		}
	}
	if q.MaxHops <= 0 || q.CommunityMax <= 0 {
		return fmt.Errorf("max_hops and community_max must be positive integers")
	}
	idents := append([]string{q.CommunityLabel, q.MembershipType, q.InterCommunityType}, q.MetaLabels...)
	for _, id := range idents {
		if err := sanitize.ValidateTypeLabel(id); err != nil {
			return err
		}
	}
	return nil
}
