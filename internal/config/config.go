// Package config loads nlsql configuration with the teacher's layering:
// environment variables override a local YAML file, which overrides
// built-in defaults. Unknown top-level YAML keys are rejected.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all nlsql configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Generation  GenerationConfig  `yaml:"generation"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Attempts    AttemptsConfig    `yaml:"attempts"`
	RowLimits   RowLimitsConfig   `yaml:"row_limits"`
	Dialect     string            `yaml:"dialect"`
	Logging     LoggingConfig     `yaml:"logging"`
	Modules     []string          `yaml:"allowed_modules"`
}

// DatabaseConfig configures the target relational database connection.
type DatabaseConfig struct {
	DSN            string `yaml:"dsn"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
	MaxIdleConns   int    `yaml:"max_idle_conns"`
	ProbeTimeoutMs int    `yaml:"probe_timeout_ms"`
	ExecTimeoutMs  int    `yaml:"exec_timeout_ms"`
}

// GenerationConfig configures the external generation service and the
// K-parallel fan-out policy (spec.md §4.6).
type GenerationConfig struct {
	ServiceURL       string        `yaml:"service_url"`
	PerCallTimeout   time.Duration `yaml:"per_call_timeout"`
	EasyK            int           `yaml:"easy_k"`
	MediumK          int           `yaml:"medium_k"`
	HardK            int           `yaml:"hard_k"`
	RepairK          int           `yaml:"repair_k"`
}

// EmbeddingConfig configures the embedding backend used by the schema
// retriever. Provider is "genai" or "http" (a generic POST /embed backend
// matching spec.md §6's embedding service contract).
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	ModelTag    string `yaml:"model_tag"`
	GenAIAPIKey string `yaml:"genai_api_key"`
	HTTPURL     string `yaml:"http_url"`
}

// RetrievalConfig configures schema-packet selection (spec.md §4.4).
type RetrievalConfig struct {
	DefaultTopN       int     `yaml:"default_top_n"`
	MaxTopN           int     `yaml:"max_top_n"`
	MinModules        int     `yaml:"min_modules"`
	MaxModules        int     `yaml:"max_modules"`
	GenericDownweight float64 `yaml:"generic_downweight"`
	HubBonus          float64 `yaml:"hub_bonus"`
	HubDegreeFloor    int     `yaml:"hub_degree_floor"`
	MaxFKExpansion    int     `yaml:"max_fk_expansion"`
	MinScoreFloor     float64 `yaml:"min_score_floor"`
}

// AttemptsConfig bounds the repair loop (spec.md §4.8).
type AttemptsConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// RowLimitsConfig bounds LIMIT enforcement (spec.md §4.2).
type RowLimitsConfig struct {
	DefaultMaxRows int `yaml:"default_max_rows"`
	CeilingRows    int `yaml:"ceiling_rows"`
}

// LoggingConfig configures the zap-backed logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the built-in configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxOpenConns:   10,
			MaxIdleConns:   5,
			ProbeTimeoutMs: 2000,
			ExecTimeoutMs:  30000,
		},
		Generation: GenerationConfig{
			PerCallTimeout: 20 * time.Second,
			EasyK:          2,
			MediumK:        4,
			HardK:          6,
			RepairK:        1,
		},
		Embedding: EmbeddingConfig{
			Provider: "genai",
			ModelTag: "gemini-embedding-001",
		},
		Retrieval: RetrievalConfig{
			DefaultTopN:       8,
			MaxTopN:           20,
			MinModules:        1,
			MaxModules:        3,
			GenericDownweight: 0.7,
			HubBonus:          0.1,
			HubDegreeFloor:    8,
			MaxFKExpansion:    3,
			MinScoreFloor:     0.15,
		},
		Attempts: AttemptsConfig{
			MaxAttempts: 3,
		},
		RowLimits: RowLimitsConfig{
			DefaultMaxRows: 100,
			CeilingRows:    1000,
		},
		Dialect: "postgres",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration with precedence: environment variables >
// path (if it exists) > defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else {
			dec := yaml.NewDecoder(bytes.NewReader(data))
			dec.KnownFields(true)
			if err := dec.Decode(cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides, taking
// precedence over both the file and the defaults.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NLSQL_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("NLSQL_GENERATION_URL"); v != "" {
		c.Generation.ServiceURL = v
	}
	if v := os.Getenv("NLSQL_EMBEDDING_MODEL"); v != "" {
		c.Embedding.ModelTag = v
	}
	if v := os.Getenv("GENAI_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("NLSQL_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("NLSQL_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Attempts.MaxAttempts = n
		}
	}
	if v := os.Getenv("NLSQL_DEFAULT_MAX_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RowLimits.DefaultMaxRows = n
		}
	}
	if v := os.Getenv("NLSQL_DIALECT"); v != "" {
		c.Dialect = v
	}
	if v := os.Getenv("NLSQL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks internal consistency of loaded configuration.
func (c *Config) Validate() error {
	if c.Attempts.MaxAttempts < 1 {
		return fmt.Errorf("attempts.max_attempts must be >= 1")
	}
	if c.RowLimits.DefaultMaxRows < 1 {
		return fmt.Errorf("row_limits.default_max_rows must be >= 1")
	}
	if c.RowLimits.CeilingRows < c.RowLimits.DefaultMaxRows {
		return fmt.Errorf("row_limits.ceiling_rows must be >= default_max_rows")
	}
	if c.Retrieval.DefaultTopN < 1 || c.Retrieval.DefaultTopN > c.Retrieval.MaxTopN {
		return fmt.Errorf("retrieval.default_top_n must be between 1 and max_top_n")
	}
	switch c.Embedding.Provider {
	case "genai", "http":
	default:
		return fmt.Errorf("unsupported embedding provider: %s (use 'genai' or 'http')", c.Embedding.Provider)
	}
	return nil
}
