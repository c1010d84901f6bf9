// Package config provides configuration management for NeoQuery.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"neoquery/internal/domain"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Sources   SourcesConfig   `toml:"sources"`
	Agent     AgentConfig     `toml:"agent"`
	Cache     CacheConfig     `toml:"cache"`
	Embedder  EmbedderConfig  `toml:"embedder"`
	DocIndex  DocIndexConfig  `toml:"docindex"`
	Security  SecurityConfig  `toml:"security"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	BindAddress    string        `toml:"bind_address"`
	HTTPPort       int           `toml:"http_port"`
	ReadTimeout    time.Duration `toml:"read_timeout"`
	IdleTimeout    time.Duration `toml:"idle_timeout"`
	MaxRequestSize int64         `toml:"max_request_size"`
}

// TelemetryConfig contains metrics and logging settings
type TelemetryConfig struct {
	ServiceName    string `toml:"service_name"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
	MetricsPath    string `toml:"metrics_path"`
	LogFormat      string `toml:"log_format"` // "json", "text"
	LogLevel       string `toml:"log_level"`  // "debug", "info", "warn", "error"
}

// SourcesConfig contains the upstream data service endpoints
type SourcesConfig struct {
	ResearchersURL string `toml:"researchers_url"`
	PatentsURL     string `toml:"patents_url"`
	GrantsURL      string `toml:"grants_url"`
	PoliciesURL    string `toml:"policies_url"`
	PortfolioURL   string `toml:"portfolio_url"`
	MarketDataURL  string `toml:"market_data_url"`
	SECSentinelURL string `toml:"sec_sentinel_url"`
	SQLSecret      string `toml:"sql_secret"`
	QueryLimit     int    `toml:"query_limit"` // rows injected as LIMIT when absent
}

// BaseURL returns the configured base URL for a source.
func (s *SourcesConfig) BaseURL(src domain.Source) string {
	switch src {
	case domain.SourceResearchers:
		return s.ResearchersURL
	case domain.SourcePatents:
		return s.PatentsURL
	case domain.SourceGrants:
		return s.GrantsURL
	case domain.SourcePolicies:
		return s.PoliciesURL
	case domain.SourcePortfolio:
		return s.PortfolioURL
	case domain.SourceMarketData:
		return s.MarketDataURL
	case domain.SourceSECSentinel:
		return s.SECSentinelURL
	default:
		return ""
	}
}

// AgentConfig contains LLM agent settings
type AgentConfig struct {
	Provider           string `toml:"provider"` // "anthropic", "bedrock"
	Model              string `toml:"model"`
	RAGModel           string `toml:"rag_model"`
	MaxTurns           int    `toml:"max_turns"`
	MaxTokens          int    `toml:"max_tokens"`
	AnthropicAPIKey    string `toml:"anthropic_api_key"`
	AnthropicBaseURL   string `toml:"anthropic_base_url"`
	AWSRegion          string `toml:"aws_region"`
	AWSAccessKeyID     string `toml:"aws_access_key_id"`
	AWSSecretAccessKey string `toml:"aws_secret_access_key"`
}

// CacheConfig contains semantic response cache settings
type CacheConfig struct {
	Enabled     bool    `toml:"enabled"`
	Driver      string  `toml:"driver"` // "sqlite", "postgres", "memory"
	Path        string  `toml:"path"`   // sqlite file path
	PostgresDSN string  `toml:"postgres_dsn"`
	TTLSeconds  int     `toml:"ttl_seconds"`
	Threshold   float64 `toml:"threshold"`
	MaxEntries  int     `toml:"max_entries"`
}

// EmbedderConfig contains embedder settings for semantic caching and search
type EmbedderConfig struct {
	Type    string `toml:"type"`     // "local", "openai", "ollama"
	APIKey  string `toml:"api_key"`  // For OpenAI
	BaseURL string `toml:"base_url"` // For Ollama or custom endpoint
	Model   string `toml:"model"`
}

// DocIndexConfig contains RAG document index settings
type DocIndexConfig struct {
	Enabled              bool `toml:"enabled"`
	MaxRowsPerCollection int  `toml:"max_rows_per_collection"`
}

// SecurityConfig contains facade security settings
type SecurityConfig struct {
	APITokenHash string   `toml:"api_token_hash"` // bcrypt hash; empty disables auth
	CORSOrigins  []string `toml:"cors_origins"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:    "0.0.0.0",
			HTTPPort:       8080,
			ReadTimeout:    30 * time.Second,
			IdleTimeout:    120 * time.Second,
			MaxRequestSize: 1 << 20,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "neoquery",
			MetricsEnabled: true,
			MetricsPath:    "/metrics",
			LogFormat:      "json",
			LogLevel:       "info",
		},
		Sources: SourcesConfig{
			ResearchersURL: "https://kdttalentscout.up.railway.app",
			PatentsURL:     "https://patentwarrior.up.railway.app",
			GrantsURL:      "https://grants-tracker-production.up.railway.app",
			PoliciesURL:    "https://policywatch.up.railway.app",
			PortfolioURL:   "https://web-production-a9d068.up.railway.app",
			MarketDataURL:  "https://clinicaltrialsdata.up.railway.app",
			SECSentinelURL: "https://secsentinel.up.railway.app",
			QueryLimit:     500,
		},
		Agent: AgentConfig{
			Provider:         "anthropic",
			Model:            "claude-sonnet-4-20250514",
			RAGModel:         "claude-3-5-haiku-20241022",
			MaxTurns:         25,
			MaxTokens:        4096,
			AnthropicBaseURL: "https://api.anthropic.com",
			AWSRegion:        "us-east-1",
		},
		Cache: CacheConfig{
			Enabled:    true,
			Driver:     "sqlite",
			Path:       "neo_cache.db",
			TTLSeconds: 3600,
			Threshold:  0.80,
			MaxEntries: 500,
		},
		Embedder: EmbedderConfig{
			Type:  "local",
			Model: "all-MiniLM-L6-v2",
		},
		DocIndex: DocIndexConfig{
			Enabled:              true,
			MaxRowsPerCollection: 2000,
		},
		Security: SecurityConfig{
			CORSOrigins: []string{"*"},
		},
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Parse TOML
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		// If file doesn't exist, return defaults
		if os.IsNotExist(err) {
			cfg.substituteEnvVars()
			return cfg, nil
		}
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Substitute environment variables
	cfg.substituteEnvVars()

	return cfg, nil
}

// LoadOrDefault loads config from file or returns defaults
func LoadOrDefault(path string) *Config {
	if path == "" {
		cfg := Default()
		cfg.substituteEnvVars()
		return cfg
	}

	cfg, err := Load(path)
	if err != nil {
		fmt.Printf("Warning: Failed to load config from %s: %v\n", path, err)
		cfg = Default()
		cfg.substituteEnvVars()
	}

	return cfg
}

// substituteEnvVars substitutes ${VAR} patterns with environment variables
// and applies direct environment variable overrides
func (c *Config) substituteEnvVars() {
	// Expand ${VAR} patterns in config values
	c.Sources.SQLSecret = expandEnv(c.Sources.SQLSecret)
	c.Agent.AnthropicAPIKey = expandEnv(c.Agent.AnthropicAPIKey)
	c.Agent.AWSAccessKeyID = expandEnv(c.Agent.AWSAccessKeyID)
	c.Agent.AWSSecretAccessKey = expandEnv(c.Agent.AWSSecretAccessKey)
	c.Cache.PostgresDSN = expandEnv(c.Cache.PostgresDSN)
	c.Embedder.APIKey = expandEnv(c.Embedder.APIKey)
	c.Security.APITokenHash = expandEnv(c.Security.APITokenHash)

	// Upstream service URLs
	if v := os.Getenv("RESEARCHERS_SERVICE_URL"); v != "" {
		c.Sources.ResearchersURL = v
	}
	if v := os.Getenv("PATENTS_SERVICE_URL"); v != "" {
		c.Sources.PatentsURL = v
	}
	if v := os.Getenv("GRANTS_SERVICE_URL"); v != "" {
		c.Sources.GrantsURL = v
	}
	if v := os.Getenv("POLICIES_SERVICE_URL"); v != "" {
		c.Sources.PoliciesURL = v
	}
	if v := os.Getenv("PORTFOLIO_SERVICE_URL"); v != "" {
		c.Sources.PortfolioURL = v
	}
	if v := os.Getenv("MARKET_DATA_SERVICE_URL"); v != "" {
		c.Sources.MarketDataURL = v
	}
	if v := os.Getenv("SEC_SENTINEL_URL"); v != "" {
		c.Sources.SECSentinelURL = v
	}
	if v := os.Getenv("NEO_SQL_SECRET"); v != "" {
		c.Sources.SQLSecret = v
	}

	// Agent configuration
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Agent.AnthropicAPIKey = v
	}
	if v := os.Getenv("NEO_AGENT_MODEL"); v != "" {
		c.Agent.Model = v
	}
	if v := os.Getenv("NEO_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Agent.MaxTurns = n
		}
	}

	// Cache configuration
	if v := os.Getenv("NEO_CACHE_DB"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("NEO_CACHE_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.TTLSeconds = n
		}
	}
	if v := os.Getenv("NEO_CACHE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Cache.Threshold = f
		}
	}

	// Embedder configuration
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Embedder.Model = v
	}
	if v := os.Getenv("NEO_EMBEDDER_TYPE"); v != "" {
		c.Embedder.Type = v
	}
	if v := os.Getenv("NEO_EMBEDDER_URL"); v != "" {
		c.Embedder.BaseURL = v
	}

	// Server configuration
	if v := os.Getenv("NEO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.HTTPPort = port
		}
	}
}

// expandEnv expands ${VAR} or $VAR patterns
func expandEnv(s string) string {
	if s == "" {
		return s
	}
	return os.ExpandEnv(s)
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}
	switch c.Agent.Provider {
	case "anthropic", "bedrock":
	default:
		return fmt.Errorf("agent.provider must be anthropic or bedrock, got %q", c.Agent.Provider)
	}
	switch c.Cache.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("cache.driver must be sqlite, postgres or memory, got %q", c.Cache.Driver)
	}
	if c.Cache.Threshold <= 0 || c.Cache.Threshold > 1 {
		return fmt.Errorf("cache.threshold must be in (0, 1], got %v", c.Cache.Threshold)
	}
	switch c.Embedder.Type {
	case "local", "openai", "ollama":
	default:
		return fmt.Errorf("embedder.type must be local, openai or ollama, got %q", c.Embedder.Type)
	}
	if c.Agent.MaxTurns < 1 {
		return fmt.Errorf("agent.max_turns must be positive, got %d", c.Agent.MaxTurns)
	}
	for _, src := range domain.AllSources() {
		if strings.TrimSpace(c.Sources.BaseURL(src)) == "" {
			return fmt.Errorf("sources: missing base URL for %s", src)
		}
	}
	return nil
}

// CacheTTL returns the response cache TTL as a duration.
func (c *CacheConfig) CacheTTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}
