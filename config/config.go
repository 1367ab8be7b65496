package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the coaching tool.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Recipes   RecipesConfig   `mapstructure:"recipes"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address     string   `mapstructure:"address"`
	JWTSecret   string   `mapstructure:"jwt_secret"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LLMConfig contains LLM provider configurations.
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration.
type LLMProvider struct {
	Type           string              `mapstructure:"type"` // openai for now
	APIKey         string              `mapstructure:"api_key"`
	BaseURL        string              `mapstructure:"base_url"`
	EmbeddingModel string              `mapstructure:"embedding_model"`
	Models         map[string]LLMModel `mapstructure:"models"`
	Timeout        time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration.
type LLMModel struct {
	Name        string  `mapstructure:"name"`
	APIName     string  `mapstructure:"api_name"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LLMRoutingConfig defines which model each agent recipe uses.
type LLMRoutingConfig struct {
	Chat      string `mapstructure:"chat"`
	Plan      string `mapstructure:"plan"`
	Questions string `mapstructure:"questions"`
	Adapt     string `mapstructure:"adapt"`
	Fallback  string `mapstructure:"fallback"`
}

// ModelFor returns the routed model for a recipe, falling back when unset.
func (r LLMRoutingConfig) ModelFor(recipe string) string {
	m := ""
	switch recipe {
	case "chat":
		m = r.Chat
	case "plan":
		m = r.Plan
	case "questions":
		m = r.Questions
	case "adapt":
		m = r.Adapt
	}
	if m == "" {
		m = r.Fallback
	}
	return m
}

// SearchConfig tunes the hybrid search index.
type SearchConfig struct {
	HybridAlpha   float64 `mapstructure:"hybrid_alpha"`
	ResultLimit   int     `mapstructure:"result_limit"`
	DocumentLimit int     `mapstructure:"document_limit"`
	CandidatePool int     `mapstructure:"candidate_pool"`
}

// ChunkingConfig carries the chunk-size/overlap parameter sets. The markdown
// and sliding-window paths historically used different constants, so both are
// configurable rather than sharing one value.
type ChunkingConfig struct {
	MarkdownMaxChars  int `mapstructure:"markdown_max_chars"`
	MarkdownOverlap   int `mapstructure:"markdown_overlap"`
	SlidingWindowSize int `mapstructure:"sliding_window_size"`
	SlidingOverlap    int `mapstructure:"sliding_overlap"`
	LongSectionMax    int `mapstructure:"long_section_max"`
	MinChunkChars     int `mapstructure:"min_chunk_chars"`
}

// RecipesConfig bounds each agent recipe's tool-calling loop.
type RecipesConfig struct {
	ChatMaxIterations      int `mapstructure:"chat_max_iterations"`
	PlanMaxIterations      int `mapstructure:"plan_max_iterations"`
	QuestionsMaxIterations int `mapstructure:"questions_max_iterations"`
	AdaptMaxIterations     int `mapstructure:"adapt_max_iterations"`
	EvidenceTokenBudget    int `mapstructure:"evidence_token_budget"`
}

// StorageConfig contains database configurations.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL configuration.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN builds a connection string from either the URL or discrete fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains Redis configuration for the ingest caches.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns host:port, empty when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

// TelemetryConfig contains monitoring settings.
type TelemetryConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort < 0 {
		return fmt.Errorf("telemetry.metrics_port must be >= 0 when telemetry is enabled")
	}
	return nil
}

// IngestConfig contains ingestion pipeline settings.
type IngestConfig struct {
	ManifestPath   string        `mapstructure:"manifest_path"`
	DocumentsDir   string        `mapstructure:"documents_dir"`
	EmbedBatchSize int           `mapstructure:"embed_batch_size"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// LoadConfig reads configuration from file and environment. A missing config
// file is tolerated: defaults plus COACHTOOL_* env vars are enough to run.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("search.hybrid_alpha", 0.6)
	v.SetDefault("search.result_limit", 5)
	v.SetDefault("search.document_limit", 50)
	v.SetDefault("search.candidate_pool", 50)
	v.SetDefault("chunking.markdown_max_chars", 2000)
	v.SetDefault("chunking.markdown_overlap", 300)
	v.SetDefault("chunking.sliding_window_size", 1000)
	v.SetDefault("chunking.sliding_overlap", 200)
	v.SetDefault("chunking.long_section_max", 8000)
	v.SetDefault("chunking.min_chunk_chars", 50)
	v.SetDefault("recipes.chat_max_iterations", 4)
	v.SetDefault("recipes.plan_max_iterations", 5)
	v.SetDefault("recipes.questions_max_iterations", 2)
	v.SetDefault("recipes.adapt_max_iterations", 4)
	v.SetDefault("recipes.evidence_token_budget", 12000)
	v.SetDefault("ingest.embed_batch_size", 64)
	v.SetDefault("ingest.cache_ttl", 30*24*time.Hour)
	v.SetDefault("telemetry.enabled", true)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("COACHTOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
