// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.taxaide/config.yaml)
//  3. Default values
//
// Sensitive data (the database password) is masked in MarshalJSON and
// String so configs can be logged safely. Validation uses sentinel errors
// checked with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidTopP indicates the top_p value is out of range.
	ErrInvalidTopP = errors.New("invalid top_p")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidChunking indicates chunk size or overlap is out of range.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidWeights indicates the hybrid ranking weights are invalid.
	ErrInvalidWeights = errors.New("invalid ranking weights")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultEmbedderModel outputs 3072 dimensions by default but supports
	// truncation to 768 via OutputDimensionality. The pgvector schema uses
	// 768; see VectorDimension.
	DefaultEmbedderModel = "gemini-embedding-001"

	// VectorDimension is the embedding width stored in pgvector. Changing
	// it requires a migration and full re-ingestion.
	VectorDimension = 768
)

// Config stores application configuration.
// Sensitive fields are masked in MarshalJSON; update it when adding new
// secrets.
type Config struct {
	// Generation model configuration
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	TopP        float32 `mapstructure:"top_p" json:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Embedding configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Retrieval configuration
	TopK          int     `mapstructure:"top_k" json:"top_k"`
	VectorWeight  float64 `mapstructure:"vector_weight" json:"vector_weight"`
	KeywordWeight float64 `mapstructure:"keyword_weight" json:"keyword_weight"`

	// Chunking configuration
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Response cache configuration
	CacheEnabled    bool `mapstructure:"cache_enabled" json:"cache_enabled"`
	CacheSize       int  `mapstructure:"cache_size" json:"cache_size"`
	CacheTTLMinutes int  `mapstructure:"cache_ttl_minutes" json:"cache_ttl_minutes"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server configuration (serve mode only)
	HTTPAddr       string `mapstructure:"http_addr" json:"http_addr"`
	RateLimitRPS   int    `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int    `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`
	TrustProxy     bool   `mapstructure:"trust_proxy" json:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For behind a reverse proxy

	// Logging configuration
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".taxaide")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	// Generation defaults tuned for factual tax-law answers: low
	// temperature, moderate top_p.
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.3)
	viper.SetDefault("top_p", 0.9)
	viper.SetDefault("max_tokens", 1024)

	viper.SetDefault("embedder_model", DefaultEmbedderModel)

	viper.SetDefault("top_k", 3)
	viper.SetDefault("vector_weight", 0.7)
	viper.SetDefault("keyword_weight", 0.3)

	viper.SetDefault("chunk_size", 512)
	viper.SetDefault("chunk_overlap", 50)

	viper.SetDefault("cache_enabled", true)
	viper.SetDefault("cache_size", 256)
	viper.SetDefault("cache_ttl_minutes", 60)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "taxaide")
	viper.SetDefault("postgres_password", "taxaide_dev_password")
	viper.SetDefault("postgres_db_name", "taxaide")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("http_addr", ":8080")
	viper.SetDefault("rate_limit_rps", 5)
	viper.SetDefault("rate_limit_burst", 10)
	viper.SetDefault("trust_proxy", false)

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
}

// bindEnvVariables binds environment overrides explicitly. GEMINI_API_KEY
// is read directly by Genkit, not via viper; Validate only checks its
// presence.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "TAXAIDE_MODEL_NAME")
	mustBind("embedder_model", "TAXAIDE_EMBEDDER_MODEL")
	mustBind("top_k", "TAXAIDE_TOP_K")
	mustBind("cache_enabled", "TAXAIDE_CACHE_ENABLED")
	mustBind("http_addr", "TAXAIDE_HTTP_ADDR")
	mustBind("trust_proxy", "TAXAIDE_TRUST_PROXY")
	mustBind("log_level", "TAXAIDE_LOG_LEVEL")
	mustBind("log_json", "TAXAIDE_LOG_JSON")
}

// ModelVersion identifies the embedding model and output width recorded
// with every stored chunk. A mismatch between stored and configured
// versions blocks queries until re-ingestion.
func (c *Config) ModelVersion() string {
	return fmt.Sprintf("%s@%d", c.EmbedderModel, VectorDimension)
}

// FullModelName returns the provider-qualified generation model name for
// Genkit, e.g. "googleai/gemini-2.5-flash".
func (c *Config) FullModelName() string {
	return "googleai/" + c.ModelName
}

// maskedValue uses full-width blocks so no substring of a real secret can
// survive masking.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debug
// utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
