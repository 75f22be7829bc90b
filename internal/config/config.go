// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.ragdesk/config.yaml, or ./config.yaml)
//  3. Default values
//
// Sensitive values (API key, database password) are masked in MarshalJSON
// and String so the config can be logged safely.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Sentinel errors returned by Validate. Check with errors.Is().
var (
	// ErrMissingAPIKey indicates OPENAI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidChunking indicates chunk size/overlap values are out of range.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidRetrieval indicates retrieval tuning values are out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval configuration")

	// ErrInvalidHistory indicates history limits are out of range.
	ErrInvalidHistory = errors.New("invalid history configuration")

	// ErrInvalidPostgres indicates the PostgreSQL settings are incomplete.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")

	// ErrInvalidTemperature indicates the sampling temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")
)

// Defaults shared with the ingestion and retrieval pipelines.
const (
	// DefaultChatModel is the chat completion model.
	DefaultChatModel = "gpt-4o-mini"

	// DefaultEmbeddingModel is the embedding model. Its output dimensionality
	// must match EmbeddingDimensions and the vector column in the schema.
	DefaultEmbeddingModel = "text-embedding-3-small"

	// EmbeddingDimensions is the fixed dimensionality of stored vectors.
	// Changing it requires a schema migration.
	EmbeddingDimensions = 1536

	// DefaultHistoryRetention is how many history entries are kept per
	// conversation after pruning.
	DefaultHistoryRetention = 40

	// DefaultHistoryLimit is how many recent entries a turn loads as context.
	DefaultHistoryLimit = 10

	// DefaultMaxToolRounds bounds the model's tool-call iterations per turn.
	DefaultMaxToolRounds = 5
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// OpenAI configuration
	OpenAIAPIKey   string  `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE: masked in MarshalJSON
	ChatModel      string  `mapstructure:"chat_model" json:"chat_model"`
	EmbeddingModel string  `mapstructure:"embedding_model" json:"embedding_model"`
	Temperature    float32 `mapstructure:"temperature" json:"temperature"`

	// Chunking configuration
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Retrieval configuration
	MatchCount    int     `mapstructure:"match_count" json:"match_count"`
	MinSimilarity float64 `mapstructure:"min_similarity" json:"min_similarity"`

	// Conversation configuration
	HistoryLimit     int `mapstructure:"history_limit" json:"history_limit"`
	HistoryRetention int `mapstructure:"history_retention" json:"history_retention"`
	MaxToolRounds    int `mapstructure:"max_tool_rounds" json:"max_tool_rounds"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP front door
	HTTPAddr string `mapstructure:"http_addr" json:"http_addr"`

	// Logging
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

	configDir := filepath.Join(home, ".ragdesk")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chat_model", DefaultChatModel)
	v.SetDefault("embedding_model", DefaultEmbeddingModel)
	v.SetDefault("temperature", 0.5)

	v.SetDefault("chunk_size", 1500)
	v.SetDefault("chunk_overlap", 200)

	v.SetDefault("match_count", 6)
	v.SetDefault("min_similarity", 0.3)

	v.SetDefault("history_limit", DefaultHistoryLimit)
	v.SetDefault("history_retention", DefaultHistoryRetention)
	v.SetDefault("max_tool_rounds", DefaultMaxToolRounds)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "ragdesk")
	v.SetDefault("postgres_password", "ragdesk_dev_password")
	v.SetDefault("postgres_db_name", "ragdesk")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("http_addr", "127.0.0.1:8080")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variables explicitly rather than via
// AutomaticEnv, so the set of recognized variables stays auditable.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("chat_model", "RAGDESK_CHAT_MODEL")
	mustBind("embedding_model", "RAGDESK_EMBEDDING_MODEL")
	mustBind("http_addr", "RAGDESK_HTTP_ADDR")
	mustBind("log_level", "RAGDESK_LOG_LEVEL")
	mustBind("log_json", "RAGDESK_LOG_JSON")
}

// Validate performs fail-fast range checks on the loaded configuration.
// The API key is checked separately with RequireAPIKey: commands that never
// talk to OpenAI (e.g. `namespaces`) do not need one.
func (c *Config) Validate() error {
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature %.2f not in [0, 2]", ErrInvalidTemperature, c.Temperature)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.MatchCount <= 0 {
		return fmt.Errorf("%w: match_count must be positive, got %d", ErrInvalidRetrieval, c.MatchCount)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("%w: min_similarity %.2f not in [0, 1]", ErrInvalidRetrieval, c.MinSimilarity)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("%w: history_limit must be positive, got %d", ErrInvalidHistory, c.HistoryLimit)
	}
	if c.HistoryRetention < 0 {
		return fmt.Errorf("%w: history_retention must not be negative, got %d", ErrInvalidHistory, c.HistoryRetention)
	}
	if c.MaxToolRounds <= 0 {
		return fmt.Errorf("%w: max_tool_rounds must be positive, got %d", ErrInvalidHistory, c.MaxToolRounds)
	}
	return c.validatePostgres()
}

func (c *Config) validatePostgres() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d not in [1, 65535]", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgres)
	}
	return nil
}

// RequireAPIKey returns an error when no OpenAI API key is configured.
// Called by commands that reach the embedding or chat model.
func (c *Config) RequireAPIKey() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: set OPENAI_API_KEY", ErrMissingAPIKey)
	}
	return nil
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "********"

// maskSecret masks a secret string for safe logging. Short secrets are fully
// masked; longer secrets keep the first and last two characters for debug
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
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
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
