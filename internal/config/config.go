// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (DBCHAT_* and DATABASE_URL)
//  2. Config file (~/.dbchat/config.yaml or ./config.yaml)
//  3. Default values matching the reference docker-compose deployment
//
// The resulting Config is constructed once at process start, validated
// fail-fast, and passed by reference into each component. No component reads
// ambient global state after startup.
//
// Security: sensitive fields (passwords) are masked in MarshalJSON and
// String, so accidentally logging the config never leaks credentials.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors returned by Validate, checked with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidLLMBaseURL indicates the model-service base URL is invalid.
	ErrInvalidLLMBaseURL = errors.New("invalid LLM base URL")

	// ErrInvalidEmbedderModel indicates the embedder model identifier is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbeddingDim indicates the configured embedding dimension is invalid.
	ErrInvalidEmbeddingDim = errors.New("invalid embedding dimension")

	// ErrInvalidHistoryWindow indicates the history window is out of range.
	ErrInvalidHistoryWindow = errors.New("invalid history window")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidMaxRows indicates the display row cap is out of range.
	ErrInvalidMaxRows = errors.New("invalid max display rows")

	// ErrInvalidTimeout indicates the external call timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid call timeout")
)

const (
	// DefaultEmbeddingDimension matches the vector(384) column created by the
	// migrations, which in turn matches the all-MiniLM-L6-v2 embedding model
	// of the reference deployment. Changing one without the other is a
	// configuration error detected at startup.
	DefaultEmbeddingDimension = 384

	// DefaultHistoryWindow is the number of recent messages fed into chat
	// and RAG prompts.
	DefaultHistoryWindow = 10

	// DefaultTopK is the number of knowledge documents retrieved per RAG turn.
	DefaultTopK = 3

	// DefaultMaxDisplayRows caps how many result rows are shown for an
	// executed query. Results beyond the cap are truncated, never re-queried.
	DefaultMaxDisplayRows = 50

	// DefaultCallTimeout bounds every external call (model inference,
	// vector search, statement execution).
	DefaultCallTimeout = 60 * time.Second
)

// Config stores the immutable application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// PostgreSQL connection (see storage.go for DSN builders)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// AdminDatabaseURL, when set, is used once at startup to re-establish the
	// operating account if the normal connection fails. Never used mid-turn.
	AdminDatabaseURL string `mapstructure:"admin_database_url" json:"admin_database_url"` // SENSITIVE: masked in MarshalJSON

	// Model service (llama.cpp or any OpenAI-compatible endpoint)
	LLMBaseURL string `mapstructure:"llm_base_url" json:"llm_base_url"`
	ModelName  string `mapstructure:"model_name" json:"model_name"`

	// Retrieval configuration
	EmbedderModel      string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbeddingDimension int    `mapstructure:"embedding_dimension" json:"embedding_dimension"`
	TopK               int    `mapstructure:"top_k" json:"top_k"`

	// Conversation context
	HistoryWindow int `mapstructure:"history_window" json:"history_window"`

	// Execution gate
	MaxDisplayRows int `mapstructure:"max_display_rows" json:"max_display_rows"`

	// CallTimeout bounds each external call. Explicit, not a library default.
	CallTimeout time.Duration `mapstructure:"call_timeout" json:"call_timeout"`
}

// Load loads configuration from defaults, config file and environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.dbchat")
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
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

// setDefaults mirrors the reference docker-compose deployment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "cgiuser")
	v.SetDefault("postgres_password", "cgipass")
	v.SetDefault("postgres_db_name", "cgidb")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("llm_base_url", "http://localhost:8080")
	v.SetDefault("model_name", "local-model")

	v.SetDefault("embedder_model", "all-MiniLM-L6-v2")
	v.SetDefault("embedding_dimension", DefaultEmbeddingDimension)
	v.SetDefault("top_k", DefaultTopK)

	v.SetDefault("history_window", DefaultHistoryWindow)
	v.SetDefault("max_display_rows", DefaultMaxDisplayRows)
	v.SetDefault("call_timeout", DefaultCallTimeout)
}

// bindEnvVariables binds environment variables explicitly rather than using
// AutomaticEnv, so the recognized surface is a closed list.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("postgres_host", "POSTGRES_HOST")
	mustBind("postgres_port", "POSTGRES_PORT")
	mustBind("postgres_user", "POSTGRES_USER")
	mustBind("postgres_password", "POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "POSTGRES_DB")
	mustBind("admin_database_url", "DBCHAT_ADMIN_DATABASE_URL")

	mustBind("llm_base_url", "LLAMA_API_URL")
	mustBind("model_name", "DBCHAT_MODEL_NAME")

	mustBind("embedder_model", "EMBEDDING_MODEL")
	mustBind("embedding_dimension", "EMBEDDING_DIMENSION")
	mustBind("top_k", "DBCHAT_TOP_K")
	mustBind("history_window", "DBCHAT_HISTORY_WINDOW")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debugging.
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
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.AdminDatabaseURL = maskSecret(a.AdminDatabaseURL)
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
