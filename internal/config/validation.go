package config

import (
	"fmt"
	"net/url"
	"slices"
	"time"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// PostgreSQL connection
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: postgres_ssl_mode must be one of %v, got %q",
			ErrInvalidPostgresSSLMode, validSSLModes, c.PostgresSSLMode)
	}

	// Model service
	u, err := url.Parse(c.LLMBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute URL", ErrInvalidLLMBaseURL, c.LLMBaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidLLMBaseURL, u.Scheme)
	}

	// Retrieval
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}
	// The dimension must match the vector column width created by the
	// migrations; a mismatch is caught again at runtime by the knowledge
	// store, but the obvious misconfigurations fail here.
	if c.EmbeddingDimension < 1 || c.EmbeddingDimension > 16000 {
		return fmt.Errorf("%w: must be between 1 and 16000, got %d", ErrInvalidEmbeddingDim, c.EmbeddingDimension)
	}
	if c.TopK < 1 || c.TopK > 20 {
		return fmt.Errorf("%w: must be between 1 and 20, got %d", ErrInvalidTopK, c.TopK)
	}

	// Conversation context
	if c.HistoryWindow < 1 || c.HistoryWindow > 1000 {
		return fmt.Errorf("%w: must be between 1 and 1000, got %d", ErrInvalidHistoryWindow, c.HistoryWindow)
	}

	// Execution gate
	if c.MaxDisplayRows < 1 || c.MaxDisplayRows > 10000 {
		return fmt.Errorf("%w: must be between 1 and 10000, got %d", ErrInvalidMaxRows, c.MaxDisplayRows)
	}

	if c.CallTimeout < time.Second || c.CallTimeout > 10*time.Minute {
		return fmt.Errorf("%w: must be between 1s and 10m, got %s", ErrInvalidTimeout, c.CallTimeout)
	}

	return nil
}
