// Package knowledge provides the retrieval engine: embedding free text and
// finding the nearest knowledge-base documents by cosine similarity over a
// pgvector column.
package knowledge

import "time"

// Document is a knowledge-base entry. Documents are created by ingestion and
// read-only from the pipeline's perspective.
type Document struct {
	ID        int64
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Result is a single search hit with its cosine similarity score.
type Result struct {
	Document   Document
	Similarity float32
}

// SearchOption configures search behavior using functional options.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK int
}

// WithTopK sets the maximum number of results to return. Default is 3.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{topK: 3}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
