package knowledge

import "context"

// Embedder turns text into a fixed-dimension vector. The embedding model is
// a black box; only the output dimension is contractual — it must match the
// store's configured dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
