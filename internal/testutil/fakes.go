package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic embedding function for tests: each token
// contributes to a fixed bucket of the output vector, and the result is
// L2-normalized. Similar texts share tokens and therefore buckets, so
// cosine-ranking behaves plausibly without a model service.
type HashEmbedder struct {
	Dimension int
}

// Embed implements knowledge.Embedder.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	vec := make([]float32, e.Dimension)
	for _, token := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[int(h.Sum32())%e.Dimension]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
