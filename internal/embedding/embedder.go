// Package embedding turns chat text into unit-length vectors via ONNX, OpenAI or a local hash model,
// with in-memory and on-disk caching.
package embedding

import (
	"context"
	"errors"
	"math"
)

// ErrModelUnavailable is returned when no embedding model is loaded or the provider is closed.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// NormalizeL2Slice normalizes x in place to unit L2 norm. A zero vector is left unchanged.
func NormalizeL2Slice(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range x {
		x[i] *= norm
	}
}
