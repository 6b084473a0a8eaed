package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedder is a dependency-free embedder that projects words and character
// trigrams into a fixed number of buckets. Texts sharing vocabulary get similar
// vectors. Output is deterministic and unit length; blank text yields a zero vector.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder of the given dimensions (384 when <= 0).
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the hashed projection of text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	for _, word := range tokenizeWords(text) {
		e.add(emb, "w:"+word, 1.0)
		runes := []rune(" " + word + " ")
		for i := 0; i+3 <= len(runes); i++ {
			e.add(emb, "t:"+string(runes[i:i+3]), 0.5)
		}
	}
	NormalizeL2Slice(emb)
	return emb, nil
}

func (e *HashEmbedder) add(emb []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimensions))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	emb[idx] += weight
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HashEmbedder) Close() error {
	return nil
}

// tokenizeWords lowercases text and splits it on anything that is not a letter or digit.
func tokenizeWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
