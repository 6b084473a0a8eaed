package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/vector"
)

// Provider wraps an Embedder with blank-text handling, caching, dimension checks and normalization.
// All vectors it returns have exactly Dimensions() entries and are unit length or all zeros.
type Provider struct {
	embedder Embedder
	dims     int
	model    string
	cache    *EmbeddingCache
	disk     *DiskCache
	logger   *zap.Logger
	closed   atomic.Bool
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithCache enables an in-memory LRU of the given size.
func WithCache(size int) ProviderOption {
	return func(p *Provider) {
		if size > 0 {
			p.cache = NewEmbeddingCache(size)
		}
	}
}

// WithDiskCache adds a persistent cache consulted after the in-memory one.
// The provider takes ownership and closes it.
func WithDiskCache(c *DiskCache) ProviderOption {
	return func(p *Provider) { p.disk = c }
}

// WithModelName sets the identifier used for disk cache keys and status output.
func WithModelName(name string) ProviderOption {
	return func(p *Provider) { p.model = name }
}

// WithDimensions overrides the dimension count reported by the embedder.
func WithDimensions(dims int) ProviderOption {
	return func(p *Provider) {
		if dims > 0 {
			p.dims = dims
		}
	}
}

// WithLogger sets the provider logger.
func WithLogger(logger *zap.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProvider wraps embedder. A nil embedder yields a provider whose Embed
// always returns ErrModelUnavailable.
func NewProvider(embedder Embedder, opts ...ProviderOption) *Provider {
	p := &Provider{
		embedder: embedder,
		model:    "unknown",
		logger:   zap.NewNop(),
	}
	if embedder != nil {
		p.dims = embedder.Dimensions()
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Available reports whether a model is loaded and the provider is open.
func (p *Provider) Available() bool {
	return p.embedder != nil && !p.closed.Load()
}

// Dimensions returns the vector size produced by Embed.
func (p *Provider) Dimensions() int {
	return p.dims
}

// ModelName returns the configured model identifier.
func (p *Provider) ModelName() string {
	return p.model
}

// Embed returns the unit-length embedding of text. Blank text yields a zero vector.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if !p.Available() {
		return nil, ErrModelUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return make([]float32, p.dims), nil
	}
	if vec, ok := p.lookup(text); ok {
		return vec, nil
	}

	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	vec, err = p.finish(vec)
	if err != nil {
		return nil, err
	}
	p.store(text, vec)
	return clone(vec), nil
}

// EmbedBatch embeds texts, sending only cache misses to the model in one batch.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !p.Available() {
		return nil, ErrModelUnavailable
	}
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = make([]float32, p.dims)
			continue
		}
		if vec, ok := p.lookup(text); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := p.embedder.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed batch: %w", err)
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, vec := range vecs {
		vec, err = p.finish(vec)
		if err != nil {
			return nil, err
		}
		p.store(missTexts[j], vec)
		out[missIdx[j]] = clone(vec)
	}
	return out, nil
}

// CacheStats reports the in-memory cache counters; ok is false when caching is off.
func (p *Provider) CacheStats() (stats CacheStats, ok bool) {
	if p.cache == nil {
		return CacheStats{}, false
	}
	return p.cache.Stats(), true
}

// CosineSimilarity compares two embeddings; see vector.Cosine for edge cases.
func (p *Provider) CosineSimilarity(a, b []float32) float64 {
	return vector.Cosine(a, b)
}

// Close releases the model and caches. Later calls to Embed return ErrModelUnavailable.
func (p *Provider) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	var firstErr error
	if p.embedder != nil {
		firstErr = p.embedder.Close()
	}
	if p.disk != nil {
		if err := p.disk.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.cache != nil {
		p.cache.Purge()
	}
	return firstErr
}

func (p *Provider) finish(vec []float32) ([]float32, error) {
	if len(vec) != p.dims {
		return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(vec), p.dims)
	}
	out := clone(vec)
	NormalizeL2Slice(out)
	return out, nil
}

func (p *Provider) lookup(text string) ([]float32, bool) {
	if p.cache != nil {
		if vec, ok := p.cache.Get(text); ok {
			return clone(vec), true
		}
	}
	if p.disk != nil {
		vec, ok, err := p.disk.Get(p.model, text, p.dims)
		if err != nil {
			p.logger.Warn("embedding cache read failed", zap.Error(err))
			return nil, false
		}
		if ok {
			if p.cache != nil {
				p.cache.Set(text, vec)
			}
			return clone(vec), true
		}
	}
	return nil, false
}

func (p *Provider) store(text string, vec []float32) {
	if p.cache != nil {
		p.cache.Set(text, vec)
	}
	if p.disk != nil {
		if err := p.disk.Put(p.model, text, vec); err != nil {
			p.logger.Warn("embedding cache write failed", zap.Error(err))
		}
	}
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
