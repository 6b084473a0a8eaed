package embedding

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kaiwa/internal/config"
)

// countingEmbedder wraps HashEmbedder and counts model calls.
type countingEmbedder struct {
	*HashEmbedder
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.HashEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	return c.HashEmbedder.EmbedBatch(ctx, texts)
}

type fixedEmbedder struct {
	vec []float32
	err error
}

func (f fixedEmbedder) Embed(context.Context, string) ([]float32, error) { return f.vec, f.err }
func (f fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.err
}
func (f fixedEmbedder) Dimensions() int { return 4 }
func (f fixedEmbedder) Close() error    { return nil }

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestProvider_EmbedBlankReturnsZeroVector(t *testing.T) {
	p := NewProvider(NewHashEmbedder(16))
	for _, text := range []string{"", "   ", "\n\t"} {
		vec, err := p.Embed(context.Background(), text)
		require.NoError(t, err)
		require.Len(t, vec, 16)
		assert.Zero(t, norm(vec))
	}
}

func TestProvider_EmbedIsDeterministicAndUnitLength(t *testing.T) {
	p := NewProvider(NewHashEmbedder(64))
	a, err := p.Embed(context.Background(), "Hallo, wie geht es dir?")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "Hallo, wie geht es dir?")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
}

func TestProvider_SimilarTextsScoreHigher(t *testing.T) {
	p := NewProvider(NewHashEmbedder(384))
	ctx := context.Background()
	q, _ := p.Embed(ctx, "Rechnung bezahlen")
	near, _ := p.Embed(ctx, "Die Rechnung muss ich noch bezahlen")
	far, _ := p.Embed(ctx, "Wetter morgen sonnig")
	assert.Greater(t, p.CosineSimilarity(q, near), p.CosineSimilarity(q, far))
}

func TestProvider_Unavailable(t *testing.T) {
	p := NewProvider(nil)
	_, err := p.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.False(t, p.Available())

	p = NewProvider(NewHashEmbedder(8))
	require.NoError(t, p.Close())
	_, err = p.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrModelUnavailable)
	_, err = p.EmbedBatch(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.NoError(t, p.Close(), "second Close is a no-op")
}

func TestProvider_CacheAvoidsModelCalls(t *testing.T) {
	e := &countingEmbedder{HashEmbedder: NewHashEmbedder(8)}
	p := NewProvider(e, WithCache(10))
	ctx := context.Background()

	first, err := p.Embed(ctx, "hello")
	require.NoError(t, err)
	first[0] = 42 // callers must not be able to corrupt the cache
	second, err := p.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.NotEqual(t, float32(42), second[0])
	assert.Equal(t, int32(1), e.calls.Load())
}

func TestProvider_EmbedBatchOnlySendsMisses(t *testing.T) {
	e := &countingEmbedder{HashEmbedder: NewHashEmbedder(8)}
	p := NewProvider(e, WithCache(10))
	ctx := context.Background()

	_, err := p.Embed(ctx, "cached")
	require.NoError(t, err)
	vecs, err := p.EmbedBatch(ctx, []string{"cached", "", "fresh"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Zero(t, norm(vecs[1]))
	assert.InDelta(t, 1.0, norm(vecs[2]), 1e-5)
	assert.Equal(t, int32(2), e.calls.Load())
}

func TestProvider_NormalizesAndChecksDimensions(t *testing.T) {
	p := NewProvider(fixedEmbedder{vec: []float32{3, 4, 0, 0}})
	vec, err := p.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)

	p = NewProvider(fixedEmbedder{vec: []float32{1, 2}})
	_, err = p.Embed(context.Background(), "x")
	assert.Error(t, err)

	boom := errors.New("boom")
	p = NewProvider(fixedEmbedder{err: boom})
	_, err = p.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestProvider_DiskCacheSurvivesProviders(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	disk, err := OpenDiskCache(dir, false, nil)
	require.NoError(t, err)
	p := NewProvider(NewHashEmbedder(8), WithDiskCache(disk), WithModelName("hash"))
	want, err := p.Embed(ctx, "persist me")
	require.NoError(t, err)
	require.NoError(t, p.Close())

	disk, err = OpenDiskCache(dir, false, nil)
	require.NoError(t, err)
	e := &countingEmbedder{HashEmbedder: NewHashEmbedder(8)}
	p = NewProvider(e, WithDiskCache(disk), WithModelName("hash"))
	defer p.Close()
	got, err := p.Embed(ctx, "persist me")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Zero(t, e.calls.Load())
}

func TestDiskCache_ModelAndDimensionScoped(t *testing.T) {
	c, err := OpenDiskCache("", true, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put("a", "text", []float32{1, 0}))
	_, ok, err := c.Get("b", "text", 2)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = c.Get("a", "text", 3)
	require.NoError(t, err)
	assert.False(t, ok)
	vec, ok, err := c.Get("a", "text", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float32{1, 0}, vec)
}

func TestNewFromConfig_FallsBackToHash(t *testing.T) {
	p, err := NewFromConfig(config.EmbeddingConfig{
		Provider:   "openai",
		Dimensions: 32,
		CacheSize:  10,
	}, nil)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "hash", p.ModelName())
	assert.Equal(t, 32, p.Dimensions())
	assert.True(t, p.Available())
}
