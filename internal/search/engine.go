// Package search ranks segments, chats and messages by vector similarity, lexical match or both.
package search

import (
	"context"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/vector"
)

// Embedder turns text into a vector. *embedding.Provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine answers similarity queries. It prefers the store's native nearest-neighbour search
// and falls back to an in-process cosine scan when that is unavailable or fails.
// Query methods never return errors; failures are logged and yield fewer or no results.
type Engine struct {
	store    storage.Store
	native   storage.VectorSearcher
	embedder Embedder
	logger   *zap.Logger

	nativeOK atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine returns an engine over store. Native search is used when store implements
// storage.VectorSearcher and reports it available at construction.
func NewEngine(store storage.Store, embedder Embedder, opts ...Option) *Engine {
	e := &Engine{store: store, embedder: embedder, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if vs, ok := store.(storage.VectorSearcher); ok {
		e.native = vs
		e.nativeOK.Store(vs.VectorSearchAvailable())
	}
	return e
}

// NativeSearchAvailable reports whether queries currently go to the store's native search.
func (e *Engine) NativeSearchAvailable() bool {
	return e.native != nil && e.nativeOK.Load()
}

// RefreshNativeSearch re-checks the store's native search, enabling it if needed.
func (e *Engine) RefreshNativeSearch(ctx context.Context) bool {
	if e.native == nil {
		return false
	}
	if !e.native.VectorSearchAvailable() {
		if err := e.native.EnableVectorSearch(ctx); err != nil {
			e.logger.Info("Native vector search unavailable", zap.Error(err))
		}
	}
	ok := e.native.VectorSearchAvailable()
	e.nativeOK.Store(ok)
	return ok
}

// degrade switches to the in-process scan for the rest of the session and makes one attempt
// to re-enable the store's native search. Only RefreshNativeSearch switches back.
func (e *Engine) degrade(ctx context.Context, kind string, err error) {
	e.logger.Warn("Native vector search failed, using in-process scan",
		zap.String("kind", kind), zap.Error(err))
	e.nativeOK.Store(false)
	if rerr := e.native.EnableVectorSearch(ctx); rerr != nil {
		e.logger.Debug("Failed to re-enable native vector search", zap.Error(rerr))
	}
}

func (e *Engine) embedQuery(ctx context.Context, query string) []float32 {
	query = normalizeQuery(query)
	if query == "" {
		return nil
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("Failed to embed query", zap.Error(err))
		return nil
	}
	return vec
}

// FindSimilarSegments returns up to limit segments closest to query.
func (e *Engine) FindSimilarSegments(ctx context.Context, query string, limit int) []*models.SegmentSimilarityResult {
	if limit <= 0 {
		return []*models.SegmentSimilarityResult{}
	}
	return e.FindSimilarSegmentsByVector(ctx, e.embedQuery(ctx, query), limit)
}

// FindSimilarSegmentsByVector returns up to limit segments closest to vec.
func (e *Engine) FindSimilarSegmentsByVector(ctx context.Context, vec []float32, limit int) []*models.SegmentSimilarityResult {
	hits := similar(ctx, e, "segment", vec, limit, lookup[*models.ChatSegment]{
		nearest: func(vs storage.VectorSearcher) nearestFunc { return vs.NearestSegments },
		get:     e.store.GetChatSegment,
		all:     e.store.GetAllChatSegments,
		vec:     func(s *models.ChatSegment) []float32 { return s.Embedding },
	})
	out := make([]*models.SegmentSimilarityResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, &models.SegmentSimilarityResult{Segment: h.item, SimilarityScore: h.score, MatchType: models.MatchVector})
	}
	return out
}

// FindSimilarChats returns up to limit chats closest to query.
func (e *Engine) FindSimilarChats(ctx context.Context, query string, limit int) []*models.ChatSimilarityResult {
	if limit <= 0 {
		return []*models.ChatSimilarityResult{}
	}
	hits := similar(ctx, e, "chat", e.embedQuery(ctx, query), limit, lookup[*models.Chat]{
		nearest: func(vs storage.VectorSearcher) nearestFunc { return vs.NearestChats },
		get:     e.store.GetChat,
		all:     e.store.GetAllChats,
		vec:     func(c *models.Chat) []float32 { return c.Embedding },
	})
	out := make([]*models.ChatSimilarityResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, &models.ChatSimilarityResult{Chat: h.item, SimilarityScore: h.score})
	}
	return out
}

// FindSimilarMessages returns up to limit messages closest to query.
func (e *Engine) FindSimilarMessages(ctx context.Context, query string, limit int) []*models.MessageSimilarityResult {
	if limit <= 0 {
		return []*models.MessageSimilarityResult{}
	}
	hits := similar(ctx, e, "message", e.embedQuery(ctx, query), limit, lookup[*models.ChatMessage]{
		nearest: func(vs storage.VectorSearcher) nearestFunc { return vs.NearestMessages },
		get:     e.store.GetMessage,
		all:     e.store.GetAllMessages,
		vec:     func(m *models.ChatMessage) []float32 { return m.Embedding },
	})
	out := make([]*models.MessageSimilarityResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, &models.MessageSimilarityResult{Message: h.item, SimilarityScore: h.score})
	}
	return out
}

type nearestFunc func(ctx context.Context, query []float32, k int) ([]int64, error)

// lookup binds one entity kind to its store accessors. Entities are pointers; get returns nil when absent.
type lookup[T comparable] struct {
	nearest func(storage.VectorSearcher) nearestFunc
	get     func(ctx context.Context, id int64) (T, error)
	all     func(ctx context.Context) ([]T, error)
	vec     func(T) []float32
}

type scored[T any] struct {
	item  T
	score float64
}

func similar[T comparable](ctx context.Context, e *Engine, kind string, query []float32, limit int, l lookup[T]) []scored[T] {
	if limit <= 0 || len(query) == 0 {
		return nil
	}
	if e.NativeSearchAvailable() {
		hits, err := nativeSimilar(ctx, e, query, limit, l)
		if err == nil {
			return hits
		}
		e.degrade(ctx, kind, err)
	}
	items, err := l.all(ctx)
	if err != nil {
		e.logger.Error("Failed to load candidates for similarity scan", zap.String("kind", kind), zap.Error(err))
		return nil
	}
	return bruteForce(items, query, limit, l.vec)
}

// nativeSimilar asks the store for ordered ids and hydrates them. Scores are recomputed with
// vector.Cosine so both paths report the same values.
func nativeSimilar[T comparable](ctx context.Context, e *Engine, query []float32, limit int, l lookup[T]) ([]scored[T], error) {
	ids, err := l.nearest(e.native)(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	var zero T
	out := make([]scored[T], 0, len(ids))
	for _, id := range ids {
		item, err := l.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if item == zero {
			continue
		}
		v := l.vec(item)
		if len(v) == 0 {
			continue
		}
		out = append(out, scored[T]{item: item, score: vector.Cosine(query, v)})
	}
	return out, nil
}

// bruteForce scores every item with a vector and keeps the top limit. The sort is stable so
// equal scores keep load order.
func bruteForce[T any](items []T, query []float32, limit int, vecOf func(T) []float32) []scored[T] {
	out := make([]scored[T], 0, len(items))
	for _, item := range items {
		v := vecOf(item)
		if len(v) == 0 {
			continue
		}
		out = append(out, scored[T]{item: item, score: vector.Cosine(query, v)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
