package search

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
)

const defaultCandidateMultiplier = 3

// HybridRanker combines vector similarity with lexical relevance.
type HybridRanker struct {
	engine *Engine
	store  storage.Store
	text   *TextSearcher
	logger *zap.Logger

	vectorWeight        float64
	textWeight          float64
	candidateMultiplier int
	snippetLength       int
}

// HybridOption configures a HybridRanker.
type HybridOption func(*HybridRanker)

// WithWeights sets the vector and text weights. Negative weights are ignored.
func WithWeights(vectorWeight, textWeight float64) HybridOption {
	return func(h *HybridRanker) {
		if vectorWeight >= 0 && textWeight >= 0 && vectorWeight+textWeight > 0 {
			h.vectorWeight, h.textWeight = vectorWeight, textWeight
		}
	}
}

// WithCandidateMultiplier sets how many vector candidates are fetched per requested result.
func WithCandidateMultiplier(n int) HybridOption {
	return func(h *HybridRanker) {
		if n > 0 {
			h.candidateMultiplier = n
		}
	}
}

// WithSnippetLength sets the snippet window of chat results.
func WithSnippetLength(n int) HybridOption {
	return func(h *HybridRanker) {
		if n > 0 {
			h.snippetLength = n
		}
	}
}

// WithTextSearcher scores segment text relevance with BM25 instead of substring matching.
func WithTextSearcher(t *TextSearcher) HybridOption {
	return func(h *HybridRanker) { h.text = t }
}

// NewHybridRanker returns a ranker using engine for the vector component and store for the lexical one.
func NewHybridRanker(engine *Engine, store storage.Store, opts ...HybridOption) *HybridRanker {
	h := &HybridRanker{
		engine:              engine,
		store:               store,
		logger:              engine.logger,
		vectorWeight:        DefaultVectorWeight,
		textWeight:          DefaultTextWeight,
		candidateMultiplier: defaultCandidateMultiplier,
		snippetLength:       DefaultSnippetLength,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HybridSearchChats ranks chats by weighted vector and lexical score. A chat found by both
// signals appears once.
func (h *HybridRanker) HybridSearchChats(ctx context.Context, query string, limit int) []*models.HybridSearchResult {
	query = normalizeQuery(query)
	if limit <= 0 || query == "" {
		return []*models.HybridSearchResult{}
	}

	chats := make(map[int64]*models.Chat)
	vectorScores := make(map[int64]float64)
	for _, r := range h.engine.FindSimilarChats(ctx, query, limit*h.candidateMultiplier) {
		chats[r.Chat.ID] = r.Chat
		vectorScores[r.Chat.ID] = r.SimilarityScore
	}

	textScores := make(map[int64]float64)
	all, err := h.store.GetAllChats(ctx)
	if err != nil {
		h.logger.Warn("Failed to load chats for lexical scoring", zap.Error(err))
	}
	for _, c := range all {
		if s := LexicalScore([]string{c.Title}, messageTexts(c.Messages), query); s > 0 {
			textScores[c.ID] = s
			chats[c.ID] = c
		}
	}

	fused := Fuse(vectorScores, textScores, h.vectorWeight, h.textWeight)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	q := strings.ToLower(query)
	out := make([]*models.HybridSearchResult, 0, len(fused))
	for _, f := range fused {
		c := chats[f.ID]
		texts := messageTexts(c.Messages)
		out = append(out, &models.HybridSearchResult{
			Chat:            c,
			VectorScore:     f.VectorScore,
			TextScore:       f.TextScore,
			HybridScore:     f.Score,
			MatchType:       f.MatchType(),
			MatchedMessages: countMatches(texts, q),
			Snippet:         CreateHighlightedSnippet(snippetSource(c, texts, q), query, h.snippetLength),
		})
	}
	return out
}

// HybridSearchSegments ranks segments by weighted vector and text score.
func (h *HybridRanker) HybridSearchSegments(ctx context.Context, query string, limit int) []*models.SegmentSimilarityResult {
	query = normalizeQuery(query)
	if limit <= 0 || query == "" {
		return []*models.SegmentSimilarityResult{}
	}
	candidates := limit * h.candidateMultiplier

	segs := make(map[int64]*models.ChatSegment)
	vectorScores := make(map[int64]float64)
	for _, r := range h.engine.FindSimilarSegments(ctx, query, candidates) {
		segs[r.Segment.ID] = r.Segment
		vectorScores[r.Segment.ID] = r.SimilarityScore
	}

	textScores := make(map[int64]float64)
	keywords := make(map[int64][]string)
	if h.text != nil {
		for _, r := range h.text.SearchSegments(ctx, query, candidates) {
			segs[r.Segment.ID] = r.Segment
			textScores[r.Segment.ID] = r.SimilarityScore
			keywords[r.Segment.ID] = r.MatchedKeywords
		}
	} else {
		all, err := h.store.GetAllChatSegments(ctx)
		if err != nil {
			h.logger.Warn("Failed to load segments for lexical scoring", zap.Error(err))
		}
		for _, s := range all {
			primary := []string{s.Title, s.Keywords}
			if score := LexicalScore(primary, messageTexts(s.Messages), query); score > 0 {
				textScores[s.ID] = score
				segs[s.ID] = s
			}
		}
	}

	fused := Fuse(vectorScores, textScores, h.vectorWeight, h.textWeight)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	out := make([]*models.SegmentSimilarityResult, 0, len(fused))
	for _, f := range fused {
		seg := segs[f.ID]
		matched, ok := keywords[f.ID]
		if !ok {
			matched = matchedKeywords(seg, query)
		}
		out = append(out, &models.SegmentSimilarityResult{
			Segment:         seg,
			SimilarityScore: f.Score,
			MatchType:       f.MatchType(),
			MatchedKeywords: matched,
		})
	}
	return out
}

func messageTexts(msgs []*models.ChatMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

// snippetSource picks the first message containing q, else the title, else the first message.
func snippetSource(c *models.Chat, texts []string, q string) string {
	for _, t := range texts {
		if strings.Contains(strings.ToLower(t), q) {
			return t
		}
	}
	if strings.Contains(strings.ToLower(c.Title), q) || len(texts) == 0 {
		return c.Title
	}
	return texts[0]
}
