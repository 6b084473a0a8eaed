package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
)

// TextSearcher runs BM25 keyword search over segments. It also keeps the index current
// as a keyword.SegmentIndexer.
type TextSearcher struct {
	index  *keyword.SegmentIndex
	store  storage.Store
	spell  *keyword.SpellChecker
	opts   keyword.SearchOptions
	logger *zap.Logger
}

// TextOption configures a TextSearcher.
type TextOption func(*TextSearcher)

// WithTextLogger sets the logger.
func WithTextLogger(logger *zap.Logger) TextOption {
	return func(t *TextSearcher) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithTitleBoost weights title and keyword matches over content matches.
func WithTitleBoost(boost float64) TextOption {
	return func(t *TextSearcher) { t.opts.TitleBoost = boost }
}

// WithSpellCorrection retries queries without hits after correcting unknown terms against the index.
func WithSpellCorrection(enabled bool) TextOption {
	return func(t *TextSearcher) {
		if enabled {
			t.spell = keyword.NewSpellChecker(t.index)
		} else {
			t.spell = nil
		}
	}
}

// NewTextSearcher returns a searcher over index that hydrates hits from store.
func NewTextSearcher(index *keyword.SegmentIndex, store storage.Store, opts ...TextOption) *TextSearcher {
	t := &TextSearcher{index: index, store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// IndexSegment adds or replaces seg in the index.
func (t *TextSearcher) IndexSegment(ctx context.Context, seg *models.ChatSegment) error {
	if err := t.index.IndexSegment(ctx, seg); err != nil {
		return err
	}
	t.invalidate()
	return nil
}

// DeleteSegment removes a segment from the index.
func (t *TextSearcher) DeleteSegment(ctx context.Context, id int64) error {
	if err := t.index.DeleteSegment(ctx, id); err != nil {
		return err
	}
	t.invalidate()
	return nil
}

func (t *TextSearcher) invalidate() {
	if t.spell != nil {
		t.spell.Invalidate()
	}
}

// SearchSegments returns up to limit segments matching query, scored relative to the best hit.
func (t *TextSearcher) SearchSegments(ctx context.Context, query string, limit int) []*models.SegmentSimilarityResult {
	query = normalizeQuery(query)
	if limit <= 0 || query == "" {
		return []*models.SegmentSimilarityResult{}
	}
	hits := t.search(ctx, query, limit)
	if len(hits) == 0 && t.spell != nil {
		if corrected, ok := t.spell.Correct(query); ok {
			t.logger.Debug("Retrying text search with corrected query",
				zap.String("query", query), zap.String("corrected", corrected))
			query = corrected
			hits = t.search(ctx, query, limit)
		}
	}

	scores := NormalizeKeywordScores(hits)
	out := make([]*models.SegmentSimilarityResult, 0, len(hits))
	for _, h := range hits {
		seg, err := t.store.GetChatSegment(ctx, h.ID)
		if err != nil {
			t.logger.Warn("Failed to load segment for text hit", zap.Int64("segment_id", h.ID), zap.Error(err))
			continue
		}
		if seg == nil {
			t.logger.Debug("Text index references missing segment", zap.Int64("segment_id", h.ID))
			continue
		}
		out = append(out, &models.SegmentSimilarityResult{
			Segment:         seg,
			SimilarityScore: scores[h.ID],
			MatchType:       models.MatchText,
			MatchedKeywords: matchedKeywords(seg, query),
		})
	}
	return out
}

func (t *TextSearcher) search(ctx context.Context, query string, limit int) []*keyword.KeywordResult {
	hits, err := t.index.Search(ctx, query, limit, &t.opts)
	if err != nil {
		t.logger.Warn("Text search failed", zap.Error(err))
		return nil
	}
	return hits
}

// Reindex rebuilds the index from every stored segment and drops entries for deleted segments.
func (t *TextSearcher) Reindex(ctx context.Context) (int, error) {
	segs, err := t.store.GetAllChatSegments(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load segments: %w", err)
	}
	live := make(map[int64]struct{}, len(segs))
	for _, s := range segs {
		live[s.ID] = struct{}{}
	}
	indexed, err := t.index.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list indexed segments: %w", err)
	}
	for _, id := range indexed {
		if _, ok := live[id]; ok {
			continue
		}
		if err := t.index.DeleteSegment(ctx, id); err != nil {
			return 0, fmt.Errorf("failed to drop stale segment %d: %w", id, err)
		}
	}
	if err := t.index.IndexSegments(ctx, segs); err != nil {
		return 0, fmt.Errorf("failed to index segments: %w", err)
	}
	t.invalidate()
	t.logger.Info("Reindexed segments", zap.Int("count", len(segs)), zap.Int("dropped", len(indexed)-countLive(indexed, live)))
	return len(segs), nil
}

func countLive(ids []int64, live map[int64]struct{}) int {
	n := 0
	for _, id := range ids {
		if _, ok := live[id]; ok {
			n++
		}
	}
	return n
}

// matchedKeywords returns the segment keywords that contain a query term.
func matchedKeywords(seg *models.ChatSegment, query string) []string {
	terms := strings.Fields(strings.ToLower(query))
	var out []string
	for _, k := range seg.KeywordList() {
		for _, term := range terms {
			if strings.Contains(k, term) {
				out = append(out, k)
				break
			}
		}
	}
	return out
}
