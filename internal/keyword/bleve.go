package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/kaiwa/internal/models"
)

const segmentDocType = "segment"

// segmentDoc is the indexed view of a ChatSegment.
type segmentDoc struct {
	ChatID   string `json:"chat_id"`
	Date     string `json:"date"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Keywords string `json:"keywords"`
}

// Type implements bleve's mapping.Classifier.
func (segmentDoc) Type() string { return segmentDocType }

// SegmentIndex implements SegmentIndexer and TermDictionary using Bleve.
type SegmentIndex struct {
	index bleve.Index
	mu    sync.RWMutex
}

// NewSegmentIndex creates or opens a Bleve index at path. An empty path creates an in-memory index.
// Changing the mapping requires removing the index directory and running a reindex.
func NewSegmentIndex(path string) (*SegmentIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer lowercases without stemming, so German and English words match as typed.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", text)
	docMapping.AddFieldMappingsAt("content", text)
	docMapping.AddFieldMappingsAt("keywords", text)
	exact := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("chat_id", exact)
	docMapping.AddFieldMappingsAt("date", exact)
	im.AddDocumentMapping(segmentDocType, docMapping)
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &SegmentIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &SegmentIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &SegmentIndex{index: index}, nil
}

func docID(id int64) string { return strconv.FormatInt(id, 10) }

func toDoc(seg *models.ChatSegment) segmentDoc {
	return segmentDoc{
		ChatID:   docID(seg.ChatID),
		Date:     seg.DateKey(),
		Title:    seg.Title,
		Content:  seg.CombinedContent,
		Keywords: strings.ReplaceAll(seg.Keywords, ",", " "),
	}
}

// IndexSegment adds or replaces seg in the index.
func (b *SegmentIndex) IndexSegment(ctx context.Context, seg *models.ChatSegment) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.Index(docID(seg.ID), toDoc(seg))
}

// IndexSegments indexes segs in a single batch.
func (b *SegmentIndex) IndexSegments(ctx context.Context, segs []*models.ChatSegment) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	batch := b.index.NewBatch()
	for _, seg := range segs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := batch.Index(docID(seg.ID), toDoc(seg)); err != nil {
			return fmt.Errorf("failed to batch segment %d: %w", seg.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// DeleteSegment removes a segment from the index.
func (b *SegmentIndex) DeleteSegment(ctx context.Context, id int64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.Delete(docID(id))
}

// IDs returns the ids of every indexed segment.
func (b *SegmentIndex) IDs(ctx context.Context) ([]int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	count, err := b.index.DocCount()
	if err != nil {
		return nil, err
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed segments: %w", err)
	}
	ids := make([]int64, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if id, err := strconv.ParseInt(hit.ID, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Search runs query and returns up to limit segment ids by descending BM25 score.
// With TitleBoost > 1, title, keyword and content matches are scored separately and added,
// and documents matching only some query terms are penalized by the squared coverage ratio.
func (b *SegmentIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	titleBoost := 1.0
	fuzzy := false
	fuzziness := 1
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		fuzzy = opts.Fuzzy
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if titleBoost <= 1.0 {
		hits, err := b.run(ctx, b.buildQuery(query, "", fuzzy, fuzziness), limit)
		if err != nil {
			return nil, err
		}
		return topK(hits, limit), nil
	}
	return b.searchWithBoost(ctx, query, limit, titleBoost, fuzzy, fuzziness)
}

func (b *SegmentIndex) searchWithBoost(ctx context.Context, query string, limit int, titleBoost float64, fuzzy bool, fuzziness int) ([]*KeywordResult, error) {
	reqSize := max(limit*2, 50)

	scores := make(map[string]float64)
	for field, boost := range map[string]float64{"title": titleBoost, "keywords": titleBoost, "content": 1.0} {
		hits, err := b.run(ctx, b.buildQuery(query, field, fuzzy, fuzziness), reqSize)
		if err != nil {
			return nil, err
		}
		for id, score := range hits {
			scores[id] += score * boost
		}
	}

	terms := tokenizeQuery(query)
	if len(terms) > 1 {
		coverage := make(map[string]int)
		for _, term := range terms {
			hits, err := b.run(ctx, b.buildQuery(term, "", fuzzy, fuzziness), reqSize)
			if err != nil {
				continue
			}
			for id := range hits {
				coverage[id]++
			}
		}
		for id := range scores {
			matched := max(coverage[id], 1)
			ratio := float64(matched) / float64(len(terms))
			scores[id] *= ratio * ratio
		}
	}
	return topK(scores, limit), nil
}

func (b *SegmentIndex) run(ctx context.Context, q blevequery.Query, size int) (map[string]float64, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	hits := make(map[string]float64, len(res.Hits))
	for _, hit := range res.Hits {
		hits[hit.ID] = hit.Score
	}
	return hits, nil
}

// buildQuery returns a match query, or a disjunction of fuzzy term queries when fuzzy is set.
// An empty field searches all fields.
func (b *SegmentIndex) buildQuery(query, field string, fuzzy bool, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(query)
	if !fuzzy || len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// topK converts scores to results sorted by score desc, then id asc, cut to limit.
func topK(scores map[string]float64, limit int) []*KeywordResult {
	out := make([]*KeywordResult, 0, len(scores))
	for id, score := range scores {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, &KeywordResult{ID: n, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// DocCount returns the number of indexed segments.
func (b *SegmentIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.DocCount()
}

// AllTerms returns the unique terms of the title, content and keywords fields.
// Fields that were never indexed are skipped.
func (b *SegmentIndex) AllTerms() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	seen := make(map[string]struct{})
	var terms []string
	for _, field := range []string{"title", "content", "keywords"} {
		dict, err := b.index.FieldDict(field)
		if err != nil {
			continue
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if _, ok := seen[entry.Term]; !ok {
				seen[entry.Term] = struct{}{}
				terms = append(terms, entry.Term)
			}
		}
		_ = dict.Close()
	}
	return terms, nil
}

// TermFrequency returns the number of segments containing term.
func (b *SegmentIndex) TermFrequency(term string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(term))
	req.Size = 0
	res, err := b.index.Search(req)
	if err != nil {
		return 0, fmt.Errorf("failed to count term frequency: %w", err)
	}
	return int(res.Total), nil
}

// Close closes the Bleve index.
func (b *SegmentIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}
