// Package keyword provides a BM25 full-text index over chat segments.
package keyword

import (
	"context"

	"github.com/hyperjump/kaiwa/internal/models"
)

// SearchOptions tunes keyword search. A nil *SearchOptions uses defaults.
type SearchOptions struct {
	// TitleBoost multiplies matches in the title and keywords fields. Values <= 1 search all fields as one.
	TitleBoost float64
	// Fuzzy enables typo-tolerant term matching.
	Fuzzy bool
	// Fuzziness is the maximum edit distance when Fuzzy is set (default 1).
	Fuzziness int
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    int64
	Score float64
}

// SegmentIndexer receives segments after they are persisted.
type SegmentIndexer interface {
	IndexSegment(ctx context.Context, seg *models.ChatSegment) error
	DeleteSegment(ctx context.Context, id int64) error
}

// TermDictionary exposes indexed terms for spelling suggestions.
type TermDictionary interface {
	AllTerms() ([]string, error)
	TermFrequency(term string) (int, error)
}
