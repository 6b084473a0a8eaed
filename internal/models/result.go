package models

// MatchType tells which signal produced a search hit.
type MatchType string

const (
	MatchVector MatchType = "vector"
	MatchText   MatchType = "text"
	MatchHybrid MatchType = "hybrid"
)

// SegmentSimilarityResult is a ranked segment hit. Not persisted.
type SegmentSimilarityResult struct {
	Segment         *ChatSegment `json:"segment"`
	SimilarityScore float64      `json:"similarity_score"`
	MatchType       MatchType    `json:"match_type"`
	MatchedKeywords []string     `json:"matched_keywords,omitempty"`
}

// ChatSimilarityResult is a ranked chat hit from vector search.
type ChatSimilarityResult struct {
	Chat            *Chat   `json:"chat"`
	SimilarityScore float64 `json:"similarity_score"`
}

// MessageSimilarityResult is a ranked message hit from vector search.
type MessageSimilarityResult struct {
	Message         *ChatMessage `json:"message"`
	SimilarityScore float64      `json:"similarity_score"`
}

// HybridSearchResult is a chat ranked by combined vector and lexical relevance.
type HybridSearchResult struct {
	Chat            *Chat     `json:"chat"`
	VectorScore     float64   `json:"vector_score"`
	TextScore       float64   `json:"text_score"`
	HybridScore     float64   `json:"hybrid_score"`
	MatchType       MatchType `json:"match_type"`
	MatchedMessages int       `json:"matched_messages"`
	Snippet         string    `json:"snippet,omitempty"`
}
