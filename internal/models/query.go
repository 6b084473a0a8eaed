package models

import (
	"fmt"
	"strings"
)

// SearchMode selects the ranking signal of a search request.
type SearchMode string

const (
	ModeVector SearchMode = "vector"
	ModeText   SearchMode = "text"
	ModeHybrid SearchMode = "hybrid"
)

// SearchTarget selects which entities a search request ranks.
type SearchTarget string

const (
	TargetSegments SearchTarget = "segments"
	TargetChats    SearchTarget = "chats"
	TargetMessages SearchTarget = "messages"
)

// SearchRequest is a search over segments, chats, or messages.
type SearchRequest struct {
	Query  string       `json:"query"`
	Limit  int          `json:"limit,omitempty"`
	Mode   SearchMode   `json:"mode,omitempty"`
	Target SearchTarget `json:"target,omitempty"`
}

// Validate ensures the request has valid fields and sets defaults.
// Text mode is only available for segments; chats and messages support vector, and chats hybrid.
func (r *SearchRequest) Validate(defaultLimit, maxLimit int) error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if r.Limit <= 0 {
		r.Limit = defaultLimit
	}
	if maxLimit > 0 && r.Limit > maxLimit {
		r.Limit = maxLimit
	}
	if r.Target == "" {
		r.Target = TargetSegments
	}
	if r.Mode == "" {
		r.Mode = ModeHybrid
	}
	switch r.Target {
	case TargetSegments:
		if r.Mode != ModeVector && r.Mode != ModeText && r.Mode != ModeHybrid {
			return fmt.Errorf("unknown mode: %s", r.Mode)
		}
	case TargetChats:
		if r.Mode != ModeVector && r.Mode != ModeHybrid {
			return fmt.Errorf("mode %s not supported for chats", r.Mode)
		}
	case TargetMessages:
		if r.Mode == ModeHybrid {
			r.Mode = ModeVector
		}
		if r.Mode != ModeVector {
			return fmt.Errorf("mode %s not supported for messages", r.Mode)
		}
	default:
		return fmt.Errorf("unknown target: %s", r.Target)
	}
	return nil
}

// SearchResponse is the response for a search request. Exactly one result list is set,
// matching the request target.
type SearchResponse struct {
	Query     string                     `json:"query"`
	Mode      SearchMode                 `json:"mode"`
	Target    SearchTarget               `json:"target"`
	Segments  []*SegmentSimilarityResult `json:"segments,omitempty"`
	Chats     []*HybridSearchResult      `json:"chats,omitempty"`
	Messages  []*MessageSimilarityResult `json:"messages,omitempty"`
	Total     int                        `json:"total"`
	QueryTime int64                      `json:"query_time_ms"`
}

// VectorizeRequest asks for a batch (re)vectorization of one entity kind.
type VectorizeRequest struct {
	Target SearchTarget `json:"target"`
	Force  bool         `json:"force,omitempty"`
}
