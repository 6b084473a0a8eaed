package search

import (
	"sort"
	"strings"

	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/models"
)

const (
	// DefaultVectorWeight and DefaultTextWeight split the hybrid score.
	DefaultVectorWeight = 0.7
	DefaultTextWeight   = 0.3

	primaryMatchScore = 0.5
	messageMatchScore = 0.1
	maxMessageScore   = 0.5
)

// FusedResult holds an entity id and its fused vector/text scores.
type FusedResult struct {
	ID          int64
	Score       float64
	VectorScore float64
	TextScore   float64
}

// MatchType classifies a fused result by which component contributed.
func (r *FusedResult) MatchType() models.MatchType {
	switch {
	case r.VectorScore > 0 && r.TextScore > 0:
		return models.MatchHybrid
	case r.TextScore > 0:
		return models.MatchText
	default:
		return models.MatchVector
	}
}

// NormalizeKeywordScores scales keyword scores to [0,1] by the maximum.
func NormalizeKeywordScores(results []*keyword.KeywordResult) map[int64]float64 {
	normalized := make(map[int64]float64, len(results))
	maxScore := 0.0
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

// LexicalScore rates a case-insensitive substring match of query: 0.5 when any primary text
// contains it, plus 0.1 per matching message up to 0.5. The total is capped at 1.
func LexicalScore(primaryTexts, messageTexts []string, query string) float64 {
	q := strings.ToLower(normalizeQuery(query))
	if q == "" {
		return 0
	}
	score := 0.0
	for _, t := range primaryTexts {
		if strings.Contains(strings.ToLower(t), q) {
			score += primaryMatchScore
			break
		}
	}
	score += min(float64(countMatches(messageTexts, q))*messageMatchScore, maxMessageScore)
	return min(score, 1.0)
}

// countMatches counts texts containing the lowercased query q.
func countMatches(texts []string, q string) int {
	n := 0
	for _, t := range texts {
		if strings.Contains(strings.ToLower(t), q) {
			n++
		}
	}
	return n
}

// Fuse merges vector and text score maps keyed by entity id into one row per id,
// scored vectorWeight*vector + textWeight*text. Results are sorted by score, then id.
func Fuse(vectorScores, textScores map[int64]float64, vectorWeight, textWeight float64) []*FusedResult {
	scoreMap := make(map[int64]*FusedResult, len(vectorScores)+len(textScores))
	for id, score := range vectorScores {
		scoreMap[id] = &FusedResult{ID: id, VectorScore: score}
	}
	for id, score := range textScores {
		if result, exists := scoreMap[id]; exists {
			result.TextScore = score
		} else {
			scoreMap[id] = &FusedResult{ID: id, TextScore: score}
		}
	}
	results := make([]*FusedResult, 0, len(scoreMap))
	for _, result := range scoreMap {
		result.Score = vectorWeight*result.VectorScore + textWeight*result.TextScore
		results = append(results, result)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results
}
