// Package cli provides output formatting for the Kaiwa command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per hit.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const (
	rule           = "─────────────────────────────────────────────────────────"
	previewLength  = 200
	compactPreview = 60
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, compact or json)", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
// Unknown formats fall back to text.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		writeSearchResultsCompact(w, response)
	default:
		writeSearchResultsText(w, response)
	}
	return nil
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d %s in %dms (%s search)\n\n", response.Total, response.Target, response.QueryTime, response.Mode)
	for i, r := range response.Segments {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "[%s] Rank: %d | Score: %.4f\n", r.MatchType, i+1, r.SimilarityScore)
		fmt.Fprintf(w, "Segment: %d | Chat: %d | Date: %s | Messages: %d\n", r.Segment.ID, r.Segment.ChatID, r.Segment.DateKey(), r.Segment.MessageCount)
		fmt.Fprintf(w, "Title: %s\n", r.Segment.Title)
		if len(r.MatchedKeywords) > 0 {
			fmt.Fprintf(w, "Matched: %s\n", strings.Join(r.MatchedKeywords, ", "))
		}
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(r.Segment.CombinedContent, previewLength))
	}
	for i, r := range response.Chats {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "[%s] Rank: %d | Score: %.4f (Vector: %.4f, Text: %.4f)\n", r.MatchType, i+1, r.HybridScore, r.VectorScore, r.TextScore)
		fmt.Fprintf(w, "Chat: %d | Title: %s\n", r.Chat.ID, r.Chat.Title)
		if r.MatchedMessages > 0 {
			fmt.Fprintf(w, "Matched messages: %d\n", r.MatchedMessages)
		}
		if r.Snippet != "" {
			fmt.Fprintf(w, "\n%s\n", r.Snippet)
		}
		fmt.Fprintln(w)
	}
	for i, r := range response.Messages {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", i+1, r.SimilarityScore)
		fmt.Fprintf(w, "Message: %d | Chat: %d | %s | %s\n", r.Message.ID, r.Message.ChatID, speaker(r.Message), r.Message.Timestamp.Format("02.01.2006 15:04"))
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(r.Message.Content, previewLength))
	}
}

func writeSearchResultsCompact(w io.Writer, response *models.SearchResponse) {
	for _, r := range response.Segments {
		fmt.Fprintf(w, "%.4f\tsegment:%d\tchat:%d\t%s\t%s\n", r.SimilarityScore, r.Segment.ID, r.Segment.ChatID, r.Segment.DateKey(), utils.Truncate(r.Segment.Title, compactPreview))
	}
	for _, r := range response.Chats {
		fmt.Fprintf(w, "%.4f\tchat:%d\t%s\t%s\n", r.HybridScore, r.Chat.ID, r.MatchType, utils.Truncate(r.Chat.Title, compactPreview))
	}
	for _, r := range response.Messages {
		fmt.Fprintf(w, "%.4f\tmessage:%d\tchat:%d\t%s\n", r.SimilarityScore, r.Message.ID, r.Message.ChatID, utils.Truncate(utils.OneLine(r.Message.Content), compactPreview))
	}
}

func speaker(m *models.ChatMessage) string {
	if m.IsUser {
		return "user"
	}
	return "assistant"
}

// Stats bundles both vectorization reports for output.
type Stats struct {
	Vectorization *models.VectorizationStats        `json:"vectorization"`
	Segments      *models.SegmentVectorizationStats `json:"segments"`
}

// WriteStats writes vectorization stats to w in the given format.
func WriteStats(w io.Writer, stats *Stats, format OutputFormat) error {
	v, s := stats.Vectorization, stats.Segments
	switch format {
	case OutputJSON:
		return writeJSON(w, stats)
	case OutputCompact:
		fmt.Fprintf(w, "chats %d/%d (%.1f%%) messages %d/%d (%.1f%%) segments %d/%d (%.1f%%)\n",
			v.VectorizedChats, v.TotalChats, v.ChatPercentage,
			v.VectorizedMessages, v.TotalMessages, v.MessagePercentage,
			s.VectorizedSegments, s.TotalSegments, s.Percentage)
	default:
		fmt.Fprintln(w, "Vectorization")
		fmt.Fprintf(w, "  Chats:     %d / %d (%.1f%%)\n", v.VectorizedChats, v.TotalChats, v.ChatPercentage)
		fmt.Fprintf(w, "  Messages:  %d / %d (%.1f%%)\n", v.VectorizedMessages, v.TotalMessages, v.MessagePercentage)
		fmt.Fprintln(w, "Segments")
		fmt.Fprintf(w, "  Vectorized:           %d / %d (%.1f%%)\n", s.VectorizedSegments, s.TotalSegments, s.Percentage)
		fmt.Fprintf(w, "  Chats with segments:  %d\n", s.ChatsWithSegments)
		fmt.Fprintf(w, "  Avg messages:         %.1f\n", s.AverageMessagesPerSegment)
		fmt.Fprintf(w, "  Avg content length:   %.1f\n", s.AverageContentLength)
		if s.OldestSegmentDate != "" {
			fmt.Fprintf(w, "  Range:                %s .. %s\n", s.OldestSegmentDate, s.NewestSegmentDate)
		}
	}
	return nil
}

// WriteSegments lists segments, as printed by the segment command.
func WriteSegments(w io.Writer, segs []*models.ChatSegment, format OutputFormat) error {
	if format == OutputJSON {
		if segs == nil {
			segs = []*models.ChatSegment{}
		}
		return writeJSON(w, segs)
	}
	for _, s := range segs {
		vec := "no vector"
		if s.HasEmbedding() {
			vec = "vectorized"
		}
		if format == OutputCompact {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", s.ID, s.DateKey(), s.MessageCount, utils.Truncate(s.Title, compactPreview))
			continue
		}
		fmt.Fprintf(w, "Segment %d (%s, %d messages, %s)\n  %s\n  Keywords: %s\n", s.ID, s.DateKey(), s.MessageCount, vec, s.Title, s.Keywords)
	}
	return nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	return writeJSON(w, v)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
