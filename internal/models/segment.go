package models

import (
	"strings"
	"time"
)

// SegmentDateLayout is the storage layout of ChatSegment.SegmentDate.
const SegmentDateLayout = "2006-01-02"

// ChatSegment is a date- or topic-bounded bundle of messages from one chat.
// Messages is a snapshot taken at synthesis time, not a live view; segments are
// recomputed when their source messages change.
type ChatSegment struct {
	ID              int64          `json:"id" db:"id"`
	ChatID          int64          `json:"chat_id" db:"chat_id"`
	SegmentDate     time.Time      `json:"segment_date" db:"segment_date"`
	Messages        []*ChatMessage `json:"messages,omitempty" db:"-"`
	MessageCount    int            `json:"message_count" db:"message_count"`
	StartTime       time.Time      `json:"start_time" db:"start_time"`
	EndTime         time.Time      `json:"end_time" db:"end_time"`
	CombinedContent string         `json:"combined_content" db:"combined_content"`
	Title           string         `json:"title" db:"title"`
	Keywords        string         `json:"keywords" db:"keywords"`
	Embedding       []float32      `json:"-" db:"embedding"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// DateKey returns the segment date as YYYY-MM-DD.
func (s *ChatSegment) DateKey() string {
	return s.SegmentDate.Format(SegmentDateLayout)
}

// KeywordList splits the comma-joined keywords.
func (s *ChatSegment) KeywordList() []string {
	if s.Keywords == "" {
		return nil
	}
	parts := strings.Split(s.Keywords, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HasEmbedding reports whether the segment carries a vector.
func (s *ChatSegment) HasEmbedding() bool {
	return len(s.Embedding) > 0
}

// MessageIDs returns the ids of the snapshot messages in order.
func (s *ChatSegment) MessageIDs() []int64 {
	ids := make([]int64, 0, len(s.Messages))
	for _, m := range s.Messages {
		ids = append(ids, m.ID)
	}
	return ids
}
