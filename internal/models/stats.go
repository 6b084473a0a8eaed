package models

// VectorizationStats is computed on demand from chat and message state.
type VectorizationStats struct {
	TotalChats         int     `json:"total_chats"`
	VectorizedChats    int     `json:"vectorized_chats"`
	TotalMessages      int     `json:"total_messages"`
	VectorizedMessages int     `json:"vectorized_messages"`
	ChatPercentage     float64 `json:"chat_percentage"`
	MessagePercentage  float64 `json:"message_percentage"`
}

// SegmentVectorizationStats is computed on demand from segment state.
type SegmentVectorizationStats struct {
	TotalSegments             int     `json:"total_segments"`
	VectorizedSegments        int     `json:"vectorized_segments"`
	Percentage                float64 `json:"percentage"`
	ChatsWithSegments         int     `json:"chats_with_segments"`
	AverageMessagesPerSegment float64 `json:"average_messages_per_segment"`
	AverageContentLength      float64 `json:"average_content_length"`
	OldestSegmentDate         string  `json:"oldest_segment_date,omitempty"`
	NewestSegmentDate         string  `json:"newest_segment_date,omitempty"`
}

// Percentage returns part/total*100, or 0 when total is 0.
func Percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
