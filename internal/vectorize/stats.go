package vectorize

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/hyperjump/kaiwa/internal/models"
)

// GetVectorizationStats counts chats and messages with vectors. It does not modify anything.
func (c *Coordinator) GetVectorizationStats(ctx context.Context) (*models.VectorizationStats, error) {
	chats, err := c.store.GetAllChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load chats: %w", err)
	}
	msgs, err := c.store.GetAllMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	stats := &models.VectorizationStats{TotalChats: len(chats), TotalMessages: len(msgs)}
	for _, chat := range chats {
		if chat.HasEmbedding() {
			stats.VectorizedChats++
		}
	}
	for _, m := range msgs {
		if m.HasEmbedding() {
			stats.VectorizedMessages++
		}
	}
	stats.ChatPercentage = models.Percentage(stats.VectorizedChats, stats.TotalChats)
	stats.MessagePercentage = models.Percentage(stats.VectorizedMessages, stats.TotalMessages)
	return stats, nil
}

// GetSegmentVectorizationStats summarizes segment coverage, size and date range.
func (c *Coordinator) GetSegmentVectorizationStats(ctx context.Context) (*models.SegmentVectorizationStats, error) {
	segs, err := c.store.GetAllChatSegments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load segments: %w", err)
	}

	stats := &models.SegmentVectorizationStats{TotalSegments: len(segs)}
	if len(segs) == 0 {
		return stats, nil
	}

	chats := make(map[int64]struct{})
	var messages, runes int
	for _, s := range segs {
		if s.HasEmbedding() {
			stats.VectorizedSegments++
		}
		chats[s.ChatID] = struct{}{}
		messages += s.MessageCount
		runes += utf8.RuneCountInString(s.CombinedContent)

		key := s.DateKey()
		if stats.OldestSegmentDate == "" || key < stats.OldestSegmentDate {
			stats.OldestSegmentDate = key
		}
		if key > stats.NewestSegmentDate {
			stats.NewestSegmentDate = key
		}
	}
	stats.Percentage = models.Percentage(stats.VectorizedSegments, stats.TotalSegments)
	stats.ChatsWithSegments = len(chats)
	stats.AverageMessagesPerSegment = float64(messages) / float64(len(segs))
	stats.AverageContentLength = float64(runes) / float64(len(segs))
	return stats, nil
}
