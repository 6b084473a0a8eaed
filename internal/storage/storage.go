// Package storage persists contacts, chats, messages and segments, and optionally
// answers nearest-neighbour queries over their vectors.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kaiwa/internal/models"
)

// ErrNotFound is returned by writes that target an id that does not exist.
// Reads report absence as a nil result instead.
var ErrNotFound = errors.New("not found")

// Store defines chat, message, contact and segment persistence.
// Get* methods return (nil, nil) when the entity does not exist.
// Save* methods insert when the ID is zero and update otherwise; they set the ID on insert.
type Store interface {
	// Contacts
	GetContact(ctx context.Context, id int64) (*models.Contact, error)
	SaveContact(ctx context.Context, contact *models.Contact) (int64, error)

	// Chats; GetChat hydrates Messages ordered by timestamp.
	GetChat(ctx context.Context, id int64) (*models.Chat, error)
	GetAllChats(ctx context.Context) ([]*models.Chat, error)
	SaveChat(ctx context.Context, chat *models.Chat) (int64, error)
	// UpdateChatEmbedding writes only the vector column; a nil vec clears it.
	UpdateChatEmbedding(ctx context.Context, id int64, vec []float32) error

	// Messages
	GetMessage(ctx context.Context, id int64) (*models.ChatMessage, error)
	GetAllMessages(ctx context.Context) ([]*models.ChatMessage, error)
	GetMessagesForChat(ctx context.Context, chatID int64) ([]*models.ChatMessage, error)
	SaveMessage(ctx context.Context, msg *models.ChatMessage) (int64, error)
	UpdateMessageEmbedding(ctx context.Context, id int64, vec []float32) error

	// Segments; message snapshots are hydrated on read.
	GetSegmentsForChat(ctx context.Context, chatID int64) ([]*models.ChatSegment, error)
	SaveChatSegment(ctx context.Context, seg *models.ChatSegment) (int64, error)
	// UpdateSegmentEmbedding writes vec only while the stored combined content still equals
	// content, and reports whether it did. A refreshed segment is left alone.
	UpdateSegmentEmbedding(ctx context.Context, id int64, content string, vec []float32) (bool, error)
	GetChatSegment(ctx context.Context, id int64) (*models.ChatSegment, error)
	DeleteChatSegment(ctx context.Context, id int64) error
	GetAllChatSegments(ctx context.Context) ([]*models.ChatSegment, error)

	Close() error
}

// VectorSearcher is implemented by stores that can answer k-NN queries natively.
// Nearest* return ids ordered by descending similarity.
type VectorSearcher interface {
	VectorSearchAvailable() bool
	EnableVectorSearch(ctx context.Context) error
	NearestSegments(ctx context.Context, query []float32, k int) ([]int64, error)
	NearestChats(ctx context.Context, query []float32, k int) ([]int64, error)
	NearestMessages(ctx context.Context, query []float32, k int) ([]int64, error)
}

// Counter is implemented by stores that can count rows without loading them.
type Counter interface {
	Counts(ctx context.Context) (Counts, error)
}

// Counts summarizes table sizes for status output.
type Counts struct {
	Contacts int64 `json:"contacts"`
	Chats    int64 `json:"chats"`
	Messages int64 `json:"messages"`
	Segments int64 `json:"segments"`
}

// attachMessages sets seg.Messages from byID following ids, skipping ids that no longer exist.
func attachMessages(seg *models.ChatSegment, ids []int64, byID map[int64]*models.ChatMessage) {
	seg.Messages = make([]*models.ChatMessage, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			seg.Messages = append(seg.Messages, m)
		}
	}
}

func indexMessages(msgs []*models.ChatMessage) map[int64]*models.ChatMessage {
	byID := make(map[int64]*models.ChatMessage, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}
	return byID
}
