// Package models defines core data structures for chats, segments, search results, and stats.
package models

import "time"

// Contact is the non-user party of a chat.
type Contact struct {
	ID         int64  `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	Department string `json:"department,omitempty" db:"department"`
}

// Chat is a conversation with a contact. Messages are ordered by timestamp.
// Embedding is a cached derived value; it is cleared when the title or leading messages change.
type Chat struct {
	ID        int64          `json:"id" db:"id"`
	Title     string         `json:"title" db:"title"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	ContactID int64          `json:"contact_id,omitempty" db:"contact_id"`
	IsActive  bool           `json:"is_active" db:"is_active"`
	Embedding []float32      `json:"-" db:"embedding"`
	Messages  []*ChatMessage `json:"messages,omitempty" db:"-"`
}

// HasEmbedding reports whether the chat carries a vector.
func (c *Chat) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// ChatMessage is a single message of a chat. Content is immutable once stored.
type ChatMessage struct {
	ID        int64     `json:"id" db:"id"`
	ChatID    int64     `json:"chat_id" db:"chat_id"`
	Content   string    `json:"content" db:"content"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	IsUser    bool      `json:"is_user" db:"is_user"`
	Embedding []float32 `json:"-" db:"embedding"`
}

// HasEmbedding reports whether the message carries a vector.
func (m *ChatMessage) HasEmbedding() bool {
	return len(m.Embedding) > 0
}

// NewChatInput is the input for creating a chat.
type NewChatInput struct {
	Title     string `json:"title"`
	ContactID int64  `json:"contact_id,omitempty"`
}

// NewMessageInput is the input for appending a message to a chat.
type NewMessageInput struct {
	Content   string     `json:"content"`
	IsUser    bool       `json:"is_user"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}
