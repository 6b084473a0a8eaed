// Package chat is the write path for contacts, chats and messages. It persists
// synchronously and hands segment and vector upkeep to the background updater.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/updater"
)

// leadingMessages is how many messages feed the chat vector.
const leadingMessages = 5

// ErrInvalidInput is returned for requests that fail validation.
var ErrInvalidInput = errors.New("invalid input")

// Enqueuer accepts background tasks without blocking. *updater.Updater satisfies it.
type Enqueuer interface {
	Enqueue(t updater.Task) bool
}

// Service implements chat writes.
type Service struct {
	store  storage.Store
	tasks  Enqueuer
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService returns a chat service.
func NewService(store storage.Store, tasks Enqueuer, opts ...Option) *Service {
	s := &Service{store: store, tasks: tasks, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveContact inserts or updates a contact.
func (s *Service) SaveContact(ctx context.Context, c *models.Contact) (*models.Contact, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, fmt.Errorf("%w: contact name cannot be empty", ErrInvalidInput)
	}
	if _, err := s.store.SaveContact(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save contact: %w", err)
	}
	return c, nil
}

// CreateChat creates an active chat.
func (s *Service) CreateChat(ctx context.Context, in models.NewChatInput) (*models.Chat, error) {
	if in.ContactID != 0 {
		contact, err := s.store.GetContact(ctx, in.ContactID)
		if err != nil {
			return nil, fmt.Errorf("failed to load contact %d: %w", in.ContactID, err)
		}
		if contact == nil {
			return nil, fmt.Errorf("contact %d: %w", in.ContactID, storage.ErrNotFound)
		}
	}
	chat := &models.Chat{
		Title:     strings.TrimSpace(in.Title),
		ContactID: in.ContactID,
		IsActive:  true,
		CreatedAt: s.now(),
	}
	if _, err := s.store.SaveChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	s.logger.Debug("Chat created", zap.Int64("chat_id", chat.ID))
	return chat, nil
}

// GetChat returns a chat with its messages, or nil when absent.
func (s *Service) GetChat(ctx context.Context, id int64) (*models.Chat, error) {
	return s.store.GetChat(ctx, id)
}

// RenameChat changes a chat's title, drops its vector and schedules a new one.
func (s *Service) RenameChat(ctx context.Context, id int64, title string) (*models.Chat, error) {
	chat, err := s.store.GetChat(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat %d: %w", id, err)
	}
	if chat == nil {
		return nil, fmt.Errorf("chat %d: %w", id, storage.ErrNotFound)
	}
	chat.Title = strings.TrimSpace(title)
	chat.Embedding = nil
	if _, err := s.store.SaveChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to rename chat %d: %w", id, err)
	}
	s.enqueue(updater.TaskChatVector(id))
	return chat, nil
}

// AppendMessage stores a message and returns without waiting for segments or vectors.
// Today's segment and the message vector are refreshed in the background. While the chat
// has at most five messages its vector is also stale, so it is cleared and rescheduled.
func (s *Service) AppendMessage(ctx context.Context, chatID int64, in models.NewMessageInput) (*models.ChatMessage, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", ErrInvalidInput)
	}
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat %d: %w", chatID, err)
	}
	if chat == nil {
		return nil, fmt.Errorf("chat %d: %w", chatID, storage.ErrNotFound)
	}

	ts := s.now()
	if in.Timestamp != nil {
		ts = *in.Timestamp
	}
	msg := &models.ChatMessage{ChatID: chatID, Content: in.Content, IsUser: in.IsUser, Timestamp: ts}
	if _, err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	s.enqueue(updater.TaskSegmentRefresh(chatID))
	s.enqueue(updater.TaskMessageVector(msg.ID))
	if len(chat.Messages)+1 <= leadingMessages {
		if chat.HasEmbedding() {
			chat.Embedding = nil
			if _, err := s.store.SaveChat(ctx, chat); err != nil {
				return nil, fmt.Errorf("failed to clear vector of chat %d: %w", chatID, err)
			}
		}
		s.enqueue(updater.TaskChatVector(chatID))
	}
	return msg, nil
}

func (s *Service) enqueue(t updater.Task) {
	if s.tasks == nil {
		return
	}
	if !s.tasks.Enqueue(t) {
		s.logger.Warn("Background task dropped", zap.String("kind", string(t.Kind)), zap.Int64("entity_id", t.EntityID))
	}
}
