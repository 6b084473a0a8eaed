// Package vectorize computes and persists embeddings for chats, messages and segments.
package vectorize

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
)

// maxChatMessages is how many leading messages contribute to a chat's embedding.
const maxChatMessages = 5

// Embedder turns text into a vector. *embedding.Provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Coordinator runs batch and single-entity vectorization against a store.
type Coordinator struct {
	store    storage.Store
	embedder Embedder
	logger   *zap.Logger
	workers  int

	chatLogInterval    int
	messageLogInterval int
	segmentLogInterval int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithWorkers bounds how many items of a batch are embedded concurrently. 1 is sequential.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogIntervals sets how many successes pass between progress log lines per entity kind.
func WithLogIntervals(chats, messages, segments int) Option {
	return func(c *Coordinator) {
		if chats > 0 {
			c.chatLogInterval = chats
		}
		if messages > 0 {
			c.messageLogInterval = messages
		}
		if segments > 0 {
			c.segmentLogInterval = segments
		}
	}
}

// NewCoordinator returns a coordinator over store and embedder.
func NewCoordinator(store storage.Store, embedder Embedder, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:              store,
		embedder:           embedder,
		logger:             zap.NewNop(),
		workers:            1,
		chatLogInterval:    10,
		messageLogInterval: 50,
		segmentLogInterval: 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatEmbeddingContent returns the text a chat is embedded from: its title followed by
// up to five leading non-empty messages, space-joined.
func ChatEmbeddingContent(chat *models.Chat) string {
	parts := make([]string, 0, maxChatMessages+1)
	if t := strings.TrimSpace(chat.Title); t != "" {
		parts = append(parts, t)
	}
	n := 0
	for _, m := range chat.Messages {
		if n == maxChatMessages {
			break
		}
		if c := strings.TrimSpace(m.Content); c != "" {
			parts = append(parts, c)
			n++
		}
	}
	return strings.Join(parts, " ")
}

// VectorizeUnprocessedChats embeds every chat that has content but no vector.
func (c *Coordinator) VectorizeUnprocessedChats(ctx context.Context) (int, error) {
	return c.vectorizeChats(ctx, false)
}

// ReVectorizeAllChats recomputes every chat vector. A chat whose embedding fails loses its old vector.
func (c *Coordinator) ReVectorizeAllChats(ctx context.Context) (int, error) {
	return c.vectorizeChats(ctx, true)
}

func (c *Coordinator) vectorizeChats(ctx context.Context, force bool) (int, error) {
	chats, err := c.store.GetAllChats(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load chats: %w", err)
	}
	var todo []*models.Chat
	for _, chat := range chats {
		if (force || !chat.HasEmbedding()) && ChatEmbeddingContent(chat) != "" {
			todo = append(todo, chat)
		}
	}
	return runBatch(ctx, c, "chats", todo, c.chatLogInterval, func(ctx context.Context, chat *models.Chat) error {
		return c.embedChat(ctx, chat)
	})
}

// VectorizeUnprocessedMessages embeds every non-empty message without a vector.
func (c *Coordinator) VectorizeUnprocessedMessages(ctx context.Context) (int, error) {
	return c.vectorizeMessages(ctx, false)
}

// ReVectorizeAllMessages recomputes every message vector.
func (c *Coordinator) ReVectorizeAllMessages(ctx context.Context) (int, error) {
	return c.vectorizeMessages(ctx, true)
}

func (c *Coordinator) vectorizeMessages(ctx context.Context, force bool) (int, error) {
	msgs, err := c.store.GetAllMessages(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load messages: %w", err)
	}
	var todo []*models.ChatMessage
	for _, m := range msgs {
		if (force || !m.HasEmbedding()) && strings.TrimSpace(m.Content) != "" {
			todo = append(todo, m)
		}
	}
	return runBatch(ctx, c, "messages", todo, c.messageLogInterval, func(ctx context.Context, m *models.ChatMessage) error {
		return c.embedMessage(ctx, m)
	})
}

// VectorizeUnprocessedSegments embeds every segment with content but no vector.
func (c *Coordinator) VectorizeUnprocessedSegments(ctx context.Context) (int, error) {
	return c.vectorizeSegments(ctx, false)
}

// ReVectorizeAllSegments recomputes every segment vector.
func (c *Coordinator) ReVectorizeAllSegments(ctx context.Context) (int, error) {
	return c.vectorizeSegments(ctx, true)
}

func (c *Coordinator) vectorizeSegments(ctx context.Context, force bool) (int, error) {
	segs, err := c.store.GetAllChatSegments(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load segments: %w", err)
	}
	var todo []*models.ChatSegment
	for _, s := range segs {
		if (force || !s.HasEmbedding()) && strings.TrimSpace(s.CombinedContent) != "" {
			todo = append(todo, s)
		}
	}
	return runBatch(ctx, c, "segments", todo, c.segmentLogInterval, func(ctx context.Context, s *models.ChatSegment) error {
		return c.embedSegment(ctx, s)
	})
}

// runBatch applies fn to items with at most c.workers in flight. Item failures are logged and
// skipped. Cancellation stops new items from starting.
func runBatch[T any](ctx context.Context, c *Coordinator, kind string, items []T, interval int, fn func(context.Context, T) error) (int, error) {
	c.logger.Info("Starting vectorization", zap.String("kind", kind), zap.Int("pending", len(items)))

	var done atomic.Int64
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := fn(ctx, item); err != nil {
				c.logger.Warn("Failed to vectorize item", zap.String("kind", kind), zap.Int("index", i), zap.Error(err))
				return nil
			}
			if n := done.Add(1); interval > 0 && n%int64(interval) == 0 {
				c.logger.Info("Vectorization progress", zap.String("kind", kind),
					zap.Int64("done", n), zap.Int("total", len(items)))
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(done.Load())
	c.logger.Info("Vectorization finished", zap.String("kind", kind), zap.Int("vectorized", n), zap.Int("total", len(items)))
	if err := ctx.Err(); err != nil {
		return n, err
	}
	return n, nil
}

// embedChat embeds the chat and writes only its vector, so a rename saved meanwhile
// survives. When embedding fails an existing vector is cleared, so no vector from
// another model survives.
func (c *Coordinator) embedChat(ctx context.Context, chat *models.Chat) error {
	content := ChatEmbeddingContent(chat)
	if content == "" {
		c.logger.Debug("Chat has no content to embed", zap.Int64("chat_id", chat.ID))
		return nil
	}
	vec, embedErr := c.embedder.Embed(ctx, content)
	if embedErr != nil {
		embedErr = fmt.Errorf("failed to embed chat %d: %w", chat.ID, embedErr)
		if !chat.HasEmbedding() {
			return embedErr
		}
		vec = nil
	}
	if err := c.store.UpdateChatEmbedding(ctx, chat.ID, vec); err != nil {
		return fmt.Errorf("failed to save chat %d vector: %w", chat.ID, err)
	}
	chat.Embedding = vec
	return embedErr
}

func (c *Coordinator) embedMessage(ctx context.Context, m *models.ChatMessage) error {
	vec, embedErr := c.embedder.Embed(ctx, m.Content)
	if embedErr != nil {
		embedErr = fmt.Errorf("failed to embed message %d: %w", m.ID, embedErr)
		if !m.HasEmbedding() {
			return embedErr
		}
		vec = nil
	}
	if err := c.store.UpdateMessageEmbedding(ctx, m.ID, vec); err != nil {
		return fmt.Errorf("failed to save message %d vector: %w", m.ID, err)
	}
	m.Embedding = vec
	return embedErr
}

// embedSegment writes the vector only while the stored content still matches what was
// embedded. A segment refreshed meanwhile already carries its own vector.
func (c *Coordinator) embedSegment(ctx context.Context, s *models.ChatSegment) error {
	vec, embedErr := c.embedder.Embed(ctx, s.CombinedContent)
	if embedErr != nil {
		embedErr = fmt.Errorf("failed to embed segment %d: %w", s.ID, embedErr)
		if !s.HasEmbedding() {
			return embedErr
		}
		vec = nil
	}
	written, err := c.store.UpdateSegmentEmbedding(ctx, s.ID, s.CombinedContent, vec)
	if err != nil {
		return fmt.Errorf("failed to save segment %d vector: %w", s.ID, err)
	}
	if !written {
		c.logger.Debug("Segment changed while embedding, keeping stored version", zap.Int64("segment_id", s.ID))
		return embedErr
	}
	s.Embedding = vec
	return embedErr
}

// UpdateChatVector recomputes one chat's vector. A missing chat or empty content is a no-op.
func (c *Coordinator) UpdateChatVector(ctx context.Context, chatID int64) error {
	chat, err := c.store.GetChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to load chat %d: %w", chatID, err)
	}
	if chat == nil {
		c.logger.Warn("Chat not found", zap.Int64("chat_id", chatID))
		return nil
	}
	return c.embedChat(ctx, chat)
}

// UpdateMessageVector recomputes one message's vector. A missing or blank message is a no-op.
func (c *Coordinator) UpdateMessageVector(ctx context.Context, messageID int64) error {
	m, err := c.store.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to load message %d: %w", messageID, err)
	}
	if m == nil {
		c.logger.Warn("Message not found", zap.Int64("message_id", messageID))
		return nil
	}
	if strings.TrimSpace(m.Content) == "" {
		c.logger.Debug("Message has no content to embed", zap.Int64("message_id", messageID))
		return nil
	}
	return c.embedMessage(ctx, m)
}

// UpdateSegmentVector recomputes one segment's vector. A missing or blank segment is a no-op.
func (c *Coordinator) UpdateSegmentVector(ctx context.Context, segmentID int64) error {
	s, err := c.store.GetChatSegment(ctx, segmentID)
	if err != nil {
		return fmt.Errorf("failed to load segment %d: %w", segmentID, err)
	}
	if s == nil {
		c.logger.Warn("Segment not found", zap.Int64("segment_id", segmentID))
		return nil
	}
	if strings.TrimSpace(s.CombinedContent) == "" {
		c.logger.Debug("Segment has no content to embed", zap.Int64("segment_id", segmentID))
		return nil
	}
	return c.embedSegment(ctx, s)
}
