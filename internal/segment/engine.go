// Package segment builds daily and thematic segments from chat messages.
package segment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/vector"
)

// DefaultThematicThreshold is the cosine similarity a message needs to join a topic cluster.
const DefaultThematicThreshold = 0.7

// Embedder turns text into a vector. *embedding.Provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine builds segments and persists daily ones.
type Engine struct {
	store    storage.Store
	embedder Embedder
	indexer  keyword.SegmentIndexer
	logger   *zap.Logger
	now      func() time.Time
	loc      *time.Location
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source used to find "today".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIndexer pushes every persisted segment to a keyword index.
func WithIndexer(idx keyword.SegmentIndexer) Option {
	return func(e *Engine) { e.indexer = idx }
}

// WithLocation sets the time zone calendar days are computed in. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// NewEngine returns a segment engine over store and embedder.
func NewEngine(store storage.Store, embedder Embedder, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		embedder: embedder,
		logger:   zap.NewNop(),
		now:      time.Now,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateDailySegments groups the chat's non-empty messages by calendar day and persists one
// segment per day, in ascending date order. A day that already has a segment is rewritten
// in place. An unknown chat yields no segments.
func (e *Engine) CreateDailySegments(ctx context.Context, chatID int64) ([]*models.ChatSegment, error) {
	chat, contact, err := e.loadChat(ctx, chatID)
	if err != nil || chat == nil {
		return nil, err
	}
	existing, err := e.existingByDate(ctx, chatID)
	if err != nil {
		return nil, err
	}

	days, groups := e.groupByDay(nonEmpty(chat.Messages))
	out := make([]*models.ChatSegment, 0, len(days))
	for _, day := range days {
		seg := e.build(ctx, chatID, contact, day, groups[day.Format(models.SegmentDateLayout)])
		if prev, ok := existing[seg.DateKey()]; ok {
			seg.ID = prev.ID
			seg.CreatedAt = prev.CreatedAt
		}
		if err := e.persist(ctx, seg); err != nil {
			return out, err
		}
		out = append(out, seg)
	}
	e.logger.Debug("Created daily segments", zap.Int64("chat_id", chatID), zap.Int("count", len(out)))
	return out, nil
}

// UpdateSegmentsForChat refreshes the segment for today's messages of the chat, creating it when
// missing. It returns nil when the chat is unknown or has no non-empty message today.
func (e *Engine) UpdateSegmentsForChat(ctx context.Context, chatID int64) (*models.ChatSegment, error) {
	chat, contact, err := e.loadChat(ctx, chatID)
	if err != nil || chat == nil {
		return nil, err
	}

	today := e.day(e.now())
	key := today.Format(models.SegmentDateLayout)
	var todays []*models.ChatMessage
	for _, m := range nonEmpty(chat.Messages) {
		if e.day(m.Timestamp).Equal(today) {
			todays = append(todays, m)
		}
	}
	if len(todays) == 0 {
		return nil, nil
	}

	existing, err := e.existingByDate(ctx, chatID)
	if err != nil {
		return nil, err
	}
	seg := e.build(ctx, chatID, contact, today, todays)
	if prev, ok := existing[key]; ok {
		seg.ID = prev.ID
		seg.CreatedAt = prev.CreatedAt
	}
	if err := e.persist(ctx, seg); err != nil {
		return nil, err
	}
	return seg, nil
}

// CreateThematicSegments clusters the chat's messages by embedding similarity. Clustering is
// greedy in timestamp order: the earliest unassigned message seeds a cluster and absorbs every
// later unassigned message whose cosine similarity to the seed reaches threshold. The segment
// date is the most frequent day among members, the earliest such day on ties.
// A threshold <= 0 uses DefaultThematicThreshold. Thematic segments are not persisted.
func (e *Engine) CreateThematicSegments(ctx context.Context, chatID int64, threshold float64) ([]*models.ChatSegment, error) {
	if threshold <= 0 {
		threshold = DefaultThematicThreshold
	}
	chat, contact, err := e.loadChat(ctx, chatID)
	if err != nil || chat == nil {
		return nil, err
	}
	msgs := nonEmpty(chat.Messages)

	embs := make([][]float32, len(msgs))
	for i, m := range msgs {
		vec, err := e.embedder.Embed(ctx, m.Content)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("Failed to embed message for clustering",
				zap.Int64("message_id", m.ID), zap.Error(err))
			continue
		}
		embs[i] = vec
	}

	used := make([]bool, len(msgs))
	var out []*models.ChatSegment
	for i := range msgs {
		if used[i] {
			continue
		}
		used[i] = true
		members := []*models.ChatMessage{msgs[i]}
		for j := i + 1; j < len(msgs); j++ {
			if used[j] || embs[i] == nil || embs[j] == nil {
				continue
			}
			if vector.Cosine(embs[i], embs[j]) >= threshold {
				used[j] = true
				members = append(members, msgs[j])
			}
		}
		out = append(out, e.build(ctx, chatID, contact, e.modeDay(members), members))
	}
	return out, nil
}

func (e *Engine) loadChat(ctx context.Context, chatID int64) (*models.Chat, *models.Contact, error) {
	chat, err := e.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load chat %d: %w", chatID, err)
	}
	if chat == nil {
		e.logger.Warn("Chat not found", zap.Int64("chat_id", chatID))
		return nil, nil, nil
	}
	if chat.ContactID == 0 {
		return chat, nil, nil
	}
	contact, err := e.store.GetContact(ctx, chat.ContactID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load contact %d: %w", chat.ContactID, err)
	}
	return chat, contact, nil
}

func (e *Engine) existingByDate(ctx context.Context, chatID int64) (map[string]*models.ChatSegment, error) {
	segs, err := e.store.GetSegmentsForChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load segments for chat %d: %w", chatID, err)
	}
	byDate := make(map[string]*models.ChatSegment, len(segs))
	for _, s := range segs {
		if _, ok := byDate[s.DateKey()]; !ok {
			byDate[s.DateKey()] = s
		}
	}
	return byDate, nil
}

// build synthesizes a segment; an embedding failure leaves it without a vector.
func (e *Engine) build(ctx context.Context, chatID int64, contact *models.Contact, day time.Time, msgs []*models.ChatMessage) *models.ChatSegment {
	msgs = sortByTimestamp(msgs)
	content := GenerateSegmentContent(contact, day, msgs)
	seg := &models.ChatSegment{
		ChatID:          chatID,
		SegmentDate:     day,
		Messages:        msgs,
		MessageCount:    len(msgs),
		CombinedContent: content.CombinedContent,
		Title:           content.Title,
		Keywords:        content.Keywords,
		CreatedAt:       e.now(),
	}
	if len(msgs) > 0 {
		seg.StartTime = msgs[0].Timestamp
		seg.EndTime = msgs[len(msgs)-1].Timestamp
	}
	if content.CombinedContent != "" {
		vec, err := e.embedder.Embed(ctx, content.CombinedContent)
		if err != nil {
			e.logger.Warn("Failed to embed segment, storing without vector",
				zap.Int64("chat_id", chatID), zap.String("date", seg.DateKey()), zap.Error(err))
		} else {
			seg.Embedding = vec
		}
	}
	return seg
}

func (e *Engine) persist(ctx context.Context, seg *models.ChatSegment) error {
	if _, err := e.store.SaveChatSegment(ctx, seg); err != nil {
		return fmt.Errorf("failed to save segment for chat %d on %s: %w", seg.ChatID, seg.DateKey(), err)
	}
	if e.indexer != nil {
		if err := e.indexer.IndexSegment(ctx, seg); err != nil {
			e.logger.Warn("Failed to index segment", zap.Int64("segment_id", seg.ID), zap.Error(err))
		}
	}
	return nil
}

// day truncates t to midnight of its calendar day in the engine's location.
func (e *Engine) day(t time.Time) time.Time {
	t = t.In(e.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
}

// groupByDay buckets msgs by day, returning days in ascending order.
func (e *Engine) groupByDay(msgs []*models.ChatMessage) ([]time.Time, map[string][]*models.ChatMessage) {
	var days []time.Time
	groups := make(map[string][]*models.ChatMessage)
	for _, m := range msgs {
		d := e.day(m.Timestamp)
		key := d.Format(models.SegmentDateLayout)
		if _, ok := groups[key]; !ok {
			days = append(days, d)
		}
		groups[key] = append(groups[key], m)
	}
	return days, groups
}

func (e *Engine) modeDay(members []*models.ChatMessage) time.Time {
	counts := make(map[string]int)
	for _, m := range members {
		counts[e.day(m.Timestamp).Format(models.SegmentDateLayout)]++
	}
	var best time.Time
	bestCount := 0
	for _, m := range members {
		d := e.day(m.Timestamp)
		if c := counts[d.Format(models.SegmentDateLayout)]; c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}
