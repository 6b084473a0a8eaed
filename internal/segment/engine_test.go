package segment

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
)

var (
	day1 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
)

func newStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "segments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedChat stores a chat with Anna and the given messages, returning the chat id.
func seedChat(t *testing.T, store storage.Store, msgs ...*models.ChatMessage) int64 {
	t.Helper()
	ctx := context.Background()
	contactID, err := store.SaveContact(ctx, &models.Contact{Name: "Anna", Department: "Billing"})
	require.NoError(t, err)
	chatID, err := store.SaveChat(ctx, &models.Chat{Title: "Support", ContactID: contactID, IsActive: true})
	require.NoError(t, err)
	for _, m := range msgs {
		m.ID = 0
		m.ChatID = chatID
		_, err := store.SaveMessage(ctx, m)
		require.NoError(t, err)
	}
	return chatID
}

func twoDayChat() []*models.ChatMessage {
	return []*models.ChatMessage{
		msg(0, "Hallo", true, day1.Add(9*time.Hour)),
		msg(0, "Wie geht's?", false, day1.Add(9*time.Hour+time.Minute)),
		msg(0, "Gut danke", true, day1.Add(9*time.Hour+2*time.Minute)),
		msg(0, "Frage zu Rechnung", true, day2.Add(14*time.Hour)),
		msg(0, "Danke für die Antwort", false, day2.Add(14*time.Hour+time.Minute)),
	}
}

type recordingIndexer struct {
	indexed []int64
	err     error
}

func (r *recordingIndexer) IndexSegment(_ context.Context, seg *models.ChatSegment) error {
	r.indexed = append(r.indexed, seg.ID)
	return r.err
}

func (r *recordingIndexer) DeleteSegment(context.Context, int64) error { return nil }

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, embedding.ErrModelUnavailable
}

// topicEmbedder maps texts to fixed vectors.
type topicEmbedder map[string][]float32

func (e topicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func TestCreateDailySegments(t *testing.T) {
	store := newStore(t)
	chatID := seedChat(t, store, twoDayChat()...)
	idx := &recordingIndexer{}
	engine := NewEngine(store, embedding.NewHashEmbedder(64), WithLocation(time.UTC), WithIndexer(idx))

	segs, err := engine.CreateDailySegments(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, segs, 2)

	first, second := segs[0], segs[1]
	assert.Equal(t, "2024-03-01", first.DateKey())
	assert.Equal(t, 3, first.MessageCount)
	assert.Equal(t, day1.Add(9*time.Hour), first.StartTime.UTC())
	assert.Equal(t, day1.Add(9*time.Hour+2*time.Minute), first.EndTime.UTC())
	assert.Equal(t, "Anna - 01.03.2024: Hallo", first.Title)
	assert.Contains(t, first.CombinedContent, "[Anna]: Hallo\n[AI assistant]: Wie geht's?\n[Anna]: Gut danke")
	assert.Len(t, first.Embedding, 64)

	assert.Equal(t, "2024-03-02", second.DateKey())
	assert.Equal(t, 2, second.MessageCount)
	assert.Equal(t, "Anna - 02.03.2024: Frage zu Rechnung", second.Title)
	assert.Contains(t, second.CombinedContent, "[Anna]: Frage zu Rechnung\n[AI assistant]: Danke für die Antwort")

	msgs, err := store.GetMessagesForChat(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Equal(t, []int64{msgs[0].ID, msgs[1].ID, msgs[2].ID}, first.MessageIDs())
	assert.Equal(t, []int64{msgs[3].ID, msgs[4].ID}, second.MessageIDs())

	stored, err := store.GetSegmentsForChat(context.Background(), chatID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Equal(t, []int64{first.ID, second.ID}, idx.indexed)
}

func TestCreateDailySegments_RerunKeepsOnePerDay(t *testing.T) {
	store := newStore(t)
	chatID := seedChat(t, store, twoDayChat()...)
	engine := NewEngine(store, embedding.NewHashEmbedder(32), WithLocation(time.UTC))
	ctx := context.Background()

	first, err := engine.CreateDailySegments(ctx, chatID)
	require.NoError(t, err)
	again, err := engine.CreateDailySegments(ctx, chatID)
	require.NoError(t, err)

	require.Len(t, again, 2)
	assert.Equal(t, first[0].ID, again[0].ID)
	assert.Equal(t, first[1].ID, again[1].ID)

	stored, err := store.GetSegmentsForChat(ctx, chatID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestCreateDailySegments_SkipsBlankMessages(t *testing.T) {
	store := newStore(t)
	chatID := seedChat(t, store,
		msg(0, "   ", true, day1.Add(time.Hour)),
		msg(0, "Rechnung fehlt", true, day2.Add(time.Hour)),
	)
	engine := NewEngine(store, embedding.NewHashEmbedder(32), WithLocation(time.UTC))

	segs, err := engine.CreateDailySegments(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "2024-03-02", segs[0].DateKey())
}

func TestCreateDailySegments_UnknownChat(t *testing.T) {
	engine := NewEngine(newStore(t), embedding.NewHashEmbedder(32))
	segs, err := engine.CreateDailySegments(context.Background(), 999)
	require.NoError(t, err)
	assert.Empty(t, segs)
}

func TestCreateDailySegments_EmbeddingFailureStillPersists(t *testing.T) {
	store := newStore(t)
	chatID := seedChat(t, store, twoDayChat()...)
	engine := NewEngine(store, failingEmbedder{}, WithLocation(time.UTC))

	segs, err := engine.CreateDailySegments(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	for _, s := range segs {
		assert.False(t, s.HasEmbedding())
		assert.NotZero(t, s.ID)
	}
}

func TestCreateDailySegments_IndexerFailureIgnored(t *testing.T) {
	store := newStore(t)
	chatID := seedChat(t, store, twoDayChat()...)
	idx := &recordingIndexer{err: errors.New("index closed")}
	engine := NewEngine(store, embedding.NewHashEmbedder(32), WithLocation(time.UTC), WithIndexer(idx))

	segs, err := engine.CreateDailySegments(context.Background(), chatID)
	require.NoError(t, err)
	assert.Len(t, segs, 2)
	assert.Len(t, idx.indexed, 2)
}

func TestUpdateSegmentsForChat(t *testing.T) {
	store := newStore(t)
	chatID := seedChat(t, store, twoDayChat()...)
	ctx := context.Background()
	clock := func() time.Time { return day2.Add(20 * time.Hour) }
	engine := NewEngine(store, embedding.NewHashEmbedder(32), WithLocation(time.UTC), WithClock(clock))

	seg, err := engine.UpdateSegmentsForChat(ctx, chatID)
	require.NoError(t, err)
	require.NotNil(t, seg)
	assert.Equal(t, "2024-03-02", seg.DateKey())
	assert.Equal(t, 2, seg.MessageCount)

	_, err = store.SaveMessage(ctx, &models.ChatMessage{
		ChatID: chatID, Content: "Noch eine Frage", IsUser: true, Timestamp: day2.Add(15 * time.Hour),
	})
	require.NoError(t, err)

	updated, err := engine.UpdateSegmentsForChat(ctx, chatID)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, seg.ID, updated.ID)
	assert.Equal(t, 3, updated.MessageCount)
	assert.Contains(t, updated.CombinedContent, "[Anna]: Noch eine Frage")

	stored, err := store.GetSegmentsForChat(ctx, chatID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestUpdateSegmentsForChat_NoMessagesToday(t *testing.T) {
	store := newStore(t)
	chatID := seedChat(t, store, twoDayChat()...)
	clock := func() time.Time { return day2.AddDate(0, 0, 5) }
	engine := NewEngine(store, embedding.NewHashEmbedder(32), WithLocation(time.UTC), WithClock(clock))

	seg, err := engine.UpdateSegmentsForChat(context.Background(), chatID)
	require.NoError(t, err)
	assert.Nil(t, seg)

	stored, err := store.GetSegmentsForChat(context.Background(), chatID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCreateThematicSegments(t *testing.T) {
	store := newStore(t)
	chatID := seedChat(t, store,
		msg(0, "invoice wrong", true, day1.Add(time.Hour)),
		msg(0, "password reset", true, day1.Add(2*time.Hour)),
		msg(0, "invoice amount", true, day2.Add(time.Hour)),
		msg(0, "invoice again", false, day2.Add(2*time.Hour)),
	)
	emb := topicEmbedder{
		"invoice wrong":  {1, 0, 0},
		"invoice amount": {0.9, 0.1, 0},
		"invoice again":  {0.95, 0.05, 0},
		"password reset": {0, 1, 0},
	}
	engine := NewEngine(store, emb, WithLocation(time.UTC))

	segs, err := engine.CreateThematicSegments(context.Background(), chatID, 0)
	require.NoError(t, err)
	require.Len(t, segs, 2)

	invoice := segs[0]
	assert.Equal(t, 3, invoice.MessageCount)
	assert.Equal(t, "2024-03-02", invoice.DateKey())
	assert.Equal(t, "Anna - 02.03.2024: invoice wrong", invoice.Title)
	assert.Zero(t, invoice.ID)

	assert.Equal(t, 1, segs[1].MessageCount)
	assert.Equal(t, "2024-03-01", segs[1].DateKey())

	stored, err := store.GetSegmentsForChat(context.Background(), chatID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCreateThematicSegments_DateTieUsesFirstDay(t *testing.T) {
	store := newStore(t)
	chatID := seedChat(t, store,
		msg(0, "a", true, day1.Add(time.Hour)),
		msg(0, "b", true, day2.Add(time.Hour)),
	)
	emb := topicEmbedder{"a": {1, 0, 0}, "b": {1, 0, 0}}
	engine := NewEngine(store, emb, WithLocation(time.UTC))

	segs, err := engine.CreateThematicSegments(context.Background(), chatID, 0.9)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "2024-03-01", segs[0].DateKey())
}

func TestCreateThematicSegments_EmbeddingFailureSingletons(t *testing.T) {
	store := newStore(t)
	chatID := seedChat(t, store, twoDayChat()...)
	engine := NewEngine(store, failingEmbedder{}, WithLocation(time.UTC))

	segs, err := engine.CreateThematicSegments(context.Background(), chatID, 0.5)
	require.NoError(t, err)
	assert.Len(t, segs, 5)
}
