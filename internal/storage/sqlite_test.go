package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kaiwa/internal/models"
)

func newTestSQLite(t *testing.T, opts ...Option) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_ChatCRUD(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	contactID, err := store.SaveContact(ctx, &models.Contact{Name: "Anna", Department: "Billing"})
	if err != nil {
		t.Fatal(err)
	}
	chat := &models.Chat{Title: "Invoice question", ContactID: contactID, IsActive: true}
	id, err := store.SaveChat(ctx, chat)
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 || chat.ID != id {
		t.Fatalf("expected id to be assigned, got %d / %d", id, chat.ID)
	}
	if chat.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetChat(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Invoice question" || got.ContactID != contactID || !got.IsActive {
		t.Errorf("got %+v", got)
	}
	if got.HasEmbedding() {
		t.Error("new chat should have no embedding")
	}

	chat.Title = "Renamed"
	chat.Embedding = []float32{0.6, 0.8}
	if _, err := store.SaveChat(ctx, chat); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetChat(ctx, id)
	if got.Title != "Renamed" {
		t.Errorf("expected Renamed, got %s", got.Title)
	}
	if len(got.Embedding) != 2 || got.Embedding[1] != 0.8 {
		t.Errorf("embedding round trip: %v", got.Embedding)
	}

	all, err := store.GetAllChats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 chat, got %d", len(all))
	}
}

func TestSQLiteStorage_AbsentIsNil(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	chat, err := store.GetChat(ctx, 42)
	if err != nil || chat != nil {
		t.Errorf("GetChat: %v, %v", chat, err)
	}
	msg, err := store.GetMessage(ctx, 42)
	if err != nil || msg != nil {
		t.Errorf("GetMessage: %v, %v", msg, err)
	}
	seg, err := store.GetChatSegment(ctx, 42)
	if err != nil || seg != nil {
		t.Errorf("GetChatSegment: %v, %v", seg, err)
	}
	contact, err := store.GetContact(ctx, 42)
	if err != nil || contact != nil {
		t.Errorf("GetContact: %v, %v", contact, err)
	}
	if err := store.DeleteChatSegment(ctx, 42); err != nil {
		t.Errorf("DeleteChatSegment on absent id: %v", err)
	}
}

func TestSQLiteStorage_UpdateMissingIsNotFound(t *testing.T) {
	store := newTestSQLite(t)
	_, err := store.SaveChat(context.Background(), &models.Chat{ID: 99, Title: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_MessagesOrderedByTimestamp(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	chatID, _ := store.SaveChat(ctx, &models.Chat{Title: "c"})
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
		m := &models.ChatMessage{ChatID: chatID, Content: string(rune('a' + i)), Timestamp: base.Add(offset)}
		if _, err := store.SaveMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := store.GetMessagesForChat(ctx, chatID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "b" || msgs[1].Content != "c" || msgs[2].Content != "a" {
		t.Errorf("unexpected order: %s %s %s", msgs[0].Content, msgs[1].Content, msgs[2].Content)
	}
	if !msgs[0].Timestamp.Equal(base) {
		t.Errorf("timestamp round trip: %v", msgs[0].Timestamp)
	}

	chat, _ := store.GetChat(ctx, chatID)
	if len(chat.Messages) != 3 {
		t.Errorf("GetChat should hydrate messages, got %d", len(chat.Messages))
	}
}

func TestSQLiteStorage_Segments(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	chatID, _ := store.SaveChat(ctx, &models.Chat{Title: "c"})
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	m1 := &models.ChatMessage{ChatID: chatID, Content: "Hallo", Timestamp: ts, IsUser: true}
	m2 := &models.ChatMessage{ChatID: chatID, Content: "Rechnung", Timestamp: ts.Add(time.Minute)}
	_, _ = store.SaveMessage(ctx, m1)
	_, _ = store.SaveMessage(ctx, m2)

	seg := &models.ChatSegment{
		ChatID:          chatID,
		SegmentDate:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Messages:        []*models.ChatMessage{m1, m2},
		MessageCount:    2,
		StartTime:       m1.Timestamp,
		EndTime:         m2.Timestamp,
		CombinedContent: "Conversation with: Anna",
		Title:           "Anna - 01.03.2024: Hallo",
		Keywords:        "hallo,rechnung,anna",
		Embedding:       []float32{1, 0, 0},
	}
	id, err := store.SaveChatSegment(ctx, seg)
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.GetChatSegment(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.DateKey() != "2024-03-01" {
		t.Errorf("DateKey = %s", got.DateKey())
	}
	if len(got.Messages) != 2 || got.Messages[0].ID != m1.ID || got.Messages[1].ID != m2.ID {
		t.Errorf("messages not hydrated in order: %+v", got.Messages)
	}
	if got.Keywords != seg.Keywords || got.Title != seg.Title || got.MessageCount != 2 {
		t.Errorf("got %+v", got)
	}

	seg.Title = "updated"
	seg.Embedding = nil
	if _, err := store.SaveChatSegment(ctx, seg); err != nil {
		t.Fatal(err)
	}
	list, err := store.GetSegmentsForChat(ctx, chatID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != id || list[0].Title != "updated" || list[0].HasEmbedding() {
		t.Errorf("update in place failed: %+v", list)
	}

	all, _ := store.GetAllChatSegments(ctx)
	if len(all) != 1 {
		t.Errorf("expected 1 segment, got %d", len(all))
	}

	if err := store.DeleteChatSegment(ctx, id); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.GetChatSegment(ctx, id); got != nil {
		t.Error("expected nil after delete")
	}
}

func TestSQLiteStorage_Counts(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	c, err := store.Counts(ctx)
	if err != nil || c != (Counts{}) {
		t.Errorf("Counts: %v, %+v", err, c)
	}
	chatID, _ := store.SaveChat(ctx, &models.Chat{Title: "x"})
	_, _ = store.SaveMessage(ctx, &models.ChatMessage{ChatID: chatID, Content: "m"})
	c, _ = store.Counts(ctx)
	if c.Chats != 1 || c.Messages != 1 {
		t.Errorf("unexpected counts %+v", c)
	}
}

func TestSQLiteStorage_VectorSearch(t *testing.T) {
	ctx := context.Background()

	plain := newTestSQLite(t)
	if plain.VectorSearchAvailable() {
		t.Error("vector search should be off without an index")
	}
	if err := plain.EnableVectorSearch(ctx); err == nil {
		t.Error("EnableVectorSearch should fail without an index type")
	}

	store := newTestSQLite(t, WithVectorIndex("memory", 2))
	chatID, _ := store.SaveChat(ctx, &models.Chat{Title: "c"})
	near := &models.ChatSegment{ChatID: chatID, SegmentDate: time.Now(), Embedding: []float32{1, 0}}
	far := &models.ChatSegment{ChatID: chatID, SegmentDate: time.Now(), Embedding: []float32{0, 1}}
	_, _ = store.SaveChatSegment(ctx, far)
	_, _ = store.SaveChatSegment(ctx, near)

	if store.VectorSearchAvailable() {
		t.Error("vector search should be off until enabled")
	}
	if _, err := store.NearestSegments(ctx, []float32{1, 0}, 1); err == nil {
		t.Error("expected error before EnableVectorSearch")
	}
	if err := store.EnableVectorSearch(ctx); err != nil {
		t.Fatal(err)
	}

	ids, err := store.NearestSegments(ctx, []float32{1, 0.1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != near.ID || ids[1] != far.ID {
		t.Errorf("nearest order = %v, want [%d %d]", ids, near.ID, far.ID)
	}

	// Saves after enabling are mirrored into the index.
	chat := &models.Chat{Title: "vec", Embedding: []float32{0, 1}}
	_, _ = store.SaveChat(ctx, chat)
	ids, err = store.NearestChats(ctx, []float32{0, 1}, 5)
	if err != nil || len(ids) != 1 || ids[0] != chat.ID {
		t.Errorf("NearestChats = %v, %v", ids, err)
	}

	if err := store.DeleteChatSegment(ctx, near.ID); err != nil {
		t.Fatal(err)
	}
	ids, _ = store.NearestSegments(ctx, []float32{1, 0}, 5)
	if len(ids) != 1 || ids[0] != far.ID {
		t.Errorf("deleted segment still indexed: %v", ids)
	}
}

func TestSQLiteStorage_EmbeddingOnlyUpdates(t *testing.T) {
	store := newTestSQLite(t, WithVectorIndex("memory", 2))
	ctx := context.Background()
	if err := store.EnableVectorSearch(ctx); err != nil {
		t.Fatal(err)
	}

	chat := &models.Chat{Title: "Rechnung", IsActive: true}
	if _, err := store.SaveChat(ctx, chat); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateChatEmbedding(ctx, chat.ID, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetChat(ctx, chat.ID)
	if got.Title != "Rechnung" || !got.IsActive || len(got.Embedding) != 2 {
		t.Errorf("chat after vector update = %+v", got)
	}
	if ids, _ := store.NearestChats(ctx, []float32{1, 0}, 1); len(ids) != 1 || ids[0] != chat.ID {
		t.Errorf("chat vector not mirrored into index: %v", ids)
	}
	if err := store.UpdateChatEmbedding(ctx, 999, []float32{1, 0}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing chat: got %v", err)
	}

	msg := &models.ChatMessage{ChatID: chat.ID, Content: "hallo", Timestamp: time.Now()}
	if _, err := store.SaveMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateMessageEmbedding(ctx, msg.ID, []float32{0, 1}); err != nil {
		t.Fatal(err)
	}
	if m, _ := store.GetMessage(ctx, msg.ID); m.Content != "hallo" || len(m.Embedding) != 2 {
		t.Errorf("message after vector update = %+v", m)
	}
	if err := store.UpdateMessageEmbedding(ctx, 999, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing message: got %v", err)
	}

	seg := &models.ChatSegment{ChatID: chat.ID, SegmentDate: time.Now(), CombinedContent: "v1"}
	if _, err := store.SaveChatSegment(ctx, seg); err != nil {
		t.Fatal(err)
	}
	written, err := store.UpdateSegmentEmbedding(ctx, seg.ID, "v0", []float32{1, 0})
	if err != nil || written {
		t.Errorf("stale content must not be written: written=%v err=%v", written, err)
	}
	if s, _ := store.GetChatSegment(ctx, seg.ID); s.HasEmbedding() {
		t.Error("stale write reached the row")
	}
	written, err = store.UpdateSegmentEmbedding(ctx, seg.ID, "v1", []float32{1, 0})
	if err != nil || !written {
		t.Fatalf("current content: written=%v err=%v", written, err)
	}
	if s, _ := store.GetChatSegment(ctx, seg.ID); s.CombinedContent != "v1" || len(s.Embedding) != 2 {
		t.Errorf("segment after vector update = %+v", s)
	}
}

func TestSQLiteStorage_SaveDuringRebuildIsIndexed(t *testing.T) {
	store := newTestSQLite(t, WithVectorIndex("memory", 2))
	ctx := context.Background()
	if err := store.EnableVectorSearch(ctx); err != nil {
		t.Fatal(err)
	}

	// Hold the index the way a rebuild does after its table scan, before it flips enabled.
	v := store.vectors
	v.mu.Lock()
	v.enabled.Store(false)
	done := make(chan struct{})
	go func() {
		defer close(done)
		v.sync(ctx, store.logger, kindSegment, 42, []float32{1, 0})
	}()
	time.Sleep(20 * time.Millisecond)
	v.enabled.Store(true)
	v.mu.Unlock()
	<-done

	ids, err := store.NearestSegments(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != 42 {
		t.Errorf("save racing a rebuild was dropped from the index: %v", ids)
	}
}
