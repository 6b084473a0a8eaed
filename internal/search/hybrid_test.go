package search

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/hyperjump/kaiwa/internal/models"
)

func TestHybridSearchChats_MergesSignals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	both := &models.Chat{Title: "Invoice help", Embedding: []float32{0.6, 0.8}}
	other := &models.Chat{Title: "Weather", Embedding: []float32{0, 1}}
	textOnly := &models.Chat{Title: "Misc"}
	for _, c := range []*models.Chat{both, other, textOnly} {
		if _, err := store.SaveChat(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	ts := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	for _, m := range []*models.ChatMessage{
		{ChatID: both.ID, Content: "Hello there", IsUser: true, Timestamp: ts},
		{ChatID: textOnly.ID, Content: "Where is my invoice?", IsUser: true, Timestamp: ts},
	} {
		if _, err := store.SaveMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	engine := NewEngine(store, vecEmbedder{"invoice": {1, 0}})
	ranker := NewHybridRanker(engine, store)
	results := ranker.HybridSearchChats(ctx, "invoice", 10)

	seen := 0
	for _, r := range results {
		if r.Chat.ID != both.ID {
			continue
		}
		seen++
		if math.Abs(r.HybridScore-0.57) > 1e-6 {
			t.Errorf("hybrid score = %f, want 0.57", r.HybridScore)
		}
		if r.MatchType != models.MatchHybrid {
			t.Errorf("match type = %s", r.MatchType)
		}
		if r.MatchedMessages != 0 {
			t.Errorf("matched messages = %d", r.MatchedMessages)
		}
	}
	if seen != 1 {
		t.Fatalf("chat matched by both signals should appear once, got %d", seen)
	}
	if results[0].Chat.ID != both.ID {
		t.Errorf("expected merged chat first, got %q", results[0].Chat.Title)
	}

	var text *models.HybridSearchResult
	for _, r := range results {
		if r.Chat.ID == textOnly.ID {
			text = r
		}
	}
	if text == nil {
		t.Fatal("lexical-only chat missing")
	}
	if text.MatchType != models.MatchText || text.MatchedMessages != 1 {
		t.Errorf("text-only result: %+v", text)
	}
	if text.Snippet != "Where is my invoice?" {
		t.Errorf("snippet = %q", text.Snippet)
	}
}

func TestHybridSearchChats_Limit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, title := range []string{"invoice a", "invoice b", "invoice c"} {
		if _, err := store.SaveChat(ctx, &models.Chat{Title: title}); err != nil {
			t.Fatal(err)
		}
	}
	ranker := NewHybridRanker(NewEngine(store, vecEmbedder{}), store)

	if got := ranker.HybridSearchChats(ctx, "invoice", 2); len(got) != 2 {
		t.Errorf("expected 2 results, got %d", len(got))
	}
	if got := ranker.HybridSearchChats(ctx, "invoice", 0); len(got) != 0 {
		t.Errorf("limit 0 should return nothing, got %d", len(got))
	}
}

func TestHybridSearchSegments_Substring(t *testing.T) {
	store := newTestStore(t)
	ids := seedSegments(t, store, []float32{1, 0}, []float32{0, 1})
	ctx := context.Background()

	seg, err := store.GetChatSegment(ctx, ids[1])
	if err != nil {
		t.Fatal(err)
	}
	seg.Title = "Anna - 02.01.2024: Rechnung"
	seg.Keywords = "rechnung,anna"
	if _, err := store.SaveChatSegment(ctx, seg); err != nil {
		t.Fatal(err)
	}

	ranker := NewHybridRanker(NewEngine(store, vecEmbedder{"rechnung": {1, 0}}), store, WithWeights(0.5, 0.5))
	results := ranker.HybridSearchSegments(ctx, "rechnung", 5)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// 0.5*1.0 vs 0.5*0 + 0.5*0.5
	if results[0].Segment.ID != ids[0] || math.Abs(results[0].SimilarityScore-0.5) > 1e-6 {
		t.Errorf("first: id %d score %f", results[0].Segment.ID, results[0].SimilarityScore)
	}
	if results[1].Segment.ID != ids[1] || results[1].MatchType != models.MatchText {
		t.Errorf("second: id %d type %s", results[1].Segment.ID, results[1].MatchType)
	}
	if len(results[1].MatchedKeywords) != 1 || results[1].MatchedKeywords[0] != "rechnung" {
		t.Errorf("matched keywords = %v", results[1].MatchedKeywords)
	}
}
