//go:build faiss && cgo
// +build faiss,cgo

package vector

import (
	"context"
	"testing"
)

func newTestFAISS(t *testing.T, dims int) *FAISSIndex {
	t.Helper()
	idx, err := NewFAISSIndex(dims)
	if err != nil {
		t.Fatalf("NewFAISSIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestFAISSIndex_replacedRowIsTombstoned(t *testing.T) {
	idx := newTestFAISS(t, 3)
	ctx := context.Background()
	for id, v := range map[int64][]float32{1: {1, 0, 0}, 2: {0, 1, 0}} {
		if err := idx.Upsert(ctx, id, v); err != nil {
			t.Fatal(err)
		}
	}
	// segment 1 re-embedded after its messages changed
	if err := idx.Upsert(ctx, 1, []float32{0, 0, 1}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 2 {
		t.Errorf("Size = %d, want 2", idx.Size())
	}

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if h.ID == 1 && h.Score > 0.5 {
			t.Errorf("stale row for id 1 surfaced: %+v", h)
		}
	}
	hits, _ = idx.Search(ctx, []float32{0, 0, 1}, 1)
	if len(hits) != 1 || hits[0].ID != 1 {
		t.Fatalf("expected id 1 on top, got %+v", hits)
	}
}

func TestFAISSIndex_RemoveAndReset(t *testing.T) {
	idx := newTestFAISS(t, 2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, 1, []float32{1, 0})
	_ = idx.Upsert(ctx, 2, []float32{0, 1})
	_ = idx.Remove(ctx, 1)

	hits, _ := idx.Search(ctx, []float32{1, 0}, 2)
	if len(hits) != 1 || hits[0].ID != 2 {
		t.Errorf("expected only id 2, got %+v", hits)
	}
	if err := idx.Reset(); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 0 {
		t.Errorf("Size after reset = %d", idx.Size())
	}
	if hits, _ := idx.Search(ctx, []float32{1, 0}, 1); len(hits) != 0 {
		t.Errorf("expected no hits after reset, got %+v", hits)
	}
}
