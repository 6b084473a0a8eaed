package vector

import (
	"context"
	"testing"
)

func TestParseIndexType(t *testing.T) {
	for _, s := range []string{"", "memory", "faiss"} {
		got, err := ParseIndexType(s)
		if err != nil || string(got) != s {
			t.Errorf("ParseIndexType(%q) = %q, %v", s, got, err)
		}
	}
	if _, err := ParseIndexType("hnsw"); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestIndexTypeResolve(t *testing.T) {
	if got, fellBack := IndexTypeNone.Resolve(); got != IndexTypeNone || fellBack {
		t.Errorf("none: got %q fellBack=%v", got, fellBack)
	}
	if got, fellBack := IndexTypeMemory.Resolve(); got != IndexTypeMemory || fellBack {
		t.Errorf("memory: got %q fellBack=%v", got, fellBack)
	}
	got, fellBack := IndexTypeFAISS.Resolve()
	if IsFAISSAvailable() {
		if got != IndexTypeFAISS || fellBack {
			t.Errorf("faiss compiled in: got %q fellBack=%v", got, fellBack)
		}
	} else if got != IndexTypeMemory || !fellBack {
		t.Errorf("faiss missing: got %q fellBack=%v", got, fellBack)
	}
}

func TestNewVectorIndex_Memory(t *testing.T) {
	idx, err := NewVectorIndex("memory", 3)
	if err != nil {
		t.Fatalf("NewVectorIndex(memory): %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Upsert(ctx, 7, []float32{1, 0, 0}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := idx.Upsert(ctx, 7, []float32{0, 1, 0}); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1 after replacing the same id", idx.Size())
	}
	if idx.Type() != string(IndexTypeMemory) {
		t.Errorf("Type=%s", idx.Type())
	}
}

func TestNewVectorIndex_Errors(t *testing.T) {
	if _, err := NewVectorIndex("unknown", 3); err == nil {
		t.Error("expected error for unknown index type")
	}
	if _, err := NewVectorIndex("", 3); err == nil {
		t.Error("expected error for disabled index type")
	}
	if _, err := NewVectorIndex("memory", 0); err == nil {
		t.Error("expected error for zero dimension")
	}
}
