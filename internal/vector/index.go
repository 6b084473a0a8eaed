// Package vector provides vector encoding, similarity, and in-process k-NN indexes.
package vector

import (
	"context"
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when a vector does not match the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

func checkDimensions(what string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s: %w: got %d, expected %d", what, ErrDimensionMismatch, got, want)
	}
	return nil
}

func validDimensions(dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("index dimensions must be positive, got %d", dimensions)
	}
	return nil
}

// VectorIndex is an in-process nearest-neighbor index over entity vectors.
// It accelerates stores that have no native vector search; the store remains
// the source of truth and rebuilds the index from persisted vectors.
type VectorIndex interface {
	// Upsert adds the vector for id, replacing any previous vector for the same id.
	Upsert(ctx context.Context, id int64, vec []float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Remove(ctx context.Context, ids ...int64) error
	// Reset drops every vector.
	Reset() error
	Size() int
	Type() string
	Close() error
}

// VectorResult is a single k-NN hit.
type VectorResult struct {
	ID    int64
	Score float64 // cosine similarity
}
