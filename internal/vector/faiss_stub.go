//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"errors"
)

const faissCompiled = false

// ErrFAISSUnavailable is returned by every FAISSIndex method in builds without the faiss tag.
var ErrFAISSUnavailable = errors.New("FAISS support not compiled in: build with -tags=faiss and CGO_ENABLED=1")

// FAISSIndex is a placeholder so callers compile without FAISS.
type FAISSIndex struct{}

func NewFAISSIndex(int) (*FAISSIndex, error) { return nil, ErrFAISSUnavailable }

func (*FAISSIndex) Upsert(context.Context, int64, []float32) error { return ErrFAISSUnavailable }

func (*FAISSIndex) Search(context.Context, []float32, int) ([]*VectorResult, error) {
	return nil, ErrFAISSUnavailable
}

func (*FAISSIndex) Remove(context.Context, ...int64) error { return ErrFAISSUnavailable }
func (*FAISSIndex) Reset() error { return ErrFAISSUnavailable }
func (*FAISSIndex) Size() int { return 0 }
func (*FAISSIndex) Close() error { return nil }
func (*FAISSIndex) Type() string { return string(IndexTypeFAISS) }
