//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"unsafe"
)

const faissCompiled = true

// FAISSIndex keeps unit-length vectors in a FAISS IndexFlatIP, where inner product
// is cosine similarity. A flat index cannot drop rows cheaply, so replaced and
// removed rows stay behind as tombstones that Search skips.
type FAISSIndex struct {
	mu         sync.RWMutex
	flat       *C.FaissIndexFlatIP
	dimensions int
	rows       int64           // rows appended so far; the next row number
	rowOf      map[int64]int64 // entity id -> live row
	owner      map[int64]int64 // live row -> entity id
}

// NewFAISSIndex creates an empty inner-product index.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if err := validDimensions(dimensions); err != nil {
		return nil, err
	}
	f := &FAISSIndex{dimensions: dimensions}
	if err := f.allocate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FAISSIndex) allocate() error {
	var flat *C.FaissIndexFlatIP
	if C.faiss_IndexFlatIP_new_with(&flat, C.idx_t(f.dimensions)) != 0 {
		return fmt.Errorf("failed to create FAISS index: %w", faissError())
	}
	f.flat = flat
	f.rows = 0
	f.rowOf = make(map[int64]int64)
	f.owner = make(map[int64]int64)
	return nil
}

func (f *FAISSIndex) release() {
	if f.flat != nil {
		C.faiss_Index_free(f.flat)
		f.flat = nil
	}
}

func faissError() error {
	if msg := C.faiss_get_last_error(); msg != nil {
		return errors.New(C.GoString(msg))
	}
	return errors.New("unknown FAISS error")
}

func (f *FAISSIndex) Type() string { return string(IndexTypeFAISS) }

// Upsert appends vec as a new row and tombstones the previous row for id.
func (f *FAISSIndex) Upsert(_ context.Context, id int64, vec []float32) error {
	if err := checkDimensions("upsert", len(vec), f.dimensions); err != nil {
		return err
	}
	row := slices.Clone(vec)

	f.mu.Lock()
	defer f.mu.Unlock()
	if C.faiss_Index_add(f.flat, 1, (*C.float)(unsafe.Pointer(&row[0]))) != 0 {
		return fmt.Errorf("failed to add vector %d: %w", id, faissError())
	}
	if prev, ok := f.rowOf[id]; ok {
		delete(f.owner, prev)
	}
	f.rowOf[id] = f.rows
	f.owner[f.rows] = id
	f.rows++
	return nil
}

// Search returns the k live rows with the highest inner product.
func (f *FAISSIndex) Search(_ context.Context, query []float32, k int) ([]*VectorResult, error) {
	if err := checkDimensions("search", len(query), f.dimensions); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.rowOf) == 0 {
		return nil, nil
	}

	// every tombstone could outrank a live row, so widen the search by their count
	tombstones := int(f.rows) - len(f.rowOf)
	fetch := min(k+tombstones, int(f.rows))
	scores := make([]float32, fetch)
	labels := make([]int64, fetch)
	if C.faiss_Index_search(
		f.flat, 1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(fetch),
		(*C.float)(unsafe.Pointer(&scores[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	) != 0 {
		return nil, fmt.Errorf("FAISS search failed: %w", faissError())
	}

	hits := make([]*VectorResult, 0, k)
	for i, label := range labels {
		if len(hits) == k {
			break
		}
		if id, live := f.owner[label]; live && label >= 0 {
			hits = append(hits, &VectorResult{ID: id, Score: float64(scores[i])})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

// Remove tombstones the rows of the given ids.
func (f *FAISSIndex) Remove(_ context.Context, ids ...int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if row, ok := f.rowOf[id]; ok {
			delete(f.owner, row)
			delete(f.rowOf, id)
		}
	}
	return nil
}

// Reset frees the FAISS index, tombstones included, and allocates an empty one.
func (f *FAISSIndex) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.release()
	return f.allocate()
}

// Size returns the number of live vectors.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rowOf)
}

// Close frees the FAISS index.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.release()
	return nil
}
