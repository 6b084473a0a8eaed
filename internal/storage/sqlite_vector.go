package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/vector"
)

type entityKind int

const (
	kindSegment entityKind = iota
	kindChat
	kindMessage
)

func (k entityKind) String() string {
	switch k {
	case kindChat:
		return "chat"
	case kindMessage:
		return "message"
	default:
		return "segment"
	}
}

var errVectorSearchDisabled = errors.New("native vector search is not enabled")

// vectorIndexes keeps one in-process index per entity kind, mirroring the stored vectors.
// A nil *vectorIndexes means native search was not configured; all methods are then no-ops.
type vectorIndexes struct {
	indexType string
	dims      int

	mu      sync.RWMutex
	indexes map[entityKind]vector.VectorIndex
	enabled atomic.Bool
}

func (v *vectorIndexes) available() bool {
	return v != nil && v.enabled.Load()
}

// rebuild recreates the indexes from every stored vector.
func (v *vectorIndexes) rebuild(ctx context.Context, s *SQLiteStorage) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.enabled.Store(false)
	for _, idx := range v.indexes {
		_ = idx.Close()
	}
	v.indexes = make(map[entityKind]vector.VectorIndex, 3)
	for _, kind := range []entityKind{kindSegment, kindChat, kindMessage} {
		idx, err := vector.NewVectorIndex(v.indexType, v.dims)
		if err != nil {
			return fmt.Errorf("failed to create %s index: %w", kind, err)
		}
		v.indexes[kind] = idx
	}

	tables := map[entityKind]string{
		kindSegment: "chat_segments",
		kindChat:    "chats",
		kindMessage: "chat_messages",
	}
	for kind, table := range tables {
		rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM `+table+` WHERE embedding IS NOT NULL`)
		if err != nil {
			return fmt.Errorf("failed to load %s vectors: %w", kind, err)
		}
		for rows.Next() {
			var id int64
			var emb []byte
			if err := rows.Scan(&id, &emb); err != nil {
				rows.Close()
				return err
			}
			vec := vector.DecodeFloat32s(emb)
			if len(vec) != v.dims {
				continue
			}
			if err := v.indexes[kind].Upsert(ctx, id, vec); err != nil {
				rows.Close()
				return fmt.Errorf("failed to index %s %d: %w", kind, id, err)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
	}
	v.enabled.Store(true)
	return nil
}

// sync mirrors a saved vector into the index; an empty or mis-sized vector removes the entry.
func (v *vectorIndexes) sync(ctx context.Context, logger *zap.Logger, kind entityKind, id int64, vec []float32) {
	if v == nil {
		return
	}
	// Holding the read lock makes a save that races a rebuild wait for it, so the
	// row is mirrored even when the rebuild scan already passed it.
	v.mu.RLock()
	defer v.mu.RUnlock()
	idx := v.indexes[kind]
	if !v.enabled.Load() || idx == nil {
		return
	}

	var err error
	if len(vec) == v.dims {
		err = idx.Upsert(ctx, id, vec)
	} else {
		err = idx.Remove(ctx, id)
	}
	if err != nil {
		// The index no longer mirrors the table; searchers fall back until it is rebuilt.
		v.enabled.Store(false)
		logger.Warn("vector index out of sync, native search disabled",
			zap.String("kind", kind.String()), zap.Int64("id", id), zap.Error(err))
	}
}

func (v *vectorIndexes) nearest(ctx context.Context, kind entityKind, query []float32, k int) ([]int64, error) {
	if !v.available() {
		return nil, errVectorSearchDisabled
	}
	if k <= 0 {
		return nil, nil
	}
	v.mu.RLock()
	idx := v.indexes[kind]
	v.mu.RUnlock()
	if idx == nil {
		return nil, errVectorSearchDisabled
	}
	results, err := idx.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("%s vector search failed: %w", kind, err)
	}
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids, nil
}

func (v *vectorIndexes) close() {
	if v == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.enabled.Store(false)
	for _, idx := range v.indexes {
		_ = idx.Close()
	}
	v.indexes = nil
}

// VectorSearchAvailable reports whether the in-process indexes are built and in sync.
func (s *SQLiteStorage) VectorSearchAvailable() bool {
	return s.vectors.available()
}

// EnableVectorSearch (re)builds the vector indexes from stored vectors.
func (s *SQLiteStorage) EnableVectorSearch(ctx context.Context) error {
	if s.vectors == nil {
		return errVectorSearchDisabled
	}
	if err := s.vectors.rebuild(ctx, s); err != nil {
		return err
	}
	s.logger.Info("native vector search enabled", zap.String("index", s.vectors.indexType))
	return nil
}

// NearestSegments returns segment ids closest to query.
func (s *SQLiteStorage) NearestSegments(ctx context.Context, query []float32, k int) ([]int64, error) {
	return s.vectors.nearest(ctx, kindSegment, query, k)
}

// NearestChats returns chat ids closest to query.
func (s *SQLiteStorage) NearestChats(ctx context.Context, query []float32, k int) ([]int64, error) {
	return s.vectors.nearest(ctx, kindChat, query, k)
}

// NearestMessages returns message ids closest to query.
func (s *SQLiteStorage) NearestMessages(ctx context.Context, query []float32, k int) ([]int64, error) {
	return s.vectors.nearest(ctx, kindMessage, query, k)
}
