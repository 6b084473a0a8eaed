package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// DiskCache persists embeddings across restarts, keyed by model and text digest.
type DiskCache struct {
	db *badger.DB
}

type diskEntry struct {
	Model      string    `msgpack:"model"`
	Dimensions int       `msgpack:"dims"`
	Vector     []float32 `msgpack:"vec"`
	CreatedAt  time.Time `msgpack:"created_at"`
}

// OpenDiskCache opens (or creates) a badger-backed cache under dir.
// With inMemory set, dir is ignored and nothing is written to disk.
func OpenDiskCache(dir string, inMemory bool, logger *zap.Logger) (*DiskCache, error) {
	if !inMemory && dir == "" {
		return nil, errors.New("disk cache directory is required")
	}
	opts := badger.DefaultOptions(dir)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.WithLogger(badgerLogger{logger.Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	return &DiskCache{db: db}, nil
}

// Get returns the stored vector for (model, text). Entries with a different
// dimension count are treated as misses.
func (c *DiskCache) Get(model, text string, dims int) ([]float32, bool, error) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(diskKey(model, text))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read embedding cache: %w", err)
	}

	var entry diskEntry
	if err := msgpack.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached embedding: %w", err)
	}
	if entry.Model != model || entry.Dimensions != dims || len(entry.Vector) != dims {
		return nil, false, nil
	}
	return entry.Vector, true, nil
}

// Put stores vec for (model, text).
func (c *DiskCache) Put(model, text string, vec []float32) error {
	raw, err := msgpack.Marshal(&diskEntry{
		Model:      model,
		Dimensions: len(vec),
		Vector:     vec,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(diskKey(model, text), raw)
	})
}

// Close flushes and closes the underlying database.
func (c *DiskCache) Close() error {
	return c.db.Close()
}

func diskKey(model, text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return []byte("emb/" + model + "/" + hex.EncodeToString(sum[:]))
}

// badgerLogger routes badger's internal logging through zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.s.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }
