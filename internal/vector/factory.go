package vector

import "fmt"

// IndexType names an in-process k-NN index implementation.
type IndexType string

const (
	// IndexTypeNone disables the in-process index; stores fall back to scanning.
	IndexTypeNone IndexType = ""
	// IndexTypeMemory scans every stored vector. Fine up to tens of thousands of segments.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS uses FAISS inner-product search. Needs -tags=faiss and libfaiss_c.
	IndexTypeFAISS IndexType = "faiss"
)

// ParseIndexType validates a configured index type.
func ParseIndexType(s string) (IndexType, error) {
	switch t := IndexType(s); t {
	case IndexTypeNone, IndexTypeMemory, IndexTypeFAISS:
		return t, nil
	default:
		return "", fmt.Errorf("unknown index type: %q (supported: memory, faiss)", s)
	}
}

// Resolve returns the index type that can actually be built in this binary.
// FAISS degrades to memory when it is not compiled in; fellBack reports that case.
func (t IndexType) Resolve() (resolved IndexType, fellBack bool) {
	if t == IndexTypeFAISS && !IsFAISSAvailable() {
		return IndexTypeMemory, true
	}
	return t, false
}

// NewVectorIndex creates one index of the given type. IndexTypeNone is an error:
// callers decide whether to build an index at all.
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory:
		return NewMemoryIndex(dimensions)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %q (supported: memory, faiss)", indexType)
	}
}

// IsFAISSAvailable reports whether FAISS support is compiled in (-tags=faiss).
func IsFAISSAvailable() bool { return faissCompiled }
