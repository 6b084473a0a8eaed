package vector

import (
	"encoding/binary"
	"math"
)

const float32Size = 4

// EncodeFloat32s serializes v as contiguous little-endian float32 values.
// A nil or empty vector encodes to nil so that "no vector" stays distinguishable.
func EncodeFloat32s(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	out := make([]byte, len(v)*float32Size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*float32Size:], math.Float32bits(f))
	}
	return out
}

// DecodeFloat32s is the inverse of EncodeFloat32s. Trailing bytes that do not
// form a whole float are ignored.
func DecodeFloat32s(b []byte) []float32 {
	n := len(b) / float32Size
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*float32Size:]))
	}
	return out
}
