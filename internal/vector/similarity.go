package vector

import "math"

// Cosine returns the cosine similarity of a and b in [-1, 1].
// It returns 0 when either vector is empty, lengths differ, or a magnitude is zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// rounding can push parallel vectors slightly past 1
	return math.Max(-1, math.Min(1, sim))
}

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of x. A zero vector is returned as a zero copy.
func Normalize(x []float32) []float32 {
	out := make([]float32, len(x))
	copy(out, x)
	norm := L2Norm(x)
	if norm == 0 {
		return out
	}
	inv := 1 / norm
	for i := range out {
		out[i] = float32(float64(out[i]) * inv)
	}
	return out
}
