// Package embedding holds vector helpers shared by the embedders and stores.
package embedding

import "math"

// Normalize returns a copy of v scaled to unit L2 length. Zero vectors are
// returned unchanged.
func Normalize(v []float64) []float64 {
	norm := math.Sqrt(Dot(v, v))
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i := range v {
		out[i] = v[i] / norm
	}
	return out
}

// Dot returns the inner product over the shared prefix of a and b.
func Dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}

// Cosine returns the cosine similarity of a and b, or 0 if either is zero.
func Cosine(a, b []float64) float64 {
	na := math.Sqrt(Dot(a, a))
	nb := math.Sqrt(Dot(b, b))
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}
