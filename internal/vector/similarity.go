// Package vector provides similarity helpers for embedding vectors.
package vector

import (
	"fmt"
	"math"
)

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

// Cosine returns dot(a,b) / (|a|*|b|), clamped to [-1, 1] against float
// rounding. Vectors of different or zero dimension are an error; a zero-norm
// vector yields 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("cosine: empty vector")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine: dimension mismatch: %d vs %d", len(a), len(b))
	}
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0, nil
	}
	c := InnerProduct(a, b) / (na * nb)
	return math.Max(-1, math.Min(1, c)), nil
}

// Softmax returns exp(x_i*scale) / sum_j exp(x_j*scale), computed with the
// max subtracted for numerical stability. An empty input returns nil.
func Softmax(xs []float64, scale float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	maxV := math.Inf(-1)
	for _, x := range xs {
		if x*scale > maxV {
			maxV = x * scale
		}
	}
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		out[i] = math.Exp(x*scale - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
