package vector

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	c, err := Cosine([]float32{1, 0}, []float32{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(c-1) > 1e-9 {
		t.Errorf("identical vectors: cosine = %f", c)
	}
	c, _ = Cosine([]float32{1, 0}, []float32{-1, 0})
	if math.Abs(c+1) > 1e-9 {
		t.Errorf("opposite vectors: cosine = %f", c)
	}
	c, _ = Cosine([]float32{1, 0}, []float32{0, 1})
	if math.Abs(c) > 1e-9 {
		t.Errorf("orthogonal vectors: cosine = %f", c)
	}
}

func TestCosineDimensionMismatch(t *testing.T) {
	if _, err := Cosine([]float32{1, 0}, []float32{1, 0, 0}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if _, err := Cosine(nil, []float32{1}); err == nil {
		t.Fatal("expected empty vector error")
	}
}

func TestCosineZeroNorm(t *testing.T) {
	c, err := Cosine([]float32{0, 0}, []float32{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if c != 0 {
		t.Errorf("zero-norm vector: cosine = %f, want 0", c)
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	for _, scale := range []float64{1, 100} {
		out := Softmax([]float64{0.9, 0.1, -0.5, 0.3}, scale)
		var sum float64
		for _, v := range out {
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("scale %v: sum = %f", scale, sum)
		}
	}
}

func TestSoftmaxPreservesOrder(t *testing.T) {
	out := Softmax([]float64{0.2, 0.9, 0.5}, 1)
	if !(out[1] > out[2] && out[2] > out[0]) {
		t.Errorf("softmax should be monotone: %v", out)
	}
}

func TestSoftmaxEmpty(t *testing.T) {
	if Softmax(nil, 1) != nil {
		t.Error("empty input should return nil")
	}
}

func TestSoftmaxLargeScaleStable(t *testing.T) {
	out := Softmax([]float64{1, 0.999}, 1000)
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("softmax overflowed: %v", out)
		}
	}
}
