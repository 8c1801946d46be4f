// Package encoder provides the dual-encoder embedding model via ONNX, with a
// deterministic mock for tests and an LRU cache for text embeddings.
package encoder

import (
	"context"

	"github.com/hyperjump/umekomi/internal/preprocess"
)

// Model is the opaque embedding function of the dual encoder. Both encode
// methods return one float32 row of dimension Dims per minibatch member, in
// minibatch order. Implementations run inference-only (no training
// machinery) and serialize forward passes internally; callers may invoke
// them from a single goroutine per pipeline but multiple pipelines may share
// one Model.
type Model interface {
	EncodeText(ctx context.Context, batch *preprocess.TextBatch) ([][]float32, error)
	EncodeImage(ctx context.Context, batch *preprocess.ImageBatch) ([][]float32, error)
	Dims() int
	// LogitScale is the model's learned softmax temperature for similarity
	// scores, or 1.0 when the checkpoint does not carry one.
	LogitScale() float64
	Close() error
}
