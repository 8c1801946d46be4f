package encoder

import (
	"context"
	"math"

	"github.com/hyperjump/umekomi/internal/preprocess"
	"github.com/hyperjump/umekomi/pkg/utils"
)

// MockModel is a deterministic dual encoder for tests. Embeddings are
// derived from a hash of the minibatch row's content, so identical content
// always yields an identical unit-norm embedding.
type MockModel struct {
	dims       int
	logitScale float64
}

// NewMockModel returns a mock dual encoder with the given dimension and a
// logit scale of 1.0.
func NewMockModel(dims int) *MockModel {
	if dims <= 0 {
		dims = 512
	}
	return &MockModel{dims: dims, logitScale: 1.0}
}

// EncodeText returns a deterministic embedding per row, derived from the
// row's non-padding token IDs.
func (m *MockModel) EncodeText(ctx context.Context, batch *preprocess.TextBatch) ([][]float32, error) {
	out := make([][]float32, batch.Batch)
	for i := 0; i < batch.Batch; i++ {
		var h int64
		off := i * batch.SeqLen
		for j := 0; j < batch.SeqLen; j++ {
			if batch.AttentionMask[off+j] == 0 {
				continue
			}
			h = 31*h + batch.InputIDs[off+j]
		}
		out[i] = m.fromHash(h)
	}
	return out, nil
}

// EncodeImage returns a deterministic embedding per row, derived from the
// row's pixel values.
func (m *MockModel) EncodeImage(ctx context.Context, batch *preprocess.ImageBatch) ([][]float32, error) {
	rowLen := batch.Channels * batch.Height * batch.Width
	out := make([][]float32, batch.Batch)
	for i := 0; i < batch.Batch; i++ {
		var h int64
		for _, v := range batch.Pixels[i*rowLen : (i+1)*rowLen] {
			h = 31*h + int64(math.Float32bits(v))
		}
		out[i] = m.fromHash(h)
	}
	return out, nil
}

func (m *MockModel) fromHash(h int64) []float32 {
	if h < 0 {
		h = -h
	}
	emb := make([]float32, m.dims)
	for i := 0; i < m.dims; i++ {
		emb[i] = float32(math.Sin(float64(h%100003)*float64(i+1))*0.1 + 0.01)
	}
	// Normalize to unit length for cosine similarity
	utils.NormalizeL2(emb)
	return emb
}

// Dims returns the embedding dimension.
func (m *MockModel) Dims() int {
	return m.dims
}

// LogitScale returns the mock's softmax temperature.
func (m *MockModel) LogitScale() float64 {
	return m.logitScale
}

// WithLogitScale sets the softmax temperature (for rank tests).
func (m *MockModel) WithLogitScale(scale float64) *MockModel {
	m.logitScale = scale
	return m
}

// Close is a no-op for MockModel.
func (m *MockModel) Close() error {
	return nil
}
