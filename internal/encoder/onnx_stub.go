//go:build !cgo
// +build !cgo

package encoder

import (
	"context"
	"errors"

	"github.com/hyperjump/umekomi/internal/preprocess"
	"github.com/hyperjump/umekomi/internal/tuner"
)

// ONNXModel stub type when built without CGO (see onnx.go for the real implementation).
type ONNXModel struct{}

// NewONNXModel returns an error when built without CGO (ONNX not available).
func NewONNXModel(_, _ string, _ int, _ float64, _ tuner.Settings) (*ONNXModel, error) {
	return nil, errors.New("ONNX model requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

// CUDAAvailable always reports false without CGO.
func CUDAAvailable() bool {
	return false
}

var errNoCGO = errors.New("ONNX model requires CGO")

func (m *ONNXModel) EncodeText(context.Context, *preprocess.TextBatch) ([][]float32, error) {
	return nil, errNoCGO
}

func (m *ONNXModel) EncodeImage(context.Context, *preprocess.ImageBatch) ([][]float32, error) {
	return nil, errNoCGO
}

func (m *ONNXModel) Dims() int { return 0 }

func (m *ONNXModel) LogitScale() float64 { return 1.0 }

func (m *ONNXModel) Close() error { return nil }
