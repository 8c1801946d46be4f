//go:build cgo
// +build cgo

// ONNX-based dual encoder (requires CGO and the onnxruntime shared library).
package encoder

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/umekomi/internal/preprocess"
	"github.com/hyperjump/umekomi/internal/tuner"
)

// ONNXModel runs the text and image towers of a CLIP-style dual encoder as
// two ONNX sessions. Forward passes are serialized through a mutex: the
// model is a single-owner sequential resource and concurrent Run calls are
// never issued.
type ONNXModel struct {
	textSession  *ort.DynamicAdvancedSession
	imageSession *ort.DynamicAdvancedSession
	dims         int
	logitScale   float64
	mu           sync.Mutex
}

// NewONNXModel creates the dual encoder from the two tower files.
// InitializeEnvironment is called if not already done. The tuner settings
// size the intra/inter-op thread pools and select the execution provider.
func NewONNXModel(textPath, imagePath string, dims int, logitScale float64, settings tuner.Settings) (*ONNXModel, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	if logitScale <= 0 {
		logitScale = 1.0
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if settings.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(settings.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}
	if settings.InterOpThreads > 0 {
		if err := opts.SetInterOpNumThreads(settings.InterOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set inter-op threads: %w", err)
		}
	}
	if settings.Device == tuner.DeviceCUDA {
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("failed to create CUDA provider options: %w", err)
		}
		defer cudaOpts.Destroy()
		if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
			return nil, fmt.Errorf("failed to enable CUDA provider: %w", err)
		}
	}

	textSession, err := ort.NewDynamicAdvancedSession(
		textPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"text_embeds"},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create text session: %w", err)
	}
	imageSession, err := ort.NewDynamicAdvancedSession(
		imagePath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		opts,
	)
	if err != nil {
		_ = textSession.Destroy()
		return nil, fmt.Errorf("failed to create image session: %w", err)
	}

	return &ONNXModel{
		textSession:  textSession,
		imageSession: imageSession,
		dims:         dims,
		logitScale:   logitScale,
	}, nil
}

// EncodeText runs the text tower on a tokenized minibatch.
func (m *ONNXModel) EncodeText(ctx context.Context, batch *preprocess.TextBatch) ([][]float32, error) {
	if batch.Batch == 0 {
		return nil, nil
	}
	shape := ort.NewShape(int64(batch.Batch), int64(batch.SeqLen))
	inputIDs, err := ort.NewTensor(shape, batch.InputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()
	attentionMask, err := ort.NewTensor(shape, batch.AttentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer attentionMask.Destroy()
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(batch.Batch), int64(m.dims)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	m.mu.Lock()
	err = m.textSession.Run(
		[]ort.ArbitraryTensor{inputIDs, attentionMask},
		[]ort.ArbitraryTensor{output},
	)
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("text inference failed: %w", err)
	}
	return splitRows(output.GetData(), batch.Batch, m.dims), nil
}

// EncodeImage runs the image tower on a preprocessed pixel minibatch.
func (m *ONNXModel) EncodeImage(ctx context.Context, batch *preprocess.ImageBatch) ([][]float32, error) {
	if batch.Batch == 0 {
		return nil, nil
	}
	shape := ort.NewShape(int64(batch.Batch), int64(batch.Channels), int64(batch.Height), int64(batch.Width))
	pixels, err := ort.NewTensor(shape, batch.Pixels)
	if err != nil {
		return nil, fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	defer pixels.Destroy()
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(batch.Batch), int64(m.dims)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	m.mu.Lock()
	err = m.imageSession.Run(
		[]ort.ArbitraryTensor{pixels},
		[]ort.ArbitraryTensor{output},
	)
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("image inference failed: %w", err)
	}
	return splitRows(output.GetData(), batch.Batch, m.dims), nil
}

// Dims returns the embedding dimension.
func (m *ONNXModel) Dims() int {
	return m.dims
}

// LogitScale returns the configured softmax temperature.
func (m *ONNXModel) LogitScale() float64 {
	return m.logitScale
}

// Close destroys both sessions.
func (m *ONNXModel) Close() error {
	var err error
	if m.textSession != nil {
		err = m.textSession.Destroy()
		m.textSession = nil
	}
	if m.imageSession != nil {
		if e := m.imageSession.Destroy(); err == nil {
			err = e
		}
		m.imageSession = nil
	}
	return err
}

// CUDAAvailable probes whether the CUDA execution provider can be created.
func CUDAAvailable() bool {
	if err := ort.InitializeEnvironment(); err != nil {
		return false
	}
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return false
	}
	_ = opts.Destroy()
	return true
}

// splitRows copies a flattened [n, dims] matrix into per-row slices.
func splitRows(flat []float32, n, dims int) [][]float32 {
	rows := make([][]float32, n)
	for i := 0; i < n; i++ {
		row := make([]float32, dims)
		copy(row, flat[i*dims:(i+1)*dims])
		rows[i] = row
	}
	return rows
}
