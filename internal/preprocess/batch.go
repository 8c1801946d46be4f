// Package preprocess converts raw document content into model-ready tensors.
package preprocess

// TextBatch is the model input for a text minibatch: token IDs and attention
// mask flattened row-major as [Batch, SeqLen]. SeqLen is the longest sequence
// in the minibatch after truncation, not a global fixed length.
type TextBatch struct {
	InputIDs      []int64
	AttentionMask []int64
	Batch         int
	SeqLen        int
}

// ImageBatch is the model input for an image minibatch: normalized pixel
// values flattened row-major as [Batch, Channels, Height, Width].
type ImageBatch struct {
	Pixels   []float32
	Batch    int
	Channels int
	Height   int
	Width    int
}
