// Package docs defines the document model shared by the encode and rank pipelines.
package docs

import "github.com/google/uuid"

// Score names set by the rank operation.
const (
	ScoreCLIP       = "clip_score"
	ScoreCLIPCosine = "clip_score_cosine"
)

// DType identifies the element type of a Tensor.
type DType string

const (
	DTypeUint8   DType = "uint8"
	DTypeFloat32 DType = "float32"
)

// Tensor is a dense array with an explicit shape and dtype. Raw image
// tensors are H x W x 3; model-ready pixel tensors are 3 x H x W float32.
// Exactly one of U8 and F32 is populated, matching DType.
type Tensor struct {
	Shape []int
	DType DType
	U8    []uint8
	F32   []float32
}

// Elems returns the number of elements implied by the shape.
func (t *Tensor) Elems() int {
	if t == nil || len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Valid reports whether the data length matches the shape and dtype.
func (t *Tensor) Valid() bool {
	if t == nil {
		return false
	}
	n := t.Elems()
	switch t.DType {
	case DTypeUint8:
		return len(t.U8) == n && t.F32 == nil
	case DTypeFloat32:
		return len(t.F32) == n && t.U8 == nil
	default:
		return false
	}
}

// Document is the unit of work for encode and rank. Content is a tagged
// union: at most one of Text, Tensor, Blob, URI is populated. The pipeline
// mutates documents in place (Embedding, Scores, Matches order) and never
// retains them past the call that produced them; callers needing an
// immutable input must copy before calling.
type Document struct {
	ID        string
	Text      string
	Tensor    *Tensor
	Blob      []byte
	URI       string
	Embedding []float32
	Matches   []*Document
	Scores    map[string]float64
}

// EnsureID assigns a generated ID when the caller did not set one.
func (d *Document) EnsureID() {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
}

// HasContent reports whether any content field is populated.
func (d *Document) HasContent() bool {
	return d.Text != "" || d.Tensor != nil || len(d.Blob) > 0 || d.URI != ""
}

// HasEmbedding reports whether an embedding has been computed.
func (d *Document) HasEmbedding() bool {
	return len(d.Embedding) > 0
}

// SetScore records a named score, allocating the map on first use.
func (d *Document) SetScore(name string, value float64) {
	if d.Scores == nil {
		d.Scores = make(map[string]float64, 2)
	}
	d.Scores[name] = value
}

// Score returns the named score and whether it was set.
func (d *Document) Score(name string) (float64, bool) {
	v, ok := d.Scores[name]
	return v, ok
}
