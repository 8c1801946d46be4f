package docs

import (
	"encoding/json"
	"fmt"
)

// tensorJSON is the wire form of a Tensor. Uint8 data rides in the blob-style
// base64 field; float32 data as a JSON array.
type tensorJSON struct {
	Shape []int     `json:"shape"`
	DType DType     `json:"dtype"`
	U8    []byte    `json:"data_uint8,omitempty"`
	F32   []float32 `json:"data_float32,omitempty"`
}

type documentJSON struct {
	ID        string             `json:"id,omitempty"`
	Text      string             `json:"text,omitempty"`
	Tensor    *tensorJSON        `json:"tensor,omitempty"`
	Blob      []byte             `json:"blob,omitempty"`
	URI       string             `json:"uri,omitempty"`
	Embedding []float32          `json:"embedding,omitempty"`
	Matches   []*Document        `json:"matches,omitempty"`
	Scores    map[string]float64 `json:"scores,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := documentJSON{
		ID:        d.ID,
		Text:      d.Text,
		Blob:      d.Blob,
		URI:       d.URI,
		Embedding: d.Embedding,
		Matches:   d.Matches,
		Scores:    d.Scores,
	}
	if d.Tensor != nil {
		out.Tensor = &tensorJSON{
			Shape: d.Tensor.Shape,
			DType: d.Tensor.DType,
			U8:    d.Tensor.U8,
			F32:   d.Tensor.F32,
		}
	}
	return json.Marshal(&out)
}

// UnmarshalJSON implements json.Unmarshaler. A document carrying more than
// one content field is rejected so the tagged-union invariant holds from the
// wire boundary inward.
func (d *Document) UnmarshalJSON(data []byte) error {
	var in documentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	populated := 0
	if in.Text != "" {
		populated++
	}
	if in.Tensor != nil {
		populated++
	}
	if len(in.Blob) > 0 {
		populated++
	}
	if in.URI != "" {
		populated++
	}
	if populated > 1 {
		return fmt.Errorf("document %q: more than one content field set", in.ID)
	}
	d.ID = in.ID
	d.Text = in.Text
	d.Blob = in.Blob
	d.URI = in.URI
	d.Embedding = in.Embedding
	d.Matches = in.Matches
	d.Scores = in.Scores
	if in.Tensor != nil {
		d.Tensor = &Tensor{
			Shape: in.Tensor.Shape,
			DType: in.Tensor.DType,
			U8:    in.Tensor.U8,
			F32:   in.Tensor.F32,
		}
		if !d.Tensor.Valid() {
			return fmt.Errorf("document %q: tensor data does not match shape %v dtype %s", in.ID, in.Tensor.Shape, in.Tensor.DType)
		}
	}
	return nil
}
