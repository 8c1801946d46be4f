package preprocess

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/umekomi/internal/docs"
)

func pngBlob(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPreprocessBlob(t *testing.T) {
	p := &ImagePreprocessor{Size: 32, UseDefault: true}
	d := &docs.Document{ID: "b", Blob: pngBlob(t, 48, 64, color.White)}
	batch, err := p.Preprocess(context.Background(), []*docs.Document{d})
	if err != nil {
		t.Fatal(err)
	}
	if batch.Batch != 1 || batch.Channels != 3 || batch.Height != 32 || batch.Width != 32 {
		t.Errorf("batch dims = %+v", batch)
	}
	if len(batch.Pixels) != 3*32*32 {
		t.Errorf("pixels = %d", len(batch.Pixels))
	}
	// Original content must survive untouched.
	if d.Blob == nil || d.Tensor != nil {
		t.Error("document content was mutated by preprocessing")
	}
}

func TestPreprocessTensorUint8(t *testing.T) {
	p := &ImagePreprocessor{Size: 16, UseDefault: true}
	d := &docs.Document{
		ID:     "t",
		Tensor: &docs.Tensor{Shape: []int{20, 20, 3}, DType: docs.DTypeUint8, U8: make([]uint8, 20*20*3)},
	}
	batch, err := p.Preprocess(context.Background(), []*docs.Document{d})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Pixels) != 3*16*16 {
		t.Errorf("pixels = %d", len(batch.Pixels))
	}
}

func TestPreprocessURIFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.png")
	if err := os.WriteFile(path, pngBlob(t, 10, 10, color.Black), 0600); err != nil {
		t.Fatal(err)
	}
	p := &ImagePreprocessor{Size: 8, UseDefault: true}
	d := &docs.Document{ID: "u", URI: path}
	batch, err := p.Preprocess(context.Background(), []*docs.Document{d})
	if err != nil {
		t.Fatal(err)
	}
	if batch.Batch != 1 {
		t.Errorf("Batch = %d", batch.Batch)
	}
	if d.URI != path || d.Tensor != nil {
		t.Error("URI document content was mutated")
	}
}

func TestPreprocessUnreadableURIFailsMinibatch(t *testing.T) {
	p := &ImagePreprocessor{Size: 8, UseDefault: true}
	mb := []*docs.Document{
		{ID: "ok", Blob: pngBlob(t, 4, 4, color.White)},
		{ID: "bad", URI: "/nonexistent/missing.png"},
	}
	if _, err := p.Preprocess(context.Background(), mb); err == nil {
		t.Fatal("expected error for unreadable URI")
	}
}

func TestPreprocessInvalidBlobFailsMinibatch(t *testing.T) {
	p := &ImagePreprocessor{Size: 8, UseDefault: true}
	mb := []*docs.Document{{ID: "bad", Blob: []byte("not an image")}}
	if _, err := p.Preprocess(context.Background(), mb); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPreprocessRawPassthrough(t *testing.T) {
	p := &ImagePreprocessor{Size: 224, UseDefault: false}
	data := make([]float32, 3*8*8)
	for i := range data {
		data[i] = float32(i)
	}
	d := &docs.Document{
		ID:     "raw",
		Tensor: &docs.Tensor{Shape: []int{3, 8, 8}, DType: docs.DTypeFloat32, F32: data},
	}
	batch, err := p.Preprocess(context.Background(), []*docs.Document{d})
	if err != nil {
		t.Fatal(err)
	}
	if batch.Height != 8 || batch.Width != 8 || batch.Channels != 3 {
		t.Errorf("raw dims = %+v", batch)
	}
	// No normalization applied: values pass through as-is.
	if batch.Pixels[10] != 10 {
		t.Errorf("pixel = %f, want 10", batch.Pixels[10])
	}
}

func TestTransformNormalization(t *testing.T) {
	// A pure white image should map every channel to (1 - mean) / std.
	tensor, err := decodeBlob(pngBlob(t, 8, 8, color.White))
	if err != nil {
		t.Fatal(err)
	}
	out, err := transformImage(tensor, 4)
	if err != nil {
		t.Fatal(err)
	}
	for c := 0; c < 3; c++ {
		want := (1 - imageMean[c]) / imageStd[c]
		got := out[c*16]
		if diff := got - want; diff > 0.01 || diff < -0.01 {
			t.Errorf("channel %d: got %f, want %f", c, got, want)
		}
	}
}
