package preprocess

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"strings"

	// Register decoders for the formats the image pipeline accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/hyperjump/umekomi/internal/docs"
)

// Channel statistics of the CLIP training corpus, used to normalize pixels.
var (
	imageMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	imageStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// ImagePreprocessor turns image documents into model-ready pixel tensors.
// Each Preprocess call is stateless given the minibatch, so a single
// preprocessor is shared across pool workers.
type ImagePreprocessor struct {
	// Size is the model's input edge; images are resized so the shortest
	// side is Size, then center-cropped to Size x Size.
	Size int
	// UseDefault applies the resize/normalize transform. When false, raw
	// tensors are passed through with only a float32 cast; the caller is
	// responsible for uniform sizes within a minibatch.
	UseDefault bool
	// HTTPClient fetches http(s) URIs. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Preprocess converts a minibatch of image documents into an ImageBatch.
// Content is read from the tensor, blob, or URI field (in that priority) and
// the document's original content field is never overwritten. A document
// whose content cannot be loaded fails the whole minibatch.
func (p *ImagePreprocessor) Preprocess(ctx context.Context, minibatch []*docs.Document) (*ImageBatch, error) {
	tensors := make([]*docs.Tensor, len(minibatch))
	for i, d := range minibatch {
		t, err := p.loadTensor(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("document %q: %w", d.ID, err)
		}
		tensors[i] = t
	}
	if !p.UseDefault {
		return rawBatch(tensors)
	}

	size := p.Size
	if size <= 0 {
		size = 224
	}
	pixels := make([]float32, 0, len(tensors)*3*size*size)
	for i, t := range tensors {
		chw, err := transformImage(t, size)
		if err != nil {
			return nil, fmt.Errorf("document %q: %w", minibatch[i].ID, err)
		}
		pixels = append(pixels, chw...)
	}
	return &ImageBatch{
		Pixels:   pixels,
		Batch:    len(tensors),
		Channels: 3,
		Height:   size,
		Width:    size,
	}, nil
}

// loadTensor resolves a document's image content to an H x W x 3 tensor
// without mutating the document.
func (p *ImagePreprocessor) loadTensor(ctx context.Context, d *docs.Document) (*docs.Tensor, error) {
	switch {
	case d.Tensor != nil:
		if !d.Tensor.Valid() {
			return nil, fmt.Errorf("tensor data does not match shape %v", d.Tensor.Shape)
		}
		return d.Tensor, nil
	case len(d.Blob) > 0:
		return decodeBlob(d.Blob)
	case d.URI != "":
		blob, err := p.fetchURI(ctx, d.URI)
		if err != nil {
			return nil, err
		}
		return decodeBlob(blob)
	default:
		return nil, fmt.Errorf("no image content")
	}
}

func (p *ImagePreprocessor) fetchURI(ctx context.Context, uri string) ([]byte, error) {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		client := p.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch uri: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch uri: status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	blob, err := os.ReadFile(uri)
	if err != nil {
		return nil, fmt.Errorf("read uri: %w", err)
	}
	return blob, nil
}

// decodeBlob decodes an encoded image (jpeg/png/gif) into an H x W x 3 uint8 tensor.
func decodeBlob(blob []byte) (*docs.Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	h, w := bounds.Dy(), bounds.Dx()
	data := make([]uint8, h*w*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			off := (y*w + x) * 3
			data[off] = uint8(r >> 8)
			data[off+1] = uint8(g >> 8)
			data[off+2] = uint8(b >> 8)
		}
	}
	return &docs.Tensor{Shape: []int{h, w, 3}, DType: docs.DTypeUint8, U8: data}, nil
}

// transformImage resizes the shortest side to size, center-crops to
// size x size, and returns normalized pixels in C x H x W order.
func transformImage(t *docs.Tensor, size int) ([]float32, error) {
	src, err := tensorToRGBA(t)
	if err != nil {
		return nil, err
	}
	sb := src.Bounds()
	h, w := sb.Dy(), sb.Dx()
	if h == 0 || w == 0 {
		return nil, fmt.Errorf("empty image")
	}
	// Scale the shortest side to size, preserving the aspect ratio.
	var nh, nw int
	if h < w {
		nh = size
		nw = int(float64(w) * float64(size) / float64(h))
	} else {
		nw = size
		nh = int(float64(h) * float64(size) / float64(w))
	}
	scaled := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, sb, draw.Over, nil)

	x0 := (nw - size) / 2
	y0 := (nh - size) / 2
	out := make([]float32, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := scaled.PixOffset(x0+x, y0+y)
			for c := 0; c < 3; c++ {
				v := float32(scaled.Pix[off+c]) / 255.0
				out[c*plane+y*size+x] = (v - imageMean[c]) / imageStd[c]
			}
		}
	}
	return out, nil
}

// tensorToRGBA converts an H x W x 3 tensor (uint8 0-255 or float32 0-1)
// into an image for scaling.
func tensorToRGBA(t *docs.Tensor) (*image.RGBA, error) {
	if len(t.Shape) != 3 || t.Shape[2] != 3 {
		return nil, fmt.Errorf("expected H x W x 3 tensor, got shape %v", t.Shape)
	}
	h, w := t.Shape[0], t.Shape[1]
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := (y*w + x) * 3
			dst := img.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				switch t.DType {
				case docs.DTypeUint8:
					img.Pix[dst+c] = t.U8[src+c]
				case docs.DTypeFloat32:
					v := t.F32[src+c]
					if v < 0 {
						v = 0
					} else if v > 1 {
						v = 1
					}
					img.Pix[dst+c] = uint8(v*255 + 0.5)
				default:
					return nil, fmt.Errorf("unsupported dtype %s", t.DType)
				}
			}
			img.Pix[dst+3] = 0xff
		}
	}
	return img, nil
}

// rawBatch stacks tensors with only a float32 cast. Shapes are taken from the
// first tensor; uniformity across the minibatch is a caller precondition.
func rawBatch(tensors []*docs.Tensor) (*ImageBatch, error) {
	if len(tensors) == 0 {
		return &ImageBatch{}, nil
	}
	s := tensors[0].Shape
	if len(s) != 3 {
		return nil, fmt.Errorf("expected rank-3 tensor, got shape %v", s)
	}
	var c, h, w int
	if s[0] == 3 {
		c, h, w = s[0], s[1], s[2]
	} else {
		h, w, c = s[0], s[1], s[2]
	}
	elems := tensors[0].Elems()
	pixels := make([]float32, 0, len(tensors)*elems)
	for _, t := range tensors {
		switch t.DType {
		case docs.DTypeFloat32:
			pixels = append(pixels, t.F32...)
		case docs.DTypeUint8:
			for _, v := range t.U8 {
				pixels = append(pixels, float32(v))
			}
		default:
			return nil, fmt.Errorf("unsupported dtype %s", t.DType)
		}
	}
	return &ImageBatch{Pixels: pixels, Batch: len(tensors), Channels: c, Height: h, Width: w}, nil
}
