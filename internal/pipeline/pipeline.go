package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"visual-search-platform/internal/descriptor"
)

// ErrInvalidImage means the input could not be decoded at all. It is the
// only wholesale pipeline failure; everything past decoding degrades
// per descriptor.
var ErrInvalidImage = errors.New("invalid or undecodable image")

// DeepExtractor produces the deep-embedding vector for raw image bytes.
// Implemented by ai.InferenceClient.
type DeepExtractor interface {
	ExtractFeatures(ctx context.Context, imageData []byte, filename string) ([]float64, error)
}

// Result is the outcome for one descriptor: a vector or the failure that
// prevented it. Failures never carry a zero vector.
type Result struct {
	Vector []float64
	Err    error
}

// Pipeline decodes an image once and fans it out to the enabled descriptor
// extractors. Safe for concurrent use.
type Pipeline struct {
	deep DeepExtractor
}

func NewPipeline(deep DeepExtractor) *Pipeline {
	return &Pipeline{deep: deep}
}

// Decode parses the image bytes and forces a 3-channel RGB raster with
// opaque alpha. Supported formats: JPEG, PNG, GIF, WebP.
func Decode(data []byte) (*image.NRGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty bounds", ErrInvalidImage)
	}
	rgb := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgb, rgb.Bounds(), img, b.Min, draw.Src)
	for i := 3; i < len(rgb.Pix); i += 4 {
		rgb.Pix[i] = 0xFF
	}
	return rgb, nil
}

// Run extracts every descriptor in the set from the image bytes. A failed
// decode fails the whole call with ErrInvalidImage; after that each
// descriptor succeeds or fails on its own and the map always has one entry
// per enabled kind.
func (p *Pipeline) Run(ctx context.Context, imageData []byte, set descriptor.Set) (map[descriptor.Kind]Result, error) {
	if set.IsEmpty() {
		return map[descriptor.Kind]Result{}, nil
	}

	rgb, err := Decode(imageData)
	if err != nil {
		return nil, err
	}

	results := make(map[descriptor.Kind]Result, set.Len())
	var mu sync.Mutex
	var wg sync.WaitGroup

	record := func(k descriptor.Kind, vec []float64, err error) {
		mu.Lock()
		results[k] = Result{Vector: vec, Err: err}
		mu.Unlock()
	}

	// Grayscale is shared by the texture, edge and keypoint extractors.
	var gray *descriptor.Gray
	if set.Has(descriptor.TexturePattern) || set.Has(descriptor.EdgeOrientation) || set.Has(descriptor.LocalKeypoints) {
		gray = descriptor.ToGray(rgb)
	}

	if set.Has(descriptor.DeepEmbedding) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.deep == nil {
				record(descriptor.DeepEmbedding, nil, errors.New("deep extractor not configured"))
				return
			}
			vec, err := p.deep.ExtractFeatures(ctx, imageData, "query.jpg")
			record(descriptor.DeepEmbedding, vec, err)
		}()
	}

	if set.Has(descriptor.ColorHistogram) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(descriptor.ColorHistogram, descriptor.ExtractColorHistogram(rgb), nil)
		}()
	}

	if set.Has(descriptor.TexturePattern) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(descriptor.TexturePattern, descriptor.ExtractLBPHistogram(gray), nil)
		}()
	}

	if set.Has(descriptor.GradientShape) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(descriptor.GradientShape, descriptor.ExtractHOG(rgb), nil)
		}()
	}

	if set.Has(descriptor.EdgeOrientation) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(descriptor.EdgeOrientation, descriptor.ExtractEdgeHistogram(gray), nil)
		}()
	}

	if set.Has(descriptor.LocalKeypoints) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vec, err := descriptor.ExtractKeypointDescriptor(gray)
			record(descriptor.LocalKeypoints, vec, err)
		}()
	}

	wg.Wait()
	return results, nil
}
