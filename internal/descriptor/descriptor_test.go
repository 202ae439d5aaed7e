package descriptor

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

func flatImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func checkerboard(w, h, square int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/square+y/square)%2 == 0 {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{A: 255})
			}
		}
	}
	return img
}

func l2Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func TestColorHistogramDimsAndSum(t *testing.T) {
	hist := ExtractColorHistogram(checkerboard(64, 64, 8))
	if len(hist) != 24 {
		t.Fatalf("expected 24 dims, got %d", len(hist))
	}
	var sum float64
	for _, v := range hist {
		if v < 0 {
			t.Fatalf("negative bin value %f", v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("expected histogram to sum to 1, got %f", sum)
	}
}

func TestColorHistogramFlatImage(t *testing.T) {
	// Pure red 200: all mass in red bin 6, plus green/blue bin 0
	hist := ExtractColorHistogram(flatImage(32, 32, color.NRGBA{R: 200, A: 255}))
	third := 1.0 / 3.0
	if math.Abs(hist[200>>5]-third) > 1e-9 {
		t.Fatalf("expected red bin to hold 1/3, got %f", hist[200>>5])
	}
	if math.Abs(hist[8]-third) > 1e-9 || math.Abs(hist[16]-third) > 1e-9 {
		t.Fatalf("expected green/blue zero bins to hold 1/3 each, got %f / %f", hist[8], hist[16])
	}
}

func TestLBPHistogram(t *testing.T) {
	hist := ExtractLBPHistogram(ToGray(checkerboard(64, 64, 4)))
	if len(hist) != 10 {
		t.Fatalf("expected 10 dims, got %d", len(hist))
	}
	if math.Abs(l2Norm(hist)-1) > 1e-9 {
		t.Fatalf("expected unit L2 norm, got %f", l2Norm(hist))
	}
}

func TestLBPUniformBinMapping(t *testing.T) {
	cases := []struct {
		pattern uint8
		bin     int
	}{
		{0b00000000, 0}, // no set bits
		{0b11111111, 8}, // all set
		{0b00001111, 4}, // one run of 4
		{0b01010101, 9}, // alternating, non-uniform
	}
	for _, c := range cases {
		if got := lbpBin(c.pattern); got != c.bin {
			t.Fatalf("pattern %08b: expected bin %d, got %d", c.pattern, c.bin, got)
		}
	}
}

func TestHOGDims(t *testing.T) {
	hist := ExtractHOG(checkerboard(200, 150, 16))
	if len(hist) != 81 {
		t.Fatalf("expected 81 dims, got %d", len(hist))
	}
	if math.Abs(l2Norm(hist)-1) > 1e-9 {
		t.Fatalf("expected unit L2 norm, got %f", l2Norm(hist))
	}
}

func TestHOGFlatImageStaysZero(t *testing.T) {
	hist := ExtractHOG(flatImage(64, 64, color.NRGBA{R: 128, G: 128, B: 128, A: 255}))
	if len(hist) != 81 {
		t.Fatalf("expected 81 dims, got %d", len(hist))
	}
	if l2Norm(hist) != 0 {
		t.Fatalf("flat image should produce a zero histogram, norm %f", l2Norm(hist))
	}
}

func TestEdgeHistogram(t *testing.T) {
	// Left half black, right half white: one dominant vertical edge
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if x >= 32 {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{A: 255})
			}
		}
	}
	hist := ExtractEdgeHistogram(ToGray(img))
	if len(hist) != 64 {
		t.Fatalf("expected 64 dims, got %d", len(hist))
	}
	if math.Abs(l2Norm(hist)-1) > 1e-9 {
		t.Fatalf("expected unit L2 norm, got %f", l2Norm(hist))
	}
	// The gradient points in +x (theta = 0), which lands in bin 32
	maxBin := 0
	for i, v := range hist {
		if v > hist[maxBin] {
			maxBin = i
		}
	}
	if maxBin != 32 {
		t.Fatalf("expected dominant bin 32 for a vertical edge, got %d", maxBin)
	}
}

func TestKeypointDescriptor(t *testing.T) {
	vec, err := ExtractKeypointDescriptor(ToGray(checkerboard(128, 128, 16)))
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}
	if len(vec) != 128 {
		t.Fatalf("expected 128 dims, got %d", len(vec))
	}
	if math.Abs(l2Norm(vec)-1) > 1e-9 {
		t.Fatalf("expected unit L2 norm, got %f", l2Norm(vec))
	}
}

func TestKeypointDescriptorFlatImage(t *testing.T) {
	_, err := ExtractKeypointDescriptor(ToGray(flatImage(64, 64, color.NRGBA{R: 100, G: 100, B: 100, A: 255})))
	if !errors.Is(err, ErrNoKeypoints) {
		t.Fatalf("expected ErrNoKeypoints, got %v", err)
	}
}

func TestKindFieldsAndDims(t *testing.T) {
	expect := map[Kind]struct {
		field string
		dims  int
	}{
		DeepEmbedding:   {"vgg_features", 0},
		ColorHistogram:  {"color_histogram", 24},
		TexturePattern:  {"lbp_features", 10},
		GradientShape:   {"hog_features", 81},
		EdgeOrientation: {"edge_histogram", 64},
		LocalKeypoints:  {"sift_features", 128},
	}
	for k, want := range expect {
		if k.Field() != want.field {
			t.Fatalf("%s: expected field %s, got %s", k, want.field, k.Field())
		}
		if k.Dims() != want.dims {
			t.Fatalf("%s: expected dims %d, got %d", k, want.dims, k.Dims())
		}
	}
}

func TestParseSet(t *testing.T) {
	s, err := ParseSet([]string{"vgg", "color"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !s.Has(DeepEmbedding) || !s.Has(ColorHistogram) || s.Has(TexturePattern) {
		t.Fatalf("unexpected set contents: %s", s)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 kinds, got %d", s.Len())
	}

	all, err := ParseSet(nil)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if all != DefaultSet || all.Len() != 6 {
		t.Fatalf("empty list should yield all descriptors, got %s", all)
	}

	if _, err := ParseSet([]string{"bogus"}); err == nil {
		t.Fatal("expected error for unknown descriptor name")
	}
}
