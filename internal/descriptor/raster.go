package descriptor

import (
	"errors"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// ErrNoKeypoints is returned by the keypoint extractor when the detector
// finds nothing to describe. Callers must treat it as "descriptor absent",
// never substitute a zero vector.
var ErrNoKeypoints = errors.New("no keypoints detected")

// Gray holds a grayscale raster as float64 luma values in [0,255].
type Gray struct {
	Pix  []float64
	W, H int
}

// At returns the luma at (x, y). Coordinates are clamped to the raster,
// which gives the nearest-edge padding the window operators rely on.
func (g *Gray) At(x, y int) float64 {
	if x < 0 {
		x = 0
	} else if x >= g.W {
		x = g.W - 1
	}
	if y < 0 {
		y = 0
	} else if y >= g.H {
		y = g.H - 1
	}
	return g.Pix[y*g.W+x]
}

// ToGray converts an RGB raster to grayscale using Rec.601 luma weights.
func ToGray(img *image.NRGBA) *Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	g := &Gray{Pix: make([]float64, w*h), W: w, H: h}
	for y := 0; y < h; y++ {
		row := img.Pix[(y+b.Min.Y-img.Rect.Min.Y)*img.Stride:]
		for x := 0; x < w; x++ {
			i := (x + b.Min.X - img.Rect.Min.X) * 4
			r := float64(row[i])
			gr := float64(row[i+1])
			bl := float64(row[i+2])
			g.Pix[y*w+x] = 0.299*r + 0.587*gr + 0.114*bl
		}
	}
	return g
}

// Resize scales the image to w x h with bilinear interpolation.
func Resize(img *image.NRGBA, w, h int) *image.NRGBA {
	if img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// normalizeL2 scales the vector to unit Euclidean norm in place.
// A zero vector is left untouched.
func normalizeL2(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] /= n
	}
}

// normalizeL1 scales the vector so its components sum to 1 in place.
// A zero vector is left untouched.
func normalizeL1(v []float64) {
	var sum float64
	for _, x := range v {
		sum += math.Abs(x)
	}
	if sum == 0 {
		return
	}
	for i := range v {
		v[i] /= sum
	}
}
