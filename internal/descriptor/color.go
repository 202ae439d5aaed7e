package descriptor

import "image"

const colorBinsPerChannel = 8

// ExtractColorHistogram computes a 24-dimensional color distribution:
// 8 bins per RGB channel, concatenated R then G then B, normalized so the
// components sum to 1. Resolution-independent, so the full image is used.
func ExtractColorHistogram(img *image.NRGBA) []float64 {
	hist := make([]float64, 3*colorBinsPerChannel)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-img.Rect.Min.Y)*img.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			i := (x - img.Rect.Min.X) * 4
			// 256 values over 8 bins, 32 per bin
			hist[int(row[i])>>5]++
			hist[colorBinsPerChannel+(int(row[i+1])>>5)]++
			hist[2*colorBinsPerChannel+(int(row[i+2])>>5)]++
		}
	}
	normalizeL1(hist)
	return hist
}
