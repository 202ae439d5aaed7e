package descriptor

import "math"

const edgeBins = 64

// ExtractEdgeHistogram computes a 64-bin histogram of Sobel edge directions
// over the full signed range [-pi, pi], each edge weighted by its gradient
// magnitude, L2-normalized.
func ExtractEdgeHistogram(g *Gray) []float64 {
	hist := make([]float64, edgeBins)
	binWidth := 2 * math.Pi / edgeBins
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			// Sobel 3x3
			gx := -g.At(x-1, y-1) + g.At(x+1, y-1) +
				-2*g.At(x-1, y) + 2*g.At(x+1, y) +
				-g.At(x-1, y+1) + g.At(x+1, y+1)
			gy := -g.At(x-1, y-1) - 2*g.At(x, y-1) - g.At(x+1, y-1) +
				g.At(x-1, y+1) + 2*g.At(x, y+1) + g.At(x+1, y+1)
			mag := math.Hypot(gx, gy)
			if mag == 0 {
				continue
			}
			theta := math.Atan2(gy, gx)
			bin := int((theta + math.Pi) / binWidth)
			if bin >= edgeBins {
				bin = edgeBins - 1
			}
			hist[bin] += mag
		}
	}
	normalizeL2(hist)
	return hist
}
