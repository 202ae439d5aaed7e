package descriptor

import "math/bits"

const (
	lbpPoints = 8
	lbpBins   = lbpPoints + 2 // 9 uniform bins + 1 catch-all
)

// lbpBin maps an 8-bit neighborhood pattern to its histogram bin.
// Uniform patterns (at most two 0/1 transitions around the circle) land in
// bins 0..8 keyed by popcount; everything else collapses into bin 9.
func lbpBin(pattern uint8) int {
	transitions := bits.OnesCount8(pattern ^ ((pattern >> 1) | (pattern << 7)))
	if transitions <= 2 {
		return bits.OnesCount8(pattern)
	}
	return lbpBins - 1
}

// ExtractLBPHistogram computes the 10-bin uniform local binary pattern
// histogram (P=8 neighbors, radius 1), L2-normalized. Texture statistics are
// scale-sensitive, so no resizing happens here.
func ExtractLBPHistogram(g *Gray) []float64 {
	hist := make([]float64, lbpBins)
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			c := g.At(x, y)
			var pattern uint8
			// Neighbors clockwise from the top-left corner of the 3x3 ring.
			if g.At(x-1, y-1) >= c {
				pattern |= 1 << 0
			}
			if g.At(x, y-1) >= c {
				pattern |= 1 << 1
			}
			if g.At(x+1, y-1) >= c {
				pattern |= 1 << 2
			}
			if g.At(x+1, y) >= c {
				pattern |= 1 << 3
			}
			if g.At(x+1, y+1) >= c {
				pattern |= 1 << 4
			}
			if g.At(x, y+1) >= c {
				pattern |= 1 << 5
			}
			if g.At(x-1, y+1) >= c {
				pattern |= 1 << 6
			}
			if g.At(x-1, y) >= c {
				pattern |= 1 << 7
			}
			hist[lbpBin(pattern)]++
		}
	}
	normalizeL2(hist)
	return hist
}
