package descriptor

import (
	"image"
	"math"
)

const (
	hogWorkingSize     = 128
	hogCellsPerSide    = 3
	hogOrientationBins = 9
	hogDims            = hogCellsPerSide * hogCellsPerSide * hogOrientationBins
)

// ExtractHOG computes an 81-dimensional gradient-shape descriptor: the image
// is resized to 128x128, split into a 3x3 cell grid, and each cell
// accumulates a 9-bin histogram of unsigned gradient orientations weighted by
// gradient magnitude. The concatenated vector is L2-normalized. The working
// size is fixed because the dimensionality depends on the grid.
func ExtractHOG(img *image.NRGBA) []float64 {
	g := ToGray(Resize(img, hogWorkingSize, hogWorkingSize))

	hist := make([]float64, hogDims)
	binWidth := math.Pi / hogOrientationBins
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			dx := g.At(x+1, y) - g.At(x-1, y)
			dy := g.At(x, y+1) - g.At(x, y-1)
			mag := math.Hypot(dx, dy)
			if mag == 0 {
				continue
			}
			// Unsigned orientation folded into [0, pi)
			theta := math.Atan2(dy, dx)
			if theta < 0 {
				theta += math.Pi
			}
			bin := int(theta / binWidth)
			if bin >= hogOrientationBins {
				bin = hogOrientationBins - 1
			}
			cx := x * hogCellsPerSide / g.W
			cy := y * hogCellsPerSide / g.H
			hist[(cy*hogCellsPerSide+cx)*hogOrientationBins+bin] += mag
		}
	}
	normalizeL2(hist)
	return hist
}
