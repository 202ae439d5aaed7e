package descriptor

import (
	"math"
	"sort"
)

const (
	maxKeypoints     = 100
	keypointPatch    = 16 // square patch around each keypoint
	patchSubcells    = 4  // 4x4 spatial grid over the patch
	patchBins        = 4  // orientation bins per subcell
	keypointDescDims = patchSubcells * patchSubcells * patchBins

	harrisK         = 0.04
	harrisThreshold = 0.01 // relative to the strongest response
)

type keypoint struct {
	x, y     int
	response float64
}

// detectKeypoints finds Harris corners: structure-tensor responses with a
// 3x3 smoothing window, non-maximum suppression, and a threshold relative to
// the strongest corner. At most maxKeypoints survive, strongest first.
// Corners closer than half a patch to the border are discarded since no full
// descriptor window fits around them.
func detectKeypoints(g *Gray) []keypoint {
	w, h := g.W, g.H
	ixx := make([]float64, w*h)
	iyy := make([]float64, w*h)
	ixy := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := (g.At(x+1, y) - g.At(x-1, y)) / 2
			dy := (g.At(x, y+1) - g.At(x, y-1)) / 2
			ixx[y*w+x] = dx * dx
			iyy[y*w+x] = dy * dy
			ixy[y*w+x] = dx * dy
		}
	}

	resp := make([]float64, w*h)
	maxResp := 0.0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var sxx, syy, sxy float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					i := (y+dy)*w + (x + dx)
					sxx += ixx[i]
					syy += iyy[i]
					sxy += ixy[i]
				}
			}
			det := sxx*syy - sxy*sxy
			trace := sxx + syy
			r := det - harrisK*trace*trace
			resp[y*w+x] = r
			if r > maxResp {
				maxResp = r
			}
		}
	}
	if maxResp <= 0 {
		return nil
	}

	margin := keypointPatch / 2
	threshold := harrisThreshold * maxResp
	var kps []keypoint
	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {
			r := resp[y*w+x]
			if r < threshold {
				continue
			}
			localMax := true
			for dy := -1; dy <= 1 && localMax; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if (dx != 0 || dy != 0) && resp[(y+dy)*w+(x+dx)] > r {
						localMax = false
						break
					}
				}
			}
			if localMax {
				kps = append(kps, keypoint{x: x, y: y, response: r})
			}
		}
	}

	sort.Slice(kps, func(i, j int) bool { return kps[i].response > kps[j].response })
	if len(kps) > maxKeypoints {
		kps = kps[:maxKeypoints]
	}
	return kps
}

// describeKeypoint builds a 64-dimensional gradient descriptor for the 16x16
// patch centered on the keypoint: a 4x4 subcell grid, each subcell holding a
// 4-bin histogram of gradient orientations weighted by magnitude.
func describeKeypoint(g *Gray, kp keypoint) []float64 {
	desc := make([]float64, keypointDescDims)
	half := keypointPatch / 2
	cellSize := keypointPatch / patchSubcells
	binWidth := 2 * math.Pi / patchBins
	for py := 0; py < keypointPatch; py++ {
		for px := 0; px < keypointPatch; px++ {
			x := kp.x - half + px
			y := kp.y - half + py
			dx := g.At(x+1, y) - g.At(x-1, y)
			dy := g.At(x, y+1) - g.At(x, y-1)
			mag := math.Hypot(dx, dy)
			if mag == 0 {
				continue
			}
			theta := math.Atan2(dy, dx)
			bin := int((theta + math.Pi) / binWidth)
			if bin >= patchBins {
				bin = patchBins - 1
			}
			cell := (py/cellSize)*patchSubcells + px/cellSize
			desc[cell*patchBins+bin] += mag
		}
	}
	return desc
}

// rootNormalize applies the RootSIFT transform in place: L1-normalize the
// descriptor, then take the square root of every component. The result is
// unit-L2 by construction.
func rootNormalize(desc []float64) {
	normalizeL1(desc)
	for i, v := range desc {
		desc[i] = math.Sqrt(v)
	}
}

// ExtractKeypointDescriptor detects local keypoints and pools their
// root-normalized patch descriptors into a fixed 128-dimensional vector:
// the per-dimension mean concatenated with the per-dimension standard
// deviation, L2-normalized. Returns ErrNoKeypoints when the detector finds
// nothing; a zero vector is never fabricated.
func ExtractKeypointDescriptor(g *Gray) ([]float64, error) {
	kps := detectKeypoints(g)
	if len(kps) == 0 {
		return nil, ErrNoKeypoints
	}

	descs := make([][]float64, 0, len(kps))
	for _, kp := range kps {
		d := describeKeypoint(g, kp)
		rootNormalize(d)
		descs = append(descs, d)
	}

	n := float64(len(descs))
	mean := make([]float64, keypointDescDims)
	for _, d := range descs {
		for i, v := range d {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= n
	}

	std := make([]float64, keypointDescDims)
	for _, d := range descs {
		for i, v := range d {
			diff := v - mean[i]
			std[i] += diff * diff
		}
	}
	for i := range std {
		std[i] = math.Sqrt(std[i] / n)
	}

	pooled := make([]float64, 0, 2*keypointDescDims)
	pooled = append(pooled, mean...)
	pooled = append(pooled, std...)
	normalizeL2(pooled)
	return pooled, nil
}
