package services

import (
	"sort"

	"visual-search-platform/internal/descriptor"
	"visual-search-platform/internal/store"
	"visual-search-platform/models"
)

// deepWeight is the fixed share the deep embedding gets whenever it is
// combined with other descriptors; the rest split the remainder evenly.
const deepWeight = 0.5

// fusionWeights assigns a weight to every scored descriptor kind.
// A single descriptor keeps the full weight. With several, the deep
// embedding takes deepWeight when present and the classical descriptors
// share what is left; without it they share everything evenly.
func fusionWeights(kinds []descriptor.Kind) map[descriptor.Kind]float64 {
	weights := make(map[descriptor.Kind]float64, len(kinds))
	n := len(kinds)
	if n == 0 {
		return weights
	}
	if n == 1 {
		weights[kinds[0]] = 1
		return weights
	}

	hasDeep := false
	for _, k := range kinds {
		if k == descriptor.DeepEmbedding {
			hasDeep = true
			break
		}
	}
	if hasDeep {
		rest := (1 - deepWeight) / float64(n-1)
		for _, k := range kinds {
			if k == descriptor.DeepEmbedding {
				weights[k] = deepWeight
			} else {
				weights[k] = rest
			}
		}
	} else {
		even := 1.0 / float64(n)
		for _, k := range kinds {
			weights[k] = even
		}
	}
	return weights
}

// clampScore maps a unit-interval similarity onto the 0-100 scale.
func clampScore(raw float64) float64 {
	s := raw * 100
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

type fusedItem struct {
	photo     *models.Photo
	score     float64
	breakdown map[string]float64
}

// fuseHits merges per-descriptor top-k lists into one ranking. An item
// missing from a descriptor's list contributes 0 for that descriptor.
// Ordering is by fused score descending, ties broken by photo id ascending
// so the ranking is stable across runs.
func fuseHits(perKind map[descriptor.Kind][]store.Hit) []fusedItem {
	kinds := make([]descriptor.Kind, 0, len(perKind))
	for _, k := range descriptor.AllKinds {
		if _, ok := perKind[k]; ok {
			kinds = append(kinds, k)
		}
	}
	weights := fusionWeights(kinds)

	items := make(map[string]*fusedItem)
	for _, k := range kinds {
		w := weights[k]
		for _, hit := range perKind[k] {
			it, ok := items[hit.PhotoID]
			if !ok {
				it = &fusedItem{photo: hit.Photo, breakdown: make(map[string]float64)}
				items[hit.PhotoID] = it
			}
			s := clampScore(hit.Score)
			it.breakdown[k.String()] = s
			it.score += w * s
			if it.photo == nil {
				it.photo = hit.Photo
			}
		}
	}

	out := make([]fusedItem, 0, len(items))
	for _, it := range items {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].photo.PhotoID < out[j].photo.PhotoID
	})
	return out
}

// minMaxRescale maps raw text scores onto [0,1] over the returned batch.
// A batch with no spread collapses to 1 for every hit.
func minMaxRescale(hits []store.Hit) map[string]float64 {
	out := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}
	for _, h := range hits {
		if hi == lo {
			out[h.PhotoID] = 1
		} else {
			out[h.PhotoID] = (h.Score - lo) / (hi - lo)
		}
	}
	return out
}
