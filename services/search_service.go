package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"visual-search-platform/internal/config"
	"visual-search-platform/internal/descriptor"
	"visual-search-platform/internal/pipeline"
	"visual-search-platform/internal/store"
	"visual-search-platform/models"
)

var (
	// ErrNoDescriptorsEnabled means the request enabled no descriptor at all.
	ErrNoDescriptorsEnabled = errors.New("no descriptors enabled")

	// ErrQueryVectorExtraction means not a single enabled descriptor could be
	// extracted from the query image.
	ErrQueryVectorExtraction = errors.New("query vector extraction failed for every descriptor")

	// ErrSearchTimeout means every descriptor lookup expired before returning.
	ErrSearchTimeout = errors.New("all descriptor lookups timed out")

	// ErrDescriptorLookup means every descriptor lookup failed at the store,
	// even though query extraction succeeded.
	ErrDescriptorLookup = errors.New("all descriptor lookups failed")
)

// SearchResult is one ranked item. Breakdown holds the per-descriptor
// 0-100 scores that went into the fused score.
type SearchResult struct {
	Photo     *models.Photo      `json:"photo"`
	URL       string             `json:"url"`
	Score     float64            `json:"score"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
}

// SearchResponse is the full outcome of one search, including which
// descriptors were dropped on the way (degraded result) and how long the
// whole thing took.
type SearchResponse struct {
	Results            []SearchResult `json:"results"`
	DroppedDescriptors []string       `json:"dropped_descriptors,omitempty"`
	Total              int            `json:"total"`
	ElapsedMS          int64          `json:"elapsed_ms"`
}

// SearchService is the fusion engine: it extracts query descriptors, fans
// out to the store per descriptor, and merges the lists into one ranking.
type SearchService struct {
	store         store.Store
	pipeline      *pipeline.Pipeline
	lookupTimeout time.Duration
	defaultK      int
}

func NewSearchService(st store.Store, pl *pipeline.Pipeline, cfg *config.Config) *SearchService {
	return &SearchService{
		store:         st,
		pipeline:      pl,
		lookupTimeout: time.Duration(cfg.SearchLookupTimeout) * time.Millisecond,
		defaultK:      cfg.DefaultTopK,
	}
}

func (s *SearchService) topK(k int) int {
	if k <= 0 {
		return s.defaultK
	}
	return k
}

// SearchByText runs the fuzzy text query and returns hits with scores
// min-max rescaled onto 0-100 over the batch.
func (s *SearchService) SearchByText(ctx context.Context, text string, k int, filter *store.Filter) (*SearchResponse, error) {
	start := time.Now()
	k = s.topK(k)

	q := BuildTextQuery(text)
	if q == nil {
		return nil, fmt.Errorf("empty text query")
	}

	hits, err := s.store.TextSearch(ctx, q, k, filter)
	if err != nil {
		return nil, err
	}

	rescaled := minMaxRescale(hits)
	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, SearchResult{
			Photo: h.Photo,
			URL:   h.Photo.URL(),
			Score: clampScore(rescaled[h.PhotoID]),
		})
	}

	return &SearchResponse{
		Results:   results,
		Total:     len(results),
		ElapsedMS: time.Since(start).Milliseconds(),
	}, nil
}

// SearchByImage extracts the enabled descriptors from the query image,
// looks each one up concurrently, and fuses the per-descriptor rankings.
func (s *SearchService) SearchByImage(ctx context.Context, imageData []byte, set descriptor.Set, k int, filter *store.Filter) (*SearchResponse, error) {
	start := time.Now()
	k = s.topK(k)

	perKind, dropped, err := s.descriptorHits(ctx, imageData, set, k, filter)
	if err != nil {
		return nil, err
	}

	fused := fuseHits(perKind)
	if len(fused) > k {
		fused = fused[:k]
	}

	results := make([]SearchResult, 0, len(fused))
	for _, it := range fused {
		results = append(results, SearchResult{
			Photo:     it.photo,
			URL:       it.photo.URL(),
			Score:     it.score,
			Breakdown: it.breakdown,
		})
	}

	return &SearchResponse{
		Results:            results,
		DroppedDescriptors: dropped,
		Total:              len(results),
		ElapsedMS:          time.Since(start).Milliseconds(),
	}, nil
}

// SearchHybrid blends the text ranking with the fused image ranking.
// Both sides are brought onto [0,1] first; weights must sum to 1 and
// default to an even split.
func (s *SearchService) SearchHybrid(ctx context.Context, text string, imageData []byte, set descriptor.Set, k int, textWeight float64, filter *store.Filter) (*SearchResponse, error) {
	start := time.Now()
	k = s.topK(k)

	if textWeight < 0 || textWeight > 1 {
		return nil, fmt.Errorf("text_weight must be within [0,1], got %f", textWeight)
	}
	imageWeight := 1 - textWeight

	q := BuildTextQuery(text)
	if q == nil {
		return nil, fmt.Errorf("empty text query")
	}

	var (
		textHits []store.Hit
		textErr  error
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		textHits, textErr = s.store.TextSearch(ctx, q, k, filter)
	}()

	perKind, dropped, imgErr := s.descriptorHits(ctx, imageData, set, k, filter)
	wg.Wait()
	if imgErr != nil {
		return nil, imgErr
	}
	if textErr != nil {
		return nil, textErr
	}

	textScores := minMaxRescale(textHits)
	fused := fuseHits(perKind)

	type blended struct {
		photo     *models.Photo
		score     float64
		breakdown map[string]float64
	}
	merged := make(map[string]*blended)

	for _, it := range fused {
		merged[it.photo.PhotoID] = &blended{
			photo:     it.photo,
			score:     imageWeight * it.score,
			breakdown: it.breakdown,
		}
	}
	for _, h := range textHits {
		contribution := textWeight * clampScore(textScores[h.PhotoID])
		if b, ok := merged[h.PhotoID]; ok {
			b.score += contribution
			b.breakdown["text"] = clampScore(textScores[h.PhotoID])
		} else {
			merged[h.PhotoID] = &blended{
				photo:     h.Photo,
				score:     contribution,
				breakdown: map[string]float64{"text": clampScore(textScores[h.PhotoID])},
			}
		}
	}

	out := make([]blended, 0, len(merged))
	for _, b := range merged {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].photo.PhotoID < out[j].photo.PhotoID
	})
	if len(out) > k {
		out = out[:k]
	}

	results := make([]SearchResult, 0, len(out))
	for _, b := range out {
		results = append(results, SearchResult{
			Photo:     b.photo,
			URL:       b.photo.URL(),
			Score:     b.score,
			Breakdown: b.breakdown,
		})
	}

	return &SearchResponse{
		Results:            results,
		DroppedDescriptors: dropped,
		Total:              len(results),
		ElapsedMS:          time.Since(start).Milliseconds(),
	}, nil
}

// descriptorHits extracts query vectors and fans out one kNN lookup per
// descriptor, each with its own deadline. Descriptors that fail extraction
// or whose lookup errors out are dropped rather than failing the search,
// unless nothing remains.
func (s *SearchService) descriptorHits(ctx context.Context, imageData []byte, set descriptor.Set, k int, filter *store.Filter) (map[descriptor.Kind][]store.Hit, []string, error) {
	if set.IsEmpty() {
		return nil, nil, ErrNoDescriptorsEnabled
	}

	extracted, err := s.pipeline.Run(ctx, imageData, set)
	if err != nil {
		return nil, nil, err
	}

	var dropped []string
	vectors := make(map[descriptor.Kind][]float64)
	for _, kind := range set.Kinds() {
		r := extracted[kind]
		if r.Err != nil {
			log.Printf("Dropping descriptor %s: extraction failed: %v", kind, r.Err)
			dropped = append(dropped, kind.String())
			continue
		}
		vectors[kind] = r.Vector
	}
	if len(vectors) == 0 {
		return nil, dropped, ErrQueryVectorExtraction
	}

	perKind := make(map[descriptor.Kind][]store.Hit, len(vectors))
	var mu sync.Mutex
	var wg sync.WaitGroup
	timedOut := 0

	for kind, vec := range vectors {
		wg.Add(1)
		go func(kind descriptor.Kind, vec []float64) {
			defer wg.Done()
			lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
			defer cancel()

			hits, err := s.store.KNNSearch(lookupCtx, kind.Field(), vec, k, filter)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("Dropping descriptor %s: lookup failed: %v", kind, err)
				dropped = append(dropped, kind.String())
				if errors.Is(err, context.DeadlineExceeded) {
					timedOut++
				}
				return
			}
			perKind[kind] = hits
		}(kind, vec)
	}
	wg.Wait()

	if len(perKind) == 0 {
		if timedOut == len(vectors) {
			return nil, dropped, ErrSearchTimeout
		}
		return nil, dropped, ErrDescriptorLookup
	}
	return perKind, dropped, nil
}
