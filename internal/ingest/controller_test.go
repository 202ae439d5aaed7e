package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"visual-search-platform/internal/catalog"
	"visual-search-platform/internal/descriptor"
	"visual-search-platform/internal/pipeline"
	"visual-search-platform/internal/store"
	"visual-search-platform/internal/telemetry"
	"visual-search-platform/models"
)

type memSource struct {
	items []catalog.Item
	pos   int
}

func (m *memSource) Next() (catalog.Item, error) {
	if m.pos >= len(m.items) {
		return catalog.Item{}, io.EOF
	}
	it := m.items[m.pos]
	m.pos++
	return it, nil
}

func (m *memSource) Close() error { return nil }

type memStore struct {
	mu          sync.Mutex
	docs        map[string]*models.Photo
	checkpoint  *models.IngestCheckpoint
	covered     map[string]bool
	failCommits int
	commits     int
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]*models.Photo), covered: make(map[string]bool)}
}

func (m *memStore) KNNSearch(ctx context.Context, field string, vector []float64, k int, filter *store.Filter) ([]store.Hit, error) {
	return nil, nil
}

func (m *memStore) TextSearch(ctx context.Context, q *store.TextQuery, k int, filter *store.Filter) ([]store.Hit, error) {
	return nil, nil
}

func (m *memStore) BulkUpsert(ctx context.Context, photos []*models.Photo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	if m.failCommits > 0 {
		m.failCommits--
		return errors.New("store write failure")
	}
	for _, p := range photos {
		m.docs[p.PhotoID] = p
	}
	return nil
}

func (m *memStore) HasDescriptors(ctx context.Context, photoID string, fields []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.covered[photoID], nil
}

func (m *memStore) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.docs)), nil
}

func (m *memStore) CountMissingDescriptors(ctx context.Context, fields []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var missing int64
	for _, p := range m.docs {
		for _, f := range fields {
			if len(vectorByField(p, f)) == 0 {
				missing++
				break
			}
		}
	}
	return missing, nil
}

func vectorByField(p *models.Photo, field string) []float64 {
	switch field {
	case "vgg_features":
		return p.VGGFeatures
	case "color_histogram":
		return p.ColorHistogram
	case "lbp_features":
		return p.LBPFeatures
	case "hog_features":
		return p.HOGFeatures
	case "edge_histogram":
		return p.EdgeHistogram
	case "sift_features":
		return p.SIFTFeatures
	}
	return nil
}

func (m *memStore) LoadCheckpoint(ctx context.Context, jobID string) (*models.IngestCheckpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkpoint == nil {
		return nil, nil
	}
	cp := *m.checkpoint
	return &cp, nil
}

func (m *memStore) SaveCheckpoint(ctx context.Context, cp *models.IngestCheckpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkpoint != nil && cp.Offset < m.checkpoint.Offset {
		return nil // advance-only
	}
	c := *cp
	m.checkpoint = &c
	return nil
}

type memFetcher struct {
	image   []byte
	failIDs map[string]bool
}

func (f *memFetcher) Fetch(ctx context.Context, url, photoID string) ([]byte, error) {
	if f.failIDs[photoID] {
		return nil, errors.New("connection refused")
	}
	return f.image, nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if (x+y)%2 == 0 {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{B: 255, A: 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func makeItems(n int) []catalog.Item {
	items := make([]catalog.Item, n)
	for i := range items {
		items[i] = catalog.Item{
			ID:     fmt.Sprintf("photo-%03d", i),
			Title:  fmt.Sprintf("Photo %d", i),
			Tags:   "test sample",
			Secret: "s", Server: "1", Farm: "1",
		}
	}
	return items
}

const testSet = descriptor.Set(descriptor.ColorHistogram | descriptor.EdgeOrientation)

func newTestController(st store.Store, f ImageFetcher) *Controller {
	return NewController(st, pipeline.NewPipeline(nil), f, testSet, nil)
}

func TestRunIngestsCatalog(t *testing.T) {
	st := newMemStore()
	c := newTestController(st, &memFetcher{image: testPNG(t)})

	report, err := c.Run(context.Background(), &memSource{items: makeItems(10)}, Options{
		JobID: "job-1", Offset: 0, Workers: 3, BatchSize: 4,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Processed != 10 || report.Failed != 0 || report.Skipped != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Offset != 10 {
		t.Fatalf("expected final offset 10, got %d", report.Offset)
	}
	if len(st.docs) != 10 {
		t.Fatalf("expected 10 docs written, got %d", len(st.docs))
	}

	doc := st.docs["photo-003"]
	if doc.ImageStatus != models.ImageStatusIndexed {
		t.Fatalf("expected indexed status, got %s", doc.ImageStatus)
	}
	if len(doc.ColorHistogram) != 24 || len(doc.EdgeHistogram) != 64 {
		t.Fatalf("expected descriptor vectors on the doc, got %d / %d",
			len(doc.ColorHistogram), len(doc.EdgeHistogram))
	}
	if doc.VGGFeatures != nil {
		t.Fatal("disabled descriptors must leave their fields absent")
	}

	if st.checkpoint == nil || st.checkpoint.Offset != 10 {
		t.Fatalf("expected checkpoint at offset 10, got %+v", st.checkpoint)
	}
}

func TestRunWithMetricsAttached(t *testing.T) {
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		t.Fatalf("failed to init metrics: %v", err)
	}

	st := newMemStore()
	c := NewController(st, pipeline.NewPipeline(nil), &memFetcher{image: testPNG(t)}, testSet, metrics)

	report, err := c.Run(context.Background(), &memSource{items: makeItems(6)}, Options{
		JobID: "job-metrics", Workers: 2, BatchSize: 3,
	})
	if err != nil {
		t.Fatalf("run with metrics failed: %v", err)
	}
	if report.Processed != 6 {
		t.Fatalf("expected 6 processed, got %+v", report)
	}
}

func TestRunSkipsCoveredItems(t *testing.T) {
	st := newMemStore()
	st.covered["photo-001"] = true
	st.covered["photo-002"] = true
	c := newTestController(st, &memFetcher{image: testPNG(t)})

	report, err := c.Run(context.Background(), &memSource{items: makeItems(5)}, Options{
		JobID: "job-skip", Workers: 2, BatchSize: 5,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Skipped != 2 || report.Processed != 3 {
		t.Fatalf("expected 2 skipped / 3 processed, got %+v", report)
	}
	if _, ok := st.docs["photo-001"]; ok {
		t.Fatal("covered items must not be rewritten")
	}
}

func TestRunForceReprocessesCoveredItems(t *testing.T) {
	st := newMemStore()
	st.covered["photo-001"] = true
	c := newTestController(st, &memFetcher{image: testPNG(t)})

	report, err := c.Run(context.Background(), &memSource{items: makeItems(3)}, Options{
		JobID: "job-force", Workers: 2, BatchSize: 3, Force: true,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Processed != 3 || report.Skipped != 0 {
		t.Fatalf("force should reprocess everything, got %+v", report)
	}
	if _, ok := st.docs["photo-001"]; !ok {
		t.Fatal("forced run must rewrite covered items")
	}
}

func TestRunRecordsDownloadFailures(t *testing.T) {
	st := newMemStore()
	c := newTestController(st, &memFetcher{
		image:   testPNG(t),
		failIDs: map[string]bool{"photo-002": true},
	})

	report, err := c.Run(context.Background(), &memSource{items: makeItems(4)}, Options{
		JobID: "job-fail", Workers: 2, BatchSize: 4,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Failed != 1 || report.Processed != 3 {
		t.Fatalf("expected 1 failed / 3 processed, got %+v", report)
	}
	stub := st.docs["photo-002"]
	if stub == nil || stub.ImageStatus != models.ImageStatusDownloadFailed {
		t.Fatalf("expected a download_failed stub, got %+v", stub)
	}
	if stub.ColorHistogram != nil {
		t.Fatal("failure stubs must not carry vectors")
	}
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	st := newMemStore()
	st.checkpoint = &models.IngestCheckpoint{JobID: "job-resume", Offset: 6, Processed: 6}
	c := newTestController(st, &memFetcher{image: testPNG(t)})

	report, err := c.Run(context.Background(), &memSource{items: makeItems(10)}, Options{
		JobID: "job-resume", Offset: -1, Workers: 2, BatchSize: 4,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Processed != 4 {
		t.Fatalf("expected only the 4 remaining items, got %+v", report)
	}
	if report.Offset != 10 {
		t.Fatalf("expected final offset 10, got %d", report.Offset)
	}
	if _, ok := st.docs["photo-005"]; ok {
		t.Fatal("items before the checkpoint must not be reprocessed")
	}
	if st.checkpoint.Processed != 10 {
		t.Fatalf("checkpoint counters should accumulate across runs, got %d", st.checkpoint.Processed)
	}
}

func TestRunHonorsLimit(t *testing.T) {
	st := newMemStore()
	c := newTestController(st, &memFetcher{image: testPNG(t)})

	report, err := c.Run(context.Background(), &memSource{items: makeItems(10)}, Options{
		JobID: "job-limit", Workers: 2, BatchSize: 3, Limit: 5,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Processed != 5 {
		t.Fatalf("expected 5 processed, got %+v", report)
	}
	if report.Offset != 5 {
		t.Fatalf("expected offset 5, got %d", report.Offset)
	}
}

func TestRunCommitFailureIsJobFatal(t *testing.T) {
	oldBackoff := commitBackoff
	commitBackoff = time.Millisecond
	defer func() { commitBackoff = oldBackoff }()

	st := newMemStore()
	st.failCommits = commitAttempts // every retry fails
	c := newTestController(st, &memFetcher{image: testPNG(t)})

	report, err := c.Run(context.Background(), &memSource{items: makeItems(4)}, Options{
		JobID: "job-fatal", Workers: 2, BatchSize: 4,
	})
	if err == nil {
		t.Fatal("expected a job-fatal commit error")
	}
	if report.Offset != 0 {
		t.Fatalf("failed batch must not advance the offset, got %d", report.Offset)
	}
	if st.checkpoint != nil {
		t.Fatal("failed batch must not checkpoint")
	}
}

func TestStopBetweenBatches(t *testing.T) {
	st := newMemStore()
	c := newTestController(st, &memFetcher{image: testPNG(t)})
	c.Stop()

	report, err := c.Run(context.Background(), &memSource{items: makeItems(10)}, Options{
		JobID: "job-stop", Workers: 2, BatchSize: 4,
	})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if report.Processed != 0 {
		t.Fatalf("stop before the first batch should process nothing, got %+v", report)
	}
}
