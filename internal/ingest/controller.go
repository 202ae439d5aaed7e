package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"visual-search-platform/internal/catalog"
	"visual-search-platform/internal/descriptor"
	"visual-search-platform/internal/pipeline"
	"visual-search-platform/internal/store"
	"visual-search-platform/internal/telemetry"
	"visual-search-platform/models"
)

const commitAttempts = 4

// commitBackoff is the base delay between commit retries, doubling per
// attempt. A variable so tests do not sit through real backoff.
var commitBackoff = time.Second

// ErrStopped reports a run that ended at a batch boundary because Stop was
// called. The checkpoint reflects every batch committed before the stop.
var ErrStopped = errors.New("ingestion stopped")

// ImageFetcher downloads one catalog image. Implemented by Fetcher.
type ImageFetcher interface {
	Fetch(ctx context.Context, url, photoID string) ([]byte, error)
}

// Options configures one ingestion run.
type Options struct {
	JobID     string
	Offset    int64 // catalog position to start at; negative resumes from the checkpoint
	Limit     int64 // max items to attempt; 0 means the whole catalog
	Workers   int
	BatchSize int
	Force     bool // reprocess items even when their descriptors are already indexed
}

// Report summarizes one run. Offset is the catalog position the next run
// should start from.
type Report struct {
	Processed int64         `json:"processed"`
	Skipped   int64         `json:"skipped"`
	Failed    int64         `json:"failed"`
	Offset    int64         `json:"offset"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Controller drives batched, resumable catalog ingestion: a worker pool
// owns items end to end, the batch commit is the only synchronization
// barrier, and the checkpoint advances only after a committed batch.
type Controller struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	fetcher  ImageFetcher
	set      descriptor.Set
	metrics  *telemetry.Metrics // nil disables recording

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewController(st store.Store, pl *pipeline.Pipeline, fetcher ImageFetcher, set descriptor.Set, metrics *telemetry.Metrics) *Controller {
	return &Controller{
		store:    st,
		pipeline: pl,
		fetcher:  fetcher,
		set:      set,
		metrics:  metrics,
		stopChan: make(chan struct{}),
	}
}

// Stop requests a cooperative stop. The in-flight batch finishes and
// commits; no new batch starts.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *Controller) stopped() bool {
	select {
	case <-c.stopChan:
		return true
	default:
		return false
	}
}

// Run ingests the catalog from the resolved offset until the limit, the end
// of the catalog, a stop request, or a fatal store failure.
func (c *Controller) Run(ctx context.Context, source catalog.Source, opts Options) (*Report, error) {
	start := time.Now()
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 100
	}
	if opts.JobID == "" {
		opts.JobID = "default"
	}

	offset := opts.Offset
	var base models.IngestCheckpoint
	cp, err := c.store.LoadCheckpoint(ctx, opts.JobID)
	if err != nil {
		return nil, err
	}
	if cp != nil {
		base = *cp
	}
	if offset < 0 {
		offset = base.Offset
	}

	if offset > 0 {
		skipped, err := catalog.Skip(source, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to seek catalog to offset %d: %w", offset, err)
		}
		if skipped < offset {
			// Catalog shorter than the checkpoint; nothing left to do
			return &Report{Offset: offset, Elapsed: time.Since(start)}, nil
		}
	}

	report := &Report{Offset: offset}
	log.Printf("🚀 Ingestion %s starting at offset %d (workers=%d batch=%d force=%t)",
		opts.JobID, offset, opts.Workers, opts.BatchSize, opts.Force)

	var attempted int64
	for {
		if err := ctx.Err(); err != nil {
			report.Elapsed = time.Since(start)
			return report, err
		}
		if c.stopped() {
			report.Elapsed = time.Since(start)
			return report, ErrStopped
		}

		batchSize := int64(opts.BatchSize)
		if opts.Limit > 0 && opts.Limit-attempted < batchSize {
			batchSize = opts.Limit - attempted
		}
		if batchSize == 0 {
			break
		}

		batch, err := readBatch(source, batchSize)
		if err != nil {
			report.Elapsed = time.Since(start)
			return report, err
		}
		if len(batch) == 0 {
			break
		}
		attempted += int64(len(batch))

		docs, processed, skipped, failed := c.processBatch(ctx, batch, opts.Workers, opts.Force)
		commitStart := time.Now()
		if err := c.commitBatch(ctx, docs); err != nil {
			// Job-fatal: the checkpoint stays at the last settled batch
			report.Elapsed = time.Since(start)
			return report, err
		}
		if c.metrics != nil {
			c.metrics.RecordBatchCommit(opts.JobID, time.Since(commitStart).Seconds())
			c.metrics.RecordIngest(opts.JobID, processed, skipped, failed)
		}

		report.Processed += processed
		report.Skipped += skipped
		report.Failed += failed
		report.Offset += int64(len(batch))

		if err := c.store.SaveCheckpoint(ctx, &models.IngestCheckpoint{
			JobID:     opts.JobID,
			Offset:    report.Offset,
			Processed: base.Processed + report.Processed,
			Skipped:   base.Skipped + report.Skipped,
			Failed:    base.Failed + report.Failed,
		}); err != nil {
			// The batch is committed; a lost checkpoint only costs a
			// reprocessed batch on resume (at-least-once)
			log.Printf("Checkpoint save failed for %s: %v", opts.JobID, err)
		}

		log.Printf("📦 Batch committed: offset=%d processed=%d skipped=%d failed=%d",
			report.Offset, report.Processed, report.Skipped, report.Failed)
	}

	report.Elapsed = time.Since(start)
	log.Printf("✅ Ingestion %s finished: processed=%d skipped=%d failed=%d in %s",
		opts.JobID, report.Processed, report.Skipped, report.Failed, report.Elapsed)
	return report, nil
}

func readBatch(source catalog.Source, n int64) ([]catalog.Item, error) {
	batch := make([]catalog.Item, 0, n)
	for int64(len(batch)) < n {
		it, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		batch = append(batch, it)
	}
	return batch, nil
}

// processBatch runs the worker pool over one batch. Each worker owns its
// item end to end; the returned docs are everything the batch wants
// written, success and failure stubs alike.
func (c *Controller) processBatch(ctx context.Context, batch []catalog.Item, workers int, force bool) (docs []*models.Photo, processed, skipped, failed int64) {
	items := make(chan catalog.Item)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < minInt(len(batch), workers); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range items {
				doc, outcome := c.processItem(ctx, it, force)
				mu.Lock()
				switch outcome {
				case outcomeProcessed:
					processed++
				case outcomeSkipped:
					skipped++
				case outcomeFailed:
					failed++
				}
				if doc != nil {
					docs = append(docs, doc)
				}
				mu.Unlock()
			}
		}()
	}

	for _, it := range batch {
		items <- it
	}
	close(items)
	wg.Wait()
	return docs, processed, skipped, failed
}

type itemOutcome int

const (
	outcomeProcessed itemOutcome = iota
	outcomeSkipped
	outcomeFailed
)

func (c *Controller) processItem(ctx context.Context, it catalog.Item, force bool) (*models.Photo, itemOutcome) {
	if !force {
		fields := make([]string, 0, c.set.Len())
		for _, k := range c.set.Kinds() {
			fields = append(fields, k.Field())
		}
		covered, err := c.store.HasDescriptors(ctx, it.ID, fields)
		if err == nil && covered {
			return nil, outcomeSkipped
		}
	}

	doc := photoFromItem(it)

	data, err := c.fetcher.Fetch(ctx, it.PhotoURL(), it.ID)
	if err != nil {
		log.Printf("Download failed for %s: %v", it.ID, err)
		doc.ImageStatus = models.ImageStatusDownloadFailed
		return doc, outcomeFailed
	}

	results, err := c.pipeline.Run(ctx, data, c.set)
	if err != nil {
		log.Printf("Extraction failed for %s: %v", it.ID, err)
		doc.ImageStatus = models.ImageStatusExtractFailed
		return doc, outcomeFailed
	}

	extracted := 0
	for kind, r := range results {
		if r.Err != nil {
			// A per-descriptor failure leaves its field absent
			continue
		}
		assignVector(doc, kind, r.Vector)
		extracted++
	}
	if extracted == 0 {
		doc.ImageStatus = models.ImageStatusExtractFailed
		return doc, outcomeFailed
	}

	doc.ImageStatus = models.ImageStatusIndexed
	doc.IndexedAt = time.Now()
	return doc, outcomeProcessed
}

// commitBatch writes the batch with bounded exponential backoff. Exhausting
// the retries is job-fatal.
func (c *Controller) commitBatch(ctx context.Context, docs []*models.Photo) error {
	if len(docs) == 0 {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt < commitAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * commitBackoff
			log.Printf("Retrying batch commit in %s (attempt %d/%d)", backoff, attempt+1, commitAttempts)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if lastErr = c.store.BulkUpsert(ctx, docs); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("batch commit failed after %d attempts: %w", commitAttempts, lastErr)
}

func photoFromItem(it catalog.Item) *models.Photo {
	return &models.Photo{
		PhotoID:      it.ID,
		UserID:       it.UserID,
		Title:        it.Title,
		Tags:         it.Tags,
		TagList:      it.TagList(),
		Latitude:     it.Latitude,
		Longitude:    it.Longitude,
		Views:        it.Views,
		DateTaken:    it.DateTaken,
		DateUploaded: it.DateUploaded,
		Secret:       it.Secret,
		Server:       it.Server,
		Farm:         it.Farm,
	}
}

func assignVector(doc *models.Photo, kind descriptor.Kind, vec []float64) {
	switch kind {
	case descriptor.DeepEmbedding:
		doc.VGGFeatures = vec
	case descriptor.ColorHistogram:
		doc.ColorHistogram = vec
	case descriptor.TexturePattern:
		doc.LBPFeatures = vec
	case descriptor.GradientShape:
		doc.HOGFeatures = vec
	case descriptor.EdgeOrientation:
		doc.EdgeHistogram = vec
	case descriptor.LocalKeypoints:
		doc.SIFTFeatures = vec
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
