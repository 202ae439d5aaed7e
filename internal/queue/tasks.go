package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"visual-search-platform/internal/catalog"
	"visual-search-platform/internal/config"
	"visual-search-platform/internal/descriptor"
	"visual-search-platform/internal/ingest"
	"visual-search-platform/internal/pipeline"
	"visual-search-platform/internal/store"
	"visual-search-platform/internal/telemetry"
)

const TaskIngestCatalog = "catalog:ingest"

// IngestPayload parameterizes one catalog ingestion job. A nil KeepLocalCopy
// falls back to the configured default.
type IngestPayload struct {
	JobID         string   `json:"job_id"`
	CatalogPath   string   `json:"catalog_path"`
	Descriptors   []string `json:"descriptors,omitempty"`
	Offset        int64    `json:"offset"`
	Limit         int64    `json:"limit"`
	Workers       int      `json:"workers"`
	BatchSize     int      `json:"batch_size"`
	Force         bool     `json:"force"`
	KeepLocalCopy *bool    `json:"keep_local_copy,omitempty"`
}

// keepLocalCopy resolves the per-job override against the configured default.
func keepLocalCopy(p IngestPayload, cfg *config.Config) bool {
	if p.KeepLocalCopy != nil {
		return *p.KeepLocalCopy
	}
	return cfg.KeepLocalCopy
}

// NewIngestTask builds the asynq task for an ingestion job. Ingestion is
// already resumable and at-least-once, so a queue-level retry just picks up
// from the checkpoint.
func NewIngestTask(p IngestPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestCatalog,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(12*time.Hour),
		asynq.Queue("default"),
	), nil
}

// TaskProcessor executes queued ingestion jobs.
type TaskProcessor struct {
	cfg      *config.Config
	store    store.Store
	pipeline *pipeline.Pipeline
	metrics  *telemetry.Metrics
}

func NewTaskProcessor(cfg *config.Config, st store.Store, pl *pipeline.Pipeline, metrics *telemetry.Metrics) *TaskProcessor {
	return &TaskProcessor{cfg: cfg, store: st, pipeline: pl, metrics: metrics}
}

func (p *TaskProcessor) ProcessIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	log.Printf("Processing ingestion job: id=%s catalog=%s", payload.JobID, payload.CatalogPath)

	set, err := descriptor.ParseSet(payload.Descriptors)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	source, err := openSource(payload.CatalogPath, p.cfg)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	defer source.Close()

	fetcher := ingest.NewFetcher(p.cfg, keepLocalCopy(payload, p.cfg))
	controller := ingest.NewController(p.store, p.pipeline, fetcher, set, p.metrics)

	opts := ingest.Options{
		JobID:     payload.JobID,
		Offset:    payload.Offset,
		Limit:     payload.Limit,
		Workers:   payload.Workers,
		BatchSize: payload.BatchSize,
		Force:     payload.Force,
	}
	if opts.Workers <= 0 {
		opts.Workers = p.cfg.IngestWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = p.cfg.IngestBatchSize
	}

	report, err := controller.Run(ctx, source, opts)
	if err != nil {
		return err // retried; the checkpoint makes the retry resume
	}

	log.Printf("Ingestion job %s done: processed=%d skipped=%d failed=%d offset=%d",
		payload.JobID, report.Processed, report.Skipped, report.Failed, report.Offset)
	return nil
}

// openSource picks the catalog reader by file extension.
func openSource(path string, cfg *config.Config) (catalog.Source, error) {
	if path == "" {
		path = cfg.CatalogPath
	}
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return catalog.NewXLSXSource(path)
	}
	return catalog.NewCSVSource(path)
}
