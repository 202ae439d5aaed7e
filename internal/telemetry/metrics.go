package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter     metric.Int64Counter
	RequestDuration    metric.Float64Histogram
	SearchDuration     metric.Float64Histogram
	DescriptorsDropped metric.Int64Counter
	ItemsIngested      metric.Int64Counter
	BatchCommitTime    metric.Float64Histogram
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("visual-search-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	searchDuration, err := meter.Float64Histogram(
		"search.duration",
		metric.WithDescription("Fused search duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	descriptorsDropped, err := meter.Int64Counter(
		"search.descriptors.dropped",
		metric.WithDescription("Descriptors dropped from degraded searches"),
	)
	if err != nil {
		return nil, err
	}

	itemsIngested, err := meter.Int64Counter(
		"ingest.items.total",
		metric.WithDescription("Catalog items attempted by outcome"),
	)
	if err != nil {
		return nil, err
	}

	batchCommitTime, err := meter.Float64Histogram(
		"ingest.batch.commit.duration",
		metric.WithDescription("Batch commit duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:     requestCounter,
		RequestDuration:    requestDuration,
		SearchDuration:     searchDuration,
		DescriptorsDropped: descriptorsDropped,
		ItemsIngested:      itemsIngested,
		BatchCommitTime:    batchCommitTime,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordSearch records one fused search with its mode (text/image/hybrid)
func (m *Metrics) RecordSearch(mode string, duration float64, dropped int) {
	attrs := []attribute.KeyValue{
		attribute.String("search.mode", mode),
	}

	m.SearchDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
	if dropped > 0 {
		m.DescriptorsDropped.Add(context.Background(), int64(dropped), metric.WithAttributes(attrs...))
	}
}

// RecordIngest records ingestion outcomes for one batch
func (m *Metrics) RecordIngest(jobID string, processed, skipped, failed int64) {
	add := func(outcome string, n int64) {
		if n == 0 {
			return
		}
		m.ItemsIngested.Add(context.Background(), n, metric.WithAttributes(
			attribute.String("ingest.job", jobID),
			attribute.String("ingest.outcome", outcome),
		))
	}
	add("processed", processed)
	add("skipped", skipped)
	add("failed", failed)
}

// RecordBatchCommit records one batch commit duration
func (m *Metrics) RecordBatchCommit(jobID string, duration float64) {
	m.BatchCommitTime.Record(context.Background(), duration, metric.WithAttributes(
		attribute.String("ingest.job", jobID),
	))
}
