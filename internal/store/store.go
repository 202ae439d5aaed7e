package store

import (
	"context"
	"time"

	"visual-search-platform/models"
)

// Hit is one search result from the store with its raw relevance score.
// KNN scores are already in [0,1]; text scores are unbounded Lucene-style
// scores that callers must rescale before mixing.
type Hit struct {
	PhotoID string
	Score   float64
	Photo   *models.Photo
}

// Filter narrows search results by structured photo attributes.
type Filter struct {
	Tags     []string
	DateFrom *time.Time
	DateTo   *time.Time
	MinViews int64
}

// Term is one query token with its allowed edit distance.
type Term struct {
	Text     string
	MaxEdits int
}

// FieldClause targets a single document field: analyzed term matches with
// per-term fuzziness plus a phrase match with positional slop. The store
// scores a field by its best matching clause and boosts the result.
type FieldClause struct {
	Path  string
	Boost float64
	Terms []Term
	Slop  int
}

// TextQuery is a store-agnostic fuzzy text query over one or more fields.
type TextQuery struct {
	Text   string
	Fields []FieldClause
}

// Store is the external search-store contract the engine is built against.
type Store interface {
	// KNNSearch returns the k nearest items by the named descriptor field.
	// Scores are unit-interval similarities, higher is better.
	KNNSearch(ctx context.Context, field string, vector []float64, k int, filter *Filter) ([]Hit, error)

	// TextSearch runs a fuzzy text query and returns up to k hits with raw
	// relevance scores.
	TextSearch(ctx context.Context, q *TextQuery, k int, filter *Filter) ([]Hit, error)

	// BulkUpsert writes the batch with at-least-once semantics: an item
	// already present is overwritten field by field, never duplicated.
	BulkUpsert(ctx context.Context, photos []*models.Photo) error

	// HasDescriptors reports whether the item exists with every one of the
	// given descriptor fields populated.
	HasDescriptors(ctx context.Context, photoID string, fields []string) (bool, error)

	// Count returns the number of indexed items.
	Count(ctx context.Context) (int64, error)

	// CountMissingDescriptors returns how many items lack at least one of
	// the given descriptor fields.
	CountMissingDescriptors(ctx context.Context, fields []string) (int64, error)

	// LoadCheckpoint fetches the resume point of an ingestion job, or nil
	// when the job has never committed a batch.
	LoadCheckpoint(ctx context.Context, jobID string) (*models.IngestCheckpoint, error)

	// SaveCheckpoint persists a settled batch. Offsets only move forward.
	SaveCheckpoint(ctx context.Context, cp *models.IngestCheckpoint) error
}
