package ingest

import (
	"context"
	"testing"

	"visual-search-platform/models"
)

func TestCoverageAuditCountsMissingDescriptors(t *testing.T) {
	st := newMemStore()
	st.docs["a"] = &models.Photo{
		PhotoID:        "a",
		ColorHistogram: make([]float64, 24),
		EdgeHistogram:  make([]float64, 64),
	}
	st.docs["b"] = &models.Photo{
		PhotoID:        "b",
		ColorHistogram: make([]float64, 24),
		EdgeHistogram:  make([]float64, 64),
	}
	// c lacks the edge histogram
	st.docs["c"] = &models.Photo{
		PhotoID:        "c",
		ColorHistogram: make([]float64, 24),
	}

	s := NewScheduler(st)
	total, missing, err := s.runCoverageAudit(context.Background(), testSet)
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 items total, got %d", total)
	}
	if missing != 1 {
		t.Fatalf("expected 1 item missing a descriptor, got %d", missing)
	}
}
