package ingest

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"visual-search-platform/internal/descriptor"
	"visual-search-platform/internal/store"
)

// Scheduler runs the periodic coverage audit: it counts indexed items and
// reports how many are missing descriptors so gaps from failed batches get
// noticed and re-ingested.
type Scheduler struct {
	scheduler *gocron.Scheduler
	store     store.Store
}

func NewScheduler(st store.Store) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &Scheduler{scheduler: s, store: st}
}

func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// ScheduleCoverageAudit registers the audit on a cron expression. The audit
// only observes and logs; re-ingestion stays an operator decision.
func (s *Scheduler) ScheduleCoverageAudit(cronExpr string, set descriptor.Set) error {
	_, err := s.scheduler.Cron(cronExpr).Tag("coverage-audit").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		total, missing, err := s.runCoverageAudit(ctx, set)
		if err != nil {
			log.Printf("Coverage audit failed: %v", err)
			return
		}
		log.Printf("📊 Coverage audit: %d items indexed, %d missing one of [%s]", total, missing, set)
	})
	return err
}

// runCoverageAudit counts indexed items and how many of them lack at least
// one of the enabled descriptor fields.
func (s *Scheduler) runCoverageAudit(ctx context.Context, set descriptor.Set) (total, missing int64, err error) {
	total, err = s.store.Count(ctx)
	if err != nil {
		return 0, 0, err
	}

	fields := make([]string, 0, set.Len())
	for _, k := range set.Kinds() {
		fields = append(fields, k.Field())
	}
	missing, err = s.store.CountMissingDescriptors(ctx, fields)
	if err != nil {
		return 0, 0, err
	}
	return total, missing, nil
}
