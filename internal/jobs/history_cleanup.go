package jobs

import (
	"context"
	"log"
	"time"
)

const cleanupRunBudget = 30 * time.Minute

// runHistoryCleanup is the nightly bulk prune: every user with a
// substantive memory summary has their history trimmed to the
// configured trailing window.
func (s *Scheduler) runHistoryCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupRunBudget)
	defer cancel()

	result, err := s.pruner.BulkCleanup(ctx, s.cfg.PruneKeepMessages, 0)
	if err != nil {
		log.Printf("❌ [JOBS] Nightly cleanup failed: %v", err)
		return
	}

	log.Printf("🧹 [JOBS] Nightly cleanup: %d users processed, %d messages deleted, %d errors",
		result.UsersProcessed, result.TotalDeleted, len(result.Errors))
}
