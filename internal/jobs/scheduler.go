package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"

	"thrivecoach/internal/config"
	"thrivecoach/internal/services"
)

// Scheduler owns the background jobs: the idle-session sweep and the
// nightly history cleanup.
type Scheduler struct {
	scheduler gocron.Scheduler
	cfg       *config.Config

	profiles *services.ProfileService
	sessions *services.SessionTracker
	memory   *services.MemoryService
	pruner   *services.HistoryPruner
}

// NewScheduler creates the scheduler and registers all jobs
func NewScheduler(
	cfg *config.Config,
	profiles *services.ProfileService,
	sessions *services.SessionTracker,
	memory *services.MemoryService,
	pruner *services.HistoryPruner,
) (*Scheduler, error) {
	inner, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{
		scheduler: inner,
		cfg:       cfg,
		profiles:  profiles,
		sessions:  sessions,
		memory:    memory,
		pruner:    pruner,
	}

	if _, err := inner.NewJob(
		gocron.DurationJob(cfg.SessionSweepInterval),
		gocron.NewTask(s.runSessionSweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("failed to register session sweep: %w", err)
	}

	// Validate the cron expression up front so a bad override fails at
	// startup, not silently at 2 AM
	if _, err := cron.ParseStandard(cfg.CleanupCron); err != nil {
		return nil, fmt.Errorf("invalid CLEANUP_CRON %q: %w", cfg.CleanupCron, err)
	}
	if _, err := inner.NewJob(
		gocron.CronJob(cfg.CleanupCron, false),
		gocron.NewTask(s.runHistoryCleanup),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("failed to register history cleanup: %w", err)
	}

	return s, nil
}

// Start begins executing registered jobs
func (s *Scheduler) Start() {
	s.scheduler.Start()
	log.Printf("⏰ [JOBS] Scheduler started (sweep every %s, cleanup at %q)",
		s.cfg.SessionSweepInterval, s.cfg.CleanupCron)
}

// Stop shuts the scheduler down, waiting for running jobs
func (s *Scheduler) Stop() {
	if err := s.scheduler.Shutdown(); err != nil {
		log.Printf("⚠️ [JOBS] Scheduler shutdown error: %v", err)
	}
}
