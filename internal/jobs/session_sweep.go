package jobs

import (
	"context"
	"log"
	"time"
)

const sweepBatchSize = 100

// runSessionSweep finds users whose sessions have gone idle past the
// timeout and runs the comprehensive session-end memory update for
// each. The conversation-span guard filters out drive-by single
// messages that never formed a real session.
func (s *Scheduler) runSessionSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SessionSweepInterval)
	defer cancel()

	now := time.Now().UTC()
	idleSince := now.Add(-s.cfg.SessionTimeout)

	profiles, err := s.profiles.ListIdleUsers(idleSince, sweepBatchSize)
	if err != nil {
		log.Printf("⚠️ [JOBS] Session sweep failed to list idle users: %v", err)
		return
	}

	var updated int
	for _, profile := range profiles {
		if ctx.Err() != nil {
			log.Printf("⚠️ [JOBS] Session sweep cut short: %v", ctx.Err())
			break
		}
		if !s.sessions.ShouldTriggerFromProfile(profile, now) {
			continue
		}
		s.memory.RunSessionEnd(ctx, profile)
		s.sessions.MarkSessionEnded(profile.ID)
		updated++
	}

	if updated > 0 {
		log.Printf("🌙 [JOBS] Session sweep: %d of %d idle users summarized", updated, len(profiles))
	}
}
