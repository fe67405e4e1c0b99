package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"golang.org/x/time/rate"

	"thrivecoach/internal/config"
	"thrivecoach/internal/models"
)

// HistoryPruner deletes chat history that has been folded into a
// user's memory summary. It never prunes a user whose summary is
// missing or trivially short: the history is the only record then.
type HistoryPruner struct {
	profiles *ProfileService
	history  *ChatHistoryService
	cfg      *config.Config
}

// NewHistoryPruner creates a history pruner
func NewHistoryPruner(profiles *ProfileService, history *ChatHistoryService, cfg *config.Config) *HistoryPruner {
	return &HistoryPruner{profiles: profiles, history: history, cfg: cfg}
}

// CleanupUser deletes all but the newest keepN messages for one user.
// Without force it refuses unless the user has a substantive memory
// summary, so pruning can never destroy unsummarized history.
func (p *HistoryPruner) CleanupUser(userID int64, keepN int, force bool) models.CleanupResult {
	if keepN <= 0 {
		keepN = p.cfg.PruneKeepMessages
	}

	profile, err := p.profiles.GetByID(userID)
	if err != nil {
		return models.CleanupResult{Reason: fmt.Sprintf("failed to load profile: %v", err)}
	}
	if profile == nil {
		return models.CleanupResult{Reason: "user not found"}
	}

	if !force && !profile.HasMemory(p.cfg.HasMemoryMinChars) {
		return models.CleanupResult{Reason: "no memory summary — preserving full history"}
	}

	total, err := p.history.Count(userID)
	if err != nil {
		return models.CleanupResult{Reason: fmt.Sprintf("failed to count messages: %v", err)}
	}
	if total <= keepN {
		return models.CleanupResult{Success: true, Kept: total}
	}

	cutoff, err := p.history.CutoffForKeep(userID, keepN)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CleanupResult{Success: true, Kept: total}
		}
		return models.CleanupResult{Reason: fmt.Sprintf("failed to find cutoff: %v", err)}
	}

	deleted, err := p.history.DeleteOlderThan(userID, cutoff)
	if err != nil {
		return models.CleanupResult{Reason: fmt.Sprintf("failed to delete messages: %v", err)}
	}

	if m := GetMetrics(); m != nil {
		m.RecordMessagesPruned(deleted)
	}

	return models.CleanupResult{Success: true, Deleted: deleted, Kept: total - deleted}
}

// BulkCleanup prunes every eligible user, paced so a nightly run does
// not saturate the database. Per-user failures are collected, not
// fatal; context cancellation stops the run.
func (p *HistoryPruner) BulkCleanup(ctx context.Context, keepN, maxUsers int) (*models.BulkCleanupResult, error) {
	if keepN <= 0 {
		keepN = p.cfg.PruneKeepMessages
	}
	if maxUsers <= 0 {
		maxUsers = 500
	}

	userIDs, err := p.profiles.ListUsersWithMemory(p.cfg.HasMemoryMinChars, maxUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to list users for cleanup: %w", err)
	}

	limiter := rate.NewLimiter(rate.Limit(p.cfg.BulkCleanupUsersPerSec), 1)
	result := &models.BulkCleanupResult{}

	for _, userID := range userIDs {
		if err := limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("bulk cleanup interrupted: %w", err)
		}

		r := p.CleanupUser(userID, keepN, false)
		result.UsersProcessed++
		if r.Success {
			result.TotalDeleted += r.Deleted
			result.TotalKept += r.Kept
		} else {
			result.Errors = append(result.Errors, models.BulkCleanupError{
				UserID: userID,
				Error:  r.Reason,
			})
		}
	}

	log.Printf("🧹 [CLEANUP] Bulk cleanup done: %d users, %d messages deleted, %d errors",
		result.UsersProcessed, result.TotalDeleted, len(result.Errors))
	return result, nil
}

// Stats reports retention-related aggregates for the admin surface.
// CleanupOpportunity is the old-message count: what a bulk run could
// reclaim at most.
func (p *HistoryPruner) Stats() (*models.CleanupStats, error) {
	total, recent, old, err := p.history.GlobalStats(p.cfg.SummaryStaleAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to compute history stats: %w", err)
	}

	withMemory, withoutMemory, err := p.profiles.CountUsersByMemory(p.cfg.HasMemoryMinChars)
	if err != nil {
		return nil, fmt.Errorf("failed to count users with memory: %w", err)
	}

	return &models.CleanupStats{
		TotalMessages:      total,
		UsersWithMemory:    withMemory,
		UsersWithoutMemory: withoutMemory,
		RecentMessages:     recent,
		OldMessages:        old,
		CleanupOpportunity: old,
	}, nil
}
