package services

import (
	"log"
	"strconv"
	"time"

	cache "github.com/patrickmn/go-cache"

	"thrivecoach/internal/models"
)

// sessionState is the in-process mirror of a user's activity window
type sessionState struct {
	LastActivity time.Time
	WindowStart  time.Time // first message of the current conversation window
}

// SessionTracker records per-user activity and decides when a lull is a
// real session end rather than a short pause. All operations are
// best-effort: on any failure the tracker reports "active", so nothing
// destructive ever fires off a tracker error.
type SessionTracker struct {
	profiles            *ProfileService
	states              *cache.Cache
	sessionTimeout      time.Duration
	minConversationSpan time.Duration
}

// NewSessionTracker creates a session tracker
func NewSessionTracker(profiles *ProfileService, sessionTimeout, minConversationSpan time.Duration) *SessionTracker {
	return &SessionTracker{
		profiles:            profiles,
		states:              cache.New(24*time.Hour, time.Hour),
		sessionTimeout:      sessionTimeout,
		minConversationSpan: minConversationSpan,
	}
}

// RecordActivity updates last-activity for a turn. The in-memory state
// answers fast checks; the profile row survives restarts.
func (t *SessionTracker) RecordActivity(userID int64, now time.Time) {
	state := t.getState(userID)

	// A gap past the session timeout starts a new conversation window
	if state.LastActivity.IsZero() || now.Sub(state.LastActivity) > t.sessionTimeout {
		state.WindowStart = now
	}
	state.LastActivity = now
	t.states.Set(stateKey(userID), state, cache.DefaultExpiration)

	if err := t.profiles.TouchActivity(userID, now); err != nil {
		log.Printf("⚠️ [SESSION] Failed to persist activity for user %d: %v (continuing)", userID, err)
	}
}

// CheckSessionTimeout reports whether the user's session has timed out
func (t *SessionTracker) CheckSessionTimeout(userID int64, now time.Time) bool {
	last := t.lastActivity(userID)
	if last.IsZero() {
		return false // unknown = treat as active
	}
	return now.Sub(last) > t.sessionTimeout
}

// ShouldTriggerSessionEndUpdate decides whether an idle user warrants a
// session-end memory update. Requires both the timeout AND a
// conversation window of at least minConversationSpan, so a brief lull
// after a one-line exchange never triggers premature summarization.
func (t *SessionTracker) ShouldTriggerSessionEndUpdate(userID int64, now time.Time) bool {
	state := t.getState(userID)
	if state.LastActivity.IsZero() {
		return false
	}
	if now.Sub(state.LastActivity) <= t.sessionTimeout {
		return false
	}
	if state.WindowStart.IsZero() {
		return false
	}
	return state.LastActivity.Sub(state.WindowStart) >= t.minConversationSpan
}

// MarkSessionEnded closes the current conversation window once its
// session-end update has run, so the same idle stretch never fires
// twice. The next RecordActivity starts a fresh window.
func (t *SessionTracker) MarkSessionEnded(userID int64) {
	state := t.getState(userID)
	state.WindowStart = time.Time{}
	t.states.Set(stateKey(userID), state, cache.DefaultExpiration)
}

// ShouldTriggerFromProfile is the restart-safe variant used by the
// background sweep, computing from persisted timestamps.
func (t *SessionTracker) ShouldTriggerFromProfile(profile *models.UserProfile, now time.Time) bool {
	if profile.LastActivity == nil {
		return false
	}
	if now.Sub(*profile.LastActivity) <= t.sessionTimeout {
		return false
	}
	state := t.getState(profile.ID)
	if !state.WindowStart.IsZero() && !state.LastActivity.IsZero() {
		return state.LastActivity.Sub(state.WindowStart) >= t.minConversationSpan
	}
	// After a restart the window start is unknown; err on the side of
	// "short pause" and let the next turn's triggers catch up
	return false
}

func (t *SessionTracker) getState(userID int64) sessionState {
	if cached, found := t.states.Get(stateKey(userID)); found {
		if state, ok := cached.(sessionState); ok {
			return state
		}
	}

	// Hydrate from the profile row after a restart
	profile, err := t.profiles.GetByID(userID)
	if err != nil || profile == nil {
		return sessionState{}
	}
	state := sessionState{}
	if profile.LastActivity != nil {
		state.LastActivity = *profile.LastActivity
	}
	return state
}

func (t *SessionTracker) lastActivity(userID int64) time.Time {
	return t.getState(userID).LastActivity
}

func stateKey(userID int64) string {
	return "session:" + strconv.FormatInt(userID, 10)
}
