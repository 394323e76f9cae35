package repository

import (
	"time"

	"voice-companion/internal/domain/model"
)

// GlobalSessionKey is used when the caller has no session identity.
const GlobalSessionKey = "global"

// -----------------------------
// Conversation History
// -----------------------------

// HistoryStore keeps a bounded FIFO of turns per session key. Each session
// is locked independently; no operation blocks on I/O.
type HistoryStore interface {
	// Append adds turns atomically: a concurrent Snapshot sees all of them
	// or none. Oldest turns are evicted past the configured maximum.
	Append(key string, turns ...model.Turn)
	// Snapshot returns a copy of the newest limit turns, oldest first.
	// limit <= 0 returns everything.
	Snapshot(key string, limit int) []model.Turn
	// EvictTo drops the oldest turns until at most maxLen remain.
	EvictTo(key string, maxLen int)
	Len(key string) int
	Purge(key string)
	// SweepIdle removes sessions not touched since before cutoff and
	// returns how many were removed.
	SweepIdle(cutoff time.Time) int
	Sessions() int
}
