package repository

import (
	"time"

	"voice-companion/internal/domain/model"
)

// -----------------------------
// Proactive Suggestion State
// -----------------------------

// SuggestionStateStore owns per-session proactive state. Update runs fn
// under the session's lock, creating the state on first use; fn must not
// block. Get returns a copy.
type SuggestionStateStore interface {
	Update(key string, fn func(st *model.UserSuggestionState))
	Get(key string) (*model.UserSuggestionState, bool)
	Delete(key string)
	// SweepIdle removes states not touched since before cutoff.
	SweepIdle(cutoff time.Time) int
}
