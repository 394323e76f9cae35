// Package memory holds the process-lifetime stores: conversation history
// and proactive suggestion state.
package memory

import (
	"sync"
	"time"

	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/repository"
)

var _ repository.HistoryStore = (*HistoryStore)(nil)

type historySession struct {
	mu      sync.Mutex
	turns   []model.Turn
	touched time.Time
	dead    bool // set when swept; writers must re-resolve the session
}

// HistoryStore is a session-keyed bounded FIFO of turns.
type HistoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*historySession
	maxLen   int
	now      func() time.Time
}

// NewHistoryStore creates a store that keeps at most maxLen turns per session.
func NewHistoryStore(maxLen int) *HistoryStore {
	if maxLen <= 0 {
		maxLen = 6
	}
	return &HistoryStore{
		sessions: make(map[string]*historySession),
		maxLen:   maxLen,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (h *HistoryStore) WithClock(now func() time.Time) *HistoryStore {
	h.now = now
	return h
}

func (h *HistoryStore) MaxLen() int { return h.maxLen }

func normKey(key string) string {
	if key == "" {
		return repository.GlobalSessionKey
	}
	return key
}

func (h *HistoryStore) lookup(key string) *historySession {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[key]
}

func (h *HistoryStore) getOrCreate(key string) *historySession {
	if s := h.lookup(key); s != nil {
		return s
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if s := h.sessions[key]; s != nil {
		return s
	}
	s := &historySession{turns: make([]model.Turn, 0, h.maxLen), touched: h.now()}
	h.sessions[key] = s
	return s
}

func (h *HistoryStore) Append(key string, turns ...model.Turn) {
	if len(turns) == 0 {
		return
	}
	key = normKey(key)
	for {
		s := h.getOrCreate(key)
		s.mu.Lock()
		if s.dead {
			s.mu.Unlock()
			continue
		}
		s.turns = append(s.turns, turns...)
		s.trimLocked(h.maxLen)
		s.touched = h.now()
		s.mu.Unlock()
		return
	}
}

func (s *historySession) trimLocked(maxLen int) {
	if maxLen < 0 {
		maxLen = 0
	}
	if over := len(s.turns) - maxLen; over > 0 {
		kept := make([]model.Turn, maxLen, cap(s.turns))
		copy(kept, s.turns[over:])
		s.turns = kept
	}
}

func (h *HistoryStore) Snapshot(key string, limit int) []model.Turn {
	s := h.lookup(normKey(key))
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.turns
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]model.Turn, len(src))
	copy(out, src)
	return out
}

func (h *HistoryStore) EvictTo(key string, maxLen int) {
	s := h.lookup(normKey(key))
	if s == nil {
		return
	}
	s.mu.Lock()
	s.trimLocked(maxLen)
	s.mu.Unlock()
}

func (h *HistoryStore) Len(key string) int {
	s := h.lookup(normKey(key))
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

func (h *HistoryStore) Purge(key string) {
	key = normKey(key)
	h.mu.Lock()
	s := h.sessions[key]
	delete(h.sessions, key)
	h.mu.Unlock()
	if s != nil {
		s.mu.Lock()
		s.dead = true
		s.turns = nil
		s.mu.Unlock()
	}
}

func (h *HistoryStore) SweepIdle(cutoff time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for k, s := range h.sessions {
		s.mu.Lock()
		if s.touched.Before(cutoff) {
			s.dead = true
			delete(h.sessions, k)
			n++
		}
		s.mu.Unlock()
	}
	return n
}

func (h *HistoryStore) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
