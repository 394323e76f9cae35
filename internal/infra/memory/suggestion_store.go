package memory

import (
	"sync"
	"time"

	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/repository"
)

var _ repository.SuggestionStateStore = (*SuggestionStore)(nil)

type suggestionEntry struct {
	mu   sync.Mutex
	st   *model.UserSuggestionState
	dead bool
}

// SuggestionStore keeps per-session proactive state in memory.
type SuggestionStore struct {
	mu         sync.RWMutex
	entries    map[string]*suggestionEntry
	quietHours []int
	now        func() time.Time
}

// NewSuggestionStore creates a store whose new states start with the given
// quiet hours.
func NewSuggestionStore(defaultQuietHours []int) *SuggestionStore {
	return &SuggestionStore{
		entries:    make(map[string]*suggestionEntry),
		quietHours: append([]int(nil), defaultQuietHours...),
		now:        time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *SuggestionStore) WithClock(now func() time.Time) *SuggestionStore {
	s.now = now
	return s
}

func (s *SuggestionStore) entry(key string) *suggestionEntry {
	s.mu.RLock()
	e := s.entries[key]
	s.mu.RUnlock()
	if e != nil {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e = s.entries[key]; e != nil {
		return e
	}
	e = &suggestionEntry{st: model.NewUserSuggestionState(s.quietHours, s.now())}
	s.entries[key] = e
	return e
}

func (s *SuggestionStore) Update(key string, fn func(st *model.UserSuggestionState)) {
	key = normKey(key)
	for {
		e := s.entry(key)
		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		fn(e.st)
		e.st.LastSeen = s.now()
		e.mu.Unlock()
		return
	}
}

func (s *SuggestionStore) Get(key string) (*model.UserSuggestionState, bool) {
	s.mu.RLock()
	e := s.entries[normKey(key)]
	s.mu.RUnlock()
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return nil, false
	}
	return e.st.Clone(), true
}

func (s *SuggestionStore) Delete(key string) {
	key = normKey(key)
	s.mu.Lock()
	e := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()
	if e != nil {
		e.mu.Lock()
		e.dead = true
		e.mu.Unlock()
	}
}

func (s *SuggestionStore) SweepIdle(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		e.mu.Lock()
		if e.st.LastSeen.Before(cutoff) {
			e.dead = true
			delete(s.entries, k)
			n++
		}
		e.mu.Unlock()
	}
	return n
}

func (s *SuggestionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
