package model

import (
	"strings"
	"time"
)

type SuggestionType string

const (
	SuggestMusic     SuggestionType = "music"
	SuggestBreathing SuggestionType = "breathing"
	SuggestTimer     SuggestionType = "timer"
	SuggestMemo      SuggestionType = "memo"
	SuggestInfo      SuggestionType = "info"
)

// SuggestionTypes is the declaration order, used to break weight ties.
var SuggestionTypes = []SuggestionType{
	SuggestMusic, SuggestBreathing, SuggestTimer, SuggestMemo, SuggestInfo,
}

func ParseSuggestionType(s string) (SuggestionType, bool) {
	t := SuggestionType(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range SuggestionTypes {
		if k == t {
			return t, true
		}
	}
	return "", false
}

type BlockedReason string

const (
	BlockedNone        BlockedReason = ""
	BlockedCooldown    BlockedReason = "cooldown"
	BlockedQuietHours  BlockedReason = "quiet_hours"
	BlockedRejectRatio BlockedReason = "high_reject_ratio"
	BlockedLowScore    BlockedReason = "below_threshold"
)

// SuggestionCandidate is one ranked suggestion type.
type SuggestionCandidate struct {
	Type  SuggestionType `json:"type"`
	Score float64        `json:"score"`
}

// SuggestionDecision is the outcome of a should-suggest evaluation.
type SuggestionDecision struct {
	Allowed       bool                  `json:"allowed"`
	Score         float64               `json:"score"`
	BlockedReason BlockedReason         `json:"blocked_reason,omitempty"`
	Candidates    []SuggestionCandidate `json:"candidates,omitempty"`
}

// SuggestionContext is the signal set a decision is computed from.
type SuggestionContext struct {
	Emotion     string
	IdleSeconds float64
	Topic       string
}

const maxRecentReasons = 10

// UserSuggestionState is the per-session proactive state. It is created
// lazily and owned by a SuggestionStateStore.
type UserSuggestionState struct {
	LastSuggestAt time.Time                  `json:"last_suggest_at"`
	Accepts       int                        `json:"accepts"`
	Rejects       int                        `json:"rejects"`
	QuietHours    map[int]struct{}           `json:"-"`
	RecentReasons []string                   `json:"recent_reasons"`
	PrefWeights   map[SuggestionType]float64 `json:"pref_weights"`
	LastSeen      time.Time                  `json:"-"`
}

// NewUserSuggestionState builds a fresh state with every weight at 1.0.
func NewUserSuggestionState(quietHours []int, now time.Time) *UserSuggestionState {
	st := &UserSuggestionState{
		QuietHours:  make(map[int]struct{}, len(quietHours)),
		PrefWeights: make(map[SuggestionType]float64, len(SuggestionTypes)),
		LastSeen:    now,
	}
	st.SetQuietHours(quietHours)
	for _, t := range SuggestionTypes {
		st.PrefWeights[t] = 1.0
	}
	return st
}

func (s *UserSuggestionState) SetQuietHours(hours []int) {
	s.QuietHours = make(map[int]struct{}, len(hours))
	for _, h := range hours {
		if h >= 0 && h <= 23 {
			s.QuietHours[h] = struct{}{}
		}
	}
}

func (s *UserSuggestionState) InQuietHours(hour int) bool {
	_, ok := s.QuietHours[hour]
	return ok
}

// AddReason appends to the reason log, keeping only the newest entries.
func (s *UserSuggestionState) AddReason(reason string) {
	s.RecentReasons = append(s.RecentReasons, reason)
	if n := len(s.RecentReasons); n > maxRecentReasons {
		s.RecentReasons = append([]string(nil), s.RecentReasons[n-maxRecentReasons:]...)
	}
}

// Clone returns a deep copy safe to hand out of a locked store.
func (s *UserSuggestionState) Clone() *UserSuggestionState {
	c := *s
	c.QuietHours = make(map[int]struct{}, len(s.QuietHours))
	for h := range s.QuietHours {
		c.QuietHours[h] = struct{}{}
	}
	c.RecentReasons = append([]string(nil), s.RecentReasons...)
	c.PrefWeights = make(map[SuggestionType]float64, len(s.PrefWeights))
	for k, v := range s.PrefWeights {
		c.PrefWeights[k] = v
	}
	return &c
}

// QuietHourList returns the quiet hours sorted ascending.
func (s *UserSuggestionState) QuietHourList() []int {
	out := make([]int, 0, len(s.QuietHours))
	for h := 0; h < 24; h++ {
		if _, ok := s.QuietHours[h]; ok {
			out = append(out, h)
		}
	}
	return out
}
