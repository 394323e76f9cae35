package usecase

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/repository"
	"voice-companion/internal/infra/metrics"
)

// Compile-time check
var _ SuggestionUseCase = (*suggestionUC)(nil)

// SuggestionUseCase decides whether and what to suggest proactively, and
// learns per-session preference weights from feedback.
type SuggestionUseCase interface {
	ShouldSuggest(key string, sc model.SuggestionContext) model.SuggestionDecision
	ChooseTypes(key string, topK int) []model.SuggestionType
	RecordSuggested(key, reason string)
	RecordFeedback(key string, t model.SuggestionType, accepted bool) error
	SetQuietHours(key string, hours []int) error
	// Evaluate runs ShouldSuggest and, when allowed, attaches the top-k
	// candidates and optionally stamps the suggestion.
	Evaluate(key string, sc model.SuggestionContext, stamp bool) model.SuggestionDecision
	State(key string) (*model.UserSuggestionState, bool)
}

// SuggestionPolicy holds the tunables. Zero fields take the defaults from
// DefaultSuggestionPolicy.
type SuggestionPolicy struct {
	Cooldown         time.Duration
	RejectRatioBlock float64
	MinFeedback      int
	Threshold        float64
	WorkStart        int // inclusive hour
	WorkEnd          int // inclusive hour
	StressKeywords   []string
	WorkKeywords     []string

	EmotionWeight float64
	IdleCap       float64
	IdleDivisor   float64 // idle term is min(IdleCap, idle/IdleDivisor)
	WorkBonus     float64

	Alpha     float64
	Beta      float64
	MinWeight float64
	MaxWeight float64
	TopK      int

	Location *time.Location
}

func DefaultSuggestionPolicy() SuggestionPolicy {
	return SuggestionPolicy{
		Cooldown:         45 * time.Minute,
		RejectRatioBlock: 0.6,
		MinFeedback:      5,
		Threshold:        0.6,
		WorkStart:        9,
		WorkEnd:          19,
		StressKeywords:   []string{"sad", "ang", "stres", "tired", "anx"},
		WorkKeywords:     []string{"work", "task", "focus", "study"},
		EmotionWeight:    0.30,
		IdleCap:          0.30,
		IdleDivisor:      300,
		WorkBonus:        0.10,
		Alpha:            0.25,
		Beta:             0.2,
		MinWeight:        0.2,
		MaxWeight:        3.0,
		TopK:             2,
		Location:         time.Local,
	}
}

func (p SuggestionPolicy) withDefaults() SuggestionPolicy {
	d := DefaultSuggestionPolicy()
	if p.Cooldown <= 0 {
		p.Cooldown = d.Cooldown
	}
	if p.RejectRatioBlock <= 0 {
		p.RejectRatioBlock = d.RejectRatioBlock
	}
	if p.MinFeedback <= 0 {
		p.MinFeedback = d.MinFeedback
	}
	if p.Threshold <= 0 {
		p.Threshold = d.Threshold
	}
	if p.WorkStart == 0 && p.WorkEnd == 0 {
		p.WorkStart, p.WorkEnd = d.WorkStart, d.WorkEnd
	}
	if len(p.StressKeywords) == 0 {
		p.StressKeywords = d.StressKeywords
	}
	if len(p.WorkKeywords) == 0 {
		p.WorkKeywords = d.WorkKeywords
	}
	if p.EmotionWeight <= 0 {
		p.EmotionWeight = d.EmotionWeight
	}
	if p.IdleCap <= 0 {
		p.IdleCap = d.IdleCap
	}
	if p.IdleDivisor <= 0 {
		p.IdleDivisor = d.IdleDivisor
	}
	if p.WorkBonus <= 0 {
		p.WorkBonus = d.WorkBonus
	}
	if p.Alpha <= 0 {
		p.Alpha = d.Alpha
	}
	if p.Beta <= 0 {
		p.Beta = d.Beta
	}
	if p.MinWeight <= 0 {
		p.MinWeight = d.MinWeight
	}
	if p.MaxWeight <= 0 {
		p.MaxWeight = d.MaxWeight
	}
	if p.TopK <= 0 {
		p.TopK = d.TopK
	}
	if p.Location == nil {
		p.Location = d.Location
	}
	return p
}

type suggestionUC struct {
	store     repository.SuggestionStateStore
	policy    SuggestionPolicy
	partition model.Partition
	now       func() time.Time
	log       *zerolog.Logger
}

// NewSuggestionUseCase wires the policy to a state store. The partition is
// used to treat negative canonical labels as stress-coded alongside the
// keyword list.
func NewSuggestionUseCase(store repository.SuggestionStateStore, policy SuggestionPolicy, partition model.Partition, logger *zerolog.Logger) *suggestionUC {
	l := logger.With().Str("component", "proactive").Logger()
	return &suggestionUC{
		store:     store,
		policy:    policy.withDefaults(),
		partition: partition,
		now:       time.Now,
		log:       &l,
	}
}

// WithClock replaces the time source, for tests.
func (s *suggestionUC) WithClock(now func() time.Time) *suggestionUC {
	s.now = now
	return s
}

func (s *suggestionUC) hour(t time.Time) int {
	return t.In(s.policy.Location).Hour()
}

// guard returns the first hard guard that trips, in order: cooldown,
// quiet hours, reject ratio.
func (s *suggestionUC) guard(st *model.UserSuggestionState, now time.Time) model.BlockedReason {
	if !st.LastSuggestAt.IsZero() && now.Sub(st.LastSuggestAt) < s.policy.Cooldown {
		return model.BlockedCooldown
	}
	if st.InQuietHours(s.hour(now)) {
		return model.BlockedQuietHours
	}
	total := st.Accepts + st.Rejects
	if total >= s.policy.MinFeedback && float64(st.Rejects)/float64(total) >= s.policy.RejectRatioBlock {
		return model.BlockedRejectRatio
	}
	return model.BlockedNone
}

func (s *suggestionUC) stressCoded(emotion string) bool {
	if l, ok := model.ParseEmotionLabel(emotion); ok && s.partition.Track(l) == model.TrackRecommend {
		return true
	}
	emo := strings.ToLower(emotion)
	for _, k := range s.policy.StressKeywords {
		if k != "" && strings.Contains(emo, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func (s *suggestionUC) score(sc model.SuggestionContext, now time.Time) float64 {
	score := 0.0
	if s.stressCoded(sc.Emotion) {
		score += s.policy.EmotionWeight
	}
	idle := sc.IdleSeconds
	if idle < 0 {
		idle = 0
	}
	score += min(s.policy.IdleCap, idle/s.policy.IdleDivisor)

	h := s.hour(now)
	if h >= s.policy.WorkStart && h <= s.policy.WorkEnd && sc.Topic != "" {
		topic := strings.ToLower(sc.Topic)
		for _, k := range s.policy.WorkKeywords {
			if k != "" && strings.Contains(topic, strings.ToLower(k)) {
				score += s.policy.WorkBonus
				break
			}
		}
	}
	return score
}

func (s *suggestionUC) ShouldSuggest(key string, sc model.SuggestionContext) model.SuggestionDecision {
	var dec model.SuggestionDecision
	s.store.Update(key, func(st *model.UserSuggestionState) {
		dec = s.decideLocked(st, sc)
	})
	s.observe(dec)
	return dec
}

func (s *suggestionUC) decideLocked(st *model.UserSuggestionState, sc model.SuggestionContext) model.SuggestionDecision {
	now := s.now()
	if reason := s.guard(st, now); reason != model.BlockedNone {
		return model.SuggestionDecision{BlockedReason: reason}
	}
	score := s.score(sc, now)
	dec := model.SuggestionDecision{Allowed: score >= s.policy.Threshold, Score: score}
	if !dec.Allowed {
		dec.BlockedReason = model.BlockedLowScore
	}
	return dec
}

func (s *suggestionUC) observe(dec model.SuggestionDecision) {
	outcome := "allowed"
	if !dec.Allowed {
		outcome = "blocked"
	}
	metrics.IncSuggestionDecision(outcome, string(dec.BlockedReason))
}

func (s *suggestionUC) ChooseTypes(key string, topK int) []model.SuggestionType {
	var out []model.SuggestionType
	s.store.Update(key, func(st *model.UserSuggestionState) {
		for _, c := range s.rankLocked(st, topK) {
			out = append(out, c.Type)
		}
	})
	return out
}

// rankLocked orders types by weight, keeping declaration order on ties.
func (s *suggestionUC) rankLocked(st *model.UserSuggestionState, topK int) []model.SuggestionCandidate {
	if topK <= 0 {
		topK = s.policy.TopK
	}
	s.clampWeightsLocked(st)
	cands := make([]model.SuggestionCandidate, 0, len(model.SuggestionTypes))
	for _, t := range model.SuggestionTypes {
		cands = append(cands, model.SuggestionCandidate{Type: t, Score: st.PrefWeights[t]})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })
	if topK < len(cands) {
		cands = cands[:topK]
	}
	return cands
}

func (s *suggestionUC) RecordSuggested(key, reason string) {
	s.store.Update(key, func(st *model.UserSuggestionState) {
		s.stampLocked(st, reason)
	})
}

func (s *suggestionUC) stampLocked(st *model.UserSuggestionState, reason string) {
	st.LastSuggestAt = s.now()
	st.AddReason(reason)
}

func (s *suggestionUC) clampWeight(w float64) float64 {
	return max(s.policy.MinWeight, min(s.policy.MaxWeight, w))
}

// clampWeightsLocked pulls every weight into [MinWeight, MaxWeight]. Fresh
// states start at 1.0, which may lie outside configured bounds.
func (s *suggestionUC) clampWeightsLocked(st *model.UserSuggestionState) {
	if st.PrefWeights == nil {
		st.PrefWeights = make(map[model.SuggestionType]float64, len(model.SuggestionTypes))
	}
	for _, t := range model.SuggestionTypes {
		w, ok := st.PrefWeights[t]
		if !ok {
			w = 1.0
		}
		st.PrefWeights[t] = s.clampWeight(w)
	}
}

func (s *suggestionUC) RecordFeedback(key string, t model.SuggestionType, accepted bool) error {
	if _, ok := model.ParseSuggestionType(string(t)); !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownType, t)
	}
	s.store.Update(key, func(st *model.UserSuggestionState) {
		s.clampWeightsLocked(st)
		w := st.PrefWeights[t]
		if accepted {
			st.Accepts++
			w += s.policy.Alpha
		} else {
			st.Rejects++
			w -= s.policy.Beta
		}
		st.PrefWeights[t] = s.clampWeight(w)
	})
	metrics.IncSuggestionFeedback(string(t), accepted)
	return nil
}

func (s *suggestionUC) SetQuietHours(key string, hours []int) error {
	for _, h := range hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("%w: quiet hour %d out of range", domain.ErrInvalidArgument, h)
		}
	}
	s.store.Update(key, func(st *model.UserSuggestionState) {
		st.SetQuietHours(hours)
	})
	return nil
}

func (s *suggestionUC) Evaluate(key string, sc model.SuggestionContext, stamp bool) model.SuggestionDecision {
	var dec model.SuggestionDecision
	s.store.Update(key, func(st *model.UserSuggestionState) {
		dec = s.decideLocked(st, sc)
		if !dec.Allowed {
			return
		}
		dec.Candidates = s.rankLocked(st, 0)
		if stamp {
			s.stampLocked(st, reasonFor(sc, dec))
		}
	})
	s.observe(dec)
	if dec.Allowed {
		s.log.Debug().Str("session_id", key).Float64("score", dec.Score).Bool("stamped", stamp).Msg("suggestion allowed")
	}
	return dec
}

func reasonFor(sc model.SuggestionContext, dec model.SuggestionDecision) string {
	return fmt.Sprintf("emotion=%s idle=%.0fs topic=%s score=%.2f", sc.Emotion, sc.IdleSeconds, sc.Topic, dec.Score)
}

func (s *suggestionUC) State(key string) (*model.UserSuggestionState, bool) {
	return s.store.Get(key)
}
