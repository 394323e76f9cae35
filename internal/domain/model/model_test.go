//go:build !integration

package model

import (
	"strings"
	"testing"
	"time"
)

// --- Emotion Tests ---

func TestParseEmotionLabel(t *testing.T) {
	cases := map[string]EmotionLabel{
		"joy":       EmotionJoy,
		" Anger ":   EmotionAnger,
		"슬픔":        EmotionSorrow,
		"두려움":       EmotionSorrow,
		"fear":      EmotionSorrow,
		"애(슬픔)":     EmotionSorrow,
		"노(화남)":     EmotionAnger,
		"\"미움\"":    EmotionHate,
		"욕심":        EmotionDesire,
		"즐거움":       EmotionPleasure,
		"사랑":        EmotionLove,
		"happiness": EmotionJoy,
	}
	for raw, want := range cases {
		got, ok := ParseEmotionLabel(raw)
		if !ok || got != want {
			t.Errorf("ParseEmotionLabel(%q) = %q,%v; want %q", raw, got, ok, want)
		}
	}

	for _, raw := range []string{"", "bored", "nostalgia", "()"} {
		if l, ok := ParseEmotionLabel(raw); ok {
			t.Errorf("expected %q to be rejected, got %q", raw, l)
		}
	}
}

func TestNewEmotionProfile(t *testing.T) {
	t.Run("should clamp and fill every label", func(t *testing.T) {
		p := NewEmotionProfile(map[EmotionLabel]int{EmotionAnger: 140, EmotionJoy: -3}, EmotionAnger)
		if len(p.Intensities) != len(EmotionLabels) {
			t.Fatalf("expected %d keys, got %d", len(EmotionLabels), len(p.Intensities))
		}
		for l, v := range p.Intensities {
			if v < 0 || v > 100 {
				t.Errorf("intensity for %s out of range: %d", l, v)
			}
		}
		if p.Intensities[EmotionAnger] != 100 || p.Intensities[EmotionJoy] != 0 {
			t.Errorf("unexpected clamp result: %+v", p.Intensities)
		}
	})

	t.Run("should pick arg-max when dominant is invalid", func(t *testing.T) {
		p := NewEmotionProfile(map[EmotionLabel]int{EmotionHate: 40, EmotionLove: 40, EmotionDesire: 10}, "")
		if p.Dominant != EmotionLove {
			t.Errorf("expected first max in canonical order (love), got %s", p.Dominant)
		}
	})

	t.Run("default profile is all zero with joy dominant", func(t *testing.T) {
		p := DefaultEmotionProfile()
		if !p.IsZero() || p.Dominant != EmotionJoy {
			t.Errorf("unexpected default profile: %+v", p)
		}
	})
}

func TestEmotionProfileSummary(t *testing.T) {
	p := NewEmotionProfile(map[EmotionLabel]int{EmotionJoy: 10, EmotionAnger: 5}, EmotionJoy)
	s := p.Summary()
	if !strings.HasPrefix(s, "기쁨 10%, 분노 5%, 슬픔 0%") {
		t.Errorf("unexpected summary %q", s)
	}
	if got := p.Percentages()["기쁨"]; got != 10 {
		t.Errorf("expected 기쁨=10, got %d", got)
	}
}

func TestPartition(t *testing.T) {
	p, err := NewPartition([]string{"anger", "sorrow", "hate", "fear"})
	if err != nil {
		t.Fatalf("NewPartition: %v", err)
	}
	for _, l := range []EmotionLabel{EmotionAnger, EmotionSorrow, EmotionHate} {
		if p.Track(l) != TrackRecommend {
			t.Errorf("%s should route to recommend", l)
		}
	}
	for _, l := range []EmotionLabel{EmotionJoy, EmotionPleasure, EmotionLove, EmotionDesire} {
		if p.Track(l) != TrackConverse {
			t.Errorf("%s should route to converse", l)
		}
	}

	if _, err := NewPartition([]string{"anger", "grumpy"}); err == nil {
		t.Error("expected unknown label to be rejected")
	}
}

// --- Suggestion State Tests ---

func TestUserSuggestionState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := NewUserSuggestionState([]int{0, 1, 2, 30}, now)

	for _, typ := range SuggestionTypes {
		if st.PrefWeights[typ] != 1.0 {
			t.Errorf("initial weight for %s = %v; want 1.0", typ, st.PrefWeights[typ])
		}
	}
	if !st.InQuietHours(1) || st.InQuietHours(30) || st.InQuietHours(12) {
		t.Errorf("unexpected quiet hours: %v", st.QuietHourList())
	}

	for i := 0; i < 15; i++ {
		st.AddReason(string(rune('a' + i)))
	}
	if len(st.RecentReasons) != 10 {
		t.Fatalf("expected 10 reasons kept, got %d", len(st.RecentReasons))
	}
	if st.RecentReasons[0] != "f" || st.RecentReasons[9] != "o" {
		t.Errorf("expected oldest reasons dropped, got %v", st.RecentReasons)
	}

	c := st.Clone()
	c.PrefWeights[SuggestMusic] = 2.5
	c.AddReason("x")
	if st.PrefWeights[SuggestMusic] != 1.0 || st.RecentReasons[9] != "o" {
		t.Error("clone must not share state with the original")
	}
}

func TestParseSuggestionType(t *testing.T) {
	if typ, ok := ParseSuggestionType(" Music "); !ok || typ != SuggestMusic {
		t.Errorf("expected music, got %q %v", typ, ok)
	}
	if _, ok := ParseSuggestionType("podcast"); ok {
		t.Error("expected podcast to be rejected")
	}
}

// --- Character Tests ---

func TestCatalog(t *testing.T) {
	cat := NewCatalog(Character{ID: "Mina", Name: "Mina", Persona: "p"})

	if got := cat.Get("unknown").ID; got != DefaultCharacterID {
		t.Errorf("unknown id should fall back to %s, got %s", DefaultCharacterID, got)
	}
	mina := cat.Get("mina")
	if mina.Suggest == "" || mina.Voice == "" {
		t.Errorf("overlay character should inherit default tones and voice: %+v", mina)
	}
	if cat.Get("haru").Voice != "nova" {
		t.Errorf("haru voice should be nova")
	}
	if cat.Get("hiyori").Empathize != cat.Get("kei").Empathize {
		t.Error("hiyori should fall back to kei tones")
	}
	if n := len(cat.List()); n != 4 {
		t.Errorf("expected 4 characters, got %d", n)
	}
}

func TestCharacterTone(t *testing.T) {
	kei := NewCatalog().Get("kei")

	anger := kei.Tone(EmotionAnger)
	if !strings.Contains(anger, "노(화남)") || !strings.Contains(anger, "집중해보는") {
		t.Errorf("anger should use the suggest tone, got %q", anger)
	}
	sorrow := kei.Tone(EmotionSorrow)
	if !strings.Contains(sorrow, "애(슬픔)") || !strings.Contains(sorrow, "헤아릴") {
		t.Errorf("sorrow should use the empathize tone, got %q", sorrow)
	}
}

func TestCharacterSystemPrompt(t *testing.T) {
	kei := NewCatalog().Get("kei")
	p := NewEmotionProfile(map[EmotionLabel]int{EmotionJoy: 80}, EmotionJoy)
	sp := kei.SystemPrompt(p)
	if !strings.HasPrefix(sp, kei.Persona) {
		t.Error("system prompt should start with the persona")
	}
	if !strings.Contains(sp, "기쁨 80%") || !strings.Contains(sp, "가장 높은 감정(기쁨)") {
		t.Errorf("missing emotion addendum: %q", sp)
	}
}
