package model

import (
	"fmt"
	"strings"
)

// EmotionLabel is one of the seven affects. The zero value is invalid.
type EmotionLabel string

const (
	EmotionJoy      EmotionLabel = "joy"
	EmotionAnger    EmotionLabel = "anger"
	EmotionSorrow   EmotionLabel = "sorrow"
	EmotionPleasure EmotionLabel = "pleasure"
	EmotionLove     EmotionLabel = "love"
	EmotionHate     EmotionLabel = "hate"
	EmotionDesire   EmotionLabel = "desire"
)

// EmotionLabels is the fixed label set in canonical order. Ties are broken
// by this order wherever a single label has to be picked.
var EmotionLabels = []EmotionLabel{
	EmotionJoy, EmotionAnger, EmotionSorrow, EmotionPleasure,
	EmotionLove, EmotionHate, EmotionDesire,
}

// labelAliases maps every raw spelling a classifier has been seen to emit
// onto the canonical label. Keys are lower-cased and trimmed.
var labelAliases = map[string]EmotionLabel{
	"joy": EmotionJoy, "happy": EmotionJoy, "happiness": EmotionJoy, "기쁨": EmotionJoy, "희": EmotionJoy, "喜": EmotionJoy,
	"anger": EmotionAnger, "angry": EmotionAnger, "rage": EmotionAnger, "분노": EmotionAnger, "노": EmotionAnger, "怒": EmotionAnger,
	"sorrow": EmotionSorrow, "sad": EmotionSorrow, "sadness": EmotionSorrow, "grief": EmotionSorrow, "슬픔": EmotionSorrow, "애": EmotionSorrow, "哀": EmotionSorrow,
	"fear": EmotionSorrow, "afraid": EmotionSorrow, "anxiety": EmotionSorrow, "두려움": EmotionSorrow, "구": EmotionSorrow, "懼": EmotionSorrow,
	"pleasure": EmotionPleasure, "fun": EmotionPleasure, "enjoyment": EmotionPleasure, "즐거움": EmotionPleasure, "락": EmotionPleasure, "樂": EmotionPleasure,
	"love": EmotionLove, "affection": EmotionLove, "사랑": EmotionLove, "愛": EmotionLove,
	"hate": EmotionHate, "hatred": EmotionHate, "disgust": EmotionHate, "미움": EmotionHate, "오": EmotionHate, "惡": EmotionHate,
	"desire": EmotionDesire, "greed": EmotionDesire, "욕심": EmotionDesire, "욕": EmotionDesire, "欲": EmotionDesire,
}

var localNames = map[EmotionLabel]string{
	EmotionJoy:      "기쁨",
	EmotionAnger:    "분노",
	EmotionSorrow:   "슬픔",
	EmotionPleasure: "즐거움",
	EmotionLove:     "사랑",
	EmotionHate:     "미움",
	EmotionDesire:   "욕심",
}

var toneCategories = map[EmotionLabel]string{
	EmotionJoy:      "희(기쁨)",
	EmotionAnger:    "노(화남)",
	EmotionSorrow:   "애(슬픔)",
	EmotionPleasure: "락(즐거움)",
	EmotionLove:     "애(사랑)",
	EmotionHate:     "오(싫어함)",
	EmotionDesire:   "욕(욕심)",
}

// ParseEmotionLabel maps a raw label onto the canonical set.
// Parenthesised glosses such as "애(슬픔)" are accepted; the gloss wins
// over the prefix since single-character prefixes are ambiguous.
func ParseEmotionLabel(raw string) (EmotionLabel, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, `"'`)
	if l, ok := labelAliases[s]; ok {
		return l, true
	}
	if i := strings.IndexAny(s, "(（"); i > 0 {
		inner := strings.TrimRight(s[i:], ")）")
		inner = strings.TrimLeft(inner, "(（")
		if l, ok := labelAliases[strings.TrimSpace(inner)]; ok {
			return l, true
		}
		if l, ok := labelAliases[strings.TrimSpace(s[:i])]; ok {
			return l, true
		}
	}
	return "", false
}

func (l EmotionLabel) Valid() bool {
	_, ok := localNames[l]
	return ok
}

// LocalName is the Korean seven-affect name used in prompts.
func (l EmotionLabel) LocalName() string {
	if n, ok := localNames[l]; ok {
		return n
	}
	return string(l)
}

// ToneCategory is the short category phrase spoken on the recommendation track.
func (l EmotionLabel) ToneCategory() string {
	if c, ok := toneCategories[l]; ok {
		return c
	}
	return "기타"
}

// EmotionProfile is the per-turn classification result. Intensities always
// carries every label in EmotionLabels, each within 0..100.
type EmotionProfile struct {
	Intensities map[EmotionLabel]int `json:"intensities"`
	Dominant    EmotionLabel         `json:"dominant"`
}

// NewEmotionProfile clamps intensities into range, fills absent labels with
// zero and, when dominant is not a valid label, picks the strongest one.
func NewEmotionProfile(raw map[EmotionLabel]int, dominant EmotionLabel) EmotionProfile {
	in := make(map[EmotionLabel]int, len(EmotionLabels))
	for _, l := range EmotionLabels {
		in[l] = ClampIntensity(raw[l])
	}
	if !dominant.Valid() {
		dominant = EmotionJoy
		best := -1
		for _, l := range EmotionLabels {
			if in[l] > best {
				best, dominant = in[l], l
			}
		}
	}
	return EmotionProfile{Intensities: in, Dominant: dominant}
}

// DefaultEmotionProfile is the documented fallback: all zero, dominant joy.
func DefaultEmotionProfile() EmotionProfile {
	return NewEmotionProfile(nil, EmotionJoy)
}

// ClampIntensity keeps v within 0..100.
func ClampIntensity(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// IsZero reports whether every intensity is zero.
func (p EmotionProfile) IsZero() bool {
	for _, v := range p.Intensities {
		if v != 0 {
			return false
		}
	}
	return true
}

// Summary renders "기쁨 10%, 분노 5%, ..." in canonical order.
func (p EmotionProfile) Summary() string {
	parts := make([]string, 0, len(EmotionLabels))
	for _, l := range EmotionLabels {
		parts = append(parts, fmt.Sprintf("%s %d%%", l.LocalName(), p.Intensities[l]))
	}
	return strings.Join(parts, ", ")
}

// Percentages returns the intensities keyed by local name, as clients expect.
func (p EmotionProfile) Percentages() map[string]int {
	out := make(map[string]int, len(p.Intensities))
	for _, l := range EmotionLabels {
		out[l.LocalName()] = p.Intensities[l]
	}
	return out
}

// Partition splits the label set into the recommendation track and the rest.
type Partition struct {
	negative map[EmotionLabel]struct{}
}

// NewPartition resolves raw label names through the alias table.
// Unknown names are an error.
func NewPartition(negative []string) (Partition, error) {
	p := Partition{negative: make(map[EmotionLabel]struct{}, len(negative))}
	for _, raw := range negative {
		l, ok := ParseEmotionLabel(raw)
		if !ok {
			return Partition{}, fmt.Errorf("unknown emotion label %q", raw)
		}
		p.negative[l] = struct{}{}
	}
	return p, nil
}

// Track returns the branch a dominant label routes to.
func (p Partition) Track(l EmotionLabel) Track {
	if _, ok := p.negative[l]; ok {
		return TrackRecommend
	}
	return TrackConverse
}
