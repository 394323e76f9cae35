package usecase

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"voice-companion/internal/domain/model"
)

// emotionParser is one strategy for reading a classifier completion.
// Strategies are tried in order; the first that succeeds wins.
type emotionParser struct {
	name  string
	parse func(raw string) (model.EmotionProfile, bool)
}

var emotionParsers = []emotionParser{
	{name: "strict_json", parse: parseStrictEmotionJSON},
	{name: "label_suffix", parse: parseLabelSuffix},
	{name: "embedded_object", parse: parseEmbeddedObject},
}

// parseEmotion runs the chain and reports which strategy matched.
func parseEmotion(raw string) (model.EmotionProfile, string, bool) {
	for _, p := range emotionParsers {
		if prof, ok := p.parse(raw); ok {
			return prof, p.name, true
		}
	}
	return model.DefaultEmotionProfile(), "", false
}

type emotionEnvelope struct {
	Intensities map[string]any `json:"intensities"`
	Dominant    string         `json:"dominant"`
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// {"intensities":{"joy":10,...},"dominant":"joy"} and nothing else.
func parseStrictEmotionJSON(raw string) (model.EmotionProfile, bool) {
	dec := json.NewDecoder(strings.NewReader(stripFences(raw)))
	dec.UseNumber()
	var env emotionEnvelope
	if err := dec.Decode(&env); err != nil || dec.More() {
		return model.EmotionProfile{}, false
	}
	if env.Dominant == "" {
		return model.EmotionProfile{}, false
	}
	return profileFromRaw(env.Intensities, env.Dominant, true)
}

// {"기쁨":10, "분노":5, ...}, "슬픔"
var labelSuffixRe = regexp.MustCompile(`(?s)^\s*(\{.*?\})\s*,\s*"([^"]+)"`)

func parseLabelSuffix(raw string) (model.EmotionProfile, bool) {
	m := labelSuffixRe.FindStringSubmatch(stripFences(raw))
	if m == nil {
		return model.EmotionProfile{}, false
	}
	obj, ok := decodeLooseObject(m[1])
	if !ok {
		return model.EmotionProfile{}, false
	}
	return profileFromRaw(obj, m[2], true)
}

// Any text with a {...} somewhere inside; dominant from the object or arg-max.
func parseEmbeddedObject(raw string) (model.EmotionProfile, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return model.EmotionProfile{}, false
	}
	obj, ok := decodeLooseObject(raw[start : end+1])
	if !ok {
		return model.EmotionProfile{}, false
	}
	if inner, ok := obj["intensities"].(map[string]any); ok {
		dom, _ := obj["dominant"].(string)
		return profileFromRaw(inner, dom, dom != "")
	}
	dom, _ := obj["dominant"].(string)
	delete(obj, "dominant")
	return profileFromRaw(obj, dom, dom != "")
}

// decodeLooseObject accepts JSON, or python-literal style single quotes.
func decodeLooseObject(s string) (map[string]any, bool) {
	for _, candidate := range []string{s, strings.ReplaceAll(s, "'", `"`)} {
		dec := json.NewDecoder(strings.NewReader(candidate))
		dec.UseNumber()
		var out map[string]any
		if err := dec.Decode(&out); err == nil && out != nil {
			return out, true
		}
	}
	return nil, false
}

// profileFromRaw maps raw keys onto the canonical labels. Every canonical
// label must be present; keys that fold onto the same label keep the max;
// unmapped keys are ignored. A dominant that does not map is a failure.
func profileFromRaw(raw map[string]any, dominant string, requireDominant bool) (model.EmotionProfile, bool) {
	if len(raw) == 0 {
		return model.EmotionProfile{}, false
	}
	vals := make(map[model.EmotionLabel]int, len(model.EmotionLabels))
	seen := make(map[model.EmotionLabel]bool, len(model.EmotionLabels))
	for k, v := range raw {
		l, ok := model.ParseEmotionLabel(k)
		if !ok {
			continue
		}
		n, ok := toIntensity(v)
		if !ok {
			return model.EmotionProfile{}, false
		}
		if !seen[l] || n > vals[l] {
			vals[l] = n
		}
		seen[l] = true
	}
	for _, l := range model.EmotionLabels {
		if !seen[l] {
			return model.EmotionProfile{}, false
		}
	}

	var dom model.EmotionLabel
	if requireDominant {
		l, ok := model.ParseEmotionLabel(dominant)
		if !ok {
			return model.EmotionProfile{}, false
		}
		dom = l
	}
	return model.NewEmotionProfile(vals, dom), true
}

// toIntensity accepts numbers and numeric strings such as "35%".
func toIntensity(v any) (int, bool) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case float64:
		f = x
	case string:
		n, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(x), "%"), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return model.ClampIntensity(int(math.Round(f))), true
}
