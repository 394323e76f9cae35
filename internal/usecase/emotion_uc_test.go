package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/model"
)

func TestParseEmotion_Strategies(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		strategy string
		dominant model.EmotionLabel
		sorrow   int
	}{
		{
			name:     "strict json",
			raw:      `{"intensities":{"joy":5,"anger":10,"sorrow":70,"pleasure":0,"love":3,"hate":2,"desire":1},"dominant":"sorrow"}`,
			strategy: "strict_json",
			dominant: model.EmotionSorrow,
			sorrow:   70,
		},
		{
			name:     "fenced json",
			raw:      "```json\n{\"intensities\":{\"joy\":90,\"anger\":0,\"sorrow\":0,\"pleasure\":40,\"love\":10,\"hate\":0,\"desire\":0},\"dominant\":\"joy\"}\n```",
			strategy: "strict_json",
			dominant: model.EmotionJoy,
		},
		{
			name:     "korean keys with trailing label",
			raw:      `{"기쁨": 10, "분노": 60, "슬픔": 20, "즐거움": 0, "사랑": 0, "미움": 5, "욕심": 5}, "분노"`,
			strategy: "label_suffix",
			dominant: model.EmotionAnger,
			sorrow:   20,
		},
		{
			name:     "python literal with glossed label",
			raw:      `{'기쁨': '10%', '분노': '0%', '슬픔': '30%', '즐거움': '0%', '사랑': '50%', '미움': '0%', '욕심': '10%'}, "애(사랑)"`,
			strategy: "label_suffix",
			dominant: model.EmotionLove,
			sorrow:   30,
		},
		{
			name:     "object inside prose picks arg-max",
			raw:      `분석 결과입니다: {"joy": 1, "anger": 2, "sorrow": 3, "pleasure": 4, "love": 5, "hate": 60, "desire": 7} 참고하세요.`,
			strategy: "embedded_object",
			dominant: model.EmotionHate,
			sorrow:   3,
		},
		{
			name:     "fear folds into sorrow keeping the max",
			raw:      `{"intensities":{"joy":0,"anger":0,"sorrow":20,"fear":65,"pleasure":0,"love":0,"hate":0,"desire":0},"dominant":"fear"}`,
			strategy: "strict_json",
			dominant: model.EmotionSorrow,
			sorrow:   65,
		},
		{
			name:     "out of range values are clamped",
			raw:      `{"intensities":{"joy":150,"anger":-5,"sorrow":0,"pleasure":0,"love":0,"hate":0,"desire":0},"dominant":"joy"}`,
			strategy: "strict_json",
			dominant: model.EmotionJoy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prof, strategy, ok := parseEmotion(tt.raw)
			if !ok {
				t.Fatalf("expected a parse, got none")
			}
			if strategy != tt.strategy {
				t.Errorf("strategy = %s, want %s", strategy, tt.strategy)
			}
			if prof.Dominant != tt.dominant {
				t.Errorf("dominant = %s, want %s", prof.Dominant, tt.dominant)
			}
			if prof.Intensities[model.EmotionSorrow] != tt.sorrow {
				t.Errorf("sorrow = %d, want %d", prof.Intensities[model.EmotionSorrow], tt.sorrow)
			}
			if len(prof.Intensities) != len(model.EmotionLabels) {
				t.Errorf("expected all %d labels, got %d", len(model.EmotionLabels), len(prof.Intensities))
			}
			for l, v := range prof.Intensities {
				if v < 0 || v > 100 {
					t.Errorf("%s out of range: %d", l, v)
				}
			}
		})
	}
}

func TestParseEmotion_Rejects(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":             "",
		"prose":             "I think the user is sad.",
		"missing labels":    `{"intensities":{"joy":10},"dominant":"joy"}`,
		"unmapped dominant": `{"intensities":{"joy":1,"anger":1,"sorrow":1,"pleasure":1,"love":1,"hate":1,"desire":1},"dominant":"boredom"}`,
		"non numeric":       `{"intensities":{"joy":"lots","anger":1,"sorrow":1,"pleasure":1,"love":1,"hate":1,"desire":1},"dominant":"joy"}`,
	} {
		t.Run(name, func(t *testing.T) {
			prof, _, ok := parseEmotion(raw)
			if ok {
				t.Fatalf("expected rejection, got %+v", prof)
			}
			if !reflect.DeepEqual(prof, model.DefaultEmotionProfile()) {
				t.Errorf("rejection should yield the default profile, got %+v", prof)
			}
		})
	}
}

func TestEmotionClassifier_Classify(t *testing.T) {
	t.Run("structured request", func(t *testing.T) {
		llm := &stubCompleter{out: `{"intensities":{"joy":80,"anger":0,"sorrow":0,"pleasure":30,"love":0,"hate":0,"desire":0},"dominant":"joy"}`}
		c := NewEmotionClassifier(llm, "gpt-4o", testLogger())

		prof, err := c.Classify(context.Background(), "시험에 합격했어!")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if prof.Dominant != model.EmotionJoy || prof.Intensities[model.EmotionJoy] != 80 {
			t.Errorf("unexpected profile %+v", prof)
		}
		if llm.last.Model != "gpt-4o" || llm.last.Schema == nil || llm.last.Temperature != 0 {
			t.Errorf("unexpected request %+v", llm.last)
		}
	})

	t.Run("empty text skips the provider", func(t *testing.T) {
		llm := &stubCompleter{}
		c := NewEmotionClassifier(llm, "m", testLogger())
		prof, err := c.Classify(context.Background(), "   ")
		if err != nil || llm.calls != 0 {
			t.Fatalf("expected no call and no error, got calls=%d err=%v", llm.calls, err)
		}
		if !reflect.DeepEqual(prof, model.DefaultEmotionProfile()) {
			t.Errorf("expected default profile, got %+v", prof)
		}
	})

	t.Run("provider error", func(t *testing.T) {
		c := NewEmotionClassifier(&stubCompleter{err: errProvider}, "m", testLogger())
		prof, err := c.Classify(context.Background(), "hi")
		if !errors.Is(err, domain.ErrClassification) {
			t.Fatalf("expected ErrClassification, got %v", err)
		}
		if !reflect.DeepEqual(prof, model.DefaultEmotionProfile()) {
			t.Errorf("expected default profile, got %+v", prof)
		}
	})

	t.Run("malformed output falls back identically every time", func(t *testing.T) {
		c := NewEmotionClassifier(&stubCompleter{out: "기분이 좋아 보이네요"}, "m", testLogger())
		first, err1 := c.Classify(context.Background(), "hi")
		second, err2 := c.Classify(context.Background(), "hi")
		if !errors.Is(err1, domain.ErrClassification) || !errors.Is(err2, domain.ErrClassification) {
			t.Fatalf("expected ErrClassification twice, got %v / %v", err1, err2)
		}
		if !reflect.DeepEqual(first, second) || !reflect.DeepEqual(first, model.DefaultEmotionProfile()) {
			t.Errorf("fallback not idempotent: %+v vs %+v", first, second)
		}
	})
}

func TestEmotionSchema(t *testing.T) {
	b, err := json.Marshal(EmotionSchema())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc struct {
		Required   []string `json:"required"`
		Properties struct {
			Intensities struct {
				Required []string `json:"required"`
			} `json:"intensities"`
			Dominant struct {
				Enum []string `json:"enum"`
			} `json:"dominant"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Required) != 2 {
		t.Errorf("expected intensities and dominant required, got %v", doc.Required)
	}
	if len(doc.Properties.Intensities.Required) != 7 || len(doc.Properties.Dominant.Enum) != 7 {
		t.Errorf("schema should cover all seven labels: %s", b)
	}
}
