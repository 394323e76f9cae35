package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/rs/zerolog"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
	"voice-companion/internal/infra/metrics"
)

// Compile-time check
var _ EmotionClassifier = (*emotionUC)(nil)

// EmotionClassifier estimates the seven-affect profile of an utterance.
// It always returns a usable profile; on failure that profile is
// model.DefaultEmotionProfile and the error wraps domain.ErrClassification.
type EmotionClassifier interface {
	Classify(ctx context.Context, text string) (model.EmotionProfile, error)
}

const emotionSystemPrompt = "당신은 감정 분석가입니다. 반드시 지정된 JSON 형식으로만 답하세요."

const emotionPromptTemplate = `다음 문장에서 유교의 7정(기쁨, 분노, 슬픔, 즐거움, 사랑, 미움, 욕심)에 대해 각각 0~100%%로 감정 비율을 추정해 주세요. 가장 높은 감정도 함께 알려주세요.
키는 %s 를 사용하고, 두려움은 sorrow 에 포함하세요.

문장: %s`

type emotionUC struct {
	llm    adapter.StructuredCompleter
	model  string
	schema *jsonschema.Schema
	log    *zerolog.Logger
}

func NewEmotionClassifier(llm adapter.StructuredCompleter, modelName string, logger *zerolog.Logger) *emotionUC {
	l := logger.With().Str("component", "emotion").Logger()
	return &emotionUC{llm: llm, model: modelName, schema: EmotionSchema(), log: &l}
}

// EmotionSchema describes {"intensities":{<label>:0..100,...},"dominant":<label>}.
func EmotionSchema() *jsonschema.Schema {
	lo, hi := 0.0, 100.0
	props := make(map[string]*jsonschema.Schema, len(model.EmotionLabels))
	required := make([]string, 0, len(model.EmotionLabels))
	enum := make([]any, 0, len(model.EmotionLabels))
	for _, l := range model.EmotionLabels {
		props[string(l)] = &jsonschema.Schema{
			Type:        "integer",
			Description: l.LocalName(),
			Minimum:     &lo,
			Maximum:     &hi,
		}
		required = append(required, string(l))
		enum = append(enum, string(l))
	}
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"intensities": {
				Type:       "object",
				Properties: props,
				Required:   required,
			},
			"dominant": {
				Type: "string",
				Enum: enum,
			},
		},
		Required: []string{"intensities", "dominant"},
	}
}

func (e *emotionUC) Classify(ctx context.Context, text string) (model.EmotionProfile, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.DefaultEmotionProfile(), nil
	}

	keys := make([]string, 0, len(model.EmotionLabels))
	for _, l := range model.EmotionLabels {
		keys = append(keys, string(l))
	}

	raw, err := e.llm.CompleteJSON(ctx, adapter.StructuredRequest{
		Model:       e.model,
		System:      emotionSystemPrompt,
		Prompt:      fmt.Sprintf(emotionPromptTemplate, strings.Join(keys, ", "), text),
		SchemaName:  "emotion_profile",
		Schema:      e.schema,
		MaxTokens:   256,
		Temperature: 0,
	})
	if err != nil {
		metrics.IncEmotionParse("call_failed")
		return model.DefaultEmotionProfile(), fmt.Errorf("%w: %v", domain.ErrClassification, err)
	}

	prof, strategy, ok := parseEmotion(raw)
	if !ok {
		metrics.IncEmotionParse("unparsed")
		e.log.Warn().Str("raw", truncate(raw, 200)).Msg("classifier output not parseable")
		return prof, fmt.Errorf("%w: unparseable output", domain.ErrClassification)
	}
	metrics.IncEmotionParse(strategy)
	return prof, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
