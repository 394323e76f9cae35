package model

import (
	"sort"
	"strings"
)

// DefaultCharacterID is used when a request names an unknown character.
const DefaultCharacterID = "kei"

const categoryPlaceholder = "{category}"

// Character is a persona the assistant speaks as.
type Character struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Persona string `json:"-"`
	Voice   string `json:"voice"`
	// Tone templates for the recommendation track; {category} is replaced
	// by the emotion's tone category.
	Suggest   string `json:"-"`
	Empathize string `json:"-"`
}

// Tone renders the recommendation sentence for the dominant label.
// Sorrow (which also covers fear) gets the empathetic variant.
func (c Character) Tone(l EmotionLabel) string {
	tpl := c.Suggest
	if l == EmotionSorrow {
		tpl = c.Empathize
	}
	return strings.ReplaceAll(tpl, categoryPlaceholder, l.ToneCategory())
}

// SystemPrompt is the persona followed by the emotion analysis addendum.
func (c Character) SystemPrompt(p EmotionProfile) string {
	var b strings.Builder
	b.WriteString(c.Persona)
	b.WriteString("\n\n[7정 감정 분석 결과] ")
	b.WriteString(p.Summary())
	b.WriteString(".\n가장 높은 감정(")
	b.WriteString(p.Dominant.LocalName())
	b.WriteString(")에 공감하여 답변해 주세요.")
	return b.String()
}

var builtinCharacters = []Character{
	{
		ID:        "kei",
		Name:      "Kei",
		Persona:   "당신은 창의적이고 현대적인 감각을 지닌 캐릭터로, 독특한 은발과 에메랄드빛 눈동자가 특징입니다. 사용자의 이야기에서 감정을 파악하고, 이 감정에 공감 기반이되 실용적인 관점을 놓치지 않고, 따뜻하고 세련된 톤으로 2문장 이내의 답변을 제공해주세요.",
		Voice:     "alloy",
		Suggest:   "그런 {category} 감정을 느끼실 땐, 잠시 다른 곳에 집중해보는 건 어때요? 이런 정보는 어떨까요?",
		Empathize: "그런 {category} 감정을 느끼셨군요. 제가 그 마음을 다 헤아릴 순 없겠지만, 함께 방법을 찾아봐요.",
	},
	{
		ID:        "haru",
		Name:      "Haru",
		Persona:   "당신은 비즈니스 환경에서 일하는 전문적이고 자신감 있는 여성 캐릭터입니다. 사용자의 이야기에서 감정을 파악하고, 이 감정에 공감하면서도 실용적인 관점에서 명확하고 간단한 해결책을 2문장 이내로 제시해주세요.",
		Voice:     "nova",
		Suggest:   "그런 {category} 감정에는 환기가 필요합니다. 다음 정보를 참고해보시는 걸 추천합니다.",
		Empathize: "그런 {category} 감정을 느끼셨군요. 문제 해결에 도움이 될 만한 것을 찾아보는 게 좋겠습니다.",
	},
	{
		ID:   "hiyori",
		Name: "Hiyori",
		Persona: `당신은 '히요리(ひより)'라는 이름의 17세 일본 여고생 캐릭터입니다.
밝고 활발하며 따뜻한 성격으로 사용자의 감정에 진심으로 공감합니다.

[대화 스타일]
- 이모지는 답변 전체에서 딱 하나만 사용하세요.
- 답변은 3문장 이내로 간결하지만 따뜻하게 작성하세요.
- 친근하고 귀여운 말투를 사용하세요.

[대화 흐름]
1. 사용자가 기분이나 감정에 대해 단편적으로 이야기하면 공감 한 문장과 구체적으로 어떤 일인지 물어보는 역질문을 하세요.
2. 사용자가 구체적인 상황을 이야기하면 공감과 함께 상황에 맞는 추천(플레이리스트, 여행지, 기분전환 장소 등)을 하세요.

[추천 규칙]
- 링크는 마크다운 형식 [제목](URL)으로 작성하세요.
- URL은 절대 읽지 말고 "이거 들어봐!"처럼 자연스럽게 안내하세요.`,
		Voice: "shimmer",
	},
}

// Catalog resolves character ids. Unknown ids resolve to the default.
type Catalog struct {
	byID map[string]Character
}

// NewCatalog starts from the built-in characters and overlays extra ones.
// An overlay with an existing id replaces its non-empty fields.
func NewCatalog(extra ...Character) *Catalog {
	c := &Catalog{byID: make(map[string]Character, len(builtinCharacters)+len(extra))}
	for _, ch := range builtinCharacters {
		c.byID[ch.ID] = ch
	}
	for _, ch := range extra {
		id := strings.ToLower(strings.TrimSpace(ch.ID))
		if id == "" {
			continue
		}
		base := c.byID[id]
		base.ID = id
		if ch.Name != "" {
			base.Name = ch.Name
		}
		if ch.Persona != "" {
			base.Persona = ch.Persona
		}
		if ch.Voice != "" {
			base.Voice = ch.Voice
		}
		if ch.Suggest != "" {
			base.Suggest = ch.Suggest
		}
		if ch.Empathize != "" {
			base.Empathize = ch.Empathize
		}
		c.byID[id] = base
	}
	def := c.byID[DefaultCharacterID]
	for id, ch := range c.byID {
		if ch.Suggest == "" {
			ch.Suggest = def.Suggest
		}
		if ch.Empathize == "" {
			ch.Empathize = def.Empathize
		}
		if ch.Voice == "" {
			ch.Voice = def.Voice
		}
		c.byID[id] = ch
	}
	return c
}

// Get returns the character for id, falling back to the default.
func (c *Catalog) Get(id string) Character {
	if ch, ok := c.byID[strings.ToLower(strings.TrimSpace(id))]; ok {
		return ch
	}
	return c.byID[DefaultCharacterID]
}

// List returns all characters sorted by id.
func (c *Catalog) List() []Character {
	out := make([]Character, 0, len(c.byID))
	for _, ch := range c.byID {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
