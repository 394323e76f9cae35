package model

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one history entry.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTurn(role Role, content string, at time.Time) Turn {
	return Turn{Role: role, Content: content, Timestamp: at}
}

type UtteranceSource string

const (
	SourceAudio     UtteranceSource = "audio"
	SourceSynthetic UtteranceSource = "synthetic" // substituted on recognition failure
)

// Utterance is the transcribed user input of a single turn.
type Utterance struct {
	Text   string
	Source UtteranceSource
}

// NoSpeechText replaces the transcript when decoding or recognition fails.
const NoSpeechText = "no speech detected"

type Track string

const (
	TrackRecommend Track = "recommend"
	TrackConverse  Track = "converse"
)

type TurnState string

const (
	StateIdle         TurnState = "idle"
	StateTranscribing TurnState = "transcribing"
	StateClassifying  TurnState = "classifying"
	StateBranching    TurnState = "branching"
	StateRecommending TurnState = "recommending"
	StateConversing   TurnState = "conversing"
	StateSynthesizing TurnState = "synthesizing"
	StateCompleted    TurnState = "completed"
	StateErrored      TurnState = "errored"
)

// Link is a recommended piece of content.
type Link struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// Degradation names a stage that fell back instead of failing the turn.
type Degradation string

const (
	DegradedTranscription  Degradation = "transcription"
	DegradedClassification Degradation = "classification"
	DegradedSearch         Degradation = "search"
	DegradedChat           Degradation = "chat"
	DegradedSynthesis      Degradation = "synthesis"
)

// TurnResult is what a completed turn hands back to the caller.
type TurnResult struct {
	TurnID      string         `json:"turn_id"`
	SessionKey  string         `json:"-"`
	Character   string         `json:"character"`
	User        Utterance      `json:"-"`
	AIText      string         `json:"ai_text"` // committed to history; carries the link list on the recommend track
	SpeechText  string         `json:"-"`       // what was sent to synthesis
	Audio       []byte         `json:"-"`
	AudioFormat string         `json:"audio_format,omitempty"`
	Emotion     EmotionProfile `json:"emotion"`
	Track       Track          `json:"track"`
	Links       []Link         `json:"links,omitempty"`
	Degraded    []Degradation  `json:"degraded,omitempty"`
	StartedAt   time.Time      `json:"-"`
	FinishedAt  time.Time      `json:"-"`
}

// HasAudio reports whether synthesis produced any audio.
func (r *TurnResult) HasAudio() bool { return len(r.Audio) > 0 }

func (r *TurnResult) Degrade(d Degradation) {
	for _, x := range r.Degraded {
		if x == d {
			return
		}
	}
	r.Degraded = append(r.Degraded, d)
}

type TurnEventKind string

const (
	EventState      TurnEventKind = "state"
	EventTranscript TurnEventKind = "transcript"
	EventEmotion    TurnEventKind = "emotion"
	EventTextDelta  TurnEventKind = "text_delta"
	EventAudioChunk TurnEventKind = "audio_chunk"
	EventResult     TurnEventKind = "result"
	EventError      TurnEventKind = "error"
)

// TurnEvent is one unit on a streaming turn. Exactly one of the payload
// fields is set, according to Kind. The last event on a stream is always
// EventResult or EventError.
type TurnEvent struct {
	Kind    TurnEventKind
	State   TurnState
	Text    string
	Audio   []byte
	Emotion *EmotionProfile
	Result  *TurnResult
	Err     error
}
