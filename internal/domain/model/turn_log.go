package model

import "time"

// TurnLog is the record shipped to telemetry sinks after a completed turn.
type TurnLog struct {
	TurnID     string         `json:"turn_id"`
	SessionKey string         `json:"session_key"`
	Character  string         `json:"character"`
	UserText   string         `json:"user_input"`
	AIText     string         `json:"ai_response"`
	Track      Track          `json:"track"`
	Emotion    EmotionProfile `json:"emotion"`
	Links      []Link         `json:"links,omitempty"`
	Degraded   []Degradation  `json:"degraded,omitempty"`
	AudioBytes int            `json:"audio_bytes"`
	LatencyMs  int64          `json:"latency_ms"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewTurnLog flattens a result into a log record.
func NewTurnLog(r *TurnResult) TurnLog {
	return TurnLog{
		TurnID:     r.TurnID,
		SessionKey: r.SessionKey,
		Character:  r.Character,
		UserText:   r.User.Text,
		AIText:     r.AIText,
		Track:      r.Track,
		Emotion:    r.Emotion,
		Links:      r.Links,
		Degraded:   r.Degraded,
		AudioBytes: len(r.Audio),
		LatencyMs:  r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
		Timestamp:  r.FinishedAt,
	}
}
