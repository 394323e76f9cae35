package telemetry

import (
	"context"

	"github.com/rs/zerolog"

	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
	"voice-companion/internal/infra/logging"
)

var _ adapter.TelemetrySink = (*LogSink)(nil)

// LogSink writes one structured line per turn. User and AI text are
// redacted unless dev is set.
type LogSink struct {
	log *zerolog.Logger
	dev bool
}

func NewLogSink(logger *zerolog.Logger, dev bool) *LogSink {
	l := logger.With().Str("component", "turn_log").Logger()
	return &LogSink{log: &l, dev: dev}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, rec model.TurnLog) error {
	urls := make([]string, 0, len(rec.Links))
	for _, l := range rec.Links {
		urls = append(urls, l.URL)
	}
	degraded := make([]string, 0, len(rec.Degraded))
	for _, d := range rec.Degraded {
		degraded = append(degraded, string(d))
	}
	intensities := zerolog.Dict()
	for _, l := range model.EmotionLabels {
		intensities.Int(string(l), rec.Emotion.Intensities[l])
	}
	s.log.Info().
		Str("turn_id", rec.TurnID).
		Str("session_id", rec.SessionKey).
		Str("character", rec.Character).
		Str("track", string(rec.Track)).
		Str("user_input", logging.Redact(rec.UserText, s.dev)).
		Str("ai_response", logging.Redact(rec.AIText, s.dev)).
		Str("dominant", string(rec.Emotion.Dominant)).
		Dict("intensities", intensities).
		Strs("links", urls).
		Strs("degraded", degraded).
		Int("audio_bytes", rec.AudioBytes).
		Int64("latency_ms", rec.LatencyMs).
		Msg("turn completed")
	return nil
}
