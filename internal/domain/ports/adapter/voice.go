package adapter

import (
	"context"

	"voice-companion/internal/domain/model"
)

// AudioNormalizer decodes arbitrary compressed audio to PCM16 mono 24 kHz.
// Failures wrap domain.ErrUnsupportedFormat or domain.ErrDecode; a failed
// call never returns partial audio.
type AudioNormalizer interface {
	Normalize(ctx context.Context, raw []byte, format string) (model.PCM, error)
}

// Transcriber is the speech-to-text port.
type Transcriber interface {
	Transcribe(ctx context.Context, audio model.PCM, language string) (string, error)
}

// SpeechSynthesizer is the streaming text-to-speech port. Chunks are raw
// PCM16 mono 24 kHz.
type SpeechSynthesizer interface {
	SynthesizeStream(ctx context.Context, text, voice string) (*AudioStream, error)
}
