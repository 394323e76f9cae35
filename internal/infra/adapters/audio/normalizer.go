// Package audio turns uploaded recordings into the PCM16 mono 24 kHz buffer
// the speech ports expect.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
)

var _ adapter.AudioNormalizer = (*Normalizer)(nil)

// SupportedFormats lists the container hints accepted by Normalize.
var SupportedFormats = []string{"webm", "ogg", "wav", "mp3", "m4a", "mp4", "pcm"}

// Transcoder converts a compressed recording to raw s16le mono 24 kHz.
type Transcoder interface {
	Name() string
	Transcode(ctx context.Context, raw []byte, format string) ([]byte, error)
}

type Options struct {
	// TargetDBFS levels the output loudness; zero leaves the gain untouched.
	TargetDBFS float64
	Timeout    time.Duration
}

// Normalizer unwraps WAV/PCM input directly and hands everything else to
// the transcoder.
type Normalizer struct {
	tc   Transcoder
	opts Options
	log  *zerolog.Logger
}

func NewNormalizer(tc Transcoder, opts Options, logger *zerolog.Logger) *Normalizer {
	l := logger.With().Str("component", "audio").Logger()
	return &Normalizer{tc: tc, opts: opts, log: &l}
}

func normalizeFormat(format string) (string, bool) {
	f := strings.ToLower(strings.TrimSpace(format))
	f = strings.TrimPrefix(f, "audio/")
	if i := strings.IndexByte(f, ';'); i >= 0 {
		f = strings.TrimSpace(f[:i])
	}
	switch f {
	case "s16le", "pcm16", "raw":
		f = "pcm"
	case "mpeg":
		f = "mp3"
	case "x-wav", "wave":
		f = "wav"
	case "x-m4a", "aac":
		f = "m4a"
	}
	for _, s := range SupportedFormats {
		if s == f {
			return f, true
		}
	}
	return f, false
}

func (n *Normalizer) Normalize(ctx context.Context, raw []byte, format string) (model.PCM, error) {
	f, ok := normalizeFormat(format)
	if !ok {
		return model.PCM{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
	if len(raw) == 0 {
		return model.PCM{}, fmt.Errorf("%w: empty input", domain.ErrDecode)
	}

	var data []byte
	switch {
	case f == "pcm":
		data = raw
	case f == "wav":
		pcm, err := unwrapWAV(raw)
		if err == nil {
			data = pcm
			break
		}
		if !errors.Is(err, errWAVNeedsTranscode) {
			return model.PCM{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
		}
		fallthrough
	default:
		out, err := n.transcode(ctx, raw, f)
		if err != nil {
			return model.PCM{}, err
		}
		data = out
	}

	data = data[:len(data)-len(data)%2]
	if len(data) == 0 {
		return model.PCM{}, fmt.Errorf("%w: no samples", domain.ErrDecode)
	}
	if n.opts.TargetDBFS != 0 {
		data = applyGain(data, n.opts.TargetDBFS)
	}
	return model.PCM{Data: data}, nil
}

func (n *Normalizer) transcode(ctx context.Context, raw []byte, format string) ([]byte, error) {
	if n.tc == nil {
		return nil, fmt.Errorf("%w: no transcoder for %s", domain.ErrUnsupportedFormat, format)
	}
	if n.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.opts.Timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := n.tc.Transcode(ctx, raw, format)
	if err != nil {
		n.log.Warn().Err(err).Str("transcoder", n.tc.Name()).Str("format", format).Int("bytes", len(raw)).Msg("transcode failed")
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDecode, n.tc.Name(), err)
	}
	n.log.Debug().Str("transcoder", n.tc.Name()).Str("format", format).Dur("took", time.Since(start)).Int("pcm_bytes", len(out)).Msg("transcoded")
	return out, nil
}
