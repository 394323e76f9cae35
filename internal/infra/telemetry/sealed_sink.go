package telemetry

import (
	"context"
	"fmt"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
)

// TextSealer encrypts conversation text.
type TextSealer interface {
	Seal(plaintext string) (string, error)
}

// SealedSink encrypts the user and assistant text of each record before
// handing it to the wrapped sink.
type SealedSink struct {
	inner  adapter.TelemetrySink
	sealer TextSealer
}

// Sealed wraps inner; a nil sealer returns inner unchanged.
func Sealed(inner adapter.TelemetrySink, sealer TextSealer) adapter.TelemetrySink {
	if sealer == nil {
		return inner
	}
	return &SealedSink{inner: inner, sealer: sealer}
}

func (s *SealedSink) Name() string { return s.inner.Name() }

func (s *SealedSink) Write(ctx context.Context, rec model.TurnLog) error {
	var err error
	if rec.UserText, err = s.sealer.Seal(rec.UserText); err != nil {
		return fmt.Errorf("%w: seal: %v", domain.ErrSink, err)
	}
	if rec.AIText, err = s.sealer.Seal(rec.AIText); err != nil {
		return fmt.Errorf("%w: seal: %v", domain.ErrSink, err)
	}
	return s.inner.Write(ctx, rec)
}
