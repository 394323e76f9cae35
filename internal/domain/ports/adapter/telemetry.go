package adapter

import (
	"context"

	"voice-companion/internal/domain/model"
)

// TelemetrySink receives completed turn records. Writes are fire-and-forget
// from the turn's point of view; an error is logged and counted only.
type TelemetrySink interface {
	Name() string
	Write(ctx context.Context, rec model.TurnLog) error
}

// TurnLogPublisher hands a record to the sinks without blocking the turn.
// Records may be dropped under load.
type TurnLogPublisher interface {
	Publish(rec model.TurnLog)
}
