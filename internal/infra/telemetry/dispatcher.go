// Package telemetry ships completed turn records to the configured sinks
// off the request path.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
	"voice-companion/internal/infra/metrics"
	"voice-companion/internal/infra/worker"
)

var _ adapter.TurnLogPublisher = (*Dispatcher)(nil)

// Submitter is the slice of worker.Pool the dispatcher needs.
type Submitter interface {
	Submit(task worker.Task) error
}

// Dispatcher fans each record out to every sink as one pooled task per
// sink. A full queue drops the record for that sink.
type Dispatcher struct {
	pool    Submitter
	sinks   []adapter.TelemetrySink
	timeout time.Duration
	log     *zerolog.Logger
}

func NewDispatcher(pool Submitter, sinks []adapter.TelemetrySink, timeout time.Duration, logger *zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	l := logger.With().Str("component", "telemetry").Logger()
	return &Dispatcher{pool: pool, sinks: sinks, timeout: timeout, log: &l}
}

func (d *Dispatcher) Sinks() int { return len(d.sinks) }

func (d *Dispatcher) Publish(rec model.TurnLog) {
	for _, s := range d.sinks {
		sink := s
		err := d.pool.Submit(func(ctx context.Context) error {
			return d.write(ctx, sink, rec)
		})
		if err != nil {
			metrics.IncTelemetry(sink.Name(), "dropped")
			if errors.Is(err, worker.ErrQueueFull) {
				d.log.Warn().Str("sink", sink.Name()).Str("turn_id", rec.TurnID).Msg("telemetry queue full; record dropped")
			} else {
				d.log.Error().Err(err).Str("sink", sink.Name()).Msg("telemetry submit failed")
			}
		}
	}
}

func (d *Dispatcher) write(ctx context.Context, sink adapter.TelemetrySink, rec model.TurnLog) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := sink.Write(ctx, rec); err != nil {
		metrics.IncTelemetry(sink.Name(), "failed")
		d.log.Warn().Err(err).Str("sink", sink.Name()).Str("turn_id", rec.TurnID).Msg("telemetry write failed")
		return nil
	}
	metrics.IncTelemetry(sink.Name(), "written")
	return nil
}
