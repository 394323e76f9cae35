package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"voice-companion/internal/infra/metrics"
)

// IdleStore is anything that can drop entries untouched since a cutoff.
type IdleStore interface {
	SweepIdle(cutoff time.Time) int
}

// Target binds a store to the idle TTL it is swept with. Count, when set,
// reports the live size after each sweep.
type Target struct {
	Name  string
	Store IdleStore
	TTL   time.Duration
	Count func() int
}

// Scheduler periodically sweeps idle per-session state out of the
// in-memory stores.
type Scheduler struct {
	interval time.Duration
	targets  []Target
	now      func() time.Time
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler sweeps every target each interval. If interval <= 0 it
// defaults to 1 minute. Targets with a non-positive TTL are never swept.
func NewScheduler(interval time.Duration, logger *zerolog.Logger, targets ...Target) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "scheduler").Logger()
	live := make([]Target, 0, len(targets))
	for _, t := range targets {
		if t.Store != nil && t.TTL > 0 {
			live = append(live, t)
		}
	}
	return &Scheduler{
		interval: interval,
		targets:  live,
		now:      time.Now,
		log:      l,
		done:     make(chan struct{}),
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start begins the loop in a background goroutine; calling it twice has no effect.
func (s *Scheduler) Start(parentCtx context.Context) {
	if s.ctx != nil {
		return
	}
	ctx, cancel := context.WithCancel(parentCtx)
	s.ctx = ctx
	s.cancel = cancel

	go s.loop()
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	s.log.Info().Dur("interval", s.interval).Int("targets", len(s.targets)).Msg("scheduler started")
	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("scheduler context cancelled; stopping")
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce runs one pass over every target and returns the total removed.
func (s *Scheduler) SweepOnce() int {
	now := s.now()
	total := 0
	for _, t := range s.targets {
		n := t.Store.SweepIdle(now.Add(-t.TTL))
		total += n
		if n > 0 {
			metrics.AddSessionsSwept(t.Name, n)
			s.log.Debug().Str("store", t.Name).Int("removed", n).Msg("idle sessions swept")
		}
		if t.Count != nil {
			metrics.SetActiveSessions(t.Name, t.Count())
		}
	}
	return total
}

// Stop cancels the loop and waits for it to finish. It is idempotent.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.ctx = nil
	s.cancel = nil
	s.done = make(chan struct{})
	s.log.Info().Msg("scheduler stopped")
}
