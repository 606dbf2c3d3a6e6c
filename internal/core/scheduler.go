package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler drives the periodic lifecycle sweep and price drift.
type Scheduler struct {
	dir        *Directory
	drifter    *Drifter
	sweepEvery time.Duration
	driftEvery time.Duration
	logger     *zap.Logger
}

// NewScheduler returns a scheduler; a zero interval or nil drifter disables
// that tick.
func NewScheduler(dir *Directory, drifter *Drifter, sweepEvery, driftEvery time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{dir: dir, drifter: drifter, sweepEvery: sweepEvery, driftEvery: driftEvery, logger: logger}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	var sweep, drift <-chan time.Time
	if s.sweepEvery > 0 {
		t := time.NewTicker(s.sweepEvery)
		defer t.Stop()
		sweep = t.C
	}
	if s.drifter != nil && s.driftEvery > 0 {
		t := time.NewTicker(s.driftEvery)
		defer t.Stop()
		drift = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep:
			if _, err := s.dir.SweepExpired(ctx, s.dir.clock.Now()); err != nil {
				s.logger.Error("lifecycle sweep", zap.Error(err))
			}
		case <-drift:
			if err := s.drifter.Tick(ctx); err != nil {
				s.logger.Warn("price drift", zap.Error(err))
			}
		}
	}
}
