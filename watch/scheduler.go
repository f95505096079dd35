package watch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridwatch/gridwatch/telemetry"
	"github.com/rs/zerolog/log"
)

// Scheduler drives the pipeline on a fixed interval. Exactly one run is in
// flight at a time: ticks are taken from a time.Ticker, which drops ticks
// that fire while a run is still executing, so an overrunning tick delays
// the next run instead of overlapping it. A failed run is logged and the
// next tick retries from the last persisted state.
type Scheduler struct {
	interval time.Duration
	pipeline *Pipeline

	stopCh      chan struct{}
	doneCh      chan struct{}
	running     atomic.Bool
	lifecycleMu sync.Mutex
}

// NewScheduler creates a scheduler for pipeline with the given interval.
func NewScheduler(pipeline *Pipeline, interval time.Duration) *Scheduler {
	return &Scheduler{
		interval: interval,
		pipeline: pipeline,
	}
}

// Start launches the polling loop. Idempotent.
func (s *Scheduler) Start() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.running.Load() {
		return
	}
	s.running.Store(true)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	log.Info().Dur("interval", s.interval).Msg("Starting watch scheduler")

	go s.loop()
}

// Stop halts the loop and waits for any in-flight run to finish. Idempotent.
func (s *Scheduler) Stop() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.running.Load() {
		return
	}

	close(s.stopCh)
	<-s.doneCh
	s.running.Store(false)

	log.Info().Msg("Watch scheduler stopped")
}

func (s *Scheduler) loop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

// runOnce executes a single tick. Errors are reported here and swallowed;
// recovery is retrying the whole pipeline next interval.
func (s *Scheduler) runOnce() {
	started := time.Now()

	if err := s.pipeline.Run(context.Background()); err != nil {
		log.Error().Err(err).Msg("Pipeline run failed, will retry next tick")
	}

	if elapsed := time.Since(started); elapsed > s.interval {
		telemetry.TicksTotal.With("skipped").Inc()
		log.Warn().
			Dur("elapsed", elapsed).
			Dur("interval", s.interval).
			Msg("Pipeline run overran the polling interval")
	}
}
