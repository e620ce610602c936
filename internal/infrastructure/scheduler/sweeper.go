// Package scheduler runs the periodic session expiry sweep.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	DefaultSchedule = "@every 15m"
	sweepTimeout    = time.Minute
)

// ExpirySweeper removes expired sessions and reports how many it removed.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Sweeper triggers ExpirySweeper on a cron schedule. Overlapping runs are
// skipped.
type Sweeper struct {
	cron    *cron.Cron
	sweeper ExpirySweeper
	log     zerolog.Logger
}

// NewSweeper validates schedule and registers the sweep job. The scheduler
// is not running until Start is called.
func NewSweeper(sweeper ExpirySweeper, schedule string, log zerolog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	log = log.With().Str("component", "session_sweeper").Logger()
	cl := cronLogger{log: log}

	s := &Sweeper{
		cron:    cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		sweeper: sweeper,
		log:     log,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.log.Info().Msg("session sweeper started")
}

// Stop halts the scheduler and waits for a running sweep to finish or for
// ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("session sweeper stop timed out")
	}
}

// RunOnce sweeps immediately and returns the number of sessions removed.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.sweeper.SweepExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("session sweep failed")
		return 0
	}
	s.log.Debug().Int("count", n).Dur("took", time.Since(start)).Msg("session sweep finished")
	return n
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
