// Package schedule runs periodic background jobs off the event path.
package schedule

import (
	"context"
	"fmt"
	"time"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one periodic task. It receives a context that is cancelled when the
// scheduler stops.
type Job func(ctx context.Context)

type Scheduler struct {
	cron   *rcron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

func New(log *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		// A slow run is skipped rather than stacked behind the next tick.
		cron:   rcron.New(rcron.WithChain(rcron.SkipIfStillRunning(rcron.DiscardLogger))),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// Add registers job under a standard cron spec or a descriptor such as
// "@every 10m".
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("Scheduled job panicked", zap.String("job", name), zap.Any("panic", r))
			}
		}()
		start := time.Now()
		job(s.ctx)
		s.log.Debug("Scheduled job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them, or for ctx, to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("Scheduled jobs did not stop in time")
	}
}
