package workers

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a recurring task hook.
type Job func(ctx context.Context)

// Scheduler runs recurring jobs: fixed-delay and fixed-rate loops on their
// own goroutines, cron specs on a shared cron runner. A job never overlaps
// with itself.
type Scheduler struct {
	cron  *cron.Cron
	loops []func(ctx context.Context)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.PrintfLogger(logrus.StandardLogger())),
			cron.SkipIfStillRunning(cron.PrintfLogger(logrus.StandardLogger())),
		)),
	}
}

// FixedDelay runs fn after initial, then delay after each run finishes.
func (s *Scheduler) FixedDelay(initial, delay time.Duration, fn Job) {
	s.loops = append(s.loops, func(ctx context.Context) {
		timer := time.NewTimer(initial)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				fn(ctx)
				timer.Reset(delay)
			}
		}
	})
}

// FixedRate runs fn every interval. Ticks missed while fn runs are dropped.
func (s *Scheduler) FixedRate(interval time.Duration, fn Job) {
	s.loops = append(s.loops, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	})
}

// Cron registers fn under a standard five-field cron spec.
func (s *Scheduler) Cron(spec string, fn Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		if s.ctx.Err() != nil {
			return
		}
		fn(s.ctx)
	})
	return err
}

// Start launches every registered job. Jobs stop when ctx is done or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, loop := range s.loops {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			loop(s.ctx)
		}()
	}
	s.cron.Start()
}

// Stop cancels every job and waits for running ones to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
}
