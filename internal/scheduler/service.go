// Package scheduler runs the watch cycle periodically: one run at a
// time, gated on transport readiness before the first tick. A failing
// or panicking cycle is logged and the next tick still happens.
package scheduler

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"influradar/pkg/logx"
)

// Job is one watch cycle. Errors are logged, never rescheduling-fatal.
type Job func(ctx context.Context) error

type Config struct {
	// Schedule is a cron expression or a fixed interval. Defaults to
	// "24h".
	Schedule string

	// Timezone applies to cron schedules (IANA name). Empty means local.
	Timezone string
}

type Service struct {
	spec ParsedSpec
	loc  *time.Location
	job  Job

	// ready gates the first run; typically the chat transport's
	// readiness signal.
	ready <-chan struct{}

	log logx.Logger

	// inFlight skips a tick while the previous cycle still runs.
	inFlight atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	c      *cron.Cron
}

func New(cfg Config, ready <-chan struct{}, job Job, log logx.Logger) (*Service, error) {
	raw := strings.TrimSpace(cfg.Schedule)
	if raw == "" {
		raw = "24h"
	}
	spec, err := ParseSchedule(raw)
	if err != nil {
		return nil, err
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, err
		}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if ready == nil {
		closed := make(chan struct{})
		close(closed)
		ready = closed
	}

	return &Service{spec: spec, loc: loc, job: job, ready: ready, log: log}, nil
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		select {
		case <-runCtx.Done():
			return
		case <-s.ready:
		}
		s.log.Info("transport ready; scheduling cycles",
			logx.Bool("cron", s.spec.Kind == SpecCron))

		switch s.spec.Kind {
		case SpecInterval:
			s.runInterval(runCtx)
		case SpecCron:
			s.runCron(runCtx)
		}
	}()
}

// runInterval runs one cycle immediately, then waits the full interval
// after each completion. A cycle can never overlap the next.
func (s *Service) runInterval(ctx context.Context) {
	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.spec.Every):
		}
	}
}

func (s *Service) runCron(ctx context.Context) {
	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(s.spec.Cron, func() { s.runOnce(ctx) }); err != nil {
		s.log.Error("invalid cron schedule", logx.String("spec", s.spec.Cron), logx.Err(err))
		return
	}
	s.mu.Lock()
	s.c = c
	s.mu.Unlock()

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

// runOnce executes the job with overlap protection and panic recovery.
// The timer always advances regardless of this run's outcome.
func (s *Service) runOnce(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Warn("previous cycle still running; tick skipped")
		return
	}
	defer s.inFlight.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in cycle",
				logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	start := time.Now()
	s.log.Info("cycle started")
	if err := s.job(ctx); err != nil {
		s.log.Error("cycle failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return
	}
	s.log.Info("cycle completed", logx.Duration("took", time.Since(start)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.c = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
