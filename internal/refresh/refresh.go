// Package refresh keeps the month cache warm on a cron schedule.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "clubcal/internal/log"
)

// Cache is the part of the month cache the scheduler maintains.
type Cache interface {
	Purge() int
	Warm(ctx context.Context, year int, month time.Month) error
}

// Options configures a Scheduler.
type Options struct {
	// Spec is a standard five-field cron expression, e.g. "*/5 * * * *".
	Spec     string
	Location *time.Location
	// Timeout bounds one warm-up run. Defaults to 30s.
	Timeout time.Duration
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Scheduler periodically purges expired months and refetches the current
// one, so the first visitor after expiry does not wait on the provider.
type Scheduler struct {
	cron    *cron.Cron
	cache   Cache
	loc     *time.Location
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// New validates the schedule and builds a stopped Scheduler.
func New(cache Cache, opts Options) (*Scheduler, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		cache:   cache,
		loc:     loc,
		timeout: opts.Timeout,
		now:     opts.Now,
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	if _, err := s.cron.AddFunc(opts.Spec, s.run); err != nil {
		return nil, fmt.Errorf("refresh: invalid schedule %q: %w", opts.Spec, err)
	}
	return s, nil
}

// Start warms the current month once and begins the schedule. Jobs stop
// when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	go s.run()
	s.cron.Start()
	appLog.Info("refresh scheduler started", "entries", len(s.cron.Entries()))
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()
	appLog.Info("refresh scheduler stopped")
}

// RunOnce performs one purge and warm-up.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	removed := s.cache.Purge()
	now := s.now().In(s.loc)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.cache.Warm(ctx, now.Year(), now.Month()); err != nil {
		return fmt.Errorf("refresh: warm %04d-%02d: %w", now.Year(), int(now.Month()), err)
	}
	appLog.Debug("refresh run complete", "purged", removed, "year", now.Year(), "month", int(now.Month()))
	return nil
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if err := s.RunOnce(ctx); err != nil {
		appLog.Error("scheduled refresh failed", err)
	}
}
