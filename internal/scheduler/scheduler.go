package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marketwatch/internal/logging"
)

const dayFormat = "2006-01-02"

// SessionGate answers whether the exchange is open at a given instant.
type SessionGate interface {
	IsOpen(now time.Time) bool
}

// alwaysOpen is the conservative fallback when no session clock is wired.
type alwaysOpen struct{}

func (alwaysOpen) IsOpen(time.Time) bool { return true }

// Scheduler runs the registry's jobs on a single dispatch loop. The loop
// wakes on a fixed tick, dispatches every due job as a tracked goroutine
// and immediately records the dispatch time, so a slow action never
// blocks the next due check (at-least-once-per-cadence semantics).
type Scheduler struct {
	registry *Registry
	session  SessionGate
	state    StateStore
	location *time.Location
	tick     time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	wg sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTick sets the dispatch loop's tick period.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) { s.tick = d }
}

// WithSession sets the session gate consulted by market-gated jobs.
func WithSession(gate SessionGate) Option {
	return func(s *Scheduler) { s.session = gate }
}

// WithState sets the store that persists per-job dispatch bookkeeping.
func WithState(state StateStore) Option {
	return func(s *Scheduler) { s.state = state }
}

// WithLocation sets the timezone in which daily cadences are evaluated.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.location = loc }
}

// WithNow substitutes the wall clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the scheduler's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New creates a scheduler for the given registry.
func New(registry *Registry, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry: registry,
		session:  alwaysOpen{},
		state:    NewMemoryStateStore(),
		location: time.UTC,
		tick:     30 * time.Second,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run restores persisted job state, then ticks until ctx is cancelled.
// On cancellation it waits for in-flight actions to drain.
func (s *Scheduler) Run(ctx context.Context) error {
	s.restore()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info().
		Dur("tick", s.tick).
		Int("jobs", s.registry.Len()).
		Msg("Dispatch loop started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Dispatch loop stopping, draining jobs")
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick scans the registry once and dispatches every due job. Exposed so
// tests can drive the scheduler with a fake clock.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	var due []*Job
	for _, job := range s.registry.all() {
		job.mu.Lock()
		if !s.isDue(job, now) {
			job.mu.Unlock()
			continue
		}
		if job.Serial && job.running {
			job.mu.Unlock()
			s.logger.Warn().Str("job", job.Name).Msg("Previous run still in flight, skipping dispatch")
			continue
		}
		// lastRun is recorded at dispatch time, before the action
		// completes. Overlapping runs of non-serial jobs are tolerated
		// by the snapshot store's per-name writer lock.
		job.lastRun = now
		if job.Cadence.Kind == CadenceDaily {
			job.lastFiredDay = now.In(s.location).Format(dayFormat)
		}
		job.running = true
		job.mu.Unlock()
		due = append(due, job)
	}

	for _, job := range due {
		s.persist(job)
		s.dispatch(ctx, job, now)
	}
}

// isDue implements the due check. Interval jobs are due when at least the
// interval has elapsed since the last dispatch (a never-run job is due at
// once). Daily jobs fire on the first tick observed at-or-after the
// target time-of-day, at most once per calendar day. The caller holds
// job.mu.
func (s *Scheduler) isDue(job *Job, now time.Time) bool {
	switch job.Cadence.Kind {
	case CadenceDaily:
		local := now.In(s.location)
		target := time.Date(local.Year(), local.Month(), local.Day(),
			job.Cadence.Hour, job.Cadence.Min, 0, 0, s.location)
		if local.Before(target) {
			return false
		}
		return job.lastFiredDay != local.Format(dayFormat)
	default:
		if job.lastRun.IsZero() {
			return true
		}
		return now.Sub(job.lastRun) >= job.Cadence.Every
	}
}

func (s *Scheduler) dispatch(ctx context.Context, job *Job, now time.Time) {
	// The gate check performs no pipeline work and emits no alert; the
	// dispatch bookkeeping above has already been recorded either way.
	if !s.gateAllows(job, now) {
		s.logger.Debug().Str("job", job.Name).Str("gate", string(job.Gate)).Msg("Gate closed, body skipped")
		s.finish(job)
		return
	}

	logging.LogDispatch(s.logger, job.Name, now)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish(job)

		logger := logging.WithJob(s.logger, job.Name)
		start := s.now()
		if err := job.Action(ctx); err != nil {
			logger.Error().Err(err).Msg("Job failed")
			return
		}
		logger.Debug().
			Dur("elapsed", s.now().Sub(start)).
			Msg("Job completed")
	}()
}

func (s *Scheduler) gateAllows(job *Job, now time.Time) bool {
	switch job.Gate {
	case GateOpenOnly:
		return s.session.IsOpen(now)
	case GateClosedOnly:
		return !s.session.IsOpen(now)
	default:
		return true
	}
}

func (s *Scheduler) finish(job *Job) {
	job.mu.Lock()
	job.running = false
	job.mu.Unlock()
}

// Wait blocks until all in-flight actions have completed.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) restore() {
	for _, job := range s.registry.all() {
		state, err := s.state.Load(job.Name)
		if err != nil {
			s.logger.Warn().Err(err).Str("job", job.Name).Msg("Could not restore job state")
			continue
		}
		job.mu.Lock()
		job.lastRun = state.LastRun
		job.lastFiredDay = state.LastFiredDay
		job.mu.Unlock()
	}
}

func (s *Scheduler) persist(job *Job) {
	job.mu.Lock()
	state := JobState{
		LastRun:      job.lastRun,
		LastFiredDay: job.lastFiredDay,
	}
	job.mu.Unlock()

	if err := s.state.Save(job.Name, state); err != nil {
		s.logger.Warn().Err(err).Str("job", job.Name).Msg("Could not persist job state")
	}
}
