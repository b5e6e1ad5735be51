// Package scheduler provides the job registry and dispatch loop that
// drive the periodic market-data pipeline.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "marketwatch/internal/errors"
)

// Gate is the market-session precondition for a job's body.
type Gate string

const (
	GateAlways     Gate = "always"
	GateOpenOnly   Gate = "open-only"
	GateClosedOnly Gate = "closed-only"
)

// ParseGate validates a gating mode string from configuration.
func ParseGate(s string) (Gate, error) {
	switch Gate(s) {
	case GateAlways, GateOpenOnly, GateClosedOnly:
		return Gate(s), nil
	default:
		return "", apperrors.Wrapf(apperrors.ErrUnknownGate, "%q", s)
	}
}

// CadenceKind distinguishes interval jobs from daily-at-time jobs.
type CadenceKind int

const (
	CadenceInterval CadenceKind = iota
	CadenceDaily
)

// Cadence is the rule determining how often a job becomes due: either a
// fixed interval or a daily wall-clock time in the exchange's timezone.
type Cadence struct {
	Kind  CadenceKind
	Every time.Duration
	Hour  int
	Min   int
}

// EveryCadence returns an interval cadence.
func EveryCadence(d time.Duration) Cadence {
	return Cadence{Kind: CadenceInterval, Every: d}
}

// DailyCadence returns a daily-at-time cadence.
func DailyCadence(hour, min int) Cadence {
	return Cadence{Kind: CadenceDaily, Hour: hour, Min: min}
}

// ParseCadence parses a configuration cadence string of the form
// "interval:<duration>" or "daily:<HH:MM>".
func ParseCadence(s string) (Cadence, error) {
	switch {
	case strings.HasPrefix(s, "interval:"):
		d, err := time.ParseDuration(strings.TrimPrefix(s, "interval:"))
		if err != nil || d <= 0 {
			return Cadence{}, apperrors.Wrapf(apperrors.ErrUnknownCadence, "%q", s)
		}
		return EveryCadence(d), nil
	case strings.HasPrefix(s, "daily:"):
		var hour, min int
		if _, err := fmt.Sscanf(strings.TrimPrefix(s, "daily:"), "%d:%d", &hour, &min); err != nil {
			return Cadence{}, apperrors.Wrapf(apperrors.ErrUnknownCadence, "%q", s)
		}
		if hour < 0 || hour > 23 || min < 0 || min > 59 {
			return Cadence{}, apperrors.Wrapf(apperrors.ErrUnknownCadence, "%q", s)
		}
		return DailyCadence(hour, min), nil
	default:
		return Cadence{}, apperrors.Wrapf(apperrors.ErrUnknownCadence, "%q", s)
	}
}

// String renders the cadence in its configuration form.
func (c Cadence) String() string {
	if c.Kind == CadenceDaily {
		return fmt.Sprintf("daily:%02d:%02d", c.Hour, c.Min)
	}
	return "interval:" + c.Every.String()
}

// Action is a pipeline operation launched by the dispatch loop. Actions
// handle their own failures; a returned error is logged by the scheduler
// and never affects other jobs.
type Action func(ctx context.Context) error

// Job is a single scheduled pipeline operation.
type Job struct {
	Name    string
	Cadence Cadence
	Gate    Gate
	// Serial skips a dispatch while a prior run of the same job is still
	// in flight, so snapshot writers never overlap themselves.
	Serial bool
	Action Action

	// mu guards the dispatch bookkeeping below.
	mu           sync.Mutex
	lastRun      time.Time
	lastFiredDay string
	running      bool
}

// LastRun returns the time the job was last dispatched.
func (j *Job) LastRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun
}

// Registry holds the job table. It is owned exclusively by the scheduler;
// jobs are registered at startup and mutated only through dispatch.
type Registry struct {
	mu     sync.Mutex
	jobs   []*Job
	byName map[string]*Job
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Job),
	}
}

// Add registers a job. The name must be unique and the job complete.
func (r *Registry) Add(job *Job) error {
	if job.Name == "" {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "job name required")
	}
	if job.Action == nil {
		return apperrors.Wrapf(apperrors.ErrConfigInvalid, "job %s has no action", job.Name)
	}
	if job.Gate == "" {
		job.Gate = GateAlways
	}
	if _, err := ParseGate(string(job.Gate)); err != nil {
		return err
	}
	if job.Cadence.Kind == CadenceInterval && job.Cadence.Every <= 0 {
		return apperrors.Wrapf(apperrors.ErrConfigInvalid, "job %s has no interval", job.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[job.Name]; exists {
		return apperrors.Wrapf(apperrors.ErrConfigInvalid, "duplicate job %s", job.Name)
	}
	r.jobs = append(r.jobs, job)
	r.byName[job.Name] = job
	return nil
}

// Get returns the named job.
func (r *Registry) Get(name string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byName[name]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrUnknownJob, "%s", name)
	}
	return job, nil
}

// Names returns the registered job names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		names[i] = j.Name
	}
	return names
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// all returns a snapshot of the job table in registration order.
func (r *Registry) all() []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Job(nil), r.jobs...)
}
