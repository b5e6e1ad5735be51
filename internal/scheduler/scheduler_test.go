package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "marketwatch/internal/errors"
)

type fakeSession struct {
	open bool
}

func (f *fakeSession) IsOpen(time.Time) bool { return f.open }

// fakeClock is a manually-advanced wall clock for driving Tick.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// runCounter records each completed run.
type runCounter struct {
	mu   sync.Mutex
	runs []time.Time
}

func (rc *runCounter) action(clock *fakeClock) Action {
	return func(ctx context.Context) error {
		rc.mu.Lock()
		defer rc.mu.Unlock()
		rc.runs = append(rc.runs, clock.Now())
		return nil
	}
}

func (rc *runCounter) count() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.runs)
}

func (rc *runCounter) times() []time.Time {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]time.Time(nil), rc.runs...)
}

func mustAdd(t *testing.T, r *Registry, job *Job) {
	t.Helper()
	if err := r.Add(job); err != nil {
		t.Fatalf("Add(%s): %v", job.Name, err)
	}
}

// tickAndDrain runs one scan and waits for all launched actions.
func tickAndDrain(s *Scheduler, ctx context.Context) {
	s.Tick(ctx)
	s.Wait()
}

func TestParseCadence(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"interval:5m", false},
		{"interval:30s", false},
		{"daily:00:00", false},
		{"daily:15:50", false},
		{"daily:24:00", true},
		{"daily:12:61", true},
		{"interval:0s", true},
		{"interval:-5m", true},
		{"interval:fast", true},
		{"hourly:1", true},
		{"", true},
	}
	for _, tt := range tests {
		c, err := ParseCadence(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCadence(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && c.String() == "" {
			t.Errorf("ParseCadence(%q) produced empty cadence", tt.in)
		}
		if err != nil && !apperrors.Is(err, apperrors.ErrUnknownCadence) {
			t.Errorf("ParseCadence(%q) error should wrap ErrUnknownCadence, got %v", tt.in, err)
		}
	}
}

func TestParseGate(t *testing.T) {
	for _, ok := range []string{"always", "open-only", "closed-only"} {
		if _, err := ParseGate(ok); err != nil {
			t.Errorf("ParseGate(%q): %v", ok, err)
		}
	}
	if _, err := ParseGate("weekends"); !apperrors.Is(err, apperrors.ErrUnknownGate) {
		t.Errorf("ParseGate should reject unknown modes, got %v", err)
	}
}

func TestRegistryRejectsDuplicatesAndIncompleteJobs(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context) error { return nil }

	mustAdd(t, r, &Job{Name: "a", Cadence: EveryCadence(time.Minute), Action: noop})

	if err := r.Add(&Job{Name: "a", Cadence: EveryCadence(time.Minute), Action: noop}); err == nil {
		t.Error("duplicate name must be rejected")
	}
	if err := r.Add(&Job{Name: "", Cadence: EveryCadence(time.Minute), Action: noop}); err == nil {
		t.Error("empty name must be rejected")
	}
	if err := r.Add(&Job{Name: "b", Cadence: EveryCadence(time.Minute)}); err == nil {
		t.Error("missing action must be rejected")
	}
	if err := r.Add(&Job{Name: "c", Action: noop}); err == nil {
		t.Error("zero interval must be rejected")
	}
	if err := r.Add(&Job{Name: "d", Cadence: EveryCadence(time.Minute), Gate: "sometimes", Action: noop}); err == nil {
		t.Error("unknown gate must be rejected")
	}
}

func TestIntervalJobFireWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}
	rc := &runCounter{}

	r := NewRegistry()
	mustAdd(t, r, &Job{Name: "refresh", Cadence: EveryCadence(5 * time.Minute), Action: rc.action(clock)})

	s := New(r, WithNow(clock.Now))
	ctx := context.Background()

	// 42 ticks of 30s = 21 minutes. Expect fires at t=0, 5m, 10m, 15m, 20m.
	for i := 0; i < 42; i++ {
		tickAndDrain(s, ctx)
		clock.Advance(30 * time.Second)
	}

	times := rc.times()
	if len(times) != 5 {
		t.Fatalf("fired %d times over 21m, want 5", len(times))
	}
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		if gap < 5*time.Minute || gap > 5*time.Minute+30*time.Second {
			t.Errorf("gap between fires %d and %d = %v, want within [5m, 5m30s]", i-1, i, gap)
		}
	}
}

func TestDailyJobTolerantTrigger(t *testing.T) {
	// Scheduler comes up well after the 00:00 target.
	clock := &fakeClock{now: time.Date(2024, 6, 3, 10, 17, 0, 0, time.UTC)}
	rc := &runCounter{}

	r := NewRegistry()
	mustAdd(t, r, &Job{Name: "train", Cadence: DailyCadence(0, 0), Action: rc.action(clock)})

	s := New(r, WithNow(clock.Now))
	ctx := context.Background()

	// First tick at-or-after the target: fires once.
	tickAndDrain(s, ctx)
	if rc.count() != 1 {
		t.Fatalf("first observed tick after target should fire, count = %d", rc.count())
	}

	// Rest of the day: no re-fire.
	for i := 0; i < 20; i++ {
		clock.Advance(30 * time.Minute)
		tickAndDrain(s, ctx)
	}
	if rc.count() != 1 {
		t.Fatalf("daily job re-fired within the same day, count = %d", rc.count())
	}

	// Next day after midnight: fires exactly once more.
	clock.Advance(6 * time.Hour)
	tickAndDrain(s, ctx)
	if rc.count() != 2 {
		t.Fatalf("daily job should fire next day, count = %d", rc.count())
	}
}

func TestDailyJobBeforeTargetDoesNotFire(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)}
	rc := &runCounter{}

	r := NewRegistry()
	mustAdd(t, r, &Job{Name: "close", Cadence: DailyCadence(15, 50), Action: rc.action(clock)})

	s := New(r, WithNow(clock.Now))
	ctx := context.Background()

	tickAndDrain(s, ctx)
	if rc.count() != 0 {
		t.Fatalf("job fired before its daily target")
	}

	clock.Advance(110 * time.Minute) // 15:50 exactly
	tickAndDrain(s, ctx)
	if rc.count() != 1 {
		t.Fatalf("job should fire at its daily target, count = %d", rc.count())
	}
}

func TestDailyJobSurvivesRestart(t *testing.T) {
	state := NewMemoryStateStore()
	clock := &fakeClock{now: time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)}

	rc1 := &runCounter{}
	r1 := NewRegistry()
	mustAdd(t, r1, &Job{Name: "train", Cadence: DailyCadence(0, 0), Action: rc1.action(clock)})
	s1 := New(r1, WithNow(clock.Now), WithState(state))
	s1.restore()
	tickAndDrain(s1, context.Background())
	if rc1.count() != 1 {
		t.Fatalf("first process should fire once, count = %d", rc1.count())
	}

	// Simulated restart later the same day, fresh registry, same state.
	clock.Advance(2 * time.Hour)
	rc2 := &runCounter{}
	r2 := NewRegistry()
	mustAdd(t, r2, &Job{Name: "train", Cadence: DailyCadence(0, 0), Action: rc2.action(clock)})
	s2 := New(r2, WithNow(clock.Now), WithState(state))
	s2.restore()
	tickAndDrain(s2, context.Background())
	if rc2.count() != 0 {
		t.Fatalf("restarted process re-fired a daily job within the same day")
	}
}

func TestGatedJobSkipsBodyButRecordsDispatch(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}
	session := &fakeSession{open: false}
	rc := &runCounter{}

	r := NewRegistry()
	job := &Job{Name: "refresh", Cadence: EveryCadence(5 * time.Minute), Gate: GateOpenOnly, Action: rc.action(clock)}
	mustAdd(t, r, job)

	s := New(r, WithNow(clock.Now), WithSession(session))
	ctx := context.Background()

	tickAndDrain(s, ctx)
	if rc.count() != 0 {
		t.Fatal("gated job body ran while the market was closed")
	}
	if !job.LastRun().Equal(clock.Now()) {
		t.Error("gated job should still record its dispatch bookkeeping")
	}

	// Market opens; the next due dispatch runs the body.
	session.open = true
	clock.Advance(5 * time.Minute)
	tickAndDrain(s, ctx)
	if rc.count() != 1 {
		t.Fatalf("open-gated job should run with market open, count = %d", rc.count())
	}
}

func TestClosedOnlyGate(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}
	session := &fakeSession{open: true}
	rc := &runCounter{}

	r := NewRegistry()
	mustAdd(t, r, &Job{Name: "report", Cadence: EveryCadence(time.Minute), Gate: GateClosedOnly, Action: rc.action(clock)})

	s := New(r, WithNow(clock.Now), WithSession(session))
	ctx := context.Background()

	tickAndDrain(s, ctx)
	if rc.count() != 0 {
		t.Fatal("closed-only job ran while the market was open")
	}

	session.open = false
	clock.Advance(time.Minute)
	tickAndDrain(s, ctx)
	if rc.count() != 1 {
		t.Fatalf("closed-only job should run with market closed, count = %d", rc.count())
	}
}

func TestSerialJobSkipsOverlappingDispatch(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}
	release := make(chan struct{})
	started := make(chan struct{})
	var runs int
	var mu sync.Mutex

	r := NewRegistry()
	mustAdd(t, r, &Job{
		Name:    "slow",
		Cadence: EveryCadence(time.Minute),
		Serial:  true,
		Action: func(ctx context.Context) error {
			mu.Lock()
			runs++
			mu.Unlock()
			started <- struct{}{}
			<-release
			return nil
		},
	})

	s := New(r, WithNow(clock.Now))
	ctx := context.Background()

	s.Tick(ctx)
	<-started

	// Job is still in flight; the next due tick must skip it.
	clock.Advance(time.Minute)
	s.Tick(ctx)

	mu.Lock()
	got := runs
	mu.Unlock()
	if got != 1 {
		t.Fatalf("serial job overlapped itself, runs = %d", got)
	}

	close(release)
	s.Wait()

	// After completion the job is dispatchable again; release is closed
	// so the second run finishes on its own.
	clock.Advance(time.Minute)
	s.Tick(ctx)
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("serial job was not re-dispatched after completing")
	}
	s.Wait()

	mu.Lock()
	got = runs
	mu.Unlock()
	if got != 2 {
		t.Fatalf("runs = %d after re-dispatch, want 2", got)
	}
}

func TestLastRunReadableWhileDispatching(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}
	release := make(chan struct{})

	r := NewRegistry()
	job := &Job{
		Name:    "slow",
		Cadence: EveryCadence(time.Minute),
		Action: func(ctx context.Context) error {
			<-release
			return nil
		},
	}
	mustAdd(t, r, job)

	s := New(r, WithNow(clock.Now))
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			job.LastRun()
		}
	}()

	s.Tick(ctx)
	<-done
	close(release)
	s.Wait()

	if !job.LastRun().Equal(clock.Now()) {
		t.Errorf("LastRun = %v, want %v", job.LastRun(), clock.Now())
	}
}

func TestFailingJobDoesNotAffectOthers(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}
	rc := &runCounter{}

	r := NewRegistry()
	mustAdd(t, r, &Job{
		Name:    "broken",
		Cadence: EveryCadence(time.Minute),
		Action: func(ctx context.Context) error {
			return apperrors.NewFetchError("screener", context.DeadlineExceeded)
		},
	})
	mustAdd(t, r, &Job{Name: "healthy", Cadence: EveryCadence(time.Minute), Action: rc.action(clock)})

	s := New(r, WithNow(clock.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tickAndDrain(s, ctx)
		clock.Advance(time.Minute)
	}
	if rc.count() != 3 {
		t.Fatalf("healthy job starved by failing sibling, count = %d", rc.count())
	}
}
