package scheduler

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// JobState is the persisted dispatch bookkeeping for one job. Keeping it
// across restarts prevents a daily job from re-firing when the process
// comes back up later the same day.
type JobState struct {
	LastRun      time.Time
	LastFiredDay string
}

// StateStore persists per-job dispatch state.
type StateStore interface {
	Load(name string) (JobState, error)
	Save(name string, state JobState) error
	Close() error
}

// SQLiteStateStore implements StateStore using SQLite.
type SQLiteStateStore struct {
	db *sql.DB
}

// NewSQLiteStateStore opens (or creates) the job state database at dbPath.
func NewSQLiteStateStore(dbPath string) (*SQLiteStateStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS job_state (
		name TEXT PRIMARY KEY,
		last_run DATETIME,
		last_fired_day TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStateStore{db: db}, nil
}

// Load returns the persisted state for name; a job never seen before
// returns a zero state.
func (s *SQLiteStateStore) Load(name string) (JobState, error) {
	var lastRun sql.NullString
	var firedDay sql.NullString

	row := s.db.QueryRow(`SELECT last_run, last_fired_day FROM job_state WHERE name = ?`, name)
	if err := row.Scan(&lastRun, &firedDay); err != nil {
		if err == sql.ErrNoRows {
			return JobState{}, nil
		}
		return JobState{}, fmt.Errorf("failed to load state for %s: %w", name, err)
	}

	var state JobState
	if lastRun.Valid && lastRun.String != "" {
		t, err := time.Parse(time.RFC3339Nano, lastRun.String)
		if err != nil {
			return JobState{}, fmt.Errorf("failed to parse last_run for %s: %w", name, err)
		}
		state.LastRun = t
	}
	if firedDay.Valid {
		state.LastFiredDay = firedDay.String
	}
	return state, nil
}

// Save upserts the state for name.
func (s *SQLiteStateStore) Save(name string, state JobState) error {
	var lastRun string
	if !state.LastRun.IsZero() {
		lastRun = state.LastRun.Format(time.RFC3339Nano)
	}
	_, err := s.db.Exec(`
		INSERT INTO job_state (name, last_run, last_fired_day, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			last_run = excluded.last_run,
			last_fired_day = excluded.last_fired_day,
			updated_at = CURRENT_TIMESTAMP`,
		name, lastRun, state.LastFiredDay)
	if err != nil {
		return fmt.Errorf("failed to save state for %s: %w", name, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStateStore) Close() error {
	return s.db.Close()
}

// MemoryStateStore is an in-memory StateStore. Daily jobs may re-fire
// after a same-day restart when this store is used; it exists for tests
// and for running without a configured database path.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]JobState
}

// NewMemoryStateStore creates an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]JobState)}
}

// Load returns the stored state for name, zero if absent.
func (m *MemoryStateStore) Load(name string) (JobState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[name], nil
}

// Save stores the state for name.
func (m *MemoryStateStore) Save(name string, state JobState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[name] = state
	return nil
}

// Close is a no-op.
func (m *MemoryStateStore) Close() error {
	return nil
}
