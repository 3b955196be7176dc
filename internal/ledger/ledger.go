// Package ledger records probe runs in a SQLite file so warm-up behaviour
// can be compared across builds and models.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	// serialized access to the sqlite handle; deadlocks here are reported
	// instead of hanging the probe
	sync "github.com/sasha-s/go-deadlock"

	"classifyd/internal/common/fsutil"
	"classifyd/internal/probe"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER,
		finished_at INTEGER,
		backend TEXT,
		artifact_path TEXT,
		pool_size INTEGER,
		passes INTEGER,
		image TEXT,
		final_bytes INTEGER,
		repeated_growth INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS steps (
		id INTEGER PRIMARY KEY ASC,
		run_id TEXT REFERENCES runs(id),
		seq INTEGER,
		phase TEXT,
		pass INTEGER,
		handle INTEGER,
		label TEXT,
		score REAL,
		cold INTEGER,
		duration_ns INTEGER,
		rss_bytes INTEGER,
		heap_bytes INTEGER,
		delta_bytes INTEGER
	)`,
}

// Ledger is safe for concurrent use.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// Run is a stored run header.
type Run struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	Backend        string
	ArtifactPath   string
	PoolSize       int
	Passes         int
	Image          string
	FinalBytes     int64
	RepeatedGrowth bool
}

// Open opens or creates the database at path.
func Open(path string) (*Ledger, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", p)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, q := range schema {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init ledger: %w", err)
		}
	}
	return &Ledger{db: db}, nil
}

// Record stores a report and its steps in one transaction.
func (l *Ledger) Record(ctx context.Context, r *probe.Report) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, finished_at, backend, artifact_path, pool_size, passes, image, final_bytes, repeated_growth) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.RunID, r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(), r.Backend, r.ArtifactPath,
		r.PoolSize, r.Passes, r.Image, r.Final.Bytes(), boolInt(r.RepeatedGrowth))
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	for i, s := range r.Steps {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO steps (run_id, seq, phase, pass, handle, label, score, cold, duration_ns, rss_bytes, heap_bytes, delta_bytes) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			r.RunID, i, s.Phase, s.Pass, s.Handle, s.Label, s.Score, boolInt(s.Cold),
			int64(s.Duration), s.Memory.RSS, s.Memory.HeapAlloc, s.Delta)
		if err != nil {
			return fmt.Errorf("record step %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Runs lists stored runs, newest first.
func (l *Ledger) Runs(ctx context.Context) ([]Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.QueryContext(ctx,
		"SELECT id, started_at, finished_at, backend, artifact_path, pool_size, passes, image, final_bytes, repeated_growth FROM runs ORDER BY started_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		var repeated int
		if err := rows.Scan(&r.ID, &started, &finished, &r.Backend, &r.ArtifactPath, &r.PoolSize, &r.Passes, &r.Image, &r.FinalBytes, &repeated); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		r.RepeatedGrowth = repeated != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Steps returns the steps of one run in recorded order.
func (l *Ledger) Steps(ctx context.Context, runID string) ([]probe.Step, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.QueryContext(ctx,
		"SELECT phase, pass, handle, label, score, cold, duration_ns, rss_bytes, heap_bytes, delta_bytes FROM steps WHERE run_id = ? ORDER BY seq", runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()
	var out []probe.Step
	for rows.Next() {
		var s probe.Step
		var cold int
		var dur int64
		if err := rows.Scan(&s.Phase, &s.Pass, &s.Handle, &s.Label, &s.Score, &cold, &dur, &s.Memory.RSS, &s.Memory.HeapAlloc, &s.Delta); err != nil {
			return nil, fmt.Errorf("list steps: %w", err)
		}
		s.Cold = cold != 0
		s.Duration = time.Duration(dur)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
