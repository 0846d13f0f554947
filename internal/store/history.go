// Package store persists pipeline run history in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/zeebo/xxh3"

	"neurolint/internal/logging"
	"neurolint/internal/pipeline"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// RunStore records pipeline runs and their per-layer attempts.
// Safe for concurrent use; writes are serialized.
type RunStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	closed bool
}

// RunRecord is one persisted pipeline run.
type RunRecord struct {
	ID               string        `json:"id"`
	FilePath         string        `json:"file_path"`
	InputHash        string        `json:"input_hash"`
	OutputHash       string        `json:"output_hash"`
	DryRun           bool          `json:"dry_run"`
	TotalChanges     int           `json:"total_changes"`
	LayersSucceeded  int           `json:"layers_succeeded"`
	LayersFailed     int           `json:"layers_failed"`
	LayersRolledBack int           `json:"layers_rolled_back"`
	LayersSkipped    int           `json:"layers_skipped"`
	Recommended      bool          `json:"recommended"`
	Duration         time.Duration `json:"duration"`
	StartedAt        time.Time     `json:"started_at"`
}

// Changed reports whether the run proposed different code.
func (r RunRecord) Changed() bool {
	return r.InputHash != r.OutputHash
}

// AttemptRecord is one persisted layer attempt.
type AttemptRecord struct {
	RunID     string        `json:"run_id"`
	Seq       int           `json:"seq"`
	LayerID   int           `json:"layer_id"`
	LayerName string        `json:"layer_name"`
	Strategy  string        `json:"strategy"`
	Status    string        `json:"status"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	ASTError  string        `json:"ast_error,omitempty"`
	Changes   int           `json:"changes"`
	Duration  time.Duration `json:"duration"`
}

// Hash returns the content hash stored for code.
func Hash(code string) string {
	return fmt.Sprintf("%016x", xxh3.Hash([]byte(code)))
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*RunStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("Opening run history at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}

	s := &RunStore{db: db, dbPath: path}
	if err := s.ensureSchema(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to ensure history schema: %v", err)
		db.Close()
		return nil, fmt.Errorf("failed to ensure history schema: %w", err)
	}

	logging.Store("Run history ready")
	return s, nil
}

func (s *RunStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL,
		input_hash TEXT NOT NULL,
		output_hash TEXT NOT NULL,
		dry_run BOOLEAN NOT NULL,
		total_changes INTEGER NOT NULL,
		layers_succeeded INTEGER NOT NULL,
		layers_failed INTEGER NOT NULL,
		layers_rolled_back INTEGER NOT NULL,
		layers_skipped INTEGER NOT NULL,
		recommended BOOLEAN NOT NULL,
		duration_ns INTEGER NOT NULL,
		started_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attempts (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		layer_id INTEGER NOT NULL,
		layer_name TEXT NOT NULL,
		strategy TEXT NOT NULL,
		status TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		error TEXT,
		ast_error TEXT,
		changes INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_file ON runs(file_path);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_attempts_layer ON attempts(layer_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun persists a run and its attempts in one transaction. Saving the
// same run ID again replaces it.
func (s *RunStore) SaveRun(run *pipeline.Run) error {
	if run == nil {
		return errors.New("store: nil run")
	}
	timer := logging.StartTimer(logging.CategoryStore, "SaveRun")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	logging.StoreDebug("Saving run: id=%s file=%s attempts=%d", run.ID, run.FilePath, len(run.Attempts))

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM attempts WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to clear attempts: %w", err)
	}
	_, err = tx.Exec(`
		INSERT OR REPLACE INTO runs
		(id, file_path, input_hash, output_hash, dry_run, total_changes,
		 layers_succeeded, layers_failed, layers_rolled_back, layers_skipped,
		 recommended, duration_ns, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.FilePath, Hash(run.OriginalCode), Hash(run.ProposedCode), run.DryRun,
		run.TotalChanges, run.LayersSucceeded, run.LayersFailed, run.LayersRolledBack,
		run.LayersSkipped, run.Recommendation != nil, int64(run.Duration), run.StartedAt.UnixNano(),
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to store run %s: %v", run.ID, err)
		return fmt.Errorf("failed to store run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO attempts
		(run_id, seq, layer_id, layer_name, strategy, status, success, error, ast_error, changes, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare attempt insert: %w", err)
	}
	defer stmt.Close()

	for i, a := range run.Attempts {
		if _, err := stmt.Exec(run.ID, i, int(a.LayerID), a.LayerName, string(a.Strategy), string(a.Status),
			a.Success, a.Error, a.ASTError, a.Changes, int64(a.Duration)); err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to store attempt %d of run %s: %v", i, run.ID, err)
			return fmt.Errorf("failed to store attempt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `id, file_path, input_hash, output_hash, dry_run, total_changes,
	layers_succeeded, layers_failed, layers_rolled_back, layers_skipped,
	recommended, duration_ns, started_at`

// RecentRuns returns the newest runs first.
func (s *RunStore) RecentRuns(limit int) ([]RunRecord, error) {
	timer := logging.StartTimer(logging.CategoryStore, "RecentRuns")
	defer timer.Stop()

	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs
		ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to query recent runs: %v", err)
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// RunsForFile returns the newest runs for one file path.
func (s *RunStore) RunsForFile(path string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs WHERE file_path = ?
		ORDER BY started_at DESC, rowid DESC LIMIT ?`, path, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// WroteContent reports whether the most recent committed run for path
// produced code. Watch mode uses it to ignore the write events caused by
// its own output.
func (s *RunStore) WroteContent(path, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}

	var hash string
	err := s.db.QueryRow(`SELECT output_hash FROM runs WHERE file_path = ? AND dry_run = 0
		ORDER BY started_at DESC, rowid DESC LIMIT 1`, path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return hash == Hash(code), nil
}

// Attempts returns a run's attempts in execution order.
func (s *RunStore) Attempts(runID string) ([]AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(`
		SELECT run_id, seq, layer_id, layer_name, strategy, status, success,
		       COALESCE(error, ''), COALESCE(ast_error, ''), changes, duration_ns
		FROM attempts WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to query attempts for run %s: %v", runID, err)
		return nil, err
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var (
			a   AttemptRecord
			dur int64
		)
		if err := rows.Scan(&a.RunID, &a.Seq, &a.LayerID, &a.LayerName, &a.Strategy, &a.Status,
			&a.Success, &a.Error, &a.ASTError, &a.Changes, &dur); err != nil {
			return nil, err
		}
		a.Duration = time.Duration(dur)
		out = append(out, a)
	}
	return out, rows.Err()
}

// LayerCounts returns how often each layer finished with each status.
func (s *RunStore) LayerCounts() (map[int]map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(`SELECT layer_id, status, COUNT(*) FROM attempts GROUP BY layer_id, status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]map[string]int)
	for rows.Next() {
		var (
			id     int
			status string
			n      int
		)
		if err := rows.Scan(&id, &status, &n); err != nil {
			return nil, err
		}
		if counts[id] == nil {
			counts[id] = make(map[string]int)
		}
		counts[id][status] = n
	}
	return counts, rows.Err()
}

// Close closes the database. Further calls return ErrClosed.
func (s *RunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	logging.StoreDebug("Closing run history at %s", s.dbPath)
	return s.db.Close()
}

func scanRuns(rows *sql.Rows) ([]RunRecord, error) {
	var out []RunRecord
	for rows.Next() {
		var (
			r            RunRecord
			dur, started int64
		)
		if err := rows.Scan(&r.ID, &r.FilePath, &r.InputHash, &r.OutputHash, &r.DryRun, &r.TotalChanges,
			&r.LayersSucceeded, &r.LayersFailed, &r.LayersRolledBack, &r.LayersSkipped,
			&r.Recommended, &dur, &started); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(dur)
		r.StartedAt = time.Unix(0, started)
		out = append(out, r)
	}
	return out, rows.Err()
}
