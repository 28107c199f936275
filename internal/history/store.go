// Package history records scenario outcomes in a SQLite database so runs can be
// compared across firmware builds.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/srg/dutexpect/pkg/scenario"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Run is one recorded scenario outcome.
type Run struct {
	RunID         string          `json:"run_id"`
	Scenario      string          `json:"scenario"`
	Device        string          `json:"device"`
	Status        scenario.Status `json:"status"`
	FailedStep    int             `json:"failed_step"`
	Step          string          `json:"step,omitempty"`
	Reason        scenario.Reason `json:"reason,omitempty"`
	ErrorMessage  string          `json:"error,omitempty"`
	Context       []string        `json:"context,omitempty"`
	UnityTests    *int            `json:"unity_tests,omitempty"`
	UnityFailures *int            `json:"unity_failures,omitempty"`
	UnityIgnored  *int            `json:"unity_ignored,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	Duration      time.Duration   `json:"duration"`
}

// Store manages the run history database
type Store struct {
	db     *sql.DB
	dbPath string
	logger *logrus.Logger
}

// Open creates the database file if needed and initializes the schema.
// ":memory:" opens a private in-memory database.
func Open(dbPath string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.WithField("path", dbPath).Debug("History store opened")
	return &Store{db: db, dbPath: dbPath, logger: logger}, nil
}

// execWithRetry executes a statement with exponential backoff on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores an outcome. Recording the same run twice replaces the first row.
func (s *Store) Record(ctx context.Context, o *scenario.Outcome) error {
	contextJSON, err := json.Marshal(o.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	if o.Context == nil {
		contextJSON = []byte("[]")
	}

	var errMsg string
	if err := o.Err(); err != nil {
		errMsg = err.Error()
	}

	var tests, failures, ignored sql.NullInt64
	if o.Unity != nil {
		tests = sql.NullInt64{Int64: int64(o.Unity.Tests), Valid: true}
		failures = sql.NullInt64{Int64: int64(o.Unity.Failures), Valid: true}
		ignored = sql.NullInt64{Int64: int64(o.Unity.Ignored), Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO runs (
			run_id, scenario, device, status, failed_step, step, reason, error_message,
			context, unity_tests, unity_failures, unity_ignored, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		o.RunID, o.Scenario, o.Device, string(o.Status), o.FailedStep, o.StepName, string(o.Reason), errMsg,
		string(contextJSON), tests, failures, ignored, o.StartedAt.UTC(), o.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", o.RunID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"run_id": o.RunID,
		"status": o.Status,
	}).Debug("Run recorded")
	return nil
}

const selectRuns = `
	SELECT run_id, scenario, device, status, failed_step, step, reason, error_message,
		context, unity_tests, unity_failures, unity_ignored, started_at, duration_ms
	FROM runs
`

// List returns the most recent runs first. A limit <= 0 returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := selectRuns + " ORDER BY started_at DESC, rowid DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Get returns one run by ID.
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+" WHERE run_id = ?", runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                        Run
		status, reason, ctxJSON  string
		tests, failures, ignored sql.NullInt64
		durationMs               int64
	)
	err := sc.Scan(&r.RunID, &r.Scenario, &r.Device, &status, &r.FailedStep, &r.Step, &reason, &r.ErrorMessage,
		&ctxJSON, &tests, &failures, &ignored, &r.StartedAt, &durationMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	r.Status = scenario.Status(status)
	r.Reason = scenario.Reason(reason)
	r.Duration = time.Duration(durationMs) * time.Millisecond
	if err := json.Unmarshal([]byte(ctxJSON), &r.Context); err != nil {
		return nil, fmt.Errorf("unmarshal context of run %s: %w", r.RunID, err)
	}
	r.UnityTests = nullInt(tests)
	r.UnityFailures = nullInt(failures)
	r.UnityIgnored = nullInt(ignored)
	return &r, nil
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
