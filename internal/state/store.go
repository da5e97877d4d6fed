package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/mking01/spark-data-lakes/pkg/star"
)

// SQLiteStore implements star.Store on SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite run-ledger store instance.
func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn += "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Single connection: table runs of one pipeline run update
	// concurrently and SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// --- Run operations ---

// CreateRun creates a new pipeline run.
func (s *SQLiteStore) CreateRun(env string) (*star.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &star.Run{
		ID:          generateID(),
		Environment: env,
		Status:      star.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, environment, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Environment, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*star.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &star.Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := s.db.QueryRow(
		`SELECT id, environment, status, started_at, completed_at, error FROM runs WHERE id = ?`,
		id,
	).Scan(&run.ID, &run.Environment, &run.Status, &run.StartedAt, &completedAt, &errMsg)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}

	return run, nil
}

// CompleteRun marks a run as completed with the given status.
func (s *SQLiteStore) CompleteRun(id string, status star.RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	result, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, now, errorPtr, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// GetLatestRun retrieves the most recent run for an environment.
// An empty env matches any environment.
func (s *SQLiteStore) GetLatestRun(env string) (*star.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := `SELECT id, environment, status, started_at, completed_at, error
		 FROM runs WHERE environment = ? ORDER BY started_at DESC LIMIT 1`
	args := []any{env}
	if env == "" {
		query = `SELECT id, environment, status, started_at, completed_at, error
		 FROM runs ORDER BY started_at DESC LIMIT 1`
		args = nil
	}

	run := &star.Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := s.db.QueryRow(query, args...).
		Scan(&run.ID, &run.Environment, &run.Status, &run.StartedAt, &completedAt, &errMsg)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No runs yet, return nil without error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}

	return run, nil
}

// ListRuns retrieves the most recent runs across environments, newest
// first. A limit of zero or less returns all runs.
func (s *SQLiteStore) ListRuns(limit int) ([]*star.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := `SELECT id, environment, status, started_at, completed_at, error
		 FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*star.Run
	for rows.Next() {
		run := &star.Run{}
		var completedAt sql.NullTime
		var errMsg sql.NullString

		err := rows.Scan(&run.ID, &run.Environment, &run.Status, &run.StartedAt, &completedAt, &errMsg)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		if errMsg.Valid {
			run.Error = errMsg.String
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// --- Table run operations ---

// RecordTableRun records a pending table build within a run.
func (s *SQLiteStore) RecordTableRun(runID, table string) (*star.TableRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	tr := &star.TableRun{
		ID:        generateID(),
		RunID:     runID,
		Table:     table,
		Status:    star.TableRunStatusPending,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO table_runs (id, run_id, table_name, status, row_count, file_count, duration_ms, started_at)
		 VALUES (?, ?, ?, ?, 0, 0, 0, ?)`,
		tr.ID, tr.RunID, tr.Table, tr.Status, tr.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record table run: %w", err)
	}

	return tr, nil
}

// UpdateTableRun updates the status and counters of a table run.
func (s *SQLiteStore) UpdateTableRun(id string, status star.TableRunStatus, rows, files, durationMS int64, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	// Transitions into a terminal status stamp the completion time.
	var completedAt *time.Time
	switch status {
	case star.TableRunStatusSuccess, star.TableRunStatusFailed, star.TableRunStatusSkipped:
		now := time.Now().UTC()
		completedAt = &now
	}

	result, err := s.db.Exec(
		`UPDATE table_runs SET status = ?, row_count = ?, file_count = ?, duration_ms = ?, error = ?, completed_at = ? WHERE id = ?`,
		status, rows, files, durationMS, errorPtr, completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update table run: %w", err)
	}

	rowsUpdated, _ := result.RowsAffected()
	if rowsUpdated == 0 {
		return fmt.Errorf("table run not found: %s", id)
	}

	return nil
}

// GetTableRunsForRun retrieves all table runs for a given pipeline run.
func (s *SQLiteStore) GetTableRunsForRun(runID string) ([]*star.TableRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, table_name, status, row_count, file_count, duration_ms, error, started_at, completed_at
		 FROM table_runs WHERE run_id = ? ORDER BY started_at, table_name`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get table runs: %w", err)
	}
	defer rows.Close()

	var tableRuns []*star.TableRun
	for rows.Next() {
		tr := &star.TableRun{}
		var completedAt sql.NullTime
		var errMsg sql.NullString

		err := rows.Scan(&tr.ID, &tr.RunID, &tr.Table, &tr.Status, &tr.Rows, &tr.Files, &tr.DurationMS, &errMsg, &tr.StartedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table run: %w", err)
		}

		if completedAt.Valid {
			tr.CompletedAt = &completedAt.Time
		}
		if errMsg.Valid {
			tr.Error = errMsg.String
		}
		tableRuns = append(tableRuns, tr)
	}

	return tableRuns, rows.Err()
}

// Ensure SQLiteStore implements the star.Store interface
var _ star.Store = (*SQLiteStore)(nil)
