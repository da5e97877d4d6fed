package star

import "time"

// RunStatus is the lifecycle status of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// TableRunStatus is the lifecycle status of a single table within a run.
type TableRunStatus string

const (
	TableRunStatusPending TableRunStatus = "pending"
	TableRunStatusRunning TableRunStatus = "running"
	TableRunStatusSuccess TableRunStatus = "success"
	TableRunStatusFailed  TableRunStatus = "failed"
	TableRunStatusSkipped TableRunStatus = "skipped"
)

// Run is one pipeline execution.
type Run struct {
	ID          string
	Environment string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// TableRun is the outcome of building one table within a run.
type TableRun struct {
	ID          string
	RunID       string
	Table       string
	Status      TableRunStatus
	Rows        int64
	Files       int64
	DurationMS  int64
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Store persists runs and per-table outcomes. Implementations must be
// safe for sequential use from a single pipeline; concurrent writers for
// different tables of the same run are allowed.
type Store interface {
	CreateRun(env string) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetLatestRun(env string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	RecordTableRun(runID, table string) (*TableRun, error)
	UpdateTableRun(id string, status TableRunStatus, rows, files, durationMS int64, errMsg string) error
	GetTableRunsForRun(runID string) ([]*TableRun, error)

	Close() error
}
