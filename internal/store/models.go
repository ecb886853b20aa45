package store

import "time"

// Persisted state names. They match the scheduler's state strings.
const (
	StateEnqueued  = "enqueued"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// Run is one pipeline execution and its stages.
type Run struct {
	ID            int64
	UUID          string
	Name          string
	BlurLevel     int
	InputLocator  string
	State         string
	OutputLocator string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	FinishedAt    *time.Time
	Stages        []Stage
}

// Duration reports how long the run took, or has taken so far.
func (r *Run) Duration(now time.Time) time.Duration {
	if r == nil || r.CreatedAt.IsZero() {
		return 0
	}
	end := now
	if r.FinishedAt != nil {
		end = *r.FinishedAt
	}
	if end.Before(r.CreatedAt) {
		return 0
	}
	return end.Sub(r.CreatedAt)
}

// Stage is the persisted snapshot of one stage of a run.
type Stage struct {
	RunID         int64
	Index         int
	Kind          string
	Tags          []string
	State         string
	OutputPayload string
	ErrorKind     string
	ErrorMessage  string
	StartedAt     *time.Time
	FinishedAt    *time.Time
	UpdatedAt     time.Time
}

// NewRun describes a run to record before it starts executing.
type NewRun struct {
	UUID         string
	Name         string
	BlurLevel    int
	InputLocator string
	Stages       []NewStage
}

// NewStage describes one stage of a NewRun.
type NewStage struct {
	Kind string
	Tags []string
}

// StageUpdate carries a stage state transition. Empty fields leave the stored
// value untouched, except State which is always written.
type StageUpdate struct {
	State         string
	OutputPayload string
	ErrorKind     string
	ErrorMessage  string
	StartedAt     *time.Time
	FinishedAt    *time.Time
}
