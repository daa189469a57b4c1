package ledger

import "time"

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// InterruptedReason is recorded for runs found still running at startup.
const InterruptedReason = "run did not finish; process exited early"

// Run is one pipeline invocation.
type Run struct {
	ID                string
	Command           string
	ConfigFingerprint string
	Status            Status
	StartedAt         time.Time
	FinishedAt        *time.Time
	ErrorMessage      string
}

// Duration returns the run's wall time, measured to now while running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StageCount is the item tally of one stage within a run.
type StageCount struct {
	Stage        string
	Device       string
	Items        int
	Done         int
	Failed       int
	Cached       int
	CachedFailed int
	Duration     time.Duration
}

// Accuracy is the top-k accuracy of one method on one split.
type Accuracy struct {
	Method string
	Split  int
	K      int
	Value  float64
}
