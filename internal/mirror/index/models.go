package index

import "time"

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusPartial   = "partial"
	RunStatusCancelled = "cancelled"
)

// Share statuses
const (
	ShareStatusMirrored = "mirrored"
	ShareStatusFailed   = "failed"
)

// Run is one invocation of the mirror command
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Shares     []string   `json:"shares"`
	Status     string     `json:"status"`
}

// RunSummary is a run with task counts aggregated from its results
type RunSummary struct {
	Run
	Downloaded int   `json:"downloaded"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	Bytes      int64 `json:"bytes"`
}

// ShareRecord is the outcome of one share within a run
type ShareRecord struct {
	RunID        string    `json:"runId"`
	ShareID      string    `json:"shareId"`
	Status       string    `json:"status"`
	Files        int       `json:"files"`
	Bytes        int64     `json:"bytes"`
	ErrorCode    string    `json:"errorCode,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// TaskRecord is the outcome of one download task within a run
type TaskRecord struct {
	RunID        string    `json:"runId"`
	ShareID      string    `json:"shareId"`
	ItemID       string    `json:"itemId"`
	RelPath      string    `json:"relPath"`
	TargetPath   string    `json:"targetPath"`
	Size         int64     `json:"size"`
	Outcome      string    `json:"outcome"`
	Bytes        int64     `json:"bytes"`
	ErrorCode    string    `json:"errorCode,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	FinishedAt   time.Time `json:"finishedAt"`
}
