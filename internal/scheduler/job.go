package scheduler

import (
	"time"

	"github.com/latentloop/diskindex/internal/model"
)

// Job is the Scheduler's in-memory record of one scan, following the
// state machine pending -> running -> (completed|failed|cancelled).
type Job struct {
	ID          string
	RootURI     string
	PID         int
	Status      model.ScanStatus
	StartedAt   time.Time
	ItemsFound  int64
	ItemsPerSec float64
	ErrorCount  int
	BlobID      string
	Err         string
}

func (j Job) isTerminal() bool {
	switch j.Status {
	case model.ScanStatusCompleted, model.ScanStatusFailed, model.ScanStatusCancelled:
		return true
	default:
		return false
	}
}
