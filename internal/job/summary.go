package job

import (
	"time"

	"github.com/abdulachik/autoposter/internal/db"
	"github.com/abdulachik/autoposter/internal/metrics"
)

// Status is the outcome of a cycle.
type Status string

const (
	StatusRunning Status = db.RunStatusRunning
	StatusSuccess Status = db.RunStatusSuccess
	StatusPartial Status = db.RunStatusPartial
	StatusFailed  Status = db.RunStatusFailed
	StatusEmpty   Status = db.RunStatusEmpty
)

func (s Status) metricResult() string {
	switch s {
	case StatusSuccess:
		return metrics.ResultSuccess
	case StatusEmpty:
		return metrics.ResultEmpty
	default:
		return metrics.ResultFailed
	}
}

// Summary describes one cycle.
type Summary struct {
	RunID   string
	Job     string
	Trigger string
	Status  Status

	Requested int
	Selected  int
	Posted    int
	Disposed  int

	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Depleted reports whether the selector returned fewer posts than requested.
func (s Summary) Depleted() bool {
	return s.Selected < s.Requested
}
