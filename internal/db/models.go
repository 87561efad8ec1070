package db

import (
	"database/sql"
	"time"
)

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
	RunStatusEmpty   = "empty"
)

type Job struct {
	Name       string
	Definition string
	Schedule   string
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Run struct {
	ID         string
	Job        string
	Trigger    string
	Status     string
	Requested  int64
	Posted     int64
	Disposed   int64
	Error      sql.NullString
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

type Delivery struct {
	ID         int64
	RunID      string
	Job        string
	Origin     string
	Poster     string
	ChatID     string
	MessageIDs string
	CreatedAt  time.Time
}
