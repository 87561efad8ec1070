package db

import (
	"context"
	"database/sql"
)

const createRun = `-- name: CreateRun :exec
INSERT INTO runs (id, job, trigger, requested, started_at)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
`

type CreateRunParams struct {
	ID        string
	Job       string
	Trigger   string
	Requested int64
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) error {
	_, err := q.db.ExecContext(ctx, createRun,
		arg.ID,
		arg.Job,
		arg.Trigger,
		arg.Requested,
	)
	return err
}

const finishRun = `-- name: FinishRun :exec
UPDATE runs
SET status = ?, posted = ?, disposed = ?, error = ?, finished_at = CURRENT_TIMESTAMP
WHERE id = ?
`

type FinishRunParams struct {
	Status   string
	Posted   int64
	Disposed int64
	Error    sql.NullString
	ID       string
}

func (q *Queries) FinishRun(ctx context.Context, arg FinishRunParams) error {
	_, err := q.db.ExecContext(ctx, finishRun,
		arg.Status,
		arg.Posted,
		arg.Disposed,
		arg.Error,
		arg.ID,
	)
	return err
}

const getRun = `-- name: GetRun :one
SELECT id, job, trigger, status, requested, posted, disposed, error, started_at, finished_at
FROM runs
WHERE id = ?
`

func (q *Queries) GetRun(ctx context.Context, id string) (Run, error) {
	row := q.db.QueryRowContext(ctx, getRun, id)
	var i Run
	err := row.Scan(
		&i.ID,
		&i.Job,
		&i.Trigger,
		&i.Status,
		&i.Requested,
		&i.Posted,
		&i.Disposed,
		&i.Error,
		&i.StartedAt,
		&i.FinishedAt,
	)
	return i, err
}

const listRuns = `-- name: ListRuns :many
SELECT id, job, trigger, status, requested, posted, disposed, error, started_at, finished_at
FROM runs
WHERE (? = '' OR job = ?)
ORDER BY started_at DESC, rowid DESC
LIMIT ?
`

type ListRunsParams struct {
	Job   string
	Limit int64
}

// ListRuns returns the newest runs first. An empty Job matches every job.
func (q *Queries) ListRuns(ctx context.Context, arg ListRunsParams) ([]Run, error) {
	rows, err := q.db.QueryContext(ctx, listRuns, arg.Job, arg.Job, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Run
	for rows.Next() {
		var i Run
		if err := rows.Scan(
			&i.ID,
			&i.Job,
			&i.Trigger,
			&i.Status,
			&i.Requested,
			&i.Posted,
			&i.Disposed,
			&i.Error,
			&i.StartedAt,
			&i.FinishedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countRunsByStatus = `-- name: CountRunsByStatus :many
SELECT status, COUNT(*) AS count
FROM runs
WHERE (? = '' OR job = ?)
GROUP BY status
ORDER BY status
`

type CountRunsByStatusRow struct {
	Status string
	Count  int64
}

func (q *Queries) CountRunsByStatus(ctx context.Context, job string) ([]CountRunsByStatusRow, error) {
	rows, err := q.db.QueryContext(ctx, countRunsByStatus, job, job)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CountRunsByStatusRow
	for rows.Next() {
		var i CountRunsByStatusRow
		if err := rows.Scan(&i.Status, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createDelivery = `-- name: CreateDelivery :one
INSERT INTO deliveries (run_id, job, origin, poster, chat_id, message_ids)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id
`

type CreateDeliveryParams struct {
	RunID      string
	Job        string
	Origin     string
	Poster     string
	ChatID     string
	MessageIDs string
}

func (q *Queries) CreateDelivery(ctx context.Context, arg CreateDeliveryParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createDelivery,
		arg.RunID,
		arg.Job,
		arg.Origin,
		arg.Poster,
		arg.ChatID,
		arg.MessageIDs,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const listDeliveriesByRun = `-- name: ListDeliveriesByRun :many
SELECT id, run_id, job, origin, poster, chat_id, message_ids, created_at
FROM deliveries
WHERE run_id = ?
ORDER BY id
`

func (q *Queries) ListDeliveriesByRun(ctx context.Context, runID string) ([]Delivery, error) {
	rows, err := q.db.QueryContext(ctx, listDeliveriesByRun, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Delivery
	for rows.Next() {
		var i Delivery
		if err := rows.Scan(
			&i.ID,
			&i.RunID,
			&i.Job,
			&i.Origin,
			&i.Poster,
			&i.ChatID,
			&i.MessageIDs,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
