package db

import (
	"context"
)

const upsertJob = `-- name: UpsertJob :exec
INSERT INTO jobs (name, definition, schedule, enabled)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
    definition = excluded.definition,
    schedule = excluded.schedule,
    enabled = excluded.enabled,
    updated_at = CURRENT_TIMESTAMP
`

type UpsertJobParams struct {
	Name       string
	Definition string
	Schedule   string
	Enabled    bool
}

func (q *Queries) UpsertJob(ctx context.Context, arg UpsertJobParams) error {
	_, err := q.db.ExecContext(ctx, upsertJob,
		arg.Name,
		arg.Definition,
		arg.Schedule,
		arg.Enabled,
	)
	return err
}

const getJob = `-- name: GetJob :one
SELECT name, definition, schedule, enabled, created_at, updated_at
FROM jobs
WHERE name = ?
`

func (q *Queries) GetJob(ctx context.Context, name string) (Job, error) {
	row := q.db.QueryRowContext(ctx, getJob, name)
	var i Job
	err := row.Scan(
		&i.Name,
		&i.Definition,
		&i.Schedule,
		&i.Enabled,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listJobs = `-- name: ListJobs :many
SELECT name, definition, schedule, enabled, created_at, updated_at
FROM jobs
ORDER BY name
`

func (q *Queries) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := q.db.QueryContext(ctx, listJobs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Job
	for rows.Next() {
		var i Job
		if err := rows.Scan(
			&i.Name,
			&i.Definition,
			&i.Schedule,
			&i.Enabled,
			&i.CreatedAt,
			&i.UpdatedAt,
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

const setJobEnabled = `-- name: SetJobEnabled :execrows
UPDATE jobs SET enabled = ?, updated_at = CURRENT_TIMESTAMP
WHERE name = ?
`

type SetJobEnabledParams struct {
	Enabled bool
	Name    string
}

func (q *Queries) SetJobEnabled(ctx context.Context, arg SetJobEnabledParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, setJobEnabled, arg.Enabled, arg.Name)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteJob = `-- name: DeleteJob :execrows
DELETE FROM jobs WHERE name = ?
`

func (q *Queries) DeleteJob(ctx context.Context, name string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteJob, name)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
