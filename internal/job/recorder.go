package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/abdulachik/autoposter/internal/db"
	"github.com/abdulachik/autoposter/internal/poster"
)

// Recorder keeps the history of cycles.
type Recorder interface {
	StartRun(ctx context.Context, s Summary) error
	RecordDelivery(ctx context.Context, runID, job, origin string, d poster.Delivery) error
	FinishRun(ctx context.Context, s Summary) error
}

// NopRecorder keeps nothing.
type NopRecorder struct{}

func (NopRecorder) StartRun(context.Context, Summary) error { return nil }

func (NopRecorder) RecordDelivery(context.Context, string, string, string, poster.Delivery) error {
	return nil
}

func (NopRecorder) FinishRun(context.Context, Summary) error { return nil }

// RunQueries is the part of the store a StoreRecorder writes to.
type RunQueries interface {
	CreateRun(ctx context.Context, arg db.CreateRunParams) error
	FinishRun(ctx context.Context, arg db.FinishRunParams) error
	CreateDelivery(ctx context.Context, arg db.CreateDeliveryParams) (int64, error)
}

// StoreRecorder writes runs and deliveries to the database.
type StoreRecorder struct {
	q RunQueries
}

// NewStoreRecorder creates a recorder backed by q.
func NewStoreRecorder(q RunQueries) *StoreRecorder {
	return &StoreRecorder{q: q}
}

func (r *StoreRecorder) StartRun(ctx context.Context, s Summary) error {
	err := r.q.CreateRun(ctx, db.CreateRunParams{
		ID:        s.RunID,
		Job:       s.Job,
		Trigger:   s.Trigger,
		Requested: int64(s.Requested),
	})
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (r *StoreRecorder) RecordDelivery(ctx context.Context, runID, job, origin string, d poster.Delivery) error {
	ids, err := json.Marshal(d.MessageIDs())
	if err != nil {
		return fmt.Errorf("encode message ids: %w", err)
	}

	_, err = r.q.CreateDelivery(ctx, db.CreateDeliveryParams{
		RunID:      runID,
		Job:        job,
		Origin:     origin,
		Poster:     d.Poster,
		ChatID:     d.ChatID,
		MessageIDs: string(ids),
	})
	if err != nil {
		return fmt.Errorf("create delivery: %w", err)
	}
	return nil
}

func (r *StoreRecorder) FinishRun(ctx context.Context, s Summary) error {
	var errText sql.NullString
	if s.Err != nil {
		errText = sql.NullString{String: s.Err.Error(), Valid: true}
	}

	err := r.q.FinishRun(ctx, db.FinishRunParams{
		ID:       s.RunID,
		Status:   string(s.Status),
		Posted:   int64(s.Posted),
		Disposed: int64(s.Disposed),
		Error:    errText,
	})
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}
