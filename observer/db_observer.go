package observer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dcshock/stageflow/pipeline"
	"github.com/jackc/pgx/v5/pgtype"
)

// Stage and run statuses written by DBObserver.
const (
	StatusRunning  = "running"
	StatusRetrying = "retrying"
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// DBObserver persists runs and their stages to Postgres (pipeline_run,
// pipeline_run_stage) so runs can be monitored, and so Resumer can find runs
// that stopped early.
type DBObserver struct {
	queries *Queries
}

// NewDBObserver returns an observer that writes through queries (e.g.
// NewQueries(pool)).
func NewDBObserver(queries *Queries) *DBObserver {
	return &DBObserver{queries: queries}
}

// OnRunStart implements pipeline.RunObserver. Upserts the pipeline_run row
// with status 'running', so a resumed run reuses its row.
func (o *DBObserver) OnRunStart(ctx context.Context, ev pipeline.RunStart) error {
	plan, err := marshalOptional(ev.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	restored, err := marshalOptional(ev.Restored)
	if err != nil {
		return fmt.Errorf("marshal restored: %w", err)
	}
	return o.queries.UpsertPipelineRun(ctx, UpsertPipelineRunParams{
		RunID:     ev.RunID,
		Name:      ev.Name,
		Plan:      plan,
		Restored:  restored,
		StartedAt: ev.Time,
	})
}

// OnRunEnd implements pipeline.RunObserver. Records the final status and counts.
func (o *DBObserver) OnRunEnd(ctx context.Context, res *pipeline.Result) error {
	return o.queries.UpdatePipelineRunComplete(ctx, UpdatePipelineRunCompleteParams{
		RunID:      res.RunID,
		Status:     runStatus(res),
		Executed:   int32(len(res.Executed)),
		Skipped:    int32(len(res.Skipped)),
		Failed:     int32(len(res.Failed)),
		Message:    optionalText(res.Message),
		Error:      errText(res.FirstErr),
		DurationMs: res.TotalDuration.Milliseconds(),
	})
}

// OnStageStart implements pipeline.Observer. Upserts a pipeline_run_stage row
// with status 'running'.
func (o *DBObserver) OnStageStart(ctx context.Context, ev pipeline.StageStart) error {
	return o.queries.UpsertPipelineRunStage(ctx, UpsertPipelineRunStageParams{
		RunID:     ev.RunID,
		StageID:   ev.StageID,
		StageName: ev.StageName,
		StartedAt: ev.Time,
	})
}

// OnStageComplete implements pipeline.Observer.
func (o *DBObserver) OnStageComplete(ctx context.Context, ev pipeline.StageComplete) error {
	return o.queries.UpdatePipelineRunStage(ctx, UpdatePipelineRunStageParams{
		RunID:      ev.RunID,
		StageID:    ev.StageID,
		Status:     StatusSuccess,
		Attempts:   int32(ev.Attempt + 1),
		DurationMs: pgtype.Int8{Int64: ev.Duration.Milliseconds(), Valid: true},
	})
}

// OnStageError implements pipeline.Observer. A failure that will be retried
// leaves the stage in 'retrying'.
func (o *DBObserver) OnStageError(ctx context.Context, ev pipeline.StageError) error {
	status := StatusFailed
	if ev.WillRetry {
		status = StatusRetrying
	}
	return o.queries.UpdatePipelineRunStage(ctx, UpdatePipelineRunStageParams{
		RunID:    ev.RunID,
		StageID:  ev.StageID,
		Status:   status,
		Attempts: int32(ev.Attempt + 1),
		Error:    errText(ev.Err),
	})
}

func runStatus(res *pipeline.Result) string {
	switch {
	case res.Canceled:
		return StatusCanceled
	case !res.Success:
		return StatusFailed
	default:
		return StatusSuccess
	}
}

func optionalText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func errText(err error) pgtype.Text {
	if err == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: err.Error(), Valid: true}
}

func marshalOptional(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

var (
	_ pipeline.Observer    = (*DBObserver)(nil)
	_ pipeline.RunObserver = (*DBObserver)(nil)
)
