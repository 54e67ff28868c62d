package observer

import (
	"context"
	_ "embed"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

//go:embed migration.sql
var migrationSQL string

// DBTX is the subset of *pgxpool.Pool, *pgx.Conn and pgx.Tx used here.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Migrate creates the pipeline_run and pipeline_run_stage tables if they do
// not exist.
func Migrate(ctx context.Context, db DBTX) error {
	_, err := db.Exec(ctx, migrationSQL)
	return err
}

// Queries wraps the SQL used by DBObserver and Resumer.
type Queries struct {
	db DBTX
}

// NewQueries returns Queries backed by db.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const upsertPipelineRun = `
INSERT INTO pipeline_run (run_id, name, status, plan, restored, started_at)
VALUES ($1, $2, 'running', $3, $4, $5)
ON CONFLICT (run_id) DO UPDATE SET
    name = EXCLUDED.name,
    status = 'running',
    plan = EXCLUDED.plan,
    restored = EXCLUDED.restored,
    started_at = EXCLUDED.started_at,
    finished_at = NULL,
    message = NULL,
    error = NULL`

type UpsertPipelineRunParams struct {
	RunID     string
	Name      string
	Plan      []byte
	Restored  []byte
	StartedAt time.Time
}

func (q *Queries) UpsertPipelineRun(ctx context.Context, arg UpsertPipelineRunParams) error {
	_, err := q.db.Exec(ctx, upsertPipelineRun, arg.RunID, arg.Name, arg.Plan, arg.Restored, arg.StartedAt)
	return err
}

const updatePipelineRunComplete = `
UPDATE pipeline_run SET
    status = $2, executed = $3, skipped = $4, failed = $5,
    message = $6, error = $7, duration_ms = $8, finished_at = now()
WHERE run_id = $1`

type UpdatePipelineRunCompleteParams struct {
	RunID      string
	Status     string
	Executed   int32
	Skipped    int32
	Failed     int32
	Message    pgtype.Text
	Error      pgtype.Text
	DurationMs int64
}

func (q *Queries) UpdatePipelineRunComplete(ctx context.Context, arg UpdatePipelineRunCompleteParams) error {
	_, err := q.db.Exec(ctx, updatePipelineRunComplete,
		arg.RunID, arg.Status, arg.Executed, arg.Skipped, arg.Failed, arg.Message, arg.Error, arg.DurationMs)
	return err
}

const upsertPipelineRunStage = `
INSERT INTO pipeline_run_stage (run_id, stage_id, stage_name, status, attempts, started_at)
VALUES ($1, $2, $3, 'running', 0, $4)
ON CONFLICT (run_id, stage_id) DO UPDATE SET
    stage_name = EXCLUDED.stage_name,
    status = 'running',
    attempts = 0,
    error = NULL,
    started_at = EXCLUDED.started_at,
    finished_at = NULL,
    duration_ms = NULL`

type UpsertPipelineRunStageParams struct {
	RunID     string
	StageID   string
	StageName string
	StartedAt time.Time
}

func (q *Queries) UpsertPipelineRunStage(ctx context.Context, arg UpsertPipelineRunStageParams) error {
	_, err := q.db.Exec(ctx, upsertPipelineRunStage, arg.RunID, arg.StageID, arg.StageName, arg.StartedAt)
	return err
}

const updatePipelineRunStage = `
UPDATE pipeline_run_stage SET
    status = $3, attempts = $4, error = $5,
    duration_ms = $6,
    finished_at = CASE WHEN $3 IN ('success', 'failed') THEN now() ELSE NULL END
WHERE run_id = $1 AND stage_id = $2`

type UpdatePipelineRunStageParams struct {
	RunID      string
	StageID    string
	Status     string
	Attempts   int32
	Error      pgtype.Text
	DurationMs pgtype.Int8
}

func (q *Queries) UpdatePipelineRunStage(ctx context.Context, arg UpdatePipelineRunStageParams) error {
	_, err := q.db.Exec(ctx, updatePipelineRunStage,
		arg.RunID, arg.StageID, arg.Status, arg.Attempts, arg.Error, arg.DurationMs)
	return err
}

// PendingRun is a run whose last attempt failed or was canceled.
type PendingRun struct {
	RunID string
	Name  string
}

const listPendingRuns = `
SELECT run_id, name
FROM pipeline_run
WHERE status IN ('failed', 'canceled')
ORDER BY finished_at`

func (q *Queries) ListPendingRuns(ctx context.Context) ([]PendingRun, error) {
	rows, err := q.db.Query(ctx, listPendingRuns)
	if err != nil {
		return nil, err
	}
	return collectPending(rows)
}

const claimPendingRuns = `
UPDATE pipeline_run
SET claimed_by = $1, claimed_at = now()
WHERE run_id IN (
    SELECT run_id
    FROM pipeline_run
    WHERE status IN ('failed', 'canceled')
      AND (claimed_by IS NULL OR claimed_at < now() - interval '5 minutes')
    ORDER BY finished_at
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
RETURNING run_id, name`

func (q *Queries) ClaimPendingRuns(ctx context.Context, claimedBy string, limit int32) ([]PendingRun, error) {
	rows, err := q.db.Query(ctx, claimPendingRuns, claimedBy, limit)
	if err != nil {
		return nil, err
	}
	return collectPending(rows)
}

const releaseClaim = `
UPDATE pipeline_run SET claimed_by = NULL, claimed_at = NULL
WHERE run_id = $1 AND claimed_by = $2`

func (q *Queries) ReleaseClaim(ctx context.Context, runID, claimedBy string) error {
	_, err := q.db.Exec(ctx, releaseClaim, runID, claimedBy)
	return err
}

func collectPending(rows pgx.Rows) ([]PendingRun, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PendingRun, error) {
		var p PendingRun
		err := row.Scan(&p.RunID, &p.Name)
		return p, err
	})
}
