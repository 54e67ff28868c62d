package observer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dcshock/stageflow/pipeline"
	"go.uber.org/zap"
)

// EngineLookup builds the engine and context for a pending run. The engine must
// use run.RunID and the checkpoint store the failed run wrote to (normally a
// checkpoint.FileStore on the same directory); the run then skips completed
// stages. Return a nil engine to leave the run pending.
type EngineLookup func(ctx context.Context, run PendingRun) (*pipeline.Engine, *pipeline.Context, error)

// Resumer finds runs whose history ends in failure and runs them again.
type Resumer struct {
	queries *Queries
	lookup  EngineLookup
	logger  *zap.Logger
}

// NewResumer returns a resumer that uses the given Queries and engine lookup.
func NewResumer(queries *Queries, lookup EngineLookup, logger *zap.Logger) *Resumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resumer{queries: queries, lookup: lookup, logger: logger}
}

// Pending lists runs whose last recorded status is failed or canceled.
func (r *Resumer) Pending(ctx context.Context) ([]PendingRun, error) {
	return r.queries.ListPendingRuns(ctx)
}

// RunPending resumes every pending run once. All runs are attempted; the
// returned error joins the failures. For single-process use only; with
// several workers use RunPendingWithClaim so each run is resumed by one worker.
func (r *Resumer) RunPending(ctx context.Context) ([]*pipeline.Result, error) {
	runs, err := r.queries.ListPendingRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending runs: %w", err)
	}
	return r.resumeAll(ctx, runs, "")
}

// RunPendingWithClaim claims up to limit pending runs (FOR UPDATE SKIP LOCKED)
// so only one worker resumes each. Use a unique claimID per worker, e.g.
// os.Hostname(). Claims older than 5 minutes are treated as unclaimed.
func (r *Resumer) RunPendingWithClaim(ctx context.Context, claimID string, limit int) ([]*pipeline.Result, error) {
	if limit <= 0 {
		limit = 20
	}
	runs, err := r.queries.ClaimPendingRuns(ctx, claimID, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("claim pending runs: %w", err)
	}
	return r.resumeAll(ctx, runs, claimID)
}

func (r *Resumer) resumeAll(ctx context.Context, runs []PendingRun, claimID string) ([]*pipeline.Result, error) {
	var (
		results []*pipeline.Result
		errs    []error
	)
	for _, run := range runs {
		res, err := r.resume(ctx, run)
		if err != nil {
			errs = append(errs, err)
		}
		if res != nil {
			results = append(results, res)
		}
		if claimID != "" {
			if err := r.queries.ReleaseClaim(context.WithoutCancel(ctx), run.RunID, claimID); err != nil {
				r.logger.Warn("release claim failed", zap.String("run_id", run.RunID), zap.Error(err))
			}
		}
	}
	return results, errors.Join(errs...)
}

func (r *Resumer) resume(ctx context.Context, run PendingRun) (*pipeline.Result, error) {
	eng, rc, err := r.lookup(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.RunID, err)
	}
	if eng == nil {
		r.logger.Warn("no engine for pending run", zap.String("run_id", run.RunID), zap.String("name", run.Name))
		return nil, nil
	}
	if eng.RunID() != run.RunID {
		return nil, fmt.Errorf("run %s: engine has run id %s", run.RunID, eng.RunID())
	}
	res, err := eng.Run(ctx, rc)
	if err != nil {
		return res, fmt.Errorf("run %s: %w", run.RunID, err)
	}
	r.logger.Info("resumed run",
		zap.String("run_id", run.RunID),
		zap.Bool("success", res.Success),
		zap.Int("restored", len(res.Restored)),
	)
	return res, nil
}
