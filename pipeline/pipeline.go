package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures an Engine.
type Options struct {
	// Name labels the run in RunStart events and logs.
	Name string

	// RunID identifies the run in the checkpoint store and in events. If empty,
	// a new UUID is generated, which means a later Engine cannot resume it;
	// pass a stable id (e.g. checkpoint.RunIDFromName) when resuming matters.
	RunID string

	// ContinueOnError is the run-wide default: when true, no terminal stage
	// failure halts the run.
	ContinueOnError bool

	// RetryDelay is used for stages whose RetryDelay is zero.
	RetryDelay time.Duration

	// Store persists progress after each successful stage. Nil disables
	// checkpointing.
	Store CheckpointStore

	Observers []Observer

	// Logger receives observer failures and checkpoint load fallbacks.
	// Defaults to a no-op logger.
	Logger *zap.Logger
}

// Engine runs registered stages one at a time against a shared Context,
// applying retry policy, conditions, checkpoints and lifecycle events.
// An Engine is not safe for concurrent Register and Run calls.
type Engine struct {
	opts     Options
	observer Observer
	logger   *zap.Logger

	stages []Stage
	ids    map[string]struct{}
}

// New returns an Engine with no stages.
func New(opts Options) *Engine {
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		opts:     opts,
		observer: MultiObserver(opts.Observers...),
		logger:   logger.With(zap.String("run_id", opts.RunID)),
		ids:      make(map[string]struct{}),
	}
}

// RunID returns the id the engine uses for checkpoints and events.
func (e *Engine) RunID() string { return e.opts.RunID }

// Register adds stages in the given order. Registration sequence breaks ties
// between stages with equal Order. The batch is checked as a whole: a stage
// with an empty id, no Execute func, or an id already registered (or repeated
// in the batch) rejects the call and none of its stages are added.
func (e *Engine) Register(stages ...Stage) error {
	seen := make(map[string]struct{}, len(stages))
	for i, s := range stages {
		if s.ID == "" {
			return fmt.Errorf("register stage %d: %w", i, ErrEmptyStageID)
		}
		_, dup := e.ids[s.ID]
		if _, again := seen[s.ID]; dup || again {
			return fmt.Errorf("register stage %q: %w", s.ID, ErrDuplicateStage)
		}
		if s.Execute == nil {
			return fmt.Errorf("register stage %q: %w", s.ID, ErrNoExecute)
		}
		seen[s.ID] = struct{}{}
	}
	for _, s := range stages {
		if s.Name == "" {
			s.Name = s.ID
		}
		s.Persist = append([]string(nil), s.Persist...)
		e.ids[s.ID] = struct{}{}
		e.stages = append(e.stages, s)
	}
	return nil
}

// Plan returns the enabled stages sorted by Order. The sort is stable, so
// equal orders keep registration order and repeated calls return the same plan.
func (e *Engine) Plan() []Stage {
	plan := make([]Stage, 0, len(e.stages))
	for _, s := range e.stages {
		if !s.Disabled {
			plan = append(plan, s)
		}
	}
	sort.SliceStable(plan, func(i, j int) bool { return plan[i].Order < plan[j].Order })
	return plan
}

// Run executes the plan against rc. Stage failures never surface as the error
// result; they are captured in the Result. The error is non-nil only when the
// checkpoint store fails to save or clear, since continuing without durable
// progress would break resume.
//
// If the store holds a checkpoint for the run id, completed stages are skipped
// without events and their persisted values are restored into rc. The
// checkpoint is cleared when the run succeeds and kept otherwise.
func (e *Engine) Run(ctx context.Context, rc *Context) (*Result, error) {
	if rc == nil {
		rc = NewContext(nil)
	}
	start := time.Now()
	plan := e.Plan()
	res := newResult(e.opts.RunID)
	cp := e.loadCheckpoint(ctx)

	ids := make([]string, len(plan))
	for i, s := range plan {
		ids[i] = s.ID
	}
	if ro, ok := e.observer.(RunObserver); ok {
		e.notify(ctx, "OnRunStart", "", func(ctx context.Context) error {
			return ro.OnRunStart(ctx, RunStart{
				RunID:    e.opts.RunID,
				Name:     e.opts.Name,
				Plan:     ids,
				Restored: append([]string(nil), cp.CompletedSteps...),
				Time:     start,
			})
		})
	}

	err := e.runPlan(ctx, rc, plan, cp, res)
	if err == nil && res.Success && e.opts.Store != nil {
		if cerr := e.opts.Store.Clear(context.WithoutCancel(ctx), e.opts.RunID); cerr != nil {
			err = fmt.Errorf("clear checkpoint: %w", cerr)
		}
	}
	res.TotalDuration = time.Since(start)

	if ro, ok := e.observer.(RunObserver); ok {
		e.notify(ctx, "OnRunEnd", "", func(ctx context.Context) error {
			return ro.OnRunEnd(ctx, res)
		})
	}
	return res, err
}

func (e *Engine) loadCheckpoint(ctx context.Context) *Checkpoint {
	if e.opts.Store == nil {
		return NewCheckpoint(e.opts.RunID)
	}
	cp, err := e.opts.Store.Load(ctx, e.opts.RunID)
	if err != nil {
		e.logger.Warn("checkpoint unreadable, starting fresh", zap.Error(err))
		return NewCheckpoint(e.opts.RunID)
	}
	if cp == nil {
		return NewCheckpoint(e.opts.RunID)
	}
	if cp.RunID == "" {
		cp.RunID = e.opts.RunID
	}
	return cp
}

func (e *Engine) runPlan(ctx context.Context, rc *Context, plan []Stage, cp *Checkpoint, res *Result) error {
	for _, s := range plan {
		if ctx.Err() != nil {
			res.cancel(fmt.Sprintf("canceled before stage %s", s.ID))
			return nil
		}
		if cp.IsComplete(s.ID) {
			rc.restore(cp.StepData[s.ID])
			res.Executed = append(res.Executed, s.ID)
			res.Restored = append(res.Restored, s.ID)
			continue
		}
		run, err := evalCondition(s, rc)
		if err != nil {
			// A condition that cannot be evaluated is a terminal failure of its stage.
			res.fail(s.ID, err)
			if !s.ContinueOnError && !e.opts.ContinueOnError {
				res.Success = false
				res.Message = fmt.Sprintf("halted at stage %s", s.ID)
				return nil
			}
			continue
		}
		if !run {
			res.Skipped = append(res.Skipped, s.ID)
			continue
		}
		halt, err := e.runStage(ctx, rc, s, cp, res)
		if err != nil {
			return err
		}
		if halt {
			return nil
		}
	}
	return nil
}

// runStage runs the attempt loop for s. It reports whether the run must stop.
func (e *Engine) runStage(ctx context.Context, rc *Context, s Stage, cp *Checkpoint, res *Result) (bool, error) {
	runID := e.opts.RunID
	e.notify(ctx, "OnStageStart", s.ID, func(ctx context.Context) error {
		return e.observer.OnStageStart(ctx, StageStart{RunID: runID, StageID: s.ID, StageName: s.label(), Time: time.Now()})
	})

	maxRetries := s.maxRetries()
	for attempt := 0; ; attempt++ {
		started := time.Now()
		err := execute(ctx, rc, s)
		if err == nil {
			elapsed := time.Since(started)
			e.notify(ctx, "OnStageComplete", s.ID, func(ctx context.Context) error {
				return e.observer.OnStageComplete(ctx, StageComplete{
					RunID: runID, StageID: s.ID, StageName: s.label(),
					Time: time.Now(), Duration: elapsed, Attempt: attempt,
				})
			})
			res.Executed = append(res.Executed, s.ID)
			cp.MarkComplete(s.ID, rc.capture(s.Persist))
			if e.opts.Store == nil {
				return false, nil
			}
			cp.UpdatedAt = time.Now().UTC()
			if serr := e.opts.Store.Save(context.WithoutCancel(ctx), runID, cp); serr != nil {
				res.Success = false
				res.Message = fmt.Sprintf("checkpoint not saved after stage %s", s.ID)
				return true, fmt.Errorf("save checkpoint after stage %q: %w", s.ID, serr)
			}
			return false, nil
		}

		canceled := ctx.Err() != nil
		willRetry := !canceled && attempt < maxRetries && (s.ShouldRetry == nil || s.ShouldRetry(err))
		e.notify(ctx, "OnStageError", s.ID, func(ctx context.Context) error {
			return e.observer.OnStageError(ctx, StageError{
				RunID: runID, StageID: s.ID, StageName: s.label(),
				Time: time.Now(), Err: err, WillRetry: willRetry, Attempt: attempt,
			})
		})
		if canceled {
			res.fail(s.ID, fmt.Errorf("stage %q: %w: %w", s.ID, ErrCanceled, err))
			res.cancel(fmt.Sprintf("canceled during stage %s", s.ID))
			return true, nil
		}
		if willRetry {
			if !sleep(ctx, s.delay(attempt, e.opts.RetryDelay)) {
				res.fail(s.ID, fmt.Errorf("stage %q: %w: %w", s.ID, ErrCanceled, ctx.Err()))
				res.cancel(fmt.Sprintf("canceled while waiting to retry stage %s", s.ID))
				return true, nil
			}
			continue
		}

		res.fail(s.ID, fmt.Errorf("stage %q: %w", s.ID, err))
		if s.ContinueOnError || e.opts.ContinueOnError {
			return false, nil
		}
		res.Success = false
		res.Message = fmt.Sprintf("halted at stage %s", s.ID)
		return true, nil
	}
}

// notify calls an observer hook, logging (not propagating) errors and panics.
// Hooks get a context that is not canceled with the run so that events for a
// canceled stage can still be recorded.
func (e *Engine) notify(ctx context.Context, hook, stageID string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("observer panicked", zap.String("hook", hook), zap.String("stage", stageID), zap.Any("panic", r))
		}
	}()
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		e.logger.Warn("observer failed", zap.String("hook", hook), zap.String("stage", stageID), zap.Error(err))
	}
}

func execute(ctx context.Context, rc *Context, s Stage) (err error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Execute(ctx, rc)
}

func evalCondition(s Stage, rc *Context) (run bool, err error) {
	if s.Condition == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %q: condition panic: %v", s.ID, r)
		}
	}()
	return s.Condition(rc), nil
}

// sleep waits for d or until ctx is done. It reports whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
