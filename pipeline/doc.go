// Package pipeline runs a named, ordered list of stages against a shared
// Context, one stage at a time. Each Stage has an id, an order, an optional
// Condition, a retry policy and an Execute func that reports failure through
// its error result. Stages pass data forward only through the Context.
//
// Register stages with an Engine, then Run it:
//
//	eng := pipeline.New(pipeline.Options{Name: "story", RunID: "story-42", Store: store})
//	err := eng.Register(
//	    pipeline.Stage{ID: "outline", Order: 10, Execute: outline, Persist: []string{"title"}},
//	    pipeline.Stage{ID: "draft", Order: 20, MaxRetries: 3, RetryDelay: time.Second, Execute: draft},
//	)
//	res, err := eng.Run(ctx, pipeline.NewContext(cfg))
//	fmt.Println(res.Summary())
//
// The plan is the enabled stages stably sorted by Order. For every stage the
// engine checks cancellation, skips stages already recorded in the
// checkpoint, evaluates the condition, then makes up to MaxRetries+1 attempts,
// waiting RetryDelay (optionally growing with Backoff) between them. A stage
// that exhausts its retries lands in Result.Failed and halts the run unless the
// stage or Options set ContinueOnError. Cancellation always halts.
//
// Stage failures are captured in the Result; Run returns an error only when
// the CheckpointStore cannot save or clear progress.
//
// # Observers
//
// Observers receive OnStageStart, OnStageComplete and OnStageError
// synchronously from the run loop. Observers that also implement RunObserver
// get OnRunStart and OnRunEnd. Observer errors and panics are logged and
// otherwise ignored. Combine several with MultiObserver; adapt plain funcs with
// ObserverFuncs.
//
// # Resuming after a crash or a halt
//
// With a CheckpointStore the engine saves a Checkpoint after every successful
// stage, before the next one begins. Running a new Engine with the same RunID
// and store skips the completed stages (no events fire for them) and restores
// the Context keys they listed in Stage.Persist, then continues with the first
// incomplete stage. A run that succeeds clears its checkpoint.
//
// The checkpoint is only written after a stage succeeds, so a stage interrupted
// mid-attempt runs again on resume; stages should be idempotent or safe to
// re-run.
package pipeline
