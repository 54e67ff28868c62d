// Package observer provides pipeline.Observer implementations and Postgres
// persistence for the pipeline package.
//
//   - LogObserver: writes lifecycle events to a zap logger.
//   - TraceObserver: one OpenTelemetry span per run, with a child span per stage.
//   - DBObserver: persists each run and its stages to Postgres
//     (pipeline_run, pipeline_run_stage) for monitoring and resume support.
//   - Resumer: finds runs recorded as failed or canceled and runs them again
//     through an EngineLookup. Call RunPending periodically (e.g. from a cron
//     job).
//
// Checkpoints are not stored here. The engines a Resumer builds must read the
// same local checkpoint store the failed run wrote to.
//
// Call Migrate once to create the tables.
//
// Several workers:
//
// Use Resumer.RunPendingWithClaim instead of RunPending. Pass a unique claimID
// per worker (e.g. os.Hostname() or the pod name). Pending rows are claimed
// with FOR UPDATE SKIP LOCKED so each run is resumed by only one worker; stale
// claims older than 5 minutes are treated as unclaimed.
package observer
