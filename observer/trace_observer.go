package observer

import (
	"context"
	"sync"

	"github.com/dcshock/stageflow/pipeline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dcshock/stageflow/observer"

// TraceObserver records each run as an OpenTelemetry span with one child span
// per stage. Failed attempts that will be retried are recorded as span events;
// the stage span ends on success or terminal failure.
type TraceObserver struct {
	tracer trace.Tracer

	mu     sync.Mutex
	runs   map[string]trace.Span
	runCtx map[string]context.Context
	stages map[stageKey]trace.Span
}

type stageKey struct{ runID, stageID string }

// NewTraceObserver returns a TraceObserver using tp, or the global provider
// when tp is nil.
func NewTraceObserver(tp trace.TracerProvider) *TraceObserver {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TraceObserver{
		tracer: tp.Tracer(tracerName),
		runs:   make(map[string]trace.Span),
		runCtx: make(map[string]context.Context),
		stages: make(map[stageKey]trace.Span),
	}
}

func (o *TraceObserver) OnRunStart(ctx context.Context, ev pipeline.RunStart) error {
	ctx, span := o.tracer.Start(ctx, "pipeline.run",
		trace.WithTimestamp(ev.Time),
		trace.WithAttributes(
			attribute.String("pipeline.run_id", ev.RunID),
			attribute.String("pipeline.name", ev.Name),
			attribute.StringSlice("pipeline.plan", ev.Plan),
			attribute.Int("pipeline.restored", len(ev.Restored)),
		),
	)
	o.mu.Lock()
	o.runs[ev.RunID] = span
	o.runCtx[ev.RunID] = ctx
	o.mu.Unlock()
	return nil
}

func (o *TraceObserver) OnRunEnd(_ context.Context, res *pipeline.Result) error {
	o.mu.Lock()
	span, ok := o.runs[res.RunID]
	delete(o.runs, res.RunID)
	delete(o.runCtx, res.RunID)
	o.mu.Unlock()
	if !ok {
		return nil
	}
	span.SetAttributes(
		attribute.Int("pipeline.executed", len(res.Executed)),
		attribute.Int("pipeline.skipped", len(res.Skipped)),
		attribute.Int("pipeline.failed", len(res.Failed)),
		attribute.Bool("pipeline.canceled", res.Canceled),
	)
	if res.FirstErr != nil {
		span.RecordError(res.FirstErr)
	}
	if res.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, res.Message)
	}
	span.End()
	return nil
}

func (o *TraceObserver) OnStageStart(ctx context.Context, ev pipeline.StageStart) error {
	o.mu.Lock()
	if parent, ok := o.runCtx[ev.RunID]; ok {
		ctx = parent
	}
	o.mu.Unlock()
	_, span := o.tracer.Start(ctx, "pipeline.stage "+ev.StageID,
		trace.WithTimestamp(ev.Time),
		trace.WithAttributes(
			attribute.String("pipeline.run_id", ev.RunID),
			attribute.String("pipeline.stage.id", ev.StageID),
			attribute.String("pipeline.stage.name", ev.StageName),
		),
	)
	o.mu.Lock()
	o.stages[stageKey{ev.RunID, ev.StageID}] = span
	o.mu.Unlock()
	return nil
}

func (o *TraceObserver) OnStageComplete(_ context.Context, ev pipeline.StageComplete) error {
	span, ok := o.takeStage(ev.RunID, ev.StageID)
	if !ok {
		return nil
	}
	span.SetAttributes(attribute.Int("pipeline.stage.attempts", ev.Attempt+1))
	span.SetStatus(codes.Ok, "")
	span.End(trace.WithTimestamp(ev.Time))
	return nil
}

func (o *TraceObserver) OnStageError(_ context.Context, ev pipeline.StageError) error {
	if ev.WillRetry {
		o.mu.Lock()
		span, ok := o.stages[stageKey{ev.RunID, ev.StageID}]
		o.mu.Unlock()
		if ok {
			span.AddEvent("attempt failed", trace.WithTimestamp(ev.Time), trace.WithAttributes(
				attribute.Int("pipeline.stage.attempt", ev.Attempt),
				attribute.String("error", ev.Err.Error()),
			))
		}
		return nil
	}
	span, ok := o.takeStage(ev.RunID, ev.StageID)
	if !ok {
		return nil
	}
	span.SetAttributes(attribute.Int("pipeline.stage.attempts", ev.Attempt+1))
	span.RecordError(ev.Err)
	span.SetStatus(codes.Error, ev.Err.Error())
	span.End(trace.WithTimestamp(ev.Time))
	return nil
}

func (o *TraceObserver) takeStage(runID, stageID string) (trace.Span, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := stageKey{runID, stageID}
	span, ok := o.stages[k]
	delete(o.stages, k)
	return span, ok
}

var (
	_ pipeline.Observer    = (*TraceObserver)(nil)
	_ pipeline.RunObserver = (*TraceObserver)(nil)
)
