package observer

import (
	"context"
	"errors"
	"testing"

	"github.com/dcshock/stageflow/pipeline"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTraceObserver(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	obs := NewTraceObserver(tp)

	calls := 0
	eng := pipeline.New(pipeline.Options{RunID: "r1", Name: "story", ContinueOnError: true, Observers: []pipeline.Observer{obs}})
	err := eng.Register(
		pipeline.Stage{ID: "draft", Order: 1, MaxRetries: 2, Execute: func(context.Context, *pipeline.Context) error {
			calls++
			if calls < 3 {
				return errors.New("model busy")
			}
			return nil
		}},
		pipeline.Stage{ID: "review", Order: 2, Execute: func(context.Context, *pipeline.Context) error {
			return errors.New("rejected")
		}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	spans := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range sr.Ended() {
		spans[s.Name()] = s
	}
	if len(spans) != 3 {
		t.Fatalf("ended spans: %d", len(sr.Ended()))
	}
	run, draft, review := spans["pipeline.run"], spans["pipeline.stage draft"], spans["pipeline.stage review"]
	if run == nil || draft == nil || review == nil {
		t.Fatalf("span names: %v", spans)
	}
	for _, s := range []sdktrace.ReadOnlySpan{draft, review} {
		if s.Parent().SpanID() != run.SpanContext().SpanID() {
			t.Errorf("%s should be a child of the run span", s.Name())
		}
	}
	if draft.Status().Code != codes.Ok || len(draft.Events()) != 2 {
		t.Errorf("draft: status %v, %d events", draft.Status().Code, len(draft.Events()))
	}
	if review.Status().Code != codes.Error || review.Status().Description != "rejected" {
		t.Errorf("review status: %+v", review.Status())
	}
	// Run continued past review, so it succeeded.
	if run.Status().Code != codes.Ok {
		t.Errorf("run status: %+v", run.Status())
	}
}

func TestTraceObserver_StageWithoutRun(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	obs := NewTraceObserver(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	ctx := context.Background()
	if err := obs.OnStageStart(ctx, pipeline.StageStart{RunID: "r", StageID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := obs.OnStageError(ctx, pipeline.StageError{RunID: "r", StageID: "a", Err: errors.New("x")}); err != nil {
		t.Fatal(err)
	}
	if err := obs.OnStageComplete(ctx, pipeline.StageComplete{RunID: "r", StageID: "a"}); err != nil {
		t.Fatal(err)
	}
	if n := len(sr.Ended()); n != 1 {
		t.Errorf("ended spans: %d", n)
	}
}
