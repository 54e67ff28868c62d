package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Result is the outcome of Engine.Run. Stage ids appear in plan order in at
// most one of Executed, Skipped and Failed; stages the run never reached
// (because it halted or was canceled) appear in none of them.
type Result struct {
	RunID    string
	Success  bool
	Canceled bool

	Executed []string // ran to success, including stages restored from the checkpoint
	Restored []string // subset of Executed skipped because the checkpoint had them
	Skipped  []string // condition returned false
	Failed   []string // exhausted retries, or interrupted by cancellation

	TotalDuration time.Duration

	// FirstErr is the first terminal stage failure, kept even when the run
	// continued past it.
	FirstErr error

	// Message explains a halt or cancellation; empty on success.
	Message string
}

func newResult(runID string) *Result {
	return &Result{
		RunID:    runID,
		Success:  true,
		Executed: []string{},
		Restored: []string{},
		Skipped:  []string{},
		Failed:   []string{},
	}
}

func (r *Result) fail(stageID string, err error) {
	r.Failed = append(r.Failed, stageID)
	if r.FirstErr == nil {
		r.FirstErr = err
	}
}

func (r *Result) cancel(msg string) {
	r.Success = false
	r.Canceled = true
	r.Message = msg
}

// Summary renders the result as one line for console or log output, e.g.
//
//	run story-42: failed (executed 2, skipped 1, failed 1) in 1.5s: halted at stage draft: stage "draft": model unavailable
func (r *Result) Summary() string {
	var b strings.Builder
	status := "success"
	switch {
	case r.Canceled:
		status = "canceled"
	case !r.Success:
		status = "failed"
	}
	fmt.Fprintf(&b, "run %s: %s (executed %d, skipped %d, failed %d) in %s",
		r.RunID, status, len(r.Executed), len(r.Skipped), len(r.Failed), r.TotalDuration.Round(time.Millisecond))
	if len(r.Restored) > 0 {
		fmt.Fprintf(&b, ", %d restored from checkpoint", len(r.Restored))
	}
	if r.Message != "" {
		fmt.Fprintf(&b, ": %s", r.Message)
	}
	if r.FirstErr != nil {
		fmt.Fprintf(&b, ": %v", r.FirstErr)
	}
	return b.String()
}
