package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// StageStart is emitted once when a stage begins its first attempt.
type StageStart struct {
	RunID     string
	StageID   string
	StageName string
	Time      time.Time
}

// StageComplete is emitted when an attempt succeeds. Attempt is 0-based.
type StageComplete struct {
	RunID     string
	StageID   string
	StageName string
	Time      time.Time
	Duration  time.Duration
	Attempt   int
}

// StageError is emitted for every failed attempt. WillRetry reports whether the
// engine will make another attempt.
type StageError struct {
	RunID     string
	StageID   string
	StageName string
	Time      time.Time
	Err       error
	WillRetry bool
	Attempt   int
}

// RunStart is emitted by the engine before the first stage of a run.
type RunStart struct {
	RunID    string
	Name     string
	Plan     []string
	Restored []string // stage ids already complete in the loaded checkpoint
	Time     time.Time
}

// Observer receives stage lifecycle events. Hooks are called synchronously from
// the run loop, one at a time, in the order events occur. They are for side
// effects only (logging, metrics, history); a returned error or a panic is
// logged by the engine and never stops the run.
type Observer interface {
	OnStageStart(ctx context.Context, ev StageStart) error
	OnStageComplete(ctx context.Context, ev StageComplete) error
	OnStageError(ctx context.Context, ev StageError) error
}

// RunObserver is implemented by observers that also want run-level hooks.
// The engine detects it with a type assertion.
type RunObserver interface {
	OnRunStart(ctx context.Context, ev RunStart) error
	OnRunEnd(ctx context.Context, res *Result) error
}

// ObserverFuncs adapts plain functions to Observer and RunObserver. Nil fields
// are no-ops.
type ObserverFuncs struct {
	Start    func(ctx context.Context, ev StageStart) error
	Complete func(ctx context.Context, ev StageComplete) error
	Error    func(ctx context.Context, ev StageError) error
	RunStart func(ctx context.Context, ev RunStart) error
	RunEnd   func(ctx context.Context, res *Result) error
}

func (f ObserverFuncs) OnStageStart(ctx context.Context, ev StageStart) error {
	if f.Start != nil {
		return f.Start(ctx, ev)
	}
	return nil
}

func (f ObserverFuncs) OnStageComplete(ctx context.Context, ev StageComplete) error {
	if f.Complete != nil {
		return f.Complete(ctx, ev)
	}
	return nil
}

func (f ObserverFuncs) OnStageError(ctx context.Context, ev StageError) error {
	if f.Error != nil {
		return f.Error(ctx, ev)
	}
	return nil
}

func (f ObserverFuncs) OnRunStart(ctx context.Context, ev RunStart) error {
	if f.RunStart != nil {
		return f.RunStart(ctx, ev)
	}
	return nil
}

func (f ObserverFuncs) OnRunEnd(ctx context.Context, res *Result) error {
	if f.RunEnd != nil {
		return f.RunEnd(ctx, res)
	}
	return nil
}

// MultiObserver returns an Observer that calls each non-nil observer in order.
// Every observer is called even if an earlier one fails or panics; a panic is
// turned into an error and the errors are joined.
// The result also implements RunObserver and forwards run hooks to the
// observers that support them.
func MultiObserver(observers ...Observer) Observer {
	list := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) OnStageStart(ctx context.Context, ev StageStart) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, guard(func() error { return o.OnStageStart(ctx, ev) }))
	}
	return errors.Join(errs...)
}

func (m multiObserver) OnStageComplete(ctx context.Context, ev StageComplete) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, guard(func() error { return o.OnStageComplete(ctx, ev) }))
	}
	return errors.Join(errs...)
}

func (m multiObserver) OnStageError(ctx context.Context, ev StageError) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, guard(func() error { return o.OnStageError(ctx, ev) }))
	}
	return errors.Join(errs...)
}

func (m multiObserver) OnRunStart(ctx context.Context, ev RunStart) error {
	var errs []error
	for _, o := range m {
		if ro, ok := o.(RunObserver); ok {
			errs = append(errs, guard(func() error { return ro.OnRunStart(ctx, ev) }))
		}
	}
	return errors.Join(errs...)
}

func (m multiObserver) OnRunEnd(ctx context.Context, res *Result) error {
	var errs []error
	for _, o := range m {
		if ro, ok := o.(RunObserver); ok {
			errs = append(errs, guard(func() error { return ro.OnRunEnd(ctx, res) }))
		}
	}
	return errors.Join(errs...)
}

// guard runs one observer hook and reports a panic as an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panicked: %v", r)
		}
	}()
	return fn()
}
