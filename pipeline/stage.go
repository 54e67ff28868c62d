package pipeline

import (
	"context"
	"errors"
	"time"
)

// Func is the unit of work a stage performs. It reads and writes rc and reports
// failure through its error result; nil means the stage succeeded. ctx carries
// cancellation and, when Stage.Timeout is set, the per-attempt deadline.
type Func func(ctx context.Context, rc *Context) error

// Condition decides whether a stage runs. It is evaluated once, when the stage
// is reached, and never re-evaluated across retries.
type Condition func(rc *Context) bool

// Backoff grows the retry delay between attempts. The delay before attempt n+1
// is RetryDelay * Multiplier^n, capped at Cap when Cap > 0. A Multiplier of 1
// or less keeps the delay fixed.
type Backoff struct {
	Multiplier float64
	Cap        time.Duration
}

// Stage describes one unit of work. A Stage is treated as immutable once it is
// registered with an Engine.
type Stage struct {
	ID    string // unique per engine; checkpoint and result key
	Name  string // label for logs and events; defaults to ID
	Order int    // ascending execution order; ties keep registration order

	// Disabled excludes the stage from the plan entirely.
	Disabled bool

	// ContinueOnError lets the run proceed past a terminal failure of this stage.
	ContinueOnError bool

	// MaxRetries is the number of attempts after the first one.
	MaxRetries int

	// RetryDelay is the wait between a failed attempt and the next one. Zero
	// falls back to Options.RetryDelay; NoRetryDelay retries immediately.
	RetryDelay time.Duration
	Backoff    Backoff

	// Timeout bounds each attempt. Zero means no deadline beyond the run's ctx.
	Timeout time.Duration

	// ShouldRetry, if set, is consulted on every failure; returning false makes
	// the failure terminal regardless of the remaining retries.
	ShouldRetry func(err error) bool

	// Persist lists the Context keys captured into the checkpoint after the
	// stage succeeds. They are written back into the Context when a resumed run
	// skips the stage.
	Persist []string

	Condition Condition
	Execute   Func
}

func (s Stage) label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

func (s Stage) maxRetries() int {
	if s.MaxRetries < 0 {
		return 0
	}
	return s.MaxRetries
}

// NoRetryDelay set as Stage.RetryDelay retries without waiting, whatever the
// run-wide Options.RetryDelay is.
const NoRetryDelay time.Duration = -1

// delay returns the wait before the attempt following attempt (0-based).
func (s Stage) delay(attempt int, fallback time.Duration) time.Duration {
	d := s.RetryDelay
	if d == 0 {
		d = fallback
	}
	if d <= 0 {
		return 0
	}
	if s.Backoff.Multiplier > 1 {
		f := float64(d)
		for i := 0; i < attempt; i++ {
			f *= s.Backoff.Multiplier
			if s.Backoff.Cap > 0 && f >= float64(s.Backoff.Cap) {
				return s.Backoff.Cap
			}
		}
		d = time.Duration(f)
	}
	if s.Backoff.Cap > 0 && d > s.Backoff.Cap {
		d = s.Backoff.Cap
	}
	return d
}

var (
	// ErrEmptyStageID is returned when a stage or factory is registered without an id.
	ErrEmptyStageID = errors.New("stage id is empty")

	// ErrDuplicateStage is returned when an id is registered twice.
	ErrDuplicateStage = errors.New("duplicate stage id")

	// ErrUnknownStage is returned when a run spec references an unregistered id.
	ErrUnknownStage = errors.New("unknown stage id")

	// ErrNoExecute is returned when a stage is registered without an Execute func.
	ErrNoExecute = errors.New("stage has no execute func")

	// ErrCanceled marks a run that stopped because its context was canceled.
	// Result.FirstErr wraps it when a stage was interrupted mid-attempt or mid-wait.
	ErrCanceled = errors.New("run canceled")
)

// Retryable marks err as retryable. Use with Stage.ShouldRetry = IsRetryable so
// only these errors trigger a retry (e.g. transient failures), not permanent ones.
type Retryable struct{ Err error }

// Error and Unwrap make Retryable transparent to errors.Is and errors.As.
func (e *Retryable) Error() string { return e.Err.Error() }
func (e *Retryable) Unwrap() error { return e.Err }

// RetryableErr wraps err in a Retryable.
func RetryableErr(err error) error { return &Retryable{Err: err} }

// IsRetryable reports whether any error in err's chain is a Retryable.
func IsRetryable(err error) bool { return errors.As(err, new(*Retryable)) }
