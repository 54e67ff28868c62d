// Package pipeline: standard stage funcs and conditions for common patterns.

package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// ConvertFunc converts value of type A to type B. Used by Transform.
type ConvertFunc[A, B any] func(ctx context.Context, a A) (B, error)

// Noop returns a stage func that does nothing and succeeds.
// Useful as a placeholder or as a checkpoint boundary.
func Noop() Func {
	return func(ctx context.Context, rc *Context) error { return nil }
}

// Tap returns a stage func that calls fn and succeeds.
// Use for logging or side effects without touching the Context.
func Tap(fn func(ctx context.Context, rc *Context)) Func {
	return func(ctx context.Context, rc *Context) error {
		fn(ctx, rc)
		return nil
	}
}

// Set returns a stage func that stores value under key.
func Set(key string, value interface{}) Func {
	return func(ctx context.Context, rc *Context) error {
		rc.Set(key, value)
		return nil
	}
}

// Require returns a stage func that fails unless every key is present.
func Require(keys ...string) Func {
	return func(ctx context.Context, rc *Context) error {
		for _, k := range keys {
			if _, ok := rc.Get(k); !ok {
				return fmt.Errorf("require: missing context key %q", k)
			}
		}
		return nil
	}
}

// Validate returns a stage func that fails unless the value under key is a T
// for which predicate returns true. errMsg replaces the default message.
func Validate[T any](key string, predicate func(T) bool, errMsg string) Func {
	return func(ctx context.Context, rc *Context) error {
		v, ok := rc.Get(key)
		if !ok {
			return fmt.Errorf("validate: missing context key %q", key)
		}
		t, ok := v.(T)
		if !ok {
			var zero T
			return fmt.Errorf("validate %q: expected %T, got %T", key, zero, v)
		}
		if !predicate(t) {
			if errMsg == "" {
				errMsg = "validation failed"
			}
			return fmt.Errorf("validate %q: %s", key, errMsg)
		}
		return nil
	}
}

// Transform returns a stage func that reads an A from the from key, converts it
// and stores the B under the into key.
func Transform[A, B any](from, into string, convert ConvertFunc[A, B]) Func {
	return func(ctx context.Context, rc *Context) error {
		v, ok := rc.Get(from)
		if !ok {
			return fmt.Errorf("transform: missing context key %q", from)
		}
		a, ok := v.(A)
		if !ok {
			var zero A
			return fmt.Errorf("transform %q: expected %T, got %T", from, zero, v)
		}
		b, err := convert(ctx, a)
		if err != nil {
			return err
		}
		rc.Set(into, b)
		return nil
	}
}

// Sleep returns a stage func that waits for d or until ctx is done.
func Sleep(d time.Duration) Func {
	return func(ctx context.Context, rc *Context) error {
		if !sleep(ctx, d) {
			return ctx.Err()
		}
		return nil
	}
}

// WhenExists returns a condition that holds when key is present.
func WhenExists(key string) Condition {
	return func(rc *Context) bool {
		_, ok := rc.Get(key)
		return ok
	}
}

// WhenEquals returns a condition that holds when the value under key is
// deeply equal to want.
func WhenEquals(key string, want interface{}) Condition {
	return func(rc *Context) bool {
		v, ok := rc.Get(key)
		return ok && reflect.DeepEqual(v, want)
	}
}

// Not negates c.
func Not(c Condition) Condition {
	return func(rc *Context) bool { return !c(rc) }
}
