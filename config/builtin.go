package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dcshock/stageflow/pipeline"
)

// RegisterBuiltins registers the generic stages usable from any run spec:
//
//	noop     does nothing
//	set      writes every param into the Context
//	require  fails unless params.keys are all present
//	sleep    waits params.duration, honoring cancellation
//	fail     always fails with params.message; useful for drills
func RegisterBuiltins(reg *Registry) error {
	builtins := []struct {
		id string
		f  Factory
	}{
		{"noop", StageFunc(pipeline.Noop())},
		{"set", setFactory},
		{"require", requireFactory},
		{"sleep", sleepFactory},
		{"fail", failFactory},
	}
	for _, b := range builtins {
		if err := reg.Register(b.id, b.f); err != nil {
			return err
		}
	}
	return nil
}

func setFactory(ref StageRef) (pipeline.Stage, error) {
	if len(ref.Params) == 0 {
		return pipeline.Stage{}, fmt.Errorf("set: params required")
	}
	keys := make([]string, 0, len(ref.Params))
	for k := range ref.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := ref.Params
	return pipeline.Stage{
		Persist: keys,
		Execute: func(_ context.Context, rc *pipeline.Context) error {
			for _, k := range keys {
				rc.Set(k, values[k])
			}
			return nil
		},
	}, nil
}

func requireFactory(ref StageRef) (pipeline.Stage, error) {
	keys, err := ParamStrings(ref.Params, "keys")
	if err != nil {
		return pipeline.Stage{}, fmt.Errorf("require: %w", err)
	}
	return pipeline.Stage{Execute: pipeline.Require(keys...)}, nil
}

func sleepFactory(ref StageRef) (pipeline.Stage, error) {
	d, err := ParamDuration(ref.Params, "duration", 0)
	if err != nil {
		return pipeline.Stage{}, fmt.Errorf("sleep: %w", err)
	}
	return pipeline.Stage{Execute: pipeline.Sleep(d)}, nil
}

func failFactory(ref StageRef) (pipeline.Stage, error) {
	msg, _ := ParamString(ref.Params, "message")
	if msg == "" {
		msg = "stage " + ref.ID + " failed"
	}
	err := errors.New(msg)
	return pipeline.Stage{Execute: func(context.Context, *pipeline.Context) error { return err }}, nil
}

// ParamString returns params[key] as a string. Missing keys return "" and an error.
func ParamString(params map[string]interface{}, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("param %q required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("param %q: want string, got %T", key, v)
	}
	return s, nil
}

// ParamStrings returns params[key] as a list of strings. A single string is
// accepted as a one-element list.
func ParamStrings(params map[string]interface{}, key string) ([]string, error) {
	v, ok := params[key]
	if !ok {
		return nil, fmt.Errorf("param %q required", key)
	}
	switch list := v.(type) {
	case string:
		return []string{list}, nil
	case []string:
		return list, nil
	case []interface{}:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("param %q[%d]: want string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("param %q: want list of strings, got %T", key, v)
	}
}

// ParamDuration returns params[key] parsed as a duration, or def when absent.
func ParamDuration(params map[string]interface{}, key string, def time.Duration) (time.Duration, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("param %q: want duration string, got %T", key, v)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("param %q: %w", key, err)
	}
	return d, nil
}
