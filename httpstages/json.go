package httpstages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dcshock/stageflow/pipeline"
)

// ParseJSON returns a stage func that unmarshals the value under from (a
// []byte or string, e.g. a response body) and stores the decoded value under
// into (map[string]interface{} for objects).
func ParseJSON(from, into string) pipeline.Func {
	return func(ctx context.Context, rc *pipeline.Context) error {
		raw, err := rawJSON(rc, from)
		if err != nil {
			return fmt.Errorf("parsejson: %w", err)
		}
		var out interface{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("parsejson: %w", err)
		}
		rc.Set(into, out)
		return nil
	}
}

// ParseJSONTo is ParseJSON decoding into a *T.
func ParseJSONTo[T any](from, into string) pipeline.Func {
	return func(ctx context.Context, rc *pipeline.Context) error {
		raw, err := rawJSON(rc, from)
		if err != nil {
			return fmt.Errorf("parsejsonto: %w", err)
		}
		var out T
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("parsejsonto: %w", err)
		}
		rc.Set(into, &out)
		return nil
	}
}

func rawJSON(rc *pipeline.Context, key string) ([]byte, error) {
	v, ok := rc.Get(key)
	if !ok {
		return nil, fmt.Errorf("missing context key %q", key)
	}
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, fmt.Errorf("%q must be []byte or string, got %T", key, v)
	}
}
