package httpstages

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/dcshock/stageflow/pipeline"
)

// Expect returns a stage func that runs predicate on the value under key. If
// the predicate returns an error the stage fails with it. Use after ParseJSON
// to verify the decoded result (e.g. check status field, required keys).
func Expect(key string, predicate func(interface{}) error) pipeline.Func {
	if predicate == nil {
		panic("httpstages.Expect: predicate must not be nil")
	}
	return func(ctx context.Context, rc *pipeline.Context) error {
		v, ok := rc.Get(key)
		if !ok {
			return fmt.Errorf("expect: missing context key %q", key)
		}
		if err := predicate(v); err != nil {
			return fmt.Errorf("expect %s: %w", key, err)
		}
		return nil
	}
}

// ExpectEqual checks the value under key equals expected using reflect.DeepEqual.
// Works for primitives, slices, and maps (e.g. parsed JSON).
func ExpectEqual(key string, expected interface{}) pipeline.Func {
	return Expect(key, func(v interface{}) error {
		if !reflect.DeepEqual(v, expected) {
			return fmt.Errorf("got %v, want %v", v, expected)
		}
		return nil
	})
}

// ExpectField checks a field of decoded JSON under key. path is dot-separated
// ("status", "meta.version"); values are compared by their printed form, so
// 1 matches a decoded float64(1).
func ExpectField(key, path string, expected interface{}) pipeline.Func {
	return Expect(key, func(v interface{}) error {
		got, ok := lookupPath(v, path)
		if !ok {
			return fmt.Errorf("field %q not found", path)
		}
		if fmt.Sprint(got) != fmt.Sprint(expected) {
			return fmt.Errorf("field %q: got %v, want %v", path, got, expected)
		}
		return nil
	})
}

func lookupPath(v interface{}, path string) (interface{}, bool) {
	if path == "" {
		return v, true
	}
	for _, part := range strings.Split(path, ".") {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if v, ok = m[part]; !ok {
			return nil, false
		}
	}
	return v, true
}
