package config

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/dcshock/stageflow/pipeline"
	"gopkg.in/yaml.v3"
)

// RunSpec is the root structure of a declarative run definition (e.g. from YAML).
type RunSpec struct {
	Name  string `yaml:"name"`
	RunID string `yaml:"run_id"` // optional; derived from Name when empty

	// Run-wide defaults.
	ContinueOnError bool     `yaml:"continue_on_error"`
	RetryDelay      Duration `yaml:"retry_delay"`

	// Config is the static configuration exposed to stages via Context.Config().
	Config map[string]interface{} `yaml:"config"`

	// Observers names observers registered in BuildOptions.ObserverRegistry.
	Observers []string `yaml:"observers"`

	Stages []StageRef `yaml:"stages"`
}

// StageRef is a single stage entry: either a plain id or id + overrides.
// In YAML, a stage can be written as:
//   - outline
//   - id: draft
//     max_retries: 3
//     retry_delay: 2s
//     when: {key: outline, exists: true}
//
// Unset fields keep whatever the stage factory returned.
type StageRef struct {
	ID string `yaml:"id"`

	// Uses names the registered factory when it differs from ID, so one
	// factory can back several stages in the same run.
	Uses string `yaml:"uses"`

	Name            string      `yaml:"name"`
	Order           *int        `yaml:"order"`
	Enabled         *bool       `yaml:"enabled"`
	ContinueOnError *bool       `yaml:"continue_on_error"`
	MaxRetries      *int        `yaml:"max_retries"`
	RetryDelay      *Duration   `yaml:"retry_delay"`
	Backoff         *BackoffRef `yaml:"backoff"`

	// Timeout applied to each attempt (e.g. "60s").
	Timeout Duration `yaml:"timeout"`

	When    *When    `yaml:"when"`
	Persist []string `yaml:"persist"`

	// Params is passed untouched to the stage factory.
	Params map[string]interface{} `yaml:"params"`
}

// UnmarshalYAML allows a stage to be a string (stage id only) or a struct.
func (s *StageRef) UnmarshalYAML(value *yaml.Node) error {
	var idOnly string
	if err := value.Decode(&idOnly); err == nil {
		s.ID = idOnly
		return nil
	}
	type raw StageRef
	return value.Decode((*raw)(s))
}

// FactoryID returns the registry key used to resolve the stage.
func (s StageRef) FactoryID() string {
	if s.Uses != "" {
		return s.Uses
	}
	return s.ID
}

// BackoffRef configures exponential retry delay growth.
type BackoffRef struct {
	Multiplier float64  `yaml:"multiplier"`
	Cap        Duration `yaml:"cap"`
}

// When is a declarative stage condition tested against one Context key:
//
//	when: {key: title, exists: true}
//	when: {key: mode, equals: draft}
//	when: {key: mode, not_equals: final}
//
// With only a key, the condition holds when the key exists.
type When struct {
	Key       string      `yaml:"key"`
	Exists    *bool       `yaml:"exists"`
	Equals    interface{} `yaml:"equals"`
	NotEquals interface{} `yaml:"not_equals"`
}

// Condition compiles w into a pipeline.Condition.
func (w *When) Condition() (pipeline.Condition, error) {
	if w.Key == "" {
		return nil, fmt.Errorf("when: key required")
	}
	set := 0
	for _, isSet := range []bool{w.Exists != nil, w.Equals != nil, w.NotEquals != nil} {
		if isSet {
			set++
		}
	}
	if set > 1 {
		return nil, fmt.Errorf("when %q: use only one of exists, equals, not_equals", w.Key)
	}
	key := w.Key
	switch {
	case w.Equals != nil:
		want := w.Equals
		return func(rc *pipeline.Context) bool {
			v, ok := rc.Get(key)
			return ok && looseEqual(v, want)
		}, nil
	case w.NotEquals != nil:
		want := w.NotEquals
		return func(rc *pipeline.Context) bool {
			v, ok := rc.Get(key)
			return !ok || !looseEqual(v, want)
		}, nil
	case w.Exists != nil && !*w.Exists:
		return pipeline.Not(pipeline.WhenExists(key)), nil
	default:
		return pipeline.WhenExists(key), nil
	}
}

// looseEqual compares deeply, falling back to the printed form so a YAML
// "3" or 3 matches a context value of int64(3) or "3".
func looseEqual(a, b interface{}) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Duration is a time.Duration that unmarshals from YAML strings (e.g. "60s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the standard time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// ParseRunSpec parses YAML bytes into a RunSpec.
func ParseRunSpec(data []byte) (*RunSpec, error) {
	var spec RunSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// LoadRunSpec reads and parses the YAML run spec at path.
func LoadRunSpec(path string) (*RunSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run spec: %w", err)
	}
	spec, err := ParseRunSpec(data)
	if err != nil {
		return nil, fmt.Errorf("parse run spec %s: %w", path, err)
	}
	return spec, nil
}
