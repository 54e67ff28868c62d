package config

import (
	"fmt"

	"github.com/dcshock/stageflow/checkpoint"
	"github.com/dcshock/stageflow/pipeline"
	"go.uber.org/zap"
)

// BuildOptions configures how an engine is built from a run spec.
type BuildOptions struct {
	// RunID overrides RunSpec.RunID. When both are empty, the id is derived
	// from RunSpec.Name with checkpoint.RunIDFromName, so re-running the same
	// spec resumes the same checkpoint. An unnamed spec gets a random id.
	RunID string

	Store     pipeline.CheckpointStore
	Observers []pipeline.Observer
	Logger    *zap.Logger

	// ObserverRegistry resolves RunSpec.Observers. Required when the spec
	// lists any.
	ObserverRegistry *ObserverRegistry
}

// BuildEngine resolves every stage in spec against reg and returns a ready
// engine. A stage without an explicit order is placed by its position in the
// list: (index+1)*10, leaving room for explicit orders in between. A factory
// that sets a non-zero Order keeps it.
func BuildEngine(reg *Registry, spec *RunSpec, opts *BuildOptions) (*pipeline.Engine, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if spec == nil {
		return nil, fmt.Errorf("run spec is nil")
	}
	if opts == nil {
		opts = &BuildOptions{}
	}
	stages := make([]pipeline.Stage, 0, len(spec.Stages))
	for i, ref := range spec.Stages {
		s, err := reg.Resolve(ref)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		if ref.Order == nil && s.Order == 0 {
			s.Order = (i + 1) * 10
		}
		stages = append(stages, s)
	}
	observers, err := buildObservers(spec, opts)
	if err != nil {
		return nil, err
	}
	eng := pipeline.New(pipeline.Options{
		Name:            spec.Name,
		RunID:           runID(spec, opts),
		ContinueOnError: spec.ContinueOnError,
		RetryDelay:      spec.RetryDelay.Duration(),
		Store:           opts.Store,
		Observers:       observers,
		Logger:          opts.Logger,
	})
	if err := eng.Register(stages...); err != nil {
		return nil, err
	}
	return eng, nil
}

// NewContext returns a Context whose Config() is the spec's config map.
func NewContext(spec *RunSpec) *pipeline.Context {
	if spec == nil || spec.Config == nil {
		return pipeline.NewContext(map[string]interface{}{})
	}
	return pipeline.NewContext(spec.Config)
}

func runID(spec *RunSpec, opts *BuildOptions) string {
	switch {
	case opts.RunID != "":
		return opts.RunID
	case spec.RunID != "":
		return spec.RunID
	case spec.Name != "":
		return checkpoint.RunIDFromName(spec.Name)
	default:
		return ""
	}
}

func buildObservers(spec *RunSpec, opts *BuildOptions) ([]pipeline.Observer, error) {
	list := append([]pipeline.Observer(nil), opts.Observers...)
	if len(spec.Observers) == 0 {
		return list, nil
	}
	if opts.ObserverRegistry == nil {
		return nil, fmt.Errorf("run spec lists observers but no ObserverRegistry is set")
	}
	for i, name := range spec.Observers {
		obs, ok := opts.ObserverRegistry.Get(name)
		if !ok {
			return nil, fmt.Errorf("observer %d: %q not in registry", i, name)
		}
		list = append(list, obs)
	}
	return list, nil
}
