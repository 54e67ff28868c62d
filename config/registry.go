package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dcshock/stageflow/pipeline"
)

// Factory builds a stage from its run spec entry. Factories read ref.Params;
// the registry applies the remaining StageRef overrides afterwards, and always
// sets the stage id to ref.ID.
type Factory func(ref StageRef) (pipeline.Stage, error)

// StageFunc adapts a plain stage function into a Factory that ignores params.
func StageFunc(fn pipeline.Func) Factory {
	return func(StageRef) (pipeline.Stage, error) {
		return pipeline.Stage{Execute: fn}, nil
	}
}

// Registry maps stage ids to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under id. Empty ids, nil factories and ids that are
// already registered are rejected.
func (r *Registry) Register(id string, f Factory) error {
	if id == "" {
		return pipeline.ErrEmptyStageID
	}
	if f == nil {
		return fmt.Errorf("stage %q: nil factory", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories == nil {
		r.factories = make(map[string]Factory)
	}
	if _, ok := r.factories[id]; ok {
		return fmt.Errorf("stage %q: %w", id, pipeline.ErrDuplicateStage)
	}
	r.factories[id] = f
	return nil
}

// MustRegister is Register that panics on error, for init-time wiring.
func (r *Registry) MustRegister(id string, f Factory) {
	if err := r.Register(id, f); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}

// Get returns the factory for id, or nil and false if not found.
func (r *Registry) Get(id string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[id]
	return f, ok
}

// Names returns all registered ids, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve builds the stage for ref and applies its overrides.
func (r *Registry) Resolve(ref StageRef) (pipeline.Stage, error) {
	if ref.ID == "" {
		return pipeline.Stage{}, pipeline.ErrEmptyStageID
	}
	f, ok := r.Get(ref.FactoryID())
	if !ok {
		return pipeline.Stage{}, fmt.Errorf("stage %q: %w: %q", ref.ID, pipeline.ErrUnknownStage, ref.FactoryID())
	}
	s, err := f(ref)
	if err != nil {
		return pipeline.Stage{}, fmt.Errorf("stage %q: %w", ref.ID, err)
	}
	s.ID = ref.ID
	if err := applyOverrides(&s, ref); err != nil {
		return pipeline.Stage{}, fmt.Errorf("stage %q: %w", ref.ID, err)
	}
	if s.Execute == nil {
		return pipeline.Stage{}, fmt.Errorf("stage %q: %w", ref.ID, pipeline.ErrNoExecute)
	}
	return s, nil
}

func applyOverrides(s *pipeline.Stage, ref StageRef) error {
	if ref.Name != "" {
		s.Name = ref.Name
	}
	if ref.Order != nil {
		s.Order = *ref.Order
	}
	if ref.Enabled != nil {
		s.Disabled = !*ref.Enabled
	}
	if ref.ContinueOnError != nil {
		s.ContinueOnError = *ref.ContinueOnError
	}
	if ref.MaxRetries != nil {
		if *ref.MaxRetries < 0 {
			return fmt.Errorf("max_retries must not be negative")
		}
		s.MaxRetries = *ref.MaxRetries
	}
	if ref.RetryDelay != nil {
		s.RetryDelay = ref.RetryDelay.Duration()
		if s.RetryDelay == 0 {
			s.RetryDelay = pipeline.NoRetryDelay
		}
	}
	if ref.Backoff != nil {
		s.Backoff = pipeline.Backoff{Multiplier: ref.Backoff.Multiplier, Cap: ref.Backoff.Cap.Duration()}
	}
	if ref.Timeout > 0 {
		s.Timeout = ref.Timeout.Duration()
	}
	if ref.When != nil {
		cond, err := ref.When.Condition()
		if err != nil {
			return err
		}
		s.Condition = and(s.Condition, cond)
	}
	s.Persist = append(s.Persist, ref.Persist...)
	return nil
}

func and(a, b pipeline.Condition) pipeline.Condition {
	if a == nil {
		return b
	}
	return func(rc *pipeline.Context) bool { return a(rc) && b(rc) }
}

// ObserverRegistry maps names to observers so run specs can list them.
// Safe for concurrent use.
type ObserverRegistry struct {
	mu        sync.RWMutex
	observers map[string]pipeline.Observer
}

// NewObserverRegistry returns an empty observer registry.
func NewObserverRegistry() *ObserverRegistry {
	return &ObserverRegistry{observers: make(map[string]pipeline.Observer)}
}

// Register adds an observer under name. Overwrites any existing registration.
func (r *ObserverRegistry) Register(name string, obs pipeline.Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.observers == nil {
		r.observers = make(map[string]pipeline.Observer)
	}
	r.observers[name] = obs
}

// Get returns the observer for name, or nil and false if not found.
func (r *ObserverRegistry) Get(name string) (pipeline.Observer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obs, ok := r.observers[name]
	return obs, ok
}
