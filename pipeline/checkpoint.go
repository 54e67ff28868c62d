package pipeline

import (
	"context"
	"sync"
	"time"
)

// Checkpoint records which stages of a run have completed and the Context
// values they exposed for resume. It is the single document a CheckpointStore
// persists per run.
type Checkpoint struct {
	RunID          string                            `json:"run_id"`
	CompletedSteps []string                          `json:"completed_steps"`
	StepData       map[string]map[string]interface{} `json:"step_data,omitempty"`
	UpdatedAt      time.Time                         `json:"updated_at"`
}

// NewCheckpoint returns an empty checkpoint for runID.
func NewCheckpoint(runID string) *Checkpoint {
	return &Checkpoint{RunID: runID, CompletedSteps: []string{}}
}

// IsComplete reports whether stageID is recorded as completed.
func (c *Checkpoint) IsComplete(stageID string) bool {
	for _, id := range c.CompletedSteps {
		if id == stageID {
			return true
		}
	}
	return false
}

// MarkComplete records stageID as completed with the given captured values.
// Marking an id twice keeps its original position and replaces its data.
func (c *Checkpoint) MarkComplete(stageID string, data map[string]interface{}) {
	if !c.IsComplete(stageID) {
		c.CompletedSteps = append(c.CompletedSteps, stageID)
	}
	if len(data) == 0 {
		return
	}
	if c.StepData == nil {
		c.StepData = make(map[string]map[string]interface{})
	}
	c.StepData[stageID] = data
}

// Clone returns a copy that shares no slices or maps with c. Step values are
// copied shallowly.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := &Checkpoint{
		RunID:          c.RunID,
		CompletedSteps: append([]string{}, c.CompletedSteps...),
		UpdatedAt:      c.UpdatedAt,
	}
	if len(c.StepData) > 0 {
		out.StepData = make(map[string]map[string]interface{}, len(c.StepData))
		for id, data := range c.StepData {
			m := make(map[string]interface{}, len(data))
			for k, v := range data {
				m[k] = v
			}
			out.StepData[id] = m
		}
	}
	return out
}

// CheckpointStore persists one Checkpoint per run id.
//
// Load returns an empty checkpoint when none is stored or the stored one cannot
// be read; the engine also treats a Load error as a fresh start. Save must be
// durable and atomic before it returns: the engine calls it after every
// successful stage and stops the run if it fails. Clear removes the record and
// is called once, after a fully successful run.
type CheckpointStore interface {
	Load(ctx context.Context, runID string) (*Checkpoint, error)
	Save(ctx context.Context, runID string, cp *Checkpoint) error
	Clear(ctx context.Context, runID string) error
}

// MemoryCheckpointStore is an in-process CheckpointStore (single-process only;
// checkpoints do not survive a restart). Safe for concurrent use.
type MemoryCheckpointStore struct {
	mu   sync.Mutex
	runs map[string]*Checkpoint
}

// NewMemoryCheckpointStore returns an empty in-memory store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{runs: make(map[string]*Checkpoint)}
}

// Load implements CheckpointStore.
func (s *MemoryCheckpointStore) Load(ctx context.Context, runID string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cp, ok := s.runs[runID]; ok {
		return cp.Clone(), nil
	}
	return NewCheckpoint(runID), nil
}

// Save implements CheckpointStore.
func (s *MemoryCheckpointStore) Save(ctx context.Context, runID string, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		s.runs = make(map[string]*Checkpoint)
	}
	s.runs[runID] = cp.Clone()
	return nil
}

// Clear implements CheckpointStore.
func (s *MemoryCheckpointStore) Clear(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}

// Has reports whether a checkpoint is stored for runID.
func (s *MemoryCheckpointStore) Has(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[runID]
	return ok
}

var _ CheckpointStore = (*MemoryCheckpointStore)(nil)
