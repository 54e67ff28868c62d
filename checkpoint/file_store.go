package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dcshock/stageflow/pipeline"
	"go.uber.org/zap"
)

const fileExt = ".checkpoint.json"

// FileStore keeps one JSON checkpoint per run id in a directory. Writes go to a
// temp file in the same directory which is synced and renamed over the
// previous record, so readers see either the old or the new checkpoint.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore returns a store rooted at dir, creating it if needed. logger may
// be nil.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("checkpoint dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(runID string) (string, error) {
	if err := validateRunID(runID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, runID+fileExt), nil
}

// Load implements pipeline.CheckpointStore. A missing, unreadable or corrupt
// file yields an empty checkpoint; only an invalid run id is an error.
func (s *FileStore) Load(ctx context.Context, runID string) (*pipeline.Checkpoint, error) {
	path, err := s.path(runID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("read checkpoint", zap.String("path", path), zap.Error(err))
		}
		return pipeline.NewCheckpoint(runID), nil
	}
	var cp pipeline.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.logger.Warn("corrupt checkpoint ignored", zap.String("path", path), zap.Error(err))
		return pipeline.NewCheckpoint(runID), nil
	}
	if cp.RunID != "" && cp.RunID != runID {
		s.logger.Warn("checkpoint run id mismatch ignored", zap.String("path", path), zap.String("stored", cp.RunID))
		return pipeline.NewCheckpoint(runID), nil
	}
	cp.RunID = runID
	if cp.CompletedSteps == nil {
		cp.CompletedSteps = []string{}
	}
	return &cp, nil
}

// Save implements pipeline.CheckpointStore.
func (s *FileStore) Save(ctx context.Context, runID string, cp *pipeline.Checkpoint) error {
	path, err := s.path(runID)
	if err != nil {
		return err
	}
	if cp == nil {
		return errors.New("checkpoint is nil")
	}
	out := cp.Clone()
	out.RunID = runID
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// Clear implements pipeline.CheckpointStore. Clearing a run with no record is
// not an error.
func (s *FileStore) Clear(ctx context.Context, runID string) error {
	path, err := s.path(runID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return syncDir(s.dir)
}

// Pending returns the run ids that have a stored checkpoint, sorted. These are
// runs that halted or crashed and can be resumed.
func (s *FileStore) Pending() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(ids)
	return ids, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return syncDir(dir)
}

// syncDir flushes directory entries so a rename or remove survives a crash.
// Platforms that cannot fsync a directory are tolerated.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open checkpoint dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) && !errors.Is(err, errors.ErrUnsupported) {
		return fmt.Errorf("sync checkpoint dir: %w", err)
	}
	return nil
}

var _ pipeline.CheckpointStore = (*FileStore)(nil)
