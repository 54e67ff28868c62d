package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dcshock/stageflow/pipeline"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestFileStore_LoadMissing(t *testing.T) {
	s := newStore(t)
	cp, err := s.Load(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if cp.RunID != "nope" || len(cp.CompletedSteps) != 0 {
		t.Errorf("expected empty checkpoint, got %+v", cp)
	}
}

func TestFileStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	cp := pipeline.NewCheckpoint("run-1")
	cp.MarkComplete("outline", map[string]interface{}{"title": "Dusk"})
	cp.MarkComplete("draft", nil)
	if err := s.Save(ctx, "run-1", cp); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got.CompletedSteps, ",") != "outline,draft" {
		t.Errorf("completed: %v", got.CompletedSteps)
	}
	if got.StepData["outline"]["title"] != "Dusk" {
		t.Errorf("step data: %v", got.StepData)
	}

	if err := s.Clear(ctx, "run-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx, "run-1"); err != nil {
		t.Errorf("second clear should be a no-op: %v", err)
	}
	got, _ = s.Load(ctx, "run-1")
	if len(got.CompletedSteps) != 0 {
		t.Errorf("cleared run should load empty: %v", got.CompletedSteps)
	}
}

func TestFileStore_CorruptIsFreshStart(t *testing.T) {
	s := newStore(t)
	path := filepath.Join(s.Dir(), "bad"+fileExt)
	if err := os.WriteFile(path, []byte(`{"run_id":"bad","completed_steps":["a"`), 0o644); err != nil {
		t.Fatal(err)
	}
	cp, err := s.Load(context.Background(), "bad")
	if err != nil {
		t.Fatalf("corrupt checkpoint must not be an error: %v", err)
	}
	if len(cp.CompletedSteps) != 0 {
		t.Errorf("corrupt checkpoint should load empty: %v", cp.CompletedSteps)
	}
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	cp := pipeline.NewCheckpoint("r")
	for _, id := range []string{"a", "b", "c"} {
		cp.MarkComplete(id, nil)
		if err := s.Save(ctx, "r", cp); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "r"+fileExt {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries: %v", names)
	}
}

func TestFileStore_Pending(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for _, id := range []string{"b-run", "a-run"} {
		if err := s.Save(ctx, id, pipeline.NewCheckpoint(id)); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o644)
	ids, err := s.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(ids, ",") != "a-run,b-run" {
		t.Errorf("pending: %v", ids)
	}
}

func TestFileStore_InvalidRunID(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		if err := s.Save(ctx, id, pipeline.NewCheckpoint(id)); err == nil {
			t.Errorf("Save(%q) should fail", id)
		}
		if _, err := s.Load(ctx, id); err == nil {
			t.Errorf("Load(%q) should fail", id)
		}
	}
}

func TestNewFileStore_EmptyDir(t *testing.T) {
	if _, err := NewFileStore("", nil); err == nil {
		t.Error("expected error for empty dir")
	}
}

// TestFileStore_ResumeAcrossEngines halts a run, then resumes it with a new
// store instance on the same directory, as a restarted process would.
func TestFileStore_ResumeAcrossEngines(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	runID := RunIDFromName("The Quiet Harbor")
	errVoice := errors.New("voice model offline")
	voiceUp := false
	var started []string

	build := func() *pipeline.Engine {
		store, err := NewFileStore(dir, nil)
		if err != nil {
			t.Fatal(err)
		}
		eng := pipeline.New(pipeline.Options{RunID: runID, Store: store, Observers: []pipeline.Observer{
			pipeline.ObserverFuncs{Start: func(ctx context.Context, ev pipeline.StageStart) error {
				started = append(started, ev.StageID)
				return nil
			}},
		}})
		err = eng.Register(
			pipeline.Stage{ID: "title", Order: 1, Persist: []string{"title"}, Execute: pipeline.Set("title", "The Quiet Harbor")},
			pipeline.Stage{ID: "narrate", Order: 2, Execute: func(ctx context.Context, rc *pipeline.Context) error {
				if !voiceUp {
					return errVoice
				}
				return pipeline.Require("title")(ctx, rc)
			}},
		)
		if err != nil {
			t.Fatal(err)
		}
		return eng
	}

	res, err := build().Run(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || !errors.Is(res.FirstErr, errVoice) {
		t.Fatalf("first run should halt on narrate: %s", res.Summary())
	}
	pending, _ := (&FileStore{dir: dir}).Pending()
	if len(pending) != 1 || pending[0] != runID {
		t.Fatalf("pending: %v", pending)
	}

	voiceUp = true
	started = nil
	res, err = build().Run(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("resume failed: %s", res.Summary())
	}
	if strings.Join(started, ",") != "narrate" {
		t.Errorf("resumed run should only start narrate: %v", started)
	}
	if _, err := os.Stat(filepath.Join(dir, runID+fileExt)); !os.IsNotExist(err) {
		t.Error("checkpoint file should be removed after success")
	}
}
