package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNoop(t *testing.T) {
	rc := NewContext(nil)
	if err := Noop()(context.Background(), rc); err != nil {
		t.Fatal(err)
	}
	if len(rc.Keys()) != 0 {
		t.Errorf("noop wrote keys: %v", rc.Keys())
	}
}

func TestTap(t *testing.T) {
	called := false
	fn := Tap(func(ctx context.Context, rc *Context) { called = true })
	if err := fn(context.Background(), NewContext(nil)); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("tap fn not called")
	}
}

func TestSet(t *testing.T) {
	rc := NewContext(nil)
	if err := Set("k", 42)(context.Background(), rc); err != nil {
		t.Fatal(err)
	}
	if v, ok := Value[int](rc, "k"); !ok || v != 42 {
		t.Errorf("got %v %v", v, ok)
	}
}

func TestRequire(t *testing.T) {
	rc := NewContext(nil)
	rc.Set("a", 1)
	if err := Require("a")(context.Background(), rc); err != nil {
		t.Errorf("present key: %v", err)
	}
	err := Require("a", "b")(context.Background(), rc)
	if err == nil || !strings.Contains(err.Error(), `"b"`) {
		t.Errorf("expected missing b error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	rc := NewContext(nil)
	rc.Set("title", "")
	nonEmpty := Validate[string]("title", func(s string) bool { return s != "" }, "title is empty")
	err := nonEmpty(context.Background(), rc)
	if err == nil || !strings.Contains(err.Error(), "title is empty") {
		t.Errorf("expected validation error, got %v", err)
	}
	rc.Set("title", "Tide")
	if err := nonEmpty(context.Background(), rc); err != nil {
		t.Errorf("valid title: %v", err)
	}
	rc.Set("title", 7)
	if err := nonEmpty(context.Background(), rc); err == nil {
		t.Error("expected type error")
	}
}

func TestTransform(t *testing.T) {
	rc := NewContext(nil)
	rc.Set("words", []string{"a", "b", "c"})
	count := Transform("words", "count", func(ctx context.Context, w []string) (int, error) { return len(w), nil })
	if err := count(context.Background(), rc); err != nil {
		t.Fatal(err)
	}
	if n, _ := Value[int](rc, "count"); n != 3 {
		t.Errorf("count: got %d", n)
	}

	errConv := errors.New("conv")
	bad := Transform("words", "x", func(ctx context.Context, w []string) (int, error) { return 0, errConv })
	if err := bad(context.Background(), rc); !errors.Is(err, errConv) {
		t.Errorf("expected convert error, got %v", err)
	}
	if err := Transform("missing", "x", func(ctx context.Context, s string) (string, error) { return s, nil })(context.Background(), rc); err == nil {
		t.Error("expected missing key error")
	}
}

func TestSleep_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(time.Hour)(ctx, NewContext(nil))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestConditions(t *testing.T) {
	rc := NewContext(nil)
	rc.Set("mode", "draft")
	if !WhenExists("mode")(rc) || WhenExists("other")(rc) {
		t.Error("WhenExists")
	}
	if !WhenEquals("mode", "draft")(rc) || WhenEquals("mode", "final")(rc) {
		t.Error("WhenEquals")
	}
	if Not(WhenExists("mode"))(rc) {
		t.Error("Not")
	}
}

func TestContext_ConfigAndKeys(t *testing.T) {
	type cfg struct{ OutDir string }
	rc := NewContext(cfg{OutDir: "out"})
	c, ok := ConfigAs[cfg](rc)
	if !ok || c.OutDir != "out" {
		t.Errorf("config: %+v %v", c, ok)
	}
	rc.Set("b", 1)
	rc.Set("a", 2)
	rc.Delete("b")
	if keys := rc.Keys(); len(keys) != 1 || keys[0] != "a" {
		t.Errorf("keys: %v", keys)
	}
	if _, ok := Value[string](rc, "a"); ok {
		t.Error("Value with wrong type should report false")
	}
}
