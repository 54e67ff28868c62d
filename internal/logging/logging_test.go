package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	cases := []struct {
		mode      string
		debugOn   bool
		infoOn    bool
		errExpect bool
	}{
		{"production", false, true, false},
		{"PROD", false, true, false},
		{"dev", true, true, false},
		{"", true, true, false},
		{"off", false, false, false},
	}
	for _, c := range cases {
		l, err := New(c.mode)
		if err != nil {
			t.Fatalf("New(%q): %v", c.mode, err)
		}
		if got := l.Core().Enabled(zapcore.DebugLevel); got != c.debugOn {
			t.Errorf("New(%q) debug enabled = %v", c.mode, got)
		}
		if got := l.Core().Enabled(zapcore.InfoLevel); got != c.infoOn {
			t.Errorf("New(%q) info enabled = %v", c.mode, got)
		}
	}
}
