package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "timers:\n  work: 600\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Timers.Work != 600 {
		t.Errorf("expected work 600, got %d", cfg.Timers.Work)
	}
	if cfg.Timers.ShortBreak != DefaultShortBreakSeconds {
		t.Errorf("expected default short break, got %d", cfg.Timers.ShortBreak)
	}
	if cfg.Timers.Intervals != DefaultIntervals {
		t.Errorf("expected default intervals, got %d", cfg.Timers.Intervals)
	}
	if !cfg.AutoStart.Breaks {
		t.Error("expected breaks to auto-start by default")
	}
	if cfg.AutoStart.Work {
		t.Error("work must not auto-start by default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "zero work", content: "timers:\n  work: 0\n"},
		{name: "negative break", content: "timers:\n  short_break: -5\n"},
		{name: "zero intervals", content: "timers:\n  intervals: 0\n"},
		{name: "malformed yaml", content: "timers: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.path = path
	cfg.Timers.Work = 900
	cfg.Notifications.BreakSuggestions = []string{"Stretch", "Drink water"}
	if err := cfg.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Timers.Work != 900 {
		t.Errorf("expected work 900, got %d", loaded.Timers.Work)
	}
	if len(loaded.Notifications.BreakSuggestions) != 2 {
		t.Errorf("suggestions did not round trip: %v", loaded.Notifications.BreakSuggestions)
	}
}

func TestResolve(t *testing.T) {
	cfg := Default()
	cfg.Timers.Work = 10
	cfg.AutoStart.Work = true

	resolved := cfg.Resolve()
	if resolved.WorkSeconds != 10 {
		t.Errorf("expected work 10, got %d", resolved.WorkSeconds)
	}
	if !resolved.AutoStartWork {
		t.Error("auto-start flag lost in resolution")
	}
	if resolved.Intervals != DefaultIntervals {
		t.Errorf("expected intervals %d, got %d", DefaultIntervals, resolved.Intervals)
	}
}

func TestSocketPathOverride(t *testing.T) {
	t.Setenv(SocketEnv, "/tmp/test-pomod.sock")
	if got := SocketPath(); got != "/tmp/test-pomod.sock" {
		t.Errorf("expected override to win, got %s", got)
	}

	t.Setenv(SocketEnv, "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := SocketPath(); got != "/run/user/1000/pomod.sock" {
		t.Errorf("expected runtime dir socket, got %s", got)
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if _, err := Init(path, false); err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	if _, err := Init(path, false); err == nil {
		t.Error("expected error when config already exists")
	}
	if _, err := Init(path, true); err != nil {
		t.Errorf("forced init failed: %v", err)
	}
}
