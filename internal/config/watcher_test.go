package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatcherInitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxgate.yaml")
	writeConfig(t, path, "server:\n  listen_addr: \":7000\"\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.ListenAddr; got != ":7000" {
		t.Fatalf("ListenAddr = %q, want :7000", got)
	}
}

func TestWatcherInitialLoadFailure(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxgate.yaml")
	writeConfig(t, path, "detector:\n  energy_threshold: 0.005\n")

	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, func(_, new *Config) {
		changed <- new
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Rewrite with new content and a bumped mtime.
	writeConfig(t, path, "detector:\n  energy_threshold: 0.02\n")
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.Detector.EnergyThreshold != 0.02 {
			t.Fatalf("reloaded energy_threshold = %v, want 0.02", cfg.Detector.EnergyThreshold)
		}
		if got := w.Current().Detector.EnergyThreshold; got != 0.02 {
			t.Fatalf("Current() energy_threshold = %v, want 0.02", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}

func TestWatcherKeepsOldConfigOnInvalidRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxgate.yaml")
	writeConfig(t, path, "detector:\n  sample_rate: 16000\n")

	w, err := NewWatcher(path, func(_, _ *Config) {
		t.Error("onChange called for an invalid rewrite")
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "detector:\n  sample_rate: -1\n")
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := w.Current().Detector.SampleRate; got != 16000 {
		t.Fatalf("Current() sample_rate = %d after invalid rewrite, want 16000", got)
	}
}
