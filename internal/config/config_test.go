package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Sensitivity != 4 || cfg.BlinkTimer != 5*time.Second || cfg.WindowSize != 2 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown extractor", func(c *Config) { c.Extractor = "optical" }},
		{"unknown calibrator", func(c *Config) { c.Calibrator = "adaptive" }},
		{"sensitivity too high", func(c *Config) { c.Sensitivity = 6 }},
		{"blink timer too short", func(c *Config) { c.BlinkTimer = 500 * time.Millisecond }},
		{"blink timer too long", func(c *Config) { c.BlinkTimer = 16 * time.Second }},
		{"period shorter than buffer", func(c *Config) { c.BufferSize = 100; c.EveryNthFrame = 50 }},
		{"window of one", func(c *Config) { c.WindowSize = 1 }},
		{"stare action without plugin action", func(c *Config) { c.StarePlugin = "notify" }},
		{"bad listen address", func(c *Config) { c.ListenAddr = "localhost" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestSet(t *testing.T) {
	cfg := Default()

	tests := []struct {
		key   string
		value any
		check func() bool
	}{
		{"camera_id", "2", func() bool { return cfg.CameraID == 2 }},
		{"buffer_size", float64(250), func() bool { return cfg.BufferSize == 250 }},
		{"blink_timer", "7s", func() bool { return cfg.BlinkTimer == 7*time.Second }},
		{"blink_timer", float64(3), func() bool { return cfg.BlinkTimer == 3*time.Second }},
		{"tick_interval", "0.02", func() bool { return cfg.TickInterval == 20*time.Millisecond }},
		{"highlight_seconds", "0.5", func() bool { return cfg.HighlightSeconds == 0.5 }},
		{"tray", "false", func() bool { return !cfg.Tray }},
		{"extractor", " pixel ", func() bool { return cfg.Extractor == "pixel" }},
	}

	for _, tt := range tests {
		if err := cfg.Set(tt.key, tt.value); err != nil {
			t.Errorf("Set(%s, %v) error = %v", tt.key, tt.value, err)
			continue
		}
		if !tt.check() {
			t.Errorf("Set(%s, %v) did not apply", tt.key, tt.value)
		}
	}

	if err := cfg.Set("fps", 30); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Set(fps) error = %v, want ErrUnknownKey", err)
	}
	if err := cfg.Set("camera_id", "front"); err == nil {
		t.Error("Set(camera_id, front) should fail")
	}
}

func TestApply_AtomicOnError(t *testing.T) {
	cfg := Default()
	err := cfg.Apply(map[string]any{"sensitivity": 2, "blink_timer": "30s"})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Apply() error = %v, want ErrInvalid", err)
	}
	if cfg.Sensitivity != 4 {
		t.Errorf("Sensitivity = %d, want unchanged 4", cfg.Sensitivity)
	}

	if err := cfg.Apply(map[string]any{"sensitivity": 2}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if cfg.Sensitivity != 2 {
		t.Errorf("Sensitivity = %d, want 2", cfg.Sensitivity)
	}
}

func TestValues_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.BlinkTimer = 9 * time.Second

	other := Default()
	if err := other.Apply(cfg.Values()); err != nil {
		t.Fatalf("Apply(Values()) error = %v", err)
	}
	if other != cfg {
		t.Errorf("round trip changed config:\n%+v\n%+v", other, cfg)
	}
}

func TestMutable(t *testing.T) {
	if !Mutable("sensitivity") || !Mutable("blink_timer") {
		t.Error("sensitivity and blink_timer should be mutable")
	}
	if Mutable("extractor") || Mutable("nope") {
		t.Error("extractor should require a restart")
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.json")
	if err := WriteFile(file, map[string]any{
		"sensitivity": 2,
		"camera_id":   1,
		"extractor":   "intensity",
		"data_dir":    dir,
	}); err != nil {
		t.Fatal(err)
	}

	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("NEURABLINK_EXTRACTOR=surface\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NEURABLINK_CAMERA_ID", "3")
	t.Cleanup(func() { os.Unsetenv("NEURABLINK_EXTRACTOR") })

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--camera-id=5", "--blink-timer=12s"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(Sources{File: file, EnvFile: envFile, Flags: fs})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Sensitivity != 2 {
		t.Errorf("Sensitivity = %d, want 2 from file", cfg.Sensitivity)
	}
	if cfg.Extractor != "surface" {
		t.Errorf("Extractor = %q, want surface from .env", cfg.Extractor)
	}
	if cfg.CameraID != 5 {
		t.Errorf("CameraID = %d, want 5 from flags", cfg.CameraID)
	}
	if cfg.BlinkTimer != 12*time.Second {
		t.Errorf("BlinkTimer = %v, want 12s from flags", cfg.BlinkTimer)
	}
	if cfg.WindowSize != 2 {
		t.Errorf("WindowSize = %d, want default 2", cfg.WindowSize)
	}
}

func TestLoad_MissingFilesUseDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(Sources{File: filepath.Join(dir, "none.json"), EnvFile: filepath.Join(dir, "none.env")})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *cfg != Default() {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{not json"), 0o644)
	if _, err := Load(Sources{File: bad}); err == nil {
		t.Error("Load() accepted malformed JSON")
	}

	unknown := filepath.Join(dir, "unknown.json")
	WriteFile(unknown, map[string]any{"fps": 60})
	if _, err := Load(Sources{File: unknown}); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Load() error = %v, want ErrUnknownKey", err)
	}

	invalid := filepath.Join(dir, "invalid.json")
	WriteFile(invalid, map[string]any{"sensitivity": 9})
	if _, err := Load(Sources{File: invalid}); !errors.Is(err, ErrInvalid) {
		t.Errorf("Load() error = %v, want ErrInvalid", err)
	}
}

func TestWatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem watcher test in short mode")
	}

	file := filepath.Join(t.TempDir(), "config.json")
	WriteFile(file, map[string]any{"sensitivity": 3})

	changes := make(chan map[string]any, 4)
	w, err := Watch(file, nil, func(v map[string]any) { changes <- v })
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	WriteFile(file, map[string]any{"sensitivity": 1})

	select {
	case v := <-changes:
		if v["sensitivity"] != float64(1) {
			t.Errorf("reloaded sensitivity = %v, want 1", v["sensitivity"])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after writing the file")
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
