package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/neurablink/internal/blink"
	"github.com/ayusman/neurablink/internal/capture"
	"github.com/ayusman/neurablink/internal/config"
	"github.com/ayusman/neurablink/internal/detector"
	"github.com/ayusman/neurablink/internal/reminder"
	"github.com/ayusman/neurablink/internal/store"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Detector = "mock"
	cfg.DataDir = "unused"
	cfg.TickInterval = time.Millisecond
	return cfg
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestApp(t *testing.T, opts Options) *App {
	t.Helper()
	if opts.Config.Extractor == "" {
		opts.Config = testConfig()
	}
	if opts.Detector == nil {
		opts.Detector = detector.NewMockDetector()
	}
	a, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func cameraOpener(cam capture.Camera) capture.Opener {
	return func(int) capture.Camera { return cam }
}

// waitFor returns the first event of type typ, failing after timeout.
func waitFor(t *testing.T, events <-chan Event, typ EventType, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-events:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func subscribe(a *App) <-chan Event {
	events := make(chan Event, 1024)
	a.Subscribe(func(ev Event) {
		select {
		case events <- ev:
		default:
		}
	})
	return events
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.WindowSize = 0

	if _, err := New(Options{Config: cfg, Detector: detector.NewMockDetector()}); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("New() error = %v, want ErrInvalid", err)
	}
}

func TestApp_Settings(t *testing.T) {
	a := newTestApp(t, Options{})

	tests := []struct {
		name    string
		apply   func() error
		wantErr error
	}{
		{"sensitivity too low", func() error { return a.SetSensitivity(0) }, blink.ErrInvalidSensitivity},
		{"sensitivity too high", func() error { return a.SetSensitivity(6) }, blink.ErrInvalidSensitivity},
		{"blink timer too short", func() error { return a.SetBlinkTimer(500 * time.Millisecond) }, reminder.ErrInvalidDelay},
		{"blink timer too long", func() error { return a.SetBlinkTimer(16 * time.Second) }, reminder.ErrInvalidDelay},
		{"immutable key", func() error { return a.Update(map[string]any{"extractor": "pixel"}) }, ErrImmutable},
		{"invalid value", func() error { return a.Update(map[string]any{"highlight_intensity": 300}) }, config.ErrInvalid},
		{"negative camera", func() error { return a.SwitchCamera(-1) }, ErrInvalidCamera},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.apply(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := a.SetSensitivity(2); err != nil {
		t.Fatalf("SetSensitivity(2) error = %v", err)
	}
	if err := a.SetBlinkTimer(8 * time.Second); err != nil {
		t.Fatalf("SetBlinkTimer() error = %v", err)
	}
	if err := a.SwitchCamera(3); err != nil {
		t.Fatalf("SwitchCamera() error = %v", err)
	}

	s := a.Status()
	if s.Sensitivity != 2 || s.BlinkTimer != 8 || s.CameraID != 3 {
		t.Errorf("Status() = %+v, want sensitivity 2, blink timer 8s, camera 3", s)
	}
	if s.Running || s.Threshold != nil {
		t.Errorf("idle Status() = %+v", s)
	}
}

func TestApp_PreferencesPersist(t *testing.T) {
	st := newTestStore(t)

	a := newTestApp(t, Options{Store: st})
	if err := a.Update(map[string]any{"sensitivity": 1, "blink_timer": "12s", "stare_plugin": "notify", "stare_action": "remind"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	b := newTestApp(t, Options{Store: st})
	cfg := b.Config()
	if cfg.Sensitivity != 1 || cfg.BlinkTimer != 12*time.Second || cfg.StarePlugin != "notify" || cfg.StareAction != "remind" {
		t.Errorf("reloaded config = %+v", cfg)
	}
}

func TestApp_StopWhenIdle(t *testing.T) {
	a := newTestApp(t, Options{})
	if err := a.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop() error = %v, want ErrNotRunning", err)
	}
	if a.Running() {
		t.Error("Running() = true before Start")
	}
	if _, _, ok := a.Preview(0); ok {
		t.Error("Preview() should be empty before any frame")
	}
}

func TestApp_CameraOpenFailure(t *testing.T) {
	st := newTestStore(t)
	cam := capture.NewMockCamera(nil, false)
	cam.SetOpenError(errors.New("device busy"))

	a := newTestApp(t, Options{Store: st, Opener: cameraOpener(cam)})
	events := subscribe(a)

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	started := waitFor(t, events, EventStarted, time.Second)
	stopped := waitFor(t, events, EventStopped, 2*time.Second)
	if stopped.Error == "" {
		t.Error("stopped event should carry the camera error")
	}
	if stopped.SessionID != started.SessionID {
		t.Errorf("session = %q, want %q", stopped.SessionID, started.SessionID)
	}

	s := a.Status()
	if s.Running || s.Error == "" {
		t.Errorf("Status() = %+v, want stopped with error", s)
	}
	if a.Running() {
		t.Error("Running() = true after camera failure")
	}
	if err := a.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop() error = %v, want ErrNotRunning", err)
	}

	sess, err := st.Sessions().GetByID(context.Background(), started.SessionID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if sess.Active() {
		t.Error("session should be ended after camera failure")
	}
}

func TestApp_EmptySourceStops(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	a := newTestApp(t, Options{Opener: cameraOpener(cam)})
	events := subscribe(a)

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	stopped := waitFor(t, events, EventStopped, 2*time.Second)
	if stopped.Error == "" {
		t.Error("expected a read failure")
	}
	if cam.IsOpen() {
		t.Error("camera should be released")
	}

	// A fresh session can start after the failure.
	if err := a.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	waitFor(t, events, EventStopped, 2*time.Second)
}

func TestPersistFrames(t *testing.T) {
	tests := []struct {
		fps     int
		seconds float64
		want    int
	}{
		{30, 0.2, 6},
		{60, 0.2, 12},
		{5, 0.1, 1},
		{30, 0.01, 1},
	}
	for _, tt := range tests {
		if got := persistFrames(tt.fps, tt.seconds); got != tt.want {
			t.Errorf("persistFrames(%d, %v) = %d, want %d", tt.fps, tt.seconds, got, tt.want)
		}
	}
}

func TestListeners(t *testing.T) {
	var l listeners
	var got []EventType

	unsub := l.Subscribe(func(ev Event) { got = append(got, ev.Type) })
	l.Subscribe(func(ev Event) { got = append(got, "second") })

	l.emit(Event{Type: EventBlink})
	unsub()
	unsub()
	l.emit(Event{Type: EventDim})

	want := []EventType{EventBlink, "second", "second"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
