// Package app wires camera acquisition, landmark detection, blink detection,
// the dimming reminder, persistence and plugins into one detection service.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"gocv.io/x/gocv"

	"github.com/ayusman/neurablink/internal/blink"
	"github.com/ayusman/neurablink/internal/capture"
	"github.com/ayusman/neurablink/internal/config"
	"github.com/ayusman/neurablink/internal/detector"
	"github.com/ayusman/neurablink/internal/logging"
	"github.com/ayusman/neurablink/internal/plugin"
	"github.com/ayusman/neurablink/internal/reminder"
	"github.com/ayusman/neurablink/internal/store"
)

var (
	// ErrRunning is returned by Start while detection is running.
	ErrRunning = errors.New("detection already running")
	// ErrNotRunning is returned by Stop when detection is not running.
	ErrNotRunning = errors.New("detection not running")
	// ErrImmutable is returned when a setting cannot change at runtime.
	ErrImmutable = errors.New("setting cannot be changed at runtime")
	// ErrInvalidCamera is returned for a negative camera index.
	ErrInvalidCamera = errors.New("invalid camera index")
)

// storeTimeout bounds every store call made by the app.
const storeTimeout = 5 * time.Second

// Options holds the collaborators of an App. Only Config is required.
type Options struct {
	Config config.Config

	// Store persists preferences, sessions and blink events. Nil disables persistence.
	Store *store.Store
	// Plugins runs the stare hook. Nil disables it.
	Plugins  *plugin.Manager
	Executor *plugin.Executor

	// Opener creates cameras. Defaults to capture.NewCamera.
	Opener capture.Opener
	// Detector provides eye landmarks. Defaults to the one named by Config.Detector.
	Detector detector.Detector

	Log logrus.FieldLogger
	Now func() time.Time
}

// App runs detection sessions. Start and Stop may be called from any goroutine.
type App struct {
	store     *store.Store
	plugins   *plugin.Manager
	executor  *plugin.Executor
	opener    capture.Opener
	landmarks detector.Detector
	log       logrus.FieldLogger
	now       func() time.Time

	mu       sync.Mutex
	cfg      config.Config
	dirty    bool
	loop     *loop
	status   Status
	preview  gocv.Mat
	previewN uint64

	listeners
}

// New creates an App. Stored preferences override the mutable settings of opts.Config.
func New(opts Options) (*App, error) {
	a := &App{
		store:     opts.Store,
		plugins:   opts.Plugins,
		executor:  opts.Executor,
		opener:    opts.Opener,
		landmarks: opts.Detector,
		log:       logging.OrDiscard(opts.Log).WithField("component", "app"),
		now:       opts.Now,
		cfg:       opts.Config,
	}
	if a.opener == nil {
		a.opener = capture.NewCamera
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.plugins != nil && a.executor == nil {
		a.executor = plugin.NewExecutor(plugin.DefaultTimeout)
	}

	a.loadPreferences()
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	if a.landmarks == nil {
		a.landmarks = newLandmarks(a.cfg.Detector, a.log)
	}

	a.status = a.idleStatus()
	return a, nil
}

func newLandmarks(kind string, log logrus.FieldLogger) detector.Detector {
	if kind == "mock" {
		return detector.NewMockDetector()
	}
	mp, err := detector.NewMediaPipeDetector(detector.DefaultConfig(), log)
	if err != nil {
		log.WithError(err).Warn("MediaPipe not available, using mock detector")
		return detector.NewMockDetector()
	}
	log.Info("using MediaPipe face mesh")
	return mp
}

func (a *App) loadPreferences() {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	stored, err := a.store.Settings().All(ctx)
	if err != nil {
		a.log.WithError(err).Warn("loading preferences")
		return
	}

	values := make(map[string]any, len(stored))
	for k, v := range stored {
		if config.Mutable(k) {
			values[k] = v
		}
	}
	if len(values) == 0 {
		return
	}
	if err := a.cfg.Apply(values); err != nil {
		a.log.WithError(err).Warn("ignoring stored preferences")
		return
	}
	a.log.WithField("count", len(values)).Debug("preferences loaded")
}

// Start opens the camera and begins a detection session.
func (a *App) Start() error {
	a.mu.Lock()
	if a.loop != nil {
		a.mu.Unlock()
		return ErrRunning
	}

	l, err := newLoop(a, a.cfg)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.loop = l
	a.dirty = false
	a.status = l.snapshot()
	a.mu.Unlock()

	a.log.WithFields(logrus.Fields{
		"session":    l.sessionID,
		"camera":     l.cfg.CameraID,
		"extractor":  l.cfg.Extractor,
		"calibrator": l.cfg.Calibrator,
	}).Info("detection started")
	a.emit(Event{Type: EventStarted, SessionID: l.sessionID, At: a.now()})

	go l.run()
	return nil
}

// Stop ends the session after the tick in progress, if any.
func (a *App) Stop() error {
	a.mu.Lock()
	l := a.loop
	a.loop = nil
	a.mu.Unlock()

	if l == nil {
		return ErrNotRunning
	}
	l.stop()
	return nil
}

// Running reports whether a session is active.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loop != nil
}

// Close stops detection and releases the landmark detector.
func (a *App) Close() error {
	if err := a.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}

	a.mu.Lock()
	if a.preview.Ptr() != nil {
		a.preview.Close()
		a.preview = gocv.Mat{}
	}
	a.mu.Unlock()

	return a.landmarks.Close()
}

// SetSensitivity changes the calibration quantile. A running session picks
// it up before its next tick.
func (a *App) SetSensitivity(level int) error {
	if _, err := blink.QuantileFor(level); err != nil {
		return err
	}
	return a.Update(map[string]any{"sensitivity": level})
}

// SetBlinkTimer changes the delay before the screen starts to dim.
func (a *App) SetBlinkTimer(d time.Duration) error {
	if err := reminder.CheckDelay(d); err != nil {
		return err
	}
	return a.Update(map[string]any{"blink_timer": d})
}

// Update applies runtime-mutable settings atomically and persists them.
func (a *App) Update(values map[string]any) error {
	for k := range values {
		if !config.Mutable(k) {
			return fmt.Errorf("%w: %s", ErrImmutable, k)
		}
	}

	a.mu.Lock()
	next := a.cfg
	if err := next.Apply(values); err != nil {
		a.mu.Unlock()
		return err
	}
	a.cfg = next
	a.dirty = true
	if a.loop == nil {
		a.status = a.idleStatus()
	}
	a.mu.Unlock()

	a.savePreferences(values)
	return nil
}

func (a *App) savePreferences(values map[string]any) {
	if a.store == nil {
		return
	}
	rows := make(map[string]string, len(values))
	for k, v := range values {
		rows[k] = cast.ToString(v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := a.store.Settings().SetAll(ctx, rows); err != nil {
		a.log.WithError(err).Warn("saving preferences")
	}
}

// takeConfig returns the current configuration if it changed since the last call.
func (a *App) takeConfig() (config.Config, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.dirty {
		return config.Config{}, false
	}
	a.dirty = false
	return a.cfg, true
}

// SwitchCamera moves detection to another device. While running the switch
// happens on the capture goroutine and its outcome is announced with an
// EventCamera; otherwise the next Start uses the device.
func (a *App) SwitchCamera(id int) error {
	if id < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCamera, id)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.loop == nil {
		a.cfg.CameraID = id
		a.status = a.idleStatus()
		return nil
	}
	a.loop.acq.Switch(id)
	return nil
}

func (a *App) cameraSwitched(id int, ok bool) {
	a.mu.Lock()
	if ok {
		a.cfg.CameraID = id
	}
	a.mu.Unlock()

	a.log.WithFields(logrus.Fields{"camera": id, "ok": ok}).Info("camera switch")
	a.emit(Event{Type: EventCamera, CameraID: id, OK: ok, At: a.now()})
}

// Config returns a copy of the current configuration.
func (a *App) Config() config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Store returns the store, possibly nil.
func (a *App) Store() *store.Store { return a.store }

// Plugins returns the plugin manager, possibly nil.
func (a *App) Plugins() *plugin.Manager { return a.plugins }

// Status describes the app for the API and the tray.
type Status struct {
	Running     bool     `json:"running"`
	SessionID   string   `json:"session_id,omitempty"`
	CameraID    int      `json:"camera_id"`
	FPS         int      `json:"fps"`
	Extractor   string   `json:"extractor"`
	Calibrator  string   `json:"calibrator"`
	State       string   `json:"state"`
	Threshold   *float64 `json:"threshold"`
	Quantile    float64  `json:"quantile"`
	Samples     int      `json:"calibration_samples"`
	SampleSize  int      `json:"calibration_size"`
	Sensitivity int      `json:"sensitivity"`
	BlinkTimer  float64  `json:"blink_timer"`
	Opacity     int      `json:"opacity"`

	Frames        uint64     `json:"frames"`
	Blinks        uint64     `json:"blinks"`
	LastBlink     *time.Time `json:"last_blink,omitempty"`
	DroppedFrames uint64     `json:"dropped_frames"`
	DroppedEvents uint64     `json:"dropped_events"`
	Error         string     `json:"error,omitempty"`
}

// Status returns the state published by the last tick.
func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.status
	s.Sensitivity = a.cfg.Sensitivity
	s.BlinkTimer = a.cfg.BlinkTimer.Seconds()
	if s.LastBlink != nil {
		t := *s.LastBlink
		s.LastBlink = &t
	}
	return s
}

func (a *App) idleStatus() Status {
	s := a.status
	s.Running = false
	s.SessionID = ""
	s.CameraID = a.cfg.CameraID
	s.Extractor = a.cfg.Extractor
	s.Calibrator = a.cfg.Calibrator
	s.State = blink.Uncalibrated.String()
	s.Threshold = nil
	s.Opacity = 0
	return s
}

func (a *App) publish(s Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

// finished records the end of l. A loop replaced by Stop leaves the app alone.
func (a *App) finished(l *loop, err error) {
	a.mu.Lock()
	if a.loop == l {
		a.loop = nil
	}
	a.status = l.snapshot()
	a.status.Running = false
	if err != nil {
		a.status.Error = err.Error()
	}
	a.mu.Unlock()

	ev := Event{Type: EventStopped, SessionID: l.sessionID, At: a.now()}
	if err != nil {
		ev.Error = err.Error()
	}
	a.emit(ev)
}

// Preview returns a copy of the newest highlighted frame and its version.
// ok is false when no frame was produced yet or version has not advanced
// past since. The caller owns the returned Mat.
func (a *App) Preview(since uint64) (frame gocv.Mat, version uint64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.preview.Ptr() == nil || a.previewN == since {
		return gocv.Mat{}, a.previewN, false
	}
	return a.preview.Clone(), a.previewN, true
}

func (a *App) setPreview(frame gocv.Mat) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.preview.Ptr() != nil {
		a.preview.Close()
	}
	a.preview = frame
	a.previewN++
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
