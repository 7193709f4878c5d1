package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/neurablink/internal/blink"
	"github.com/ayusman/neurablink/internal/calibrate"
	"github.com/ayusman/neurablink/internal/capture"
	"github.com/ayusman/neurablink/internal/config"
	"github.com/ayusman/neurablink/internal/extractor"
	"github.com/ayusman/neurablink/internal/plugin"
	"github.com/ayusman/neurablink/internal/reminder"
	"github.com/ayusman/neurablink/internal/store"
)

// loop is one detection session. Everything except stop runs on the loop goroutine.
type loop struct {
	app *App
	cfg config.Config
	log logrus.FieldLogger

	acq       *capture.Acquirer
	pipe      *blink.Pipe
	dimmer    *reminder.Dimmer
	highlight highlighter
	rec       *recorder
	hook      *stareHook

	sessionID string
	frames    uint64
	blinks    uint64
	lastBlink time.Time
	saturated bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// newLoop builds the session pipeline for cfg and starts frame acquisition.
// Called with a.mu held.
func newLoop(a *App, cfg config.Config) (*loop, error) {
	pipe, err := newPipe(cfg, a.now, a.log)
	if err != nil {
		return nil, err
	}

	dimmer, err := reminder.NewDimmer(reminder.Options{Delay: cfg.BlinkTimer}, a.now())
	if err != nil {
		pipe.Close()
		return nil, err
	}

	l := &loop{
		app:    a,
		cfg:    cfg,
		pipe:   pipe,
		dimmer: dimmer,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if a.store != nil {
		if err := l.openSession(); err != nil {
			pipe.Close()
			return nil, err
		}
		l.rec = newRecorder(a.store.Events(), l.sessionID, recorderQueue, a.log)
	}
	l.log = a.log.WithField("session", l.sessionID)

	if a.plugins != nil {
		l.hook = newStareHook(a.plugins, a.executor, l.log)
	}

	pipe.Detector().Subscribe(l.onBlink)

	l.acq = capture.NewAcquirer(a.opener, cfg.CameraID, capture.WithAcquirerLogger(l.log))
	l.acq.OnSwitched(a.cameraSwitched)
	if err := l.acq.Start(); err != nil {
		l.release()
		return nil, err
	}
	return l, nil
}

func newPipe(cfg config.Config, now func() time.Time, log logrus.FieldLogger) (*blink.Pipe, error) {
	exKind, err := extractor.ParseKind(cfg.Extractor)
	if err != nil {
		return nil, err
	}
	ex, err := extractor.New(exKind, extractor.Options{PatchSize: cfg.PatchSize})
	if err != nil {
		return nil, err
	}

	calKind, err := calibrate.ParseKind(cfg.Calibrator)
	if err != nil {
		return nil, err
	}
	q, err := blink.QuantileFor(cfg.Sensitivity)
	if err != nil {
		return nil, err
	}
	cal, err := calibrate.New(calKind, calibrate.Options{
		BufferSize:    cfg.BufferSize,
		Quantile:      q,
		EveryNthFrame: cfg.EveryNthFrame,
	})
	if err != nil {
		return nil, err
	}

	d := blink.NewDetector(ex, cal, blink.WithClock(now), blink.WithLogger(log))
	return blink.NewPipe(d, cfg.WindowSize), nil
}

func (l *loop) openSession() error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	s := &store.Session{
		StartedAt:  l.app.now(),
		Extractor:  l.cfg.Extractor,
		Calibrator: l.cfg.Calibrator,
	}
	if err := l.app.store.Sessions().Create(ctx, s); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	l.sessionID = s.ID
	return nil
}

func (l *loop) run() {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	errs := l.acq.Errors()
	for {
		select {
		case <-l.stopCh:
			l.release()
			l.log.WithField("frames", l.frames).Info("detection stopped")
			l.app.finished(l, nil)
			return
		case err := <-errs:
			l.release()
			l.log.WithError(err).Error("camera failure, detection stopped")
			l.app.finished(l, err)
			return
		case <-ticker.C:
			l.tick(l.app.now())
		}
	}
}

// stop ends the loop between ticks and waits for it.
func (l *loop) stop() {
	close(l.stopCh)
	<-l.doneCh
}

// tick runs one detection step. Queued configuration is applied first so
// that a tick always sees one consistent configuration.
func (l *loop) tick(now time.Time) {
	if cfg, ok := l.app.takeConfig(); ok {
		l.apply(cfg)
	}

	if frame, seq, ok := l.acq.Latest(); ok {
		l.process(frame, seq, now)
	}

	l.advance(now)
	l.app.publish(l.snapshot())
}

func (l *loop) process(frame *gocv.Mat, seq uint64, now time.Time) {
	defer frame.Close()

	eyes, err := l.app.landmarks.Detect(frame)
	if err != nil {
		l.log.WithError(err).WithField("seq", seq).Debug("landmark detection failed, skipping frame")
		return
	}

	l.frames++
	l.pipe.Push(extractor.Frame{Seq: seq, Image: *frame, Eyes: eyes})

	l.app.setPreview(l.highlight.paint(*frame, eyes, l.cfg.HighlightIntensity))
}

// onBlink runs synchronously inside pipe.Push.
func (l *loop) onBlink(ev blink.Event) {
	l.blinks++
	l.lastBlink = ev.At
	l.highlight.blink(persistFrames(l.acq.FPS(), l.cfg.HighlightSeconds))

	if l.rec != nil {
		l.rec.record(ev)
	}

	dimmed := l.dimmer.Opacity() > 0
	l.dimmer.Reset(ev.At)
	if l.saturated {
		l.saturated = false
		l.fireHook(plugin.EventRecovered)
	}

	l.app.emit(Event{Type: EventBlink, SessionID: l.sessionID, Blink: &ev, At: ev.At})
	if dimmed {
		l.app.emit(Event{Type: EventDim, SessionID: l.sessionID, Opacity: 0, At: ev.At})
	}
}

func (l *loop) advance(now time.Time) {
	opacity, changed := l.dimmer.Advance(now)
	if !changed {
		return
	}
	l.app.emit(Event{Type: EventDim, SessionID: l.sessionID, Opacity: opacity, At: now})

	if l.dimmer.Saturated() && !l.saturated {
		l.saturated = true
		l.log.WithField("blink_timer", l.cfg.BlinkTimer).Info("screen fully dimmed")
		l.fireHook(plugin.EventStare)
	}
}

func (l *loop) fireHook(ev plugin.Event) {
	if l.hook == nil {
		return
	}
	l.hook.fire(l.cfg.StarePlugin, l.cfg.StareAction, ev, stareParams{
		Opacity:    l.dimmer.Opacity(),
		BlinkTimer: l.cfg.BlinkTimer.Seconds(),
	})
}

// apply takes the runtime-mutable part of cfg.
func (l *loop) apply(cfg config.Config) {
	if cfg.Sensitivity != l.cfg.Sensitivity {
		q, err := blink.QuantileFor(cfg.Sensitivity)
		if err == nil {
			err = l.pipe.Detector().Calibration().SetQuantile(q)
		}
		if err != nil {
			l.log.WithError(err).Warn("ignoring sensitivity")
			cfg.Sensitivity = l.cfg.Sensitivity
		} else {
			l.log.WithFields(logrus.Fields{"sensitivity": cfg.Sensitivity, "quantile": q}).Info("sensitivity changed")
		}
	}
	if cfg.BlinkTimer != l.cfg.BlinkTimer {
		if err := l.dimmer.SetDelay(cfg.BlinkTimer); err != nil {
			l.log.WithError(err).Warn("ignoring blink timer")
			cfg.BlinkTimer = l.cfg.BlinkTimer
		}
	}

	// Settings fixed for the session lifetime.
	cfg.CameraID = l.cfg.CameraID
	cfg.Extractor = l.cfg.Extractor
	cfg.Calibrator = l.cfg.Calibrator
	cfg.BufferSize = l.cfg.BufferSize
	cfg.EveryNthFrame = l.cfg.EveryNthFrame
	cfg.WindowSize = l.cfg.WindowSize
	cfg.PatchSize = l.cfg.PatchSize
	cfg.TickInterval = l.cfg.TickInterval
	l.cfg = cfg
}

// release stops acquisition, flushes the recorder and ends the session.
func (l *loop) release() {
	l.acq.Stop()
	l.pipe.Close()
	if l.hook != nil {
		l.hook.close()
	}
	if l.rec != nil {
		l.rec.close()
	}
	if l.app.store != nil && l.sessionID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := l.app.store.Sessions().End(ctx, l.sessionID, l.app.now(), int64(l.frames)); err != nil {
			l.log.WithError(err).Warn("ending session")
		}
	}
}

func (l *loop) snapshot() Status {
	d := l.pipe.Detector()
	cal := d.Calibration()

	s := Status{
		Running:       true,
		SessionID:     l.sessionID,
		CameraID:      l.acq.DeviceID(),
		FPS:           l.acq.FPS(),
		Extractor:     string(d.Extractor()),
		Calibrator:    string(d.Calibrator()),
		State:         d.State().String(),
		Threshold:     finite(d.Threshold()),
		Quantile:      cal.Quantile(),
		Samples:       cal.Len(),
		SampleSize:    cal.Cap(),
		Opacity:       l.dimmer.Opacity(),
		Frames:        l.frames,
		Blinks:        l.blinks,
		DroppedFrames: l.acq.Dropped(),
	}
	if !l.lastBlink.IsZero() {
		t := l.lastBlink
		s.LastBlink = &t
	}
	if l.rec != nil {
		s.DroppedEvents = l.rec.droppedEvents()
	}
	return s
}
