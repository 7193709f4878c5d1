package capture

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/neurablink/internal/logging"
)

// ErrAcquirerRunning is returned by Start on an acquirer that is already running.
var ErrAcquirerRunning = errors.New("acquirer already running")

// Acquirer owns a camera on its own goroutine and publishes frames through a
// single-slot mailbox. A frame the consumer has not taken yet is replaced by
// the next one and closed, so the consumer always sees the newest frame and
// never shares a Mat with the worker.
type Acquirer struct {
	open Opener
	log  logrus.FieldLogger

	mu       sync.Mutex
	deviceID int
	slot     *gocv.Mat
	seq      uint64
	dropped  uint64
	fps      int
	running  bool

	onSwitched func(deviceID int, ok bool)

	errs     chan error
	switchCh chan int
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// AcquirerOption configures an Acquirer.
type AcquirerOption func(*Acquirer)

// WithAcquirerLogger sets the logger. The default discards output.
func WithAcquirerLogger(log logrus.FieldLogger) AcquirerOption {
	return func(a *Acquirer) { a.log = log }
}

// NewAcquirer creates an acquirer for deviceID. Cameras are created with open.
func NewAcquirer(open Opener, deviceID int, opts ...AcquirerOption) *Acquirer {
	a := &Acquirer{
		open:     open,
		deviceID: deviceID,
		fps:      DefaultFPS,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logging.OrDiscard(a.log)
	return a
}

// OnSwitched registers the callback run on the worker goroutine after a Switch.
func (a *Acquirer) OnSwitched(fn func(deviceID int, ok bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onSwitched = fn
}

// Start launches the worker. The camera is opened on the worker, and an open
// failure is reported on Errors like any other terminal failure.
func (a *Acquirer) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrAcquirerRunning
	}

	a.errs = make(chan error, 1)
	a.switchCh = make(chan int, 1)
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	a.running = true

	go a.run(a.deviceID, a.stopCh, a.doneCh)
	return nil
}

// Stop halts the worker, releases the camera and drops any pending frame.
func (a *Acquirer) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.stopCh)
	done := a.doneCh
	a.mu.Unlock()

	<-done

	a.mu.Lock()
	if a.slot != nil {
		a.slot.Close()
		a.slot = nil
	}
	a.mu.Unlock()
}

// Running reports whether the worker has been started and not stopped.
func (a *Acquirer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Errors delivers at most one terminal error per Start. The worker has
// exited and released the camera when it arrives.
func (a *Acquirer) Errors() <-chan error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.errs
}

// Latest takes the newest frame, if one arrived since the last call.
// The caller owns the returned Mat.
func (a *Acquirer) Latest() (frame *gocv.Mat, seq uint64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.slot == nil {
		return nil, 0, false
	}
	frame, a.slot = a.slot, nil
	return frame, a.seq, true
}

// Switch asks the worker to reopen on another device. A pending request not
// yet served is replaced.
func (a *Acquirer) Switch(deviceID int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		a.deviceID = deviceID
		return
	}
	select {
	case <-a.switchCh:
	default:
	}
	a.switchCh <- deviceID
}

// DeviceID returns the device in use, or to be used by the next Start.
func (a *Acquirer) DeviceID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deviceID
}

// FPS returns the frame rate reported by the open camera.
func (a *Acquirer) FPS() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fps
}

// Dropped returns how many frames were replaced before being taken.
func (a *Acquirer) Dropped() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

func (a *Acquirer) run(deviceID int, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	cam, err := a.openCamera(deviceID)
	if err != nil {
		a.fail(err)
		return
	}
	defer func() {
		if err := cam.Close(); err != nil {
			a.log.WithError(err).Warn("closing camera")
		}
	}()

	ticker := time.NewTicker(frameInterval(cam.FPS()))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case id := <-a.switchCh:
			next, ok := a.switchCamera(cam, id)
			cam = next
			ticker.Reset(frameInterval(cam.FPS()))
			a.switched(id, ok)
		case <-ticker.C:
			frame, err := cam.ReadFrame()
			if err != nil {
				a.fail(err)
				return
			}
			a.publish(frame)
		}
	}
}

func (a *Acquirer) openCamera(deviceID int) (Camera, error) {
	cam := a.open(deviceID)
	if err := cam.Open(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.deviceID = deviceID
	a.fps = cam.FPS()
	a.mu.Unlock()

	a.log.WithFields(logrus.Fields{"device": deviceID, "fps": cam.FPS()}).Info("camera opened")
	return cam, nil
}

// switchCamera closes cur and opens id. On failure the previous device is reopened.
func (a *Acquirer) switchCamera(cur Camera, id int) (Camera, bool) {
	prev := a.DeviceID()
	if err := cur.Close(); err != nil {
		a.log.WithError(err).Warn("closing camera")
	}

	next, err := a.openCamera(id)
	if err == nil {
		return next, true
	}
	a.log.WithError(err).WithField("device", id).Warn("camera switch failed")

	if err := cur.Open(); err != nil {
		a.log.WithError(err).WithField("device", prev).Error("reopening previous camera")
	}
	return cur, false
}

func (a *Acquirer) switched(id int, ok bool) {
	a.mu.Lock()
	fn := a.onSwitched
	a.mu.Unlock()
	if fn != nil {
		fn(id, ok)
	}
}

func (a *Acquirer) publish(frame *gocv.Mat) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.slot != nil {
		a.slot.Close()
		a.dropped++
	}
	a.slot = frame
	a.seq++
}

func (a *Acquirer) fail(err error) {
	a.log.WithError(err).Error("frame acquisition stopped")
	select {
	case a.errs <- err:
	default:
	}
}

func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return time.Second / time.Duration(fps)
}
