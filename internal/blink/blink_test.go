package blink

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/neurablink/internal/calibrate"
	"github.com/ayusman/neurablink/internal/extractor"
	"github.com/ayusman/neurablink/testdata"
)

// scripted returns a fixed sequence of changes, one per Compute call.
type scripted struct {
	changes []extractor.Change
	calls   int
}

func (s *scripted) Kind() extractor.Kind { return "scripted" }

func (s *scripted) Compute([]extractor.Frame) extractor.Change {
	c := s.changes[s.calls%len(s.changes)]
	s.calls++
	return c
}

func newCalibrator(t *testing.T, kind calibrate.Kind, opts calibrate.Options) calibrate.Calibrator {
	t.Helper()
	c, err := calibrate.New(kind, opts)
	if err != nil {
		t.Fatalf("calibrate.New() error = %v", err)
	}
	return c
}

func TestDetector_OneTimeScenario(t *testing.T) {
	ex := &scripted{changes: []extractor.Change{{1}, {2}, {3}, {4}, {10}}}
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(ex, newCalibrator(t, calibrate.KindOneTime, calibrate.Options{BufferSize: 4, Quantile: 0.75}),
		WithClock(func() time.Time { return at }))

	var events []Event
	d.Subscribe(func(ev Event) { events = append(events, ev) })

	want := []bool{false, false, false, false, true}
	for i, w := range want {
		frames := []extractor.Frame{{Seq: uint64(i)}, {Seq: uint64(i + 1)}}
		if got := d.Detect(frames); got != w {
			t.Errorf("Detect #%d = %v, want %v", i+1, got, w)
		}
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Seq != 5 || ev.Change != 10 || math.Abs(ev.Threshold-3.25) > 1e-9 || !ev.At.Equal(at) {
		t.Errorf("event = %+v", ev)
	}
	if d.State() != Calibrated {
		t.Errorf("State() = %v, want calibrated", d.State())
	}
	if !reflect.DeepEqual(d.LastChange(), extractor.Change{10}) {
		t.Errorf("LastChange() = %v", d.LastChange())
	}
}

func TestDetector_NeverFiresUncalibrated(t *testing.T) {
	ex := &scripted{changes: []extractor.Change{{0}, {1e6}, {0, 5}}}
	d := NewDetector(ex, newCalibrator(t, calibrate.KindContinuous, calibrate.Options{BufferSize: 100, Quantile: 0.5}))

	fired := 0
	d.Subscribe(func(Event) { fired++ })

	for i := 0; i < 99; i++ {
		if d.Detect(nil) {
			t.Fatalf("Detect #%d fired while uncalibrated", i+1)
		}
		if d.State() != Uncalibrated {
			t.Fatalf("State() = %v at tick %d", d.State(), i+1)
		}
	}
	if fired != 0 {
		t.Errorf("fired = %d, want 0", fired)
	}
}

func TestDetector_PeriodicReturnsToUncalibrated(t *testing.T) {
	ex := &scripted{changes: []extractor.Change{{1}}}
	d := NewDetector(ex, newCalibrator(t, calibrate.KindPeriodic,
		calibrate.Options{BufferSize: 3, Quantile: 0.5, EveryNthFrame: 5}))

	states := make([]State, 0, 7)
	for i := 0; i < 7; i++ {
		d.Detect(nil)
		states = append(states, d.State())
	}

	want := []State{Uncalibrated, Uncalibrated, Calibrated, Calibrated, Calibrated, Uncalibrated, Uncalibrated}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
}

func TestDetector_Reset(t *testing.T) {
	ex := &scripted{changes: []extractor.Change{{1}, {2}}}
	d := NewDetector(ex, newCalibrator(t, calibrate.KindOneTime, calibrate.Options{BufferSize: 2, Quantile: 0.5}))
	d.Detect(nil)
	d.Detect(nil)
	if d.State() != Calibrated {
		t.Fatalf("State() = %v, want calibrated", d.State())
	}

	d.Reset()
	if d.State() != Uncalibrated || !math.IsInf(d.Threshold(), -1) || d.Calibration().Len() != 0 {
		t.Errorf("Reset() left state=%v threshold=%v len=%d", d.State(), d.Threshold(), d.Calibration().Len())
	}
}

func TestNotifier(t *testing.T) {
	var n Notifier
	var a, b int
	unsubA := n.Subscribe(func(Event) { a++ })
	n.Subscribe(func(Event) { b++ })

	n.notify(Event{})
	unsubA()
	unsubA()
	n.notify(Event{})

	if a != 1 || b != 2 {
		t.Errorf("a=%d b=%d, want 1 and 2", a, b)
	}
	if n.Subscribers() != 1 {
		t.Errorf("Subscribers() = %d, want 1", n.Subscribers())
	}
}

func TestQuantileFor(t *testing.T) {
	prev := 1.0
	for level := MinSensitivity; level <= MaxSensitivity; level++ {
		q, err := QuantileFor(level)
		if err != nil {
			t.Fatalf("QuantileFor(%d) error = %v", level, err)
		}
		if q >= prev {
			t.Errorf("QuantileFor(%d) = %v, want below %v", level, q, prev)
		}
		prev = q
	}
	if q, _ := QuantileFor(DefaultSensitivity); q != 0.945 {
		t.Errorf("default quantile = %v, want 0.945", q)
	}
	for _, level := range []int{0, 6, -1} {
		if _, err := QuantileFor(level); !errors.Is(err, ErrInvalidSensitivity) {
			t.Errorf("QuantileFor(%d) error = %v", level, err)
		}
	}
}

func TestPipe_SteadyState(t *testing.T) {
	ex := &scripted{changes: []extractor.Change{{0}}}
	d := NewDetector(ex, newCalibrator(t, calibrate.KindContinuous, calibrate.Options{BufferSize: 2, Quantile: 0.5}))

	for _, size := range []int{2, 3} {
		p := NewPipe(d, size)
		for i := 1; i <= 10; i++ {
			_, evaluated := p.Push(extractor.Frame{Seq: uint64(i)})
			if want := i >= size; evaluated != want {
				t.Errorf("size %d push %d: evaluated = %v, want %v", size, i, evaluated, want)
			}
			if p.Len() >= size {
				t.Fatalf("size %d push %d: window holds %d frames", size, i, p.Len())
			}
		}
		p.Close()
		if p.Len() != 0 {
			t.Errorf("Len() after Close = %d", p.Len())
		}
	}

	if got := NewPipe(d, 0).Size(); got != DefaultWindowSize {
		t.Errorf("Size() = %d, want %d", got, DefaultWindowSize)
	}
}

func runScript(t *testing.T, script []testdata.Blink) []bool {
	t.Helper()
	ex, err := extractor.New(extractor.KindVertical, extractor.Options{})
	if err != nil {
		t.Fatal(err)
	}
	d := NewDetector(ex, newCalibrator(t, calibrate.KindContinuous, calibrate.Options{BufferSize: 10, Quantile: 0.9}))
	p := NewPipe(d, DefaultWindowSize)
	defer p.Close()

	out := make([]bool, 0, len(script))
	for i, eyes := range testdata.Landmarks(script) {
		blink, evaluated := p.Push(extractor.Frame{Seq: uint64(i + 1), Eyes: eyes})
		if evaluated {
			out = append(out, blink)
		}
	}
	return out
}

func TestPipe_Idempotent(t *testing.T) {
	script := testdata.BlinkScript(80, 30, 31, 60)

	first := runScript(t, script)
	second := runScript(t, script)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("event sequences differ:\n%v\n%v", first, second)
	}

	blinks := 0
	for i, b := range first {
		if b {
			blinks++
			// Evaluation i covers frames i and i+1 (0-based); only lid transitions move.
			if i != 29 && i != 31 && i != 59 && i != 60 {
				t.Errorf("unexpected blink at evaluation %d", i)
			}
		}
	}
	if blinks == 0 {
		t.Error("expected at least one blink")
	}
}

// firstMean records the mean of the oldest frame's image at each evaluation.
type firstMean struct {
	means []float64
}

func (f *firstMean) Kind() extractor.Kind { return "first-mean" }

func (f *firstMean) Compute(frames []extractor.Frame) extractor.Change {
	f.means = append(f.means, frames[0].Image.Mean().Val1)
	return extractor.Change{0}
}

func TestPipe_SnapshotsFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	ex := &firstMean{}
	d := NewDetector(ex, newCalibrator(t, calibrate.KindOneTime, calibrate.Options{BufferSize: 1, Quantile: 0.5}))
	p := NewPipe(d, 2)
	defer p.Close()

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(50, 50, 50, 0), 4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()

	p.Push(extractor.Frame{Seq: 1, Image: frame})
	// The caller paints on its own frame after handing it over.
	frame.SetTo(gocv.NewScalar(200, 200, 200, 0))
	p.Push(extractor.Frame{Seq: 2, Image: frame})

	if len(ex.means) != 1 || ex.means[0] != 50 {
		t.Errorf("buffered frame means = %v, want [50]", ex.means)
	}
}
