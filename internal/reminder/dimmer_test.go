package reminder

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestDimmer_Advance(t *testing.T) {
	d, err := NewDimmer(Options{}, t0)
	if err != nil {
		t.Fatalf("NewDimmer() error = %v", err)
	}

	tests := []struct {
		name    string
		at      time.Duration
		want    int
		changed bool
	}{
		{"before delay", 4 * time.Second, 0, false},
		{"delay reached", 5 * time.Second, 3, true},
		{"same step", 5*time.Second + 49*time.Millisecond, 3, false},
		{"next step", 5*time.Second + 50*time.Millisecond, 6, true},
		{"one second in", 6 * time.Second, 63, true},
		{"saturated", 10 * time.Second, DefaultMaxOpacity, true},
		{"stays saturated", 20 * time.Second, DefaultMaxOpacity, false},
	}

	for _, tt := range tests {
		got, changed := d.Advance(t0.Add(tt.at))
		if got != tt.want || changed != tt.changed {
			t.Errorf("%s: Advance() = (%d, %v), want (%d, %v)", tt.name, got, changed, tt.want, tt.changed)
		}
	}
	if !d.Saturated() {
		t.Error("Saturated() = false at max opacity")
	}
}

func TestDimmer_Reset(t *testing.T) {
	d, _ := NewDimmer(Options{Delay: 2 * time.Second}, t0)
	d.Advance(t0.Add(3 * time.Second))
	if d.Opacity() == 0 {
		t.Fatal("expected the dim to have started")
	}

	blink := t0.Add(3 * time.Second)
	d.Reset(blink)
	if d.Opacity() != 0 || d.Saturated() {
		t.Errorf("after Reset opacity = %d", d.Opacity())
	}
	if got, _ := d.Advance(blink.Add(1500 * time.Millisecond)); got != 0 {
		t.Errorf("Advance() within the new delay = %d, want 0", got)
	}
}

func TestDimmer_Delay(t *testing.T) {
	for _, delay := range []time.Duration{500 * time.Millisecond, 16 * time.Second, -time.Second} {
		if _, err := NewDimmer(Options{Delay: delay}, t0); !errors.Is(err, ErrInvalidDelay) {
			t.Errorf("NewDimmer(delay %v) error = %v, want ErrInvalidDelay", delay, err)
		}
	}

	d, _ := NewDimmer(Options{}, t0)
	if err := d.SetDelay(20 * time.Second); !errors.Is(err, ErrInvalidDelay) {
		t.Errorf("SetDelay(20s) error = %v", err)
	}
	if err := d.SetDelay(MaxDelay); err != nil {
		t.Fatalf("SetDelay(max) error = %v", err)
	}
	if got, _ := d.Advance(t0.Add(10 * time.Second)); got != 0 {
		t.Errorf("Advance() = %d, want 0 with a 15s timer", got)
	}
}

func TestDimmer_CustomRamp(t *testing.T) {
	d, _ := NewDimmer(Options{MaxOpacity: 10, Step: 4, StepInterval: time.Second, Delay: time.Second}, t0)
	var got []int
	for s := 1; s <= 4; s++ {
		o, _ := d.Advance(t0.Add(time.Duration(s) * time.Second))
		got = append(got, o)
	}
	want := []int{4, 8, 10, 10}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ramp = %v, want %v", got, want)
		}
	}
}
