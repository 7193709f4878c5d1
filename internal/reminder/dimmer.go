// Package reminder dims the screen progressively when the user has not
// blinked for a while, and lifts the dim on the next blink.
package reminder

import (
	"errors"
	"fmt"
	"time"
)

// Defaults for a Dimmer.
const (
	DefaultMaxOpacity   = 155
	DefaultStep         = 3
	DefaultStepInterval = 50 * time.Millisecond
	DefaultDelay        = 5 * time.Second

	MinDelay = 1 * time.Second
	MaxDelay = 15 * time.Second
)

// ErrInvalidDelay is returned for a blink timer outside MinDelay..MaxDelay.
var ErrInvalidDelay = errors.New("blink timer out of range")

// Options configures a Dimmer. Zero fields take the defaults.
type Options struct {
	MaxOpacity   int
	Step         int
	StepInterval time.Duration
	Delay        time.Duration
}

// Dimmer tracks the overlay opacity. Opacity stays 0 for Delay after the
// last Reset, then rises by Step every StepInterval up to MaxOpacity.
// It keeps no timers; the caller drives it with Advance.
//
// Dimmer is not safe for concurrent use.
type Dimmer struct {
	opts    Options
	since   time.Time
	opacity int
}

// CheckDelay validates a blink timer value.
func CheckDelay(d time.Duration) error {
	if d < MinDelay || d > MaxDelay {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidDelay, d, MinDelay, MaxDelay)
	}
	return nil
}

// NewDimmer creates a Dimmer whose countdown starts at now.
func NewDimmer(opts Options, now time.Time) (*Dimmer, error) {
	if opts.MaxOpacity <= 0 {
		opts.MaxOpacity = DefaultMaxOpacity
	}
	if opts.Step <= 0 {
		opts.Step = DefaultStep
	}
	if opts.StepInterval <= 0 {
		opts.StepInterval = DefaultStepInterval
	}
	if opts.Delay == 0 {
		opts.Delay = DefaultDelay
	}
	if err := CheckDelay(opts.Delay); err != nil {
		return nil, err
	}
	return &Dimmer{opts: opts, since: now}, nil
}

// Advance computes the opacity at now and reports whether it changed since the last call.
func (d *Dimmer) Advance(now time.Time) (opacity int, changed bool) {
	next := d.opacityAt(now)
	changed = next != d.opacity
	d.opacity = next
	return next, changed
}

func (d *Dimmer) opacityAt(now time.Time) int {
	elapsed := now.Sub(d.since) - d.opts.Delay
	if elapsed < 0 {
		return 0
	}
	steps := int(elapsed/d.opts.StepInterval) + 1
	return min(d.opts.MaxOpacity, steps*d.opts.Step)
}

// Reset restarts the countdown at now and clears the dim.
func (d *Dimmer) Reset(now time.Time) {
	d.since = now
	d.opacity = 0
}

// SetDelay changes the blink timer. The running countdown keeps its start.
func (d *Dimmer) SetDelay(delay time.Duration) error {
	if err := CheckDelay(delay); err != nil {
		return err
	}
	d.opts.Delay = delay
	return nil
}

// Delay returns the blink timer.
func (d *Dimmer) Delay() time.Duration { return d.opts.Delay }

// Opacity returns the opacity computed by the last Advance.
func (d *Dimmer) Opacity() int { return d.opacity }

// MaxOpacity returns the saturation level.
func (d *Dimmer) MaxOpacity() int { return d.opts.MaxOpacity }

// Saturated reports whether the dim has reached MaxOpacity.
func (d *Dimmer) Saturated() bool { return d.opacity >= d.opts.MaxOpacity }
