// Package pid implements a discrete PID controller with a fixed sample
// period, proportional-on-error and derivative-on-measurement.
//
// The sample period is a constant of the controller, not a measured wall
// clock interval, so replaying the same inputs always yields the same
// outputs.
package pid

import (
	"errors"
	"time"
)

var (
	ErrLimits  = errors.New("top limit should not be below bottom limit")
	ErrTunings = errors.New("all kP, kI, kD tunings should be positive")
	ErrPeriod  = errors.New("sample period should be positive")
)

// PID is a single control loop. Not safe for concurrent use.
type PID struct {
	kP float64
	kI float64 // scaled by the sample period
	kD float64 // scaled by the sample period

	period time.Duration

	bottomLimit float64
	topLimit    float64

	iTerm     float64
	lastInput float64
	output    float64

	initialized bool
}

// New returns a controller with the given tunings, output limits and sample
// period.
func New(kP, kI, kD, bottomLimit, topLimit float64, period time.Duration) (*PID, error) {
	if period <= 0 {
		return nil, ErrPeriod
	}
	p := &PID{period: period}
	if err := p.SetLimits(bottomLimit, topLimit); err != nil {
		return nil, err
	}
	if err := p.SetTunings(kP, kI, kD); err != nil {
		return nil, err
	}
	return p, nil
}

// Compute runs one sample and returns the clamped output.
func (p *PID) Compute(input, setpoint float64) float64 {
	if !p.initialized {
		// Bumpless start: derivative kick suppressed on the first sample.
		p.lastInput = input
		p.iTerm = p.clamp(p.output)
		p.initialized = true
	}

	err := setpoint - input
	p.iTerm = p.clamp(p.iTerm + p.kI*err)

	dInput := input - p.lastInput
	p.output = p.clamp(p.kP*err + p.iTerm - p.kD*dInput)
	p.lastInput = input
	return p.output
}

// Output returns the most recent output.
func (p *PID) Output() float64 {
	return p.output
}

// SetTunings changes the gains. Gains are given per second and scaled to the
// sample period internally.
func (p *PID) SetTunings(kP, kI, kD float64) error {
	if kP < 0 || kI < 0 || kD < 0 {
		return ErrTunings
	}
	secs := p.period.Seconds()
	p.kP, p.kI, p.kD = kP, kI*secs, kD/secs
	return nil
}

// Tunings returns the gains in per-second units.
func (p *PID) Tunings() (kP, kI, kD float64) {
	secs := p.period.Seconds()
	return p.kP, p.kI / secs, p.kD * secs
}

// SetLimits changes the output range and clamps the current state into it.
func (p *PID) SetLimits(bottomLimit, topLimit float64) error {
	if topLimit < bottomLimit {
		return ErrLimits
	}
	p.bottomLimit, p.topLimit = bottomLimit, topLimit
	p.output = p.clamp(p.output)
	p.iTerm = p.clamp(p.iTerm)
	return nil
}

// Limits returns the output range.
func (p *PID) Limits() (bottom, top float64) {
	return p.bottomLimit, p.topLimit
}

// Reset clears accumulated state; the next Compute starts bumpless from the
// given output.
func (p *PID) Reset(output float64) {
	p.output = p.clamp(output)
	p.iTerm = 0
	p.initialized = false
}

func (p *PID) clamp(v float64) float64 {
	if v > p.topLimit {
		return p.topLimit
	}
	if v < p.bottomLimit {
		return p.bottomLimit
	}
	return v
}
