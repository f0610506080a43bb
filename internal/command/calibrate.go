// Package command implements ambient noise calibration and command capture,
// the two stages that turn raw microphone frames into a complete spoken
// utterance.
//
// Calibration samples ambient audio to establish a noise floor, then derives
// the speech threshold from it using the configured sensitivity. Capture
// records frames after a wake trigger until the speaker falls silent, the
// recording hits its ceiling, or the caller stops it.
package command

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/auricle-ai/auricle/pkg/audio"
)

// calibrationError is a sentinel error type for calibration failures.
type calibrationError string

func (e calibrationError) Error() string { return string(e) }

// ErrCalibrationFailed indicates ambient sampling produced no usable audio.
const ErrCalibrationFailed = calibrationError("command: calibration failed")

// minMultiplier is the floor for the sensitivity-derived threshold
// multiplier, so even the most sensitive setting keeps the threshold above
// the noise floor.
const minMultiplier = 0.5

// SensitivityMultiplier maps the 1-10 sensitivity scale to the factor
// applied to the noise floor. Higher sensitivity gives a smaller multiplier,
// so quieter speech clears the threshold.
func SensitivityMultiplier(sensitivity int) float64 {
	m := float64(11-sensitivity) * 0.3
	return math.Max(m, minMultiplier)
}

// Profile is one calibration result. Threshold is always NoiseFloor times
// Multiplier; [NewProfile] is the only constructor, which keeps that
// relationship intact.
type Profile struct {
	// NoiseFloor is the mean ambient RMS on a [0, 1] scale.
	NoiseFloor float64

	// Multiplier is the sensitivity-derived factor.
	Multiplier float64

	// Threshold is the speech detection level: NoiseFloor * Multiplier.
	Threshold float64

	// MeasuredAt is when calibration completed.
	MeasuredAt time.Time
}

// NewProfile derives a Profile from a measured noise floor and sensitivity.
func NewProfile(noiseFloor float64, sensitivity int) Profile {
	m := SensitivityMultiplier(sensitivity)
	return Profile{
		NoiseFloor: noiseFloor,
		Multiplier: m,
		Threshold:  noiseFloor * m,
		MeasuredAt: time.Now(),
	}
}

// Calibration publishes the active Profile to the capture path. Readers see
// a consistent snapshot without locking; writers swap the whole profile
// atomically.
type Calibration struct {
	current atomic.Pointer[Profile]
}

// NewCalibration returns a Calibration seeded with a conservative default
// profile so capture works before the first calibration pass completes.
func NewCalibration(sensitivity int) *Calibration {
	c := &Calibration{}
	p := NewProfile(0.02, sensitivity)
	c.current.Store(&p)
	return c
}

// Current returns the active profile.
func (c *Calibration) Current() Profile {
	return *c.current.Load()
}

// Set replaces the active profile.
func (c *Calibration) Set(p Profile) {
	c.current.Store(&p)
}

// Calibrator measures the ambient noise floor by consuming frames for a
// fixed window.
type Calibrator struct {
	sensitivity int
	duration    time.Duration
}

// NewCalibrator returns a Calibrator that samples ambient audio for the
// given duration.
func NewCalibrator(sensitivity int, duration time.Duration) *Calibrator {
	return &Calibrator{sensitivity: sensitivity, duration: duration}
}

// Run attaches a sampling consumer to the router, collects frames for the
// calibration window, and returns the derived profile. The previously
// attached consumer is restored before Run returns. Run fails with
// ErrCalibrationFailed when the window produced no frames.
func (cal *Calibrator) Run(ctx context.Context, router *audio.Router) (Profile, error) {
	sampler := &rmsSampler{}
	prev := router.Attach(sampler)
	defer router.Attach(prev)

	select {
	case <-ctx.Done():
		return Profile{}, ctx.Err()
	case <-time.After(cal.duration):
	}

	mean, n := sampler.mean()
	if n == 0 {
		return Profile{}, fmt.Errorf("%w: no frames in %s window", ErrCalibrationFailed, cal.duration)
	}
	return NewProfile(mean, cal.sensitivity), nil
}

// rmsSampler accumulates per-frame RMS values.
type rmsSampler struct {
	mu    sync.Mutex
	sum   float64
	count int
}

// Consume implements audio.Consumer.
func (s *rmsSampler) Consume(f audio.Frame) {
	rms := audio.RMS(f.Samples)
	s.mu.Lock()
	s.sum += rms
	s.count++
	s.mu.Unlock()
}

func (s *rmsSampler) mean() (float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return 0, 0
	}
	return s.sum / float64(s.count), s.count
}
