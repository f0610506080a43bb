// Package audio defines the core audio transport types for the Auricle
// pipeline: the Frame unit, the Source/Player device interfaces, and the
// Router that enforces the single-active-consumer invariant.
//
// Frames are the atomic unit of audio transport — captured from the input
// device, measured for energy, fed to the wake recognizer or the command
// capture buffer depending on the pipeline state. A Frame is immutable once
// produced; consumers must not retain or mutate its sample slice beyond the
// Consume call that delivered it.
package audio

import (
	"math"
	"time"
)

// Frame represents a single fixed-size chunk of microphone audio.
type Frame struct {
	// Samples holds signed 16-bit PCM, mono. Treat as read-only.
	Samples []int16

	// SampleRate in Hz (e.g., 16000 for speech recognition input).
	SampleRate int

	// Seq is a monotonically increasing sequence index assigned by the
	// producing Source. Wraps only after 2^64 frames.
	Seq uint64
}

// Duration returns the frame length as audio time. Returns 0 when the
// sample rate is unset.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// RMS computes the root-mean-square energy of 16-bit PCM samples,
// normalised to [0, 1]. An empty slice yields 0.
//
// The same measure is used for noise-floor calibration, voice-activity
// segmentation, and the per-frame level telemetry, so all thresholds in the
// pipeline are directly comparable.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) / 32768.0
}
