package command

import (
	"sync"
	"time"

	"github.com/auricle-ai/auricle/pkg/audio"
)

// minUtteranceDuration is the shortest recording that counts as speech.
// Anything shorter is almost always a breath or a chair creak that crossed
// the threshold.
const minUtteranceDuration = time.Second

// EndReason explains why a capture finished.
type EndReason string

const (
	// EndSilence means the silence window elapsed.
	EndSilence EndReason = "silence"
	// EndMaxDuration means the recording ceiling was hit.
	EndMaxDuration EndReason = "max_duration"
	// EndStopped means the caller aborted the capture.
	EndStopped EndReason = "stopped"
)

// Utterance is one completed command recording.
type Utterance struct {
	// Samples is the captured mono PCM, spanning the first above-threshold
	// frame through the closing silence. Quiet before voice onset is not
	// recorded.
	Samples []int16

	// SampleRate is the capture rate in Hz.
	SampleRate int

	// Duration is the audio length of the recording.
	Duration time.Duration

	// VoiceFrames counts frames whose RMS cleared the threshold.
	VoiceFrames int

	// Reason explains why the capture ended.
	Reason EndReason
}

// Empty reports whether the recording contains no usable speech: too few
// voiced frames, or a total length under a second.
func (u Utterance) Empty(minVoiceFrames int) bool {
	return u.VoiceFrames < minVoiceFrames || u.Duration < minUtteranceDuration
}

// CaptureConfig bounds one recording.
type CaptureConfig struct {
	// SilenceWindow ends the capture after this much continuous
	// sub-threshold audio.
	SilenceWindow time.Duration

	// MaxDuration is the hard recording ceiling.
	MaxDuration time.Duration

	// MinVoiceFrames is the voiced-frame count below which the recording is
	// considered empty.
	MinVoiceFrames int
}

// Capture records one utterance. It implements audio.Consumer: attach it to
// the router after a wake trigger, then wait on Done.
//
// A capture starts in a waiting phase: frames are discarded and the silence
// window does not run, so a user who pauses after the wake word keeps the
// full MaxDuration to start speaking. The first above-threshold frame begins
// the recording; from then on every frame is buffered and sustained quiet
// ends the utterance.
//
// The speech threshold is read from the calibration on every frame, so a
// sensitivity change takes effect mid-recording without restarting the
// capture. Time is accounted in audio duration, not wall-clock time, so a
// stalled source pauses the silence window instead of expiring it.
type Capture struct {
	cfg CaptureConfig
	cal *Calibration

	mu          sync.Mutex
	samples     []int16
	sampleRate  int
	recording   bool
	elapsed     time.Duration // audio time since attach, bounds MaxDuration
	recorded    time.Duration // audio time since voice onset
	silence     time.Duration
	voiceFrames int
	finished    bool

	done chan Utterance
}

// NewCapture returns a Capture that detects speech against the calibrated
// threshold.
func NewCapture(cal *Calibration, cfg CaptureConfig) *Capture {
	return &Capture{
		cfg:  cfg,
		cal:  cal,
		done: make(chan Utterance, 1),
	}
}

// Done returns a channel that yields the completed utterance exactly once.
func (c *Capture) Done() <-chan Utterance { return c.done }

// Consume implements audio.Consumer.
func (c *Capture) Consume(f audio.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}

	c.elapsed += f.Duration()
	voiced := audio.RMS(f.Samples) >= c.cal.Current().Threshold

	if !c.recording {
		if !voiced {
			// Waiting for speech: nothing is buffered and only the hard
			// ceiling can end the wait.
			if c.elapsed >= c.cfg.MaxDuration {
				c.finishLocked(EndMaxDuration)
			}
			return
		}
		c.recording = true
	}

	c.samples = append(c.samples, f.Samples...)
	c.sampleRate = f.SampleRate
	c.recorded += f.Duration()

	if voiced {
		c.voiceFrames++
		c.silence = 0
	} else {
		c.silence += f.Duration()
	}

	switch {
	case c.silence >= c.cfg.SilenceWindow:
		c.finishLocked(EndSilence)
	case c.elapsed >= c.cfg.MaxDuration:
		c.finishLocked(EndMaxDuration)
	}
}

// Stop aborts the capture, emitting whatever was recorded so far with
// EndStopped. Safe to call after the capture already finished.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finished {
		c.finishLocked(EndStopped)
	}
}

func (c *Capture) finishLocked(reason EndReason) {
	c.finished = true
	c.done <- Utterance{
		Samples:     c.samples,
		SampleRate:  c.sampleRate,
		Duration:    c.recorded,
		VoiceFrames: c.voiceFrames,
		Reason:      reason,
	}
}
