// Package portaudio implements the audio.Source and audio.Player interfaces
// on top of PortAudio, giving Auricle direct access to the local microphone
// and speakers without an intermediate daemon.
//
// PortAudio is initialised lazily on the first stream open and terminated
// when the last stream closes; callers never touch the library directly.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/auricle-ai/auricle/pkg/audio"
)

// paInit reference-counts PortAudio initialisation across concurrently open
// streams (one capture source plus one player is the common case).
var paInit struct {
	mu   sync.Mutex
	refs int
}

func acquirePortAudio() error {
	paInit.mu.Lock()
	defer paInit.mu.Unlock()
	if paInit.refs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("portaudio: initialize: %w", err)
		}
	}
	paInit.refs++
	return nil
}

func releasePortAudio() {
	paInit.mu.Lock()
	defer paInit.mu.Unlock()
	if paInit.refs == 0 {
		return
	}
	paInit.refs--
	if paInit.refs == 0 {
		if err := portaudio.Terminate(); err != nil {
			slog.Warn("portaudio: terminate failed", "err", err)
		}
	}
}

// Compile-time check that *Source satisfies audio.Source.
var _ audio.Source = (*Source)(nil)

// Source captures fixed-size PCM frames from a microphone.
//
// The stream callback runs on PortAudio's realtime thread; it copies samples
// into a fresh Frame and performs a non-blocking send. When the pipeline
// falls behind, frames are dropped at the source rather than stalling the
// device — a full channel means the consumer is already seconds behind and
// stale audio is worthless for wake detection.
type Source struct {
	sampleRate  int
	chunkFrames int
	deviceHint  string

	mu      sync.Mutex
	stream  *portaudio.Stream
	started bool
	stopped bool

	frames chan audio.Frame
	errs   chan error
	seq    uint64

	// lastFrame feeds the stall watchdog.
	lastFrame     time.Time
	lastFrameMu   sync.Mutex
	watchdogStop  chan struct{}
	watchdogDone  chan struct{}
	releaseOnStop bool
}

// Option configures a Source.
type Option func(*Source)

// WithDevice selects the input device by case-insensitive name substring.
// When empty (default), the system default input device is used.
func WithDevice(nameHint string) Option {
	return func(s *Source) { s.deviceHint = nameHint }
}

// NewSource creates a Source that will capture mono 16-bit PCM at sampleRate
// in chunks of chunkFrames samples. The device is not opened until Start.
func NewSource(sampleRate, chunkFrames int, opts ...Option) (*Source, error) {
	if sampleRate <= 0 {
		return nil, errors.New("portaudio: sampleRate must be positive")
	}
	if chunkFrames <= 0 {
		return nil, errors.New("portaudio: chunkFrames must be positive")
	}
	s := &Source{
		sampleRate:  sampleRate,
		chunkFrames: chunkFrames,
		frames:      make(chan audio.Frame, 32),
		errs:        make(chan error, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Start implements audio.Source.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("portaudio: source already started")
	}
	if s.stopped {
		return errors.New("portaudio: source is spent, create a new one")
	}

	if err := acquirePortAudio(); err != nil {
		return fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}
	s.releaseOnStop = true

	dev, err := s.pickDevice()
	if err != nil {
		releasePortAudio()
		s.releaseOnStop = false
		return err
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(s.sampleRate)
	params.FramesPerBuffer = s.chunkFrames

	stream, err := portaudio.OpenStream(params, s.capture)
	if err != nil {
		releasePortAudio()
		s.releaseOnStop = false
		return fmt.Errorf("%w: open stream on %q: %v", audio.ErrDeviceUnavailable, dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		releasePortAudio()
		s.releaseOnStop = false
		return fmt.Errorf("%w: start stream: %v", audio.ErrDeviceUnavailable, err)
	}

	s.stream = stream
	s.started = true
	s.touch()
	s.watchdogStop = make(chan struct{})
	s.watchdogDone = make(chan struct{})
	go s.watchdog(ctx)

	slog.Info("audio capture started",
		"device", dev.Name,
		"sample_rate", s.sampleRate,
		"chunk_frames", s.chunkFrames,
	)
	return nil
}

// capture is the PortAudio stream callback.
func (s *Source) capture(in []int16) {
	samples := make([]int16, len(in))
	copy(samples, in)
	s.seq++
	f := audio.Frame{Samples: samples, SampleRate: s.sampleRate, Seq: s.seq}
	s.touch()
	select {
	case s.frames <- f:
	default:
		// Consumer stalled; drop rather than block the realtime thread.
	}
}

func (s *Source) touch() {
	s.lastFrameMu.Lock()
	s.lastFrame = time.Now()
	s.lastFrameMu.Unlock()
}

// watchdog reports the device as lost when no frame arrives for far longer
// than a frame period. PortAudio does not deliver disconnect notifications
// for all host APIs, so a silent stream is the only observable symptom.
func (s *Source) watchdog(ctx context.Context) {
	defer close(s.watchdogDone)

	framePeriod := time.Duration(float64(s.chunkFrames) / float64(s.sampleRate) * float64(time.Second))
	stall := 50 * framePeriod
	if stall < time.Second {
		stall = time.Second
	}

	ticker := time.NewTicker(stall / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.watchdogStop:
			return
		case <-ticker.C:
			s.lastFrameMu.Lock()
			idle := time.Since(s.lastFrame)
			s.lastFrameMu.Unlock()
			if idle > stall {
				select {
				case s.errs <- fmt.Errorf("%w: no frames for %s", audio.ErrDeviceUnavailable, idle.Round(time.Millisecond)):
				default:
				}
				return
			}
		}
	}
}

// Frames implements audio.Source.
func (s *Source) Frames() <-chan audio.Frame { return s.frames }

// Errors implements audio.Source.
func (s *Source) Errors() <-chan error { return s.errs }

// Stop implements audio.Source. Halts capture, releases the device, and
// closes the frame channel. Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true

	var err error
	if s.stream != nil {
		if e := s.stream.Stop(); e != nil {
			err = fmt.Errorf("portaudio: stop stream: %w", e)
		}
		if e := s.stream.Close(); e != nil && err == nil {
			err = fmt.Errorf("portaudio: close stream: %w", e)
		}
		s.stream = nil
	}
	if s.watchdogStop != nil {
		close(s.watchdogStop)
		<-s.watchdogDone
	}
	if s.releaseOnStop {
		releasePortAudio()
		s.releaseOnStop = false
	}
	close(s.frames)
	slog.Info("audio capture stopped")
	return err
}

// pickDevice resolves the configured device hint against the available
// input devices, falling back to the system default.
func (s *Source) pickDevice() (*portaudio.DeviceInfo, error) {
	if s.deviceHint == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: no default input device: %v", audio.ErrDeviceUnavailable, err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate devices: %v", audio.ErrDeviceUnavailable, err)
	}
	hint := strings.ToLower(s.deviceHint)
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		if strings.Contains(strings.ToLower(dev.Name), hint) {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("%w: no input device matches %q", audio.ErrDeviceUnavailable, s.deviceHint)
}
