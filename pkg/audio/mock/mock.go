// Package mock provides test doubles for the audio package interfaces.
//
// Use Source to feed a scripted sequence of frames into a pipeline and
// Player to capture clips that would have been rendered to the speakers.
package mock

import (
	"context"
	"sync"

	"github.com/auricle-ai/auricle/pkg/audio"
)

// Source is a mock implementation of audio.Source that emits a scripted
// frame sequence.
type Source struct {
	mu sync.Mutex

	// Script is the sequence of frames emitted after Start, in order.
	Script []audio.Frame

	// StartErr, if non-nil, is returned from Start.
	StartErr error

	// Hold, when true, keeps the frame channel open after the script is
	// exhausted so tests can push more frames via Emit.
	Hold bool

	started bool
	stopped bool
	frames  chan audio.Frame
	errs    chan error
}

// NewSource returns a Source that will emit the given frames.
func NewSource(script ...audio.Frame) *Source {
	return &Source{
		Script: script,
		frames: make(chan audio.Frame, len(script)+16),
		errs:   make(chan error, 1),
	}
}

// Start emits the script into the frame channel. It never blocks: the
// channel is sized to hold the whole script.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartErr != nil {
		return s.StartErr
	}
	s.started = true
	for _, f := range s.Script {
		s.frames <- f
	}
	if !s.Hold {
		close(s.frames)
	}
	return nil
}

// Emit pushes an extra frame after Start. Only valid with Hold set.
func (s *Source) Emit(f audio.Frame) {
	s.frames <- f
}

// Fail injects an error into the error channel, simulating device loss.
func (s *Source) Fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// Frames implements audio.Source.
func (s *Source) Frames() <-chan audio.Frame { return s.frames }

// Errors implements audio.Source.
func (s *Source) Errors() <-chan error { return s.errs }

// Stop implements audio.Source. Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.Hold && s.started {
		close(s.frames)
	}
	return nil
}

// Started reports whether Start was called.
func (s *Source) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Stopped reports whether Stop was called.
func (s *Source) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)

// PlayCall records a single invocation of Player.Play.
type PlayCall struct {
	// PCM is a copy of the clip bytes passed to Play.
	PCM []byte
	// SampleRate is the rate passed alongside the clip.
	SampleRate int
}

// Player is a mock implementation of audio.Player that records played clips.
type Player struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned from Play.
	PlayErr error

	// PlayCalls records every call to Play.
	PlayCalls []PlayCall

	closed bool
}

// Play records the call and returns PlayErr.
func (p *Player) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	p.PlayCalls = append(p.PlayCalls, PlayCall{PCM: cp, SampleRate: sampleRate})
	return p.PlayErr
}

// Close implements audio.Player.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *Player) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Calls returns a snapshot of recorded Play invocations.
func (p *Player) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlayCall, len(p.PlayCalls))
	copy(out, p.PlayCalls)
	return out
}

// Ensure Player implements audio.Player at compile time.
var _ audio.Player = (*Player)(nil)

// Consumer is a mock implementation of audio.Consumer that records frames.
type Consumer struct {
	mu     sync.Mutex
	frames []audio.Frame
}

// Consume implements audio.Consumer.
func (c *Consumer) Consume(f audio.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
}

// Frames returns a snapshot of consumed frames.
func (c *Consumer) Frames() []audio.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audio.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// Ensure Consumer implements audio.Consumer at compile time.
var _ audio.Consumer = (*Consumer)(nil)
