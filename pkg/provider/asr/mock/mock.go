// Package mock provides a test double for the asr.Recognizer interface.
//
// Use Recognizer to emit scripted hypotheses and inspect which frames were
// fed by the component under test.
package mock

import (
	"errors"
	"sync"

	"github.com/auricle-ai/auricle/pkg/audio"
	"github.com/auricle-ai/auricle/pkg/provider/asr"
)

// Recognizer is a mock implementation of asr.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// FeedErr, if non-nil, is returned from Feed.
	FeedErr error

	// FedFrames records every frame passed to Feed.
	FedFrames []audio.Frame

	// Resets counts Reset invocations.
	Resets int

	hyps   chan asr.Hypothesis
	closed bool
}

// NewRecognizer returns a Recognizer with a buffered hypothesis channel.
func NewRecognizer() *Recognizer {
	return &Recognizer{hyps: make(chan asr.Hypothesis, 64)}
}

// Emit pushes a hypothesis to the channel, as the real decoder would.
func (r *Recognizer) Emit(h asr.Hypothesis) {
	r.hyps <- h
}

// Feed records the frame and returns FeedErr.
func (r *Recognizer) Feed(f audio.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("mock: recogniser is closed")
	}
	r.FedFrames = append(r.FedFrames, f)
	return r.FeedErr
}

// Hypotheses implements asr.Recognizer.
func (r *Recognizer) Hypotheses() <-chan asr.Hypothesis { return r.hyps }

// Reset implements asr.Recognizer.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Resets++
}

// Close implements asr.Recognizer. Idempotent.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.hyps)
	}
	return nil
}

// Fed returns a snapshot of recorded frames.
func (r *Recognizer) Fed() []audio.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audio.Frame, len(r.FedFrames))
	copy(out, r.FedFrames)
	return out
}

// ResetCount returns the number of Reset calls.
func (r *Recognizer) ResetCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Resets
}

// Ensure Recognizer implements asr.Recognizer at compile time.
var _ asr.Recognizer = (*Recognizer)(nil)
