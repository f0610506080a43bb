// Package mock provides a test double for the tts.Engine interface.
package mock

import (
	"context"
	"sync"

	"github.com/auricle-ai/auricle/pkg/provider/tts"
)

// Engine is a mock implementation of tts.Engine.
type Engine struct {
	mu sync.Mutex

	// Clip is returned from Synthesize when Err is nil. If Clip is zero, a
	// small non-empty placeholder clip is returned instead so callers that
	// treat empty PCM as "nothing to play" still exercise playback.
	Clip tts.Clip

	// Err, if non-nil, is returned from Synthesize.
	Err error

	// Texts records every text passed to Synthesize.
	Texts []string

	closed bool
}

// Synthesize records the call and returns the scripted clip or Err.
func (e *Engine) Synthesize(_ context.Context, text string) (tts.Clip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Texts = append(e.Texts, text)
	if e.Err != nil {
		return tts.Clip{}, e.Err
	}
	if len(e.Clip.PCM) == 0 {
		return tts.Clip{PCM: []byte{0, 0, 0, 0}, SampleRate: 22050}, nil
	}
	return e.Clip, nil
}

// Close implements tts.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Synthesized returns a snapshot of recorded texts.
func (e *Engine) Synthesized() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.Texts))
	copy(out, e.Texts)
	return out
}

// Ensure Engine implements tts.Engine at compile time.
var _ tts.Engine = (*Engine)(nil)
