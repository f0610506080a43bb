// Package mock provides a test double for the stt.Transcriber interface.
package mock

import (
	"context"
	"sync"

	"github.com/auricle-ai/auricle/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the PCM passed to Transcribe.
	Samples []int16
	// SampleRate is the rate passed alongside the samples.
	SampleRate int
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned from Transcribe when Err is nil. If Texts is
	// non-empty it takes precedence, returned in order and sticking on the
	// last entry.
	Text  string
	Texts []string

	// Err, if non-nil, is returned from Transcribe.
	Err error

	// Calls records every call to Transcribe.
	Calls []TranscribeCall

	closed bool
	calls  int
}

// Transcribe records the call and returns the scripted text or Err.
func (t *Transcriber) Transcribe(_ context.Context, samples []int16, sampleRate int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make([]int16, len(samples))
	copy(cp, samples)
	t.Calls = append(t.Calls, TranscribeCall{Samples: cp, SampleRate: sampleRate})
	idx := t.calls
	t.calls++
	if t.Err != nil {
		return "", t.Err
	}
	if len(t.Texts) > 0 {
		if idx >= len(t.Texts) {
			idx = len(t.Texts) - 1
		}
		return t.Texts[idx], nil
	}
	return t.Text, nil
}

// Close implements stt.Transcriber.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Closed reports whether Close was called.
func (t *Transcriber) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
