// Package tts defines the Engine interface for Text-to-Speech backends.
//
// An Engine converts one complete reply into a single PCM clip. Synthesis is
// batch rather than streamed because the pipeline speaks exactly one reply
// per interaction and blocks until playback ends; there is no downstream
// consumer that could benefit from partial audio.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// synthesisError is a sentinel error type for synthesis failures.
type synthesisError string

func (e synthesisError) Error() string { return string(e) }

// ErrSynthesisFailed indicates the backend could not produce audio for the
// given text. Wrap it with context: fmt.Errorf("%w: %v", ...).
const ErrSynthesisFailed = synthesisError("tts: synthesis failed")

// Clip is a synthesised utterance: raw mono 16-bit little-endian PCM plus
// the rate it must be played at.
type Clip struct {
	PCM        []byte
	SampleRate int
}

// Engine is the abstraction over any TTS backend.
type Engine interface {
	// Synthesize converts text into a playable Clip. Empty text returns an
	// empty Clip and no error. Failures wrap ErrSynthesisFailed. Synthesize
	// honours ctx cancellation.
	Synthesize(ctx context.Context, text string) (Clip, error)

	// Close releases backend resources. Idempotent.
	Close() error
}
