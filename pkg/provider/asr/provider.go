// Package asr defines the Recognizer interface for low-latency streaming
// speech recognition used by wake-phrase detection.
//
// Unlike the one-shot transcription in pkg/provider/stt, a Recognizer runs
// continuously: it accepts a steady feed of small PCM frames and emits both
// interim hypotheses (as the decoder revises its guess mid-utterance) and a
// final hypothesis once the speaker pauses. Wake detection inspects the
// interim stream so the assistant can react before the phrase has fully
// ended.
//
// Implementations must be safe for concurrent use.
package asr

import "github.com/auricle-ai/auricle/pkg/audio"

// Hypothesis is a single recognition result.
type Hypothesis struct {
	// Text is the recognised text, lowercased and whitespace-trimmed by the
	// implementation. May be empty for a hypothesis that decoded to silence.
	Text string

	// Final reports whether this hypothesis closes the current utterance.
	// After a final hypothesis the recogniser's internal buffer is reset and
	// the next Text starts from scratch.
	Final bool
}

// Recognizer is a continuously running speech recogniser.
//
// Callers must call Close when the recogniser is no longer needed; Close
// stops the decode goroutine and closes the Hypotheses channel.
type Recognizer interface {
	// Feed delivers one captured frame for recognition. Feed must not block
	// on decoding: implementations queue the frame and decode asynchronously.
	// Calling Feed after Close returns an error.
	Feed(f audio.Frame) error

	// Hypotheses returns a read-only channel emitting interim and final
	// results. The channel is closed by Close.
	Hypotheses() <-chan Hypothesis

	// Reset discards buffered audio and any in-flight hypothesis, starting
	// a fresh utterance. Used after a wake trigger so stale audio does not
	// bleed into the next arm cycle.
	Reset()

	// Close releases decoder resources. Idempotent.
	Close() error
}
