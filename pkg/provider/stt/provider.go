// Package stt defines the Transcriber interface for one-shot Speech-to-Text
// backends.
//
// A Transcriber converts a complete captured utterance into text in a single
// call. This is the batch counterpart to the streaming recognition in
// pkg/provider/asr: command transcription can afford to wait for a full,
// higher-accuracy decode of the whole utterance, where wake detection
// cannot.
//
// Implementations must be safe for concurrent use, though the pipeline
// issues at most one transcription at a time.
package stt

import "context"

// transcriptionError is a sentinel error type for transcription failures.
type transcriptionError string

func (e transcriptionError) Error() string { return string(e) }

// ErrTranscriptionFailed indicates the backend could not produce text from
// the given audio. Wrap it with context: fmt.Errorf("%w: %v", ...).
const ErrTranscriptionFailed = transcriptionError("stt: transcription failed")

// Device selects the compute device a local model should run on.
type Device string

const (
	// DeviceCPU forces CPU inference.
	DeviceCPU Device = "cpu"
	// DeviceAccelerated requests GPU or other accelerated inference when the
	// build supports it, falling back to CPU otherwise.
	DeviceAccelerated Device = "accelerated"
)

// Transcriber converts one complete utterance into text.
type Transcriber interface {
	// Transcribe decodes mono 16-bit PCM at the given sample rate and returns
	// the recognised text, whitespace-trimmed. An utterance that decodes to
	// nothing returns ("", nil); failures return an error wrapping
	// ErrTranscriptionFailed.
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error)

	// Close releases model resources. Idempotent.
	Close() error
}
