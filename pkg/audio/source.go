package audio

import "context"

// ErrDeviceUnavailable is returned (or emitted on a Source's error channel)
// when the capture or playback device cannot be opened, or disappears while
// a stream is active. It is always fatal to the pipeline: the controller
// transitions to its Error state and waits for an operator reset.
type deviceError string

func (e deviceError) Error() string { return string(e) }

// ErrDeviceUnavailable indicates the audio device could not be opened or
// was lost mid-stream.
const ErrDeviceUnavailable = deviceError("audio: device unavailable")

// Source produces a continuous stream of fixed-size Frames from an input
// device. The sequence is lazy, infinite, and non-restartable: once Stop is
// called the Source is spent and a fresh one must be constructed to capture
// again.
//
// Implementations must be safe for concurrent use of Stop with an active
// Start; Stop is idempotent.
type Source interface {
	// Start opens the device and begins pushing frames. Returns an error if
	// the device cannot be opened or if the source was already started.
	Start(ctx context.Context) error

	// Frames returns the channel on which captured frames are delivered.
	// The channel is closed when the source stops, for any reason.
	Frames() <-chan Frame

	// Errors returns a channel that surfaces fatal device faults detected
	// after Start (device disconnect, stalled stream). At most one error is
	// sent; the frame channel is closed afterwards.
	Errors() <-chan error

	// Stop halts capture and releases the device. Safe to call more than
	// once and before Start.
	Stop() error
}

// Player renders PCM audio to an output device. Play blocks until the clip
// has been fully submitted to the device, so the caller observes playback
// completion.
type Player interface {
	// Play writes 16-bit little-endian mono PCM at the given sample rate.
	// Respects ctx cancellation mid-clip.
	Play(ctx context.Context, pcm []byte, sampleRate int) error

	// Close releases the output device. Idempotent.
	Close() error
}

// Consumer receives frames routed by a [Router]. Consume must return
// promptly — long-running work (inference, network calls) belongs on a
// consumer-internal goroutine, never on the frame delivery path.
type Consumer interface {
	Consume(Frame)
}
