// Package whisper implements asr.Recognizer with the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// Whisper is a batch model, not a true streaming decoder, so the recogniser
// approximates streaming: it accumulates fed frames in a rolling window and
// re-decodes the whole window on a fixed cadence, emitting each decode as an
// interim hypothesis. When the tail of the window falls below the energy
// threshold for long enough, the last decode is promoted to a final
// hypothesis and the window is cleared.
package whisper

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/auricle-ai/auricle/pkg/audio"
	"github.com/auricle-ai/auricle/pkg/provider/asr"
)

const (
	defaultLanguage      = "en"
	defaultDecodeEveryMs = 700
	defaultSilenceTailMs = 600
	defaultMaxWindowMs   = 8000

	// tailRMSThreshold separates silence from speech in the window tail,
	// on the normalised [0,1] RMS scale.
	tailRMSThreshold = 0.01
)

// Compile-time assertion that Recognizer satisfies asr.Recognizer.
var _ asr.Recognizer = (*Recognizer)(nil)

// Recognizer is an asr.Recognizer backed by a whisper.cpp model.
type Recognizer struct {
	model    whisperlib.Model
	language string

	decodeEveryMs int
	silenceTailMs int
	maxWindowMs   int

	frames chan audio.Frame
	hyps   chan asr.Hypothesis
	reset  chan struct{}
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithLanguage sets the BCP-47 language code for recognition. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// WithDecodeInterval sets how often the rolling window is re-decoded.
// Shorter intervals lower wake latency at the cost of CPU. Defaults to 700 ms.
func WithDecodeInterval(d time.Duration) Option {
	return func(r *Recognizer) { r.decodeEveryMs = int(d.Milliseconds()) }
}

// WithSilenceTail sets the trailing-silence duration that finalises the
// current utterance. Defaults to 600 ms.
func WithSilenceTail(d time.Duration) Option {
	return func(r *Recognizer) { r.silenceTailMs = int(d.Milliseconds()) }
}

// WithMaxWindow caps the rolling window length; older audio is discarded
// from the front. Defaults to 8 s.
func WithMaxWindow(d time.Duration) Option {
	return func(r *Recognizer) { r.maxWindowMs = int(d.Milliseconds()) }
}

// New creates a Recognizer that loads the whisper.cpp model from the given
// file path and starts its decode goroutine. The caller must Close it.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	r := &Recognizer{
		model:         model,
		language:      defaultLanguage,
		decodeEveryMs: defaultDecodeEveryMs,
		silenceTailMs: defaultSilenceTailMs,
		maxWindowMs:   defaultMaxWindowMs,

		frames: make(chan audio.Frame, 256),
		hyps:   make(chan asr.Hypothesis, 64),
		reset:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}

	r.wg.Add(1)
	go r.decodeLoop()
	return r, nil
}

// Feed implements asr.Recognizer.
func (r *Recognizer) Feed(f audio.Frame) error {
	select {
	case <-r.done:
		return errors.New("whisper: recogniser is closed")
	default:
	}
	select {
	case r.frames <- f:
		return nil
	default:
		// Decode loop is saturated; dropping a frame degrades accuracy
		// slightly but keeps the capture path realtime.
		return nil
	}
}

// Hypotheses implements asr.Recognizer.
func (r *Recognizer) Hypotheses() <-chan asr.Hypothesis { return r.hyps }

// Reset implements asr.Recognizer.
func (r *Recognizer) Reset() {
	select {
	case r.reset <- struct{}{}:
	default:
	}
}

// Close implements asr.Recognizer.
func (r *Recognizer) Close() error {
	r.once.Do(func() {
		close(r.done)
		r.wg.Wait()
		close(r.hyps)
		if err := r.model.Close(); err != nil {
			slog.Warn("whisper: model close failed", "err", err)
		}
	})
	return nil
}

// decodeLoop owns the rolling window. All buffering and silence-tail state
// is confined to this goroutine.
func (r *Recognizer) decodeLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Duration(r.decodeEveryMs) * time.Millisecond)
	defer ticker.Stop()

	var (
		window     []float32
		sampleRate int
		tailMs     int
		hadSpeech  bool
		lastText   string
	)

	clear := func() {
		window = nil
		tailMs = 0
		hadSpeech = false
		lastText = ""
	}

	for {
		select {
		case <-r.done:
			return

		case <-r.reset:
			clear()

		case f := <-r.frames:
			sampleRate = f.SampleRate
			rms := audio.RMS(f.Samples)
			frameMs := int(f.Duration().Milliseconds())
			if rms >= tailRMSThreshold {
				hadSpeech = true
				tailMs = 0
			} else if hadSpeech {
				tailMs += frameMs
			}
			window = append(window, int16ToFloat32(f.Samples)...)
			if sampleRate > 0 {
				maxSamples := r.maxWindowMs * sampleRate / 1000
				if len(window) > maxSamples {
					window = window[len(window)-maxSamples:]
				}
			}

		case <-ticker.C:
			if !hadSpeech || len(window) == 0 {
				continue
			}

			text, err := r.infer(window)
			if err != nil {
				slog.Error("whisper decode failed", "error", err)
				continue
			}
			final := tailMs >= r.silenceTailMs
			if text != "" && (text != lastText || final) {
				lastText = text
				r.emit(asr.Hypothesis{Text: text, Final: final})
			}
			if final {
				clear()
			}
		}
	}
}

func (r *Recognizer) emit(h asr.Hypothesis) {
	select {
	case r.hyps <- h:
	default:
		// Listener stalled; the next decode supersedes this one anyway.
	}
}

// infer runs whisper.cpp over the window with a fresh context. Contexts are
// not thread-safe but the model is shared, matching the bindings' contract.
func (r *Recognizer) infer(samples []float32) (string, error) {
	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(r.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", r.language, "error", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var sb strings.Builder
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			break
		}
		sb.WriteString(seg.Text)
		sb.WriteString(" ")
	}
	return strings.ToLower(strings.TrimSpace(sb.String())), nil
}

// int16ToFloat32 converts mono PCM samples to float32 normalised to
// [-1.0, 1.0], the input format whisper.cpp expects.
func int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
