// Package whisper implements stt.Transcriber with the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at startup and shared across calls; each
// Transcribe creates its own whisper context, so concurrent calls are safe.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/auricle-ai/auricle/pkg/provider/stt"
)

const defaultLanguage = "en"

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber is a one-shot transcriber backed by a whisper.cpp model.
type Transcriber struct {
	model    whisperlib.Model
	language string
	device   stt.Device

	closeOnce sync.Once
}

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithDevice sets the compute device hint. whisper.cpp decides GPU use at
// build time, so DeviceAccelerated is honoured only in accelerated builds;
// the hint is logged so operators can see what was requested.
func WithDevice(d stt.Device) Option {
	return func(t *Transcriber) { t.device = d }
}

// New creates a Transcriber that loads the whisper.cpp model from the given
// file path. The caller must call Close when done.
func New(modelPath string, opts ...Option) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	t := &Transcriber{
		model:    model,
		language: defaultLanguage,
		device:   stt.DeviceCPU,
	}
	for _, o := range opts {
		o(t)
	}

	slog.Info("whisper model loaded", "path", modelPath, "language", t.language, "device", string(t.device))
	return t, nil
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(samples) == 0 {
		return "", nil
	}
	if sampleRate <= 0 {
		return "", fmt.Errorf("%w: invalid sample rate %d", stt.ErrTranscriptionFailed, sampleRate)
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("%w: create context: %v", stt.ErrTranscriptionFailed, err)
	}
	if err := wctx.SetLanguage(t.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", t.language, "error", err)
	}

	if err := wctx.Process(int16ToFloat32(samples), nil, nil, nil); err != nil {
		return "", fmt.Errorf("%w: process audio: %v", stt.ErrTranscriptionFailed, err)
	}

	var sb strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		seg, err := wctx.NextSegment()
		if err != nil {
			break
		}
		sb.WriteString(seg.Text)
		sb.WriteString(" ")
	}
	return strings.TrimSpace(sb.String()), nil
}

// Close implements stt.Transcriber.
func (t *Transcriber) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.model.Close()
	})
	return err
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
