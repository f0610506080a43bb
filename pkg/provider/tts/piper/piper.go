// Package piper provides a tts.Engine backed by a locally-running Piper
// HTTP server (piper --http-server or the piper-http container).
//
// Synthesis is a single POST per utterance: the server accepts a JSON body
// with the text and responds with a WAV file. The WAV header is stripped,
// multi-channel output is downmixed, and the raw mono PCM is returned along
// with the sample rate declared in the header.
//
// Typical usage:
//
//	e, err := piper.New("http://localhost:5000",
//	    piper.WithVoice("en_US-lessac-medium"),
//	    piper.WithTimeout(15*time.Second),
//	)
//	clip, err := e.Synthesize(ctx, "hello there")
package piper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/auricle-ai/auricle/pkg/provider/tts"
)

const defaultTimeout = 30 * time.Second

// Compile-time interface assertion.
var _ tts.Engine = (*Engine)(nil)

// Engine implements tts.Engine against a Piper HTTP server.
type Engine struct {
	serverURL  string
	voice      string
	outputRate int
	httpClient *http.Client
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithVoice selects the voice model when the server hosts more than one
// (e.g., "en_US-lessac-medium"). Empty uses the server default.
func WithVoice(voice string) Option {
	return func(e *Engine) { e.voice = voice }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.httpClient.Timeout = d }
}

// WithOutputSampleRate resamples synthesised PCM to the given rate. When 0
// (default), PCM is returned at the model's native rate.
func WithOutputSampleRate(rate int) Option {
	return func(e *Engine) { e.outputRate = rate }
}

// New creates an Engine targeting the Piper server at serverURL
// (e.g., "http://localhost:5000").
func New(serverURL string, opts ...Option) (*Engine, error) {
	if serverURL == "" {
		return nil, errors.New("piper: serverURL must not be empty")
	}
	e := &Engine{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// synthesisRequest is the JSON body sent to the Piper server.
type synthesisRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Synthesize implements tts.Engine.
func (e *Engine) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Clip{}, nil
	}

	body, err := json.Marshal(synthesisRequest{Text: text, Voice: e.voice})
	if err != nil {
		return tts.Clip{}, fmt.Errorf("piper: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+"/", bytes.NewReader(body))
	if err != nil {
		return tts.Clip{}, fmt.Errorf("piper: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("%w: piper: %v", tts.ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tts.Clip{}, fmt.Errorf("%w: piper: status %d", tts.ErrSynthesisFailed, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("%w: piper: read WAV response: %v", tts.ErrSynthesisFailed, err)
	}

	info, err := tts.ParseWAV(wav)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("%w: piper: %v", tts.ErrSynthesisFailed, err)
	}

	pcm := tts.DownmixToMono16(wav[info.DataOffset:], info.Channels)
	rate := info.SampleRate
	if e.outputRate > 0 && rate != e.outputRate {
		pcm = tts.ResampleMono16(pcm, rate, e.outputRate)
		rate = e.outputRate
	}
	return tts.Clip{PCM: pcm, SampleRate: rate}, nil
}

// Close implements tts.Engine. The engine holds no persistent connections.
func (e *Engine) Close() error { return nil }
