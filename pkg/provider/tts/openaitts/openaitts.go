// Package openaitts provides a tts.Engine backed by the OpenAI speech API.
//
// The API is asked for raw PCM output, which it delivers as mono 16-bit
// little-endian samples at 24 kHz, so no container parsing is needed.
package openaitts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/auricle-ai/auricle/pkg/provider/tts"
)

// pcmSampleRate is the fixed rate of the API's raw PCM output format.
const pcmSampleRate = 24000

// DefaultModel is the default OpenAI speech model.
const DefaultModel = "gpt-4o-mini-tts"

// DefaultVoice is the default voice name.
const DefaultVoice = "alloy"

// Ensure Engine implements the tts.Engine interface.
var _ tts.Engine = (*Engine)(nil)

// Engine implements tts.Engine using the OpenAI speech endpoint.
type Engine struct {
	client oai.Client
	model  string
	voice  string
}

// config holds optional configuration for the engine.
type config struct {
	baseURL string
	voice   string
	timeout time.Duration
}

// Option is a functional option for Engine.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, e.g. to target an
// OpenAI-compatible local server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithVoice selects the voice name (alloy, echo, fable, onyx, nova, shimmer).
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI speech Engine. If model is empty, DefaultModel is
// used.
func New(apiKey string, model string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openaitts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{voice: DefaultVoice}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Engine{
		client: oai.NewClient(reqOpts...),
		model:  model,
		voice:  cfg.voice,
	}, nil
}

// Synthesize implements tts.Engine.
func (e *Engine) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Clip{}, nil
	}

	resp, err := e.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(e.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(e.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return tts.Clip{}, fmt.Errorf("%w: openai speech: %v", tts.ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("%w: openai speech: read body: %v", tts.ErrSynthesisFailed, err)
	}
	if len(pcm) == 0 {
		return tts.Clip{}, fmt.Errorf("%w: openai speech: empty audio", tts.ErrSynthesisFailed)
	}
	return tts.Clip{PCM: pcm, SampleRate: pcmSampleRate}, nil
}

// Close implements tts.Engine. The engine holds no persistent connections.
func (e *Engine) Close() error { return nil }
