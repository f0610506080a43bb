package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidLLMProviders lists the provider names the reasoning backend accepts.
var ValidLLMProviders = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.ChunkFrames <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_frames %d must be positive", cfg.Audio.ChunkFrames))
	}

	if cfg.Wake.Phrase == "" {
		errs = append(errs, errors.New("wake.phrase is required"))
	}
	if cfg.Wake.ModelPath == "" {
		errs = append(errs, errors.New("wake.model_path is required"))
	}
	if cfg.Wake.MinSimilarity < 0 || cfg.Wake.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("wake.min_similarity %.2f is out of range [0, 1]", cfg.Wake.MinSimilarity))
	}

	if cfg.Calibration.DurationS <= 0 {
		errs = append(errs, fmt.Errorf("calibration.duration_s %d must be positive", cfg.Calibration.DurationS))
	}

	if cfg.Capture.Sensitivity < 1 || cfg.Capture.Sensitivity > 10 {
		errs = append(errs, fmt.Errorf("capture.sensitivity %d is out of range [1, 10]", cfg.Capture.Sensitivity))
	}
	if cfg.Capture.SilenceWindowMs <= 0 {
		errs = append(errs, fmt.Errorf("capture.silence_window_ms %d must be positive", cfg.Capture.SilenceWindowMs))
	}
	if cfg.Capture.MaxDurationS <= 0 {
		errs = append(errs, fmt.Errorf("capture.max_duration_s %d must be positive", cfg.Capture.MaxDurationS))
	}
	if cfg.Capture.MinVoiceFrames < 0 {
		errs = append(errs, fmt.Errorf("capture.min_voice_frames %d must not be negative", cfg.Capture.MinVoiceFrames))
	}

	if cfg.Transcriber.ModelPath == "" {
		errs = append(errs, errors.New("transcriber.model_path is required"))
	}
	if d := cfg.Transcriber.Device; d != "cpu" && d != "accelerated" {
		errs = append(errs, fmt.Errorf("transcriber.device %q is invalid; valid values: cpu, accelerated", d))
	}

	if cfg.LLM.Provider == "" {
		errs = append(errs, errors.New("llm.provider is required"))
	} else if !slices.Contains(ValidLLMProviders, cfg.LLM.Provider) {
		slog.Warn("unrecognised llm provider name; backend creation may fail", "provider", cfg.LLM.Provider)
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if cfg.LLM.Proxy != "" && cfg.LLM.Provider != "gemini" {
		errs = append(errs, fmt.Errorf("llm.proxy is only supported with provider \"gemini\", not %q", cfg.LLM.Provider))
	}
	if cfg.LLM.TimeoutS <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout_s %d must be positive", cfg.LLM.TimeoutS))
	}

	if !cfg.TTS.Engine.IsValid() {
		errs = append(errs, fmt.Errorf("tts.engine %q is invalid; valid values: piper, openai, none", cfg.TTS.Engine))
	}
	switch cfg.TTS.Engine {
	case TTSPiper:
		if cfg.TTS.Piper.ServerURL == "" {
			errs = append(errs, errors.New("tts.piper.server_url is required when tts.engine is \"piper\""))
		}
	case TTSOpenAI:
		if cfg.TTS.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("tts.openai.api_key is required when tts.engine is \"openai\""))
		}
	}

	if cfg.Store.PostgresDSN == "" {
		slog.Info("store.postgres_dsn is empty; conversation turns will not be persisted")
	}

	return errors.Join(errs...)
}
