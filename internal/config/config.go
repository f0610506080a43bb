// Package config provides the configuration schema and loader for the
// Auricle voice assistant.
package config

// LogLevel controls log verbosity for the Auricle server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// TTSEngine selects the speech synthesis backend.
type TTSEngine string

const (
	// TTSPiper targets a local Piper HTTP server.
	TTSPiper TTSEngine = "piper"

	// TTSOpenAI targets the OpenAI speech API.
	TTSOpenAI TTSEngine = "openai"

	// TTSNone disables spoken replies; responses are logged only.
	TTSNone TTSEngine = "none"
)

// IsValid reports whether e is a recognised TTS engine.
func (e TTSEngine) IsValid() bool {
	switch e {
	case TTSPiper, TTSOpenAI, TTSNone:
		return true
	}
	return false
}

// Config is the root configuration structure for Auricle.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Audio       AudioConfig       `yaml:"audio"`
	Wake        WakeConfig        `yaml:"wake"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Capture     CaptureConfig     `yaml:"capture"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	LLM         LLMConfig         `yaml:"llm"`
	TTS         TTSConfig         `yaml:"tts"`
	Store       StoreConfig       `yaml:"store"`
}

// ServerConfig holds network and logging settings for the HTTP surface
// (metrics, health, event feed).
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig describes the microphone capture format.
type AudioConfig struct {
	// InputDevice selects the input device by case-insensitive name
	// substring. Empty uses the system default.
	InputDevice string `yaml:"input_device"`

	// SampleRate is the capture rate in Hz. Defaults to 16000, the rate
	// speech models expect.
	SampleRate int `yaml:"sample_rate"`

	// ChunkFrames is the number of samples per captured frame. Defaults to
	// 1280 (80 ms at 16 kHz).
	ChunkFrames int `yaml:"chunk_frames"`
}

// WakeConfig controls wake-phrase detection.
type WakeConfig struct {
	// Phrase is the trigger phrase, matched case-insensitively.
	Phrase string `yaml:"phrase"`

	// ModelPath is the speech model used by the streaming wake recogniser.
	ModelPath string `yaml:"model_path"`

	// MinSimilarity is the Jaro-Winkler similarity threshold for fuzzy
	// matching against recognised words. Defaults to 0.84.
	MinSimilarity float64 `yaml:"min_similarity"`
}

// CalibrationConfig controls ambient noise calibration.
type CalibrationConfig struct {
	// Auto runs a calibration pass shortly after startup. Defaults to true
	// (set explicitly to false to disable).
	Auto *bool `yaml:"auto"`

	// DurationS is how many seconds of ambient audio to sample. Defaults to 2.
	DurationS int `yaml:"duration_s"`
}

// CaptureConfig controls command recording after a wake trigger.
type CaptureConfig struct {
	// Sensitivity maps the noise floor to the speech threshold on a 1-10
	// scale; higher values make quiet speech easier to pick up. Defaults to 5.
	Sensitivity int `yaml:"sensitivity"`

	// SilenceWindowMs ends the recording after this much continuous
	// sub-threshold audio. Defaults to 1500.
	SilenceWindowMs int `yaml:"silence_window_ms"`

	// MaxDurationS is the hard recording ceiling. Defaults to 60.
	MaxDurationS int `yaml:"max_duration_s"`

	// MinVoiceFrames is the minimum number of above-threshold frames for a
	// recording to count as speech at all. Defaults to 4.
	MinVoiceFrames int `yaml:"min_voice_frames"`
}

// TranscriberConfig selects the command transcription model.
type TranscriberConfig struct {
	// ModelPath is the whisper.cpp model file.
	ModelPath string `yaml:"model_path"`

	// Language is the BCP-47 language code (e.g., "en"). Defaults to "en".
	Language string `yaml:"language"`

	// Device is "cpu" or "accelerated". Defaults to "cpu".
	Device string `yaml:"device"`
}

// LLMConfig selects the reasoning backend.
type LLMConfig struct {
	// Provider is one of: "openai", "anthropic", "gemini", "ollama",
	// "deepseek", "mistral", "groq", "llamacpp", "llamafile".
	Provider string `yaml:"provider"`

	// Model is the provider-specific model name.
	Model string `yaml:"model"`

	// APIKey authenticates against the provider. Empty falls back to the
	// provider's environment variable.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's API endpoint.
	BaseURL string `yaml:"base_url"`

	// Proxy routes requests through an outbound proxy (http, https, or
	// socks5 URL). Only supported with the "gemini" provider, which uses a
	// direct REST client.
	Proxy string `yaml:"proxy"`

	// SystemPrompt is the behavioural preamble sent on the first turn.
	SystemPrompt string `yaml:"system_prompt"`

	// Temperature is the sampling temperature. Zero uses the provider default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps reply length. Zero uses the provider default.
	MaxTokens int `yaml:"max_tokens"`

	// TimeoutS bounds each completion call. Defaults to 30.
	TimeoutS int `yaml:"timeout_s"`
}

// TTSConfig selects and configures the speech synthesis backend.
type TTSConfig struct {
	// Engine is "piper", "openai", or "none".
	Engine TTSEngine `yaml:"engine"`

	Piper  PiperConfig     `yaml:"piper"`
	OpenAI OpenAITTSConfig `yaml:"openai"`
}

// PiperConfig configures the Piper HTTP server backend.
type PiperConfig struct {
	// ServerURL is the Piper server base URL (e.g., "http://localhost:5000").
	ServerURL string `yaml:"server_url"`

	// Voice selects the voice model when the server hosts more than one.
	Voice string `yaml:"voice"`

	// TimeoutS is the per-request timeout. Defaults to 30.
	TimeoutS int `yaml:"timeout_s"`
}

// OpenAITTSConfig configures the OpenAI speech backend.
type OpenAITTSConfig struct {
	// APIKey authenticates against the API.
	APIKey string `yaml:"api_key"`

	// Model is the speech model (e.g., "gpt-4o-mini-tts").
	Model string `yaml:"model"`

	// Voice is the voice name (e.g., "alloy").
	Voice string `yaml:"voice"`
}

// StoreConfig configures conversation persistence.
type StoreConfig struct {
	// PostgresDSN is the connection string for the turn log. Empty disables
	// persistence.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.ChunkFrames == 0 {
		c.Audio.ChunkFrames = 1280
	}
	if c.Wake.MinSimilarity == 0 {
		c.Wake.MinSimilarity = 0.84
	}
	if c.Calibration.DurationS == 0 {
		c.Calibration.DurationS = 2
	}
	if c.Capture.Sensitivity == 0 {
		c.Capture.Sensitivity = 5
	}
	if c.Capture.SilenceWindowMs == 0 {
		c.Capture.SilenceWindowMs = 1500
	}
	if c.Capture.MaxDurationS == 0 {
		c.Capture.MaxDurationS = 60
	}
	if c.Capture.MinVoiceFrames == 0 {
		c.Capture.MinVoiceFrames = 4
	}
	if c.Transcriber.Language == "" {
		c.Transcriber.Language = "en"
	}
	if c.Transcriber.Device == "" {
		c.Transcriber.Device = "cpu"
	}
	if c.LLM.TimeoutS == 0 {
		c.LLM.TimeoutS = 30
	}
	if c.TTS.Engine == "" {
		c.TTS.Engine = TTSPiper
	}
	if c.TTS.Piper.TimeoutS == 0 {
		c.TTS.Piper.TimeoutS = 30
	}
}

// AutoCalibrate reports whether startup calibration is enabled.
func (c *Config) AutoCalibrate() bool {
	return c.Calibration.Auto == nil || *c.Calibration.Auto
}
