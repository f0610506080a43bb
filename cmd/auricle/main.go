// Command auricle is the main entry point for the Auricle voice assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/auricle-ai/auricle/internal/app"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/pkg/audio"
	"github.com/auricle-ai/auricle/pkg/audio/portaudio"
	asrwhisper "github.com/auricle-ai/auricle/pkg/provider/asr/whisper"
	"github.com/auricle-ai/auricle/pkg/provider/llm"
	"github.com/auricle-ai/auricle/pkg/provider/llm/anyllm"
	"github.com/auricle-ai/auricle/pkg/provider/llm/gemini"
	"github.com/auricle-ai/auricle/pkg/provider/stt"
	sttwhisper "github.com/auricle-ai/auricle/pkg/provider/stt/whisper"
	"github.com/auricle-ai/auricle/pkg/provider/tts"
	"github.com/auricle-ai/auricle/pkg/provider/tts/openaitts"
	"github.com/auricle-ai/auricle/pkg/provider/tts/piper"
	"github.com/auricle-ai/auricle/pkg/store/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "auricle: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "auricle: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("auricle starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("assistant ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildProviders constructs every pluggable backend named in cfg.
func buildProviders(ctx context.Context, cfg *config.Config) (*app.Providers, error) {
	ps := &app.Providers{}

	// Audio capture. A factory, because a stopped stream is spent and the
	// controller reopens the device on reset.
	ps.Source = func() (audio.Source, error) {
		var opts []portaudio.Option
		if cfg.Audio.InputDevice != "" {
			opts = append(opts, portaudio.WithDevice(cfg.Audio.InputDevice))
		}
		return portaudio.NewSource(cfg.Audio.SampleRate, cfg.Audio.ChunkFrames, opts...)
	}

	// Wake-phrase recognizer: streaming whisper.cpp over a rolling window.
	recognizer, err := asrwhisper.New(cfg.Wake.ModelPath,
		asrwhisper.WithLanguage(cfg.Transcriber.Language))
	if err != nil {
		return nil, fmt.Errorf("create wake recognizer: %w", err)
	}
	ps.Recognizer = recognizer

	// Command transcriber: one-shot whisper.cpp decode.
	transcriber, err := sttwhisper.New(cfg.Transcriber.ModelPath,
		sttwhisper.WithLanguage(cfg.Transcriber.Language),
		sttwhisper.WithDevice(stt.Device(cfg.Transcriber.Device)))
	if err != nil {
		return nil, fmt.Errorf("create transcriber: %w", err)
	}
	ps.Transcriber = transcriber

	ps.Reasoner, err = buildReasoner(cfg)
	if err != nil {
		return nil, fmt.Errorf("create llm backend: %w", err)
	}

	ps.Synth, err = buildSynth(cfg)
	if err != nil {
		return nil, fmt.Errorf("create tts engine: %w", err)
	}
	if ps.Synth != nil {
		player, err := portaudio.NewPlayer()
		if err != nil {
			return nil, fmt.Errorf("open audio output: %w", err)
		}
		ps.Player = player
	}

	if dsn := cfg.Store.PostgresDSN; dsn != "" {
		st, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect turn store: %w", err)
		}
		ps.Store = st
		slog.Info("turn persistence enabled")
	}

	return ps, nil
}

// buildReasoner selects the reasoning backend. Gemini with a proxy uses the
// direct REST client, since the generic backend cannot route through one;
// everything else goes through any-llm.
func buildReasoner(cfg *config.Config) (llm.Backend, error) {
	if cfg.LLM.Provider == "gemini" && cfg.LLM.Proxy != "" {
		var opts []gemini.Option
		opts = append(opts, gemini.WithProxy(cfg.LLM.Proxy))
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, gemini.WithEndpoint(cfg.LLM.BaseURL))
		}
		slog.Info("provider created", "kind", "llm", "name", "gemini", "proxy", true)
		return gemini.New(cfg.LLM.APIKey, cfg.LLM.Model, opts...)
	}

	var opts []anyllmlib.Option
	if cfg.LLM.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.LLM.APIKey))
	}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.LLM.BaseURL))
	}
	backend, err := anyllm.New(cfg.LLM.Provider, cfg.LLM.Model, opts...)
	if err != nil {
		return nil, err
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.LLM.Provider)
	return backend, nil
}

// buildSynth selects the speech backend, or nil when speaking is disabled.
func buildSynth(cfg *config.Config) (tts.Engine, error) {
	switch cfg.TTS.Engine {
	case config.TTSPiper:
		var opts []piper.Option
		if cfg.TTS.Piper.Voice != "" {
			opts = append(opts, piper.WithVoice(cfg.TTS.Piper.Voice))
		}
		if cfg.TTS.Piper.TimeoutS > 0 {
			opts = append(opts, piper.WithTimeout(time.Duration(cfg.TTS.Piper.TimeoutS)*time.Second))
		}
		slog.Info("provider created", "kind", "tts", "name", "piper")
		return piper.New(cfg.TTS.Piper.ServerURL, opts...)

	case config.TTSOpenAI:
		var opts []openaitts.Option
		if cfg.TTS.OpenAI.Voice != "" {
			opts = append(opts, openaitts.WithVoice(cfg.TTS.OpenAI.Voice))
		}
		slog.Info("provider created", "kind", "tts", "name", "openai")
		return openaitts.New(cfg.TTS.OpenAI.APIKey, cfg.TTS.OpenAI.Model, opts...)

	case config.TTSNone:
		slog.Info("speech synthesis disabled, replies are logged only")
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown tts engine %q", cfg.TTS.Engine)
	}
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Auricle — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Wake phrase", cfg.Wake.Phrase)
	printRow("LLM", cfg.LLM.Provider+" / "+cfg.LLM.Model)
	printRow("Transcriber", cfg.Transcriber.Device)
	printRow("TTS", string(cfg.TTS.Engine))
	printRow("Sensitivity", fmt.Sprintf("%d", cfg.Capture.Sensitivity))
	if cfg.Store.PostgresDSN != "" {
		printRow("Persistence", "postgres")
	} else {
		printRow("Persistence", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(name, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", name, value)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
