// Package app wires all Auricle subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes them until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations through the Providers struct;
// main.go populates it from the configuration.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/auricle-ai/auricle/internal/command"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/internal/controller"
	"github.com/auricle-ai/auricle/internal/convo"
	"github.com/auricle-ai/auricle/internal/health"
	"github.com/auricle-ai/auricle/internal/notify"
	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/wake"
	"github.com/auricle-ai/auricle/pkg/audio"
	"github.com/auricle-ai/auricle/pkg/provider/asr"
	"github.com/auricle-ai/auricle/pkg/provider/llm"
	"github.com/auricle-ai/auricle/pkg/provider/stt"
	"github.com/auricle-ai/auricle/pkg/provider/tts"
	"github.com/auricle-ai/auricle/pkg/store"
)

// httpShutdownTimeout bounds the HTTP server drain on exit.
const httpShutdownTimeout = 5 * time.Second

// Providers holds one value per pluggable slot. Source is a factory because
// a stopped stream is spent and Reset needs a fresh one. Synth and Player
// may be nil (replies are logged and published, not spoken); Store may be
// nil (turns are not persisted).
type Providers struct {
	Source      func() (audio.Source, error)
	Player      audio.Player
	Recognizer  asr.Recognizer
	Transcriber stt.Transcriber
	Reasoner    llm.Backend
	Synth       tts.Engine
	Store       store.TurnStore
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHub injects a notification hub instead of creating one.
func WithHub(h *notify.Hub) Option {
	return func(a *App) { a.hub = h }
}

// WithMetrics injects a metrics set instead of using the default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// App owns all subsystem lifetimes and orchestrates the voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	hub        *notify.Hub
	metrics    *observe.Metrics
	engine     *convo.Engine
	detector   *wake.Detector
	controller *controller.Controller
	server     *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go; required slots (Source, Recognizer, Transcriber,
// Reasoner) must be non-nil.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	switch {
	case providers == nil:
		return nil, errors.New("app: providers must not be nil")
	case providers.Source == nil:
		return nil, errors.New("app: an audio source is required")
	case providers.Recognizer == nil:
		return nil, errors.New("app: a wake recognizer is required")
	case providers.Transcriber == nil:
		return nil, errors.New("app: a transcriber is required")
	case providers.Reasoner == nil:
		return nil, errors.New("app: a reasoning backend is required")
	}

	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.hub == nil {
		a.hub = notify.NewHub()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.initConversation()
	a.initController()
	a.initServer()
	a.registerClosers()
	return a, nil
}

// Hub returns the event hub so callers can observe the pipeline.
func (a *App) Hub() *notify.Hub { return a.hub }

// Controller returns the pipeline controller for operational calls
// (sensitivity, calibration, reset).
func (a *App) Controller() *controller.Controller { return a.controller }

// Handler returns the HTTP handler serving health, metrics, events and
// history, or nil when no listen address is configured.
func (a *App) Handler() http.Handler {
	if a.server == nil {
		return nil
	}
	return a.server.Handler
}

func (a *App) initConversation() {
	opts := []convo.Option{
		convo.WithSystemPrompt(a.cfg.LLM.SystemPrompt),
		convo.WithSampling(a.cfg.LLM.Temperature, a.cfg.LLM.MaxTokens),
		convo.WithTimeout(time.Duration(a.cfg.LLM.TimeoutS) * time.Second),
	}
	if a.providers.Store != nil {
		opts = append(opts, convo.WithStore(a.providers.Store))
	}
	a.engine = convo.New(a.providers.Reasoner, opts...)
}

func (a *App) initController() {
	a.detector = wake.New(a.cfg.Wake.Phrase,
		wake.WithMinSimilarity(a.cfg.Wake.MinSimilarity))

	a.controller = controller.New(
		controller.Config{
			Capture: command.CaptureConfig{
				SilenceWindow:  time.Duration(a.cfg.Capture.SilenceWindowMs) * time.Millisecond,
				MaxDuration:    time.Duration(a.cfg.Capture.MaxDurationS) * time.Second,
				MinVoiceFrames: a.cfg.Capture.MinVoiceFrames,
			},
			Sensitivity:         a.cfg.Capture.Sensitivity,
			CalibrationDuration: time.Duration(a.cfg.Calibration.DurationS) * time.Second,
		},
		controller.Deps{
			Source:      a.providers.Source,
			Player:      a.providers.Player,
			Recognizer:  a.providers.Recognizer,
			Detector:    a.detector,
			Transcriber: a.providers.Transcriber,
			Engine:      a.engine,
			Synth:       a.providers.Synth,
			Hub:         a.hub,
			Metrics:     a.metrics,
		},
	)
}

// initServer assembles the HTTP surface: Prometheus metrics, the WebSocket
// event feed, and the health probes.
func (a *App) initServer() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}

	checkers := []health.Checker{
		health.PipelineChecker(a.controller.Alive),
	}
	if a.providers.Store != nil {
		checkers = append(checkers, health.StoreChecker(a.providers.Store))
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/events", notify.NewFeed(a.hub))
	if a.providers.Store != nil {
		mux.Handle("/history", a.handleHistory())
	}

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// defaultHistoryLimit caps /history responses when no limit is given.
const defaultHistoryLimit = 50

// historyTurn is the wire shape of one persisted turn.
type historyTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	LatencyMs int64     `json:"latency_ms,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// handleHistory serves the persisted turns of the active session, oldest
// first. An empty list is returned while no session is open (persistence
// disabled or the store session failed to begin).
func (a *App) handleHistory() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}

		out := []historyTurn{}
		if id := a.engine.SessionID(); id != "" {
			turns, err := a.providers.Store.RecentTurns(r.Context(), id, limit)
			if err != nil {
				slog.Error("history query failed", "err", err)
				http.Error(w, "history unavailable", http.StatusInternalServerError)
				return
			}
			for _, t := range turns {
				out = append(out, historyTurn{
					Role:      t.Role,
					Content:   t.Content,
					LatencyMs: t.Latency.Milliseconds(),
					CreatedAt: t.CreatedAt,
				})
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			slog.Warn("history encode failed", "err", err)
		}
	})
}

// registerClosers collects provider teardown in release order: store first
// (flush pending writes), then the inference backends, audio last.
func (a *App) registerClosers() {
	if a.providers.Store != nil {
		a.closers = append(a.closers, func() error {
			a.providers.Store.Close()
			return nil
		})
	}
	if a.providers.Synth != nil {
		a.closers = append(a.closers, a.providers.Synth.Close)
	}
	a.closers = append(a.closers,
		a.providers.Transcriber.Close,
		a.providers.Recognizer.Close,
	)
	if a.providers.Player != nil {
		a.closers = append(a.closers, a.providers.Player.Close)
	}
}

// Run starts the pipeline and the HTTP server and blocks until ctx is
// cancelled or a subsystem fails. Auto-calibration, when enabled, runs right
// after the audio stream opens; its failure is logged and the default
// profile kept.
func (a *App) Run(ctx context.Context) error {
	a.engine.ResetSession(ctx)

	if err := a.controller.Start(ctx); err != nil {
		return fmt.Errorf("app: start pipeline: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			slog.Info("http server listening", "addr", a.server.Addr)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(sctx)
		})
	}

	if a.cfg.AutoCalibrate() {
		g.Go(func() error {
			if err := a.controller.CalibrateNoiseFloor(gctx, 0); err != nil &&
				!errors.Is(err, context.Canceled) {
				slog.Warn("startup calibration failed, keeping default profile", "err", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.controller.Stop()
		return gctx.Err()
	})

	slog.Info("app running",
		"wake_phrase", a.cfg.Wake.Phrase,
		"tts", string(a.cfg.TTS.Engine),
		"persistence", a.providers.Store != nil)
	return g.Wait()
}

// Shutdown tears down providers in order. It respects the context deadline:
// if ctx expires before all closers finish, the rest are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.controller.Stop()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
