// Package convo maintains conversation state across a session and mediates
// calls to the reasoning backend.
//
// The engine enforces the pipeline's single-interaction discipline: exactly
// one completion may be in flight, and a second request is rejected with
// ErrBusy rather than queued. A failed call keeps the user turn in history;
// the exchange is not retried here, retry policy belongs to the caller.
package convo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/auricle-ai/auricle/pkg/provider/llm"
	"github.com/auricle-ai/auricle/pkg/store"
)

// ErrBusy indicates a completion is already in flight.
var ErrBusy = errors.New("convo: a request is already in flight")

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithSystemPrompt sets the behavioural preamble sent as the first turn of
// a fresh session.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) { e.systemPrompt = prompt }
}

// WithSampling sets the temperature and reply length cap passed to the
// backend. Zero values use the backend defaults.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(e *Engine) {
		e.temperature = temperature
		e.maxTokens = maxTokens
	}
}

// WithTimeout bounds each completion call. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithStore persists turns to the given store. Writes are best-effort: a
// failed insert is logged and the interaction continues.
func WithStore(s store.TurnStore) Option {
	return func(e *Engine) { e.store = s }
}

// Engine owns one conversation. All methods are safe for concurrent use.
type Engine struct {
	backend      llm.Backend
	systemPrompt string
	temperature  float64
	maxTokens    int
	timeout      time.Duration
	store        store.TurnStore

	mu        sync.Mutex
	history   []llm.Turn
	inflight  bool
	sessionID string
}

// New returns an Engine backed by the given reasoning backend.
func New(backend llm.Backend, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		timeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Respond sends the user's text plus the accumulated history to the backend
// and returns the assistant's reply. The system preamble is included only
// when the history is empty, so it is sent exactly once per session.
//
// A second call while one is in flight returns ErrBusy immediately.
func (e *Engine) Respond(ctx context.Context, userText string) (string, error) {
	e.mu.Lock()
	if e.inflight {
		e.mu.Unlock()
		return "", ErrBusy
	}
	e.inflight = true

	// The user turn is committed before the call: a failed exchange keeps
	// the question in history, only the reply is missing.
	if len(e.history) == 0 && e.systemPrompt != "" {
		e.history = append(e.history, llm.Turn{Role: llm.RoleSystem, Content: e.systemPrompt})
	}
	e.history = append(e.history, llm.Turn{Role: llm.RoleUser, Content: userText})
	turns := make([]llm.Turn, len(e.history))
	copy(turns, e.history)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inflight = false
		e.mu.Unlock()
	}()

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	reply, err := e.backend.Complete(cctx, llm.Request{
		Turns:       turns,
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		return "", err
	}
	latency := time.Since(start)

	e.mu.Lock()
	e.history = append(e.history, llm.Turn{Role: llm.RoleAssistant, Content: reply})
	sessionID := e.sessionID
	e.mu.Unlock()

	e.persist(ctx, sessionID, userText, reply, latency)
	return reply, nil
}

// ResetSession clears the history and, when a store is configured, opens a
// fresh persistence session. The next Respond starts from the preamble again.
func (e *Engine) ResetSession(ctx context.Context) {
	e.mu.Lock()
	e.history = nil
	e.sessionID = ""
	e.mu.Unlock()

	if e.store == nil {
		return
	}
	id, err := e.store.BeginSession(ctx)
	if err != nil {
		slog.Warn("could not begin store session; turns will not be persisted", "err", err)
		return
	}
	e.mu.Lock()
	e.sessionID = id
	e.mu.Unlock()
}

// SessionID returns the persistence identifier of the active session. Empty
// when no store is configured or the session could not be opened.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// HistoryLen returns the number of accumulated turns, preamble included.
func (e *Engine) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}

// persist writes the user and assistant turns. Failures are logged, never
// propagated: losing an audit row must not break the spoken interaction.
func (e *Engine) persist(ctx context.Context, sessionID, userText, reply string, latency time.Duration) {
	if e.store == nil || sessionID == "" {
		return
	}
	if err := e.store.AppendTurn(ctx, store.Turn{
		SessionID: sessionID,
		Role:      "user",
		Content:   userText,
	}); err != nil {
		slog.Warn("persist user turn failed", "err", err)
	}
	if err := e.store.AppendTurn(ctx, store.Turn{
		SessionID: sessionID,
		Role:      "assistant",
		Content:   reply,
		Latency:   latency,
	}); err != nil {
		slog.Warn("persist assistant turn failed", "err", err)
	}
}
