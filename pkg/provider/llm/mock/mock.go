// Package mock provides a test double for the llm.Backend interface.
package mock

import (
	"context"
	"sync"

	"github.com/auricle-ai/auricle/pkg/provider/llm"
)

// Backend is a mock implementation of llm.Backend.
type Backend struct {
	mu sync.Mutex

	// Reply is returned from Complete when Err is nil. If Replies is
	// non-empty it takes precedence, returned in order and sticking on the
	// last entry.
	Reply   string
	Replies []string

	// Err, if non-nil, is returned from Complete.
	Err error

	// Delay, if set, makes Complete wait (or return early on ctx
	// cancellation) before responding. Used to exercise timeouts.
	Delay func(ctx context.Context) error

	// Requests records every request passed to Complete.
	Requests []llm.Request

	calls int
}

// Complete records the request and returns the scripted reply or Err.
func (b *Backend) Complete(ctx context.Context, req llm.Request) (string, error) {
	if b.Delay != nil {
		if err := b.Delay(ctx); err != nil {
			return "", err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Requests = append(b.Requests, req)
	idx := b.calls
	b.calls++
	if b.Err != nil {
		return "", b.Err
	}
	if len(b.Replies) > 0 {
		if idx >= len(b.Replies) {
			idx = len(b.Replies) - 1
		}
		return b.Replies[idx], nil
	}
	return b.Reply, nil
}

// Recorded returns a snapshot of recorded requests.
func (b *Backend) Recorded() []llm.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]llm.Request, len(b.Requests))
	copy(out, b.Requests)
	return out
}

// Ensure Backend implements llm.Backend at compile time.
var _ llm.Backend = (*Backend)(nil)
