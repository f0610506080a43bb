package notify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// writeTimeout bounds a single event write to one client.
const writeTimeout = 5 * time.Second

// Feed serves the hub over a WebSocket endpoint. Each connection gets its
// own subscription; clients only receive, inbound messages are discarded.
type Feed struct {
	hub *Hub
}

// NewFeed returns a handler streaming events from hub.
func NewFeed(hub *Hub) *Feed {
	return &Feed{hub: hub}
}

// ServeHTTP upgrades the request and streams events as JSON until the client
// disconnects or the server shuts down.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("event feed accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sub := f.hub.Subscribe()
	defer sub.Close()

	slog.Info("event feed client connected", "remote", r.RemoteAddr)

	// CloseRead drains inbound frames and cancels the context when the
	// client goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				slog.Debug("event feed client dropped", "remote", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}
