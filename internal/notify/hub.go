// Package notify fans pipeline events out to observers.
//
// The controller and wake path publish into a Hub; each subscriber gets its
// own buffered channel. Audio level events are droppable under backpressure,
// everything else evicts the oldest buffered event instead of being lost, so
// a slow reader sees a gappy level trace but never misses a state change.
package notify

import (
	"sync"
	"time"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 256

// Kind identifies the event type on the wire.
type Kind string

const (
	// KindState is a pipeline state transition.
	KindState Kind = "state"
	// KindWake is a wake phrase detection.
	KindWake Kind = "wake"
	// KindAudioLevel is a normalized microphone RMS sample.
	KindAudioLevel Kind = "audio_level"
	// KindTranscript is the text recognized from a captured command.
	KindTranscript Kind = "transcript"
	// KindReply is the assistant's reply text.
	KindReply Kind = "reply"
	// KindError is a pipeline stage failure.
	KindError Kind = "error"
)

// Event is a single observer notification. Fields are populated per Kind;
// unused fields are omitted from the JSON encoding.
type Event struct {
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`

	From       string  `json:"from,omitempty"`
	To         string  `json:"to,omitempty"`
	Text       string  `json:"text,omitempty"`
	Level      float64 `json:"level,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
	Stage      string  `json:"stage,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// StateChanged builds a state transition event.
func StateChanged(from, to string) Event {
	return Event{Kind: KindState, From: from, To: to}
}

// WakeDetected builds a wake detection event.
func WakeDetected(heard string, similarity float64) Event {
	return Event{Kind: KindWake, Text: heard, Similarity: similarity}
}

// AudioLevel builds a microphone level event. These are droppable.
func AudioLevel(level float64) Event {
	return Event{Kind: KindAudioLevel, Level: level}
}

// Transcript builds a recognized-command event.
func Transcript(text string) Event {
	return Event{Kind: KindTranscript, Text: text}
}

// Reply builds an assistant reply event.
func Reply(text string) Event {
	return Event{Kind: KindReply, Text: text}
}

// Failure builds a stage error event.
func Failure(stage string, err error) Event {
	ev := Event{Kind: KindError, Stage: stage}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// Subscription is one observer's view of the hub.
type Subscription struct {
	hub *Hub
	id  int
	ch  chan Event
}

// Events returns the subscriber's channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close detaches the subscription and closes its channel. Safe to call once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subs[s.id]; !ok {
		return
	}
	delete(s.hub.subs, s.id)
	close(s.ch)
}

// Hub distributes events to any number of subscribers. Safe for concurrent
// publish and subscribe.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*Subscription
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]*Subscription)}
}

// Subscribe registers a new observer.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &Subscription{hub: h, id: h.nextID, ch: make(chan Event, subscriberBuffer)}
	h.nextID++
	h.subs[s.id] = s
	return s
}

// Subscribers returns the current observer count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish delivers the event to every subscriber. The timestamp is filled in
// when the caller left it zero. Audio level events are dropped when a
// subscriber's buffer is full; for any other kind the oldest buffered event
// is evicted to make room.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
			continue
		default:
		}
		if ev.Kind == KindAudioLevel {
			continue
		}
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
