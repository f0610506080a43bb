package audio

import "sync/atomic"

// Router delivers frames to exactly one registered Consumer at a time.
//
// The pipeline controller is the sole caller of Attach; everything else only
// ever sees frames arrive through its Consume method. Swapping the consumer
// is a single atomic pointer exchange, so a frame is never delivered to two
// consumers and no torn registration is observable.
//
// Delivery semantics across a swap: a Dispatch that loads the consumer
// pointer concurrently with Attach delivers its frame to whichever consumer
// the load observed. The frame is delivered exactly once either way, but a
// consumer detached mid-utterance must expect to discard partially buffered
// state — the router does not replay frames.
type Router struct {
	consumer atomic.Pointer[consumerBox]
	swaps    atomic.Uint64
	routed   atomic.Uint64
}

// consumerBox wraps the interface value so a nil consumer can still be
// stored and swapped atomically.
type consumerBox struct {
	c Consumer
}

// NewRouter creates a Router with no attached consumer. Frames dispatched
// before the first Attach are dropped.
func NewRouter() *Router {
	r := &Router{}
	r.consumer.Store(&consumerBox{})
	return r
}

// Attach atomically replaces the active consumer and returns the previous
// one (nil if none). Pass nil to detach — frames are then dropped until the
// next Attach.
func (r *Router) Attach(c Consumer) Consumer {
	prev := r.consumer.Swap(&consumerBox{c: c})
	r.swaps.Add(1)
	if prev == nil {
		return nil
	}
	return prev.c
}

// Active returns the currently attached consumer, or nil.
func (r *Router) Active() Consumer {
	return r.consumer.Load().c
}

// Dispatch delivers f to the active consumer, if any.
func (r *Router) Dispatch(f Frame) {
	box := r.consumer.Load()
	if box.c == nil {
		return
	}
	box.c.Consume(f)
	r.routed.Add(1)
}

// Swaps returns the number of Attach calls performed. Exposed for
// instrumentation: tests assert the single-consumer invariant by checking
// that swap counts line up with state transitions.
func (r *Router) Swaps() uint64 { return r.swaps.Load() }

// Routed returns the number of frames delivered to a consumer.
func (r *Router) Routed() uint64 { return r.routed.Load() }
