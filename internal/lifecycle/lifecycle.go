// Package lifecycle tracks every resource a page controller acquires so
// teardown is mechanical and complete. Controllers are rebuilt on every
// navigation; without this registry their stream subscriptions and timers
// would pile up across navigations and fire twice.
package lifecycle

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/modelpulse/modelpulse/internal/events"
)

// EventSource is the slice of the connection manager the registry needs:
// subscription with an unsubscribe closure, plus identity-based removal as
// the fallback path.
type EventSource interface {
	On(event string, handler events.Handler) func()
	Off(event string, handler events.Handler)
}

// streamSub remembers one event-stream subscription. The stored unsubscribe
// closure is preferred on teardown; Off by identity is the fallback when a
// caller registered the handler out-of-band.
type streamSub struct {
	source  EventSource
	event   string
	handler events.Handler
	unsub   func()
}

// Registry is the per-controller teardown arena. The controller exclusively
// owns its registry, and Dispose is the only path that releases the
// tracked resources.
type Registry struct {
	mu        sync.Mutex
	disposed  bool
	streams   []streamSub
	storeSubs []func()
	tickers   []*time.Ticker
	timers    []*time.Timer
	cleanups  []func()
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// OnStream subscribes handler to event on source and tracks the
// subscription for teardown.
func (r *Registry) OnStream(source EventSource, event string, handler events.Handler) {
	unsub := source.On(event, handler)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams = append(r.streams, streamSub{source: source, event: event, handler: handler, unsub: unsub})
}

// TrackStream records an already-made subscription by its unsubscribe
// closure (or, when nil, by source/event/handler for Off-based removal).
func (r *Registry) TrackStream(source EventSource, event string, handler events.Handler, unsub func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams = append(r.streams, streamSub{source: source, event: event, handler: handler, unsub: unsub})
}

// TrackSubscription records a state-store subscription's removal closure.
func (r *Registry) TrackSubscription(unsub func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeSubs = append(r.storeSubs, unsub)
}

// TrackTicker records a ticker for stopping on teardown.
func (r *Registry) TrackTicker(t *time.Ticker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickers = append(r.tickers, t)
}

// TrackTimer records a timer for stopping on teardown.
func (r *Registry) TrackTimer(t *time.Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timers = append(r.timers, t)
}

// OnDispose registers arbitrary teardown logic, run last.
func (r *Registry) OnDispose(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanups = append(r.cleanups, fn)
}

// Disposed reports whether Dispose already ran.
func (r *Registry) Disposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}

// Dispose releases every tracked resource exactly once. Individual release
// failures are logged and swallowed so one bad cleanup cannot block the
// rest. Calling Dispose again is a no-op.
func (r *Registry) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	streams := r.streams
	storeSubs := r.storeSubs
	tickers := r.tickers
	timers := r.timers
	cleanups := r.cleanups
	r.streams = nil
	r.storeSubs = nil
	r.tickers = nil
	r.timers = nil
	r.cleanups = nil
	r.mu.Unlock()

	for _, s := range streams {
		release(func() {
			if s.unsub != nil {
				s.unsub()
			} else if s.source != nil {
				s.source.Off(s.event, s.handler)
			}
		}, "stream subscription")
	}
	for _, unsub := range storeSubs {
		release(unsub, "store subscription")
	}
	for _, t := range tickers {
		t := t
		release(t.Stop, "ticker")
	}
	for _, t := range timers {
		t := t
		release(func() { t.Stop() }, "timer")
	}
	for _, fn := range cleanups {
		release(fn, "cleanup callback")
	}
}

func release(fn func(), what string) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("resource", what).Interface("panic", r).Msg("teardown step failed")
		}
	}()
	fn()
}
