// Package ws owns the single reconnecting event-stream channel to the
// backend and fans inbound frames out to type-keyed subscribers.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/modelpulse/modelpulse/internal/config"
	"github.com/modelpulse/modelpulse/internal/errs"
	"github.com/modelpulse/modelpulse/internal/events"
	"github.com/modelpulse/modelpulse/internal/metrics"
)

// subscriber pairs a handler with identifying information so it can be
// removed either by the closure On returns or by Off with the same
// function value.
type subscriber struct {
	id    int
	fnPtr uintptr
	fn    events.Handler
}

// Client maintains one logical channel to the server. At most one
// underlying transport is open at a time; the client survives page
// controller teardown and is shared across them.
type Client struct {
	cfg     config.WebSocketConfig
	dialer  *websocket.Dialer
	metrics *metrics.Set
	errors  *errs.Handler

	mu         sync.Mutex
	conn       *websocket.Conn
	status     Status
	quality    Quality
	latencyMS  int64
	attempts   int
	closed     bool
	gen        int // connection generation; stale loops check it and bail
	retryTimer *time.Timer
	pongTimer  *time.Timer
	lastPingTS int64
	hbStop     chan struct{}

	handlers map[string][]subscriber
	nextID   int

	writeMu sync.Mutex
}

// NewClient builds a disconnected client. metrics and errors may be nil.
func NewClient(cfg config.WebSocketConfig, m *metrics.Set, eh *errs.Handler) *Client {
	return &Client{
		cfg:     cfg,
		metrics: m,
		errors:  eh,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		status:   StatusDisconnected,
		quality:  QualityPoor,
		handlers: make(map[string][]subscriber),
	}
}

// Connect opens the transport. It is a no-op when a channel is already open
// or opening. A failed dial counts as one reconnect cycle and schedules a
// retry per the backoff policy.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	// Reconnecting counts as busy: a retry is already scheduled and a
	// second dial would open a second transport.
	if c.status == StatusConnected || c.status == StatusConnecting || c.status == StatusReconnecting {
		c.mu.Unlock()
		return nil
	}
	c.closed = false
	c.status = StatusConnecting
	c.mu.Unlock()

	return c.dial(ctx)
}

func (c *Client) dial(ctx context.Context) error {
	log.Debug().Str("url", c.cfg.URL).Msg("dialing event stream")

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.mu.Lock()
		c.status = StatusError
		remaining := c.attempts < c.cfg.MaxReconnectAttempts
		c.scheduleReconnectLocked()
		c.mu.Unlock()

		c.reportTransportError("connect", err, remaining)
		return fmt.Errorf("event stream dial failed: %w", err)
	}

	c.mu.Lock()
	// Close may have run while the handshake was in flight; it wins, and
	// the fresh transport is discarded instead of resurrecting the channel.
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.status = StatusConnected
	c.attempts = 0
	c.gen++
	gen := c.gen
	c.hbStop = make(chan struct{})
	hbStop := c.hbStop
	c.mu.Unlock()

	c.metrics.Connected(true)
	log.Info().Str("url", c.cfg.URL).Msg("event stream connected")

	go c.readLoop(conn, gen)
	go c.heartbeatLoop(gen, hbStop)

	c.emit(events.TypeConnected, events.Notice(events.TypeConnected, nil))
	return nil
}

// Send serializes and transmits payload, returning whether the write went
// out. Sends while disconnected are dropped, not queued.
func (c *Client) Send(payload interface{}) bool {
	c.mu.Lock()
	conn := c.conn
	open := c.status == StatusConnected && conn != nil
	c.mu.Unlock()

	if !open {
		log.Debug().Msg("send dropped, event stream not connected")
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		c.report(errs.New(errs.CategoryWebSocket, errs.SeverityLow, "ws.send", err))
		return false
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.report(errs.New(errs.CategoryWebSocket, errs.SeverityMedium, "ws.send", err))
		return false
	}
	return true
}

// RequestMetrics asks the server for an immediate metrics push.
func (c *Client) RequestMetrics() bool {
	return c.Send(map[string]string{"type": events.TypeRequestMetrics})
}

// On registers a handler for a logical event name and returns its
// unsubscribe closure. Handlers for one event run synchronously in
// registration order.
func (c *Client) On(event string, handler events.Handler) func() {
	c.mu.Lock()
	c.nextID++
	sub := subscriber{id: c.nextID, fnPtr: reflect.ValueOf(handler).Pointer(), fn: handler}
	c.handlers[event] = append(c.handlers[event], sub)
	c.mu.Unlock()

	id := sub.id
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.removeLocked(event, func(s subscriber) bool { return s.id == id })
	}
}

// Off removes a previously registered handler by function identity.
func (c *Client) Off(event string, handler events.Handler) {
	ptr := reflect.ValueOf(handler).Pointer()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(event, func(s subscriber) bool { return s.fnPtr == ptr })
}

// removeLocked drops the first subscriber matching the predicate. Removing
// the last handler for an event frees the map entry.
func (c *Client) removeLocked(event string, match func(subscriber) bool) {
	subs := c.handlers[event]
	for i, s := range subs {
		if match(s) {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(c.handlers, event)
	} else {
		c.handlers[event] = subs
	}
}

// Info returns the current connection snapshot.
func (c *Client) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{
		Status:            c.status,
		Quality:           c.quality,
		LatencyMS:         c.latencyMS,
		ReconnectAttempts: c.attempts,
	}
}

// Close tears the channel down: it stops the heartbeat, cancels any
// scheduled retry, closes the transport, and pins status to disconnected.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.stopHeartbeatLocked()
	conn := c.conn
	c.conn = nil
	c.gen++
	wasDisconnected := c.status == StatusDisconnected
	c.status = StatusDisconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.metrics.Connected(false)

	if !wasDisconnected {
		c.emit(events.TypeDisconnected, events.Notice(events.TypeDisconnected, nil))
	}
}

// Reconnect performs a full restart: close, reset the attempt counter, and
// connect again.
func (c *Client) Reconnect(ctx context.Context) error {
	c.Close()
	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()
	return c.Connect(ctx)
}

// readLoop drains the transport until it fails or the generation moves on.
func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleTransportClose(gen, err)
			return
		}
		c.dispatch(data)
	}
}

// dispatch parses one frame and fans it out. A malformed frame is reported
// as a low-severity parsing failure and dropped; it never tears the
// connection down.
func (c *Client) dispatch(data []byte) {
	ev, err := events.Decode(data)
	if err != nil {
		c.metrics.ParseError()
		c.report(errs.New(errs.CategoryParsing, errs.SeverityLow, "ws.dispatch", err))
		return
	}

	c.metrics.Frame(ev.EventType())

	// Pong frames are intercepted for latency measurement, not forwarded.
	if pong, ok := ev.(events.Pong); ok {
		c.handlePong(pong)
		return
	}

	c.emit(events.TypeMessage, ev)
	c.emit(ev.EventType(), ev)
}

// emit runs every subscriber for the event synchronously in registration
// order. A panicking handler is logged and skipped so one bad subscriber
// cannot break delivery to the rest.
func (c *Client) emit(event string, ev events.Event) {
	c.mu.Lock()
	subs := make([]subscriber, len(c.handlers[event]))
	copy(subs, c.handlers[event])
	c.mu.Unlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("event", event).Interface("panic", r).Msg("event handler panicked")
				}
			}()
			s.fn(ev)
		}()
	}
}

// heartbeatLoop sends a timestamped ping on a fixed interval while the
// connection generation is live.
func (c *Client) heartbeatLoop(gen int, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			live := c.gen == gen && c.status == StatusConnected
			c.mu.Unlock()
			if !live {
				return
			}
			c.sendPing(gen)
		}
	}
}

func (c *Client) sendPing(gen int) {
	ts := time.Now().UnixMilli()

	c.mu.Lock()
	c.lastPingTS = ts
	if c.pongTimer != nil {
		c.pongTimer.Stop()
	}
	// A missing pong degrades reported quality without forcing a
	// disconnect.
	c.pongTimer = time.AfterFunc(c.cfg.PongTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen || c.lastPingTS != ts {
			return
		}
		c.quality = QualityPoor
		c.lastPingTS = 0
		log.Warn().Msg("heartbeat pong missing, downgrading connection quality")
	})
	c.mu.Unlock()

	c.Send(events.Ping{Type: events.TypePing, Timestamp: ts})
}

func (c *Client) handlePong(p events.Pong) {
	now := time.Now().UnixMilli()

	c.mu.Lock()
	if c.lastPingTS == 0 || p.Timestamp != c.lastPingTS {
		c.mu.Unlock()
		return
	}
	c.lastPingTS = 0
	if c.pongTimer != nil {
		c.pongTimer.Stop()
		c.pongTimer = nil
	}
	c.latencyMS = now - p.Timestamp
	lat := c.cfg.Latency
	c.quality = qualityFor(time.Duration(c.latencyMS)*time.Millisecond, lat.Excellent, lat.Good, lat.Fair)
	latency := c.latencyMS
	c.mu.Unlock()

	c.metrics.Latency(latency)
}

// handleTransportClose runs the reconnect arithmetic after the transport
// drops. Stale generations (an explicit Close or Reconnect already moved
// on) are ignored.
func (c *Client) handleTransportClose(gen int, cause error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.stopHeartbeatLocked()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if c.closed {
		c.status = StatusDisconnected
		c.mu.Unlock()
		c.metrics.Connected(false)
		return
	}
	remaining := c.attempts < c.cfg.MaxReconnectAttempts
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.metrics.Connected(false)
	c.reportTransportError("read", cause, remaining)
}

// scheduleReconnectLocked either schedules the next retry with exponential
// backoff and jitter, or, once the attempt budget is spent, pins status to
// disconnected and fires the terminal event exactly once.
func (c *Client) scheduleReconnectLocked() {
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.status = StatusDisconnected
		attempts := c.attempts
		go c.emit(events.TypeMaxReconnectAttempts, events.Notice(events.TypeMaxReconnectAttempts,
			map[string]interface{}{"attempts": attempts}))
		log.Error().Int("attempts", attempts).Msg("event stream gave up reconnecting")
		return
	}

	c.attempts++
	c.status = StatusReconnecting
	attempt := c.attempts

	delay := c.jittered(backoffDelay(c.cfg.ReconnectDelay, c.cfg.MaxReconnectDelay, attempt))
	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.status = StatusConnecting
		c.mu.Unlock()
		_ = c.dial(context.Background())
	})

	c.metrics.Reconnect()
	log.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("event stream reconnect scheduled")

	go c.emit(events.TypeReconnecting, events.Notice(events.TypeReconnecting,
		map[string]interface{}{"attempt": attempt}))
}

// backoffDelay is the pre-jitter delay for the given 1-based attempt:
// base * 2^(attempt-1), capped at ceiling.
func backoffDelay(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

// jittered adds up to JitterFraction of the delay, spreading reconnects of
// many clients after a server restart.
func (c *Client) jittered(delay time.Duration) time.Duration {
	if c.cfg.JitterFraction <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Float64()*c.cfg.JitterFraction*float64(delay))
}

func (c *Client) stopHeartbeatLocked() {
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
	if c.pongTimer != nil {
		c.pongTimer.Stop()
		c.pongTimer = nil
	}
	c.lastPingTS = 0
}

// reportTransportError escalates severity once no reconnect attempts
// remain.
func (c *Client) reportTransportError(op string, cause error, attemptsRemain bool) {
	severity := errs.SeverityMedium
	userMsg := "Connection lost. Reconnecting..."
	if !attemptsRemain {
		severity = errs.SeverityCritical
		userMsg = "Connection lost and could not be restored. Please refresh."
	}
	c.report(errs.New(errs.CategoryWebSocket, severity, "ws."+op, cause).WithUserMessage(userMsg))

	go c.emit(events.TypeError, events.Notice(events.TypeError,
		map[string]interface{}{"op": op, "error": cause.Error()}))
}

func (c *Client) report(e *errs.Error) {
	if c.errors == nil {
		log.Debug().Err(e).Msg("unrouted client error")
		return
	}
	c.errors.Report(e)
	c.metrics.HandledError(string(e.Category), string(e.Severity))
}
