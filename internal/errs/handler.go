package errs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ringSize bounds the in-memory error log.
const ringSize = 256

// maxRetryAttempts caps the retry recovery strategy before it escalates to
// manual recovery.
const maxRetryAttempts = 3

// retryBaseDelay is the first retry delay; it doubles per attempt.
const retryBaseDelay = 500 * time.Millisecond

// Notifier surfaces errors to the user. The duration is how long the
// notification should stay visible; zero means persistent.
type Notifier interface {
	Notify(message string, severity Severity, duration time.Duration)
	// Confirm asks the user before a disruptive recovery (reload/redirect).
	Confirm(prompt string) bool
	// Prompt shows a blocking message, used for manual recovery.
	Prompt(message string)
}

// logNotifier is the default Notifier: it only logs. The CLI installs a
// terminal-backed one.
type logNotifier struct{}

func (logNotifier) Notify(message string, severity Severity, duration time.Duration) {
	log.Warn().Str("severity", string(severity)).Dur("visible_for", duration).Msg(message)
}
func (logNotifier) Confirm(prompt string) bool { return false }
func (logNotifier) Prompt(message string)      { log.Error().Msg(message) }

// Listener observes every handled error.
type Listener func(*Error)

// HandleOptions tune a single Handle call.
type HandleOptions struct {
	// Operation is re-invoked by the retry strategy.
	Operation func(ctx context.Context) error
	// Fallback is invoked by the fallback strategy.
	Fallback func(ctx context.Context) error
	// Navigate performs reload/redirect once the user confirms.
	Navigate func(target string)
	// Silent suppresses the user-facing notification (not the log).
	Silent bool
}

// Handler is the single sink all client errors flow through.
type Handler struct {
	mu        sync.Mutex
	ring      []*Error
	next      int
	total     int
	listeners []Listener
	retries   map[string]int // category+op -> consecutive retry count
	notifier  Notifier

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewHandler builds a handler with the default log-only notifier.
func NewHandler() *Handler {
	return &Handler{
		ring:     make([]*Error, ringSize),
		retries:  make(map[string]int),
		notifier: logNotifier{},
		sleep:    time.Sleep,
	}
}

// SetNotifier replaces the user-notification sink.
func (h *Handler) SetNotifier(n Notifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n != nil {
		h.notifier = n
	}
}

// AddListener registers an observer for every handled error and returns its
// removal closure.
func (h *Handler) AddListener(l Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
	idx := len(h.listeners) - 1
	removed := false
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if removed {
			return
		}
		removed = true
		h.listeners[idx] = nil
	}
}

// Handle logs, records, surfaces, and optionally recovers from e. The
// returned error is nil when the recovery strategy ultimately succeeded.
func (h *Handler) Handle(ctx context.Context, e *Error, opts HandleOptions) error {
	if e == nil {
		return nil
	}

	h.logError(e)
	h.record(e)
	h.notifyListeners(e)

	if !opts.Silent {
		h.surface(e)
	}

	switch e.Recovery {
	case RecoveryRetry:
		return h.retry(ctx, e, opts)
	case RecoveryFallback:
		if opts.Fallback != nil {
			return opts.Fallback(ctx)
		}
		return e
	case RecoveryReload:
		h.navigate(e, "reload", opts)
		return e
	case RecoveryRedirect:
		h.navigate(e, "redirect", opts)
		return e
	case RecoveryManual:
		h.manual(e)
		return e
	default:
		return e
	}
}

// Report is the fire-and-forget path used by components that cannot act on
// the outcome (e.g. the read loop dropping a malformed frame).
func (h *Handler) Report(e *Error) {
	_ = h.Handle(context.Background(), e, HandleOptions{Silent: e.Severity == SeverityLow})
}

// Recent returns the most recent handled errors, newest first.
func (h *Handler) Recent(n int) []*Error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > ringSize {
		n = ringSize
	}
	out := make([]*Error, 0, n)
	for i := 1; i <= ringSize && len(out) < n; i++ {
		e := h.ring[(h.next-i+ringSize)%ringSize]
		if e == nil {
			break
		}
		out = append(out, e)
	}
	return out
}

// Total reports how many errors were handled since startup.
func (h *Handler) Total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

func (h *Handler) record(e *Error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring[h.next] = e
	h.next = (h.next + 1) % ringSize
	h.total++
}

func (h *Handler) notifyListeners(e *Error) {
	h.mu.Lock()
	listeners := make([]Listener, len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()

	for _, l := range listeners {
		if l == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("error listener panicked")
				}
			}()
			l(e)
		}()
	}
}

func (h *Handler) logError(e *Error) {
	var ev *zerolog.Event
	switch e.Severity {
	case SeverityCritical, SeverityHigh:
		ev = log.Error()
	case SeverityMedium:
		ev = log.Warn()
	default:
		ev = log.Debug()
	}
	ev = ev.Str("error_id", e.ID).
		Str("category", string(e.Category)).
		Str("severity", string(e.Severity)).
		Str("recovery", string(e.Recovery)).
		Str("op", e.Op)
	if e.Cause != nil {
		ev = ev.Err(e.Cause)
	}
	for k, v := range e.Context {
		ev = ev.Interface(k, v)
	}
	ev.Msg("client error")
}

// surface shows the user-facing notification, scaled by severity: critical
// stays until dismissed, high 10s, medium 5s, low 3s.
func (h *Handler) surface(e *Error) {
	msg := e.UserMessage
	if msg == "" {
		msg = "Something went wrong. Please try again."
	}

	var visible time.Duration
	switch e.Severity {
	case SeverityCritical:
		visible = 0
	case SeverityHigh:
		visible = 10 * time.Second
	case SeverityMedium:
		visible = 5 * time.Second
	default:
		visible = 3 * time.Second
	}

	h.mu.Lock()
	n := h.notifier
	h.mu.Unlock()
	n.Notify(msg, e.Severity, visible)
}

// retry re-invokes the failed operation with exponential backoff keyed by
// category+op. Exhausting the attempt budget escalates to manual recovery.
func (h *Handler) retry(ctx context.Context, e *Error, opts HandleOptions) error {
	if opts.Operation == nil {
		return e
	}

	key := string(e.Category) + ":" + e.Op

	h.mu.Lock()
	attempt := h.retries[key]
	h.mu.Unlock()

	if attempt >= maxRetryAttempts {
		h.mu.Lock()
		delete(h.retries, key)
		h.mu.Unlock()

		escalated := New(e.Category, SeverityHigh, e.Op, e.Cause).
			WithRecovery(RecoveryManual).
			WithUserMessage("Automatic retries failed. Manual intervention required.")
		return h.Handle(ctx, escalated, HandleOptions{})
	}

	h.mu.Lock()
	h.retries[key] = attempt + 1
	h.mu.Unlock()

	delay := retryBaseDelay << attempt
	log.Debug().Str("op", e.Op).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying operation")
	h.sleep(delay)

	if err := opts.Operation(ctx); err != nil {
		// Same key accumulates until the budget runs out.
		retryErr := New(e.Category, e.Severity, e.Op, err).WithRecovery(RecoveryRetry)
		return h.Handle(ctx, retryErr, HandleOptions{Operation: opts.Operation, Silent: true})
	}

	h.mu.Lock()
	delete(h.retries, key)
	h.mu.Unlock()
	return nil
}

func (h *Handler) navigate(e *Error, target string, opts HandleOptions) {
	h.mu.Lock()
	n := h.notifier
	h.mu.Unlock()

	if !n.Confirm("The dashboard needs to " + target + " to recover. Continue?") {
		return
	}
	if opts.Navigate != nil {
		opts.Navigate(target)
	}
}

func (h *Handler) manual(e *Error) {
	h.mu.Lock()
	n := h.notifier
	h.mu.Unlock()
	n.Prompt("Unrecoverable error " + e.ID + ". Please report this identifier.")
}
