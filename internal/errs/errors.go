// Package errs carries the client's structured error type and the central
// handler that logs, surfaces, and recovers from failures raised anywhere
// in the dashboard client.
package errs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Category classifies where an error originated.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryValidation Category = "validation"
	CategoryUpload     Category = "upload"
	CategoryWebSocket  Category = "websocket"
	CategoryParsing    Category = "parsing"
	CategoryComponent  Category = "component"
	CategorySystem     Category = "system"
)

// Severity scales how loudly an error is surfaced.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Recovery tags the strategy the handler should attempt.
type Recovery string

const (
	RecoveryRetry    Recovery = "retry"
	RecoveryFallback Recovery = "fallback"
	RecoveryReload   Recovery = "reload"
	RecoveryRedirect Recovery = "redirect"
	RecoveryManual   Recovery = "manual"
	RecoveryNone     Recovery = "none"
)

// Error is the single structured error type routed through the handler.
type Error struct {
	ID          string
	Category    Category
	Severity    Severity
	Recovery    Recovery
	Op          string // Logical operation, e.g. "datasets.list"
	UserMessage string // Shown to the user; the cause is not
	Context     map[string]interface{}
	Cause       error
	At          time.Time
}

// New builds a structured error around a cause.
func New(category Category, severity Severity, op string, cause error) *Error {
	return &Error{
		ID:       uuid.NewString(),
		Category: category,
		Severity: severity,
		Recovery: RecoveryNone,
		Op:       op,
		Cause:    cause,
		At:       time.Now(),
	}
}

// WithRecovery sets the recovery strategy tag.
func (e *Error) WithRecovery(r Recovery) *Error {
	e.Recovery = r
	return e
}

// WithUserMessage sets the user-facing message.
func (e *Error) WithUserMessage(msg string) *Error {
	e.UserMessage = msg
	return e
}

// WithContext attaches one key/value pair of diagnostic context.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s/%s %s: %v", e.Category, e.Severity, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s/%s %s", e.Category, e.Severity, e.Op)
}

// Unwrap exposes the cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }
