// Package controllers holds the page controllers of the dashboard client.
// Each controller composes a lifecycle registry (rather than inheriting a
// base), registers its event-stream handlers through it, and pulls remote
// data through the state store's caching wrapper.
package controllers

import (
	"context"

	"github.com/modelpulse/modelpulse/internal/api"
	"github.com/modelpulse/modelpulse/internal/errs"
	"github.com/modelpulse/modelpulse/internal/events"
	"github.com/modelpulse/modelpulse/internal/state"
	"github.com/modelpulse/modelpulse/internal/ws"
)

// Stream is the slice of the connection manager the controllers need.
// *ws.Client satisfies it; tests substitute a fake.
type Stream interface {
	On(event string, handler events.Handler) func()
	Off(event string, handler events.Handler)
	Info() ws.Info
	RequestMetrics() bool
}

// View receives page snapshots whenever a controller's model changes.
// Implementations render to a terminal, a test buffer, or nothing.
type View interface {
	Update(page string, model interface{})
}

// NopView discards updates.
type NopView struct{}

func (NopView) Update(string, interface{}) {}

// Controller is the common lifecycle of a page.
type Controller interface {
	// Page is the controller's stable name.
	Page() string
	// Start loads initial data and registers stream handlers.
	Start(ctx context.Context) error
	// Destroy releases everything the controller acquired. Idempotent.
	Destroy()
}

// Deps bundles the shared services the composition root injects into every
// controller. Exactly one connection and one store exist per process; the
// composition root enforces that, not a runtime singleton guard.
type Deps struct {
	Conn   Stream
	Store  *state.Store
	API    *api.Client
	Errors *errs.Handler
	View   View
}

// registry returns a fresh lifecycle registry, and normalizes a nil view.
func (d *Deps) normalize() {
	if d.View == nil {
		d.View = NopView{}
	}
}

// report routes an error to the central handler when one is wired.
func (d *Deps) report(e *errs.Error) {
	if d.Errors != nil {
		d.Errors.Report(e)
	}
}
