package controllers

import (
	"context"
	"sync"

	"github.com/modelpulse/modelpulse/internal/api"
	"github.com/modelpulse/modelpulse/internal/errs"
	"github.com/modelpulse/modelpulse/internal/events"
	"github.com/modelpulse/modelpulse/internal/lifecycle"
)

// ArchitectureModel is the component topology snapshot.
type ArchitectureModel struct {
	Components []api.ComponentHealth
}

// Architecture shows backend component health, updated live from the
// stream with a REST-seeded baseline.
type Architecture struct {
	deps Deps
	reg  *lifecycle.Registry

	mu    sync.Mutex
	model ArchitectureModel
}

func NewArchitecture(deps Deps) *Architecture {
	deps.normalize()
	return &Architecture{deps: deps, reg: lifecycle.NewRegistry()}
}

func (c *Architecture) Page() string { return "architecture" }

func (c *Architecture) Start(ctx context.Context) error {
	c.reg.OnStream(c.deps.Conn, events.TypeComponentHealth, c.onComponentHealth)

	components, err := c.deps.API.ComponentsHealth(ctx, false)
	if err != nil {
		if e, ok := err.(*errs.Error); ok {
			c.deps.report(e)
		}
	} else {
		c.mu.Lock()
		c.model.Components = components
		c.mu.Unlock()
	}

	c.render()
	return nil
}

func (c *Architecture) onComponentHealth(ev events.Event) {
	ch, ok := ev.(events.ComponentHealth)
	if !ok {
		return
	}

	c.mu.Lock()
	found := false
	for i := range c.model.Components {
		if c.model.Components[i].Component == ch.Component {
			c.model.Components[i].Status = ch.Status
			c.model.Components[i].LatencyMS = ch.LatencyMS
			c.model.Components[i].Message = ch.Message
			found = true
			break
		}
	}
	if !found {
		c.model.Components = append(c.model.Components, api.ComponentHealth{
			Component: ch.Component, Status: ch.Status, LatencyMS: ch.LatencyMS, Message: ch.Message,
		})
	}
	c.mu.Unlock()

	c.deps.Store.Invalidate("components:health")
	c.render()
}

func (c *Architecture) Snapshot() ArchitectureModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ArchitectureModel{Components: append([]api.ComponentHealth(nil), c.model.Components...)}
}

func (c *Architecture) render() {
	c.deps.View.Update(c.Page(), c.Snapshot())
}

func (c *Architecture) Destroy() {
	c.reg.Dispose()
}
