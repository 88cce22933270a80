package controllers

import (
	"context"
	"sync"

	"github.com/modelpulse/modelpulse/internal/api"
	"github.com/modelpulse/modelpulse/internal/errs"
	"github.com/modelpulse/modelpulse/internal/lifecycle"
)

// SettingsModel is the settings page snapshot.
type SettingsModel struct {
	Settings api.Settings
	Dirty    bool
	Saved    bool
}

// SettingsPage loads and saves the backend-held dashboard configuration.
type SettingsPage struct {
	deps Deps
	reg  *lifecycle.Registry

	mu    sync.Mutex
	model SettingsModel
}

func NewSettingsPage(deps Deps) *SettingsPage {
	deps.normalize()
	return &SettingsPage{deps: deps, reg: lifecycle.NewRegistry()}
}

func (c *SettingsPage) Page() string { return "settings" }

func (c *SettingsPage) Start(ctx context.Context) error {
	settings, err := c.deps.API.GetSettings(ctx, false)
	if err != nil {
		if e, ok := err.(*errs.Error); ok {
			c.deps.report(e)
		}
		return err
	}

	c.mu.Lock()
	c.model = SettingsModel{Settings: settings}
	c.mu.Unlock()
	c.render()
	return nil
}

// Edit stages new values locally.
func (c *SettingsPage) Edit(s api.Settings) {
	c.mu.Lock()
	c.model.Settings = s
	c.model.Dirty = true
	c.model.Saved = false
	c.mu.Unlock()
	c.render()
}

// Save persists the staged settings.
func (c *SettingsPage) Save(ctx context.Context) error {
	c.mu.Lock()
	staged := c.model.Settings
	c.mu.Unlock()

	if err := c.deps.API.SaveSettings(ctx, staged); err != nil {
		if e, ok := err.(*errs.Error); ok {
			c.deps.report(e)
		}
		return err
	}

	c.mu.Lock()
	c.model.Dirty = false
	c.model.Saved = true
	c.mu.Unlock()
	c.render()
	return nil
}

func (c *SettingsPage) Snapshot() SettingsModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

func (c *SettingsPage) render() {
	c.deps.View.Update(c.Page(), c.Snapshot())
}

func (c *SettingsPage) Destroy() {
	c.reg.Dispose()
}
