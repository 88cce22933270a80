package controllers

import (
	"context"
	"sync"

	"github.com/modelpulse/modelpulse/internal/errs"
	"github.com/modelpulse/modelpulse/internal/events"
	"github.com/modelpulse/modelpulse/internal/lifecycle"
	"github.com/modelpulse/modelpulse/internal/state"
	"github.com/modelpulse/modelpulse/internal/ws"
)

// activityFeedSize bounds the dashboard's activity feed.
const activityFeedSize = 50

// DashboardModel is the dashboard page snapshot handed to the view.
type DashboardModel struct {
	Metrics    events.SystemMetrics
	Training   map[string]events.TrainingProgress
	Activities []events.ActivityUpdate
	Health     string
	Connection ws.Info
}

// Dashboard shows live system metrics, training progress, and the activity
// feed.
type Dashboard struct {
	deps Deps
	reg  *lifecycle.Registry

	mu    sync.Mutex
	model DashboardModel
}

// NewDashboard builds the dashboard controller.
func NewDashboard(deps Deps) *Dashboard {
	deps.normalize()
	return &Dashboard{
		deps: deps,
		reg:  lifecycle.NewRegistry(),
		model: DashboardModel{
			Training: make(map[string]events.TrainingProgress),
		},
	}
}

func (d *Dashboard) Page() string { return "dashboard" }

// Start registers stream handlers and seeds the activity feed from the
// REST API.
func (d *Dashboard) Start(ctx context.Context) error {
	d.reg.OnStream(d.deps.Conn, events.TypeSystemMetrics, d.onEvent)
	d.reg.OnStream(d.deps.Conn, events.TypeTrainingProgress, d.onEvent)
	d.reg.OnStream(d.deps.Conn, events.TypeTrainingCompleted, d.onEvent)
	d.reg.OnStream(d.deps.Conn, events.TypeTrainingFailed, d.onEvent)
	d.reg.OnStream(d.deps.Conn, events.TypeActivityUpdate, d.onEvent)
	d.reg.OnStream(d.deps.Conn, events.TypeHealthChange, d.onEvent)
	d.reg.OnStream(d.deps.Conn, events.TypeModelDeployed, d.onEvent)

	if activities, err := d.deps.API.Activity(ctx); err == nil {
		d.mu.Lock()
		for i := len(activities) - 1; i >= 0; i-- {
			a := activities[i]
			d.model.Activities = append(d.model.Activities, events.ActivityUpdate{
				Title: a.Title, Description: a.Description, Status: a.Status, Timestamp: a.Timestamp,
			})
		}
		d.trimActivitiesLocked()
		d.mu.Unlock()
	} else if e, ok := err.(*errs.Error); ok {
		d.deps.report(e)
	}

	// Ask for a metrics push so the page is not empty until the next
	// scheduled broadcast.
	d.deps.Conn.RequestMetrics()

	d.render()
	return nil
}

// onEvent folds one stream event into the page model.
func (d *Dashboard) onEvent(ev events.Event) {
	var metricsUpdate *events.SystemMetrics

	d.mu.Lock()
	switch e := ev.(type) {
	case events.SystemMetrics:
		d.model.Metrics = e
		if e.SystemHealth != "" {
			d.model.Health = e.SystemHealth
		}
		metricsUpdate = &e
	case events.TrainingProgress:
		d.model.Training[e.JobID] = e
	case events.TrainingCompleted:
		delete(d.model.Training, e.JobID)
		d.pushActivityLocked(events.ActivityUpdate{Title: "Training completed", Description: e.Message, Status: "success"})
	case events.TrainingFailed:
		delete(d.model.Training, e.JobID)
		d.pushActivityLocked(events.ActivityUpdate{Title: "Training failed", Description: e.Error, Status: "error"})
	case events.ActivityUpdate:
		d.pushActivityLocked(e)
	case events.HealthChange:
		d.model.Health = e.Health
	case events.ModelDeployed:
		d.pushActivityLocked(events.ActivityUpdate{
			Title: "Model deployed", Description: e.ModelName + " " + e.Version, Status: "success",
		})
		d.deps.Store.Invalidate("models")
	}
	d.model.Connection = d.deps.Conn.Info()
	d.mu.Unlock()

	if metricsUpdate != nil {
		// Memoized for other pages gating on freshness.
		d.deps.Store.Set("system:metrics", *metricsUpdate, state.SetOptions{Cache: true})
	}
	d.render()
}

func (d *Dashboard) pushActivityLocked(a events.ActivityUpdate) {
	d.model.Activities = append(d.model.Activities, a)
	d.trimActivitiesLocked()
}

func (d *Dashboard) trimActivitiesLocked() {
	if n := len(d.model.Activities); n > activityFeedSize {
		d.model.Activities = d.model.Activities[n-activityFeedSize:]
	}
}

// Snapshot returns a copy of the current page model.
func (d *Dashboard) Snapshot() DashboardModel {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := d.model
	snap.Training = make(map[string]events.TrainingProgress, len(d.model.Training))
	for k, v := range d.model.Training {
		snap.Training[k] = v
	}
	snap.Activities = append([]events.ActivityUpdate(nil), d.model.Activities...)
	return snap
}

func (d *Dashboard) render() {
	d.deps.View.Update(d.Page(), d.Snapshot())
}

// Destroy tears down every registered handler. Safe to call twice.
func (d *Dashboard) Destroy() {
	d.reg.Dispose()
}
