package controllers

import (
	"context"
	"sync"
	"time"

	"github.com/modelpulse/modelpulse/internal/api"
	"github.com/modelpulse/modelpulse/internal/errs"
	"github.com/modelpulse/modelpulse/internal/events"
	"github.com/modelpulse/modelpulse/internal/lifecycle"
	"github.com/modelpulse/modelpulse/internal/ws"
)

// MonitoringModel is the monitoring page snapshot.
type MonitoringModel struct {
	Metrics     api.MonitoringMetrics
	Services    []api.ServiceStatus
	Alerts      []api.Alert
	Performance events.PerformanceMetrics
}

// MonitoringIntervals are the fallback polling intervals used while the
// event stream is degraded or down.
type MonitoringIntervals struct {
	Metrics  time.Duration
	Services time.Duration
	Alerts   time.Duration
}

// Monitoring shows services, alerts, and live performance metrics. Stream
// events keep the page current; polling only fills in when the stream is
// not connected.
type Monitoring struct {
	deps      Deps
	reg       *lifecycle.Registry
	intervals MonitoringIntervals

	mu    sync.Mutex
	model MonitoringModel
}

func NewMonitoring(deps Deps, intervals MonitoringIntervals) *Monitoring {
	deps.normalize()
	if intervals.Metrics <= 0 {
		intervals.Metrics = 10 * time.Second
	}
	if intervals.Services <= 0 {
		intervals.Services = 15 * time.Second
	}
	if intervals.Alerts <= 0 {
		intervals.Alerts = 20 * time.Second
	}
	return &Monitoring{deps: deps, reg: lifecycle.NewRegistry(), intervals: intervals}
}

func (c *Monitoring) Page() string { return "monitoring" }

func (c *Monitoring) Start(ctx context.Context) error {
	c.reg.OnStream(c.deps.Conn, events.TypeServiceHealth, c.onServiceHealth)
	c.reg.OnStream(c.deps.Conn, events.TypePerformanceMetrics, c.onPerformance)

	c.refreshAll(ctx)

	ticker := time.NewTicker(c.intervals.Metrics)
	c.reg.TrackTicker(ticker)
	done := make(chan struct{})
	c.reg.OnDispose(func() { close(done) })
	go c.pollLoop(ticker, done)

	return nil
}

// pollLoop is the fallback path: it only hits the API when the stream
// cannot deliver.
func (c *Monitoring) pollLoop(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if c.deps.Conn.Info().Status == ws.StatusConnected {
				continue
			}
			c.refreshAll(context.Background())
		}
	}
}

func (c *Monitoring) refreshAll(ctx context.Context) {
	metrics, err := c.deps.API.MonitoringMetrics(ctx, false)
	if err == nil {
		c.mu.Lock()
		c.model.Metrics = metrics
		c.mu.Unlock()
	} else {
		c.reportErr("monitoring.metrics", err)
	}

	services, err := c.deps.API.Services(ctx, false)
	if err == nil {
		c.mu.Lock()
		c.model.Services = services
		c.mu.Unlock()
	} else {
		c.reportErr("monitoring.services", err)
	}

	alerts, err := c.deps.API.Alerts(ctx, false)
	if err == nil {
		c.mu.Lock()
		c.model.Alerts = alerts
		c.mu.Unlock()
	} else {
		c.reportErr("monitoring.alerts", err)
	}

	c.render()
}

func (c *Monitoring) onServiceHealth(ev events.Event) {
	sh, ok := ev.(events.ServiceHealth)
	if !ok {
		return
	}

	c.mu.Lock()
	found := false
	for i := range c.model.Services {
		if c.model.Services[i].Name == sh.Service {
			c.model.Services[i].Status = sh.Status
			c.model.Services[i].UptimePct = sh.UptimePct
			c.model.Services[i].LatencyMS = sh.LatencyMS
			found = true
			break
		}
	}
	if !found {
		c.model.Services = append(c.model.Services, api.ServiceStatus{
			Name: sh.Service, Status: sh.Status, UptimePct: sh.UptimePct, LatencyMS: sh.LatencyMS,
		})
	}
	c.mu.Unlock()

	c.deps.Store.Invalidate("monitoring:services")
	c.render()
}

func (c *Monitoring) onPerformance(ev events.Event) {
	pm, ok := ev.(events.PerformanceMetrics)
	if !ok {
		return
	}
	c.mu.Lock()
	c.model.Performance = pm
	c.mu.Unlock()
	c.render()
}

// Acknowledge marks an alert acknowledged and refetches the alert list.
func (c *Monitoring) Acknowledge(ctx context.Context, alertID string) error {
	if err := c.deps.API.AcknowledgeAlert(ctx, alertID); err != nil {
		c.reportErr("monitoring.ack", err)
		return err
	}

	alerts, err := c.deps.API.Alerts(ctx, false)
	if err == nil {
		c.mu.Lock()
		c.model.Alerts = alerts
		c.mu.Unlock()
		c.render()
	}
	return nil
}

func (c *Monitoring) reportErr(op string, err error) {
	if e, ok := err.(*errs.Error); ok {
		c.deps.report(e)
		return
	}
	c.deps.report(errs.New(errs.CategoryNetwork, errs.SeverityLow, op, err))
}

func (c *Monitoring) Snapshot() MonitoringModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.model
	snap.Services = append([]api.ServiceStatus(nil), c.model.Services...)
	snap.Alerts = append([]api.Alert(nil), c.model.Alerts...)
	return snap
}

func (c *Monitoring) render() {
	c.deps.View.Update(c.Page(), c.Snapshot())
}

func (c *Monitoring) Destroy() {
	c.reg.Dispose()
}
