package controllers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelpulse/modelpulse/internal/api"
	"github.com/modelpulse/modelpulse/internal/config"
	"github.com/modelpulse/modelpulse/internal/errs"
	"github.com/modelpulse/modelpulse/internal/events"
	"github.com/modelpulse/modelpulse/internal/state"
	"github.com/modelpulse/modelpulse/internal/ws"
)

// fakeStream is a controllable Stream for controller tests.
type fakeStream struct {
	mu              sync.Mutex
	nextID          int
	handlers        map[string]map[int]events.Handler
	info            ws.Info
	metricsRequests atomic.Int32
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		handlers: make(map[string]map[int]events.Handler),
		info:     ws.Info{Status: ws.StatusConnected, Quality: ws.QualityGood},
	}
}

func (f *fakeStream) On(event string, handler events.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	if f.handlers[event] == nil {
		f.handlers[event] = make(map[int]events.Handler)
	}
	f.handlers[event][id] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[event], id)
	}
}

func (f *fakeStream) Off(string, events.Handler) {}

func (f *fakeStream) Info() ws.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info
}

func (f *fakeStream) RequestMetrics() bool {
	f.metricsRequests.Add(1)
	return true
}

// emit delivers ev to the event's subscribers, like the read loop would.
func (f *fakeStream) emit(ev events.Event) {
	f.mu.Lock()
	hs := make([]events.Handler, 0, len(f.handlers[ev.EventType()]))
	for _, h := range f.handlers[ev.EventType()] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (f *fakeStream) subscriberCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[event])
}

// recordingView captures the last snapshot per page.
type recordingView struct {
	mu      sync.Mutex
	updates map[string]int
	last    map[string]interface{}
}

func newRecordingView() *recordingView {
	return &recordingView{updates: make(map[string]int), last: make(map[string]interface{})}
}

func (v *recordingView) Update(page string, model interface{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.updates[page]++
	v.last[page] = model
}

func (v *recordingView) count(page string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updates[page]
}

// backend is a canned REST server with per-path hit counters.
type backend struct {
	srv  *httptest.Server
	mu   sync.Mutex
	hits map[string]int
	body map[string]string
}

func newBackend(t *testing.T) *backend {
	b := &backend{
		hits: make(map[string]int),
		body: map[string]string{
			"/activity":           `[{"title":"Model trained","status":"success","timestamp":"t2"},{"title":"Dataset uploaded","status":"success","timestamp":"t1"}]`,
			"/datasets":           `[{"id":"ds-1","name":"iris","status":"ready"}]`,
			"/settings":           `{"refresh_interval_seconds":30,"notifications_enabled":true,"theme":"dark"}`,
			"/monitoring/metrics": `{"cpu_percent":40.0,"memory_percent":60.0,"requests_per_second":12.5}`,
			"/monitoring/services": `[{"name":"api","status":"healthy","uptime_pct":99.9},` +
				`{"name":"worker","status":"healthy","uptime_pct":99.5}]`,
			"/monitoring/alerts": `[{"id":"al-1","severity":"warning","message":"disk filling","acknowledged":false}]`,
			"/components/health": `[{"component":"database","status":"healthy","latency_ms":4.0}]`,
		},
	}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.URL.Path]++
		body, ok := b.body[r.URL.Path]
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.Write([]byte(`{}`))
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) hitCount(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

func (b *backend) setBody(path, body string) {
	b.mu.Lock()
	b.body[path] = body
	b.mu.Unlock()
}

func testDeps(t *testing.T, b *backend) (Deps, *fakeStream, *recordingView) {
	cfg := config.Default().API
	cfg.BaseURL = b.srv.URL
	cfg.RPS = 1000
	cfg.Burst = 1000

	store := state.NewStore(nil, nil)
	t.Cleanup(func() { store.Close() })

	stream := newFakeStream()
	view := newRecordingView()
	deps := Deps{
		Conn:   stream,
		Store:  store,
		API:    api.NewClient(cfg, config.Default().Cache, store, nil),
		Errors: errs.NewHandler(),
		View:   view,
	}
	return deps, stream, view
}

func TestDashboard_StartSeedsAndSubscribes(t *testing.T) {
	b := newBackend(t)
	deps, stream, _ := testDeps(t, b)

	d := NewDashboard(deps)
	require.NoError(t, d.Start(context.Background()))
	defer d.Destroy()

	snap := d.Snapshot()
	// The feed API returns newest first; the model keeps oldest first.
	require.Len(t, snap.Activities, 2)
	assert.Equal(t, "Dataset uploaded", snap.Activities[0].Title)
	assert.Equal(t, "Model trained", snap.Activities[1].Title)

	assert.Equal(t, int32(1), stream.metricsRequests.Load(), "start requests an immediate metrics push")
	assert.Equal(t, 1, stream.subscriberCount(events.TypeSystemMetrics))
	assert.Equal(t, ws.StatusConnected, d.Snapshot().Connection.Status)
}

func TestDashboard_FoldsStreamEvents(t *testing.T) {
	b := newBackend(t)
	deps, stream, view := testDeps(t, b)

	d := NewDashboard(deps)
	require.NoError(t, d.Start(context.Background()))
	defer d.Destroy()

	stream.emit(events.SystemMetrics{CPUPercent: 73.5, SystemHealth: "warning"})
	snap := d.Snapshot()
	assert.Equal(t, 73.5, snap.Metrics.CPUPercent)
	assert.Equal(t, "warning", snap.Health)

	// The metrics push is memoized in the store for other pages.
	cached, ok := deps.Store.Get("system:metrics", nil).(events.SystemMetrics)
	require.True(t, ok)
	assert.Equal(t, 73.5, cached.CPUPercent)

	stream.emit(events.TrainingProgress{JobID: "job-1", Progress: 45})
	assert.Equal(t, 45.0, d.Snapshot().Training["job-1"].Progress)

	stream.emit(events.TrainingCompleted{JobID: "job-1", Message: "accuracy 0.93"})
	snap = d.Snapshot()
	assert.NotContains(t, snap.Training, "job-1")
	assert.Equal(t, "Training completed", snap.Activities[len(snap.Activities)-1].Title)

	stream.emit(events.HealthChange{Health: "critical", Previous: "warning"})
	assert.Equal(t, "critical", d.Snapshot().Health)

	assert.Greater(t, view.count("dashboard"), 4)
}

func TestDashboard_ModelDeployedInvalidatesModels(t *testing.T) {
	b := newBackend(t)
	deps, stream, _ := testDeps(t, b)

	deps.Store.Set("models", []api.Model{{ID: "stale"}}, state.SetOptions{Cache: true})

	d := NewDashboard(deps)
	require.NoError(t, d.Start(context.Background()))
	defer d.Destroy()

	stream.emit(events.ModelDeployed{ModelID: "m-1", ModelName: "clf", Version: "v2"})

	var fetched atomic.Int32
	_, err := deps.Store.GetCachedOrFetch(context.Background(), "models", func(ctx context.Context) (interface{}, error) {
		fetched.Add(1)
		return nil, nil
	}, state.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetched.Load(), "deploy event must drop the cached models")

	last := d.Snapshot().Activities[len(d.Snapshot().Activities)-1]
	assert.Equal(t, "Model deployed", last.Title)
	assert.Equal(t, "clf v2", last.Description)
}

func TestDashboard_ActivityFeedBounded(t *testing.T) {
	b := newBackend(t)
	b.setBody("/activity", `[]`)
	deps, stream, _ := testDeps(t, b)

	d := NewDashboard(deps)
	require.NoError(t, d.Start(context.Background()))
	defer d.Destroy()

	for i := 0; i < activityFeedSize+20; i++ {
		stream.emit(events.ActivityUpdate{Title: fmt.Sprintf("entry-%d", i)})
	}

	snap := d.Snapshot()
	require.Len(t, snap.Activities, activityFeedSize)
	assert.Equal(t, "entry-20", snap.Activities[0].Title, "oldest entries fall off")
	assert.Equal(t, fmt.Sprintf("entry-%d", activityFeedSize+19), snap.Activities[activityFeedSize-1].Title)
}

func TestDashboard_DestroyStopsUpdates(t *testing.T) {
	b := newBackend(t)
	deps, stream, _ := testDeps(t, b)

	d := NewDashboard(deps)
	require.NoError(t, d.Start(context.Background()))

	stream.emit(events.SystemMetrics{CPUPercent: 10})
	assert.Equal(t, 10.0, d.Snapshot().Metrics.CPUPercent)

	d.Destroy()
	assert.Equal(t, 0, stream.subscriberCount(events.TypeSystemMetrics))

	stream.emit(events.SystemMetrics{CPUPercent: 99})
	assert.Equal(t, 10.0, d.Snapshot().Metrics.CPUPercent, "destroyed controller must not fold events")

	d.Destroy() // idempotent
}

func TestData_LoadAndLiveRefresh(t *testing.T) {
	b := newBackend(t)
	deps, stream, _ := testDeps(t, b)

	c := NewData(deps)
	require.NoError(t, c.Start(context.Background()))
	defer c.Destroy()

	snap := c.Snapshot()
	require.Len(t, snap.Datasets, 1)
	assert.Equal(t, "iris", snap.Datasets[0].Name)
	assert.False(t, snap.Loading)

	// The backend announces a new dataset; the controller invalidates and
	// reloads past the cache.
	b.setBody("/datasets", `[{"id":"ds-1","name":"iris","status":"ready"},{"id":"ds-2","name":"sales","status":"processing"}]`)
	stream.emit(events.DatasetProcessed{DatasetID: "ds-2", Name: "sales"})

	snap = c.Snapshot()
	require.Len(t, snap.Datasets, 2)
	assert.Equal(t, "sales", snap.Datasets[1].Name)
	assert.Equal(t, 2, b.hitCount("/datasets"))
}

func TestData_RefreshForcesFetch(t *testing.T) {
	b := newBackend(t)
	deps, _, _ := testDeps(t, b)

	c := NewData(deps)
	require.NoError(t, c.Start(context.Background()))
	defer c.Destroy()
	require.Equal(t, 1, b.hitCount("/datasets"))

	c.Refresh(context.Background())
	assert.Equal(t, 2, b.hitCount("/datasets"))
}

func TestMonitoring_SeedAndStreamUpdates(t *testing.T) {
	b := newBackend(t)
	deps, stream, _ := testDeps(t, b)

	c := NewMonitoring(deps, MonitoringIntervals{Metrics: time.Hour, Services: time.Hour, Alerts: time.Hour})
	require.NoError(t, c.Start(context.Background()))
	defer c.Destroy()

	snap := c.Snapshot()
	assert.Equal(t, 40.0, snap.Metrics.CPUPercent)
	require.Len(t, snap.Services, 2)
	require.Len(t, snap.Alerts, 1)

	// In-place update for a known service.
	stream.emit(events.ServiceHealth{Service: "api", Status: "degraded", UptimePct: 97.2, LatencyMS: 220})
	snap = c.Snapshot()
	require.Len(t, snap.Services, 2)
	assert.Equal(t, "degraded", snap.Services[0].Status)
	assert.Equal(t, 97.2, snap.Services[0].UptimePct)

	// Unknown services are appended.
	stream.emit(events.ServiceHealth{Service: "scheduler", Status: "healthy"})
	assert.Len(t, c.Snapshot().Services, 3)

	stream.emit(events.PerformanceMetrics{RequestsPerSecond: 88, P95LatencyMS: 140})
	assert.Equal(t, 88.0, c.Snapshot().Performance.RequestsPerSecond)
}

func TestMonitoring_AcknowledgeRefetchesAlerts(t *testing.T) {
	b := newBackend(t)
	deps, _, _ := testDeps(t, b)

	c := NewMonitoring(deps, MonitoringIntervals{Metrics: time.Hour})
	require.NoError(t, c.Start(context.Background()))
	defer c.Destroy()
	require.Equal(t, 1, b.hitCount("/monitoring/alerts"))

	b.setBody("/monitoring/alerts", `[{"id":"al-1","severity":"warning","message":"disk filling","acknowledged":true}]`)
	require.NoError(t, c.Acknowledge(context.Background(), "al-1"))

	snap := c.Snapshot()
	require.Len(t, snap.Alerts, 1)
	assert.True(t, snap.Alerts[0].Acknowledged)
	assert.Equal(t, 2, b.hitCount("/monitoring/alerts"))
}

func TestSettingsPage_EditSaveCycle(t *testing.T) {
	b := newBackend(t)
	deps, _, _ := testDeps(t, b)

	c := NewSettingsPage(deps)
	require.NoError(t, c.Start(context.Background()))
	defer c.Destroy()

	snap := c.Snapshot()
	assert.Equal(t, "dark", snap.Settings.Theme)
	assert.False(t, snap.Dirty)

	edited := snap.Settings
	edited.Theme = "light"
	c.Edit(edited)
	snap = c.Snapshot()
	assert.True(t, snap.Dirty)
	assert.False(t, snap.Saved)

	require.NoError(t, c.Save(context.Background()))
	snap = c.Snapshot()
	assert.False(t, snap.Dirty)
	assert.True(t, snap.Saved)
	assert.Equal(t, 2, b.hitCount("/settings")) // the initial GET plus the save POST
}

func TestArchitecture_ComponentHealthMerge(t *testing.T) {
	b := newBackend(t)
	deps, stream, _ := testDeps(t, b)

	c := NewArchitecture(deps)
	require.NoError(t, c.Start(context.Background()))
	defer c.Destroy()

	snap := c.Snapshot()
	require.Len(t, snap.Components, 1)
	assert.Equal(t, "database", snap.Components[0].Component)

	stream.emit(events.ComponentHealth{Component: "database", Status: "degraded", LatencyMS: 95, Message: "slow queries"})
	snap = c.Snapshot()
	require.Len(t, snap.Components, 1)
	assert.Equal(t, "degraded", snap.Components[0].Status)
	assert.Equal(t, "slow queries", snap.Components[0].Message)

	stream.emit(events.ComponentHealth{Component: "queue", Status: "healthy"})
	assert.Len(t, c.Snapshot().Components, 2)
}
