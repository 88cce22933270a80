// Package api is the REST client for the dashboard backend. Reads flow
// through the state store's cache-aside wrapper with per-resource TTLs;
// mutations invalidate the collections they touch.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/modelpulse/modelpulse/internal/config"
	"github.com/modelpulse/modelpulse/internal/errs"
	"github.com/modelpulse/modelpulse/internal/metrics"
	"github.com/modelpulse/modelpulse/internal/state"
)

// Client talks to the backend REST surface.
type Client struct {
	baseURL string
	http    *http.Client
	store   *state.Store
	ttls    config.CacheConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Set
}

// NewClient builds a REST client over the shared store.
func NewClient(cfg config.APIConfig, ttls config.CacheConfig, store *state.Store, m *metrics.Set) *Client {
	failureThreshold := cfg.Circuit.FailureThreshold
	if failureThreshold == 0 {
		failureThreshold = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "backend-api",
		MaxRequests: cfg.Circuit.MaxRequests,
		Interval:    cfg.Circuit.Interval,
		Timeout:     cfg.Circuit.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
	})

	rps := cfg.RPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(rps)
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		store:   store,
		ttls:    ttls,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: breaker,
		metrics: m,
	}
}

// errorBody is the backend's error response shape.
type errorBody struct {
	Detail string `json:"detail"`
}

// do performs one HTTP exchange through the rate limiter and circuit
// breaker, decoding the JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errs.New(errs.CategoryNetwork, errs.SeverityMedium, op, err)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})
	c.metrics.APIRequest(op, err != nil)
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return errs.New(errs.CategoryNetwork, errs.SeverityHigh, op, err).
				WithRecovery(errs.RecoveryManual).
				WithUserMessage("Backend is unreachable. Requests are paused.")
		}
		if e, ok := err.(*errs.Error); ok {
			return e
		}
		return errs.New(errs.CategoryNetwork, errs.SeverityMedium, op, err).
			WithRecovery(errs.RecoveryRetry).
			WithUserMessage("Request failed. Retrying...")
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case *multipartBody:
		reader = b.buf
		contentType = b.contentType
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		if eb.Detail == "" {
			eb.Detail = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, eb.Detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// cachedFetch routes a typed GET through the store's cache-aside wrapper.
// When the shared cache tier hands back a JSON-generic value of the wrong
// dynamic type, the read falls through to a forced refetch.
func cachedFetch[T any](ctx context.Context, c *Client, key, resource string, force bool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	opts := state.FetchOptions{CacheTTL: c.ttls.TTLFor(resource), ForceRefresh: force}
	fetch := func(ctx context.Context) (interface{}, error) { return fn(ctx) }

	v, err := c.store.GetCachedOrFetch(ctx, key, fetch, opts)
	if err != nil {
		return zero, err
	}
	if typed, ok := v.(T); ok {
		return typed, nil
	}

	opts.ForceRefresh = true
	v, err = c.store.GetCachedOrFetch(ctx, key, fetch, opts)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected cached value for %s", key)
	}
	return typed, nil
}

// getJSON is the uncached typed GET.
func getJSON[T any](ctx context.Context, c *Client, op, path string) (T, error) {
	var out T
	err := c.do(ctx, op, http.MethodGet, path, nil, &out)
	return out, err
}

// Datasets

func (c *Client) ListDatasets(ctx context.Context, force bool) ([]Dataset, error) {
	return cachedFetch(ctx, c, "datasets", "datasets", force, func(ctx context.Context) ([]Dataset, error) {
		return getJSON[[]Dataset](ctx, c, "datasets.list", "/datasets")
	})
}

func (c *Client) GetDataset(ctx context.Context, id string) (Dataset, error) {
	return cachedFetch(ctx, c, "datasets:"+id, "datasets", false, func(ctx context.Context) (Dataset, error) {
		return getJSON[Dataset](ctx, c, "datasets.get", "/datasets/"+id)
	})
}

// multipartBody carries an encoded multipart upload.
type multipartBody struct {
	buf         *bytes.Buffer
	contentType string
}

// UploadDataset streams a file to the backend and invalidates the datasets
// collection so the next list shows it.
func (c *Client) UploadDataset(ctx context.Context, name, filename string, r io.Reader) (Dataset, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if err := w.WriteField("name", name); err != nil {
		return Dataset{}, errs.New(errs.CategoryUpload, errs.SeverityMedium, "datasets.upload", err)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return Dataset{}, errs.New(errs.CategoryUpload, errs.SeverityMedium, "datasets.upload", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return Dataset{}, errs.New(errs.CategoryUpload, errs.SeverityMedium, "datasets.upload", err)
	}
	if err := w.Close(); err != nil {
		return Dataset{}, errs.New(errs.CategoryUpload, errs.SeverityMedium, "datasets.upload", err)
	}

	var out Dataset
	err = c.do(ctx, "datasets.upload", http.MethodPost, "/upload",
		&multipartBody{buf: buf, contentType: w.FormDataContentType()}, &out)
	if err != nil {
		return Dataset{}, err
	}
	c.store.Invalidate("datasets")
	return out, nil
}

func (c *Client) DeleteDataset(ctx context.Context, id string) error {
	if err := c.do(ctx, "datasets.delete", http.MethodDelete, "/datasets/"+id, nil, nil); err != nil {
		return err
	}
	c.store.Invalidate("datasets")
	c.store.Invalidate("datasets:" + id)
	return nil
}

// Models

func (c *Client) ListModels(ctx context.Context, force bool) ([]Model, error) {
	return cachedFetch(ctx, c, "models", "models", force, func(ctx context.Context) ([]Model, error) {
		return getJSON[[]Model](ctx, c, "models.list", "/models")
	})
}

func (c *Client) GetModel(ctx context.Context, id string) (Model, error) {
	return cachedFetch(ctx, c, "models:"+id, "models", false, func(ctx context.Context) (Model, error) {
		return getJSON[Model](ctx, c, "models.get", "/models/"+id)
	})
}

func (c *Client) DeployModel(ctx context.Context, id string) (Model, error) {
	var out Model
	if err := c.do(ctx, "models.deploy", http.MethodPost, "/models/"+id+"/deploy", nil, &out); err != nil {
		return Model{}, err
	}
	c.store.Invalidate("models")
	c.store.Invalidate("models:" + id)
	return out, nil
}

func (c *Client) DeleteModel(ctx context.Context, id string) error {
	if err := c.do(ctx, "models.delete", http.MethodDelete, "/models/"+id, nil, nil); err != nil {
		return err
	}
	c.store.Invalidate("models")
	c.store.Invalidate("models:" + id)
	return nil
}

func (c *Client) Predict(ctx context.Context, id string, input map[string]interface{}) (Prediction, error) {
	var out Prediction
	err := c.do(ctx, "models.predict", http.MethodPost, "/models/"+id+"/predict", input, &out)
	return out, err
}

// Pipelines

func (c *Client) ListPipelines(ctx context.Context, force bool) ([]Pipeline, error) {
	return cachedFetch(ctx, c, "pipelines", "pipelines", force, func(ctx context.Context) ([]Pipeline, error) {
		return getJSON[[]Pipeline](ctx, c, "pipelines.list", "/pipelines")
	})
}

func (c *Client) CreatePipeline(ctx context.Context, p Pipeline) (Pipeline, error) {
	var out Pipeline
	if err := c.do(ctx, "pipelines.create", http.MethodPost, "/pipelines", p, &out); err != nil {
		return Pipeline{}, err
	}
	c.store.Invalidate("pipelines")
	return out, nil
}

func (c *Client) RunPipeline(ctx context.Context, id string) (PipelineRun, error) {
	var out PipelineRun
	if err := c.do(ctx, "pipelines.run", http.MethodPost, "/pipelines/"+id+"/run", nil, &out); err != nil {
		return PipelineRun{}, err
	}
	c.store.Invalidate("pipelines")
	return out, nil
}

func (c *Client) PipelineStatus(ctx context.Context, id string) (PipelineRun, error) {
	return getJSON[PipelineRun](ctx, c, "pipelines.status", "/pipelines/"+id+"/status")
}

// Training

func (c *Client) StartTraining(ctx context.Context, req TrainingRequest) (TrainingJob, error) {
	var out TrainingJob
	err := c.do(ctx, "training.start", http.MethodPost, "/train", req, &out)
	return out, err
}

// TrainingStatus is never cached: the event stream is the primary source
// and a stale poll would fight it.
func (c *Client) TrainingStatus(ctx context.Context, jobID string) (TrainingJob, error) {
	return getJSON[TrainingJob](ctx, c, "training.status", "/training/"+jobID)
}

// Settings

func (c *Client) GetSettings(ctx context.Context, force bool) (Settings, error) {
	return cachedFetch(ctx, c, "settings", "settings", force, func(ctx context.Context) (Settings, error) {
		return getJSON[Settings](ctx, c, "settings.get", "/settings")
	})
}

func (c *Client) SaveSettings(ctx context.Context, s Settings) error {
	if err := c.do(ctx, "settings.save", http.MethodPost, "/settings", s, nil); err != nil {
		return err
	}
	c.store.Invalidate("settings")
	return nil
}

// Activity

func (c *Client) Activity(ctx context.Context) ([]Activity, error) {
	return getJSON[[]Activity](ctx, c, "activity.list", "/activity")
}

// Monitoring

func (c *Client) MonitoringMetrics(ctx context.Context, force bool) (MonitoringMetrics, error) {
	return cachedFetch(ctx, c, "monitoring:metrics", "metrics", force, func(ctx context.Context) (MonitoringMetrics, error) {
		return getJSON[MonitoringMetrics](ctx, c, "monitoring.metrics", "/monitoring/metrics")
	})
}

func (c *Client) Services(ctx context.Context, force bool) ([]ServiceStatus, error) {
	return cachedFetch(ctx, c, "monitoring:services", "services", force, func(ctx context.Context) ([]ServiceStatus, error) {
		return getJSON[[]ServiceStatus](ctx, c, "monitoring.services", "/monitoring/services")
	})
}

func (c *Client) Alerts(ctx context.Context, force bool) ([]Alert, error) {
	return cachedFetch(ctx, c, "monitoring:alerts", "alerts", force, func(ctx context.Context) ([]Alert, error) {
		return getJSON[[]Alert](ctx, c, "monitoring.alerts", "/monitoring/alerts")
	})
}

func (c *Client) AcknowledgeAlert(ctx context.Context, id string) error {
	body := map[string]string{"alert_id": id}
	if err := c.do(ctx, "monitoring.ack", http.MethodPost, "/monitoring/alerts/acknowledge", body, nil); err != nil {
		return err
	}
	c.store.Invalidate("monitoring:alerts")
	return nil
}

// Components

func (c *Client) ComponentsHealth(ctx context.Context, force bool) ([]ComponentHealth, error) {
	return cachedFetch(ctx, c, "components:health", "services", force, func(ctx context.Context) ([]ComponentHealth, error) {
		return getJSON[[]ComponentHealth](ctx, c, "components.health", "/components/health")
	})
}
