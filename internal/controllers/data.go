package controllers

import (
	"context"
	"io"
	"sync"

	"github.com/modelpulse/modelpulse/internal/api"
	"github.com/modelpulse/modelpulse/internal/errs"
	"github.com/modelpulse/modelpulse/internal/events"
	"github.com/modelpulse/modelpulse/internal/lifecycle"
)

// DataModel is the data management page snapshot.
type DataModel struct {
	Datasets []api.Dataset
	Loading  bool
}

// Data manages the dataset list: listing, upload, deletion, and live
// refresh when the backend announces a processed dataset.
type Data struct {
	deps Deps
	reg  *lifecycle.Registry

	mu    sync.Mutex
	model DataModel
}

func NewData(deps Deps) *Data {
	deps.normalize()
	return &Data{deps: deps, reg: lifecycle.NewRegistry()}
}

func (c *Data) Page() string { return "data" }

func (c *Data) Start(ctx context.Context) error {
	c.reg.OnStream(c.deps.Conn, events.TypeDatasetProcessed, func(events.Event) {
		// The collection changed server-side; drop the cached copy and
		// reload.
		c.deps.Store.Invalidate("datasets")
		c.reload(context.Background(), false)
	})

	c.reload(ctx, false)
	return nil
}

// Refresh forces a reload past the cache.
func (c *Data) Refresh(ctx context.Context) {
	c.reload(ctx, true)
}

func (c *Data) reload(ctx context.Context, force bool) {
	c.mu.Lock()
	c.model.Loading = true
	c.mu.Unlock()
	c.render()

	datasets, err := c.deps.API.ListDatasets(ctx, force)

	c.mu.Lock()
	c.model.Loading = false
	if err == nil {
		c.model.Datasets = datasets
	}
	c.mu.Unlock()

	if err != nil {
		if e, ok := err.(*errs.Error); ok {
			c.deps.report(e)
		} else {
			c.deps.report(errs.New(errs.CategoryNetwork, errs.SeverityMedium, "datasets.list", err).
				WithUserMessage("Could not load datasets."))
		}
	}
	c.render()
}

// Upload sends a dataset file and reloads the list.
func (c *Data) Upload(ctx context.Context, name, filename string, r io.Reader) (api.Dataset, error) {
	ds, err := c.deps.API.UploadDataset(ctx, name, filename, r)
	if err != nil {
		if e, ok := err.(*errs.Error); ok {
			c.deps.report(e)
		}
		return api.Dataset{}, err
	}
	c.reload(ctx, false)
	return ds, nil
}

// Delete removes a dataset and reloads the list.
func (c *Data) Delete(ctx context.Context, id string) error {
	if err := c.deps.API.DeleteDataset(ctx, id); err != nil {
		return err
	}
	c.reload(ctx, false)
	return nil
}

func (c *Data) Snapshot() DataModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.model
	snap.Datasets = append([]api.Dataset(nil), c.model.Datasets...)
	return snap
}

func (c *Data) render() {
	c.deps.View.Update(c.Page(), c.Snapshot())
}

func (c *Data) Destroy() {
	c.reg.Dispose()
}
