// Package app is the composition root. It constructs exactly one
// connection manager and one state store per process and injects them into
// every page controller, so "one logical connection" is an invariant of
// assembly rather than a runtime singleton check.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/modelpulse/modelpulse/internal/api"
	"github.com/modelpulse/modelpulse/internal/config"
	"github.com/modelpulse/modelpulse/internal/controllers"
	"github.com/modelpulse/modelpulse/internal/errs"
	"github.com/modelpulse/modelpulse/internal/metrics"
	"github.com/modelpulse/modelpulse/internal/ops"
	"github.com/modelpulse/modelpulse/internal/state"
	"github.com/modelpulse/modelpulse/internal/ws"
)

// App owns the shared services and the active page controllers.
type App struct {
	Config  *config.Config
	Metrics *metrics.Set
	Errors  *errs.Handler
	Store   *state.Store
	Conn    *ws.Client
	API     *api.Client

	opsSrv      *ops.Server
	controllers []controllers.Controller
}

// New assembles the client. view may be nil for headless use.
func New(cfg *config.Config, view controllers.View) *App {
	m := metrics.NewSet()
	eh := errs.NewHandler()

	var tier state.CacheTier
	if cfg.Cache.RedisAddr != "" {
		tier = state.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.KeyPrefix)
		log.Info().Str("addr", cfg.Cache.RedisAddr).Msg("using shared redis cache tier")
	} else {
		tier = state.NewMemoryCache()
	}

	store := state.NewStore(tier, m)
	conn := ws.NewClient(cfg.WebSocket, m, eh)
	apiClient := api.NewClient(cfg.API, cfg.Cache, store, m)

	a := &App{
		Config:  cfg,
		Metrics: m,
		Errors:  eh,
		Store:   store,
		Conn:    conn,
		API:     apiClient,
	}

	deps := controllers.Deps{
		Conn:   conn,
		Store:  store,
		API:    apiClient,
		Errors: eh,
		View:   view,
	}
	a.controllers = []controllers.Controller{
		controllers.NewDashboard(deps),
		controllers.NewData(deps),
		controllers.NewMonitoring(deps, controllers.MonitoringIntervals{
			Metrics:  cfg.Refresh.Metrics,
			Services: cfg.Refresh.Services,
			Alerts:   cfg.Refresh.Alerts,
		}),
		controllers.NewSettingsPage(deps),
		controllers.NewArchitecture(deps),
	}

	if cfg.Ops.Enabled {
		a.opsSrv = ops.NewServer(cfg.Ops.Addr, conn, store, eh, m)
	}

	return a
}

// Start connects the event stream, starts every controller, and brings up
// the ops endpoint when enabled. A failed initial dial is not fatal; the
// reconnect policy keeps trying.
func (a *App) Start(ctx context.Context) error {
	if err := a.Conn.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("initial connect failed, reconnect scheduled")
	}

	for _, c := range a.controllers {
		if err := c.Start(ctx); err != nil {
			log.Warn().Str("page", c.Page()).Err(err).Msg("controller start degraded")
		}
	}

	if a.opsSrv != nil {
		a.opsSrv.Start()
	}
	return nil
}

// Run starts the client and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	<-ctx.Done()
	a.Close()
	return nil
}

// Close tears everything down: controllers first so their handlers detach
// before the connection goes away.
func (a *App) Close() {
	for _, c := range a.controllers {
		c.Destroy()
	}
	a.Conn.Close()
	if a.opsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = a.opsSrv.Shutdown(shutdownCtx)
	}
	if err := a.Store.Close(); err != nil {
		log.Warn().Err(err).Msg("cache tier close failed")
	}
}

// Controllers exposes the live controllers, e.g. for a view that needs to
// trigger page actions.
func (a *App) Controllers() []controllers.Controller {
	return a.controllers
}
