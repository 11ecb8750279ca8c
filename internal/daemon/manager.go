// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon manages the analyzer daemon lifecycle: the initial import,
// the HTTP and metrics servers, periodic rescans and graceful shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/monstim/internal/api"
	"github.com/ManuGH/monstim/internal/cache"
	"github.com/ManuGH/monstim/internal/config"
	"github.com/ManuGH/monstim/internal/jobs"
	"github.com/ManuGH/monstim/internal/log"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 60 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 30 * time.Second
)

// ShutdownHook is a cleanup function run during graceful shutdown. Hooks are
// executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// Manager runs the daemon: servers, import cycles and shutdown.
type Manager struct {
	holder   *config.Holder
	apiSrv   *api.Server
	importer *jobs.Importer
	cache    cache.Cache

	apiServer     *http.Server
	metricsServer *http.Server

	// RescanInterval triggers periodic data directory rescans. Zero disables
	// the ticker; SIGHUP and config reloads still rescan.
	RescanInterval time.Duration

	rescanning atomic.Bool

	mu            sync.Mutex
	started       bool
	stopping      bool
	shutdownHooks []namedHook

	logger zerolog.Logger
}

// NewManager wires the daemon manager to its dependencies.
func NewManager(holder *config.Holder, apiSrv *api.Server, importer *jobs.Importer, c cache.Cache) *Manager {
	return &Manager{
		holder:   holder,
		apiSrv:   apiSrv,
		importer: importer,
		cache:    c,
		logger:   log.WithComponent("daemon"),
	}
}

// RegisterShutdownHook registers a cleanup function for graceful shutdown.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}

// Start performs the initial import, starts all servers and blocks until the
// context is cancelled or a server fails.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	cfg := m.holder.Current()
	m.logger.Info().
		Str("event", "daemon.start").
		Str("listen", cfg.ListenAddr).
		Str(log.FieldDataDir, cfg.DataDir).
		Msg("starting daemon")

	// Initial import. A failure is not fatal: the daemon serves /healthz and
	// stays unready until a rescan or API-triggered import succeeds.
	m.rescan(ctx)

	if err := m.holder.StartWatcher(ctx); err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}

	reloads := make(chan config.Config, 1)
	m.holder.RegisterListener(reloads)

	errChan := make(chan error, 2)
	m.startAPIServer(errChan)
	if cfg.MetricsEnabled {
		m.startMetricsServer(cfg.MetricsAddr, errChan)
	}

	go m.controlLoop(ctx, reloads)

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Str("event", "daemon.server_failed").Msg("server error, initiating shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if shutdownErr := m.Shutdown(shutdownCtx); shutdownErr != nil {
			return errors.Join(err, shutdownErr)
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Str("event", "daemon.shutdown_signal").Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return m.Shutdown(shutdownCtx)
	}
}

// controlLoop reacts to SIGHUP, config reloads and the rescan ticker.
func (m *Manager) controlLoop(ctx context.Context, reloads <-chan config.Config) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var tick <-chan time.Time
	if m.RescanInterval > 0 {
		ticker := time.NewTicker(m.RescanInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			m.logger.Info().Str("event", "daemon.sighup").Msg("SIGHUP received, reloading config and rescanning")
			if err := m.holder.Reload(ctx); err != nil {
				m.logger.Error().Err(err).Str("event", "daemon.reload_failed").Msg("config reload failed")
				continue
			}
			// The listener channel also fires for this reload; draining it
			// here avoids a duplicate rescan.
			select {
			case <-reloads:
			default:
			}
			m.cache.Clear()
			m.rescan(ctx)
		case <-reloads:
			m.logger.Info().Str("event", "daemon.config_changed").Msg("configuration changed, rescanning data directory")
			m.cache.Clear()
			m.rescan(ctx)
		case <-tick:
			m.rescan(ctx)
		}
	}
}

// rescan runs one import cycle and publishes the result to the API server.
// Concurrent rescans collapse into one.
func (m *Manager) rescan(ctx context.Context) {
	if !m.rescanning.CompareAndSwap(false, true) {
		return
	}
	defer m.rescanning.Store(false)

	catalog, status, err := m.importer.Run(ctx)
	if status != nil {
		m.apiSrv.SetStatus(*status)
	}
	if err != nil {
		m.logger.Error().Err(err).Str("event", "daemon.rescan_failed").Msg("data directory rescan failed")
		return
	}
	m.apiSrv.SetCatalog(catalog)

	if reportDir := m.holder.Current().ReportDir; reportDir != "" {
		if err := jobs.WriteReports(ctx, catalog, reportDir); err != nil {
			m.logger.Error().Err(err).Str("event", "daemon.reports_failed").Msg("report writing failed")
		}
	}
}

func (m *Manager) startAPIServer(errChan chan<- error) {
	cfg := m.holder.Current()
	m.apiServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           m.apiSrv.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout / 2,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	go func() {
		m.logger.Info().Str("addr", cfg.ListenAddr).Msg("API server listening")
		if err := m.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("api server: %w", err)
		}
	}()
}

func (m *Manager) startMetricsServer(addr string, errChan chan<- error) {
	if addr == "" {
		return
	}
	m.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: readTimeout / 2,
	}
	go func() {
		m.logger.Info().Str("addr", addr).Msg("metrics server listening")
		if err := m.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()
}

// Shutdown stops the servers and runs the registered hooks in LIFO order.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return fmt.Errorf("manager not started")
	}
	m.stopping = true
	hooks := append([]namedHook(nil), m.shutdownHooks...)
	m.mu.Unlock()

	m.logger.Info().Str("event", "daemon.shutdown").Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	if m.apiServer != nil {
		if err := m.apiServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
		}
	}
	if m.metricsServer != nil {
		if err := m.metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	m.holder.Stop()

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().Err(err).Str("hook", h.name).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Str("event", "daemon.stopped").Msg("daemon stopped cleanly")
	return nil
}
