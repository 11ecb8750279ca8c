// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// Handler builds the routing tree with the canonical middleware stack.
func (s *Server) Handler() http.Handler {
	cfg := s.holder.Current()

	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(requestMetrics)
	r.Use(accessLog)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRPS > 0 {
			limit, window := cfg.RateLimitRPS, time.Second
			if cfg.RateLimitBurst > limit {
				// Widen the sliding window so spikes up to the burst
				// size pass while the average rate stays at the
				// configured RPS.
				limit = cfg.RateLimitBurst
				window = time.Duration(cfg.RateLimitBurst) * time.Second / time.Duration(cfg.RateLimitRPS)
			}
			r.Use(httprate.LimitByIP(limit, window))
		}

		r.Get("/status", s.handleStatus)
		r.Get("/config", s.handleConfig)
		r.Post("/config/reload", s.handleConfigReload)

		r.Get("/experiments", s.handleListExperiments)
		r.Get("/experiments/{name}", s.handleGetExperiment)
		r.Get("/datasets/{id}", s.handleGetDataset)
		r.Get("/datasets/{id}/sessions", s.handleDatasetSessions)
		r.Get("/datasets/{id}/mmax", s.handleDatasetMMax)
		r.Get("/datasets/{id}/curve", s.handleDatasetCurve)

		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/sessions/{id}/mmax", s.handleSessionMMax)
		r.Get("/sessions/{id}/curve", s.handleSessionReflex)
		r.Get("/sessions/{id}/suspected-h", s.handleSessionSuspectedH)

		// Import is expensive; keep its own tighter limit.
		r.With(httprate.LimitByIP(10, time.Minute)).Post("/import", s.handleImport)

		r.Get("/cache/stats", s.handleCacheStats)
		r.Delete("/cache", s.handleCacheClear)
	})

	return r
}
