// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api provides the HTTP surface of the analyzer daemon: catalog
// browsing, analysis endpoints backed by the result cache, and operational
// endpoints for import and config reload.
package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/monstim/internal/cache"
	"github.com/ManuGH/monstim/internal/config"
	"github.com/ManuGH/monstim/internal/jobs"
	"github.com/ManuGH/monstim/internal/store"
)

// resultTTL bounds how long a cached analysis result is served before it is
// recomputed. Imports and config reloads invalidate earlier.
const resultTTL = 15 * time.Minute

// Server is the HTTP API server for the analyzer daemon.
type Server struct {
	holder *config.Holder
	store  *store.Store
	cache  cache.Cache

	catalog atomic.Pointer[jobs.Catalog]

	statusMu sync.RWMutex
	status   jobs.Status

	// refreshing serializes import runs triggered via the API.
	refreshing atomic.Bool

	// refreshFn allows tests to stub the import; defaults to the importer.
	refreshFn func(context.Context) (*jobs.Catalog, *jobs.Status, error)

	startTime time.Time
	version   string
}

// NewServer wires the API server to its configuration, store, cache and
// importer.
func NewServer(holder *config.Holder, st *store.Store, c cache.Cache, importer *jobs.Importer, version string) *Server {
	return &Server{
		holder:    holder,
		store:     st,
		cache:     c,
		refreshFn: importer.Run,
		startTime: time.Now(),
		version:   version,
	}
}

// SetCatalog swaps in the catalog from a completed import.
func (s *Server) SetCatalog(c *jobs.Catalog) {
	s.catalog.Store(c)
}

// Catalog returns the current catalog, or nil before the first import.
func (s *Server) Catalog() *jobs.Catalog {
	return s.catalog.Load()
}

// SetStatus records the outcome of the last import run.
func (s *Server) SetStatus(st jobs.Status) {
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

// Status returns the last recorded import status.
func (s *Server) Status() jobs.Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}
