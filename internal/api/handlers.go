// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/monstim/internal/emg"
	"github.com/ManuGH/monstim/internal/jobs"
	"github.com/ManuGH/monstim/internal/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startTime).String(),
	})
}

// handleReady reports ready once the first import has produced a catalog.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.Catalog() == nil {
		writeServiceUnavailable(w, "no data imported yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.Status()
	resp := map[string]any{
		"version": s.version,
		"uptime":  time.Since(s.startTime).String(),
		"import":  status,
	}
	if c := s.Catalog(); c != nil {
		resp["experiments"] = len(c.Experiments())
		resp["datasets"] = c.NumDatasets()
		resp["sessions"] = c.NumSessions()
	}
	writeJSON(w, http.StatusOK, resp)
}

// configResponse exposes the analysis parameters clients need to interpret
// results. Runtime settings like listen addresses stay internal.
type configResponse struct {
	BinSize             float64   `json:"bin_size"`
	TimeWindow          float64   `json:"time_window"`
	DefaultMethod       string    `json:"default_method"`
	DefaultChannelNames []string  `json:"default_channel_names"`
	Lowcut              float64   `json:"lowcut"`
	Highcut             float64   `json:"highcut"`
	Order               int       `json:"order"`
	MStart              []float64 `json:"m_start"`
	MDuration           float64   `json:"m_duration"`
	HStart              []float64 `json:"h_start"`
	HDuration           float64   `json:"h_duration"`
	HThreshold          float64   `json:"h_threshold"`
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := s.holder.Current()
	writeJSON(w, http.StatusOK, configResponse{
		BinSize:             cfg.BinSize,
		TimeWindow:          cfg.TimeWindow,
		DefaultMethod:       cfg.DefaultMethod,
		DefaultChannelNames: cfg.DefaultChannelNames,
		Lowcut:              cfg.ButterFilter.Lowcut,
		Highcut:             cfg.ButterFilter.Highcut,
		Order:               cfg.ButterFilter.Order,
		MStart:              cfg.MStart,
		MDuration:           cfg.MDuration,
		HStart:              cfg.HStart,
		HDuration:           cfg.HDuration,
		HThreshold:          cfg.HThreshold,
	})
}

func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	if err := s.holder.Reload(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	// New parameters make every cached result stale.
	s.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if !s.refreshing.CompareAndSwap(false, true) {
		writeConflict(w, "import already in progress")
		return
	}
	defer s.refreshing.Store(false)

	logger := log.WithComponentFromContext(r.Context(), "api")
	catalog, status, err := s.refreshFn(r.Context())
	if status != nil {
		s.SetStatus(*status)
	}
	if err != nil {
		logger.Error().Err(err).Str("event", "import.failed").Msg("import via API failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"status": status,
		})
		return
	}

	s.SetCatalog(catalog)
	s.cache.Clear()

	cfg := s.holder.Current()
	if err := jobs.WriteReports(r.Context(), catalog, cfg.ReportDir); err != nil {
		logger.Error().Err(err).Str("event", "import.report_failed").Msg("report writing failed after import")
	}
	writeJSON(w, http.StatusOK, status)
}

type experimentSummary struct {
	Name     string   `json:"name"`
	Datasets []string `json:"datasets"`
}

func (s *Server) handleListExperiments(w http.ResponseWriter, _ *http.Request) {
	c := s.Catalog()
	if c == nil {
		writeServiceUnavailable(w, "no data imported yet")
		return
	}
	out := make([]experimentSummary, 0)
	for _, exp := range c.Experiments() {
		out = append(out, summarizeExperiment(exp))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	c := s.Catalog()
	if c == nil {
		writeServiceUnavailable(w, "no data imported yet")
		return
	}
	name := chi.URLParam(r, "name")
	for _, exp := range c.Experiments() {
		if exp.Name() == name {
			writeJSON(w, http.StatusOK, summarizeExperiment(exp))
			return
		}
	}
	writeNotFound(w)
}

func summarizeExperiment(exp *emg.Experiment) experimentSummary {
	sum := experimentSummary{Name: exp.Name(), Datasets: []string{}}
	for _, ds := range exp.Datasets() {
		sum.Datasets = append(sum.Datasets, ds.ID())
	}
	return sum
}

type datasetDetail struct {
	ID            string   `json:"id"`
	FormattedName string   `json:"formatted_name"`
	Date          string   `json:"date"`
	AnimalID      string   `json:"animal_id"`
	Condition     string   `json:"condition"`
	NumChannels   int      `json:"num_channels"`
	ScanRate      int      `json:"scan_rate"`
	Sessions      []string `json:"sessions"`
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.datasetFromRequest(w, r)
	if !ok {
		return
	}
	detail := datasetDetail{
		ID:            ds.ID(),
		FormattedName: ds.FormattedName(),
		Date:          ds.Date(),
		AnimalID:      ds.AnimalID(),
		Condition:     ds.Condition(),
		NumChannels:   ds.NumChannels(),
		ScanRate:      ds.ScanRate(),
		Sessions:      []string{},
	}
	for _, sess := range ds.Sessions() {
		detail.Sessions = append(detail.Sessions, sess.ID())
	}
	writeJSON(w, http.StatusOK, detail)
}

type sessionDetail struct {
	ID             string              `json:"id"`
	Info           emg.SessionInfo     `json:"info"`
	ChannelNames   []string            `json:"channel_names"`
	StimStart      float64             `json:"stim_start_ms"`
	Recordings     int                 `json:"recordings"`
	Excluded       []int               `json:"excluded_recordings"`
	LatencyWindows []emg.LatencyWindow `json:"latency_windows"`
	Parameters     []string            `json:"parameters"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	excluded := sess.ExcludedIDs()
	if excluded == nil {
		excluded = []int{}
	}
	writeJSON(w, http.StatusOK, sessionDetail{
		ID:             sess.ID(),
		Info:           sess.Info(),
		ChannelNames:   sess.ChannelNames(),
		StimStart:      sess.StimStart(),
		Recordings:     len(sess.Recordings()),
		Excluded:       excluded,
		LatencyWindows: sess.LatencyWindows(),
		Parameters:     sess.ParametersReport(),
	})
}

// sessionImportInfo is the stored import metadata for one session.
type sessionImportInfo struct {
	SessionID  string    `json:"session_id"`
	SourcePath string    `json:"source_path"`
	ImportedAt time.Time `json:"imported_at"`
}

// handleDatasetSessions lists a dataset's sessions with their import
// provenance from the store.
func (s *Server) handleDatasetSessions(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.datasetFromRequest(w, r)
	if !ok {
		return
	}
	recs, err := s.store.ListSessions(r.Context(), ds.ID())
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str("event", "store.list_failed").Msg("failed to list sessions")
		writeInternalError(w)
		return
	}
	out := make([]sessionImportInfo, 0, len(recs))
	for _, rec := range recs {
		out = append(out, sessionImportInfo{
			SessionID:  rec.SessionID,
			SourcePath: rec.SourcePath,
			ImportedAt: rec.ImportedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	s.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// datasetFromRequest resolves the {id} URL parameter against the catalog.
func (s *Server) datasetFromRequest(w http.ResponseWriter, r *http.Request) (*emg.Dataset, bool) {
	c := s.Catalog()
	if c == nil {
		writeServiceUnavailable(w, "no data imported yet")
		return nil, false
	}
	ds, ok := c.Dataset(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return nil, false
	}
	return ds, true
}

// sessionFromRequest resolves the {id} URL parameter against the catalog.
func (s *Server) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*emg.Session, bool) {
	c := s.Catalog()
	if c == nil {
		writeServiceUnavailable(w, "no data imported yet")
		return nil, false
	}
	sess, ok := c.Session(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return nil, false
	}
	return sess, true
}
