// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/monstim/internal/cache"
	"github.com/ManuGH/monstim/internal/log"
	"github.com/ManuGH/monstim/internal/metrics"
	"github.com/ManuGH/monstim/internal/sigproc"
)

// methodFromQuery resolves the ?method= parameter, falling back to the
// configured default.
func (s *Server) methodFromQuery(r *http.Request) (sigproc.Method, error) {
	q := r.URL.Query().Get("method")
	if q == "" {
		q = s.holder.Current().DefaultMethod
	}
	return sigproc.ParseMethod(q)
}

// channelFromQuery resolves the ?channel= parameter, defaulting to channel 0.
func channelFromQuery(r *http.Request) (int, error) {
	q := r.URL.Query().Get("channel")
	if q == "" {
		return 0, nil
	}
	ch, err := strconv.Atoi(q)
	if err != nil || ch < 0 {
		return 0, fmt.Errorf("invalid channel %q", q)
	}
	return ch, nil
}

// serveCached serves an analysis result from the cache or computes, stores
// and serves it. The compute result is marshaled once and cached as raw JSON.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, ownerID, kind string, parts []string, compute func() (any, error)) {
	key := cache.Key(ownerID, kind, parts...)
	if data, ok := s.cache.Get(key); ok {
		metrics.IncCacheHit()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
		return
	}
	metrics.IncCacheMiss()

	start := time.Now()
	result, err := compute()
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ObserveAnalysisDuration(kind, time.Since(start).Seconds())

	data, err := json.Marshal(result)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str("event", "analysis.marshal_failed").Msg("failed to marshal analysis result")
		writeInternalError(w)
		return
	}
	s.cache.Set(key, data, resultTTL)

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) handleSessionMMax(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	s.serveCached(w, r, sess.ID(), "mmax", nil, func() (any, error) {
		mMax, err := sess.MMax(r.Context())
		if err != nil {
			metrics.IncMMaxOutcome("error")
			return nil, err
		}
		for _, entry := range mMax {
			if entry.Valid {
				metrics.IncMMaxOutcome("valid")
			} else {
				metrics.IncMMaxOutcome("no_plateau")
			}
		}
		return mMax, nil
	})
}

func (s *Server) handleSessionReflex(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	method, err := s.methodFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	channel, err := channelFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	parts := []string{string(method), strconv.Itoa(channel)}
	s.serveCached(w, r, sess.ID(), "reflex", parts, func() (any, error) {
		return sess.ReflexAmplitudes(r.Context(), channel, method)
	})
}

func (s *Server) handleSessionSuspectedH(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	method, err := s.methodFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	channel, err := channelFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	parts := []string{string(method), strconv.Itoa(channel)}
	s.serveCached(w, r, sess.ID(), "suspected_h", parts, func() (any, error) {
		return sess.SuspectedH(r.Context(), channel, method)
	})
}

func (s *Server) handleDatasetMMax(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.datasetFromRequest(w, r)
	if !ok {
		return
	}
	s.serveCached(w, r, ds.ID(), "avg_mmax", nil, func() (any, error) {
		avg, err := ds.AvgMMax(r.Context())
		if err != nil {
			return nil, err
		}
		return map[string]any{"dataset_id": ds.ID(), "avg_mmax": avg}, nil
	})
}

func (s *Server) handleDatasetCurve(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.datasetFromRequest(w, r)
	if !ok {
		return
	}
	method, err := s.methodFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	channel, err := channelFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	parts := []string{string(method), strconv.Itoa(channel)}
	s.serveCached(w, r, ds.ID(), "curve", parts, func() (any, error) {
		return ds.ReflexCurve(r.Context(), channel, method)
	})
}
