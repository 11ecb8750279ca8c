// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package jobs implements the import pipeline: scanning the data directory
// for session files, assembling datasets and experiments, persisting them and
// writing reports.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/monstim/internal/cache"
	"github.com/ManuGH/monstim/internal/config"
	"github.com/ManuGH/monstim/internal/emg"
	"github.com/ManuGH/monstim/internal/log"
	"github.com/ManuGH/monstim/internal/metrics"
	"github.com/ManuGH/monstim/internal/store"
)

// Status represents the outcome of the last import run.
type Status struct {
	JobID       string    `json:"job_id"`
	LastRun     time.Time `json:"last_run"`
	Experiments int       `json:"experiments"`
	Datasets    int       `json:"datasets"`
	Sessions    int       `json:"sessions"`
	Warnings    []string  `json:"warnings,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Importer scans the data directory and turns session files into the
// persisted and in-memory catalog.
type Importer struct {
	store  *store.Store
	cache  cache.Cache
	holder *config.Holder
}

// NewImporter wires an importer to its store, cache and configuration.
func NewImporter(st *store.Store, c cache.Cache, holder *config.Holder) *Importer {
	return &Importer{store: st, cache: c, holder: holder}
}

// Run performs one import cycle over the configured data directory.
//
// Layout: <data_dir>/<experiment>/<date animal condition>/<session>.json.
// A directory named "bin" at the top level is skipped. Per-dataset failures
// are collected as warnings; the run only fails when the directory itself is
// unreadable or nothing imports.
func (imp *Importer) Run(ctx context.Context) (*Catalog, *Status, error) {
	logger := log.WithComponentFromContext(ctx, "jobs")
	cfg := imp.holder.Current()

	status := &Status{
		JobID:   uuid.NewString(),
		LastRun: time.Now().UTC(),
	}
	logger.Info().
		Str("event", "import.start").
		Str(log.FieldJobID, status.JobID).
		Str(log.FieldDataDir, cfg.DataDir).
		Msg("starting data directory import")

	params, err := emg.ParamsFromConfig(cfg)
	if err != nil {
		metrics.IncImportFailure("config")
		return nil, status, err
	}

	entries, err := os.ReadDir(cfg.DataDir)
	if err != nil {
		metrics.IncImportFailure("scan")
		return nil, status, fmt.Errorf("scan data dir: %w", err)
	}

	var experiments []*emg.Experiment
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "bin" || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, status, err
		}

		exp, warnings := imp.importExperiment(ctx, filepath.Join(cfg.DataDir, entry.Name()), entry.Name(), params)
		status.Warnings = append(status.Warnings, warnings...)
		if exp != nil {
			experiments = append(experiments, exp)
		}
	}

	catalog := NewCatalog(experiments)
	status.Experiments = len(experiments)
	status.Datasets = catalog.NumDatasets()
	status.Sessions = catalog.NumSessions()
	metrics.RecordImportCounts(status.Sessions, status.Datasets)

	if status.Sessions == 0 {
		status.Error = "no sessions imported"
		return catalog, status, fmt.Errorf("no sessions imported from %s", cfg.DataDir)
	}

	logger.Info().
		Str("event", "import.complete").
		Str(log.FieldJobID, status.JobID).
		Int("experiments", status.Experiments).
		Int("datasets", status.Datasets).
		Int("sessions", status.Sessions).
		Int("warnings", len(status.Warnings)).
		Msg("import complete")
	return catalog, status, nil
}

func (imp *Importer) importExperiment(ctx context.Context, dir, name string, params emg.AnalysisParams) (*emg.Experiment, []string) {
	logger := log.WithComponentFromContext(ctx, "jobs")

	entries, err := os.ReadDir(dir)
	if err != nil {
		metrics.IncImportFailure("scan")
		return nil, []string{fmt.Sprintf("experiment %s: %v", name, err)}
	}

	var warnings []string
	var datasets []*emg.Dataset
	for _, entry := range entries {
		if !entry.IsDir() {
			warnings = append(warnings, fmt.Sprintf("experiment %s: skipping stray file %s", name, entry.Name()))
			continue
		}
		ds, warn := imp.importDataset(ctx, filepath.Join(dir, entry.Name()), entry.Name(), name, params)
		warnings = append(warnings, warn...)
		if ds != nil {
			datasets = append(datasets, ds)
		}
	}
	if len(datasets) == 0 {
		warnings = append(warnings, fmt.Sprintf("experiment %s: no datasets", name))
		return nil, warnings
	}

	exp, err := emg.NewExperiment(name, datasets, params)
	if err != nil {
		metrics.IncImportFailure("dataset")
		return nil, append(warnings, err.Error())
	}

	if err := imp.store.UpsertExperiment(ctx, name); err != nil {
		metrics.IncImportFailure("store")
		warnings = append(warnings, err.Error())
	}
	logger.Debug().
		Str("event", "import.experiment").
		Str(log.FieldExperimentID, name).
		Int("datasets", len(datasets)).
		Msg("experiment imported")
	return exp, warnings
}

func (imp *Importer) importDataset(ctx context.Context, dir, dirName, experiment string, params emg.AnalysisParams) (*emg.Dataset, []string) {
	dsName, err := ParseDatasetDirName(dirName)
	if err != nil {
		metrics.IncImportFailure("scan")
		return nil, []string{err.Error()}
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		metrics.IncImportFailure("scan")
		return nil, []string{fmt.Sprintf("dataset %s: %v", dirName, err)}
	}
	sort.Strings(paths)

	var warnings []string
	var sessions []*emg.Session
	var records []store.SessionRecord
	for _, path := range paths {
		sess, rec, err := loadSessionFile(path, params)
		if err != nil {
			metrics.IncImportFailure("parse")
			warnings = append(warnings, err.Error())
			continue
		}
		sessions = append(sessions, sess)
		records = append(records, rec)
	}
	if len(sessions) == 0 {
		warnings = append(warnings, fmt.Sprintf("dataset %s: no loadable sessions", dirName))
		return nil, warnings
	}

	ds, err := emg.NewDataset(sessions, dsName.Date, dsName.AnimalID, dsName.Condition, nil, params)
	if err != nil {
		metrics.IncImportFailure("dataset")
		return nil, append(warnings, err.Error())
	}

	if err := imp.persistDataset(ctx, ds, experiment, records); err != nil {
		metrics.IncImportFailure("store")
		warnings = append(warnings, err.Error())
	}
	return ds, warnings
}

func loadSessionFile(path string, params emg.AnalysisParams) (*emg.Session, store.SessionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, store.SessionRecord{}, fmt.Errorf("read %s: %w", path, err)
	}

	var raw emg.RawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, store.SessionRecord{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if raw.Info.SessionID == "" {
		// Fall back to the file name for converters that omit the ID.
		raw.Info.SessionID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	sess, err := emg.NewSession(raw, params)
	if err != nil {
		return nil, store.SessionRecord{}, fmt.Errorf("%s: %w", path, err)
	}

	rec := store.SessionRecord{
		SessionID:  sess.ID(),
		Info:       raw.Info,
		Recordings: raw.Recordings,
		SourcePath: path,
		ImportedAt: time.Now().UTC(),
	}
	return sess, rec, nil
}

func (imp *Importer) persistDataset(ctx context.Context, ds *emg.Dataset, experiment string, records []store.SessionRecord) error {
	if err := imp.store.UpsertExperiment(ctx, experiment); err != nil {
		return err
	}
	if err := imp.store.UpsertDataset(ctx, store.DatasetRecord{
		DatasetID:  ds.ID(),
		Experiment: experiment,
		Date:       ds.Date(),
		AnimalID:   ds.AnimalID(),
		Condition:  ds.Condition(),
		ImportedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	for _, rec := range records {
		rec.DatasetID = ds.ID()
		if err := imp.store.UpsertSession(ctx, rec); err != nil {
			return err
		}
		// A re-imported session invalidates its cached analyses.
		imp.cache.Invalidate(rec.SessionID)
	}
	return nil
}
