// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/monstim/internal/emg"
	"github.com/ManuGH/monstim/internal/log"
	"github.com/ManuGH/monstim/internal/metrics"
)

// DatasetReport is the JSON report written for one dataset after import.
type DatasetReport struct {
	DatasetID     string          `json:"dataset_id"`
	FormattedName string          `json:"formatted_name"`
	Date          string          `json:"date"`
	AnimalID      string          `json:"animal_id"`
	Condition     string          `json:"condition"`
	ChannelNames  []string        `json:"channel_names"`
	AvgMMax       []float64       `json:"avg_mmax,omitempty"`
	AvgMMaxError  string          `json:"avg_mmax_error,omitempty"`
	Sessions      []SessionReport `json:"sessions"`
	GeneratedAt   time.Time       `json:"generated_at"`
}

// SessionReport summarizes one session inside a dataset report.
type SessionReport struct {
	SessionID  string            `json:"session_id"`
	Recordings int               `json:"recordings"`
	Excluded   []int             `json:"excluded_recordings,omitempty"`
	MMax       []emg.ChannelMMax `json:"mmax"`
}

// WriteReports writes one report file per dataset in the catalog. Failures
// are logged and counted but do not abort the remaining reports.
func WriteReports(ctx context.Context, catalog *Catalog, reportDir string) error {
	if reportDir == "" {
		return nil
	}
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	logger := log.WithComponentFromContext(ctx, "jobs")
	var firstErr error
	for _, exp := range catalog.Experiments() {
		for _, ds := range exp.Datasets() {
			if err := writeDatasetReport(ctx, ds, reportDir); err != nil {
				metrics.RecordReportWrite(err)
				logger.Error().
					Err(err).
					Str("event", "report.write_failed").
					Str(log.FieldDatasetID, ds.ID()).
					Msg("failed to write dataset report")
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			metrics.RecordReportWrite(nil)
		}
	}
	return firstErr
}

func writeDatasetReport(ctx context.Context, ds *emg.Dataset, reportDir string) error {
	report := DatasetReport{
		DatasetID:     ds.ID(),
		FormattedName: ds.FormattedName(),
		Date:          ds.Date(),
		AnimalID:      ds.AnimalID(),
		Condition:     ds.Condition(),
		GeneratedAt:   time.Now().UTC(),
	}

	sessions := ds.Sessions()
	if len(sessions) > 0 {
		report.ChannelNames = sessions[0].ChannelNames()
	}
	for _, sess := range sessions {
		mMax, err := sess.MMax(ctx)
		if err != nil {
			return fmt.Errorf("session %s: %w", sess.ID(), err)
		}
		report.Sessions = append(report.Sessions, SessionReport{
			SessionID:  sess.ID(),
			Recordings: len(sess.Recordings()),
			Excluded:   sess.ExcludedIDs(),
			MMax:       mMax,
		})
	}

	if avg, err := ds.AvgMMax(ctx); err != nil {
		// A dataset with no calculable M-max still gets a report.
		report.AvgMMaxError = err.Error()
	} else {
		report.AvgMMax = avg
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report %s: %w", ds.ID(), err)
	}

	path := filepath.Join(reportDir, ds.ID()+".json")
	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}

	logger := log.WithComponentFromContext(ctx, "jobs")
	logger.Debug().
		Str("event", "report.written").
		Str(log.FieldDatasetID, ds.ID()).
		Str(log.FieldReportPath, path).
		Msg("dataset report written")
	return nil
}

// atomicWrite writes data with temp file, fsync and atomic rename so readers
// never observe a partial report.
func atomicWrite(path string, data []byte) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return err
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return err
	}
	return pending.CloseAtomicallyReplace()
}
