// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package emg

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ManuGH/monstim/internal/sigproc"
)

// Experiment is an ordered collection of datasets, typically the conditions
// recorded across the animals of one study.
type Experiment struct {
	mu sync.Mutex

	name     string
	datasets []*Dataset
	params   AnalysisParams
}

// NewExperiment groups datasets under one experiment name. Datasets are
// ordered by ID. All datasets must share channel count and scan rate.
func NewExperiment(name string, datasets []*Dataset, params AnalysisParams) (*Experiment, error) {
	if name == "" {
		return nil, fmt.Errorf("experiment has no name")
	}
	if len(datasets) == 0 {
		return nil, fmt.Errorf("experiment %s: no datasets", name)
	}

	sorted := append([]*Dataset(nil), datasets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })

	ref := sorted[0]
	for _, ds := range sorted[1:] {
		if ds.NumChannels() != ref.NumChannels() {
			return nil, fmt.Errorf("experiment %s: inconsistent num_channels for %s: %d != %d",
				name, ds.ID(), ds.NumChannels(), ref.NumChannels())
		}
		if ds.ScanRate() != ref.ScanRate() {
			return nil, fmt.Errorf("experiment %s: inconsistent scan_rate for %s: %d != %d",
				name, ds.ID(), ds.ScanRate(), ref.ScanRate())
		}
	}

	return &Experiment{name: name, datasets: sorted, params: params}, nil
}

// Name returns the experiment name.
func (e *Experiment) Name() string { return e.name }

// Datasets returns the datasets, ordered by dataset ID.
func (e *Experiment) Datasets() []*Dataset {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Dataset(nil), e.datasets...)
}

// Dataset returns the dataset with the given ID.
func (e *Experiment) Dataset(datasetID string) (*Dataset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ds := range e.datasets {
		if ds.ID() == datasetID {
			return ds, nil
		}
	}
	return nil, fmt.Errorf("experiment %s: dataset %s not found", e.name, datasetID)
}

// RenameChannels cascades a channel rename down to every session of every
// dataset.
func (e *Experiment) RenameChannels(names map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ds := range e.datasets {
		for _, sess := range ds.Sessions() {
			if err := sess.RenameChannels(names); err != nil {
				return err
			}
		}
	}
	return nil
}

// AvgMMax averages the dataset-level M-max values per channel across all
// datasets in the experiment.
func (e *Experiment) AvgMMax(ctx context.Context) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	numChannels := e.datasets[0].NumChannels()
	perChannel := make([][]float64, numChannels)
	for _, ds := range e.datasets {
		avg, err := ds.AvgMMax(ctx)
		if err != nil {
			return nil, err
		}
		for ch, v := range avg {
			perChannel[ch] = append(perChannel[ch], v)
		}
	}

	out := make([]float64, numChannels)
	for ch, values := range perChannel {
		out[ch] = sigproc.Mean(values)
	}
	return out, nil
}
