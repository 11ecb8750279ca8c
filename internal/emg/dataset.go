// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package emg

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ManuGH/monstim/internal/log"
	"github.com/ManuGH/monstim/internal/sigproc"
)

// Dataset groups the sessions of one animal under one experimental condition.
// All sessions must share scan rate, channel count and stimulus onset.
type Dataset struct {
	mu sync.Mutex

	date      string
	animalID  string
	condition string

	sessions []*Session
	params   AnalysisParams

	scanRate    int
	numChannels int
	stimStart   float64

	avgMMax []float64 // lazily computed per channel
}

// NewDataset builds a dataset from sessions, excluding any whose ID appears
// in excludeSessionIDs. Inconsistent acquisition parameters are an error.
func NewDataset(sessions []*Session, date, animalID, condition string, excludeSessionIDs []string, params AnalysisParams) (*Dataset, error) {
	excluded := map[string]struct{}{}
	for _, id := range excludeSessionIDs {
		excluded[id] = struct{}{}
	}
	kept := make([]*Session, 0, len(sessions))
	for _, sess := range sessions {
		if _, skip := excluded[sess.ID()]; !skip {
			kept = append(kept, sess)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("dataset %s %s %s: no sessions", date, animalID, condition)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ID() < kept[j].ID() })

	if err := checkSessionConsistency(kept); err != nil {
		return nil, fmt.Errorf("dataset %s %s %s: %w", date, animalID, condition, err)
	}

	ref := kept[0].Info()
	d := &Dataset{
		date:        date,
		animalID:    animalID,
		condition:   condition,
		sessions:    kept,
		params:      params,
		scanRate:    ref.ScanRate,
		numChannels: ref.NumChannels,
		stimStart:   kept[0].StimStart(),
	}

	logger := log.WithComponent("emg")
	logger.Info().
		Str("event", "dataset.init").
		Str(log.FieldDatasetID, d.ID()).
		Int("sessions", len(kept)).
		Msg("dataset initialized")
	return d, nil
}

func checkSessionConsistency(sessions []*Session) error {
	ref := sessions[0].Info()
	refStimStart := sessions[0].StimStart()
	for _, sess := range sessions[1:] {
		info := sess.Info()
		if info.ScanRate != ref.ScanRate {
			return fmt.Errorf("inconsistent scan_rate for %s: %d != %d", info.SessionID, info.ScanRate, ref.ScanRate)
		}
		if info.NumChannels != ref.NumChannels {
			return fmt.Errorf("inconsistent num_channels for %s: %d != %d", info.SessionID, info.NumChannels, ref.NumChannels)
		}
		if sess.StimStart() != refStimStart {
			return fmt.Errorf("inconsistent stim_start for %s: %g != %g", info.SessionID, sess.StimStart(), refStimStart)
		}
	}
	return nil
}

// ID is the canonical dataset identifier, derived from date, animal and
// condition.
func (d *Dataset) ID() string {
	return fmt.Sprintf("%s_%s_%s", d.date, d.animalID, strings.ReplaceAll(d.condition, " ", "-"))
}

// FormattedName is the human-readable dataset name.
func (d *Dataset) FormattedName() string {
	return fmt.Sprintf("%s %s %s", d.date, d.animalID, d.condition)
}

// Date returns the recording date (YYYY-MM-DD).
func (d *Dataset) Date() string { return d.date }

// AnimalID returns the animal identifier.
func (d *Dataset) AnimalID() string { return d.animalID }

// Condition returns the experimental condition.
func (d *Dataset) Condition() string { return d.condition }

// NumChannels returns the shared channel count.
func (d *Dataset) NumChannels() int { return d.numChannels }

// ScanRate returns the shared scan rate in Hz.
func (d *Dataset) ScanRate() int { return d.scanRate }

// Sessions returns the sessions in the dataset, ordered by session ID.
func (d *Dataset) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Session(nil), d.sessions...)
}

// Session returns the session with the given ID.
func (d *Dataset) Session(sessionID string) (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sess := range d.sessions {
		if sess.ID() == sessionID {
			return sess, nil
		}
	}
	return nil, fmt.Errorf("dataset %s: session %s not found", d.ID(), sessionID)
}

// AddSession adds a session, rechecking consistency. Adding a session ID that
// already exists is an error.
func (d *Dataset) AddSession(sess *Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.sessions {
		if existing.ID() == sess.ID() {
			return fmt.Errorf("dataset %s: session %s already present", d.ID(), sess.ID())
		}
	}
	candidate := append(append([]*Session(nil), d.sessions...), sess)
	if err := checkSessionConsistency(candidate); err != nil {
		return fmt.Errorf("dataset %s: %w", d.ID(), err)
	}
	sort.Slice(candidate, func(i, j int) bool { return candidate[i].ID() < candidate[j].ID() })
	d.sessions = candidate
	d.avgMMax = nil
	return nil
}

// RemoveSession drops a session by ID. Removing the last session is an error
// since a dataset without sessions cannot be analyzed.
func (d *Dataset) RemoveSession(sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.sessions) == 1 && d.sessions[0].ID() == sessionID {
		return fmt.Errorf("dataset %s: cannot remove the only session", d.ID())
	}
	kept := d.sessions[:0]
	found := false
	for _, sess := range d.sessions {
		if sess.ID() == sessionID {
			found = true
			continue
		}
		kept = append(kept, sess)
	}
	if !found {
		return fmt.Errorf("dataset %s: session %s not found", d.ID(), sessionID)
	}
	d.sessions = kept
	d.avgMMax = nil
	return nil
}

// InvertChannelPolarity inverts a channel across every session in the
// dataset.
func (d *Dataset) InvertChannelPolarity(channel int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sess := range d.sessions {
		if err := sess.InvertChannelPolarity(channel); err != nil {
			return err
		}
	}
	d.avgMMax = nil
	return nil
}

// ResetDerived drops the cached dataset averages, forcing recomputation.
func (d *Dataset) ResetDerived() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.avgMMax = nil
}

// AvgMMax averages the per-channel M-max over all sessions, skipping sessions
// where a channel has no calculable value. A channel with no valid value in
// any session is an error.
func (d *Dataset) AvgMMax(ctx context.Context) ([]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.avgMMax != nil {
		return append([]float64(nil), d.avgMMax...), nil
	}

	perSession := make([][]ChannelMMax, len(d.sessions))
	for i, sess := range d.sessions {
		mMax, err := sess.MMax(ctx)
		if err != nil {
			return nil, err
		}
		perSession[i] = mMax
	}

	avg := make([]float64, d.numChannels)
	for ch := 0; ch < d.numChannels; ch++ {
		var values []float64
		for _, mMax := range perSession {
			if mMax[ch].Valid {
				values = append(values, mMax[ch].MMax)
			}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("dataset %s: no valid M-max values found for channel %d", d.ID(), ch)
		}
		avg[ch] = sigproc.Mean(values)
	}
	d.avgMMax = avg

	logger := log.WithComponent("emg")
	logger.Info().
		Str("event", "dataset.avg_mmax").
		Str(log.FieldDatasetID, d.ID()).
		Msg("average M-max values computed")
	return append([]float64(nil), avg...), nil
}

// processedRecordings collects the processed recordings of every session.
func (d *Dataset) processedRecordings(ctx context.Context) ([]Recording, error) {
	var all []Recording
	for _, sess := range d.sessions {
		recs, err := sess.ProcessedRecordings(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return all, nil
}

// ReflexCurve bins the pooled recordings of all sessions by stimulus voltage
// and returns mean and standard deviation of the M and H amplitudes per bin
// for one channel.
func (d *Dataset) ReflexCurve(ctx context.Context, channel int, method sigproc.Method) ([]BinnedPoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if channel < 0 || channel >= d.numChannels {
		return nil, fmt.Errorf("dataset %s: channel %d out of range [0, %d)", d.ID(), channel, d.numChannels)
	}
	recs, err := d.processedRecordings(ctx)
	if err != nil {
		return nil, err
	}

	ref := d.sessions[0]
	ref.mu.Lock()
	mStart, mEnd := ref.mWindowLocked(channel)
	hStart, hEnd := ref.hWindowLocked(channel)
	ref.mu.Unlock()

	return binReflexAmplitudes(recs, channel, mStart, mEnd, hStart, hEnd, d.params.BinSize, d.scanRate, method)
}
