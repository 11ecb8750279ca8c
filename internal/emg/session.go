// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package emg

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/monstim/internal/log"
	"github.com/ManuGH/monstim/internal/sigproc"
)

// Session is a single EMG recording session: an ordered sweep of stimulus
// recordings plus the analysis parameters active for it. All exported methods
// are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	info         SessionInfo
	stimStart    float64
	channelNames []string
	params       AnalysisParams

	latencyWindows []LatencyWindow
	mStart         []float64
	mDuration      []float64
	hStart         []float64
	hDuration      []float64

	recordings []Recording // active, sorted by ID
	originals  []Recording // full set, never mutated after construction
	excluded   map[int]struct{}

	processed []Recording   // lazily filtered traces
	mMax      []ChannelMMax // lazily computed per channel
}

// ChannelMMax is the M-max estimate for one channel. Valid is false when the
// recruitment curve has no detectable plateau.
type ChannelMMax struct {
	Channel     int     `json:"channel"`
	ChannelName string  `json:"channel_name"`
	Valid       bool    `json:"valid"`
	MMax        float64 `json:"mmax,omitempty"`
	StimStartV  float64 `json:"stim_start_v,omitempty"`
	StimEndV    float64 `json:"stim_end_v,omitempty"`
}

// NewSession builds a Session from wire data. Recordings are sorted by
// stimulus voltage and given stable IDs in that order.
func NewSession(raw RawSession, params AnalysisParams) (*Session, error) {
	if raw.Info.SessionID == "" {
		return nil, fmt.Errorf("session has no session_id")
	}
	if raw.Info.NumChannels <= 0 {
		return nil, fmt.Errorf("session %s: num_channels must be positive, got %d", raw.Info.SessionID, raw.Info.NumChannels)
	}
	if raw.Info.ScanRate <= 0 {
		return nil, fmt.Errorf("session %s: scan_rate must be positive, got %d", raw.Info.SessionID, raw.Info.ScanRate)
	}
	if len(raw.Recordings) == 0 {
		return nil, fmt.Errorf("session %s: no recordings", raw.Info.SessionID)
	}
	for i, rec := range raw.Recordings {
		if len(rec.ChannelData) != raw.Info.NumChannels {
			return nil, fmt.Errorf("session %s: recording %d has %d channels, expected %d",
				raw.Info.SessionID, i, len(rec.ChannelData), raw.Info.NumChannels)
		}
	}

	info := raw.Info
	// Only keep amplifier gains for channels that were actually recorded.
	if len(info.EMGAmpGains) > info.NumChannels {
		info.EMGAmpGains = info.EMGAmpGains[:info.NumChannels]
	}

	names := make([]string, info.NumChannels)
	for i := range names {
		if i < len(params.DefaultChannelNames) {
			names[i] = params.DefaultChannelNames[i]
		} else {
			names[i] = fmt.Sprintf("Channel %d", i)
		}
	}

	sorted := make([]RawRecording, len(raw.Recordings))
	copy(sorted, raw.Recordings)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StimulusV < sorted[j].StimulusV })

	recordings := make([]Recording, len(sorted))
	for i, rec := range sorted {
		recordings[i] = Recording{ID: i, StimulusV: rec.StimulusV, ChannelData: rec.ChannelData}
	}
	originals := make([]Recording, len(recordings))
	for i, rec := range recordings {
		originals[i] = rec.clone()
	}

	s := &Session{
		info:         info,
		stimStart:    info.StimDelay + info.PreStimAcquired,
		channelNames: names,
		params:       params,
		mStart:       windowsForChannels(params.MStart, info.NumChannels),
		mDuration:    windowsForChannels(params.MDuration, info.NumChannels),
		hStart:       windowsForChannels(params.HStart, info.NumChannels),
		hDuration:    windowsForChannels(params.HDuration, info.NumChannels),
		recordings:   recordings,
		originals:    originals,
		excluded:     map[int]struct{}{},
	}
	s.latencyWindows = []LatencyWindow{
		{Name: WindowMWave, Color: params.MColor, StartTimes: s.mStart, Durations: s.mDuration, LineStyle: params.LatencyWindowStyle},
		{Name: WindowHReflex, Color: params.HColor, StartTimes: s.hStart, Durations: s.hDuration, LineStyle: params.LatencyWindowStyle},
	}

	logger := log.WithComponent("emg")
	logger.Info().
		Str("event", "session.init").
		Str(log.FieldSessionID, info.SessionID).
		Int(log.FieldRecordings, len(recordings)).
		Int(log.FieldScanRate, info.ScanRate).
		Msg("session initialized")
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.info.SessionID }

// Info returns the acquisition parameters.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// StimStart is the stimulus onset relative to the start of the trace, in ms.
func (s *Session) StimStart() float64 { return s.stimStart }

// ChannelNames returns the current channel names.
func (s *Session) ChannelNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.channelNames...)
}

// LatencyWindows returns the reflex windows for this session.
func (s *Session) LatencyWindows() []LatencyWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LatencyWindow, len(s.latencyWindows))
	for i, w := range s.latencyWindows {
		w.StartTimes = append([]float64(nil), w.StartTimes...)
		w.Durations = append([]float64(nil), w.Durations...)
		out[i] = w
	}
	return out
}

// Recordings returns the active (non-excluded) raw recordings.
func (s *Session) Recordings() []Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Recording, len(s.recordings))
	for i, rec := range s.recordings {
		out[i] = rec.clone()
	}
	return out
}

// ExcludedIDs lists the IDs of excluded recordings in ascending order.
func (s *Session) ExcludedIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.excluded))
	for id := range s.excluded {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// RenameChannels renames channels via an old-name to new-name mapping.
// Unknown old names are an error.
func (s *Session) RenameChannels(names map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := map[string]int{}
	for i, name := range s.channelNames {
		current[name] = i
	}
	for oldName, newName := range names {
		idx, ok := current[oldName]
		if !ok {
			return fmt.Errorf("session %s: channel %q not found", s.info.SessionID, oldName)
		}
		if newName == "" {
			return fmt.Errorf("session %s: empty name for channel %q", s.info.SessionID, oldName)
		}
		s.channelNames[idx] = newName
	}
	return nil
}

// ExcludeRecording removes a recording from analysis by ID. Excluding an
// already excluded recording is an error.
func (s *Session) ExcludeRecording(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, gone := s.excluded[id]; gone {
		return fmt.Errorf("session %s: recording %d is already excluded", s.info.SessionID, id)
	}
	if id < 0 || id >= len(s.originals) {
		return fmt.Errorf("session %s: no recording with id %d", s.info.SessionID, id)
	}

	s.excluded[id] = struct{}{}
	kept := s.recordings[:0]
	for _, rec := range s.recordings {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	s.recordings = kept
	s.resetDerivedLocked()

	logger := log.WithComponent("emg")
	logger.Info().
		Str("event", "session.recording_excluded").
		Str(log.FieldSessionID, s.info.SessionID).
		Int("recording_id", id).
		Msg("recording excluded")
	return nil
}

// RestoreRecording returns a previously excluded recording to the session.
func (s *Session) RestoreRecording(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, gone := s.excluded[id]; !gone {
		return fmt.Errorf("session %s: recording %d is not excluded", s.info.SessionID, id)
	}
	delete(s.excluded, id)
	s.recordings = append(s.recordings, s.originals[id].clone())
	sort.Slice(s.recordings, func(i, j int) bool { return s.recordings[i].ID < s.recordings[j].ID })
	s.resetDerivedLocked()

	logger := log.WithComponent("emg")
	logger.Info().
		Str("event", "session.recording_restored").
		Str(log.FieldSessionID, s.info.SessionID).
		Int("recording_id", id).
		Msg("recording restored")
	return nil
}

// ReloadRecordings restores every recording to its original state, clearing
// exclusions and polarity inversions.
func (s *Session) ReloadRecordings() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recordings = make([]Recording, len(s.originals))
	for i, rec := range s.originals {
		s.recordings[i] = rec.clone()
	}
	s.excluded = map[int]struct{}{}
	s.resetDerivedLocked()
}

// InvertChannelPolarity flips the sign of every sample on one channel, for
// recordings acquired with reversed electrode leads.
func (s *Session) InvertChannelPolarity(channel int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if channel < 0 || channel >= s.info.NumChannels {
		return fmt.Errorf("session %s: channel %d out of range [0, %d)", s.info.SessionID, channel, s.info.NumChannels)
	}
	for _, rec := range s.recordings {
		for i := range rec.ChannelData[channel] {
			rec.ChannelData[channel][i] *= -1
		}
	}
	s.resetDerivedLocked()
	return nil
}

// UpdateLatencyWindows replaces the M-wave and H-reflex windows and resets
// derived results.
func (s *Session) UpdateLatencyWindows(mStart, mDuration, hStart, hDuration []float64) error {
	if len(mStart) != len(mDuration) || len(hStart) != len(hDuration) {
		return fmt.Errorf("session %s: window start and duration lists must have equal length", s.info.SessionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mStart = windowsForChannels(mStart, s.info.NumChannels)
	s.mDuration = windowsForChannels(mDuration, s.info.NumChannels)
	s.hStart = windowsForChannels(hStart, s.info.NumChannels)
	s.hDuration = windowsForChannels(hDuration, s.info.NumChannels)
	for i := range s.latencyWindows {
		switch s.latencyWindows[i].Name {
		case WindowMWave:
			s.latencyWindows[i].StartTimes = s.mStart
			s.latencyWindows[i].Durations = s.mDuration
		case WindowHReflex:
			s.latencyWindows[i].StartTimes = s.hStart
			s.latencyWindows[i].Durations = s.hDuration
		}
	}
	s.resetDerivedLocked()
	return nil
}

// resetDerivedLocked drops cached processed traces and M-max values. Caller
// must hold s.mu.
func (s *Session) resetDerivedLocked() {
	s.processed = nil
	s.mMax = nil
}

// ProcessedRecordings returns the active recordings with the bandpass filter
// applied to every channel. Results are cached until the raw recordings
// change.
func (s *Session) ProcessedRecordings(ctx context.Context) ([]Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.processLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]Recording, len(s.processed))
	for i, rec := range s.processed {
		out[i] = rec.clone()
	}
	return out, nil
}

func (s *Session) processLocked(ctx context.Context) error {
	if s.processed != nil {
		return nil
	}

	filter, err := sigproc.NewButterBandpass(s.params.Filter.Lowcut, s.params.Filter.Highcut, float64(s.info.ScanRate), s.params.Filter.Order)
	if err != nil {
		return fmt.Errorf("session %s: design filter: %w", s.info.SessionID, err)
	}

	processed := make([]Recording, len(s.recordings))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, rec := range s.recordings {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out := Recording{ID: rec.ID, StimulusV: rec.StimulusV, ChannelData: make([][]float64, len(rec.ChannelData))}
			for ch, trace := range rec.ChannelData {
				filtered, err := filter.Apply(trace)
				if err != nil {
					return fmt.Errorf("session %s: recording %d channel %d: %w", s.info.SessionID, rec.ID, ch, err)
				}
				out.ChannelData[ch] = filtered
			}
			processed[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.processed = processed
	return nil
}

// mWindowLocked returns the absolute M-wave window for a channel, offset by
// stimulus onset.
func (s *Session) mWindowLocked(channel int) (start, end float64) {
	start = s.mStart[channel] + s.stimStart
	return start, start + s.mDuration[channel]
}

func (s *Session) hWindowLocked(channel int) (start, end float64) {
	start = s.hStart[channel] + s.stimStart
	return start, start + s.hDuration[channel]
}

// MMax returns the per-channel M-max estimates using the default method.
// Channels without a detectable plateau are reported with Valid=false rather
// than failing the whole session.
func (s *Session) MMax(ctx context.Context) ([]ChannelMMax, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mMax != nil {
		return append([]ChannelMMax(nil), s.mMax...), nil
	}
	if err := s.processLocked(ctx); err != nil {
		return nil, err
	}

	logger := log.WithComponent("emg")
	result := make([]ChannelMMax, s.info.NumChannels)
	for ch := 0; ch < s.info.NumChannels; ch++ {
		volts, amps, err := s.mAmplitudesLocked(ch, s.params.DefaultMethod)
		if err != nil {
			return nil, err
		}
		entry := ChannelMMax{Channel: ch, ChannelName: s.channelNames[ch]}
		res, err := sigproc.AvgMMax(volts, amps, s.params.MMax.MaxWindowSize, s.params.MMax.MinWindowSize, s.params.MMax.Threshold)
		if err != nil {
			logger.Info().
				Str("event", "session.mmax_invalid").
				Str(log.FieldSessionID, s.info.SessionID).
				Int(log.FieldChannel, ch).
				Msg("channel has no valid M-max amplitude")
		} else {
			entry.Valid = true
			entry.MMax = res.MMax
			entry.StimStartV = res.StimStart
			entry.StimEndV = res.StimEnd
		}
		result[ch] = entry
	}
	s.mMax = result
	return append([]ChannelMMax(nil), result...), nil
}

// MMaxForMethod computes the M-max for one channel with an explicit amplitude
// method, bypassing the cache.
func (s *Session) MMaxForMethod(ctx context.Context, method sigproc.Method, channel int) (sigproc.MMaxResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if channel < 0 || channel >= s.info.NumChannels {
		return sigproc.MMaxResult{}, fmt.Errorf("session %s: channel %d out of range [0, %d)", s.info.SessionID, channel, s.info.NumChannels)
	}
	if err := s.processLocked(ctx); err != nil {
		return sigproc.MMaxResult{}, err
	}
	volts, amps, err := s.mAmplitudesLocked(channel, method)
	if err != nil {
		return sigproc.MMaxResult{}, err
	}
	return sigproc.AvgMMax(volts, amps, s.params.MMax.MaxWindowSize, s.params.MMax.MinWindowSize, s.params.MMax.Threshold)
}

// mAmplitudesLocked extracts stimulus voltages and M-wave amplitudes across
// the processed recordings for one channel. Caller must hold s.mu with
// processed traces present.
func (s *Session) mAmplitudesLocked(channel int, method sigproc.Method) (volts, amps []float64, err error) {
	start, end := s.mWindowLocked(channel)
	volts = make([]float64, len(s.processed))
	amps = make([]float64, len(s.processed))
	for i, rec := range s.processed {
		volts[i] = rec.StimulusV
		amp, err := sigproc.Amplitude(rec.ChannelData[channel], start, end, s.info.ScanRate, method)
		if err != nil {
			return nil, nil, fmt.Errorf("session %s: recording %d channel %d: %w", s.info.SessionID, rec.ID, channel, err)
		}
		amps[i] = amp
	}
	return volts, amps, nil
}

// ReflexPoint is the M-wave and H-reflex amplitude of one recording.
type ReflexPoint struct {
	RecordingID int     `json:"recording_id"`
	StimulusV   float64 `json:"stimulus_v"`
	MAmplitude  float64 `json:"m_amplitude"`
	HAmplitude  float64 `json:"h_amplitude"`
}

// ReflexAmplitudes computes per-recording M and H amplitudes for one channel,
// ordered by stimulus voltage.
func (s *Session) ReflexAmplitudes(ctx context.Context, channel int, method sigproc.Method) ([]ReflexPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if channel < 0 || channel >= s.info.NumChannels {
		return nil, fmt.Errorf("session %s: channel %d out of range [0, %d)", s.info.SessionID, channel, s.info.NumChannels)
	}
	if err := s.processLocked(ctx); err != nil {
		return nil, err
	}

	mStart, mEnd := s.mWindowLocked(channel)
	hStart, hEnd := s.hWindowLocked(channel)
	points := make([]ReflexPoint, len(s.processed))
	for i, rec := range s.processed {
		mAmp, err := sigproc.Amplitude(rec.ChannelData[channel], mStart, mEnd, s.info.ScanRate, method)
		if err != nil {
			return nil, fmt.Errorf("session %s: recording %d M-window: %w", s.info.SessionID, rec.ID, err)
		}
		hAmp, err := sigproc.Amplitude(rec.ChannelData[channel], hStart, hEnd, s.info.ScanRate, method)
		if err != nil {
			return nil, fmt.Errorf("session %s: recording %d H-window: %w", s.info.SessionID, rec.ID, err)
		}
		points[i] = ReflexPoint{RecordingID: rec.ID, StimulusV: rec.StimulusV, MAmplitude: mAmp, HAmplitude: hAmp}
	}
	return points, nil
}

// SuspectedH lists the recordings whose H-window amplitude exceeds the
// configured threshold for one channel.
func (s *Session) SuspectedH(ctx context.Context, channel int, method sigproc.Method) ([]ReflexPoint, error) {
	points, err := s.ReflexAmplitudes(ctx, channel, method)
	if err != nil {
		return nil, err
	}
	suspected := make([]ReflexPoint, 0, len(points))
	for _, p := range points {
		if p.HAmplitude > s.params.HThreshold {
			suspected = append(suspected, p)
		}
	}
	return suspected, nil
}

// ParametersReport renders the acquisition parameters as human-readable
// lines.
func (s *Session) ParametersReport() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []string{
		fmt.Sprintf("Session ID: %s", s.info.SessionID),
		fmt.Sprintf("# of Channels: %d", s.info.NumChannels),
		fmt.Sprintf("Scan rate (Hz): %d", s.info.ScanRate),
		fmt.Sprintf("Samples/Channel: %d", s.info.NumSamples),
		fmt.Sprintf("Pre-Stim Acq. time (ms): %g", s.info.PreStimAcquired),
		fmt.Sprintf("Post-Stim Acq. time (ms): %g", s.info.PostStimAcquired),
		fmt.Sprintf("Stimulus delay (ms): %g", s.info.StimDelay),
		fmt.Sprintf("Stimulus duration (ms): %g", s.info.StimDuration),
		fmt.Sprintf("Stimulus interval (s): %g", s.info.StimInterval),
		fmt.Sprintf("EMG amp gains: %v", s.info.EMGAmpGains),
	}
}

// MMaxReport renders per-channel M-max amplitudes as human-readable lines.
func (s *Session) MMaxReport(ctx context.Context) ([]string, error) {
	mMax, err := s.MMax(ctx)
	if err != nil {
		return nil, err
	}
	report := make([]string, 0, len(mMax))
	for _, entry := range mMax {
		if entry.Valid {
			report = append(report, fmt.Sprintf("- %s: M-max amplitude = %.2f V", entry.ChannelName, entry.MMax))
		} else {
			report = append(report, fmt.Sprintf("- Channel %d does not have a valid M-max amplitude.", entry.Channel))
		}
	}
	return report, nil
}
