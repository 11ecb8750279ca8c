package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/monstim/internal/emg"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "monstim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSessionRecord(sessionID, datasetID string) SessionRecord {
	return SessionRecord{
		SessionID: sessionID,
		DatasetID: datasetID,
		Info: emg.SessionInfo{
			SessionID:       sessionID,
			NumChannels:     2,
			ScanRate:        30000,
			NumSamples:      600,
			PreStimAcquired: 1,
			StimDelay:       1,
			EMGAmpGains:     []int{1000, 1000},
		},
		Recordings: []emg.RawRecording{
			{StimulusV: 0.5, ChannelData: [][]float64{{0.1, 0.2}, {0.3, 0.4}}},
			{StimulusV: 1.0, ChannelData: [][]float64{{0.5, 0.6}, {0.7, 0.8}}},
		},
		SourcePath: "/data/" + sessionID + ".json",
		ImportedAt: time.Now(),
	}
}

func seedDataset(t *testing.T, s *Store, experiment, datasetID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertExperiment(ctx, experiment))
	require.NoError(t, s.UpsertDataset(ctx, DatasetRecord{
		DatasetID:  datasetID,
		Experiment: experiment,
		Date:       "2024-01-01",
		AnimalID:   "A1",
		Condition:  "pre",
		ImportedAt: time.Now(),
	}))
}

func TestMigrateIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "monstim.db")
	s, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening must not fail or recreate the schema.
	s, err = New(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestExperimentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertExperiment(ctx, "pilot"))
	require.NoError(t, s.UpsertExperiment(ctx, "pilot"), "upsert is idempotent")
	require.NoError(t, s.UpsertExperiment(ctx, "main"))

	names, err := s.ListExperiments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "pilot"}, names)
}

func TestDatasetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDataset(t, s, "pilot", "2024-01-01_A1_pre")

	rec, err := s.GetDataset(ctx, "2024-01-01_A1_pre")
	require.NoError(t, err)
	assert.Equal(t, "A1", rec.AnimalID)
	assert.Equal(t, "pre", rec.Condition)

	_, err = s.GetDataset(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	all, err := s.ListDatasets(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	filtered, err := s.ListDatasets(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDataset(t, s, "pilot", "ds1")

	want := testSessionRecord("s1", "ds1")
	require.NoError(t, s.UpsertSession(ctx, want))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, want.Info, got.Info)
	assert.Equal(t, want.Recordings, got.Recordings)
	assert.Equal(t, want.SourcePath, got.SourcePath)

	_, err = s.GetSession(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListSessionsOmitsRecordings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDataset(t, s, "pilot", "ds1")

	require.NoError(t, s.UpsertSession(ctx, testSessionRecord("s2", "ds1")))
	require.NoError(t, s.UpsertSession(ctx, testSessionRecord("s1", "ds1")))

	sessions, err := s.ListSessions(ctx, "ds1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s1", sessions[0].SessionID)
	assert.Nil(t, sessions[0].Recordings, "listing skips the sample blobs")
	assert.Equal(t, 2, sessions[0].Info.NumChannels)
}

func TestSessionForeignKeyEnforced(t *testing.T) {
	s := newTestStore(t)
	err := s.UpsertSession(context.Background(), testSessionRecord("s1", "no-such-dataset"))
	assert.Error(t, err, "sessions require an existing dataset")
}

func TestDeleteSessionCascadesResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDataset(t, s, "pilot", "ds1")
	require.NoError(t, s.UpsertSession(ctx, testSessionRecord("s1", "ds1")))

	require.NoError(t, s.SaveResult(ctx, ResultRecord{
		SessionID:  "s1",
		Kind:       "mmax",
		ParamsHash: "abc",
		Result:     json.RawMessage(`{"mmax": 2.1}`),
		ComputedAt: time.Now(),
	}))

	require.NoError(t, s.DeleteSession(ctx, "s1"))
	_, err := s.GetResult(ctx, "s1", "mmax", "abc")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Error(t, s.DeleteSession(ctx, "s1"))
}

func TestResultRoundTripAndReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDataset(t, s, "pilot", "ds1")
	require.NoError(t, s.UpsertSession(ctx, testSessionRecord("s1", "ds1")))

	first := ResultRecord{
		SessionID:  "s1",
		Kind:       "curve",
		ParamsHash: "h1",
		Result:     json.RawMessage(`[{"stimulus_v":0.5}]`),
		ComputedAt: time.Now(),
	}
	require.NoError(t, s.SaveResult(ctx, first))

	second := first
	second.Result = json.RawMessage(`[{"stimulus_v":1.0}]`)
	require.NoError(t, s.SaveResult(ctx, second))

	got, err := s.GetResult(ctx, "s1", "curve", "h1")
	require.NoError(t, err)
	assert.JSONEq(t, string(second.Result), string(got.Result))
}
