package emg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/monstim/internal/sigproc"
)

func makeSession(t *testing.T, id string, n int) *Session {
	t.Helper()
	s, err := NewSession(makeRawSession(id, sweepVolts(n), mRecruitment, noH), testParams(t))
	require.NoError(t, err)
	return s
}

func makeDataset(t *testing.T, n int, ids ...string) *Dataset {
	t.Helper()
	sessions := make([]*Session, len(ids))
	for i, id := range ids {
		sessions[i] = makeSession(t, id, n)
	}
	ds, err := NewDataset(sessions, "2024-01-01", "A1", "pre dec", nil, testParams(t))
	require.NoError(t, err)
	return ds
}

func TestNewDatasetNamesAndOrder(t *testing.T) {
	ds := makeDataset(t, 5, "s2", "s1")

	assert.Equal(t, "2024-01-01_A1_pre-dec", ds.ID())
	assert.Equal(t, "2024-01-01 A1 pre dec", ds.FormattedName())
	assert.Equal(t, 2, ds.NumChannels())
	assert.Equal(t, testScanRate, ds.ScanRate())

	sessions := ds.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "s1", sessions[0].ID())
	assert.Equal(t, "s2", sessions[1].ID())
}

func TestNewDatasetExcludesSessions(t *testing.T) {
	sessions := []*Session{makeSession(t, "s1", 5), makeSession(t, "s2", 5)}
	ds, err := NewDataset(sessions, "2024-01-01", "A1", "post", []string{"s2"}, testParams(t))
	require.NoError(t, err)
	require.Len(t, ds.Sessions(), 1)

	_, err = NewDataset(sessions, "2024-01-01", "A1", "post", []string{"s1", "s2"}, testParams(t))
	assert.Error(t, err, "excluding every session leaves nothing to analyze")
}

func TestNewDatasetRejectsInconsistentSessions(t *testing.T) {
	s1 := makeSession(t, "s1", 5)

	raw := makeRawSession("s2", sweepVolts(5), mRecruitment, noH)
	raw.Info.ScanRate = 10000
	s2, err := NewSession(raw, testParams(t))
	require.NoError(t, err)

	_, err = NewDataset([]*Session{s1, s2}, "2024-01-01", "A1", "pre", nil, testParams(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan_rate")
}

func TestDatasetSessionLookup(t *testing.T) {
	ds := makeDataset(t, 5, "s1", "s2")

	sess, err := ds.Session("s2")
	require.NoError(t, err)
	assert.Equal(t, "s2", sess.ID())

	_, err = ds.Session("nope")
	assert.Error(t, err)
}

func TestDatasetAddRemoveSession(t *testing.T) {
	ds := makeDataset(t, 5, "s1", "s2")

	require.NoError(t, ds.AddSession(makeSession(t, "s0", 5)))
	sessions := ds.Sessions()
	require.Len(t, sessions, 3)
	assert.Equal(t, "s0", sessions[0].ID())

	assert.Error(t, ds.AddSession(makeSession(t, "s1", 5)), "duplicate session IDs are rejected")

	require.NoError(t, ds.RemoveSession("s0"))
	assert.Len(t, ds.Sessions(), 2)
	assert.Error(t, ds.RemoveSession("s0"))

	require.NoError(t, ds.RemoveSession("s1"))
	assert.Error(t, ds.RemoveSession("s2"), "the last session cannot be removed")
}

func TestDatasetAvgMMax(t *testing.T) {
	ds := makeDataset(t, 40, "s1", "s2")

	avg, err := ds.AvgMMax(context.Background())
	require.NoError(t, err)
	require.Len(t, avg, 2)
	for ch, v := range avg {
		assert.Greater(t, v, 0.5, "channel %d", ch)
		assert.Less(t, v, 2.5, "channel %d", ch)
	}
}

func TestDatasetReflexCurve(t *testing.T) {
	ds := makeDataset(t, 20, "s1", "s2")

	points, err := ds.ReflexCurve(context.Background(), 0, sigproc.MethodRMS)
	require.NoError(t, err)
	require.Len(t, points, 20, "identical sweeps across sessions share bins")

	for i, p := range points {
		assert.Equal(t, 2, p.N, "each bin pools both sessions")
		if i > 0 {
			assert.Greater(t, p.StimulusV, points[i-1].StimulusV)
		}
		// Both sessions produce identical traces, so the spread is zero.
		assert.InDelta(t, 0.0, p.MStd, 1e-9)
		assert.InDelta(t, 0.0, p.HMean, 0.1, "no H-reflex in this sweep")
	}

	// Higher stimulus bins carry larger M-waves.
	assert.Greater(t, points[19].MMean, points[0].MMean)

	_, err = ds.ReflexCurve(context.Background(), 7, sigproc.MethodRMS)
	assert.Error(t, err)
}

func TestDatasetInvertChannelPolarity(t *testing.T) {
	ds := makeDataset(t, 5, "s1", "s2")

	before := ds.Sessions()[0].Recordings()[4].ChannelData[0][21]
	require.NoError(t, ds.InvertChannelPolarity(0))
	for _, sess := range ds.Sessions() {
		assert.InDelta(t, -before, sess.Recordings()[4].ChannelData[0][21], 1e-12)
	}
	assert.Error(t, ds.InvertChannelPolarity(3))
}

func TestExperiment(t *testing.T) {
	ds1 := makeDataset(t, 40, "s1", "s2")

	sessions := []*Session{makeSession(t, "s3", 40)}
	ds2, err := NewDataset(sessions, "2024-01-02", "A2", "post", nil, testParams(t))
	require.NoError(t, err)

	exp, err := NewExperiment("pilot study", []*Dataset{ds2, ds1}, testParams(t))
	require.NoError(t, err)
	assert.Equal(t, "pilot study", exp.Name())

	datasets := exp.Datasets()
	require.Len(t, datasets, 2)
	assert.Equal(t, "2024-01-01_A1_pre-dec", datasets[0].ID())

	ds, err := exp.Dataset("2024-01-02_A2_post")
	require.NoError(t, err)
	assert.Equal(t, "A2", ds.AnimalID())

	avg, err := exp.AvgMMax(context.Background())
	require.NoError(t, err)
	require.Len(t, avg, 2)
	assert.Greater(t, avg[0], 0.5)

	require.NoError(t, exp.RenameChannels(map[string]string{"TA": "Tib"}))
	for _, d := range exp.Datasets() {
		for _, sess := range d.Sessions() {
			assert.Equal(t, "Tib", sess.ChannelNames()[1])
		}
	}
}

func TestExperimentValidation(t *testing.T) {
	ds := makeDataset(t, 5, "s1")

	_, err := NewExperiment("", []*Dataset{ds}, testParams(t))
	assert.Error(t, err)
	_, err = NewExperiment("empty", nil, testParams(t))
	assert.Error(t, err)
}
