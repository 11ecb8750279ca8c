package jobs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/monstim/internal/config"
	"github.com/ManuGH/monstim/internal/emg"
)

func catalogFixture(t *testing.T) *Catalog {
	t.Helper()

	cfg := config.Default()
	cfg.ButterFilter = config.ButterFilterArgs{Lowcut: 100, Highcut: 2000, Order: 4}
	params, err := emg.ParamsFromConfig(cfg)
	require.NoError(t, err)

	newSess := func(id string) *emg.Session {
		raw := emg.RawSession{
			Info: emg.SessionInfo{
				SessionID:   id,
				NumChannels: 2,
				ScanRate:    testScanRate,
				NumSamples:  100,
				EMGAmpGains: []int{1000, 1000},
			},
			Recordings: []emg.RawRecording{
				{StimulusV: 1, ChannelData: [][]float64{make([]float64, 100), make([]float64, 100)}},
			},
		}
		sess, err := emg.NewSession(raw, params)
		require.NoError(t, err)
		return sess
	}

	dsA, err := emg.NewDataset([]*emg.Session{newSess("a1")}, "2024-01-01", "A1", "pre", nil, params)
	require.NoError(t, err)
	dsB, err := emg.NewDataset([]*emg.Session{newSess("b1"), newSess("b2")}, "2024-02-01", "B2", "post", nil, params)
	require.NoError(t, err)

	expB, err := emg.NewExperiment("expB", []*emg.Dataset{dsB}, params)
	require.NoError(t, err)
	expA, err := emg.NewExperiment("expA", []*emg.Dataset{dsA}, params)
	require.NoError(t, err)

	return NewCatalog([]*emg.Experiment{expB, expA})
}

func TestCatalogIndexing(t *testing.T) {
	c := catalogFixture(t)

	assert.Equal(t, 2, c.NumDatasets())
	assert.Equal(t, 3, c.NumSessions())

	var names []string
	for _, exp := range c.Experiments() {
		names = append(names, exp.Name())
	}
	if diff := cmp.Diff([]string{"expA", "expB"}, names); diff != "" {
		t.Errorf("experiment order mismatch (-want +got):\n%s", diff)
	}

	ds, ok := c.Dataset("2024-02-01_B2_post")
	require.True(t, ok)
	assert.Equal(t, "B2", ds.AnimalID())

	sess, ok := c.Session("b2")
	require.True(t, ok)
	assert.Equal(t, "b2", sess.ID())

	_, ok = c.Dataset("missing")
	assert.False(t, ok)
	_, ok = c.Session("missing")
	assert.False(t, ok)
}

func TestEmptyCatalog(t *testing.T) {
	c := NewCatalog(nil)
	assert.Empty(t, c.Experiments())
	assert.Equal(t, 0, c.NumDatasets())
	assert.Equal(t, 0, c.NumSessions())
}
