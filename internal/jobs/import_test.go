package jobs

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/monstim/internal/cache"
	"github.com/ManuGH/monstim/internal/config"
	"github.com/ManuGH/monstim/internal/emg"
	"github.com/ManuGH/monstim/internal/store"
)

const testScanRate = 5000

// writeSessionFile writes a synthetic two-channel session with a recruitment
// sweep: an in-band burst in the M-window whose amplitude saturates at 2 mV.
func writeSessionFile(t *testing.T, dir, sessionID string, recordings int) {
	t.Helper()

	recs := make([]emg.RawRecording, recordings)
	for i := range recs {
		v := 0.5 + 0.25*float64(i)
		amp := 2 / (1 + math.Exp(-2*(v-4)))
		channels := make([][]float64, 2)
		for ch := range channels {
			trace := make([]float64, 100)
			for s := 20; s < 35; s++ {
				trace[s] = amp * math.Sin(2*math.Pi*1000*float64(s-20)/testScanRate)
			}
			channels[ch] = trace
		}
		recs[i] = emg.RawRecording{StimulusV: v, ChannelData: channels}
	}
	raw := emg.RawSession{
		Info: emg.SessionInfo{
			SessionID:       sessionID,
			NumChannels:     2,
			ScanRate:        testScanRate,
			NumSamples:      100,
			PreStimAcquired: 1,
			StimDelay:       1,
			StimInterval:    1,
			EMGAmpGains:     []int{1000, 1000},
		},
		Recordings: recs,
	}

	data, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, sessionID+".json"), data, 0o644))
}

func newTestImporter(t *testing.T, dataDir, reportDir string) (*Importer, *store.Store, *cache.MemoryCache) {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = dataDir
	cfg.ReportDir = reportDir
	cfg.ButterFilter = config.ButterFilterArgs{Lowcut: 100, Highcut: 2000, Order: 4}
	holder := config.NewHolder(cfg, config.NewLoader("", "test"), "")

	st, err := store.New(filepath.Join(t.TempDir(), "monstim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	c := cache.NewMemoryCache(0)
	t.Cleanup(c.Close)

	return NewImporter(st, c, holder), st, c
}

func TestImporterRun(t *testing.T) {
	dataDir := t.TempDir()
	dsDir := filepath.Join(dataDir, "expA", "240101 A1 pre")
	require.NoError(t, os.MkdirAll(dsDir, 0o755))
	writeSessionFile(t, dsDir, "s1", 10)
	writeSessionFile(t, dsDir, "s2", 10)

	imp, st, c := newTestImporter(t, dataDir, "")
	// Stale cached analyses for a re-imported session must be dropped.
	c.Set(cache.Key("s1", "mmax", "rms"), []byte("stale"), time.Minute)

	catalog, status, err := imp.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, catalog)

	assert.Equal(t, 1, status.Experiments)
	assert.Equal(t, 1, status.Datasets)
	assert.Equal(t, 2, status.Sessions)
	assert.NotEmpty(t, status.JobID)

	ds, ok := catalog.Dataset("2024-01-01_A1_pre")
	require.True(t, ok)
	assert.Equal(t, "A1", ds.AnimalID())

	sess, ok := catalog.Session("s1")
	require.True(t, ok)
	assert.Len(t, sess.Recordings(), 10)

	// Persisted side.
	names, err := st.ListExperiments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"expA"}, names)

	rec, err := st.GetSession(context.Background(), "s2")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01_A1_pre", rec.DatasetID)
	assert.Len(t, rec.Recordings, 10)

	_, ok = c.Get(cache.Key("s1", "mmax", "rms"))
	assert.False(t, ok, "import invalidates cached session results")
}

func TestImporterWarnsAndContinues(t *testing.T) {
	dataDir := t.TempDir()

	goodDir := filepath.Join(dataDir, "expA", "240101 A1 pre")
	require.NoError(t, os.MkdirAll(goodDir, 0o755))
	writeSessionFile(t, goodDir, "s1", 5)

	// A dataset directory that does not parse and a corrupt session file.
	badDir := filepath.Join(dataDir, "expA", "notes and scribbles")
	require.NoError(t, os.MkdirAll(badDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(goodDir, "corrupt.json"), []byte("{"), 0o644))

	imp, _, _ := newTestImporter(t, dataDir, "")
	catalog, status, err := imp.Run(context.Background())
	require.NoError(t, err, "bad entries must not abort the run")

	assert.Equal(t, 1, status.Sessions)
	assert.NotEmpty(t, status.Warnings)
	_, ok := catalog.Session("s1")
	assert.True(t, ok)
}

func TestImporterFailsWhenNothingImports(t *testing.T) {
	imp, _, _ := newTestImporter(t, t.TempDir(), "")
	_, status, err := imp.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "no sessions imported", status.Error)
}

func TestImporterMissingDataDir(t *testing.T) {
	imp, _, _ := newTestImporter(t, filepath.Join(t.TempDir(), "nope"), "")
	_, _, err := imp.Run(context.Background())
	assert.Error(t, err)
}

func TestWriteReports(t *testing.T) {
	dataDir := t.TempDir()
	reportDir := filepath.Join(t.TempDir(), "reports")
	dsDir := filepath.Join(dataDir, "expA", "240101 A1 pre")
	require.NoError(t, os.MkdirAll(dsDir, 0o755))
	writeSessionFile(t, dsDir, "s1", 10)

	imp, _, _ := newTestImporter(t, dataDir, reportDir)
	catalog, _, err := imp.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, WriteReports(context.Background(), catalog, reportDir))

	data, err := os.ReadFile(filepath.Join(reportDir, "2024-01-01_A1_pre.json"))
	require.NoError(t, err)

	var report DatasetReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "2024-01-01_A1_pre", report.DatasetID)
	assert.Equal(t, []string{"LG", "TA"}, report.ChannelNames)
	require.Len(t, report.Sessions, 1)
	assert.Equal(t, "s1", report.Sessions[0].SessionID)
	assert.Len(t, report.Sessions[0].MMax, 2)
}
