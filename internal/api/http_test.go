package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/monstim/internal/cache"
	"github.com/ManuGH/monstim/internal/config"
	"github.com/ManuGH/monstim/internal/emg"
	"github.com/ManuGH/monstim/internal/jobs"
	"github.com/ManuGH/monstim/internal/store"
)

const testScanRate = 5000

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

// newTestServer imports a small fixture tree and returns a ready API server.
func newTestServer(t *testing.T) (*Server, *cache.MemoryCache) {
	t.Helper()

	dataDir := t.TempDir()
	dsDir := filepath.Join(dataDir, "expA", "240101 A1 pre")
	require.NoError(t, os.MkdirAll(dsDir, 0o755))
	writeSessionFile(t, dsDir, "s1", 30)
	writeSessionFile(t, dsDir, "s2", 30)

	cfg := config.Default()
	cfg.DataDir = dataDir
	cfg.ReportDir = ""
	cfg.ButterFilter = config.ButterFilterArgs{Lowcut: 100, Highcut: 2000, Order: 4}
	holder := config.NewHolder(cfg, config.NewLoader("", "test"), "")

	st, err := store.New(filepath.Join(t.TempDir(), "monstim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	c := cache.NewMemoryCache(0)
	t.Cleanup(c.Close)

	importer := jobs.NewImporter(st, c, holder)
	srv := NewServer(holder, st, c, importer, "test")

	catalog, status, err := importer.Run(context.Background())
	require.NoError(t, err)
	srv.SetCatalog(catalog)
	srv.SetStatus(*status)
	return srv, c
}

func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	rec = doRequest(t, h, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessBeforeImport(t *testing.T) {
	cfg := config.Default()
	holder := config.NewHolder(cfg, config.NewLoader("", "test"), "")
	c := cache.NewMemoryCache(0)
	t.Cleanup(c.Close)

	st, err := store.New(filepath.Join(t.TempDir(), "monstim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	srv := NewServer(holder, st, c, jobs.NewImporter(st, c, holder), "test")
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListExperimentsAndDatasets(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/experiments")
	require.Equal(t, http.StatusOK, rec.Code)
	var exps []experimentSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exps))
	require.Len(t, exps, 1)
	assert.Equal(t, "expA", exps[0].Name)
	require.Len(t, exps[0].Datasets, 1)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/datasets/"+exps[0].Datasets[0])
	require.Equal(t, http.StatusOK, rec.Code)
	var ds datasetDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ds))
	assert.Equal(t, "A1", ds.AnimalID)
	assert.Equal(t, 2, ds.NumChannels)
	assert.Len(t, ds.Sessions, 2)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/datasets/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDatasetSessionProvenance(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/datasets/2024-01-01_A1_pre/sessions")
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []sessionImportInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "s1", infos[0].SessionID)
	assert.Contains(t, infos[0].SourcePath, "s1.json")
	assert.False(t, infos[0].ImportedAt.IsZero())
}

func TestGetSession(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/sessions/s1")
	require.Equal(t, http.StatusOK, rec.Code)

	var detail sessionDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "s1", detail.ID)
	assert.Equal(t, []string{"LG", "TA"}, detail.ChannelNames)
	assert.Equal(t, 30, detail.Recordings)
	assert.Len(t, detail.LatencyWindows, 2)
}

func TestSessionMMaxCached(t *testing.T) {
	srv, c := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/sessions/s1/mmax")
	require.Equal(t, http.StatusOK, rec.Code)
	var first []emg.ChannelMMax
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Len(t, first, 2)
	assert.True(t, first[0].Valid)

	statsBefore := c.Stats()
	rec = doRequest(t, h, http.MethodGet, "/api/v1/sessions/s1/mmax")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Greater(t, c.Stats().Hits, statsBefore.Hits, "second request is served from cache")

	var second []emg.ChannelMMax
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first, second)
}

func TestDatasetCurve(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/datasets/2024-01-01_A1_pre/curve?channel=0&method=rms")
	require.Equal(t, http.StatusOK, rec.Code)
	var curve []emg.BinnedPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &curve))
	assert.NotEmpty(t, curve)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/datasets/2024-01-01_A1_pre/curve?method=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/datasets/2024-01-01_A1_pre/curve?channel=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuspectedHEmptyWithoutReflex(t *testing.T) {
	srv, _ := newTestServer(t)

	// The fixture has no activity in the H window, so nothing is suspected.
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/sessions/s1/suspected-h")
	require.Equal(t, http.StatusOK, rec.Code)
	var points []emg.ReflexPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	assert.Empty(t, points)
}

func TestRateLimitAllowsBurst(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimitRPS = 2
	cfg.RateLimitBurst = 5
	holder := config.NewHolder(cfg, config.NewLoader("", "test"), "")
	c := cache.NewMemoryCache(0)
	t.Cleanup(c.Close)

	st, err := store.New(filepath.Join(t.TempDir(), "monstim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	srv := NewServer(holder, st, c, jobs.NewImporter(st, c, holder), "test")
	h := srv.Handler()

	// A spike up to the burst size passes even though it exceeds the RPS.
	for i := 0; i < 5; i++ {
		rec := doRequest(t, h, http.MethodGet, "/api/v1/status")
		require.Equal(t, http.StatusOK, rec.Code, "request %d within burst", i+1)
	}
	rec := doRequest(t, h, http.MethodGet, "/api/v1/status")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestImportEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	called := false
	srv.refreshFn = func(ctx context.Context) (*jobs.Catalog, *jobs.Status, error) {
		called = true
		return jobs.NewCatalog(nil), &jobs.Status{JobID: "stub"}, nil
	}

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/import")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
	assert.Equal(t, "stub", srv.Status().JobID)
}

func TestImportConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.refreshing.Store(true)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/import")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestConfigEndpoints(t *testing.T) {
	srv, c := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/config")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg configResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, "rms", cfg.DefaultMethod)
	assert.Equal(t, 100.0, cfg.Lowcut)

	c.Set("s1:mmax:deadbeef", []byte("x"), resultTTL)
	rec = doRequest(t, h, http.MethodPost, "/api/v1/config/reload")
	require.Equal(t, http.StatusOK, rec.Code)
	_, ok := c.Get("s1:mmax:deadbeef")
	assert.False(t, ok, "reload clears cached results")
}

func TestCacheEndpoints(t *testing.T) {
	srv, c := newTestServer(t)
	h := srv.Handler()

	c.Set("s1:mmax:cafe", []byte("x"), resultTTL)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/cache/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.GreaterOrEqual(t, stats.CurrentSize, 1)

	rec = doRequest(t, h, http.MethodDelete, "/api/v1/cache")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, c.Stats().CurrentSize)
}
