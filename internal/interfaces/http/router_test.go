package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/rid-registry/internal/application/ingest"
	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/rid-registry/internal/interfaces/http/handlers"
	"github.com/turtacn/rid-registry/internal/testutil"
)

type staticReports struct{ report *ingest.RunReport }

func (s staticReports) LastReport() *ingest.RunReport { return s.report }

type fixture struct {
	router *gin.Engine
	store  *testutil.MemStore
}

func newFixture(t *testing.T, report *ingest.RunReport, checks ...handlers.HealthChecker) fixture {
	t.Helper()
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "ridreg"}, nil)
	require.NoError(t, err)
	store := testutil.NewMemStore()

	r := NewRouter(RouterConfig{
		Mode:           gin.TestMode,
		HealthHandler:  handlers.NewHealthHandler("test", checks...),
		RunHandler:     handlers.NewRunHandler(staticReports{report}, store.Snapshots()),
		MetricsHandler: collector.Handler(),
		HTTPObserver:   prometheus.NewRegistryMetrics(collector),
	})
	return fixture{router: r, store: store}
}

func (f fixture) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestProbes(t *testing.T) {
	ok := handlers.CheckFunc("postgres", func(context.Context) error { return nil })
	f := newFixture(t, nil, ok)
	assert.Equal(t, http.StatusOK, f.get("/healthz").Code)

	w := f.get("/readyz")
	assert.Equal(t, http.StatusOK, w.Code)
	var resp handlers.ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "healthy", resp.Components["postgres"].Status)

	down := handlers.CheckFunc("redis", func(context.Context) error { return errors.New("connection refused") })
	f = newFixture(t, nil, ok, down)
	w = f.get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "connection refused", resp.Components["redis"].Error)
}

func TestLastRun(t *testing.T) {
	f := newFixture(t, nil)
	w := f.get("/v1/runs/last")
	assert.Equal(t, http.StatusNotFound, w.Code)

	report := &ingest.RunReport{RunID: "run-7", Totals: ingest.Stats{RecordsSeen: 5, Created: 5}}
	f = newFixture(t, report)
	w = f.get("/v1/runs/last")
	require.Equal(t, http.StatusOK, w.Code)

	var got ingest.RunReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "run-7", got.RunID)
	assert.Equal(t, 5, got.Totals.Created)
}

func TestListSnapshots(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	snaps := f.store.Snapshots()
	require.NoError(t, snaps.Create(ctx, &registry.Snapshot{Category: registry.CategoryInvention, SourceURI: "a.csv"}))
	done := &registry.Snapshot{Category: registry.CategoryInvention, SourceURI: "b.csv"}
	require.NoError(t, snaps.Create(ctx, done))
	require.NoError(t, snaps.MarkProcessed(ctx, done.ID, time.Now()))
	require.NoError(t, snaps.Create(ctx, &registry.Snapshot{Category: registry.CategorySoftware, SourceURI: "c.csv"}))

	var body struct {
		Snapshots []handlers.SnapshotView `json:"snapshots"`
		Count     int                     `json:"count"`
	}
	w := f.get("/v1/snapshots?category=invention&unprocessed=true")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "a.csv", body.Snapshots[0].SourceURI)

	w = f.get("/v1/snapshots?limit=2")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)

	assert.Equal(t, http.StatusBadRequest, f.get("/v1/snapshots?category=trademark").Code)
	assert.Equal(t, http.StatusBadRequest, f.get("/v1/snapshots?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, f.get("/v1/snapshots?unprocessed=maybe").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.get("/healthz")

	w := f.get("/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `ridreg_http_requests_total{method="GET",path="/healthz",status="200"} 1`)
}

func TestListSnapshots_StoreDown(t *testing.T) {
	f := newFixture(t, nil)
	f.store.FailAll = true
	w := f.get("/v1/snapshots")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "service unavailable", resp.Message)
}
