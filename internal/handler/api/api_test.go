package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KPISentinel/internal/domain/models"
	"KPISentinel/internal/repository"
	"KPISentinel/internal/service/cache"
	"KPISentinel/internal/services/analytics"
	"KPISentinel/internal/usecase"
	xhttp "KPISentinel/pkg/http"
	applogger "KPISentinel/pkg/logger"
	"KPISentinel/pkg/metrics"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testEnv struct {
	server *xhttp.Server
	store  *repository.MemorySeriesStore
}

func newTestEnv(t *testing.T, c cache.BytesCache, ttl time.Duration) *testEnv {
	t.Helper()
	l := applogger.NewNop()
	store := repository.NewMemorySeriesStore(0)
	analyzer := analytics.NewAnalyzer(0, 0, 0)
	ingest := usecase.NewIngestUseCase(store, metrics.Nop{})
	dashboard := usecase.NewDashboardUseCase(store, analyzer, 20)

	renderer, err := NewTemplateRenderer()
	require.NoError(t, err)

	router := NewRouter(
		NewIngestHandler(l, ingest, metrics.Nop{}),
		NewKPIHandler(l, dashboard, c, ttl, 100),
		NewDashboardHandler(l, dashboard, renderer, 20, false),
	)
	return &testEnv{server: xhttp.NewServer(router, xhttp.WithLogger(l)), store: store}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Echo().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (e *testEnv) post(t *testing.T, name string, ts time.Time, value float64) {
	t.Helper()
	body := fmt.Sprintf(`{"metric_name":%q,"timestamp":%q,"value":%v}`, name, ts.Format(time.RFC3339), value)
	code, env := e.do(t, http.MethodPost, "/ingest", body)
	require.Equal(t, http.StatusOK, code, string(env.Data))
}

func (e *testEnv) view(t *testing.T, name string) models.KPIView {
	t.Helper()
	code, env := e.do(t, http.MethodGet, "/api/kpis/"+name, "")
	require.Equal(t, http.StatusOK, code)
	var v models.KPIView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestIngestThenClassify(t *testing.T) {
	env := newTestEnv(t, nil, 0)

	for i := 0; i < 9; i++ {
		env.post(t, "inv", t0.Add(time.Duration(i)*time.Minute), 100)
	}
	v := env.view(t, "inv")
	assert.Equal(t, 9, v.Count)
	assert.Equal(t, models.VerdictInsufficientData, v.Verdict.Status)

	// A flat reference never flags, however far the newest value jumps.
	env.post(t, "inv", t0.Add(9*time.Minute), 1000)
	v = env.view(t, "inv")
	assert.Equal(t, 10, v.Count)
	assert.Equal(t, models.VerdictNoAnomaly, v.Verdict.Status)

	for i := 1; i <= 10; i++ {
		env.post(t, "x", t0.Add(time.Duration(i)*time.Minute), float64(i))
	}
	v = env.view(t, "x")
	assert.Equal(t, models.VerdictNoAnomaly, v.Verdict.Status)
	assert.True(t, v.Forecast.Available)
}

func TestIngestDetectsSpike(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	for i := 0; i < 10; i++ {
		env.post(t, "spike", t0.Add(time.Duration(i)*time.Minute), float64((i%2)*10))
	}
	env.post(t, "spike", t0.Add(10*time.Minute), 50)

	v := env.view(t, "spike")
	assert.Equal(t, models.VerdictAnomaly, v.Verdict.Status)
	assert.Equal(t, models.DirectionHigh, v.Verdict.Direction)
	assert.Equal(t, "value 50.00 is unusually HIGH (mean=5.00, std=5.00)", v.Verdict.Reason)
}

func TestIngestRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"missing value", `{"metric_name":"cpu","timestamp":"2024-03-01T12:00:00Z"}`, "ERR_REQUIRED"},
		{"missing name", `{"timestamp":"2024-03-01T12:00:00Z","value":1}`, "ERR_REQUIRED"},
		{"bad timestamp", `{"metric_name":"cpu","timestamp":"yesterday","value":1}`, "ERR_INVALID_TIMESTAMP"},
		{"value not a number", `{"metric_name":"cpu","timestamp":"2024-03-01T12:00:00Z","value":"abc"}`, "ERR_MALFORMED"},
		{"not json", `{"metric_name":`, "ERR_MALFORMED"},
		{"unknown field", `{"metric_name":"cpu","timestamp":"2024-03-01T12:00:00Z","value":1,"unexpected":true}`, "ERR_MALFORMED"},
		{"name too long", `{"metric_name":"` + strings.Repeat("m", 300) + `","timestamp":"2024-03-01T12:00:00Z","value":1}`, "ERR_MAX"},
		{"padded name", `{"metric_name":"  inv ","timestamp":"2024-03-01T12:00:00Z","value":1}`, "ERR_WHITESPACE"},
		{"two objects", `{"metric_name":"cpu","timestamp":"2024-03-01T12:00:00Z","value":1}{}`, "ERR_MALFORMED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, 0)
			code, resp := env.do(t, http.MethodPost, "/ingest", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, http.StatusBadRequest, resp.Status)

			var errs []xhttp.ValidationError
			require.NoError(t, json.Unmarshal(resp.Data, &errs))
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.code, errs[0].Code)
			assert.Empty(t, env.store.ListMetricNames())
		})
	}
}

func TestIngestAcceptsZero(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	code, resp := env.do(t, http.MethodPost, "/ingest", `{"metric_name":"cpu","timestamp":"2024-03-01T12:00:00","value":0}`)
	require.Equal(t, http.StatusOK, code)

	var res usecase.IngestResult
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	assert.Equal(t, usecase.IngestResult{MetricName: "cpu", Samples: 1}, res)
}

func TestKPINotFound(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	code, resp := env.do(t, http.MethodGet, "/api/kpis/nope", "")
	assert.Equal(t, http.StatusNotFound, code)

	var errs []xhttp.AppError
	require.NoError(t, json.Unmarshal(resp.Data, &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_NOT_FOUND", errs[0].Code)
}

func TestKPIRecentWindow(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	// Out-of-order arrival; the view sorts by timestamp.
	env.post(t, "lat", t0.Add(2*time.Minute), 30)
	env.post(t, "lat", t0, 10)
	env.post(t, "lat", t0.Add(time.Minute), 20)

	code, resp := env.do(t, http.MethodGet, "/api/kpis/lat?n=2", "")
	require.Equal(t, http.StatusOK, code)
	var v models.KPIView
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	require.Len(t, v.Recent, 2)
	assert.Equal(t, 20.0, v.Recent[0].Value)
	assert.Equal(t, 30.0, v.Recent[1].Value)
	assert.InDelta(t, 23.0, v.Forecast.Value, 1e-9)

	code, _ = env.do(t, http.MethodGet, "/api/kpis/lat?n=-1", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = env.do(t, http.MethodGet, "/api/kpis/lat?n=0", "")
	assert.Equal(t, http.StatusBadRequest, code)
	var errs []xhttp.ValidationError
	require.NoError(t, json.Unmarshal(resp.Data, &errs))
	require.NotEmpty(t, errs)
	assert.Equal(t, "ERR_GTE", errs[0].Code)

	code, resp = env.do(t, http.MethodGet, "/api/kpis/lat", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	assert.Len(t, v.Recent, 3, "default n covers the whole short series")
}

func TestKPIList(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	env.post(t, "b", t0, 1)
	env.post(t, "a", t0, 1)

	code, resp := env.do(t, http.MethodGet, "/api/kpis", "")
	require.Equal(t, http.StatusOK, code)
	var views []models.KPIView
	require.NoError(t, json.Unmarshal(resp.Data, &views))
	require.Len(t, views, 2)
	assert.Equal(t, "a", views[0].Name)
	assert.Equal(t, "b", views[1].Name)
}

func TestKPIResponsesAreCached(t *testing.T) {
	env := newTestEnv(t, cache.NewTTLCache(), time.Minute)
	env.post(t, "cpu", t0, 1)
	assert.Equal(t, 1, env.view(t, "cpu").Count)

	env.post(t, "cpu", t0.Add(time.Minute), 2)
	assert.Equal(t, 1, env.view(t, "cpu").Count)

	// Misses are not cached.
	code, _ := env.do(t, http.MethodGet, "/api/kpis/mem", "")
	assert.Equal(t, http.StatusNotFound, code)
	env.post(t, "mem", t0, 1)
	assert.Equal(t, 1, env.view(t, "mem").Count)
}

func TestDashboardPage(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	env.post(t, "orders_per_min", t0, 42)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	env.server.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "orders_per_min")
	assert.Contains(t, rec.Body.String(), "insufficient_data")
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	code, resp := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Data))
}
