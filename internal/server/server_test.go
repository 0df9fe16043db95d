package server

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"heart-risk/internal/engine"
	"heart-risk/internal/metrics"
	"heart-risk/internal/ml"
	"heart-risk/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleJSON = `{"age":63,"sex":1,"cp":3,"trestbps":145,"chol":233,"fbs":1,"restecg":0,` +
	`"thalach":150,"exang":0,"oldpeak":2.3,"slope":0,"ca":0,"thal":1}`

const batchCSV = "age,sex,cp,trestbps,chol,fbs,restecg,thalach,exang,oldpeak,slope,ca,thal,target\n" +
	"63,1,3,145,233,1,0,150,0,2.3,0,0,1,1\n" +
	"old,1,3,145,233,1,0,150,0,2.3,0,0,1,1\n" +
	"40,0,0,110,180,0,0,180,0,0,2,0,2,0\n"

type testEnv struct {
	srv     *Server
	store   *storage.Store
	metrics *metrics.Metrics
	reg     *prometheus.Registry
}

func newTestEnv(t *testing.T, withStore bool, mutate func(*Config)) *testEnv {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	mw := metrics.NewWrapper(m)

	e, err := engine.New(ml.SampleArtifact(), engine.Options{Permutations: 2, Metrics: mw})
	require.NoError(t, err)

	env := &testEnv{metrics: m, reg: reg}
	cfg := Config{Engine: e, Metrics: mw, Gatherer: reg, APIVersion: "test"}
	if withStore {
		env.store, err = storage.New(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { env.store.Close() })
		cfg.Store = env.store
	}
	if mutate != nil {
		mutate(&cfg)
	}
	env.srv = New(cfg)
	return env
}

func (env *testEnv) do(t *testing.T, method, target, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false, nil)
	rec := env.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.APIVersion)
	assert.Equal(t, "1.0.0", resp.ModelVersion)
	assert.True(t, resp.ModelLoaded)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestHealth_NotReady(t *testing.T) {
	srv := New(Config{})
	for _, path := range []string{"/health", "/model-info"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(exampleJSON)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, engine.KindModel, decode[ErrorResponse](t, rec).Kind)
}

func TestModelInfo(t *testing.T) {
	env := newTestEnv(t, false, nil)
	rec := env.do(t, http.MethodGet, "/model-info", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[ml.ModelInfo](t, rec)
	assert.Equal(t, "1.0.0", info.Version)
	assert.Len(t, info.Features, 13)
	assert.Len(t, info.BaseLearners, 3)
	assert.True(t, info.Calibrated)
}

func TestPredict(t *testing.T) {
	env := newTestEnv(t, true, nil)
	rec := env.do(t, http.MethodPost, "/predict", "application/json", []byte(exampleJSON))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[engine.PredictionResult](t, rec)
	assert.InDelta(t, 0.6957, res.Probability, 1e-3)
	assert.Equal(t, 1, res.Prediction)
	assert.Equal(t, "HIGH", string(res.RiskLevel))
	assert.Len(t, res.Contributions, 13)

	n, err := env.store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recent, err := env.store.RecentPredictions(1)
	require.NoError(t, err)
	assert.Equal(t, storage.SourceSingle, recent[0].Source)
	assert.Equal(t, 63.0, recent[0].Input["age"])

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.HTTPRequests.WithLabelValues("/predict", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.StoredPredictions))
}

func TestPredict_SchemaError(t *testing.T) {
	env := newTestEnv(t, true, nil)
	body := strings.Replace(exampleJSON, `"age":63`, `"age":500`, 1)
	body = strings.Replace(body, `,"thal":1`, "", 1)
	rec := env.do(t, http.MethodPost, "/predict", "application/json", []byte(body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, engine.KindSchema, resp.Kind)
	require.NotNil(t, resp.Violations)
	assert.Equal(t, []string{"thal"}, resp.Violations.Missing)
	require.Len(t, resp.Violations.Invalid, 1)
	assert.Equal(t, "age", resp.Violations.Invalid[0].Field)

	n, err := env.store.Count()
	require.NoError(t, err)
	assert.Zero(t, n, "rejected inputs are not logged")
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.HTTPRequests.WithLabelValues("/predict", "400")))
}

func TestPredict_BooleanFieldRejected(t *testing.T) {
	env := newTestEnv(t, true, nil)
	body := strings.Replace(exampleJSON, `"sex":1`, `"sex":true`, 1)
	body = strings.Replace(body, `"fbs":1`, `"fbs":{"value":1}`, 1)
	rec := env.do(t, http.MethodPost, "/predict", "application/json", []byte(body))

	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, engine.KindSchema, resp.Kind)
	require.NotNil(t, resp.Violations)
	require.Len(t, resp.Violations.Invalid, 2)
	assert.Equal(t, "sex", resp.Violations.Invalid[0].Field)
	assert.Equal(t, "not numeric: boolean", resp.Violations.Invalid[0].Reason)
	assert.Equal(t, "fbs", resp.Violations.Invalid[1].Field)

	n, err := env.store.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPredict_BadBody(t *testing.T) {
	env := newTestEnv(t, false, nil)
	for _, body := range []string{"{", "null", "[1,2]"} {
		rec := env.do(t, http.MethodPost, "/predict", "application/json", []byte(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestBatchPredict_CSV(t *testing.T) {
	env := newTestEnv(t, true, nil)
	rec := env.do(t, http.MethodPost, "/batch_predict", "text/csv", []byte(batchCSV))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var b struct {
		ID            string         `json:"id"`
		Status        string         `json:"status"`
		Total         int            `json:"total"`
		Succeeded     int            `json:"succeeded"`
		Failed        int            `json:"failed"`
		RiskHistogram map[string]int `json:"risk_histogram"`
		Rows          []struct {
			Row   int `json:"row"`
			Error *struct {
				Kind string `json:"kind"`
			} `json:"error"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, "COMPLETE", b.Status)
	assert.Equal(t, 3, b.Total)
	assert.Equal(t, 2, b.Succeeded)
	assert.Equal(t, 1, b.Failed)
	assert.Equal(t, map[string]int{"LOW": 1, "MODERATE": 0, "HIGH": 1}, b.RiskHistogram)
	require.Len(t, b.Rows, 3)
	assert.Nil(t, b.Rows[0].Error)
	require.NotNil(t, b.Rows[1].Error)
	assert.Equal(t, engine.KindSchema, b.Rows[1].Error.Kind)

	recent, err := env.store.RecentPredictions(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	for _, r := range recent {
		assert.Equal(t, storage.SourceBatch, r.Source)
		assert.Equal(t, b.ID, r.BatchID)
	}
}

func TestBatchPredict_JSONArrayAsCSVReport(t *testing.T) {
	env := newTestEnv(t, false, nil)
	body := "[" + exampleJSON + "," + exampleJSON + "]"
	rec := env.do(t, http.MethodPost, "/batch_predict?format=csv", "application/json", []byte(body))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `attachment; filename="batch_`)

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Row", records[0][0])
	assert.Equal(t, "HIGH", records[1][4])
}

func TestBatchPredict_PlainTextBodyIsJSON(t *testing.T) {
	env := newTestEnv(t, false, nil)
	body := "[" + exampleJSON + "," + exampleJSON + "]"
	rec := env.do(t, http.MethodPost, "/batch_predict", "text/plain; charset=utf-8", []byte(body))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var b struct {
		Total     int `json:"total"`
		Succeeded int `json:"succeeded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, 2, b.Total)
	assert.Equal(t, 2, b.Succeeded)

	rec = env.do(t, http.MethodPost, "/batch_predict", "text/plain", []byte(batchCSV))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "CSV needs a CSV content type")
}

func TestBatchPredict_TextReport(t *testing.T) {
	env := newTestEnv(t, false, nil)
	rec := env.do(t, http.MethodPost, "/batch_predict?format=text", "text/csv", []byte(batchCSV))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.True(t, strings.HasSuffix(rec.Header().Get("Content-Disposition"), `.txt"`))
	assert.Contains(t, rec.Body.String(), "HEART DISEASE RISK BATCH REPORT")
	assert.Contains(t, rec.Body.String(), "Failed: 1")
}

func TestBatchPredict_Multipart(t *testing.T) {
	env := newTestEnv(t, false, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "patients.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(batchCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := env.do(t, http.MethodPost, "/batch_predict", mw.FormDataContentType(), body.Bytes())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var b struct {
		Succeeded int `json:"succeeded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, 2, b.Succeeded)
}

func TestBatchPredict_Rejections(t *testing.T) {
	env := newTestEnv(t, false, func(c *Config) { c.MaxUploadBytes = 1024 })
	header := strings.SplitN(batchCSV, "\n", 2)[0] + "\n"

	tests := []struct {
		name        string
		target      string
		contentType string
		body        string
		want        int
	}{
		{"unknown format", "/batch_predict?format=pdf", "text/csv", batchCSV, http.StatusBadRequest},
		{"header only", "/batch_predict", "text/csv", header, http.StatusBadRequest},
		{"no feature columns", "/batch_predict", "text/csv", "id,name\n1,x\n", http.StatusBadRequest},
		{"empty array", "/batch_predict", "application/json", "[]", http.StatusBadRequest},
		{"malformed json", "/batch_predict", "application/json", "[{", http.StatusBadRequest},
		{"too large", "/batch_predict", "text/csv", header + strings.Repeat("63,1,3,145,233,1,0,150,0,2.3,0,0,1,1\n", 64), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.target, tt.contentType, []byte(tt.body))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestBatchPredict_EngineNotReady(t *testing.T) {
	srv := New(Config{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/batch_predict", strings.NewReader(batchCSV))
	req.Header.Set("Content-Type", "text/csv")
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "engine not ready")
}

func TestAnalytics_NoStorage(t *testing.T) {
	env := newTestEnv(t, false, nil)
	rec := env.do(t, http.MethodGet, "/analytics", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[AnalyticsResponse](t, rec)
	assert.False(t, resp.StorageEnabled)
	assert.Zero(t, resp.TotalPredictions)
	assert.Empty(t, resp.RiskDistribution)
	assert.NotNil(t, resp.RecentPredictions)
}

func TestAnalytics(t *testing.T) {
	env := newTestEnv(t, true, nil)
	rec := env.do(t, http.MethodPost, "/batch_predict", "text/csv", []byte(batchCSV))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/predict", "application/json", []byte(exampleJSON))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/analytics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[AnalyticsResponse](t, rec)
	assert.True(t, resp.StorageEnabled)
	assert.Equal(t, 3, resp.TotalPredictions)
	assert.Equal(t, map[string]int{"HIGH": 2, "LOW": 1}, resp.RiskDistribution)
	require.Len(t, resp.RecentPredictions, 3)
	assert.Equal(t, storage.SourceSingle, resp.RecentPredictions[0].Source, "newest first")
}

type failingStore struct{}

var errDiskFull = errors.New("disk full")

func (failingStore) StorePrediction(storage.PredictionRecord) (storage.PredictionRecord, error) {
	return storage.PredictionRecord{}, errDiskFull
}
func (failingStore) StorePredictions([]storage.PredictionRecord) error { return errDiskFull }
func (failingStore) RecentPredictions(int) ([]storage.PredictionRecord, error) {
	return nil, errDiskFull
}
func (failingStore) RiskDistribution() (map[string]int, error) { return nil, errDiskFull }
func (failingStore) Count() (int, error)                       { return 0, errDiskFull }

func TestStorageFailureDoesNotFailPrediction(t *testing.T) {
	env := newTestEnv(t, false, func(c *Config) { c.Store = failingStore{} })

	rec := env.do(t, http.MethodPost, "/predict", "application/json", []byte(exampleJSON))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/batch_predict", "text/csv", []byte(batchCSV))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.StorageErrors))

	rec = env.do(t, http.MethodGet, "/analytics", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, false, nil)
	env.do(t, http.MethodPost, "/predict", "application/json", []byte(exampleJSON))

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "heart_risk_predictions_total")
	assert.Contains(t, body, `heart_risk_http_requests_total{code="200",route="/predict"} 1`)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, false, nil)
	rec := env.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.HTTPRequests.WithLabelValues("unmatched", "404")))
}
