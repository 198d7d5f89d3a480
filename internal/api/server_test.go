package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/census-geo/internal/catalog"
	"github.com/sells-group/census-geo/internal/fetcher"
	"github.com/sells-group/census-geo/internal/geoerr"
	"github.com/sells-group/census-geo/internal/model"
	"github.com/sells-group/census-geo/internal/resilience"
	"github.com/sells-group/census-geo/pkg/tigerweb"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, req model.GeoRequest) (*tigerweb.FeatureCollection, error) {
	args := m.Called(ctx, req)
	fc, _ := args.Get(0).(*tigerweb.FeatureCollection)
	return fc, args.Error(1)
}

type staticCircuits map[string]string

func (s staticCircuits) States() map[string]string { return s }

func newTestServer(t *testing.T, runner Runner, opts Options) *Server {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return NewServer(":0", runner, cat, opts)
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestQuery_Success(t *testing.T) {
	runner := &mockRunner{}
	fc := tigerweb.NewFeatureCollection()
	fc.Totals = map[string]float64{"B01003_001E": 100}
	runner.On("Run", mock.Anything, mock.MatchedBy(func(r model.GeoRequest) bool {
		return r.State == "CA" && r.Level == model.LevelState
	})).Return(fc, nil)

	s := newTestServer(t, runner, Options{})
	rec := do(s, http.MethodPost, "/", `{"state":"CA","level":"state","variables":["population"]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "FeatureCollection", out["type"])
	runner.AssertExpectations(t)
}

func TestQuery_InvalidBody(t *testing.T) {
	runner := &mockRunner{}
	s := newTestServer(t, runner, Options{})

	rec := do(s, http.MethodPost, "/", `{"state":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(geoerr.InvalidInput), decodeError(t, rec).Kind)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestQuery_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"invalid address", geoerr.New(geoerr.InvalidAddress, "no match"), http.StatusBadRequest, "invalid_address"},
		{"missing location", geoerr.New(geoerr.MissingLocationInput, "none"), http.StatusBadRequest, "missing_location_input"},
		{"unsupported alias", geoerr.New(geoerr.UnsupportedAliasForDataset, "nope"), http.StatusUnprocessableEntity, "unsupported_alias_for_dataset"},
		{"unsupported level", geoerr.New(geoerr.UnsupportedGeographyLevel, "nope"), http.StatusUnprocessableEntity, "unsupported_geography_level"},
		{"upstream", geoerr.New(geoerr.UpstreamRequestFailed, "down"), http.StatusBadGateway, "upstream_request_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{}
			runner.On("Run", mock.Anything, mock.Anything).Return(nil, tt.err)
			s := newTestServer(t, runner, Options{})

			rec := do(s, http.MethodPost, "/", `{"state":"CA"}`)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.kind, decodeError(t, rec).Kind)
		})
	}
}

func TestQuery_MissingFields(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, mock.Anything).Return(nil, geoerr.Missing([]string{"county", "tract"}))
	s := newTestServer(t, runner, Options{})

	rec := do(s, http.MethodPost, "/", `{"state":"CA","level":"blockGroup"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, string(geoerr.MissingRequiredFields), body.Kind)
	assert.Equal(t, []string{"county", "tract"}, body.Fields)
}

func TestQuery_RetryableUpstream(t *testing.T) {
	runner := &mockRunner{}
	transient := resilience.ClassifyStatus("census", http.StatusServiceUnavailable, "busy")
	runner.On("Run", mock.Anything, mock.Anything).Return(nil, geoerr.Upstream(transient, "census: summary request"))
	s := newTestServer(t, runner, Options{})

	rec := do(s, http.MethodPost, "/", `{"state":"CA"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.True(t, decodeError(t, rec).Retryable)
}

// fetchRunner runs a request as a single upstream GET.
type fetchRunner struct {
	f   *fetcher.HTTPFetcher
	url string
}

func (r fetchRunner) Run(ctx context.Context, _ model.GeoRequest) (*tigerweb.FeatureCollection, error) {
	var rows [][]any
	if err := r.f.GetJSON(ctx, r.url, &rows); err != nil {
		return nil, err
	}
	return tigerweb.NewFeatureCollection(), nil
}

func TestQuery_DeadlineThroughFetcher(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
			_, _ = w.Write([]byte(`[]`))
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()

	breakers := resilience.NewHostBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
	})
	runner := fetchRunner{
		f:   fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Breakers: breakers}),
		url: upstream.URL,
	}
	s := newTestServer(t, runner, Options{RequestTimeout: 50 * time.Millisecond, Circuits: breakers})

	rec := do(s, http.MethodPost, "/", `{"state":"CA"}`)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "timeout", body.Kind)
	assert.False(t, body.Retryable)
	for host, state := range breakers.States() {
		assert.Equal(t, "closed", state, host)
	}

	health := do(s, http.MethodGet, "/health", "")
	assert.Contains(t, health.Body.String(), `"status":"ok"`)
}

func TestStatusFor_DeadlineWinsOverKind(t *testing.T) {
	err := geoerr.Upstream(context.DeadlineExceeded, "census: summary request")
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(err))
	assert.Equal(t, http.StatusBadGateway, statusFor(geoerr.New(geoerr.UpstreamRequestFailed, "down")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.Canceled))
}

func TestQuery_RequestTimeout(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(tigerweb.NewFeatureCollection(), nil)
	s := newTestServer(t, runner, Options{RequestTimeout: 5 * time.Second})

	rec := do(s, http.MethodPost, "/", `{"state":"CA"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	runner.AssertExpectations(t)
}

func TestAliasToVariable(t *testing.T) {
	s := newTestServer(t, &mockRunner{}, Options{})

	rec := do(s, http.MethodGet, "/alias-to-variable?aliases=population,nope", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"population":"B01003_001E","nope":null}`, rec.Body.String())
}

func TestAliasToVariable_Empty(t *testing.T) {
	s := newTestServer(t, &mockRunner{}, Options{})

	rec := do(s, http.MethodGet, "/alias-to-variable", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(geoerr.InvalidInput), decodeError(t, rec).Kind)
}

func TestVariableToAlias(t *testing.T) {
	s := newTestServer(t, &mockRunner{}, Options{})

	rec := do(s, http.MethodGet, "/variable-to-alias?variables=B19013_001E", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"B19013_001E":"income"}`, rec.Body.String())
}

func TestAliases(t *testing.T) {
	s := newTestServer(t, &mockRunner{}, Options{})

	rec := do(s, http.MethodGet, "/aliases", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &mockRunner{}, Options{})
	rec := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	s = newTestServer(t, &mockRunner{}, Options{Circuits: staticCircuits{
		"api.census.gov":          "closed",
		"tigerweb.geo.census.gov": "open",
	}})
	rec = do(s, http.MethodGet, "/health", "")
	var body healthBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "open", body.Circuits["tigerweb.geo.census.gov"])
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t, &mockRunner{}, Options{})
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/metrics", "").Code)

	s = newTestServer(t, &mockRunner{}, Options{Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("census_geo_requests_total 1\n"))
	})})
	rec := do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "census_geo_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &mockRunner{}, Options{CORSOrigins: []string{"https://example.org"}})

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}
