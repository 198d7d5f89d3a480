package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/census-geo/internal/catalog"
	"github.com/sells-group/census-geo/internal/model"
	"github.com/sells-group/census-geo/pkg/geocode"
	"github.com/sells-group/census-geo/pkg/tigerweb"
)

// --- Getter Mock ---

type mockGetter struct {
	mock.Mock
}

func (m *mockGetter) GetJSON(ctx context.Context, rawURL string, out any) error {
	args := m.Called(ctx, rawURL, out)
	return args.Error(0)
}

// respondJSON decodes body into the GetJSON out argument.
func respondJSON(body string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		if err := json.Unmarshal([]byte(body), args.Get(2)); err != nil {
			panic(err)
		}
	}
}

// --- Geocoder Mock ---

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) LocateAddress(ctx context.Context, addr geocode.AddressInput) (*geocode.Result, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}

func (m *mockGeocoder) Geographies(ctx context.Context, lat, lng float64) (*geocode.Geographies, error) {
	args := m.Called(ctx, lat, lng)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Geographies), args.Error(1)
}

// --- ZIP Table Mock ---

type mockZips struct {
	mock.Mock
}

func (m *mockZips) Coordinates(ctx context.Context, zip string) (float64, float64, error) {
	args := m.Called(ctx, zip)
	return args.Get(0).(float64), args.Get(1).(float64), args.Error(2)
}

// --- TIGERweb Mock ---

type mockTiger struct {
	mock.Mock
}

func (m *mockTiger) QueryPoint(ctx context.Context, level string, lat, lng float64) (*tigerweb.FeatureSet, error) {
	args := m.Called(ctx, level, lat, lng)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tigerweb.FeatureSet), args.Error(1)
}

func (m *mockTiger) QueryPolygon(ctx context.Context, level string, geometry json.RawMessage, spatialRel string) (*tigerweb.FeatureSet, error) {
	args := m.Called(ctx, level, geometry, spatialRel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tigerweb.FeatureSet), args.Error(1)
}

// --- Summary Fetcher Mock ---

type mockSummary struct {
	mock.Mock
}

func (m *mockSummary) Fetch(ctx context.Context, req model.GeoRequest) (model.GeoRequest, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.GeoRequest), args.Error(1)
}

// --- Geography Source Mock ---

type mockGeography struct {
	mock.Mock
}

func (m *mockGeography) Geography(ctx context.Context, api string, year int) ([]catalog.GeographyLevel, error) {
	args := m.Called(ctx, api, year)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.GeographyLevel), args.Error(1)
}

// --- Observer ---

type recordingObserver struct {
	mu           sync.Mutex
	runs         []string
	supplemental map[string]int
	ambiguous    map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{supplemental: map[string]int{}, ambiguous: map[string]int{}}
}

func (o *recordingObserver) ObserveRun(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, outcome)
}

func (o *recordingObserver) ObserveSupplemental(level string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.supplemental[level] += n
}

func (o *recordingObserver) ObserveAmbiguous(level string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ambiguous[level]++
}
