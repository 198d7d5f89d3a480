package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/census-geo/internal/fetcher"
	"github.com/sells-group/census-geo/internal/geoerr"
)

func mustDefault(t *testing.T) *Catalog {
	t.Helper()
	c, err := Default()
	require.NoError(t, err)
	return c
}

func TestDefault_Loads(t *testing.T) {
	c := mustDefault(t)

	years, ok := c.AvailableYears("acs5")
	require.True(t, ok)
	assert.Equal(t, 2009, years[0])

	latest, ok := c.LatestYear("acs5")
	require.True(t, ok)
	assert.Equal(t, years[len(years)-1], latest)

	_, ok = c.LatestYear("pums")
	assert.False(t, ok)

	assert.True(t, c.HasYear("sf1", 2010))
	assert.False(t, c.HasYear("sf3", 2010))
	assert.NotEmpty(t, c.USBounds())
}

func TestRequiredVariables(t *testing.T) {
	c := mustDefault(t)

	assert.Equal(t, []string{"NAME"}, c.RequiredVariables("acs5", 2019))
	assert.Equal(t, []string{"ANPSADPI"}, c.RequiredVariables("sf1", 1990))
	assert.Equal(t, []string{"NAME"}, c.RequiredVariables("sf1", 2000))
	assert.Equal(t, []string{"NAME"}, c.RequiredVariables("unknown", 2000))
}

func TestCapitalCoordinates(t *testing.T) {
	c := mustDefault(t)

	tests := []struct {
		input string
		lat   float64
		lng   float64
	}{
		{"CA", 38.576668, -121.493629},
		{"ca", 38.576668, -121.493629},
		{"California", 38.576668, -121.493629},
		{"  new YORK ", 42.652843, -73.757874},
		{"District of Columbia", 38.897438, -77.026817},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lat, lng, ok := c.CapitalCoordinates(tt.input)
			require.True(t, ok)
			assert.InDelta(t, tt.lat, lat, 1e-6)
			assert.InDelta(t, tt.lng, lng, 1e-6)
		})
	}

	_, _, ok := c.CapitalCoordinates("Atlantis")
	assert.False(t, ok)

	st, ok := c.State("tx")
	require.True(t, ok)
	assert.Equal(t, "48", st.FIPS)
}

func TestLoad_Errors(t *testing.T) {
	base := fstest.MapFS{
		AliasesFile:  {Data: []byte("aliases:\n  population:\n    variable: B01003_001E\n")},
		DatasetsFile: {Data: []byte("datasets:\n  acs5:\n    years: [2019]\n")},
		StatesFile:   {Data: []byte("states: []\n")},
		USBoundsFile: {Data: []byte(`{}`)},
	}

	_, err := Load(base)
	require.NoError(t, err)

	missing := fstest.MapFS{}
	for k, v := range base {
		if k != StatesFile {
			missing[k] = v
		}
	}
	_, err = Load(missing)
	assert.Error(t, err)

	bad := fstest.MapFS{}
	for k, v := range base {
		bad[k] = v
	}
	bad[AliasesFile] = &fstest.MapFile{Data: []byte("aliases:\n  population:\n    description: x\n")}
	_, err = Load(bad)
	assert.ErrorContains(t, err, "has no variable")

	bad[AliasesFile] = base[AliasesFile]
	bad[DatasetsFile] = &fstest.MapFile{Data: []byte("datasets:\n  acs5:\n    years: []\n")}
	_, err = Load(bad)
	assert.ErrorContains(t, err, "has no years")
}

func TestLoadDir_OverridesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DatasetsFile),
		[]byte("datasets:\n  acs5:\n    years: [2015, 2010]\n    required_variables: [NAME]\n"), 0o600))

	c, err := LoadDir(dir)
	require.NoError(t, err)

	latest, ok := c.LatestYear("acs5")
	require.True(t, ok)
	assert.Equal(t, 2015, latest)

	_, ok = c.Alias("population")
	assert.True(t, ok, "aliases fall back to the embedded copy")
}

func TestEmbeddedGeography(t *testing.T) {
	c := mustDefault(t)

	levels, err := c.Geography(context.Background(), "acs5", 2019)
	require.NoError(t, err)
	bg, ok := FindLevel(levels, "block group")
	require.True(t, ok)
	assert.Equal(t, []string{"state", "county", "tract"}, bg.Requires)

	levels, err = c.Geography(context.Background(), "acs1", 2019)
	require.NoError(t, err)
	_, ok = FindLevel(levels, "tract")
	assert.False(t, ok)

	_, err = c.Geography(context.Background(), "acs5", 1850)
	assert.True(t, geoerr.Is(err, geoerr.UnsupportedGeographyLevel))
}

func newTestFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{UserAgent: "test-agent"})
}

func TestRemoteGeography(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2019/acs5/geography.json", r.URL.Path)
		_, _ = io.WriteString(w, `{"fips":[
			{"name":"state","geoLevelDisplay":"040"},
			{"name":"county","requires":["state"]}
		]}`)
	}))
	defer srv.Close()

	g := NewRemoteGeography(newTestFetcher(), srv.URL+"/data")
	levels, err := g.Geography(context.Background(), "acs5", 2019)
	require.NoError(t, err)
	require.Len(t, levels, 2)

	county, ok := FindLevel(levels, "county")
	require.True(t, ok)
	assert.Equal(t, []string{"state"}, county.Requires)

	_, err = g.Geography(context.Background(), "", 2019)
	assert.True(t, geoerr.Is(err, geoerr.InvalidInput))
}

func TestRemoteGeography_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewRemoteGeography(newTestFetcher(), srv.URL+"/").Geography(context.Background(), "acs5", 1990)
	assert.True(t, geoerr.Is(err, geoerr.UpstreamRequestFailed))
}

func TestZipTable(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_ = json.NewEncoder(w).Encode(map[string][]float64{
			"95814": {-121.4944, 38.5816},
		})
	}))
	defer srv.Close()

	z := NewZipTable(newTestFetcher(), srv.URL)

	lat, lng, err := z.Coordinates(context.Background(), "95814")
	require.NoError(t, err)
	assert.InDelta(t, 38.5816, lat, 1e-6)
	assert.InDelta(t, -121.4944, lng, 1e-6)

	_, _, err = z.Coordinates(context.Background(), "00000")
	assert.True(t, geoerr.Is(err, geoerr.InvalidInput))

	_, _, err = z.Coordinates(context.Background(), " ")
	assert.True(t, geoerr.Is(err, geoerr.InvalidInput))

	assert.Equal(t, 1, hits, "table downloaded once")
}

func TestZipTable_RetriesAfterFailure(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string][]float64{"10001": {-73.9967, 40.7484}})
	}))
	defer srv.Close()

	z := NewZipTable(newTestFetcher(), srv.URL)

	_, _, err := z.Coordinates(context.Background(), "10001")
	assert.True(t, geoerr.Is(err, geoerr.UpstreamRequestFailed))

	lat, _, err := z.Coordinates(context.Background(), "10001")
	require.NoError(t, err)
	assert.InDelta(t, 40.7484, lat, 1e-6)

	_, _, err = z.Coordinates(context.Background(), "10001")
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
}
