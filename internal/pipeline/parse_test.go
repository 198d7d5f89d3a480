package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/census-geo/internal/geoerr"
	"github.com/sells-group/census-geo/internal/model"
)

func rowsOf(rows ...[]any) [][]any {
	return rows
}

func TestParseSummary_SingleGeography(t *testing.T) {
	cat := testCatalog(t)
	req := model.GeoRequest{API: "acs5", Year: 2019, Level: model.LevelCounty, Variables: []string{"B01001_001E"}, Geocoded: true}

	out, err := ParseSummary(cat, req, rowsOf(
		[]any{"NAME", "state", "county", "B01001_001E"},
		[]any{"Foo County", "06", "001", "1000"},
	))
	require.NoError(t, err)
	assert.Equal(t, []model.Record{{"B01001_001E": "1000"}}, out.Data)
	assert.False(t, out.Geocoded)
	assert.True(t, req.Geocoded, "input request untouched")
}

func TestParseSummary_Normalized(t *testing.T) {
	cat := testCatalog(t)
	req := model.GeoRequest{API: "acs5", Year: 2019, Level: model.LevelCounty, Variables: []string{"poverty", "population"}}

	out, err := ParseSummary(cat, req, rowsOf(
		[]any{"NAME", "B17001_002E", "B01003_001E", "state", "county"},
		[]any{"Foo County", "250", "1000", "06", "001"},
	))
	require.NoError(t, err)
	require.Len(t, out.Data, 1)
	rec := out.Data[0]
	assert.Equal(t, "250", rec["poverty"])
	assert.Equal(t, "1000", rec["population"])
	assert.InDelta(t, 0.25, rec["poverty_normalized"], 1e-9)
	assert.NotContains(t, rec, "population_normalized")
}

func TestParseSummary_ZeroPopulation(t *testing.T) {
	cat := testCatalog(t)
	req := model.GeoRequest{API: "acs5", Year: 2019, Level: model.LevelCounty, Variables: []string{"poverty", "population"}}

	out, err := ParseSummary(cat, req, rowsOf(
		[]any{"NAME", "B17001_002E", "B01003_001E"},
		[]any{"Empty County", "0", "0"},
	))
	require.NoError(t, err)
	rec := out.Data[0]
	assert.Contains(t, rec, "poverty_normalized")
	assert.Nil(t, rec["poverty_normalized"])
}

func TestParseSummary_Sublevel(t *testing.T) {
	cat := testCatalog(t)
	req := model.GeoRequest{API: "acs5", Year: 2019, Level: model.LevelCounty, Sublevel: true, Variables: []string{"income"}}

	out, err := ParseSummary(cat, req, rowsOf(
		[]any{"NAME", "B19013_001E", "state", "county", "tract"},
		[]any{"Census Tract 11.01", "51234", "06", "067", "001101"},
		[]any{"Census Tract 12", nil, "06", "067", "001200"},
	))
	require.NoError(t, err)
	require.Len(t, out.Data, 2)

	assert.Equal(t, model.Record{
		"name":   "Census Tract 11.01",
		"state":  "06",
		"county": "067",
		"tract":  "001101",
		"income": "51234",
	}, out.Data[0])
	assert.NotContains(t, out.Data[1], "income", "null cells are absent")
	assert.Equal(t, "001200", out.Data[1]["tract"])
}

func TestParseSummary_BlockGroupColumn(t *testing.T) {
	cat := testCatalog(t)
	req := model.GeoRequest{API: "acs5", Year: 2019, Level: model.LevelBlockGroup, Sublevel: true, Variables: []string{"income"}}

	out, err := ParseSummary(cat, req, rowsOf(
		[]any{"NAME", "B19013_001E", "state", "county", "tract", "block group"},
		[]any{"Block Group 1", "40000", "06", "067", "001101", "1"},
	))
	require.NoError(t, err)
	assert.Equal(t, "1", out.Data[0]["blockGroup"])
	assert.NotContains(t, out.Data[0], "block group")
}

func TestParseSummary_1990Name(t *testing.T) {
	cat := testCatalog(t)
	req := model.GeoRequest{API: "sf3", Year: 1990, Level: model.LevelState, Sublevel: true, Variables: []string{"P0010001"}}

	out, err := ParseSummary(cat, req, rowsOf(
		[]any{"ANPSADPI", "P0010001", "state"},
		[]any{"California", "29760021", "06"},
	))
	require.NoError(t, err)
	assert.Equal(t, "California", out.Data[0]["name"])
	assert.Equal(t, "29760021", out.Data[0]["P0010001"])
}

func TestParseSummary_NumericCells(t *testing.T) {
	cat := testCatalog(t)
	req := model.GeoRequest{API: "acs5", Year: 2019, Level: model.LevelState, Variables: []string{"income"}}

	out, err := ParseSummary(cat, req, rowsOf(
		[]any{"NAME", "B19013_001E"},
		[]any{"California", float64(75235)},
	))
	require.NoError(t, err)
	assert.Equal(t, "75235", out.Data[0]["income"])
}

func TestParseSummary_NoRows(t *testing.T) {
	cat := testCatalog(t)
	req := model.GeoRequest{API: "acs5", Year: 2019, Level: model.LevelState}

	_, err := ParseSummary(cat, req, rowsOf([]any{"NAME"}))
	assert.True(t, geoerr.Is(err, geoerr.UpstreamRequestFailed))

	_, err = ParseSummary(cat, req, nil)
	assert.True(t, geoerr.Is(err, geoerr.UpstreamRequestFailed))
}

func TestRatio(t *testing.T) {
	assert.InDelta(t, 0.5, ratio("5", "10"), 1e-9)
	assert.Nil(t, ratio("5", "0"))
	assert.Nil(t, ratio("x", "10"))
	assert.Nil(t, ratio("5", "n/a"))
}
