package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/census-geo/internal/catalog"
	"github.com/sells-group/census-geo/internal/model"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return cat
}

func ptr[T any](v T) *T {
	return &v
}

// sacramento is a geocoded request inside Sacramento County, CA.
func sacramento() model.GeoRequest {
	return model.GeoRequest{
		State:      "06",
		County:     "067",
		Tract:      "001101",
		BlockGroup: "1",
		Place:      "64000",
		Lat:        ptr(38.576668),
		Lng:        ptr(-121.493629),
		API:        "acs5",
		Year:       2019,
	}
}
