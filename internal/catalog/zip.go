package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/sells-group/census-geo/internal/fetcher"
	"github.com/sells-group/census-geo/internal/geoerr"
)

// DefaultZipTableURL is the published ZIP code to [lng, lat] table.
const DefaultZipTableURL = "https://s3.amazonaws.com/citysdk/zipcode-to-coordinates.json"

// ZipTable resolves ZIP codes to coordinates from a remote JSON table.
// The table is downloaded on first use and kept; a failed download is
// retried on the next lookup.
type ZipTable struct {
	fetcher fetcher.Fetcher
	url     string

	mu    sync.Mutex
	table map[string][]float64
}

// NewZipTable creates a ZipTable reading from url.
func NewZipTable(f fetcher.Fetcher, url string) *ZipTable {
	if url == "" {
		url = DefaultZipTableURL
	}
	return &ZipTable{fetcher: f, url: url}
}

// Coordinates returns the lat/lng for zip. An unknown ZIP is InvalidInput.
func (z *ZipTable) Coordinates(ctx context.Context, zip string) (lat, lng float64, err error) {
	zip = strings.TrimSpace(zip)
	if zip == "" {
		return 0, 0, geoerr.New(geoerr.InvalidInput, "zip is empty")
	}

	table, err := z.load(ctx)
	if err != nil {
		return 0, 0, err
	}

	coords, ok := table[zip]
	if !ok || len(coords) < 2 {
		return 0, 0, geoerr.New(geoerr.InvalidInput, "unknown zip code %q", zip)
	}
	return coords[1], coords[0], nil
}

func (z *ZipTable) load(ctx context.Context) (map[string][]float64, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.table != nil {
		return z.table, nil
	}
	var table map[string][]float64
	if err := z.fetcher.GetJSON(ctx, z.url, &table); err != nil {
		return nil, err
	}
	if table == nil {
		table = map[string][]float64{}
	}
	z.table = table
	return table, nil
}
