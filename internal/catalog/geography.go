package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/sells-group/census-geo/internal/fetcher"
	"github.com/sells-group/census-geo/internal/geoerr"
)

// GeographySource returns the geography-requirements catalog for a dataset
// year.
type GeographySource interface {
	Geography(ctx context.Context, api string, year int) ([]GeographyLevel, error)
}

// FindLevel returns the first catalog entry named name.
func FindLevel(levels []GeographyLevel, name string) (GeographyLevel, bool) {
	i := slices.IndexFunc(levels, func(l GeographyLevel) bool { return l.Name == name })
	if i < 0 {
		return GeographyLevel{}, false
	}
	return levels[i], true
}

// Geography implements GeographySource from the embedded dataset table.
func (c *Catalog) Geography(_ context.Context, api string, year int) ([]GeographyLevel, error) {
	ds, ok := c.datasets[api]
	if !ok || !slices.Contains(ds.Years, year) {
		return nil, geoerr.New(geoerr.UnsupportedGeographyLevel, "no geography catalog for %s %d", api, year)
	}
	return slices.Clone(ds.Geography), nil
}

// RemoteGeography reads the geography catalog published by the Census data
// API at {base}{year}/{api}/geography.json.
type RemoteGeography struct {
	fetcher fetcher.Fetcher
	baseURL string
}

// NewRemoteGeography creates a RemoteGeography rooted at baseURL, e.g.
// "https://api.census.gov/data/".
func NewRemoteGeography(f fetcher.Fetcher, baseURL string) *RemoteGeography {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &RemoteGeography{fetcher: f, baseURL: baseURL}
}

type geographyDoc struct {
	FIPS []GeographyLevel `json:"fips"`
}

// Geography implements GeographySource.
func (r *RemoteGeography) Geography(ctx context.Context, api string, year int) ([]GeographyLevel, error) {
	if api == "" || year == 0 {
		return nil, geoerr.New(geoerr.InvalidInput, "year and api must be provided")
	}
	var doc geographyDoc
	u := fmt.Sprintf("%s%d/%s/geography.json", r.baseURL, year, api)
	if err := r.fetcher.GetJSON(ctx, u, &doc); err != nil {
		return nil, err
	}
	return doc.FIPS, nil
}
