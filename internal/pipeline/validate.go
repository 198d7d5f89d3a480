package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/census-geo/internal/catalog"
	"github.com/sells-group/census-geo/internal/geoerr"
	"github.com/sells-group/census-geo/internal/model"
)

// DefaultAPI is used when a request names no dataset.
const DefaultAPI = "acs5"

// Validator fills request defaults and checks the geography against the
// dataset's catalog.
type Validator struct {
	catalog   *catalog.Catalog
	geography catalog.GeographySource
	apiKey    string
}

// NewValidator creates a Validator. apiKey is used for requests that carry
// none of their own.
func NewValidator(cat *catalog.Catalog, geo catalog.GeographySource, apiKey string) *Validator {
	if geo == nil {
		geo = cat
	}
	return &Validator{catalog: cat, geography: geo, apiKey: apiKey}
}

// Normalize applies defaults: the acs5 dataset, the latest year the dataset
// offers when the year is absent or unavailable, the blockGroup level when
// the level is absent or unknown, and the configured API key.
func (v *Validator) Normalize(req model.GeoRequest) model.GeoRequest {
	out := req.Clone()
	if out.API == "" {
		out.API = DefaultAPI
	}
	if !v.catalog.HasYear(out.API, out.Year) {
		if latest, ok := v.catalog.LatestYear(out.API); ok {
			out.Year = latest
		}
	}
	if !out.Level.Valid() {
		out.Level = model.LevelBlockGroup
	}
	if out.APIKey == "" {
		out.APIKey = v.apiKey
	}
	return out
}

// ValidateGeography checks that the dataset offers the request's level and
// that every field the level requires is present.
func (v *Validator) ValidateGeography(ctx context.Context, req model.GeoRequest) (model.GeoRequest, error) {
	levels, err := v.geography.Geography(ctx, req.API, req.Year)
	if err != nil {
		return req, err
	}

	entry, ok := catalog.FindLevel(levels, req.Level.CatalogName())
	if !ok {
		return req, geoerr.New(geoerr.UnsupportedGeographyLevel,
			"level %q is not available for %s %d", req.Level, req.API, req.Year)
	}

	var missing []string
	for _, field := range entry.Requires {
		if _, ok := req.FIPS(field); !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		zap.L().Debug("pipeline: geography missing fields",
			zap.String("level", string(req.Level)),
			zap.Strings("missing", missing),
		)
		return req, geoerr.Missing(missing)
	}

	out := req.Clone()
	out.GeographyValidForAPI = true
	return out, nil
}
