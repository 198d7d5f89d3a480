package tigerweb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/census-geo/internal/geoerr"
)

// DefaultURLTemplate is the TIGERweb current-vintage map service. {layer}
// is replaced with the layer id.
const DefaultURLTemplate = "https://tigerweb.geo.census.gov/arcgis/rest/services/TIGERweb/tigerWMS_Current/MapServer/{layer}/query"

// DefaultLayers maps geography levels to tigerWMS_Current layer ids.
func DefaultLayers() map[string]int {
	return map[string]int{
		"state":      84,
		"county":     86,
		"place":      28,
		"tract":      8,
		"blockGroup": 10,
	}
}

// Poster issues a form-encoded POST and decodes the JSON response.
type Poster interface {
	PostFormJSON(ctx context.Context, rawURL string, form url.Values, out any) error
}

// Client queries TIGERweb layers.
type Client struct {
	poster      Poster
	urlTemplate string
	layers      map[string]int
}

// NewClient creates a Client. Empty template or layers fall back to the
// defaults.
func NewClient(p Poster, urlTemplate string, layers map[string]int) *Client {
	if urlTemplate == "" {
		urlTemplate = DefaultURLTemplate
	}
	merged := DefaultLayers()
	for k, v := range layers {
		merged[k] = v
	}
	return &Client{poster: p, urlTemplate: urlTemplate, layers: merged}
}

// LayerURL returns the query URL for level's layer.
func (c *Client) LayerURL(level string) (string, error) {
	id, ok := c.layers[level]
	if !ok {
		return "", geoerr.New(geoerr.UnsupportedGeographyLevel, "no tigerweb layer for level %q", level)
	}
	return strings.ReplaceAll(c.urlTemplate, "{layer}", strconv.Itoa(id)), nil
}

// QueryPoint returns the features of level's layer intersecting lat/lng.
func (c *Client) QueryPoint(ctx context.Context, level string, lat, lng float64) (*FeatureSet, error) {
	geometry := strconv.FormatFloat(lng, 'f', -1, 64) + "," + strconv.FormatFloat(lat, 'f', -1, 64)
	return c.query(ctx, level, geometry, GeometryPoint, RelIntersects)
}

// QueryPolygon returns the features of level's layer related to the ArcGIS
// polygon geometry by spatialRel.
func (c *Client) QueryPolygon(ctx context.Context, level string, geometry json.RawMessage, spatialRel string) (*FeatureSet, error) {
	if len(geometry) == 0 {
		return nil, geoerr.New(geoerr.InvalidInput, "tigerweb: polygon query needs a geometry")
	}
	return c.query(ctx, level, string(geometry), GeometryPolygon, spatialRel)
}

func (c *Client) query(ctx context.Context, level, geometry, geometryType, spatialRel string) (*FeatureSet, error) {
	u, err := c.LayerURL(level)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"f":            {"json"},
		"where":        {""},
		"outFields":    {"*"},
		"outSR":        {strconv.Itoa(WKID4326)},
		"inSR":         {strconv.Itoa(WKID4326)},
		"geometry":     {geometry},
		"geometryType": {geometryType},
		"spatialRel":   {spatialRel},
	}

	var fs FeatureSet
	if err := c.poster.PostFormJSON(ctx, u, form, &fs); err != nil {
		return nil, err
	}
	if fs.Error != nil {
		return nil, geoerr.Upstream(eris.Wrap(fs.Error, "query layer"), fmt.Sprintf("tigerweb: %s", level))
	}

	zap.L().Debug("tigerweb: layer query",
		zap.String("level", level),
		zap.String("geometry_type", geometryType),
		zap.String("spatial_rel", spatialRel),
		zap.Int("features", len(fs.Features)),
	)
	return &fs, nil
}
