package pipeline

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/census-geo/internal/geoerr"
	"github.com/sells-group/census-geo/internal/model"
	"github.com/sells-group/census-geo/pkg/tigerweb"
)

// FeatureQuerier queries TIGERweb boundary layers.
type FeatureQuerier interface {
	QueryPoint(ctx context.Context, level string, lat, lng float64) (*tigerweb.FeatureSet, error)
	QueryPolygon(ctx context.Context, level string, geometry json.RawMessage, spatialRel string) (*tigerweb.FeatureSet, error)
}

// FeatureResolver fetches the boundary features a request covers.
type FeatureResolver struct {
	tiger    FeatureQuerier
	usBounds []byte
}

// NewFeatureResolver creates a FeatureResolver. usBounds is the national
// boundary as a GeoJSON Feature, used as the container geometry for the us
// level.
func NewFeatureResolver(q FeatureQuerier, usBounds []byte) *FeatureResolver {
	return &FeatureResolver{tiger: q, usBounds: usBounds}
}

// Resolve returns the features for the request and the request as the
// features describe it. A sublevel request without a container becomes a
// request for the children of its level inside that level's boundary.
func (r *FeatureResolver) Resolve(ctx context.Context, req model.GeoRequest) (model.GeoRequest, *tigerweb.FeatureCollection, error) {
	out := req.Clone()
	log := zap.L().With(zap.String("stage", "features"), zap.String("level", string(out.Level)))

	if !out.Sublevel {
		fc, err := r.point(ctx, out)
		if err != nil {
			return req, nil, err
		}
		log.Debug("pipeline: point features", zap.Int("features", len(fc.Features)))
		return out, fc, nil
	}

	if out.Container == "" {
		out.Container = out.Level
		out.Level = out.Level.Child()
		out.ContainerGeometry = nil
	}
	if len(out.ContainerGeometry) == 0 {
		g, err := r.containerGeometry(ctx, out)
		if err != nil {
			return req, nil, err
		}
		out.ContainerGeometry = g
	}

	rel := tigerweb.RelContains
	if out.Container == model.LevelPlace {
		rel = tigerweb.RelIntersects
	}
	fs, err := r.tiger.QueryPolygon(ctx, string(out.Level), out.ContainerGeometry, rel)
	if err != nil {
		return req, nil, err
	}
	fc := tigerweb.ToGeoJSON(fs)
	log.Debug("pipeline: container features",
		zap.String("container", string(out.Container)),
		zap.String("spatial_rel", rel),
		zap.Int("features", len(fc.Features)),
	)
	return out, fc, nil
}

// point returns the features of the request level at the request's
// coordinates.
func (r *FeatureResolver) point(ctx context.Context, req model.GeoRequest) (*tigerweb.FeatureCollection, error) {
	if req.Level == model.LevelUS {
		return r.usFeature()
	}
	if !req.HasCoordinates() {
		return nil, geoerr.New(geoerr.MissingLocationInput, "feature lookup needs coordinates")
	}
	fs, err := r.tiger.QueryPoint(ctx, string(req.Level), *req.Lat, *req.Lng)
	if err != nil {
		return nil, err
	}
	return tigerweb.ToGeoJSON(fs), nil
}

// containerGeometry returns the ArcGIS polygon of the request's container.
func (r *FeatureResolver) containerGeometry(ctx context.Context, req model.GeoRequest) (json.RawMessage, error) {
	if req.Container == model.LevelUS {
		g, err := tigerweb.FeatureFromGeoJSON(r.usBounds)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: us bounds")
		}
		return json.Marshal(g)
	}

	if !req.HasCoordinates() {
		return nil, geoerr.New(geoerr.MissingLocationInput, "container lookup needs coordinates")
	}
	fs, err := r.tiger.QueryPoint(ctx, string(req.Container), *req.Lat, *req.Lng)
	if err != nil {
		return nil, err
	}
	if len(fs.Features) == 0 || fs.Features[0].Geometry == nil {
		return nil, geoerr.New(geoerr.UpstreamRequestFailed, "tigerweb: no %s feature at the request location", req.Container)
	}
	g := *fs.Features[0].Geometry
	if g.SpatialReference == nil {
		g.SpatialReference = &tigerweb.SpatialReference{WKID: tigerweb.WKID4326}
	}
	return json.Marshal(g)
}

// usFeature wraps the national boundary as a single-feature collection.
func (r *FeatureResolver) usFeature() (*tigerweb.FeatureCollection, error) {
	var f geojson.Feature
	if err := f.UnmarshalJSON(r.usBounds); err != nil {
		return nil, eris.Wrap(err, "pipeline: us bounds")
	}
	if f.Properties == nil {
		f.Properties = map[string]any{}
	}
	if _, ok := f.Properties["NAME"]; !ok {
		f.Properties["NAME"] = "United States"
	}
	fc := tigerweb.NewFeatureCollection()
	fc.Features = append(fc.Features, &f)
	return fc, nil
}
