package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/census-geo/internal/geoerr"
	"github.com/sells-group/census-geo/internal/model"
	"github.com/sells-group/census-geo/pkg/geocode"
)

// ZipLocator resolves a ZIP code to the centroid of its tabulation area.
type ZipLocator interface {
	Coordinates(ctx context.Context, zip string) (lat, lng float64, err error)
}

// CapitalLocator resolves a state code or name to its capital.
type CapitalLocator interface {
	CapitalCoordinates(state string) (lat, lng float64, ok bool)
}

// GeocodeResolver turns a request's location input into coordinates and
// then into FIPS codes.
type GeocodeResolver struct {
	geocoder geocode.Client
	zips     ZipLocator
	capitals CapitalLocator
}

// NewGeocodeResolver creates a GeocodeResolver.
func NewGeocodeResolver(gc geocode.Client, zips ZipLocator, capitals CapitalLocator) *GeocodeResolver {
	return &GeocodeResolver{geocoder: gc, zips: zips, capitals: capitals}
}

// Locate returns the request with lat/lng filled from, in order of
// precedence, its address, ZIP code or state capital.
func (g *GeocodeResolver) Locate(ctx context.Context, req model.GeoRequest) (model.GeoRequest, error) {
	log := zap.L().With(zap.String("stage", "locate"))

	switch {
	case req.Address != nil:
		res, err := g.geocoder.LocateAddress(ctx, geocode.AddressInput{
			Street:  req.Address.Street,
			City:    req.Address.City,
			State:   req.Address.State,
			ZipCode: req.Address.Zip,
		})
		if err != nil {
			return req, err
		}
		if !res.Matched {
			return req, geoerr.New(geoerr.InvalidAddress, "no geocoder match for address %q", req.Address.Street)
		}
		log.Debug("pipeline: address located", zap.String("matched", res.MatchedAddress))
		return req.WithCoordinates(res.Latitude, res.Longitude), nil

	case req.Zip != "":
		lat, lng, err := g.zips.Coordinates(ctx, req.Zip)
		if err != nil {
			return req, err
		}
		log.Debug("pipeline: zip located", zap.String("zip", req.Zip))
		return req.WithCoordinates(lat, lng), nil

	case req.State != "":
		lat, lng, ok := g.capitals.CapitalCoordinates(req.State)
		if !ok {
			return req, geoerr.New(geoerr.InvalidInput, "unknown state %q", req.State)
		}
		log.Debug("pipeline: state capital located", zap.String("state", req.State))
		return req.WithCoordinates(lat, lng), nil
	}

	return req, geoerr.New(geoerr.MissingLocationInput, "request needs lat/lng, an address, a zip or a state")
}

// ResolveFIPS looks up the geographies containing the request's coordinates
// and records their codes on the returned request.
func (g *GeocodeResolver) ResolveFIPS(ctx context.Context, req model.GeoRequest) (model.GeoRequest, error) {
	if !req.HasCoordinates() {
		return req, geoerr.New(geoerr.MissingLocationInput, "cannot resolve FIPS codes without coordinates")
	}

	geos, err := g.geocoder.Geographies(ctx, *req.Lat, *req.Lng)
	if err != nil {
		return req, err
	}

	out := req.Clone()
	out.State = geos.State
	out.County = geos.County
	out.Tract = geos.Tract
	out.BlockGroup = geos.BlockGroup
	if geos.Place != "" {
		out.Place = geos.Place
		out.PlaceName = geos.PlaceName
	}
	out.Geocoded = true
	return out, nil
}
