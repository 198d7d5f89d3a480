package geocode

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/census-geo/internal/geoerr"
)

const (
	censusBenchmark = "Public_AR_Current"
	// Census blocks, tracts, incorporated places, states and counties.
	defaultLayers = "8,12,28,84,86"

	blocksLayer = "2010 Census Blocks"
	placesLayer = "Incorporated Places"
)

// censusAddressResponse is the JSON response from the Census address API.
type censusAddressResponse struct {
	Result struct {
		AddressMatches []censusAddressMatch `json:"addressMatches"`
	} `json:"result"`
}

type censusAddressMatch struct {
	Coordinates struct {
		X float64 `json:"x"` // longitude
		Y float64 `json:"y"` // latitude
	} `json:"coordinates"`
	MatchedAddress string `json:"matchedAddress"`
}

// censusGeographiesResponse is the JSON response from the coordinates API.
type censusGeographiesResponse struct {
	Result struct {
		Geographies map[string][]censusGeography `json:"geographies"`
	} `json:"result"`
}

type censusGeography struct {
	State  string `json:"STATE"`
	County string `json:"COUNTY"`
	Tract  string `json:"TRACT"`
	BlkGrp string `json:"BLKGRP"`
	Place  string `json:"PLACE"`
	Name   string `json:"NAME"`
}

// ValidateAddress checks that addr carries a street plus either a ZIP code
// or a city and state.
func ValidateAddress(addr AddressInput) error {
	if strings.TrimSpace(addr.Street) == "" {
		return geoerr.New(geoerr.InvalidAddress, `invalid address, the required field "street" is missing`)
	}
	if addr.ZipCode == "" && (addr.City == "" || addr.State == "") {
		return geoerr.New(geoerr.InvalidAddress, `invalid address, "city" and "state" or "zip" must be provided`)
	}
	return nil
}

// LocateAddress geocodes a single address. A response with no matches
// returns a Result with Matched=false and no error.
func (g *geocoder) LocateAddress(ctx context.Context, addr AddressInput) (*Result, error) {
	if err := ValidateAddress(addr); err != nil {
		return nil, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census rate limit")
	}

	params := url.Values{
		"street":    {addr.Street},
		"benchmark": {g.benchmark},
		"format":    {"json"},
	}
	if addr.ZipCode != "" {
		params.Set("zip", addr.ZipCode)
	} else {
		params.Set("city", addr.City)
		params.Set("state", addr.State)
	}

	var resp censusAddressResponse
	if err := g.getter.GetJSON(ctx, g.baseURL+"locations/address?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	if len(resp.Result.AddressMatches) == 0 {
		return &Result{Matched: false}, nil
	}

	match := resp.Result.AddressMatches[0]
	return &Result{
		Latitude:       match.Coordinates.Y,
		Longitude:      match.Coordinates.X,
		MatchedAddress: match.MatchedAddress,
		Matched:        true,
	}, nil
}

// Geographies looks up the census block and incorporated place at lat/lng.
func (g *geocoder) Geographies(ctx context.Context, lat, lng float64) (*Geographies, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census rate limit")
	}

	params := url.Values{
		"x":         {strconv.FormatFloat(lng, 'f', -1, 64)},
		"y":         {strconv.FormatFloat(lat, 'f', -1, 64)},
		"benchmark": {g.geoBenchmark},
		"vintage":   {g.vintage},
		"layers":    {g.layers},
		"format":    {"json"},
	}

	var resp censusGeographiesResponse
	if err := g.getter.GetJSON(ctx, g.baseURL+"geographies/coordinates?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	geos := resp.Result.Geographies
	blocks := findBlocks(geos)
	if len(blocks) == 0 {
		return nil, geoerr.New(geoerr.UpstreamRequestFailed,
			"geocode: no census block at %s,%s", params.Get("y"), params.Get("x"))
	}

	block := blocks[0]
	out := &Geographies{
		State:      block.State,
		County:     block.County,
		Tract:      block.Tract,
		BlockGroup: block.BlkGrp,
	}
	if places := geos[placesLayer]; len(places) > 0 {
		out.Place = places[0].Place
		out.PlaceName = places[0].Name
	}

	zap.L().Debug("geocode: resolved geographies",
		zap.Float64("lat", lat),
		zap.Float64("lng", lng),
		zap.String("state", out.State),
		zap.String("county", out.County),
		zap.String("tract", out.Tract),
		zap.String("block_group", out.BlockGroup),
		zap.String("place", out.Place),
	)
	return out, nil
}

// findBlocks returns the census block layer, preferring the 2010 vintage and
// falling back to whichever "Census Blocks" layer newer vintages return.
func findBlocks(geos map[string][]censusGeography) []censusGeography {
	if blocks, ok := geos[blocksLayer]; ok {
		return blocks
	}
	keys := make([]string, 0, len(geos))
	for k := range geos {
		if strings.HasSuffix(k, "Census Blocks") {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	return geos[keys[len(keys)-1]]
}
