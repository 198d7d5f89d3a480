// Package model defines the request and record types threaded through the
// census-geo pipeline.
package model

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Address is a street address to geocode.
type Address struct {
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
}

// Record is one parsed row of Census data keyed by requested variable,
// derived ratio and identifying FIPS fields.
type Record map[string]any

// GeoRequest is the value threaded through every pipeline stage. Stages never
// modify the value they receive; they return a new one built from Clone.
type GeoRequest struct {
	// Location input, checked in this order. State doubles as the state FIPS
	// code once the request has been geocoded.
	Address *Address `json:"address,omitempty"`
	Zip     string   `json:"zip,omitempty"`
	State   string   `json:"state,omitempty"`

	County     string `json:"county,omitempty"`
	Tract      string `json:"tract,omitempty"`
	BlockGroup string `json:"blockGroup,omitempty"`
	Place      string `json:"place,omitempty"`
	PlaceName  string `json:"place_name,omitempty"`

	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`

	Level             Level           `json:"level,omitempty"`
	Sublevel          bool            `json:"sublevel"`
	Container         Level           `json:"container,omitempty"`
	ContainerGeometry json.RawMessage `json:"containerGeometry,omitempty"`

	API            string   `json:"api,omitempty"`
	Year           int      `json:"year,omitempty"`
	Variables      []string `json:"variables,omitempty"`
	QueryVariables []string `json:"-"`
	APIKey         string   `json:"apikey,omitempty"`

	Geocoded             bool     `json:"geocoded,omitempty"`
	GeographyValidForAPI bool     `json:"geographyValidForAPI,omitempty"`
	Data                 []Record `json:"data,omitempty"`
}

// HasCoordinates reports whether both lat and lng are known.
func (r GeoRequest) HasCoordinates() bool {
	return r.Lat != nil && r.Lng != nil
}

// WithCoordinates returns a copy of r located at lat/lng.
func (r GeoRequest) WithCoordinates(lat, lng float64) GeoRequest {
	out := r.Clone()
	out.Lat = &lat
	out.Lng = &lng
	return out
}

// FIPS returns the identifying value for a record field name
// (state, county, tract, blockGroup, place).
func (r GeoRequest) FIPS(field string) (string, bool) {
	var v string
	switch field {
	case "state":
		v = r.State
	case "county":
		v = r.County
	case "tract":
		v = r.Tract
	case "blockGroup", "block group":
		v = r.BlockGroup
	case "place":
		v = r.Place
	default:
		return "", false
	}
	return v, v != ""
}

// Clone returns a deep copy of r.
func (r GeoRequest) Clone() GeoRequest {
	out := r
	if r.Address != nil {
		addr := *r.Address
		out.Address = &addr
	}
	if r.Lat != nil {
		lat := *r.Lat
		out.Lat = &lat
	}
	if r.Lng != nil {
		lng := *r.Lng
		out.Lng = &lng
	}
	out.ContainerGeometry = slices.Clone(r.ContainerGeometry)
	out.Variables = slices.Clone(r.Variables)
	out.QueryVariables = slices.Clone(r.QueryVariables)
	if r.Data != nil {
		out.Data = make([]Record, len(r.Data))
		for i, rec := range r.Data {
			out.Data[i] = maps.Clone(rec)
		}
	}
	return out
}

// UnmarshalJSON decodes a request, coercing loosely typed fields: sublevel
// accepts a bool or the string "true", year accepts a number or a numeric
// string, variables accepts a list or a comma separated string.
func (r *GeoRequest) UnmarshalJSON(data []byte) error {
	type plain GeoRequest
	var aux struct {
		*plain
		Sublevel  any `json:"sublevel"`
		Year      any `json:"year"`
		Variables any `json:"variables"`
	}
	aux.plain = (*plain)(r)
	if err := json.Unmarshal(data, &aux); err != nil {
		return eris.Wrap(err, "model: decode request")
	}

	r.Sublevel = coerceBool(aux.Sublevel)
	r.Year = coerceYear(aux.Year)

	vars, err := coerceList(aux.Variables)
	if err != nil {
		return err
	}
	r.Variables = vars
	return nil
}

func coerceBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	default:
		return false
	}
}

func coerceYear(v any) int {
	switch y := v.(type) {
	case float64:
		return int(y)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(y))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func coerceList(v any) ([]string, error) {
	switch l := v.(type) {
	case nil:
		return nil, nil
	case string:
		return SplitList(l), nil
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, eris.Errorf("model: variables must be strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, eris.Errorf("model: variables must be a list, got %T", v)
	}
}

// SplitList splits a comma separated list, dropping blank entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
