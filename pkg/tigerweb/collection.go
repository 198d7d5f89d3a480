package tigerweb

import (
	"encoding/json"

	"github.com/twpayne/go-geom/encoding/geojson"
)

// FeatureCollection is a GeoJSON feature collection carrying running totals
// of the statistics merged onto its features.
type FeatureCollection struct {
	Features []*geojson.Feature
	Totals   map[string]float64
}

// NewFeatureCollection returns an empty collection with empty totals.
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{
		Features: []*geojson.Feature{},
		Totals:   map[string]float64{},
	}
}

type featureCollectionJSON struct {
	Type     string             `json:"type"`
	Features []*geojson.Feature `json:"features"`
	Totals   map[string]float64 `json:"totals"`
}

// MarshalJSON implements json.Marshaler.
func (fc *FeatureCollection) MarshalJSON() ([]byte, error) {
	out := featureCollectionJSON{
		Type:     "FeatureCollection",
		Features: fc.Features,
		Totals:   fc.Totals,
	}
	if out.Features == nil {
		out.Features = []*geojson.Feature{}
	}
	if out.Totals == nil {
		out.Totals = map[string]float64{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (fc *FeatureCollection) UnmarshalJSON(data []byte) error {
	var in featureCollectionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	fc.Features = in.Features
	fc.Totals = in.Totals
	if fc.Totals == nil {
		fc.Totals = map[string]float64{}
	}
	return nil
}
