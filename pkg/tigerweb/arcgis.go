// Package tigerweb queries the Census TIGERweb ArcGIS map services and
// converts their features to GeoJSON.
package tigerweb

import "fmt"

// WKID4326 is the WGS 84 spatial reference used for every request.
const WKID4326 = 4326

// SpatialReference identifies an ArcGIS coordinate system.
type SpatialReference struct {
	WKID int `json:"wkid"`
}

// Geometry is an ArcGIS JSON point or polygon geometry.
type Geometry struct {
	X                *float64          `json:"x,omitempty"`
	Y                *float64          `json:"y,omitempty"`
	Rings            [][][]float64     `json:"rings,omitempty"`
	SpatialReference *SpatialReference `json:"spatialReference,omitempty"`
}

// Feature is one ArcGIS feature.
type Feature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   *Geometry      `json:"geometry"`
}

// APIError is the error object ArcGIS returns with a 200 status.
type APIError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("arcgis error %d: %s", e.Code, e.Message)
}

// FeatureSet is the response of a map service layer query.
type FeatureSet struct {
	GeometryType     string            `json:"geometryType"`
	SpatialReference *SpatialReference `json:"spatialReference"`
	Features         []Feature         `json:"features"`
	Error            *APIError         `json:"error,omitempty"`
}

// Spatial relations and geometry types used by layer queries.
const (
	RelIntersects = "esriSpatialRelIntersects"
	RelContains   = "esriSpatialRelContains"

	GeometryPoint   = "esriGeometryPoint"
	GeometryPolygon = "esriGeometryPolygon"
)
