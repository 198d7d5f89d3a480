package tigerweb

import (
	"slices"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// ToGeoJSON converts an ArcGIS feature set into a GeoJSON feature collection
// with empty totals. Feature attributes become properties.
func ToGeoJSON(fs *FeatureSet) *FeatureCollection {
	fc := NewFeatureCollection()
	if fs == nil {
		return fc
	}
	for i, f := range fs.Features {
		props := make(map[string]any, len(f.Attributes))
		for k, v := range f.Attributes {
			props[k] = v
		}
		g, err := GeometryToGeom(f.Geometry)
		if err != nil {
			zap.L().Debug("tigerweb: dropping feature geometry", zap.Int("feature", i), zap.Error(err))
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   g,
			Properties: props,
		})
	}
	return fc
}

// GeometryToGeom converts an ArcGIS geometry to a go-geom geometry: a Point
// for x/y, a Polygon for rings with a single outer ring, a MultiPolygon
// otherwise.
func GeometryToGeom(g *Geometry) (geom.T, error) {
	if g == nil {
		return nil, eris.New("tigerweb: nil geometry")
	}
	if g.X != nil && g.Y != nil {
		return geom.NewPointFlat(geom.XY, []float64{*g.X, *g.Y}).SetSRID(WKID4326), nil
	}
	if len(g.Rings) == 0 {
		return nil, eris.New("tigerweb: geometry has no rings")
	}
	return ringsToGeom(g.Rings)
}

// ringsToGeom groups ArcGIS rings into polygons. ArcGIS outer rings are
// clockwise and holes counter-clockwise; GeoJSON wants the reverse.
func ringsToGeom(rings [][][]float64) (geom.T, error) {
	var outers, holes [][][]float64
	for _, r := range rings {
		ring := closeRing(r)
		if len(ring) < 4 {
			continue
		}
		if xy.IsRingCounterClockwise(geom.XY, flatCoords(ring)) {
			holes = append(holes, reversed(ring))
		} else {
			outers = append(outers, reversed(ring))
		}
	}

	polys := make([][][][]float64, 0, len(outers))
	shells := make([][]float64, 0, len(outers))
	for _, o := range outers {
		polys = append(polys, [][][]float64{o})
		shells = append(shells, flatCoords(o))
	}
	for _, h := range holes {
		placed := false
		for i := range polys {
			if xy.IsPointInRing(geom.XY, geom.Coord(h[0]), shells[i]) {
				polys[i] = append(polys[i], h)
				placed = true
				break
			}
		}
		if !placed {
			// A hole outside every outer ring is an outer ring drawn the
			// wrong way round.
			o := reversed(h)
			polys = append(polys, [][][]float64{o})
			shells = append(shells, flatCoords(o))
		}
	}

	switch len(polys) {
	case 0:
		return nil, eris.New("tigerweb: no usable rings")
	case 1:
		return newPolygon(polys[0])
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(WKID4326)
	for _, p := range polys {
		poly, err := newPolygon(p)
		if err != nil {
			return nil, err
		}
		if err := mp.Push(poly); err != nil {
			return nil, eris.Wrap(err, "tigerweb: push polygon")
		}
	}
	return mp, nil
}

func newPolygon(rings [][][]float64) (*geom.Polygon, error) {
	poly := geom.NewPolygon(geom.XY).SetSRID(WKID4326)
	for _, r := range rings {
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flatCoords(r))); err != nil {
			return nil, eris.Wrap(err, "tigerweb: push ring")
		}
	}
	return poly, nil
}

// FromGeom converts a go-geom Polygon or MultiPolygon into ArcGIS rings,
// outer rings clockwise and holes counter-clockwise.
func FromGeom(g geom.T) (*Geometry, error) {
	var polys []*geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		polys = append(polys, t)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, t.Polygon(i))
		}
	default:
		return nil, eris.Errorf("tigerweb: cannot convert %T to rings", g)
	}

	out := &Geometry{SpatialReference: &SpatialReference{WKID: WKID4326}}
	for _, p := range polys {
		for i := 0; i < p.NumLinearRings(); i++ {
			lr := p.LinearRing(i)
			ring := coordsOf(lr)
			if lr.NumCoords() >= 4 && (i == 0) == xy.IsRingCounterClockwise(geom.XY, lr.FlatCoords()) {
				ring = reversed(ring)
			}
			out.Rings = append(out.Rings, ring)
		}
	}
	return out, nil
}

// FeatureFromGeoJSON decodes a GeoJSON Feature or bare geometry and converts
// its polygon to ArcGIS rings.
func FeatureFromGeoJSON(data []byte) (*Geometry, error) {
	var f geojson.Feature
	if err := f.UnmarshalJSON(data); err == nil && f.Geometry != nil {
		return FromGeom(f.Geometry)
	}
	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return nil, eris.Wrap(err, "tigerweb: decode geojson")
	}
	return FromGeom(g)
}

func coordsOf(r *geom.LinearRing) [][]float64 {
	flat := r.FlatCoords()
	stride := r.Stride()
	out := make([][]float64, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, []float64{flat[i], flat[i+1]})
	}
	return out
}

func flatCoords(ring [][]float64) []float64 {
	flat := make([]float64, 0, len(ring)*2)
	for _, c := range ring {
		flat = append(flat, c[0], c[1])
	}
	return flat
}

func closeRing(r [][]float64) [][]float64 {
	out := make([][]float64, 0, len(r)+1)
	for _, c := range r {
		if len(c) >= 2 {
			out = append(out, []float64{c[0], c[1]})
		}
	}
	if len(out) > 0 {
		first, last := out[0], out[len(out)-1]
		if first[0] != last[0] || first[1] != last[1] {
			out = append(out, []float64{first[0], first[1]})
		}
	}
	return out
}

func reversed(r [][]float64) [][]float64 {
	out := slices.Clone(r)
	slices.Reverse(out)
	return out
}
