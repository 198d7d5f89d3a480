package pipeline

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/sells-group/census-geo/internal/catalog"
	"github.com/sells-group/census-geo/internal/geoerr"
	"github.com/sells-group/census-geo/internal/model"
)

// fipsColumns maps Census response columns to record fields.
var fipsColumns = []struct{ column, field string }{
	{"state", "state"},
	{"county", "county"},
	{"tract", "tract"},
	{"place", "place"},
	{"block group", "blockGroup"},
}

type varColumn struct {
	name  string
	index int
	ratio bool
}

// NormalizedSuffix names the ratio field derived for a normalizable variable.
const NormalizedSuffix = "_normalized"

// ParseSummary turns a Census row-array response into records. The first row
// is the header. Sublevel responses yield one record per row with a name and
// FIPS fields; single-geography responses yield one record from the first
// data row. The returned request has Geocoded cleared.
func ParseSummary(cat *catalog.Catalog, req model.GeoRequest, rows [][]any) (model.GeoRequest, error) {
	if len(rows) < 2 {
		return req, geoerr.New(geoerr.UpstreamRequestFailed, "census: response has no data rows")
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = cell(h)
	}
	col := func(name string) int { return slices.Index(header, name) }

	nameCol := col("NAME")
	if (req.API == "sf1" || req.API == "sf3") && req.Year == 1990 {
		nameCol = col("ANPSADPI")
	}

	popCol := -1
	if code, err := cat.ResolveForAPIYear(populationAlias, req.API, req.Year); err == nil {
		popCol = col(code)
	}

	vars := make([]varColumn, 0, len(req.Variables))
	for _, v := range req.Variables {
		code, err := cat.ResolveForAPIYear(v, req.API, req.Year)
		if err != nil {
			continue
		}
		vars = append(vars, varColumn{name: v, index: col(code), ratio: cat.IsNormalizable(v)})
	}

	data := rows[1:]
	if !req.Sublevel {
		data = data[:1]
	}

	out := req.Clone()
	out.Data = make([]model.Record, 0, len(data))
	for _, row := range data {
		rec := model.Record{}
		if req.Sublevel {
			if v, ok := at(row, nameCol); ok {
				rec["name"] = v
			}
			for _, fc := range fipsColumns {
				if v, ok := at(row, col(fc.column)); ok {
					rec[fc.field] = v
				}
			}
		}
		pop, popOK := at(row, popCol)
		for _, v := range vars {
			val, ok := at(row, v.index)
			if !ok {
				continue
			}
			rec[v.name] = val
			if v.ratio && popOK {
				rec[v.name+NormalizedSuffix] = ratio(val, pop)
			}
		}
		out.Data = append(out.Data, rec)
	}
	out.Geocoded = false
	return out, nil
}

// ratio returns value/population, or nil when either is not numeric or the
// population is zero.
func ratio(value, population string) any {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	p, err := strconv.ParseFloat(population, 64)
	if err != nil || p == 0 {
		return nil
	}
	return v / p
}

// at returns the string form of row[i]. Null cells are absent.
func at(row []any, i int) (string, bool) {
	if i < 0 || i >= len(row) || row[i] == nil {
		return "", false
	}
	return cell(row[i]), true
}

func cell(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
