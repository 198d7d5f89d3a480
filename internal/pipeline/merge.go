package pipeline

import (
	"context"
	"maps"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/census-geo/internal/geoerr"
	"github.com/sells-group/census-geo/internal/model"
	"github.com/sells-group/census-geo/pkg/tigerweb"
)

// SummaryFetcher runs a Census summary query for a request.
type SummaryFetcher interface {
	Fetch(ctx context.Context, req model.GeoRequest) (model.GeoRequest, error)
}

// Merger joins parsed Census records onto boundary features and accumulates
// totals.
type Merger struct {
	summary     SummaryFetcher
	concurrency int
	obs         Observer
}

// NewMerger creates a Merger. concurrency bounds the supplemental requests
// in flight; zero or less leaves them unbounded.
func NewMerger(s SummaryFetcher, concurrency int, obs Observer) *Merger {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Merger{summary: s, concurrency: concurrency, obs: obs}
}

// Merge copies each feature's matching record onto its properties and adds
// the requested variables to fc.Totals. Features with no matching record are
// filled from a single-geography request built from the feature itself.
// Features matching more than one record are logged and left untouched.
func (m *Merger) Merge(ctx context.Context, req model.GeoRequest, fc *tigerweb.FeatureCollection) error {
	log := zap.L().With(zap.String("stage", "merge"), zap.String("level", string(req.Level)))
	if fc.Totals == nil {
		fc.Totals = map[string]float64{}
	}

	var unmatched []int
	for i, f := range fc.Features {
		matches := matchRecords(req, f)
		switch len(matches) {
		case 0:
			unmatched = append(unmatched, i)
		case 1:
			apply(req, fc, f, matches[0])
		default:
			log.Warn("pipeline: feature matches several records",
				zap.String("kind", string(geoerr.AmbiguousFeatureMatch)),
				zap.Int("feature", i),
				zap.Int("matches", len(matches)),
			)
			m.obs.ObserveAmbiguous(string(req.Level))
		}
	}
	if len(unmatched) == 0 {
		return nil
	}

	m.obs.ObserveSupplemental(string(req.Level), len(unmatched))
	log.Debug("pipeline: supplemental requests", zap.Int("features", len(unmatched)))

	results := make([]model.Record, len(unmatched))
	g, gctx := errgroup.WithContext(ctx)
	if m.concurrency > 0 {
		g.SetLimit(m.concurrency)
	}
	for j, i := range unmatched {
		supp := supplementalRequest(req, fc.Features[i])
		g.Go(func() error {
			res, err := m.summary.Fetch(gctx, supp)
			if err != nil {
				return err
			}
			if len(res.Data) > 0 {
				results[j] = res.Data[0]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for j, i := range unmatched {
		if results[j] != nil {
			apply(req, fc, fc.Features[i], results[j])
		}
	}
	return nil
}

// matchRecords returns the records of req.Data that describe feature f.
func matchRecords(req model.GeoRequest, f *geojson.Feature) []model.Record {
	if req.Level == model.LevelUS {
		return req.Data
	}

	checks := []model.Level{req.Level}
	if req.Level == model.LevelBlockGroup {
		checks = append(checks, model.LevelTract)
	}
	if req.Level == model.LevelTract || req.Level == model.LevelBlockGroup {
		checks = append(checks, model.LevelCounty)
	}

	var out []model.Record
	for _, rec := range req.Data {
		ok := true
		for _, l := range checks {
			if recordValue(req, rec, l) != property(f, l.FeatureField()) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out
}

// recordValue is the record's code for level. Single-geography records carry
// no codes and describe the request's own geography.
func recordValue(req model.GeoRequest, rec model.Record, l model.Level) string {
	if v, ok := rec[string(l)].(string); ok {
		return v
	}
	if req.Sublevel {
		return ""
	}
	v, _ := req.FIPS(string(l))
	return v
}

func apply(req model.GeoRequest, fc *tigerweb.FeatureCollection, f *geojson.Feature, rec model.Record) {
	if f.Properties == nil {
		f.Properties = map[string]any{}
	}
	maps.Copy(f.Properties, rec)
	for _, v := range req.Variables {
		raw, ok := rec[v].(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		fc.Totals[v] += n
	}
}

// supplementalRequest builds a single-geography request for feature f.
func supplementalRequest(req model.GeoRequest, f *geojson.Feature) model.GeoRequest {
	out := model.GeoRequest{
		State:      property(f, "STATE"),
		County:     property(f, "COUNTY"),
		Tract:      property(f, "TRACT"),
		BlockGroup: property(f, "BLKGRP"),
		Place:      property(f, "PLACE"),
		Level:      req.Level,
		API:        req.API,
		Year:       req.Year,
		Variables:  append([]string(nil), req.Variables...),
		APIKey:     req.APIKey,
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(property(f, "CENTLAT")), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(property(f, "CENTLON")), 64)
	if errLat == nil && errLng == nil {
		out = out.WithCoordinates(lat, lng)
	}
	return out
}

func property(f *geojson.Feature, key string) string {
	if key == "" || f.Properties == nil {
		return ""
	}
	switch v := f.Properties[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
