// Package pipeline turns a location query plus dataset, year and variables
// into a GeoJSON feature collection carrying Census statistics.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/census-geo/internal/catalog"
	"github.com/sells-group/census-geo/internal/geoerr"
	"github.com/sells-group/census-geo/internal/model"
	"github.com/sells-group/census-geo/pkg/geocode"
	"github.com/sells-group/census-geo/pkg/tigerweb"
)

// Run outcomes reported to the Observer besides error kinds.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Observer receives pipeline events for metrics.
type Observer interface {
	ObserveRun(outcome string, elapsed time.Duration)
	ObserveSupplemental(level string, n int)
	ObserveAmbiguous(level string)
}

type nopObserver struct{}

func (nopObserver) ObserveRun(string, time.Duration) {}
func (nopObserver) ObserveSupplemental(string, int)  {}
func (nopObserver) ObserveAmbiguous(string)          {}

// Deps are the collaborators a Pipeline is built from.
type Deps struct {
	Catalog   *catalog.Catalog
	Geography catalog.GeographySource
	Geocoder  geocode.Client
	Zips      ZipLocator
	Getter    Getter
	Tiger     FeatureQuerier
	Observer  Observer

	CensusBaseURL           string
	APIKey                  string
	SupplementalConcurrency int
}

// Pipeline runs the request stages in order: normalize, locate, resolve
// FIPS, validate geography, fetch the summary, fetch features and merge.
type Pipeline struct {
	validator *Validator
	locator   *GeocodeResolver
	summary   *SummaryRequester
	features  *FeatureResolver
	merger    *Merger
	obs       Observer
}

// New creates a Pipeline with all dependencies.
func New(d Deps) *Pipeline {
	obs := d.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	summary := NewSummaryRequester(d.Getter, d.Catalog, d.CensusBaseURL)
	return &Pipeline{
		validator: NewValidator(d.Catalog, d.Geography, d.APIKey),
		locator:   NewGeocodeResolver(d.Geocoder, d.Zips, d.Catalog),
		summary:   summary,
		features:  NewFeatureResolver(d.Tiger, d.Catalog.USBounds()),
		merger:    NewMerger(summary, d.SupplementalConcurrency, obs),
		obs:       obs,
	}
}

// Run executes the full pipeline for one request.
func (p *Pipeline) Run(ctx context.Context, req model.GeoRequest) (*tigerweb.FeatureCollection, error) {
	start := time.Now()
	log := zap.L().With(zap.String("request_id", uuid.NewString()))
	log.Info("pipeline: starting request",
		zap.String("api", req.API),
		zap.Int("year", req.Year),
		zap.String("level", string(req.Level)),
		zap.Bool("sublevel", req.Sublevel),
	)

	fc, err := p.run(ctx, log, req)
	elapsed := time.Since(start)
	if err != nil {
		outcome := string(geoerr.KindOf(err))
		if outcome == "" {
			outcome = OutcomeError
		}
		p.obs.ObserveRun(outcome, elapsed)
		log.Error("pipeline: request failed",
			zap.String("kind", outcome),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	p.obs.ObserveRun(OutcomeSuccess, elapsed)
	log.Info("pipeline: request complete",
		zap.Int("features", len(fc.Features)),
		zap.Duration("elapsed", elapsed),
	)
	return fc, nil
}

func (p *Pipeline) run(ctx context.Context, log *zap.Logger, req model.GeoRequest) (*tigerweb.FeatureCollection, error) {
	stage := func(name string, fn func() error) error {
		start := time.Now()
		if err := fn(); err != nil {
			return err
		}
		log.Debug("pipeline: stage complete",
			zap.String("stage", name),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil
	}

	req = p.validator.Normalize(req)

	if !req.HasCoordinates() {
		if err := stage("locate", func() (err error) {
			req, err = p.locator.Locate(ctx, req)
			return err
		}); err != nil {
			return nil, err
		}
	}
	if err := stage("fips", func() (err error) {
		req, err = p.locator.ResolveFIPS(ctx, req)
		return err
	}); err != nil {
		return nil, err
	}
	if err := stage("geography", func() (err error) {
		req, err = p.validator.ValidateGeography(ctx, req)
		return err
	}); err != nil {
		return nil, err
	}
	if err := stage("summary", func() (err error) {
		req, err = p.summary.Fetch(ctx, req)
		return err
	}); err != nil {
		return nil, err
	}

	var fc *tigerweb.FeatureCollection
	if err := stage("features", func() (err error) {
		req, fc, err = p.features.Resolve(ctx, req)
		return err
	}); err != nil {
		return nil, err
	}
	if err := stage("merge", func() error {
		return p.merger.Merge(ctx, req, fc)
	}); err != nil {
		return nil, err
	}
	return fc, nil
}
