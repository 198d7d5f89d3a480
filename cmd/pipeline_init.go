package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/census-geo/internal/catalog"
	"github.com/sells-group/census-geo/internal/config"
	"github.com/sells-group/census-geo/internal/fetcher"
	"github.com/sells-group/census-geo/internal/metrics"
	"github.com/sells-group/census-geo/internal/pipeline"
	"github.com/sells-group/census-geo/internal/resilience"
	"github.com/sells-group/census-geo/pkg/geocode"
	"github.com/sells-group/census-geo/pkg/tigerweb"
)

// pipelineEnv holds everything the query and serve commands share.
type pipelineEnv struct {
	Pipeline *pipeline.Pipeline
	Catalog  *catalog.Catalog
	Breakers *resilience.HostBreakers // nil when breakers are disabled
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

// initPipeline validates cfg and builds the fetcher, catalog, upstream
// clients and the Pipeline.
func initPipeline(c *config.Config) (*pipelineEnv, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	cat, err := catalog.LoadDir(c.Catalog.Dir)
	if err != nil {
		return nil, eris.Wrap(err, "load catalog")
	}

	breakers := newBreakers(c.Breaker, m)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   c.Fetcher.UserAgent,
		Timeout:     time.Duration(c.Fetcher.TimeoutSecs) * time.Second,
		RateLimits:  rateLimits(c.Fetcher.RateLimits),
		DefaultRate: c.Fetcher.DefaultRate,
		Observer:    m,
		Breakers:    breakers,
	})

	var geography catalog.GeographySource = cat
	if c.Catalog.RemoteGeography {
		geography = catalog.NewRemoteGeography(f, c.Census.BaseURL)
	}

	geocoder := geocode.NewClient(f,
		geocode.WithBaseURL(c.Geocoder.BaseURL),
		geocode.WithBenchmark(c.Geocoder.Benchmark),
		geocode.WithVintage(c.Geocoder.GeoBenchmark, c.Geocoder.Vintage),
		geocode.WithLayers(c.Geocoder.Layers),
		geocode.WithRateLimit(c.Geocoder.RateLimit),
	)

	p := pipeline.New(pipeline.Deps{
		Catalog:                 cat,
		Geography:               geography,
		Geocoder:                geocoder,
		Zips:                    catalog.NewZipTable(f, c.Catalog.ZipTableURL),
		Getter:                  f,
		Tiger:                   tigerweb.NewClient(f, c.TIGERweb.URLTemplate, c.TIGERweb.Layers.Map()),
		Observer:                m,
		CensusBaseURL:           c.Census.BaseURL,
		APIKey:                  c.Census.APIKey,
		SupplementalConcurrency: c.Pipeline.SupplementalConcurrency,
	})

	zap.L().Debug("pipeline initialized",
		zap.Bool("remote_geography", c.Catalog.RemoteGeography),
		zap.Bool("breakers", breakers != nil),
	)

	return &pipelineEnv{
		Pipeline: p,
		Catalog:  cat,
		Breakers: breakers,
		Metrics:  m,
		Registry: reg,
	}, nil
}

func newBreakers(bc config.BreakerConfig, m *metrics.Metrics) *resilience.HostBreakers {
	if !bc.Enabled {
		return nil
	}
	return resilience.NewHostBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold:  bc.FailureThreshold,
		ResetTimeout:      time.Duration(bc.ResetTimeoutSecs) * time.Second,
		HalfOpenMaxProbes: bc.HalfOpenProbes,
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.ObserveBreaker(from, to)
		},
	})
}

// rateLimits layers configured host budgets over the defaults.
func rateLimits(hosts []config.HostRate) map[string]float64 {
	out := fetcher.DefaultRateLimits()
	for _, hr := range hosts {
		out[hr.Host] = hr.RPS
	}
	return out
}
