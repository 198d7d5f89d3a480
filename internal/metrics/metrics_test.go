package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/census-geo/internal/fetcher"
	"github.com/sells-group/census-geo/internal/pipeline"
	"github.com/sells-group/census-geo/internal/resilience"
)

var (
	_ pipeline.Observer = (*Metrics)(nil)
	_ fetcher.Observer  = (*Metrics)(nil)
)

func TestObserve(t *testing.T) {
	m := New(nil)

	m.ObserveRun(pipeline.OutcomeSuccess, 2*time.Second)
	m.ObserveRun("invalid_address", time.Millisecond)
	m.ObserveRun(pipeline.OutcomeSuccess, time.Second)
	m.ObserveSupplemental("tract", 3)
	m.ObserveSupplemental("tract", 2)
	m.ObserveAmbiguous("county")
	m.ObserveUpstream("api.census.gov", fetcher.OutcomeSuccess, 100*time.Millisecond)
	m.ObserveBreaker(resilience.CircuitClosed, resilience.CircuitOpen)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Runs.WithLabelValues("success")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Runs.WithLabelValues("invalid_address")), 1e-9)
	assert.InDelta(t, 5, testutil.ToFloat64(m.Supplemental.WithLabelValues("tract")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Ambiguous.WithLabelValues("county")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Upstream.WithLabelValues("api.census.gov", "success")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BreakerTrips.WithLabelValues("closed", "open")), 1e-9)
}

func TestNew_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveRun(pipeline.OutcomeSuccess, time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "census_geo_requests_total")
	assert.Contains(t, names, "census_geo_request_duration_seconds")

	assert.Panics(t, func() { New(reg) }, "duplicate registration")
}
