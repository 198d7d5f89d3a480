// Package geocode provides address and coordinate lookups against the Census
// Geocoder.
package geocode

import (
	"context"
	"strings"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Census Geocoder root.
const DefaultBaseURL = "https://geocoding.geo.census.gov/geocoder/"

// Client resolves addresses to coordinates and coordinates to Census
// geographies.
type Client interface {
	// LocateAddress geocodes a single street address.
	LocateAddress(ctx context.Context, addr AddressInput) (*Result, error)

	// Geographies returns the FIPS identifiers of the census block and
	// incorporated place containing lat/lng.
	Geographies(ctx context.Context, lat, lng float64) (*Geographies, error)
}

// Getter fetches and decodes a JSON document.
type Getter interface {
	GetJSON(ctx context.Context, rawURL string, out any) error
}

// AddressInput represents an address to geocode.
type AddressInput struct {
	Street  string
	City    string
	State   string
	ZipCode string
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude       float64
	Longitude      float64
	MatchedAddress string
	Matched        bool
}

// Geographies holds the identifiers read from a coordinates lookup.
type Geographies struct {
	State      string
	County     string
	Tract      string
	BlockGroup string
	Place      string
	PlaceName  string
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL points the client at a different geocoder root.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		if u == "" {
			return
		}
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		g.baseURL = u
	}
}

// WithBenchmark sets the address benchmark, e.g. "Public_AR_Current".
func WithBenchmark(b string) Option {
	return func(g *geocoder) {
		if b != "" {
			g.benchmark = b
		}
	}
}

// WithVintage sets the benchmark and vintage used for coordinate lookups.
func WithVintage(benchmark, vintage string) Option {
	return func(g *geocoder) {
		if benchmark != "" {
			g.geoBenchmark = benchmark
		}
		if vintage != "" {
			g.vintage = vintage
		}
	}
}

// WithLayers sets the geography layers requested by coordinate lookups.
func WithLayers(layers string) Option {
	return func(g *geocoder) {
		if layers != "" {
			g.layers = layers
		}
	}
}

// WithRateLimit sets the requests-per-second rate limit for geocoder calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		if rps <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

type geocoder struct {
	getter       Getter
	baseURL      string
	benchmark    string
	geoBenchmark string
	vintage      string
	layers       string
	limiter      *rate.Limiter
}

// NewClient creates a new geocoding Client that fetches through getter.
func NewClient(getter Getter, opts ...Option) Client {
	g := &geocoder{
		getter:       getter,
		baseURL:      DefaultBaseURL,
		benchmark:    censusBenchmark,
		geoBenchmark: "4",
		vintage:      "4",
		layers:       defaultLayers,
		limiter:      rate.NewLimiter(50, 50), // Census default: 50 req/s
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}
