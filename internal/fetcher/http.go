package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/census-geo/internal/geoerr"
	"github.com/sells-group/census-geo/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// RateLimits maps a host to its requests-per-second budget.
	RateLimits map[string]float64
	// DefaultRate applies to hosts missing from RateLimits. Zero disables limiting.
	DefaultRate float64
	Observer    Observer
	// Breakers, when set, fails requests fast against a host whose circuit is open.
	Breakers *resilience.HostBreakers
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	if burst < 1 {
		burst = 1
	}
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.maxRate {
		newRate = a.maxRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher using net/http with per-host rate limiting.
// Failed requests are returned to the caller, never retried.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// DefaultRateLimits returns the default per-host request budgets. The
// geocoder client carries its own limiter.
func DefaultRateLimits() map[string]float64 {
	return map[string]float64{
		"tigerweb.geo.census.gov": 20,
		"api.census.gov":          50,
	}
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "census-geo/1.0"
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

// NewHTTPFetcherWithClient is like NewHTTPFetcher but uses hc for transport.
func NewHTTPFetcherWithClient(hc *http.Client, opts HTTPOptions) *HTTPFetcher {
	f := NewHTTPFetcher(opts)
	f.client = hc
	return f
}

// limiterFor returns the limiter for host, creating it on first use.
// Returns nil when the host is unlimited.
func (f *HTTPFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if lim, ok := f.limiters[host]; ok {
		return lim
	}
	rps, ok := f.opts.RateLimits[host]
	if !ok {
		rps = f.opts.DefaultRate
	}
	if rps <= 0 {
		f.limiters[host] = nil
		return nil
	}
	lim := NewAdaptiveLimiter(rate.Limit(rps), int(rps))
	f.limiters[host] = lim
	return lim
}

// GetJSON implements Fetcher.
func (f *HTTPFetcher) GetJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return geoerr.Upstream(eris.Wrap(err, "create request"), "fetcher: GET "+redact(rawURL))
	}
	return f.do(req, out)
}

// PostFormJSON implements Fetcher.
func (f *HTTPFetcher) PostFormJSON(ctx context.Context, rawURL string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return geoerr.Upstream(eris.Wrap(err, "create request"), "fetcher: POST "+redact(rawURL))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req, out)
}

func (f *HTTPFetcher) do(req *http.Request, out any) error {
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	host := req.URL.Host
	label := "fetcher: " + req.Method + " " + redact(req.URL.String())

	lim := f.limiterFor(host)
	if lim != nil {
		if err := lim.Wait(req.Context()); err != nil {
			return callerError(req.Context(), label+": rate limiter wait")
		}
	}

	if f.opts.Breakers == nil {
		return f.roundTrip(req, out, host, lim, label)
	}
	err := f.opts.Breakers.Get(host).Execute(req.Context(), func(_ context.Context) error {
		return f.roundTrip(req, out, host, lim, label)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		f.observe(host, OutcomeRejected, time.Now())
		return geoerr.Upstream(eris.Wrapf(err, "host %s", host), label)
	}
	return err
}

func (f *HTTPFetcher) roundTrip(req *http.Request, out any, host string, lim *AdaptiveLimiter, label string) error {
	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			f.observe(host, OutcomeCanceled, start)
			return callerError(req.Context(), label)
		}
		f.observe(host, OutcomeError, start)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			// Client.Timeout: the host was too slow.
			err = resilience.NewTransientError(err, 0)
		}
		return geoerr.Upstream(eris.Wrap(err, "request"), label)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests && lim != nil {
		lim.OnRateLimit()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.observe(host, OutcomeStatus, start)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return geoerr.Upstream(resilience.ClassifyStatus(host, resp.StatusCode, string(body)), label)
	}

	if lim != nil {
		lim.OnSuccess()
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		f.observe(host, OutcomeDecode, start)
		return geoerr.Upstream(eris.Wrap(err, "decode response"), label)
	}

	f.observe(host, OutcomeSuccess, start)
	return nil
}

// callerError reports a request abandoned because the caller's context ended.
// It carries no upstream kind so it is never blamed on the host. The rate
// limiter refuses waits that would overrun the deadline before ctx expires.
func callerError(ctx context.Context, label string) error {
	cause := ctx.Err()
	if cause == nil {
		cause = context.DeadlineExceeded
	}
	return eris.Wrap(cause, label)
}

func (f *HTTPFetcher) observe(host, outcome string, start time.Time) {
	if f.opts.Observer != nil {
		f.opts.Observer.ObserveUpstream(host, outcome, time.Since(start))
	}
}

// redact strips the Census API key from URLs before they reach logs and errors.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
