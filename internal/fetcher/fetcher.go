// Package fetcher provides the JSON-over-HTTP capability the pipeline uses to
// reach the Census geocoder, TIGERweb and the Census data API.
package fetcher

import (
	"context"
	"net/url"
	"time"
)

// Fetcher fetches and decodes JSON documents.
type Fetcher interface {
	// GetJSON issues a GET and decodes the JSON body into out.
	GetJSON(ctx context.Context, rawURL string, out any) error

	// PostFormJSON issues a form-encoded POST and decodes the JSON body into out.
	PostFormJSON(ctx context.Context, rawURL string, form url.Values, out any) error
}

// Observer receives one callback per upstream request.
type Observer interface {
	ObserveUpstream(host, outcome string, elapsed time.Duration)
}

// Outcomes reported to an Observer.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeStatus   = "bad_status"
	OutcomeDecode   = "decode_error"
	OutcomeRejected = "circuit_open"
	OutcomeCanceled = "canceled"
)
