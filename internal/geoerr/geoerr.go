// Package geoerr defines the failure kinds surfaced by the census-geo pipeline.
package geoerr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sells-group/census-geo/internal/resilience"
)

// Kind classifies a pipeline failure.
type Kind string

// Failure kinds. AmbiguousFeatureMatch is only ever logged.
const (
	InvalidInput               Kind = "invalid_input"
	InvalidAddress             Kind = "invalid_address"
	MissingLocationInput       Kind = "missing_location_input"
	UnsupportedAliasForDataset Kind = "unsupported_alias_for_dataset"
	UnsupportedGeographyLevel  Kind = "unsupported_geography_level"
	MissingRequiredFields      Kind = "missing_required_fields"
	UpstreamRequestFailed      Kind = "upstream_request_failed"
	AmbiguousFeatureMatch      Kind = "ambiguous_feature_match"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind   Kind
	Msg    string
	Fields []string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if len(e.Fields) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind.
func Wrap(err error, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Missing returns a MissingRequiredFields error naming the absent fields.
func Missing(fields []string) *Error {
	return &Error{Kind: MissingRequiredFields, Msg: "request is missing required fields", Fields: fields}
}

// Upstream classifies err as an upstream request failure.
func Upstream(err error, msg string) *Error {
	return Wrap(err, UpstreamRequestFailed, msg)
}

// KindOf returns the kind of the first Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FieldsOf returns the missing field names carried by err, if any.
func FieldsOf(err error) []string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Fields
	}
	return nil
}

// Retryable reports whether err is an upstream failure that is worth
// retrying by the caller. Input errors and the caller's own deadline are
// never retryable.
func Retryable(err error) bool {
	return Is(err, UpstreamRequestFailed) && resilience.IsHostFailure(err)
}
