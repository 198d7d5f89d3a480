package geoerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/census-geo/internal/resilience"
)

func TestError_Message(t *testing.T) {
	assert.Equal(t, "no match for 1 Main St", New(InvalidAddress, "no match for %s", "1 Main St").Error())
	assert.Equal(t, "request is missing required fields: county, tract", Missing([]string{"county", "tract"}).Error())
	assert.Equal(t, "census: summary request: boom", Upstream(errors.New("boom"), "census: summary request").Error())
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("stage failed: %w", New(InvalidInput, "bad zip"))

	assert.Equal(t, InvalidInput, KindOf(err))
	assert.True(t, Is(err, InvalidInput))
	assert.False(t, Is(err, InvalidAddress))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, Is(nil, InvalidInput))
}

func TestFieldsOf(t *testing.T) {
	err := fmt.Errorf("validate: %w", Missing([]string{"county"}))
	assert.Equal(t, []string{"county"}, FieldsOf(err))
	assert.Nil(t, FieldsOf(New(InvalidInput, "x")))
	assert.Nil(t, FieldsOf(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream(cause, "tigerweb: query")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, UpstreamRequestFailed, err.Kind)
}

func TestRetryable(t *testing.T) {
	transient := resilience.ClassifyStatus("census", 503, "")
	permanent := resilience.ClassifyStatus("census", 400, "error: unknown variable")

	assert.True(t, Retryable(Upstream(transient, "census")))
	assert.False(t, Retryable(Upstream(permanent, "census")))
	assert.False(t, Retryable(transient), "unclassified errors are not retryable")
	assert.False(t, Retryable(New(InvalidInput, "bad")))
	assert.False(t, Retryable(Upstream(context.DeadlineExceeded, "census")), "caller deadlines are not retryable")
}
