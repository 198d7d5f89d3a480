package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/census-geo/internal/geoerr"
	"github.com/sells-group/census-geo/internal/model"
)

type errorBody struct {
	Error     string   `json:"error"`
	Kind      string   `json:"kind"`
	Fields    []string `json:"fields,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
}

type healthBody struct {
	Status   string            `json:"status"`
	Circuits map[string]string `json:"circuits,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req model.GeoRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, geoerr.Wrap(err, geoerr.InvalidInput, "invalid request body"))
		return
	}

	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	fc, err := s.runner.Run(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (s *Server) handleAliasToVariable(w http.ResponseWriter, r *http.Request) {
	out, err := s.translator.AliasToVariable(model.SplitList(r.URL.Query().Get("aliases")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleVariableToAlias(w http.ResponseWriter, r *http.Request) {
	out, err := s.translator.VariableToAlias(model.SplitList(r.URL.Query().Get("variables")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAliases(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.translator.Aliases())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := healthBody{Status: "ok"}
	if s.opts.Circuits != nil {
		body.Circuits = s.opts.Circuits.States()
		for _, state := range body.Circuits {
			if state != "closed" {
				body.Status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// statusFor maps an error kind to its HTTP status. An expired request
// deadline wins over any kind wrapped around it.
func statusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch geoerr.KindOf(err) {
	case geoerr.UpstreamRequestFailed:
		return http.StatusBadGateway
	case geoerr.UnsupportedAliasForDataset, geoerr.UnsupportedGeographyLevel, geoerr.MissingRequiredFields:
		return http.StatusUnprocessableEntity
	case geoerr.InvalidInput, geoerr.InvalidAddress, geoerr.MissingLocationInput:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	kind := string(geoerr.KindOf(err))
	switch {
	case kind != "":
	case status == http.StatusGatewayTimeout:
		kind = "timeout"
	default:
		kind = "internal"
	}
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.String("kind", kind), zap.Error(err))
	}
	writeJSON(w, status, errorBody{
		Error:     err.Error(),
		Kind:      kind,
		Fields:    geoerr.FieldsOf(err),
		Retryable: geoerr.Retryable(err),
	})
}
