package pipeline

import (
	"context"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/census-geo/internal/catalog"
	"github.com/sells-group/census-geo/internal/geoerr"
	"github.com/sells-group/census-geo/internal/model"
)

// DefaultCensusBaseURL is the root of the Census data API.
const DefaultCensusBaseURL = "https://api.census.gov/data/"

// populationAlias is appended to any request asking for a normalizable
// variable so ratios can be computed.
const populationAlias = "population"

// Getter issues a GET and decodes the JSON response.
type Getter interface {
	GetJSON(ctx context.Context, rawURL string, out any) error
}

// SummaryRequester builds and executes Census data API queries.
type SummaryRequester struct {
	getter  Getter
	catalog *catalog.Catalog
	baseURL string
}

// NewSummaryRequester creates a SummaryRequester. An empty baseURL uses
// DefaultCensusBaseURL.
func NewSummaryRequester(g Getter, cat *catalog.Catalog, baseURL string) *SummaryRequester {
	if baseURL == "" {
		baseURL = DefaultCensusBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &SummaryRequester{getter: g, catalog: cat, baseURL: baseURL}
}

// Build resolves the request's variables and returns the query URL. The
// returned request carries the final variable lists and, for block groups,
// the collapsed sublevel flag.
func (s *SummaryRequester) Build(req model.GeoRequest) (model.GeoRequest, string, error) {
	out := req.Clone()

	if slices.ContainsFunc(out.Variables, s.catalog.IsNormalizable) && !slices.Contains(out.Variables, populationAlias) {
		out.Variables = append(out.Variables, populationAlias)
	}

	codes := make([]string, 0, len(out.Variables))
	for _, v := range out.Variables {
		code, err := s.catalog.ResolveForAPIYear(v, out.API, out.Year)
		if err != nil {
			return req, "", err
		}
		if err := checkToken("variable", code); err != nil {
			return req, "", err
		}
		codes = append(codes, code)
	}
	var required []string
	for _, r := range s.catalog.RequiredVariables(out.API, out.Year) {
		if !slices.Contains(codes, r) {
			required = append(required, r)
		}
	}
	out.QueryVariables = append(required, codes...)

	for field, v := range map[string]string{
		"api": out.API, "state": out.State, "county": out.County,
		"tract": out.Tract, "blockGroup": out.BlockGroup, "place": out.Place,
	} {
		if err := checkToken(field, v); err != nil {
			return req, "", err
		}
	}

	qualifiers, sublevel := geographyQualifiers(out)
	out.Sublevel = sublevel

	u := s.baseURL + strconv.Itoa(out.Year) + "/" + out.API +
		"?get=" + strings.Join(out.QueryVariables, ",") + "&" + qualifiers
	if out.APIKey != "" {
		u += "&key=" + url.QueryEscape(out.APIKey)
	}
	return out, u, nil
}

// checkToken rejects values that would change the shape of the query string
// they are spliced into.
func checkToken(field, v string) error {
	if strings.ContainsAny(v, "&=?#") {
		return geoerr.New(geoerr.InvalidInput, "%s %q contains a reserved query character", field, v)
	}
	return nil
}

// Fetch queries the Census data API and returns the request with its parsed
// rows in Data.
func (s *SummaryRequester) Fetch(ctx context.Context, req model.GeoRequest) (model.GeoRequest, error) {
	out, u, err := s.Build(req)
	if err != nil {
		return req, err
	}

	var rows [][]any
	if err := s.getter.GetJSON(ctx, u, &rows); err != nil {
		if ctx.Err() != nil {
			return req, err
		}
		return req, geoerr.Upstream(err, "census: summary request")
	}

	zap.L().Debug("pipeline: summary fetched",
		zap.String("api", out.API),
		zap.Int("year", out.Year),
		zap.String("level", string(out.Level)),
		zap.Bool("sublevel", out.Sublevel),
		zap.Int("rows", len(rows)),
	)
	return ParseSummary(s.catalog, out, rows)
}
