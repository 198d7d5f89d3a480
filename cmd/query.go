package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/census-geo/internal/api"
	"github.com/sells-group/census-geo/internal/model"
)

type queryOptions struct {
	request   string
	state     string
	zip       string
	lat       float64
	lng       float64
	level     string
	container string
	sublevel  bool
	api       string
	year      int
	variables string
}

var queryFlags queryOptions

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run one request and print the FeatureCollection",
	Long:  "Reads a request from --request (a JSON file, or - for stdin) or from flags, runs it through the pipeline and prints GeoJSON to stdout.",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildQueryRequest(cmd, cmd.InOrStdin())
		if err != nil {
			return err
		}

		env, err := initPipeline(cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if cfg.Pipeline.TimeoutSecs > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Pipeline.TimeoutSecs)*time.Second)
			defer cancel()
		}

		return runQuery(ctx, env.Pipeline, req, cmd.OutOrStdout())
	},
}

// buildQueryRequest decodes --request when given, otherwise assembles the
// request from flags. County, tract and place come from the located point.
func buildQueryRequest(cmd *cobra.Command, stdin io.Reader) (model.GeoRequest, error) {
	var req model.GeoRequest
	if queryFlags.request != "" {
		r := stdin
		if queryFlags.request != "-" {
			f, err := os.Open(queryFlags.request)
			if err != nil {
				return req, eris.Wrap(err, "open request")
			}
			defer f.Close() //nolint:errcheck
			r = f
		}
		if err := json.NewDecoder(r).Decode(&req); err != nil {
			return req, eris.Wrap(err, "decode request")
		}
		return req, nil
	}

	req = model.GeoRequest{
		State:     queryFlags.state,
		Zip:       queryFlags.zip,
		Level:     model.Level(queryFlags.level),
		Container: model.Level(queryFlags.container),
		Sublevel:  queryFlags.sublevel,
		API:       queryFlags.api,
		Year:      queryFlags.year,
		Variables: model.SplitList(queryFlags.variables),
	}
	if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng") {
		req = req.WithCoordinates(queryFlags.lat, queryFlags.lng)
	}
	return req, nil
}

func runQuery(ctx context.Context, runner api.Runner, req model.GeoRequest, w io.Writer) error {
	fc, err := runner.Run(ctx, req)
	if err != nil {
		return err
	}
	zap.L().Info("query complete", zap.Int("features", len(fc.Features)))

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(fc)
}

func init() {
	f := queryCmd.Flags()
	f.StringVar(&queryFlags.request, "request", "", "JSON request file, or - for stdin")
	f.StringVar(&queryFlags.state, "state", "", "state code, name or FIPS")
	f.StringVar(&queryFlags.zip, "zip", "", "ZIP code")
	f.Float64Var(&queryFlags.lat, "lat", 0, "latitude")
	f.Float64Var(&queryFlags.lng, "lng", 0, "longitude")
	f.StringVar(&queryFlags.level, "level", "", "geography level (us, state, county, place, tract, blockGroup)")
	f.StringVar(&queryFlags.container, "container", "", "container level for sublevel queries")
	f.BoolVar(&queryFlags.sublevel, "sublevel", false, "return the child geographies of the level")
	f.StringVar(&queryFlags.api, "api", "", "dataset, e.g. acs5")
	f.IntVar(&queryFlags.year, "year", 0, "dataset year")
	f.StringVar(&queryFlags.variables, "variables", "", "comma separated aliases or variable codes")
	rootCmd.AddCommand(queryCmd)
}
