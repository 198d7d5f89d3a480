package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/census-geo/internal/config"
)

var cfg *config.Config

// logLevel overrides log.level from config.yaml or CENSUSGEO_LOG_LEVEL.
var logLevel string

var rootCmd = &cobra.Command{
	Use:   "census-geo",
	Short: "Census statistics joined to TIGERweb geography",
	Long: `census-geo answers "what are the numbers here?" for a US location.

A request names a place (an address, a ZIP code, a state or a lat/lng), a
geography level and a list of Census variables or their aliases. The place
is geocoded to FIPS codes, the Census data API is asked for the variables,
and the matching TIGERweb boundaries come back as a GeoJSON
FeatureCollection with per-feature values and their totals.

Settings come from ./config.yaml and CENSUSGEO_* environment variables.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// setup loads config, applies command-line overrides and installs the
// global logger before any subcommand runs.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "load config")
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	cfg = c

	if err := config.InitLogger(cfg.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}

	zap.L().Debug("census-geo: config loaded",
		zap.String("command", cmd.CommandPath()),
		zap.String("census", cfg.Census.BaseURL),
		zap.Bool("census_key", cfg.Census.APIKey != ""),
		zap.String("geocoder", cfg.Geocoder.BaseURL),
		zap.String("catalog_dir", cfg.Catalog.Dir),
		zap.Bool("breakers", cfg.Breaker.Enabled),
	)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
