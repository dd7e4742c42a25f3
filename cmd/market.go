package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/market-stats/internal/model"
)

var (
	marketLat        float64
	marketLon        float64
	marketRadius     float64
	marketYear       string
	marketGeography  string
	marketFormat     string
	marketCacheStats bool
)

var marketCmd = &cobra.Command{
	Use:   "market",
	Short: "Compute statistics for the market around a point",
	Example: `  market-stats market --lat 38.6592 --lon -90.358 --radius 10 --year 2023
  market-stats market --lat 38.6592 --lon -90.358 --radius 5 --geography tract --format yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if marketFormat != "json" && marketFormat != "yaml" {
			return eris.Errorf("unsupported format %q (json or yaml)", marketFormat)
		}
		geo, err := model.ParseGeography(marketGeography)
		if err != nil {
			return err
		}

		env, err := initService(ctx, "market")
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Service.GetMarketStats(ctx, model.MarketQuery{
			Center:      model.Point{Lat: marketLat, Lon: marketLon},
			RadiusMiles: marketRadius,
			Year:        marketYear,
			Geography:   geo,
		})
		if err != nil {
			return eris.Wrap(err, "market stats")
		}

		out := cmd.OutOrStdout()
		if err := writeOutput(out, marketFormat, stats); err != nil {
			return err
		}
		if marketCacheStats {
			fmt.Fprintln(out, "---")
			return writeOutput(out, marketFormat, env.Service.Cache().Stats())
		}
		return nil
	},
}

// writeOutput encodes v as indented JSON or YAML.
func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode json")
		}
		return nil
	}
}

func init() {
	marketCmd.Flags().Float64Var(&marketLat, "lat", 0, "center latitude (required)")
	marketCmd.Flags().Float64Var(&marketLon, "lon", 0, "center longitude (required)")
	marketCmd.Flags().Float64Var(&marketRadius, "radius", 10, "radius in miles")
	marketCmd.Flags().StringVar(&marketYear, "year", "2023", "ACS survey year")
	marketCmd.Flags().StringVar(&marketGeography, "geography", "zip", "unit granularity: zip or tract")
	marketCmd.Flags().StringVar(&marketFormat, "format", "json", "output format: json or yaml")
	marketCmd.Flags().BoolVar(&marketCacheStats, "cache-stats", false, "print cache statistics after the result")
	_ = marketCmd.MarkFlagRequired("lat")
	_ = marketCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(marketCmd)
}
