package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/market-stats/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "market-stats",
	Short: "Demographic statistics for a market around a point",
	Long:  "Resolves the ZCTAs or census tracts within a radius, fetches their ACS statistics under the source's rate limits, and aggregates them into market totals with national, state and county overlays.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
