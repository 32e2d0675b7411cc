package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourorg/swap-quote-aggregator/internal/app"
	"github.com/yourorg/swap-quote-aggregator/internal/config"
)

var (
	configPath string
	jsonOutput bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "quotectl",
	Short: "Query every configured DEX aggregator and rank the quotes",
	Long: `quotectl sends one swap request to every enabled quote provider in parallel
and prints the ranked results. It uses the same configuration as the server.

Examples:
  quotectl quote --from-chain 1 --from-token 0xC02a...6Cc2 --to-token 0xA0b8...eB48 \
    --amount 1000000000000000000 --from-address 0xYourWallet
  quotectl providers --json`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			logrus.SetOutput(io.Discard)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML or JSON config file")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show provider logs")
}

// loadAggregator reads configuration and builds the same aggregator the server runs.
func loadAggregator() (*app.Aggregator, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		app.SetupLogging(cfg.Log)
	}
	return app.Build(cfg, nil)
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}
