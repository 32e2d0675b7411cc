package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yourorg/swap-quote-aggregator/internal/fetch"
	"github.com/yourorg/swap-quote-aggregator/internal/types"
)

var providersCmd = &cobra.Command{
	Use:     "providers",
	Aliases: []string{"ls"},
	Short:   "List the enabled quote providers and their chains",
	RunE:    runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

type providerRow struct {
	Name   string   `json:"name"`
	Chains []uint64 `json:"chains"`
}

func runProviders(cmd *cobra.Command, args []string) error {
	agg, err := loadAggregator()
	if err != nil {
		printError(err)
		return err
	}

	var rows []providerRow
	for _, a := range agg.Adapters() {
		row := providerRow{Name: a.Name()}
		if cl, ok := a.(fetch.ChainLister); ok {
			row.Chains = cl.Chains()
		}
		rows = append(rows, row)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(rows, "", "  ")
		fmt.Println(string(jsonData))
		return nil
	}

	fmt.Println()
	for _, row := range rows {
		names := make([]string, len(row.Chains))
		for i, id := range row.Chains {
			names[i] = types.ChainName(id)
		}
		fmt.Printf("  %s %s\n", color.CyanString("%-10s", row.Name), strings.Join(names, ", "))
	}
	fmt.Println()
	return nil
}
