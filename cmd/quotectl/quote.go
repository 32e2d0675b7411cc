package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yourorg/swap-quote-aggregator/internal/aggregate"
	"github.com/yourorg/swap-quote-aggregator/internal/api"
	"github.com/yourorg/swap-quote-aggregator/internal/model"
	"github.com/yourorg/swap-quote-aggregator/internal/types"
)

var (
	fromChain         uint64
	toChain           uint64
	fromToken         string
	toToken           string
	amount            string
	fromAddress       string
	toAddress         string
	slippage          float64
	requireExecutable bool
	timeout           time.Duration
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Fetch and rank quotes for one swap",
	Long: `Fetch quotes for one swap from every enabled provider and print them best first.

Amounts are integers in the token's smallest unit.

Examples:
  quotectl quote --from-chain 1 --to-chain 1 --from-token 0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE \
    --to-token 0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48 --amount 1000000000000000000 \
    --from-address 0xYourWallet --slippage 0.3
  quotectl quote --from-chain 1 --to-chain 42161 ... --require-executable`,
	RunE: runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().Uint64Var(&fromChain, "from-chain", 1, "Source chain id")
	quoteCmd.Flags().Uint64Var(&toChain, "to-chain", 0, "Destination chain id")
	quoteCmd.Flags().StringVar(&fromToken, "from-token", "", "Token to sell")
	quoteCmd.Flags().StringVar(&toToken, "to-token", "", "Token to buy")
	quoteCmd.Flags().StringVar(&amount, "amount", "", "Amount to sell in the token's smallest unit")
	quoteCmd.Flags().StringVar(&fromAddress, "from-address", "", "Wallet that sends the swap")
	quoteCmd.Flags().StringVar(&toAddress, "to-address", "", "Recipient (defaults to --from-address)")
	quoteCmd.Flags().Float64Var(&slippage, "slippage", 0.5, "Slippage tolerance in percent")
	quoteCmd.Flags().BoolVar(&requireExecutable, "require-executable", false, "Only rank quotes that carry transaction data")
	quoteCmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "Overall request timeout")

	for _, name := range []string{"to-chain", "from-token", "to-token", "amount", "from-address"} {
		_ = quoteCmd.MarkFlagRequired(name)
	}
}

func runQuote(cmd *cobra.Command, args []string) error {
	bps, err := api.SlippagePercentToBps(slippage)
	if err != nil {
		printError(err)
		return err
	}

	agg, err := loadAggregator()
	if err != nil {
		printError(err)
		return err
	}

	intent := model.SwapIntent{
		FromChain:         fromChain,
		ToChain:           toChain,
		FromToken:         fromToken,
		ToToken:           toToken,
		FromAmount:        amount,
		FromAddress:       fromAddress,
		ToAddress:         toAddress,
		SlippageBps:       bps,
		RequireExecutable: requireExecutable,
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	result, err := agg.Aggregate(ctx, intent)
	if err != nil {
		printError(err)
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(aggregate.NewResponse(result))
	}

	ranked, err := agg.Selector().Rank(result.All, intent)
	if err != nil {
		printError(err)
		return err
	}
	displayQuotes(os.Stdout, intent, ranked, result)
	if !result.HasRoute() {
		return fmt.Errorf("no route found")
	}
	return nil
}

func displayQuotes(w io.Writer, intent model.SwapIntent, ranked []model.Quote, result model.AggregationResult) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 96))
	route := types.ChainName(intent.FromChain)
	if intent.IsCrossChain() {
		route += " -> " + types.ChainName(intent.ToChain)
	}
	fmt.Fprintf(w, "  %s  %s %s -> %s\n", color.GreenString("QUOTES"), route, shortAddr(intent.FromToken), shortAddr(intent.ToToken))
	fmt.Fprintln(w, strings.Repeat("=", 96))

	if len(ranked) == 0 {
		fmt.Fprintln(w, color.YellowString("\n  No provider returned a usable quote."))
	} else {
		fmt.Fprintf(w, "\n  %-3s %-10s %-28s %-28s %-8s %-6s %s\n", "#", "PROVIDER", "TO AMOUNT", "MIN RECEIVED", "IMPACT", "TX", "LATENCY")
		fmt.Fprintln(w, "  "+strings.Repeat("-", 94))
		for i, q := range ranked {
			tx := "-"
			if q.Executable() {
				tx = "yes"
			}
			line := fmt.Sprintf("  %-3d %-10s %-28s %-28s %-8s %-6s %dms", i+1, q.Provider, q.ToAmount, q.MinimumReceived,
				fmt.Sprintf("%.2f%%", q.PriceImpactPercent), tx, q.LatencyMs)
			if i == 0 {
				line = color.GreenString(line)
			}
			fmt.Fprintln(w, line)
		}
		best := ranked[0]
		fmt.Fprintf(w, "\n  Route:   %s\n", strings.Join(shortAddrs(best.Route), " > "))
		if len(best.Sources) > 0 {
			fmt.Fprintf(w, "  Sources: %s\n", strings.Join(best.Sources, ", "))
		}
	}

	if len(result.Failed) > 0 {
		fmt.Fprintln(w, color.RedString("\n  Failed providers:"))
		for _, f := range result.Failed {
			fmt.Fprintf(w, "    %-10s %s\n", f.Provider, f.Reason)
		}
	}
	fmt.Fprintf(w, "\n  %d of %d providers quoted\n\n", len(result.All), result.TotalProviders)
}

func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func shortAddrs(addrs []string) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = shortAddr(a)
	}
	return out
}
