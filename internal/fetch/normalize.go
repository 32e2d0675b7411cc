package fetch

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

// normalizeRoute turns a provider's hop list into the shared route shape: empty hops
// dropped, every token kept once (first occurrence, case-insensitive), endpoints
// pinned to the intent's tokens. Without usable hop data the route is
// [fromToken, toToken].
func normalizeRoute(hops []string, from, to string) []string {
	seen := map[string]struct{}{
		strings.ToLower(from): {},
		strings.ToLower(to):   {},
	}
	route := make([]string, 0, len(hops)+2)
	route = append(route, from)
	for _, h := range hops {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		key := strings.ToLower(h)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		route = append(route, h)
	}
	return append(route, to)
}

// uniqueSources keeps the first occurrence of each non-empty venue name.
func uniqueSources(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// minimumReceived returns the provider's minimum when it is a valid bound on
// toAmount, otherwise toAmount reduced by the intent's slippage.
func minimumReceived(reported string, toAmount *big.Int, slippageBps uint32) string {
	if min, ok := model.ParseAmount(reported); ok && min.Cmp(toAmount) <= 0 {
		return min.String()
	}
	return model.ApplySlippage(toAmount, slippageBps).String()
}

// slippagePercent renders basis points as a percent string, 50 -> "0.5".
func slippagePercent(bps uint32) string {
	return decimal.New(int64(bps), -2).String()
}

// slippageFraction renders basis points as a fraction string, 50 -> "0.005".
func slippageFraction(bps uint32) string {
	return decimal.New(int64(bps), -4).String()
}

// usdImpact estimates price impact in percent from the USD value going in and
// coming out. Missing or unparsable values give 0.
func usdImpact(inUSD, outUSD string) float64 {
	in, err := decimal.NewFromString(strings.TrimSpace(inUSD))
	if err != nil || !in.IsPositive() {
		return 0
	}
	out, err := decimal.NewFromString(strings.TrimSpace(outUSD))
	if err != nil {
		return 0
	}
	impact, _ := in.Sub(out).Div(in).Mul(decimal.NewFromInt(100)).Round(4).Float64()
	return impact
}

// fractionToPercent converts a 0..1 ratio such as 0.0012 into 0.12.
func fractionToPercent(f float64) float64 {
	pct, _ := decimal.NewFromFloat(f).Mul(decimal.NewFromInt(100)).Round(4).Float64()
	return pct
}
