package fetch

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/yourorg/swap-quote-aggregator/internal/config"
	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

// ParaSwapAdapter prices swaps through the ParaSwap /prices endpoint. Quotes carry no
// transaction data.
type ParaSwapAdapter struct {
	base
	partner string
}

// NewParaSwapAdapter creates a new ParaSwap adapter
func NewParaSwapAdapter(pc config.ProviderConfig, opts ...Option) *ParaSwapAdapter {
	return &ParaSwapAdapter{base: newBase(pc, opts...), partner: pc.Integrator}
}

func (a *ParaSwapAdapter) Supports(fromChain, toChain uint64) bool {
	return a.supportsSameChain(fromChain, toChain)
}

type paraSwapPriceResponse struct {
	PriceRoute *struct {
		SrcAmount  json.Number `json:"srcAmount"`
		DestAmount json.Number `json:"destAmount"`
		GasCost    json.Number `json:"gasCost"`
		SrcUSD     string      `json:"srcUSD"`
		DestUSD    string      `json:"destUSD"`
		BestRoute  []struct {
			Percent float64 `json:"percent"`
			Swaps   []struct {
				SrcToken      string `json:"srcToken"`
				DestToken     string `json:"destToken"`
				SwapExchanges []struct {
					Exchange string `json:"exchange"`
				} `json:"swapExchanges"`
			} `json:"swaps"`
		} `json:"bestRoute"`
	} `json:"priceRoute"`
	Error string `json:"error"`
}

// Quote retrieves a pricing-only quote from ParaSwap.
func (a *ParaSwapAdapter) Quote(ctx context.Context, in model.SwapIntent) (model.Quote, error) {
	if !a.Supports(in.FromChain, in.ToChain) {
		return model.Quote{}, a.fail(model.KindUnsupportedChain, "chain %d not supported", in.FromChain)
	}
	if err := a.checkEVMIntent(in); err != nil {
		return model.Quote{}, err
	}

	query := url.Values{}
	query.Set("srcToken", in.FromToken)
	query.Set("destToken", in.ToToken)
	query.Set("amount", in.FromAmount)
	query.Set("side", "SELL")
	query.Set("network", strconv.FormatUint(in.FromChain, 10))
	query.Set("userAddress", in.FromAddress)
	query.Set("version", "6.2")
	if a.partner != "" {
		query.Set("partner", a.partner)
	}

	var resp paraSwapPriceResponse
	if err := a.getJSON(ctx, "/prices", query, nil, &resp); err != nil {
		return model.Quote{}, a.noLiquidityOn(err, 400, "liquidity", "no routes")
	}
	if resp.PriceRoute == nil {
		if resp.Error != "" {
			return model.Quote{}, a.fail(model.KindNoLiquidity, "%s", resp.Error)
		}
		return model.Quote{}, a.fail(model.KindMalformedResponse, "response has no priceRoute")
	}
	pr := resp.PriceRoute

	toAmount, err := a.amount("destAmount", pr.DestAmount)
	if err != nil {
		return model.Quote{}, err
	}
	out, _ := model.ParseAmount(toAmount)

	// The largest split carries the representative path.
	var hops, sources []string
	best := -1.0
	for _, leg := range pr.BestRoute {
		for _, swap := range leg.Swaps {
			for _, ex := range swap.SwapExchanges {
				sources = append(sources, ex.Exchange)
			}
		}
		if leg.Percent <= best {
			continue
		}
		best = leg.Percent
		hops = hops[:0]
		for _, swap := range leg.Swaps {
			hops = append(hops, swap.SrcToken, swap.DestToken)
		}
	}

	return model.Quote{
		Provider:           a.name,
		FromAmount:         in.FromAmount,
		ToAmount:           toAmount,
		MinimumReceived:    model.ApplySlippage(out, in.SlippageBps).String(),
		PriceImpactPercent: usdImpact(pr.SrcUSD, pr.DestUSD),
		EstimatedGas:       pr.GasCost.String(),
		Route:              normalizeRoute(hops, in.FromToken, in.ToToken),
		Sources:            uniqueSources(sources),
	}, nil
}
