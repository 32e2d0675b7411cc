package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/yourorg/swap-quote-aggregator/internal/config"
	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

// SushiSwapAdapter quotes through the Sushi swap API v7.
type SushiSwapAdapter struct {
	base
}

// NewSushiSwapAdapter creates a new SushiSwap adapter
func NewSushiSwapAdapter(pc config.ProviderConfig, opts ...Option) *SushiSwapAdapter {
	return &SushiSwapAdapter{base: newBase(pc, opts...)}
}

func (a *SushiSwapAdapter) Supports(fromChain, toChain uint64) bool {
	return a.supportsSameChain(fromChain, toChain)
}

type sushiSwapResponse struct {
	Status string `json:"status"`
	Tokens []struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"tokens"`
	PriceImpact      float64     `json:"priceImpact"`
	AssumedAmountOut json.Number `json:"assumedAmountOut"`
	GasSpent         json.Number `json:"gasSpent"`
	Route            []struct {
		PoolName  string `json:"poolName"`
		TokenFrom int    `json:"tokenFrom"`
		TokenTo   int    `json:"tokenTo"`
	} `json:"route"`
	Tx *struct {
		To    string      `json:"to"`
		Data  string      `json:"data"`
		Value json.Number `json:"value"`
	} `json:"tx"`
}

// Quote retrieves an executable swap from SushiSwap.
func (a *SushiSwapAdapter) Quote(ctx context.Context, in model.SwapIntent) (model.Quote, error) {
	if !a.Supports(in.FromChain, in.ToChain) {
		return model.Quote{}, a.fail(model.KindUnsupportedChain, "chain %d not supported", in.FromChain)
	}
	if err := a.checkEVMIntent(in); err != nil {
		return model.Quote{}, err
	}

	query := url.Values{}
	query.Set("tokenIn", in.FromToken)
	query.Set("tokenOut", in.ToToken)
	query.Set("amount", in.FromAmount)
	query.Set("maxSlippage", slippageFraction(in.SlippageBps))
	query.Set("sender", in.FromAddress)
	query.Set("recipient", in.Recipient())

	var resp sushiSwapResponse
	if err := a.getJSON(ctx, fmt.Sprintf("/swap/v7/%d", in.FromChain), query, nil, &resp); err != nil {
		return model.Quote{}, err
	}

	switch resp.Status {
	case "Success":
	case "NoWay", "Partial":
		return model.Quote{}, a.fail(model.KindNoLiquidity, "route status %s", resp.Status)
	default:
		return model.Quote{}, a.fail(model.KindMalformedResponse, "unexpected route status %q", resp.Status)
	}

	toAmount, err := a.amount("assumedAmountOut", resp.AssumedAmountOut)
	if err != nil {
		return model.Quote{}, err
	}
	out, _ := model.ParseAmount(toAmount)

	var hops, sources []string
	for _, leg := range resp.Route {
		if leg.TokenFrom < 0 || leg.TokenFrom >= len(resp.Tokens) || leg.TokenTo < 0 || leg.TokenTo >= len(resp.Tokens) {
			return model.Quote{}, a.fail(model.KindMalformedResponse, "route leg references unknown token")
		}
		hops = append(hops, resp.Tokens[leg.TokenFrom].Address, resp.Tokens[leg.TokenTo].Address)
		sources = append(sources, leg.PoolName)
	}

	q := model.Quote{
		Provider:           a.name,
		FromAmount:         in.FromAmount,
		ToAmount:           toAmount,
		MinimumReceived:    model.ApplySlippage(out, in.SlippageBps).String(),
		PriceImpactPercent: fractionToPercent(resp.PriceImpact),
		EstimatedGas:       resp.GasSpent.String(),
		Route:              normalizeRoute(hops, in.FromToken, in.ToToken),
		Sources:            uniqueSources(sources),
	}
	if tx := resp.Tx; tx != nil && tx.To != "" {
		value := tx.Value.String()
		if value == "" {
			value = "0"
		}
		q.Tx = &model.ExecutionTx{To: tx.To, Data: tx.Data, Value: value}
	}
	return q, nil
}
