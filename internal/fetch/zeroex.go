package fetch

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/yourorg/swap-quote-aggregator/internal/config"
	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

// ZeroExAdapter quotes through the 0x Swap API v2 (allowance-holder flow).
type ZeroExAdapter struct {
	base
}

// NewZeroExAdapter creates a new 0x adapter
func NewZeroExAdapter(pc config.ProviderConfig, opts ...Option) *ZeroExAdapter {
	return &ZeroExAdapter{base: newBase(pc, opts...)}
}

func (a *ZeroExAdapter) Supports(fromChain, toChain uint64) bool {
	return a.supportsSameChain(fromChain, toChain)
}

type zeroExQuoteResponse struct {
	LiquidityAvailable *bool       `json:"liquidityAvailable"`
	BuyAmount          json.Number `json:"buyAmount"`
	MinBuyAmount       json.Number `json:"minBuyAmount"`
	SellAmount         json.Number `json:"sellAmount"`
	Route              struct {
		Fills []struct {
			From   string `json:"from"`
			To     string `json:"to"`
			Source string `json:"source"`
		} `json:"fills"`
		Tokens []struct {
			Address string `json:"address"`
			Symbol  string `json:"symbol"`
		} `json:"tokens"`
	} `json:"route"`
	Transaction *struct {
		To    string      `json:"to"`
		Data  string      `json:"data"`
		Value json.Number `json:"value"`
		Gas   json.Number `json:"gas"`
	} `json:"transaction"`
}

// Quote retrieves an executable quote from 0x.
func (a *ZeroExAdapter) Quote(ctx context.Context, in model.SwapIntent) (model.Quote, error) {
	if !a.Supports(in.FromChain, in.ToChain) {
		return model.Quote{}, a.fail(model.KindUnsupportedChain, "chain %d not supported", in.FromChain)
	}
	if err := a.checkEVMIntent(in); err != nil {
		return model.Quote{}, err
	}

	query := url.Values{}
	query.Set("chainId", strconv.FormatUint(in.FromChain, 10))
	query.Set("sellToken", in.FromToken)
	query.Set("buyToken", in.ToToken)
	query.Set("sellAmount", in.FromAmount)
	query.Set("taker", in.FromAddress)
	query.Set("slippageBps", strconv.FormatUint(uint64(in.SlippageBps), 10))
	if in.ToAddress != "" && in.ToAddress != in.FromAddress {
		query.Set("recipient", in.ToAddress)
	}

	headers := map[string]string{"0x-version": "v2"}
	if a.apiKey != "" {
		headers["0x-api-key"] = a.apiKey
	}

	var resp zeroExQuoteResponse
	if err := a.getJSON(ctx, "/swap/allowance-holder/quote", query, headers, &resp); err != nil {
		return model.Quote{}, a.noLiquidityOn(err, 400, "liquidity", "no route")
	}

	if resp.LiquidityAvailable != nil && !*resp.LiquidityAvailable {
		return model.Quote{}, a.fail(model.KindNoLiquidity, "liquidity not available")
	}

	toAmount, err := a.amount("buyAmount", resp.BuyAmount)
	if err != nil {
		return model.Quote{}, err
	}
	out, _ := model.ParseAmount(toAmount)

	hops := make([]string, 0, len(resp.Route.Tokens))
	for _, t := range resp.Route.Tokens {
		hops = append(hops, t.Address)
	}
	var sources []string
	for _, f := range resp.Route.Fills {
		sources = append(sources, f.Source)
	}

	q := model.Quote{
		Provider:        a.name,
		FromAmount:      in.FromAmount,
		ToAmount:        toAmount,
		MinimumReceived: minimumReceived(resp.MinBuyAmount.String(), out, in.SlippageBps),
		Route:           normalizeRoute(hops, in.FromToken, in.ToToken),
		Sources:         uniqueSources(sources),
	}
	if tx := resp.Transaction; tx != nil && tx.To != "" {
		q.EstimatedGas = tx.Gas.String()
		value := tx.Value.String()
		if value == "" {
			value = "0"
		}
		q.Tx = &model.ExecutionTx{To: tx.To, Data: tx.Data, Value: value}
	}
	return q, nil
}
