package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/yourorg/swap-quote-aggregator/internal/config"
	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

// OneInchAdapter quotes through the 1inch Swap API v6.
type OneInchAdapter struct {
	base
}

// NewOneInchAdapter creates a new 1inch adapter
func NewOneInchAdapter(pc config.ProviderConfig, opts ...Option) *OneInchAdapter {
	return &OneInchAdapter{base: newBase(pc, opts...)}
}

func (a *OneInchAdapter) Supports(fromChain, toChain uint64) bool {
	return a.supportsSameChain(fromChain, toChain)
}

type oneInchProtocolPart struct {
	Name             string  `json:"name"`
	Part             float64 `json:"part"`
	FromTokenAddress string  `json:"fromTokenAddress"`
	ToTokenAddress   string  `json:"toTokenAddress"`
}

type oneInchSwapResponse struct {
	DstAmount json.Number `json:"dstAmount"`
	// routes -> hops -> parallel parts
	Protocols [][][]oneInchProtocolPart `json:"protocols"`
	Tx        *struct {
		To    string      `json:"to"`
		Data  string      `json:"data"`
		Value json.Number `json:"value"`
		Gas   json.Number `json:"gas"`
	} `json:"tx"`
}

// Quote retrieves an executable swap from 1inch.
func (a *OneInchAdapter) Quote(ctx context.Context, in model.SwapIntent) (model.Quote, error) {
	if !a.Supports(in.FromChain, in.ToChain) {
		return model.Quote{}, a.fail(model.KindUnsupportedChain, "chain %d not supported", in.FromChain)
	}
	if err := a.checkEVMIntent(in); err != nil {
		return model.Quote{}, err
	}

	query := url.Values{}
	query.Set("src", in.FromToken)
	query.Set("dst", in.ToToken)
	query.Set("amount", in.FromAmount)
	query.Set("from", in.FromAddress)
	query.Set("origin", in.FromAddress)
	query.Set("receiver", in.Recipient())
	query.Set("slippage", slippagePercent(in.SlippageBps))
	query.Set("includeProtocols", "true")
	query.Set("includeGas", "true")
	query.Set("disableEstimate", "true")

	headers := map[string]string{}
	if a.apiKey != "" {
		headers["Authorization"] = "Bearer " + a.apiKey
	}

	var resp oneInchSwapResponse
	path := fmt.Sprintf("/swap/v6.0/%d/swap", in.FromChain)
	if err := a.getJSON(ctx, path, query, headers, &resp); err != nil {
		return model.Quote{}, a.noLiquidityOn(err, 400, "liquidity")
	}

	toAmount, err := a.amount("dstAmount", resp.DstAmount)
	if err != nil {
		return model.Quote{}, err
	}
	out, _ := model.ParseAmount(toAmount)

	hops, sources := oneInchPath(resp.Protocols)
	q := model.Quote{
		Provider:        a.name,
		FromAmount:      in.FromAmount,
		ToAmount:        toAmount,
		MinimumReceived: model.ApplySlippage(out, in.SlippageBps).String(),
		Route:           normalizeRoute(hops, in.FromToken, in.ToToken),
		Sources:         sources,
	}
	if tx := resp.Tx; tx != nil && tx.To != "" {
		q.EstimatedGas = tx.Gas.String()
		value := tx.Value.String()
		if value == "" {
			value = "0"
		}
		q.Tx = &model.ExecutionTx{To: tx.To, Data: tx.Data, Value: value}
	}
	return q, nil
}

// oneInchPath follows the first (main) route hop by hop.
func oneInchPath(routes [][][]oneInchProtocolPart) ([]string, []string) {
	var hops, names []string
	for r, route := range routes {
		for _, hop := range route {
			if len(hop) == 0 {
				continue
			}
			if r == 0 {
				hops = append(hops, hop[0].FromTokenAddress, hop[0].ToTokenAddress)
			}
			for _, part := range hop {
				names = append(names, part.Name)
			}
		}
	}
	return hops, uniqueSources(names)
}
