package fetch

import (
	"context"
	"encoding/json"
	"math/big"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/yourorg/swap-quote-aggregator/internal/config"
	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

// LiFiAdapter quotes same-chain swaps and cross-chain bridges through LI.FI. It is the
// only bundled adapter that accepts fromChain != toChain.
type LiFiAdapter struct {
	base
	integrator string
}

// NewLiFiAdapter creates a new LI.FI adapter
func NewLiFiAdapter(pc config.ProviderConfig, opts ...Option) *LiFiAdapter {
	return &LiFiAdapter{base: newBase(pc, opts...), integrator: pc.Integrator}
}

func (a *LiFiAdapter) Supports(fromChain, toChain uint64) bool {
	return a.chains.Contains(fromChain) && a.chains.Contains(toChain)
}

type lifiToken struct {
	Address string `json:"address"`
}

type lifiStep struct {
	Tool   string `json:"tool"`
	Action struct {
		FromToken lifiToken `json:"fromToken"`
		ToToken   lifiToken `json:"toToken"`
	} `json:"action"`
}

type lifiGasCost struct {
	Estimate json.Number `json:"estimate"`
}

type lifiQuoteResponse struct {
	Tool     string `json:"tool"`
	Estimate *struct {
		FromAmount    json.Number   `json:"fromAmount"`
		ToAmount      json.Number   `json:"toAmount"`
		ToAmountMin   json.Number   `json:"toAmountMin"`
		FromAmountUSD string        `json:"fromAmountUSD"`
		ToAmountUSD   string        `json:"toAmountUSD"`
		GasCosts      []lifiGasCost `json:"gasCosts"`
	} `json:"estimate"`
	IncludedSteps      []lifiStep `json:"includedSteps"`
	TransactionRequest *struct {
		To       string `json:"to"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		GasLimit string `json:"gasLimit"`
	} `json:"transactionRequest"`
}

// Quote retrieves an executable quote from LI.FI.
func (a *LiFiAdapter) Quote(ctx context.Context, in model.SwapIntent) (model.Quote, error) {
	if !a.Supports(in.FromChain, in.ToChain) {
		return model.Quote{}, a.fail(model.KindUnsupportedChain, "chain pair %d -> %d not supported", in.FromChain, in.ToChain)
	}
	if err := a.checkEVMIntent(in); err != nil {
		return model.Quote{}, err
	}

	query := url.Values{}
	query.Set("fromChain", strconv.FormatUint(in.FromChain, 10))
	query.Set("toChain", strconv.FormatUint(in.ToChain, 10))
	query.Set("fromToken", in.FromToken)
	query.Set("toToken", in.ToToken)
	query.Set("fromAmount", in.FromAmount)
	query.Set("fromAddress", in.FromAddress)
	query.Set("toAddress", in.Recipient())
	query.Set("slippage", slippageFraction(in.SlippageBps))
	if a.integrator != "" {
		query.Set("integrator", a.integrator)
	}

	headers := map[string]string{}
	if a.apiKey != "" {
		headers["x-lifi-api-key"] = a.apiKey
	}

	var resp lifiQuoteResponse
	if err := a.getJSON(ctx, "/v1/quote", query, headers, &resp); err != nil {
		// 404 is how LI.FI says no route was found
		return model.Quote{}, a.noLiquidityOn(err, 404)
	}
	if resp.Estimate == nil {
		return model.Quote{}, a.fail(model.KindMalformedResponse, "response has no estimate")
	}

	toAmount, err := a.amount("toAmount", resp.Estimate.ToAmount)
	if err != nil {
		return model.Quote{}, err
	}
	out, _ := model.ParseAmount(toAmount)

	var hops, sources []string
	for _, step := range resp.IncludedSteps {
		hops = append(hops, step.Action.FromToken.Address, step.Action.ToToken.Address)
		sources = append(sources, step.Tool)
	}
	if len(sources) == 0 {
		sources = append(sources, resp.Tool)
	}

	q := model.Quote{
		Provider:           a.name,
		FromAmount:         in.FromAmount,
		ToAmount:           toAmount,
		MinimumReceived:    minimumReceived(resp.Estimate.ToAmountMin.String(), out, in.SlippageBps),
		PriceImpactPercent: usdImpact(resp.Estimate.FromAmountUSD, resp.Estimate.ToAmountUSD),
		EstimatedGas:       sumGas(resp.Estimate.GasCosts),
		Route:              normalizeRoute(hops, in.FromToken, in.ToToken),
		Sources:            uniqueSources(sources),
	}

	if tr := resp.TransactionRequest; tr != nil && tr.To != "" {
		value, ok := decodeQuantity(tr.Value)
		if !ok {
			return model.Quote{}, a.fail(model.KindMalformedResponse, "transaction value %q is not a quantity", tr.Value)
		}
		q.Tx = &model.ExecutionTx{To: tr.To, Data: tr.Data, Value: value.String()}
		if q.EstimatedGas == "" {
			if gas, ok := decodeQuantity(tr.GasLimit); ok {
				q.EstimatedGas = gas.String()
			}
		}
	}
	return q, nil
}

func sumGas(costs []lifiGasCost) string {
	total := new(big.Int)
	seen := false
	for _, c := range costs {
		if n, ok := model.ParseAmount(c.Estimate.String()); ok {
			total.Add(total, n)
			seen = true
		}
	}
	if !seen {
		return ""
	}
	return total.String()
}

// decodeQuantity accepts 0x-prefixed hex (with or without leading zeros) or
// base-10 integers. An empty string is zero.
func decodeQuantity(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), true
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if n, err := hexutil.DecodeBig(s); err == nil {
			return n, true
		}
		n, ok := new(big.Int).SetString(s[2:], 16)
		return n, ok && n.Sign() >= 0
	}
	return model.ParseAmount(s)
}
