package fetch

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/machinebox/graphql"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/swap-quote-aggregator/internal/config"
	"github.com/yourorg/swap-quote-aggregator/internal/model"
	"github.com/yourorg/swap-quote-aggregator/internal/types"
)

const uniswapPoolsQuery = `
query pools($token0: String!, $token1: String!) {
  pools(first: 5, orderBy: totalValueLockedUSD, orderDirection: desc,
        where: {token0: $token0, token1: $token1, liquidity_gt: "0"}) {
    id
    feeTier
    token0Price
    token1Price
    totalValueLockedToken0
    totalValueLockedToken1
    token0 { id decimals }
    token1 { id decimals }
  }
}`

// UniswapAdapter prices direct single-pool swaps from the Uniswap v3 subgraph. It
// reads pool state only, so quotes carry no transaction data.
type UniswapAdapter struct {
	base
	subgraphs map[uint64]*graphql.Client
}

// NewUniswapAdapter creates a new Uniswap subgraph adapter. Only chains that have a
// subgraph configured are supported.
func NewUniswapAdapter(pc config.ProviderConfig, opts ...Option) *UniswapAdapter {
	allowed := types.NewChainSet(pc.Chains...)
	var chains []uint64
	for id := range pc.Subgraphs {
		if len(pc.Chains) == 0 || allowed.Contains(id) {
			chains = append(chains, id)
		}
	}
	pc.Chains = chains

	a := &UniswapAdapter{base: newBase(pc, opts...), subgraphs: make(map[uint64]*graphql.Client, len(chains))}
	httpClient := a.client.StandardClient()
	for _, id := range chains {
		a.subgraphs[id] = graphql.NewClient(pc.Subgraphs[id], graphql.WithHTTPClient(httpClient))
	}
	return a
}

func (a *UniswapAdapter) Supports(fromChain, toChain uint64) bool {
	return a.supportsSameChain(fromChain, toChain)
}

type uniswapToken struct {
	ID       string `json:"id"`
	Decimals string `json:"decimals"`
}

type uniswapPool struct {
	ID                     string       `json:"id"`
	FeeTier                string       `json:"feeTier"`
	Token0Price            string       `json:"token0Price"`
	Token1Price            string       `json:"token1Price"`
	TotalValueLockedToken0 string       `json:"totalValueLockedToken0"`
	TotalValueLockedToken1 string       `json:"totalValueLockedToken1"`
	Token0                 uniswapToken `json:"token0"`
	Token1                 uniswapToken `json:"token1"`
}

type uniswapPoolsResponse struct {
	Pools []uniswapPool `json:"pools"`
}

// Quote prices the swap against the best direct pool.
func (a *UniswapAdapter) Quote(ctx context.Context, in model.SwapIntent) (model.Quote, error) {
	client, ok := a.subgraphs[in.FromChain]
	if !ok || !a.Supports(in.FromChain, in.ToChain) {
		return model.Quote{}, a.fail(model.KindUnsupportedChain, "chain %d not supported", in.FromChain)
	}
	if err := a.checkEVMIntent(in); err != nil {
		return model.Quote{}, err
	}

	tokenIn, err := a.poolToken(in.FromChain, in.FromToken)
	if err != nil {
		return model.Quote{}, err
	}
	tokenOut, err := a.poolToken(in.FromChain, in.ToToken)
	if err != nil {
		return model.Quote{}, err
	}
	if tokenIn == tokenOut {
		return model.Quote{}, a.fail(model.KindInvalidInput, "input and output resolve to the same pool token")
	}
	amountIn, _ := in.Amount()

	token0, token1 := tokenIn, tokenOut
	zeroForOne := tokenIn < tokenOut
	if !zeroForOne {
		token0, token1 = tokenOut, tokenIn
	}

	if err := a.wait(ctx); err != nil {
		return model.Quote{}, err
	}

	req := graphql.NewRequest(uniswapPoolsQuery)
	req.Var("token0", token0)
	req.Var("token1", token1)
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	logrus.WithFields(logrus.Fields{"provider": a.name, "chain": in.FromChain}).Debug("Querying pools")
	var resp uniswapPoolsResponse
	if err := client.Run(ctx, req, &resp); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Quote{}, ctxErr
		}
		ae := a.fail(model.KindTransport, "subgraph query failed: %v", err)
		ae.Err = err
		return model.Quote{}, ae
	}
	if len(resp.Pools) == 0 {
		return model.Quote{}, a.fail(model.KindNoLiquidity, "no pool for %s/%s", token0, token1)
	}

	var (
		bestOut    *big.Int
		bestImpact float64
		bestPool   uniswapPool
	)
	for _, pool := range resp.Pools {
		out, impact, err := priceExactInput(pool, amountIn, zeroForOne)
		if err != nil {
			logrus.WithFields(logrus.Fields{"provider": a.name, "pool": pool.ID}).WithError(err).Debug("Skipping pool")
			continue
		}
		if bestOut == nil || out.Cmp(bestOut) > 0 {
			bestOut, bestImpact, bestPool = out, impact, pool
		}
	}
	if bestOut == nil {
		return model.Quote{}, a.fail(model.KindNoLiquidity, "no pool can fill %s", in.FromAmount)
	}

	return model.Quote{
		Provider:           a.name,
		FromAmount:         in.FromAmount,
		ToAmount:           bestOut.String(),
		MinimumReceived:    model.ApplySlippage(bestOut, in.SlippageBps).String(),
		PriceImpactPercent: bestImpact,
		Route:              normalizeRoute(nil, in.FromToken, in.ToToken),
		Sources:            []string{fmt.Sprintf("UniswapV3 %s", feeLabel(bestPool.FeeTier))},
	}, nil
}

// poolToken maps a token to the lowercase address the subgraph indexes, wrapping the
// native placeholder.
func (a *UniswapAdapter) poolToken(chain uint64, token string) (string, error) {
	if types.IsNative(token) {
		wrapped, ok := types.WrappedNative(chain)
		if !ok {
			return "", a.fail(model.KindUnsupportedChain, "no wrapped native token known for chain %d", chain)
		}
		token = wrapped
	}
	return strings.ToLower(token), nil
}

// priceExactInput estimates the output of swapping amountIn through pool as a
// constant-product trade against its locked reserves, anchored to the pool's spot
// price: out = in*price*f * rIn / (rIn + in*f), where f is one minus the pool fee.
// Price impact is the share of the input reserve the trade consumes.
func priceExactInput(pool uniswapPool, amountIn *big.Int, zeroForOne bool) (*big.Int, float64, error) {
	decIn, decOut := pool.Token0.Decimals, pool.Token1.Decimals
	price := pool.Token1Price
	reserveIn, reserveOut := pool.TotalValueLockedToken0, pool.TotalValueLockedToken1
	if !zeroForOne {
		decIn, decOut = decOut, decIn
		price = pool.Token0Price
		reserveIn, reserveOut = reserveOut, reserveIn
	}

	dIn, err := strconv.Atoi(decIn)
	if err != nil {
		return nil, 0, fmt.Errorf("bad decimals %q", decIn)
	}
	dOut, err := strconv.Atoi(decOut)
	if err != nil {
		return nil, 0, fmt.Errorf("bad decimals %q", decOut)
	}
	p, err := decimal.NewFromString(price)
	if err != nil || !p.IsPositive() {
		return nil, 0, fmt.Errorf("bad price %q", price)
	}
	fee, err := decimal.NewFromString(pool.FeeTier)
	if err != nil {
		return nil, 0, fmt.Errorf("bad fee tier %q", pool.FeeTier)
	}
	rIn, err := decimal.NewFromString(reserveIn)
	if err != nil || rIn.IsNegative() {
		return nil, 0, fmt.Errorf("bad reserve %q", reserveIn)
	}
	rOut, err := decimal.NewFromString(reserveOut)
	if err != nil {
		return nil, 0, fmt.Errorf("bad reserve %q", reserveOut)
	}

	in := decimal.NewFromBigInt(amountIn, int32(-dIn))
	feeFactor := decimal.NewFromInt(1).Sub(fee.Div(decimal.NewFromInt(1_000_000)))
	inAfterFee := in.Mul(feeFactor)
	depth := rIn.Add(inAfterFee)
	if !depth.IsPositive() {
		return nil, 0, fmt.Errorf("pool has no depth")
	}

	out := inAfterFee.Mul(p).Mul(rIn).Div(depth)
	if out.GreaterThanOrEqual(rOut) {
		return nil, 0, fmt.Errorf("output %s exceeds pool reserve %s", out, rOut)
	}

	impact, _ := inAfterFee.Div(depth).Mul(decimal.NewFromInt(100)).Round(4).Float64()
	return out.Shift(int32(dOut)).Floor().BigInt(), impact, nil
}

// feeLabel renders a fee tier in hundredths of a bip as a percent, 3000 -> "0.3%".
func feeLabel(tier string) string {
	d, err := decimal.NewFromString(tier)
	if err != nil {
		return tier
	}
	return d.Shift(-4).String() + "%"
}
