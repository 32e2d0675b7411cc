// Package model defines the core data structures for the swap quote aggregator.
package model

import (
	"fmt"
	"math/big"
)

// DefaultSlippageBps is applied when the caller does not specify a tolerance (0.5%).
const DefaultSlippageBps uint32 = 50

// MaxSlippageBps is 100%.
const MaxSlippageBps uint32 = 10000

// SwapIntent describes what the caller wants to swap. It is created once per request
// and never modified afterwards; adapters receive their own copy.
type SwapIntent struct {
	FromChain uint64 `json:"fromChain"`
	ToChain   uint64 `json:"toChain"`

	FromToken string `json:"fromToken"`
	ToToken   string `json:"toToken"`

	// FromAmount is an integer in the source token's smallest unit.
	FromAmount string `json:"fromAmount"`

	FromAddress string `json:"fromAddress"`
	ToAddress   string `json:"toAddress,omitempty"`

	SlippageBps uint32 `json:"slippageBps"`

	// RequireExecutable drops pricing-only quotes from selection.
	RequireExecutable bool `json:"requireExecutable,omitempty"`
}

// Recipient returns ToAddress, falling back to FromAddress.
func (i SwapIntent) Recipient() string {
	if i.ToAddress != "" {
		return i.ToAddress
	}
	return i.FromAddress
}

// IsCrossChain reports whether the intent bridges between networks.
func (i SwapIntent) IsCrossChain() bool {
	return i.FromChain != i.ToChain
}

// Amount parses FromAmount. ok is false when it is not a base-10 integer.
func (i SwapIntent) Amount() (*big.Int, bool) {
	return ParseAmount(i.FromAmount)
}

// ExecutionTx is the opaque transaction needed to execute a quote on-chain.
type ExecutionTx struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

// Quote is a normalized priced estimate from one provider.
type Quote struct {
	Provider string `json:"provider"`

	FromAmount string `json:"fromAmount,omitempty"`

	// ToAmount is the expected output in the destination token's smallest unit.
	ToAmount string `json:"toAmount"`

	// MinimumReceived is the worst-case output after slippage, never above ToAmount.
	MinimumReceived string `json:"minimumReceived"`

	// PriceImpactPercent is 0 when the provider does not report it.
	PriceImpactPercent float64 `json:"priceImpactPercent"`

	// EstimatedGas is informational only; units are provider specific.
	EstimatedGas string `json:"estimatedGas"`

	// Route holds token addresses in hop order, at least [fromToken, toToken].
	Route []string `json:"route"`

	// Sources lists venues the provider routed through, when reported.
	Sources []string `json:"sources,omitempty"`

	// Tx is nil for pricing-only providers.
	Tx *ExecutionTx `json:"executionTransaction,omitempty"`

	LatencyMs int64 `json:"latencyMs,omitempty"`
}

// Executable reports whether the quote carries transaction data.
func (q Quote) Executable() bool {
	return q.Tx != nil && q.Tx.To != ""
}

// Amount parses ToAmount.
func (q Quote) Amount() (*big.Int, bool) {
	return ParseAmount(q.ToAmount)
}

// IsZero reports a "no viable route" quote. Unparsable amounts are not zero;
// they are schema violations and are caught by validation.
func (q Quote) IsZero() bool {
	amt, ok := q.Amount()
	return ok && amt.Sign() == 0
}

// ProviderFailure records why a provider did not contribute a quote.
type ProviderFailure struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

// AggregationResult is the request-scoped output of the core.
type AggregationResult struct {
	// Best is nil when no provider returned a usable quote.
	Best *Quote

	// All is every successfully returned quote in completion order.
	All []Quote

	Failed []ProviderFailure

	// TotalProviders counts the adapters the request was dispatched to.
	TotalProviders int
}

// HasRoute reports whether a best quote was selected.
func (r AggregationResult) HasRoute() bool {
	return r.Best != nil
}

// ParseAmount parses a non-negative base-10 integer string without precision loss.
func ParseAmount(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return nil, false
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	return n, ok
}

// ApplySlippage returns amount reduced by bps basis points, rounded down.
func ApplySlippage(amount *big.Int, bps uint32) *big.Int {
	if bps > MaxSlippageBps {
		bps = MaxSlippageBps
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(MaxSlippageBps-bps)))
	return out.Quo(out, big.NewInt(int64(MaxSlippageBps)))
}

// String renders a short human form used in logs.
func (q Quote) String() string {
	return fmt.Sprintf("%s:%s", q.Provider, q.ToAmount)
}
