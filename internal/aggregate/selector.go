package aggregate

import (
	"math/big"
	"sort"
	"strings"

	"github.com/yourorg/swap-quote-aggregator/internal/model"
	"github.com/yourorg/swap-quote-aggregator/internal/validation"
)

// DefaultPreference is the provider tie-break order used when none is configured.
var DefaultPreference = []string{"0x", "1inch", "paraswap", "lifi", "sushiswap", "uniswap"}

// Selector ranks quotes. The ranking is a total order over quote content, so the
// winner never depends on the order quotes arrived in.
//
//  1. larger toAmount (big-integer comparison)
//  2. lower price impact
//  3. provider earlier in the preference order, unlisted providers last by name
//  4. larger minimumReceived, executable before pricing-only, then route text
type Selector struct {
	rank map[string]int
}

// NewSelector builds a Selector. An empty preference uses DefaultPreference.
func NewSelector(preference []string) *Selector {
	if len(preference) == 0 {
		preference = DefaultPreference
	}
	rank := make(map[string]int, len(preference))
	for i, p := range preference {
		if _, seen := rank[p]; !seen {
			rank[p] = i
		}
	}
	return &Selector{rank: rank}
}

// Select returns the best eligible quote, or nil when none qualifies. Zero-amount
// quotes never qualify; pricing-only quotes do not qualify when the intent
// requires executability. A quote that violates the schema aborts selection with
// an error wrapping model.ErrContractViolation.
func (s *Selector) Select(quotes []model.Quote, intent model.SwapIntent) (*model.Quote, error) {
	candidates, err := s.candidates(quotes, intent)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if s.better(c, best) {
			best = c
		}
	}
	q := best.quote
	return &q, nil
}

// Rank returns the eligible quotes best first.
func (s *Selector) Rank(quotes []model.Quote, intent model.SwapIntent) ([]model.Quote, error) {
	candidates, err := s.candidates(quotes, intent)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return s.better(candidates[i], candidates[j])
	})
	out := make([]model.Quote, len(candidates))
	for i, c := range candidates {
		out[i] = c.quote
	}
	return out, nil
}

// candidate caches the parsed amounts of a quote.
type candidate struct {
	quote       model.Quote
	amount      *big.Int
	minReceived *big.Int
}

func (s *Selector) candidates(quotes []model.Quote, intent model.SwapIntent) ([]candidate, error) {
	out := make([]candidate, 0, len(quotes))
	for _, q := range quotes {
		if err := validation.ValidateQuote(q, intent); err != nil {
			return nil, err
		}
		if q.IsZero() {
			continue
		}
		if intent.RequireExecutable && !q.Executable() {
			continue
		}
		amount, _ := q.Amount()
		minReceived, _ := model.ParseAmount(q.MinimumReceived)
		out = append(out, candidate{quote: q, amount: amount, minReceived: minReceived})
	}
	return out, nil
}

// better reports whether a strictly outranks b.
func (s *Selector) better(a, b candidate) bool {
	if c := a.amount.Cmp(b.amount); c != 0 {
		return c > 0
	}
	if a.quote.PriceImpactPercent != b.quote.PriceImpactPercent {
		return a.quote.PriceImpactPercent < b.quote.PriceImpactPercent
	}
	if ra, rb := s.providerRank(a.quote.Provider), s.providerRank(b.quote.Provider); ra != rb {
		return ra < rb
	}
	if a.quote.Provider != b.quote.Provider {
		return a.quote.Provider < b.quote.Provider
	}
	if c := a.minReceived.Cmp(b.minReceived); c != 0 {
		return c > 0
	}
	if a.quote.Executable() != b.quote.Executable() {
		return a.quote.Executable()
	}
	return strings.Join(a.quote.Route, ",") < strings.Join(b.quote.Route, ",")
}

func (s *Selector) providerRank(provider string) int {
	if r, ok := s.rank[provider]; ok {
		return r
	}
	return len(s.rank)
}
