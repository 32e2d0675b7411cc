package aggregate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

func quote(provider, amount string) model.Quote {
	return model.Quote{
		Provider:        provider,
		ToAmount:        amount,
		MinimumReceived: amount,
		Route:           []string{"0xA", "0xB"},
	}
}

func TestSelector_Precision(t *testing.T) {
	s := NewSelector(nil)
	quotes := []model.Quote{
		quote("0x", "1000000000000000000"),
		quote("uniswap", "1000000000000000001"),
	}

	best, err := s.Select(quotes, testIntent())
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "1000000000000000001", best.ToAmount, "Amounts must be compared as integers, not floats")
}

func TestSelector_DeterministicUnderShuffle(t *testing.T) {
	s := NewSelector(nil)

	withImpact := quote("sushiswap", "500000000000000000000")
	withImpact.PriceImpactPercent = 0.4
	lowImpact := quote("uniswap", "500000000000000000000")
	lowImpact.PriceImpactPercent = 0.1
	preferred := quote("1inch", "500000000000000000000")
	preferred.PriceImpactPercent = 0.1

	quotes := []model.Quote{
		quote("0x", "499999999999999999999"),
		withImpact,
		lowImpact,
		preferred,
		quote("paraswap", "0"),
		quote("lifi", "12"),
	}

	want, err := s.Select(quotes, testIntent())
	require.NoError(t, err)
	require.NotNil(t, want)
	assert.Equal(t, "1inch", want.Provider)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		shuffled := append([]model.Quote(nil), quotes...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := s.Select(shuffled, testIntent())
		require.NoError(t, err)
		assert.Equal(t, want.Provider, got.Provider, "iteration %d", i)
	}
}

func TestSelector_TieBreaks(t *testing.T) {
	tests := []struct {
		name       string
		preference []string
		quotes     func() []model.Quote
		want       string
	}{
		{
			name: "lower price impact wins on equal amount",
			quotes: func() []model.Quote {
				a, b := quote("0x", "100"), quote("1inch", "100")
				a.PriceImpactPercent = 0.5
				b.PriceImpactPercent = 0.2
				return []model.Quote{a, b}
			},
			want: "1inch",
		},
		{
			name:       "configured preference order",
			preference: []string{"paraswap", "0x"},
			quotes: func() []model.Quote {
				return []model.Quote{quote("0x", "100"), quote("paraswap", "100")}
			},
			want: "paraswap",
		},
		{
			name:       "unlisted providers rank after listed ones",
			preference: []string{"lifi"},
			quotes: func() []model.Quote {
				return []model.Quote{quote("aaa", "100"), quote("lifi", "100")}
			},
			want: "lifi",
		},
		{
			name:       "unlisted providers ordered by name",
			preference: []string{"lifi"},
			quotes: func() []model.Quote {
				return []model.Quote{quote("zeta", "100"), quote("beta", "100")}
			},
			want: "beta",
		},
		{
			name: "amount beats impact",
			quotes: func() []model.Quote {
				a, b := quote("0x", "100"), quote("uniswap", "101")
				b.PriceImpactPercent = 9
				return []model.Quote{a, b}
			},
			want: "uniswap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			best, err := NewSelector(tt.preference).Select(tt.quotes(), testIntent())
			require.NoError(t, err)
			require.NotNil(t, best)
			assert.Equal(t, tt.want, best.Provider)
		})
	}
}

func TestSelector_SameProviderFallsBackToContent(t *testing.T) {
	a := quote("0x", "100")
	a.MinimumReceived = "95"
	b := quote("0x", "100")
	b.MinimumReceived = "99"

	s := NewSelector(nil)
	for _, quotes := range [][]model.Quote{{a, b}, {b, a}} {
		best, err := s.Select(quotes, testIntent())
		require.NoError(t, err)
		assert.Equal(t, "99", best.MinimumReceived)
	}
}

func TestSelector_NoSurvivors(t *testing.T) {
	s := NewSelector(nil)

	best, err := s.Select(nil, testIntent())
	assert.NoError(t, err)
	assert.Nil(t, best)

	best, err = s.Select([]model.Quote{quote("0x", "0"), quote("1inch", "0")}, testIntent())
	assert.NoError(t, err)
	assert.Nil(t, best)

	intent := testIntent()
	intent.RequireExecutable = true
	best, err = s.Select([]model.Quote{quote("paraswap", "100")}, intent)
	assert.NoError(t, err)
	assert.Nil(t, best, "Pricing-only quotes are dropped when execution is required")
}

func TestSelector_ContractViolation(t *testing.T) {
	tests := []struct {
		name  string
		quote model.Quote
	}{
		{"non-integer amount", model.Quote{Provider: "0x", ToAmount: "1e18", MinimumReceived: "1", Route: []string{"0xA", "0xB"}}},
		{"minimum above amount", model.Quote{Provider: "0x", ToAmount: "10", MinimumReceived: "11", Route: []string{"0xA", "0xB"}}},
		{"short route", model.Quote{Provider: "0x", ToAmount: "10", MinimumReceived: "10", Route: []string{"0xA"}}},
		{"wrong destination", model.Quote{Provider: "0x", ToAmount: "10", MinimumReceived: "10", Route: []string{"0xA", "0xC"}}},
		{"no provider", model.Quote{ToAmount: "10", MinimumReceived: "10", Route: []string{"0xA", "0xB"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSelector(nil).Select([]model.Quote{quote("1inch", "5"), tt.quote}, testIntent())
			assert.ErrorIs(t, err, model.ErrContractViolation)
		})
	}
}

func TestSelector_Rank(t *testing.T) {
	ranked, err := NewSelector(nil).Rank([]model.Quote{
		quote("uniswap", "7"),
		quote("0x", "0"),
		quote("lifi", "9"),
		quote("paraswap", "7"),
	}, testIntent())
	require.NoError(t, err)

	providers := make([]string, len(ranked))
	for i, q := range ranked {
		providers[i] = q.Provider
	}
	assert.Equal(t, []string{"lifi", "paraswap", "uniswap"}, providers)
}
