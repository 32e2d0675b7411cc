package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/swap-quote-aggregator/internal/config"
	"github.com/yourorg/swap-quote-aggregator/internal/model"
	"github.com/yourorg/swap-quote-aggregator/internal/validation"
)

const (
	weth    = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	usdc    = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	dai     = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
	usdcArb = "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
	user    = "0x1111111111111111111111111111111111111111"
	router  = "0xDef1C0ded9bec7F1a1670819833240f027b25EfF"
)

func providerConfig(name, baseURL string, chains ...uint64) config.ProviderConfig {
	return config.ProviderConfig{
		Name:    name,
		Enabled: true,
		BaseURL: baseURL,
		APIKey:  "test-key",
		Chains:  chains,
	}
}

func evmIntent() model.SwapIntent {
	return model.SwapIntent{
		FromChain:   1,
		ToChain:     1,
		FromToken:   weth,
		ToToken:     usdc,
		FromAmount:  "1000000000000000000",
		FromAddress: user,
		SlippageBps: 50,
	}
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func requireKind(t *testing.T, err error, kind model.ErrorKind) *model.AdapterError {
	t.Helper()
	var ae *model.AdapterError
	require.True(t, errors.As(err, &ae), "expected *model.AdapterError, got %v", err)
	assert.Equal(t, kind, ae.Kind, ae.Error())
	return ae
}

// assertValidQuote checks the quote against the same schema the selector enforces.
func assertValidQuote(t *testing.T, q model.Quote, in model.SwapIntent) {
	t.Helper()
	assert.NoError(t, validation.ValidateQuote(q, in))
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		kind       model.ErrorKind
		expected   bool
		wantInText string
	}{
		{"server error", 500, `{"message":"internal"}`, model.KindHTTPStatus, false, "internal"},
		{"bad gateway plain text", 502, `upstream unavailable`, model.KindHTTPStatus, false, "upstream unavailable"},
		{"rate limited", 429, `{"error":"slow down"}`, model.KindRateLimited, false, "slow down"},
		{"bad request", 400, `{"description":"invalid token"}`, model.KindHTTPStatus, true, "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(jsonHandler(tt.status, tt.body))
			defer srv.Close()

			a := NewZeroExAdapter(providerConfig("0x", srv.URL, 1), WithRetryMax(0))
			_, err := a.Quote(context.Background(), evmIntent())

			ae := requireKind(t, err, tt.kind)
			assert.Equal(t, tt.status, ae.Status)
			assert.Equal(t, tt.expected, ae.Expected())
			assert.Contains(t, ae.Message, tt.wantInText)
			assert.Equal(t, "0x", ae.Provider)
		})
	}
}

func TestMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"float amount", `{"buyAmount":"12.5"}`},
		{"missing amount", `{"liquidityAvailable":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(jsonHandler(200, tt.body))
			defer srv.Close()

			a := NewZeroExAdapter(providerConfig("0x", srv.URL, 1), WithRetryMax(0))
			_, err := a.Quote(context.Background(), evmIntent())
			requireKind(t, err, model.KindMalformedResponse)
		})
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		jsonHandler(200, `{"buyAmount":"10","route":{},"transaction":null}`)(w, r)
	}))
	defer srv.Close()

	a := NewZeroExAdapter(providerConfig("0x", srv.URL, 1), WithRetryMax(1))
	q, err := a.Quote(context.Background(), evmIntent())
	require.NoError(t, err)
	assert.Equal(t, "10", q.ToAmount)
	assert.Equal(t, int32(2), calls.Load())
}

func TestContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	a := NewOneInchAdapter(providerConfig("1inch", srv.URL, 1), WithRetryMax(0))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := a.Quote(ctx, evmIntent())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRejectsNonEVMInput(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls.Add(1) }))
	defer srv.Close()

	a := NewSushiSwapAdapter(providerConfig("sushiswap", srv.URL, 1), WithRetryMax(0))
	in := evmIntent()
	in.FromToken = "So11111111111111111111111111111111111111112"

	_, err := a.Quote(context.Background(), in)
	ae := requireKind(t, err, model.KindInvalidInput)
	assert.True(t, ae.Expected())
	assert.Zero(t, calls.Load())
}

func TestUnsupportedChain(t *testing.T) {
	a := NewParaSwapAdapter(providerConfig("paraswap", "http://127.0.0.1:1", 1, 137))

	assert.True(t, a.Supports(137, 137))
	assert.False(t, a.Supports(1, 137), "Same-chain adapters never bridge")
	assert.False(t, a.Supports(42161, 42161))

	in := evmIntent()
	in.FromChain, in.ToChain = 42161, 42161
	_, err := a.Quote(context.Background(), in)
	requireKind(t, err, model.KindUnsupportedChain)
}

func TestClientSideRateLimit(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(200, `{"buyAmount":"10"}`))
	defer srv.Close()

	pc := providerConfig("0x", srv.URL, 1)
	pc.RPS = 0.001
	a := NewZeroExAdapter(pc, WithRetryMax(0))

	_, err := a.Quote(context.Background(), evmIntent())
	require.NoError(t, err, "The first request uses the burst")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = a.Quote(ctx, evmIntent())
	requireKind(t, err, model.KindRateLimited)
}

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		name string
		hops []string
		want []string
	}{
		{"no data", nil, []string{weth, usdc}},
		{"direct", []string{weth, usdc}, []string{weth, usdc}},
		{"collapses repeats", []string{weth, dai, dai, usdc}, []string{weth, dai, usdc}},
		{"case-insensitive repeats", []string{"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", dai, "0x6b175474e89094c44da98b954eedeac495271d0f", usdc}, []string{weth, dai, usdc}},
		{"pins missing endpoints", []string{dai}, []string{weth, dai, usdc}},
		{"drops revisited tokens", []string{weth, dai, weth, usdc}, []string{weth, dai, usdc}},
		{"drops non-adjacent repeats", []string{weth, dai, usdcArb, dai, usdc}, []string{weth, dai, usdcArb, usdc}},
		{"target reached mid-route", []string{weth, usdc, dai, usdc}, []string{weth, dai, usdc}},
		{"drops blanks", []string{"", weth, " ", usdc}, []string{weth, usdc}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeRoute(tt.hops, weth, usdc))
		})
	}

	assert.Equal(t, []string{weth, weth}, normalizeRoute(nil, weth, weth))
}

func TestDecodeQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "0", true},
		{"0x0", "0", true},
		{"0x00", "0", true},
		{"0x30d40", "200000", true},
		{"123", "123", true},
		{"0xzz", "", false},
		{"-1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, ok := decodeQuantity(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, n.String())
			}
		})
	}
}

func TestSlippageFormatting(t *testing.T) {
	assert.Equal(t, "0.5", slippagePercent(50))
	assert.Equal(t, "1", slippagePercent(100))
	assert.Equal(t, "0.005", slippageFraction(50))
	assert.Equal(t, "0.0125", slippageFraction(125))
}

func TestUSDImpact(t *testing.T) {
	assert.Equal(t, 0.4, usdImpact("2500", "2490"))
	assert.Equal(t, -0.2, usdImpact("1000", "1002"))
	assert.Equal(t, 0.0, usdImpact("", "2490"))
	assert.Equal(t, 0.0, usdImpact("0", "1"))
}
