package aggregate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/swap-quote-aggregator/internal/circuitbreaker"
	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

type stubAdapter struct {
	name     string
	chains   map[uint64]bool
	quoteFn  func(ctx context.Context, intent model.SwapIntent) (model.Quote, error)
	calls    atomic.Int32
	lastSeen atomic.Value
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Supports(fromChain, toChain uint64) bool {
	if s.chains == nil {
		return fromChain == toChain
	}
	return fromChain == toChain && s.chains[fromChain]
}

func (s *stubAdapter) Quote(ctx context.Context, intent model.SwapIntent) (model.Quote, error) {
	s.calls.Add(1)
	s.lastSeen.Store(intent)
	return s.quoteFn(ctx, intent)
}

func returning(amount string) func(context.Context, model.SwapIntent) (model.Quote, error) {
	return func(_ context.Context, in model.SwapIntent) (model.Quote, error) {
		return model.Quote{
			ToAmount:        amount,
			MinimumReceived: amount,
			Route:           []string{in.FromToken, in.ToToken},
		}, nil
	}
}

func failing(err error) func(context.Context, model.SwapIntent) (model.Quote, error) {
	return func(context.Context, model.SwapIntent) (model.Quote, error) {
		return model.Quote{}, err
	}
}

// named fills in the provider field the way real adapters do.
func named(name string, fn func(context.Context, model.SwapIntent) (model.Quote, error)) *stubAdapter {
	return &stubAdapter{
		name: name,
		quoteFn: func(ctx context.Context, in model.SwapIntent) (model.Quote, error) {
			q, err := fn(ctx, in)
			if err == nil {
				q.Provider = name
			}
			return q, err
		},
	}
}

func testIntent() model.SwapIntent {
	return model.SwapIntent{
		FromChain:   1,
		ToChain:     1,
		FromToken:   "0xA",
		ToToken:     "0xB",
		FromAmount:  "1000000000000000000",
		FromAddress: "0x1",
	}
}

func adapters(stubs ...*stubAdapter) []Adapter {
	out := make([]Adapter, len(stubs))
	for i, s := range stubs {
		out[i] = s
	}
	return out
}

func TestAggregate_ConcreteScenario(t *testing.T) {
	agg := New(adapters(
		named("a", returning("95")),
		named("b", returning("100")),
		named("c", failing(model.NewAdapterError("c", model.KindHTTPStatus, "upstream down"))),
	), Options{AdapterTimeout: time.Second})

	result, err := agg.Aggregate(context.Background(), testIntent())
	require.NoError(t, err)

	require.NotNil(t, result.Best)
	assert.Equal(t, "100", result.Best.ToAmount)
	assert.Equal(t, "b", result.Best.Provider)
	assert.Len(t, result.Failed, 1)
	assert.Equal(t, "c", result.Failed[0].Provider)
	assert.Len(t, result.All, 2)
	assert.Equal(t, 3, result.TotalProviders)

	resp := NewResponse(result)
	assert.True(t, resp.Success)
	assert.Equal(t, "b", resp.Provider)
	assert.Len(t, resp.AllQuotes, 2)
	assert.Len(t, resp.FailedProviders, 1)
}

func TestAggregate_PartialFailureIsolation(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	panicking := &stubAdapter{name: "p3", quoteFn: func(context.Context, model.SwapIntent) (model.Quote, error) {
		panic("nil map write")
	}}
	hanging := &stubAdapter{name: "p4", quoteFn: func(context.Context, model.SwapIntent) (model.Quote, error) {
		<-release // ignores ctx on purpose
		return model.Quote{}, nil
	}}

	agg := New(adapters(
		named("p1", returning("10")),
		named("p2", returning("20")),
		panicking,
		hanging,
		named("p5", returning("30")),
	), Options{AdapterTimeout: 100 * time.Millisecond})

	start := time.Now()
	result, err := agg.Aggregate(context.Background(), testIntent())
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Less(t, elapsed, 2*time.Second, "A hung adapter must not hold the request past its timeout")

	providers := make([]string, 0, len(result.All))
	for _, q := range result.All {
		providers = append(providers, q.Provider)
	}
	assert.ElementsMatch(t, []string{"p1", "p2", "p5"}, providers)

	require.Len(t, result.Failed, 2)
	assert.Equal(t, "p3", result.Failed[0].Provider)
	assert.Contains(t, result.Failed[0].Reason, "panic")
	assert.Equal(t, model.ProviderFailure{Provider: "p4", Reason: ReasonTimeout}, result.Failed[1])

	require.NotNil(t, result.Best)
	assert.Equal(t, "p5", result.Best.Provider)
}

func TestAggregate_NoRoute(t *testing.T) {
	agg := New(adapters(
		named("a", returning("0")),
		named("b", failing(model.NewAdapterError("b", model.KindNoLiquidity, "no route"))),
		named("c", returning("0")),
	), Options{AdapterTimeout: time.Second})

	result, err := agg.Aggregate(context.Background(), testIntent())
	require.NoError(t, err, "No liquidity is a result, not an error")

	assert.Nil(t, result.Best)
	assert.False(t, result.HasRoute())
	assert.Len(t, result.All, 2, "Zero-amount quotes stay visible in the full list")
	assert.Len(t, result.Failed, 1)

	resp := NewResponse(result)
	assert.False(t, resp.Success)
	assert.Nil(t, resp.Data)
	assert.Empty(t, resp.Provider)
}

func TestAggregate_InputRejection(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.SwapIntent)
	}{
		{"zero amount", func(in *model.SwapIntent) { in.FromAmount = "0" }},
		{"negative amount", func(in *model.SwapIntent) { in.FromAmount = "-5" }},
		{"fractional amount", func(in *model.SwapIntent) { in.FromAmount = "1.5" }},
		{"missing from token", func(in *model.SwapIntent) { in.FromToken = "" }},
		{"missing to token", func(in *model.SwapIntent) { in.ToToken = "  " }},
		{"missing chain", func(in *model.SwapIntent) { in.FromChain = 0 }},
		{"missing sender", func(in *model.SwapIntent) { in.FromAddress = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := named("a", returning("100"))
			agg := New(adapters(stub), Options{})

			in := testIntent()
			tt.mutate(&in)

			_, err := agg.Aggregate(context.Background(), in)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrInvalidIntent)
			assert.Zero(t, stub.calls.Load(), "Invalid intents must never reach a provider")
		})
	}
}

func TestAggregate_UnsupportedChainPair(t *testing.T) {
	stub := named("a", returning("100"))
	stub.chains = map[uint64]bool{1: true}
	agg := New(adapters(stub), Options{})

	in := testIntent()
	in.FromChain, in.ToChain = 137, 137

	_, err := agg.Aggregate(context.Background(), in)
	assert.ErrorIs(t, err, model.ErrUnsupportedChainPair)
	assert.Zero(t, stub.calls.Load())
}

func TestAggregate_FiltersUnsupportedAdapters(t *testing.T) {
	mainnet := named("mainnet-only", returning("100"))
	mainnet.chains = map[uint64]bool{1: true}
	polygon := named("polygon-only", returning("500"))
	polygon.chains = map[uint64]bool{137: true}

	agg := New(adapters(mainnet, polygon), Options{})
	result, err := agg.Aggregate(context.Background(), testIntent())
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalProviders)
	assert.Zero(t, polygon.calls.Load())
	assert.Empty(t, result.Failed, "Filtered adapters are not failures")
}

func TestAggregate_RequireExecutable(t *testing.T) {
	withTx := named("exec", func(_ context.Context, in model.SwapIntent) (model.Quote, error) {
		return model.Quote{
			ToAmount:        "90",
			MinimumReceived: "89",
			Route:           []string{in.FromToken, in.ToToken},
			Tx:              &model.ExecutionTx{To: "0xrouter", Data: "0x", Value: "0"},
		}, nil
	})
	pricingOnly := named("pricing", returning("100"))

	agg := New(adapters(withTx, pricingOnly), Options{})

	in := testIntent()
	result, err := agg.Aggregate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "pricing", result.Best.Provider)

	in.RequireExecutable = true
	result, err = agg.Aggregate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "exec", result.Best.Provider)
}

func TestAggregate_ContractViolation(t *testing.T) {
	broken := named("broken", func(context.Context, model.SwapIntent) (model.Quote, error) {
		return model.Quote{ToAmount: "100", MinimumReceived: "100", Route: []string{"0xA"}}, nil
	})
	agg := New(adapters(named("ok", returning("50")), broken), Options{})

	_, err := agg.Aggregate(context.Background(), testIntent())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrContractViolation)
}

func TestAggregate_AdapterReceivesCopy(t *testing.T) {
	mutating := &stubAdapter{name: "m", quoteFn: func(_ context.Context, in model.SwapIntent) (model.Quote, error) {
		in.FromToken = "0xdead"
		return model.Quote{}, errors.New("gave up")
	}}
	other := named("o", returning("7"))

	agg := New(adapters(mutating, other), Options{})
	result, err := agg.Aggregate(context.Background(), testIntent())
	require.NoError(t, err)

	seen := other.lastSeen.Load().(model.SwapIntent)
	assert.Equal(t, "0xA", seen.FromToken)
	assert.Equal(t, "0x1", seen.Recipient(), "Recipient falls back to the sender")
	require.NotNil(t, result.Best)
}

func TestAggregate_CircuitOpenSkipsProvider(t *testing.T) {
	flaky := named("flaky", failing(model.NewAdapterError("flaky", model.KindTransport, "connection refused")))
	healthy := named("healthy", returning("42"))

	breakers := circuitbreaker.NewSet([]string{"flaky", "healthy"}, func(name string) *circuitbreaker.CircuitBreaker {
		return circuitbreaker.New(name, circuitbreaker.Thresholds{FailureThreshold: 1}).WithResetDelay(time.Hour)
	})
	agg := New(adapters(flaky, healthy), Options{Breakers: breakers})

	_, err := agg.Aggregate(context.Background(), testIntent())
	require.NoError(t, err)
	require.Equal(t, circuitbreaker.StateOpen, breakers.Get("flaky").GetState())

	result, err := agg.Aggregate(context.Background(), testIntent())
	require.NoError(t, err)
	assert.Equal(t, int32(1), flaky.calls.Load(), "An open circuit must not be called")
	assert.Equal(t, []model.ProviderFailure{{Provider: "flaky", Reason: ReasonCircuitOpen}}, result.Failed)
	assert.Equal(t, "healthy", result.Best.Provider)
}

func TestAggregate_ExpectedErrorsDoNotTrip(t *testing.T) {
	dry := named("dry", failing(model.NewAdapterError("dry", model.KindNoLiquidity, "no route")))
	breakers := circuitbreaker.NewSet([]string{"dry"}, func(name string) *circuitbreaker.CircuitBreaker {
		return circuitbreaker.New(name, circuitbreaker.Thresholds{FailureThreshold: 1})
	})
	agg := New(adapters(dry), Options{Breakers: breakers})

	for i := 0; i < 3; i++ {
		_, err := agg.Aggregate(context.Background(), testIntent())
		require.NoError(t, err)
	}
	assert.Equal(t, circuitbreaker.StateClosed, breakers.Get("dry").GetState())
	assert.Equal(t, int32(3), dry.calls.Load())
}

func TestAggregate_Cancellation(t *testing.T) {
	blocking := &stubAdapter{name: "slow", quoteFn: func(ctx context.Context, _ model.SwapIntent) (model.Quote, error) {
		<-ctx.Done()
		return model.Quote{}, ctx.Err()
	}}
	agg := New(adapters(blocking), Options{AdapterTimeout: 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	result, err := agg.Aggregate(ctx, testIntent())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []model.ProviderFailure{{Provider: "slow", Reason: ReasonCancelled}}, result.Failed)
}

func TestAggregate_ConcurrentDispatch(t *testing.T) {
	const n = 4
	var started sync.WaitGroup
	started.Add(n)

	// Every adapter waits for all the others to start; sequential dispatch would time out.
	barrier := func(ctx context.Context, in model.SwapIntent) (model.Quote, error) {
		started.Done()
		waited := make(chan struct{})
		go func() { started.Wait(); close(waited) }()
		select {
		case <-waited:
		case <-ctx.Done():
			return model.Quote{}, ctx.Err()
		}
		return returning("1")(ctx, in)
	}

	stubs := make([]*stubAdapter, n)
	for i := range stubs {
		stubs[i] = named(string(rune('a'+i)), barrier)
	}
	agg := New(adapters(stubs...), Options{AdapterTimeout: 2 * time.Second})

	result, err := agg.Aggregate(context.Background(), testIntent())
	require.NoError(t, err)
	assert.Len(t, result.All, n)
	assert.Empty(t, result.Failed)
}

type recordingObserver struct {
	mu    sync.Mutex
	kinds map[string]OutcomeKind
}

func (r *recordingObserver) ObserveProvider(provider string, kind OutcomeKind, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[provider] = kind
}

func TestAggregate_Observer(t *testing.T) {
	obs := &recordingObserver{kinds: map[string]OutcomeKind{}}
	agg := New(adapters(
		named("good", returning("5")),
		named("bad", failing(errors.New("boom"))),
	), Options{Observer: obs})

	_, err := agg.Aggregate(context.Background(), testIntent())
	require.NoError(t, err)

	assert.Equal(t, map[string]OutcomeKind{"good": OutcomeOK, "bad": OutcomeError}, obs.kinds)
}

func TestAggregate_RecordsLatency(t *testing.T) {
	slow := named("slow", func(ctx context.Context, in model.SwapIntent) (model.Quote, error) {
		time.Sleep(20 * time.Millisecond)
		return returning("3")(ctx, in)
	})
	agg := New(adapters(slow), Options{})

	result, err := agg.Aggregate(context.Background(), testIntent())
	require.NoError(t, err)
	require.NotNil(t, result.Best)
	assert.GreaterOrEqual(t, result.Best.LatencyMs, int64(20))
}

func TestAssemble_CompletionOrder(t *testing.T) {
	outcomes := []outcome{
		{provider: "a", kind: OutcomeOK, quote: model.Quote{Provider: "a"}},
		{provider: "b", kind: OutcomeTimeout, reason: ReasonTimeout},
		{provider: "c", kind: OutcomeOK, quote: model.Quote{Provider: "c"}},
		{provider: "d", kind: OutcomeSkipped, reason: ReasonCircuitOpen},
	}

	result := assemble(outcomes, []int{2, 1, 0, 3})

	require.Len(t, result.All, 2)
	assert.Equal(t, "c", result.All[0].Provider, "Quotes keep completion order")
	assert.Equal(t, "a", result.All[1].Provider)
	assert.Equal(t, []model.ProviderFailure{
		{Provider: "b", Reason: ReasonTimeout},
		{Provider: "d", Reason: ReasonCircuitOpen},
	}, result.Failed)
	assert.Equal(t, 4, result.TotalProviders)
}
