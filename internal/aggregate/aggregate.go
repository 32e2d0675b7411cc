// Package aggregate fans a swap intent out to every eligible quote provider, collects
// their outcomes and selects the best route.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/swap-quote-aggregator/internal/circuitbreaker"
	"github.com/yourorg/swap-quote-aggregator/internal/model"
	"github.com/yourorg/swap-quote-aggregator/internal/otel"
	"github.com/yourorg/swap-quote-aggregator/internal/validation"
)

// DefaultAdapterTimeout bounds a single provider call.
const DefaultAdapterTimeout = 8 * time.Second

// Adapter is the capability every quote provider implements.
//
// Quote must not retain or modify intent, must return once ctx is done, and should
// report failures as *model.AdapterError.
type Adapter interface {
	Name() string
	// Supports is a static check; it must not perform I/O.
	Supports(fromChain, toChain uint64) bool
	Quote(ctx context.Context, intent model.SwapIntent) (model.Quote, error)
}

// OutcomeKind classifies how a provider call settled.
type OutcomeKind string

const (
	OutcomeOK        OutcomeKind = "ok"
	OutcomeError     OutcomeKind = "error"
	OutcomeTimeout   OutcomeKind = "timeout"
	OutcomeSkipped   OutcomeKind = "skipped"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Failure reasons with fixed wording.
const (
	ReasonTimeout     = "timeout"
	ReasonCancelled   = "cancelled"
	ReasonCircuitOpen = "circuit_open"
)

// Observer receives one callback per settled provider call.
type Observer interface {
	ObserveProvider(provider string, kind OutcomeKind, elapsed time.Duration)
}

// Phase is the lifecycle of one aggregation request.
type Phase string

const (
	PhaseCreated    Phase = "created"
	PhaseDispatched Phase = "dispatched"
	PhaseCollecting Phase = "collecting"
	PhaseCompleted  Phase = "completed"
)

// Options configures an Aggregator.
type Options struct {
	// AdapterTimeout bounds each provider call. Zero means DefaultAdapterTimeout.
	AdapterTimeout time.Duration

	// MaxConcurrency caps in-flight provider calls. Zero means unlimited.
	MaxConcurrency int

	// Preference is the provider order used as the last ranking tie-break.
	Preference []string

	// Breakers, when set, skip providers whose circuit is open.
	Breakers *circuitbreaker.Set

	Observer Observer
}

// Aggregator is the parallel quote orchestrator. It is safe for concurrent use;
// its adapter list is fixed at construction.
type Aggregator struct {
	adapters []Adapter
	opts     Options
	selector *Selector
}

// New creates an Aggregator over adapters.
func New(adapters []Adapter, opts Options) *Aggregator {
	if opts.AdapterTimeout <= 0 {
		opts.AdapterTimeout = DefaultAdapterTimeout
	}
	registered := make([]Adapter, len(adapters))
	copy(registered, adapters)

	return &Aggregator{
		adapters: registered,
		opts:     opts,
		selector: NewSelector(opts.Preference),
	}
}

// Adapters returns the registered adapters in registration order.
func (a *Aggregator) Adapters() []Adapter {
	out := make([]Adapter, len(a.adapters))
	copy(out, a.adapters)
	return out
}

// Selector returns the ranking policy used by this aggregator.
func (a *Aggregator) Selector() *Selector {
	return a.selector
}

// outcome is the settled result of one provider call.
type outcome struct {
	provider string
	kind     OutcomeKind
	quote    model.Quote
	err      error
	reason   string
	elapsed  time.Duration
}

// Aggregate validates intent, queries every eligible provider concurrently and
// selects the best quote.
//
// Provider failures never produce an error; they are reported in the result.
// Errors are returned only for caller mistakes (model.ErrInvalidIntent,
// model.ErrUnsupportedChainPair), a cancelled ctx, or a quote that violates the
// schema (model.ErrContractViolation).
func (a *Aggregator) Aggregate(ctx context.Context, intent model.SwapIntent) (model.AggregationResult, error) {
	intent = validation.NormalizeIntent(intent)
	if err := validation.ValidateIntent(intent); err != nil {
		return model.AggregationResult{}, err
	}

	eligible := a.eligible(intent)
	if len(eligible) == 0 {
		return model.AggregationResult{}, fmt.Errorf("%w: %d -> %d", model.ErrUnsupportedChainPair, intent.FromChain, intent.ToChain)
	}

	ctx, span := otel.Tracer().Start(ctx, "aggregate.quotes", trace.WithAttributes(
		attribute.Int64("swap.from_chain", int64(intent.FromChain)),
		attribute.Int64("swap.to_chain", int64(intent.ToChain)),
		attribute.Int("swap.providers", len(eligible)),
	))
	defer span.End()
	span.AddEvent(string(PhaseCreated))

	start := time.Now()
	outcomes, order := a.dispatch(ctx, span, intent, eligible)

	if errors.Is(ctx.Err(), context.Canceled) {
		span.SetStatus(codes.Error, "cancelled")
		return assemble(outcomes, order), fmt.Errorf("aggregation cancelled: %w", ctx.Err())
	}

	result := assemble(outcomes, order)

	best, err := a.selector.Select(result.All, intent)
	if err != nil {
		otel.RecordError(ctx, err)
		span.SetStatus(codes.Error, "contract violation")
		logrus.WithError(err).Error("Provider returned a malformed quote")
		return result, err
	}
	result.Best = best
	span.AddEvent(string(PhaseCompleted))

	fields := logrus.Fields{
		"providers": result.TotalProviders,
		"quotes":    len(result.All),
		"failed":    len(result.Failed),
		"latency":   time.Since(start).String(),
	}
	if best != nil {
		fields["best_provider"] = best.Provider
		fields["best_amount"] = best.ToAmount
		span.SetAttributes(attribute.String("swap.best_provider", best.Provider))
		logrus.WithFields(fields).Info("Selected best route")
	} else {
		logrus.WithFields(fields).Info("No viable route")
	}

	return result, nil
}

// eligible returns the adapters whose capability check accepts the chain pair.
func (a *Aggregator) eligible(intent model.SwapIntent) []Adapter {
	out := make([]Adapter, 0, len(a.adapters))
	for _, ad := range a.adapters {
		if ad.Supports(intent.FromChain, intent.ToChain) {
			out = append(out, ad)
		}
	}
	return out
}

// dispatch runs every adapter concurrently and waits until all have settled.
// Each goroutine owns exactly one slot of outcomes; completion order is recorded
// through a buffered channel.
func (a *Aggregator) dispatch(ctx context.Context, span trace.Span, intent model.SwapIntent, adapters []Adapter) ([]outcome, []int) {
	outcomes := make([]outcome, len(adapters))
	completed := make(chan int, len(adapters))

	var g errgroup.Group
	if a.opts.MaxConcurrency > 0 {
		g.SetLimit(a.opts.MaxConcurrency)
	}

	span.AddEvent(string(PhaseDispatched))
	for i, ad := range adapters {
		i, ad := i, ad
		g.Go(func() error {
			outcomes[i] = a.call(ctx, ad, intent)
			completed <- i
			return nil
		})
	}

	span.AddEvent(string(PhaseCollecting))
	_ = g.Wait()
	close(completed)

	order := make([]int, 0, len(adapters))
	for i := range completed {
		order = append(order, i)
	}
	return outcomes, order
}

// call invokes one adapter under its own deadline. The adapter runs in a separate
// goroutine so a call that ignores ctx is abandoned rather than waited on.
func (a *Aggregator) call(ctx context.Context, ad Adapter, intent model.SwapIntent) outcome {
	name := ad.Name()
	log := logrus.WithField("provider", name)

	breaker := a.opts.Breakers.Get(name)
	if breaker != nil {
		if err := breaker.Allow(); err != nil {
			log.Debug("Skipping provider with open circuit")
			a.observe(name, OutcomeSkipped, 0)
			return outcome{provider: name, kind: OutcomeSkipped, reason: ReasonCircuitOpen}
		}
	}

	ctx, span := otel.Tracer().Start(ctx, "adapter.quote", trace.WithAttributes(
		attribute.String("swap.provider", name),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, a.opts.AdapterTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{provider: name, kind: OutcomeError, reason: fmt.Sprintf("panic: %v", r)}
			}
		}()
		q, err := ad.Quote(callCtx, intent)
		if err != nil {
			done <- classify(name, err)
			return
		}
		done <- outcome{provider: name, kind: OutcomeOK, quote: q}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		out = classify(name, callCtx.Err())
	}
	out.elapsed = time.Since(start)
	if out.kind == OutcomeOK {
		out.quote.LatencyMs = out.elapsed.Milliseconds()
	}

	a.recordHealth(breaker, out)
	a.observe(name, out.kind, out.elapsed)

	if out.kind != OutcomeOK {
		span.SetStatus(codes.Error, out.reason)
		log.WithFields(logrus.Fields{
			"outcome": out.kind,
			"reason":  out.reason,
			"latency": out.elapsed.String(),
		}).Warn("Provider failed to quote")
	} else {
		log.WithFields(logrus.Fields{
			"to_amount": out.quote.ToAmount,
			"latency":   out.elapsed.String(),
		}).Debug("Provider quoted")
	}
	return out
}

// classify maps an adapter error to an outcome. Deadline and cancellation errors
// surfaced by the adapter itself are treated the same as the orchestrator's own.
func classify(provider string, err error) outcome {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return outcome{provider: provider, kind: OutcomeTimeout, reason: ReasonTimeout}
	case errors.Is(err, context.Canceled):
		return outcome{provider: provider, kind: OutcomeCancelled, reason: ReasonCancelled}
	}
	return outcome{provider: provider, kind: OutcomeError, err: err, reason: err.Error()}
}

// recordHealth feeds the breaker. Expected adapter errors (no liquidity, 4xx) show
// the provider is up and count as successes.
func (a *Aggregator) recordHealth(breaker *circuitbreaker.CircuitBreaker, out outcome) {
	if breaker == nil {
		return
	}
	switch out.kind {
	case OutcomeOK:
		breaker.RecordSuccess()
	case OutcomeTimeout:
		breaker.RecordFailure(out.reason)
	case OutcomeError:
		var ae *model.AdapterError
		if errors.As(out.err, &ae) && ae.Expected() {
			breaker.RecordSuccess()
			return
		}
		breaker.RecordFailure(out.reason)
	}
}

func (a *Aggregator) observe(provider string, kind OutcomeKind, elapsed time.Duration) {
	if a.opts.Observer != nil {
		a.opts.Observer.ObserveProvider(provider, kind, elapsed)
	}
}
