package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

// ValidateQuote checks a quote against the shared schema. A failure here is a
// programming error in the adapter that produced q, so the error wraps
// model.ErrContractViolation rather than being treated as a provider outage.
func ValidateQuote(q model.Quote, in model.SwapIntent) error {
	violation := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: provider %q: %s", model.ErrContractViolation, q.Provider, fmt.Sprintf(format, args...))
	}

	if q.Provider == "" {
		return violation("missing provider identifier")
	}

	toAmount, ok := q.Amount()
	if !ok {
		return violation("toAmount %q is not a non-negative integer", q.ToAmount)
	}

	minReceived, ok := model.ParseAmount(q.MinimumReceived)
	if !ok {
		return violation("minimumReceived %q is not a non-negative integer", q.MinimumReceived)
	}
	if minReceived.Cmp(toAmount) > 0 {
		return violation("minimumReceived %s exceeds toAmount %s", q.MinimumReceived, q.ToAmount)
	}

	if math.IsNaN(q.PriceImpactPercent) || math.IsInf(q.PriceImpactPercent, 0) {
		return violation("priceImpactPercent is not finite")
	}

	if len(q.Route) < 2 {
		return violation("route has %d hops, need at least 2", len(q.Route))
	}
	if !strings.EqualFold(q.Route[0], in.FromToken) {
		return violation("route starts at %s, expected %s", q.Route[0], in.FromToken)
	}
	if !strings.EqualFold(q.Route[len(q.Route)-1], in.ToToken) {
		return violation("route ends at %s, expected %s", q.Route[len(q.Route)-1], in.ToToken)
	}

	return nil
}
