// Package validation checks swap intents before dispatch and quotes before ranking.
package validation

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

// NormalizeIntent trims whitespace from the free-form fields. It returns a copy.
func NormalizeIntent(in model.SwapIntent) model.SwapIntent {
	in.FromToken = strings.TrimSpace(in.FromToken)
	in.ToToken = strings.TrimSpace(in.ToToken)
	in.FromAmount = strings.TrimSpace(in.FromAmount)
	in.FromAddress = strings.TrimSpace(in.FromAddress)
	in.ToAddress = strings.TrimSpace(in.ToAddress)
	return in
}

// ValidateIntent reports every caller error in the intent. The returned error wraps
// model.ErrInvalidIntent. Addresses are opaque here; only presence is checked.
func ValidateIntent(in model.SwapIntent) error {
	var problems []string

	if in.FromChain == 0 {
		problems = append(problems, "fromChain is required")
	}
	if in.ToChain == 0 {
		problems = append(problems, "toChain is required")
	}
	if in.FromToken == "" {
		problems = append(problems, "fromToken is required")
	}
	if in.ToToken == "" {
		problems = append(problems, "toToken is required")
	}
	if in.FromAddress == "" {
		problems = append(problems, "fromAddress is required")
	}

	switch amount, ok := in.Amount(); {
	case in.FromAmount == "":
		problems = append(problems, "fromAmount is required")
	case !ok:
		problems = append(problems, "fromAmount must be an integer in the token's smallest unit")
	case amount.Sign() <= 0:
		problems = append(problems, "fromAmount must be greater than zero")
	}

	if in.SlippageBps > model.MaxSlippageBps {
		problems = append(problems, fmt.Sprintf("slippage must be between 0 and 100 percent, got %d bps", in.SlippageBps))
	}

	if len(problems) == 0 {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"from_chain": in.FromChain,
		"to_chain":   in.ToChain,
		"problems":   len(problems),
	}).Debug("Rejected swap intent")

	return fmt.Errorf("%w: %s", model.ErrInvalidIntent, strings.Join(problems, "; "))
}
