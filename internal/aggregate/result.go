package aggregate

import (
	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

// assemble packages settled outcomes. All follows completion order; Failed follows
// registration order so the failure list is stable between identical requests.
func assemble(outcomes []outcome, order []int) model.AggregationResult {
	result := model.AggregationResult{
		All:            make([]model.Quote, 0, len(outcomes)),
		Failed:         make([]model.ProviderFailure, 0),
		TotalProviders: len(outcomes),
	}

	for _, i := range order {
		if outcomes[i].kind == OutcomeOK {
			result.All = append(result.All, outcomes[i].quote)
		}
	}
	for _, out := range outcomes {
		if out.kind != OutcomeOK {
			result.Failed = append(result.Failed, model.ProviderFailure{Provider: out.provider, Reason: out.reason})
		}
	}
	return result
}

// ErrorBody is the machine-readable error attached to unsuccessful responses.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the wire shape returned to API callers.
type Response struct {
	Success         bool                    `json:"success"`
	Data            *model.Quote            `json:"data,omitempty"`
	AllQuotes       []model.Quote           `json:"allQuotes,omitempty"`
	Provider        string                  `json:"provider,omitempty"`
	TotalProviders  int                     `json:"totalProviders"`
	FailedProviders []model.ProviderFailure `json:"failedProviders"`
	Error           *ErrorBody              `json:"error,omitempty"`
}

// NewResponse converts a result into its wire shape. Success is false when no
// route was found.
func NewResponse(result model.AggregationResult) Response {
	resp := Response{
		Success:         result.HasRoute(),
		Data:            result.Best,
		AllQuotes:       result.All,
		TotalProviders:  result.TotalProviders,
		FailedProviders: result.Failed,
	}
	if resp.FailedProviders == nil {
		resp.FailedProviders = []model.ProviderFailure{}
	}
	if result.Best != nil {
		resp.Provider = result.Best.Provider
	}
	return resp
}
