// Package analytics records one event per aggregation and ships them in batches to a
// hosted collector.
package analytics

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

// QuoteEvent summarizes one aggregation request.
type QuoteEvent struct {
	RequestID string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`

	FromChain  uint64 `json:"fromChain"`
	ToChain    uint64 `json:"toChain"`
	FromToken  string `json:"fromToken"`
	ToToken    string `json:"toToken"`
	FromAmount string `json:"fromAmount"`

	BestProvider string `json:"bestProvider,omitempty"`
	BestAmount   string `json:"bestAmount,omitempty"`
	Fingerprint  string `json:"fingerprint,omitempty"`

	TotalProviders int                     `json:"totalProviders"`
	Quoted         int                     `json:"quoted"`
	Failed         []model.ProviderFailure `json:"failed,omitempty"`

	LatencyMs int64 `json:"latencyMs"`
}

// NewQuoteEvent builds the event for a finished aggregation.
func NewQuoteEvent(requestID string, in model.SwapIntent, res model.AggregationResult, elapsed time.Duration) QuoteEvent {
	ev := QuoteEvent{
		RequestID:      requestID,
		Timestamp:      time.Now().UTC(),
		FromChain:      in.FromChain,
		ToChain:        in.ToChain,
		FromToken:      in.FromToken,
		ToToken:        in.ToToken,
		FromAmount:     in.FromAmount,
		TotalProviders: res.TotalProviders,
		Quoted:         len(res.All),
		Failed:         res.Failed,
		LatencyMs:      elapsed.Milliseconds(),
	}
	if res.Best != nil {
		ev.BestProvider = res.Best.Provider
		ev.BestAmount = res.Best.ToAmount
		ev.Fingerprint = Fingerprint(*res.Best)
	}
	return ev
}

// Fingerprint is the Keccak256 hash of the quote's economic content. Latency and
// informational fields are excluded so the same route hashes the same on every request.
func Fingerprint(q model.Quote) string {
	parts := []string{
		q.Provider,
		q.FromAmount,
		q.ToAmount,
		q.MinimumReceived,
		strings.ToLower(strings.Join(q.Route, ">")),
	}
	if q.Tx != nil {
		parts = append(parts, strings.ToLower(q.Tx.To), strings.ToLower(q.Tx.Data), q.Tx.Value)
	}
	return crypto.Keccak256Hash([]byte(strings.Join(parts, "|"))).Hex()
}
