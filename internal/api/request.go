package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

const maxBodyBytes = 64 << 10

var errBadRequest = errors.New("bad request")

// quoteRequest is the body of POST /api/v1/quote. GET uses the same names as query
// parameters.
type quoteRequest struct {
	FromChain   uint64 `json:"fromChain"`
	ToChain     uint64 `json:"toChain"`
	FromToken   string `json:"fromToken"`
	ToToken     string `json:"toToken"`
	FromAmount  string `json:"fromAmount"`
	FromAddress string `json:"fromAddress"`
	ToAddress   string `json:"toAddress"`

	// Slippage is a percent; nil means the configured default.
	Slippage *float64 `json:"slippage"`

	RequireExecutable bool `json:"requireExecutable"`
}

// parseQuoteRequest reads the intent from the query string (GET) or JSON body (POST).
// Errors wrap errBadRequest. Both chain ids must be present; other semantic checks
// are left to the aggregator.
func parseQuoteRequest(r *http.Request, defaultSlippageBps uint32) (model.SwapIntent, error) {
	var req quoteRequest
	var err error

	switch r.Method {
	case http.MethodPost:
		req, err = decodeBody(r)
	default:
		req, err = decodeQuery(r)
	}
	if err != nil {
		return model.SwapIntent{}, err
	}

	if req.FromChain == 0 {
		return model.SwapIntent{}, fmt.Errorf("%w: fromChain is required", errBadRequest)
	}
	if req.ToChain == 0 {
		return model.SwapIntent{}, fmt.Errorf("%w: toChain is required", errBadRequest)
	}

	bps := defaultSlippageBps
	if req.Slippage != nil {
		if bps, err = SlippagePercentToBps(*req.Slippage); err != nil {
			return model.SwapIntent{}, err
		}
	}

	return model.SwapIntent{
		FromChain:         req.FromChain,
		ToChain:           req.ToChain,
		FromToken:         req.FromToken,
		ToToken:           req.ToToken,
		FromAmount:        req.FromAmount,
		FromAddress:       req.FromAddress,
		ToAddress:         req.ToAddress,
		SlippageBps:       bps,
		RequireExecutable: req.RequireExecutable,
	}, nil
}

func decodeBody(r *http.Request) (quoteRequest, error) {
	var req quoteRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return req, nil
}

func decodeQuery(r *http.Request) (quoteRequest, error) {
	q := r.URL.Query()
	req := quoteRequest{
		FromToken:   q.Get("fromToken"),
		ToToken:     q.Get("toToken"),
		FromAmount:  q.Get("fromAmount"),
		FromAddress: q.Get("fromAddress"),
		ToAddress:   q.Get("toAddress"),
	}

	var err error
	if req.FromChain, err = parseChain(q.Get("fromChain"), "fromChain"); err != nil {
		return req, err
	}
	if req.ToChain, err = parseChain(q.Get("toChain"), "toChain"); err != nil {
		return req, err
	}

	if s := q.Get("slippage"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return req, fmt.Errorf("%w: slippage %q is not a number", errBadRequest, s)
		}
		req.Slippage = &f
	}
	if s := q.Get("requireExecutable"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return req, fmt.Errorf("%w: requireExecutable %q is not a boolean", errBadRequest, s)
		}
		req.RequireExecutable = b
	}
	return req, nil
}

func parseChain(s, field string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a chain id", errBadRequest, field, s)
	}
	return id, nil
}

// SlippagePercentToBps converts a percent to basis points, 0.5 -> 50. Values above 100% are
// passed through so intent validation reports them.
func SlippagePercentToBps(percent float64) (uint32, error) {
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return 0, fmt.Errorf("%w: slippage must be a finite number", errBadRequest)
	}
	d := decimal.NewFromFloat(percent)
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: slippage must not be negative", errBadRequest)
	}
	bps := d.Shift(2).Round(0)
	if bps.GreaterThan(decimal.NewFromInt(int64(model.MaxSlippageBps) + 1)) {
		return model.MaxSlippageBps + 1, nil
	}
	return uint32(bps.IntPart()), nil
}
