// Package fetch implements the quote provider adapters. Each adapter calls exactly one
// aggregator API and maps its payload into model.Quote, failing closed with a
// *model.AdapterError on anything unexpected.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/swap-quote-aggregator/internal/config"
	"github.com/yourorg/swap-quote-aggregator/internal/model"
	"github.com/yourorg/swap-quote-aggregator/internal/types"
)

const maxBodyBytes = 4 << 20

// Option customizes an adapter at construction.
type Option func(*base)

// WithRetryMax overrides how many times a request is retried on 5xx or transport errors.
func WithRetryMax(n int) Option {
	return func(b *base) { b.retryMax = n }
}

// WithRetryClient replaces the HTTP client entirely.
func WithRetryClient(c *retryablehttp.Client) Option {
	return func(b *base) { b.client = c }
}

// base carries what every HTTP adapter shares. It is immutable after construction.
type base struct {
	name     string
	baseURL  string
	apiKey   string
	chains   types.ChainSet
	client   *retryablehttp.Client
	limiter  *rate.Limiter
	retryMax int
}

func newBase(pc config.ProviderConfig, opts ...Option) base {
	b := base{
		name:     pc.Name,
		baseURL:  pc.BaseURL,
		apiKey:   pc.APIKey,
		chains:   types.NewChainSet(pc.Chains...),
		retryMax: 2,
	}
	if pc.RPS > 0 {
		burst := int(pc.RPS)
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(pc.RPS), burst)
	}
	for _, opt := range opts {
		opt(&b)
	}
	if b.client == nil {
		b.client = newRetryClient(b.retryMax)
	}
	return b
}

// newRetryClient creates a new HTTP client with retry capabilities. The last response
// is passed through after retries so callers can map its status.
func newRetryClient(retryMax int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.Logger = nil
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c
}

func (b *base) Name() string { return b.name }

// Chains returns the configured chain allow-list.
func (b *base) Chains() []uint64 { return b.chains.IDs() }

// supportsSameChain is the capability check for single-network DEX aggregators.
func (b *base) supportsSameChain(fromChain, toChain uint64) bool {
	return fromChain == toChain && b.chains.Contains(fromChain)
}

func (b *base) fail(kind model.ErrorKind, format string, args ...interface{}) *model.AdapterError {
	return model.NewAdapterError(b.name, kind, format, args...)
}

// checkEVMIntent rejects intents an EVM provider would refuse anyway.
func (b *base) checkEVMIntent(in model.SwapIntent) error {
	fields := [...]struct{ name, addr string }{
		{"fromToken", in.FromToken},
		{"toToken", in.ToToken},
		{"fromAddress", in.FromAddress},
		{"toAddress", in.Recipient()},
	}
	for _, f := range fields {
		if !common.IsHexAddress(f.addr) {
			return b.fail(model.KindInvalidInput, "%s %q is not an EVM address", f.name, f.addr)
		}
	}
	return nil
}

// wait blocks on the provider's client-side rate limit.
func (b *base) wait(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	if err := b.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return b.fail(model.KindRateLimited, "client-side rate limit: %v", err)
	}
	return nil
}

// getJSON performs a GET against path with query and decodes a 2xx body into out.
// Non-2xx responses come back as *model.AdapterError with Status set.
func (b *base) getJSON(ctx context.Context, path string, query url.Values, headers map[string]string, out interface{}) error {
	if err := b.wait(ctx); err != nil {
		return err
	}

	endpoint := b.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return b.fail(model.KindInvalidInput, "error creating request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logrus.WithField("provider", b.name).Debugf("Requesting quote: %s", endpoint)
	resp, err := b.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		ae := b.fail(model.KindTransport, "request failed: %v", err)
		ae.Err = err
		return ae
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return b.fail(model.KindTransport, "error reading response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return b.statusError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return b.fail(model.KindMalformedResponse, "error decoding response: %v", err)
	}
	return nil
}

func (b *base) statusError(status int, body []byte) *model.AdapterError {
	kind := model.KindHTTPStatus
	if status == http.StatusTooManyRequests {
		kind = model.KindRateLimited
	}
	ae := b.fail(kind, "%s", errorMessage(body))
	ae.Status = status
	return ae
}

// errorMessage extracts a human-readable message from an error body. Providers
// disagree on the field name, so the common ones are tried in order.
func errorMessage(body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"description", "message", "reason", "error"} {
			if s, ok := payload[key].(string); ok && s != "" {
				return truncate(s, 200)
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response body"
	}
	return truncate(text, 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// noLiquidityOn rewrites an HTTP status error into no_liquidity when the status and
// message match what the provider sends for "no route".
func (b *base) noLiquidityOn(err error, status int, markers ...string) error {
	var ae *model.AdapterError
	if !errors.As(err, &ae) || ae.Status != status {
		return err
	}
	msg := strings.ToLower(ae.Message)
	if len(markers) == 0 {
		return b.fail(model.KindNoLiquidity, "%s", ae.Message)
	}
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return b.fail(model.KindNoLiquidity, "%s", ae.Message)
		}
	}
	return err
}

// amount parses a provider-reported integer amount, failing closed.
func (b *base) amount(field string, n json.Number) (string, error) {
	s := strings.TrimSpace(n.String())
	if _, ok := model.ParseAmount(s); !ok {
		return "", b.fail(model.KindMalformedResponse, "%s %q is not an integer amount", field, s)
	}
	return s, nil
}
