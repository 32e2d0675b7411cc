package fetch

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/swap-quote-aggregator/internal/aggregate"
	"github.com/yourorg/swap-quote-aggregator/internal/config"
)

// ChainLister is implemented by adapters that can report their chain allow-list.
type ChainLister interface {
	Chains() []uint64
}

// NewAdapter creates the adapter for one provider configuration.
func NewAdapter(pc config.ProviderConfig, opts ...Option) (aggregate.Adapter, error) {
	switch pc.Name {
	case config.Provider0x:
		return NewZeroExAdapter(pc, opts...), nil
	case config.Provider1inch:
		return NewOneInchAdapter(pc, opts...), nil
	case config.ProviderParaSwap:
		return NewParaSwapAdapter(pc, opts...), nil
	case config.ProviderSushiSwap:
		return NewSushiSwapAdapter(pc, opts...), nil
	case config.ProviderUniswap:
		return NewUniswapAdapter(pc, opts...), nil
	case config.ProviderLiFi:
		return NewLiFiAdapter(pc, opts...), nil
	}
	return nil, fmt.Errorf("unknown provider %q", pc.Name)
}

// NewAdapters builds every enabled provider in registration order. The returned
// slice is the process-wide registry and is never modified.
func NewAdapters(cfg config.Config, opts ...Option) ([]aggregate.Adapter, error) {
	enabled := cfg.EnabledProviders()
	adapters := make([]aggregate.Adapter, 0, len(enabled))
	for _, pc := range enabled {
		if pc.BaseURL == "" && pc.Name != config.ProviderUniswap {
			return nil, fmt.Errorf("provider %s: base_url is required", pc.Name)
		}
		a, err := NewAdapter(pc, opts...)
		if err != nil {
			return nil, err
		}
		fields := logrus.Fields{"provider": pc.Name}
		if cl, ok := a.(ChainLister); ok {
			fields["chains"] = len(cl.Chains())
		}
		logrus.WithFields(fields).Info("Registered quote provider")
		adapters = append(adapters, a)
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no quote providers enabled")
	}
	return adapters, nil
}
