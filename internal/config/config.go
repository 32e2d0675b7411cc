// Package config provides configuration loading and management for the application.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override, e.g. SWAPQ_SERVER_PORT.
const EnvPrefix = "SWAPQ"

// Provider identifiers, in default preference order.
const (
	Provider0x        = "0x"
	Provider1inch     = "1inch"
	ProviderParaSwap  = "paraswap"
	ProviderLiFi      = "lifi"
	ProviderSushiSwap = "sushiswap"
	ProviderUniswap   = "uniswap"
)

// ProviderNames lists every bundled provider in registration order.
var ProviderNames = []string{Provider0x, Provider1inch, ProviderParaSwap, ProviderLiFi, ProviderSushiSwap, ProviderUniswap}

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Aggregator AggregatorConfig
	Breaker    BreakerConfig
	Providers  map[string]ProviderConfig
	Analytics  AnalyticsConfig
	Log        LogConfig

	// OpenTelemetry collector endpoint; tracing export is off when empty
	OtelEndpoint string
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port           string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
}

// AggregatorConfig controls fan-out and ranking.
type AggregatorConfig struct {
	AdapterTimeout     time.Duration
	MaxConcurrency     int
	Preference         []string
	DefaultSlippageBps uint32
}

// BreakerConfig controls the per-provider circuit breakers.
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	ResetDelay       time.Duration
	SuccessThreshold int
}

// ProviderConfig is the static description of one quote provider. It is read once
// at start and never changed.
type ProviderConfig struct {
	Name    string
	Enabled bool
	BaseURL string
	APIKey  string

	// Integrator is sent as the partner/integrator tag where the provider supports one
	Integrator string

	Chains []uint64

	// Requests per second toward this provider; zero disables client-side limiting
	RPS float64

	// Subgraphs maps chain ID to subgraph URL (uniswap only)
	Subgraphs map[uint64]string
}

// AnalyticsConfig controls the quote event sink.
type AnalyticsConfig struct {
	Enabled       bool
	URL           string
	APIKey        string
	BatchSize     int
	FlushInterval time.Duration
}

// LogConfig controls logrus output.
type LogConfig struct {
	Format string
	Level  string
}

// Load builds a Config from defaults, an optional config file and SWAPQ_* environment
// variables, in increasing precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", "15s")
	v.SetDefault("server.rate_limit_rps", 10.0)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("aggregator.adapter_timeout", "8s")
	v.SetDefault("aggregator.max_concurrency", 0)
	v.SetDefault("aggregator.preference", ProviderNames)
	v.SetDefault("aggregator.default_slippage_bps", 50)

	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_delay", "30s")
	v.SetDefault("breaker.success_threshold", 1)

	providerDefaults := map[string]struct {
		url    string
		chains string
		rps    float64
	}{
		Provider0x:        {"https://api.0x.org", "1,10,56,137,8453,42161,43114,59144,534352", 5},
		Provider1inch:     {"https://api.1inch.dev", "1,10,56,100,137,250,324,8453,42161,43114,59144", 1},
		ProviderParaSwap:  {"https://api.paraswap.io", "1,10,56,137,250,8453,42161,43114", 5},
		ProviderLiFi:      {"https://li.quest", "1,10,56,100,137,250,324,8453,42161,43114,59144,534352", 2},
		ProviderSushiSwap: {"https://api.sushi.com", "1,10,56,100,137,250,8453,42161,43114,59144,534352", 5},
		ProviderUniswap:   {"", "1", 5},
	}
	for name, d := range providerDefaults {
		prefix := "providers." + name + "."
		v.SetDefault(prefix+"enabled", true)
		v.SetDefault(prefix+"base_url", d.url)
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"integrator", "")
		v.SetDefault(prefix+"chains", d.chains)
		v.SetDefault(prefix+"rps", d.rps)
	}
	v.SetDefault("providers.uniswap.subgraphs", map[string]string{
		"1": "https://gateway.thegraph.com/api/subgraphs/id/5zvR82QoaXYFyDEKLZ9t6v9adgnptxYpKpSbxtgVENFV",
	})

	v.SetDefault("analytics.enabled", false)
	v.SetDefault("analytics.url", "")
	v.SetDefault("analytics.api_key", "")
	v.SetDefault("analytics.batch_size", 50)
	v.SetDefault("analytics.flush_interval", "30s")

	v.SetDefault("otel.endpoint", "")

	v.SetDefault("log.format", "text")
	v.SetDefault("log.level", "info")
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			RateLimitRPS:   v.GetFloat64("server.rate_limit_rps"),
			RateLimitBurst: v.GetInt("server.rate_limit_burst"),
			CORSOrigins:    splitList(v.GetStringSlice("server.cors_origins")),
		},
		Aggregator: AggregatorConfig{
			AdapterTimeout:     v.GetDuration("aggregator.adapter_timeout"),
			MaxConcurrency:     v.GetInt("aggregator.max_concurrency"),
			Preference:         splitList(v.GetStringSlice("aggregator.preference")),
			DefaultSlippageBps: v.GetUint32("aggregator.default_slippage_bps"),
		},
		Breaker: BreakerConfig{
			Enabled:          v.GetBool("breaker.enabled"),
			FailureThreshold: v.GetInt("breaker.failure_threshold"),
			ResetDelay:       v.GetDuration("breaker.reset_delay"),
			SuccessThreshold: v.GetInt("breaker.success_threshold"),
		},
		Providers: make(map[string]ProviderConfig, len(ProviderNames)),
		Analytics: AnalyticsConfig{
			Enabled:       v.GetBool("analytics.enabled"),
			URL:           v.GetString("analytics.url"),
			APIKey:        v.GetString("analytics.api_key"),
			BatchSize:     v.GetInt("analytics.batch_size"),
			FlushInterval: v.GetDuration("analytics.flush_interval"),
		},
		Log: LogConfig{
			Format: strings.ToLower(v.GetString("log.format")),
			Level:  strings.ToLower(v.GetString("log.level")),
		},
		OtelEndpoint: v.GetString("otel.endpoint"),
	}

	for _, name := range ProviderNames {
		prefix := "providers." + name + "."
		chains, err := parseChains(splitList(v.GetStringSlice(prefix + "chains")))
		if err != nil {
			return Config{}, fmt.Errorf("providers.%s.chains: %w", name, err)
		}
		pc := ProviderConfig{
			Name:       name,
			Enabled:    v.GetBool(prefix + "enabled"),
			BaseURL:    strings.TrimRight(v.GetString(prefix+"base_url"), "/"),
			APIKey:     v.GetString(prefix + "api_key"),
			Integrator: v.GetString(prefix + "integrator"),
			Chains:     chains,
			RPS:        v.GetFloat64(prefix + "rps"),
		}
		if name == ProviderUniswap {
			subgraphs, err := parseSubgraphs(v.GetStringMapString(prefix + "subgraphs"))
			if err != nil {
				return Config{}, fmt.Errorf("providers.%s.subgraphs: %w", name, err)
			}
			pc.Subgraphs = subgraphs
		}
		cfg.Providers[name] = pc
	}

	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var problems []string

	if c.Server.Port == "" {
		problems = append(problems, "server.port is required")
	}
	if c.Aggregator.AdapterTimeout <= 0 {
		problems = append(problems, "aggregator.adapter_timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		problems = append(problems, "server.request_timeout must be positive")
	} else if c.Aggregator.AdapterTimeout > c.Server.RequestTimeout {
		problems = append(problems, fmt.Sprintf("aggregator.adapter_timeout (%s) must not exceed server.request_timeout (%s)",
			c.Aggregator.AdapterTimeout, c.Server.RequestTimeout))
	}
	if c.Aggregator.DefaultSlippageBps > 10000 {
		problems = append(problems, "aggregator.default_slippage_bps must be at most 10000")
	}
	if c.Analytics.Enabled && c.Analytics.URL == "" {
		problems = append(problems, "analytics.url is required when analytics is enabled")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		problems = append(problems, fmt.Sprintf("log.format must be json or text, got %q", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// EnabledProviders returns the enabled providers in registration order.
func (c Config) EnabledProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.Providers))
	for _, name := range ProviderNames {
		if pc, ok := c.Providers[name]; ok && pc.Enabled {
			out = append(out, pc)
		}
	}
	return out
}

// splitList accepts both real lists and comma-separated environment values.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseChains(items []string) ([]uint64, error) {
	out := make([]uint64, 0, len(items))
	for _, item := range items {
		id, err := strconv.ParseUint(item, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid chain id %q", item)
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func parseSubgraphs(raw map[string]string) (map[uint64]string, error) {
	out := make(map[uint64]string, len(raw))
	for k, url := range raw {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid chain id %q", k)
		}
		out[id] = url
	}
	return out, nil
}
