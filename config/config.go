package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"github.com/0xsequent/arbswap/apperror"
)

// Config is the root configuration, decoded from a YAML file.
type Config struct {
	DefaultChain string                 `yaml:"default_chain"`
	Chains       map[string]ChainConfig `yaml:"chains"`

	// Network settings shared by all HTTP clients.
	NetworkTimeout time.Duration `yaml:"network_timeout"`

	// Rate limits applied to external venues and the relay.
	VenueRateLimit RateLimitConfig `yaml:"venue_rate_limit"`
	RelayRateLimit RateLimitConfig `yaml:"relay_rate_limit"`

	// Feature flags.
	PrometheusEnabled  bool   `yaml:"prometheus_enabled"`
	PrometheusEndpoint string `yaml:"prometheus_endpoint"`
}

// ChainConfig holds per-chain endpoints and contract addresses.
type ChainConfig struct {
	ChainID      uint64 `yaml:"chain_id"`
	RPCEndpoint  string `yaml:"rpc_endpoint"`
	RelayURL     string `yaml:"relay_url"`
	LifiEndpoint string `yaml:"lifi_endpoint"`

	// BebopChainKey is the venue's name for this chain; empty means the
	// RFQ venue does not support the chain.
	BebopChainKey string `yaml:"bebop_chain_key"`
	BebopEndpoint string `yaml:"bebop_endpoint"`
	AavePool      string `yaml:"aave_pool"`
	ArbitrageExec string `yaml:"arbitrage_executor"`
	FlashLoanGas  uint64 `yaml:"flash_loan_gas"`
	SwapGas       uint64 `yaml:"swap_gas"`
}

// RateLimitConfig bounds request rates to one upstream.
type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
	WaitTimeout       time.Duration `yaml:"wait_timeout"`
}

// AavePoolAddress returns the configured lending pool address.
func (c *ChainConfig) AavePoolAddress() common.Address {
	return common.HexToAddress(c.AavePool)
}

// ExecutorAddress returns the arbitrage executor (flash-loan receiver).
func (c *ChainConfig) ExecutorAddress() common.Address {
	return common.HexToAddress(c.ArbitrageExec)
}

// Validate checks the configuration, aggregating all problems.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Chains) == 0 {
		errs = append(errs, "at least one chain must be configured")
	}
	if c.DefaultChain != "" {
		if _, ok := c.Chains[c.DefaultChain]; !ok {
			errs = append(errs, fmt.Sprintf("default_chain %q is not configured", c.DefaultChain))
		}
	}
	for name, chain := range c.Chains {
		if chain.ChainID == 0 {
			errs = append(errs, fmt.Sprintf("chain %s: chain_id must be specified", name))
		}
		if chain.RPCEndpoint == "" {
			errs = append(errs, fmt.Sprintf("chain %s: rpc_endpoint must be specified", name))
		}
		if chain.LifiEndpoint == "" {
			errs = append(errs, fmt.Sprintf("chain %s: lifi_endpoint must be specified", name))
		}
		if chain.AavePool != "" && !common.IsHexAddress(chain.AavePool) {
			errs = append(errs, fmt.Sprintf("chain %s: aave_pool is not a valid address", name))
		}
		if chain.ArbitrageExec != "" && !common.IsHexAddress(chain.ArbitrageExec) {
			errs = append(errs, fmt.Sprintf("chain %s: arbitrage_executor is not a valid address", name))
		}
	}
	if err := c.VenueRateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("venue rate limit: %v", err))
	}
	if err := c.RelayRateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("relay rate limit: %v", err))
	}

	if len(errs) > 0 {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(strings.Join(errs, "; ")))
	}
	return nil
}

// Validate checks rate limit bounds.
func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	return nil
}

// Chain looks up a chain config by name.
func (c *Config) Chain(name string) (*ChainConfig, error) {
	chain, ok := c.Chains[name]
	if !ok {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(fmt.Sprintf("unsupported chain %q", name)))
	}
	return &chain, nil
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "arbswap.yaml"
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "open config file")
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "decode config file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a mainnet-only configuration with conservative
// limits. The zero addresses for the executor must be overridden before
// the arbitrage path can be used.
func DefaultConfig() *Config {
	return &Config{
		DefaultChain:   "mainnet",
		NetworkTimeout: 10 * time.Second,
		Chains: map[string]ChainConfig{
			"mainnet": {
				ChainID:       1,
				RPCEndpoint:   "http://localhost:8545",
				RelayURL:      "https://relay.flashbots.net",
				LifiEndpoint:  "https://li.quest/v1",
				BebopChainKey: "ethereum",
				BebopEndpoint: "https://api.bebop.xyz",
				AavePool:      "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2",
				FlashLoanGas:  2_000_000,
				SwapGas:       500_000,
			},
		},
		VenueRateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         20,
			WaitTimeout:       time.Second,
		},
		RelayRateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			BurstSize:         10,
			WaitTimeout:       time.Second,
		},
	}
}
