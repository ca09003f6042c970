// Package aave implements the flash-loan provider against an Aave V3 pool.
package aave

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/0xsequent/arbswap/flashloan"
	"github.com/0xsequent/arbswap/types"
)

// Aave V3 pool flash-loan entry point.
const poolABIJSON = `[
	{
		"inputs": [
			{"internalType": "address", "name": "receiverAddress", "type": "address"},
			{"internalType": "address[]", "name": "assets", "type": "address[]"},
			{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"},
			{"internalType": "uint256[]", "name": "interestRateModes", "type": "uint256[]"},
			{"internalType": "address", "name": "onBehalfOf", "type": "address"},
			{"internalType": "bytes", "name": "params", "type": "bytes"},
			{"internalType": "uint16", "name": "referralCode", "type": "uint16"}
		],
		"name": "flashLoan",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// Receiver contract entry point executed inside the loan callback.
const executorABIJSON = `[
	{
		"inputs": [
			{"internalType": "bytes[]", "name": "transactions", "type": "bytes[]"}
		],
		"name": "executeArbitrage",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

var (
	poolABI     = mustParseABI(poolABIJSON)
	executorABI = mustParseABI(executorABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Provider executes flash loans against one Aave V3 pool, naming a fixed
// executor contract as both receiver and on-behalf-of address.
type Provider struct {
	pool     common.Address
	executor common.Address
	sender   flashloan.Sender
	gasLimit uint64
	logger   *zap.Logger
	metrics  struct {
		loanCount prometheus.Counter
		premiums  prometheus.Counter
		errors    prometheus.Counter
		latency   prometheus.Histogram
	}
}

// NewProvider creates an Aave V3 flash-loan provider.
func NewProvider(pool, executor common.Address, sender flashloan.Sender, gasLimit uint64, logger *zap.Logger) (*Provider, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender cannot be nil")
	}
	if (executor == common.Address{}) {
		return nil, fmt.Errorf("executor contract address not configured")
	}

	p := &Provider{
		pool:     pool,
		executor: executor,
		sender:   sender,
		gasLimit: gasLimit,
		logger:   logger,
	}

	p.metrics.loanCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_aave_loans_total",
		Help: "Total number of Aave flash loans executed",
	})
	p.metrics.premiums = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_aave_premiums_total",
		Help: "Total premiums committed on Aave flash loans, smallest unit",
	})
	p.metrics.errors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_aave_errors_total",
		Help: "Total number of Aave flash loan errors",
	})
	p.metrics.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flashloan_aave_latency_seconds",
		Help:    "Latency of Aave flash loan submission",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	return p, nil
}

// String identifies the provider in logs.
func (p *Provider) String() string {
	return "aave-v3"
}

// ExecuteFlashLoan borrows the given assets, executes the callback payload
// inside the loan, and lands the whole sequence as one transaction.
// Atomicity is enforced by the chain: the pool calls back into the
// receiver synchronously within the same transaction. Any failure here is
// hard; the caller decides whether to fall back.
func (p *Provider) ExecuteFlashLoan(ctx context.Context, assets []common.Address, amounts []*big.Int, build flashloan.CallbackBuilder) (common.Hash, error) {
	start := time.Now()
	defer func() {
		p.metrics.latency.Observe(time.Since(start).Seconds())
	}()

	if len(assets) == 0 || len(assets) != len(amounts) {
		p.metrics.errors.Inc()
		return common.Hash{}, fmt.Errorf("assets and amounts must be non-empty and parallel")
	}

	premiums := make([]*big.Int, len(amounts))
	for i, amount := range amounts {
		if amount == nil || amount.Sign() <= 0 {
			p.metrics.errors.Inc()
			return common.Hash{}, fmt.Errorf("loan amount for asset %s must be positive", assets[i].Hex())
		}
		premiums[i] = flashloan.Premium(amount)
	}

	params, err := build(&flashloan.Request{
		Assets:    assets,
		Amounts:   amounts,
		Premiums:  premiums,
		Initiator: p.executor,
	})
	if err != nil {
		p.metrics.errors.Inc()
		return common.Hash{}, fmt.Errorf("failed to build callback params: %w", err)
	}

	modes := make([]*big.Int, len(assets))
	for i := range modes {
		modes[i] = big.NewInt(0) // no debt position kept open
	}

	callData, err := poolABI.Pack("flashLoan",
		p.executor,
		assets,
		amounts,
		modes,
		p.executor,
		params,
		uint16(0),
	)
	if err != nil {
		p.metrics.errors.Inc()
		return common.Hash{}, fmt.Errorf("failed to pack flash loan call: %w", err)
	}

	hash, err := p.sender.Execute(ctx, []types.PreparedCall{{
		To:    p.pool,
		Data:  callData,
		Value: big.NewInt(0),
	}}, p.gasLimit)
	if err != nil {
		p.metrics.errors.Inc()
		return common.Hash{}, fmt.Errorf("flash loan submission failed: %w", err)
	}

	p.metrics.loanCount.Inc()
	for _, premium := range premiums {
		p.metrics.premiums.Add(float64(premium.Uint64()))
	}

	p.logger.Info("Flash loan submitted",
		zap.String("pool", p.pool.Hex()),
		zap.String("hash", hash.Hex()),
		zap.Int("assets", len(assets)))

	return hash, nil
}

// EncodeArbitrageParams packs the bundle's calldata sequence into the
// executor's executeArbitrage(bytes[]) payload, preserving order exactly.
func EncodeArbitrageParams(bundle *types.ArbitrageBundle) ([]byte, error) {
	txs := make([][]byte, len(bundle.Calls))
	for i, call := range bundle.Calls {
		txs[i] = call.Data
	}
	data, err := executorABI.Pack("executeArbitrage", txs)
	if err != nil {
		return nil, fmt.Errorf("failed to pack arbitrage payload: %w", err)
	}
	return data, nil
}
