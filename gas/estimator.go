package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Backend is the chain surface fee estimation reads from.
type Backend interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Estimator provides EIP-1559 fee estimation with a background refresh.
type Estimator struct {
	client      Backend
	logger      *zap.Logger
	baseFee     *big.Int
	priorityFee *big.Int
	mu          sync.RWMutex
	ticker      *time.Ticker
	done        chan struct{}
}

// NewEstimator creates a gas estimator and primes it with a first fetch.
// Chains without EIP-1559 base fees are rejected here, at construction.
func NewEstimator(ctx context.Context, client Backend, logger *zap.Logger) (*Estimator, error) {
	e := &Estimator{
		client: client,
		logger: logger,
		ticker: time.NewTicker(time.Second),
		done:   make(chan struct{}),
	}
	if err := e.update(ctx); err != nil {
		return nil, err
	}
	go e.updateLoop()
	return e, nil
}

// Stop terminates the refresh loop.
func (e *Estimator) Stop() {
	e.ticker.Stop()
	close(e.done)
}

func (e *Estimator) updateLoop() {
	for {
		select {
		case <-e.done:
			return
		case <-e.ticker.C:
			if err := e.update(context.Background()); err != nil {
				e.logger.Error("Failed to update gas prices", zap.Error(err))
			}
		}
	}
}

func (e *Estimator) update(ctx context.Context) error {
	head, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get latest header: %w", err)
	}
	if head.BaseFee == nil {
		return fmt.Errorf("chain reports no base fee, EIP-1559 is required")
	}

	priorityFee, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("failed to get priority fee: %w", err)
	}

	e.mu.Lock()
	e.baseFee = head.BaseFee
	e.priorityFee = priorityFee
	e.mu.Unlock()

	return nil
}

// SuggestFees returns (gasTipCap, gasFeeCap) for a new transaction. The
// fee cap allows for one doubling of the base fee before the tx stalls.
func (e *Estimator) SuggestFees() (*big.Int, *big.Int) {
	e.mu.RLock()
	baseFee := new(big.Int).Set(e.baseFee)
	tip := new(big.Int).Set(e.priorityFee)
	e.mu.RUnlock()

	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return tip, feeCap
}

// EstimateCost estimates the worst-case cost of a transaction at the
// current fee cap.
func (e *Estimator) EstimateCost(gasLimit uint64) *big.Int {
	_, feeCap := e.SuggestFees()
	return new(big.Int).Mul(feeCap, new(big.Int).SetUint64(gasLimit))
}
