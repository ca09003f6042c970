package swap

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xsequent/arbswap/apperror"
	"github.com/0xsequent/arbswap/flashloan"
	"github.com/0xsequent/arbswap/quote"
	"github.com/0xsequent/arbswap/types"
	"github.com/0xsequent/arbswap/utils/metrics"
)

// phase names the orchestrator's position in the pipeline, for logs.
type phase string

const (
	phaseQuoting   phase = "quoting"
	phaseArbitrage phase = "arbitrage_path"
	phaseDirect    phase = "direct_path"
	phaseDone      phase = "done"
	phaseFailed    phase = "failed"
)

// TxSender signs and broadcasts direct-path transactions.
type TxSender interface {
	Address() common.Address
	ChainID() uint64
	SignAndSend(ctx context.Context, call *types.PreparedCall, gasLimit uint64) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// BundleEncoder packs an ordered call sequence into the flash-loan
// callback payload.
type BundleEncoder func(bundle *types.ArbitrageBundle) ([]byte, error)

// Orchestrator runs one swap end to end: concurrent quote fan-out,
// ranking, the flash-loan arbitrage attempt when the spread justifies it,
// and the direct path otherwise or as fallback.
type Orchestrator struct {
	sources  []quote.Source
	preparer *Preparer
	sender   TxSender
	loans    flashloan.Provider
	encode   BundleEncoder
	metrics  *metrics.SwapMetrics
	swapGas  uint64
	logger   *zap.Logger
}

// NewOrchestrator wires the pipeline. loans may be nil when no executor
// contract is configured; the arbitrage path is then skipped entirely.
func NewOrchestrator(
	sources []quote.Source,
	preparer *Preparer,
	sender TxSender,
	loans flashloan.Provider,
	encode BundleEncoder,
	m *metrics.SwapMetrics,
	swapGas uint64,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		sources:  sources,
		preparer: preparer,
		sender:   sender,
		loans:    loans,
		encode:   encode,
		metrics:  m,
		swapGas:  swapGas,
		logger:   logger,
	}
}

// Swap executes the request. The arbitrage path is strictly opportunistic:
// any failure on it falls through to the direct path and is never
// surfaced to the caller.
func (o *Orchestrator) Swap(ctx context.Context, req *types.SwapRequest) (*types.Transaction, error) {
	o.logger.Info("Swap started",
		zap.String("state", string(phaseQuoting)),
		zap.String("fromToken", req.FromToken.Hex()),
		zap.String("toToken", req.ToToken.Hex()),
		zap.String("amount", req.Amount))

	quotes := o.fetchQuotes(ctx, req)
	if len(quotes) == 0 {
		o.logger.Warn("No venue produced a quote", zap.String("state", string(phaseFailed)))
		return nil, apperror.New(apperror.CodeNoRouteFound)
	}

	ranked := quote.Rank(quotes)

	if o.loans != nil && quote.IsArbitrageOpportunity(ranked) {
		if tx, err := o.tryArbitrage(ctx, ranked, req); err == nil {
			o.logger.Info("Arbitrage bundle landed",
				zap.String("state", string(phaseDone)),
				zap.String("hash", tx.Hash.Hex()))
			return tx, nil
		} else {
			// Fallback is unconditional: the swap must still complete.
			o.metrics.ArbitrageFallbacks.Inc()
			o.logger.Warn("Arbitrage path failed, falling back to direct swap",
				zap.String("code", string(apperror.GetCode(err))),
				zap.Error(err))
		}
	}

	tx, err := o.executeDirect(ctx, ranked, req)
	if err != nil {
		o.metrics.SwapFailures.Inc()
		o.logger.Error("Swap failed on every quote", zap.String("state", string(phaseFailed)))
		return nil, err
	}

	o.logger.Info("Swap complete",
		zap.String("state", string(phaseDone)),
		zap.String("hash", tx.Hash.Hex()))
	return tx, nil
}

// fetchQuotes queries every venue concurrently. One venue failing never
// cancels the others; failures are counted and dropped.
func (o *Orchestrator) fetchQuotes(ctx context.Context, req *types.SwapRequest) []*quote.Quote {
	start := time.Now()
	results := make([]*quote.Quote, len(o.sources))

	var wg sync.WaitGroup
	for i, src := range o.sources {
		wg.Add(1)
		go func(i int, src quote.Source) {
			defer wg.Done()
			q, err := src.GetQuote(ctx, o.sender.Address(), req)
			if err != nil {
				o.metrics.QuoteFailures.WithLabelValues(src.Name()).Inc()
				o.logger.Warn("Quote source failed",
					zap.String("venue", src.Name()),
					zap.Error(err))
				return
			}
			o.metrics.QuotesFetched.WithLabelValues(src.Name()).Inc()
			results[i] = q
		}(i, src)
	}
	wg.Wait()
	o.metrics.QuoteLatency.Observe(time.Since(start).Seconds())

	quotes := make([]*quote.Quote, 0, len(results))
	for _, q := range results {
		if q != nil {
			quotes = append(quotes, q)
		}
	}
	return quotes
}

// tryArbitrage prepares the two best quotes into one ordered bundle and
// funds it with a flash loan of the source token, sized to the best
// quote's guaranteed output. Everything rides or fails as one transaction.
func (o *Orchestrator) tryArbitrage(ctx context.Context, ranked []*quote.Quote, req *types.SwapRequest) (*types.Transaction, error) {
	o.metrics.ArbitrageAttempts.Inc()
	o.logger.Info("Arbitrage opportunity detected",
		zap.String("state", string(phaseArbitrage)),
		zap.String("best", ranked[0].MinOutput.String()),
		zap.String("second", ranked[1].MinOutput.String()))

	var bundle types.ArbitrageBundle
	for _, q := range ranked[:2] {
		call, err := o.preparer.Prepare(ctx, q, req)
		if err != nil {
			return nil, err
		}
		bundle.Append(*call)
	}

	loanAmount := new(big.Int).Set(ranked[0].MinOutput)
	o.metrics.FlashLoanPremiums.Add(float64(flashloan.Premium(loanAmount).Uint64()))

	hash, err := o.loans.ExecuteFlashLoan(ctx,
		[]common.Address{req.FromToken},
		[]*big.Int{loanAmount},
		func(*flashloan.Request) ([]byte, error) {
			return o.encode(&bundle)
		},
	)
	if err != nil {
		o.metrics.BundleInclusion.WithLabelValues(inclusionLabel(err)).Inc()
		return nil, err
	}

	o.metrics.BundleInclusion.WithLabelValues("included").Inc()
	return &types.Transaction{
		Hash:    hash,
		From:    o.sender.Address(),
		To:      bundle.Calls[0].To,
		Value:   big.NewInt(0),
		ChainID: o.sender.ChainID(),
	}, nil
}

func inclusionLabel(err error) string {
	switch {
	case apperror.HasCode(err, apperror.CodeSimulationRejected):
		return "simulation_rejected"
	case apperror.HasCode(err, apperror.CodeRelayNotIncluded):
		return "not_included"
	default:
		return "error"
	}
}

// executeDirect walks the ranked quotes and lands the first one that
// prepares and executes cleanly. For firm RFQ quotes this is two rounds:
// the approval is prepared, sent and mined first, then the quote is
// prepared again to yield the swap call.
func (o *Orchestrator) executeDirect(ctx context.Context, ranked []*quote.Quote, req *types.SwapRequest) (*types.Transaction, error) {
	o.logger.Info("Executing direct swap", zap.String("state", string(phaseDirect)))

	var lastErr error
	for _, q := range ranked {
		tx, err := o.executeQuote(ctx, q, req)
		if err != nil {
			o.logger.Warn("Quote execution failed, trying next",
				zap.String("venue", q.Venue.String()),
				zap.Error(err))
			lastErr = err
			continue
		}

		o.metrics.DirectExecutions.Inc()
		return tx, nil
	}

	return nil, apperror.New(apperror.CodeExecutionFailed,
		apperror.WithContext("all quotes exhausted"), apperror.WithCause(lastErr))
}

// executeQuote lands one quote on chain. A call targeting the source
// token is an approval: it is mined first, then the quote is re-prepared
// for the swap call.
func (o *Orchestrator) executeQuote(ctx context.Context, q *quote.Quote, req *types.SwapRequest) (*types.Transaction, error) {
	call, err := o.preparer.Prepare(ctx, q, req)
	if err != nil {
		return nil, err
	}

	tx, err := o.sendCall(ctx, call)
	if err != nil {
		return nil, err
	}

	if call.To != req.FromToken {
		return tx, nil
	}

	o.logger.Debug("Approval mined, preparing swap",
		zap.String("venue", q.Venue.String()),
		zap.String("approvalTx", tx.Hash.Hex()))

	swapCall, err := o.preparer.Prepare(ctx, q, req)
	if err != nil {
		return nil, err
	}
	if swapCall.To == req.FromToken {
		return nil, apperror.New(apperror.CodeExecutionFailed,
			apperror.WithContext("approval not effective after mining"))
	}
	return o.sendCall(ctx, swapCall)
}

// sendCall signs and lands one call, failing on a reverted receipt.
func (o *Orchestrator) sendCall(ctx context.Context, call *types.PreparedCall) (*types.Transaction, error) {
	hash, err := o.sender.SignAndSend(ctx, call, o.swapGas)
	if err != nil {
		return nil, err
	}
	receipt, err := o.sender.WaitForReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == ethtypes.ReceiptStatusFailed {
		return nil, apperror.New(apperror.CodeExecutionFailed,
			apperror.WithContext(fmt.Sprintf("tx %s reverted", hash.Hex())))
	}
	return &types.Transaction{
		Hash:    hash,
		From:    o.sender.Address(),
		To:      call.To,
		Value:   call.Value,
		ChainID: o.sender.ChainID(),
	}, nil
}
