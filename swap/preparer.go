// Package swap orchestrates the full pipeline: quote fan-out, ranking,
// arbitrage bundling and direct execution.
package swap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xsequent/arbswap/apperror"
	"github.com/0xsequent/arbswap/quote"
	"github.com/0xsequent/arbswap/quote/bebop"
	"github.com/0xsequent/arbswap/quote/lifi"
	"github.com/0xsequent/arbswap/types"
	"github.com/0xsequent/arbswap/wallet"
)

// RouteExecutor resolves an aggregator route into a pending call.
type RouteExecutor interface {
	ExecuteRoute(ctx context.Context, route *lifi.Route) (*lifi.StepCall, error)
}

// AllowanceReader reads on-chain ERC-20 allowances.
type AllowanceReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// Preparer turns a ranked quote into the single next unsigned call that
// advances it. For firm RFQ quotes whose allowance does not cover the
// sell amount, that call is the approval; the swap call is only produced
// by a later invocation, once the allowance is in place.
type Preparer struct {
	routes     RouteExecutor
	allowances AllowanceReader
	owner      common.Address
	logger     *zap.Logger
}

// NewPreparer creates a preparer executing on behalf of owner.
func NewPreparer(routes RouteExecutor, allowances AllowanceReader, owner common.Address, logger *zap.Logger) *Preparer {
	return &Preparer{
		routes:     routes,
		allowances: allowances,
		owner:      owner,
		logger:     logger,
	}
}

// Prepare resolves the quote's venue payload into its next unsigned call.
func (p *Preparer) Prepare(ctx context.Context, q *quote.Quote, req *types.SwapRequest) (*types.PreparedCall, error) {
	switch payload := q.Payload.(type) {
	case lifi.RoutePayload:
		return p.prepareRoute(ctx, payload.Route)
	case bebop.RFQPayload:
		return p.prepareRFQ(ctx, payload.Quote, req)
	default:
		return nil, apperror.New(apperror.CodePreparationFailure,
			apperror.WithContext(fmt.Sprintf("unknown quote payload %T", q.Payload)))
	}
}

func (p *Preparer) prepareRoute(ctx context.Context, route *lifi.Route) (*types.PreparedCall, error) {
	step, err := p.routes.ExecuteRoute(ctx, route)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodePreparationFailure, "resolve route step")
	}
	return &types.PreparedCall{
		To:    step.To,
		Data:  step.Data,
		Value: step.Value,
	}, nil
}

func (p *Preparer) prepareRFQ(ctx context.Context, rfq *bebop.RFQQuote, req *types.SwapRequest) (*types.PreparedCall, error) {
	sellAmount, ok := new(big.Int).SetString(rfq.SellAmount, 10)
	if !ok {
		return nil, apperror.New(apperror.CodePreparationFailure,
			apperror.WithContext(fmt.Sprintf("bad sellAmount %q", rfq.SellAmount)))
	}

	approvalTarget := common.HexToAddress(rfq.ApprovalTarget)
	allowance, err := p.allowances.Allowance(ctx, req.FromToken, p.owner, approvalTarget)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodePreparationFailure, "read allowance")
	}

	// Short allowance: the approval is the next call, never the swap.
	if allowance.Cmp(sellAmount) < 0 {
		approveData, err := wallet.ApproveCalldata(approvalTarget, sellAmount)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodePreparationFailure, "build approval")
		}

		p.logger.Debug("Approval required before swap",
			zap.String("token", req.FromToken.Hex()),
			zap.String("spender", approvalTarget.Hex()),
			zap.String("sellAmount", sellAmount.String()))

		return &types.PreparedCall{
			To:    req.FromToken,
			Data:  approveData,
			Value: big.NewInt(0),
		}, nil
	}

	value, err := parseValue(rfq.Value)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodePreparationFailure, "parse quote value")
	}

	return &types.PreparedCall{
		To:    common.HexToAddress(rfq.To),
		Data:  common.FromHex(rfq.Data),
		Value: value,
	}, nil
}

// parseValue accepts the venue's value field in hex or decimal form.
// Venues emit fixed-width hex with leading zeros, so the quantity rules
// of the JSON-RPC encoding do not apply here.
func parseValue(raw string) (*big.Int, error) {
	if raw == "" || raw == "0" {
		return big.NewInt(0), nil
	}
	if strings.HasPrefix(raw, "0x") {
		v, ok := new(big.Int).SetString(strings.TrimPrefix(raw, "0x"), 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex value %q", raw)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid value %q", raw)
	}
	return v, nil
}
