package lifi

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xsequent/arbswap/apperror"
	"github.com/0xsequent/arbswap/quote"
	"github.com/0xsequent/arbswap/types"
)

// RoutePayload is the venue-specific execution payload for a routing
// aggregator quote.
type RoutePayload struct {
	Route *Route
}

// Venue implements quote.Payload.
func (RoutePayload) Venue() quote.Venue {
	return quote.VenueRouteAggregator
}

// DecimalsOracle reads a token's on-chain decimals.
type DecimalsOracle interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// Adapter turns the routes API into a quote.Source for one chain.
type Adapter struct {
	client  *Client
	oracle  DecimalsOracle
	chainID uint64
	logger  *zap.Logger
}

// NewAdapter creates the routing-aggregator quote source.
func NewAdapter(client *Client, oracle DecimalsOracle, chainID uint64, logger *zap.Logger) *Adapter {
	return &Adapter{
		client:  client,
		oracle:  oracle,
		chainID: chainID,
		logger:  logger,
	}
}

// Name implements quote.Source.
func (a *Adapter) Name() string {
	return quote.VenueRouteAggregator.String()
}

// GetQuote fetches the best route and maps it into the common quote shape.
func (a *Adapter) GetQuote(ctx context.Context, from common.Address, req *types.SwapRequest) (*quote.Quote, error) {
	decimals, err := a.oracle.Decimals(ctx, req.FromToken)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeAdapterFailure, "lifi: read decimals")
	}

	amount, err := quote.ToSmallestUnit(req.Amount, decimals)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeAdapterFailure, "lifi: convert amount")
	}

	routes, err := a.client.GetRoutes(ctx, &RoutesRequest{
		FromChainID:      a.chainID,
		ToChainID:        a.chainID,
		FromTokenAddress: req.FromToken.Hex(),
		ToTokenAddress:   req.ToToken.Hex(),
		FromAmount:       amount.String(),
		FromAddress:      from.Hex(),
		ToAddress:        from.Hex(),
		Options: RouteOptions{
			Slippage: float64(req.Slippage()) / 10000,
			Order:    "RECOMMENDED",
		},
	})
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeAdapterFailure, "lifi: get routes")
	}
	if len(routes) == 0 {
		return nil, apperror.New(apperror.CodeAdapterFailure,
			apperror.WithContext("lifi: no route for pair"))
	}

	best := routes[0]
	minOut, ok := new(big.Int).SetString(best.ToAmountMin, 10)
	if !ok {
		return nil, apperror.New(apperror.CodeAdapterFailure,
			apperror.WithContext(fmt.Sprintf("lifi: bad toAmountMin %q", best.ToAmountMin)))
	}

	return &quote.Quote{
		Venue:     quote.VenueRouteAggregator,
		MinOutput: minOut,
		Payload:   RoutePayload{Route: &best},
	}, nil
}
