package bebop

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

// RFQPayload is the venue-specific execution payload for an RFQ quote.
type RFQPayload struct {
	Quote *RFQQuote
}

// Venue implements quote.Payload.
func (RFQPayload) Venue() quote.Venue {
	return quote.VenueRFQ
}

// DecimalsOracle reads a token's on-chain decimals.
type DecimalsOracle interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// Adapter turns the RFQ endpoint into a quote.Source for one chain.
type Adapter struct {
	client   *Client
	oracle   DecimalsOracle
	chainKey string
	logger   *zap.Logger
}

// NewAdapter creates the RFQ quote source. An empty chainKey means the
// venue does not support the chain: every quote request yields absent.
func NewAdapter(client *Client, oracle DecimalsOracle, chainKey string, logger *zap.Logger) *Adapter {
	return &Adapter{
		client:   client,
		oracle:   oracle,
		chainKey: chainKey,
		logger:   logger,
	}
}

// Name implements quote.Source.
func (a *Adapter) Name() string {
	return quote.VenueRFQ.String()
}

// GetQuote requests a firm quote and maps it into the common quote shape.
func (a *Adapter) GetQuote(ctx context.Context, from common.Address, req *types.SwapRequest) (*quote.Quote, error) {
	if a.chainKey == "" {
		return nil, apperror.New(apperror.CodeAdapterFailure,
			apperror.WithContext(fmt.Sprintf("rfq: chain %q not supported", req.Chain)))
	}

	decimals, err := a.oracle.Decimals(ctx, req.FromToken)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeAdapterFailure, "rfq: read decimals")
	}

	amount, err := quote.ToSmallestUnit(req.Amount, decimals)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeAdapterFailure, "rfq: convert amount")
	}

	rfqQuote, err := a.client.GetQuote(ctx, a.chainKey, &QuoteRequest{
		SellTokens: []SellToken{{
			Token:  req.FromToken.Hex(),
			Amount: amount.String(),
		}},
		BuyTokens: []BuyToken{{
			Token:      req.ToToken.Hex(),
			Proportion: 1,
		}},
		TakerAddress: from.Hex(),
	})
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeAdapterFailure, "rfq: get quote")
	}

	minOut, ok := new(big.Int).SetString(rfqQuote.BuyAmount, 10)
	if !ok {
		return nil, apperror.New(apperror.CodeAdapterFailure,
			apperror.WithContext(fmt.Sprintf("rfq: bad buyAmount %q", rfqQuote.BuyAmount)))
	}

	return &quote.Quote{
		Venue:     quote.VenueRFQ,
		MinOutput: minOut,
		Payload:   RFQPayload{Quote: rfqQuote},
	}, nil
}
