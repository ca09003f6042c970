// Package quote defines the common quote shape produced by every venue
// adapter, plus ranking and arbitrage detection over collected quotes.
package quote

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xsequent/arbswap/types"
)

// Venue identifies the liquidity venue a quote came from.
type Venue int

const (
	VenueRouteAggregator Venue = iota
	VenueRFQ
)

// String returns the venue name for logs and metrics labels.
func (v Venue) String() string {
	switch v {
	case VenueRouteAggregator:
		return "route_aggregator"
	case VenueRFQ:
		return "rfq"
	default:
		return "unknown"
	}
}

// Payload is the venue-specific execution payload carried by a quote.
// Each venue adapter supplies its own concrete type; the transaction
// preparer dispatches on the concrete type.
type Payload interface {
	Venue() Venue
}

// Quote is one venue's best-effort swap quote. Quotes are comparable only
// by MinOutput, expressed in the destination token's smallest unit.
type Quote struct {
	Venue     Venue
	MinOutput *big.Int
	Payload   Payload
}

// Source fetches a quote from one external liquidity venue. A venue that
// cannot quote the request (network error, no route, unsupported chain)
// returns an error; callers tolerate partial failure and proceed with
// whatever quotes succeeded.
type Source interface {
	Name() string
	GetQuote(ctx context.Context, from common.Address, req *types.SwapRequest) (*Quote, error)
}
