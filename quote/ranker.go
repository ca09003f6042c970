package quote

import (
	"math/big"
	"sort"
)

// arbitrage trigger: spread strictly greater than 0.5% of the best quote.
const arbThresholdBPS = 50

// Rank sorts quotes by guaranteed minimum output, descending. The sort is
// stable so equal quotes keep arrival order: first seen wins ties.
func Rank(quotes []*Quote) []*Quote {
	ranked := make([]*Quote, len(quotes))
	copy(ranked, quotes)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].MinOutput.Cmp(ranked[j].MinOutput) > 0
	})
	return ranked
}

// IsArbitrageOpportunity reports whether the spread between the two best
// quotes exceeds 0.5% of the best. Exact integer arithmetic in basis
// points; no floating point crosses this boundary.
func IsArbitrageOpportunity(ranked []*Quote) bool {
	if len(ranked) < 2 {
		return false
	}

	best := ranked[0].MinOutput
	second := ranked[1].MinOutput
	if best.Sign() <= 0 {
		return false
	}

	spread := new(big.Int).Sub(best, second)
	if spread.Sign() <= 0 {
		return false
	}

	bps := spread.Mul(spread, big.NewInt(10000))
	bps.Div(bps, best)
	return bps.Cmp(big.NewInt(arbThresholdBPS)) > 0
}
