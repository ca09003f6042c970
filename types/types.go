package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapRequest describes one token swap intent. Immutable once created;
// the amount is a human decimal string and is converted to the source
// token's smallest unit by the quote adapters.
type SwapRequest struct {
	Chain       string
	FromToken   common.Address
	ToToken     common.Address
	Amount      string
	SlippageBPS uint32
}

// DefaultSlippageBPS is applied when a request carries no slippage.
const DefaultSlippageBPS uint32 = 50

// Slippage returns the request slippage in basis points, defaulted.
func (r *SwapRequest) Slippage() uint32 {
	if r.SlippageBPS == 0 {
		return DefaultSlippageBPS
	}
	return r.SlippageBPS
}

// PreparedCall is one unsigned on-chain call: target, calldata and the
// native value to attach. A quote may need 0, 1 or 2 of these
// (approval + swap).
type PreparedCall struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// ArbitrageBundle is an ordered sequence of prepared calls. Insertion
// order is execution order and must be preserved exactly.
type ArbitrageBundle struct {
	Calls []PreparedCall
}

// Append adds a call to the end of the bundle.
func (b *ArbitrageBundle) Append(call PreparedCall) {
	b.Calls = append(b.Calls, call)
}

// Transaction is the result handed back to the caller of Swap.
type Transaction struct {
	Hash    common.Hash
	From    common.Address
	To      common.Address
	Value   *big.Int
	ChainID uint64
}
