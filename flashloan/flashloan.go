// Package flashloan defines the flash-loan provider contract and the
// fixed premium math shared by its implementations.
package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xsequent/arbswap/types"
)

// premiumBPS is the lending pool's fixed flash-loan fee: 9 basis points.
const premiumBPS = 9

// Request describes one flash loan. Assets and Amounts are parallel and
// non-empty; Premiums is computed, one per asset; Params carries the
// ABI-encoded arbitrage payload executed inside the loan callback.
type Request struct {
	Assets    []common.Address
	Amounts   []*big.Int
	Premiums  []*big.Int
	Initiator common.Address
	Params    []byte
}

// CallbackBuilder produces the encoded callback parameters for a loan
// whose assets, amounts and premiums are already fixed.
type CallbackBuilder func(req *Request) ([]byte, error)

// Sender signs and lands a sequence of prepared calls atomically. The
// arbitrage path backs this with the private bundle relay.
type Sender interface {
	Execute(ctx context.Context, calls []types.PreparedCall, gasLimit uint64) (common.Hash, error)
}

// Provider executes flash loans against one lending pool.
type Provider interface {
	ExecuteFlashLoan(ctx context.Context, assets []common.Address, amounts []*big.Int, build CallbackBuilder) (common.Hash, error)
	String() string
}

// Premium computes the pool's fee for a borrowed amount: amount * 9 /
// 10000 with integer truncation.
func Premium(amount *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(premiumBPS))
	return fee.Div(fee, big.NewInt(10000))
}
