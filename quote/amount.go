package quote

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToSmallestUnit converts a human decimal amount string into the token's
// smallest integer unit using its on-chain decimals. Precision beyond the
// token's decimals is truncated, never rounded up.
func ToSmallestUnit(amount string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %q", amount)
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}
