package flashloan

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPremium(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   string
	}{
		{"one_million", "1000000", "900"},
		{"ten_thousand", "10000", "9"},
		{"truncates_down", "12345", "11"}, // 111105 / 10000
		{"below_fee_floor", "1111", "0"},  // 9999 / 10000
		{"eighteen_decimals", "1000000000000000000", "900000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, ok := new(big.Int).SetString(tt.amount, 10)
			require.True(t, ok)

			got := Premium(amount)
			assert.Equal(t, tt.want, got.String())
			// Premium must never mutate the borrowed amount.
			assert.Equal(t, tt.amount, amount.String())
		})
	}
}
