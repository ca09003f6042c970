package gas

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBackend struct {
	baseFee   *big.Int
	tip       *big.Int
	headerErr error
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	if f.headerErr != nil {
		return nil, f.headerErr
	}
	return &ethtypes.Header{BaseFee: f.baseFee}, nil
}

func (f *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return f.tip, nil
}

func TestNewEstimator(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("primes_fees", func(t *testing.T) {
		e, err := NewEstimator(context.Background(),
			&fakeBackend{baseFee: big.NewInt(100), tip: big.NewInt(2)}, logger)
		require.NoError(t, err)
		defer e.Stop()

		tip, feeCap := e.SuggestFees()
		assert.Equal(t, "2", tip.String())
		assert.Equal(t, "202", feeCap.String()) // 2*baseFee + tip
	})

	t.Run("rejects_missing_base_fee", func(t *testing.T) {
		_, err := NewEstimator(context.Background(),
			&fakeBackend{baseFee: nil, tip: big.NewInt(2)}, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "base fee")
	})

	t.Run("propagates_header_failure", func(t *testing.T) {
		_, err := NewEstimator(context.Background(),
			&fakeBackend{headerErr: errors.New("rpc down")}, logger)
		require.Error(t, err)
	})
}

func TestEstimateCost(t *testing.T) {
	e, err := NewEstimator(context.Background(),
		&fakeBackend{baseFee: big.NewInt(100), tip: big.NewInt(2)}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Stop()

	assert.Equal(t, "2020", e.EstimateCost(10).String())
}
