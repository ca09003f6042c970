package relay

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/0xsequent/arbswap/apperror"
	"github.com/0xsequent/arbswap/types"
)

// fakeBackend signs with a throwaway key and serves canned chain state.
type fakeBackend struct {
	key        *ecdsa.PrivateKey
	nonce      uint64
	head       uint64
	advance    bool // head moves forward one block per read
	receipt    *ethtypes.Receipt
	receiptErr error
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &fakeBackend{key: key}
}

func (f *fakeBackend) SignCall(call *types.PreparedCall, nonce uint64, gasLimit uint64) (*ethtypes.Transaction, error) {
	to := call.To
	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     nonce,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       gasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      call.Data,
	})
	return ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(big.NewInt(1)), f.key)
}

func (f *fakeBackend) PendingNonce(ctx context.Context) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	head := f.head
	if f.advance {
		f.head++
	}
	return head, nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	receipt := *f.receipt
	receipt.TxHash = hash
	return &receipt, nil
}

func newTestClient(t *testing.T, relayURL string) *Client {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	history, err := lru.New(8)
	require.NoError(t, err)

	return &Client{
		httpClient: &http.Client{Timeout: time.Second},
		relayURL:   relayURL,
		authKey:    key,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		history:    history,
		logger:     zaptest.NewLogger(t),
	}
}

func TestNewClientRejectsBadAuthKey(t *testing.T) {
	_, err := NewClient("https://relay.invalid", "not-hex", nil, rate.NewLimiter(rate.Inf, 1), zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Equal(t, apperror.CodeSignerMisconfigured, apperror.GetCode(err))
}

func TestCallSignsRequests(t *testing.T) {
	var gotHeader string
	var gotMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get(signatureHeader)
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotMethod = req.Method
		_, _ = w.Write([]byte(`{"result":{}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.call(context.Background(), methodSendBundle, &bundleParams{})
	require.NoError(t, err)

	assert.Equal(t, methodSendBundle, gotMethod)
	// Header format is address:signature.
	require.NotEmpty(t, gotHeader)
	parts := strings.SplitN(gotHeader, ":", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, crypto.PubkeyToAddress(client.authKey.PublicKey).Hex(), parts[0])
	assert.True(t, strings.HasPrefix(parts[1], "0x"))
}

func TestCallSurfacesRelayErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":-32600,"message":"bundle too large"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.call(context.Background(), methodSendBundle, &bundleParams{})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeRPCError, apperror.GetCode(err))
	assert.Contains(t, err.Error(), "bundle too large")
}

func TestSimulate(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantCode apperror.Code
	}{
		{
			name:     "passes_when_no_revert",
			response: `{"result":{"bundleHash":"0xabc","firstRevert":null,"totalGasUsed":21000}}`,
		},
		{
			name:     "passes_when_field_absent",
			response: `{"result":{"bundleHash":"0xabc","totalGasUsed":21000}}`,
		},
		{
			name:     "rejected_on_first_revert",
			response: `{"result":{"firstRevert":{"txHash":"0x1","revert":"0x08c379a0"}}}`,
			wantCode: apperror.CodeSimulationRejected,
		},
		{
			name:     "rejected_on_tx_error",
			response: `{"result":{"firstRevert":null,"results":[{"txHash":"0x1","error":"execution reverted"}]}}`,
			wantCode: apperror.CodeSimulationRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotParams bundleParams
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req rpcRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, methodCallBundle, req.Method)
				raw, _ := json.Marshal(req.Params[0])
				require.NoError(t, json.Unmarshal(raw, &gotParams))
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			err := client.Simulate(context.Background(), []string{"0x02f8"}, 100)

			if tt.wantCode == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperror.GetCode(err))
			}
			assert.Equal(t, "0x64", gotParams.BlockNumber)
			assert.Equal(t, "latest", gotParams.StateBlockNumber)
		})
	}
}

func TestWaitForInclusion(t *testing.T) {
	txHash := common.HexToHash("0x1111")

	tests := []struct {
		name     string
		backend  func(t *testing.T) *fakeBackend
		wantCode apperror.Code
	}{
		{
			name: "included",
			backend: func(t *testing.T) *fakeBackend {
				fb := newFakeBackend(t)
				fb.head = 100
				fb.receipt = &ethtypes.Receipt{
					Status:      ethtypes.ReceiptStatusSuccessful,
					BlockNumber: big.NewInt(100),
				}
				return fb
			},
		},
		{
			name: "receipt_reverted",
			backend: func(t *testing.T) *fakeBackend {
				fb := newFakeBackend(t)
				fb.head = 100
				fb.receipt = &ethtypes.Receipt{
					Status:      ethtypes.ReceiptStatusFailed,
					BlockNumber: big.NewInt(100),
				}
				return fb
			},
			wantCode: apperror.CodeRelayNotIncluded,
		},
		{
			name: "bundle_dropped",
			backend: func(t *testing.T) *fakeBackend {
				fb := newFakeBackend(t)
				// Past the grace block with no receipt: not included.
				fb.head = 102
				fb.receiptErr = ethereum.NotFound
				return fb
			},
			wantCode: apperror.CodeRelayNotIncluded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, "http://unused.localhost")
			client.backend = tt.backend(t)

			err := client.WaitForInclusion(context.Background(), txHash, 100)
			if tt.wantCode == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperror.GetCode(err))
			}
		})
	}
}

func TestExecute(t *testing.T) {
	t.Run("full_pipeline", func(t *testing.T) {
		var methods []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req rpcRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			methods = append(methods, req.Method)
			switch req.Method {
			case methodCallBundle:
				_, _ = w.Write([]byte(`{"result":{"bundleHash":"0xabc","firstRevert":null}}`))
			case methodSendBundle:
				_, _ = w.Write([]byte(`{"result":{"bundleHash":"0xabc"}}`))
			}
		}))
		defer server.Close()

		fb := newFakeBackend(t)
		fb.head = 100
		fb.advance = true // target 101, then the head catches up
		fb.receipt = &ethtypes.Receipt{
			Status:      ethtypes.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(101),
		}

		client := newTestClient(t, server.URL)
		client.backend = fb

		hash, err := client.Execute(context.Background(), []types.PreparedCall{{
			To:    common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"),
			Data:  []byte{0x01},
			Value: big.NewInt(0),
		}}, 2_000_000)
		require.NoError(t, err)
		assert.NotEqual(t, common.Hash{}, hash)

		// Simulation strictly precedes submission.
		assert.Equal(t, []string{methodCallBundle, methodSendBundle}, methods)
	})

	t.Run("simulation_rejected_blocks_submission", func(t *testing.T) {
		var methods []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req rpcRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			methods = append(methods, req.Method)
			_, _ = w.Write([]byte(`{"result":{"firstRevert":{"txHash":"0x1","revert":"0x"}}}`))
		}))
		defer server.Close()

		fb := newFakeBackend(t)
		fb.head = 100

		client := newTestClient(t, server.URL)
		client.backend = fb

		_, err := client.Execute(context.Background(), []types.PreparedCall{{
			To:   common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"),
			Data: []byte{0x01},
		}}, 2_000_000)
		require.Error(t, err)
		assert.Equal(t, apperror.CodeSimulationRejected, apperror.GetCode(err))
		assert.Equal(t, []string{methodCallBundle}, methods)
	})

	t.Run("empty_bundle_rejected", func(t *testing.T) {
		client := newTestClient(t, "http://unused.localhost")
		client.backend = newFakeBackend(t)

		_, err := client.Execute(context.Background(), nil, 2_000_000)
		require.Error(t, err)
		assert.Equal(t, apperror.CodeInvalidInput, apperror.GetCode(err))
	})
}

func TestBundleKey(t *testing.T) {
	txs := []string{"0x01", "0x02"}

	assert.Equal(t, bundleKey(txs, 100), bundleKey(txs, 100))
	assert.NotEqual(t, bundleKey(txs, 100), bundleKey(txs, 101))
	assert.NotEqual(t, bundleKey(txs, 100), bundleKey([]string{"0x01"}, 100))
}
