// Package relay submits signed transaction bundles to a private relay so
// the arbitrage sequence lands atomically or not at all. Bundles are
// simulated before submission and never touch the public transaction pool.
package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xsequent/arbswap/apperror"
	"github.com/0xsequent/arbswap/types"
)

const (
	contentTypeJSON  = "application/json"
	signatureHeader  = "X-Flashbots-Signature"
	methodCallBundle = "eth_callBundle"
	methodSendBundle = "eth_sendBundle"

	submissionHistorySize = 128
)

// Backend is the signing and chain-reading surface the relay needs from
// the wallet.
type Backend interface {
	SignCall(call *types.PreparedCall, nonce uint64, gasLimit uint64) (*ethtypes.Transaction, error)
	PendingNonce(ctx context.Context) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// Client signs prepared calls into a bundle and lands it through the
// relay. It implements the sender contract of the flash-loan path.
type Client struct {
	httpClient *http.Client
	relayURL   string
	authKey    *ecdsa.PrivateKey
	backend    Backend
	limiter    *rate.Limiter
	history    *lru.Cache
	logger     *zap.Logger
}

// NewClient creates a relay client. The auth key identifies the searcher
// to the relay and is independent of the transaction signing key.
func NewClient(relayURL string, authKeyHex string, backend Backend, limiter *rate.Limiter, logger *zap.Logger) (*Client, error) {
	authKey, err := crypto.HexToECDSA(strings.TrimPrefix(authKeyHex, "0x"))
	if err != nil {
		return nil, apperror.New(apperror.CodeSignerMisconfigured,
			apperror.WithContext("invalid relay auth key"), apperror.WithCause(err))
	}
	history, err := lru.New(submissionHistorySize)
	if err != nil {
		return nil, err
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		relayURL:   relayURL,
		authKey:    authKey,
		backend:    backend,
		limiter:    limiter,
		history:    history,
		logger:     logger,
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type bundleParams struct {
	Txs              []string `json:"txs"`
	BlockNumber      string   `json:"blockNumber"`
	StateBlockNumber string   `json:"stateBlockNumber,omitempty"`
}

type simulationResult struct {
	BundleHash  string          `json:"bundleHash"`
	FirstRevert json.RawMessage `json:"firstRevert"`
	TotalGas    uint64          `json:"totalGasUsed"`
	Results     []struct {
		TxHash string `json:"txHash"`
		Error  string `json:"error"`
		Revert string `json:"revert"`
	} `json:"results"`
}

// call performs one authenticated JSON-RPC round trip. The relay
// identifies the caller by the signature header over the request body.
func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(&rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  []interface{}{params},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	signature, err := crypto.Sign(
		accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(payload)))),
		c.authKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	header := fmt.Sprintf("%s:%s",
		crypto.PubkeyToAddress(c.authKey.PublicKey).Hex(),
		hexutil.Encode(signature),
	)

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set(signatureHeader, header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeRPCError, "relay request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperror.New(apperror.CodeRPCError,
			apperror.WithContext(fmt.Sprintf("relay returned %d: %s", resp.StatusCode, string(body))))
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeRPCError, "decode relay response")
	}
	if decoded.Error != nil {
		return nil, apperror.New(apperror.CodeRPCError,
			apperror.WithContext(fmt.Sprintf("relay error %d: %s", decoded.Error.Code, decoded.Error.Message)))
	}
	return decoded.Result, nil
}

// Simulate runs the bundle against the parent of the target block. The
// bundle passes only if no transaction in it reverts.
func (c *Client) Simulate(ctx context.Context, rawTxs []string, targetBlock uint64) error {
	result, err := c.call(ctx, methodCallBundle, &bundleParams{
		Txs:              rawTxs,
		BlockNumber:      hexutil.EncodeUint64(targetBlock),
		StateBlockNumber: "latest",
	})
	if err != nil {
		return err
	}

	var sim simulationResult
	if err := json.Unmarshal(result, &sim); err != nil {
		return apperror.Wrap(err, apperror.CodeRPCError, "decode simulation result")
	}

	if len(sim.FirstRevert) > 0 && string(sim.FirstRevert) != "null" {
		return apperror.New(apperror.CodeSimulationRejected,
			apperror.WithContext(string(sim.FirstRevert)))
	}
	for _, r := range sim.Results {
		if r.Error != "" {
			return apperror.New(apperror.CodeSimulationRejected,
				apperror.WithContext(fmt.Sprintf("tx %s: %s", r.TxHash, r.Error)))
		}
	}

	c.logger.Debug("Bundle simulation passed",
		zap.String("bundleHash", sim.BundleHash),
		zap.Uint64("totalGas", sim.TotalGas))
	return nil
}

// SendBundle submits the bundle for the target block.
func (c *Client) SendBundle(ctx context.Context, rawTxs []string, targetBlock uint64) error {
	_, err := c.call(ctx, methodSendBundle, &bundleParams{
		Txs:         rawTxs,
		BlockNumber: hexutil.EncodeUint64(targetBlock),
	})
	return err
}

// WaitForInclusion blocks until the target block is mined, then checks
// whether the bundle's first transaction landed. An absent receipt means
// the builder dropped the bundle; nothing reached the chain.
func (c *Client) WaitForInclusion(ctx context.Context, txHash common.Hash, targetBlock uint64) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		head, err := c.backend.BlockNumber(ctx)
		if err != nil {
			return err
		}
		if head >= targetBlock {
			receipt, err := c.backend.TransactionReceipt(ctx, txHash)
			if err == nil && receipt != nil {
				if receipt.Status == 0 {
					return apperror.New(apperror.CodeRelayNotIncluded,
						apperror.WithContext(fmt.Sprintf("tx %s reverted in block %d", txHash.Hex(), receipt.BlockNumber)))
				}
				return nil
			}
			// One grace block: receipts can lag head by a poll cycle.
			if head > targetBlock {
				return apperror.New(apperror.CodeRelayNotIncluded,
					apperror.WithContext(fmt.Sprintf("bundle not included in block %d", targetBlock)))
			}
		}

		select {
		case <-ctx.Done():
			return apperror.Wrap(ctx.Err(), apperror.CodeRelayNotIncluded, "wait for inclusion")
		case <-ticker.C:
		}
	}
}

// bundleKey derives a stable identity for a signed bundle at a block.
func bundleKey(rawTxs []string, targetBlock uint64) uint64 {
	h := xxhash.New()
	for _, tx := range rawTxs {
		_, _ = h.WriteString(tx)
	}
	var block [8]byte
	binary.BigEndian.PutUint64(block[:], targetBlock)
	_, _ = h.Write(block[:])
	return h.Sum64()
}

// Execute signs the calls with consecutive nonces, simulates the bundle
// against the next block, and submits it. The returned hash is the first
// transaction's; the relay either lands the whole bundle or none of it.
func (c *Client) Execute(ctx context.Context, calls []types.PreparedCall, gasLimit uint64) (common.Hash, error) {
	if len(calls) == 0 {
		return common.Hash{}, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("empty bundle"))
	}

	nonce, err := c.backend.PendingNonce(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	rawTxs := make([]string, len(calls))
	var firstHash common.Hash
	for i := range calls {
		signed, err := c.backend.SignCall(&calls[i], nonce+uint64(i), gasLimit)
		if err != nil {
			return common.Hash{}, err
		}
		encoded, err := signed.MarshalBinary()
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to encode transaction: %w", err)
		}
		rawTxs[i] = hexutil.Encode(encoded)
		if i == 0 {
			firstHash = signed.Hash()
		}
	}

	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	targetBlock := head + 1

	key := bundleKey(rawTxs, targetBlock)
	if _, seen := c.history.Get(key); seen {
		return common.Hash{}, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(fmt.Sprintf("bundle already submitted for block %d", targetBlock)))
	}

	if err := c.Simulate(ctx, rawTxs, targetBlock); err != nil {
		return common.Hash{}, err
	}

	if err := c.SendBundle(ctx, rawTxs, targetBlock); err != nil {
		return common.Hash{}, err
	}
	c.history.Add(key, targetBlock)

	c.logger.Info("Bundle submitted",
		zap.Uint64("targetBlock", targetBlock),
		zap.Int("txs", len(rawTxs)),
		zap.String("firstTx", firstHash.Hex()))

	if err := c.WaitForInclusion(ctx, firstHash, targetBlock); err != nil {
		return common.Hash{}, err
	}

	return firstHash, nil
}
