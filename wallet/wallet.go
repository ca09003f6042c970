// Package wallet wraps the signing account and its chain transport. It
// serializes sends per account: the nonce is read at signing time, so two
// in-flight sends for the same account must not run concurrently.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/0xsequent/arbswap/apperror"
	"github.com/0xsequent/arbswap/gas"
	"github.com/0xsequent/arbswap/types"
)

// Wallet signs and sends transactions for one account on one chain.
type Wallet struct {
	key       *ecdsa.PrivateKey
	address   common.Address
	client    *ethclient.Client
	chainID   *big.Int
	estimator *gas.Estimator
	logger    *zap.Logger
}

// New creates a wallet from a 0x-prefixed private key hex string. Missing
// or malformed key material is fatal at construction time.
func New(privateKeyHex string, client *ethclient.Client, chainID uint64, estimator *gas.Estimator, logger *zap.Logger) (*Wallet, error) {
	if client == nil {
		return nil, fmt.Errorf("ethclient cannot be nil")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, apperror.New(apperror.CodeSignerMisconfigured,
			apperror.WithContext("invalid private key"), apperror.WithCause(err))
	}
	return &Wallet{
		key:       key,
		address:   crypto.PubkeyToAddress(key.PublicKey),
		client:    client,
		chainID:   new(big.Int).SetUint64(chainID),
		estimator: estimator,
		logger:    logger,
	}, nil
}

// Address returns the account address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// ChainID returns the chain the wallet signs for.
func (w *Wallet) ChainID() uint64 {
	return w.chainID.Uint64()
}

// Client exposes the underlying RPC client for read-only callers.
func (w *Wallet) Client() *ethclient.Client {
	return w.client
}

// SignCall signs a prepared call as an EIP-1559 transaction with an
// explicit nonce. Blob-carrying transaction types are not supported.
func (w *Wallet) SignCall(call *types.PreparedCall, nonce uint64, gasLimit uint64) (*ethtypes.Transaction, error) {
	tip, feeCap := w.estimator.SuggestFees()
	value := call.Value
	if value == nil {
		value = big.NewInt(0)
	}
	to := call.To

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   w.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      call.Data,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// PendingNonce returns the account's next nonce, counting pending txs.
func (w *Wallet) PendingNonce(ctx context.Context) (uint64, error) {
	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return 0, apperror.Wrap(err, apperror.CodeRPCError, "get pending nonce")
	}
	return nonce, nil
}

// TransactionReceipt fetches the receipt of a mined transaction. The
// not-found error is passed through so callers can distinguish an absent
// receipt from a transport failure.
func (w *Wallet) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return w.client.TransactionReceipt(ctx, hash)
}

// SignAndSend signs a prepared call at the account's pending nonce and
// broadcasts it through the public transaction pool.
func (w *Wallet) SignAndSend(ctx context.Context, call *types.PreparedCall, gasLimit uint64) (common.Hash, error) {
	nonce, err := w.PendingNonce(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	signed, err := w.SignCall(call, nonce, gasLimit)
	if err != nil {
		return common.Hash{}, err
	}

	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, apperror.Wrap(err, apperror.CodeRPCError, "send transaction")
	}

	w.logger.Debug("Transaction sent",
		zap.String("hash", signed.Hash().Hex()),
		zap.String("to", call.To.Hex()),
		zap.Uint64("nonce", nonce))

	return signed.Hash(), nil
}

// WaitForReceipt polls until the transaction is mined or ctx is done.
func (w *Wallet) WaitForReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		receipt, err := w.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, apperror.Wrap(ctx.Err(), apperror.CodeRPCError, "wait for receipt")
		case <-ticker.C:
		}
	}
}

// BlockNumber returns the current chain head number.
func (w *Wallet) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := w.client.BlockNumber(ctx)
	if err != nil {
		return 0, apperror.Wrap(err, apperror.CodeRPCError, "get block number")
	}
	return n, nil
}
