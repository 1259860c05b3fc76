package ethereum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

// Compile-time check that Wallet implements outbound.Wallet.
var _ outbound.Wallet = (*Wallet)(nil)

// TxBackend is the subset of ethclient.Client used to build, send and track
// transactions.
type TxBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// WalletConfig holds configuration for the Wallet.
type WalletConfig struct {
	// ChainID is required for EIP-155 signing.
	ChainID *big.Int

	// GasLimitBufferBps is added on top of the node's gas estimate. Defaults to 2000 (20%).
	GasLimitBufferBps int64

	// ReceiptPollInterval is how often AwaitReceipt asks for the receipt. Defaults to 2s.
	ReceiptPollInterval time.Duration

	Logger *slog.Logger
}

// WalletConfigDefaults returns a config with default values.
func WalletConfigDefaults() WalletConfig {
	return WalletConfig{
		GasLimitBufferBps:   2_000,
		ReceiptPollInterval: 2 * time.Second,
		Logger:              slog.Default(),
	}
}

// Wallet submits EIP-1559 transactions signed by its Signer. A Wallet without
// a signer is disconnected: it reports no account and refuses to submit.
type Wallet struct {
	config  WalletConfig
	backend TxBackend
	signer  Signer
	logger  *slog.Logger

	// serializes nonce allocation
	sendMu sync.Mutex
}

// NewWallet creates a Wallet. signer may be nil.
func NewWallet(backend TxBackend, signer Signer, config WalletConfig) (*Wallet, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if config.ChainID == nil || config.ChainID.Sign() <= 0 {
		return nil, errors.New("chain id must be positive")
	}

	defaults := WalletConfigDefaults()
	if config.GasLimitBufferBps <= 0 {
		config.GasLimitBufferBps = defaults.GasLimitBufferBps
	}
	if config.ReceiptPollInterval <= 0 {
		config.ReceiptPollInterval = defaults.ReceiptPollInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Wallet{
		config:  config,
		backend: backend,
		signer:  signer,
		logger:  config.Logger.With("component", "wallet"),
	}, nil
}

func (w *Wallet) Account() (common.Address, bool) {
	if w.signer == nil {
		return common.Address{}, false
	}
	return w.signer.Address(), true
}

func (w *Wallet) Submit(ctx context.Context, req outbound.TxRequest) (outbound.TxHandle, error) {
	if w.signer == nil {
		return outbound.TxHandle{}, outbound.ErrWalletDisconnected
	}
	from := w.signer.Address()

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	nonce, err := w.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return outbound.TxHandle{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	tip, err := w.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return outbound.TxHandle{}, fmt.Errorf("failed to suggest gas tip: %w", err)
	}
	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return outbound.TxHandle{}, fmt.Errorf("failed to get latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	to := req.To
	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  req.Data,
	})
	if err != nil {
		return outbound.TxHandle{}, fmt.Errorf("%s would fail: %w", req.Method, err)
	}
	gas += gas * uint64(w.config.GasLimitBufferBps) / 10_000

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.config.ChainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})

	signed, err := w.signer.SignTx(ctx, tx, w.config.ChainID)
	if err != nil {
		return outbound.TxHandle{}, fmt.Errorf("signing %s: %w", req.Method, err)
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return outbound.TxHandle{}, fmt.Errorf("failed to send %s: %w", req.Method, err)
	}

	w.logger.Info("transaction submitted",
		"method", req.Method,
		"to", to.Hex(),
		"hash", signed.Hash().Hex(),
		"nonce", nonce,
		"gas", gas)

	return outbound.TxHandle{Hash: signed.Hash(), SubmittedAt: time.Now()}, nil
}

func (w *Wallet) AwaitReceipt(ctx context.Context, tx outbound.TxHandle) (outbound.Receipt, error) {
	ticker := time.NewTicker(w.config.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.backend.TransactionReceipt(ctx, tx.Hash)
		switch {
		case err == nil:
			out := outbound.Receipt{
				TxHash:  tx.Hash,
				Success: receipt.Status == types.ReceiptStatusSuccessful,
				GasUsed: receipt.GasUsed,
			}
			if receipt.BlockNumber != nil {
				out.BlockNumber = receipt.BlockNumber.Uint64()
			}
			return out, nil
		case errors.Is(err, ethereum.NotFound):
			// still pending
		default:
			w.logger.Warn("receipt lookup failed", "hash", tx.Hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return outbound.Receipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
