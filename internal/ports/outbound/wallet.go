package outbound

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUserRejected is wrapped by wallets when the signature request was declined.
	ErrUserRejected = errors.New("user rejected the request")

	// ErrWalletDisconnected is returned by state-changing calls without an account.
	ErrWalletDisconnected = errors.New("wallet not connected")
)

// TxRequest is a contract call to be signed and broadcast.
type TxRequest struct {
	To     common.Address
	Method string
	Data   []byte
	Value  *big.Int
}

// TxHandle identifies a broadcast transaction.
type TxHandle struct {
	Hash        common.Hash
	SubmittedAt time.Time
}

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	TxHash      common.Hash
	Success     bool
	BlockNumber uint64
	GasUsed     uint64
}

// AccountProvider exposes the connected account, if any.
type AccountProvider interface {
	Account() (common.Address, bool)
}

// Wallet signs and submits transactions for the connected account.
type Wallet interface {
	AccountProvider

	// Submit signs and broadcasts the request. A declined signature returns an
	// error wrapping ErrUserRejected.
	Submit(ctx context.Context, req TxRequest) (TxHandle, error)

	// AwaitReceipt blocks until the transaction is mined or ctx is done.
	// There is no local timeout.
	AwaitReceipt(ctx context.Context, tx TxHandle) (Receipt, error)
}
