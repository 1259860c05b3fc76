package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

var _ outbound.Wallet = (*MockWallet)(nil)

// MockWallet records submitted requests. By default every submission succeeds
// and its receipt is returned immediately. SubmitFn and ReceiptFn override that.
// Setting Hold makes AwaitReceipt block until Release is called for the hash or
// the context is cancelled.
type MockWallet struct {
	mu sync.Mutex

	Addr      common.Address
	Connected bool

	SubmitFn  func(ctx context.Context, req outbound.TxRequest) (outbound.TxHandle, error)
	ReceiptFn func(ctx context.Context, tx outbound.TxHandle) (outbound.Receipt, error)

	// OnSubmit runs after a submission is recorded, e.g. to apply its effect
	// to a mock reader.
	OnSubmit func(req outbound.TxRequest)

	Hold     bool
	released map[common.Hash]chan outbound.Receipt

	Submitted []outbound.TxRequest
	Hashes    []common.Hash
	submitted chan outbound.TxRequest
}

func NewMockWallet(addr common.Address) *MockWallet {
	return &MockWallet{
		Addr:      addr,
		Connected: true,
		released:  make(map[common.Hash]chan outbound.Receipt),
		submitted: make(chan outbound.TxRequest, 64),
	}
}

func (m *MockWallet) Account() (common.Address, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Addr, m.Connected
}

func (m *MockWallet) Submit(ctx context.Context, req outbound.TxRequest) (outbound.TxHandle, error) {
	m.mu.Lock()
	if !m.Connected {
		m.mu.Unlock()
		return outbound.TxHandle{}, outbound.ErrWalletDisconnected
	}
	submitFn := m.SubmitFn
	n := len(m.Submitted)
	m.mu.Unlock()

	var handle outbound.TxHandle
	if submitFn != nil {
		h, err := submitFn(ctx, req)
		if err != nil {
			return outbound.TxHandle{}, err
		}
		handle = h
	} else {
		handle = outbound.TxHandle{
			Hash:        crypto.Keccak256Hash([]byte(fmt.Sprintf("%s-%d", req.Method, n))),
			SubmittedAt: time.Now(),
		}
	}

	m.mu.Lock()
	m.Submitted = append(m.Submitted, req)
	m.Hashes = append(m.Hashes, handle.Hash)
	if m.Hold {
		m.released[handle.Hash] = make(chan outbound.Receipt, 1)
	}
	onSubmit := m.OnSubmit
	m.mu.Unlock()
	if onSubmit != nil {
		onSubmit(req)
	}
	m.submitted <- req
	return handle, nil
}

func (m *MockWallet) AwaitReceipt(ctx context.Context, tx outbound.TxHandle) (outbound.Receipt, error) {
	m.mu.Lock()
	receiptFn := m.ReceiptFn
	ch := m.released[tx.Hash]
	m.mu.Unlock()

	if ch != nil {
		select {
		case r := <-ch:
			return r, nil
		case <-ctx.Done():
			return outbound.Receipt{}, ctx.Err()
		}
	}
	if receiptFn != nil {
		return receiptFn(ctx, tx)
	}
	return outbound.Receipt{TxHash: tx.Hash, Success: true, BlockNumber: 1}, nil
}

// Release completes a held transaction with the given outcome.
func (m *MockWallet) Release(hash common.Hash, success bool) error {
	m.mu.Lock()
	ch := m.released[hash]
	m.mu.Unlock()
	if ch == nil {
		return errors.New("transaction not held")
	}
	ch <- outbound.Receipt{TxHash: hash, Success: success, BlockNumber: 1}
	return nil
}

// WaitSubmitted blocks until the next submission or the timeout.
func (m *MockWallet) WaitSubmitted(timeout time.Duration) (outbound.TxRequest, bool) {
	select {
	case req := <-m.submitted:
		return req, true
	case <-time.After(timeout):
		return outbound.TxRequest{}, false
	}
}

// LastHash returns the hash of the most recent submission.
func (m *MockWallet) LastHash() common.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Hashes) == 0 {
		return common.Hash{}
	}
	return m.Hashes[len(m.Hashes)-1]
}

// Methods returns the method names submitted so far, in order.
func (m *MockWallet) Methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Submitted))
	for i, r := range m.Submitted {
		out[i] = r.Method
	}
	return out
}
