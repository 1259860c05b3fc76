package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

// ConfirmFunc decides whether tx may be signed. A non-nil error declines it.
type ConfirmFunc func(ctx context.Context, tx *types.Transaction) error

// ConfirmSigner asks confirm before every signature and reports a declined
// request as outbound.ErrUserRejected.
type ConfirmSigner struct {
	inner   Signer
	confirm ConfirmFunc
}

func NewConfirmSigner(inner Signer, confirm ConfirmFunc) (*ConfirmSigner, error) {
	if inner == nil {
		return nil, errors.New("inner signer cannot be nil")
	}
	if confirm == nil {
		return nil, errors.New("confirm func cannot be nil")
	}
	return &ConfirmSigner{inner: inner, confirm: confirm}, nil
}

func (s *ConfirmSigner) Address() common.Address {
	return s.inner.Address()
}

func (s *ConfirmSigner) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if err := s.confirm(ctx, tx); err != nil {
		return nil, fmt.Errorf("%w: %w", outbound.ErrUserRejected, err)
	}
	return s.inner.SignTx(ctx, tx, chainID)
}

// AllowTargets approves only calls to the given contracts. Zero addresses are
// ignored so optional contracts can be passed unconditionally.
func AllowTargets(targets ...common.Address) ConfirmFunc {
	allowed := make(map[common.Address]struct{}, len(targets))
	for _, t := range targets {
		if t != (common.Address{}) {
			allowed[t] = struct{}{}
		}
	}
	return func(_ context.Context, tx *types.Transaction) error {
		if tx.To() == nil {
			return errors.New("contract creation is not allowed")
		}
		if _, ok := allowed[*tx.To()]; !ok {
			return fmt.Errorf("target %s is not allowed", tx.To().Hex())
		}
		return nil
	}
}
