package blockchain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

// marketParamsArg mirrors the MarketParams tuple; field names must match the
// camel-cased ABI component names for abi.Pack.
type marketParamsArg struct {
	LoanToken       common.Address
	CollateralToken common.Address
	Oracle          common.Address
	Irm             common.Address
	Lltv            *big.Int
}

// MarketCalls encodes the state-changing calls the dashboard submits.
// Every amount is range-checked as a uint256 before encoding.
type MarketCalls struct {
	market common.Address
	faucet common.Address
	params marketParamsArg

	marketABI *abi.ABI
	erc20ABI  *abi.ABI
	faucetABI *abi.ABI
}

// NewMarketCalls creates an encoder for the market at address with params.
// A zero faucet address disables Claim.
func NewMarketCalls(market, faucet common.Address, params entity.MarketParams) (*MarketCalls, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market params: %w", err)
	}
	marketABI, err := abis.GetMarketABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load market ABI: %w", err)
	}
	erc20ABI, err := abis.GetERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load ERC20 ABI: %w", err)
	}
	faucetABI, err := abis.GetFaucetABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load faucet ABI: %w", err)
	}

	return &MarketCalls{
		market: market,
		faucet: faucet,
		params: marketParamsArg{
			LoanToken:       params.LoanToken,
			CollateralToken: params.CollateralToken,
			Oracle:          params.Oracle,
			Irm:             params.IRM,
			Lltv:            new(big.Int).Set(params.LLTV),
		},
		marketABI: marketABI,
		erc20ABI:  erc20ABI,
		faucetABI: faucetABI,
	}, nil
}

// Market returns the market contract address, the spender for approvals.
func (c *MarketCalls) Market() common.Address {
	return c.market
}

// Approve grants the market an allowance of amount on token.
func (c *MarketCalls) Approve(token common.Address, amount *big.Int) (outbound.TxRequest, error) {
	v, err := uintArg("amount", amount)
	if err != nil {
		return outbound.TxRequest{}, err
	}
	return c.pack(c.erc20ABI, token, "approve", c.market, v)
}

// Supply deposits assets of the loan token on behalf of onBehalf.
func (c *MarketCalls) Supply(assets *big.Int, onBehalf common.Address) (outbound.TxRequest, error) {
	v, err := positiveArg("assets", assets)
	if err != nil {
		return outbound.TxRequest{}, err
	}
	return c.pack(c.marketABI, c.market, "supply", c.params, v, new(big.Int), onBehalf, []byte{})
}

// Withdraw redeems assets of supplied loan token to receiver.
func (c *MarketCalls) Withdraw(assets *big.Int, onBehalf, receiver common.Address) (outbound.TxRequest, error) {
	v, err := positiveArg("assets", assets)
	if err != nil {
		return outbound.TxRequest{}, err
	}
	return c.pack(c.marketABI, c.market, "withdraw", c.params, v, new(big.Int), onBehalf, receiver)
}

// SupplyCollateral posts assets of the collateral token.
func (c *MarketCalls) SupplyCollateral(assets *big.Int, onBehalf common.Address) (outbound.TxRequest, error) {
	v, err := positiveArg("assets", assets)
	if err != nil {
		return outbound.TxRequest{}, err
	}
	return c.pack(c.marketABI, c.market, "supplyCollateral", c.params, v, onBehalf, []byte{})
}

// WithdrawCollateral returns assets of posted collateral to receiver.
func (c *MarketCalls) WithdrawCollateral(assets *big.Int, onBehalf, receiver common.Address) (outbound.TxRequest, error) {
	v, err := positiveArg("assets", assets)
	if err != nil {
		return outbound.TxRequest{}, err
	}
	return c.pack(c.marketABI, c.market, "withdrawCollateral", c.params, v, onBehalf, receiver)
}

// Borrow draws assets of the loan token to receiver.
func (c *MarketCalls) Borrow(assets *big.Int, onBehalf, receiver common.Address) (outbound.TxRequest, error) {
	v, err := positiveArg("assets", assets)
	if err != nil {
		return outbound.TxRequest{}, err
	}
	return c.pack(c.marketABI, c.market, "borrow", c.params, v, new(big.Int), onBehalf, receiver)
}

// RepayAssets repays an exact asset amount.
func (c *MarketCalls) RepayAssets(assets *big.Int, onBehalf common.Address) (outbound.TxRequest, error) {
	v, err := positiveArg("assets", assets)
	if err != nil {
		return outbound.TxRequest{}, err
	}
	return c.pack(c.marketABI, c.market, "repay", c.params, v, new(big.Int), onBehalf, []byte{})
}

// RepayShares repays by shares so that interest accrued between read and
// mining cannot leave dust behind.
func (c *MarketCalls) RepayShares(shares *big.Int, onBehalf common.Address) (outbound.TxRequest, error) {
	v, err := positiveArg("shares", shares)
	if err != nil {
		return outbound.TxRequest{}, err
	}
	return c.pack(c.marketABI, c.market, "repay", c.params, new(big.Int), v, onBehalf, []byte{})
}

// Liquidate seizes seizedAssets of the borrower's collateral.
func (c *MarketCalls) Liquidate(borrower common.Address, seizedAssets *big.Int) (outbound.TxRequest, error) {
	v, err := positiveArg("seizedAssets", seizedAssets)
	if err != nil {
		return outbound.TxRequest{}, err
	}
	return c.pack(c.marketABI, c.market, "liquidate", c.params, borrower, v, new(big.Int), []byte{})
}

// Claim requests the one-time faucet drip.
func (c *MarketCalls) Claim() (outbound.TxRequest, error) {
	if c.faucet == (common.Address{}) {
		return outbound.TxRequest{}, fmt.Errorf("faucet address not configured")
	}
	return c.pack(c.faucetABI, c.faucet, "claim")
}

func (c *MarketCalls) pack(contract *abi.ABI, to common.Address, method string, args ...interface{}) (outbound.TxRequest, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return outbound.TxRequest{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return outbound.TxRequest{To: to, Method: method, Data: data}, nil
}

func uintArg(name string, v *big.Int) (*big.Int, error) {
	u, err := ToUint256(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return u.ToBig(), nil
}

func positiveArg(name string, v *big.Int) (*big.Int, error) {
	if v == nil || v.Sign() <= 0 {
		return nil, fmt.Errorf("%s must be positive", name)
	}
	return uintArg(name, v)
}
