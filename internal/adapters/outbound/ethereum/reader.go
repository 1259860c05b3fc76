// Package ethereum implements the chain-facing outbound ports over a JSON-RPC
// endpoint: typed contract reads (LendingReader) and a key-backed Wallet.
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
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

// Compile-time check that Reader implements outbound.LendingReader.
var _ outbound.LendingReader = (*Reader)(nil)

// ContractCaller is the eth_call subset of ethclient.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ReaderConfig holds configuration for the Reader.
type ReaderConfig struct {
	// Market is the lending market contract.
	Market common.Address

	// MarketID selects the market on the contract.
	MarketID entity.MarketID

	// Oracle is the price oracle. When zero it is taken from idToMarketParams.
	Oracle common.Address

	// Faucet is the test-token faucet. Optional.
	Faucet common.Address

	// RateLimitPerSec bounds RPC requests per second. Defaults to 10.
	RateLimitPerSec float64

	// Metrics records read latency. Optional.
	Metrics outbound.MetricsRecorder

	Logger *slog.Logger
}

// ReaderConfigDefaults returns a config with default values.
func ReaderConfigDefaults() ReaderConfig {
	return ReaderConfig{
		RateLimitPerSec: 10,
		Logger:          slog.Default(),
	}
}

// Reader performs typed reads against the market, oracle, ERC20 and faucet
// contracts. Single reads go through eth_call; MarketAndPosition batches
// through Multicall3 so both values share a block.
type Reader struct {
	config      ReaderConfig
	caller      ContractCaller
	multicaller outbound.Multicaller
	limiter     *rate.Limiter
	logger      *slog.Logger

	mu         sync.RWMutex
	oracleAddr common.Address

	marketABI *abi.ABI
	oracleABI *abi.ABI
	erc20ABI  *abi.ABI
	faucetABI *abi.ABI
}

// NewReader creates a Reader.
func NewReader(caller ContractCaller, multicaller outbound.Multicaller, config ReaderConfig) (*Reader, error) {
	if caller == nil {
		return nil, errors.New("caller is required")
	}
	if multicaller == nil {
		return nil, errors.New("multicaller is required")
	}
	if config.Market == (common.Address{}) {
		return nil, errors.New("market address is required")
	}
	if config.MarketID == (entity.MarketID{}) {
		return nil, errors.New("market id is required")
	}

	defaults := ReaderConfigDefaults()
	if config.RateLimitPerSec <= 0 {
		config.RateLimitPerSec = defaults.RateLimitPerSec
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	marketABI, err := abis.GetMarketABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load market ABI: %w", err)
	}
	oracleABI, err := abis.GetOracleABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load oracle ABI: %w", err)
	}
	erc20ABI, err := abis.GetERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load ERC20 ABI: %w", err)
	}
	faucetABI, err := abis.GetFaucetABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load faucet ABI: %w", err)
	}

	return &Reader{
		config:      config,
		caller:      caller,
		multicaller: multicaller,
		limiter:     rate.NewLimiter(rate.Limit(config.RateLimitPerSec), 1),
		oracleAddr:  config.Oracle,
		logger:      config.Logger.With("component", "ethereum-reader"),
		marketABI:   marketABI,
		oracleABI:   oracleABI,
		erc20ABI:    erc20ABI,
		faucetABI:   faucetABI,
	}, nil
}

// MarketParams reads idToMarketParams and, if no oracle was configured,
// adopts the market's oracle.
func (r *Reader) MarketParams(ctx context.Context) (entity.MarketParams, error) {
	out, err := r.call(ctx, "idToMarketParams", r.config.Market, r.marketABI, "idToMarketParams", r.config.MarketID)
	if err != nil {
		return entity.MarketParams{}, err
	}
	params, err := decodeMarketParams(out)
	if err != nil {
		return entity.MarketParams{}, err
	}
	if err := params.Validate(); err != nil {
		return entity.MarketParams{}, fmt.Errorf("market %s: %w", r.config.MarketID.Hex(), err)
	}
	r.mu.Lock()
	if r.oracleAddr == (common.Address{}) {
		r.oracleAddr = params.Oracle
	}
	r.mu.Unlock()
	return params, nil
}

func (r *Reader) Market(ctx context.Context) (*entity.MarketState, error) {
	out, err := r.call(ctx, "market", r.config.Market, r.marketABI, "market", r.config.MarketID)
	if err != nil {
		return nil, err
	}
	return decodeMarket(out)
}

func (r *Reader) Position(ctx context.Context, user common.Address) (*entity.UserPosition, error) {
	out, err := r.call(ctx, "position", r.config.Market, r.marketABI, "position", r.config.MarketID, user)
	if err != nil {
		return nil, err
	}
	return decodePosition(user, out)
}

func (r *Reader) MarketAndPosition(ctx context.Context, user common.Address) (*entity.MarketState, *entity.UserPosition, error) {
	start := time.Now()
	market, position, err := r.marketAndPosition(ctx, user)
	r.recordRead(ctx, "marketAndPosition", start, err)
	return market, position, err
}

func (r *Reader) marketAndPosition(ctx context.Context, user common.Address) (*entity.MarketState, *entity.UserPosition, error) {
	marketData, err := r.marketABI.Pack("market", r.config.MarketID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to pack market: %w", err)
	}
	positionData, err := r.marketABI.Pack("position", r.config.MarketID, user)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to pack position: %w", err)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	results, err := r.multicaller.Execute(ctx, []outbound.Call{
		{Target: r.config.Market, AllowFailure: false, CallData: marketData},
		{Target: r.config.Market, AllowFailure: false, CallData: positionData},
	}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("market and position multicall: %w", err)
	}
	if len(results) != 2 {
		return nil, nil, fmt.Errorf("market and position multicall: expected 2 results, got %d", len(results))
	}
	for i, res := range results {
		if !res.Success {
			return nil, nil, fmt.Errorf("market and position multicall: call %d failed", i)
		}
	}

	marketOut, err := r.marketABI.Unpack("market", results[0].ReturnData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to unpack market: %w", err)
	}
	market, err := decodeMarket(marketOut)
	if err != nil {
		return nil, nil, err
	}

	positionOut, err := r.marketABI.Unpack("position", results[1].ReturnData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to unpack position: %w", err)
	}
	position, err := decodePosition(user, positionOut)
	if err != nil {
		return nil, nil, err
	}
	return market, position, nil
}

func (r *Reader) OraclePrice(ctx context.Context) (*big.Int, error) {
	oracle, err := r.oracle()
	if err != nil {
		return nil, err
	}
	out, err := r.call(ctx, "price", oracle, r.oracleABI, "price")
	if err != nil {
		return nil, err
	}
	return singleUint(out, "price")
}

func (r *Reader) KimchiPremium(ctx context.Context) (*big.Int, error) {
	oracle, err := r.oracle()
	if err != nil {
		return nil, err
	}
	out, err := r.call(ctx, "kimchiPremium", oracle, r.oracleABI, "kimchiPremium")
	if err != nil {
		return nil, err
	}
	return singleUint(out, "kimchiPremium")
}

func (r *Reader) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := r.call(ctx, "balanceOf", token, r.erc20ABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return singleUint(out, "balanceOf")
}

func (r *Reader) FaucetClaimed(ctx context.Context, user common.Address) (bool, error) {
	if r.config.Faucet == (common.Address{}) {
		return false, errors.New("faucet address not configured")
	}
	out, err := r.call(ctx, "hasClaimed", r.config.Faucet, r.faucetABI, "hasClaimed", user)
	if err != nil {
		return false, err
	}
	if len(out) != 1 {
		return false, fmt.Errorf("hasClaimed: expected 1 output, got %d", len(out))
	}
	claimed, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("hasClaimed: unexpected type %T", out[0])
	}
	return claimed, nil
}

func (r *Reader) oracle() (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.oracleAddr == (common.Address{}) {
		return common.Address{}, errors.New("oracle address unknown; read market params first")
	}
	return r.oracleAddr, nil
}

// call packs method, performs eth_call at the latest block and unpacks the outputs.
func (r *Reader) call(ctx context.Context, name string, to common.Address, contract *abi.ABI, method string, args ...interface{}) (out []interface{}, err error) {
	start := time.Now()
	defer func() { r.recordRead(ctx, name, start, err) }()

	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", method, to.Hex(), err)
	}
	out, err = contract.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return out, nil
}

func (r *Reader) recordRead(ctx context.Context, name string, start time.Time, err error) {
	if err != nil {
		r.logger.Debug("contract read failed", "read", name, "error", err)
	}
	if r.config.Metrics != nil {
		r.config.Metrics.RecordRead(ctx, name, time.Since(start), err)
	}
}

func decodeMarketParams(out []interface{}) (entity.MarketParams, error) {
	if len(out) != 5 {
		return entity.MarketParams{}, fmt.Errorf("idToMarketParams: expected 5 outputs, got %d", len(out))
	}
	var addrs [4]common.Address
	for i := range addrs {
		a, ok := out[i].(common.Address)
		if !ok {
			return entity.MarketParams{}, fmt.Errorf("idToMarketParams: output %d has type %T", i, out[i])
		}
		addrs[i] = a
	}
	lltv, ok := out[4].(*big.Int)
	if !ok {
		return entity.MarketParams{}, fmt.Errorf("idToMarketParams: lltv has type %T", out[4])
	}
	return entity.MarketParams{
		LoanToken:       addrs[0],
		CollateralToken: addrs[1],
		Oracle:          addrs[2],
		IRM:             addrs[3],
		LLTV:            lltv,
	}, nil
}

func decodeMarket(out []interface{}) (*entity.MarketState, error) {
	vals, err := uints(out, 6, "market")
	if err != nil {
		return nil, err
	}
	if !vals[4].IsInt64() {
		return nil, fmt.Errorf("market: lastUpdate %s out of range", vals[4])
	}
	return entity.NewMarketState(vals[0], vals[1], vals[2], vals[3], vals[4].Int64(), vals[5])
}

func decodePosition(user common.Address, out []interface{}) (*entity.UserPosition, error) {
	vals, err := uints(out, 3, "position")
	if err != nil {
		return nil, err
	}
	return entity.NewUserPosition(user, vals[0], vals[1], vals[2])
}

func singleUint(out []interface{}, method string) (*big.Int, error) {
	vals, err := uints(out, 1, method)
	if err != nil {
		return nil, err
	}
	return vals[0], nil
}

func uints(out []interface{}, n int, method string) ([]*big.Int, error) {
	if len(out) != n {
		return nil, fmt.Errorf("%s: expected %d outputs, got %d", method, n, len(out))
	}
	vals := make([]*big.Int, n)
	for i, v := range out {
		b, ok := v.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%s: output %d has type %T", method, i, v)
		}
		vals[i] = b
	}
	return vals, nil
}
