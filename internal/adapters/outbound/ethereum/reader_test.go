package ethereum

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-lend/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl-lend/internal/ports/outbound"
	"github.com/archon-research/stl-lend/internal/testutil"
)

var (
	marketAddr = common.HexToAddress("0x000000000000000000000000000000000000a001")
	oracleAddr = common.HexToAddress("0x000000000000000000000000000000000000a002")
	faucetAddr = common.HexToAddress("0x000000000000000000000000000000000000a003")
	loanToken  = common.HexToAddress("0x000000000000000000000000000000000000e001")
	collToken  = common.HexToAddress("0x000000000000000000000000000000000000c001")
	user       = common.HexToAddress("0x000000000000000000000000000000000000beef")
	marketID   = common.HexToHash("0x01")
)

// selectorCaller answers eth_call by dispatching on the 4-byte selector.
type selectorCaller struct {
	t         *testing.T
	responses map[string][]byte
	err       error
	calls     int
}

func (s *selectorCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(msg.Data) < 4 {
		s.t.Fatalf("calldata too short: %x", msg.Data)
	}
	out, ok := s.responses[string(msg.Data[:4])]
	if !ok {
		s.t.Fatalf("unexpected call %x to %s", msg.Data[:4], msg.To.Hex())
	}
	return out, nil
}

func mustABI(t *testing.T, load func() (*abi.ABI, error)) *abi.ABI {
	t.Helper()
	parsed, err := load()
	if err != nil {
		t.Fatalf("load ABI: %v", err)
	}
	return parsed
}

func packOutputs(t *testing.T, contract *abi.ABI, method string, values ...interface{}) []byte {
	t.Helper()
	data, err := contract.Methods[method].Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s outputs: %v", method, err)
	}
	return data
}

func selector(contract *abi.ABI, method string) string {
	return string(contract.Methods[method].ID)
}

func newTestReader(t *testing.T, caller ContractCaller, mc outbound.Multicaller) *Reader {
	t.Helper()
	r, err := NewReader(caller, mc, ReaderConfig{
		Market:   marketAddr,
		MarketID: marketID,
		Faucet:   faucetAddr,
		Logger:   testutil.DiscardLogger(),
	})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	return r
}

func TestNewReader_Validation(t *testing.T) {
	caller := &selectorCaller{t: t}
	mc := testutil.NewMockMulticaller()

	tests := []struct {
		name   string
		caller ContractCaller
		mc     outbound.Multicaller
		config ReaderConfig
	}{
		{"nil caller", nil, mc, ReaderConfig{Market: marketAddr, MarketID: marketID}},
		{"nil multicaller", caller, nil, ReaderConfig{Market: marketAddr, MarketID: marketID}},
		{"no market", caller, mc, ReaderConfig{MarketID: marketID}},
		{"no market id", caller, mc, ReaderConfig{Market: marketAddr}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReader(tt.caller, tt.mc, tt.config); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestReader_MarketParamsAdoptsOracle(t *testing.T) {
	marketABI := mustABI(t, abis.GetMarketABI)
	oracleABI := mustABI(t, abis.GetOracleABI)
	lltv := new(big.Int).Mul(big.NewInt(92), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
	price := new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)

	caller := &selectorCaller{t: t, responses: map[string][]byte{
		selector(marketABI, "idToMarketParams"): packOutputs(t, marketABI, "idToMarketParams",
			loanToken, collToken, oracleAddr, common.Address{}, lltv),
		selector(oracleABI, "price"): packOutputs(t, oracleABI, "price", price),
	}}
	r := newTestReader(t, caller, testutil.NewMockMulticaller())

	if _, err := r.OraclePrice(context.Background()); err == nil {
		t.Fatal("expected error before oracle is known")
	}

	params, err := r.MarketParams(context.Background())
	if err != nil {
		t.Fatalf("MarketParams: %v", err)
	}
	if params.LoanToken != loanToken || params.CollateralToken != collToken || params.Oracle != oracleAddr {
		t.Errorf("params = %+v", params)
	}
	if params.LLTV.Cmp(lltv) != 0 {
		t.Errorf("LLTV = %s, want %s", params.LLTV, lltv)
	}

	got, err := r.OraclePrice(context.Background())
	if err != nil {
		t.Fatalf("OraclePrice: %v", err)
	}
	if got.Cmp(price) != 0 {
		t.Errorf("price = %s, want %s", got, price)
	}
}

func TestReader_SingleReads(t *testing.T) {
	marketABI := mustABI(t, abis.GetMarketABI)
	erc20ABI := mustABI(t, abis.GetERC20ABI)
	faucetABI := mustABI(t, abis.GetFaucetABI)

	caller := &selectorCaller{t: t, responses: map[string][]byte{
		selector(marketABI, "market"): packOutputs(t, marketABI, "market",
			big.NewInt(1000), big.NewInt(1000), big.NewInt(400), big.NewInt(390), big.NewInt(1700000000), big.NewInt(0)),
		selector(marketABI, "position"): packOutputs(t, marketABI, "position",
			big.NewInt(10), big.NewInt(20), big.NewInt(30)),
		selector(erc20ABI, "balanceOf"): packOutputs(t, erc20ABI, "balanceOf", big.NewInt(77)),
		selector(faucetABI, "hasClaimed"): packOutputs(t, faucetABI, "hasClaimed", true),
	}}
	r := newTestReader(t, caller, testutil.NewMockMulticaller())
	ctx := context.Background()

	market, err := r.Market(ctx)
	if err != nil {
		t.Fatalf("Market: %v", err)
	}
	if market.TotalBorrowAssets.Int64() != 400 || market.LastUpdate != 1700000000 {
		t.Errorf("market = %+v", market)
	}

	pos, err := r.Position(ctx, user)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if pos.Account != user || pos.SupplyShares.Int64() != 10 || pos.BorrowShares.Int64() != 20 || pos.Collateral.Int64() != 30 {
		t.Errorf("position = %+v", pos)
	}

	bal, err := r.TokenBalance(ctx, loanToken, user)
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if bal.Int64() != 77 {
		t.Errorf("balance = %s, want 77", bal)
	}

	claimed, err := r.FaucetClaimed(ctx, user)
	if err != nil {
		t.Fatalf("FaucetClaimed: %v", err)
	}
	if !claimed {
		t.Error("claimed = false, want true")
	}
}

func TestReader_CallError(t *testing.T) {
	caller := &selectorCaller{t: t, err: errors.New("execution reverted")}
	r := newTestReader(t, caller, testutil.NewMockMulticaller())

	_, err := r.Market(context.Background())
	if err == nil || !strings.Contains(err.Error(), "execution reverted") {
		t.Errorf("Market() error = %v", err)
	}
}

func TestReader_MarketAndPositionUsesOneMulticall(t *testing.T) {
	marketABI := mustABI(t, abis.GetMarketABI)
	mc := testutil.NewMockMulticaller()
	mc.ExecuteFn = func(_ context.Context, calls []outbound.Call, block *big.Int) ([]outbound.Result, error) {
		if len(calls) != 2 {
			t.Fatalf("len(calls) = %d, want 2", len(calls))
		}
		if !bytes.Equal(calls[0].CallData[:4], marketABI.Methods["market"].ID) {
			t.Errorf("first call is not market()")
		}
		if !bytes.Equal(calls[1].CallData[:4], marketABI.Methods["position"].ID) {
			t.Errorf("second call is not position()")
		}
		return []outbound.Result{
			{Success: true, ReturnData: packOutputs(t, marketABI, "market",
				big.NewInt(5), big.NewInt(5), big.NewInt(2), big.NewInt(2), big.NewInt(1), big.NewInt(0))},
			{Success: true, ReturnData: packOutputs(t, marketABI, "position",
				big.NewInt(0), big.NewInt(2), big.NewInt(9))},
		}, nil
	}
	caller := &selectorCaller{t: t}
	r := newTestReader(t, caller, mc)

	market, pos, err := r.MarketAndPosition(context.Background(), user)
	if err != nil {
		t.Fatalf("MarketAndPosition: %v", err)
	}
	if market.TotalSupplyAssets.Int64() != 5 || pos.Collateral.Int64() != 9 {
		t.Errorf("market = %+v position = %+v", market, pos)
	}
	if mc.CallCount != 1 || caller.calls != 0 {
		t.Errorf("multicalls = %d eth_calls = %d, want 1 and 0", mc.CallCount, caller.calls)
	}
}

func TestReader_MarketAndPositionFailedInnerCall(t *testing.T) {
	mc := testutil.NewMockMulticaller()
	mc.ExecuteFn = func(context.Context, []outbound.Call, *big.Int) ([]outbound.Result, error) {
		return []outbound.Result{{Success: true}, {Success: false}}, nil
	}
	r := newTestReader(t, &selectorCaller{t: t}, mc)

	if _, _, err := r.MarketAndPosition(context.Background(), user); err == nil {
		t.Fatal("expected error")
	}
}

func TestReader_FaucetNotConfigured(t *testing.T) {
	r, err := NewReader(&selectorCaller{t: t}, testutil.NewMockMulticaller(), ReaderConfig{
		Market:   marketAddr,
		MarketID: marketID,
	})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := r.FaucetClaimed(context.Background(), user); err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodeMarketParams_WrongArity(t *testing.T) {
	if _, err := decodeMarketParams([]interface{}{common.Address{}}); err == nil {
		t.Fatal("expected error")
	}
}

