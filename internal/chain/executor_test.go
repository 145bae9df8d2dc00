package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"base-autobot/internal/execution"
	"base-autobot/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var (
	usdcAddr  = common.HexToAddress(BaseMainnet().Tokens["usdc"])
	wethAddr  = common.HexToAddress(BaseMainnet().Tokens["weth"])
	usdbcAddr = common.HexToAddress(BaseMainnet().Tokens["usdbc"])
)

// fakeClient answers contract calls by method selector.
type fakeClient struct {
	sync.Mutex
	decimals   map[common.Address]uint8
	balances   map[common.Address]*big.Int
	allowances map[common.Address]*big.Int
	quote      *big.Int
	callErr    error
	sent       []*types.Transaction
	closed     bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		decimals:   map[common.Address]uint8{usdcAddr: 6, wethAddr: 18, usdbcAddr: 6},
		balances:   map[common.Address]*big.Int{},
		allowances: map[common.Address]*big.Int{},
		quote:      big.NewInt(0),
	}
}

func (f *fakeClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.Lock()
	defer f.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	selector := msg.Data[:4]
	token := *msg.To
	switch {
	case bytes.Equal(selector, erc20ABI.Methods["decimals"].ID):
		return erc20ABI.Methods["decimals"].Outputs.Pack(f.decimals[token])
	case bytes.Equal(selector, erc20ABI.Methods["balanceOf"].ID):
		return erc20ABI.Methods["balanceOf"].Outputs.Pack(orZero(f.balances[token]))
	case bytes.Equal(selector, erc20ABI.Methods["allowance"].ID):
		return erc20ABI.Methods["allowance"].Outputs.Pack(orZero(f.allowances[token]))
	case bytes.Equal(selector, routerABI.Methods["getAmountsOut"].ID):
		return routerABI.Methods["getAmountsOut"].Outputs.Pack([]*big.Int{big.NewInt(1), f.quote})
	}
	return nil, errors.New("unexpected call")
}

func (f *fakeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 150_000, nil
}

func (f *fakeClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.Lock()
	defer f.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeClient) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(8453), nil
}

func (f *fakeClient) Close() {
	f.Lock()
	defer f.Unlock()
	f.closed = true
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func units(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

func testSetup(fake *fakeClient) (*Executor, *models.Config) {
	cfg := &models.Config{
		AssetSymbol:     "WETH",
		QuoteSymbol:     "USDC",
		SwapSlippageBps: 50,
		SwapDeadlineSec: 120,
		AddressBook:     BaseMainnet(),
	}
	x := NewExecutor(cfg, models.Secrets{RPCURL: "http://rpc.local", BotPrivateKey: testKey}, zap.NewNop())
	x.dial = func(context.Context, string) (Client, error) { return fake, nil }
	x.now = func() time.Time { return time.Unix(1700000000, 0) }
	return x, cfg
}

func buyRequest() execution.SwapRequest {
	return execution.SwapRequest{
		Direction:    models.Buy,
		InputSymbol:  "USDC",
		OutputSymbol: "WETH",
		USDNotional:  25,
		Price:        2500,
		SlippageBps:  50,
		DeadlineSec:  120,
	}
}

func walletAddress(t *testing.T) common.Address {
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey)
}

func TestSwapConfigurationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(x *Executor, cfg *models.Config, req *execution.SwapRequest)
		detail string
	}{
		{"no rpc", func(x *Executor, _ *models.Config, _ *execution.SwapRequest) { x.secrets.RPCURL = "" }, "RPC_URL is not set"},
		{"bad key", func(x *Executor, _ *models.Config, _ *execution.SwapRequest) { x.secrets.BotPrivateKey = "0x1234" }, "BOT_PRIVATE_KEY is missing or invalid"},
		{"unknown token", func(_ *Executor, _ *models.Config, req *execution.SwapRequest) { req.OutputSymbol = "DOGE" }, "ASSET_SYMBOL or QUOTE_SYMBOL not found in address book"},
		{"bad router", func(_ *Executor, cfg *models.Config, _ *execution.SwapRequest) { cfg.SwapRouterAddress = "router" }, "Invalid router or token address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeClient()
			x, cfg := testSetup(fake)
			req := buyRequest()
			tt.mutate(x, cfg, &req)

			res, err := x.Swap(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, models.StatusFailed, res.Status)
			assert.Equal(t, tt.detail, res.Detail)
			assert.True(t, res.Rejected)
			assert.Empty(t, fake.sent)
		})
	}
}

func TestEngineDoesNotRecordUnconfiguredSwaps(t *testing.T) {
	cfg := &models.Config{
		AssetSymbol:   "WETH",
		QuoteSymbol:   "USDC",
		ExecutionMode: models.ModeOnchain,
		AddressBook:   BaseMainnet(),
	}
	x := NewExecutor(cfg, models.Secrets{}, zap.NewNop())
	x.dial = func(context.Context, string) (Client, error) {
		t.Fatal("rejected swaps must not dial")
		return nil, nil
	}
	engine := execution.NewEngine(cfg, "", x, zap.NewNop())
	state := models.BotState{
		Portfolio: models.Portfolio{CashUSD: 500, TokenBalancesUSD: map[string]float64{}, AllocationTargets: map[string]float64{}},
		Params:    models.StrategyParams{TradeSizeUSD: 25},
	}
	signal := models.Signal{Action: models.Buy, Reason: "Price up 0.50% since last tick", Price: 2500, GeneratedAt: time.Unix(1700000000, 0)}

	res, next := engine.Execute(context.Background(), state, signal)

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, "RPC_URL is not set", res.Detail)
	assert.Empty(t, next.Transactions)
	assert.Nil(t, next.LastTradeAt)
}

func TestSwapInvalidAmount(t *testing.T) {
	x, _ := testSetup(newFakeClient())
	req := buyRequest()
	req.Direction = models.Sell
	req.InputSymbol, req.OutputSymbol = "WETH", "USDC"
	req.Price = 0

	res, err := x.Swap(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, "Computed trade amount is invalid", res.Detail)
}

func TestSwapInsufficientBalance(t *testing.T) {
	fake := newFakeClient()
	fake.balances[usdcAddr] = units("24999999")
	x, _ := testSetup(fake)

	res, err := x.Swap(context.Background(), buyRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusSkipped, res.Status)
	assert.Equal(t, "Insufficient token balance", res.Detail)
	assert.Empty(t, fake.sent)
}

func TestSwapSubmitsApprovalFirst(t *testing.T) {
	fake := newFakeClient()
	fake.balances[usdcAddr] = units("100000000")
	x, _ := testSetup(fake)

	res, err := x.Swap(context.Background(), buyRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, res.Status)
	assert.True(t, strings.HasPrefix(res.Detail, "Approval submitted 0x"))
	assert.True(t, res.Approval)
	require.Len(t, fake.sent, 1)

	tx := fake.sent[0]
	assert.Equal(t, usdcAddr, *tx.To())
	assert.Equal(t, erc20ABI.Methods["approve"].ID, tx.Data()[:4])
	args, err := erc20ABI.Methods["approve"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(BaseMainnet().Routers.UniswapV2Router02), args[0])
	assert.Equal(t, 0, units("25000000").Cmp(args[1].(*big.Int)))
	assert.True(t, fake.closed)
}

func TestSwapBuy(t *testing.T) {
	fake := newFakeClient()
	fake.balances[usdcAddr] = units("100000000")
	fake.allowances[usdcAddr] = units("100000000")
	fake.quote = units("10000000000000000") // 0.01 WETH
	x, _ := testSetup(fake)

	res, err := x.Swap(context.Background(), buyRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, res.Status)
	assert.True(t, strings.HasPrefix(res.Detail, "Swap submitted 0x"))
	require.Len(t, fake.sent, 1)
	assert.Equal(t, fake.sent[0].Hash().Hex(), res.TxHash)

	require.NotNil(t, res.RealizedAssetDelta)
	assert.InDelta(t, 0.01, *res.RealizedAssetDelta, 1e-12)
	assert.InDelta(t, -25.0, *res.RealizedCashDelta, 1e-12)
	assert.InDelta(t, 25.0, *res.TradeSizeUSD, 1e-12)

	tx := fake.sent[0]
	router := common.HexToAddress(BaseMainnet().Routers.UniswapV2Router02)
	assert.Equal(t, router, *tx.To())
	args, err := routerABI.Methods["swapExactTokensForTokens"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, 0, units("25000000").Cmp(args[0].(*big.Int)), "amount in")
	assert.Equal(t, 0, units("9950000000000000").Cmp(args[1].(*big.Int)), "min out after 50 bps")
	assert.Equal(t, []common.Address{usdcAddr, wethAddr}, args[2])
	assert.Equal(t, walletAddress(t), args[3])
	assert.Equal(t, int64(1700000120), args[4].(*big.Int).Int64())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8453)), tx)
	require.NoError(t, err)
	assert.Equal(t, walletAddress(t), sender)
}

func TestSwapSell(t *testing.T) {
	fake := newFakeClient()
	fake.balances[wethAddr] = units("1000000000000000000")
	fake.allowances[wethAddr] = units("1000000000000000000")
	fake.quote = units("24900000") // 24.9 USDC
	x, _ := testSetup(fake)

	req := buyRequest()
	req.Direction = models.Sell
	req.InputSymbol, req.OutputSymbol = "WETH", "USDC"

	res, err := x.Swap(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, res.Status)
	assert.InDelta(t, -0.01, *res.RealizedAssetDelta, 1e-12)
	assert.InDelta(t, 24.9, *res.RealizedCashDelta, 1e-9)
	assert.InDelta(t, 24.9, *res.TradeSizeUSD, 1e-9, "sell trade size is the expected proceeds")
}

func TestSwapDeadlineHasFloor(t *testing.T) {
	fake := newFakeClient()
	fake.balances[usdcAddr] = units("100000000")
	fake.allowances[usdcAddr] = units("100000000")
	fake.quote = units("1")
	x, _ := testSetup(fake)

	req := buyRequest()
	req.DeadlineSec = 5
	_, err := x.Swap(context.Background(), req)
	require.NoError(t, err)

	args, err := routerABI.Methods["swapExactTokensForTokens"].Inputs.Unpack(fake.sent[0].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(1700000060), args[4].(*big.Int).Int64())
}

func TestSwapTransportErrors(t *testing.T) {
	fake := newFakeClient()
	fake.callErr = errors.New("connection refused")
	x, _ := testSetup(fake)

	_, err := x.Swap(context.Background(), buyRequest())
	assert.ErrorContains(t, err, "connection refused")

	x.dial = func(context.Context, string) (Client, error) { return nil, errors.New("no route") }
	_, err = x.Swap(context.Background(), buyRequest())
	assert.ErrorContains(t, err, "no route")
}

func TestMinAmountOut(t *testing.T) {
	assert.Equal(t, int64(9950), minAmountOut(big.NewInt(10000), 50).Int64())
	assert.Equal(t, int64(10000), minAmountOut(big.NewInt(10000), -20).Int64())
	assert.Equal(t, int64(5000), minAmountOut(big.NewInt(10000), 9000).Int64(), "slippage is capped at 50%")
}

func TestUnitConversion(t *testing.T) {
	assert.Equal(t, "25000000", toUnits(25, 6).String())
	assert.Equal(t, "10000000000000000", toUnits(0.01, 18).String())
	assert.Equal(t, "1", toUnits(0.0000009, 6).String(), "rounded to token precision")
	assert.InDelta(t, 24.9, fromUnits(units("24900000"), 6), 1e-12)
}

func TestNormalizePrivateKey(t *testing.T) {
	key, ok := NormalizePrivateKey("  " + testKey + " ")
	assert.True(t, ok)
	assert.Equal(t, "0x"+testKey, key)

	_, ok = NormalizePrivateKey("0x" + testKey[:60])
	assert.False(t, ok)
	_, ok = NormalizePrivateKey("")
	assert.False(t, ok)
}

func TestResolveTokenKey(t *testing.T) {
	tokens := BaseMainnet().Tokens
	key, ok := ResolveTokenKey(" WETH ", tokens)
	assert.True(t, ok)
	assert.Equal(t, "weth", key)

	_, ok = ResolveTokenKey("doge", tokens)
	assert.False(t, ok)
}

func TestSyncPortfolioWithoutRPC(t *testing.T) {
	x, _ := testSetup(newFakeClient())
	x.secrets.RPCURL = ""
	state := models.BotState{Portfolio: models.Portfolio{CashUSD: 10}}

	next, err := x.SyncPortfolio(context.Background(), state, 2500)
	require.NoError(t, err)
	assert.Equal(t, state, next)
}

func TestSyncPortfolio(t *testing.T) {
	fake := newFakeClient()
	fake.balances[wethAddr] = units("500000000000000000") // 0.5
	fake.balances[usdcAddr] = units("120500000")          // 120.5
	fake.balances[usdbcAddr] = units("3000000")           // 3
	x, _ := testSetup(fake)

	state := models.BotState{Portfolio: models.Portfolio{
		CashUSD:          1000,
		TokenBalancesUSD: map[string]float64{"usdc": 0, "usdbc": 0},
	}}
	next, err := x.SyncPortfolio(context.Background(), state, 2500)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, next.Portfolio.Asset, 1e-12)
	assert.InDelta(t, 120.5, next.Portfolio.CashUSD, 1e-12)
	assert.InDelta(t, 3.0, next.Portfolio.TokenBalancesUSD["usdbc"], 1e-12)
	assert.Equal(t, 0.0, next.Portfolio.TokenBalancesUSD["usdc"], "the quote token is cash, not a tracked balance")
	require.NotNil(t, next.AvgEntryPrice)
	assert.Equal(t, 2500.0, *next.AvgEntryPrice, "a position discovered on chain is seeded at the current price")
	assert.Equal(t, 1000.0, state.Portfolio.CashUSD, "input state is not mutated")
}

func TestSyncPortfolioClearsAvgEntryWhenEmpty(t *testing.T) {
	fake := newFakeClient()
	x, _ := testSetup(fake)

	state := models.BotState{
		Portfolio:     models.Portfolio{Asset: 1},
		AvgEntryPrice: models.Ptr(2000.0),
	}
	next, err := x.SyncPortfolio(context.Background(), state, 2500)
	require.NoError(t, err)
	assert.Equal(t, 0.0, next.Portfolio.Asset)
	assert.Nil(t, next.AvgEntryPrice)
}

func TestSyncPortfolioUsesConfiguredWallet(t *testing.T) {
	fake := newFakeClient()
	x, cfg := testSetup(fake)
	x.secrets.BotPrivateKey = ""
	cfg.WalletAddress = "0x00000000000000000000000000000000000000aa"

	_, err := x.SyncPortfolio(context.Background(), models.BotState{}, 2500)
	require.NoError(t, err)

	cfg.WalletAddress = ""
	_, err = x.SyncPortfolio(context.Background(), models.BotState{}, 2500)
	assert.Error(t, err, "no wallet to read")
}
