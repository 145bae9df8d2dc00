package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"base-autobot/internal/execution"
	"base-autobot/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const (
	maxSlippageBps = 5000
	minDeadlineSec = 60
)

// Executor submits swaps through a Uniswap V2 router and reads wallet
// balances. It dials the RPC endpoint per call.
type Executor struct {
	cfg     *models.Config
	secrets models.Secrets
	dial    DialFunc
	now     func() time.Time
	logger  *zap.Logger
}

// NewExecutor creates an Executor. Missing secrets are reported per call,
// not here, so the bot can start in onchain mode and surface the problem
// in its execution results.
func NewExecutor(cfg *models.Config, secrets models.Secrets, logger *zap.Logger) *Executor {
	return &Executor{
		cfg:     cfg,
		secrets: secrets,
		dial:    dialEthclient,
		now:     time.Now,
		logger:  logger,
	}
}

type swapPlan struct {
	key    *ecdsa.PrivateKey
	owner  common.Address
	router common.Address
	input  common.Address
	output common.Address
}

// plan validates configuration. A non-empty detail means the swap fails
// before touching the network.
func (x *Executor) plan(req execution.SwapRequest) (swapPlan, string) {
	if x.secrets.RPCURL == "" {
		return swapPlan{}, "RPC_URL is not set"
	}
	hexKey, ok := NormalizePrivateKey(x.secrets.BotPrivateKey)
	if !ok {
		return swapPlan{}, "BOT_PRIVATE_KEY is missing or invalid"
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return swapPlan{}, "BOT_PRIVATE_KEY is missing or invalid"
	}

	tokens := x.cfg.AddressBook.Tokens
	inKey, inOK := ResolveTokenKey(req.InputSymbol, tokens)
	outKey, outOK := ResolveTokenKey(req.OutputSymbol, tokens)
	if !inOK || !outOK {
		return swapPlan{}, "ASSET_SYMBOL or QUOTE_SYMBOL not found in address book"
	}
	router := x.cfg.SwapRouterAddress
	if router == "" {
		router = x.cfg.AddressBook.Routers.UniswapV2Router02
	}
	for _, addr := range []string{tokens[inKey], tokens[outKey], router} {
		if !common.IsHexAddress(addr) {
			return swapPlan{}, "Invalid router or token address"
		}
	}
	return swapPlan{
		key:    key,
		owner:  crypto.PubkeyToAddress(key.PublicKey),
		router: common.HexToAddress(router),
		input:  common.HexToAddress(tokens[inKey]),
		output: common.HexToAddress(tokens[outKey]),
	}, ""
}

// Swap runs balance and allowance checks, quotes, and submits either an
// approval or the swap itself. Configuration problems come back as failed
// results; RPC failures come back as errors.
func (x *Executor) Swap(ctx context.Context, req execution.SwapRequest) (execution.SwapResult, error) {
	p, detail := x.plan(req)
	if detail != "" {
		return execution.SwapResult{Status: models.StatusFailed, Detail: detail, Rejected: true}, nil
	}

	client, err := x.dial(ctx, x.secrets.RPCURL)
	if err != nil {
		return execution.SwapResult{}, fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	inDec, err := tokenDecimals(ctx, client, p.input)
	if err != nil {
		return execution.SwapResult{}, err
	}
	outDec, err := tokenDecimals(ctx, client, p.output)
	if err != nil {
		return execution.SwapResult{}, err
	}

	amountValue := req.USDNotional
	if req.Direction == models.Sell {
		if req.Price <= 0 {
			amountValue = 0
		} else {
			amountValue = req.USDNotional / req.Price
		}
	}
	amountIn := toUnits(amountValue, inDec)
	if amountValue <= 0 || amountIn.Sign() <= 0 {
		return execution.SwapResult{Status: models.StatusFailed, Detail: "Computed trade amount is invalid"}, nil
	}

	balance, err := tokenBalance(ctx, client, p.input, p.owner)
	if err != nil {
		return execution.SwapResult{}, err
	}
	if balance.Cmp(amountIn) < 0 {
		return execution.SwapResult{Status: models.StatusSkipped, Detail: "Insufficient token balance"}, nil
	}

	allowance, err := tokenAllowance(ctx, client, p.input, p.owner, p.router)
	if err != nil {
		return execution.SwapResult{}, err
	}
	if allowance.Cmp(amountIn) < 0 {
		data, err := erc20ABI.Pack("approve", p.router, amountIn)
		if err != nil {
			return execution.SwapResult{}, fmt.Errorf("pack approve: %w", err)
		}
		hash, err := transact(ctx, client, p.key, p.input, data)
		if err != nil {
			return execution.SwapResult{}, fmt.Errorf("approve: %w", err)
		}
		x.logger.Info("approval submitted", zap.String("tx", hash), zap.String("spender", p.router.Hex()))
		return execution.SwapResult{
			Status:       models.StatusSubmitted,
			Detail:       "Approval submitted " + hash,
			TxHash:       hash,
			TradeSizeUSD: models.Ptr(req.USDNotional),
			Approval:     true,
		}, nil
	}

	path := []common.Address{p.input, p.output}
	expectedOut, err := amountsOut(ctx, client, p.router, amountIn, path)
	if err != nil {
		return execution.SwapResult{}, err
	}
	minOut := minAmountOut(expectedOut, req.SlippageBps)
	deadline := x.now().Unix() + int64(max(req.DeadlineSec, minDeadlineSec))

	data, err := routerABI.Pack("swapExactTokensForTokens", amountIn, minOut, path, p.owner, big.NewInt(deadline))
	if err != nil {
		return execution.SwapResult{}, fmt.Errorf("pack swap: %w", err)
	}
	hash, err := transact(ctx, client, p.key, p.router, data)
	if err != nil {
		return execution.SwapResult{}, fmt.Errorf("swap: %w", err)
	}

	outValue := fromUnits(expectedOut, outDec)
	inValue := fromUnits(amountIn, inDec)
	res := execution.SwapResult{
		Status: models.StatusSubmitted,
		Detail: "Swap submitted " + hash,
		TxHash: hash,
	}
	if req.Direction == models.Buy {
		res.TradeSizeUSD = models.Ptr(req.USDNotional)
		res.RealizedAssetDelta = models.Ptr(outValue)
		res.RealizedCashDelta = models.Ptr(-req.USDNotional)
	} else {
		res.TradeSizeUSD = models.Ptr(outValue)
		res.RealizedAssetDelta = models.Ptr(-inValue)
		res.RealizedCashDelta = models.Ptr(outValue)
	}
	x.logger.Info("swap submitted",
		zap.String("tx", hash),
		zap.String("direction", string(req.Direction)),
		zap.String("amountIn", amountIn.String()),
		zap.String("minOut", minOut.String()))
	return res, nil
}

// minAmountOut applies slippage, clamped to [0, 5000] bps.
func minAmountOut(expected *big.Int, slippageBps int) *big.Int {
	bps := min(max(slippageBps, 0), maxSlippageBps)
	out := new(big.Int).Mul(expected, big.NewInt(int64(10000-bps)))
	return out.Quo(out, big.NewInt(10000))
}

// owner resolves the wallet to read balances for.
func (x *Executor) owner() (common.Address, error) {
	if common.IsHexAddress(x.cfg.WalletAddress) {
		return common.HexToAddress(x.cfg.WalletAddress), nil
	}
	hexKey, ok := NormalizePrivateKey(x.secrets.BotPrivateKey)
	if !ok {
		return common.Address{}, errors.New("no wallet address or valid BOT_PRIVATE_KEY configured")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// SyncPortfolio replaces the portfolio balances with what the wallet holds
// on chain. The quote token becomes cash, other stablecoins are tracked in
// TokenBalancesUSD at 1:1. Without an RPC endpoint the state is returned
// unchanged.
func (x *Executor) SyncPortfolio(ctx context.Context, state models.BotState, price float64) (models.BotState, error) {
	if x.secrets.RPCURL == "" {
		return state, nil
	}
	owner, err := x.owner()
	if err != nil {
		return state, err
	}
	tokens := x.cfg.AddressBook.Tokens
	assetKey, assetOK := ResolveTokenKey(x.cfg.AssetSymbol, tokens)
	quoteKey, quoteOK := ResolveTokenKey(x.cfg.QuoteSymbol, tokens)
	if !assetOK || !quoteOK {
		return state, errors.New("ASSET_SYMBOL or QUOTE_SYMBOL not found in address book")
	}

	client, err := x.dial(ctx, x.secrets.RPCURL)
	if err != nil {
		return state, fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	read := func(key string) (float64, error) {
		addr := tokens[key]
		if !common.IsHexAddress(addr) {
			return 0, fmt.Errorf("invalid address for token %s", key)
		}
		token := common.HexToAddress(addr)
		dec, err := tokenDecimals(ctx, client, token)
		if err != nil {
			return 0, err
		}
		bal, err := tokenBalance(ctx, client, token, owner)
		if err != nil {
			return 0, err
		}
		return fromUnits(bal, dec), nil
	}

	asset, err := read(assetKey)
	if err != nil {
		return state, fmt.Errorf("read %s balance: %w", assetKey, err)
	}
	cash, err := read(quoteKey)
	if err != nil {
		return state, fmt.Errorf("read %s balance: %w", quoteKey, err)
	}

	next := state.Clone()
	next.Portfolio.Asset = asset
	next.Portfolio.CashUSD = cash
	if next.Portfolio.TokenBalancesUSD == nil {
		next.Portfolio.TokenBalancesUSD = make(map[string]float64)
	}
	for _, stable := range stablecoins {
		key, ok := ResolveTokenKey(stable, tokens)
		if !ok || key == quoteKey || key == assetKey {
			continue
		}
		bal, err := read(key)
		if err != nil {
			return state, fmt.Errorf("read %s balance: %w", key, err)
		}
		next.Portfolio.TokenBalancesUSD[key] = bal
	}

	switch {
	case asset <= 0:
		next.AvgEntryPrice = nil
	case next.AvgEntryPrice == nil && price > 0:
		next.AvgEntryPrice = models.Ptr(price)
	}
	x.logger.Debug("portfolio synced",
		zap.String("owner", owner.Hex()),
		zap.Float64("asset", asset),
		zap.Float64("cash", cash))
	return next, nil
}
