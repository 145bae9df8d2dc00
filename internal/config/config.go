package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"base-autobot/internal/chain"
	"base-autobot/internal/models"
)

// Default 返回所有配置项的默认值
func Default() *models.Config {
	return &models.Config{
		AssetSymbol:       "BASE",
		QuoteSymbol:       "USDC",
		PriceFeedURL:      "https://api.coinbase.com/v2/prices/ETH-USD/spot",
		PriceField:        "data.amount",
		FeedTimeoutSec:    10,
		ExecutionMode:     models.ModePaper,
		WebhookTimeoutSec: 10,
		Defaults: models.StrategyParams{
			TradeSizeUSD:       25,
			MinMovePct:         0.35,
			MinIntervalSec:     300,
			VolatilityLookback: 20,
			ForecastLookback:   5,
		},
		StartingCashUSD: 1000,
		SwapSlippageBps: 50,
		SwapDeadlineSec: 120,
		AddressBook:     chain.BaseMainnet(),
		TickIntervalSec: 300,
		HTTPAddr:        ":8080",
		Store: models.StoreConfig{
			Backend: "badger",
			Path:    "data/state",
		},
		LogConfig: models.LogConfig{
			Level:      "info",
			Output:     "console",
			File:       "logs/autobot.log",
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}

// LoadConfig 从默认值开始，叠加JSON配置文件 (文件不存在时跳过)，再叠加环境变量
func LoadConfig(path string) (*models.Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// 只使用默认值和环境变量
		case err != nil:
			return nil, err
		default:
			defer file.Close()
			if err := json.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
			}
		}
	}

	applyEnv(cfg, os.LookupEnv)
	if mode, err := models.ParseExecutionMode(string(cfg.ExecutionMode)); err != nil {
		cfg.ExecutionMode = models.ModePaper
	} else {
		cfg.ExecutionMode = mode
	}
	return cfg, nil
}

// LoadSecrets 从环境变量读取敏感信息
func LoadSecrets() models.Secrets {
	return secretsFrom(os.LookupEnv)
}

type lookupFunc func(string) (string, bool)

func secretsFrom(lookup lookupFunc) models.Secrets {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	return models.Secrets{
		RPCURL:           get("RPC_URL"),
		BotPrivateKey:    get("BOT_PRIVATE_KEY"),
		AdminToken:       get("ADMIN_TOKEN"),
		WebhookAuthToken: get("WEBHOOK_AUTH_TOKEN"),
	}
}

// applyEnv 用环境变量覆盖配置。空值和无法解析的数字保留原值，
// 无效的执行模式回退到 paper
func applyEnv(cfg *models.Config, lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				*dst = f
			}
		}
	}
	integer := func(key string, dst *int) {
		f := float64(*dst)
		num(key, &f)
		*dst = int(f)
	}

	str("ASSET_SYMBOL", &cfg.AssetSymbol)
	str("QUOTE_SYMBOL", &cfg.QuoteSymbol)
	str("PRICE_FEED_URL", &cfg.PriceFeedURL)
	str("PRICE_FIELD", &cfg.PriceField)
	str("INDEX_FEED_URL", &cfg.IndexFeedURL)
	str("INDEX_PRICE_FIELD", &cfg.IndexPriceField)
	integer("FEED_TIMEOUT_SEC", &cfg.FeedTimeoutSec)

	if v, ok := lookup("EXECUTION_MODE"); ok {
		mode, err := models.ParseExecutionMode(v)
		if err != nil {
			mode = models.ModePaper
		}
		cfg.ExecutionMode = mode
	}
	str("WEBHOOK_URL", &cfg.WebhookURL)
	integer("WEBHOOK_TIMEOUT_SEC", &cfg.WebhookTimeoutSec)

	p := &cfg.Defaults
	num("DEFAULT_TRADE_SIZE_USD", &p.TradeSizeUSD)
	num("DEFAULT_MIN_MOVE_PCT", &p.MinMovePct)
	num("DEFAULT_MIN_INTERVAL_SEC", &p.MinIntervalSec)
	num("DEFAULT_MAX_POSITION_USD", &p.MaxPositionUSD)
	num("DEFAULT_MAX_DRAWDOWN_PCT", &p.MaxDrawdownPct)
	num("DEFAULT_STOP_LOSS_PCT", &p.StopLossPct)
	num("DEFAULT_TAKE_PROFIT_PCT", &p.TakeProfitPct)
	integer("DEFAULT_VOLATILITY_LOOKBACK", &p.VolatilityLookback)
	num("DEFAULT_MAX_TRADES_PER_HOUR", &p.MaxTradesPerHour)
	num("DEFAULT_INDEX_MIN_MOVE_PCT", &p.IndexMinMovePct)
	integer("DEFAULT_FORECAST_LOOKBACK", &p.ForecastLookback)
	num("STARTING_CASH_USD", &cfg.StartingCashUSD)

	str("SWAP_ROUTER_ADDRESS", &cfg.SwapRouterAddress)
	integer("SWAP_SLIPPAGE_BPS", &cfg.SwapSlippageBps)
	integer("SWAP_DEADLINE_SEC", &cfg.SwapDeadlineSec)
	str("WALLET_ADDRESS", &cfg.WalletAddress)

	integer("TICK_INTERVAL_SEC", &cfg.TickIntervalSec)
	str("HTTP_ADDR", &cfg.HTTPAddr)

	str("STORE_BACKEND", &cfg.Store.Backend)
	str("DB_PATH", &cfg.Store.Path)
	str("STATE_KEY", &cfg.Store.Key)
	str("REDIS_ADDR", &cfg.Store.RedisAddr)
	str("REDIS_PASSWORD", &cfg.Store.RedisPassword)
	integer("REDIS_DB", &cfg.Store.RedisDB)
	str("POSTGRES_DSN", &cfg.Store.PostgresDSN)

	str("LOG_LEVEL", &cfg.LogConfig.Level)
	str("LOG_OUTPUT", &cfg.LogConfig.Output)
	str("LOG_FILE", &cfg.LogConfig.File)
}
