package models

import (
	"fmt"
	"strings"
)

// ExecutionMode 定义了信号的执行后端
type ExecutionMode string

const (
	ModePaper    ExecutionMode = "paper"
	ModeWebhook  ExecutionMode = "webhook"
	ModeDisabled ExecutionMode = "disabled"
	ModeOnchain  ExecutionMode = "onchain"
)

// ParseExecutionMode 解析执行模式，未知值返回错误
func ParseExecutionMode(value string) (ExecutionMode, error) {
	switch mode := ExecutionMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case ModePaper, ModeWebhook, ModeDisabled, ModeOnchain:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown execution mode %q", value)
	}
}

// Config 结构体定义了机器人的所有配置参数
type Config struct {
	AssetSymbol       string         `json:"asset_symbol"`                // 交易资产, 如 "WETH"
	QuoteSymbol       string         `json:"quote_symbol"`                // 计价资产, 如 "USDC"
	PriceFeedURL      string         `json:"price_feed_url"`              // 价格源: http(s)://, ws(s):// 或 binance:SYMBOL
	PriceField        string         `json:"price_field"`                 // 价格字段的点路径, e.g. "data.amount"
	IndexFeedURL      string         `json:"index_feed_url,omitempty"`    // 可选的指数价格源
	IndexPriceField   string         `json:"index_price_field,omitempty"` // 指数价格字段
	FeedTimeoutSec    int            `json:"feed_timeout_sec"`            // 价格源请求超时(秒)
	ExecutionMode     ExecutionMode  `json:"execution_mode"`              // paper, webhook, disabled, onchain
	WebhookURL        string         `json:"webhook_url,omitempty"`
	WebhookTimeoutSec int            `json:"webhook_timeout_sec"`
	Defaults          StrategyParams `json:"defaults"`          // 新状态使用的策略参数
	StartingCashUSD   float64        `json:"starting_cash_usd"` // 纸面交易的初始现金
	SwapRouterAddress string         `json:"swap_router_address,omitempty"`
	SwapSlippageBps   int            `json:"swap_slippage_bps"`
	SwapDeadlineSec   int            `json:"swap_deadline_sec"`
	WalletAddress     string         `json:"wallet_address,omitempty"`
	AddressBook       AddressBook    `json:"address_book"`
	TickIntervalSec   int            `json:"tick_interval_sec"` // 调度周期(秒)
	HTTPAddr          string         `json:"http_addr"`         // 控制API监听地址
	Store             StoreConfig    `json:"store"`
	LogConfig         LogConfig      `json:"log"`
}

// Secrets 只从环境变量读取，不会被序列化或通过API返回
type Secrets struct {
	RPCURL           string
	BotPrivateKey    string
	AdminToken       string
	WebhookAuthToken string
}

// StoreConfig 定义了状态存储后端
type StoreConfig struct {
	Backend       string `json:"backend"` // badger, redis, postgres, memory
	Path          string `json:"path"`    // badger 数据目录
	Key           string `json:"key"`     // 状态存储的键
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`
	PostgresDSN   string `json:"-"`
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// AddressBook 链上合约地址簿
type AddressBook struct {
	ChainID int64             `json:"chainId"`
	Network string            `json:"network"`
	Routers Routers           `json:"routers"`
	Tokens  map[string]string `json:"tokens"` // 小写代币键 -> 合约地址
}

// Routers Uniswap 相关合约地址
type Routers struct {
	UniswapV2Factory       string `json:"uniswapV2Factory"`
	UniswapV2Router02      string `json:"uniswapV2Router02"`
	UniswapUniversalRouter string `json:"uniswapUniversalRouter"`
	UniswapPermit2         string `json:"uniswapPermit2"`
	UniswapV3Factory       string `json:"uniswapV3Factory"`
	UniswapV3SwapRouter02  string `json:"uniswapV3SwapRouter02"`
	UniswapV3QuoterV2      string `json:"uniswapV3QuoterV2"`
}
