package models

import (
	"time"
)

const (
	// StateVersion 状态模型的版本号，加载旧状态时用于迁移
	StateVersion = 2

	MaxWalletHistory = 120
	MaxTransactions  = 200
)

// Action 定义了交易信号的方向
type Action string

const (
	Buy  Action = "buy"
	Sell Action = "sell"
	Hold Action = "hold"
)

// ExecutionStatus 定义了执行结果的状态
type ExecutionStatus string

const (
	StatusSkipped   ExecutionStatus = "skipped"
	StatusSubmitted ExecutionStatus = "submitted"
	StatusFilled    ExecutionStatus = "filled"
	StatusFailed    ExecutionStatus = "failed"
)

// PricePoint 每个tick采样一次的价格
type PricePoint struct {
	Price      float64   `json:"price"`
	IndexPrice *float64  `json:"indexPrice,omitempty"`
	FetchedAt  time.Time `json:"fetchedAt"`
}

// StrategyParams 可在运行时修改的策略与风控参数
type StrategyParams struct {
	TradeSizeUSD       float64 `json:"tradeSizeUsd"`
	MinMovePct         float64 `json:"minMovePct"`
	MinIntervalSec     float64 `json:"minIntervalSec"`
	MaxPositionUSD     float64 `json:"maxPositionUsd"`
	MaxDrawdownPct     float64 `json:"maxDrawdownPct"`
	StopLossPct        float64 `json:"stopLossPct"`
	TakeProfitPct      float64 `json:"takeProfitPct"`
	VolatilityLookback int     `json:"volatilityLookback"`
	MaxTradesPerHour   float64 `json:"maxTradesPerHour"`
	IndexMinMovePct    float64 `json:"indexMinMovePct"`
	ForecastLookback   int     `json:"forecastLookback"`
}

// Portfolio 唯一的逻辑投资组合
type Portfolio struct {
	CashUSD           float64            `json:"cashUsd"`
	Asset             float64            `json:"asset"` // 交易资产的原生数量
	TokenBalancesUSD  map[string]float64 `json:"tokenBalancesUsd"`
	AllocationTargets map[string]float64 `json:"allocationTargets"` // 单个资产占总价值的上限比例 [0,1]
}

// WalletPoint 钱包价值历史中的一个点
type WalletPoint struct {
	ValueUSD float64   `json:"valueUsd"`
	At       time.Time `json:"at"`
}

// ErrorInfo 最近一次tick失败的信息
type ErrorInfo struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Signal 策略在当前tick给出的决策
type Signal struct {
	Action      Action    `json:"action"`
	Reason      string    `json:"reason"`
	Price       float64   `json:"price"`
	ChangePct   *float64  `json:"changePct,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// ExecutionResult 一个信号对应的唯一执行结果
type ExecutionResult struct {
	Status       ExecutionStatus `json:"status"`
	Mode         ExecutionMode   `json:"mode"`
	Detail       string          `json:"detail,omitempty"`
	ExecutedAt   time.Time       `json:"executedAt"`
	TradeSizeUSD *float64        `json:"tradeSizeUsd,omitempty"`
	AssetDelta   *float64        `json:"assetDelta,omitempty"`
	CashDelta    *float64        `json:"cashDelta,omitempty"`
	TxHash       string          `json:"txHash,omitempty"`
}

// TransactionRecord 非跳过的 (Signal, ExecutionResult) 审计记录
type TransactionRecord struct {
	ID           string          `json:"id"`
	Action       Action          `json:"action"`
	Reason       string          `json:"reason"`
	Price        float64         `json:"price"`
	ChangePct    *float64        `json:"changePct,omitempty"`
	Status       ExecutionStatus `json:"status"`
	Mode         ExecutionMode   `json:"mode"`
	Detail       string          `json:"detail,omitempty"`
	ExecutedAt   time.Time       `json:"executedAt"`
	TradeSizeUSD *float64        `json:"tradeSizeUsd,omitempty"`
	AssetDelta   *float64        `json:"assetDelta,omitempty"`
	CashDelta    *float64        `json:"cashDelta,omitempty"`
	TxHash       string          `json:"txHash,omitempty"`
}

// BotState 定义了需要持久化的所有关键数据
type BotState struct {
	Version        int                 `json:"version"`
	Paused         bool                `json:"paused"`
	Portfolio      Portfolio           `json:"portfolio"`
	AvgEntryPrice  *float64            `json:"avgEntryPrice,omitempty"` // 当且仅当 asset > 0 时存在
	PriceHistory   []float64           `json:"priceHistory"`
	IndexHistory   []float64           `json:"indexHistory"`
	WalletHistory  []WalletPoint       `json:"walletHistory"`
	Transactions   []TransactionRecord `json:"transactions"`
	Params         StrategyParams      `json:"params"`
	LastPrice      *float64            `json:"lastPrice,omitempty"`
	LastIndexPrice *float64            `json:"lastIndexPrice,omitempty"`
	LastSignal     *Signal             `json:"lastSignal,omitempty"`
	LastExecution  *ExecutionResult    `json:"lastExecution,omitempty"`
	LastTradeAt    *time.Time          `json:"lastTradeAt,omitempty"`
	LastRunAt      *time.Time          `json:"lastRunAt,omitempty"`
	LastError      *ErrorInfo          `json:"lastError,omitempty"`
	ErrorCount     int                 `json:"errorCount"`
}

// Clone 返回状态的深拷贝，调用方可以自由修改而不影响原状态
func (s BotState) Clone() BotState {
	c := s
	c.Portfolio.TokenBalancesUSD = cloneMap(s.Portfolio.TokenBalancesUSD)
	c.Portfolio.AllocationTargets = cloneMap(s.Portfolio.AllocationTargets)
	c.AvgEntryPrice = clonePtr(s.AvgEntryPrice)
	c.PriceHistory = cloneSlice(s.PriceHistory)
	c.IndexHistory = cloneSlice(s.IndexHistory)
	c.WalletHistory = cloneSlice(s.WalletHistory)
	if s.Transactions != nil {
		c.Transactions = make([]TransactionRecord, len(s.Transactions))
		for i, tx := range s.Transactions {
			tx.ChangePct = clonePtr(tx.ChangePct)
			tx.TradeSizeUSD = clonePtr(tx.TradeSizeUSD)
			tx.AssetDelta = clonePtr(tx.AssetDelta)
			tx.CashDelta = clonePtr(tx.CashDelta)
			c.Transactions[i] = tx
		}
	}
	c.LastPrice = clonePtr(s.LastPrice)
	c.LastIndexPrice = clonePtr(s.LastIndexPrice)
	if s.LastSignal != nil {
		sig := *s.LastSignal
		sig.ChangePct = clonePtr(sig.ChangePct)
		c.LastSignal = &sig
	}
	if s.LastExecution != nil {
		res := s.LastExecution.Clone()
		c.LastExecution = &res
	}
	c.LastTradeAt = clonePtr(s.LastTradeAt)
	c.LastRunAt = clonePtr(s.LastRunAt)
	c.LastError = clonePtr(s.LastError)
	return c
}

// Clone 返回执行结果的深拷贝
func (r ExecutionResult) Clone() ExecutionResult {
	c := r
	c.TradeSizeUSD = clonePtr(r.TradeSizeUSD)
	c.AssetDelta = clonePtr(r.AssetDelta)
	c.CashDelta = clonePtr(r.CashDelta)
	return c
}

// Ptr 返回值的指针，用于可选字段
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func cloneMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
