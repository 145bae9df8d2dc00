// Package execution turns a signal into exactly one ExecutionResult and the
// next BotState. Balances only change in paper mode; webhook and onchain
// results advance LastTradeAt and leave the ledger to the external system.
package execution

import (
	"context"
	"net/http"
	"time"

	"base-autobot/internal/models"
	"base-autobot/internal/risk"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"go.uber.org/zap"
)

// SwapRequest is what the engine hands to a chain executor.
type SwapRequest struct {
	Direction    models.Action
	InputSymbol  string
	OutputSymbol string
	USDNotional  float64
	Price        float64
	SlippageBps  int
	DeadlineSec  int
}

// SwapResult is the chain executor's own classification of the attempt.
type SwapResult struct {
	Status             models.ExecutionStatus
	Detail             string
	TxHash             string
	TradeSizeUSD       *float64
	RealizedAssetDelta *float64
	RealizedCashDelta  *float64
	// Rejected marks a failure found from configuration alone, before any RPC call.
	Rejected bool
	// Approval marks a submitted ERC-20 approve; the swap itself is still pending.
	Approval bool
}

// ChainExecutor performs balance/allowance checks, quoting and submission.
// A returned error is a transport failure.
type ChainExecutor interface {
	Swap(ctx context.Context, req SwapRequest) (SwapResult, error)
}

// Engine routes signals to the configured backend.
type Engine struct {
	cfg          *models.Config
	webhookToken string
	chain        ChainExecutor
	client       *http.Client
	now          func() time.Time
	newID        func() string
	logger       *zap.Logger
}

// NewEngine creates an engine for cfg.ExecutionMode. chain may be nil unless
// the mode is onchain.
func NewEngine(cfg *models.Config, webhookToken string, chain ChainExecutor, logger *zap.Logger) *Engine {
	timeout := time.Duration(cfg.WebhookTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Engine{
		cfg:          cfg,
		webhookToken: webhookToken,
		chain:        chain,
		client:       &http.Client{Timeout: timeout},
		now:          time.Now,
		newID:        newTransactionID,
		logger:       logger,
	}
}

// WithClock replaces the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithHTTPClient replaces the client used for webhook delivery.
func (e *Engine) WithHTTPClient(client *http.Client) *Engine {
	e.client = client
	return e
}

// outcome carries a result plus whether the attempt reached a backend.
// Only dispatched outcomes are eligible for the transaction log.
type outcome struct {
	result     models.ExecutionResult
	next       models.BotState
	dispatched bool
}

// Execute never mutates state; the returned state is a fresh copy.
func (e *Engine) Execute(ctx context.Context, state models.BotState, signal models.Signal) (models.ExecutionResult, models.BotState) {
	out := e.dispatch(ctx, state.Clone(), signal)
	next := e.finalize(out, signal)
	e.logger.Debug("execution finished",
		zap.String("action", string(signal.Action)),
		zap.String("mode", string(out.result.Mode)),
		zap.String("status", string(out.result.Status)),
		zap.String("detail", out.result.Detail))
	return out.result, next
}

func (e *Engine) dispatch(ctx context.Context, state models.BotState, signal models.Signal) outcome {
	mode := e.cfg.ExecutionMode
	now := e.now()

	if signal.Action == models.Hold {
		return e.skip(state, "Hold signal", now)
	}
	if d := risk.CanTrade(state, now); !d.OK {
		return e.skip(state, d.Reason, now)
	}

	switch mode {
	case models.ModeDisabled:
		return e.skip(state, "Execution disabled", now)
	case models.ModeWebhook:
		return e.executeWebhook(ctx, state, signal, now)
	case models.ModePaper:
		return e.executePaper(state, signal, now)
	case models.ModeOnchain:
		return e.executeOnchain(ctx, state, signal, now)
	default:
		return e.fail(state, "Unknown execution mode", now)
	}
}

// finalize appends the audit record. Holds, skips and results that never
// reached a backend are not recorded.
func (e *Engine) finalize(out outcome, signal models.Signal) models.BotState {
	next := out.next
	if !out.dispatched || signal.Action == models.Hold || out.result.Status == models.StatusSkipped {
		return next
	}
	res := out.result
	record := models.TransactionRecord{
		ID:           e.newID(),
		Action:       signal.Action,
		Reason:       signal.Reason,
		Price:        signal.Price,
		ChangePct:    signal.ChangePct,
		Status:       res.Status,
		Mode:         res.Mode,
		Detail:       res.Detail,
		ExecutedAt:   res.ExecutedAt,
		TradeSizeUSD: res.TradeSizeUSD,
		AssetDelta:   res.AssetDelta,
		CashDelta:    res.CashDelta,
		TxHash:       res.TxHash,
	}
	next.Transactions = appendBounded(next.Transactions, record, models.MaxTransactions)
	return next
}

func (e *Engine) skip(state models.BotState, detail string, now time.Time) outcome {
	return outcome{
		result: models.ExecutionResult{Status: models.StatusSkipped, Mode: e.cfg.ExecutionMode, Detail: detail, ExecutedAt: now},
		next:   state,
	}
}

func (e *Engine) fail(state models.BotState, detail string, now time.Time) outcome {
	return outcome{
		result: models.ExecutionResult{Status: models.StatusFailed, Mode: e.cfg.ExecutionMode, Detail: detail, ExecutedAt: now},
		next:   state,
	}
}

func appendBounded[T any](items []T, item T, limit int) []T {
	items = append(items, item)
	if len(items) > limit {
		items = append([]T(nil), items[len(items)-limit:]...)
	}
	return items
}

func newTransactionID() string {
	id := uuid.New()
	return base62.EncodeToString(id[:])
}
