package execution

import (
	"context"
	"fmt"
	"time"

	"base-autobot/internal/models"
	"base-autobot/internal/risk"

	"go.uber.org/zap"
)

// executeOnchain checks trade size and allocation against the pre-trade
// portfolio, then delegates. The chain's status is passed through unchanged;
// rejections found before any RPC call are not recorded.
func (e *Engine) executeOnchain(ctx context.Context, state models.BotState, signal models.Signal, now time.Time) outcome {
	if e.chain == nil {
		return e.fail(state, "Chain executor is not configured", now)
	}
	size := state.Params.TradeSizeUSD
	if size <= 0 {
		return e.fail(state, "Trade size must be positive", now)
	}
	if signal.Action == models.Buy {
		if d := risk.CheckAssetAllocation(state, signal, e.cfg.AssetSymbol); !d.OK {
			return e.skip(state, d.Reason, now)
		}
	}

	req := SwapRequest{
		Direction:    signal.Action,
		InputSymbol:  e.cfg.QuoteSymbol,
		OutputSymbol: e.cfg.AssetSymbol,
		USDNotional:  size,
		Price:        signal.Price,
		SlippageBps:  e.cfg.SwapSlippageBps,
		DeadlineSec:  e.cfg.SwapDeadlineSec,
	}
	if signal.Action == models.Sell {
		req.InputSymbol, req.OutputSymbol = e.cfg.AssetSymbol, e.cfg.QuoteSymbol
	}

	res, err := e.chain.Swap(ctx, req)
	if err != nil {
		e.logger.Warn("onchain swap failed", zap.Error(err))
		out := e.fail(state, fmt.Sprintf("Onchain error: %v", err), now)
		out.dispatched = true
		return out
	}

	if res.Rejected {
		return e.fail(state, res.Detail, now)
	}

	// An approval only unlocks the next tick's swap, so the cooldown is not started.
	next := state
	if !res.Approval && (res.Status == models.StatusSubmitted || res.Status == models.StatusFilled) {
		next.LastTradeAt = &now
	}
	return outcome{
		result: models.ExecutionResult{
			Status:       res.Status,
			Mode:         models.ModeOnchain,
			Detail:       res.Detail,
			ExecutedAt:   now,
			TradeSizeUSD: res.TradeSizeUSD,
			AssetDelta:   res.RealizedAssetDelta,
			CashDelta:    res.RealizedCashDelta,
			TxHash:       res.TxHash,
		},
		next:       next,
		dispatched: true,
	}
}
