package execution

import (
	"time"

	"base-autobot/internal/models"
	"base-autobot/internal/risk"
)

func (e *Engine) executePaper(state models.BotState, signal models.Signal, now time.Time) outcome {
	size := state.Params.TradeSizeUSD
	if size <= 0 {
		return e.fail(state, "Trade size must be positive", now)
	}
	price := signal.Price

	if signal.Action == models.Buy {
		if d := risk.CheckAssetAllocation(state, signal, e.cfg.AssetSymbol); !d.OK {
			return e.skip(state, d.Reason, now)
		}
		if state.Portfolio.CashUSD < size {
			return e.skip(state, "Insufficient cash", now)
		}

		assetDelta := size / price
		nextAsset := state.Portfolio.Asset + assetDelta
		entry := price
		if state.AvgEntryPrice != nil {
			entry = *state.AvgEntryPrice
		}
		avg := (state.Portfolio.Asset*entry + size) / nextAsset

		next := state
		next.Portfolio.CashUSD = state.Portfolio.CashUSD - size
		next.Portfolio.Asset = nextAsset
		next.AvgEntryPrice = &avg
		next.LastTradeAt = &now

		return outcome{
			result: models.ExecutionResult{
				Status:       models.StatusFilled,
				Mode:         models.ModePaper,
				Detail:       "Paper buy executed",
				ExecutedAt:   now,
				TradeSizeUSD: models.Ptr(size),
				AssetDelta:   models.Ptr(assetDelta),
				CashDelta:    models.Ptr(-size),
			},
			next:       next,
			dispatched: true,
		}
	}

	qty := size / price
	if state.Portfolio.Asset < qty {
		qty = state.Portfolio.Asset
	}
	if qty <= 0 {
		return e.skip(state, "No asset balance to sell", now)
	}

	cashDelta := qty * price
	remaining := state.Portfolio.Asset - qty

	next := state
	next.Portfolio.CashUSD = state.Portfolio.CashUSD + cashDelta
	next.Portfolio.Asset = remaining
	if remaining <= 0 {
		next.Portfolio.Asset = 0
		next.AvgEntryPrice = nil
	}
	next.LastTradeAt = &now

	return outcome{
		result: models.ExecutionResult{
			Status:       models.StatusFilled,
			Mode:         models.ModePaper,
			Detail:       "Paper sell executed",
			ExecutedAt:   now,
			TradeSizeUSD: models.Ptr(cashDelta),
			AssetDelta:   models.Ptr(-qty),
			CashDelta:    models.Ptr(cashDelta),
		},
		next:       next,
		dispatched: true,
	}
}
