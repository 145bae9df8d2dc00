package statemanager

import (
	"math"

	"base-autobot/internal/models"
)

// ApplyParamsPatch updates strategy params from a decoded JSON object.
// Values that are missing, non-numeric or below their minimum keep the
// current setting.
func ApplyParamsPatch(state models.BotState, patch map[string]any) models.BotState {
	next := state.Clone()
	if patch == nil {
		return next
	}
	p := &next.Params
	p.TradeSizeUSD = ensureNumber(patch["tradeSizeUsd"], p.TradeSizeUSD, 0)
	p.MinMovePct = ensureNumber(patch["minMovePct"], p.MinMovePct, 0)
	p.MinIntervalSec = ensureNumber(patch["minIntervalSec"], p.MinIntervalSec, 0)
	p.MaxPositionUSD = ensureNumber(patch["maxPositionUsd"], p.MaxPositionUSD, 0)
	p.MaxDrawdownPct = ensureNumber(patch["maxDrawdownPct"], p.MaxDrawdownPct, 0)
	p.StopLossPct = ensureNumber(patch["stopLossPct"], p.StopLossPct, 0)
	p.TakeProfitPct = ensureNumber(patch["takeProfitPct"], p.TakeProfitPct, 0)
	p.VolatilityLookback = ensureInt(patch["volatilityLookback"], p.VolatilityLookback, 1)
	p.MaxTradesPerHour = ensureNumber(patch["maxTradesPerHour"], p.MaxTradesPerHour, 0)
	p.IndexMinMovePct = ensureNumber(patch["indexMinMovePct"], p.IndexMinMovePct, 0)
	p.ForecastLookback = ensureInt(patch["forecastLookback"], p.ForecastLookback, 2)
	return next
}

// ApplyPortfolioPatch updates balances and allocation targets. Token maps only
// accept keys that already exist; targets must lie in [0, 1]. A positive asset
// needs an entry price: the patch's avgEntryPrice, the current one, or
// LastPrice. Without any of them the asset change is dropped.
func ApplyPortfolioPatch(state models.BotState, patch map[string]any) models.BotState {
	next := state.Clone()
	if patch == nil {
		return next
	}
	next.Portfolio.CashUSD = ensureNumber(patch["cashUsd"], next.Portfolio.CashUSD, 0)
	next.Portfolio.Asset = ensureNumber(patch["asset"], next.Portfolio.Asset, 0)
	if avg := ensureNumber(patch["avgEntryPrice"], 0, 0); avg > 0 {
		next.AvgEntryPrice = models.Ptr(avg)
	}
	if balances, ok := patch["tokenBalancesUsd"].(map[string]any); ok {
		sanitizeTokenValues(balances, next.Portfolio.TokenBalancesUSD, 0, math.Inf(1))
	}
	if targets, ok := patch["allocationTargets"].(map[string]any); ok {
		sanitizeTokenValues(targets, next.Portfolio.AllocationTargets, 0, 1)
	}
	if next.Portfolio.Asset == 0 {
		next.AvgEntryPrice = nil
	} else if next.AvgEntryPrice == nil {
		next.AvgEntryPrice = seedEntryPrice(next)
		if next.AvgEntryPrice == nil {
			// No price to seed from: keep the previous position.
			next.Portfolio.Asset = state.Portfolio.Asset
			next.AvgEntryPrice = state.AvgEntryPrice
		}
	}
	return next
}

// seedEntryPrice returns LastPrice when it can stand in for an unknown entry price.
func seedEntryPrice(state models.BotState) *float64 {
	if state.LastPrice == nil || math.IsNaN(*state.LastPrice) || math.IsInf(*state.LastPrice, 0) || *state.LastPrice <= 0 {
		return nil
	}
	return models.Ptr(*state.LastPrice)
}

func ensureNumber(v any, fallback, min float64) float64 {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < min {
		return fallback
	}
	return f
}

// MaxLookback bounds the lookback params and therefore the stored history.
const MaxLookback = 10000

func ensureInt(v any, fallback, min int) int {
	f := ensureNumber(v, math.NaN(), float64(min))
	if math.IsNaN(f) {
		return fallback
	}
	return int(math.Floor(math.Min(f, MaxLookback)))
}

func sanitizeTokenValues(patch map[string]any, current map[string]float64, min, max float64) {
	for key, raw := range patch {
		if _, known := current[key]; !known {
			continue
		}
		f, ok := raw.(float64)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < min || f > max {
			continue
		}
		current[key] = f
	}
}
