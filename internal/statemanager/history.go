package statemanager

import (
	"time"

	"base-autobot/internal/models"
	"base-autobot/internal/risk"
)

// HistoryLimit is the bound for price and index windows.
func HistoryLimit(params models.StrategyParams) int {
	limit := params.VolatilityLookback
	if params.ForecastLookback > limit {
		limit = params.ForecastLookback
	}
	return min(max(limit, 1), MaxLookback)
}

// UpdateMarketHistory appends the tick's price (and index price, when
// present) to the rolling windows, evicting the oldest entries.
func UpdateMarketHistory(state models.BotState, point models.PricePoint) models.BotState {
	next := state.Clone()
	limit := HistoryLimit(next.Params)
	next.PriceHistory = keepLast(append(next.PriceHistory, point.Price), limit)
	if point.IndexPrice != nil {
		next.IndexHistory = keepLast(append(next.IndexHistory, *point.IndexPrice), limit)
	}
	return next
}

// UpdateWalletHistory records the portfolio value at price.
func UpdateWalletHistory(state models.BotState, price float64, at time.Time) models.BotState {
	next := state.Clone()
	point := models.WalletPoint{ValueUSD: risk.PortfolioValue(next, price), At: at}
	next.WalletHistory = keepLast(append(next.WalletHistory, point), models.MaxWalletHistory)
	return next
}

func keepLast[T any](items []T, limit int) []T {
	if len(items) <= limit {
		return items
	}
	return append([]T(nil), items[len(items)-limit:]...)
}
