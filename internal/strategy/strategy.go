// Package strategy turns a price observation and the current bot state into a
// trade signal. Evaluate has no side effects and always returns the same
// signal for the same inputs.
package strategy

import (
	"fmt"
	"math"

	"base-autobot/internal/models"
)

// Evaluate applies the rules in order; the first rule that decides wins.
// The momentum baseline is state.LastPrice (the previous tick), while the
// volatility and forecast gates read state.PriceHistory, which already
// contains the current price.
func Evaluate(point models.PricePoint, state models.BotState) models.Signal {
	price := point.Price
	params := state.Params

	var changePct *float64
	if state.LastPrice != nil {
		if c, ok := pctChange(price, *state.LastPrice); ok {
			changePct = &c
		}
	}

	signal := func(action models.Action, reason string) models.Signal {
		return models.Signal{
			Action:      action,
			Reason:      reason,
			Price:       price,
			ChangePct:   changePct,
			GeneratedAt: point.FetchedAt,
		}
	}

	// 1. exit rules against the average entry price
	if state.Portfolio.Asset > 0 && state.AvgEntryPrice != nil {
		if entryChange, ok := pctChange(price, *state.AvgEntryPrice); ok {
			if params.StopLossPct > 0 && entryChange <= -params.StopLossPct {
				return signal(models.Sell, fmt.Sprintf("Stop loss breached (%.2f%% from entry)", entryChange))
			}
			if params.TakeProfitPct > 0 && entryChange >= params.TakeProfitPct {
				return signal(models.Sell, fmt.Sprintf("Take profit reached (%.2f%% from entry)", entryChange))
			}
		}
	}

	// 2. a tick cannot trade on its first observation
	if changePct == nil {
		return signal(models.Hold, "No previous price to compare")
	}
	change := *changePct

	// 3. index confirmation
	indexChange, hasIndex := indexMove(point, state)
	if hasIndex && params.IndexMinMovePct > 0 && math.Abs(indexChange) < params.IndexMinMovePct {
		return signal(models.Hold, fmt.Sprintf("Index move %.2f%% below %.2f%% threshold", indexChange, params.IndexMinMovePct))
	}

	// 4. volatility circuit breaker
	if params.VolatilityLookback > 1 && len(state.PriceHistory) >= params.VolatilityLookback && params.MaxDrawdownPct > 0 {
		if vol, ok := volatilityPct(tail(state.PriceHistory, params.VolatilityLookback)); ok && vol > params.MaxDrawdownPct {
			return signal(models.Hold, "Volatility above limit")
		}
	}

	// 5. minimum move
	if math.Abs(change) < params.MinMovePct {
		return signal(models.Hold, fmt.Sprintf("Move %.2f%% below %.2f%% threshold", change, params.MinMovePct))
	}

	// 6. direction
	action := models.Sell
	if change > 0 {
		action = models.Buy
	}

	// 7. index alignment
	if hasIndex {
		if action == models.Buy && indexChange < 0 {
			return signal(models.Hold, "Index moving down, buy not confirmed")
		}
		if action == models.Sell && indexChange > 0 {
			return signal(models.Hold, "Index moving up, sell not confirmed")
		}
	}

	// 8. forecast alignment
	if params.ForecastLookback >= 2 {
		if forecast, ok := linearForecast(tail(state.PriceHistory, params.ForecastLookback)); ok {
			if action == models.Buy && forecast < price {
				return signal(models.Hold, fmt.Sprintf("Forecast %.4f below price, buy not confirmed", forecast))
			}
			if action == models.Sell && forecast > price {
				return signal(models.Hold, fmt.Sprintf("Forecast %.4f above price, sell not confirmed", forecast))
			}
		}
	}

	// 9. exposure cap
	if action == models.Buy && params.MaxPositionUSD > 0 {
		exposure := state.Portfolio.Asset * price
		if exposure+params.TradeSizeUSD > params.MaxPositionUSD {
			return signal(models.Hold, fmt.Sprintf("Max position %.2f USD reached", params.MaxPositionUSD))
		}
	}

	if action == models.Buy {
		return signal(models.Buy, fmt.Sprintf("Price up %.2f%% since last tick", change))
	}
	return signal(models.Sell, fmt.Sprintf("Price down %.2f%% since last tick", math.Abs(change)))
}

// indexMove reports the index change since the previous tick when both
// observations exist.
func indexMove(point models.PricePoint, state models.BotState) (float64, bool) {
	if point.IndexPrice == nil || state.LastIndexPrice == nil {
		return 0, false
	}
	return pctChange(*point.IndexPrice, *state.LastIndexPrice)
}
