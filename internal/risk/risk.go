// Package risk holds the cadence and position checks applied before a signal
// is committed.
package risk

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"base-autobot/internal/models"
)

// Decision is the outcome of a gate. Reason is set when OK is false.
type Decision struct {
	OK     bool
	Reason string
}

func allow() Decision { return Decision{OK: true} }

func block(reason string) Decision { return Decision{Reason: reason} }

// EffectiveMinInterval returns the cooldown in seconds: the larger of the
// configured minimum interval and the spacing implied by max trades per hour.
func EffectiveMinInterval(params models.StrategyParams) float64 {
	interval := params.MinIntervalSec
	if params.MaxTradesPerHour > 0 {
		if perTrade := 3600 / params.MaxTradesPerHour; perTrade > interval {
			interval = perTrade
		}
	}
	return interval
}

// CanTrade enforces the cooldown. The first trade is always allowed.
func CanTrade(state models.BotState, now time.Time) Decision {
	if state.LastTradeAt == nil || state.LastTradeAt.IsZero() {
		return allow()
	}
	interval := EffectiveMinInterval(state.Params)
	elapsed := now.Sub(*state.LastTradeAt).Seconds()
	if elapsed < interval {
		return block(fmt.Sprintf("Cooldown %ss not met", strconv.FormatFloat(interval, 'f', -1, 64)))
	}
	return allow()
}

// Exposure is the current position value in quote currency.
func Exposure(state models.BotState, price float64) float64 {
	return state.Portfolio.Asset * price
}

// PortfolioValue is cash plus position value plus tracked token balances.
func PortfolioValue(state models.BotState, price float64) float64 {
	total := state.Portfolio.CashUSD + Exposure(state, price)
	for _, v := range state.Portfolio.TokenBalancesUSD {
		total += v
	}
	return total
}

// AllocationTarget looks up the target fraction for symbol, ignoring case.
func AllocationTarget(state models.BotState, symbol string) (float64, bool) {
	want := strings.ToLower(strings.TrimSpace(symbol))
	for key, v := range state.Portfolio.AllocationTargets {
		if strings.ToLower(key) == want {
			return v, true
		}
	}
	return 0, false
}

// CheckAllocation rejects a buy whose projected exposure would exceed
// totalUSD * target. Sells and unset targets always pass.
func CheckAllocation(state models.BotState, signal models.Signal, totalUSD, target float64) Decision {
	if signal.Action != models.Buy || target <= 0 {
		return allow()
	}
	projected := Exposure(state, signal.Price) + state.Params.TradeSizeUSD
	if projected > totalUSD*target {
		return block("Allocation limit reached")
	}
	return allow()
}

// CheckAssetAllocation resolves the target for symbol and applies
// CheckAllocation against the current portfolio value.
func CheckAssetAllocation(state models.BotState, signal models.Signal, symbol string) Decision {
	target, ok := AllocationTarget(state, symbol)
	if !ok {
		return allow()
	}
	return CheckAllocation(state, signal, PortfolioValue(state, signal.Price), target)
}
