package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExecutionMode(t *testing.T) {
	mode, err := ParseExecutionMode(" Onchain ")
	require.NoError(t, err)
	assert.Equal(t, ModeOnchain, mode)

	_, err = ParseExecutionMode("live")
	assert.Error(t, err)
}

func TestBotStateCloneIsDeep(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	original := BotState{
		Portfolio: Portfolio{
			CashUSD:           100,
			Asset:             1,
			TokenBalancesUSD:  map[string]float64{"usdc": 5},
			AllocationTargets: map[string]float64{"weth": 0.5},
		},
		AvgEntryPrice: Ptr(100.0),
		PriceHistory:  []float64{1, 2, 3},
		WalletHistory: []WalletPoint{{ValueUSD: 10, At: now}},
		Transactions:  []TransactionRecord{{ID: "a", CashDelta: Ptr(-25.0)}},
		LastSignal:    &Signal{Action: Buy, ChangePct: Ptr(0.5)},
		LastExecution: &ExecutionResult{Status: StatusFilled, AssetDelta: Ptr(0.25)},
		LastTradeAt:   &now,
	}

	clone := original.Clone()
	clone.Portfolio.TokenBalancesUSD["usdc"] = 99
	clone.Portfolio.AllocationTargets["weth"] = 1
	*clone.AvgEntryPrice = 1
	clone.PriceHistory[0] = 42
	clone.WalletHistory[0].ValueUSD = 0
	*clone.Transactions[0].CashDelta = 0
	*clone.LastSignal.ChangePct = 9
	*clone.LastExecution.AssetDelta = 9
	*clone.LastTradeAt = now.Add(time.Hour)

	assert.Equal(t, 5.0, original.Portfolio.TokenBalancesUSD["usdc"])
	assert.Equal(t, 0.5, original.Portfolio.AllocationTargets["weth"])
	assert.Equal(t, 100.0, *original.AvgEntryPrice)
	assert.Equal(t, []float64{1, 2, 3}, original.PriceHistory)
	assert.Equal(t, 10.0, original.WalletHistory[0].ValueUSD)
	assert.Equal(t, -25.0, *original.Transactions[0].CashDelta)
	assert.Equal(t, 0.5, *original.LastSignal.ChangePct)
	assert.Equal(t, 0.25, *original.LastExecution.AssetDelta)
	assert.Equal(t, now, *original.LastTradeAt)
}
