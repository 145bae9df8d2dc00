package strategy

import (
	"testing"
	"time"

	"base-autobot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tickTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func baseState() models.BotState {
	return models.BotState{
		Portfolio: models.Portfolio{CashUSD: 1000},
		Params: models.StrategyParams{
			TradeSizeUSD:       25,
			MinMovePct:         0.35,
			VolatilityLookback: 20,
			ForecastLookback:   5,
		},
	}
}

func point(price float64) models.PricePoint {
	return models.PricePoint{Price: price, FetchedAt: tickTime}
}

func TestEvaluateHoldsOnFirstObservation(t *testing.T) {
	for _, price := range []float64{1, 100, 3500.25} {
		state := baseState()
		state.PriceHistory = []float64{price}

		sig := Evaluate(point(price), state)

		assert.Equal(t, models.Hold, sig.Action)
		assert.Equal(t, "No previous price to compare", sig.Reason)
		assert.Nil(t, sig.ChangePct)
	}
}

func TestEvaluateBuysOnMoveAboveThreshold(t *testing.T) {
	state := baseState()
	state.LastPrice = models.Ptr(100.0)
	state.PriceHistory = []float64{100, 100.5}

	sig := Evaluate(point(100.5), state)

	assert.Equal(t, models.Buy, sig.Action)
	require.NotNil(t, sig.ChangePct)
	assert.InDelta(t, 0.5, *sig.ChangePct, 1e-9)
	assert.Contains(t, sig.Reason, "0.50%")
	assert.Equal(t, 100.5, sig.Price)
	assert.Equal(t, tickTime, sig.GeneratedAt)
}

func TestEvaluateHoldsBelowMinimumMove(t *testing.T) {
	state := baseState()
	state.LastPrice = models.Ptr(100.0)
	state.PriceHistory = []float64{100, 100.2}

	sig := Evaluate(point(100.2), state)

	assert.Equal(t, models.Hold, sig.Action)
	require.NotNil(t, sig.ChangePct)
}

func TestEvaluateSellsOnDownMove(t *testing.T) {
	state := baseState()
	state.LastPrice = models.Ptr(100.0)
	state.PriceHistory = []float64{100, 99}

	sig := Evaluate(point(99), state)

	assert.Equal(t, models.Sell, sig.Action)
	assert.Contains(t, sig.Reason, "1.00%")
}

func TestEvaluateStopLossIgnoresMinimumMove(t *testing.T) {
	state := baseState()
	state.Portfolio.Asset = 1
	state.AvgEntryPrice = models.Ptr(100.0)
	state.Params.StopLossPct = 5
	state.Params.MinMovePct = 50
	state.LastPrice = models.Ptr(94.1)
	state.PriceHistory = []float64{94.1, 94}

	sig := Evaluate(point(94), state)

	assert.Equal(t, models.Sell, sig.Action)
	assert.Contains(t, sig.Reason, "Stop loss")
}

func TestEvaluateStopLossWithoutBaseline(t *testing.T) {
	state := baseState()
	state.Portfolio.Asset = 1
	state.AvgEntryPrice = models.Ptr(100.0)
	state.Params.StopLossPct = 5

	sig := Evaluate(point(94), state)

	assert.Equal(t, models.Sell, sig.Action)
	assert.Contains(t, sig.Reason, "Stop loss")
}

func TestEvaluateTakeProfit(t *testing.T) {
	state := baseState()
	state.Portfolio.Asset = 2
	state.AvgEntryPrice = models.Ptr(100.0)
	state.Params.TakeProfitPct = 10
	state.LastPrice = models.Ptr(110.0)
	state.PriceHistory = []float64{110, 110}

	sig := Evaluate(point(110), state)

	assert.Equal(t, models.Sell, sig.Action)
	assert.Contains(t, sig.Reason, "Take profit")
}

func TestEvaluateExitRulesNeedOpenPosition(t *testing.T) {
	state := baseState()
	state.AvgEntryPrice = models.Ptr(100.0)
	state.Params.StopLossPct = 5

	sig := Evaluate(point(90), state)

	assert.Equal(t, models.Hold, sig.Action)
}

func TestEvaluateIndexConfirmationGate(t *testing.T) {
	state := baseState()
	state.LastPrice = models.Ptr(100.0)
	state.LastIndexPrice = models.Ptr(1000.0)
	state.Params.IndexMinMovePct = 0.5
	state.PriceHistory = []float64{100, 101}

	p := point(101)
	p.IndexPrice = models.Ptr(1001.0)

	sig := Evaluate(p, state)

	assert.Equal(t, models.Hold, sig.Action)
	assert.Contains(t, sig.Reason, "Index move")
}

func TestEvaluateIndexAlignment(t *testing.T) {
	state := baseState()
	state.LastPrice = models.Ptr(100.0)
	state.LastIndexPrice = models.Ptr(1000.0)
	state.PriceHistory = []float64{100, 101}

	p := point(101)
	p.IndexPrice = models.Ptr(990.0)

	sig := Evaluate(p, state)
	assert.Equal(t, models.Hold, sig.Action)
	assert.Contains(t, sig.Reason, "Index moving down")

	p.IndexPrice = models.Ptr(1010.0)
	sig = Evaluate(p, state)
	assert.Equal(t, models.Buy, sig.Action)
}

func TestEvaluateVolatilityGate(t *testing.T) {
	state := baseState()
	state.LastPrice = models.Ptr(100.0)
	state.Params.VolatilityLookback = 4
	state.Params.MaxDrawdownPct = 5
	state.Params.ForecastLookback = 0
	state.PriceHistory = []float64{80, 120, 80, 120}

	sig := Evaluate(point(120), state)

	assert.Equal(t, models.Hold, sig.Action)
	assert.Equal(t, "Volatility above limit", sig.Reason)
}

func TestEvaluateVolatilityGateNeedsFullWindow(t *testing.T) {
	state := baseState()
	state.LastPrice = models.Ptr(100.0)
	state.Params.VolatilityLookback = 10
	state.Params.MaxDrawdownPct = 5
	state.Params.ForecastLookback = 0
	state.PriceHistory = []float64{80, 120, 80, 120}

	sig := Evaluate(point(120), state)

	assert.Equal(t, models.Buy, sig.Action)
}

func TestEvaluateForecastRejectsContradictingBuy(t *testing.T) {
	state := baseState()
	state.LastPrice = models.Ptr(100.0)
	state.Params.ForecastLookback = 4
	// downtrend that ends with a single uptick
	state.PriceHistory = []float64{110, 105, 99, 101}

	sig := Evaluate(point(101), state)

	assert.Equal(t, models.Hold, sig.Action)
	assert.Contains(t, sig.Reason, "Forecast")
}

func TestEvaluateForecastSkippedWithSinglePoint(t *testing.T) {
	state := baseState()
	state.LastPrice = models.Ptr(100.0)
	state.PriceHistory = []float64{101}

	sig := Evaluate(point(101), state)

	assert.Equal(t, models.Buy, sig.Action)
}

func TestEvaluateExposureCap(t *testing.T) {
	state := baseState()
	state.LastPrice = models.Ptr(100.0)
	state.PriceHistory = []float64{100, 101}
	state.Portfolio.Asset = 0.9
	state.AvgEntryPrice = models.Ptr(100.0)
	state.Params.MaxPositionUSD = 100

	sig := Evaluate(point(101), state)

	assert.Equal(t, models.Hold, sig.Action)
	assert.Contains(t, sig.Reason, "Max position")
}

func TestEvaluateIsIdempotent(t *testing.T) {
	state := baseState()
	state.LastPrice = models.Ptr(100.0)
	state.PriceHistory = []float64{98, 99, 100, 100.7}

	first := Evaluate(point(100.7), state)
	second := Evaluate(point(100.7), state)

	assert.Equal(t, first, second)
}

func TestLinearForecast(t *testing.T) {
	f, ok := linearForecast([]float64{1, 2, 3})
	require.True(t, ok)
	assert.InDelta(t, 4.0, f, 1e-9)

	_, ok = linearForecast([]float64{5})
	assert.False(t, ok)
}

func TestVolatilityPct(t *testing.T) {
	v, ok := volatilityPct([]float64{90, 110})
	require.True(t, ok)
	assert.InDelta(t, 10.0, v, 1e-9)

	v, ok = volatilityPct([]float64{100, 100, 100})
	require.True(t, ok)
	assert.Zero(t, v)
}
