package reporter

import (
	"fmt"
	"io"
	"math"
	"time"

	"base-autobot/internal/models"
	"base-autobot/internal/risk"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Metrics 根据持久化状态计算出的运行表现指标
type Metrics struct {
	InitialValue     float64
	FinalValue       float64
	TotalProfit      float64
	ProfitPercentage float64
	TotalTrades      int
	BuyTrades        int
	SellTrades       int
	FailedTrades     int
	MaxDrawdown      float64
	EndingCash       float64
	EndingAssetValue float64
	TotalAssetQty    float64
	AvgEntryPrice    float64
	ErrorCount       int
	StartTime        time.Time
	EndTime          time.Time
}

// Calculate 从钱包价值历史和交易记录中计算指标。
// 没有钱包历史时以初始资金作为起点
func Calculate(state models.BotState, startingCash float64) Metrics {
	m := Metrics{
		InitialValue: startingCash,
		ErrorCount:   state.ErrorCount,
		EndingCash:   state.Portfolio.CashUSD,
	}

	price := 0.0
	if state.LastPrice != nil {
		price = *state.LastPrice
	}
	m.TotalAssetQty = state.Portfolio.Asset
	m.EndingAssetValue = risk.Exposure(state, price)
	m.FinalValue = risk.PortfolioValue(state, price)
	if state.AvgEntryPrice != nil {
		m.AvgEntryPrice = *state.AvgEntryPrice
	}

	equity := make([]float64, 0, len(state.WalletHistory))
	for _, p := range state.WalletHistory {
		equity = append(equity, p.ValueUSD)
	}
	if len(state.WalletHistory) > 0 {
		first, last := state.WalletHistory[0], state.WalletHistory[len(state.WalletHistory)-1]
		m.StartTime, m.EndTime = first.At, last.At
		if startingCash <= 0 {
			m.InitialValue = first.ValueUSD
		}
	}

	for _, tx := range state.Transactions {
		if tx.Status == models.StatusFailed {
			m.FailedTrades++
			continue
		}
		m.TotalTrades++
		switch tx.Action {
		case models.Buy:
			m.BuyTrades++
		case models.Sell:
			m.SellTrades++
		}
	}

	m.TotalProfit = m.FinalValue - m.InitialValue
	if m.InitialValue != 0 {
		m.ProfitPercentage = m.TotalProfit / m.InitialValue * 100
	}
	m.MaxDrawdown = calculateMaxDrawdown(equity) * 100
	return m
}

// Render 以表格形式输出报告
func Render(w io.Writer, cfg *models.Config, state models.BotState) Metrics {
	m := Calculate(state, cfg.StartingCashUSD)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("%s/%s 运行报告 (%s)", cfg.AssetSymbol, cfg.QuoteSymbol, cfg.ExecutionMode))
	t.AppendHeader(table.Row{"指标", "数值"})

	period := "-"
	if !m.StartTime.IsZero() {
		period = fmt.Sprintf("%s 到 %s", m.StartTime.Format("2006-01-02 15:04"), m.EndTime.Format("2006-01-02 15:04"))
	}
	t.AppendRow(table.Row{"统计周期", period})
	t.AppendRow(table.Row{"状态", map[bool]string{true: "已暂停", false: "运行中"}[state.Paused]})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"初始价值", fmt.Sprintf("%.2f USD", m.InitialValue)},
		{"当前价值", fmt.Sprintf("%.2f USD", m.FinalValue)},
		{"总利润", fmt.Sprintf("%.2f USD", m.TotalProfit)},
		{"收益率", fmt.Sprintf("%.2f%%", m.ProfitPercentage)},
		{"最大回撤", fmt.Sprintf("%.2f%%", m.MaxDrawdown)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"交易次数", m.TotalTrades},
		{"买入 / 卖出", fmt.Sprintf("%d / %d", m.BuyTrades, m.SellTrades)},
		{"失败次数", m.FailedTrades},
		{"错误次数", m.ErrorCount},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"期末现金", fmt.Sprintf("%.2f USD", m.EndingCash)},
		{"期末持仓市值", fmt.Sprintf("%.2f USD (共 %.6f %s)", m.EndingAssetValue, m.TotalAssetQty, cfg.AssetSymbol)},
		{"持仓均价", fmt.Sprintf("%.4f", m.AvgEntryPrice)},
	})
	t.Render()

	if n := len(state.Transactions); n > 0 {
		renderTransactions(w, state.Transactions[max(0, n-10):])
	}
	return m
}

// renderTransactions 输出最近的交易记录
func renderTransactions(w io.Writer, txs []models.TransactionRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("最近交易")
	t.AppendHeader(table.Row{"时间", "方向", "价格", "金额", "状态", "详情"})
	for _, tx := range txs {
		size := "-"
		if tx.TradeSizeUSD != nil {
			size = fmt.Sprintf("%.2f", *tx.TradeSizeUSD)
		}
		t.AppendRow(table.Row{
			tx.ExecutedAt.Format("01-02 15:04:05"),
			tx.Action,
			fmt.Sprintf("%.4f", tx.Price),
			size,
			tx.Status,
			tx.Detail,
		})
	}
	t.Render()
}

func calculateMaxDrawdown(equityCurve []float64) float64 {
	if len(equityCurve) < 2 {
		return 0.0
	}
	peak := equityCurve[0]
	maxDrawdown := 0.0

	for _, equity := range equityCurve {
		if equity > peak {
			peak = equity
		}
		if peak <= 0 {
			continue
		}
		drawdown := (peak - equity) / peak
		maxDrawdown = math.Max(maxDrawdown, drawdown)
	}
	return maxDrawdown
}
