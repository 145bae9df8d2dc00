package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"base-autobot/internal/models"
	"base-autobot/internal/risk"

	"go.uber.org/zap"
)

type chainMetadata struct {
	ChainID int64             `json:"chainId"`
	Network string            `json:"network"`
	Routers models.Routers    `json:"routers"`
	Tokens  map[string]string `json:"tokens"`
}

// webhookPayload describes the decision for an external executor. The
// allocation fields are informational; the receiver decides whether to act.
type webhookPayload struct {
	Action            models.Action         `json:"action"`
	Asset             string                `json:"asset"`
	Price             float64               `json:"price"`
	TradeSizeUSD      float64               `json:"tradeSizeUsd"`
	GeneratedAt       time.Time             `json:"generatedAt"`
	Reason            string                `json:"reason"`
	ChangePct         *float64              `json:"changePct,omitempty"`
	ExposureUSD       float64               `json:"exposureUsd"`
	TotalPortfolioUSD float64               `json:"totalPortfolioUsd"`
	AllocationTarget  *float64              `json:"allocationTarget,omitempty"`
	WithinAllocation  bool                  `json:"withinAllocation"`
	RiskParams        models.StrategyParams `json:"riskParams"`
	Portfolio         models.Portfolio      `json:"portfolio"`
	Chain             chainMetadata         `json:"chain"`
}

func (e *Engine) buildWebhookPayload(state models.BotState, signal models.Signal) webhookPayload {
	total := risk.PortfolioValue(state, signal.Price)
	payload := webhookPayload{
		Action:            signal.Action,
		Asset:             e.cfg.AssetSymbol,
		Price:             signal.Price,
		TradeSizeUSD:      state.Params.TradeSizeUSD,
		GeneratedAt:       signal.GeneratedAt,
		Reason:            signal.Reason,
		ChangePct:         signal.ChangePct,
		ExposureUSD:       risk.Exposure(state, signal.Price),
		TotalPortfolioUSD: total,
		WithinAllocation:  true,
		RiskParams:        state.Params,
		Portfolio:         state.Portfolio,
		Chain: chainMetadata{
			ChainID: e.cfg.AddressBook.ChainID,
			Network: e.cfg.AddressBook.Network,
			Routers: e.cfg.AddressBook.Routers,
			Tokens:  e.cfg.AddressBook.Tokens,
		},
	}
	if target, ok := risk.AllocationTarget(state, e.cfg.AssetSymbol); ok {
		payload.AllocationTarget = &target
		payload.WithinAllocation = risk.CheckAllocation(state, signal, total, target).OK
	}
	return payload
}

func (e *Engine) executeWebhook(ctx context.Context, state models.BotState, signal models.Signal, now time.Time) outcome {
	if e.cfg.WebhookURL == "" {
		return e.fail(state, "WEBHOOK_URL is not set", now)
	}

	body, err := json.Marshal(e.buildWebhookPayload(state, signal))
	if err != nil {
		return e.fail(state, fmt.Sprintf("Webhook payload error: %v", err), now)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return e.fail(state, fmt.Sprintf("Webhook request error: %v", err), now)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.webhookToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.webhookToken)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn("webhook delivery failed", zap.Error(err))
		out := e.fail(state, fmt.Sprintf("Webhook delivery failed: %v", err), now)
		out.dispatched = true
		return out
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		out := e.fail(state, fmt.Sprintf("Webhook error (%d)", resp.StatusCode), now)
		out.dispatched = true
		return out
	}

	next := state
	next.LastTradeAt = &now
	return outcome{
		result: models.ExecutionResult{
			Status:       models.StatusSubmitted,
			Mode:         models.ModeWebhook,
			Detail:       "Webhook accepted",
			ExecutedAt:   now,
			TradeSizeUSD: models.Ptr(state.Params.TradeSizeUSD),
		},
		next:       next,
		dispatched: true,
	}
}
