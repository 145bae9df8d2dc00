package api

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"base-autobot/internal/bot"
	"base-autobot/internal/models"
	"base-autobot/internal/risk"

	"go.uber.org/zap"
)

const redacted = "***"

type summary struct {
	Asset          string                  `json:"asset"`
	Mode           models.ExecutionMode    `json:"mode"`
	Paused         bool                    `json:"paused"`
	LastRunAt      *time.Time              `json:"lastRunAt,omitempty"`
	LastPrice      *float64                `json:"lastPrice,omitempty"`
	WalletValueUSD *float64                `json:"walletValueUsd,omitempty"`
	LastSignal     *models.Signal          `json:"lastSignal,omitempty"`
	LastExecution  *models.ExecutionResult `json:"lastExecution,omitempty"`
	LastError      *models.ErrorInfo       `json:"lastError,omitempty"`
	ErrorCount     int                     `json:"errorCount"`
	Transactions   int                     `json:"transactions"`
}

// GET /: dashboard summary.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	state, err := s.bot.States().Load(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	cfg := s.bot.Config()
	out := summary{
		Asset:         cfg.AssetSymbol,
		Mode:          cfg.ExecutionMode,
		Paused:        state.Paused,
		LastRunAt:     state.LastRunAt,
		LastPrice:     state.LastPrice,
		LastSignal:    state.LastSignal,
		LastExecution: state.LastExecution,
		LastError:     state.LastError,
		ErrorCount:    state.ErrorCount,
		Transactions:  len(state.Transactions),
	}
	if state.LastPrice != nil {
		out.WalletValueUSD = models.Ptr(risk.PortfolioValue(state, *state.LastPrice))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	cfg := s.bot.Config()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"mode":  cfg.ExecutionMode,
		"asset": cfg.AssetSymbol,
	})
}

// GET /config: runtime configuration, secrets excluded.
func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := *s.bot.Config()
	cfg.WebhookURL = redactURL(cfg.WebhookURL)
	s.writeJSON(w, http.StatusOK, cfg)
}

// redactURL keeps scheme, host and path; credentials and query strings often
// carry tokens.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return redacted
	}
	masked := u.Scheme + "://" + u.Host + u.EscapedPath()
	if u.User != nil {
		masked = u.Scheme + "://" + redacted + "@" + u.Host + u.EscapedPath()
	}
	if u.RawQuery != "" {
		masked += "?" + redacted
	}
	return masked
}

// POST /config: patch strategy params.
func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeBody(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	state, err := s.bot.States().PatchParams(r.Context(), payload)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "params": state.Params})
}

// GET /state: full state, synced with the wallet in onchain mode.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.bot.State(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// GET /portfolio
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	state, err := s.bot.State(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state.Portfolio)
}

// POST /portfolio: patch balances and allocation targets.
func (s *Server) handlePatchPortfolio(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeBody(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	state, err := s.bot.States().PatchPortfolio(r.Context(), payload)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "portfolio": state.Portfolio})
}

// POST /pause, POST /resume
func (s *Server) handlePause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.bot.States().SetPaused(r.Context(), paused); err != nil {
			s.internalError(w, err)
			return
		}
		s.logger.Info("pause flag changed", zap.Bool("paused", paused))
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "paused": paused})
	}
}

// POST /run-once: force a tick now.
func (s *Server) handleRunOnce(w http.ResponseWriter, r *http.Request) {
	out, err := s.bot.RunOnce(r.Context())
	if errors.Is(err, bot.ErrPaused) {
		s.writeJSON(w, http.StatusConflict, map[string]interface{}{"ok": false, "error": "paused"})
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	if out.Err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"ok":        false,
			"error":     out.Err.Error(),
			"lastError": out.State.LastError,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"signal":    out.Signal,
		"execution": out.Execution,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false, "error": "invalid json: " + err.Error()})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", zap.Error(err))
	s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"ok": false, "error": err.Error()})
}
