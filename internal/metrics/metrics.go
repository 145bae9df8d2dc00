// Package metrics exposes Prometheus counters and gauges for the trading loop.
package metrics

import (
	"net/http"

	"base-autobot/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autobot"

// Metrics holds the bot's collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Ticks       *prometheus.CounterVec
	Signals     *prometheus.CounterVec
	Executions  *prometheus.CounterVec
	TickErrors  prometheus.Counter
	WalletValue prometheus.Gauge
	LastPrice   prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Ticks run, by result (ok|error|paused)",
		}, []string{"result"}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Signals produced by the strategy",
		}, []string{"action"}),
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Execution results by mode and status",
		}, []string{"mode", "status"}),
		TickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_errors_total",
			Help:      "Ticks that failed and were recorded as lastError",
		}),
		WalletValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wallet_value_usd",
			Help:      "Portfolio value at the last sampled price",
		}),
		LastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_price",
			Help:      "Last sampled asset price",
		}),
	}
	m.registry.MustRegister(m.Ticks, m.Signals, m.Executions, m.TickErrors, m.WalletValue, m.LastPrice)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTick records a successful tick.
func (m *Metrics) ObserveTick(signal models.Signal, result models.ExecutionResult, price, walletValue float64) {
	if m == nil {
		return
	}
	m.Ticks.WithLabelValues("ok").Inc()
	m.Signals.WithLabelValues(string(signal.Action)).Inc()
	m.Executions.WithLabelValues(string(result.Mode), string(result.Status)).Inc()
	m.LastPrice.Set(price)
	m.WalletValue.Set(walletValue)
}

// ObserveError records a failed tick.
func (m *Metrics) ObserveError() {
	if m == nil {
		return
	}
	m.Ticks.WithLabelValues("error").Inc()
	m.TickErrors.Inc()
}

// ObservePaused records a tick skipped because the bot is paused.
func (m *Metrics) ObservePaused() {
	if m == nil {
		return
	}
	m.Ticks.WithLabelValues("paused").Inc()
}
