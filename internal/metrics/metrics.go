// Package metrics exposes Prometheus metrics for the chat proxy.
//
// All recording methods are safe to call on a nil *Metrics, which is what
// the rest of the service receives when METRICS_ENABLED=false.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"giga-chatter/internal/llm"
)

const namespace = "giga_chatter"

// Результаты хода диалога.
const (
	ResultSuccess       = "success"
	ResultUpstreamError = "upstream_error"
	ResultAuthError     = "auth_error"
	ResultOtherError    = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	chatTurns        *prometheus.CounterVec
	tokenRefreshes   *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	historyMessages  prometheus.Gauge
}

// New creates the metric set on a fresh registry, together with the
// standard Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by outcome.",
		}, []string{"result"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token exchanges by outcome.",
		}, []string{"result"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of outbound GigaChat requests.",
			// LLM latencies: 100ms - 60s
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation", "status"}),
		historyMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_messages",
			Help:      "Messages currently stored in the conversation history.",
		}),
	}
	m.registry.MustRegister(
		m.chatTurns,
		m.tokenRefreshes,
		m.upstreamDuration,
		m.historyMessages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveUpstream implements llm.Observer.
func (m *Metrics) ObserveUpstream(operation string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := "none"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.upstreamDuration.WithLabelValues(operation, code).Observe(d.Seconds())
}

func (m *Metrics) ObserveTokenRefresh(err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = "failure"
	}
	m.tokenRefreshes.WithLabelValues(result).Inc()
}

// ObserveChatTurn classifies the outcome of a chat turn by error type.
func (m *Metrics) ObserveChatTurn(err error) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(TurnResult(err)).Inc()
}

func (m *Metrics) SetHistorySize(n int) {
	if m == nil {
		return
	}
	m.historyMessages.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

func TurnResult(err error) string {
	var aerr *llm.AuthError
	var uerr *llm.UpstreamError
	switch {
	case err == nil:
		return ResultSuccess
	case errors.As(err, &aerr):
		return ResultAuthError
	case errors.As(err, &uerr):
		return ResultUpstreamError
	default:
		return ResultOtherError
	}
}
