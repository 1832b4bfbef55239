package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spaces"

// Metrics 进程内指标集合，使用独立 Registry 便于测试
type Metrics struct {
	Registry *prometheus.Registry

	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	RateLimitDenied   *prometheus.CounterVec
	HeartbeatsForward *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
}

// New 注册所有指标
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Sandbox executions by terminal phase and outcome.",
		}, []string{"phase", "outcome"}),
		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Round trip time of sandbox executions.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		}, []string{"language"}),
		RateLimitDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_denied_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"class"}),
		HeartbeatsForward: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_forwarded_total",
			Help:      "Heartbeat batches forwarded to the time tracker.",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Executions,
		m.ExecutionDuration,
		m.RateLimitDenied,
		m.HeartbeatsForward,
		m.HTTPRequests,
	)
	return m
}

// Handler /metrics 端点
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
