// Package server Prometheus 指标导出
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rental-admin/internal/apiserver/httputil"
)

// Metrics 包含所有 API Server 指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// 申请流转指标
	ApplicationTransitions *prometheus.CounterVec

	// 上传指标
	UploadsTotal *prometheus.CounterVec

	reg prometheus.Registerer
}

// NewMetrics 创建指标实例并注册到 reg
//
// reg 为 nil 时使用默认注册表。测试中每个 Server 传入独立的 prometheus.NewRegistry()，
// 避免重复注册 panic。
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ApplicationTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "application_transitions_total",
				Help:      "Rental application state transitions by resulting status",
			},
			[]string{"status"},
		),
		UploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Multipart upload requests by route",
			},
			[]string{"path"},
		),
		reg: reg,
	}
}

// MetricsMiddleware 创建 HTTP 指标中间件
//
// 必须直接包裹 ServeMux：路由匹配后 mux 会回写 r.Pattern，用作低基数的 path 标签。
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		wrapped := wrapWriter(w)
		next.ServeHTTP(wrapped, r)

		path := normalizePath(r.Pattern)
		status := strconv.Itoa(wrapped.status())
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		if httputil.IsMultipart(r) {
			m.UploadsTotal.WithLabelValues(path).Inc()
		}
	})
}

// normalizePath 从路由模式中取出路径部分
//
// "GET /api/v1/apartments/{id}" → "/api/v1/apartments/{id}"；未匹配的请求统一记为 "unmatched"。
func normalizePath(pattern string) string {
	if pattern == "" {
		return "unmatched"
	}
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = pattern[i+1:]
	}
	return pattern
}

// ApplicationTransition 记录申请进入 status 状态
func (m *Metrics) ApplicationTransition(status string) {
	m.ApplicationTransitions.WithLabelValues(status).Inc()
}

// RegisterGauge 注册按需求值的 Gauge（如 WebSocket 连接数）
func (m *Metrics) RegisterGauge(namespace, name, help string, fn func() float64) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

// MetricsHandler 返回 Prometheus HTTP Handler
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
