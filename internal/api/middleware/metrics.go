// metrics.go — Prometheus HTTP метрики pdfvault.
// Регистрирует метрики: pv_http_requests_total, pv_http_request_duration_seconds.
// Бизнес-метрики (pv_files_total, pv_operations_total и др.) объявлены здесь
// и обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pv_http_requests_total",
			Help: "Общее количество HTTP-запросов к pdfvault",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pv_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к pdfvault в секундах",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// FilesTotal — текущее количество записей в реестре (gauge).
	FilesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pv_files_total",
			Help: "Текущее количество документов в реестре",
		},
		[]string{"status"},
	)

	// SandboxBytes — объём файлов в песочнице (gauge).
	SandboxBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pv_sandbox_bytes",
			Help: "Объём файлов в песочнице в байтах",
		},
	)

	// OperationsTotal — общее количество операций с документами.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pv_operations_total",
			Help: "Общее количество операций с документами",
		},
		[]string{"operation", "result"},
	)

	// RateLimitedTotal — отказы по лимитам частоты.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pv_rate_limited_total",
			Help: "Количество запросов, отклонённых по лимиту частоты",
		},
		[]string{"limiter"},
	)

	// AuthRejectedTotal — отказы аутентификации и авторизации.
	AuthRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pv_auth_rejected_total",
			Help: "Количество запросов, отклонённых JWT-аутентификацией",
		},
		[]string{"reason"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого маршрута.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)
			path := routePattern(r)

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

// routePattern возвращает шаблон маршрута chi (/api/files/{fileId})
// вместо фактического пути, чтобы идентификаторы не попадали в метки.
// Для запросов без маршрута — "unmatched".
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
