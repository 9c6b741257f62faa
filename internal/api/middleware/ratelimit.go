// ratelimit.go — общий лимит частоты API-запросов на IP.
package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/goartstore/pdfvault/internal/api/errors"
	"github.com/bigkaa/goartstore/pdfvault/internal/ratelimit"
)

// ClientIP возвращает IP клиента из RemoteAddr (без порта).
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IPRateLimit отклоняет запросы сверх лимита с 429 и Retry-After.
// Health probes и /metrics не ограничиваются.
func IPRateLimit(limiter *ratelimit.IPLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "ip_rate_limit"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isProbe(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			allowed, retryAfter := limiter.Allow(ip)
			if !allowed {
				RateLimitedTotal.WithLabelValues("ip").Inc()
				logger.Warn("Превышен лимит запросов",
					slog.String("remote_ip", ip),
					slog.Duration("retry_after", retryAfter),
				)
				apierrors.RateLimited(w, retrySeconds(retryAfter), "Слишком много запросов, повторите позже")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retrySeconds округляет задержку вверх до целых секунд (минимум 1).
func retrySeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}
