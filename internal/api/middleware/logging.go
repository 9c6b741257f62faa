// logging.go — access-лог HTTP-запросов через slog.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// accessWriter — перехват статус-кода и размера ответа.
type accessWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (aw *accessWriter) WriteHeader(code int) {
	aw.statusCode = code
	aw.ResponseWriter.WriteHeader(code)
}

func (aw *accessWriter) Write(b []byte) (int, error) {
	n, err := aw.ResponseWriter.Write(b)
	aw.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (aw *accessWriter) Unwrap() http.ResponseWriter {
	return aw.ResponseWriter
}

// RequestLogger логирует каждый запрос. Уровень по статусу:
// INFO (1xx-3xx), WARN (4xx), ERROR (5xx). Health probes и /metrics — DEBUG.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			aw := &accessWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(aw, r)

			level := slog.LevelInfo
			switch {
			case aw.statusCode >= 500:
				level = slog.LevelError
			case aw.statusCode >= 400:
				level = slog.LevelWarn
			case isProbe(r.URL.Path):
				level = slog.LevelDebug
			}

			logger.LogAttrs(r.Context(), level, "HTTP запрос",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", routePattern(r)),
				slog.Int("status", aw.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", aw.written),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}

func isProbe(path string) bool {
	switch path {
	case "/health/live", "/health/ready", "/metrics":
		return true
	}
	return false
}
