// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/bigkaa/goartstore/pdfvault/internal/config"
	"github.com/bigkaa/goartstore/pdfvault/internal/tools"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// serviceName — имя сервиса в ответах health и info.
const serviceName = "pdfvault"

// DependencyChecker — состояние внешних зависимостей (JWKS).
type DependencyChecker interface {
	Health() map[string]bool
}

// Pinger — проверка доступности Redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// sandboxDir — корень песочницы (проверка записи)
	sandboxDir string
	bins       tools.Binaries
	deps       DependencyChecker
	redis      Pinger
	lookPath   func(string) (string, error)
}

// NewHealthHandler создаёт обработчик health endpoints.
// deps и redis — опциональны (nil, если аутентификация или Redis отключены).
func NewHealthHandler(sandboxDir string, bins tools.Binaries, deps DependencyChecker, redis Pinger) *HealthHandler {
	return &HealthHandler{
		version:    config.Version,
		sandboxDir: sandboxDir,
		bins:       bins,
		deps:       deps,
		redis:      redis,
		lookPath:   exec.LookPath,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthReady обрабатывает GET /health/ready.
// Песочница и инструменты обязательны (иначе 503), JWKS и Redis дают degraded.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	fsCheck := h.checkSandbox()
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	toolsCheck := h.checkTools()
	if toolsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	checks := map[string]any{
		"sandbox": fsCheck,
		"tools":   toolsCheck,
	}

	if h.deps != nil {
		depCheck := map[string]any{"status": "ok"}
		for name, healthy := range h.deps.Health() {
			depCheck[name] = healthy
			if !healthy {
				depCheck["status"] = statusFail
			}
		}
		checks["dependencies"] = depCheck
		if depCheck["status"] != "ok" && overallStatus != statusFail {
			overallStatus = "degraded"
		}
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		redisCheck := map[string]any{"status": "ok"}
		if err := h.redis.Ping(ctx); err != nil {
			redisCheck = map[string]any{
				"status":  statusFail,
				"message": "Redis недоступен: " + err.Error(),
			}
			if overallStatus != statusFail {
				overallStatus = "degraded"
			}
		}
		checks["redis"] = redisCheck
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
		"checks":    checks,
	}

	writeJSON(w, httpStatus, resp)
}

// checkSandbox проверяет доступность песочницы на запись.
func (h *HealthHandler) checkSandbox() map[string]any {
	testFile := filepath.Join(h.sandboxDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Песочница недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": "ok",
	}
}

// checkTools проверяет, что исполняемые файлы инструментов находятся.
func (h *HealthHandler) checkTools() map[string]any {
	result := map[string]any{"status": "ok"}
	for stage, bin := range map[string]string{
		tools.StageSanitize: h.bins.Sanitizer,
		tools.StageMetadata: h.bins.Metadata,
		tools.StageEncrypt:  h.bins.Encryptor,
	} {
		path, err := h.lookPath(bin)
		if err != nil {
			result["status"] = statusFail
			result[stage] = "не найден: " + bin
			continue
		}
		result[stage] = path
	}
	return result
}

// writeJSON записывает JSON-ответ.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
