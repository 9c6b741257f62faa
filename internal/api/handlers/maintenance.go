// maintenance.go — обработчик POST /api/maintenance/cleanup.
// Делегирует внеочередной проход очистки в CleanupScheduler.
package handlers

import (
	"net/http"

	"github.com/bigkaa/goartstore/pdfvault/internal/api/generated"
	"github.com/bigkaa/goartstore/pdfvault/internal/service"
)

// CleanupRunner — интерфейс для запуска прохода очистки.
// Позволяет тестировать handler без полного CleanupScheduler.
type CleanupRunner interface {
	// RunOnce выполняет один проход. Параллельные вызовы выполняются по очереди.
	RunOnce() *service.CleanupResult
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	cleaner CleanupRunner
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(cleaner CleanupRunner) *MaintenanceHandler {
	return &MaintenanceHandler{cleaner: cleaner}
}

// RunCleanup обрабатывает POST /api/maintenance/cleanup.
// Выполняет проход синхронно и возвращает результат.
func (h *MaintenanceHandler) RunCleanup(w http.ResponseWriter, _ *http.Request) {
	result := h.cleaner.RunOnce()

	evicted := result.Evicted
	if evicted == nil {
		evicted = []string{}
	}

	writeJSON(w, http.StatusOK, generated.CleanupResponse{
		Evicted:    evicted,
		Orphans:    result.Orphans,
		Errors:     result.Errors,
		DurationMs: result.DurationMs,
	})
}
