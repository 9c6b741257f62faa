// system.go — обработчик GET /api/info (лимиты, счётчики, место на диске).
// Публичный endpoint (без аутентификации) для мониторинга.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/bigkaa/goartstore/pdfvault/internal/api/generated"
	"github.com/bigkaa/goartstore/pdfvault/internal/config"
	"github.com/bigkaa/goartstore/pdfvault/internal/domain/model"
	"github.com/bigkaa/goartstore/pdfvault/internal/hashing"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/filestore"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/registry"
)

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	cfg    *config.Config
	reg    *registry.Registry
	store  *filestore.FileStore
	logger *slog.Logger
}

// NewSystemHandler создаёт обработчик системных endpoints.
func NewSystemHandler(
	cfg *config.Config,
	reg *registry.Registry,
	store *filestore.FileStore,
	logger *slog.Logger,
) *SystemHandler {
	return &SystemHandler{
		cfg:    cfg,
		reg:    reg,
		store:  store,
		logger: logger.With(slog.String("component", "system_handler")),
	}
}

// GetInfo обрабатывает GET /api/info.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	var resp generated.InfoResponse
	resp.Service = serviceName
	resp.Version = config.Version

	maxSize := h.cfg.MaxFileSize
	maxSizeHuman := humanize.IBytes(uint64(maxSize))
	uploads := h.cfg.UploadRateMax
	window := h.cfg.UploadRateWindow.String()
	maxAge := h.cfg.MaxFileAge.String()
	algorithms := hashing.Algorithms()
	resp.Limits.MaxFileSize = &maxSize
	resp.Limits.MaxFileSizeHuman = &maxSizeHuman
	resp.Limits.UploadsPerWindow = &uploads
	resp.Limits.UploadWindow = &window
	resp.Limits.MaxFileAge = &maxAge
	resp.Limits.HashAlgorithms = &algorithms

	total := h.reg.Count()
	uploaded := h.reg.CountByStatus(model.StatusUploaded)
	processed := h.reg.CountByStatus(model.StatusProcessed)
	resp.Files.Total = &total
	resp.Files.Uploaded = &uploaded
	resp.Files.Processed = &processed

	if used, err := h.store.UsedBytes(); err == nil {
		usedHuman := humanize.IBytes(uint64(used))
		resp.DiskUsage.SandboxBytes = &used
		resp.DiskUsage.SandboxHuman = &usedHuman
	} else {
		h.logger.Warn("Не удалось подсчитать занятое место", slog.String("error", err.Error()))
	}

	if _, _, available, err := diskUsage(h.store.Guard().Root()); err == nil {
		resp.DiskUsage.FreeBytes = &available
	} else {
		h.logger.Warn("Не удалось получить свободное место", slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, resp)
}

// diskUsage возвращает информацию о дисковом пространстве в директории.
// Возвращает total, used, available в байтах.
func diskUsage(path string) (total, used, available int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, 0, fmt.Errorf("ошибка statfs %s: %w", path, err)
	}

	total = int64(stat.Blocks) * int64(stat.Bsize)
	available = int64(stat.Bavail) * int64(stat.Bsize)
	used = total - available

	return total, used, available, nil
}
