// handler.go — APIHandler реализует generated.ServerInterface,
// делегируя вызовы в отдельные handler'ы по доменам.
package handlers

import (
	"net/http"

	"github.com/bigkaa/goartstore/pdfvault/internal/api/generated"
	"github.com/bigkaa/goartstore/pdfvault/internal/server"
)

// APIHandler — единая реализация ServerInterface, собирающая
// все доменные handlers в один объект.
type APIHandler struct {
	files       *FilesHandler
	documents   *DocumentsHandler
	system      *SystemHandler
	maintenance *MaintenanceHandler
	health      *HealthHandler
	metrics     *server.MetricsHandler
}

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(
	files *FilesHandler,
	documents *DocumentsHandler,
	system *SystemHandler,
	maintenance *MaintenanceHandler,
	health *HealthHandler,
	metrics *server.MetricsHandler,
) *APIHandler {
	return &APIHandler{
		files:       files,
		documents:   documents,
		system:      system,
		maintenance: maintenance,
		health:      health,
		metrics:     metrics,
	}
}

// --- Документы ---

func (h *APIHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	h.files.UploadFile(w, r)
}

func (h *APIHandler) ListFiles(w http.ResponseWriter, r *http.Request, params generated.ListFilesParams) {
	h.files.ListFiles(w, r, params)
}

func (h *APIHandler) GetFile(w http.ResponseWriter, r *http.Request, fileId generated.FileId) {
	h.files.GetFile(w, r, fileId)
}

func (h *APIHandler) DeleteFile(w http.ResponseWriter, r *http.Request, fileId generated.FileId) {
	h.files.DeleteFile(w, r, fileId)
}

func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request, fileId generated.FileId) {
	h.files.DownloadFile(w, r, fileId)
}

// --- Конвейер ---

func (h *APIHandler) SaveMetadata(w http.ResponseWriter, r *http.Request, fileId generated.FileId) {
	h.documents.SaveMetadata(w, r, fileId)
}

func (h *APIHandler) FinalizeFile(w http.ResponseWriter, r *http.Request, fileId generated.FileId) {
	h.documents.FinalizeFile(w, r, fileId)
}

func (h *APIHandler) HashFile(w http.ResponseWriter, r *http.Request, fileId generated.FileId) {
	h.documents.HashFile(w, r, fileId)
}

func (h *APIHandler) ApplySecurityAction(w http.ResponseWriter, r *http.Request, fileId generated.FileId) {
	h.documents.ApplySecurityAction(w, r, fileId)
}

// --- System ---

func (h *APIHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	h.system.GetInfo(w, r)
}

// --- Maintenance ---

func (h *APIHandler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	h.maintenance.RunCleanup(w, r)
}

// --- Health ---

func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// --- Metrics ---

func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.GetMetrics(w, r)
}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ generated.ServerInterface = (*APIHandler)(nil)
