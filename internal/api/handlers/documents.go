// documents.go — handlers конвейера документа: метаданные, финализация,
// хэш и диагностика флагов безопасности.
package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/goartstore/pdfvault/internal/api/errors"
	"github.com/bigkaa/goartstore/pdfvault/internal/api/generated"
	"github.com/bigkaa/goartstore/pdfvault/internal/domain/model"
	"github.com/bigkaa/goartstore/pdfvault/internal/service"
)

// metadataBody — тело POST /api/metadata/{fileId}.
type metadataBody struct {
	Metadata *model.Metadata `json:"metadata" validate:"required"`
}

// hashBody — тело POST /api/hash/{fileId}. Оба поля опциональны.
type hashBody struct {
	Algorithm string `json:"algorithm" validate:"omitempty,hashalg"`
	Scope     string `json:"scope" validate:"omitempty,oneof=content metadata full"`
}

// securityBody — тело POST /api/security/{fileId}.
type securityBody struct {
	Action string `json:"action" validate:"required,oneof=encryptPermissions applyMetadataLocks encryptMetadata decryptMetadata"`
}

// DocumentsHandler — обработчик endpoints конвейера.
type DocumentsHandler struct {
	pipeline *service.PipelineService
	hashSvc  *service.HashService
	validate *validator.Validate
	rs       *errors.Responder
	// securityDiagnostics — включён ли /api/security (иначе 404)
	securityDiagnostics bool
}

// NewDocumentsHandler создаёт обработчик endpoints конвейера.
func NewDocumentsHandler(
	pipeline *service.PipelineService,
	hashSvc *service.HashService,
	rs *errors.Responder,
	securityDiagnostics bool,
) *DocumentsHandler {
	return &DocumentsHandler{
		pipeline:            pipeline,
		hashSvc:             hashSvc,
		validate:            newValidator(),
		rs:                  rs,
		securityDiagnostics: securityDiagnostics,
	}
}

// SaveMetadata обрабатывает POST /api/metadata/{fileId}.
// Метаданные заменяются целиком, файл не меняется.
func (h *DocumentsHandler) SaveMetadata(w http.ResponseWriter, r *http.Request, fileId generated.FileId) {
	var body metadataBody
	if err := decodeJSON(w, r, &body); err != nil {
		errors.ValidationError(w, err.Error())
		return
	}
	if err := h.validate.Struct(body); err != nil {
		errors.ValidationError(w, validationMessage(err))
		return
	}

	rec, err := h.pipeline.SaveMetadata(fileId.String(), *body.Metadata)
	if err != nil {
		h.rs.FromError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// FinalizeFile обрабатывает POST /api/finalize/{fileId}.
func (h *DocumentsHandler) FinalizeFile(w http.ResponseWriter, r *http.Request, fileId generated.FileId) {
	rec, err := h.pipeline.Finalize(r.Context(), fileId.String())
	if err != nil {
		h.rs.FromError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, generated.FinalizeResponse{
		Id:           fileId,
		Name:         rec.Name,
		DocumentHash: rec.DocumentHash,
		Status:       string(rec.Status),
	})
}

// HashFile обрабатывает POST /api/hash/{fileId}.
// Пустое тело — sha256 по содержимому файла.
func (h *DocumentsHandler) HashFile(w http.ResponseWriter, r *http.Request, fileId generated.FileId) {
	var body hashBody
	if err := decodeJSON(w, r, &body); err != nil && !stderrors.Is(err, errEmptyBody) {
		errors.ValidationError(w, err.Error())
		return
	}
	if err := h.validate.Struct(body); err != nil {
		errors.ValidationError(w, validationMessage(err))
		return
	}

	res, err := h.hashSvc.Hash(r.Context(), fileId.String(), body.Algorithm, body.Scope)
	if err != nil {
		h.rs.FromError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, generated.HashResponse{
		Hash:      res.Hash,
		Name:      res.Name,
		Algorithm: res.Algorithm,
		Scope:     string(res.Scope),
	})
}

// ApplySecurityAction обрабатывает POST /api/security/{fileId}.
// Меняет только флаги записи. При выключенной диагностике — 404.
func (h *DocumentsHandler) ApplySecurityAction(w http.ResponseWriter, r *http.Request, fileId generated.FileId) {
	if !h.securityDiagnostics {
		errors.NotFound(w, "Диагностика безопасности отключена")
		return
	}

	var body securityBody
	if err := decodeJSON(w, r, &body); err != nil {
		errors.ValidationError(w, err.Error())
		return
	}
	if err := h.validate.Struct(body); err != nil {
		errors.ValidationError(w, validationMessage(err))
		return
	}

	rec, err := h.pipeline.ApplySecurityAction(fileId.String(), body.Action)
	if err != nil {
		h.rs.FromError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
