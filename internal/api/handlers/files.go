// files.go — HTTP handlers для операций с документами.
// Upload, List, Get, Delete, Download.
package handlers

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/bigkaa/goartstore/pdfvault/internal/api/errors"
	"github.com/bigkaa/goartstore/pdfvault/internal/api/generated"
	"github.com/bigkaa/goartstore/pdfvault/internal/api/middleware"
	"github.com/bigkaa/goartstore/pdfvault/internal/domain/model"
	"github.com/bigkaa/goartstore/pdfvault/internal/service"
)

// multipartMemory — часть multipart-формы, удерживаемая в памяти.
const multipartMemory = 8 << 20

// multipartOverhead — запас на заголовки и текстовые поля формы.
const multipartOverhead = 1 << 20

// FilesHandler — обработчик endpoints документов.
type FilesHandler struct {
	uploadSvc   *service.UploadService
	downloadSvc *service.DownloadService
	pipeline    *service.PipelineService
	maxFileSize int64
	rs          *errors.Responder
}

// NewFilesHandler создаёт обработчик endpoints документов.
func NewFilesHandler(
	uploadSvc *service.UploadService,
	downloadSvc *service.DownloadService,
	pipeline *service.PipelineService,
	maxFileSize int64,
	rs *errors.Responder,
) *FilesHandler {
	return &FilesHandler{
		uploadSvc:   uploadSvc,
		downloadSvc: downloadSvc,
		pipeline:    pipeline,
		maxFileSize: maxFileSize,
		rs:          rs,
	}
}

// UploadFile обрабатывает POST /api/upload.
// Multipart form: file (обязательно), author (опционально).
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			errors.ValidationError(w, fmt.Sprintf("Размер файла превышает лимит %s", humanize.IBytes(uint64(h.maxFileSize))))
			return
		}
		errors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	rec, err := h.uploadSvc.Upload(r.Context(), service.UploadRequest{
		Name:         header.Filename,
		DeclaredType: header.Header.Get("Content-Type"),
		DeclaredSize: header.Size,
		Body:         file,
		ClientIP:     middleware.ClientIP(r),
		UploadedBy:   middleware.SubjectFromContext(r.Context()),
		Author:       r.FormValue("author"),
	})
	if err != nil {
		h.rs.FromError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// DownloadFile обрабатывает GET /api/download/{fileId}.
// Поддерживает Range requests (206) и ETag (If-None-Match → 304).
func (h *FilesHandler) DownloadFile(w http.ResponseWriter, r *http.Request, fileId generated.FileId) {
	if err := h.downloadSvc.Serve(w, r, fileId.String()); err != nil {
		h.rs.FromError(w, err)
	}
}

// ListFiles обрабатывает GET /api/files.
// Без limit возвращаются все записи; limit и offset — опциональная пагинация.
// Фильтр: status. Общее количество — в X-Total-Count.
func (h *FilesHandler) ListFiles(w http.ResponseWriter, _ *http.Request, params generated.ListFilesParams) {
	limit := 0 // без ограничения
	offset := 0
	var statusFilter model.FileStatus

	if params.Limit != nil {
		limit = *params.Limit
		if limit <= 0 || limit > 1000 {
			errors.ValidationError(w, "Параметр limit должен быть от 1 до 1000")
			return
		}
	}

	if params.Offset != nil {
		offset = *params.Offset
		if offset < 0 {
			errors.ValidationError(w, "Параметр offset не может быть отрицательным")
			return
		}
	}

	if params.Status != nil {
		statusFilter = model.FileStatus(*params.Status)
		switch statusFilter {
		case model.StatusUploaded, model.StatusProcessed:
		default:
			errors.ValidationError(w, fmt.Sprintf("Недопустимый статус: %s", statusFilter))
			return
		}
	}

	items, total := h.pipeline.List(limit, offset, statusFilter)

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	writeJSON(w, http.StatusOK, items)
}

// GetFile обрабатывает GET /api/files/{fileId}.
func (h *FilesHandler) GetFile(w http.ResponseWriter, _ *http.Request, fileId generated.FileId) {
	rec, err := h.pipeline.Get(fileId.String())
	if err != nil {
		h.rs.FromError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// DeleteFile обрабатывает DELETE /api/files/{fileId}.
// Запись удаляется сразу вместе с файлами; арендованная запись — 409.
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, _ *http.Request, fileId generated.FileId) {
	if err := h.pipeline.Delete(fileId.String()); err != nil {
		h.rs.FromError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
