// download.go — сервис скачивания документов.
package service

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"

	"github.com/bigkaa/goartstore/pdfvault/internal/api/middleware"
	"github.com/bigkaa/goartstore/pdfvault/internal/domain/fault"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/filestore"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/registry"
)

// DownloadService — сервис скачивания документов.
type DownloadService struct {
	store  *filestore.FileStore
	reg    *registry.Registry
	logger *slog.Logger
}

// NewDownloadService создаёт сервис скачивания.
func NewDownloadService(
	store *filestore.FileStore,
	reg *registry.Registry,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		store:  store,
		reg:    reg,
		logger: logger.With(slog.String("component", "download_service")),
	}
}

// Serve отдаёт файл документа через http.ServeContent под разделяемой арендой:
// финализация и очистка не трогают файл, пока он читается.
// Поддерживает Range requests (206 Partial Content) и ETag (If-None-Match).
// Ошибка возвращается только до начала записи ответа.
func (s *DownloadService) Serve(w http.ResponseWriter, r *http.Request, fileID string) error {
	lease, err := s.reg.Acquire(fileID, false)
	if err != nil {
		return err
	}
	defer lease.Release()

	rec, err := s.reg.Get(fileID)
	if err != nil {
		return err
	}

	file, err := s.store.Open(rec.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("Файл документа отсутствует на диске",
				slog.String("file_id", fileID),
				slog.String("path", rec.Path),
			)
		}
		return fault.Internal("ошибка открытия файла документа", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fault.Internal("ошибка чтения файла документа", err)
	}

	w.Header().Set("Content-Type", PDFMimeType)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": rec.Name}))
	if rec.DocumentHash != "" {
		w.Header().Set("ETag", fmt.Sprintf("%q", rec.DocumentHash))
	}
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, rec.Name, stat.ModTime(), file)

	middleware.OperationsTotal.WithLabelValues("download", "success").Inc()
	s.logger.Debug("Документ скачан",
		slog.String("file_id", fileID),
		slog.String("filename", rec.Name),
		slog.Int64("size", stat.Size()),
	)
	return nil
}
