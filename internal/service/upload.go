// upload.go — сервис загрузки: допуск, санитизация, создание записи.
package service

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/pdfvault/internal/api/middleware"
	"github.com/bigkaa/goartstore/pdfvault/internal/domain/fault"
	"github.com/bigkaa/goartstore/pdfvault/internal/domain/lifecycle"
	"github.com/bigkaa/goartstore/pdfvault/internal/domain/model"
	"github.com/bigkaa/goartstore/pdfvault/internal/runner"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/filestore"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/registry"
	"github.com/bigkaa/goartstore/pdfvault/internal/tools"
)

// Производные имена файлов документа.
const (
	finalSuffix     = ".pdf"
	sanitizedSuffix = ".sanitized.pdf"
	encryptedSuffix = ".encrypted.pdf"
)

// DocumentPath — путь итогового файла документа.
func DocumentPath(id string) string { return id + finalSuffix }

func sanitizedPath(id string) string { return id + sanitizedSuffix }

func encryptedPath(id string) string { return id + encryptedSuffix }

// UploadService — сервис загрузки документов.
type UploadService struct {
	gate   *UploadGate
	store  *filestore.FileStore
	reg    *registry.Registry
	runner runner.Runner
	bins   tools.Binaries
	logger *slog.Logger
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(
	gate *UploadGate,
	store *filestore.FileStore,
	reg *registry.Registry,
	r runner.Runner,
	bins tools.Binaries,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		gate:   gate,
		store:  store,
		reg:    reg,
		runner: r,
		bins:   bins,
		logger: logger.With(slog.String("component", "upload_service")),
	}
}

// Upload принимает документ и создаёт запись.
//
// Поток:
//  1. Допуск (тип, размер, лимит, семафор) и сохранение в tmp/
//  2. Санитизация tmp → <id>.sanitized.pdf
//  3. Переименование в <id>.pdf, удаление временного файла
//  4. FileRegistry.Create
//
// При ошибке — удаление всех промежуточных файлов, запись не создаётся.
func (s *UploadService) Upload(ctx context.Context, req UploadRequest) (*model.FileRecord, error) {
	adm, err := s.gate.Admit(ctx, req)
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, err
	}
	defer adm.Release()

	fileID := uuid.New().String()
	sanitized := sanitizedPath(fileID)
	final := DocumentPath(fileID)

	rollback := func() {
		for _, p := range []string{adm.TempPath, sanitized, final} {
			if err := s.store.Delete(p); err != nil {
				s.logger.Warn("Ошибка удаления промежуточного файла",
					slog.String("file_id", fileID),
					slog.String("path", p),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if err := s.sanitize(ctx, adm.TempPath, sanitized); err != nil {
		rollback()
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		s.logger.Warn("Санитизация не удалась",
			slog.String("file_id", fileID),
			slog.String("filename", req.Name),
			slog.String("error", err.Error()),
		)
		return nil, fault.WithStage(err, tools.StageSanitize)
	}

	if err := s.store.Replace(sanitized, final); err != nil {
		rollback()
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, fault.WithStage(err, tools.StageSanitize)
	}
	_ = s.store.Delete(adm.TempPath)

	size, err := s.store.Size(final)
	if err != nil {
		rollback()
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, fault.Internal("ошибка чтения очищенного файла", err)
	}

	rec := &model.FileRecord{
		ID:            fileID,
		CreatedAt:     time.Now().UTC(),
		Name:          baseName(req.Name),
		Size:          size,
		MimeType:      adm.MimeType,
		Path:          final,
		UploadedBy:    req.UploadedBy,
		Metadata:      model.NewMetadata(req.Author),
		Status:        model.StatusUploaded,
		PipelineState: string(lifecycle.StateUploaded),
	}
	if err := s.reg.Create(rec); err != nil {
		rollback()
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, err
	}

	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
	refreshFileGauges(s.reg)

	s.logger.Info("Документ загружен",
		slog.String("file_id", fileID),
		slog.String("filename", rec.Name),
		slog.Int64("raw_size", adm.Size),
		slog.Int64("size", size),
		slog.String("mime_type", rec.MimeType),
		slog.String("uploaded_by", req.UploadedBy),
	)

	return rec.Clone(), nil
}

// sanitize запускает санитайзер и проверяет, что результат появился.
func (s *UploadService) sanitize(ctx context.Context, in, out string) error {
	absIn, err := s.store.Abs(in)
	if err != nil {
		return err
	}
	absOut, err := s.store.Abs(out)
	if err != nil {
		return err
	}
	if err := s.runner.Run(ctx, s.bins.Sanitize(absIn, absOut)); err != nil {
		return err
	}
	if !s.store.Exists(out) {
		return fault.ToolFailure(tools.StageSanitize, 0, "санитайзер не создал выходной файл", nil)
	}
	return nil
}

// baseName — имя файла без каталогов клиента (в т.ч. windows-путей).
func baseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" {
		return "document.pdf"
	}
	return base
}
