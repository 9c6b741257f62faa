// pipeline.go — конвейер документа после загрузки: метаданные и финализация.
//
// Финализация выполняется под эксклюзивной арендой записи:
//
//	metadata-writing → encrypting → hashing → processed
//
// Этап N+1 начинается только после того, как инструмент этапа N завершился
// и его файловые изменения (переименование) выполнены. При ошибке запись
// остаётся в статусе uploaded, pipelineState=failed, lastError заполнен.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/bigkaa/goartstore/pdfvault/internal/api/middleware"
	"github.com/bigkaa/goartstore/pdfvault/internal/domain/fault"
	"github.com/bigkaa/goartstore/pdfvault/internal/domain/lifecycle"
	"github.com/bigkaa/goartstore/pdfvault/internal/domain/model"
	"github.com/bigkaa/goartstore/pdfvault/internal/hashing"
	"github.com/bigkaa/goartstore/pdfvault/internal/runner"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/filestore"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/registry"
	"github.com/bigkaa/goartstore/pdfvault/internal/tools"
)

// Действия диагностического эндпоинта /api/security.
const (
	ActionEncryptPermissions = "encryptPermissions"
	ActionApplyMetadataLocks = "applyMetadataLocks"
	ActionEncryptMetadata    = "encryptMetadata"
	ActionDecryptMetadata    = "decryptMetadata"
)

// PipelineService — метаданные, финализация, удаление документов.
type PipelineService struct {
	store  *filestore.FileStore
	reg    *registry.Registry
	runner runner.Runner
	bins   tools.Binaries
	hasher *hashing.Service
	logger *slog.Logger
}

// NewPipelineService создаёт сервис конвейера.
func NewPipelineService(
	store *filestore.FileStore,
	reg *registry.Registry,
	r runner.Runner,
	bins tools.Binaries,
	hasher *hashing.Service,
	logger *slog.Logger,
) *PipelineService {
	return &PipelineService{
		store:  store,
		reg:    reg,
		runner: r,
		bins:   bins,
		hasher: hasher,
		logger: logger.With(slog.String("component", "pipeline")),
	}
}

// Get возвращает копию записи.
func (p *PipelineService) Get(id string) (*model.FileRecord, error) {
	return p.reg.Get(id)
}

// List возвращает записи, новые первыми.
func (p *PipelineService) List(limit, offset int, status model.FileStatus) ([]*model.FileRecord, int) {
	return p.reg.List(limit, offset, status)
}

// SaveMetadata целиком заменяет метаданные документа. Файл не меняется.
// Занятая или уже обработанная запись — Conflict.
func (p *PipelineService) SaveMetadata(id string, md model.Metadata) (*model.FileRecord, error) {
	lease, err := p.reg.Acquire(id, true)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	rec, err := p.reg.Update(id, func(rec *model.FileRecord) error {
		if rec.IsProcessed() {
			return fault.Conflict("файл %s уже обработан, метаданные не изменяются", id)
		}
		rec.Metadata = md.Clone()
		return nil
	})
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("metadata", "error").Inc()
		return nil, err
	}

	middleware.OperationsTotal.WithLabelValues("metadata", "success").Inc()
	p.logger.Info("Метаданные сохранены",
		slog.String("file_id", id),
		slog.Any("extra_namespaces", md.ExtraNamespaces()),
	)
	return rec, nil
}

// Finalize записывает метаданные в файл, шифрует его и считает хэш.
func (p *PipelineService) Finalize(ctx context.Context, id string) (*model.FileRecord, error) {
	lease, err := p.reg.Acquire(id, true)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	rec, err := p.reg.Get(id)
	if err != nil {
		return nil, err
	}
	if rec.IsProcessed() {
		return nil, fault.Conflict("файл %s уже обработан", id)
	}

	// Запрос может оборваться, но начатый прогон доводится до конца:
	// каждый инструмент всё равно ограничен собственным таймаутом.
	runCtx := context.WithoutCancel(ctx)
	start := time.Now()
	sm := lifecycle.New()

	hash, stageErr := p.run(runCtx, sm, rec)
	if stageErr != nil {
		sm.Fail()
		p.recordFailure(id, sm, stageErr)
		middleware.OperationsTotal.WithLabelValues("finalize", "error").Inc()
		p.logger.Error("Финализация не удалась",
			slog.String("file_id", id),
			slog.String("failed_at", string(sm.FailedAt())),
			slog.String("error", stageErr.Error()),
		)
		return nil, stageErr
	}

	if err := sm.Advance(lifecycle.StateProcessed); err != nil {
		return nil, fault.Internal("ошибка перехода состояния", err)
	}

	updated, err := p.reg.Update(id, func(r *model.FileRecord) error {
		r.Status = model.StatusProcessed
		r.DocumentHash = hash
		r.HasDocumentHash = true
		r.HasEncryptedPermissions = true
		r.HasMetadataLocks = true
		r.PipelineState = string(lifecycle.StateProcessed)
		r.LastError = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	middleware.OperationsTotal.WithLabelValues("finalize", "success").Inc()
	refreshFileGauges(p.reg)

	p.logger.Info("Документ финализирован",
		slog.String("file_id", id),
		slog.String("document_hash", hash),
		slog.Duration("duration", time.Since(start)),
	)
	return updated, nil
}

// run выполняет этапы финализации по порядку. Возвращает хэш файла.
func (p *PipelineService) run(ctx context.Context, sm *lifecycle.StateMachine, rec *model.FileRecord) (string, error) {
	// Этап 1: запись метаданных
	if err := p.advance(sm, rec.ID, lifecycle.StateMetadataWriting); err != nil {
		return "", err
	}
	target, err := p.store.Abs(rec.Path)
	if err != nil {
		return "", fault.WithStage(err, tools.StageMetadata)
	}
	if cmd, ok := p.bins.WriteMetadata(target, rec.Metadata); ok {
		if err := p.runner.Run(ctx, cmd); err != nil {
			return "", fault.WithStage(err, tools.StageMetadata)
		}
	} else {
		p.logger.Debug("Метаданные для записи отсутствуют, этап пропущен",
			slog.String("file_id", rec.ID),
		)
	}

	// Этап 2: шифрование в <id>.encrypted.pdf и замена исходного файла
	if err := p.advance(sm, rec.ID, lifecycle.StateEncrypting); err != nil {
		return "", err
	}
	if err := p.encrypt(ctx, rec); err != nil {
		return "", fault.WithStage(err, tools.StageEncrypt)
	}

	// Этап 3: хэш зашифрованного файла
	if err := p.advance(sm, rec.ID, lifecycle.StateHashing); err != nil {
		return "", err
	}
	hash, err := p.hasher.File(ctx, rec.Path)
	if err != nil {
		return "", fault.WithStage(err, string(lifecycle.StateHashing))
	}
	return hash, nil
}

// encrypt шифрует файл документа одноразовым паролем владельца.
func (p *PipelineService) encrypt(ctx context.Context, rec *model.FileRecord) error {
	out := encryptedPath(rec.ID)
	absIn, err := p.store.Abs(rec.Path)
	if err != nil {
		return err
	}
	absOut, err := p.store.Abs(out)
	if err != nil {
		return err
	}

	owner, err := tools.NewOwnerCredential()
	if err != nil {
		return fault.Internal("ошибка генерации пароля владельца", err)
	}

	if err := p.runner.Run(ctx, p.bins.Encrypt(owner, absIn, absOut)); err != nil {
		_ = p.store.Delete(out)
		return err
	}
	if !p.store.Exists(out) {
		return fault.ToolFailure(tools.StageEncrypt, 0, "шифратор не создал выходной файл", nil)
	}
	if err := p.store.Replace(out, rec.Path); err != nil {
		_ = p.store.Delete(out)
		return err
	}
	return nil
}

// advance переводит автомат и отражает состояние в записи.
func (p *PipelineService) advance(sm *lifecycle.StateMachine, id string, target lifecycle.State) error {
	if err := sm.Advance(target); err != nil {
		return fault.Internal("ошибка перехода состояния", err)
	}
	_, err := p.reg.Update(id, func(r *model.FileRecord) error {
		r.PipelineState = string(target)
		return nil
	})
	return err
}

// recordFailure фиксирует неудачный прогон. Статус и флаги не меняются.
func (p *PipelineService) recordFailure(id string, sm *lifecycle.StateMachine, cause error) {
	_, err := p.reg.Update(id, func(r *model.FileRecord) error {
		r.PipelineState = string(sm.Current())
		r.LastError = cause.Error()
		r.Status = model.StatusUploaded
		return nil
	})
	if err != nil {
		p.logger.Error("Ошибка фиксации неудачной финализации",
			slog.String("file_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// Delete удаляет запись и её файл. Арендованная запись — Conflict.
func (p *PipelineService) Delete(id string) error {
	rec, err := p.reg.Delete(id)
	if err != nil {
		return err
	}
	for _, rel := range []string{rec.Path, sanitizedPath(id), encryptedPath(id)} {
		if err := p.store.Delete(rel); err != nil {
			p.logger.Warn("Ошибка удаления файла документа",
				slog.String("file_id", id),
				slog.String("path", rel),
				slog.String("error", err.Error()),
			)
		}
	}
	middleware.OperationsTotal.WithLabelValues("delete", "success").Inc()
	refreshFileGauges(p.reg)
	p.logger.Info("Документ удалён", slog.String("file_id", id))
	return nil
}

// ApplySecurityAction меняет только флаги записи, без операций с файлом.
func (p *PipelineService) ApplySecurityAction(id, action string) (*model.FileRecord, error) {
	var apply func(r *model.FileRecord)
	switch action {
	case ActionEncryptPermissions:
		apply = func(r *model.FileRecord) { r.HasEncryptedPermissions = true }
	case ActionApplyMetadataLocks:
		apply = func(r *model.FileRecord) { r.HasMetadataLocks = true }
	case ActionEncryptMetadata:
		apply = func(r *model.FileRecord) { r.HasEncryptedMetadata = true }
	case ActionDecryptMetadata:
		apply = func(r *model.FileRecord) { r.HasEncryptedMetadata = false }
	default:
		return nil, fault.Validation("неизвестное действие %q", action)
	}

	lease, err := p.reg.Acquire(id, true)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	rec, err := p.reg.Update(id, func(r *model.FileRecord) error {
		apply(r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("Флаг безопасности изменён",
		slog.String("file_id", id),
		slog.String("action", action),
	)
	return rec, nil
}

// refreshFileGauges пересчитывает pv_files_total по реестру.
func refreshFileGauges(reg *registry.Registry) {
	for _, st := range []model.FileStatus{model.StatusUploaded, model.StatusProcessed} {
		middleware.FilesTotal.WithLabelValues(string(st)).Set(float64(reg.CountByStatus(st)))
	}
}
