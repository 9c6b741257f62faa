// Пакет service — бизнес-логика pdfvault.
// gate.go — допуск загрузок: тип, размер, лимит частоты, конкурентность.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/semaphore"

	"github.com/bigkaa/goartstore/pdfvault/internal/api/middleware"
	"github.com/bigkaa/goartstore/pdfvault/internal/domain/fault"
	"github.com/bigkaa/goartstore/pdfvault/internal/ratelimit"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/filestore"
)

// PDFMimeType — единственный принимаемый MIME-тип.
const PDFMimeType = "application/pdf"

// UploadRequest — входящая загрузка.
type UploadRequest struct {
	// Name — оригинальное имя файла
	Name string
	// DeclaredType — MIME-тип, заявленный клиентом
	DeclaredType string
	// DeclaredSize — размер, заявленный клиентом (-1 — неизвестен)
	DeclaredSize int64
	// Body — поток данных файла
	Body io.Reader
	// ClientIP — ключ лимита загрузок
	ClientIP string
	// UploadedBy — sub из JWT (пусто без аутентификации)
	UploadedBy string
	// Author — basic.author начальных метаданных (опционально)
	Author string
}

// Admission — допущенная загрузка: сырые байты уже во временном файле.
// Держит слот семафора до вызова Release.
type Admission struct {
	// TempPath — tmp/<uuid>.upload относительно песочницы
	TempPath string
	// Size — фактический размер
	Size int64
	// MimeType — заявленный тип или определённый по содержимому
	MimeType string

	release func()
	once    sync.Once
}

// Release освобождает слот конкурентных загрузок. Идемпотентен.
func (a *Admission) Release() {
	a.once.Do(a.release)
}

// UploadGate — проверка и приём загрузок.
type UploadGate struct {
	store   *filestore.FileStore
	window  ratelimit.Window
	sem     *semaphore.Weighted
	maxSize int64
	logger  *slog.Logger
}

// NewUploadGate создаёт UploadGate.
func NewUploadGate(
	store *filestore.FileStore,
	window ratelimit.Window,
	maxSize int64,
	maxConcurrent int64,
	logger *slog.Logger,
) *UploadGate {
	return &UploadGate{
		store:   store,
		window:  window,
		sem:     semaphore.NewWeighted(maxConcurrent),
		maxSize: maxSize,
		logger:  logger.With(slog.String("component", "upload_gate")),
	}
}

// MaxFileSize возвращает предел размера загрузки.
func (g *UploadGate) MaxFileSize() int64 {
	return g.maxSize
}

// Admit проверяет загрузку и сохраняет её во временный файл.
//
// Порядок: тип → заявленный размер → слот семафора → потоковая запись
// с проверкой фактического размера и пустого файла → лимит частоты.
// Счётчик лимита увеличивается только для допущенной загрузки.
func (g *UploadGate) Admit(ctx context.Context, req UploadRequest) (*Admission, error) {
	// 1. Тип: MIME application/pdf или расширение .pdf
	if !isPDF(req.Name, req.DeclaredType) {
		return nil, fault.Validation("допускаются только PDF-файлы")
	}

	// 2. Заявленный размер
	if req.DeclaredSize > g.maxSize {
		return nil, fault.Validation("размер файла %s превышает максимум %s",
			humanize.IBytes(uint64(req.DeclaredSize)), humanize.IBytes(uint64(g.maxSize)))
	}

	// 3. Слот конкурентной загрузки; ожидание прерывается вместе с запросом
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fault.Internal("ожидание слота загрузки прервано", err)
	}
	adm := &Admission{release: func() { g.sem.Release(1) }}

	// 4. Потоковая запись: заявленному размеру не доверяем
	saved, err := g.store.SaveUpload(req.Body, g.maxSize)
	if err != nil {
		adm.Release()
		return nil, err
	}
	reject := func(err error) (*Admission, error) {
		_ = g.store.Delete(saved.Path)
		adm.Release()
		return nil, err
	}
	if saved.Size == 0 {
		return reject(fault.Validation("файл пуст"))
	}

	// 5. Лимит загрузок на клиента
	decision, err := g.window.Allow(ctx, req.ClientIP)
	if err != nil {
		return reject(fault.Internal("ошибка проверки лимита загрузок", err))
	}
	if !decision.Allowed {
		middleware.RateLimitedTotal.WithLabelValues("upload").Inc()
		retry := max(1, int(math.Ceil(decision.RetryAfter.Seconds())))
		g.logger.Info("Загрузка отклонена по лимиту",
			slog.String("client_ip", req.ClientIP),
			slog.Int("retry_after_sec", retry),
		)
		return reject(fault.RateLimited(retry, "превышен лимит загрузок, повторите через %d с", retry))
	}

	adm.TempPath = saved.Path
	adm.Size = saved.Size
	adm.MimeType = g.resolveMimeType(req.DeclaredType, saved.Path)
	return adm, nil
}

// resolveMimeType возвращает заявленный тип; пустой или
// application/octet-stream заменяется определённым по содержимому.
func (g *UploadGate) resolveMimeType(declared, path string) string {
	declared = normalizeMime(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	sniffed, err := g.store.DetectType(path)
	if err != nil {
		g.logger.Warn("Не удалось определить тип файла",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return PDFMimeType
	}
	return normalizeMime(sniffed)
}

// isPDF — MIME application/pdf или расширение .pdf (без учёта регистра).
func isPDF(name, declared string) bool {
	if normalizeMime(declared) == PDFMimeType {
		return true
	}
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// normalizeMime отбрасывает параметры типа (; charset=...) и приводит к нижнему регистру.
func normalizeMime(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// String для логов.
func (a *Admission) String() string {
	return fmt.Sprintf("%s (%s, %s)", a.TempPath, humanize.IBytes(uint64(a.Size)), a.MimeType)
}
