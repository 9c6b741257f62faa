// cleanup.go — фоновая очистка песочницы.
//
// Очистка выполняет две задачи:
//  1. Удаляет записи старше PV_MAX_FILE_AGE вместе с их файлами.
//     Арендованные записи (идёт финализация, скачивание) пропускаются.
//  2. Удаляет файлы-сироты: файлы песочницы (включая tmp/), которыми не
//     владеет ни одна запись и которые старше PV_MAX_FILE_AGE.
//
// Запускается как горутина с периодическим тикером (PV_CLEANUP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/pdfvault/internal/api/middleware"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/filestore"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/registry"
)

// Prometheus метрики очистки
var (
	cleanupRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pv_cleanup_runs_total",
		Help: "Общее количество запусков очистки",
	})

	cleanupEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pv_cleanup_evicted_total",
		Help: "Общее количество записей, удалённых по возрасту",
	})

	cleanupOrphansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pv_cleanup_orphans_total",
		Help: "Общее количество удалённых файлов-сирот",
	})

	cleanupDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pv_cleanup_duration_seconds",
		Help:    "Длительность выполнения очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// Pruner — хранилище с устаревающими служебными данными (окно лимита загрузок).
type Pruner interface {
	Prune() int
}

// CleanupResult — результат одного запуска очистки.
type CleanupResult struct {
	// Evicted — идентификаторы удалённых записей
	Evicted []string `json:"evicted"`
	// Orphans — количество удалённых файлов-сирот
	Orphans int `json:"orphans"`
	// Errors — количество ошибок удаления файлов
	Errors int `json:"errors"`
	// Duration — длительность выполнения
	Duration time.Duration `json:"-"`
	// DurationMs — длительность в миллисекундах для API
	DurationMs int64 `json:"durationMs"`
}

// CleanupScheduler — сервис фоновой очистки.
type CleanupScheduler struct {
	store    *filestore.FileStore
	reg      *registry.Registry
	maxAge   time.Duration
	interval time.Duration
	pruners  []Pruner
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCleanupScheduler создаёт сервис очистки.
func NewCleanupScheduler(
	store *filestore.FileStore,
	reg *registry.Registry,
	maxAge time.Duration,
	interval time.Duration,
	logger *slog.Logger,
	pruners ...Pruner,
) *CleanupScheduler {
	return &CleanupScheduler{
		store:    store,
		reg:      reg,
		maxAge:   maxAge,
		interval: interval,
		pruners:  pruners,
		logger:   logger.With(slog.String("component", "cleanup")),
		now:      time.Now,
	}
}

// Start запускает фоновую горутину очистки.
// Вызывается один раз при старте приложения.
func (c *CleanupScheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(runCtx)

	c.logger.Info("Очистка запущена",
		slog.String("interval", c.interval.String()),
		slog.String("max_age", c.maxAge.String()),
	)
}

// Stop останавливает фоновую очистку и ждёт завершения текущего прохода.
func (c *CleanupScheduler) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.logger.Info("Очистка остановлена")
}

// run — основной цикл фоновой горутины.
func (c *CleanupScheduler) run(ctx context.Context) {
	defer close(c.done)

	// Первый запуск — сразу после старта
	c.RunOnce()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce()
		}
	}
}

// RunOnce выполняет один проход очистки.
// Потокобезопасен: параллельные вызовы выполняются последовательно.
func (c *CleanupScheduler) RunOnce() *CleanupResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	now := c.now().UTC()
	result := &CleanupResult{Evicted: []string{}}

	// Фаза 1: записи старше maxAge
	for _, rec := range c.reg.Expired(now, c.maxAge) {
		for _, rel := range []string{rec.Path, sanitizedPath(rec.ID), encryptedPath(rec.ID)} {
			if err := c.store.Delete(rel); err != nil {
				c.logger.Error("Очистка: ошибка удаления файла",
					slog.String("file_id", rec.ID),
					slog.String("path", rel),
					slog.String("error", err.Error()),
				)
				result.Errors++
			}
		}
		result.Evicted = append(result.Evicted, rec.ID)
		c.logger.Debug("Очистка: запись удалена",
			slog.String("file_id", rec.ID),
			slog.String("filename", rec.Name),
			slog.Duration("age", rec.Age(now)),
		)
	}

	// Фаза 2: файлы-сироты
	orphans, errs := c.sweepOrphans(now)
	result.Orphans = orphans
	result.Errors += errs

	for _, p := range c.pruners {
		p.Prune()
	}

	result.Duration = time.Since(start)
	result.DurationMs = result.Duration.Milliseconds()

	cleanupRunsTotal.Inc()
	cleanupEvictedTotal.Add(float64(len(result.Evicted)))
	cleanupOrphansTotal.Add(float64(orphans))
	cleanupDurationSeconds.Observe(result.Duration.Seconds())
	refreshFileGauges(c.reg)
	if used, err := c.store.UsedBytes(); err == nil {
		middleware.SandboxBytes.Set(float64(used))
	}

	c.logger.Info("Очистка завершена",
		slog.Int("evicted", len(result.Evicted)),
		slog.Int("orphans", result.Orphans),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)
	return result
}

// sweepOrphans удаляет старые файлы без владельца.
// Молодые файлы не трогаются: это может быть незавершённая загрузка.
func (c *CleanupScheduler) sweepOrphans(now time.Time) (deleted, errors int) {
	files, err := c.store.ListFiles()
	if err != nil {
		c.logger.Error("Очистка: ошибка обхода песочницы",
			slog.String("error", err.Error()),
		)
		return 0, 1
	}

	owned := c.reg.OwnedPaths()
	for _, f := range files {
		if _, ok := owned[f.Path]; ok {
			continue
		}
		if now.Sub(f.ModTime) <= c.maxAge {
			continue
		}
		if err := c.store.Delete(f.Path); err != nil {
			c.logger.Error("Очистка: ошибка удаления файла-сироты",
				slog.String("path", f.Path),
				slog.String("error", err.Error()),
			)
			errors++
			continue
		}
		c.logger.Debug("Очистка: удалён файл-сирота", slog.String("path", f.Path))
		deleted++
	}
	return deleted, errors
}
