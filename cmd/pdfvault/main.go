// Точка входа pdfvault — сервиса приёма, обработки и выдачи PDF-документов.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bigkaa/goartstore/pdfvault/internal/api/errors"
	"github.com/bigkaa/goartstore/pdfvault/internal/api/generated"
	"github.com/bigkaa/goartstore/pdfvault/internal/api/handlers"
	"github.com/bigkaa/goartstore/pdfvault/internal/api/middleware"
	"github.com/bigkaa/goartstore/pdfvault/internal/config"
	"github.com/bigkaa/goartstore/pdfvault/internal/hashing"
	"github.com/bigkaa/goartstore/pdfvault/internal/ratelimit"
	"github.com/bigkaa/goartstore/pdfvault/internal/runner"
	"github.com/bigkaa/goartstore/pdfvault/internal/server"
	"github.com/bigkaa/goartstore/pdfvault/internal/service"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/filestore"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/pathguard"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/registry"
	"github.com/bigkaa/goartstore/pdfvault/internal/tools"
)

const (
	jwksClientTimeout   = 10 * time.Second
	jwksRefreshInterval = 15 * time.Minute
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("pdfvault запускается",
		slog.String("version", config.Version),
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
		slog.String("sandbox_dir", cfg.SandboxDir),
		slog.Bool("auth", cfg.AuthEnabled()),
	)

	// --- Инициализация компонентов ---

	// 1. Песочница и файловое хранилище
	guard, err := pathguard.New(cfg.SandboxDir)
	if err != nil {
		logger.Error("Ошибка инициализации песочницы", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store, err := filestore.New(guard)
	if err != nil {
		logger.Error("Ошибка инициализации FileStore", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if used, err := store.UsedBytes(); err == nil {
		middleware.SandboxBytes.Set(float64(used))
	}

	// 2. Реестр записей
	reg := registry.New(logger)

	// 3. Окно лимита загрузок: Redis при PV_REDIS_URL, иначе память процесса
	var (
		window      ratelimit.Window
		redisPinger handlers.Pinger
		pruners     []service.Pruner
		closeRedis  = func() {}
	)
	limitCfg := ratelimit.Config{Max: cfg.UploadRateMax, Window: cfg.UploadRateWindow}
	if cfg.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Error("Ошибка инициализации Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		redisWindow := ratelimit.NewRedisWindow(client, limitCfg, "pv:upload:")
		window = redisWindow
		redisPinger = redisWindow
		closeRedis = func() { _ = client.Close() }
		logger.Info("Лимит загрузок хранится в Redis")
	} else {
		memWindow := ratelimit.NewMemoryWindow(limitCfg)
		window = memWindow
		pruners = append(pruners, memWindow)
	}

	// 4. Внешние инструменты и хэширование
	execRunner := runner.NewExecRunner(cfg.ToolTimeout, logger)
	bins := tools.Binaries{
		Sanitizer: cfg.SanitizerBin,
		Metadata:  cfg.MetadataBin,
		Encryptor: cfg.EncryptorBin,
	}
	hasher := hashing.NewService(store)

	// 5. Сервисы
	gate := service.NewUploadGate(store, window, cfg.MaxFileSize, int64(cfg.MaxConcurrentUploads), logger)
	uploadSvc := service.NewUploadService(gate, store, reg, execRunner, bins, logger)
	pipelineSvc := service.NewPipelineService(store, reg, execRunner, bins, hasher, logger)
	downloadSvc := service.NewDownloadService(store, reg, logger)
	hashSvc := service.NewHashService(reg, hasher, logger)

	// 6. Фоновые процессы
	ctx := context.Background()

	// 6.1 Очистка устаревших документов и сирот
	cleanupSvc := service.NewCleanupScheduler(store, reg, cfg.MaxFileAge, cfg.CleanupInterval, logger, pruners...)
	cleanupSvc.Start(ctx)

	// 6.2 topologymetrics — мониторинг JWKS (только с аутентификацией)
	var (
		dephealthSvc *service.DephealthService
		depChecker   handlers.DependencyChecker
	)
	if cfg.AuthEnabled() {
		svc, dhErr := service.NewDephealthService(service.DephealthOptions{
			ServiceID:     cfg.ServiceID,
			JWKSURL:       cfg.JWKSUrl,
			CheckInterval: cfg.DephealthCheckInterval,
		}, logger)
		if dhErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dhErr.Error()),
			)
		} else if startErr := svc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			dephealthSvc = svc
			depChecker = svc
		}
	}

	// 7. Handlers
	rs := errors.NewResponder(cfg.IsProduction(), logger)
	apiHandler := handlers.NewAPIHandler(
		handlers.NewFilesHandler(uploadSvc, downloadSvc, pipelineSvc, cfg.MaxFileSize, rs),
		handlers.NewDocumentsHandler(pipelineSvc, hashSvc, rs, cfg.SecurityDiagnostics),
		handlers.NewSystemHandler(cfg, reg, store, logger),
		handlers.NewMaintenanceHandler(cleanupSvc),
		handlers.NewHealthHandler(cfg.SandboxDir, bins, depChecker, redisPinger),
		server.NewMetricsHandler(),
	)

	// 8. Middleware
	opts := server.Options{
		IPLimiter: ratelimit.NewIPLimiter(ratelimit.Config{Max: cfg.RateLimitMax, Window: cfg.RateLimitWindow}),
	}

	if cfg.AuthEnabled() {
		jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			CACertPath:      cfg.JWKSCACert,
			ClientTimeout:   jwksClientTimeout,
			RefreshInterval: jwksRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			logger.Error("Ошибка инициализации JWT аутентификации",
				slog.String("jwks_url", cfg.JWKSUrl),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		defer jwtAuth.Close()
		opts.Auth = jwtAuth
		logger.Info("JWT аутентификация настроена", slog.String("jwks_url", cfg.JWKSUrl))
	} else {
		logger.Warn("PV_JWKS_URL не задан, запуск без аутентификации")
	}

	if cfg.OpenAPIValidation {
		doc, err := generated.GetSwagger()
		if err != nil {
			logger.Error("Ошибка загрузки OpenAPI-документа", slog.String("error", err.Error()))
			os.Exit(1)
		}
		validator, err := middleware.NewOpenAPIValidator(doc, logger)
		if err != nil {
			logger.Error("Ошибка инициализации OpenAPI-валидации", slog.String("error", err.Error()))
			os.Exit(1)
		}
		opts.Validator = validator
	}

	// 9. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, opts)

	runErr := srv.Run()

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	cleanupSvc.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	closeRedis()

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}

	logger.Info("pdfvault остановлен")
}
