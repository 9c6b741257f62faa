// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// pdfvault мониторит:
//   - JWKS endpoint провайдера токенов (HTTP GET, critical), если включена аутентификация
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks" // Регистрация фабрик checker-ов (HTTP и др.)
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthGroup — группа pdfvault в графе зависимостей.
const DephealthGroup = "pdfvault"

// DephealthJWKSName — имя зависимости JWKS в метриках.
const DephealthJWKSName = "jwks"

// DephealthOptions — параметры мониторинга зависимостей.
type DephealthOptions struct {
	// ServiceID — имя вершины графа текущего приложения (PV_SERVICE_ID)
	ServiceID string
	// JWKSURL — URL зависимости для проверки (PV_JWKS_URL)
	JWKSURL string
	// CheckInterval — интервал проверки (PV_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
	// TLSSkipVerify — не проверять сертификат (development с self-signed)
	TLSSkipVerify bool
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(opts DephealthOptions, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(opts, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	opts DephealthOptions,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(opts, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	opts DephealthOptions,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	dhOpts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.HTTP(DephealthJWKSName,
			dephealth.FromURL(opts.JWKSURL),
			dephealth.CheckInterval(opts.CheckInterval),
			dephealth.Critical(true),
			dephealth.WithHTTPTLSSkipVerify(opts.TLSSkipVerify),
		),
	}
	dhOpts = append(dhOpts, extraOpts...)

	dh, err := dephealth.New(opts.ServiceID, DephealthGroup, dhOpts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
