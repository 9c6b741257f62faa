// Пакет config — загрузка и валидация конфигурации pdfvault
// из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Режимы развёртывания.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config содержит все параметры конфигурации pdfvault.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Режим развёртывания: development или production
	Env string
	// Директория-песочница для всех файлов
	SandboxDir string
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64

	// Общий лимит запросов к API на IP
	RateLimitWindow time.Duration
	RateLimitMax    int
	// Лимит загрузок на IP в скользящем окне
	UploadRateWindow time.Duration
	UploadRateMax    int
	// URL Redis для общего окна загрузок (пусто — in-memory)
	RedisURL string

	// Максимальный возраст записи и файла до удаления очисткой
	MaxFileAge time.Duration
	// Интервал запуска очистки
	CleanupInterval time.Duration
	// Ограничение одновременных загрузок
	MaxConcurrentUploads int

	// Таймаут одного запуска внешнего инструмента
	ToolTimeout  time.Duration
	SanitizerBin string
	MetadataBin  string
	EncryptorBin string

	// URL JWKS endpoint (пусто — аутентификация отключена)
	JWKSUrl string
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	JWKSCACert string
	// Допустимое расхождение часов при проверке JWT
	JWTLeeway time.Duration

	// Путь к TLS сертификату и ключу (пусто — HTTP)
	TLSCert string
	TLSKey  string

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Идентификатор сервиса в метриках topologymetrics
	ServiceID string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// Регистрировать диагностический endpoint /api/security
	SecurityDiagnostics bool
	// Проверять запросы по OpenAPI-описанию
	OpenAPIValidation bool
}

// IsProduction сообщает, работает ли сервис в production-режиме.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// AuthEnabled сообщает, включена ли JWT-аутентификация.
func (c *Config) AuthEnabled() bool {
	return c.JWKSUrl != ""
}

// TLSEnabled сообщает, задан ли TLS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
//
// Если задан PV_ENV_FILE (или существует .env), файл загружается первым;
// уже заданные переменные окружения он не переопределяет.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error

	// PV_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("PV_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("PV_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PV_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// PV_ENV — режим развёртывания (по умолчанию development)
	cfg.Env = strings.ToLower(getEnvDefault("PV_ENV", EnvDevelopment))
	if cfg.Env != EnvDevelopment && cfg.Env != EnvProduction {
		return nil, fmt.Errorf("PV_ENV: недопустимое значение %q, допустимые: development, production", cfg.Env)
	}

	// PV_SANDBOX_DIR — песочница (по умолчанию ./data/sandbox)
	cfg.SandboxDir = getEnvDefault("PV_SANDBOX_DIR", "./data/sandbox")

	// PV_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 25 MiB).
	// Принимает байты или человекочитаемый размер: 25MiB, 10MB.
	cfg.MaxFileSize, err = getEnvBytes("PV_MAX_FILE_SIZE", 25*humanize.MiByte)
	if err != nil {
		return nil, fmt.Errorf("PV_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("PV_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// PV_RATE_LIMIT_WINDOW / PV_RATE_LIMIT_MAX — общий лимит (100 за 15m)
	if cfg.RateLimitWindow, err = getEnvPositiveDuration("PV_RATE_LIMIT_WINDOW", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = getEnvPositiveInt("PV_RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}

	// PV_UPLOAD_RATE_WINDOW / PV_UPLOAD_RATE_MAX — лимит загрузок (10 за 1h)
	if cfg.UploadRateWindow, err = getEnvPositiveDuration("PV_UPLOAD_RATE_WINDOW", time.Hour); err != nil {
		return nil, err
	}
	if cfg.UploadRateMax, err = getEnvPositiveInt("PV_UPLOAD_RATE_MAX", 10); err != nil {
		return nil, err
	}

	// PV_REDIS_URL — опционально
	cfg.RedisURL = getEnvDefault("PV_REDIS_URL", "")

	// PV_MAX_FILE_AGE — максимальный возраст записи (по умолчанию 1h)
	if cfg.MaxFileAge, err = getEnvPositiveDuration("PV_MAX_FILE_AGE", time.Hour); err != nil {
		return nil, err
	}

	// PV_CLEANUP_INTERVAL — интервал очистки (по умолчанию 10m)
	if cfg.CleanupInterval, err = getEnvPositiveDuration("PV_CLEANUP_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}

	// PV_MAX_CONCURRENT_UPLOADS — одновременные загрузки (по умолчанию 5)
	if cfg.MaxConcurrentUploads, err = getEnvPositiveInt("PV_MAX_CONCURRENT_UPLOADS", 5); err != nil {
		return nil, err
	}

	// PV_TOOL_TIMEOUT — таймаут инструмента (по умолчанию 2m)
	if cfg.ToolTimeout, err = getEnvPositiveDuration("PV_TOOL_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}

	cfg.SanitizerBin = getEnvDefault("PV_SANITIZER_BIN", "gs")
	cfg.MetadataBin = getEnvDefault("PV_METADATA_BIN", "exiftool")
	cfg.EncryptorBin = getEnvDefault("PV_ENCRYPTOR_BIN", "qpdf")

	// PV_JWKS_URL — опционально; без него аутентификация отключена
	cfg.JWKSUrl = getEnvDefault("PV_JWKS_URL", "")
	cfg.JWKSCACert = getEnvDefault("PV_JWKS_CA_CERT", "")

	// PV_JWT_LEEWAY — допуск расхождения часов (по умолчанию 5s)
	cfg.JWTLeeway, err = getEnvDuration("PV_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PV_JWT_LEEWAY: %w", err)
	}

	// PV_TLS_CERT / PV_TLS_KEY — задаются парой
	cfg.TLSCert = getEnvDefault("PV_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("PV_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("PV_TLS_CERT и PV_TLS_KEY должны задаваться вместе")
	}

	if cfg.HTTPReadTimeout, err = getEnvPositiveDuration("PV_HTTP_READ_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	// Запись включает финализацию с тремя инструментами
	if cfg.HTTPWriteTimeout, err = getEnvPositiveDuration("PV_HTTP_WRITE_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.HTTPIdleTimeout, err = getEnvPositiveDuration("PV_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, err
	}

	// PV_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PV_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PV_LOG_LEVEL: %w", err)
	}

	// PV_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("PV_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PV_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// PV_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 10s)
	if cfg.ShutdownTimeout, err = getEnvPositiveDuration("PV_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.ServiceID = getEnvDefault("PV_SERVICE_ID", "pdfvault")

	// PV_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	if cfg.DephealthCheckInterval, err = getEnvPositiveDuration("PV_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}

	// PV_SECURITY_DIAGNOSTICS — по умолчанию включён вне production
	cfg.SecurityDiagnostics, err = getEnvBool("PV_SECURITY_DIAGNOSTICS", !cfg.IsProduction())
	if err != nil {
		return nil, fmt.Errorf("PV_SECURITY_DIAGNOSTICS: %w", err)
	}

	// PV_OPENAPI_VALIDATION — проверка запросов по OpenAPI (по умолчанию true)
	cfg.OpenAPIValidation, err = getEnvBool("PV_OPENAPI_VALIDATION", true)
	if err != nil {
		return nil, fmt.Errorf("PV_OPENAPI_VALIDATION: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// loadEnvFile загружает dotenv-файл. Явно указанный PV_ENV_FILE обязан
// существовать; .env по умолчанию загружается только при наличии.
func loadEnvFile() error {
	path := os.Getenv("PV_ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("PV_ENV_FILE: ошибка загрузки %s: %w", path, err)
	}
	return nil
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvPositiveInt — getEnvInt с проверкой > 0; ошибка уже содержит имя переменной.
func getEnvPositiveInt(key string, defaultVal int) (int, error) {
	n, err := getEnvInt(key, defaultVal)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s: значение должно быть положительным, получено %d", key, n)
	}
	return n, nil
}

// getEnvBytes возвращает размер в байтах: число или строку вида 25MiB.
func getEnvBytes(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := humanize.ParseBytes(val)
	if err != nil {
		return 0, fmt.Errorf("некорректный размер: %q (например 26214400 или 25MiB)", val)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("слишком большой размер: %q", val)
	}
	return int64(n), nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 10m, 1h)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — getEnvDuration с проверкой > 0; ошибка уже содержит имя переменной.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: длительность должна быть положительной, получено %s", key, d)
	}
	return d, nil
}

// getEnvBool возвращает bool из переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
