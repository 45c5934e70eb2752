// Пакет config — загрузка и валидация конфигурации Document Registry
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды хранилища метаданных реестра.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config содержит все параметры конфигурации Document Registry.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Путь к TLS сертификату (пусто — HTTP)
	TLSCert string
	// Путь к TLS приватному ключу
	TLSKey string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Хранилище содержимого ---

	// Корень хранилища содержимого (<root>/<tenantId>/...)
	DataDir string
	// Директория WAL-маркеров
	WALDir string
	// Предел длительности одной операции хранилища
	StoreTimeout time.Duration
	// Максимальный размер документа в байтах
	MaxDocumentSize int64
	// Возраст, после которого файлы temp/ удаляются
	TempMaxAge time.Duration
	// Интервал запуска GC
	GCInterval time.Duration
	// Интервал автоматической сверки (0 — отключена)
	ReconcileInterval time.Duration

	// --- Реестр ---

	// Бэкенд метаданных: postgres или memory
	RegistryBackend string
	// Файл конфигурации тенантов (memory backend)
	TenantsFile string
	// Язык документа по умолчанию
	DefaultLanguage string
	// Размер LRU-кэша конфигурации тенантов
	TenantCacheSize int
	// TTL записей кэша тенантов
	TenantCacheTTL time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// --- JWT / JWKS ---

	// URL JWKS endpoint
	JWKSUrl string
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	JWKSCACert string
	// Отключить проверку TLS сертификата JWKS endpoint
	TLSSkipVerify bool
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Допуск по времени при проверке exp/nbf
	JWTLeeway time.Duration

	// --- topologymetrics ---

	ServiceID              string
	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration
}

// Load загружает полную конфигурацию сервиса из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg, err := LoadOffline()
	if err != nil {
		return nil, err
	}

	// DR_PORT — порт HTTP-сервера (по умолчанию 8030)
	cfg.Port, err = getEnvInt("DR_PORT", 8030)
	if err != nil {
		return nil, fmt.Errorf("DR_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("DR_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// DR_TLS_CERT / DR_TLS_KEY — задаются вместе или не задаются
	cfg.TLSCert = getEnvDefault("DR_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("DR_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("DR_TLS_CERT и DR_TLS_KEY должны задаваться вместе")
	}

	// DR_JWKS_URL — обязательный
	cfg.JWKSUrl, err = getEnvRequired("DR_JWKS_URL")
	if err != nil {
		return nil, err
	}

	// DR_JWKS_CA_CERT — путь к CA-сертификату для JWKS endpoint (опционально)
	cfg.JWKSCACert = getEnvDefault("DR_JWKS_CA_CERT", "")

	cfg.TLSSkipVerify, err = getEnvBool("DR_TLS_SKIP_VERIFY", false)
	if err != nil {
		return nil, fmt.Errorf("DR_TLS_SKIP_VERIFY: %w", err)
	}

	if cfg.JWKSClientTimeout, err = getEnvPositiveDuration("DR_JWKS_CLIENT_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("DR_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	if cfg.JWKSRefreshInterval, err = getEnvPositiveDuration("DR_JWKS_REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("DR_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.JWTLeeway, err = getEnvDuration("DR_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("DR_JWT_LEEWAY: %w", err)
	}

	// --- topologymetrics ---

	cfg.ServiceID = getEnvDefault("DR_SERVICE_ID", "document-registry")
	cfg.DephealthGroup = getEnvDefault("DR_DEPHEALTH_GROUP", "document-registry")
	if cfg.DephealthCheckInterval, err = getEnvPositiveDuration("DR_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("DR_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- HTTP Server Timeouts ---

	if cfg.HTTPReadTimeout, err = getEnvPositiveDuration("DR_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("DR_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvPositiveDuration("DR_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("DR_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvPositiveDuration("DR_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("DR_HTTP_IDLE_TIMEOUT: %w", err)
	}

	if cfg.ShutdownTimeout, err = getEnvPositiveDuration("DR_SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("DR_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// LoadOffline загружает конфигурацию без параметров HTTP-сервера и JWKS.
// Используется утилитой registryctl, работающей напрямую с хранилищем.
func LoadOffline() (*Config, error) {
	cfg := &Config{}
	var err error

	// DR_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DR_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DR_LOG_LEVEL: %w", err)
	}

	// DR_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DR_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DR_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Хранилище содержимого ---

	if cfg.DataDir, err = getEnvRequired("DR_DATA_DIR"); err != nil {
		return nil, err
	}
	if cfg.WALDir, err = getEnvRequired("DR_WAL_DIR"); err != nil {
		return nil, err
	}

	if cfg.StoreTimeout, err = getEnvPositiveDuration("DR_STORE_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("DR_STORE_TIMEOUT: %w", err)
	}

	// DR_MAX_DOCUMENT_SIZE — максимальный размер документа (по умолчанию 100 MB)
	cfg.MaxDocumentSize, err = getEnvInt64("DR_MAX_DOCUMENT_SIZE", 104857600)
	if err != nil {
		return nil, fmt.Errorf("DR_MAX_DOCUMENT_SIZE: %w", err)
	}
	if cfg.MaxDocumentSize <= 0 {
		return nil, fmt.Errorf("DR_MAX_DOCUMENT_SIZE: значение должно быть положительным")
	}

	if cfg.TempMaxAge, err = getEnvPositiveDuration("DR_TEMP_MAX_AGE", 24*time.Hour); err != nil {
		return nil, fmt.Errorf("DR_TEMP_MAX_AGE: %w", err)
	}
	if cfg.GCInterval, err = getEnvPositiveDuration("DR_GC_INTERVAL", time.Hour); err != nil {
		return nil, fmt.Errorf("DR_GC_INTERVAL: %w", err)
	}

	// DR_RECONCILE_INTERVAL — интервал сверки (по умолчанию 6h, 0 — отключена)
	if cfg.ReconcileInterval, err = getEnvDuration("DR_RECONCILE_INTERVAL", 6*time.Hour); err != nil {
		return nil, fmt.Errorf("DR_RECONCILE_INTERVAL: %w", err)
	}
	if cfg.ReconcileInterval < 0 {
		return nil, fmt.Errorf("DR_RECONCILE_INTERVAL: значение не может быть отрицательным")
	}

	// --- Реестр ---

	cfg.RegistryBackend = getEnvDefault("DR_REGISTRY_BACKEND", BackendPostgres)
	if cfg.RegistryBackend != BackendPostgres && cfg.RegistryBackend != BackendMemory {
		return nil, fmt.Errorf("DR_REGISTRY_BACKEND: недопустимое значение %q, допустимые: postgres, memory", cfg.RegistryBackend)
	}

	cfg.TenantsFile = getEnvDefault("DR_TENANTS_FILE", filepath.Join(cfg.DataDir, "tenants.json"))
	cfg.DefaultLanguage = getEnvDefault("DR_DEFAULT_LANGUAGE", "de-AT")

	if cfg.TenantCacheSize, err = getEnvInt("DR_TENANT_CACHE_SIZE", 256); err != nil {
		return nil, fmt.Errorf("DR_TENANT_CACHE_SIZE: %w", err)
	}
	if cfg.TenantCacheSize <= 0 {
		return nil, fmt.Errorf("DR_TENANT_CACHE_SIZE: значение должно быть положительным")
	}
	if cfg.TenantCacheTTL, err = getEnvPositiveDuration("DR_TENANT_CACHE_TTL", 30*time.Second); err != nil {
		return nil, fmt.Errorf("DR_TENANT_CACHE_TTL: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost = getEnvDefault("DR_DB_HOST", "localhost")
	if cfg.DBPort, err = getEnvInt("DR_DB_PORT", 5432); err != nil {
		return nil, fmt.Errorf("DR_DB_PORT: %w", err)
	}
	cfg.DBName = getEnvDefault("DR_DB_NAME", "document_registry")
	cfg.DBUser = getEnvDefault("DR_DB_USER", "registry")
	cfg.DBSSLMode = getEnvDefault("DR_DB_SSL_MODE", "disable")
	if cfg.RegistryBackend == BackendPostgres {
		// DR_DB_PASSWORD — обязательный для postgres backend
		if cfg.DBPassword, err = getEnvRequired("DR_DB_PASSWORD"); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// DatabaseDSN возвращает DSN для подключения к PostgreSQL через pgx.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// MigrateURL возвращает URL базы данных для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// TLSEnabled сообщает, что HTTP-сервер работает по TLS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
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

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

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

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — как getEnvDuration, но значение должно быть > 0.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
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
