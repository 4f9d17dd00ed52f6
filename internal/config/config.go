// Пакет config — загрузка и валидация конфигурации ouderschaps-api
// из переменных окружения.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Провайдеры blob-хранилища.
const (
	StorageProviderLocal = "local"
	StorageProviderS3    = "s3"
)

// Config содержит все параметры конфигурации ouderschaps-api.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Максимальный размер тела запроса загрузки документа
	MaxUploadBytes int64

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула подключений
	DBMaxConns int

	// --- JWT ---

	// URL JWKS endpoint IdP
	JWTJWKSURL string
	// Ожидаемый issuer (пусто — не проверяется)
	JWTIssuer string
	// Допустимое расхождение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Путь к CA-сертификату для TLS-соединения с IdP (опционально)
	JWKSCACertPath string
	// Группы IdP, дающие роль admin
	RoleAdminGroups []string

	// --- Гостевой доступ ---

	// Базовый URL гостевого портала (для ссылки приглашения)
	PortalBaseURL string
	// Срок действия приглашения по умолчанию, в днях (1-365)
	GuestDefaultExpiryDays int
	// Лимит запросов с гостевым токеном на один IP, запросов в секунду
	GuestRateLimit float64
	// Размер всплеска для лимитера
	GuestRateBurst int

	// --- Blob-хранилище ---

	// Провайдер: local или s3
	StorageProvider string
	// Корневой каталог локального провайдера
	StorageLocalDir string
	// Ключ подписи локальных ссылок на скачивание
	StorageSigningKey string
	// StorageSigningKeyGenerated — ключ не задан и сгенерирован при запуске
	StorageSigningKeyGenerated bool
	// Внешний базовый URL сервиса (для подписанных ссылок local-провайдера)
	PublicBaseURL string
	// Префикс имени контейнера dossier
	StorageContainerPrefix string
	// Время жизни подписанной ссылки на скачивание
	DownloadURLTTL time.Duration

	// --- S3 ---

	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3SessionToken    string

	// --- Кэши и мониторинг ---

	// TTL кэша категорий документов
	CategoryCacheTTL time.Duration
	// TTL кэша пользователей (extern_id → запись)
	UserCacheTTL time.Duration
	// Группа зависимостей topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// OP_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("OP_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("OP_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("OP_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("OP_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("OP_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("OP_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("OP_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("OP_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OP_SHUTDOWN_TIMEOUT: %w", err)
	}

	// OP_MAX_UPLOAD_BYTES — лимит тела загрузки (по умолчанию 100 МБ)
	maxUpload, err := getEnvInt("OP_MAX_UPLOAD_BYTES", 100*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("OP_MAX_UPLOAD_BYTES: %w", err)
	}
	if maxUpload < 1024 {
		return nil, fmt.Errorf("OP_MAX_UPLOAD_BYTES: значение %d меньше минимального 1024", maxUpload)
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("OP_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("OP_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("OP_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("OP_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("OP_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("OP_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("OP_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("OP_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	cfg.DBMaxConns, err = getEnvInt("OP_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("OP_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 200 {
		return nil, fmt.Errorf("OP_DB_MAX_CONNS: значение %d вне диапазона 1-200", cfg.DBMaxConns)
	}

	// --- JWT ---

	if cfg.JWTJWKSURL, err = getEnvRequired("OP_JWT_JWKS_URL"); err != nil {
		return nil, err
	}
	if err := validateURL(cfg.JWTJWKSURL); err != nil {
		return nil, fmt.Errorf("OP_JWT_JWKS_URL: %w", err)
	}
	cfg.JWTIssuer = getEnvDefault("OP_JWT_ISSUER", "")

	cfg.JWTLeeway, err = getEnvDuration("OP_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OP_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDuration("OP_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OP_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("OP_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("OP_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWKSCACertPath = getEnvDefault("OP_JWKS_CA_CERT_PATH", "")

	// OP_ROLE_ADMIN_GROUPS — группы для роли admin (по умолчанию "ouderschaps-admins")
	cfg.RoleAdminGroups = parseCSV(getEnvDefault("OP_ROLE_ADMIN_GROUPS", "ouderschaps-admins"))

	// --- Гостевой доступ ---

	if cfg.PortalBaseURL, err = getEnvRequired("OP_PORTAL_BASE_URL"); err != nil {
		return nil, err
	}
	if err := validateURL(cfg.PortalBaseURL); err != nil {
		return nil, fmt.Errorf("OP_PORTAL_BASE_URL: %w", err)
	}
	cfg.PortalBaseURL = strings.TrimRight(cfg.PortalBaseURL, "/")

	cfg.GuestDefaultExpiryDays, err = getEnvInt("OP_GUEST_DEFAULT_EXPIRY_DAYS", 30)
	if err != nil {
		return nil, fmt.Errorf("OP_GUEST_DEFAULT_EXPIRY_DAYS: %w", err)
	}
	if cfg.GuestDefaultExpiryDays < 1 || cfg.GuestDefaultExpiryDays > 365 {
		return nil, fmt.Errorf("OP_GUEST_DEFAULT_EXPIRY_DAYS: значение %d вне допустимого диапазона 1-365", cfg.GuestDefaultExpiryDays)
	}

	cfg.GuestRateLimit, err = getEnvFloat("OP_GUEST_RATE_LIMIT", 2)
	if err != nil {
		return nil, fmt.Errorf("OP_GUEST_RATE_LIMIT: %w", err)
	}
	if cfg.GuestRateLimit <= 0 {
		return nil, fmt.Errorf("OP_GUEST_RATE_LIMIT: значение должно быть больше 0")
	}
	cfg.GuestRateBurst, err = getEnvInt("OP_GUEST_RATE_BURST", 10)
	if err != nil {
		return nil, fmt.Errorf("OP_GUEST_RATE_BURST: %w", err)
	}
	if cfg.GuestRateBurst < 1 {
		return nil, fmt.Errorf("OP_GUEST_RATE_BURST: значение %d меньше 1", cfg.GuestRateBurst)
	}

	// --- Blob-хранилище ---

	cfg.StorageProvider = strings.ToLower(getEnvDefault("OP_STORAGE_PROVIDER", StorageProviderLocal))
	if cfg.StorageProvider != StorageProviderLocal && cfg.StorageProvider != StorageProviderS3 {
		return nil, fmt.Errorf("OP_STORAGE_PROVIDER: недопустимое значение %q, допустимые: local, s3", cfg.StorageProvider)
	}
	cfg.StorageLocalDir = getEnvDefault("OP_STORAGE_LOCAL_DIR", "/var/lib/ouderschaps-api/blobs")

	cfg.StorageSigningKey = getEnvDefault("OP_STORAGE_SIGNING_KEY", "")
	if cfg.StorageSigningKey == "" {
		cfg.StorageSigningKey, err = randomKey()
		if err != nil {
			return nil, fmt.Errorf("OP_STORAGE_SIGNING_KEY: генерация ключа: %w", err)
		}
		cfg.StorageSigningKeyGenerated = true
	}

	cfg.PublicBaseURL = strings.TrimRight(getEnvDefault("OP_PUBLIC_BASE_URL", "http://localhost:8080"), "/")
	if err := validateURL(cfg.PublicBaseURL); err != nil {
		return nil, fmt.Errorf("OP_PUBLIC_BASE_URL: %w", err)
	}

	cfg.StorageContainerPrefix = strings.ToLower(getEnvDefault("OP_STORAGE_CONTAINER_PREFIX", "dossier"))
	if !validContainerPrefix(cfg.StorageContainerPrefix) {
		return nil, fmt.Errorf("OP_STORAGE_CONTAINER_PREFIX: недопустимое значение %q (a-z, 0-9, '-', 3-40 символов)", cfg.StorageContainerPrefix)
	}

	cfg.DownloadURLTTL, err = getEnvDuration("OP_DOWNLOAD_URL_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("OP_DOWNLOAD_URL_TTL: %w", err)
	}
	if cfg.DownloadURLTTL < time.Minute || cfg.DownloadURLTTL > 24*time.Hour {
		return nil, fmt.Errorf("OP_DOWNLOAD_URL_TTL: значение %v вне допустимого диапазона 1m-24h", cfg.DownloadURLTTL)
	}

	// --- S3 ---

	cfg.S3Endpoint = getEnvDefault("OP_S3_ENDPOINT", "")
	cfg.S3Region = getEnvDefault("OP_S3_REGION", "us-east-1")
	cfg.S3AccessKeyID = getEnvDefault("OP_S3_ACCESS_KEY_ID", "")
	cfg.S3SecretAccessKey = getEnvDefault("OP_S3_SECRET_ACCESS_KEY", "")
	cfg.S3SessionToken = getEnvDefault("OP_S3_SESSION_TOKEN", "")
	if cfg.StorageProvider == StorageProviderS3 {
		for key, val := range map[string]string{
			"OP_S3_ENDPOINT":          cfg.S3Endpoint,
			"OP_S3_ACCESS_KEY_ID":     cfg.S3AccessKeyID,
			"OP_S3_SECRET_ACCESS_KEY": cfg.S3SecretAccessKey,
		} {
			if val == "" {
				return nil, fmt.Errorf("%s: обязательна при OP_STORAGE_PROVIDER=s3", key)
			}
		}
	}

	// --- Кэши и мониторинг ---

	cfg.CategoryCacheTTL, err = getEnvDuration("OP_CATEGORY_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("OP_CATEGORY_CACHE_TTL: %w", err)
	}
	cfg.UserCacheTTL, err = getEnvDuration("OP_USER_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("OP_USER_CACHE_TTL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("OP_DEPHEALTH_GROUP", "ouderschapsplan")
	cfg.DephealthCheckInterval, err = getEnvDuration("OP_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OP_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без учётных данных (для меток метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
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

// getEnvFloat возвращает дробное значение переменной окружения или значение по умолчанию.
func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
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

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// validateURL проверяет, что строка — абсолютный http(s) URL.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("некорректный URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("некорректный URL %q: ожидается схема http или https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("некорректный URL %q: не указан хост", raw)
	}
	return nil
}

// validContainerPrefix проверяет префикс по правилам имён S3-бакетов:
// строчные латинские буквы, цифры и дефис, начинается с буквы.
func validContainerPrefix(p string) bool {
	if len(p) < 3 || len(p) > 40 {
		return false
	}
	for i, r := range p {
		switch {
		case r >= 'a' && r <= 'z':
		case (r >= '0' && r <= '9') || r == '-':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// randomKey генерирует случайный ключ подписи (32 байта в hex).
func randomKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
