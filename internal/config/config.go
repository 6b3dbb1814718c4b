// Пакет config — загрузка и валидация конфигурации портала документов
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации портала.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Хранилище файлов ---

	// Корневая директория хранения документов
	StorageRoot string
	// Максимальный размер вложения запроса в байтах
	MaxRequestFileSize int64
	// Максимальный размер обычного документа в байтах
	MaxDocumentFileSize int64

	// --- JWT (session validator) ---

	// URL JWKS endpoint провайдера идентификации
	JWTJWKSURL string
	// Issuer JWT (опционально, проверяется если задан)
	JWTIssuer string

	// --- Кэш метаданных запросов ---

	// Максимальное количество записей LRU-кэша
	CacheSize int
	// TTL записи кэша
	CacheTTL time.Duration

	// --- SSE ---

	// Интервал heartbeat для SSE-подключений
	SSEHeartbeat time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// DP_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("DP_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("DP_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("DP_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// DP_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DP_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DP_LOG_LEVEL: %w", err)
	}

	// DP_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DP_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DP_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// DP_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("DP_DB_HOST")
	if err != nil {
		return nil, err
	}

	// DP_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("DP_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("DP_DB_PORT: %w", err)
	}

	// DP_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("DP_DB_NAME")
	if err != nil {
		return nil, err
	}

	// DP_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("DP_DB_USER")
	if err != nil {
		return nil, err
	}

	// DP_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("DP_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// DP_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("DP_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("DP_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Хранилище файлов ---

	// DP_STORAGE_ROOT — корневая директория (по умолчанию ./documents)
	cfg.StorageRoot = getEnvDefault("DP_STORAGE_ROOT", "documents")

	// DP_MAX_REQUEST_FILE_SIZE — лимит вложения запроса (по умолчанию 10 MiB)
	cfg.MaxRequestFileSize, err = getEnvInt64("DP_MAX_REQUEST_FILE_SIZE", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("DP_MAX_REQUEST_FILE_SIZE: %w", err)
	}
	if cfg.MaxRequestFileSize < 1 {
		return nil, fmt.Errorf("DP_MAX_REQUEST_FILE_SIZE: значение должно быть положительным")
	}

	// DP_MAX_DOCUMENT_FILE_SIZE — лимит обычного документа (по умолчанию 25 MiB)
	cfg.MaxDocumentFileSize, err = getEnvInt64("DP_MAX_DOCUMENT_FILE_SIZE", 25<<20)
	if err != nil {
		return nil, fmt.Errorf("DP_MAX_DOCUMENT_FILE_SIZE: %w", err)
	}
	if cfg.MaxDocumentFileSize < 1 {
		return nil, fmt.Errorf("DP_MAX_DOCUMENT_FILE_SIZE: значение должно быть положительным")
	}

	// --- JWT ---

	// DP_JWT_JWKS_URL — обязательный
	cfg.JWTJWKSURL, err = getEnvRequired("DP_JWT_JWKS_URL")
	if err != nil {
		return nil, err
	}

	// DP_JWT_ISSUER — опциональный
	cfg.JWTIssuer = getEnvDefault("DP_JWT_ISSUER", "")

	// --- Кэш ---

	// DP_CACHE_SIZE — размер LRU-кэша (по умолчанию 1024)
	cfg.CacheSize, err = getEnvInt("DP_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("DP_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("DP_CACHE_SIZE: значение должно быть положительным")
	}

	// DP_CACHE_TTL — TTL записи кэша (по умолчанию 30s)
	cfg.CacheTTL, err = getEnvDuration("DP_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DP_CACHE_TTL: %w", err)
	}

	// --- SSE ---

	// DP_SSE_HEARTBEAT — интервал heartbeat (по умолчанию 15s)
	cfg.SSEHeartbeat, err = getEnvDuration("DP_SSE_HEARTBEAT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DP_SSE_HEARTBEAT: %w", err)
	}

	// --- Graceful shutdown ---

	// DP_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("DP_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DP_SHUTDOWN_TIMEOUT: %w", err)
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

// getEnvInt64 возвращает int64-значение переменной окружения или значение по умолчанию.
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
