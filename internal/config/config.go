// Пакет config — загрузка и валидация конфигурации Analysis Module
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

// Config содержит все параметры конфигурации Analysis Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8030-8039)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Разрешённый origin для CORS
	CORSOrigin string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration
	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- MongoDB (записи заданий) ---

	// URI подключения к MongoDB
	MongoURI string
	// Имя базы данных
	MongoDB string

	// --- AWS (blob-хранилище и метаданные) ---

	// Регион AWS
	AWSRegion string
	// Кастомный endpoint S3/DynamoDB (MinIO, LocalStack; пусто — стандартный)
	AWSEndpoint string
	// Имя S3-бакета
	S3Bucket string
	// Имя таблицы DynamoDB с метаданными файлов
	DynamoTable string
	// Время жизни presigned URL (по умолчанию 1h)
	URLExpiry time.Duration

	// --- Neo4j (граф знаний) ---

	// URI подключения к Neo4j (bolt:// или neo4j://)
	Neo4jURI string
	// Пользователь Neo4j
	Neo4jUser string
	// Пароль Neo4j
	Neo4jPassword string
	// Имя базы данных Neo4j
	Neo4jDatabase string

	// --- Анализатор ---

	// Интерпретатор Python
	PythonBin string
	// Каталог со скриптами анализатора
	ScriptsDir string
	// Рабочий каталог для временных файлов (пусто — системный temp)
	WorkDir string
	// Таймаут одного запуска анализатора (по умолчанию 5m)
	AnalysisTimeout time.Duration

	// --- Лимиты загрузки ---

	// Максимальный размер одного файла в задании (байты)
	MaxFileSize int64
	// Максимальный суммарный размер формы анализа кодовой базы (байты)
	MaxCodebaseSize int64
	// Максимальное число основных файлов в задании
	MaxFiles int
	// Максимальное число файлов дополнительного контекста
	MaxAdditionalFiles int

	// --- Кэш presigned URL ---

	// Максимальное число записей кэша
	CacheSize int
	// TTL записи кэша (по умолчанию 30m)
	CacheTTL time.Duration

	// --- Readiness ---

	// Интервал фоновых проверок зависимостей (по умолчанию 15s)
	ReadinessInterval time.Duration

	// --- JWT (опционально: пустой JWKSURL отключает аутентификацию) ---

	// URL JWKS endpoint Keycloak
	JWKSURL string
	// Путь к CA-сертификату для TLS при обращении к JWKS
	JWKSCACert string
	// Ожидаемый issuer JWT (пусто — не проверяется)
	JWTIssuer string
	// Группы IdP, дающие роль admin
	AdminGroups []string
	// Группы IdP, дающие роль readonly
	ReadonlyGroups []string
	// Таймаут HTTP-клиента JWKS (по умолчанию 10s)
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей (по умолчанию 5m)
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT (по умолчанию 30s)
	JWTLeeway time.Duration
}

// AuthEnabled сообщает, включена ли JWT-аутентификация.
func (c *Config) AuthEnabled() bool {
	return c.JWKSURL != ""
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// AN_PORT — порт HTTP-сервера (по умолчанию 8030)
	cfg.Port, err = getEnvInt("AN_PORT", 8030)
	if err != nil {
		return nil, fmt.Errorf("AN_PORT: %w", err)
	}

	// AN_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("AN_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("AN_LOG_LEVEL: %w", err)
	}

	// AN_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("AN_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AN_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// AN_CORS_ORIGIN — разрешённый origin фронтенда
	cfg.CORSOrigin = getEnvDefault("AN_CORS_ORIGIN", "http://localhost:5173")

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("AN_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AN_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("AN_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AN_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("AN_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AN_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("AN_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AN_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- MongoDB ---

	cfg.MongoURI, err = getEnvRequired("AN_MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDB = getEnvDefault("AN_MONGO_DB", "testgen")

	// --- AWS ---

	cfg.AWSRegion, err = getEnvRequired("AN_AWS_REGION")
	if err != nil {
		return nil, err
	}
	cfg.AWSEndpoint = getEnvDefault("AN_AWS_ENDPOINT", "")
	cfg.S3Bucket, err = getEnvRequired("AN_S3_BUCKET")
	if err != nil {
		return nil, err
	}
	cfg.DynamoTable, err = getEnvRequired("AN_DYNAMO_TABLE")
	if err != nil {
		return nil, err
	}
	cfg.URLExpiry, err = getEnvDuration("AN_URL_EXPIRY", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("AN_URL_EXPIRY: %w", err)
	}

	// --- Neo4j ---

	cfg.Neo4jURI, err = getEnvRequired("AN_NEO4J_URI")
	if err != nil {
		return nil, err
	}
	cfg.Neo4jUser, err = getEnvRequired("AN_NEO4J_USER")
	if err != nil {
		return nil, err
	}
	cfg.Neo4jPassword, err = getEnvRequired("AN_NEO4J_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.Neo4jDatabase = getEnvDefault("AN_NEO4J_DATABASE", "neo4j")

	// --- Анализатор ---

	cfg.PythonBin = getEnvDefault("AN_PYTHON_BIN", "python3")
	cfg.ScriptsDir, err = getEnvRequired("AN_SCRIPTS_DIR")
	if err != nil {
		return nil, err
	}
	cfg.WorkDir = getEnvDefault("AN_WORK_DIR", "")
	cfg.AnalysisTimeout, err = getEnvDuration("AN_ANALYSIS_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AN_ANALYSIS_TIMEOUT: %w", err)
	}
	if cfg.AnalysisTimeout <= 0 {
		return nil, fmt.Errorf("AN_ANALYSIS_TIMEOUT: значение должно быть > 0")
	}

	// --- Лимиты загрузки ---

	// AN_MAX_FILE_SIZE — размер одного файла (по умолчанию 10 MiB)
	cfg.MaxFileSize, err = getEnvInt64("AN_MAX_FILE_SIZE", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("AN_MAX_FILE_SIZE: %w", err)
	}
	// AN_MAX_CODEBASE_SIZE — суммарный размер формы кодовой базы (по умолчанию 500 MiB)
	cfg.MaxCodebaseSize, err = getEnvInt64("AN_MAX_CODEBASE_SIZE", 500<<20)
	if err != nil {
		return nil, fmt.Errorf("AN_MAX_CODEBASE_SIZE: %w", err)
	}
	cfg.MaxFiles, err = getEnvInt("AN_MAX_FILES", 50)
	if err != nil {
		return nil, fmt.Errorf("AN_MAX_FILES: %w", err)
	}
	cfg.MaxAdditionalFiles, err = getEnvInt("AN_MAX_ADDITIONAL_FILES", 20)
	if err != nil {
		return nil, fmt.Errorf("AN_MAX_ADDITIONAL_FILES: %w", err)
	}

	// --- Кэш ---

	cfg.CacheSize, err = getEnvInt("AN_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("AN_CACHE_SIZE: %w", err)
	}
	cfg.CacheTTL, err = getEnvDuration("AN_CACHE_TTL", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AN_CACHE_TTL: %w", err)
	}

	// --- Readiness ---

	cfg.ReadinessInterval, err = getEnvDuration("AN_READINESS_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AN_READINESS_INTERVAL: %w", err)
	}

	// --- JWT ---

	// AN_JWKS_URL — пустое значение отключает аутентификацию
	cfg.JWKSURL = getEnvDefault("AN_JWKS_URL", "")
	cfg.JWKSCACert = getEnvDefault("AN_JWKS_CA_CERT", "")
	cfg.JWTIssuer = getEnvDefault("AN_JWT_ISSUER", "")
	cfg.AdminGroups = parseCSV(getEnvDefault("AN_ADMIN_GROUPS", "testgen-admins"))
	cfg.ReadonlyGroups = parseCSV(getEnvDefault("AN_READONLY_GROUPS", "testgen-viewers"))
	cfg.JWKSClientTimeout, err = getEnvDuration("AN_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AN_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("AN_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AN_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("AN_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AN_JWT_LEEWAY: %w", err)
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

// getEnvInt64 возвращает int64 из переменной окружения (размеры в байтах).
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	if n <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
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
