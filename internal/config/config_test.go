package config

import (
	"log/slog"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"AN_MONGO_URI":      "mongodb://localhost:27017",
		"AN_AWS_REGION":     "us-east-1",
		"AN_S3_BUCKET":      "testgen-files",
		"AN_DYNAMO_TABLE":   "testgen-meta",
		"AN_NEO4J_URI":      "bolt://localhost:7687",
		"AN_NEO4J_USER":     "neo4j",
		"AN_NEO4J_PASSWORD": "secret",
		"AN_SCRIPTS_DIR":    "/opt/analyzer",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8030 {
		t.Errorf("Port = %d, ожидается 8030", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.CORSOrigin != "http://localhost:5173" {
		t.Errorf("CORSOrigin = %q", cfg.CORSOrigin)
	}
	if cfg.MongoDB != "testgen" {
		t.Errorf("MongoDB = %q, ожидается testgen", cfg.MongoDB)
	}
	if cfg.Neo4jDatabase != "neo4j" {
		t.Errorf("Neo4jDatabase = %q, ожидается neo4j", cfg.Neo4jDatabase)
	}
	if cfg.PythonBin != "python3" {
		t.Errorf("PythonBin = %q, ожидается python3", cfg.PythonBin)
	}
	if cfg.AnalysisTimeout != 5*time.Minute {
		t.Errorf("AnalysisTimeout = %v, ожидается 5m", cfg.AnalysisTimeout)
	}
	if cfg.URLExpiry != time.Hour {
		t.Errorf("URLExpiry = %v, ожидается 1h", cfg.URLExpiry)
	}
	if cfg.MaxFileSize != 10<<20 {
		t.Errorf("MaxFileSize = %d, ожидается %d", cfg.MaxFileSize, 10<<20)
	}
	if cfg.MaxCodebaseSize != 500<<20 {
		t.Errorf("MaxCodebaseSize = %d, ожидается %d", cfg.MaxCodebaseSize, 500<<20)
	}
	if cfg.MaxFiles != 50 {
		t.Errorf("MaxFiles = %d, ожидается 50", cfg.MaxFiles)
	}
	if cfg.MaxAdditionalFiles != 20 {
		t.Errorf("MaxAdditionalFiles = %d, ожидается 20", cfg.MaxAdditionalFiles)
	}
	if cfg.CacheSize != 1024 {
		t.Errorf("CacheSize = %d, ожидается 1024", cfg.CacheSize)
	}
	if cfg.CacheTTL != 30*time.Minute {
		t.Errorf("CacheTTL = %v, ожидается 30m", cfg.CacheTTL)
	}
	if cfg.ReadinessInterval != 15*time.Second {
		t.Errorf("ReadinessInterval = %v, ожидается 15s", cfg.ReadinessInterval)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
	if cfg.AuthEnabled() {
		t.Error("без AN_JWKS_URL аутентификация должна быть выключена")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	envs := minimalEnvs()
	delete(envs, "AN_MONGO_URI")
	setEnvs(t, envs)

	if _, err := Load(); err == nil {
		t.Fatal("Load() без AN_MONGO_URI должен вернуть ошибку")
	}
}

func TestLoad_Overrides(t *testing.T) {
	envs := minimalEnvs()
	envs["AN_PORT"] = "8035"
	envs["AN_LOG_LEVEL"] = "debug"
	envs["AN_LOG_FORMAT"] = "text"
	envs["AN_ANALYSIS_TIMEOUT"] = "90s"
	envs["AN_MAX_FILE_SIZE"] = "1048576"
	envs["AN_JWKS_URL"] = "https://keycloak.kryukov.lan/realms/testgen/protocol/openid-connect/certs"
	envs["AN_ADMIN_GROUPS"] = "devs, leads"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8035 {
		t.Errorf("Port = %d, ожидается 8035", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, ожидается text", cfg.LogFormat)
	}
	if cfg.AnalysisTimeout != 90*time.Second {
		t.Errorf("AnalysisTimeout = %v, ожидается 90s", cfg.AnalysisTimeout)
	}
	if cfg.MaxFileSize != 1<<20 {
		t.Errorf("MaxFileSize = %d, ожидается %d", cfg.MaxFileSize, 1<<20)
	}
	if !cfg.AuthEnabled() {
		t.Error("с AN_JWKS_URL аутентификация должна быть включена")
	}
	if len(cfg.AdminGroups) != 2 || cfg.AdminGroups[0] != "devs" || cfg.AdminGroups[1] != "leads" {
		t.Errorf("AdminGroups = %v", cfg.AdminGroups)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"нечисловой порт", "AN_PORT", "abc"},
		{"неизвестный уровень логов", "AN_LOG_LEVEL", "verbose"},
		{"неизвестный формат логов", "AN_LOG_FORMAT", "xml"},
		{"некорректная длительность", "AN_ANALYSIS_TIMEOUT", "пять минут"},
		{"отрицательный размер файла", "AN_MAX_FILE_SIZE", "-1"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[c.key] = c.value
			setEnvs(t, envs)

			if _, err := Load(); err == nil {
				t.Errorf("Load() с %s=%q должен вернуть ошибку", c.key, c.value)
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" a, b ,, c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("parseCSV = %v", got)
	}
	if parseCSV("") != nil {
		t.Error("пустая строка должна давать nil")
	}
}
