// Пакет config собирает конфигурацию приложения из .env и окружения.
// Он:
//  1. читает .env (через godotenv) без записи в окружение процесса,
//  2. накладывает поверх переменные окружения (они приоритетнее файла),
//  3. нормализует значения и подставляет дефолты с предупреждениями.
//
// API_ID и API_HASH необязательны: их можно ввести при входе. Если заданы,
// они служат значениями по умолчанию для CLI и веб-формы.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Транспорты Telegram.
const (
	TransportDemo    = "demo"
	TransportMTProto = "mtproto"
)

// Бэкенды хранилища.
const (
	StoreBolt  = "bbolt"
	StoreFile  = "file"
	StoreRedis = "redis"
)

// EnvConfig — параметры запуска. Значения уже нормализованы.
type EnvConfig struct {
	APIID       int
	APIHash     string
	PhoneNumber string
	Transport   string
	TestDC      bool
	ThrottleRPS int
	LogLevel    string
	// Хранилище учётных данных и сессии
	StoreBackend  string
	StoreFile     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Удалённые вызовы и выборка диалогов
	RPCTimeout         time.Duration
	DialogsLimit       int
	HistoryLimit       int
	HistoryConcurrency int
	// Демо-транспорт
	DemoFixtureFile string
	DemoPassword    string
	DemoDelay       time.Duration
	// Интерфейсы
	WebServerEnable  bool
	WebServerAddress string
	CLIEnable        bool
}

// Config хранит конфигурацию среды и предупреждения загрузки.
type Config struct {
	env      EnvConfig
	warnings []string
	mu       sync.RWMutex
}

const (
	defaultTransport          = TransportDemo
	defaultStoreBackend       = StoreBolt
	defaultBoltFile           = "data/inbox.bbolt"
	defaultJSONFile           = "data/inbox.json"
	defaultRedisAddr          = "127.0.0.1:6379"
	defaultRedisDB            = 0
	defaultRPCTimeoutSec      = 30
	defaultDialogsLimit       = 50
	defaultHistoryLimit       = 5
	defaultHistoryConcurrency = 5
	maxHistoryConcurrency     = 10
	defaultThrottleRPS        = 0
	defaultLogLevel           = "info"
	defaultDemoDelayMS        = 800
	defaultWebServerEnable    = false
	defaultWebServerAddress   = "127.0.0.1:8080"
	defaultCLIEnable          = true
)

// source — значения .env с приоритетом окружения процесса.
type source map[string]string

func (s source) get(name string) string {
	if v, ok := os.LookupEnv(name); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(s[name])
}

// Load читает path (отсутствующий файл — не ошибка, только предупреждение)
// и собирает Config. Ошибка возвращается лишь для значений, с которыми
// приложение заведомо не стартует.
func Load(path string) (*Config, error) {
	var warnings []string

	values, err := godotenv.Read(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		appendWarningf(&warnings, "env file %q not found; using process environment", path)
		values = map[string]string{}
	default:
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	src := source(values)

	apiID := 0
	if raw := src.get("API_ID"); raw != "" {
		apiID, err = strconv.Atoi(raw)
		if err != nil || apiID <= 0 {
			return nil, fmt.Errorf("env API_ID must be a positive integer, got %q", raw)
		}
	}

	backend := sanitizeChoice(src, "STORE_BACKEND", defaultStoreBackend, &warnings, StoreBolt, StoreFile, StoreRedis)
	storeFileDefault := defaultBoltFile
	if backend == StoreFile {
		storeFileDefault = defaultJSONFile
	}

	env := EnvConfig{
		APIID:              apiID,
		APIHash:            src.get("API_HASH"),
		PhoneNumber:        src.get("PHONE_NUMBER"),
		Transport:          sanitizeChoice(src, "TRANSPORT", defaultTransport, &warnings, TransportDemo, TransportMTProto),
		TestDC:             parseBoolDefault(src, "TEST_DC", false, &warnings),
		ThrottleRPS:        parseIntDefault(src, "THROTTLE_RPS", defaultThrottleRPS, nonNegative, &warnings),
		LogLevel:           sanitizeLogLevel(src.get("LOG_LEVEL"), defaultLogLevel, &warnings),
		StoreBackend:       backend,
		StoreFile:          sanitizeFile(src, "STORE_FILE", storeFileDefault, &warnings),
		RedisAddr:          defaultRedisAddr,
		RPCTimeout:         time.Duration(parseIntDefault(src, "RPC_TIMEOUT_SEC", defaultRPCTimeoutSec, greaterThanZero, &warnings)) * time.Second,
		DialogsLimit:       parseIntDefault(src, "DIALOGS_LIMIT", defaultDialogsLimit, greaterThanZero, &warnings),
		HistoryLimit:       parseIntDefault(src, "HISTORY_LIMIT", defaultHistoryLimit, nonNegative, &warnings),
		HistoryConcurrency: parseIntDefault(src, "HISTORY_CONCURRENCY", defaultHistoryConcurrency, withinConcurrency, &warnings),
		DemoFixtureFile:    src.get("DEMO_FIXTURE_FILE"),
		DemoPassword:       src.get("DEMO_PASSWORD"),
		DemoDelay:          time.Duration(parseIntDefault(src, "DEMO_DELAY_MS", defaultDemoDelayMS, nonNegative, &warnings)) * time.Millisecond,
		WebServerEnable:    parseBoolDefault(src, "WEB_SERVER_ENABLE", defaultWebServerEnable, &warnings),
		WebServerAddress:   sanitizeFile(src, "WEB_SERVER_ADDRESS", defaultWebServerAddress, &warnings),
		CLIEnable:          parseBoolDefault(src, "CLI_ENABLE", defaultCLIEnable, &warnings),
	}
	if backend == StoreRedis {
		env.RedisAddr = sanitizeFile(src, "REDIS_ADDR", defaultRedisAddr, &warnings)
		env.RedisPassword = src.get("REDIS_PASSWORD")
		env.RedisDB = parseIntDefault(src, "REDIS_DB", defaultRedisDB, nonNegative, &warnings)
	}
	if env.Transport == TransportMTProto && (env.APIID == 0 || env.APIHash == "") {
		appendWarningf(&warnings, "TRANSPORT=mtproto without API_ID/API_HASH; they must be entered at login")
	}
	if !env.WebServerEnable && !env.CLIEnable {
		return nil, errors.New("both CLI_ENABLE and WEB_SERVER_ENABLE are false; nothing to run")
	}

	return &Config{env: env, warnings: warnings}, nil
}

// FromEnv оборачивает готовый EnvConfig без нормализации. Для встраивания и тестов.
func FromEnv(env EnvConfig) *Config {
	return &Config{env: env}
}

// GetEnv возвращает снимок EnvConfig.
func (c *Config) GetEnv() EnvConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.env
}

// Warnings возвращает копию накопленных предупреждений.
func (c *Config) Warnings() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]string, len(c.warnings))
	copy(result, c.warnings)
	return result
}

// parseIntDefault читает name как int. Если пусто/некорректно/не проходит
// validator — возвращает defaultVal и пишет предупреждение.
func parseIntDefault(src source, name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := src.get(name)
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %d", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

func greaterThanZero(v int) bool   { return v > 0 }
func nonNegative(v int) bool       { return v >= 0 }
func withinConcurrency(v int) bool { return v > 0 && v <= maxHistoryConcurrency }

func parseBoolDefault(src source, name string, defaultVal bool, warnings *[]string) bool {
	value := src.get(name)
	if value == "" {
		return defaultVal
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid boolean; using default %v", name, value, defaultVal)
		return defaultVal
	}
	return v
}

// sanitizeLogLevel ограничивает LOG_LEVEL набором {debug, info, warn, error}.
func sanitizeLogLevel(level string, defaultVal string, warnings *[]string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		return defaultVal
	}
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "env LOG_LEVEL value %q is invalid; using default %q", level, defaultVal)
		return defaultVal
	}
}

// sanitizeChoice приводит значение к одному из allowed (без учёта регистра).
func sanitizeChoice(src source, name, defaultVal string, warnings *[]string, allowed ...string) string {
	v := strings.ToLower(src.get(name))
	if v == "" {
		return defaultVal
	}
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	appendWarningf(warnings, "env %s value %q is invalid; using default %q", name, v, defaultVal)
	return defaultVal
}

func sanitizeFile(src source, name, fallback string, warnings *[]string) string {
	v := src.get(name)
	if v == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, fallback)
		return fallback
	}
	return v
}
