// Пакет config отвечает за сбор и предоставление конфигурации всего приложения
// (триаж уведомлений). Он:
//  1. читает переменные окружения из .env (через godotenv),
//  2. нормализует и валидирует входные значения,
//  3. подставляет значения по умолчанию, накапливая предупреждения,
//  4. предоставляет доступ к результату через singleton.
//
// Бизнес-контекст: конфиг задаёт «ручки» конвейера решений — окна дедупликации
// и частотного гашения, порог текстовой похожести, тихие часы, лимиты шума —
// а также операционные настройки: лог-уровень, файлы правил и журнала решений,
// адрес веб-панели, параметры почтового поллера.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"notify-triage/internal/infra/timeutil"

	"github.com/joho/godotenv"
)

// EnvConfig описывает параметры, приходящие из окружения (.env). Значения уже
// прошли минимальную валидацию и нормализацию в loadConfig; по месту
// использования предполагается, что EnvConfig последователен (часы в 0..23,
// окна положительные, порог похожести в (0,1]).
type EnvConfig struct {
	// Конвейер решений
	HistoryBufferSize      int
	DedupeWindowMinutes    int
	SimilarityThreshold    float64
	FrequencyWindowMinutes int
	FrequencyLimit         int
	NoiseWindowMinutes     int
	NoiseMaxUrgent         int
	QuietHourStart         int
	QuietHourEnd           int
	QuietResumeHour        int
	BaseBackoffMinutes     int
	WorkingHour            int
	SimulateLLMFailure     bool
	RulesFile              string
	// Журнал решений
	DecisionLogFile string
	DecisionLogKeep int
	// Логирование
	LogLevel string
	LogFile  string
	// Приложение
	AppTimezone string
	CLIEnable   bool
	// Веб-сервер
	WebServerEnable  bool
	WebServerAddress string
	WebRPS           int
	// Почтовый интейк
	EmailUserID      string
	EmailPollSeconds int
}

// Config хранит конфигурацию среды.
//
// Потокобезопасность: Warnings берёт RLock; EnvConfig после загрузки неизменяем.
type Config struct {
	Env      EnvConfig
	warnings []string     // предупреждения, накопленные при чтении окружения
	mu       sync.RWMutex // защита конкурентного доступа к конфигурации
}

// Значения по умолчанию для параметров окружения и связанных файлов.
const (
	defaultHistoryBufferSize      = 30
	defaultDedupeWindowMinutes    = 10
	defaultSimilarityThreshold    = 0.9
	defaultFrequencyWindowMinutes = 10
	defaultFrequencyLimit         = 5
	defaultNoiseWindowMinutes     = 15
	defaultNoiseMaxUrgent         = 2
	defaultQuietHourStart         = 22
	defaultQuietHourEnd           = 6
	defaultQuietResumeHour        = 8
	defaultBaseBackoffMinutes     = 5
	defaultWorkingHour            = 9
	defaultRulesFile              = "assets/rules.json"
	defaultDecisionLogFile        = "data/decisions.bbolt"
	defaultDecisionLogKeep        = 1000
	defaultLogLevel               = "info"
	defaultAppTimezone            = "UTC"
	defaultCLIEnable              = true
	defaultWebServerEnable        = false
	defaultWebServerAddress       = "127.0.0.1:8080"
	defaultWebRPS                 = 5
	defaultEmailUserID            = "gmail_user"
	defaultEmailPollSeconds       = 30
)

var (
	cfgInstance *Config
	cfgDone     bool
)

// AppLocation — часовой пояс приложения (APP_TIMEZONE). Конвейер считает в UTC;
// локация используется для отображения (веб-панель, CLI).
var AppLocation *time.Location

// Load — точка входа для инициализации глобальной конфигурации всего приложения.
// При первом вызове читает .env (отсутствие файла не фатально: значения берутся
// из окружения процесса и умолчаний), формирует EnvConfig и фиксирует результат
// в singleton. Повторный вызов запрещён (возвращается ошибка), чтобы избежать
// гонок конфигурации на старте.
func Load(envPath string) error {
	if cfgDone {
		return errors.New("config already loaded")
	}
	if cfgInstance == nil {
		cfgInstance = &Config{}
	}
	cfgInstance.mu.Lock()
	defer cfgInstance.mu.Unlock()
	newCfg, err := loadConfig(envPath)
	cfgInstance = newCfg
	cfgDone = true
	return err
}

// loadConfig выполняет фактическую загрузку/валидацию без установки глобального
// состояния. Удобно для тестов: можно собрать временный Config и проверить его.
func loadConfig(envPath string) (*Config, error) {
	var warnings []string

	if err := godotenv.Load(envPath); err != nil {
		appendWarningf(&warnings, "env file %q not loaded: %v; relying on process environment", envPath, err)
	}

	historySize := parseIntDefault("HISTORY_BUFFER_SIZE", defaultHistoryBufferSize, greaterThanZero, &warnings)
	dedupeWindow := parseIntDefault("DEDUPE_WINDOW_MINUTES", defaultDedupeWindowMinutes, greaterThanZero, &warnings)
	similarity := parseFloatDefault("TEXT_SIMILARITY_THRESHOLD", defaultSimilarityThreshold, ratioUnit, &warnings)
	freqWindow := parseIntDefault("FREQUENCY_WINDOW_MINUTES", defaultFrequencyWindowMinutes, greaterThanZero, &warnings)
	freqLimit := parseIntDefault("FREQUENCY_LIMIT", defaultFrequencyLimit, greaterThanZero, &warnings)
	noiseWindow := parseIntDefault("NOISE_LIMIT_WINDOW_MINUTES", defaultNoiseWindowMinutes, greaterThanZero, &warnings)
	noiseMax := parseIntDefault("NOISE_LIMIT_MAX_URGENT", defaultNoiseMaxUrgent, greaterThanZero, &warnings)
	quietStart := parseIntDefault("QUIET_HOUR_START", defaultQuietHourStart, hourOfDay, &warnings)
	quietEnd := parseIntDefault("QUIET_HOUR_END", defaultQuietHourEnd, hourOfDay, &warnings)
	quietResume := parseIntDefault("QUIET_RESUME_HOUR", defaultQuietResumeHour, hourOfDay, &warnings)
	baseBackoff := parseIntDefault("BASE_BACKOFF_MINUTES", defaultBaseBackoffMinutes, greaterThanZero, &warnings)
	workingHour := parseIntDefault("DEFAULT_WORKING_HOUR", defaultWorkingHour, hourOfDay, &warnings)
	simulateFailure := parseBoolDefault("SIMULATE_LLM_FAILURE", false, &warnings)
	rulesFile := sanitizeFile("RULES_FILE", os.Getenv("RULES_FILE"), defaultRulesFile, &warnings)
	decisionLogFile := sanitizeFile("DECISION_LOG_FILE", os.Getenv("DECISION_LOG_FILE"),
		defaultDecisionLogFile, &warnings)
	decisionLogKeep := parseIntDefault("DECISION_LOG_KEEP", defaultDecisionLogKeep, greaterThanZero, &warnings)
	logLevel := sanitizeLogLevel(os.Getenv("LOG_LEVEL"), defaultLogLevel, &warnings)
	logFile := strings.TrimSpace(os.Getenv("LOG_FILE"))
	appTimezone := sanitizeTimezoneFlexible(os.Getenv("APP_TIMEZONE"), defaultAppTimezone, &warnings)
	cliEnable := parseBoolDefault("CLI_ENABLE", defaultCLIEnable, &warnings)
	webServerEnable := parseBoolDefault("WEB_SERVER_ENABLE", defaultWebServerEnable, &warnings)
	webServerAddress := sanitizeFile("WEB_SERVER_ADDRESS", os.Getenv("WEB_SERVER_ADDRESS"),
		defaultWebServerAddress, &warnings)
	webRPS := parseIntDefault("WEB_RPS", defaultWebRPS, greaterThanZero, &warnings)
	emailUserID := sanitizeFile("EMAIL_USER_ID", os.Getenv("EMAIL_USER_ID"), defaultEmailUserID, &warnings)
	emailPollSeconds := parseIntDefault("EMAIL_POLL_SECONDS", defaultEmailPollSeconds, greaterThanZero, &warnings)

	var err error
	AppLocation, err = timeutil.ParseLocation(appTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", appTimezone, err)
	}

	env := EnvConfig{
		HistoryBufferSize:      historySize,
		DedupeWindowMinutes:    dedupeWindow,
		SimilarityThreshold:    similarity,
		FrequencyWindowMinutes: freqWindow,
		FrequencyLimit:         freqLimit,
		NoiseWindowMinutes:     noiseWindow,
		NoiseMaxUrgent:         noiseMax,
		QuietHourStart:         quietStart,
		QuietHourEnd:           quietEnd,
		QuietResumeHour:        quietResume,
		BaseBackoffMinutes:     baseBackoff,
		WorkingHour:            workingHour,
		SimulateLLMFailure:     simulateFailure,
		RulesFile:              rulesFile,
		DecisionLogFile:        decisionLogFile,
		DecisionLogKeep:        decisionLogKeep,
		LogLevel:               logLevel,
		LogFile:                logFile,
		AppTimezone:            appTimezone,
		CLIEnable:              cliEnable,
		WebServerEnable:        webServerEnable,
		WebServerAddress:       webServerAddress,
		WebRPS:                 webRPS,
		EmailUserID:            emailUserID,
		EmailPollSeconds:       emailPollSeconds,
	}

	cfg := &Config{
		Env:      env,
		warnings: warnings,
	}

	return cfg, nil
}

// Warnings возвращает накопленные предупреждения, возникшие при загрузке .env
// (например, когда подставлено значение по умолчанию). Возвращается копия.
func Warnings() []string {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	result := make([]string, len(cfgInstance.warnings))
	copy(result, cfgInstance.warnings)
	return result
}

// Env возвращает EnvConfig из глобального singleton. Это неизменяемый снимок
// на момент последней загрузки; для обновления надо перечитать конфиг целиком.
func Env() EnvConfig {
	return cfgInstance.Env
}

// parseIntDefault читает name как int. Если пусто/некорректно/не проходит
// дополнительную проверку validator — возвращает defaultVal и пишет предупреждение.
// Это позволяет не падать на несущественных настройках и иметь дефолты.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
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

// parseFloatDefault читает name как float64 по тем же правилам, что parseIntDefault.
func parseFloatDefault(name string, defaultVal float64, validator func(float64) bool, warnings *[]string) float64 {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %g", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid number; using default %g", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %g does not satisfy constraints; using default %g", name, v, defaultVal)
		return defaultVal
	}
	return v
}

// parseBoolDefault читает name как bool. Если пусто/некорректно — возвращает defaultVal и пишет предупреждение.
func parseBoolDefault(name string, defaultVal bool, warnings *[]string) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %v", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid boolean; using default %v", name, value, defaultVal)
		return defaultVal
	}
	return v
}

// appendWarningf — служебная функция для накопления предупреждений о некорректных
// переменных окружения. Список затем доступен через Warnings().
func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

// greaterThanZero / hourOfDay / ratioUnit — простые валидаторы значений.
// Используются в parse*Default, чтобы навязать смысловые ограничения без
// падения приложения.
func greaterThanZero(v int) bool { return v > 0 }
func hourOfDay(v int) bool       { return v >= 0 && v <= 23 }
func ratioUnit(v float64) bool   { return v > 0 && v <= 1 }

// sanitizeLogLevel нормализует LOG_LEVEL и ограничивает значения набором
// {debug, info, warn, error}. Всё остальное превращается в defaultLogLevel.
func sanitizeLogLevel(level string, defaultVal string, warnings *[]string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		appendWarningf(warnings, "env LOG_LEVEL is not set; using default %q", defaultVal)
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

// sanitizeFile возвращает валидное строковое значение конфигурации. Если
// переменная не задана, подставляет fallback и пишет предупреждение.
func sanitizeFile(name, value, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, fallback)
		return fallback
	}
	return v
}

// sanitizeTimezoneFlexible проверяет, что значение — корректная IANA-зона или UTC-смещение.
// При неудаче возвращает значение по умолчанию и добавляет предупреждение.
func sanitizeTimezoneFlexible(value string, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		appendWarningf(warnings, "env APP_TIMEZONE is not set; using default %q", fallback)
		return fallback
	}
	if _, err := timeutil.ParseLocation(v); err != nil {
		appendWarningf(warnings, "timezone %q is invalid; using default %q", v, fallback)
		return fallback
	}
	return v
}
