// Package app — верхний уровень сборки и инициализации сервиса триажа уведомлений.
// Здесь связываются конфигурация, конвейер решений, персистентный журнал, почтовый
// интейк и пользовательские поверхности (CLI, веб-панель). Отсюда стартует жизненный
// цикл приложения и обеспечивается корректный shutdown.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"notify-triage/internal/adapters/email"
	"notify-triage/internal/domain/pipeline"
	"notify-triage/internal/domain/rules"
	"notify-triage/internal/domain/schedule"
	"notify-triage/internal/infra/config"
	"notify-triage/internal/infra/decisionlog"
	"notify-triage/internal/infra/logger"
)

// App агрегирует зависимости сервиса и управляет их связью.
// Отвечает за:
//   - журнал решений и его хранилище (bbolt + ретеншен),
//   - движок правил и конвейер решений со всеми стадиями,
//   - почтовый интейк: конвертер писем, источник и поллер,
//   - запуск Runner, который оркестрирует жизненный цикл и graceful shutdown.
type App struct {
	mainCtx        context.Context    // Контекст жизненного цикла приложения.
	mainCancel     context.CancelFunc // Инициирует отмену mainCtx.
	interactiveCLI bool               // Поднимать ли интерактивную консоль (решает main по TTY).

	store     *decisionlog.Store // Персистентный журнал решений.
	rules     *rules.Engine      // Движок декларативных правил: загрузка, матчи, reload.
	engine    *pipeline.Engine   // Конвейер решений: валидация → дедуп → классификация → расписание.
	converter *email.Converter   // Конвертер писем в сырые события конвейера.
	source    *email.QueueSource // Источник писем (in-memory очередь, наполняется извне).
	poller    *email.Poller      // Периодический опрос источника с троттлингом.
	runner    *Runner            // Оркестратор жизненного цикла: узлы, порядок, shutdown.
}

// NewApp создаёт пустой каркас приложения. Фактическая инициализация выполняется в Init().
func NewApp(interactiveCLI bool) *App {
	return &App{
		interactiveCLI: interactiveCLI,
	}
}

// Init собирает подсистемы в правильном порядке: журнал решений, правила,
// конвейер, почтовый интейк. Ошибки инициализации фатальны, кроме загрузки
// правил — с пустым набором сервис остаётся работоспособным.
func (a *App) Init(mainCtx context.Context, mainCancel context.CancelFunc) error {
	a.mainCtx = mainCtx
	a.mainCancel = mainCancel
	env := config.Env()

	// Журнал решений: bbolt-хранилище, удерживающее последние N записей.
	store, err := decisionlog.Open(env.DecisionLogFile, decisionlog.Options{
		Keep: env.DecisionLogKeep,
	})
	if err != nil {
		return fmt.Errorf("open decision log: %w", err)
	}
	a.store = store

	// Правила загружаются не фатально: битый файл не должен ронять сервис.
	a.rules = rules.NewEngine(env.RulesFile)
	if rulesErr := a.rules.Load(); rulesErr != nil {
		logger.Warnf("rules not loaded: %v (continuing with empty ruleset)", rulesErr)
	}

	// Сборка конвейера: окна и пороги из конфигурации, журнал как приёмник
	// решений, плюс отдельная JSONL-лента рядом с bbolt-файлом.
	a.engine = pipeline.New(a.rules, pipeline.Options{
		HistoryBufferSize:   env.HistoryBufferSize,
		DedupeWindow:        time.Duration(env.DedupeWindowMinutes) * time.Minute,
		SimilarityThreshold: env.SimilarityThreshold,
		FrequencyWindow:     time.Duration(env.FrequencyWindowMinutes) * time.Minute,
		FrequencyLimit:      env.FrequencyLimit,
		NoiseWindow:         time.Duration(env.NoiseWindowMinutes) * time.Minute,
		NoiseMaxUrgent:      env.NoiseMaxUrgent,
		Schedule: schedule.Options{
			QuietHourStart:  env.QuietHourStart,
			QuietHourEnd:    env.QuietHourEnd,
			QuietResumeHour: env.QuietResumeHour,
			BaseBackoff:     time.Duration(env.BaseBackoffMinutes) * time.Minute,
			WorkingHour:     env.WorkingHour,
		},
		SimulateLLMFailure: env.SimulateLLMFailure,
		MaxBufferedLogs:    env.DecisionLogKeep,
		Recorder:           store,
		DecisionFeed:       logger.NewFileLogger(decisionFeedPath(env.DecisionLogFile)),
	})

	// Почтовый интейк: конвертер писем, источник-очередь и поллер,
	// скармливающий каждое письмо конвейеру.
	a.converter = email.NewConverter(env.EmailUserID, nil)
	a.source = email.NewQueueSource()
	poller, err := email.NewPoller(email.PollerOptions{
		Source:    a.source,
		Converter: a.converter,
		Interval:  time.Duration(env.EmailPollSeconds) * time.Second,
		Handle: func(raw map[string]any) {
			out := a.engine.ProcessEvent(raw)
			logger.Debugf("email event processed: decision=%s code=%s", out.Decision, out.Code)
		},
	})
	if err != nil {
		return fmt.Errorf("init email poller: %w", err)
	}
	a.poller = poller

	return nil
}

// Run запускает основной цикл приложения: собирает Runner и блокируется
// до остановки. Возвращает ошибку, если запуск узлов не удался.
func (a *App) Run() error {
	logger.Info("Triage service initializing...")

	a.runner = NewRunner(
		a.mainCtx,
		a.mainCancel,
		a.engine,
		a.store,
		a.converter,
		a.poller,
		a.interactiveCLI,
	)

	return a.runner.Run()
}

// decisionFeedPath кладёт JSONL-ленту решений рядом с bbolt-журналом,
// меняя расширение: data/decisions.bbolt -> data/decisions.jsonl.
func decisionFeedPath(dbPath string) string {
	return strings.TrimSuffix(dbPath, filepath.Ext(dbPath)) + ".jsonl"
}
