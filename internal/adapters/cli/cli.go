// Package cli — интерактивная командная консоль сервиса триажа уведомлений.
// Сервис стартует фоном, читает команды из readline и взаимодействует с
// остальными подсистемами: конвейером решений, журналом решений и веб-панелью.
// Поддерживается корректная интеграция в lifecycle: Start/Stop идемпотентны.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"notify-triage/internal/adapters/email"
	"notify-triage/internal/domain/pipeline"
	"notify-triage/internal/infra/clock"
	"notify-triage/internal/infra/config"
	"notify-triage/internal/infra/decisionlog"
	"notify-triage/internal/infra/logger"
	"notify-triage/internal/infra/pr"
	"notify-triage/internal/infra/timeutil"
	versioninfo "notify-triage/internal/support/version"
	"notify-triage/internal/web"
)

// commandDescriptor описывает одну CLI-команду: её имя и краткое описание для help.
type commandDescriptor struct {
	name        string
	description string
}

// commandDescriptors — реестр доступных команд. Рендерится в help и подсказки.
// Важно: имена должны совпадать с кейсами в handleCommand().
var (
	commandDescriptors = []commandDescriptor{
		{name: "help", description: "Show available commands with short descriptions"},
		{name: "process", description: "Run raw event JSON (object or array) through the pipeline"},
		{name: "simulate", description: "Simulate an email: simulate <subject> | <body>"},
		{name: "stats", description: "Show engine counters and decision log size"},
		{name: "recent", description: "Print recent decisions from the journal: recent [n]"},
		{name: "rules", description: "List active operator rules"},
		{name: "reload", description: "Reload rules file and refresh the engine"},
		{name: "failure", description: "Toggle classifier failure simulation: failure on|off"},
		{name: "reset", description: "Reset engine state (history, counters, session log)"},
		{name: "token", description: "Print the tokenized web panel URL"},
		{name: "version", description: "Print service version"},
		{name: "exit", description: "Stop CLI and terminate the service"},
	}
)

// defaultRecentCount — сколько записей печатает recent без аргумента.
const defaultRecentCount = 10

// Service инкапсулирует CLI и интегрируется в lifecycle приложения.
// Имеет собственный cancel, запускает цикл чтения команд в отдельной горутине
// и синхронно закрывается через Stop(). Потокобезопасность обеспечивается
// дисциплиной запуска/остановки и отсутствием внешних мутаций.
type Service struct {
	engine    *pipeline.Engine   // конвейер решений; нужен для process/simulate/stats/reset
	store     *decisionlog.Store // персистентный журнал решений; нужен для recent/stats
	converter *email.Converter   // конвертер писем в события (команда simulate)
	web       *web.Server        // веб-панель, может быть nil (команда token)
	stopApp   context.CancelFunc // внешняя отмена приложения (команда exit и Ctrl-C на пустой строке)
	cancel    context.CancelFunc // локальная отмена run-цикла CLI
	wg        sync.WaitGroup     // ожидание завершения фоновой горутины run
	onceStart sync.Once          // идемпотентный запуск
	onceStop  sync.Once          // идемпотентная остановка
}

// Deps — зависимости CLI-сервиса. Web может быть nil, если панель выключена.
type Deps struct {
	Engine    *pipeline.Engine
	Store     *decisionlog.Store
	Converter *email.Converter
	Web       *web.Server
}

// NewService создаёт CLI-сервис. Параметр stopApp используется как «глобальная»
// остановка приложения (команда exit, Ctrl-C на пустой строке).
func NewService(deps Deps, stopApp context.CancelFunc) *Service {
	return &Service{
		engine:    deps.Engine,
		store:     deps.Store,
		converter: deps.Converter,
		web:       deps.Web,
		stopApp:   stopApp,
	}
}

// Start запускает основной цикл CLI в отдельной горутине. Повторные вызовы
// безопасно игнорируются. Контекст используется как родительский для run-цикла.
func (s *Service) Start(ctx context.Context) {
	s.onceStart.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(runCtx)
		}()
	})
}

// Stop завершает CLI: посылает внешнюю остановку приложения (если предусмотрено),
// прерывает readline, отменяет локальный контекст и дожидается завершения run-цикла.
func (s *Service) Stop() {
	s.onceStop.Do(func() {
		if s.stopApp != nil {
			s.stopApp()
		}
		if rl := pr.Rl(); rl != nil {
			pr.InterruptReadline()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// run — основной цикл обработчика CLI. Печатает подсказки, устанавливает обработчики
// клавиш и в цикле читает команды построчно, передавая их в handleCommand().
func (s *Service) run(ctx context.Context) {
	logger.Debug("CLI run started")
	pr.SetPrompt("> ")
	// Устанавливаем промпт и выводим краткую справку, чтобы пользователь не блуждал в темноте.
	pr.Println("CLI started. Enter commands:", joinCommandNames(commandDescriptors))
	pr.Println("Press '?' or type 'help' for detailed descriptions.")
	installKeyHandlers(s.stopApp)

	defer func() {
		if rl := pr.Rl(); rl != nil {
			_ = rl.Close()
		}
	}()

	// Главный цикл чтения команд. Выход — по отмене контекста или по EOF от readline.
	for {
		if ctx.Err() != nil {
			logger.Debug("CLI: context canceled")
			return
		}

		// Блокирующее чтение одной строки с учётом интерактивных обработчиков клавиш.
		line, err := pr.Rl().Readline()
		if err != nil {
			logger.Debug("CLI: deactivated (io.EOF)")
			return
		}

		cmd := strings.TrimSpace(line)
		if s.handleCommand(cmd) {
			logger.Debugf("CLI: command %q requested exit", cmd)
			return
		}
	}
}

// installKeyHandlers подключает обработчики специальных клавиш для readline:
//   - '?' — печать help без отправки символа в текущую строку;
//   - Ctrl-C на пустой строке — мягкая остановка приложения (stopApp) и прерывание readline;
//   - Ctrl-C на непустой строке — очистка текущей строки (как в типичных CLI).
func installKeyHandlers(stop context.CancelFunc) {
	rl := pr.Rl()
	if rl == nil || rl.Config == nil {
		return
	}

	// Сохраняем предыдущий listener, чтобы не ломать поведение по умолчанию.
	prev := rl.Config.Listener
	rl.Config.SetListener(func(line []rune, pos int, key rune) ([]rune, int, bool) {
		// Быстрая справка по командам по нажатию '?'.
		if key == '?' {
			printCommandHelp()
			if pos > 0 && pos <= len(line) {
				trimmed := append([]rune{}, line[:pos-1]...)
				trimmed = append(trimmed, line[pos:]...)
				return trimmed, pos - 1, true
			}
			return line, pos, true
		}
		// Ctrl-C (ETX): особое поведение — либо остановка приложения, либо очистка строки.
		if key == 3 { //nolint: mnd // Ctrl-C (ETX, rune value 3)
			trimmed := strings.TrimSpace(string(line))
			if trimmed == "" {
				if stop != nil {
					stop()
				}
				pr.InterruptReadline()
				return line, pos, true
			} else {
				// Clear the line if not empty (typical readline behavior)
				return []rune{}, 0, true
			}
		}
		if prev != nil {
			return prev.OnChange(line, pos, key)
		}
		return nil, 0, false
	})
}

// printCommandHelp печатает список поддерживаемых команд и их описания.
func printCommandHelp() {
	for _, text := range buildCommandHelpLines(commandDescriptors) {
		pr.Println(text)
	}
}

// handleCommand разбирает введённую команду и выполняет соответствующее действие.
// Возвращает true, если команда инициирует завершение CLI ("exit").
func (s *Service) handleCommand(cmd string) bool {
	verb, rest, _ := strings.Cut(cmd, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "help":
		printCommandHelp()
	case "process":
		s.handleProcess(rest)
	case "simulate":
		s.handleSimulate(rest)
	case "stats":
		s.handleStats()
	case "recent":
		s.handleRecent(rest)
	case "rules":
		s.handleRules()
	case "reload":
		if err := s.engine.ReloadRules(); err != nil {
			pr.ErrPrintln("reload error:", err)
		} else {
			pr.Printf("rules reloaded: %d rule(s) active\n", len(s.engine.Rules().Rules()))
		}
	case "failure":
		s.handleFailure(rest)
	case "reset":
		s.engine.Reset()
		pr.Println("engine state reset")
	case "token":
		s.handleToken()
	case "version":
		pr.ErrPrintln(fmt.Sprintf("%s v%s", versioninfo.Name, versioninfo.Version))
	case "exit":
		if s.stopApp != nil {
			s.stopApp()
		}
		return true
	case "":
		// ignore
	default:
		pr.Println("unknown command:", verb)
	}
	return false
}

// handleProcess прогоняет через конвейер сырое событие (JSON-объект) или
// массив событий. Результаты печатаются по одному, как их вернул движок.
func (s *Service) handleProcess(arg string) {
	if arg == "" {
		pr.ErrPrintln("usage: process <json>  (single event object or array of events)")
		return
	}

	var raws []map[string]any
	if strings.HasPrefix(arg, "[") {
		if err := json.Unmarshal([]byte(arg), &raws); err != nil {
			pr.ErrPrintln("process error:", err)
			return
		}
	} else {
		var one map[string]any
		if err := json.Unmarshal([]byte(arg), &one); err != nil {
			pr.ErrPrintln("process error:", err)
			return
		}
		raws = []map[string]any{one}
	}

	for _, out := range s.engine.ProcessBatch(raws) {
		pr.PP(out)
	}
}

// handleSimulate строит письмо из "<subject> | <body>" и прогоняет его через
// конвертер и конвейер. Без разделителя вся строка считается темой.
func (s *Service) handleSimulate(arg string) {
	if arg == "" {
		pr.ErrPrintln("usage: simulate <subject> | <body>")
		return
	}

	subject, body := arg, ""
	if before, after, found := strings.Cut(arg, "|"); found {
		subject = strings.TrimSpace(before)
		body = strings.TrimSpace(after)
	}

	parsed := email.Simulated(subject, body, "cli@local", clock.NowUTC())
	out := s.engine.ProcessEvent(s.converter.ToEvent(parsed))
	pr.PP(out)
}

// handleStats печатает счётчики движка и состояние журнала решений.
func (s *Service) handleStats() {
	st := s.engine.Stats()
	pr.Printf("Engine: processed=%d now=%d later=%d never=%d invalid=%d duplicates=%d\n",
		st.Processed, st.Now, st.Later, st.Never, st.Invalid, st.Duplicates)
	pr.Printf("Decision log: records=%d dropped=%d\n", s.store.Count(), s.store.Dropped())
	if s.engine.LLMFailureEnabled() {
		pr.Println("Classifier failure simulation: ON")
	}
}

// handleRecent печатает последние n записей журнала, самые свежие первыми.
func (s *Service) handleRecent(arg string) {
	n := defaultRecentCount
	if arg != "" {
		parsed, err := strconv.Atoi(arg)
		if err != nil || parsed < 1 {
			pr.ErrPrintln("usage: recent [n]  (n is a positive number)")
			return
		}
		n = parsed
	}

	entries, err := s.store.Recent(n)
	if err != nil {
		pr.ErrPrintln("recent error:", err)
		return
	}
	if len(entries) == 0 {
		pr.Println("No decisions recorded yet.")
		return
	}

	loc := config.AppLocation
	for _, e := range entries {
		ts := timeutil.NormalizeDisplayTimestamp(e.Timestamp, loc)
		pr.Printf("[%s] [%s] [%s] %s/%s %s\n", ts, e.Decision, e.Code, e.UserID, e.EventType, e.Reason)
	}
	pr.Printf("Total printed: %d\n", len(entries))
}

// handleRules выводит активные правила в порядке применения.
func (s *Service) handleRules() {
	active := s.engine.Rules().Rules()
	if len(active) == 0 {
		pr.Println("No operator rules loaded.")
		return
	}
	for _, r := range active {
		desc := r.Description
		if desc == "" {
			desc = "<no description>"
		}
		pr.Printf("%s (priority %d): %s\n", r.ID, r.Priority, desc)
	}
	pr.Printf("Total rules: %d\n", len(active))
}

// handleFailure переключает имитацию отказа классификатора.
func (s *Service) handleFailure(arg string) {
	switch arg {
	case "on":
		s.engine.SetLLMFailure(true)
		pr.Println("classifier failure simulation enabled")
	case "off":
		s.engine.SetLLMFailure(false)
		pr.Println("classifier failure simulation disabled")
	default:
		pr.ErrPrintln("usage: failure on|off")
	}
}

// handleToken печатает URL веб-панели с токеном авторизации.
func (s *Service) handleToken() {
	if s.web == nil {
		pr.ErrPrintln("web server is not running")
		return
	}
	token := s.web.GetAuthToken()
	if token == "" {
		token = s.web.GenerateAuthToken()
	}
	pr.Printf("http://%s/?token=%s\n", config.Env().WebServerAddress, token)
}

// joinCommandNames собирает строку имён команд, разделённых запятыми, для короткой подсказки.
func joinCommandNames(descriptors []commandDescriptor) string {
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.name)
	}
	return strings.Join(names, ", ")
}

// buildCommandHelpLines генерирует строки помощи вида "<name> - <description>".
func buildCommandHelpLines(descriptors []commandDescriptor) []string {
	lines := make([]string, 0, len(descriptors)+1)
	lines = append(lines, "Available commands:")
	for _, descriptor := range descriptors {
		lines = append(lines, fmt.Sprintf("  %-8s - %s", descriptor.name, descriptor.description))
	}
	return lines
}
