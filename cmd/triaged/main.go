package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"notify-triage/internal/app"
	"notify-triage/internal/infra/config"
	"notify-triage/internal/infra/logger"
	"notify-triage/internal/infra/pr"
)

func main() {
	if err := pr.Init(); err != nil {
		logger.Fatal("failed to assigning stdout and stderr", zap.Error(err))
	}

	// envPath определяет расположение .env с общими настройками.
	envPath := flag.String("env", "assets/.env", "path to .env file")
	flag.Parse()

	// config.Load загружает конфигурацию из .env и переменных окружения.
	if err := config.Load(*envPath); err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	// Применяем часовую зону приложения (поддерживает IANA и UTC-смещение). Влияет глобально на time.Local.
	time.Local = config.AppLocation //nolint:reassign // намеренно задаём часовую зону процесса (приложение работает в выбранной TZ)

	// logger.Init задаёт уровень, SetFile подключает ротируемый файл (если задан),
	// а SetWriters перенаправляет выводы в подсистему pr (чтобы видеть логи в CLI UI).
	logger.Init(config.Env().LogLevel)
	if logFile := config.Env().LogFile; logFile != "" {
		logger.SetFile(logFile)
	}
	logger.SetWriters(pr.Stdout(), pr.Stderr())
	for _, msg := range config.Warnings() {
		logger.Warn(msg)
	}

	// Интерактивная консоль имеет смысл только на настоящем терминале.
	interactive := config.Env().CLIEnable && term.IsTerminal(int(os.Stdin.Fd()))
	if config.Env().CLIEnable && !interactive {
		logger.Warn("CLI_ENABLE is set but stdin is not a terminal, console disabled")
	}

	// Контекст с обработкой системных сигналов (Ctrl+C/SIGTERM). Важно: stop() нужно вызвать, чтобы снять подписку.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// Собираем приложение и передаём ему контекст жизненного цикла и stop как внешнюю CancelFunc.
	a := app.NewApp(interactive)
	if iniErr := a.Init(ctx, stop); iniErr != nil {
		stop()
		logger.Fatal("app init failed", zap.Error(iniErr))
	}

	// Запускаем основной цикл; блокируется до shutdown. Ошибки — фатальны, инициируем остановку и выходим.
	if runErr := a.Run(); runErr != nil {
		stop()
		logger.Fatal("app run failed", zap.Error(runErr))
	}
	// Освобождаем обработчик сигналов и закрываем ресурсы bootstrap-уровня.
	stop()
	logger.Info("Graceful shutdown complete")
}
