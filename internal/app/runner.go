// Package app реализует верхний уровень управления жизненным циклом сервиса.
// Файл runner.go — точка оркестрации: здесь подсистемы регистрируются как узлы
// менеджера жизненного цикла, запускаются в порядке зависимостей и гасятся в
// обратном порядке. Бизнес-назначение: гарантировать, что журнал решений поднят
// раньше всех, кто в него пишет, и остановлен последним — чтобы очередь записи
// успела опустеть до закрытия bbolt.
package app

import (
	"context"
	"time"

	"notify-triage/internal/adapters/cli"
	"notify-triage/internal/adapters/email"
	"notify-triage/internal/domain/pipeline"
	"notify-triage/internal/infra/config"
	"notify-triage/internal/infra/decisionlog"
	"notify-triage/internal/infra/lifecycle"
	"notify-triage/internal/infra/logger"
	"notify-triage/internal/web"

	"github.com/go-faster/errors"
)

// Runner инкапсулирует сценарий запуска и остановки подсистем сервиса.
// Отвечает за:
//   - регистрацию узлов в менеджере жизненного цикла с явными зависимостями,
//   - линейный запуск: журнал решений → веб-панель → CLI → почтовый поллер,
//   - корректное завершение в обратном порядке (поллер гаснет первым, журнал — последним),
//   - выдачу стартового токена веб-панели в лог.
type Runner struct {
	mainCtx        context.Context    // Внешний контекст процесса: отменяется по Ctrl+C/сигналам.
	mainCancel     context.CancelFunc // Функция, инициирующая общий shutdown (используется из CLI).
	engine         *pipeline.Engine   // Конвейер решений: общая точка входа для всех поверхностей.
	store          *decisionlog.Store // Персистентный журнал решений (bbolt).
	converter      *email.Converter   // Конвертер писем, нужен веб-панели и CLI для simulate.
	poller         *email.Poller      // Поллер почтового источника.
	interactiveCLI bool               // Регистрировать ли CLI-узел (main уже проверил TTY).

	mgr        *lifecycle.Manager // Менеджер узлов: зависимости, порядок, shutdown.
	webServer  *web.Server        // Веб-панель управления, nil если выключена.
	cliService *cli.Service       // Интерактивная консоль, nil вне терминала.
}

const (
	webServerShutdownTimeout = 10 * time.Second
)

// Имена узлов жизненного цикла. Зависимости ссылаются на них, поэтому
// держим их константами, а не строками по месту.
const (
	nodeDecisionLog = "decision_log"
	nodeEmailPoller = "email_poller"
	nodeWebServer   = "web_server"
	nodeCLI         = "cli"
)

// NewRunner подготавливает Runner с переданными зависимостями: конвейер, журнал,
// почтовый интейк. Возвращает объект, готовый к запуску Run().
func NewRunner(
	mainCtx context.Context,
	mainCancel context.CancelFunc,
	engine *pipeline.Engine,
	store *decisionlog.Store,
	converter *email.Converter,
	poller *email.Poller,
	interactiveCLI bool,
) *Runner {
	return &Runner{
		mainCtx:        mainCtx,
		mainCancel:     mainCancel,
		engine:         engine,
		store:          store,
		converter:      converter,
		poller:         poller,
		interactiveCLI: interactiveCLI,
	}
}

// Run — главный цикл сервиса. Регистрирует узлы, запускает их с учётом
// зависимостей и блокируется до отмены внешнего контекста, после чего
// останавливает всё в обратном порядке. Ошибки остановки не фатальны:
// они уже залогированы по узлам, процесс завершается штатно.
func (r *Runner) Run() error {
	r.mgr = lifecycle.New(r.mainCtx)

	if err := r.registerNodes(); err != nil {
		return errors.Wrap(err, "register lifecycle nodes")
	}

	if err := r.mgr.StartAll(); err != nil {
		// Частично поднятый сервис не нужен: гасим уже запущенные узлы.
		if stopErr := r.mgr.Shutdown(); stopErr != nil {
			logger.Errorf("shutdown after failed start: %v", stopErr)
		}
		return errors.Wrap(err, "start services")
	}

	logger.Info("Triage service running...")

	<-r.mainCtx.Done()
	logger.Debug("Shutdown signal received, stopping runner...")
	if err := r.mgr.Shutdown(); err != nil {
		logger.Errorf("shutdown finished with errors: %v", err)
	}
	return nil
}

// registerNodes описывает граф подсистем. Все узлы висят на корне дерева
// контекстов; порядок задаётся зависимостями, а не порядком регистрации.
func (r *Runner) registerNodes() error {
	// Журнал решений — фундамент: в него пишут конвейер и, через него, все поверхности.
	if err := r.mgr.Register(nodeDecisionLog, "", nil,
		func(_ context.Context) (context.Context, error) {
			r.store.Start()
			return nil, nil
		},
		func(_ context.Context) error {
			return r.store.Stop()
		},
	); err != nil {
		return err
	}

	// Почтовый поллер кормит конвейер, значит журнал должен быть уже поднят.
	if err := r.mgr.Register(nodeEmailPoller, "", []string{nodeDecisionLog},
		func(ctx context.Context) (context.Context, error) {
			r.poller.Start(ctx)
			return nil, nil
		},
		func(_ context.Context) error {
			r.poller.Stop()
			return nil
		},
	); err != nil {
		return err
	}

	webEnabled := config.Env().WebServerEnable
	if webEnabled {
		r.webServer = web.NewServer(web.Deps{
			Engine:    r.engine,
			Store:     r.store,
			Converter: r.converter,
		})
		if err := r.mgr.Register(nodeWebServer, "", []string{nodeDecisionLog},
			r.startWebServer, r.stopWebServer); err != nil {
			return err
		}
	}

	if r.interactiveCLI {
		deps := []string{nodeDecisionLog}
		if webEnabled {
			// Команде token нужен уже слушающий веб-сервер.
			deps = append(deps, nodeWebServer)
		}
		r.cliService = cli.NewService(cli.Deps{
			Engine:    r.engine,
			Store:     r.store,
			Converter: r.converter,
			Web:       r.webServer,
		}, r.mainCancel)
		if err := r.mgr.Register(nodeCLI, "", deps,
			func(ctx context.Context) (context.Context, error) {
				r.cliService.Start(ctx)
				return nil, nil
			},
			func(_ context.Context) error {
				r.cliService.Stop()
				return nil
			},
		); err != nil {
			return err
		}
	}

	return nil
}

// startWebServer поднимает HTTP-слушатель в фоне и сразу печатает URL с токеном,
// чтобы панель была доступна без обращения к CLI-команде token.
func (r *Runner) startWebServer(_ context.Context) (context.Context, error) {
	go func() {
		if err := r.webServer.Start(); err != nil {
			logger.Errorf("web server error: %v", err)
		}
	}()
	logger.Infof("web dashboard: http://%s/?token=%s",
		config.Env().WebServerAddress, r.webServer.GenerateAuthToken())
	return nil, nil
}

// stopWebServer закрывает HTTP-сервер. Контекст узла к этому моменту уже
// отменён, поэтому на дожитие запросов берётся собственный таймаут.
func (r *Runner) stopWebServer(_ context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), webServerShutdownTimeout)
	defer cancel()
	return r.webServer.Shutdown(shutdownCtx)
}
