package web

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"notify-triage/internal/adapters/email"
	"notify-triage/internal/domain/pipeline"
	"notify-triage/internal/infra/config"
	"notify-triage/internal/infra/decisionlog"
	"notify-triage/internal/infra/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server представляет веб-панель сервиса: JSON API для скриптов и
// HTML-дашборд (HTMX) для браузера поверх одного конвейера решений.
type Server struct {
	srv         *http.Server
	auth        *AuthManager
	limiter     *rate.Limiter
	engine      *pipeline.Engine
	store       *decisionlog.Store
	converter   *email.Converter
	rulesPath   string
	tmpl        *template.Template
	decTemplate *template.Template
	ctx         context.Context
	cancel      context.CancelFunc
}

const (
	readTimeout  = 15 * time.Second
	writeTimeout = 15 * time.Second
	idleTimeout  = 60 * time.Second

	cleanExpiredSessionsInterval = 3 * time.Minute
)

// Deps — зависимости веб-сервера: конвейер решений, персистентный журнал
// и конвертер писем (для /api/simulate и /api/email).
type Deps struct {
	Engine    *pipeline.Engine
	Store     *decisionlog.Store
	Converter *email.Converter
}

// NewServer создает новый веб-сервер
func NewServer(deps Deps) *Server {
	// Создаем auth manager с TTL 1 час
	auth := NewAuthManager(time.Hour)

	env := config.Env()
	s := &Server{
		auth:      auth,
		limiter:   rate.NewLimiter(rate.Limit(env.WebRPS), env.WebRPS*2), //nolint:mnd // burst = 2*rate
		engine:    deps.Engine,
		store:     deps.Store,
		converter: deps.Converter,
		rulesPath: env.RulesFile,
	}

	// Загружаем шаблоны
	s.loadTemplates()

	// Настраиваем роутинг
	mux := http.NewServeMux()

	// Публичные эндпоинты (без авторизации)
	mux.HandleFunc("/health", s.handleHealth)

	// Защищенные эндпоинты (требуют авторизации)
	protected := http.NewServeMux()
	protected.HandleFunc("/", s.handleDashboard)
	protected.HandleFunc("/decisions", s.handleDecisionsPage)
	protected.HandleFunc("/rules", s.handleRulesPage)

	// JSON API для скриптовых клиентов
	protected.HandleFunc("/api/process", s.handleAPIProcess)
	protected.HandleFunc("/api/rules", s.handleAPIRules)
	protected.HandleFunc("/api/simulate-failure", s.handleAPISimulateFailure)
	protected.HandleFunc("/api/notifications", s.handleAPINotifications)
	protected.HandleFunc("/api/simulate", s.handleAPISimulate)
	protected.HandleFunc("/api/email", s.handleAPIEmail)
	protected.HandleFunc("/api/stats", s.handleAPIStats)

	// API эндпоинты для HTMX
	protected.HandleFunc("/api/decisions", s.handleAPIDecisions)
	protected.HandleFunc("/api/status", s.handleAPIStatus)
	protected.HandleFunc("/api/reload", s.handleAPIReload)
	protected.HandleFunc("/api/version", s.handleAPIVersion)

	// Применяем middleware
	mux.Handle("/", s.authMiddleware(protected))

	// HTTP сервер
	s.srv = &http.Server{
		Addr:         env.WebServerAddress,
		Handler:      loggingMiddleware(s.rateLimitMiddleware(mux)),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	return s
}

// Handler возвращает корневой обработчик сервера: маршрутизация вместе со
// всеми middleware. Start ничего не добавляет поверх него.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start запускает веб-сервер
func (s *Server) Start() error {
	logger.Info("Starting web server", zap.String("address", s.srv.Addr))

	// Запускаем фоновую очистку истекших сессий
	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.cleanupLoop(s.ctx)

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server error: %w", err)
	}
	return nil
}

// Shutdown корректно останавливает веб-сервер
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down web server...")
	if s.cancel != nil {
		s.cancel()
	}
	return s.srv.Shutdown(ctx)
}

// cleanupLoop периодически очищает истекшие сессии
func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanExpiredSessionsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.auth.CleanExpiredSessions()
		}
	}
}

// GetAuthToken возвращает текущий токен авторизации
func (s *Server) GetAuthToken() string {
	return s.auth.GetCurrentToken()
}

// GenerateAuthToken генерирует новый токен авторизации
func (s *Server) GenerateAuthToken() string {
	token := s.auth.GenerateToken()
	logger.Info("Generated new auth token for web interface")
	return token
}

// handleHealth проверка здоровья сервера
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	writeResponse(w, []byte("OK"))
}

// loadTemplates загружает HTML шаблоны
func (s *Server) loadTemplates() {
	// Основные шаблоны страниц
	s.tmpl = template.Must(template.New("").Parse(layoutTemplate))
	template.Must(s.tmpl.Parse(dashboardTemplate))
	template.Must(s.tmpl.Parse(decisionsTemplate))
	template.Must(s.tmpl.Parse(rulesTemplate))

	// Шаблоны ленты решений с helper функциями
	s.decTemplate = template.Must(template.New("").Funcs(templateFuncs).Parse(decisionEntryTemplate))
	template.Must(s.decTemplate.Parse(decisionsPaginationTemplate))
	template.Must(s.decTemplate.Parse(decisionsContainerTemplate))
}
