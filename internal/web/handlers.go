package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"notify-triage/internal/adapters/email"
	"notify-triage/internal/domain/events"
	"notify-triage/internal/domain/rules"
	"notify-triage/internal/infra/clock"
	"notify-triage/internal/infra/logger"
	"notify-triage/internal/infra/storage"
	"notify-triage/internal/support/version"
)

// PageData - данные для рендеринга страницы
type PageData struct {
	Title string
	Page  string
	Data  any
}

// maxBodyBytes ограничивает тело запроса: события и правила — небольшие
// JSON-документы, всё крупнее похоже на ошибку клиента.
const maxBodyBytes = 1 << 20

// defaultNotificationsLimit — сколько записей журнала отдаёт
// /api/notifications без параметра limit.
const defaultNotificationsLimit = 100

// handleDashboard отображает главную страницу
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := PageData{
		Title: "Dashboard",
		Page:  "dashboard",
	}

	if err := s.tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		logger.Errorf("Error rendering dashboard: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// handleDecisionsPage отображает страницу ленты решений
func (s *Server) handleDecisionsPage(w http.ResponseWriter, r *http.Request) {
	data := PageData{
		Title: "Decisions",
		Page:  "decisions",
	}

	if err := s.tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		logger.Errorf("Error rendering decisions: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// handleRulesPage отображает страницу текущих правил
func (s *Server) handleRulesPage(w http.ResponseWriter, r *http.Request) {
	doc, err := json.MarshalIndent(rulesDoc{Rules: s.engine.Rules().Rules()}, "", "  ")
	if err != nil {
		logger.Errorf("Error rendering rules: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data := PageData{
		Title: "Rules",
		Page:  "rules",
		Data:  string(doc),
	}

	if err := s.tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		logger.Errorf("Error rendering rules: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// JSON API

// rulesDoc — корневой формат документа правил на чтение и запись.
type rulesDoc struct {
	Rules []rules.Rule `json:"rules"`
}

// batchSummary — сводка по батчу событий в ответе /api/process.
type batchSummary struct {
	Total int `json:"total"`
	Now   int `json:"now"`
	Later int `json:"later"`
	Never int `json:"never"`
}

// readBody вычитывает тело запроса с ограничением размера.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// handleAPIProcess прогоняет батч событий через конвейер. Состояние движка
// (история, счётчики, сессионный журнал) сбрасывается перед батчем, поэтому
// каждый запрос обрабатывается с чистого листа и результат детерминирован.
func (s *Server) handleAPIProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("read body: %v", err)})
		return
	}

	var req struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid JSON: %v", err)})
		return
	}

	s.engine.Reset()
	results := s.engine.ProcessBatch(req.Events)

	summary := batchSummary{Total: len(results)}
	for _, out := range results {
		switch out.Decision {
		case events.DecisionNow:
			summary.Now++
		case events.DecisionLater:
			summary.Later++
		case events.DecisionNever:
			summary.Never++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"summary": summary,
	})
}

// handleAPIRules обслуживает документ правил: GET отдаёт текущий набор,
// POST валидирует новый документ, атомарно пишет его в RULES_FILE и
// перечитывает движок. При ошибке перечитывания файл откатывается.
func (s *Server) handleAPIRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, rulesDoc{Rules: s.engine.Rules().Rules()})

	case http.MethodPost:
		body, err := readBody(w, r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("read body: %v", err)})
			return
		}
		if _, err := rules.Parse(body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid rules document: %v", err)})
			return
		}

		// Предыдущее содержимое нужно для отката; отсутствие файла — не ошибка.
		prev, readErr := os.ReadFile(s.rulesPath)
		hadFile := readErr == nil

		if err := storage.AtomicWriteFile(s.rulesPath, body); err != nil {
			logger.Errorf("Rules update: write failed: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to persist rules"})
			return
		}

		if err := s.engine.ReloadRules(); err != nil {
			logger.Errorf("Rules update: reload failed, rolling back: %v", err)
			if hadFile {
				if rbErr := storage.AtomicWriteFile(s.rulesPath, prev); rbErr != nil {
					logger.Errorf("Rules update: rollback write failed: %v", rbErr)
				} else if rbErr := s.engine.ReloadRules(); rbErr != nil {
					logger.Errorf("Rules update: rollback reload failed: %v", rbErr)
				}
			}
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": fmt.Sprintf("reload rules: %v", err)})
			return
		}

		loaded := s.engine.Rules().Rules()
		logger.Infof("Rules updated via web: %d rule(s) active", len(loaded))
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rules_loaded": len(loaded)})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAPISimulateFailure переключает имитацию отказа классификатора
func (s *Server) handleAPISimulateFailure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("read body: %v", err)})
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid JSON: %v", err)})
		return
	}

	s.engine.SetLLMFailure(req.Enabled)
	logger.Infof("Classifier failure simulation set to %t via web", req.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"simulate_failure": req.Enabled})
}

// handleAPINotifications отдаёт последние записи персистентного журнала
// решений, самая свежая первой. Параметр limit ограничивает выборку
// (по умолчанию 100).
func (s *Server) handleAPINotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultNotificationsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid limit %q", v)})
			return
		}
		limit = n
	}

	entries, err := s.store.Recent(limit)
	if err != nil {
		logger.Errorf("Notifications: read decision log: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to read decision log"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": entries,
		"count":         len(entries),
	})
}

// handleAPISimulate строит синтетическое письмо из subject/body/sender и
// прогоняет его через конвертер и конвейер.
func (s *Server) handleAPISimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("read body: %v", err)})
		return
	}

	var req struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
		Sender  string `json:"sender"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid JSON: %v", err)})
		return
	}
	if req.Subject == "" && req.Body == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "subject or body is required"})
		return
	}

	parsed := email.Simulated(req.Subject, req.Body, req.Sender, clock.NowUTC())
	outcome := s.engine.ProcessEvent(s.converter.ToEvent(parsed))
	writeJSON(w, http.StatusOK, outcome)
}

// handleAPIEmail принимает уже разобранное письмо (message_id, sender,
// subject, body, timestamp) и прогоняет его через конвертер и конвейер.
func (s *Server) handleAPIEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("read body: %v", err)})
		return
	}

	var parsed email.Parsed
	if err := json.Unmarshal(body, &parsed); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid JSON: %v", err)})
		return
	}
	if parsed.Subject == "" && parsed.Body == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "subject or body is required"})
		return
	}

	outcome := s.engine.ProcessEvent(s.converter.ToEvent(parsed))
	writeJSON(w, http.StatusOK, outcome)
}

// handleAPIStats отдаёт счётчики движка и журнала решений
func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"engine": s.engine.Stats(),
		"decision_log": map[string]any{
			"records": s.store.Count(),
			"dropped": s.store.Dropped(),
		},
		"simulate_failure": s.engine.LLMFailureEnabled(),
	})
}

// API Handlers (HTMX)

// handleAPIReload перечитывает правила из файла
func (s *Server) handleAPIReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.engine.ReloadRules(); err != nil {
		logger.Errorf("Reload rules failed: %v", err)
		writeResponse(w, []byte(fmt.Sprintf(`<p class="text-red-600">Error: %v</p>`, err)))
		return
	}

	html := fmt.Sprintf(`<div class="space-y-2">
		<p class="text-green-600 font-semibold">✓ Rules reloaded successfully</p>
		<p class="text-sm text-gray-500">%d rule(s) active, configured in <code class="bg-gray-100 px-1">%s</code></p>
	</div>`, len(s.engine.Rules().Rules()), s.rulesPath)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	writeResponse(w, []byte(html))
}

// handleAPIStatus возвращает сводку движка для панели дашборда
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Stats()

	failure := `<span class="text-green-600">off</span>`
	if s.engine.LLMFailureEnabled() {
		failure = `<span class="text-red-600 font-semibold">ON</span>`
	}

	html := fmt.Sprintf(`
		<div class="space-y-2">
			<p class="text-sm"><span class="font-semibold">Processed:</span> %d</p>
			<p class="text-sm"><span class="font-semibold">NOW:</span> %d</p>
			<p class="text-sm"><span class="font-semibold">LATER:</span> %d</p>
			<p class="text-sm"><span class="font-semibold">NEVER:</span> %d</p>
			<p class="text-sm"><span class="font-semibold">Invalid:</span> %d</p>
			<p class="text-sm"><span class="font-semibold">Duplicates:</span> %d</p>
			<p class="text-sm"><span class="font-semibold">Journal records:</span> %d</p>
			<p class="text-sm"><span class="font-semibold">Classifier failure:</span> %s</p>
		</div>
	`,
		st.Processed, st.Now, st.Later, st.Never, st.Invalid, st.Duplicates,
		s.store.Count(), failure,
	)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	writeResponse(w, []byte(html))
}

// handleAPIVersion возвращает версию приложения
func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	html := fmt.Sprintf(`<p class="text-sm"><span class="font-semibold">Version:</span> %s v%s</p>`,
		version.Name, version.Version)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	writeResponse(w, []byte(html))
}
