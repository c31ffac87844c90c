package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"notify-triage/internal/infra/config"
	"notify-triage/internal/infra/decisionlog"
	"notify-triage/internal/infra/logger"
	"notify-triage/internal/infra/timeutil"
)

// DecisionRow представляет одну запись ленты решений в готовом для
// отображения виде (времена приведены к таймзоне приложения).
type DecisionRow struct {
	Timestamp     string
	UserID        string
	EventType     string
	Decision      string
	Code          string
	Reason        string
	ScheduledTime string
}

const (
	decisionsPageSize  = 50
	paginationMaxPages = 100
)

// handleAPIDecisions возвращает ленту решений с пагинацией
func (s *Server) handleAPIDecisions(w http.ResponseWriter, r *http.Request) {
	// Парсим номер страницы
	page := parsePage(r)

	// Читаем журнал
	rows, totalPages, readErr := s.readDecisions(page, decisionsPageSize)
	if readErr != nil {
		logger.Errorf("Failed to read decision log: %v", readErr)
		writeResponse(w, []byte(fmt.Sprintf(`<p class="text-red-600">Error reading decisions: %v</p>`, readErr)))
		return
	}

	if len(rows) == 0 {
		writeResponse(w, []byte(`<p class="text-gray-500">No decisions recorded yet</p>`))
		return
	}

	// Подготавливаем данные для шаблона
	data := DecisionsPageData{
		Entries:    make([]DecisionRowWithClass, len(rows)),
		Pagination: buildPagination(page, totalPages),
	}

	// Добавляем CSS классы к записям
	for i, row := range rows {
		data.Entries[i] = DecisionRowWithClass{
			DecisionRow:   row,
			DecisionClass: getDecisionClass(row.Decision),
		}
	}

	// Рендерим шаблон
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.decTemplate.ExecuteTemplate(w, "decisions-container", data); err != nil {
		logger.Errorf("Failed to render decisions template: %v", err)
		writeResponse(w, []byte(fmt.Sprintf(`<p class="text-red-600">Template error: %v</p>`, err)))
	}
}

// parsePage извлекает номер страницы из запроса
func parsePage(r *http.Request) int {
	pageStr := r.URL.Query().Get("page")
	if pageStr == "" {
		return 1
	}

	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		return 1
	}

	if page > paginationMaxPages {
		return paginationMaxPages
	}

	return page
}

// readDecisions выбирает страницу записей журнала, самые свежие первыми.
// Журнал ограничен DECISION_LOG_KEEP записями, поэтому полная выборка дёшева.
func (s *Server) readDecisions(page, pageSize int) ([]DecisionRow, int, error) {
	entries, err := s.store.Recent(0)
	if err != nil {
		return nil, 0, err
	}

	total := len(entries)
	totalPages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	if start >= total {
		return []DecisionRow{}, totalPages, nil
	}
	end := min(start+pageSize, total)

	loc := config.AppLocation
	rows := make([]DecisionRow, 0, end-start)
	for _, e := range entries[start:end] {
		rows = append(rows, decisionRow(e, loc))
	}
	return rows, totalPages, nil
}

// decisionRow приводит запись журнала к строке ленты: таймстемпы
// конвертируются в таймзону приложения, nil-поля заменяются прочерком.
func decisionRow(e decisionlog.Entry, loc *time.Location) DecisionRow {
	row := DecisionRow{
		Timestamp: timeutil.NormalizeDisplayTimestamp(e.Timestamp, loc),
		UserID:    e.UserID,
		EventType: e.EventType,
		Decision:  e.Decision,
		Code:      e.Code,
		Reason:    e.Reason,
	}
	if e.ScheduledTime != nil {
		row.ScheduledTime = timeutil.NormalizeDisplayTimestamp(*e.ScheduledTime, loc)
	}
	return row
}

// getDecisionClass возвращает CSS класс для решения
func getDecisionClass(decision string) string {
	switch decision {
	case "NOW":
		return "bg-red-50 text-red-800 border-l-4 border-red-500"
	case "LATER":
		return "bg-yellow-50 text-yellow-800 border-l-4 border-yellow-500"
	case "NEVER":
		return "bg-gray-50 text-gray-600 border-l-4 border-gray-400"
	default:
		return "bg-gray-50 text-gray-800"
	}
}
