package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"notify-triage/internal/domain/events"
	"notify-triage/internal/domain/history"
	"notify-triage/internal/infra/logger"
)

// Outcome — результат применения правил. Пустой Code означает, что ни одно
// действие не сработало и решение осталось за классификатором.
type Outcome struct {
	Decision      events.Decision
	Code          events.Code
	MatchedRuleID string
	Reason        string
}

// Engine хранит загруженные правила и обеспечивает потокобезопасный доступ
// к ним. Перезагрузка атомарна: при ошибке действует прежний набор.
type Engine struct {
	rulesPath string
	rules     []Rule
	mu        sync.RWMutex
}

func NewEngine(rulesPath string) *Engine {
	return &Engine{rulesPath: rulesPath}
}

// Load читает и парсит JSON-файл с правилами, обновляя внутреннее состояние.
// При ошибке чтения или разбора движок остаётся с пустым набором — конвейер
// продолжает работать без операторских правил.
func (e *Engine) Load() error {
	loaded, err := e.loadFromFile()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = loaded
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	return nil
}

// Reload перезагружает правила с откатом к прежнему набору при ошибке.
func (e *Engine) Reload() error {
	loaded, err := e.loadFromFile()
	if err != nil {
		logger.Errorf("Rules reload failed, keeping previous set: %v", err)
		return fmt.Errorf("failed to reload rules: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = loaded
	return nil
}

func (e *Engine) loadFromFile() ([]Rule, error) {
	data, err := os.ReadFile(filepath.Clean(e.rulesPath))
	if err != nil {
		return nil, fmt.Errorf("read rules json: %w", err)
	}

	parsed, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return sanitize(parsed), nil
}

// SetRules заменяет набор правил без обращения к файлу. Используется при
// встраивании правил в запрос и в тестах.
func (e *Engine) SetRules(rules []Rule) {
	prepared := sanitize(rules)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = prepared
}

// sanitize отбрасывает правила с недопустимыми метками решений и сортирует
// оставшиеся по приоритету по убыванию. Сортировка стабильна: при равном
// приоритете сохраняется порядок загрузки.
func sanitize(in []Rule) []Rule {
	valid := make([]Rule, 0, len(in))
	for _, r := range in {
		if r.Action.ForceDecision != "" && !validLabel(r.Action.ForceDecision) {
			logger.Errorf("Rule '%s' has invalid force_decision %q, skipping", r.ID, r.Action.ForceDecision)
			continue
		}
		if bad, ok := invalidDowngrade(r.Action.Downgrade); !ok {
			logger.Errorf("Rule '%s' has invalid downgrade label %q, skipping", r.ID, bad)
			continue
		}
		valid = append(valid, r)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Priority > valid[j].Priority
	})
	return valid
}

func invalidDowngrade(dg map[string]string) (string, bool) {
	for from, to := range dg {
		if !validLabel(from) {
			return from, false
		}
		if !validLabel(to) {
			return to, false
		}
	}
	return "", true
}

// Rules возвращает актуальную копию набора правил. Благодаря RLock и
// копированию наружу вызывающий код не может повредить внутреннее состояние.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Match возвращает все правила, совпавшие с событием, в порядке приоритета.
func (e *Engine) Match(ev events.Event) []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var matched []Rule
	for _, r := range e.rules {
		if r.Matches(ev) {
			matched = append(matched, r)
		}
	}
	return matched
}

// Apply применяет действия совпавших правил к текущему решению.
//
// Порядок семантики:
//   - force_decision побеждает немедленно: самое приоритетное форсирующее
//     правило обрывает обработку;
//   - downgrade заменяет текущее решение по отображению и продолжает —
//     следующие правила видят уже пониженное решение;
//   - limit_per_day при достигнутом дневном лимите типа события форсирует
//     NEVER и обрывает обработку.
func (e *Engine) Apply(ev events.Event, matched []Rule, current events.Decision, hist *history.Store) Outcome {
	out := Outcome{Decision: current}

	for _, r := range matched {
		ruleID := r.ID
		if ruleID == "" {
			ruleID = "unknown"
		}

		if r.Action.ForceDecision != "" {
			out.Decision = events.Decision(r.Action.ForceDecision)
			out.Code = events.CodeRuleOverride
			out.MatchedRuleID = ruleID
			out.Reason = fmt.Sprintf("Rule %s: %s", ruleID, r.Description)
			return out
		}

		if to, ok := r.Action.Downgrade[string(current)]; ok {
			out.Decision = events.Decision(to)
			out.Code = events.CodeRuleOverride
			out.MatchedRuleID = ruleID
			out.Reason = fmt.Sprintf("Rule %s: %s (downgraded %s → %s)", ruleID, r.Description, current, to)
			current = out.Decision
		}

		if r.Action.LimitPerDay != nil && hist != nil {
			limit := *r.Action.LimitPerDay
			count := hist.CountEventTypeToday(ev.UserID, ev.EventType)
			if count >= limit {
				out.Decision = events.DecisionNever
				out.Code = events.CodeRuleOverride
				out.MatchedRuleID = ruleID
				out.Reason = fmt.Sprintf("Rule %s: %s — daily limit %d reached (%d today)", ruleID, r.Description, limit, count)
				return out
			}
		}
	}
	return out
}
