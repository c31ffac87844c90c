// Package rules — декларативные операторские правила поверх классификатора.
//
// Правила загружаются из JSON (голый массив или обёртка {"rules": [...]}),
// сортируются по приоритету по убыванию и применяются к уже принятому
// классификатором решению. Совпавшее правило меняет решение через одно из
// действий: force_decision, downgrade или limit_per_day.
package rules

import (
	"bytes"
	"encoding/json"

	"github.com/go-faster/errors"

	"notify-triage/internal/domain/events"
)

// Match описывает условия совпадения правила с событием. Движок трактует
// каждое заполненное поле как обязательное условие:
//   - EventTypes / PriorityHints / Channels / Sources: членство в множестве
//   - TimeWindow: час события в полуинтервале [start, end) с переходом
//     через полночь при start > end
//
// Правило совпадает, когда выполнены ВСЕ заданные условия. Пустое поле
// события никогда не удовлетворяет названное условие.
type Match struct {
	EventTypes    StringList  `json:"event_type,omitempty"`
	PriorityHints StringList  `json:"priority_hint,omitempty"`
	Channels      StringList  `json:"channel,omitempty"`
	Sources       StringList  `json:"source,omitempty"`
	TimeWindow    *TimeWindow `json:"time_window,omitempty"`
}

// StringList — условие-множество, которое в JSON записывается и одиночной
// строкой, и массивом строк. Одиночная строка трактуется как множество из
// одного элемента.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// TimeWindow — часовое окно совпадения. Отсутствующие границы означают
// полный диапазон (0..24).
type TimeWindow struct {
	StartHour *int `json:"start_hour,omitempty"`
	EndHour   *int `json:"end_hour,omitempty"`
}

func (w TimeWindow) bounds() (start, end int) {
	start, end = 0, 24
	if w.StartHour != nil {
		start = *w.StartHour
	}
	if w.EndHour != nil {
		end = *w.EndHour
	}
	return start, end
}

func (w TimeWindow) contains(hour int) bool {
	start, end := w.bounds()
	if start > end {
		return hour >= start || hour < end
	}
	return start <= hour && hour < end
}

// Action — действие правила. Поля взаимно независимы; force_decision
// обрывает обработку немедленно, downgrade и limit_per_day могут сработать
// у нескольких правил подряд.
type Action struct {
	ForceDecision string            `json:"force_decision,omitempty"`
	Downgrade     map[string]string `json:"downgrade,omitempty"`
	LimitPerDay   *int              `json:"limit_per_day,omitempty"`
}

// Rule — законченное операторское правило:
//   - ID: стабильный идентификатор (для логов и matched_rule_id),
//   - Priority: целое, больший приоритет применяется раньше,
//   - Description: человекочитаемое назначение,
//   - Match: условия совпадения,
//   - Action: действие над текущим решением.
type Rule struct {
	ID          string `json:"id"`
	Priority    int    `json:"priority"`
	Description string `json:"description,omitempty"`
	Match       Match  `json:"match"`
	Action      Action `json:"action"`
}

// Matches сообщает, удовлетворяет ли событие всем условиям правила.
func (r Rule) Matches(ev events.Event) bool {
	m := r.Match
	if len(m.EventTypes) > 0 && !contains(m.EventTypes, ev.EventType) {
		return false
	}
	if len(m.PriorityHints) > 0 && !contains(m.PriorityHints, ev.PriorityHint) {
		return false
	}
	if len(m.Channels) > 0 && !contains(m.Channels, ev.Channel) {
		return false
	}
	if len(m.Sources) > 0 && !contains(m.Sources, ev.Source) {
		return false
	}
	if m.TimeWindow != nil && !m.TimeWindow.contains(ev.Timestamp.Hour()) {
		return false
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// rulesDocument — обертка для корневого JSON: { "rules": [...] }.
type rulesDocument struct {
	Rules []Rule `json:"rules"`
}

// Parse принимает оба корневых формата: голый массив и объект с ключом
// "rules".
func Parse(data []byte) ([]Rule, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty rules document")
	}

	if trimmed[0] == '[' {
		var list []Rule
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, errors.Wrap(err, "unmarshal rules array")
		}
		return list, nil
	}

	var doc rulesDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, errors.Wrap(err, "unmarshal rules document")
	}
	return doc.Rules, nil
}

func validLabel(s string) bool {
	switch events.Decision(s) {
	case events.DecisionNow, events.DecisionLater, events.DecisionNever:
		return true
	}
	return false
}
