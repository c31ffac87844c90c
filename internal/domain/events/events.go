// Package events — канонический формат события уведомления и его валидация.
//
// Назначение:
//   Пакет определяет неизменяемую запись Event, которой обмениваются все стадии
//   конвейера решений, закрытые множества меток (решение, код объяснения, тип
//   события, канал, подсказка приоритета) и нормализацию текста для сравнения
//   на near-duplicate.
//
// Инварианты:
//   - Event создаётся только через Validate; после этого поля не меняются.
//   - Timestamp и ExpiresAt всегда в UTC.
//   - Decision и Code принимают значения только из закрытых множеств ниже.
package events

import "time"

// Decision — терминальная метка решения: доставить сейчас, отложить или подавить.
type Decision string

const (
	DecisionNow   Decision = "NOW"
	DecisionLater Decision = "LATER"
	DecisionNever Decision = "NEVER"
)

// Code — закрытое множество кодов объяснения. Каждый выход конвейера помечен
// ровно одним кодом, называющим правило, которое определило исход.
type Code string

const (
	CodeValidationError   Code = "VALIDATION_ERROR"
	CodeDuplicateKey      Code = "DUPLICATE_DEDUPE_KEY"
	CodeDuplicateText     Code = "DUPLICATE_TEXT_SIMILAR"
	CodeLLMDecision       Code = "LLM_DECISION"
	CodeUrgentKeyword     Code = "URGENT_KEYWORD"
	CodeFallback          Code = "FALLBACK"
	CodeRuleOverride      Code = "RULE_OVERRIDE"
	CodeFrequencyLimit    Code = "FREQUENCY_LIMIT"
	CodeFrequencySuppress Code = "FREQUENCY_SUPPRESSION"
	CodeNoiseLimit        Code = "CONFLICT_NOISE_LIMIT"
	CodeExpired           Code = "EXPIRED"
)

// Допустимые значения перечислимых полей события.
var (
	ValidEventTypes = map[string]struct{}{
		"message": {}, "reminder": {}, "alert": {}, "promotion": {},
		"system": {}, "update": {}, "email": {},
	}
	ValidChannels = map[string]struct{}{
		"push": {}, "email": {}, "sms": {}, "in_app": {},
	}
	ValidPriorityHints = map[string]struct{}{
		"low": {}, "medium": {}, "high": {}, "urgent": {},
	}
)

// Event — каноническое событие уведомления после валидации. Передаётся между
// стадиями конвейера по значению и не мутируется.
type Event struct {
	EventID      string         `json:"event_id"`
	UserID       string         `json:"user_id"`
	EventType    string         `json:"event_type"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Source       string         `json:"source"`
	PriorityHint string         `json:"priority_hint,omitempty"`
	Channel      string         `json:"channel"`
	Timestamp    time.Time      `json:"timestamp"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	DedupeKey    string         `json:"dedupe_key,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// CombinedText возвращает сцепку заголовка и текста сообщения — сырьё для
// нормализации near-duplicate и для классификатора.
func (e Event) CombinedText() string {
	return e.Title + " " + e.Message
}
