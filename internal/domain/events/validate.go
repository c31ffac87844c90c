package events

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"notify-triage/internal/infra/timeutil"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// requiredFields — поля, без которых событие отклоняется.
var requiredFields = []string{"user_id", "event_type", "message", "timestamp", "channel"}

// Validate проверяет и нормализует сырое событие (произвольный JSON-объект).
// Возвращает каноническую запись Event либо ошибку валидации; конвейер
// трактует ошибку как исход NEVER/VALIDATION_ERROR без записи в историю.
//
// Правила:
//   - обязательные поля: user_id, event_type, message, timestamp, channel;
//   - event_type, channel и priority_hint (если задан) — из закрытых множеств;
//   - timestamp и expires_at — ISO-8601, суффикс Z трактуется как UTC;
//   - умолчания: event_id — сгенерированный (evt_ плюс 12 hex-символов UUID),
//     source — "unknown", title — пустая строка, metadata — пустой словарь.
func Validate(raw map[string]any) (Event, error) {
	if raw == nil {
		return Event{}, errors.New("event must be a JSON object")
	}

	for _, field := range requiredFields {
		if isEmptyValue(raw[field]) {
			return Event{}, errors.Errorf("missing required field: %s", field)
		}
	}

	eventType, _ := raw["event_type"].(string)
	if _, ok := ValidEventTypes[eventType]; !ok {
		return Event{}, errors.Errorf("invalid event_type %q, must be one of: %s",
			raw["event_type"], joinSet(ValidEventTypes))
	}

	channel, _ := raw["channel"].(string)
	if _, ok := ValidChannels[channel]; !ok {
		return Event{}, errors.Errorf("invalid channel %q, must be one of: %s",
			raw["channel"], joinSet(ValidChannels))
	}

	tsRaw, _ := raw["timestamp"].(string)
	ts, err := timeutil.ParseTimestamp(tsRaw)
	if err != nil {
		return Event{}, errors.Errorf("invalid timestamp format: %v", raw["timestamp"])
	}

	ev := Event{
		EventID:   stringOr(raw["event_id"], generatedEventID()),
		UserID:    stringify(raw["user_id"]),
		EventType: eventType,
		Title:     stringOr(raw["title"], ""),
		Message:   stringify(raw["message"]),
		Source:    stringOr(raw["source"], "unknown"),
		Channel:   channel,
		Timestamp: ts,
		DedupeKey: stringOr(raw["dedupe_key"], ""),
		Metadata:  metadataOrEmpty(raw["metadata"]),
	}

	if hint := stringOr(raw["priority_hint"], ""); hint != "" {
		if _, ok := ValidPriorityHints[hint]; !ok {
			return Event{}, errors.Errorf("invalid priority_hint %q, must be one of: %s",
				hint, joinSet(ValidPriorityHints))
		}
		ev.PriorityHint = hint
	}

	if expRaw := stringOr(raw["expires_at"], ""); expRaw != "" {
		exp, expErr := timeutil.ParseTimestamp(expRaw)
		if expErr != nil {
			return Event{}, errors.Errorf("invalid expires_at format: %v", raw["expires_at"])
		}
		ev.ExpiresAt = &exp
	}

	return ev, nil
}

// generatedEventID выдаёт идентификатор для событий без event_id.
func generatedEventID() string {
	id := uuid.New()
	return "evt_" + hex.EncodeToString(id[:])[:12]
}

// isEmptyValue трактует nil, пустую строку и отсутствующее значение как «пусто».
func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}

// stringify приводит скалярное значение к строке: строки возвращаются как есть,
// числовые идентификаторы пользователей превращаются в их текстовую форму.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON-числа приходят как float64; целые печатаем без дробной части.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// stringOr возвращает строковое значение поля либо fallback, если поле
// отсутствует, не строка или пустое.
func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

// metadataOrEmpty возвращает metadata события или пустой словарь.
func metadataOrEmpty(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// joinSet перечисляет элементы множества в стабильном порядке для сообщений об ошибках.
func joinSet(set map[string]struct{}) string {
	items := make([]string, 0, len(set))
	for k := range set {
		items = append(items, k)
	}
	sort.Strings(items)
	return strings.Join(items, ", ")
}
