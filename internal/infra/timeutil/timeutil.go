// Пакет timeutil содержит служебные функции для работы со временем:
// разбор ISO-8601 меток событий, парсинг таймзон, нормализация отображения.
package timeutil

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Форматы меток времени событий. Источники присылают как RFC3339 с зоной
// (суффикс Z или смещение), так и «наивные» метки без зоны; последние
// трактуются как UTC.
var eventTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp разбирает строковое представление времени события (ISO-8601).
// Метки без таймзоны интерпретируются как UTC; результат всегда приводится к UTC.
func ParseTimestamp(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: not an ISO-8601 value", value)
}

// FormatTimestamp возвращает каноническое строковое представление времени
// для выходных записей (RFC3339, UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseLocation разбирает либо IANA-таймзону (например, "Europe/Moscow"),
// либо UTC-смещение (например, "+03:00", "-0700", "UTC+3", "GMT-04:30").
// Возвращает *time.Location или ошибку.
func ParseLocation(value string) (*time.Location, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, errors.New("empty timezone")
	}
	// Try IANA first.
	if loc, err := time.LoadLocation(v); err == nil {
		return loc, nil
	}
	// Try to parse UTC offset forms.
	if loc, ok := ParseUTCOffsetToLocation(v); ok {
		return loc, nil
	}
	return nil, fmt.Errorf("invalid timezone %q: not an IANA name or UTC offset", value)
}

// ParseUTCOffsetToLocation парсит строки вида "+03:00", "-0700", "UTC+3", "GMT-04:30" или "Z".
// Возвращает фиксированную таймзону и ok=true при успешном разборе.
func ParseUTCOffsetToLocation(value string) (*time.Location, bool) {
	v := strings.TrimSpace(strings.ToUpper(value))
	if v == "Z" || v == "UTC" || v == "GMT" {
		return time.FixedZone("UTC+00:00", 0), true
	}
	// Normalize optional UTC/GMT prefix
	v = strings.TrimPrefix(v, "UTC")
	v = strings.TrimPrefix(v, "GMT")
	v = strings.TrimSpace(v)
	// Patterns: +HH, -HH, +HHMM, -HHMM, +HH:MM, -HH:MM
	re := regexp.MustCompile(`^([+-])\s*(\d{1,2})(?::?(\d{2}))?$`)
	m := re.FindStringSubmatch(v)
	if m == nil {
		return nil, false
	}
	sign := 1
	if m[1] == "-" {
		sign = -1
	}
	hourStr := m[2]
	minStr := m[3]
	hours, err := strconv.Atoi(hourStr)
	if err != nil {
		return nil, false
	}
	mins := 0
	if minStr != "" {
		var err2 error
		mins, err2 = strconv.Atoi(minStr)
		if err2 != nil {
			return nil, false
		}
	}
	if hours < 0 || hours > 14 || mins < 0 || mins > 59 {
		return nil, false
	}
	const (
		secInHour = 60 * 60
		secInMin  = 60
	)
	offset := sign * ((hours * secInHour) + (mins * secInMin))
	name := fmt.Sprintf("UTC%+03d:%02d", sign*hours, mins)
	return time.FixedZone(name, offset), true
}

// NormalizeDisplayTimestamp разбирает строковое представление времени в нескольких
// форматах и возвращает его в виде "2006-01-02 15:04:05" в указанной таймзоне.
// Используется при отображении записей решений человеку. Если разбор не удался,
// возвращается исходная строка.
func NormalizeDisplayTimestamp(timeStr string, loc *time.Location) string {
	if timeStr == "" {
		return ""
	}
	var t time.Time
	var err error

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999-0700", // zap: millis + timezone без двоеточия
		"2006-01-02T15:04:05-0700",
		"2006-01-02T15:04:05",
	}

	outputLayout := "2006-01-02 15:04:05"

	for _, layout := range layouts {
		if t, err = time.Parse(layout, timeStr); err == nil {
			break
		}
	}
	if err != nil {
		// Не удалось распарсить ни одним из форматов
		return timeStr
	}
	// Если таймзона не задана, используем UTC
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(outputLayout)
}
