// Package schedule — вычисление scheduled_time для решения LATER.
//
// Ветви в строгом порядке: тихие часы после RULE_OVERRIDE, экспоненциальный
// backoff после FREQUENCY_LIMIT, перенос напоминаний на рабочий час, иначе
// +15 минут. Если вычисленное время позже expires_at — событие истекло.
package schedule

import (
	"time"

	"notify-triage/internal/domain/events"
)

// Задержка по умолчанию для ветвей без специальной логики.
const defaultDelay = 15 * time.Minute

// Options — граничные часы и базовый шаг backoff. Значения приходят из
// конфигурации и считаются валидными (часы 0..23).
type Options struct {
	QuietHourStart  int
	QuietHourEnd    int
	QuietResumeHour int
	BaseBackoff     time.Duration
	WorkingHour     int
}

// Planner считает время доставки отложенных уведомлений.
type Planner struct {
	opts Options
}

// New создаёт планировщик. Нулевой BaseBackoff заменяется на 5 минут.
func New(opts Options) *Planner {
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 5 * time.Minute
	}
	return &Planner{opts: opts}
}

// Schedule возвращает время доставки для события с данным кодом объяснения.
// expired=true означает, что любое вычисленное время оказалось позже
// expires_at и уведомление доставлять уже поздно.
func (p *Planner) Schedule(ev events.Event, code events.Code, freqCount int) (scheduled time.Time, expired bool) {
	ts := ev.Timestamp

	switch {
	case code == events.CodeRuleOverride:
		if p.isQuietHour(ts.Hour()) {
			scheduled = p.nextMorning(ts)
		} else {
			scheduled = ts.Add(defaultDelay)
		}
	case code == events.CodeFrequencyLimit:
		mult := freqCount - 3
		if mult < 1 {
			mult = 1
		}
		scheduled = ts.Add(time.Duration(mult) * p.opts.BaseBackoff)
	case ev.EventType == "reminder":
		scheduled = p.nextWorkingHour(ts)
	default:
		scheduled = ts.Add(defaultDelay)
	}

	if ev.ExpiresAt != nil && scheduled.After(*ev.ExpiresAt) {
		return time.Time{}, true
	}
	return scheduled, false
}

// isQuietHour — попадает ли час в тихий интервал [start, end) с переходом
// через полночь при start > end.
func (p *Planner) isQuietHour(hour int) bool {
	if p.opts.QuietHourStart > p.opts.QuietHourEnd {
		return hour >= p.opts.QuietHourStart || hour < p.opts.QuietHourEnd
	}
	return p.opts.QuietHourStart <= hour && hour < p.opts.QuietHourEnd
}

// nextMorning — утро следующего дня в QuietResumeHour. День добавляется
// всегда, даже для ночных событий до конца тихого интервала: событие в 02:30
// уходит на завтрашние 08:00, а не на сегодняшние. Результат строго позже ts.
func (p *Planner) nextMorning(ts time.Time) time.Time {
	day := ts.AddDate(0, 0, 1)
	return time.Date(day.Year(), day.Month(), day.Day(), p.opts.QuietResumeHour, 0, 0, 0, ts.Location())
}

// nextWorkingHour — сегодняшний рабочий час, если он ещё впереди, иначе завтрашний.
func (p *Planner) nextWorkingHour(ts time.Time) time.Time {
	day := ts
	if ts.Hour() >= p.opts.WorkingHour {
		day = ts.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), p.opts.WorkingHour, 0, 0, 0, ts.Location())
}
