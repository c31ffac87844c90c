package schedule_test

import (
	"testing"
	"time"

	"notify-triage/internal/domain/events"
	"notify-triage/internal/domain/schedule"
)

func testPlanner() *schedule.Planner {
	return schedule.New(schedule.Options{
		QuietHourStart:  22,
		QuietHourEnd:    6,
		QuietResumeHour: 8,
		BaseBackoff:     5 * time.Minute,
		WorkingHour:     9,
	})
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 10, hour, minute, 0, 0, time.UTC)
}

func TestPlanner_Schedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		event     events.Event
		code      events.Code
		freqCount int
		want      time.Time
	}{
		{
			name:  "override вечером в тихие часы — завтра утром",
			event: events.Event{EventType: "message", Timestamp: at(23, 15)},
			code:  events.CodeRuleOverride,
			want:  time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC),
		},
		{
			name:  "override на границе начала тихих часов — тоже тихо",
			event: events.Event{EventType: "message", Timestamp: at(22, 0)},
			code:  events.CodeRuleOverride,
			want:  time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC),
		},
		{
			name:  "override ночью — утро следующего дня, не сегодняшнее",
			event: events.Event{EventType: "message", Timestamp: at(2, 30)},
			code:  events.CodeRuleOverride,
			want:  time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC),
		},
		{
			name:  "override на границе конца тихих часов — уже не тихо",
			event: events.Event{EventType: "message", Timestamp: at(6, 0)},
			code:  events.CodeRuleOverride,
			want:  at(6, 15),
		},
		{
			name:  "override днём — плюс 15 минут",
			event: events.Event{EventType: "message", Timestamp: at(14, 0)},
			code:  events.CodeRuleOverride,
			want:  at(14, 15),
		},
		{
			name:      "частотный лимит — линейная часть backoff",
			event:     events.Event{EventType: "message", Timestamp: at(12, 0)},
			code:      events.CodeFrequencyLimit,
			freqCount: 5,
			want:      at(12, 10), // 5 мин × (5−3)
		},
		{
			name:      "частотный лимит — множитель не меньше единицы",
			event:     events.Event{EventType: "message", Timestamp: at(12, 0)},
			code:      events.CodeFrequencyLimit,
			freqCount: 2,
			want:      at(12, 5),
		},
		{
			name:  "напоминание до рабочего часа — сегодня в девять",
			event: events.Event{EventType: "reminder", Timestamp: at(7, 45)},
			code:  events.CodeLLMDecision,
			want:  at(9, 0),
		},
		{
			name:  "напоминание после рабочего часа — завтра в девять",
			event: events.Event{EventType: "reminder", Timestamp: at(9, 10)},
			code:  events.CodeLLMDecision,
			want:  time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC),
		},
		{
			name:  "обычное событие — плюс 15 минут",
			event: events.Event{EventType: "message", Timestamp: at(12, 0)},
			code:  events.CodeLLMDecision,
			want:  at(12, 15),
		},
		{
			name:      "код частоты важнее типа reminder",
			event:     events.Event{EventType: "reminder", Timestamp: at(12, 0)},
			code:      events.CodeFrequencyLimit,
			freqCount: 7,
			want:      at(12, 20),
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, expired := testPlanner().Schedule(tc.event, tc.code, tc.freqCount)
			if expired {
				t.Fatalf("неожиданный expired для %#v", tc.event)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("Schedule = %v, ожидали %v", got, tc.want)
			}
			if !got.After(tc.event.Timestamp) {
				t.Fatalf("scheduled_time %v не позже метки события %v", got, tc.event.Timestamp)
			}
		})
	}
}

func TestPlanner_Expiration(t *testing.T) {
	t.Parallel()

	t.Run("вычисленное время позже expires_at", func(t *testing.T) {
		t.Parallel()
		expires := at(12, 10)
		ev := events.Event{EventType: "message", Timestamp: at(12, 0), ExpiresAt: &expires}

		if _, expired := testPlanner().Schedule(ev, events.CodeLLMDecision, 0); !expired {
			t.Fatalf("+15 минут позже дедлайна должно давать expired")
		}
	})

	t.Run("время ровно на дедлайне не истекает", func(t *testing.T) {
		t.Parallel()
		expires := at(12, 15)
		ev := events.Event{EventType: "message", Timestamp: at(12, 0), ExpiresAt: &expires}

		got, expired := testPlanner().Schedule(ev, events.CodeLLMDecision, 0)
		if expired {
			t.Fatalf("строгое сравнение: ровно expires_at ещё не истекло")
		}
		if !got.Equal(expires) {
			t.Fatalf("Schedule = %v, ожидали %v", got, expires)
		}
	})

	t.Run("без expires_at ничего не истекает", func(t *testing.T) {
		t.Parallel()
		ev := events.Event{EventType: "message", Timestamp: at(23, 0)}
		if _, expired := testPlanner().Schedule(ev, events.CodeRuleOverride, 0); expired {
			t.Fatalf("nil expires_at не должен давать expired")
		}
	})
}
