package rules_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"notify-triage/internal/domain/events"
	"notify-triage/internal/domain/history"
	"notify-triage/internal/domain/rules"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("запись файла правил: %v", err)
	}
	return path
}

func TestEngine_Load(t *testing.T) {
	t.Parallel()

	t.Run("голый массив", func(t *testing.T) {
		t.Parallel()
		e := rules.NewEngine(writeRules(t, `[
			{"id": "low", "priority": 1, "action": {"force_decision": "NEVER"}},
			{"id": "high", "priority": 10, "action": {"force_decision": "NOW"}}
		]`))
		if err := e.Load(); err != nil {
			t.Fatalf("Load: %v", err)
		}

		got := e.Rules()
		if len(got) != 2 || got[0].ID != "high" || got[1].ID != "low" {
			t.Fatalf("ожидали сортировку по приоритету по убыванию, получили %#v", got)
		}
	})

	t.Run("объект с ключом rules", func(t *testing.T) {
		t.Parallel()
		e := rules.NewEngine(writeRules(t, `{"rules": [{"id": "only", "priority": 5}]}`))
		if err := e.Load(); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got := e.Rules(); len(got) != 1 || got[0].ID != "only" {
			t.Fatalf("Rules = %#v", got)
		}
	})

	t.Run("равный приоритет сохраняет порядок файла", func(t *testing.T) {
		t.Parallel()
		e := rules.NewEngine(writeRules(t, `[
			{"id": "first", "priority": 5},
			{"id": "second", "priority": 5}
		]`))
		if err := e.Load(); err != nil {
			t.Fatalf("Load: %v", err)
		}
		got := e.Rules()
		if got[0].ID != "first" || got[1].ID != "second" {
			t.Fatalf("стабильность сортировки нарушена: %#v", got)
		}
	})

	t.Run("битый JSON оставляет пустой набор", func(t *testing.T) {
		t.Parallel()
		e := rules.NewEngine(writeRules(t, `{"rules": [`))
		if err := e.Load(); err == nil {
			t.Fatalf("ожидали ошибку разбора")
		}
		if got := e.Rules(); len(got) != 0 {
			t.Fatalf("после ошибки набор должен быть пуст: %#v", got)
		}
	})

	t.Run("недопустимая метка отбрасывает правило", func(t *testing.T) {
		t.Parallel()
		e := rules.NewEngine(writeRules(t, `[
			{"id": "bad", "priority": 9, "action": {"force_decision": "SOMETIME"}},
			{"id": "ok", "priority": 1, "action": {"force_decision": "NOW"}}
		]`))
		if err := e.Load(); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got := e.Rules(); len(got) != 1 || got[0].ID != "ok" {
			t.Fatalf("ожидали только валидное правило, получили %#v", got)
		}
	})

	t.Run("одиночная строка условия читается как множество", func(t *testing.T) {
		t.Parallel()
		e := rules.NewEngine(writeRules(t, `[
			{"id": "solo", "priority": 1,
			 "match": {"event_type": "promotion", "channel": ["push", "email"]},
			 "action": {"force_decision": "NEVER"}}
		]`))
		if err := e.Load(); err != nil {
			t.Fatalf("Load: %v", err)
		}
		got := e.Rules()
		if len(got) != 1 {
			t.Fatalf("ожидали одно правило, получили %#v", got)
		}
		if len(got[0].Match.EventTypes) != 1 || got[0].Match.EventTypes[0] != "promotion" {
			t.Fatalf("event_type = %#v", got[0].Match.EventTypes)
		}
		if len(got[0].Match.Channels) != 2 {
			t.Fatalf("channel = %#v", got[0].Match.Channels)
		}
	})
}

func TestEngine_ReloadRollback(t *testing.T) {
	t.Parallel()

	path := writeRules(t, `[{"id": "keep", "priority": 1}]`)
	e := rules.NewEngine(path)
	if err := e.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := os.WriteFile(path, []byte(`not json at all`), 0o600); err != nil {
		t.Fatalf("порча файла: %v", err)
	}
	if err := e.Reload(); err == nil {
		t.Fatalf("ожидали ошибку Reload")
	}
	if got := e.Rules(); len(got) != 1 || got[0].ID != "keep" {
		t.Fatalf("после неудачного Reload должен действовать прежний набор: %#v", got)
	}

	if err := os.WriteFile(path, []byte(`[{"id": "fresh", "priority": 2}]`), 0o600); err != nil {
		t.Fatalf("обновление файла: %v", err)
	}
	if err := e.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := e.Rules(); len(got) != 1 || got[0].ID != "fresh" {
		t.Fatalf("после успешного Reload ожидали новый набор: %#v", got)
	}
}

func TestEngine_MatchOrder(t *testing.T) {
	t.Parallel()

	e := rules.NewEngine("")
	e.SetRules([]rules.Rule{
		{ID: "low", Priority: 1, Match: rules.Match{EventTypes: []string{"promotion"}}},
		{ID: "high", Priority: 10, Match: rules.Match{EventTypes: []string{"promotion"}}},
		{ID: "other", Priority: 99, Match: rules.Match{EventTypes: []string{"alert"}}},
	})

	matched := e.Match(eventAt(12))
	if len(matched) != 2 || matched[0].ID != "high" || matched[1].ID != "low" {
		t.Fatalf("Match должен возвращать совпавшие в порядке приоритета: %#v", matched)
	}
}

func TestEngine_Apply(t *testing.T) {
	t.Parallel()

	hist := history.New(history.Options{
		Clock: func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) },
	})

	t.Run("force_decision побеждает немедленно", func(t *testing.T) {
		t.Parallel()
		e := rules.NewEngine("")
		matched := []rules.Rule{
			{ID: "force", Priority: 10, Description: "mute promos", Action: rules.Action{ForceDecision: "NEVER"}},
			{ID: "later", Priority: 1, Action: rules.Action{ForceDecision: "NOW"}},
		}

		got := e.Apply(eventAt(12), matched, events.DecisionNow, hist)
		if got.Decision != events.DecisionNever || got.Code != events.CodeRuleOverride {
			t.Fatalf("Apply = %#v", got)
		}
		if got.MatchedRuleID != "force" {
			t.Fatalf("MatchedRuleID = %q, ожидали первое форсирующее правило", got.MatchedRuleID)
		}
		if got.Reason != "Rule force: mute promos" {
			t.Fatalf("Reason = %q", got.Reason)
		}
	})

	t.Run("downgrade применяется по цепочке", func(t *testing.T) {
		t.Parallel()
		e := rules.NewEngine("")
		matched := []rules.Rule{
			{ID: "step1", Priority: 10, Description: "calm down", Action: rules.Action{
				Downgrade: map[string]string{"NOW": "LATER"},
			}},
			{ID: "step2", Priority: 5, Description: "mute", Action: rules.Action{
				Downgrade: map[string]string{"LATER": "NEVER"},
			}},
		}

		got := e.Apply(eventAt(12), matched, events.DecisionNow, hist)
		if got.Decision != events.DecisionNever {
			t.Fatalf("ожидали цепочку NOW→LATER→NEVER, получили %#v", got)
		}
		if got.MatchedRuleID != "step2" {
			t.Fatalf("MatchedRuleID = %q, ожидали последнее сработавшее", got.MatchedRuleID)
		}
		if got.Reason != "Rule step2: mute (downgraded LATER → NEVER)" {
			t.Fatalf("Reason = %q", got.Reason)
		}
	})

	t.Run("downgrade без совпадения текущего решения — не срабатывает", func(t *testing.T) {
		t.Parallel()
		e := rules.NewEngine("")
		matched := []rules.Rule{
			{ID: "r", Priority: 1, Action: rules.Action{Downgrade: map[string]string{"NOW": "LATER"}}},
		}

		got := e.Apply(eventAt(12), matched, events.DecisionNever, hist)
		if got.Code != "" || got.Decision != events.DecisionNever {
			t.Fatalf("ожидали нетронутое решение, получили %#v", got)
		}
	})

	t.Run("limit_per_day гасит после лимита", func(t *testing.T) {
		t.Parallel()
		h := history.New(history.Options{
			Clock: func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) },
		})
		for i := 0; i < 3; i++ {
			h.Add("u1", history.Record{
				EventID:   "p",
				EventType: "promotion",
				Decision:  events.DecisionNever,
				Timestamp: time.Date(2025, 6, 10, 9+i, 0, 0, 0, time.UTC),
			})
		}

		e := rules.NewEngine("")
		matched := []rules.Rule{
			{ID: "cap", Priority: 1, Description: "promo cap", Action: rules.Action{LimitPerDay: intPtr(3)}},
		}

		got := e.Apply(eventAt(12), matched, events.DecisionLater, h)
		if got.Decision != events.DecisionNever || got.Code != events.CodeRuleOverride {
			t.Fatalf("Apply = %#v", got)
		}
		if got.Reason != "Rule cap: promo cap — daily limit 3 reached (3 today)" {
			t.Fatalf("Reason = %q", got.Reason)
		}
	})

	t.Run("limit_per_day до лимита не трогает решение", func(t *testing.T) {
		t.Parallel()
		h := history.New(history.Options{
			Clock: func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) },
		})
		h.Add("u1", history.Record{
			EventID: "p", EventType: "promotion",
			Timestamp: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC),
		})

		e := rules.NewEngine("")
		matched := []rules.Rule{
			{ID: "cap", Priority: 1, Action: rules.Action{LimitPerDay: intPtr(3)}},
		}

		got := e.Apply(eventAt(12), matched, events.DecisionLater, h)
		if got.Code != "" || got.Decision != events.DecisionLater {
			t.Fatalf("до лимита решение не меняется: %#v", got)
		}
	})

	t.Run("без действий — пустой код", func(t *testing.T) {
		t.Parallel()
		e := rules.NewEngine("")
		got := e.Apply(eventAt(12), []rules.Rule{{ID: "noop", Priority: 1}}, events.DecisionLater, hist)
		if got.Code != "" || got.Decision != events.DecisionLater || got.MatchedRuleID != "" {
			t.Fatalf("ожидали нетронутый результат, получили %#v", got)
		}
	})
}
