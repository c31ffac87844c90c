package pipeline_test

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"notify-triage/internal/domain/events"
	"notify-triage/internal/domain/pipeline"
	"notify-triage/internal/domain/rules"
	"notify-triage/internal/domain/schedule"
	"notify-triage/internal/infra/decisionlog"
)

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func baseOptions() pipeline.Options {
	return pipeline.Options{
		HistoryBufferSize:   30,
		DedupeWindow:        10 * time.Minute,
		SimilarityThreshold: 0.85,
		FrequencyWindow:     60 * time.Minute,
		FrequencyLimit:      5,
		NoiseWindow:         15 * time.Minute,
		NoiseMaxUrgent:      3,
		Schedule: schedule.Options{
			QuietHourStart:  22,
			QuietHourEnd:    6,
			QuietResumeHour: 8,
			BaseBackoff:     5 * time.Minute,
			WorkingHour:     9,
		},
		Clock: fixedClock,
	}
}

func newEngine(t *testing.T, mutate func(*pipeline.Options)) *pipeline.Engine {
	t.Helper()
	return newEngineWithRules(t, rules.NewEngine(""), mutate)
}

func newEngineWithRules(t *testing.T, re *rules.Engine, mutate func(*pipeline.Options)) *pipeline.Engine {
	t.Helper()
	opts := baseOptions()
	if mutate != nil {
		mutate(&opts)
	}
	return pipeline.New(re, opts)
}

// rawEvent собирает валидное сырое событие с переопределениями поверх базы.
func rawEvent(overrides map[string]any) map[string]any {
	raw := map[string]any{
		"event_id":   "evt-000000000001",
		"user_id":    "u1",
		"event_type": "message",
		"message":    "budget review moved to friday",
		"source":     "crm",
		"timestamp":  "2025-06-10T11:59:00Z",
		"channel":    "push",
	}
	for k, v := range overrides {
		if v == nil {
			delete(raw, k)
			continue
		}
		raw[k] = v
	}
	return raw
}

// fillerTexts — заведомо непохожие тексты для прогрева истории без дублей.
var fillerTexts = []string{
	"budget review moved to friday",
	"cafeteria menu changed for june",
	"parking garage closes at nine",
	"new coffee machine on floor three",
	"library returns due next week",
	"team photo retake on monday",
	"door badge renewal complete",
	"printer toner replaced overnight",
}

// warmHistory прогоняет n нейтральных событий от имени u1 внутри часового окна.
func warmHistory(t *testing.T, e *pipeline.Engine, n int) {
	t.Helper()
	if n > len(fillerTexts) {
		t.Fatalf("недостаточно текстов-заполнителей: нужно %d", n)
	}
	for i := 0; i < n; i++ {
		ts := time.Date(2025, 6, 10, 11, 10+5*i, 0, 0, time.UTC)
		out := e.ProcessEvent(rawEvent(map[string]any{
			"event_id":  "filler-" + string(rune('a'+i)),
			"message":   fillerTexts[i],
			"timestamp": ts.Format(time.RFC3339),
		}))
		if out.Decision != events.DecisionLater {
			t.Fatalf("заполнитель %d: ожидали LATER, получили %s (%s)", i, out.Decision, out.Reason)
		}
	}
}

func TestEngine_Validation(t *testing.T) {
	t.Parallel()

	t.Run("нет обязательного поля", func(t *testing.T) {
		t.Parallel()
		e := newEngine(t, nil)
		raw := rawEvent(map[string]any{"message": nil})

		out := e.ProcessEvent(raw)
		if out.Decision != events.DecisionNever || out.Code != events.CodeValidationError {
			t.Fatalf("ожидали NEVER/VALIDATION_ERROR, получили %s/%s", out.Decision, out.Code)
		}
		if out.Reason != "Invalid event: missing required field: message" {
			t.Fatalf("reason = %q", out.Reason)
		}
		if out.ScheduledTime != nil || out.MatchedRuleID != nil {
			t.Fatalf("для невалидного события scheduled_time и matched_rule_id должны быть nil")
		}
		if !reflect.DeepEqual(out.InputEvent, raw) {
			t.Fatalf("input_event должен повторять сырое событие как есть")
		}
		if logs := e.Logs(); len(logs) != 0 {
			t.Fatalf("невалидное событие не должно попадать в журнал, получили %d записей", len(logs))
		}

		st := e.Stats()
		if st.Processed != 1 || st.Invalid != 1 || st.Never != 1 {
			t.Fatalf("счётчики = %+v", st)
		}
	})

	t.Run("невалидное событие не пишется в историю", func(t *testing.T) {
		t.Parallel()
		e := newEngine(t, nil)
		bad := rawEvent(map[string]any{"channel": "pigeon", "dedupe_key": "k-1"})
		if out := e.ProcessEvent(bad); out.Code != events.CodeValidationError {
			t.Fatalf("ожидали VALIDATION_ERROR, получили %s", out.Code)
		}

		// Тот же dedupe_key после исправления события не считается дублем.
		good := rawEvent(map[string]any{"dedupe_key": "k-1"})
		if out := e.ProcessEvent(good); out.Code == events.CodeDuplicateKey {
			t.Fatalf("история не должна помнить отклонённое событие")
		}
	})
}

func TestEngine_Duplicates(t *testing.T) {
	t.Parallel()

	t.Run("повтор по dedupe_key", func(t *testing.T) {
		t.Parallel()
		e := newEngine(t, nil)
		if out := e.ProcessEvent(rawEvent(map[string]any{"dedupe_key": "ord-42"})); out.Decision != events.DecisionLater {
			t.Fatalf("первое событие: ожидали LATER, получили %s", out.Decision)
		}

		out := e.ProcessEvent(rawEvent(map[string]any{
			"event_id":   "evt-000000000002",
			"dedupe_key": "ord-42",
			"message":    "completely different text this time",
		}))
		if out.Decision != events.DecisionNever || out.Code != events.CodeDuplicateKey {
			t.Fatalf("ожидали NEVER/DUPLICATE_DEDUPE_KEY, получили %s/%s", out.Decision, out.Code)
		}
		if out.Reason != "Duplicate suppressed: DUPLICATE_DEDUPE_KEY (matched evt-0000)" {
			t.Fatalf("reason = %q", out.Reason)
		}
		if out.ScheduledTime != nil {
			t.Fatalf("у подавленного дубля не должно быть scheduled_time")
		}

		// Дубликат журналируется и учитывается в истории.
		logs := e.Logs()
		if len(logs) != 2 {
			t.Fatalf("ожидали 2 записи журнала, получили %d", len(logs))
		}
		if logs[1].Confidence != 0 || logs[1].RawModelOutput != "" {
			t.Fatalf("запись дубля: confidence=%v raw=%q", logs[1].Confidence, logs[1].RawModelOutput)
		}
		if st := e.Stats(); st.Duplicates != 1 || st.Never != 1 {
			t.Fatalf("счётчики = %+v", st)
		}
	})

	t.Run("повтор по похожему тексту", func(t *testing.T) {
		t.Parallel()
		e := newEngine(t, nil)
		e.ProcessEvent(rawEvent(map[string]any{
			"event_id": "text-000000000001",
			"message":  "team standup moved to 3pm",
		}))

		out := e.ProcessEvent(rawEvent(map[string]any{
			"event_id": "text-000000000002",
			"message":  "team standup moved to 4pm",
		}))
		if out.Code != events.CodeDuplicateText {
			t.Fatalf("ожидали DUPLICATE_TEXT_SIMILAR, получили %s (%s)", out.Code, out.Reason)
		}
		if !strings.Contains(out.Reason, "matched text-000") {
			t.Fatalf("reason = %q", out.Reason)
		}
	})

	t.Run("точный повтор того же события", func(t *testing.T) {
		t.Parallel()
		e := newEngine(t, nil)
		raw := rawEvent(nil)
		first := e.ProcessEvent(raw)
		second := e.ProcessEvent(raw)
		if second.Decision != events.DecisionNever || second.Code != events.CodeDuplicateText {
			t.Fatalf("повтор события должен подавляться, получили %s/%s", second.Decision, second.Code)
		}
		if first.Decision == events.DecisionNever {
			t.Fatalf("первое прохождение не должно подавляться")
		}
	})
}

func TestEngine_Frequency(t *testing.T) {
	t.Parallel()

	urgent := func(id string) map[string]any {
		return rawEvent(map[string]any{
			"event_id": id,
			"message":  "Your OTP code is 9981",
			"channel":  "sms",
		})
	}

	t.Run("на границе лимита NOW понижается", func(t *testing.T) {
		t.Parallel()
		e := newEngine(t, nil)
		warmHistory(t, e, 5)

		out := e.ProcessEvent(urgent("otp-1"))
		if out.Decision != events.DecisionLater || out.Code != events.CodeFrequencyLimit {
			t.Fatalf("ожидали LATER/FREQUENCY_LIMIT, получили %s/%s", out.Decision, out.Code)
		}
		want := "Downgraded NOW→LATER: user u1 received 5 notifications in last 60 min"
		if out.Reason != want {
			t.Fatalf("reason = %q", out.Reason)
		}
		if out.ScheduledTime == nil {
			t.Fatalf("понижение до LATER должно получать scheduled_time")
		}
	})

	t.Run("на единицу ниже лимита NOW сохраняется", func(t *testing.T) {
		t.Parallel()
		e := newEngine(t, nil)
		warmHistory(t, e, 4)

		out := e.ProcessEvent(urgent("otp-2"))
		if out.Decision != events.DecisionNow || out.Code != events.CodeUrgentKeyword {
			t.Fatalf("ожидали NOW/URGENT_KEYWORD, получили %s/%s", out.Decision, out.Code)
		}
	})

	t.Run("усталость подавляет LATER на границе limit+2", func(t *testing.T) {
		t.Parallel()
		e := newEngine(t, nil)
		warmHistory(t, e, 6)

		// 7-е событие: счётчик 6 < limit+2, LATER выживает.
		seventh := e.ProcessEvent(rawEvent(map[string]any{
			"event_id":  "filler-g7",
			"message":   "door badge renewal complete",
			"timestamp": "2025-06-10T11:46:00Z",
		}))
		if seventh.Decision != events.DecisionLater || seventh.Code != events.CodeLLMDecision {
			t.Fatalf("7-е событие: ожидали LATER/LLM_DECISION, получили %s/%s", seventh.Decision, seventh.Code)
		}

		// 8-е событие: счётчик 7 >= limit+2 — подавление.
		eighth := e.ProcessEvent(rawEvent(map[string]any{
			"event_id":  "filler-g8",
			"message":   "printer toner replaced overnight",
			"timestamp": "2025-06-10T11:47:00Z",
		}))
		if eighth.Decision != events.DecisionNever || eighth.Code != events.CodeFrequencySuppress {
			t.Fatalf("8-е событие: ожидали NEVER/FREQUENCY_SUPPRESSION, получили %s/%s", eighth.Decision, eighth.Code)
		}
		if eighth.Reason != "Suppressed: user u1 received 7 notifications (fatigue threshold)" {
			t.Fatalf("reason = %q", eighth.Reason)
		}
		if eighth.ScheduledTime != nil {
			t.Fatalf("подавленное событие не планируется")
		}
	})
}

func TestEngine_NoiseLimit(t *testing.T) {
	t.Parallel()

	alert := func(id, msg, ts string) map[string]any {
		return rawEvent(map[string]any{
			"event_id":   id,
			"event_type": "alert",
			"source":     "api",
			"message":    msg,
			"timestamp":  ts,
		})
	}

	t.Run("на границе лимита срочных", func(t *testing.T) {
		t.Parallel()
		e := newEngine(t, nil)
		for i, msg := range []string{
			"primary database down",
			"payment gateway outage",
			"search index crashed",
		} {
			ts := time.Date(2025, 6, 10, 11, 50+2*i, 0, 0, time.UTC).Format(time.RFC3339)
			out := e.ProcessEvent(alert("alert-"+string(rune('a'+i)), msg, ts))
			if out.Decision != events.DecisionNow {
				t.Fatalf("прогрев %d: ожидали NOW, получили %s (%s)", i, out.Decision, out.Reason)
			}
		}

		out := e.ProcessEvent(alert("alert-d", "message queue overload", "2025-06-10T11:56:00Z"))
		if out.Decision != events.DecisionLater || out.Code != events.CodeNoiseLimit {
			t.Fatalf("ожидали LATER/CONFLICT_NOISE_LIMIT, получили %s/%s", out.Decision, out.Code)
		}
		want := "Noise limit: 3 urgent alert events from api in last 15 min (limit=3)"
		if out.Reason != want {
			t.Fatalf("reason = %q", out.Reason)
		}
	})

	t.Run("на единицу ниже лимита NOW сохраняется", func(t *testing.T) {
		t.Parallel()
		e := newEngine(t, nil)
		e.ProcessEvent(alert("alert-a", "primary database down", "2025-06-10T11:50:00Z"))
		e.ProcessEvent(alert("alert-b", "payment gateway outage", "2025-06-10T11:52:00Z"))

		out := e.ProcessEvent(alert("alert-c", "search index crashed", "2025-06-10T11:54:00Z"))
		if out.Decision != events.DecisionNow {
			t.Fatalf("ожидали NOW при 2 срочных в окне, получили %s (%s)", out.Decision, out.Reason)
		}
	})
}

func TestEngine_RuleOverride(t *testing.T) {
	t.Parallel()

	re := rules.NewEngine("")
	re.SetRules([]rules.Rule{{
		ID:          "mute-promo",
		Priority:    10,
		Description: "mute promos",
		Match:       rules.Match{EventTypes: []string{"promotion"}},
		Action:      rules.Action{ForceDecision: "NEVER"},
	}})
	e := newEngineWithRules(t, re, nil)

	out := e.ProcessEvent(rawEvent(map[string]any{
		"event_type": "promotion",
		"message":    "weekend flash sale 50% off",
	}))
	if out.Decision != events.DecisionNever || out.Code != events.CodeRuleOverride {
		t.Fatalf("ожидали NEVER/RULE_OVERRIDE, получили %s/%s", out.Decision, out.Code)
	}
	if out.MatchedRuleID == nil || *out.MatchedRuleID != "mute-promo" {
		t.Fatalf("matched_rule_id = %v", out.MatchedRuleID)
	}
	if out.Reason != "Rule mute-promo: mute promos" {
		t.Fatalf("reason = %q", out.Reason)
	}
}

func TestEngine_QuietHoursDowngrade(t *testing.T) {
	t.Parallel()

	re := rules.NewEngine("")
	re.SetRules([]rules.Rule{{
		ID:          "quiet-alerts",
		Priority:    5,
		Description: "defer alerts at night",
		Match:       rules.Match{EventTypes: []string{"alert"}},
		Action:      rules.Action{Downgrade: map[string]string{"NOW": "LATER"}},
	}})
	e := newEngineWithRules(t, re, func(o *pipeline.Options) {
		o.Clock = func() time.Time {
			return time.Date(2025, 6, 10, 23, 35, 0, 0, time.UTC)
		}
	})

	out := e.ProcessEvent(rawEvent(map[string]any{
		"event_type": "alert",
		"source":     "api",
		"message":    "primary database down",
		"timestamp":  "2025-06-10T23:30:00Z",
	}))
	if out.Decision != events.DecisionLater || out.Code != events.CodeRuleOverride {
		t.Fatalf("ожидали LATER/RULE_OVERRIDE, получили %s/%s", out.Decision, out.Code)
	}
	if out.Reason != "Rule quiet-alerts: defer alerts at night (downgraded NOW → LATER)" {
		t.Fatalf("reason = %q", out.Reason)
	}
	// Тихие часы: доставка переносится на утро следующего дня.
	if out.ScheduledTime == nil || *out.ScheduledTime != "2025-06-11T08:00:00Z" {
		t.Fatalf("scheduled_time = %v", out.ScheduledTime)
	}
}

func TestEngine_LLMFailure(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	e.SetLLMFailure(true)
	if !e.LLMFailureEnabled() {
		t.Fatalf("режим отказа должен быть включён")
	}

	out := e.ProcessEvent(rawEvent(map[string]any{
		"event_id":      "fb-000000000001",
		"priority_hint": "high",
	}))
	if out.Decision != events.DecisionNow || out.Code != events.CodeFallback {
		t.Fatalf("ожидали NOW/FALLBACK, получили %s/%s", out.Decision, out.Code)
	}
	if out.Reason != "FALLBACK: LLM service simulated failure → NOW" {
		t.Fatalf("reason = %q", out.Reason)
	}
	logs := e.Logs()
	if len(logs) != 1 || logs[0].Confidence != 0.4 {
		t.Fatalf("запись журнала = %+v", logs)
	}

	e.SetLLMFailure(false)
	out = e.ProcessEvent(rawEvent(map[string]any{
		"event_id": "fb-000000000002",
		"message":  "cafeteria menu changed for june",
	}))
	if out.Code != events.CodeLLMDecision {
		t.Fatalf("после выключения отказа ожидали LLM_DECISION, получили %s", out.Code)
	}
}

func TestEngine_Expiration(t *testing.T) {
	t.Parallel()

	t.Run("план позже expires_at", func(t *testing.T) {
		t.Parallel()
		e := newEngine(t, nil)
		out := e.ProcessEvent(rawEvent(map[string]any{
			"expires_at": "2025-06-10T12:05:00Z",
		}))
		if out.Decision != events.DecisionNever || out.Code != events.CodeExpired {
			t.Fatalf("ожидали NEVER/EXPIRED, получили %s/%s", out.Decision, out.Code)
		}
		if out.Reason != "Scheduled time exceeds expires_at — notification expired" {
			t.Fatalf("reason = %q", out.Reason)
		}
		if out.ScheduledTime != nil {
			t.Fatalf("просроченное событие не получает scheduled_time")
		}
	})

	t.Run("план внутри срока годности", func(t *testing.T) {
		t.Parallel()
		e := newEngine(t, nil)
		out := e.ProcessEvent(rawEvent(map[string]any{
			"expires_at": "2025-06-10T13:00:00Z",
		}))
		if out.Decision != events.DecisionLater {
			t.Fatalf("ожидали LATER, получили %s (%s)", out.Decision, out.Reason)
		}
		if out.ScheduledTime == nil || *out.ScheduledTime != "2025-06-10T12:14:00Z" {
			t.Fatalf("scheduled_time = %v", out.ScheduledTime)
		}
	})
}

func TestEngine_ProcessBatch(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	batch := []map[string]any{
		rawEvent(map[string]any{
			"event_id":   "b-000000000001",
			"message":    "Your OTP code is 9981",
			"channel":    "sms",
			"dedupe_key": "otp-9981",
		}),
		rawEvent(map[string]any{
			"event_id":   "b-000000000002",
			"message":    "Your OTP code is 9981",
			"channel":    "sms",
			"dedupe_key": "otp-9981",
		}),
		rawEvent(map[string]any{"message": nil}),
	}

	outs := e.ProcessBatch(batch)
	if len(outs) != 3 {
		t.Fatalf("ожидали 3 результата, получили %d", len(outs))
	}
	if outs[0].Decision != events.DecisionNow {
		t.Fatalf("первый: ожидали NOW, получили %s (%s)", outs[0].Decision, outs[0].Reason)
	}
	if outs[1].Code != events.CodeDuplicateKey {
		t.Fatalf("второй: ожидали DUPLICATE_DEDUPE_KEY, получили %s", outs[1].Code)
	}
	if outs[2].Code != events.CodeValidationError {
		t.Fatalf("третий: ожидали VALIDATION_ERROR, получили %s", outs[2].Code)
	}

	st := e.Stats()
	if st.Processed != 3 || st.Now != 1 || st.Never != 2 || st.Invalid != 1 || st.Duplicates != 1 {
		t.Fatalf("счётчики = %+v", st)
	}
}

func TestEngine_Determinism(t *testing.T) {
	t.Parallel()

	batch := []map[string]any{
		rawEvent(map[string]any{
			"event_id": "d-000000000001",
			"message":  "Your OTP code is 9981",
			"channel":  "sms",
		}),
		rawEvent(map[string]any{
			"event_id":   "d-000000000002",
			"event_type": "promotion",
			"message":    "weekend flash sale 50% off",
		}),
		rawEvent(map[string]any{
			"event_id": "d-000000000003",
			"message":  "Your OTP code is 9981",
			"channel":  "sms",
		}),
		rawEvent(map[string]any{
			"event_id": "d-000000000004",
			"message":  "parking garage closes at nine",
		}),
	}

	first := newEngine(t, nil).ProcessBatch(batch)
	second := newEngine(t, nil).ProcessBatch(batch)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("одинаковый вход должен давать одинаковый выход:\n%#v\n%#v", first, second)
	}
}

func TestEngine_Reset(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	raw := rawEvent(map[string]any{"dedupe_key": "ord-7"})
	e.ProcessEvent(raw)
	if out := e.ProcessEvent(raw); out.Code != events.CodeDuplicateKey {
		t.Fatalf("до сброса повтор должен считаться дублем, получили %s", out.Code)
	}

	e.Reset()
	if st := e.Stats(); st != (pipeline.Stats{}) {
		t.Fatalf("после сброса счётчики должны обнулиться: %+v", st)
	}
	if logs := e.Logs(); len(logs) != 0 {
		t.Fatalf("после сброса журнал сессии должен быть пуст, получили %d", len(logs))
	}
	if out := e.ProcessEvent(raw); out.Code == events.CodeDuplicateKey {
		t.Fatalf("после сброса история забыта, дубля быть не должно")
	}
}

func TestEngine_ClearUser(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	first := rawEvent(map[string]any{"user_id": "u1", "dedupe_key": "inv-1"})
	second := rawEvent(map[string]any{"user_id": "u2", "dedupe_key": "inv-2"})
	e.ProcessEvent(first)
	e.ProcessEvent(second)

	e.ClearUser("u1")

	if out := e.ProcessEvent(first); out.Code == events.CodeDuplicateKey {
		t.Fatalf("история u1 забыта, дубля быть не должно, получили %s", out.Code)
	}
	if out := e.ProcessEvent(second); out.Code != events.CodeDuplicateKey {
		t.Fatalf("история u2 не должна пострадать, ожидали дубль, получили %s", out.Code)
	}
}

func TestEngine_InputPayload(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil)
	out := e.ProcessEvent(rawEvent(map[string]any{
		"title":         "Build status",
		"priority_hint": "high",
		"dedupe_key":    "build-17",
		"expires_at":    "2025-06-10T18:00:00Z",
		"metadata":      map[string]any{"pipeline": "release"},
	}))

	want := map[string]any{
		"user_id":       "u1",
		"event_type":    "message",
		"title":         "Build status",
		"message":       "budget review moved to friday",
		"source":        "crm",
		"priority_hint": "high",
		"timestamp":     "2025-06-10T11:59:00Z",
		"channel":       "push",
		"metadata":      map[string]any{"pipeline": "release"},
		"dedupe_key":    "build-17",
		"expires_at":    "2025-06-10T18:00:00Z",
	}
	if !reflect.DeepEqual(out.InputEvent, want) {
		t.Fatalf("input_event =\n%#v\nожидали\n%#v", out.InputEvent, want)
	}
	if _, ok := out.InputEvent["event_id"]; ok {
		t.Fatalf("event_id не должен выдаваться наружу")
	}
}

type captureRecorder struct {
	entries []decisionlog.Entry
}

func (c *captureRecorder) Append(e decisionlog.Entry) {
	c.entries = append(c.entries, e)
}

func TestEngine_RecorderFeed(t *testing.T) {
	t.Parallel()

	rec := &captureRecorder{}
	e := newEngine(t, func(o *pipeline.Options) {
		o.Recorder = rec
	})

	raw := rawEvent(map[string]any{"dedupe_key": "ord-3"})
	e.ProcessEvent(raw)                               // решение
	e.ProcessEvent(raw)                               // дубль
	e.ProcessEvent(rawEvent(map[string]any{"message": nil})) // отклонено

	if len(rec.entries) != 2 {
		t.Fatalf("ожидали 2 записи в приёмнике, получили %d", len(rec.entries))
	}
	if rec.entries[0].Decision != "LATER" || rec.entries[1].Code != "DUPLICATE_DEDUPE_KEY" {
		t.Fatalf("записи = %+v", rec.entries)
	}
	if rec.entries[0].Timestamp != "2025-06-10T11:59:00Z" {
		t.Fatalf("timestamp записи = %q", rec.entries[0].Timestamp)
	}
}
