// Package classify — имитация LLM-классификатора срочности.
//
// Классификатор детерминирован: срочность оценивается по ключевым словам в
// тексте плюс надбавки за структурные поля (priority_hint, event_type,
// channel). Режим имитации отказа переключается на лету; при отказе работает
// консервативный fallback по структурным полям, текст не читается.
package classify

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync/atomic"

	"notify-triage/internal/domain/events"
)

// Ключевые слова срочной доставки (NOW).
var urgentPatterns = compileAll(
	`\botp\b`, `\bpassword\b`, `\b2fa\b`, `\bverif`,
	`\bdown\b`, `\boutage\b`, `\bcritical\b`, `\bemergency\b`,
	`\bsecurity\b`, `\bbreach\b`, `\bfailure\b`, `\bfailed\b`,
	`\bexpir`, `\bblocked\b`, `\bunauthorized\b`,
	`\b95%\b`, `\b100%\b`, `\b99%\b`, `\boverload\b`,
	`\bcrash`, `\berror\b`, `\balert\b`,
)

// Промо-лексика (NEVER).
var promoPatterns = compileAll(
	`\bsale\b`, `\bdiscount\b`, `\b\d+%\s*off\b`, `\bflat\b`,
	`\bpromo`, `\bcoupon\b`, `\bdeal\b`, `\boffer\b`,
	`\bfree\b`, `\bclearance\b`, `\blimited.?time\b`,
)

// Отложимый контент (LATER).
var laterPatterns = compileAll(
	`\breminder\b`, `\bsubmit\b`, `\bupdate\b`, `\bweekly\b`,
	`\bmonthly\b`, `\bsummary\b`, `\bdigest\b`, `\bnewsletter\b`,
	`\breport\b`, `\bschedul`,
)

// Пороговые значения ресурсов в тексте — отдельная примета срочности.
var thresholdPatterns = compileAll(`\b95%\b`, `\b100%\b`, `\b99%\b`)

// Консервативное соответствие при отказе классификатора.
var (
	fallbackByPriority = map[string]events.Decision{
		"urgent": events.DecisionNow,
		"high":   events.DecisionNow,
		"medium": events.DecisionLater,
		"low":    events.DecisionNever,
	}
	fallbackByEventType = map[string]events.Decision{
		"alert":     events.DecisionNow,
		"system":    events.DecisionNow,
		"message":   events.DecisionLater,
		"reminder":  events.DecisionLater,
		"update":    events.DecisionLater,
		"email":     events.DecisionLater,
		"promotion": events.DecisionNever,
	}
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Result — вердикт классификатора для одного события.
type Result struct {
	Label        events.Decision
	Confidence   float64
	RawOutput    string
	UsedFallback bool
	Code         events.Code
}

// Classifier оценивает срочность события. Потокобезопасен; переключение
// режима отказа видно всем последующим Classify.
type Classifier struct {
	simulateFailure atomic.Bool
	calls           atomic.Int64
}

// New создаёт классификатор. При simulateFailure=true все вызовы идут через fallback.
func New(simulateFailure bool) *Classifier {
	c := &Classifier{}
	c.simulateFailure.Store(simulateFailure)
	return c
}

// SetFailureMode переключает имитацию отказа.
func (c *Classifier) SetFailureMode(enabled bool) {
	c.simulateFailure.Store(enabled)
}

// FailureEnabled сообщает текущий режим.
func (c *Classifier) FailureEnabled() bool {
	return c.simulateFailure.Load()
}

// Calls — сколько раз классификатор вызывался с момента создания.
func (c *Classifier) Calls() int64 {
	return c.calls.Load()
}

// Classify выносит вердикт по событию.
func (c *Classifier) Classify(ev events.Event) Result {
	c.calls.Add(1)

	if c.simulateFailure.Load() {
		return c.fallback(ev, "LLM service simulated failure")
	}
	return c.keywordClassify(ev)
}

func (c *Classifier) keywordClassify(ev events.Event) Result {
	text := strings.ToLower(ev.Title + " " + ev.Message)

	urgentScore := countMatches(urgentPatterns, text)
	promoScore := countMatches(promoPatterns, text)
	laterScore := countMatches(laterPatterns, text)

	switch ev.PriorityHint {
	case "urgent":
		urgentScore += 3
	case "high":
		urgentScore += 2
	case "low":
		promoScore += 2
	}

	switch ev.EventType {
	case "alert", "system":
		urgentScore += 2
	case "promotion":
		promoScore += 3
	case "reminder":
		laterScore += 2
	}

	// SMS сам по себе признак срочности.
	if ev.Channel == "sms" {
		urgentScore++
	}

	total := urgentScore + promoScore + laterScore
	if total < 1 {
		total = 1
	}

	var (
		label      events.Decision
		confidence float64
		code       events.Code
		reason     string
	)

	switch {
	case urgentScore > promoScore && urgentScore > laterScore:
		label = events.DecisionNow
		confidence = capped(0.5+float64(urgentScore)/float64(total)*0.5, 0.99)
		code = events.CodeLLMDecision
		if urgentScore >= 2 {
			code = events.CodeUrgentKeyword
		}
		reason = buildUrgentReason(text, urgentScore, ev.EventType, ev.PriorityHint)
	case promoScore > urgentScore && promoScore > laterScore:
		label = events.DecisionNever
		confidence = capped(0.5+float64(promoScore)/float64(total)*0.5, 0.99)
		code = events.CodeLLMDecision
		reason = fmt.Sprintf("Promotional content detected (score=%d)", promoScore)
	case laterScore > 0:
		label = events.DecisionLater
		confidence = capped(0.5+float64(laterScore)/float64(total)*0.4, 0.95)
		code = events.CodeLLMDecision
		reason = fmt.Sprintf("Non-urgent, schedulable content (score=%d)", laterScore)
	default:
		label = events.DecisionLater
		if byType, ok := fallbackByEventType[ev.EventType]; ok {
			label = byType
		}
		confidence = 0.5
		code = events.CodeLLMDecision
		reason = fmt.Sprintf("Default classification for %s", ev.EventType)
	}

	confidence = round2(confidence)
	return Result{
		Label:      label,
		Confidence: confidence,
		RawOutput:  fmt.Sprintf("LABEL:%s; SHORT_REASON:%s; CONFIDENCE:%.2f", label, reason, confidence),
		Code:       code,
	}
}

// buildUrgentReason собирает человекочитаемое объяснение срочного вердикта.
func buildUrgentReason(text string, score int, eventType, priority string) string {
	var parts []string
	if strings.Contains(text, "otp") {
		parts = append(parts, "contains OTP")
	}
	if strings.Contains(text, "down") {
		parts = append(parts, "service outage detected")
	}
	if countMatches(thresholdPatterns, text) > 0 {
		parts = append(parts, "resource threshold critical")
	}
	if priority == "urgent" {
		parts = append(parts, "priority=urgent")
	}
	if eventType == "alert" || eventType == "system" {
		parts = append(parts, "event_type="+eventType)
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("urgency score=%d", score))
	}
	return "Urgent: " + strings.Join(parts, ", ")
}

// fallback — консервативный вердикт без чтения текста: сперва по priority_hint,
// затем по типу события, иначе LATER.
func (c *Classifier) fallback(ev events.Event, reason string) Result {
	label := events.DecisionLater
	if byPriority, ok := fallbackByPriority[ev.PriorityHint]; ok {
		label = byPriority
	} else if byType, ok := fallbackByEventType[ev.EventType]; ok {
		label = byType
	}

	return Result{
		Label:        label,
		Confidence:   0.4,
		RawOutput:    fmt.Sprintf("FALLBACK: %s → %s", reason, label),
		UsedFallback: true,
		Code:         events.CodeFallback,
	}
}

func countMatches(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, re := range patterns {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

func capped(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
