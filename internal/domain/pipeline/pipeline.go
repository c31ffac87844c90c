// Package pipeline — центральный оркестратор конвейера решений.
//
// Назначение:
//   Пакет проводит сырое событие уведомления через фиксированную
//   последовательность стадий: валидация → дедупликация → классификация →
//   правила → частотное демпфирование → шумовой лимит → планирование →
//   журналирование и запись в историю. Результат каждой стадии может быть
//   перекрыт следующей; итоговая запись несёт ровно один код объяснения.
//
// Инварианты:
//   - обработка события атомарна: история, журнал и счётчики меняются под
//     общим мьютексом, два события не перемежаются;
//   - частотный счётчик снимается до записи текущего события в историю;
//   - событие, не прошедшее валидацию, не попадает ни в историю, ни в журнал;
//   - подавленный дубликат журналируется и записывается в историю.
package pipeline

import (
	"fmt"
	"math"
	"sync"
	"time"

	"notify-triage/internal/domain/classify"
	"notify-triage/internal/domain/dedupe"
	"notify-triage/internal/domain/events"
	"notify-triage/internal/domain/history"
	"notify-triage/internal/domain/rules"
	"notify-triage/internal/domain/schedule"
	"notify-triage/internal/infra/decisionlog"
	"notify-triage/internal/infra/logger"
	"notify-triage/internal/infra/timeutil"

	"go.uber.org/zap"
)

// Recorder — приёмник записей журнала решений. Персистентный журнал
// подключается сюда; nil отключает запись.
type Recorder interface {
	Append(entry decisionlog.Entry)
}

// Options — параметры конвейера. Нулевые значения окон и лимитов означают
// «стадия срабатывает всегда», поэтому вызывающая сторона передаёт их явно.
type Options struct {
	// HistoryBufferSize — ёмкость кольцевого буфера истории на пользователя.
	HistoryBufferSize int
	// DedupeWindow — окно поиска дубликатов.
	DedupeWindow time.Duration
	// SimilarityThreshold — порог похожести нормализованных текстов [0..1].
	SimilarityThreshold float64
	// FrequencyWindow и FrequencyLimit — окно и порог частотного демпфирования.
	FrequencyWindow time.Duration
	FrequencyLimit  int
	// NoiseWindow и NoiseMaxUrgent — окно и порог шумового лимита срочных.
	NoiseWindow    time.Duration
	NoiseMaxUrgent int
	// Schedule — параметры планировщика отложенной доставки.
	Schedule schedule.Options
	// SimulateLLMFailure — стартовое состояние имитации отказа классификатора.
	SimulateLLMFailure bool
	// MaxBufferedLogs ограничивает буфер записей текущей сессии.
	MaxBufferedLogs int
	// Clock подменяется в тестах; nil — time.Now.
	Clock func() time.Time
	// Recorder — персистентный журнал решений, может быть nil.
	Recorder Recorder
	// DecisionFeed — отдельный JSONL-поток решений, может быть nil.
	DecisionFeed *zap.Logger
}

// Outcome — итоговая запись по событию: очищенный вход плюс решение.
// Формат повторяет запись журнала без внутренних полей.
type Outcome struct {
	InputEvent    map[string]any  `json:"input_event"`
	Decision      events.Decision `json:"decision"`
	ScheduledTime *string         `json:"scheduled_time"`
	Code          events.Code     `json:"explanation_code"`
	Reason        string          `json:"reason"`
	MatchedRuleID *string         `json:"matched_rule_id"`
}

// Stats — счётчики обработки с момента старта или последнего Reset.
type Stats struct {
	Processed  int64 `json:"processed"`
	Now        int64 `json:"now"`
	Later      int64 `json:"later"`
	Never      int64 `json:"never"`
	Invalid    int64 `json:"invalid"`
	Duplicates int64 `json:"duplicates"`
}

// Engine связывает стадии конвейера и хранит изменяемое состояние:
// историю, буфер журнала и счётчики.
type Engine struct {
	mu sync.Mutex

	history    *history.Store
	dedupe     *dedupe.Detector
	rules      *rules.Engine
	classifier *classify.Classifier
	planner    *schedule.Planner

	opts     Options
	recorder Recorder
	feed     *zap.Logger

	logs  []decisionlog.Entry
	stats Stats
}

// New собирает конвейер вокруг готового движка правил.
func New(rulesEngine *rules.Engine, opts Options) *Engine {
	if opts.HistoryBufferSize <= 0 {
		opts.HistoryBufferSize = history.DefaultBufferSize
	}
	if opts.MaxBufferedLogs <= 0 {
		opts.MaxBufferedLogs = decisionlog.DefaultKeep
	}
	hs := history.New(history.Options{
		BufferSize: opts.HistoryBufferSize,
		Clock:      opts.Clock,
	})
	return &Engine{
		history:    hs,
		dedupe:     dedupe.New(hs, opts.DedupeWindow, opts.SimilarityThreshold),
		rules:      rulesEngine,
		classifier: classify.New(opts.SimulateLLMFailure),
		planner:    schedule.New(opts.Schedule),
		opts:       opts,
		recorder:   opts.Recorder,
		feed:       opts.DecisionFeed,
	}
}

// ProcessEvent проводит одно сырое событие через все стадии и возвращает
// итоговую запись. Вызов атомарен относительно других событий.
func (e *Engine) ProcessEvent(raw map[string]any) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processLocked(raw)
}

// ProcessBatch обрабатывает события по одному в порядке поступления: каждое
// видит обновления истории от предыдущих.
func (e *Engine) ProcessBatch(raws []map[string]any) []Outcome {
	results := make([]Outcome, 0, len(raws))
	for _, raw := range raws {
		results = append(results, e.ProcessEvent(raw))
	}
	return results
}

func (e *Engine) processLocked(raw map[string]any) Outcome {
	e.stats.Processed++

	ev, err := events.Validate(raw)
	if err != nil {
		// Невалидное событие не оставляет следов в истории и журнале.
		e.stats.Invalid++
		e.stats.Never++
		logger.Warnf("Pipeline: event rejected: %v", err)
		return Outcome{
			InputEvent: raw,
			Decision:   events.DecisionNever,
			Code:       events.CodeValidationError,
			Reason:     fmt.Sprintf("Invalid event: %v", err),
		}
	}

	if m := e.dedupe.Check(ev); m.IsDuplicate {
		e.stats.Duplicates++
		matched := "unknown"
		if m.MatchedEventID != "" {
			matched = prefix8(m.MatchedEventID)
		}
		reason := fmt.Sprintf("Duplicate suppressed: %s (matched %s)", m.Code, matched)
		entry := e.appendLog(ev, events.DecisionNever, nil, m.Code, reason, nil, 0, "")
		e.recordHistory(ev, events.DecisionNever, m.Code)
		e.countDecision(events.DecisionNever)
		return e.outputRecord(ev, entry)
	}

	res := e.classifier.Classify(ev)
	current := res.Label
	code := res.Code
	confidence := res.Confidence
	rawOutput := res.RawOutput
	reason := rawOutput
	matchedRuleID := ""

	if matched := e.rules.Match(ev); len(matched) > 0 {
		out := e.rules.Apply(ev, matched, current, e.history)
		if out.Code != "" {
			current = out.Decision
			code = out.Code
			matchedRuleID = out.MatchedRuleID
			reason = out.Reason
		}
	}

	// Счётчик берётся до записи текущего события: событие не считает само себя.
	freqCount := e.history.CountInWindow(ev.UserID, e.opts.FrequencyWindow)
	if freqCount >= e.opts.FrequencyLimit {
		if current == events.DecisionNow {
			current = events.DecisionLater
			code = events.CodeFrequencyLimit
			reason = fmt.Sprintf("Downgraded NOW→LATER: user %s received %d notifications in last %d min",
				ev.UserID, freqCount, wholeMinutes(e.opts.FrequencyWindow))
		} else if current == events.DecisionLater && freqCount >= e.opts.FrequencyLimit+2 {
			current = events.DecisionNever
			code = events.CodeFrequencySuppress
			reason = fmt.Sprintf("Suppressed: user %s received %d notifications (fatigue threshold)",
				ev.UserID, freqCount)
		}
	}

	if current == events.DecisionNow {
		urgentCount := e.history.CountUrgentBySourceOrType(ev.UserID, ev.EventType, ev.Source, e.opts.NoiseWindow)
		if urgentCount >= e.opts.NoiseMaxUrgent {
			current = events.DecisionLater
			code = events.CodeNoiseLimit
			reason = fmt.Sprintf("Noise limit: %d urgent %s events from %s in last %d min (limit=%d)",
				urgentCount, ev.EventType, ev.Source, wholeMinutes(e.opts.NoiseWindow), e.opts.NoiseMaxUrgent)
		}
	}

	var scheduledTime *string
	if current == events.DecisionLater {
		when, expired := e.planner.Schedule(ev, code, freqCount)
		if expired {
			current = events.DecisionNever
			code = events.CodeExpired
			reason = "Scheduled time exceeds expires_at — notification expired"
		} else {
			formatted := timeutil.FormatTimestamp(when)
			scheduledTime = &formatted
		}
	}

	entry := e.appendLog(ev, current, scheduledTime, code, reason,
		strPtrOrNil(matchedRuleID), confidence, rawOutput)
	e.recordHistory(ev, current, code)
	e.countDecision(current)

	logger.Debugf("Pipeline: event %s user=%s → %s (%s)", ev.EventID, ev.UserID, current, code)
	return e.outputRecord(ev, entry)
}

// SetLLMFailure включает или выключает имитацию отказа классификатора.
func (e *Engine) SetLLMFailure(enabled bool) {
	e.classifier.SetFailureMode(enabled)
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	logger.Infof("Pipeline: LLM failure simulation %s", state)
}

// LLMFailureEnabled сообщает текущее состояние имитации отказа.
func (e *Engine) LLMFailureEnabled() bool {
	return e.classifier.FailureEnabled()
}

// ReloadRules перечитывает файл правил. При ошибке действует прежний набор.
func (e *Engine) ReloadRules() error {
	return e.rules.Reload()
}

// Rules — движок правил конвейера (просмотр и горячая замена набора).
func (e *Engine) Rules() *rules.Engine {
	return e.rules
}

// Logs возвращает копию записей журнала, накопленных с последнего Reset.
func (e *Engine) Logs() []decisionlog.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]decisionlog.Entry, len(e.logs))
	copy(out, e.logs)
	return out
}

// Stats возвращает снимок счётчиков обработки.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Reset очищает историю, буфер журнала и счётчики. Персистентный журнал и
// режим отказа классификатора не затрагиваются.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.Clear()
	e.logs = nil
	e.stats = Stats{}
	logger.Debug("Pipeline: state reset")
}

// ClearUser забывает историю одного пользователя: дедуп и частотные окна
// начинают считаться заново. Журнал и счётчики не трогаются.
func (e *Engine) ClearUser(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.ClearUser(userID)
}

// appendLog формирует запись журнала, кладёт её в буфер сессии и рассылает
// в персистентный журнал и JSONL-поток.
func (e *Engine) appendLog(ev events.Event, decision events.Decision, scheduledTime *string,
	code events.Code, reason string, matchedRuleID *string, confidence float64, rawOutput string) decisionlog.Entry {

	entry := decisionlog.Entry{
		UserID:         ev.UserID,
		EventID:        ev.EventID,
		EventType:      ev.EventType,
		Decision:       string(decision),
		ScheduledTime:  scheduledTime,
		Timestamp:      timeutil.FormatTimestamp(ev.Timestamp),
		Code:           string(code),
		Reason:         reason,
		MatchedRuleID:  matchedRuleID,
		Confidence:     math.Round(confidence*100) / 100,
		RawModelOutput: rawOutput,
	}

	e.logs = append(e.logs, entry)
	if len(e.logs) > e.opts.MaxBufferedLogs {
		e.logs = e.logs[len(e.logs)-e.opts.MaxBufferedLogs:]
	}
	if e.recorder != nil {
		e.recorder.Append(entry)
	}
	e.emitFeed(entry)
	return entry
}

func (e *Engine) emitFeed(entry decisionlog.Entry) {
	if e.feed == nil {
		return
	}
	e.feed.Info("decision",
		zap.String("user_id", entry.UserID),
		zap.String("event_id", entry.EventID),
		zap.String("event_type", entry.EventType),
		zap.String("decision", entry.Decision),
		zap.Stringp("scheduled_time", entry.ScheduledTime),
		zap.String("timestamp", entry.Timestamp),
		zap.String("explanation_code", entry.Code),
		zap.String("reason", entry.Reason),
		zap.Stringp("matched_rule_id", entry.MatchedRuleID),
		zap.Float64("confidence", entry.Confidence),
		zap.String("raw_model_output", entry.RawModelOutput),
	)
}

func (e *Engine) recordHistory(ev events.Event, decision events.Decision, code events.Code) {
	e.history.Add(ev.UserID, history.Record{
		EventID:        ev.EventID,
		EventType:      ev.EventType,
		Source:         ev.Source,
		Decision:       decision,
		Code:           code,
		DedupeKey:      ev.DedupeKey,
		NormalizedText: ev.NormalizedText(),
		Timestamp:      ev.Timestamp,
	})
}

func (e *Engine) countDecision(d events.Decision) {
	switch d {
	case events.DecisionNow:
		e.stats.Now++
	case events.DecisionLater:
		e.stats.Later++
	case events.DecisionNever:
		e.stats.Never++
	}
}

func (e *Engine) outputRecord(ev events.Event, entry decisionlog.Entry) Outcome {
	return Outcome{
		InputEvent:    inputEventPayload(ev),
		Decision:      events.Decision(entry.Decision),
		ScheduledTime: entry.ScheduledTime,
		Code:          events.Code(entry.Code),
		Reason:        entry.Reason,
		MatchedRuleID: entry.MatchedRuleID,
	}
}

// inputEventPayload воспроизводит канонический вид события без внутренних
// полей: event_id и разобранные метки времени наружу не выдаются.
func inputEventPayload(ev events.Event) map[string]any {
	payload := map[string]any{
		"user_id":       ev.UserID,
		"event_type":    ev.EventType,
		"title":         ev.Title,
		"message":       ev.Message,
		"source":        ev.Source,
		"priority_hint": nil,
		"timestamp":     timeutil.FormatTimestamp(ev.Timestamp),
		"channel":       ev.Channel,
		"metadata":      ev.Metadata,
		"dedupe_key":    nil,
		"expires_at":    nil,
	}
	if ev.PriorityHint != "" {
		payload["priority_hint"] = ev.PriorityHint
	}
	if ev.DedupeKey != "" {
		payload["dedupe_key"] = ev.DedupeKey
	}
	if ev.ExpiresAt != nil {
		payload["expires_at"] = timeutil.FormatTimestamp(*ev.ExpiresAt)
	}
	return payload
}

func prefix8(s string) string {
	r := []rune(s)
	if len(r) <= 8 {
		return s
	}
	return string(r[:8])
}

func wholeMinutes(d time.Duration) int {
	return int(d / time.Minute)
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
