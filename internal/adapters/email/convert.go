// Package email — приём писем и их преобразование в события уведомлений.
//
// Пакет не знает про IMAP-протокол: источник писем задаётся интерфейсом
// EmailSource, а конвертер превращает разобранное письмо в сырое событие
// конвейера (словарь, который дальше проходит обычную валидацию). Ключевые
// слова темы и тела дают подсказку приоритета, из «встречных» писем
// извлекаются структурированные детали встречи.
package email

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"notify-triage/internal/infra/timeutil"
)

// Явные списки ключевых слов для подсказки приоритета. Порядок проверки:
// очень важное → игнорируемое → важное; первое совпавшее множество побеждает.
var (
	veryImportantRe = regexp.MustCompile(
		`(?i)(\botp\b|\burgent\b|\bimmediately\b|\bpassword\s+reset\b|\bsecurity\s+alert\b|\bserver\s+down\b)`)
	importantRe = regexp.MustCompile(
		`(?i)(\bmeeting\b|\breminder\b|\bschedule\b|\bassignment\b|\bdeadline\b)`)
	ignoreRe = regexp.MustCompile(
		`(?i)(\bsale\b|\boffer\b|\bpromotion\b|\bnewsletter\b|\bdiscount\b)`)
)

// Шаблоны извлечения деталей встречи.
var (
	// Время: "at 3pm", "at 15:30", "3:00 PM", "3 PM IST". Граница после
	// кандидата съедается завершающей группой: RE2 не поддерживает
	// незахватывающий просмотр вперёд.
	timeRe = regexp.MustCompile(
		`(?i)(?:at\s+)?(\d{1,2}(?::\d{2})?\s*(?:AM|PM|am|pm)?(?:\s*[A-Z]{2,4})?)(?:[\s,.]|$)`)
	// Кандидат времени без AM/PM и без двоеточия — скорее всего не время.
	timeMarkRe = regexp.MustCompile(`(?i)[ap]m|:`)
	// Дата: "on Monday", "27th Feb", "tomorrow", "25 Feb 2026".
	dateRe = regexp.MustCompile(
		`(?i)(?:on\s+)?(tomorrow|today|monday|tuesday|wednesday|thursday|friday|saturday|sunday` +
			`|\d{1,2}(?:st|nd|rd|th)?\s+(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)` +
			`|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?` +
			`|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)(?:\s+\d{2,4})?)`)
	// Ссылки конференций распознаются раньше словесных указаний места.
	meetingLinkRe = regexp.MustCompile(
		`(?i)(zoom\.us/[^\s]+|meet\.google\.com/[^\s]+|teams\.microsoft\.com/[^\s]+` +
			`|https?://[^\s]+(?:zoom|meet|webex|teams)[^\s]*)`)
	// Место: "at Office", "in Room 4B", "via Zoom", "Link: ...".
	locationRe = regexp.MustCompile(
		`(?i)(?:(?:at|in|via|on|location[:\s]+|venue[:\s]+|place[:\s]+|room[:\s]+|link[:\s]+)\s*)` +
			`([\w][\w\s.@/#:\-]{2,60})`)
	// Голое время, просочившееся в место, отбрасывается.
	bareTimeRe = regexp.MustCompile(`(?i)^\d{1,2}(?::\d{2})?\s*(?:AM|PM)$`)
	// Тема/повестка: "agenda:", "topic:", "re:", "regarding ...".
	agendaRe = regexp.MustCompile(
		`(?i)(?:agenda|topic|about|re|regarding|subject|purpose)[:\s]+([^\n.]{5,120})`)
)

// Пределы обрезки текстовых полей события (в рунах).
const (
	maxMessageRunes = 500
	maxPreviewRunes = 300
	maxPlaceRunes   = 80
	maxTopicRunes   = 120
)

// Parsed — разобранное письмо, каким его отдаёт источник. Timestamp — строка
// ISO-8601; пустое значение конвертер заменяет текущим моментом.
type Parsed struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

// Converter строит из писем сырые события уведомлений для конвейера.
type Converter struct {
	userID  string
	nowFunc func() time.Time
}

// NewConverter создаёт конвертер. userID подставляется в каждое событие
// (адресат почтового потока); clock=nil означает time.Now.
func NewConverter(userID string, clock func() time.Time) *Converter {
	if clock == nil {
		clock = time.Now
	}
	return &Converter{userID: userID, nowFunc: clock}
}

// ToEvent преобразует письмо в сырое событие конвейера:
//   - dedupe_key — Message-ID (повторная доставка гасится дедупликацией);
//   - приоритет — по спискам ключевых слов темы и тела;
//   - message — тело до 500 рун либо тема, когда тело пустое;
//   - metadata — признак встречи, извлечённые детали и превью тела.
func (c *Converter) ToEvent(p Parsed) map[string]any {
	subject := p.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	body := p.Body
	sender := p.Sender
	if sender == "" {
		sender = "unknown_sender"
	}
	messageID := p.MessageID
	if messageID == "" {
		messageID = "generated-" + uuid.New().String()
	}
	ts := p.Timestamp
	if ts == "" {
		ts = timeutil.FormatTimestamp(c.nowFunc())
	}

	fullText := subject + " " + body

	priority := "medium"
	switch {
	case veryImportantRe.MatchString(fullText):
		priority = "urgent"
	case ignoreRe.MatchString(fullText):
		priority = "low"
	case importantRe.MatchString(fullText):
		priority = "high"
	}

	isMeeting := importantRe.MatchString(fullText)
	meeting := map[string]any{}
	if isMeeting {
		meeting = MeetingDetails(subject, body)
	}

	message := subject
	if body != "" {
		message = truncateRunes(body, maxMessageRunes)
	}
	preview := ""
	if body != "" {
		preview = truncateRunes(body, maxPreviewRunes)
	}

	return map[string]any{
		"user_id":       c.userID,
		"event_type":    "email",
		"title":         subject,
		"message":       message,
		"source":        sender,
		"priority_hint": priority,
		"timestamp":     ts,
		"channel":       "email",
		"dedupe_key":    messageID,
		"metadata": map[string]any{
			"is_meeting":   isMeeting,
			"meeting":      meeting,
			"body_preview": preview,
		},
	}
}

// MeetingDetails извлекает из темы и тела структурированные поля встречи:
// время, дату, место и тему. Ненайденные поля равны nil — форма записи
// стабильна для потребителей metadata.
func MeetingDetails(subject, body string) map[string]any {
	fullText := subject + "\n" + body
	details := map[string]any{
		"time":     nil,
		"date":     nil,
		"location": nil,
		"topic":    nil,
	}

	if m := timeRe.FindStringSubmatch(fullText); m != nil {
		candidate := strings.TrimSpace(m[1])
		if timeMarkRe.MatchString(candidate) {
			details["time"] = candidate
		}
	}

	if m := dateRe.FindStringSubmatch(fullText); m != nil {
		details["date"] = titleCase(strings.TrimSpace(m[1]))
	}

	if link := meetingLinkRe.FindString(fullText); link != "" {
		details["location"] = truncateRunes(link, maxPlaceRunes)
	} else if m := locationRe.FindStringSubmatch(fullText); m != nil {
		candidate := strings.TrimSpace(m[1])
		if !bareTimeRe.MatchString(candidate) {
			details["location"] = truncateRunes(candidate, maxPlaceRunes)
		}
	}

	if m := agendaRe.FindStringSubmatch(fullText); m != nil {
		details["topic"] = truncateRunes(strings.TrimSpace(m[1]), maxTopicRunes)
	} else if importantRe.MatchString(subject) {
		details["topic"] = truncateRunes(subject, maxTopicRunes)
	}

	return details
}

// Simulated собирает синтетическое письмо для симулятора (веб и консоль).
func Simulated(subject, body, sender string, now time.Time) Parsed {
	return Parsed{
		MessageID: fmt.Sprintf("sim-%d", now.UnixNano()),
		Sender:    sender,
		Subject:   subject,
		Body:      body,
		Timestamp: timeutil.FormatTimestamp(now),
	}
}

// truncateRunes обрезает строку до n рун; границы байтов не рвутся.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// titleCase переводит каждое слово в Title Case: буква после небуквенного
// символа — заглавная, остальные строчные. Слова разделяются любыми
// небуквенными символами, включая цифры ("27th feb" → "27Th Feb").
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if !unicode.IsLetter(r) {
			b.WriteRune(r)
			prevLetter = false
			continue
		}
		if prevLetter {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(unicode.ToTitle(r))
		}
		prevLetter = true
	}
	return b.String()
}
