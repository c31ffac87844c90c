// Package dedupe — подавление повторных уведомлений.
//
// Две проверки в строгом порядке: точное совпадение dedupe_key в окне
// дедупликации, затем near-duplicate по нормализованному тексту через
// отношение Левенштейна. Первое совпадение побеждает, дальше не ищем.
package dedupe

import (
	"time"

	"notify-triage/internal/domain/events"
	"notify-triage/internal/domain/history"
)

// Match — результат проверки. Code заполнен только при IsDuplicate.
type Match struct {
	IsDuplicate    bool
	Code           events.Code
	MatchedEventID string
}

// Detector ищет дубли в истории пользователя.
type Detector struct {
	history   *history.Store
	window    time.Duration
	threshold float64
}

// New создаёт детектор поверх существующей истории. threshold — доля схожести
// (0..1), при которой тексты считаются дублями.
func New(hs *history.Store, window time.Duration, threshold float64) *Detector {
	return &Detector{history: hs, window: window, threshold: threshold}
}

// Check проверяет событие на дубль. Ключевое совпадение имеет приоритет над
// текстовым; при ключевом совпадении возвращается самая свежая запись, при
// текстовом — первая достигшая порога в порядке добавления.
func (d *Detector) Check(ev events.Event) Match {
	if ev.DedupeKey != "" {
		matches := d.history.DedupeKeyEntries(ev.UserID, ev.DedupeKey, d.window)
		if len(matches) > 0 {
			return Match{
				IsDuplicate:    true,
				Code:           events.CodeDuplicateKey,
				MatchedEventID: matches[len(matches)-1].EventID,
			}
		}
	}

	text := ev.NormalizedText()
	if text == "" {
		return Match{}
	}
	for _, entry := range d.history.TextEntries(ev.UserID, d.window) {
		if Ratio(text, entry.NormalizedText, d.threshold) >= d.threshold {
			return Match{
				IsDuplicate:    true,
				Code:           events.CodeDuplicateText,
				MatchedEventID: entry.EventID,
			}
		}
	}
	return Match{}
}

// Ratio — нормированная схожесть Левенштейна двух строк (0..1), посимвольно
// по рунам. Если разница длин сама по себе не позволяет достичь threshold,
// возвращается 0 без вычисления матрицы: срезанное значение всё равно было бы
// ниже порога.
func Ratio(a, b string, threshold float64) float64 {
	if a == b {
		return 1.0
	}
	r1, r2 := []rune(a), []rune(b)
	len1, len2 := len(r1), len(r2)
	if len1 == 0 || len2 == 0 {
		return 0.0
	}

	maxLen := len1
	if len2 > maxLen {
		maxLen = len2
	}
	diff := len1 - len2
	if diff < 0 {
		diff = -diff
	}
	if float64(diff)/float64(maxLen) > 1.0-threshold {
		return 0.0
	}

	// Однострочная матрица редакционного расстояния.
	row := make([]int, len2+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len1; i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len2; j++ {
			tmp := row[j]
			if r1[i-1] == r2[j-1] {
				row[j] = prev
			} else {
				row[j] = 1 + min3(prev, row[j], row[j-1])
			}
			prev = tmp
		}
	}

	return 1.0 - float64(row[len2])/float64(maxLen)
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
