package dedupe_test

import (
	"math"
	"testing"
	"time"

	"notify-triage/internal/domain/dedupe"
	"notify-triage/internal/domain/events"
	"notify-triage/internal/domain/history"
)

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func TestRatio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		a, b      string
		threshold float64
		want      float64
	}{
		{"идентичные строки", "server down", "server down", 0.9, 1.0},
		{"пустая строка слева", "", "abc", 0.9, 0.0},
		{"пустая строка справа", "abc", "", 0.9, 0.0},
		{"одна замена из трёх", "abc", "abd", 0.5, 1.0 - 1.0/3.0},
		{"классическая пара kitten/sitting", "kitten", "sitting", 0.5, 1.0 - 3.0/7.0},
		{"срез по разнице длин", "ab", "abcdefgh", 0.9, 0.0},
		{"руны считаются символами", "кот", "код", 0.5, 1.0 - 1.0/3.0},
		{"полностью разные", "aaaa", "bbbb", 0.5, 0.0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := dedupe.Ratio(tc.a, tc.b, tc.threshold)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("Ratio(%q, %q, %v) = %v, ожидали %v", tc.a, tc.b, tc.threshold, got, tc.want)
			}
		})
	}
}

func newStoreWith(records ...history.Record) *history.Store {
	s := history.New(history.Options{
		BufferSize: 30,
		Clock:      func() time.Time { return testNow },
	})
	for _, r := range records {
		if r.Timestamp.IsZero() {
			r.Timestamp = testNow.Add(-time.Minute)
		}
		s.Add("u1", r)
	}
	return s
}

func testEvent(dedupeKey, title, message string) events.Event {
	return events.Event{
		EventID:   "incoming",
		UserID:    "u1",
		EventType: "message",
		Title:     title,
		Message:   message,
		DedupeKey: dedupeKey,
		Timestamp: testNow,
	}
}

func TestDetector_Check(t *testing.T) {
	t.Parallel()

	t.Run("совпадение dedupe_key берёт самую свежую запись", func(t *testing.T) {
		t.Parallel()
		s := newStoreWith(
			history.Record{EventID: "первый", DedupeKey: "k1"},
			history.Record{EventID: "второй", DedupeKey: "k1"},
		)
		d := dedupe.New(s, 10*time.Minute, 0.9)

		got := d.Check(testEvent("k1", "t", "m"))
		if !got.IsDuplicate || got.Code != events.CodeDuplicateKey {
			t.Fatalf("ожидали дубль по ключу, получили %#v", got)
		}
		if got.MatchedEventID != "второй" {
			t.Fatalf("MatchedEventID = %q, ожидали самую свежую запись", got.MatchedEventID)
		}
	})

	t.Run("ключ имеет приоритет над текстом", func(t *testing.T) {
		t.Parallel()
		s := newStoreWith(
			history.Record{EventID: "текстовый", NormalizedText: "server down in region"},
			history.Record{EventID: "ключевой", DedupeKey: "k1"},
		)
		d := dedupe.New(s, 10*time.Minute, 0.9)

		got := d.Check(testEvent("k1", "Server down", "in region"))
		if got.Code != events.CodeDuplicateKey || got.MatchedEventID != "ключевой" {
			t.Fatalf("ожидали победу ключа, получили %#v", got)
		}
	})

	t.Run("текстовый дубль — первое совпадение в порядке добавления", func(t *testing.T) {
		t.Parallel()
		s := newStoreWith(
			history.Record{EventID: "далёкий", NormalizedText: "completely different topic"},
			history.Record{EventID: "близкий1", NormalizedText: "server down in region east"},
			history.Record{EventID: "близкий2", NormalizedText: "server down in region west"},
		)
		d := dedupe.New(s, 10*time.Minute, 0.8)

		got := d.Check(testEvent("", "Server down", "in region east"))
		if !got.IsDuplicate || got.Code != events.CodeDuplicateText {
			t.Fatalf("ожидали текстовый дубль, получили %#v", got)
		}
		if got.MatchedEventID != "близкий1" {
			t.Fatalf("MatchedEventID = %q, ожидали первое совпадение", got.MatchedEventID)
		}
	})

	t.Run("ключ вне окна не считается", func(t *testing.T) {
		t.Parallel()
		s := newStoreWith(
			history.Record{EventID: "старый", DedupeKey: "k1", Timestamp: testNow.Add(-time.Hour)},
		)
		d := dedupe.New(s, 10*time.Minute, 0.9)

		if got := d.Check(testEvent("k1", "t", "m")); got.IsDuplicate {
			t.Fatalf("запись вне окна не должна давать дубль: %#v", got)
		}
	})

	t.Run("пустой текст и пустой ключ — не дубль", func(t *testing.T) {
		t.Parallel()
		s := newStoreWith(
			history.Record{EventID: "a", NormalizedText: "anything"},
		)
		d := dedupe.New(s, 10*time.Minute, 0.9)

		got := d.Check(testEvent("", "", ""))
		if got.IsDuplicate {
			t.Fatalf("событие без текста не должно матчиться: %#v", got)
		}
	})

	t.Run("схожесть ровно на пороге считается дублем", func(t *testing.T) {
		t.Parallel()
		// "abcde" vs "abcdX": расстояние 1, схожесть 0.8
		s := newStoreWith(
			history.Record{EventID: "a", NormalizedText: "abcdx"},
		)
		d := dedupe.New(s, 10*time.Minute, 0.8)

		got := d.Check(testEvent("", "abcde", ""))
		if !got.IsDuplicate || got.Code != events.CodeDuplicateText {
			t.Fatalf("порог должен включаться, получили %#v", got)
		}
	})
}
