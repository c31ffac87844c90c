package history_test

import (
	"fmt"
	"testing"
	"time"

	"notify-triage/internal/domain/events"
	"notify-triage/internal/domain/history"
)

// фиксированный «сейчас» для детерминированных окон
var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(size int) *history.Store {
	return history.New(history.Options{
		BufferSize: size,
		Clock:      func() time.Time { return testNow },
	})
}

func rec(id string, age time.Duration) history.Record {
	return history.Record{
		EventID:   id,
		EventType: "message",
		Source:    "app",
		Decision:  events.DecisionLater,
		Timestamp: testNow.Add(-age),
	}
}

func TestStore_RecentWindow(t *testing.T) {
	t.Parallel()

	s := newTestStore(10)
	s.Add("u1", rec("old", 30*time.Minute))
	s.Add("u1", rec("edge", 10*time.Minute))
	s.Add("u1", rec("fresh", time.Minute))

	got := s.Recent("u1", 10*time.Minute)
	if len(got) != 2 {
		t.Fatalf("Recent: ожидали 2 записи (граница окна включается), получили %d: %#v", len(got), got)
	}
	if got[0].EventID != "edge" || got[1].EventID != "fresh" {
		t.Fatalf("Recent: нарушен порядок добавления: %q, %q", got[0].EventID, got[1].EventID)
	}

	if all := s.Recent("u1", 0); len(all) != 3 {
		t.Fatalf("Recent без окна: ожидали весь буфер (3), получили %d", len(all))
	}
	if s.CountInWindow("u1", 10*time.Minute) != 2 {
		t.Fatalf("CountInWindow не совпал с Recent")
	}
}

func TestStore_BufferEviction(t *testing.T) {
	t.Parallel()

	s := newTestStore(3)
	for i := 0; i < 5; i++ {
		s.Add("u1", rec(fmt.Sprintf("e%d", i), time.Duration(i)*time.Second))
	}

	got := s.Recent("u1", 0)
	if len(got) != 3 {
		t.Fatalf("ожидали буфер из 3 записей, получили %d", len(got))
	}
	if got[0].EventID != "e2" || got[2].EventID != "e4" {
		t.Fatalf("вытеснены не самые старые записи: %#v", got)
	}
}

func TestStore_CountUrgentBySourceOrType(t *testing.T) {
	t.Parallel()

	add := func(s *history.Store, id, eventType, source string, dec events.Decision) {
		s.Add("u1", history.Record{
			EventID:   id,
			EventType: eventType,
			Source:    source,
			Decision:  dec,
			Timestamp: testNow.Add(-time.Minute),
		})
	}

	s := newTestStore(10)
	add(s, "a", "alert", "monitoring", events.DecisionNow)   // совпал тип
	add(s, "b", "system", "monitoring", events.DecisionNow)  // совпал источник
	add(s, "c", "alert", "billing", events.DecisionLater)    // не NOW
	add(s, "d", "message", "billing", events.DecisionNow)    // ничего не совпало
	add(s, "e", "alert", "monitoring", events.DecisionNever) // не NOW

	got := s.CountUrgentBySourceOrType("u1", "alert", "monitoring", 15*time.Minute)
	if got != 2 {
		t.Fatalf("CountUrgentBySourceOrType = %d, ожидали 2", got)
	}
}

func TestStore_DedupeAndTextEntries(t *testing.T) {
	t.Parallel()

	s := newTestStore(10)
	s.Add("u1", history.Record{EventID: "a", DedupeKey: "k1", NormalizedText: "server down", Timestamp: testNow})
	s.Add("u1", history.Record{EventID: "b", DedupeKey: "", NormalizedText: "", Timestamp: testNow})
	s.Add("u1", history.Record{EventID: "c", DedupeKey: "k1", NormalizedText: "sale today", Timestamp: testNow})

	keys := s.DedupeKeyEntries("u1", "k1", 10*time.Minute)
	if len(keys) != 2 || keys[1].EventID != "c" {
		t.Fatalf("DedupeKeyEntries: %#v", keys)
	}

	texts := s.TextEntries("u1", 10*time.Minute)
	if len(texts) != 2 {
		t.Fatalf("TextEntries: пустой normalized_text должен отфильтровываться, получили %#v", texts)
	}
}

func TestStore_CountEventTypeToday(t *testing.T) {
	t.Parallel()

	s := newTestStore(10)
	s.Add("u1", history.Record{EventID: "a", EventType: "promotion", Timestamp: testNow.Add(-2 * time.Hour)})
	s.Add("u1", history.Record{EventID: "b", EventType: "promotion", Timestamp: testNow.Add(-26 * time.Hour)}) // вчера
	s.Add("u1", history.Record{EventID: "c", EventType: "message", Timestamp: testNow})

	if got := s.CountEventTypeToday("u1", "promotion"); got != 1 {
		t.Fatalf("CountEventTypeToday = %d, ожидали 1 (вчерашние сутки не в счёт)", got)
	}
}

func TestStore_ClearAndClearUser(t *testing.T) {
	t.Parallel()

	s := newTestStore(10)
	s.Add("u1", rec("a", 0))
	s.Add("u2", rec("b", 0))

	s.ClearUser("u1")
	if len(s.Recent("u1", 0)) != 0 {
		t.Fatalf("ClearUser не очистил буфер пользователя")
	}
	if len(s.Recent("u2", 0)) != 1 {
		t.Fatalf("ClearUser затронул чужой буфер")
	}

	s.Clear()
	if len(s.Recent("u2", 0)) != 0 {
		t.Fatalf("Clear не сбросил хранилище")
	}
}
