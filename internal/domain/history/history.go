// Package history — кольцевой буфер недавних решений по каждому пользователю.
//
// Хранилище питает три проверки конвейера: поиск дублей (по dedupe_key и по
// нормализованному тексту), частотное гашение и шумовой лимит. Все выборки
// по окну включают границу: запись с меткой ровно now-window попадает в окно.
package history

import (
	"sync"
	"time"

	"notify-triage/internal/domain/events"
)

// DefaultBufferSize — ёмкость буфера на пользователя, если опциями не задано иное.
const DefaultBufferSize = 30

// Record — след одного принятого решения. Timestamp — это метка самого события
// (не момент записи), именно по ней считаются окна.
type Record struct {
	EventID        string
	EventType      string
	Source         string
	Decision       events.Decision
	Code           events.Code
	DedupeKey      string
	NormalizedText string
	Timestamp      time.Time
}

// Options — настройки хранилища. Clock подменяется в тестах.
type Options struct {
	BufferSize int
	Clock      func() time.Time
}

// Store — потокобезопасная история решений по пользователям. Старые записи
// вытесняются по ёмкости буфера, а не по возрасту: запись старше любого окна
// всё ещё занимает место, пока её не вытеснят новые.
type Store struct {
	mu      sync.RWMutex
	users   map[string][]Record
	limit   int
	nowFunc func() time.Time
}

// New создаёт пустое хранилище.
func New(opts Options) *Store {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Store{
		users:   make(map[string][]Record),
		limit:   opts.BufferSize,
		nowFunc: opts.Clock,
	}
}

// Add дописывает запись в буфер пользователя, вытесняя самую старую при переполнении.
func (s *Store) Add(userID string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.users[userID], rec)
	if len(entries) > s.limit {
		entries = entries[len(entries)-s.limit:]
	}
	s.users[userID] = entries
}

// Recent возвращает записи пользователя не старше window. При window <= 0
// возвращается весь буфер. Результат — копия, её можно мутировать.
func (s *Store) Recent(userID string, window time.Duration) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentLocked(userID, window)
}

func (s *Store) recentLocked(userID string, window time.Duration) []Record {
	entries := s.users[userID]
	if window <= 0 {
		out := make([]Record, len(entries))
		copy(out, entries)
		return out
	}

	cutoff := s.nowFunc().Add(-window)
	out := make([]Record, 0, len(entries))
	for _, rec := range entries {
		if !rec.Timestamp.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// CountInWindow — сколько решений пользователь получил за окно.
func (s *Store) CountInWindow(userID string, window time.Duration) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recentLocked(userID, window))
}

// CountUrgentBySourceOrType — сколько NOW-решений за окно пришло от того же
// источника или с тем же типом события. Питает шумовой лимит.
func (s *Store) CountUrgentBySourceOrType(userID, eventType, source string, window time.Duration) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.recentLocked(userID, window) {
		if rec.Decision != events.DecisionNow {
			continue
		}
		if rec.EventType == eventType || rec.Source == source {
			n++
		}
	}
	return n
}

// DedupeKeyEntries — записи за окно с совпадающим dedupe_key, в порядке добавления.
func (s *Store) DedupeKeyEntries(userID, dedupeKey string, window time.Duration) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, 4)
	for _, rec := range s.recentLocked(userID, window) {
		if rec.DedupeKey == dedupeKey {
			out = append(out, rec)
		}
	}
	return out
}

// TextEntries — записи за окно с непустым нормализованным текстом,
// кандидаты для сравнения на near-duplicate.
func (s *Store) TextEntries(userID string, window time.Duration) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, 8)
	for _, rec := range s.recentLocked(userID, window) {
		if rec.NormalizedText != "" {
			out = append(out, rec)
		}
	}
	return out
}

// CountEventTypeToday — сколько событий данного типа пользователь получил за
// текущие календарные сутки UTC. Питает правило limit_per_day.
func (s *Store) CountEventTypeToday(userID, eventType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	y, m, d := s.nowFunc().UTC().Date()
	n := 0
	for _, rec := range s.users[userID] {
		if rec.EventType != eventType {
			continue
		}
		ry, rm, rd := rec.Timestamp.UTC().Date()
		if ry == y && rm == m && rd == d {
			n++
		}
	}
	return n
}

// Clear сбрасывает историю всех пользователей.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string][]Record)
}

// ClearUser сбрасывает историю одного пользователя.
func (s *Store) ClearUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}
