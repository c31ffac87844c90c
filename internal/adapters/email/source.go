package email

import (
	"context"
	"sync"
)

// QueueSource — потокобезопасный источник писем в памяти. Push ставит письма
// в очередь, Fetch забирает всё накопленное разом. Используется симулятором
// и как источник по умолчанию, когда внешний интеграционный источник не
// подключён.
type QueueSource struct {
	mu    sync.Mutex
	queue []Parsed
}

// NewQueueSource создаёт пустую очередь писем.
func NewQueueSource() *QueueSource {
	return &QueueSource{}
}

// Push добавляет письма в конец очереди.
func (q *QueueSource) Push(msgs ...Parsed) {
	if len(msgs) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, msgs...)
}

// Fetch отдаёт накопленные письма в порядке поступления и очищает очередь.
func (q *QueueSource) Fetch(ctx context.Context) ([]Parsed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return nil, nil
	}
	batch := q.queue
	q.queue = nil
	return batch, nil
}

// Len возвращает число писем, ожидающих выборки.
func (q *QueueSource) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
