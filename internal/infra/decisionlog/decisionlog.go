// Package decisionlog — персистентный журнал принятых решений на bbolt.
//
// Журнал питает дашборд и CLI-команду recent: каждая запись — итог одного
// прохода конвейера. Запись асинхронная через ограниченную очередь: при
// переполнении новые записи отбрасываются с предупреждением, конвейер не
// блокируется. Retention удерживает не больше keep последних записей.
package decisionlog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"

	"notify-triage/internal/infra/logger"
	"notify-triage/internal/infra/storage"
)

const (
	decisionsBucketName             = "decisions"
	dbOpenTimeout                   = time.Second
	dbFileMode          os.FileMode = 0o600

	// DefaultQueueSize — ёмкость очереди на запись.
	DefaultQueueSize = 256
	// DefaultKeep — сколько последних записей удерживается в журнале.
	DefaultKeep = 1000
)

var decisionsBucket = []byte(decisionsBucketName)

// Entry — одна запись журнала. Временные метки хранятся строками RFC3339,
// nullable-поля — указателями, чтобы JSON отдавал явный null.
type Entry struct {
	UserID         string  `json:"user_id"`
	EventID        string  `json:"event_id"`
	EventType      string  `json:"event_type"`
	Decision       string  `json:"decision"`
	ScheduledTime  *string `json:"scheduled_time"`
	Timestamp      string  `json:"timestamp"`
	Code           string  `json:"explanation_code"`
	Reason         string  `json:"reason"`
	MatchedRuleID  *string `json:"matched_rule_id"`
	Confidence     float64 `json:"confidence"`
	RawModelOutput string  `json:"raw_model_output,omitempty"`
}

// Store — журнал решений поверх bbolt с фоновым воркером записи.
// Ключи монотонные (NextSequence), порядок ключей совпадает с порядком
// поступления.
type Store struct {
	db   *bbolt.DB
	keep int

	queue  chan Entry
	stopCh chan struct{}

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	writeMu sync.Mutex
	count   atomic.Int64
	dropped atomic.Int64

	finalErr error
	errMu    sync.Mutex
}

// Options — настройки журнала.
type Options struct {
	Keep      int
	QueueSize int
}

// Open открывает (или создаёт) файл журнала и готовит bucket. Фоновый воркер
// не запускается; для обработки очереди вызовите Start().
func Open(path string, opts Options) (*Store, error) {
	if opts.Keep <= 0 {
		opts.Keep = DefaultKeep
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	clean := filepath.Clean(path)
	if err := storage.EnsureDir(filepath.Dir(clean)); err != nil {
		return nil, fmt.Errorf("decisionlog: ensure dir: %w", err)
	}

	db, err := bbolt.Open(clean, dbFileMode, &bbolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("decisionlog: open db: %w", err)
	}

	var existing int64
	err = db.Update(func(tx *bbolt.Tx) error {
		b, errBucket := tx.CreateBucketIfNotExists(decisionsBucket)
		if errBucket != nil {
			return errBucket
		}
		existing = int64(b.Stats().KeyN)
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("decisionlog: prepare bucket: %w", err)
	}

	s := &Store{
		db:     db,
		keep:   opts.Keep,
		queue:  make(chan Entry, opts.QueueSize),
		stopCh: make(chan struct{}),
	}
	s.count.Store(existing)
	return s, nil
}

// Start запускает фоновый воркер записи. Повторные вызовы игнорируются.
func (s *Store) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop()
		}()
	})
}

// Stop дожимает очередь, останавливает воркер и закрывает базу.
// Возвращает первую ошибку записи, если была.
func (s *Store) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	if err := s.db.Close(); err != nil {
		s.setFinalErr(fmt.Errorf("decisionlog: close db: %w", err))
	}
	return s.finalError()
}

// Append ставит запись в очередь. Не блокирует: при переполненной очереди
// запись отбрасывается с предупреждением.
func (s *Store) Append(e Entry) {
	select {
	case <-s.stopCh:
		return
	default:
	}

	select {
	case s.queue <- e:
	default:
		s.dropped.Add(1)
		logger.Warnf("DecisionLog: queue full, dropping entry for event %s", e.EventID)
	}
}

// Recent возвращает до n последних записей, самая свежая первой.
// n <= 0 означает «все».
func (s *Store) Recent(n int) ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(decisionsBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if n > 0 && len(out) >= n {
				break
			}
			var e Entry
			if errDecode := json.Unmarshal(v, &e); errDecode != nil {
				return fmt.Errorf("decode decision entry: %w", errDecode)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decisionlog: read recent: %w", err)
	}
	return out, nil
}

// Count — текущее число записей в журнале.
func (s *Store) Count() int64 {
	return s.count.Load()
}

// Dropped — сколько записей отброшено из-за переполнения очереди.
func (s *Store) Dropped() int64 {
	return s.dropped.Load()
}

// Clear полностью очищает журнал.
func (s *Store) Clear() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if errDel := tx.DeleteBucket(decisionsBucket); errDel != nil {
			return errDel
		}
		_, errCreate := tx.CreateBucketIfNotExists(decisionsBucket)
		return errCreate
	})
	if err != nil {
		return fmt.Errorf("decisionlog: clear: %w", err)
	}
	s.count.Store(0)
	return nil
}

// loop — главный цикл воркера: пишет записи по мере поступления, на
// остановке осушает очередь до конца.
func (s *Store) loop() {
	defer logger.Debug("DecisionLog: loop exited")

	for {
		select {
		case e := <-s.queue:
			s.persistLogged(e)

		case <-s.stopCh:
			for {
				select {
				case e := <-s.queue:
					s.persistLogged(e)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) persistLogged(e Entry) {
	if err := s.persist(e); err != nil {
		s.setFinalErr(err)
		logger.Errorf("DecisionLog: write error: %v", err)
	}
}

// persist дописывает запись и вытесняет старейшие сверх лимита keep.
func (s *Store) persist(e Entry) error {
	payload, errJSON := json.Marshal(e)
	if errJSON != nil {
		return fmt.Errorf("encode decision entry: %w", errJSON)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	over := s.count.Load() + 1 - int64(s.keep)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(decisionsBucket)
		seq, errSeq := b.NextSequence()
		if errSeq != nil {
			return errSeq
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if errPut := b.Put(key, payload); errPut != nil {
			return errPut
		}

		c := b.Cursor()
		for ; over > 0; over-- {
			k, _ := c.First()
			if k == nil {
				break
			}
			if errDel := b.Delete(k); errDel != nil {
				return errDel
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist decision entry: %w", err)
	}

	next := s.count.Load() + 1
	if next > int64(s.keep) {
		next = int64(s.keep)
	}
	s.count.Store(next)
	return nil
}

func (s *Store) setFinalErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	if s.finalErr == nil {
		s.finalErr = err
	}
	s.errMu.Unlock()
}

// finalError возвращает сохранённую первую ошибку записи. Потокобезопасно.
func (s *Store) finalError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.finalErr
}
