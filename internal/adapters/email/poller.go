package email

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"

	"notify-triage/internal/infra/logger"
	"notify-triage/internal/infra/throttle"
)

// EmailSource — источник непрочитанных писем. Fetch возвращает очередную
// пачку и помечает её прочитанной на стороне источника; пустой срез — штатная
// ситуация «новых писем нет».
type EmailSource interface {
	Fetch(ctx context.Context) ([]Parsed, error)
}

// RetryAfterError — ошибка источника с явной серверной паузой перед повтором
// (аналог Retry-After). Троттлер распознаёт её через RetryAfterExtractor и
// выдерживает паузу, не тратя попытку ретрая.
type RetryAfterError struct {
	After time.Duration
	Err   error
}

func (e *RetryAfterError) Error() string {
	return "retry after " + e.After.String() + ": " + e.Err.Error()
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// RetryAfterExtractor извлекает паузу из RetryAfterError для троттлера.
func RetryAfterExtractor(err error) (time.Duration, bool) {
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return ra.After, true
	}
	return 0, false
}

const (
	defaultPollInterval = 30 * time.Second
	fetchMaxRetries     = 3
)

// PollerOptions — зависимости и настройки опроса почтового источника.
type PollerOptions struct {
	Source    EmailSource
	Converter *Converter
	// Interval — период опроса; нулевое значение заменяется 30 секундами.
	Interval time.Duration
	// Handle получает сырое событие каждого сконвертированного письма.
	Handle func(raw map[string]any)
	// Throttler задаёт общий лимитер выборок; nil — поллер заводит свой
	// (1 rps, три ретрая, пауза по RetryAfterError).
	Throttler *throttle.Throttler
}

// Poller периодически забирает письма из источника, прогоняя каждую выборку
// через троттлер, и отдаёт события обработчику. Повторные Start/Stop — no-op.
type Poller struct {
	source    EmailSource
	converter *Converter
	interval  time.Duration
	handle    func(raw map[string]any)

	throttler    *throttle.Throttler
	ownThrottler bool

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	cycles atomic.Int64
	emails atomic.Int64
}

// NewPoller собирает поллер; Source, Converter и Handle обязательны.
func NewPoller(opts PollerOptions) (*Poller, error) {
	if opts.Source == nil {
		return nil, errors.New("email: poller requires a source")
	}
	if opts.Converter == nil {
		return nil, errors.New("email: poller requires a converter")
	}
	if opts.Handle == nil {
		return nil, errors.New("email: poller requires a handler")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	p := &Poller{
		source:    opts.Source,
		converter: opts.Converter,
		interval:  interval,
		handle:    opts.Handle,
		throttler: opts.Throttler,
	}
	if p.throttler == nil {
		p.throttler = throttle.New(1,
			throttle.WithMaxRetries(fetchMaxRetries),
			throttle.WithWaitExtractors(RetryAfterExtractor),
		)
		p.ownThrottler = true
	}
	return p, nil
}

// Start запускает цикл опроса. Первый Fetch выполняется сразу, не дожидаясь
// первого тика. Контекст управляет временем жизни цикла.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		p.cancel = cancel
		if p.ownThrottler {
			p.throttler.Start(runCtx)
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.loop(runCtx)
		}()
		logger.Infof("EmailPoller: started, interval %s", p.interval)
	})
}

// Stop останавливает цикл и дожидается завершения текущей выборки.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
		if p.ownThrottler {
			p.throttler.Stop()
		}
		logger.Infof("EmailPoller: stopped after %d poll(s), %d email(s)",
			p.cycles.Load(), p.emails.Load())
	})
}

// Emails возвращает число писем, обработанных с момента запуска.
func (p *Poller) Emails() int64 { return p.emails.Load() }

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce выполняет одну выборку под троттлером и передаёт письма дальше.
// Ошибки источника не валят цикл: следующая попытка — на очередном тике.
func (p *Poller) pollOnce(ctx context.Context) {
	cycle := p.cycles.Add(1)

	var fetched []Parsed
	err := p.throttler.Do(ctx, func() error {
		batch, fetchErr := p.source.Fetch(ctx)
		if fetchErr != nil {
			return errors.Wrap(fetchErr, "fetch unread")
		}
		fetched = batch
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warnf("EmailPoller: poll #%d failed: %v", cycle, err)
		return
	}
	if len(fetched) == 0 {
		logger.Debugf("EmailPoller: poll #%d — no new emails", cycle)
		return
	}

	p.emails.Add(int64(len(fetched)))
	logger.Infof("EmailPoller: poll #%d — %d new email(s)", cycle, len(fetched))
	for _, msg := range fetched {
		p.handle(p.converter.ToEvent(msg))
	}
}
