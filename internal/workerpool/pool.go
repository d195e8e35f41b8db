package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

const (
	defaultWorkers   = 1
	defaultQueueSize = 1000
)

// ErrStopped — пул остановлен, новые элементы не принимаются.
var ErrStopped = errors.New("worker pool stopped")

// Handler обрабатывает один элемент очереди.
type Handler[T any] func(ctx context.Context, item T)

// Pool — фиксированное число воркеров над ограниченной FIFO очередью.
//
// Submit блокируется, пока очередь заполнена. Паника в обработчике
// логируется, воркер продолжает работу. После Stop пул можно запустить снова;
// элементы, оставшиеся в очереди, обработаются при следующем Start.
type Pool[T any] struct {
	name    string
	workers int
	handler Handler[T]
	logger  *slog.Logger
	queue   chan T

	mu         sync.RWMutex
	running    bool
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Pool.
type Config[T any] struct {
	Name      string
	Workers   int // default: 1
	QueueSize int // default: 1000
	Handler   Handler[T]
	Logger    *slog.Logger
}

// New создаёт Pool. Воркеры не запускаются до Start.
func New[T any](cfg Config[T]) *Pool[T] {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "pool"
	}

	return &Pool[T]{
		name:    name,
		workers: workers,
		handler: cfg.Handler,
		logger:  logger.With("pool", name),
		queue:   make(chan T, queueSize),
	}
}

// Start запускает воркеров. Повторный вызов на работающем пуле — no-op.
func (p *Pool[T]) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.ctx, p.cancelFunc = context.WithCancel(ctx)
	p.running = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(p.ctx, i)
	}

	p.logger.Debug("worker pool started", "workers", p.workers, "queue_size", cap(p.queue))
}

// Stop прекращает приём, отменяет воркеров и ждёт их завершения.
// Повторный вызов — no-op.
func (p *Pool[T]) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancelFunc()
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug("worker pool stopped", "pending", len(p.queue))
}

// Submit ставит item в очередь. Блокируется, пока очередь заполнена.
// Возвращает ErrStopped, если пул не запущен или остановлен во время ожидания.
func (p *Pool[T]) Submit(ctx context.Context, item T) error {
	p.mu.RLock()
	if !p.running {
		p.mu.RUnlock()
		return ErrStopped
	}
	poolCtx := p.ctx
	p.mu.RUnlock()

	select {
	case p.queue <- item:
		return nil
	case <-poolCtx.Done():
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("submit to %s: %w", p.name, ctx.Err())
	}
}

// Len возвращает количество элементов в очереди.
func (p *Pool[T]) Len() int {
	return len(p.queue)
}

// IsRunning сообщает, запущен ли пул.
func (p *Pool[T]) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Pool[T]) work(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-p.queue:
			if ctx.Err() != nil {
				return
			}
			p.handle(ctx, id, item)
		}
	}
}

func (p *Pool[T]) handle(ctx context.Context, id int, item T) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker panic recovered",
				"worker", id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	p.handler(ctx, item)
}
