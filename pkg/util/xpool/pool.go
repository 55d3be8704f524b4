package xpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

const (
	// MaxWorkers worker 数量上限
	MaxWorkers = 1 << 16
	// MaxQueueSize 队列大小上限
	MaxQueueSize = 1 << 24
)

// Pool 固定数量 worker + 有界 FIFO 队列的泛型 worker pool。
//
// Submit 从不阻塞：队列满时立即返回 ErrQueueFull。
// Reconfigure 在写锁内原子地替换队列与 worker 集合，与 Submit 的读锁互斥，
// 因此不会向已被替换的旧队列提交任务。
type Pool[T any] struct {
	handler func(T)
	opts    options

	mu     sync.RWMutex
	gen    *generation[T]
	closed bool

	// retired 跟踪被 Reconfigure 替换、仍在排空旧队列的 worker
	retired sync.WaitGroup
	done    chan struct{}
}

// generation 一组 worker 与它们消费的队列
type generation[T any] struct {
	queue   chan T
	workers int
	wg      sync.WaitGroup
}

// New 创建并立即启动 pool。
//
// workers 取值 [1, MaxWorkers]，queueSize 取值 [1, MaxQueueSize]，
// 超出范围返回 ErrInvalidWorkers / ErrInvalidQueueSize；handler 为 nil 返回 ErrNilHandler。
func New[T any](workers, queueSize int, handler func(T), opts ...Option) (*Pool[T], error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if err := validate(workers, queueSize); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	p := &Pool[T]{
		handler: handler,
		opts:    o,
		done:    make(chan struct{}),
	}
	p.gen = p.startGeneration(workers, queueSize)
	return p, nil
}

func validate(workers, queueSize int) error {
	if workers < 1 || workers > MaxWorkers {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}
	if queueSize < 1 || queueSize > MaxQueueSize {
		return fmt.Errorf("%w: %d", ErrInvalidQueueSize, queueSize)
	}
	return nil
}

func (p *Pool[T]) startGeneration(workers, queueSize int) *generation[T] {
	g := &generation[T]{
		queue:   make(chan T, queueSize),
		workers: workers,
	}
	g.wg.Add(workers)
	for range workers {
		go p.worker(g)
	}
	return g
}

// worker 只在队列关闭后退出，确保关闭或重新配置时剩余任务被处理完。
func (p *Pool[T]) worker(g *generation[T]) {
	defer g.wg.Done()
	for task := range g.queue {
		p.run(task)
	}
}

// run 执行单个任务，恢复 panic，单个任务失败不影响 worker。
func (p *Pool[T]) run(task T) {
	defer func() {
		if r := recover(); r != nil {
			attrs := []any{
				slog.Any("panic", r),
				slog.String("task_type", fmt.Sprintf("%T", task)),
				slog.String("stack", string(debug.Stack())),
			}
			if p.opts.logTaskValue {
				attrs = append(attrs, slog.Any("task", task))
			}
			if p.opts.name != "" {
				attrs = append(attrs, slog.String("pool", p.opts.name))
			}
			p.opts.logger.Error("xpool: worker panic recovered", attrs...)
		}
	}()
	p.handler(task)
}

// Submit 非阻塞提交任务。
//
// 队列满返回 ErrQueueFull，pool 已关闭返回 ErrPoolStopped。
func (p *Pool[T]) Submit(task T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolStopped
	}
	select {
	case p.gen.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Reconfigure 以新的 worker 数量与队列大小替换当前队列和 worker 集合。
//
// 替换在写锁内完成，之后的 Submit 只会进入新队列；旧 worker 排空旧队列后退出，
// 已排队的任务不会丢失。参数校验规则同 New，pool 已关闭返回 ErrPoolStopped。
func (p *Pool[T]) Reconfigure(workers, queueSize int) error {
	if err := validate(workers, queueSize); err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	old := p.gen
	p.gen = p.startGeneration(workers, queueSize)
	close(old.queue)
	p.retired.Add(1)
	p.mu.Unlock()

	go func() {
		old.wg.Wait()
		p.retired.Done()
	}()
	return nil
}

// Shutdown 停止接收新任务，等待队列中剩余任务处理完成。
//
// ctx 到期时立即返回 ctx.Err()，残留 worker 继续在后台排空队列，
// 可通过 Done() 等待其最终完成。重复调用返回 nil。
// 不可在 handler 内调用，否则会死锁。
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return p.wait(ctx)
	}
	p.closed = true
	g := p.gen
	close(g.queue)
	p.mu.Unlock()

	go func() {
		g.wg.Wait()
		p.retired.Wait()
		close(p.done)
	}()
	return p.wait(ctx)
}

func (p *Pool[T]) wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 等价于 Shutdown(context.Background())
func (p *Pool[T]) Close() error {
	return p.Shutdown(context.Background())
}

// Done 返回在所有 worker 退出后关闭的 channel
func (p *Pool[T]) Done() <-chan struct{} {
	return p.done
}

// Workers 返回当前 worker 数量
func (p *Pool[T]) Workers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gen.workers
}

// QueueSize 返回当前队列容量
func (p *Pool[T]) QueueSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cap(p.gen.queue)
}

// Len 返回当前队列中等待处理的任务数
func (p *Pool[T]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.gen.queue)
}
