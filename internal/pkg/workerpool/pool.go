package workerpool

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrPoolStopped = errors.New("workerpool: stopped")
	ErrQueueFull   = errors.New("workerpool: queue full")
)

// Pool 通用协程池
//
// 任务按提交顺序入队，由固定数量的 worker 执行。Stop 会等待队列中已有的任务执行完。
type Pool struct {
	jobs    chan func()
	workers int
	logger  *zap.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func New(workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		jobs:    make(chan func(), queueSize),
		workers: workers,
		logger:  logger,
	}
}

// Start 启动协程池
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			for job := range p.jobs {
				p.run(workerID, job)
			}
		}(i)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.workers), zap.Int("queue_size", cap(p.jobs)))
}

// 使用 recover 防止单个任务 panic 导致 worker 退出
func (p *Pool) run(workerID int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker job panicked", zap.Int("worker", workerID), zap.Any("panic", r))
		}
	}()
	job()
}

// Submit 提交任务，队列满时阻塞等待
func (p *Pool) Submit(job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}
	p.jobs <- job
	return nil
}

// TrySubmit 提交任务，队列满时立即返回 ErrQueueFull
func (p *Pool) TrySubmit(job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop 拒绝新任务，执行完队列中剩余的任务后返回
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}
