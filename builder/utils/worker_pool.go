package utils

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

const (
	MaxWorkers       = 32
	WorkerBufferSize = 4
)

// WorkerPool runs handler over submitted tasks on a fixed number of
// goroutines. Handler errors are collected and returned by Stop.
type WorkerPool[T any] struct {
	workers   int
	ctx       context.Context
	wg        sync.WaitGroup
	taskQueue chan T
	handler   func(context.Context, T) error

	mu   sync.Mutex
	errs []error
}

func NewWorkerPool[T any](ctx context.Context, workers int, handler func(context.Context, T) error) *WorkerPool[T] {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	return &WorkerPool[T]{
		workers:   workers,
		ctx:       ctx,
		taskQueue: make(chan T, workers*WorkerBufferSize),
		handler:   handler,
	}
}

func (p *WorkerPool[T]) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *WorkerPool[T]) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			if err := p.handler(p.ctx, task); err != nil {
				p.mu.Lock()
				p.errs = append(p.errs, err)
				p.mu.Unlock()
			}
		}
	}
}

// Submit queues a task. It returns false when the context is done.
func (p *WorkerPool[T]) Submit(task T) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.taskQueue <- task:
		return true
	}
}

// Stop closes the queue, waits for the workers and returns the joined
// handler errors, or the context error if the pool was cancelled.
func (p *WorkerPool[T]) Stop() error {
	close(p.taskQueue)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ctx.Err(); err != nil {
		return errors.Join(append([]error{err}, p.errs...)...)
	}
	return errors.Join(p.errs...)
}
