// Package worker runs background jobs on a fixed set of goroutines fed from
// a bounded queue.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

var (
	ErrQueueFull  = errors.New("worker: job queue full")
	ErrPoolClosed = errors.New("worker: pool is shut down")
)

type Job struct {
	Name string
	Run  func(ctx context.Context)
	// OnDrop runs instead of Run when the pool discards a queued job at shutdown.
	OnDrop func()
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, quit <-chan struct{}) {
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "job", job.Name)
				w.run(ctx, job)
			case <-quit:
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

func (w *Worker) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.Logger.Error("worker job panicked",
				"worker_id", w.ID,
				"job", job.Name,
				"error", r,
				"stack", string(debug.Stack()))
		}
	}()
	job.Run(ctx)
}

type Config struct {
	MaxWorkers   int
	JobQueueSize int
}

type Pool struct {
	jobQueue   chan Job
	workerPool chan chan Job
	quit       chan struct{}
	maxWorkers int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	logger *slog.Logger
}

func NewPool(config Config, logger *slog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	p := &Pool{
		jobQueue:   make(chan Job, jobQueueSize),
		workerPool: make(chan chan Job, maxWorkers),
		quit:       make(chan struct{}),
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}

	p.wg.Add(maxWorkers + 1)
	for i := 0; i < maxWorkers; i++ {
		NewWorker(i, p.workerPool, logger).Start(ctx, &p.wg, p.quit)
	}
	go p.dispatch()

	logger.Info("worker pool started",
		"max_workers", maxWorkers,
		"queue_size", jobQueueSize)

	return p
}

func (p *Pool) dispatch() {
	defer p.wg.Done()
	defer close(p.quit)

	for job := range p.jobQueue {
		if p.ctx.Err() != nil {
			p.drop(job)
			continue
		}

		select {
		case jobChannel := <-p.workerPool:
			if p.ctx.Err() != nil {
				p.workerPool <- jobChannel
				p.drop(job)
				continue
			}
			jobChannel <- job
		case <-p.ctx.Done():
			p.drop(job)
		}
	}

	p.logger.Info("dispatcher shutting down")
}

func (p *Pool) drop(job Job) {
	p.logger.Warn("dropping queued job at shutdown", "job", job.Name)
	if job.OnDrop != nil {
		job.OnDrop()
	}
}

// Submit enqueues job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobQueue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) Pending() int {
	return len(p.jobQueue)
}

func (p *Pool) Capacity() int {
	return cap(p.jobQueue)
}

// Shutdown stops intake and waits for queued and running jobs. When ctx ends
// first, running jobs see their context cancelled and queued jobs are dropped.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool", "pending", p.Pending())

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobQueue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("worker pool shutdown complete")
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown deadline reached, cancelling jobs")
		p.cancel()
		<-done
		return ctx.Err()
	}
}
