package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	ErrPoolStopped = errors.New("worker pool stopped")
	ErrQueueFull   = errors.New("task queue is full")
)

// Pool runs tasks on a fixed number of workers fed by a bounded queue
type Pool struct {
	name        string
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewPool(name string, workerCount, queueSize int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		name:        name,
		workerCount: max(workerCount, 1),
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, max(queueSize, 1)),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	slog.Debug("Worker pool started", "pool", p.name, "workers", p.workerCount, "capacity", cap(p.taskQueue))
}

// Stop cancels running tasks, drops queued ones and waits for every worker to exit.
// The queue is left open so late submitters get ErrPoolStopped instead of a panic.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()

	slog.Debug("Worker pool stopped", "pool", p.name, "dropped", len(p.taskQueue))
}

// Submit enqueues a task, blocking while the queue is full. It returns once the
// task is queued, ctx is done or the pool is stopped.
func (p *Pool) Submit(ctx context.Context, task TaskInterface) error {
	if p.ctx.Err() != nil {
		return ErrPoolStopped
	}

	select {
	case p.taskQueue <- task:
		// Workers never run what they receive after Stop
		if p.ctx.Err() != nil {
			return ErrPoolStopped
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolStopped
	}
}

// TrySubmit enqueues a task without waiting
func (p *Pool) TrySubmit(task TaskInterface) error {
	if p.ctx.Err() != nil {
		return ErrPoolStopped
	}

	select {
	case p.taskQueue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueSize returns the number of tasks waiting for a worker
func (p *Pool) QueueSize() int {
	return len(p.taskQueue)
}

func (p *Pool) Capacity() int {
	return cap(p.taskQueue)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case task := <-p.taskQueue:
			if p.ctx.Err() != nil {
				return
			}
			p.executeTask(id, task)

		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) executeTask(workerID int, task TaskInterface) {
	task.Start()

	err := p.run(task)

	if completer, ok := task.(Completer); ok {
		completer.Complete(err)
	}

	if err != nil {
		slog.Error("Worker task execution failed", "pool", p.name, "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "feed", task.GetFeedURL(), "error", err)
		return
	}

	slog.Debug("Worker task completed", "pool", p.name, "worker_id", workerID, "type", string(task.GetType()), "feed", task.GetFeedURL(), "duration", task.GetDuration())
}

func (p *Pool) run(task TaskInterface) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return task.Execute(p.ctx)
}
