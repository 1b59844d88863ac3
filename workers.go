package pdfjobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

// Task is a unit of work run by the WorkerPool.
type Task func()

// WorkerPool runs tasks on a fixed number of goroutines. Submissions never
// block: when every worker is busy, tasks wait in an unbounded backlog.
type WorkerPool struct {
	size   int
	logger zerolog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	backlog []Task
	active  int
	closed  bool
	wg      sync.WaitGroup
}

// NewWorkerPool starts n workers. n < 1 is treated as 1.
func NewWorkerPool(n int, logger zerolog.Logger) *WorkerPool {
	if n < 1 {
		n = 1
	}
	p := &WorkerPool{size: n, logger: logger}
	p.cond = sync.NewCond(&p.mu)

	for i := range n {
		p.wg.Add(1)
		go p.work(i)
	}
	return p
}

// Submit schedules t. Returns ErrPoolClosed after Close.
func (p *WorkerPool) Submit(t Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.backlog = append(p.backlog, t)
	p.cond.Signal()
	return nil
}

// Close stops intake and waits for the backlog to drain or ctx to end.
// Workers keep running past a ctx timeout until their backlog is empty.
func (p *WorkerPool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d queued tasks: %w", p.Backlog(), ctx.Err())
	}
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return p.size
}

// Backlog returns the number of tasks not yet picked up.
func (p *WorkerPool) Backlog() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backlog)
}

// Active returns the number of tasks currently running.
func (p *WorkerPool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *WorkerPool) work(id int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.backlog) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.backlog) == 0 {
			p.mu.Unlock()
			return
		}
		t := p.backlog[0]
		p.backlog[0] = nil
		p.backlog = p.backlog[1:]
		p.active++
		p.mu.Unlock()

		p.run(id, t)

		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}
}

// run executes t, keeping the worker alive if it panics.
func (p *WorkerPool) run(id int, t Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Int("worker", id).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("task panicked")
		}
	}()
	t()
}
