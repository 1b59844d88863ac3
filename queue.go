package pdfjobs

import (
	"os"
	"sync"
)

// Job is a validated request waiting for execution.
type Job struct {
	RequestID string
	Operation Operation

	// payload is the operation's request; generate jobs carry a *renderJob.
	payload any
	// assets are files created while accepting the request, removed with
	// the job's workspace.
	assets []string
	// waiter keys the channel of a caller blocked on the Result.
	waiter string
}

// discardAssets removes the job's assets when it will never run.
func (j *Job) discardAssets() {
	for _, a := range j.assets {
		_ = os.Remove(a)
	}
	j.assets = nil
}

// renderJob is a generate request whose template is already expanded.
type renderJob struct {
	html     string
	page     *PageSettings
	fileName string
}

// JobQueue is an unbounded FIFO of rendered template jobs. Any number of
// goroutines may enqueue; a single loop drains it.
type JobQueue struct {
	mu    sync.Mutex
	jobs  []*Job
	ready chan struct{}
}

// NewJobQueue creates an empty queue.
func NewJobQueue() *JobQueue {
	return &JobQueue{ready: make(chan struct{}, 1)}
}

// Enqueue appends job at the tail. Never blocks.
func (q *JobQueue) Enqueue(job *Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// DrainAll removes and returns every queued job, head first.
func (q *JobQueue) DrainAll() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := q.jobs
	q.jobs = nil
	return jobs
}

// Size returns the current depth.
func (q *JobQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Ready is signaled after an enqueue. The drain loop uses it to avoid
// waiting a full interval when work arrives.
func (q *JobQueue) Ready() <-chan struct{} {
	return q.ready
}
