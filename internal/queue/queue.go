package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/vending-kiosk/internal/orchestrator"
)

var (
	// ErrClosed is returned once intake has been closed for shutdown.
	ErrClosed = errors.New("action queue closed")
	// ErrFull is returned when the backlog is at capacity.
	ErrFull = errors.New("action backlog full")
	// ErrBusy is returned under the reject policy while an action runs.
	ErrBusy = errors.New("another action is in progress")
)

// Job is one queued action and the channel its record is delivered on.
type Job struct {
	Seq    uint64
	Action orchestrator.Action
	done   chan orchestrator.Record
}

func newJob(seq uint64, a orchestrator.Action) *Job {
	return &Job{Seq: seq, Action: a, done: make(chan orchestrator.Record, 1)}
}

// Done delivers the finished record exactly once.
func (j *Job) Done() <-chan orchestrator.Record { return j.done }

// Queue is a bounded FIFO of jobs with a background broker.
type Queue struct {
	mu           sync.Mutex
	backlog      []*Job
	max          int
	notify       chan struct{}
	out          chan *Job
	shuttingDown atomic.Bool

	enqueued  atomic.Uint64
	processed atomic.Uint64
}

// New creates a Queue holding at most max pending jobs.
func New(max int) *Queue {
	if max <= 0 {
		max = 16
	}
	return &Queue{
		max:    max,
		notify: make(chan struct{}, 1),
		out:    make(chan *Job, 1),
	}
}

// Start runs the broker loop.
func (q *Queue) Start(ctx context.Context) {
	go q.broker(ctx)
}

// broker moves backlog items to the output channel in order.
func (q *Queue) broker(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		q.flushOnce()
		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

func (q *Queue) flushOnce() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.backlog) > 0 && len(q.out) < cap(q.out) {
		item := q.backlog[0]
		q.backlog = q.backlog[1:]
		q.out <- item
	}
}

// Enqueue appends a job and wakes the broker.
func (q *Queue) Enqueue(j *Job) error {
	if q.shuttingDown.Load() {
		return ErrClosed
	}
	q.mu.Lock()
	if len(q.backlog)+len(q.out) >= q.max {
		q.mu.Unlock()
		return ErrFull
	}
	q.enqueued.Add(1)
	q.backlog = append(q.backlog, j)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Out exposes the ordered job stream.
func (q *Queue) Out() <-chan *Job { return q.out }

// BacklogSize returns jobs not yet handed to the worker.
func (q *Queue) BacklogSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog) + len(q.out)
}

// MarkProcessed increases the processed counter.
func (q *Queue) MarkProcessed() { q.processed.Add(1) }

// Pending returns jobs enqueued but not yet finished, including the one
// currently running.
func (q *Queue) Pending() int {
	return int(q.enqueued.Load() - q.processed.Load())
}

// Metrics returns counters and sizes for observability.
func (q *Queue) Metrics() (enq, proc uint64, backlog int) {
	return q.enqueued.Load(), q.processed.Load(), q.BacklogSize()
}

// CloseIntake disallows future enqueues.
func (q *Queue) CloseIntake() { q.shuttingDown.Store(true) }

// IsShuttingDown reports if intake has been closed.
func (q *Queue) IsShuttingDown() bool { return q.shuttingDown.Load() }
