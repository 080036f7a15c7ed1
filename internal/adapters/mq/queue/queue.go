// Package queue buffers raw comparable import jobs between the intake
// (HTTP batch endpoint, AMQP consumer) and the import workers.
package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/okian/comparo/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Job is one raw import record waiting to be processed.
type Job struct {
	ID         string
	Body       json.RawMessage
	Origin     string // "http" or "amqp"
	ReceivedAt time.Time

	// Done, when set, is called once with the import outcome.
	Done func(err error)
}

// Finish reports the outcome to the job's producer, if it asked for one.
func (j Job) Finish(err error) {
	if j.Done != nil {
		j.Done(err)
	}
}

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue adds a job. It returns false when the queue is full or closed.
	Enqueue(ctx context.Context, j Job) bool

	// Dequeue returns a channel of jobs, closed after the queue is closed
	// and drained or when ctx ends.
	Dequeue(ctx context.Context) <-chan Job

	Len(ctx context.Context) int
	Capacity() int
	Close() error
	IsClosed() bool

	// Discard settles every buffered job with err and returns how many
	// there were.
	Discard(err error) int
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a job without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed || ctx.Err() != nil {
		metrics.RecordQueueRejected()
		return false
	}
	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.jobs))
		return true
	default:
		metrics.RecordQueueRejected()
		return false
	}
}

// Dequeue returns a channel that yields queued jobs.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case j, ok := <-q.jobs:
				if !ok {
					return
				}
				metrics.UpdateQueueSize(len(q.jobs))
				select {
				case out <- j:
				case <-ctx.Done():
					j.Finish(ctx.Err())
					return
				}
			}
		}
	}()
	return out
}

// Len returns the number of queued jobs.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	return len(q.jobs)
}

// Capacity returns the maximum number of queued jobs.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close stops intake; queued jobs are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// Discard finishes the jobs left in the buffer with err.
func (q *InMemoryQueue) Discard(err error) int {
	n := 0
	defer func() { metrics.UpdateQueueSize(len(q.jobs)) }()
	for {
		select {
		case j, ok := <-q.jobs:
			if !ok {
				return n
			}
			j.Finish(err)
			n++
		default:
			return n
		}
	}
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
