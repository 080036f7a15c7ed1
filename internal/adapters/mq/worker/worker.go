// Package worker runs the import pool that drains the ingest queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/comparo/internal/adapters/mq/queue"
	"github.com/okian/comparo/internal/domain/dedupe"
	"github.com/okian/comparo/internal/domain/model"
	"github.com/okian/comparo/pkg/logger"
	"github.com/okian/comparo/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2
	poolShutdownTimeout     = 30 * time.Second
)

// Importer turns one raw record into a stored comparable.
type Importer interface {
	ImportRaw(ctx context.Context, body []byte) (model.Comparable, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes import jobs.
type Worker interface {
	// Run processes jobs until ctx is cancelled, Shutdown is called or the
	// queue is drained after close.
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	importer Importer
	name     string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading q.
func NewInMemoryWorker(q Queue, importer Importer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		importer: importer,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
		}
	}
}

// Shutdown stops the worker after its current job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	c, err := w.importer.ImportRaw(ctx, j.Body)
	j.Finish(err)

	switch {
	case err == nil:
		w.logger.Debug(ctx, "comparable imported",
			logger.String("job_id", j.ID), logger.String("comp_id", c.ID), logger.Int("version", c.Version))
	case errors.Is(err, model.ErrValidation), errors.Is(err, dedupe.ErrDuplicate):
		w.logger.Warn(ctx, "import rejected",
			logger.String("job_id", j.ID), logger.String("origin", j.Origin), logger.Error(err))
	default:
		metrics.RecordWorkerError()
		w.logger.Error(ctx, "import failed",
			logger.String("job_id", j.ID), logger.String("origin", j.Origin), logger.Error(err))
	}
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates workerCount workers; < 1 means 2 x NumCPU.
func NewPool(workerCount int, q Queue, importer Importer) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(q, importer, WithName("worker-"+strconv.Itoa(i)))
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerCount(len(p.workers))
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Shutdown closes the queue, then waits for workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut > 0 {
		return fmt.Errorf("worker.Pool.Shutdown: %d workers still running: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
