// Package service provides the valuation service that implements the
// operations required by the HTTP API.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/okian/comparo/internal/adapters/mq/queue"
	"github.com/okian/comparo/internal/adapters/mq/worker"
	"github.com/okian/comparo/internal/adapters/repository"
	"github.com/okian/comparo/internal/adapters/subject"
	"github.com/okian/comparo/internal/config"
	"github.com/okian/comparo/internal/domain/compset"
	"github.com/okian/comparo/internal/domain/dedupe"
	"github.com/okian/comparo/internal/domain/recency"
	"github.com/okian/comparo/pkg/logger"
	"github.com/okian/comparo/pkg/metrics"
)

const defaultStopTimeout = 30 * time.Second

// Service wires the comparable store, the valuation pipeline, comp sets and
// the async import pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	compsets  compset.Repository
	manager   *compset.Manager
	resolver  subject.Resolver
	deduper   dedupe.Deduper
	jobs      queue.Queue
	pool      *worker.Pool
	checker   *recency.Checker
	ownsStore bool

	// Configuration
	cfg         *config.Config
	workerCount int
	queueSize   int
	dedupeSize  int
	now         func() time.Time
	stopTimeout time.Duration

	// State
	started   bool
	stopping  bool
	cancelRun context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig supplies rule sets, score defaults and pipeline sizes.
// Explicit size options given after it still win.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg == nil {
			return
		}
		s.cfg = cfg
		if cfg.IngestWorkers > 0 {
			s.workerCount = cfg.IngestWorkers
		}
		if cfg.IngestQueueSize > 0 {
			s.queueSize = cfg.IngestQueueSize
		}
		if cfg.DedupeSize > 0 {
			s.dedupeSize = cfg.DedupeSize
		}
	}
}

// WithStore sets the comparable store. The caller keeps ownership.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithCompSetRepository sets comp set persistence.
func WithCompSetRepository(repo compset.Repository) Option {
	return func(s *Service) {
		if repo != nil {
			s.compsets = repo
		}
	}
}

// WithSubjectResolver sets the subject lookup used for propertyId requests.
func WithSubjectResolver(r subject.Resolver) Option {
	return func(s *Service) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithWorkerCount sets the number of import workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the import queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the number of import fingerprints remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithClock sets the time source used for recency and result stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Components that are not injected are created
// in memory by Start.
func New(opts ...Option) *Service {
	cfg := config.New(context.Background())
	s := &Service{
		cfg:         cfg,
		workerCount: cfg.IngestWorkers,
		queueSize:   cfg.IngestQueueSize,
		dedupeSize:  cfg.DedupeSize,
		now:         time.Now,
		stopTimeout: defaultStopTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the components and starts the import workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting valuation service...")

	// Workers outlive the caller's context so Stop can drain the queue.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelRun = cancel

	if s.store == nil {
		s.store = repository.NewTreapStore(runCtx, repository.WithClock(s.now))
		s.ownsStore = true
		s.logger.Info(ctx, "using in-memory treap store")
	}
	if s.compsets == nil {
		s.compsets = repository.NewMemoryCompSetRepository()
	}
	if s.resolver == nil {
		s.resolver = subject.New(s.cfg.SubjectServiceURL, time.Duration(s.cfg.SubjectTimeoutMS)*time.Millisecond)
	}
	s.manager = compset.NewManager(s.compsets, s.store, compset.WithClock(s.now))
	s.checker = recency.New(recency.WithClock(s.now), recency.WithWarnMonths(s.cfg.WarnMonths))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.jobs = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))

	s.pool = worker.NewPool(s.workerCount, s.jobs, workerImporter{s})
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "valuation service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the import queue and releases owned components. The lock is
// released while the workers drain, since every import they run reads
// service state. A Stop racing an in-progress Stop returns at once.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	pool, jobs, cancelRun := s.pool, s.jobs, s.cancelRun
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping valuation service...")

	// closes the queue and waits for queued imports
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	cancelRun()
	if n := jobs.Discard(ErrStopped); n > 0 {
		s.logger.Warn(ctx, "queued imports abandoned", logger.Int("jobs", n))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsStore {
		if closer, ok := s.store.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
	s.started = false
	s.stopping = false
	s.logger.Info(ctx, "valuation service stopped")
}

// running fails with ErrNotStarted before Start or after Stop.
func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"warnMonths":  s.cfg.WarnMonths,
	}

	if s.started {
		queueLen := s.jobs.Len(ctx)
		total := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["totalComparables"] = total
		stats["fingerprints"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateComparablesTotal(total)
		metrics.UpdateWorkerCount(s.pool.Size())
	}

	return stats
}
