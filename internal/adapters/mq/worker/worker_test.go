package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/comparo/internal/adapters/mq/queue"
	"github.com/okian/comparo/internal/adapters/mq/worker"
	"github.com/okian/comparo/internal/domain/dedupe"
	"github.com/okian/comparo/internal/domain/model"
	logging "github.com/okian/comparo/pkg/logger"
)

type mockImporter struct {
	mu     sync.Mutex
	bodies []string
	fail   map[string]error
}

func newMockImporter() *mockImporter {
	return &mockImporter{fail: make(map[string]error)}
}

func (m *mockImporter) ImportRaw(_ context.Context, body []byte) (model.Comparable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fail[string(body)]; ok {
		return model.Comparable{}, err
	}
	m.bodies = append(m.bodies, string(body))
	return model.Comparable{ID: fmt.Sprintf("c-%d", len(m.bodies)), Version: 1}, nil
}

func (m *mockImporter) imported() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bodies)
}

// outcome collects the Done callbacks of jobs.
type outcome struct {
	mu   sync.Mutex
	errs map[string]error
	wg   sync.WaitGroup
}

func newOutcome() *outcome { return &outcome{errs: make(map[string]error)} }

func (o *outcome) job(id, body string) queue.Job {
	o.wg.Add(1)
	return queue.Job{
		ID:   id,
		Body: json.RawMessage(body),
		Done: func(err error) {
			o.mu.Lock()
			o.errs[id] = err
			o.mu.Unlock()
			o.wg.Done()
		},
	}
}

func (o *outcome) wait(timeout time.Duration) bool {
	ch := make(chan struct{})
	go func() { o.wg.Wait(); close(ch) }()
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a queue", t, func() {
		_ = logging.Init()
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		imp := newMockImporter()
		w := worker.NewInMemoryWorker(q, imp, worker.WithName("test-worker"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When jobs succeed and fail", func() {
			imp.fail[`{"bad":true}`] = model.NewValidationError("price", "must be > 0")
			imp.fail[`{"dup":true}`] = dedupe.ErrDuplicate
			imp.fail[`{"down":true}`] = errors.New("store unavailable")

			out := newOutcome()
			for id, body := range map[string]string{
				"ok": `{"ok":true}`, "bad": `{"bad":true}`, "dup": `{"dup":true}`, "down": `{"down":true}`,
			} {
				convey.So(q.Enqueue(ctx, out.job(id, body)), convey.ShouldBeTrue)
			}

			convey.Convey("Then every job reports its own outcome", func() {
				convey.So(out.wait(time.Second), convey.ShouldBeTrue)
				convey.So(out.errs["ok"], convey.ShouldBeNil)
				convey.So(errors.Is(out.errs["bad"], model.ErrValidation), convey.ShouldBeTrue)
				convey.So(errors.Is(out.errs["dup"], dedupe.ErrDuplicate), convey.ShouldBeTrue)
				convey.So(out.errs["down"], convey.ShouldNotBeNil)
				convey.So(imp.imported(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the worker is shut down", func() {
			err := w.Shutdown(context.Background())

			convey.Convey("Then it stops and a second shutdown is harmless", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		_ = logging.Init()
		q := queue.NewInMemoryQueue(queue.WithCapacity(500))
		imp := newMockImporter()
		pool := worker.NewPool(4, q, imp)
		convey.So(pool.Size(), convey.ShouldEqual, 4)
		convey.So(worker.NewPool(0, q, imp).Size(), convey.ShouldBeGreaterThan, 0)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When many jobs are queued and the pool shuts down", func() {
			for i := 0; i < 300; i++ {
				convey.So(q.Enqueue(ctx, queue.Job{ID: fmt.Sprint(i), Body: json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))}), convey.ShouldBeTrue)
			}
			err := pool.Shutdown(context.Background())

			convey.Convey("Then the queue is drained before workers exit", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(imp.imported(), convey.ShouldEqual, 300)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}
