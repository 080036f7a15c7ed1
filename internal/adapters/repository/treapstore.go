package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/comparo/internal/domain/candidate"
	"github.com/okian/comparo/internal/domain/geo"
	"github.com/okian/comparo/internal/domain/model"
	"github.com/okian/comparo/internal/domain/types"
	"github.com/okian/comparo/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: date DESC, then id ASC. In-order traversal yields the newest
// comparables first, and a date window prunes whole subtrees. A geohash cell
// index narrows radius searches before the exact haversine predicate.

type treapKey struct {
	date int64 // unix nanoseconds
	id   string
}

// less reports whether a is visited before b (newer first).
func less(a, b treapKey) bool {
	if a.date != b.date {
		return a.date > b.date
	}
	return a.id < b.id
}

type node struct {
	key   treapKey
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, k treapKey, prio uint64) *node {
	if n == nil {
		return &node{key: k, prio: prio, size: 1}
	}
	if less(k, n.key) {
		n.left = insert(n.left, k, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, k, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, k treapKey) *node {
	if n == nil {
		return nil
	}
	switch {
	case k == n.key:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, k)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, k)
		}
	case less(k, n.key):
		n.left = deleteNode(n.left, k)
	default:
		n.right = deleteNode(n.right, k)
	}
	fix(n)
	return n
}

// collectRange appends ids dated within [from, to] in tree order.
// Zero bounds are open.
func collectRange(n *node, from, to int64, out *[]string) {
	if n == nil {
		return
	}
	tooNew := to != 0 && n.key.date > to
	tooOld := from != 0 && n.key.date < from
	if !tooNew {
		collectRange(n.left, from, to, out)
	}
	if !tooNew && !tooOld {
		*out = append(*out, n.key.id)
	}
	if !tooOld {
		collectRange(n.right, from, to, out)
	}
}

// TreapStore keeps every version of every comparable; only the latest
// version per ref is indexed for queries.
type TreapStore struct {
	mu          sync.RWMutex
	root        *node
	byID        map[string]model.Comparable
	latestByRef map[string]string
	cells       map[string]map[string]struct{}

	settings

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTreapStore constructs a treap store and starts its metrics updater,
// which stops on ctx cancellation or Close.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		byID:        make(map[string]model.Comparable),
		latestByRef: make(map[string]string),
		cells:       make(map[string]map[string]struct{}),
		settings:    defaultSettings(),
		stopChan:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&s.settings)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops background goroutines.
func (s *TreapStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func keyOf(c model.Comparable) treapKey {
	return treapKey{date: c.Date.UnixNano(), id: c.ID}
}

// index adds c to the ordered tree and the cell index. Caller holds mu.
func (s *TreapStore) index(c model.Comparable) {
	s.root = insert(s.root, keyOf(c), rand.Uint64())
	cell := geo.Cell(c.Point())
	bucket, ok := s.cells[cell]
	if !ok {
		bucket = make(map[string]struct{})
		s.cells[cell] = bucket
	}
	bucket[c.ID] = struct{}{}
}

// unindex removes c from query indexes; it stays reachable by id. Caller holds mu.
func (s *TreapStore) unindex(c model.Comparable) {
	s.root = deleteNode(s.root, keyOf(c))
	cell := geo.Cell(c.Point())
	if bucket, ok := s.cells[cell]; ok {
		delete(bucket, c.ID)
		if len(bucket) == 0 {
			delete(s.cells, cell)
		}
	}
}

// ImportComparable implements Store.ImportComparable in O(log n) expected time.
func (s *TreapStore) ImportComparable(ctx context.Context, rec model.ComparableRecord) (model.Comparable, error) {
	const op = "repository.TreapStore.ImportComparable"
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryImportLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := ctx.Err(); err != nil {
		return model.Comparable{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := rec.Validate(); err != nil {
		return model.Comparable{}, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version := 1
	if rec.Ref != nil {
		if prevID, ok := s.latestByRef[*rec.Ref]; ok {
			prev := s.byID[prevID]
			version = prev.Version + 1
			s.unindex(prev)
		}
	}
	c := rec.ToComparable(s.newID(), version, s.now())
	s.byID[c.ID] = c
	s.index(c)
	if c.Ref != nil {
		s.latestByRef[*c.Ref] = c.ID
	}
	return c, nil
}

// GetComparable returns any stored version by id.
func (s *TreapStore) GetComparable(ctx context.Context, id string) (model.Comparable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return model.Comparable{}, fmt.Errorf("%w: %s", ErrComparableNotFound, id)
	}
	return c, nil
}

// QueryComparables implements Store.QueryComparables.
func (s *TreapStore) QueryComparables(ctx context.Context, filters model.SearchFilters, subject *model.SubjectRef) (types.Page[model.Comparable], error) {
	const op = "repository.TreapStore.QueryComparables"
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	plan, err := candidate.NewPlan(filters, subject)
	if err != nil {
		return types.Page[model.Comparable]{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := ctx.Err(); err != nil {
		return types.Page[model.Comparable]{}, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	pool := s.pool(plan)
	s.mu.RUnlock()

	return plan.Apply(pool), nil
}

// SelectComparables returns every match from one snapshot of the index.
func (s *TreapStore) SelectComparables(ctx context.Context, filters model.SearchFilters, subject *model.SubjectRef) ([]model.Comparable, error) {
	const op = "repository.TreapStore.SelectComparables"
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	filters.Page, filters.PageSize = 0, 0
	plan, err := candidate.NewPlan(filters, subject)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	pool := s.pool(plan)
	s.mu.RUnlock()

	return plan.Select(pool), nil
}

// pool returns the comparables a plan needs to look at. Caller holds mu.
func (s *TreapStore) pool(plan *candidate.Plan) []model.Comparable {
	if cells := plan.Cells(); cells != nil {
		var out []model.Comparable
		for _, cell := range cells {
			for id := range s.cells[cell] {
				out = append(out, s.byID[id])
			}
		}
		return out
	}

	f := plan.Filters()
	var from, to int64
	if f.DateFrom != nil {
		from = f.DateFrom.UnixNano()
	}
	if f.DateTo != nil {
		to = f.DateTo.UnixNano()
	}
	ids := make([]string, 0, nsize(s.root))
	collectRange(s.root, from, to, &ids)
	out := make([]model.Comparable, len(ids))
	for i, id := range ids {
		out[i] = s.byID[id]
	}
	return out
}

// Count returns the number of latest-version comparables.
func (s *TreapStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return nsize(s.root)
}

func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateComparablesTotal(s.Count(ctx))
			}
		}
	}()
}
