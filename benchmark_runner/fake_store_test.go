package benchmark_runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/isabella232/bench-1/store"
	"github.com/isabella232/bench-1/store/memdb"
)

type batchCall struct {
	size int
	sync bool
}

// recordingStore is a memdb that records every call the benchmark makes and
// can be told to misbehave.
type recordingStore struct {
	db *memdb.DB

	// iterEndAt ends every iterator after that many entries when > 0.
	iterEndAt int
	// failGetAt fails the nth Get (1-based) when > 0.
	failGetAt int64
	closeErr  error
	getDelay  time.Duration

	mu          sync.Mutex
	batches     []batchCall
	compactions [][2]string
	iterators   int
	closes      int
	keys        map[string]int

	gets        atomic.Int64
	inflight    atomic.Int64
	maxInflight atomic.Int64
}

func newRecordingStore() *recordingStore {
	return &recordingStore{db: memdb.New(), keys: map[string]int{}}
}

func (r *recordingStore) Type() string   { return "recording" }
func (r *recordingStore) Status() string { return r.db.Status() }

func (r *recordingStore) Get(ctx context.Context, key []byte, opts store.GetOptions) ([]byte, error) {
	cur := r.inflight.Add(1)
	defer r.inflight.Add(-1)
	for {
		max := r.maxInflight.Load()
		if cur <= max || r.maxInflight.CompareAndSwap(max, cur) {
			break
		}
	}
	n := r.gets.Add(1)
	r.mu.Lock()
	r.keys[string(key)]++
	r.mu.Unlock()
	if r.getDelay > 0 {
		time.Sleep(r.getDelay)
	}
	if r.failGetAt > 0 && n == r.failGetAt {
		return nil, errors.New("injected get failure")
	}
	return r.db.Get(ctx, key, opts)
}

func (r *recordingStore) Batch(ctx context.Context, ops []store.Op, opts store.WriteOptions) error {
	r.mu.Lock()
	r.batches = append(r.batches, batchCall{size: len(ops), sync: opts.Sync})
	r.mu.Unlock()
	return r.db.Batch(ctx, ops, opts)
}

func (r *recordingStore) NewIterator(ctx context.Context, opts store.IteratorOptions) (store.Iterator, error) {
	r.mu.Lock()
	r.iterators++
	r.mu.Unlock()
	it, err := r.db.NewIterator(ctx, opts)
	if err != nil {
		return nil, err
	}
	if r.iterEndAt > 0 {
		return &cutIterator{Iterator: it, left: r.iterEndAt}, nil
	}
	return it, nil
}

func (r *recordingStore) CompactRange(_ context.Context, start, end []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compactions = append(r.compactions, [2]string{string(start), string(end)})
	return nil
}

func (r *recordingStore) DiskUsage(ctx context.Context) (uint64, error) {
	return r.db.DiskUsage(ctx)
}

func (r *recordingStore) Close() error {
	r.mu.Lock()
	r.closes++
	r.mu.Unlock()
	if r.closeErr != nil {
		return r.closeErr
	}
	return r.db.Close()
}

func (r *recordingStore) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

type cutIterator struct {
	store.Iterator
	left int
}

func (c *cutIterator) Next() bool {
	if c.left == 0 {
		return false
	}
	c.left--
	return c.Iterator.Next()
}

// bareStore has no optional capabilities at all.
type bareStore struct {
	store.Store
}

func benchmarkFor(s store.Store) Benchmark {
	return FactoryBenchmark{
		Backend: "recording",
		Factory: func(context.Context) (store.Store, error) { return s, nil },
	}
}
