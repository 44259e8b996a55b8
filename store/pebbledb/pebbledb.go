// Package pebbledb adapts a Pebble LSM engine to the store contract. It is
// the only backend in this module with real range compaction.
package pebbledb

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/isabella232/bench-1/store"
)

type Options struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// CacheSize in bytes, 0 leaves Pebble's default.
	CacheSize int64
}

type DB struct {
	db     *pebble.DB
	closed atomic.Bool
}

var (
	_ store.Store          = (*DB)(nil)
	_ store.RangeCompacter = (*DB)(nil)
	_ store.DiskUsager     = (*DB)(nil)
)

func Open(opts Options) (*DB, error) {
	po := &pebble.Options{}
	dir := opts.Path
	if opts.InMemory {
		po.FS = vfs.NewMem()
		dir = ""
	} else if dir == "" {
		return nil, errors.New("pebbledb: a data directory is required")
	}
	if opts.CacheSize > 0 {
		c := pebble.NewCache(opts.CacheSize)
		defer c.Unref()
		po.Cache = c
	}
	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, errors.Wrapf(err, "opening pebble at %q", dir)
	}
	return &DB{db: db}, nil
}

func (d *DB) Type() string { return "pebble" }

func (d *DB) Status() string {
	if d.closed.Load() {
		return store.StatusClosed
	}
	return store.StatusOpen
}

func (d *DB) Get(_ context.Context, key []byte, _ store.GetOptions) ([]byte, error) {
	v, closer, err := d.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DB) Batch(_ context.Context, ops []store.Op, opts store.WriteOptions) error {
	b := d.db.NewBatch()
	defer b.Close()
	for _, op := range ops {
		if err := b.Set(op.Key, op.Value, nil); err != nil {
			return err
		}
	}
	wo := pebble.NoSync
	if opts.Sync {
		wo = pebble.Sync
	}
	return b.Commit(wo)
}

func (d *DB) NewIterator(ctx context.Context, opts store.IteratorOptions) (store.Iterator, error) {
	io := &pebble.IterOptions{}
	if len(opts.Start) > 0 {
		io.LowerBound = opts.Start
	}
	if len(opts.End) > 0 {
		io.UpperBound = opts.End
	}
	it, err := d.db.NewIterWithContext(ctx, io)
	if err != nil {
		return nil, err
	}
	return &iterator{it: it, limit: opts.Limit}, nil
}

// CompactRange compacts [start, end] inclusive of end.
func (d *DB) CompactRange(_ context.Context, start, end []byte) error {
	upper := append(append([]byte(nil), end...), 0)
	return d.db.Compact(start, upper, true)
}

func (d *DB) DiskUsage(context.Context) (uint64, error) {
	return d.db.Metrics().DiskSpaceUsage(), nil
}

func (d *DB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return errors.New("pebbledb: already closed")
	}
	return d.db.Close()
}

type iterator struct {
	it      *pebble.Iterator
	started bool
	limit   int
	yielded int
	valid   bool
}

func (i *iterator) Next() bool {
	if i.limit > 0 && i.yielded >= i.limit {
		i.valid = false
		return false
	}
	if !i.started {
		i.started = true
		i.valid = i.it.First()
	} else {
		i.valid = i.it.Next()
	}
	if i.valid {
		i.yielded++
	}
	return i.valid
}

func (i *iterator) Key() []byte {
	if !i.valid {
		return nil
	}
	return i.it.Key()
}

func (i *iterator) Value() []byte {
	if !i.valid {
		return nil
	}
	return i.it.Value()
}

func (i *iterator) Error() error { return i.it.Error() }

func (i *iterator) Close() error { return i.it.Close() }
