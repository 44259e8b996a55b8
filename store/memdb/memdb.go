// Package memdb is an in-memory ordered store backed by a B-tree. It is the
// default backend and the one tests run against.
package memdb

import (
	"bytes"
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"

	"github.com/isabella232/bench-1/store"
)

const (
	degree = 32
	// pageSize is how many entries an iterator copies out per tree walk.
	pageSize = 256
)

var errClosed = errors.New("memdb: closed")

type entry struct {
	key   []byte
	value []byte
}

func (e *entry) Less(than btree.Item) bool {
	return bytes.Compare(e.key, than.(*entry).key) < 0
}

// DB is safe for concurrent use.
type DB struct {
	mu     sync.RWMutex
	tree   *btree.BTree
	closed bool
}

var _ store.Store = (*DB)(nil)
var _ store.DiskUsager = (*DB)(nil)

func New() *DB {
	return &DB{tree: btree.New(degree)}
}

func (db *DB) Type() string { return "memdb" }

func (db *DB) Status() string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return store.StatusClosed
	}
	return store.StatusOpen
}

func (db *DB) Get(_ context.Context, key []byte, _ store.GetOptions) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, errClosed
	}
	item := db.tree.Get(&entry{key: key})
	if item == nil {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), item.(*entry).value...), nil
}

func (db *DB) Batch(_ context.Context, ops []store.Op, _ store.WriteOptions) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errClosed
	}
	for _, op := range ops {
		db.tree.ReplaceOrInsert(&entry{
			key:   append([]byte(nil), op.Key...),
			value: append([]byte(nil), op.Value...),
		})
	}
	return nil
}

func (db *DB) NewIterator(_ context.Context, opts store.IteratorOptions) (store.Iterator, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, errClosed
	}
	it := &iterator{db: db, next: opts.Start, end: opts.End}
	if opts.Limit > 0 {
		it.limited = true
		it.remaining = opts.Limit
	}
	return it, nil
}

// DiskUsage reports the total size of keys and values held in memory.
func (db *DB) DiskUsage(context.Context) (uint64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var size uint64
	db.tree.Ascend(func(i btree.Item) bool {
		e := i.(*entry)
		size += uint64(len(e.key) + len(e.value))
		return true
	})
	return size, nil
}

func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tree.Len()
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errClosed
	}
	db.closed = true
	return nil
}

type iterator struct {
	db *DB
	// next is the inclusive lower bound of the next page.
	next      []byte
	end       []byte
	limited   bool
	remaining int
	page      []*entry
	cur       *entry
	done      bool
	err       error
}

func (it *iterator) fill() {
	it.db.mu.RLock()
	defer it.db.mu.RUnlock()
	if it.db.closed {
		it.err = errClosed
		return
	}
	it.page = it.page[:0]
	visit := func(i btree.Item) bool {
		e := i.(*entry)
		if len(it.end) > 0 && bytes.Compare(e.key, it.end) >= 0 {
			return false
		}
		it.page = append(it.page, e)
		return len(it.page) < pageSize
	}
	if len(it.next) == 0 {
		it.db.tree.Ascend(visit)
	} else {
		it.db.tree.AscendGreaterOrEqual(&entry{key: it.next}, visit)
	}
	if len(it.page) < pageSize {
		it.done = true
		return
	}
	last := it.page[len(it.page)-1].key
	it.next = append(append([]byte(nil), last...), 0)
}

func (it *iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.limited && it.remaining == 0 {
		it.cur = nil
		return false
	}
	if len(it.page) == 0 {
		if it.done {
			it.cur = nil
			return false
		}
		it.fill()
		if it.err != nil || len(it.page) == 0 {
			it.cur = nil
			return false
		}
	}
	it.cur, it.page = it.page[0], it.page[1:]
	if it.limited {
		it.remaining--
	}
	return true
}

func (it *iterator) Key() []byte {
	if it.cur == nil {
		return nil
	}
	return it.cur.key
}

func (it *iterator) Value() []byte {
	if it.cur == nil {
		return nil
	}
	return it.cur.value
}

func (it *iterator) Error() error { return it.err }

func (it *iterator) Close() error {
	it.page = nil
	it.cur = nil
	it.done = true
	return nil
}
