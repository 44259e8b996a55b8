// Package redisdb runs the benchmark against a Redis server. Redis keeps
// everything in memory, so it reports used_memory as its disk usage and has
// nothing to compact.
package redisdb

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/mediocregopher/radix/v3"

	"github.com/isabella232/bench-1/store"
)

const scanCount = 1000

type Options struct {
	Host string
	// PoolSize is the number of connections, usually the read concurrency.
	PoolSize int
}

type DB struct {
	pool   *radix.Pool
	closed atomic.Bool
}

var (
	_ store.Store      = (*DB)(nil)
	_ store.DiskUsager = (*DB)(nil)
)

func Open(opts Options) (*DB, error) {
	size := opts.PoolSize
	if size < 1 {
		size = 1
	}
	pool, err := radix.NewPool("tcp", opts.Host, size, radix.PoolPipelineWindow(0, 0))
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to redis at %s", opts.Host)
	}
	return &DB{pool: pool}, nil
}

func (d *DB) Type() string { return "redis" }

func (d *DB) Status() string {
	if d.closed.Load() {
		return store.StatusClosed
	}
	return store.StatusOpen
}

func (d *DB) Get(_ context.Context, key []byte, _ store.GetOptions) ([]byte, error) {
	var val []byte
	mn := radix.MaybeNil{Rcv: &val}
	if err := d.pool.Do(radix.Cmd(&mn, "GET", string(key))); err != nil {
		return nil, err
	}
	if mn.Nil {
		return nil, store.ErrNotFound
	}
	return val, nil
}

func (d *DB) Batch(_ context.Context, ops []store.Op, _ store.WriteOptions) error {
	if len(ops) == 0 {
		return nil
	}
	cmds := make([]radix.CmdAction, 0, len(ops))
	for _, op := range ops {
		cmds = append(cmds, radix.FlatCmd(nil, "SET", string(op.Key), op.Value))
	}
	return d.pool.Do(radix.Pipeline(cmds...))
}

// NewIterator walks the keyspace with SCAN, so entries come back in hash
// order rather than key order. Start and End filter keys client side.
func (d *DB) NewIterator(ctx context.Context, opts store.IteratorOptions) (store.Iterator, error) {
	so := radix.ScanOpts{Command: "SCAN", Count: scanCount}
	if len(opts.Start) > 0 && len(opts.End) > 0 {
		if p := commonPrefix(opts.Start, opts.End); len(p) > 0 {
			so.Pattern = globEscape(p) + "*"
		}
	}
	return &iterator{
		db:      d,
		ctx:     ctx,
		scanner: radix.NewScanner(d.pool, so),
		start:   opts.Start,
		end:     opts.End,
		limit:   opts.Limit,
	}, nil
}

// DiskUsage returns used_memory from INFO memory.
func (d *DB) DiskUsage(context.Context) (uint64, error) {
	var info string
	if err := d.pool.Do(radix.Cmd(&info, "INFO", "memory")); err != nil {
		return 0, err
	}
	return parseUsedMemory(info)
}

func (d *DB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return errors.New("redisdb: already closed")
	}
	return d.pool.Close()
}

func parseUsedMemory(info string) (uint64, error) {
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if v, ok := strings.CutPrefix(line, "used_memory:"); ok {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return 0, errors.Wrapf(err, "parsing used_memory %q", v)
			}
			return n, nil
		}
	}
	return 0, errors.New("used_memory not found in INFO reply")
}

func commonPrefix(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

func globEscape(p []byte) string {
	var sb strings.Builder
	for _, c := range p {
		switch c {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

type iterator struct {
	db      *DB
	ctx     context.Context
	scanner radix.Scanner
	start   []byte
	end     []byte
	limit   int
	yielded int
	key     []byte
	value   []byte
	err     error
}

func (it *iterator) inRange(k []byte) bool {
	if len(it.start) > 0 && bytes.Compare(k, it.start) < 0 {
		return false
	}
	if len(it.end) > 0 && bytes.Compare(k, it.end) >= 0 {
		return false
	}
	return true
}

func (it *iterator) Next() bool {
	it.key, it.value = nil, nil
	if it.err != nil || it.scanner == nil || (it.limit > 0 && it.yielded >= it.limit) {
		return false
	}
	var k string
	for it.scanner.Next(&k) {
		kb := []byte(k)
		if !it.inRange(kb) {
			continue
		}
		v, err := it.db.Get(it.ctx, kb, store.GetOptions{})
		if errors.Is(err, store.ErrNotFound) {
			// Deleted between SCAN and GET.
			continue
		}
		if err != nil {
			it.err = err
			return false
		}
		it.key, it.value = kb, v
		it.yielded++
		return true
	}
	// Scanner.Next reports failures through Close.
	it.err = it.scanner.Close()
	it.scanner = nil
	return false
}

func (it *iterator) Key() []byte   { return it.key }
func (it *iterator) Value() []byte { return it.value }
func (it *iterator) Error() error  { return it.err }

func (it *iterator) Close() error {
	if it.scanner == nil {
		return nil
	}
	err := it.scanner.Close()
	it.scanner = nil
	return err
}
