// Package etcddb runs the benchmark against an etcd cluster through the v3
// client.
package etcddb

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.etcd.io/etcd/api/v3/mvccpb"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/isabella232/bench-1/store"
)

const (
	dialTimeout = 5 * time.Second
	// maxTxnOps matches etcd's default --max-txn-ops.
	maxTxnOps = 128
	pageSize  = 1000
)

type Options struct {
	Endpoints []string
	Logger    *zap.Logger
}

type DB struct {
	cli    *clientv3.Client
	closed atomic.Bool
}

var (
	_ store.Store          = (*DB)(nil)
	_ store.RangeCompacter = (*DB)(nil)
	_ store.DiskUsager     = (*DB)(nil)
)

func Open(opts Options) (*DB, error) {
	if len(opts.Endpoints) == 0 {
		return nil, errors.New("etcddb: at least one endpoint is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: dialTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to etcd at %v", opts.Endpoints)
	}
	return &DB{cli: cli}, nil
}

func (d *DB) Type() string { return "etcd" }

func (d *DB) Status() string {
	if d.closed.Load() {
		return store.StatusClosed
	}
	return store.StatusOpen
}

func (d *DB) Get(ctx context.Context, key []byte, _ store.GetOptions) ([]byte, error) {
	resp, err := d.cli.Get(ctx, string(key))
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, store.ErrNotFound
	}
	return resp.Kvs[0].Value, nil
}

// Batch writes ops in transactions of at most maxTxnOps puts. etcd commits
// every transaction durably, so WriteOptions.Sync has no extra effect.
func (d *DB) Batch(ctx context.Context, ops []store.Op, _ store.WriteOptions) error {
	for len(ops) > 0 {
		chunk := ops
		if len(chunk) > maxTxnOps {
			chunk = chunk[:maxTxnOps]
		}
		ops = ops[len(chunk):]
		puts := make([]clientv3.Op, len(chunk))
		for i, op := range chunk {
			puts[i] = clientv3.OpPut(string(op.Key), string(op.Value))
		}
		if _, err := d.cli.Txn(ctx).Then(puts...).Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) NewIterator(ctx context.Context, opts store.IteratorOptions) (store.Iterator, error) {
	start := opts.Start
	if len(start) == 0 {
		start = []byte{0}
	}
	return &iterator{cli: d.cli, ctx: ctx, next: start, end: opts.End, limit: opts.Limit}, nil
}

// CompactRange compacts the key-value history up to the current revision.
// etcd compacts revisions, not key ranges, so start and end are ignored.
func (d *DB) CompactRange(ctx context.Context, _, _ []byte) error {
	resp, err := d.cli.Get(ctx, "\x00", clientv3.WithCountOnly())
	if err != nil {
		return err
	}
	_, err = d.cli.Compact(ctx, resp.Header.Revision, clientv3.WithCompactPhysical())
	if errors.Is(err, rpctypes.ErrCompacted) {
		return nil
	}
	return err
}

// DiskUsage reports the backend database size of the first endpoint.
func (d *DB) DiskUsage(ctx context.Context) (uint64, error) {
	eps := d.cli.Endpoints()
	if len(eps) == 0 {
		return 0, nil
	}
	resp, err := d.cli.Status(ctx, eps[0])
	if err != nil {
		return 0, err
	}
	return uint64(resp.DbSize), nil
}

func (d *DB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return errors.New("etcddb: already closed")
	}
	return d.cli.Close()
}

type iterator struct {
	cli     *clientv3.Client
	ctx     context.Context
	next    []byte
	end     []byte
	limit   int
	yielded int
	page    []*mvccpb.KeyValue
	cur     *mvccpb.KeyValue
	done    bool
	err     error
}

func (it *iterator) fetch() {
	size := int64(pageSize)
	if it.limit > 0 {
		if left := int64(it.limit - it.yielded); left < size {
			size = left
		}
	}
	opts := []clientv3.OpOption{
		clientv3.WithLimit(size),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	}
	if len(it.end) > 0 {
		opts = append(opts, clientv3.WithRange(string(it.end)))
	} else {
		opts = append(opts, clientv3.WithFromKey())
	}
	resp, err := it.cli.Get(it.ctx, string(it.next), opts...)
	if err != nil {
		it.err = err
		return
	}
	it.page = resp.Kvs
	if !resp.More || len(resp.Kvs) == 0 {
		it.done = true
		return
	}
	last := resp.Kvs[len(resp.Kvs)-1].Key
	it.next = append(append([]byte(nil), last...), 0)
}

func (it *iterator) Next() bool {
	it.cur = nil
	if it.err != nil || (it.limit > 0 && it.yielded >= it.limit) {
		return false
	}
	if len(it.page) == 0 {
		if it.done {
			return false
		}
		it.fetch()
		if it.err != nil || len(it.page) == 0 {
			return false
		}
	}
	it.cur, it.page = it.page[0], it.page[1:]
	it.yielded++
	return true
}

func (it *iterator) Key() []byte {
	if it.cur == nil {
		return nil
	}
	return it.cur.Key
}

func (it *iterator) Value() []byte {
	if it.cur == nil {
		return nil
	}
	return it.cur.Value
}

func (it *iterator) Error() error { return it.err }

func (it *iterator) Close() error {
	it.page = nil
	it.done = true
	return nil
}
