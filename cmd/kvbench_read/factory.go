package main

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/isabella232/bench-1/benchmark_runner"
	"github.com/isabella232/bench-1/store"
	"github.com/isabella232/bench-1/store/etcddb"
	"github.com/isabella232/bench-1/store/memdb"
	"github.com/isabella232/bench-1/store/pebbledb"
	"github.com/isabella232/bench-1/store/redisdb"
)

const (
	backendMemdb  = "memdb"
	backendPebble = "pebble"
	backendRedis  = "redis"
	backendEtcd   = "etcd"
)

type backendOptions struct {
	backend   string
	path      string
	inMemory  bool
	cacheSize int64
	host      string
	endpoints []string
}

// newBenchmark picks the store for a run. Nothing is opened until the
// runner asks for it.
func newBenchmark(o backendOptions, concurrency int, logger *zap.Logger) (benchmark_runner.Benchmark, error) {
	var factory store.Factory
	params := map[string]interface{}{}
	switch o.backend {
	case backendMemdb:
		factory = func(context.Context) (store.Store, error) { return memdb.New(), nil }
	case backendPebble:
		if o.path == "" && !o.inMemory {
			return nil, errors.Mark(errors.New("pebble needs --path or --in-memory"), benchmark_runner.ErrConfig)
		}
		params["path"] = o.path
		params["inMemory"] = o.inMemory
		params["cacheSize"] = o.cacheSize
		factory = func(context.Context) (store.Store, error) {
			return pebbledb.Open(pebbledb.Options{Path: o.path, InMemory: o.inMemory, CacheSize: o.cacheSize})
		}
	case backendRedis:
		params["host"] = o.host
		params["poolSize"] = concurrency
		factory = func(context.Context) (store.Store, error) {
			return redisdb.Open(redisdb.Options{Host: o.host, PoolSize: concurrency})
		}
	case backendEtcd:
		if len(o.endpoints) == 0 {
			return nil, errors.Mark(errors.New("etcd needs at least one --endpoints entry"), benchmark_runner.ErrConfig)
		}
		params["endpoints"] = o.endpoints
		factory = func(context.Context) (store.Store, error) {
			return etcddb.Open(etcddb.Options{Endpoints: o.endpoints, Logger: logger.Named("etcd")})
		}
	default:
		return nil, errors.Mark(errors.Newf("unknown backend %q", o.backend), benchmark_runner.ErrConfig)
	}
	return benchmark_runner.FactoryBenchmark{Backend: o.backend, Factory: factory, Params: params}, nil
}
