package benchmark_runner

import (
	"context"

	"github.com/isabella232/bench-1/store"
)

// Benchmark is the backend specific part of a run: how to open the store
// and which backend settings to record with the result.
type Benchmark interface {
	// Name is the backend's type tag, e.g. "pebble".
	Name() string

	// Open returns a freshly opened store. It is called once per run.
	Open(ctx context.Context) (store.Store, error)

	// GetConfigurationParametersMap returns the map of specific configurations used in the benchmark
	GetConfigurationParametersMap() map[string]interface{}
}

// FactoryBenchmark adapts a bare store.Factory.
type FactoryBenchmark struct {
	Backend string
	Factory store.Factory
	Params  map[string]interface{}
}

func (f FactoryBenchmark) Name() string { return f.Backend }

func (f FactoryBenchmark) Open(ctx context.Context) (store.Store, error) {
	return f.Factory(ctx)
}

func (f FactoryBenchmark) GetConfigurationParametersMap() map[string]interface{} {
	if f.Params == nil {
		return map[string]interface{}{}
	}
	return f.Params
}
