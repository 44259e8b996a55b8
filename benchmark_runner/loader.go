package benchmark_runner

import (
	"context"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"go.uber.org/zap"

	"github.com/isabella232/bench-1/store"
)

// MaxBatchSize bounds the number of puts per batch during load.
const MaxBatchSize = 1000

// KeyGenerator produces the key for an index and a value per call.
type KeyGenerator interface {
	Key(i int) []byte
	Value() []byte
}

// Loader writes the dataset before the read phase.
type Loader struct {
	logger *zap.Logger
}

// LoadResult summarises a completed load.
type LoadResult struct {
	Writes    int
	Batches   int
	Bytes     uint64
	Took      time.Duration
	Histogram *hdrhistogram.Histogram
}

func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load issues sequential batches of at most MaxBatchSize puts over indices
// 0..n-1 of gen. Only the final batch is written with Sync. The first
// failing batch aborts the load.
func (l *Loader) Load(ctx context.Context, db store.Store, n int, gen KeyGenerator) (LoadResult, error) {
	res := LoadResult{Histogram: newLatencyHistogram()}
	start := time.Now()
	writes := 0
	for {
		if writes%ProgressWindow == 0 || writes >= n {
			l.logger.Info("load",
				zap.Int("writes", writes),
				zap.Int("percent", percent(writes, n)))
		}
		if writes >= n {
			break
		}

		size := MaxBatchSize
		if n-writes < size {
			size = n - writes
		}
		ops := make([]store.Op, size)
		for i := range ops {
			key := gen.Key(writes)
			value := gen.Value()
			ops[i] = store.Op{Key: key, Value: value}
			res.Bytes += uint64(len(key) + len(value))
			writes++
		}

		batchStart := time.Now()
		if err := db.Batch(ctx, ops, store.WriteOptions{Sync: writes >= n}); err != nil {
			return res, backendError(err, "writing batch ending at %d", writes)
		}
		recordLatency(res.Histogram, time.Since(batchStart))
		res.Batches++
		res.Writes = writes
	}
	res.Took = time.Since(start)
	return res, nil
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return int(float64(done)/float64(total)*100 + 0.5)
}
