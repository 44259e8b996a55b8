package benchmark_runner

import (
	"context"
	"io"
	"math"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isabella232/bench-1/keyspace"
	"github.com/isabella232/bench-1/store"
)

// BenchmarkRunner drives one read benchmark: load, settle, compact, read,
// report. Each phase finishes before the next starts.
type BenchmarkRunner struct {
	cfg      Config
	out      io.Writer
	logger   *zap.Logger
	recorder Recorder
	runID    string

	testResult TestResult
}

// NewBenchmarkRunner writes CSV metrics to out and everything else to logger.
func NewBenchmarkRunner(cfg Config, out io.Writer, logger *zap.Logger) *BenchmarkRunner {
	cfg.Resolve()
	return &BenchmarkRunner{cfg: cfg, out: out, logger: logger, runID: uuid.NewString()}
}

// SetRecorder attaches a per-read observer, e.g. Prometheus metrics.
func (l *BenchmarkRunner) SetRecorder(r Recorder) {
	l.recorder = r
}

func (l *BenchmarkRunner) Config() Config { return l.cfg }

// RunID identifies this run in the JSON result and in exported metrics.
func (l *BenchmarkRunner) RunID() string { return l.runID }

// Result is populated after a successful RunBenchmark.
func (l *BenchmarkRunner) Result() TestResult { return l.testResult }

// RunBenchmark runs every phase against a store opened from b. The
// configuration is validated before b is asked for a store. If a phase fails
// before the read phase closed the store, the store is closed here and any
// close error is attached to the phase error.
func (l *BenchmarkRunner) RunBenchmark(ctx context.Context, b Benchmark) (err error) {
	cfg := l.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	readGen, err := keyspace.New(cfg.N, keyspace.Options{
		Keys: cfg.Keys, Values: cfg.Values, ValueSize: cfg.ValueSize, Seed: cfg.Seed,
	})
	if err != nil {
		return errors.Mark(err, ErrConfig)
	}
	// Writing ordered data in reverse is the fastest for LSM engines.
	writeGen, err := keyspace.New(cfg.N, keyspace.Options{
		Keys: keyspace.SeqReverse, Values: cfg.Values, ValueSize: cfg.ValueSize, Seed: cfg.Seed,
	})
	if err != nil {
		return errors.Mark(err, ErrConfig)
	}

	raw, err := b.Open(ctx)
	if err != nil {
		return backendError(err, "opening %s store", b.Name())
	}
	db := l.wrap(raw)
	var driver *ReadDriver
	defer func() {
		if err == nil || (driver != nil && driver.State() == Closed) {
			return
		}
		if cerr := db.Close(); cerr != nil {
			err = errors.CombineErrors(err, closeError(cerr, "closing store after failure"))
		}
	}()

	l.logger.Info("loading", zap.String("backend", b.Name()), zap.Int("n", cfg.N))
	load, err := NewLoader(l.logger).Load(ctx, db, cfg.N, writeGen)
	if err != nil {
		return err
	}
	// Let the writes settle before compacting.
	if err := wait(ctx, cfg.SettleDelay); err != nil {
		return err
	}

	// Keys were written in reverse, so the range runs from the last written
	// key to the first.
	diskUsage, err := NewCompactor(l.logger, cfg.SettleDelay).Compact(ctx, db, writeGen.Key(cfg.N-1), writeGen.Key(0))
	if err != nil {
		return err
	}

	driver = NewReadDriver(cfg, l.out, l.logger, l.recorder)
	if err := driver.Start(ctx, db, readGen); err != nil {
		return err
	}

	read := driver.Result()
	l.testResult = newTestResult(l.runID, b.Name(), cfg, load, diskUsage, read)
	l.testResult.DBSpecificConfigs = b.GetConfigurationParametersMap()
	l.summary(read)

	if cfg.JSONOutFile != "" {
		if err := l.testResult.writeFile(cfg.JSONOutFile); err != nil {
			return err
		}
	}
	return nil
}

// wrap layers the configured namespace and rate limit over the raw store.
func (l *BenchmarkRunner) wrap(db store.Store) store.Store {
	if l.cfg.Prefix != "" {
		db = store.NewSublevel(db, l.cfg.Prefix)
	}
	if l.cfg.MaxRPS != 0 {
		db = store.NewThrottled(db, l.cfg.MaxRPS, l.cfg.Concurrency)
	}
	return db
}

// summary prints the summary of statistics from the read phase
func (l *BenchmarkRunner) summary(read ReadResult) {
	took := read.End.Sub(read.Start)
	readRate := calculateRateMetrics(read.Reads, 0, took)
	byteRate := calculateRateMetrics(read.Bytes, 0, took)
	_, q := generateQuantileMap(read.Histogram)

	printFn := l.logger.Sugar().Infof
	printFn("Summary:")
	printFn("Issued %d reads in %0.3fsec with %d workers", read.Reads, took.Seconds(), l.cfg.Concurrency)
	printFn("\t- Reads %0.0f ops/sec\tq50 lat %0.3f ms\tq95 lat %0.3f ms\tq99 lat %0.3f ms\tmax lat %0.3f ms",
		wrapNaN(readRate), q["q50"], q["q95"], q["q99"], q["q100"])
	printFn("\tOverall Read Byte Rate: %sB/sec", bytefmt.ByteSize(uint64(math.Max(0, wrapNaN(byteRate)))))
	if l.testResult.DiskUsage > 0 {
		printFn("\tDisk usage after compaction: %s", l.testResult.DiskUsageHuman)
	}
	printFn("\tLoad took %s", time.Duration(l.testResult.LoadDurationMillis)*time.Millisecond)
}
