package benchmark_runner

import (
	"context"
	"io"
	"math"
	"sync/atomic"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/VividCortex/ewma"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/isabella232/bench-1/store"
)

// State of a ReadDriver.
type State int32

const (
	Idle State = iota
	Running
	// Draining means every read has been issued and the driver waits for
	// the ones still in flight.
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Recorder receives per-read observations, e.g. for Prometheus.
type Recorder interface {
	ObserveRead(took time.Duration, bytes int)
	SetInFlight(n int64)
}

// completion is sent by a worker for every finished operation. An iterator
// that reached its end sends one with measured unset.
type completion struct {
	took     time.Duration
	bytes    int
	measured bool
}

// ReadResult is what the read phase measured.
type ReadResult struct {
	Reads     int64
	Bytes     int64
	Start     time.Time
	End       time.Time
	Histogram *hdrhistogram.Histogram
	Rows      []MetricsRow
}

// ReadDriver runs the timed read phase. Workers do the I/O and report
// completions over a channel; the goroutine calling Start is the only one
// that updates counters and writes rows.
type ReadDriver struct {
	cfg      Config
	logger   *zap.Logger
	metrics  *MetricsWriter
	recorder Recorder

	state    atomic.Int32
	inflight atomic.Int64
	// slots holds one token per issued read until the aggregator has
	// completed it, bounding inflight by Concurrency.
	slots chan struct{}

	reads   int64
	bytes   int64
	acc     time.Duration
	start   time.Time
	lastRow time.Duration
	rate    ewma.MovingAverage
	hist    *hdrhistogram.Histogram
	rows    []MetricsRow
}

// NewReadDriver writes CSV rows to out. recorder may be nil.
func NewReadDriver(cfg Config, out io.Writer, logger *zap.Logger, recorder Recorder) *ReadDriver {
	cfg.Resolve()
	return &ReadDriver{
		cfg:      cfg,
		logger:   logger,
		metrics:  NewMetricsWriter(out),
		recorder: recorder,
		rate:     ewma.NewMovingAverage(),
		hist:     newLatencyHistogram(),
	}
}

func (d *ReadDriver) State() State { return State(d.state.Load()) }

// InFlight is the number of issued reads whose completion has not been
// aggregated yet.
func (d *ReadDriver) InFlight() int64 { return d.inflight.Load() }

func (d *ReadDriver) Result() ReadResult {
	end := time.Now()
	if d.State() == Closed {
		end = d.start.Add(d.lastRow)
	}
	return ReadResult{
		Reads:     d.reads,
		Bytes:     d.bytes,
		Start:     d.start,
		End:       end,
		Histogram: d.hist,
		Rows:      d.rows,
	}
}

// Start reads cfg.N entries from db, then closes db. It returns once the
// store is closed or on the first error; on error the store is left open for
// the caller to dispose of.
func (d *ReadDriver) Start(ctx context.Context, db store.Store, gen KeyGenerator) error {
	if !d.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return errors.Newf("read driver already %s", d.State())
	}
	if err := d.cfg.Validate(); err != nil {
		return err
	}
	if err := d.metrics.WriteHeader(); err != nil {
		return errors.Wrap(err, "writing metrics header")
	}
	d.start = time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	results := make(chan completion, d.cfg.Concurrency)
	d.slots = make(chan struct{}, d.cfg.Concurrency)

	switch d.cfg.Mode {
	case ModeGet:
		d.startGetWorkers(gctx, g, db, gen, results)
	case ModeIterator:
		iterOpts, hasLimit, err := d.cfg.iteratorOptions()
		if err != nil {
			return err
		}
		g.Go(func() error {
			return d.iterate(gctx, db, iterOpts, hasLimit, results)
		})
	case ModeStream:
		return errors.Wrap(ErrUnsupportedMode, "stream mode is not implemented")
	default:
		return errors.Mark(errors.Newf("unknown mode %q", d.cfg.Mode), ErrConfig)
	}

	n := int64(d.cfg.N)
	for d.reads < n {
		select {
		case c := <-results:
			if err := d.complete(c); err != nil {
				return err
			}
		case <-gctx.Done():
			err := g.Wait()
			if err == nil {
				err = gctx.Err()
			}
			// Completions sent before the failure still count.
			for len(results) > 0 && d.reads < n {
				if cerr := d.complete(<-results); cerr != nil {
					return errors.CombineErrors(err, cerr)
				}
			}
			return err
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	d.drain()
	return d.finish(db)
}

func (d *ReadDriver) startGetWorkers(ctx context.Context, g *errgroup.Group, db store.Store, gen KeyGenerator, results chan<- completion) {
	opts := d.cfg.getOptions()
	jobs := make(chan int)
	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < d.cfg.N; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		d.drain()
		return nil
	})
	for w := 0; w < d.cfg.Concurrency; w++ {
		g.Go(func() error {
			for i := range jobs {
				key := gen.Key(i)
				if err := d.issue(ctx); err != nil {
					return err
				}
				start := time.Now()
				value, err := db.Get(ctx, key, opts)
				took := time.Since(start)
				if err != nil {
					return backendError(err, "get %q", key)
				}
				select {
				case results <- completion{took: took, bytes: len(key) + len(value), measured: true}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
}

// iterate is the single iterator worker. The iterator is created on first
// use and, when a limit is configured, re-created after it runs out.
func (d *ReadDriver) iterate(ctx context.Context, db store.Store, opts store.IteratorOptions, hasLimit bool, results chan<- completion) error {
	var it store.Iterator
	defer func() {
		if it != nil {
			_ = it.Close()
		}
	}()

	send := func(c completion) error {
		select {
		case results <- c:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	reads, yielded := 0, 0
	for reads < d.cfg.N {
		if it == nil {
			var err error
			if it, err = db.NewIterator(ctx, opts); err != nil {
				return backendError(err, "creating iterator")
			}
			yielded = 0
		}

		if err := d.issue(ctx); err != nil {
			return err
		}
		start := time.Now()
		ok := it.Next()
		took := time.Since(start)
		if ok {
			n := len(it.Key()) + len(it.Value())
			reads++
			yielded++
			if err := send(completion{took: took, bytes: n, measured: true}); err != nil {
				return err
			}
			continue
		}

		if err := it.Error(); err != nil {
			return backendError(err, "advancing iterator")
		}
		// An iterator that yields nothing can never make progress, limit or
		// not.
		if !hasLimit || yielded == 0 {
			return errors.Wrapf(ErrPrematureEnd, "iterator ended after %d of %d reads", reads, d.cfg.N)
		}
		err := it.Close()
		it = nil
		if err != nil {
			return backendError(err, "ending iterator")
		}
		if err := send(completion{}); err != nil {
			return err
		}
	}
	d.drain()
	return nil
}

// drain marks that no further reads will be issued.
func (d *ReadDriver) drain() {
	d.state.CompareAndSwap(int32(Running), int32(Draining))
}

// issue waits for a free slot and counts one more read in flight.
func (d *ReadDriver) issue(ctx context.Context) error {
	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	n := d.inflight.Add(1)
	if d.recorder != nil {
		d.recorder.SetInFlight(n)
	}
	return nil
}

// complete aggregates one completion. Only the Start goroutine calls it.
func (d *ReadDriver) complete(c completion) error {
	inflight := d.inflight.Add(-1)
	<-d.slots
	if d.recorder != nil {
		d.recorder.SetInFlight(inflight)
	}
	if !c.measured {
		return nil
	}
	d.reads++
	d.bytes += int64(c.bytes)
	d.acc += c.took
	recordLatency(d.hist, c.took)
	if d.recorder != nil {
		d.recorder.ObserveRead(c.took, c.bytes)
	}

	if d.reads%Window == 0 {
		elapsed := time.Since(d.start)
		if span := (elapsed - d.lastRow).Seconds(); span > 0 {
			d.rate.Add(Window / span)
		}
		d.lastRow = elapsed
		row := newMetricsRow(elapsed, d.reads, d.bytes, d.acc)
		d.rows = append(d.rows, row)
		if err := d.metrics.Write(row); err != nil {
			return errors.Wrap(err, "writing metrics row")
		}
		d.acc = 0
	}
	if d.reads%ProgressWindow == 0 {
		d.logger.Info("read",
			zap.Int64("inflight", inflight),
			zap.Int64("reads", d.reads),
			zap.Int("percent", percent(int(d.reads), d.cfg.N)),
			zap.Float64("reads/s", wrapNaN(d.rate.Value())))
	}
	return nil
}

// finish logs the summary line, ends the metrics stream and closes the store.
func (d *ReadDriver) finish(db store.Store) error {
	elapsed := time.Since(d.start)
	d.lastRow = elapsed
	d.logger.Info("read complete",
		zap.Int64("entries", d.reads),
		zap.Int64("seconds", int64(elapsed.Seconds())),
		zap.Float64("MB", math.Floor(float64(d.bytes)/1048576*100)/100))

	if err := d.metrics.End(); err != nil {
		return errors.Wrap(err, "ending metrics stream")
	}
	d.state.Store(int32(Closed))
	if err := db.Close(); err != nil {
		return closeError(err, "closing store")
	}
	return nil
}

// protect against NaN on json and logs
func wrapNaN(input float64) float64 {
	if math.IsNaN(input) || math.IsInf(input, 0) {
		return -1.0
	}
	return input
}
