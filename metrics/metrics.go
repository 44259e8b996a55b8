// Package metrics exposes read phase observations to Prometheus.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "kvbench"

// Collector records reads. It satisfies benchmark_runner.Recorder and is
// safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	reads    prometheus.Counter
	bytes    prometheus.Counter
	latency  prometheus.Histogram
	inflight prometheus.Gauge
}

// New registers the read metrics on a fresh registry, labelled with the
// backend name and run id.
func New(backend, runID string) *Collector {
	labels := prometheus.Labels{"backend": backend, "run_id": runID}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "reads_total",
			Help:        "Completed reads.",
			ConstLabels: labels,
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "read_bytes_total",
			Help:        "Key and value bytes read.",
			ConstLabels: labels,
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "read_latency_seconds",
			Help:        "Latency of a single read.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "reads_in_flight",
			Help:        "Reads issued but not yet aggregated.",
			ConstLabels: labels,
		}),
	}
	c.registry.MustRegister(c.reads, c.bytes, c.latency, c.inflight)
	return c
}

func (c *Collector) ObserveRead(took time.Duration, bytes int) {
	c.reads.Inc()
	c.bytes.Add(float64(bytes))
	c.latency.Observe(took.Seconds())
}

func (c *Collector) SetInFlight(n int64) {
	c.inflight.Set(float64(n))
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done. It returns the bound
// address once listening; serve errors are logged.
func (c *Collector) Serve(ctx context.Context, addr string, logger *zap.Logger) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}
