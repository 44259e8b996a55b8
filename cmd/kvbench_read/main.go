package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/isabella232/bench-1/benchmark_runner"
	"github.com/isabella232/bench-1/metrics"
)

func main() {
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(logger).ExecuteContext(ctx); err != nil {
		logger.Error("benchmark failed", zap.Error(err))
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}
}

// newLogger logs human readable lines to stderr; stdout carries the CSV.
func newLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	var (
		flags          configFlags
		backend        backendOptions
		configPath     string
		outPath        string
		prometheusAddr string
	)

	cmd := &cobra.Command{
		Use:   "kvbench_read",
		Short: "Benchmark reads against an ordered key-value store",
		Long: `Load n entries into a key-value store, compact them, then read them
back with point lookups or an iterator. One CSV row is written per 1000
reads.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.resolve(cmd.Flags(), configPath)
			if err != nil {
				return err
			}
			b, err := newBenchmark(backend, cfg.Concurrency, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return errors.Wrapf(err, "creating %s", outPath)
				}
				defer f.Close()
				out = f
			}
			return run(cmd.Context(), logger, cfg, b, out, prometheusAddr)
		},
	}

	fs := cmd.Flags()
	flags.register(fs)
	fs.StringVar(&configPath, "config", "", "TOML file with benchmark settings; explicit flags win")
	fs.StringVar(&outPath, "out", "", "Write CSV rows to this file instead of stdout")
	fs.StringVar(&prometheusAddr, "prometheus-addr", "", "Serve Prometheus metrics on this address during the run")
	fs.StringVar(&backend.backend, "backend", backendMemdb, "Store to benchmark: memdb, pebble, redis or etcd")
	fs.StringVar(&backend.path, "path", "", "Pebble data directory")
	fs.BoolVar(&backend.inMemory, "in-memory", false, "Run pebble on an in-memory filesystem")
	fs.Int64Var(&backend.cacheSize, "cache-size", 0, "Pebble block cache size in bytes (0 = default)")
	fs.StringVar(&backend.host, "host", "localhost:6379", "The host:port for Redis connection")
	fs.StringSliceVar(&backend.endpoints, "endpoints", []string{"127.0.0.1:2379"}, "etcd endpoints")
	return cmd
}

func run(ctx context.Context, logger *zap.Logger, cfg benchmark_runner.Config, b benchmark_runner.Benchmark, out io.Writer, prometheusAddr string) error {
	runner := benchmark_runner.NewBenchmarkRunner(cfg, out, logger)
	logger.Info("kvbench_read",
		zap.String("git_sha1", toolVersion()),
		zap.String("run_id", runner.RunID()),
		zap.String("backend", b.Name()),
		zap.String("mode", cfg.Mode))

	if prometheusAddr != "" {
		collector := metrics.New(b.Name(), runner.RunID())
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if _, err := collector.Serve(metricsCtx, prometheusAddr, logger); err != nil {
			return err
		}
		runner.SetRecorder(collector)
	}
	return runner.RunBenchmark(ctx, b)
}
