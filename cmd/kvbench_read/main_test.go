package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isabella232/bench-1/benchmark_runner"
	"github.com/isabella232/bench-1/keyspace"
)

func parse(t *testing.T, args ...string) (*configFlags, *pflag.FlagSet) {
	t.Helper()
	var c configFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.register(fs)
	require.NoError(t, fs.Parse(args))
	return &c, fs
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bench.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestResolveFlagsOnly(t *testing.T) {
	c, fs := parse(t, "-n", "5000", "--iterator", "--iterator-opt", "limit=100", "--settle-delay", "10ms")
	cfg, err := c.resolve(fs, "")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.N)
	assert.Equal(t, benchmark_runner.ModeIterator, cfg.Mode)
	assert.Equal(t, keyspace.Seq, cfg.Keys)
	assert.Equal(t, map[string]string{"limit": "100"}, cfg.IteratorOptions)
	assert.Equal(t, 10*time.Millisecond, cfg.SettleDelay)
	assert.Equal(t, 100, cfg.ValueSize)
}

func TestResolveConfigFileWithOverrides(t *testing.T) {
	path := writeConfig(t, `
n = 20000
concurrency = 8
value-size = 32
mode = "get"
keys = "seq"
settle-delay = "1s"
prefix = "bench"

[get-options]
fillCache = "false"
`)
	c, fs := parse(t, "--concurrency", "2", "--value-size", "64")
	cfg, err := c.resolve(fs, path)
	require.NoError(t, err)

	assert.Equal(t, 20000, cfg.N)
	assert.Equal(t, 2, cfg.Concurrency, "explicit flag wins")
	assert.Equal(t, 64, cfg.ValueSize, "explicit flag wins")
	assert.Equal(t, keyspace.Seq, cfg.Keys)
	assert.Equal(t, time.Second, cfg.SettleDelay)
	assert.Equal(t, "bench", cfg.Prefix)
	assert.Equal(t, map[string]string{"fillCache": "false"}, cfg.GetOptions)
	assert.Equal(t, "seed", cfg.Seed, "unset values keep their defaults")
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		toml string
	}{
		{"two modes", []string{"--get", "--stream"}, ""},
		{"bad toml", nil, "n = ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fs := parse(t, tt.args...)
			path := ""
			if tt.toml != "" {
				path = writeConfig(t, tt.toml)
			}
			_, err := c.resolve(fs, path)
			require.True(t, errors.Is(err, benchmark_runner.ErrConfig), "got %v", err)
		})
	}
}

func TestNewBenchmark(t *testing.T) {
	tests := []struct {
		name    string
		opts    backendOptions
		wantErr bool
	}{
		{"memdb", backendOptions{backend: backendMemdb}, false},
		{"pebble in memory", backendOptions{backend: backendPebble, inMemory: true}, false},
		{"pebble without path", backendOptions{backend: backendPebble}, true},
		{"redis", backendOptions{backend: backendRedis, host: "localhost:6379"}, false},
		{"etcd without endpoints", backendOptions{backend: backendEtcd}, true},
		{"unknown", backendOptions{backend: "leveldb"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := newBenchmark(tt.opts, 1, zaptest.NewLogger(t))
			if tt.wantErr {
				require.True(t, errors.Is(err, benchmark_runner.ErrConfig), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.opts.backend, b.Name())
		})
	}
}

func TestRootCommandRunsMemdb(t *testing.T) {
	jsonPath := filepath.Join(t.TempDir(), "result.json")
	cmd := newRootCmd(zaptest.NewLogger(t))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"-n", "2000", "--settle-delay", "1ms", "--value-size", "16", "--json-out-file", jsonPath})

	require.NoError(t, cmd.ExecuteContext(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, benchmark_runner.CSVHeader, lines[0])
	assert.FileExists(t, jsonPath)
}

func TestRootCommandPebbleWithPrometheus(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "out.csv")
	cmd := newRootCmd(zaptest.NewLogger(t))
	cmd.SetArgs([]string{
		"--backend", "pebble", "--in-memory", "-n", "1000", "--settle-delay", "1ms",
		"--iterator", "--out", csvPath, "--prometheus-addr", "127.0.0.1:0",
	})

	require.NoError(t, cmd.ExecuteContext(context.Background()))

	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 2)
}

func TestRootCommandRejectsSmallN(t *testing.T) {
	cmd := newRootCmd(zaptest.NewLogger(t))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"-n", "10"})
	err := cmd.ExecuteContext(context.Background())
	require.True(t, errors.Is(err, benchmark_runner.ErrConfig), "got %v", err)
}
