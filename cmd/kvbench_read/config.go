package main

import (
	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"

	"github.com/isabella232/bench-1/benchmark_runner"
)

// configFlags binds every benchmark setting to a flag. Values land in cfg.
type configFlags struct {
	cfg                   benchmark_runner.Config
	get, iterator, stream bool
}

func (c *configFlags) register(flags *pflag.FlagSet) {
	c.cfg = benchmark_runner.DefaultConfig()
	flags.IntVarP(&c.cfg.N, "n", "n", c.cfg.N, "Number of entries to write and read (>= 1000)")
	flags.IntVar(&c.cfg.Concurrency, "concurrency", c.cfg.Concurrency, "Number of reads in flight")
	flags.IntVar(&c.cfg.ValueSize, "value-size", c.cfg.ValueSize, "Value size in bytes")
	flags.StringVar(&c.cfg.Keys, "keys", "", "Read order: random, seq or seqReverse (default seq for iterator and stream, random otherwise)")
	flags.StringVar(&c.cfg.Values, "values", c.cfg.Values, "Value content: random or zero")
	flags.StringVar(&c.cfg.Seed, "seed", c.cfg.Seed, "Seed for the random key order and values")
	flags.BoolVar(&c.get, "get", false, "Read with point lookups (default)")
	flags.BoolVar(&c.iterator, "iterator", false, "Read with a single iterator")
	flags.BoolVar(&c.stream, "stream", false, "Read with a stream")
	flags.StringToStringVar(&c.cfg.GetOptions, "get-opt", nil, "Extra get option key=value, repeatable")
	flags.StringToStringVar(&c.cfg.IteratorOptions, "iterator-opt", nil, "Extra iterator option key=value (limit, gte, lt), repeatable")
	flags.BoolVar(&c.cfg.KeyAsBuffer, "key-as-buffer", false, "Ask the store for keys as raw bytes")
	flags.BoolVar(&c.cfg.ValueAsBuffer, "value-as-buffer", false, "Ask the store for values as raw bytes")
	flags.DurationVar(&c.cfg.SettleDelay, "settle-delay", c.cfg.SettleDelay, "Pause after load and after compaction")
	flags.Uint64Var(&c.cfg.MaxRPS, "max-rps", 0, "Limit reads per second (0 = no limit)")
	flags.StringVar(&c.cfg.Prefix, "prefix", "", "Namespace keys under a sublevel with this prefix")
	flags.StringVar(&c.cfg.JSONOutFile, "json-out-file", "", "Write the result as JSON to this file")
	flags.StringVar(&c.cfg.Metadata, "metadata", "", "Free form metadata stored with the JSON result")
}

// overrides copies one flag's value from src to dst, keyed by flag name.
var overrides = map[string]func(dst, src *benchmark_runner.Config){
	"n":               func(d, s *benchmark_runner.Config) { d.N = s.N },
	"concurrency":     func(d, s *benchmark_runner.Config) { d.Concurrency = s.Concurrency },
	"value-size":      func(d, s *benchmark_runner.Config) { d.ValueSize = s.ValueSize },
	"keys":            func(d, s *benchmark_runner.Config) { d.Keys = s.Keys },
	"values":          func(d, s *benchmark_runner.Config) { d.Values = s.Values },
	"seed":            func(d, s *benchmark_runner.Config) { d.Seed = s.Seed },
	"get-opt":         func(d, s *benchmark_runner.Config) { d.GetOptions = s.GetOptions },
	"iterator-opt":    func(d, s *benchmark_runner.Config) { d.IteratorOptions = s.IteratorOptions },
	"key-as-buffer":   func(d, s *benchmark_runner.Config) { d.KeyAsBuffer = s.KeyAsBuffer },
	"value-as-buffer": func(d, s *benchmark_runner.Config) { d.ValueAsBuffer = s.ValueAsBuffer },
	"settle-delay":    func(d, s *benchmark_runner.Config) { d.SettleDelay = s.SettleDelay },
	"max-rps":         func(d, s *benchmark_runner.Config) { d.MaxRPS = s.MaxRPS },
	"prefix":          func(d, s *benchmark_runner.Config) { d.Prefix = s.Prefix },
	"json-out-file":   func(d, s *benchmark_runner.Config) { d.JSONOutFile = s.JSONOutFile },
	"metadata":        func(d, s *benchmark_runner.Config) { d.Metadata = s.Metadata },
}

// resolve builds the run configuration. Settings come from the TOML file at
// path when given, and flags the user set explicitly take precedence.
func (c *configFlags) resolve(flags *pflag.FlagSet, path string) (benchmark_runner.Config, error) {
	cfg := c.cfg
	if path != "" {
		cfg = benchmark_runner.DefaultConfig()
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, errors.Mark(errors.Wrapf(err, "reading config %s", path), benchmark_runner.ErrConfig)
		}
		flags.Visit(func(f *pflag.Flag) {
			if set, ok := overrides[f.Name]; ok {
				set(&cfg, &c.cfg)
			}
		})
	}

	if c.get || c.iterator || c.stream {
		mode, err := benchmark_runner.SelectMode(c.get, c.iterator, c.stream)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = mode
	}
	cfg.Resolve()
	return cfg, nil
}
