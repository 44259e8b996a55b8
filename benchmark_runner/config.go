package benchmark_runner

import (
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"github.com/isabella232/bench-1/keyspace"
	"github.com/isabella232/bench-1/store"
)

const (
	// Window is the number of reads aggregated into one CSV row.
	Window = 1000
	// ProgressWindow is the number of reads or writes between progress lines.
	ProgressWindow = 100 * Window

	DefaultSettleDelay = 500 * time.Millisecond
)

// Access modes for the read phase.
const (
	ModeGet      = "get"
	ModeIterator = "iterator"
	ModeStream   = "stream"
)

// Config holds everything a read benchmark run needs. Zero values of Keys
// and Mode are filled in by Resolve.
type Config struct {
	N           int    `toml:"n" validate:"min=1000"`
	Concurrency int    `toml:"concurrency" validate:"min=1"`
	ValueSize   int    `toml:"value-size" validate:"min=0"`
	Keys        string `toml:"keys" validate:"oneof=random seq seqReverse"`
	Values      string `toml:"values" validate:"oneof=random zero"`
	Seed        string `toml:"seed"`
	Mode        string `toml:"mode" validate:"oneof=get iterator stream"`

	// GetOptions and IteratorOptions are user overrides passed to the store.
	// The iterator understands "limit", "gte" and "lt"; anything else is
	// forwarded untouched.
	GetOptions      map[string]string `toml:"get-options"`
	IteratorOptions map[string]string `toml:"iterator-options"`
	KeyAsBuffer     bool              `toml:"key-as-buffer"`
	ValueAsBuffer   bool              `toml:"value-as-buffer"`

	SettleDelay time.Duration `toml:"settle-delay" validate:"min=0"`
	// MaxRPS caps reads per second, 0 = no limit.
	MaxRPS uint64 `toml:"max-rps"`
	// Prefix namespaces every key under a sublevel when set.
	Prefix string `toml:"prefix"`

	JSONOutFile string `toml:"json-out-file"`
	Metadata    string `toml:"metadata"`
}

func DefaultConfig() Config {
	return Config{
		N:           1e6,
		Concurrency: 1,
		ValueSize:   100,
		Values:      keyspace.RandomValues,
		Seed:        "seed",
		SettleDelay: DefaultSettleDelay,
	}
}

// SelectMode turns the three mode switches into a single mode. At most one
// may be set; none selects get.
func SelectMode(get, iterator, stream bool) (string, error) {
	selected := 0
	mode := ModeGet
	for _, m := range []struct {
		on   bool
		name string
	}{{get, ModeGet}, {iterator, ModeIterator}, {stream, ModeStream}} {
		if m.on {
			selected++
			mode = m.name
		}
	}
	if selected > 1 {
		return "", errors.Mark(errors.New("only one of get, iterator and stream may be selected"), ErrConfig)
	}
	return mode, nil
}

// Resolve fills in mode dependent defaults: get mode when none is selected,
// and sequential keys for iterator and stream runs unless keys were set.
func (c *Config) Resolve() {
	if c.Mode == "" {
		c.Mode = ModeGet
	}
	if c.Keys == "" {
		if c.Mode == ModeIterator || c.Mode == ModeStream {
			c.Keys = keyspace.Seq
		} else {
			c.Keys = keyspace.Random
		}
	}
	if c.Values == "" {
		c.Values = keyspace.RandomValues
	}
}

var validate = validator.New()

// Validate reports configuration problems as ErrConfig. It does not touch
// any store.
func (c *Config) Validate() error {
	if c.N < Window {
		return errors.Mark(errors.Newf("n must be >= %d, got %d", Window, c.N), ErrConfig)
	}
	if err := validate.Struct(c); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid configuration"), ErrConfig)
	}
	if c.Mode == ModeIterator && c.Concurrency > 1 {
		return errors.Mark(errors.Newf("concurrency %d is not supported with iterator mode", c.Concurrency), ErrConfig)
	}
	if _, _, err := c.iteratorOptions(); err != nil {
		return err
	}
	return nil
}

// getOptions merges user overrides with the buffer flag, which always wins.
func (c *Config) getOptions() store.GetOptions {
	return store.GetOptions{
		Extra:    copyOptions(c.GetOptions),
		AsBuffer: c.ValueAsBuffer,
	}
}

// iteratorOptions builds the store options and reports whether an explicit
// limit was configured. A negative limit means no limit.
func (c *Config) iteratorOptions() (opts store.IteratorOptions, hasLimit bool, err error) {
	extra := copyOptions(c.IteratorOptions)
	if v, ok := extra["limit"]; ok {
		delete(extra, "limit")
		limit, perr := strconv.Atoi(v)
		if perr != nil {
			return opts, false, errors.Mark(errors.Wrapf(perr, "iterator limit %q", v), ErrConfig)
		}
		if limit == 0 {
			return opts, false, errors.Mark(errors.New("iterator limit must not be 0"), ErrConfig)
		}
		if limit > 0 {
			opts.Limit = limit
			hasLimit = true
		}
	}
	if v, ok := extra["gte"]; ok {
		delete(extra, "gte")
		opts.Start = []byte(v)
	}
	if v, ok := extra["lt"]; ok {
		delete(extra, "lt")
		opts.End = []byte(v)
	}
	opts.Extra = extra
	opts.KeyAsBuffer = c.KeyAsBuffer
	opts.ValueAsBuffer = c.ValueAsBuffer
	return opts, hasLimit, nil
}

func copyOptions(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ConfigurationMap is recorded in the JSON result.
func (c *Config) ConfigurationMap() map[string]interface{} {
	return map[string]interface{}{
		"n":             c.N,
		"concurrency":   c.Concurrency,
		"valueSize":     c.ValueSize,
		"keys":          c.Keys,
		"values":        c.Values,
		"seed":          c.Seed,
		"mode":          c.Mode,
		"keyAsBuffer":   c.KeyAsBuffer,
		"valueAsBuffer": c.ValueAsBuffer,
		"maxRps":        c.MaxRPS,
		"prefix":        c.Prefix,
	}
}
