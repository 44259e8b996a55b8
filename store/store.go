// Package store defines the access contract every benchmarked key-value
// backend implements, plus the optional capabilities a backend or one of its
// wrappers may expose.
package store

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// GetOptions are passed through to the backend on every point lookup.
type GetOptions struct {
	// AsBuffer asks for the value as raw bytes instead of a decoded string.
	// Backends in this module always return bytes; the flag is kept so
	// wrappers and backends that care can observe it.
	AsBuffer bool
	// Extra carries user supplied key=value overrides.
	Extra map[string]string
}

// IteratorOptions configure a forward iterator.
type IteratorOptions struct {
	KeyAsBuffer   bool
	ValueAsBuffer bool
	// Limit caps the number of entries the iterator yields. Zero or negative
	// means no limit.
	Limit int
	// Start and End bound the iteration to [Start, End). Empty means open.
	Start []byte
	End   []byte
	Extra map[string]string
}

type WriteOptions struct {
	Sync bool
}

// Op is a single put inside a batch.
type Op struct {
	Key   []byte
	Value []byte
}

// Store is the abstract storage handle the benchmark drives.
type Store interface {
	Get(ctx context.Context, key []byte, opts GetOptions) ([]byte, error)
	Batch(ctx context.Context, ops []Op, opts WriteOptions) error
	NewIterator(ctx context.Context, opts IteratorOptions) (Iterator, error)
	Close() error
}

// Iterator walks entries in ascending key order. Next returns false at the
// end of the range or on error; callers check Error afterwards.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// Factory opens a store.
type Factory func(ctx context.Context) (Store, error)

// RangeCompacter is implemented by layers that can compact a key range.
type RangeCompacter interface {
	CompactRange(ctx context.Context, start, end []byte) error
}

// DiskUsager is implemented by layers that can report their on-disk size in
// bytes.
type DiskUsager interface {
	DiskUsage(ctx context.Context) (uint64, error)
}

// Typer exposes the type tag of a layer, e.g. "pebble" or "sublevel".
type Typer interface {
	Type() string
}

// Wrapper is implemented by layers that delegate to an inner store.
type Wrapper interface {
	Unwrap() Store
}

// Downer lets a layer take over resolution of its own wrapper chain.
type Downer interface {
	Down(typ string, visit func(Store) bool) Store
}

// Statuser is implemented by every concrete store in this module. Together
// with Store it identifies a "loose" store when resolving through plain
// struct fields.
type Statuser interface {
	Status() string
}

// Status values reported through Statuser.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)
