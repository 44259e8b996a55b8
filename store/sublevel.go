package store

import (
	"context"
)

const sublevelSeparator = '!'

// Sublevel namespaces every key of an inner store under "!prefix!". It does
// not forward compaction or disk usage; use Reachdown to find those.
type Sublevel struct {
	inner  Store
	prefix []byte
	// upper is the exclusive upper bound of the namespace.
	upper []byte
}

func NewSublevel(inner Store, prefix string) *Sublevel {
	p := make([]byte, 0, len(prefix)+2)
	p = append(p, sublevelSeparator)
	p = append(p, prefix...)
	p = append(p, sublevelSeparator)
	upper := append([]byte(nil), p...)
	upper[len(upper)-1]++
	return &Sublevel{inner: inner, prefix: p, upper: upper}
}

func (s *Sublevel) Type() string { return "sublevel" }

func (s *Sublevel) Unwrap() Store { return s.inner }

// Prefix is the namespace prepended to every key.
func (s *Sublevel) Prefix() []byte { return s.prefix }

func (s *Sublevel) Status() string {
	if st, ok := s.inner.(Statuser); ok {
		return st.Status()
	}
	return StatusOpen
}

func (s *Sublevel) key(k []byte) []byte {
	out := make([]byte, 0, len(s.prefix)+len(k))
	out = append(out, s.prefix...)
	return append(out, k...)
}

func (s *Sublevel) Get(ctx context.Context, key []byte, opts GetOptions) ([]byte, error) {
	return s.inner.Get(ctx, s.key(key), opts)
}

func (s *Sublevel) Batch(ctx context.Context, ops []Op, opts WriteOptions) error {
	prefixed := make([]Op, len(ops))
	for i, op := range ops {
		prefixed[i] = Op{Key: s.key(op.Key), Value: op.Value}
	}
	return s.inner.Batch(ctx, prefixed, opts)
}

func (s *Sublevel) NewIterator(ctx context.Context, opts IteratorOptions) (Iterator, error) {
	inner := opts
	inner.Start = s.prefix
	if len(opts.Start) > 0 {
		inner.Start = s.key(opts.Start)
	}
	inner.End = s.upper
	if len(opts.End) > 0 {
		inner.End = s.key(opts.End)
	}
	it, err := s.inner.NewIterator(ctx, inner)
	if err != nil {
		return nil, err
	}
	return &sublevelIterator{Iterator: it, strip: len(s.prefix)}, nil
}

func (s *Sublevel) Close() error {
	return s.inner.Close()
}

type sublevelIterator struct {
	Iterator
	strip int
}

func (it *sublevelIterator) Key() []byte {
	k := it.Iterator.Key()
	if len(k) < it.strip {
		return k
	}
	return k[it.strip:]
}
