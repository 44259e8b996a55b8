// Package keyspace produces the deterministic keys and values a benchmark
// run writes and reads. Every generator built for the same n covers the same
// set of keys; only the order in which indices map to keys differs.
package keyspace

import (
	"hash/fnv"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
)

// Key orderings.
const (
	Random     = "random"
	Seq        = "seq"
	SeqReverse = "seqReverse"
)

// Value modes.
const (
	RandomValues = "random"
	ZeroValues   = "zero"
)

type Options struct {
	Keys      string
	Values    string
	ValueSize int
	Seed      string
}

type Generator struct {
	n     int
	width int
	perm  []int
	mode  string

	valueSize  int
	zeroValues bool

	mu  sync.Mutex
	rng *rand.Rand
}

func New(n int, opts Options) (*Generator, error) {
	if n < 1 {
		return nil, errors.Newf("keyspace size must be positive, got %d", n)
	}
	if opts.ValueSize < 0 {
		return nil, errors.Newf("value size must not be negative, got %d", opts.ValueSize)
	}
	g := &Generator{
		n:         n,
		width:     len(strconv.Itoa(n - 1)),
		mode:      opts.Keys,
		valueSize: opts.ValueSize,
	}
	switch opts.Keys {
	case Seq, SeqReverse:
	case Random, "":
		g.mode = Random
		g.perm = newRand(opts.Seed, "keys").Perm(n)
	default:
		return nil, errors.Newf("unknown keys mode %q", opts.Keys)
	}
	switch opts.Values {
	case RandomValues, "":
		g.rng = newRand(opts.Seed, "values")
	case ZeroValues:
		g.zeroValues = true
	default:
		return nil, errors.Newf("unknown values mode %q", opts.Values)
	}
	return g, nil
}

func newRand(seed, stream string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	s1 := h.Sum64()
	_, _ = h.Write([]byte(stream))
	return rand.New(rand.NewPCG(s1, h.Sum64()))
}

// N is the size of the keyspace.
func (g *Generator) N() int { return g.n }

func (g *Generator) order(i int) int {
	switch g.mode {
	case SeqReverse:
		return g.n - 1 - i
	case Random:
		return g.perm[i]
	}
	return i
}

// Key returns the key at position i. Keys are fixed width so byte order
// matches numeric order. Panics if i is out of [0, n).
func (g *Generator) Key(i int) []byte {
	if i < 0 || i >= g.n {
		panic(errors.AssertionFailedf("key index %d out of range [0, %d)", i, g.n))
	}
	s := strconv.Itoa(g.order(i))
	out := make([]byte, g.width)
	pad := g.width - len(s)
	for j := 0; j < pad; j++ {
		out[j] = '0'
	}
	copy(out[pad:], s)
	return out
}

// Value returns the next value. Random values form a deterministic sequence
// for a given seed. Safe for concurrent use.
func (g *Generator) Value() []byte {
	out := make([]byte, g.valueSize)
	if g.zeroValues {
		return out
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := 0; i < len(out); i += 8 {
		v := g.rng.Uint64()
		for j := 0; j < 8 && i+j < len(out); j++ {
			out[i+j] = byte(v >> (8 * j))
		}
	}
	return out
}
