package store

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// Inf is an unlimited request rate.
const Inf = rate.Limit(math.MaxFloat64)

// Throttled caps the rate of reads (point lookups and iterator steps) issued
// against an inner store. Writes pass through untouched.
type Throttled struct {
	inner   Store
	limiter *rate.Limiter
}

// NewThrottled limits reads to maxRPS per second with the given burst. A
// maxRPS of 0 means no limit.
func NewThrottled(inner Store, maxRPS uint64, burst int) *Throttled {
	requestRate := Inf
	requestBurst := 1
	if maxRPS != 0 {
		requestRate = rate.Limit(maxRPS)
		requestBurst = burst
		if requestBurst < 1 {
			requestBurst = 1
		}
	}
	return &Throttled{inner: inner, limiter: rate.NewLimiter(requestRate, requestBurst)}
}

func (t *Throttled) Type() string { return "throttled" }

func (t *Throttled) Unwrap() Store { return t.inner }

func (t *Throttled) Status() string {
	if st, ok := t.inner.(Statuser); ok {
		return st.Status()
	}
	return StatusOpen
}

func (t *Throttled) Get(ctx context.Context, key []byte, opts GetOptions) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.Get(ctx, key, opts)
}

func (t *Throttled) Batch(ctx context.Context, ops []Op, opts WriteOptions) error {
	return t.inner.Batch(ctx, ops, opts)
}

func (t *Throttled) NewIterator(ctx context.Context, opts IteratorOptions) (Iterator, error) {
	it, err := t.inner.NewIterator(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &throttledIterator{Iterator: it, ctx: ctx, limiter: t.limiter}, nil
}

func (t *Throttled) Close() error {
	return t.inner.Close()
}

type throttledIterator struct {
	Iterator
	ctx     context.Context
	limiter *rate.Limiter
	err     error
}

func (it *throttledIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if err := it.limiter.Wait(it.ctx); err != nil {
		it.err = err
		return false
	}
	return it.Iterator.Next()
}

func (it *throttledIterator) Error() error {
	if it.err != nil {
		return it.err
	}
	return it.Iterator.Error()
}
